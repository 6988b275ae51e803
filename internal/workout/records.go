package workout

import "github.com/liftlog/liftlog/internal/domain"

// setScore reduces a set to its comparable performance measure.
//
// Weighted work scores weight*reps; unilateral work sums both sides
// before multiplying. Timed work scores elapsed seconds. Missing inputs
// score zero, so an invalid set never beats a real one.
func setScore(modality string, weightKg *float64, reps, repsL, repsR, timeSeconds *int) float64 {
	switch modality {
	case domain.ModalityWeightReps:
		if weightKg == nil || reps == nil {
			return 0
		}
		return *weightKg * float64(*reps)
	case domain.ModalityUnilateral:
		if repsL == nil || repsR == nil {
			return 0
		}
		// Weight is optional for unilateral work (bodyweight movements).
		w := 1.0
		if weightKg != nil {
			w = *weightKg
		}
		return w * float64(*repsL+*repsR)
	case domain.ModalityTimed:
		if timeSeconds == nil {
			return 0
		}
		return float64(*timeSeconds)
	}
	return 0
}

// IsRecord reports whether a candidate set is a personal record against
// the best prior set for the same exercise. A candidate that ties the
// best counts as a record; with no prior set every candidate is one.
func IsRecord(modality string, best *domain.SetLog, candidate *domain.SetLog) bool {
	score := setScore(modality, candidate.WeightKg, candidate.Reps,
		candidate.RepsL, candidate.RepsR, candidate.TimeSeconds)
	if score <= 0 {
		return false
	}
	if best == nil {
		return true
	}
	prior := setScore(modality, best.WeightKg, best.Reps,
		best.RepsL, best.RepsR, best.TimeSeconds)
	return score >= prior
}
