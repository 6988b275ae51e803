package domain

import (
	"fmt"
	"time"
)

// Exercise modality determines which fields a set log must carry.
const (
	ModalityWeightReps = "weight_reps" // weight_kg + reps
	ModalityUnilateral = "unilateral"  // weight_kg + reps_l + reps_r
	ModalityTimed      = "timed"       // time_seconds
)

// SetLog is one logged set of one exercise within a session.
type SetLog struct {
	ID          string    `json:"id"`
	SessionID   string    `json:"session_id"`
	UserID      string    `json:"user_id"`
	ExerciseID  string    `json:"exercise_id"`
	SetIndex    int       `json:"set_index"`
	WeightKg    *float64  `json:"weight_kg,omitempty"`
	Reps        *int      `json:"reps,omitempty"`
	RepsL       *int      `json:"reps_l,omitempty"`
	RepsR       *int      `json:"reps_r,omitempty"`
	TimeSeconds *int      `json:"time_seconds,omitempty"`
	IsPB        bool      `json:"is_pb"`
	CreatedAt   time.Time `json:"created_at"`
	UpdatedAt   time.Time `json:"updated_at"`
}

// Validate checks identity fields plus the modality-specific inputs.
//
// The modality comes from the exercise definition, not the set itself,
// so callers pass it in.
func (l *SetLog) Validate(modality string) error {
	if l.ID == "" {
		return fmt.Errorf("id is required")
	}
	if l.SessionID == "" {
		return fmt.Errorf("session_id is required")
	}
	if l.ExerciseID == "" {
		return fmt.Errorf("exercise_id is required")
	}
	if l.SetIndex < 0 {
		return fmt.Errorf("set_index must be non-negative (got %d)", l.SetIndex)
	}
	return validateModality(modality, l.WeightKg, l.Reps, l.RepsL, l.RepsR, l.TimeSeconds)
}

// validateModality enforces the per-modality required fields shared by
// set logs and drafts.
func validateModality(modality string, weightKg *float64, reps, repsL, repsR, timeSeconds *int) error {
	switch modality {
	case ModalityWeightReps:
		if weightKg == nil || reps == nil {
			return fmt.Errorf("weight and reps are required")
		}
		if *weightKg < 0 {
			return fmt.Errorf("weight must be non-negative")
		}
		if *reps <= 0 {
			return fmt.Errorf("reps must be positive")
		}
	case ModalityUnilateral:
		if repsL == nil || repsR == nil {
			return fmt.Errorf("left and right reps are required")
		}
		if *repsL <= 0 || *repsR <= 0 {
			return fmt.Errorf("left and right reps must be positive")
		}
	case ModalityTimed:
		if timeSeconds == nil {
			return fmt.Errorf("time is required")
		}
		if *timeSeconds <= 0 {
			return fmt.Errorf("time must be positive")
		}
	default:
		return fmt.Errorf("unknown modality %q", modality)
	}
	return nil
}
