package domain

import (
	"testing"
	"time"
)

func f64(v float64) *float64 { return &v }
func i(v int) *int           { return &v }

func TestSetLogValidate(t *testing.T) {
	base := func() *SetLog {
		return &SetLog{ID: "log-1", SessionID: "sess-1", ExerciseID: "bench"}
	}

	tests := []struct {
		name     string
		modality string
		mutate   func(*SetLog)
		wantErr  bool
	}{
		{"weighted complete", ModalityWeightReps, func(l *SetLog) { l.WeightKg = f64(60); l.Reps = i(8) }, false},
		{"weighted zero weight ok", ModalityWeightReps, func(l *SetLog) { l.WeightKg = f64(0); l.Reps = i(8) }, false},
		{"weighted negative weight", ModalityWeightReps, func(l *SetLog) { l.WeightKg = f64(-5); l.Reps = i(8) }, true},
		{"weighted missing reps", ModalityWeightReps, func(l *SetLog) { l.WeightKg = f64(60) }, true},
		{"unilateral complete", ModalityUnilateral, func(l *SetLog) { l.RepsL = i(8); l.RepsR = i(7) }, false},
		{"unilateral zero side", ModalityUnilateral, func(l *SetLog) { l.RepsL = i(8); l.RepsR = i(0) }, true},
		{"timed complete", ModalityTimed, func(l *SetLog) { l.TimeSeconds = i(45) }, false},
		{"timed zero seconds", ModalityTimed, func(l *SetLog) { l.TimeSeconds = i(0) }, true},
		{"unknown modality", "cardio", func(l *SetLog) { l.Reps = i(8) }, true},
		{"missing session", ModalityWeightReps, func(l *SetLog) { l.SessionID = ""; l.WeightKg = f64(60); l.Reps = i(8) }, true},
		{"negative set index", ModalityWeightReps, func(l *SetLog) { l.SetIndex = -1; l.WeightKg = f64(60); l.Reps = i(8) }, true},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			l := base()
			tt.mutate(l)
			err := l.Validate(tt.modality)
			if (err != nil) != tt.wantErr {
				t.Errorf("Validate() error = %v, wantErr %v", err, tt.wantErr)
			}
		})
	}
}

func TestSessionCompleted(t *testing.T) {
	s := &WorkoutSession{}
	if s.Completed() {
		t.Error("session with no stamp reported completed")
	}

	var zero time.Time
	s.CompletedAt = &zero
	if s.Completed() {
		t.Error("zero-valued stamp counts as incomplete")
	}

	now := time.Now()
	s.CompletedAt = &now
	if !s.Completed() {
		t.Error("stamped session reported incomplete")
	}
}

func TestKnownTable(t *testing.T) {
	for _, table := range []string{
		TableWorkoutSessions, TableSetLogs, TableWorkoutTemplates,
		TableTemplateExercises, TableTrainingPaths, TableProfiles,
		TableGyms, TableExerciseDefinitions,
	} {
		if !KnownTable(table) {
			t.Errorf("KnownTable(%q) = false", table)
		}
	}
	if KnownTable("users") {
		t.Error("KnownTable accepted an unsyncable table")
	}
}

func TestExerciseDefinitionGlobal(t *testing.T) {
	e := &ExerciseDefinition{ID: "bench", Name: "Bench Press", Modality: ModalityWeightReps}
	if !e.Global() {
		t.Error("ownerless definition should be global")
	}
	e.UserID = "user-1"
	if e.Global() {
		t.Error("owned definition should not be global")
	}
}
