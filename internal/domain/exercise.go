package domain

import (
	"fmt"
	"time"
)

// ExerciseDefinition describes an exercise in the library.
//
// Rows with an empty UserID are global (the shared public library) and are
// never owned by any revalidation scope. Rows with a UserID are custom
// exercises created by that user.
type ExerciseDefinition struct {
	ID          string    `json:"id"`
	UserID      string    `json:"user_id,omitempty"`
	Name        string    `json:"name"`
	Modality    string    `json:"modality"`
	MuscleGroup string    `json:"muscle_group,omitempty"`
	Equipment   string    `json:"equipment,omitempty"`
	CreatedAt   time.Time `json:"created_at"`
	UpdatedAt   time.Time `json:"updated_at"`
}

// Global reports whether the definition belongs to the shared library.
func (e *ExerciseDefinition) Global() bool {
	return e.UserID == ""
}

// Validate checks required definition fields.
func (e *ExerciseDefinition) Validate() error {
	if e.ID == "" {
		return fmt.Errorf("id is required")
	}
	if e.Name == "" {
		return fmt.Errorf("name is required")
	}
	switch e.Modality {
	case ModalityWeightReps, ModalityUnilateral, ModalityTimed:
	default:
		return fmt.Errorf("unknown modality %q", e.Modality)
	}
	return nil
}

// WorkoutTemplate is a reusable workout layout owned by a user.
type WorkoutTemplate struct {
	ID        string    `json:"id"`
	UserID    string    `json:"user_id"`
	Name      string    `json:"name"`
	Notes     string    `json:"notes,omitempty"`
	CreatedAt time.Time `json:"created_at"`
	UpdatedAt time.Time `json:"updated_at"`
}

// Validate checks required template fields.
func (t *WorkoutTemplate) Validate() error {
	if t.ID == "" {
		return fmt.Errorf("id is required")
	}
	if t.UserID == "" {
		return fmt.Errorf("user_id is required")
	}
	if t.Name == "" {
		return fmt.Errorf("name is required")
	}
	return nil
}

// TemplateExercise links an exercise into a template at a position.
//
// This is a fully-replicated junction table: revalidation clears it
// entirely and bulk-inserts the fresh rows, which is acceptable because
// it is small and has no meaningful per-user partition.
type TemplateExercise struct {
	ID         string `json:"id"`
	TemplateID string `json:"template_id"`
	ExerciseID string `json:"exercise_id"`
	Position   int    `json:"position"`
	TargetSets int    `json:"target_sets,omitempty"`
}

// TrainingPath is a structured progression of templates (a "t-path").
type TrainingPath struct {
	ID        string    `json:"id"`
	UserID    string    `json:"user_id"`
	Name      string    `json:"name"`
	Weeks     int       `json:"weeks,omitempty"`
	CreatedAt time.Time `json:"created_at"`
	UpdatedAt time.Time `json:"updated_at"`
}
