package domain

import (
	"fmt"
	"time"
)

// Table names form the closed set of collections the sync queue may target.
const (
	TableWorkoutSessions     = "workout_sessions"
	TableSetLogs             = "set_logs"
	TableWorkoutTemplates    = "workout_templates"
	TableTemplateExercises   = "template_exercises"
	TableTrainingPaths       = "training_paths"
	TableProfiles            = "profiles"
	TableGyms                = "gyms"
	TableExerciseDefinitions = "exercise_definitions"
)

// KnownTable reports whether name is one of the syncable collections.
func KnownTable(name string) bool {
	switch name {
	case TableWorkoutSessions, TableSetLogs, TableWorkoutTemplates,
		TableTemplateExercises, TableTrainingPaths, TableProfiles,
		TableGyms, TableExerciseDefinitions:
		return true
	}
	return false
}

// WorkoutSession represents one workout, ad-hoc or template-driven.
//
// A session is created locally the moment the first set is saved and only
// becomes eligible for remote sync once CompletedAt is set. Incomplete
// sessions live purely in the local cache.
type WorkoutSession struct {
	ID          string     `json:"id"`
	UserID      string     `json:"user_id"`
	TemplateID  *string    `json:"template_id,omitempty"`
	GymID       *string    `json:"gym_id,omitempty"`
	Name        string     `json:"name,omitempty"`
	Notes       string     `json:"notes,omitempty"`
	StartedAt   time.Time  `json:"started_at"`
	CompletedAt *time.Time `json:"completed_at,omitempty"`
	CreatedAt   time.Time  `json:"created_at"`
	UpdatedAt   time.Time  `json:"updated_at"`
}

// Completed reports whether the session has a completion timestamp.
func (s *WorkoutSession) Completed() bool {
	return s.CompletedAt != nil && !s.CompletedAt.IsZero()
}

// Validate checks the session has the identity fields the cache and the
// queue rely on.
func (s *WorkoutSession) Validate() error {
	if s.ID == "" {
		return fmt.Errorf("id is required")
	}
	if s.UserID == "" {
		return fmt.Errorf("user_id is required")
	}
	if s.StartedAt.IsZero() {
		return fmt.Errorf("started_at is required")
	}
	return nil
}
