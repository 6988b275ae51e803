package cache

import (
	"encoding/json"
	"fmt"
	"time"

	"github.com/liftlog/liftlog/internal/domain"
)

// ProfileSpec binds the user-scoped singleton profile row.
func ProfileSpec() TableSpec {
	return TableSpec{
		Table:    domain.TableProfiles,
		Strategy: ReplaceSingleton,
		Columns: []string{
			"id", "user_id", "display_name", "bodyweight_kg", "units",
			"created_at", "updated_at",
		},
		Filter: func(owner Owner) map[string]string {
			return map[string]string{"user_id": "eq." + owner.ID()}
		},
		BindRow: func(row json.RawMessage) ([]any, error) {
			var p domain.Profile
			if err := json.Unmarshal(row, &p); err != nil {
				return nil, err
			}
			if err := p.Validate(); err != nil {
				return nil, fmt.Errorf("profile %s: %w", p.ID, err)
			}
			units := p.Units
			if units == "" {
				units = "kg"
			}
			return []any{
				p.ID, p.UserID, p.DisplayName, p.BodyweightKg, units,
				p.CreatedAt.Format(time.RFC3339), p.UpdatedAt.Format(time.RFC3339),
			}, nil
		},
	}
}

// ExerciseSpec binds the shared exercise library: global (ownerless) rows
// plus the owner's custom exercises. Only the owner's rows are deleted on
// revalidation; rows owned by other scopes are never touched, and global
// rows are refreshed in place by primary key.
func ExerciseSpec() TableSpec {
	return TableSpec{
		Table:    domain.TableExerciseDefinitions,
		Strategy: ReplaceOwnedSubset,
		Columns: []string{
			"id", "user_id", "name", "modality", "muscle_group",
			"equipment", "created_at", "updated_at",
		},
		Filter: func(owner Owner) map[string]string {
			if owner.ID() == "" {
				return map[string]string{"user_id": "is.null"}
			}
			return map[string]string{
				"or": fmt.Sprintf("(user_id.is.null,user_id.eq.%s)", owner.ID()),
			}
		},
		BindRow: func(row json.RawMessage) ([]any, error) {
			var e domain.ExerciseDefinition
			if err := json.Unmarshal(row, &e); err != nil {
				return nil, err
			}
			if err := e.Validate(); err != nil {
				return nil, fmt.Errorf("exercise %s: %w", e.ID, err)
			}
			return []any{
				e.ID, e.UserID, e.Name, e.Modality, e.MuscleGroup,
				e.Equipment, e.CreatedAt.Format(time.RFC3339),
				e.UpdatedAt.Format(time.RFC3339),
			}, nil
		},
	}
}

// TemplateExerciseSpec binds the template/exercise junction table, which
// is fully replicated: cleared and rebuilt on every revalidation.
func TemplateExerciseSpec() TableSpec {
	return TableSpec{
		Table:    domain.TableTemplateExercises,
		Strategy: ReplaceAll,
		Columns:  []string{"id", "template_id", "exercise_id", "position", "target_sets"},
		Filter: func(Owner) map[string]string {
			return nil
		},
		BindRow: func(row json.RawMessage) ([]any, error) {
			var te domain.TemplateExercise
			if err := json.Unmarshal(row, &te); err != nil {
				return nil, err
			}
			if te.ID == "" {
				return nil, fmt.Errorf("template exercise has no id")
			}
			return []any{te.ID, te.TemplateID, te.ExerciseID, te.Position, te.TargetSets}, nil
		},
	}
}

// TemplateSpec binds the user's workout templates.
func TemplateSpec() TableSpec {
	return TableSpec{
		Table:    domain.TableWorkoutTemplates,
		Strategy: ReplaceOwnedSubset,
		Columns: []string{
			"id", "user_id", "name", "notes", "created_at", "updated_at",
		},
		Filter: func(owner Owner) map[string]string {
			return map[string]string{"user_id": "eq." + owner.ID()}
		},
		BindRow: func(row json.RawMessage) ([]any, error) {
			var t domain.WorkoutTemplate
			if err := json.Unmarshal(row, &t); err != nil {
				return nil, err
			}
			if err := t.Validate(); err != nil {
				return nil, fmt.Errorf("template %s: %w", t.ID, err)
			}
			return []any{
				t.ID, t.UserID, t.Name, t.Notes,
				t.CreatedAt.Format(time.RFC3339), t.UpdatedAt.Format(time.RFC3339),
			}, nil
		},
	}
}

// GymSpec binds the user's registered gyms.
func GymSpec() TableSpec {
	return TableSpec{
		Table:    domain.TableGyms,
		Strategy: ReplaceOwnedSubset,
		Columns:  []string{"id", "user_id", "name", "created_at", "updated_at"},
		Filter: func(owner Owner) map[string]string {
			return map[string]string{"user_id": "eq." + owner.ID()}
		},
		BindRow: func(row json.RawMessage) ([]any, error) {
			var g domain.Gym
			if err := json.Unmarshal(row, &g); err != nil {
				return nil, err
			}
			if g.ID == "" || g.UserID == "" {
				return nil, fmt.Errorf("gym row missing identity")
			}
			return []any{
				g.ID, g.UserID, g.Name,
				g.CreatedAt.Format(time.RFC3339), g.UpdatedAt.Format(time.RFC3339),
			}, nil
		},
	}
}

// TrainingPathSpec binds the user's training paths.
func TrainingPathSpec() TableSpec {
	return TableSpec{
		Table:    domain.TableTrainingPaths,
		Strategy: ReplaceOwnedSubset,
		Columns:  []string{"id", "user_id", "name", "weeks", "created_at", "updated_at"},
		Filter: func(owner Owner) map[string]string {
			return map[string]string{"user_id": "eq." + owner.ID()}
		},
		BindRow: func(row json.RawMessage) ([]any, error) {
			var tp domain.TrainingPath
			if err := json.Unmarshal(row, &tp); err != nil {
				return nil, err
			}
			if tp.ID == "" || tp.UserID == "" {
				return nil, fmt.Errorf("training path row missing identity")
			}
			return []any{
				tp.ID, tp.UserID, tp.Name, tp.Weeks,
				tp.CreatedAt.Format(time.RFC3339), tp.UpdatedAt.Format(time.RFC3339),
			}, nil
		},
	}
}
