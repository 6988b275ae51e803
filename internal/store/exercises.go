package store

import (
	"context"
	"fmt"
	"time"

	"github.com/liftlog/liftlog/internal/domain"
)

// UpsertExerciseDefinition inserts or replaces an exercise definition.
// Used by the seed importer and by local custom-exercise creation.
func (db *DB) UpsertExerciseDefinition(ctx context.Context, e *domain.ExerciseDefinition) error {
	if err := e.Validate(); err != nil {
		return fmt.Errorf("invalid exercise: %w", err)
	}

	query := `
	INSERT INTO exercise_definitions (
		id, user_id, name, modality, muscle_group, equipment,
		created_at, updated_at
	) VALUES (?, ?, ?, ?, ?, ?, ?, ?)
	ON CONFLICT(id) DO UPDATE SET
		user_id = excluded.user_id,
		name = excluded.name,
		modality = excluded.modality,
		muscle_group = excluded.muscle_group,
		equipment = excluded.equipment,
		updated_at = excluded.updated_at
	`

	_, err := db.conn.ExecContext(ctx, query,
		e.ID, e.UserID, e.Name, e.Modality, e.MuscleGroup, e.Equipment,
		e.CreatedAt.Format(time.RFC3339), e.UpdatedAt.Format(time.RFC3339),
	)
	if err != nil {
		return fmt.Errorf("failed to upsert exercise %s: %w", e.ID, err)
	}
	return nil
}

// GetExerciseDefinition retrieves an exercise by id.
// Returns sql.ErrNoRows if not found.
func (db *DB) GetExerciseDefinition(ctx context.Context, id string) (*domain.ExerciseDefinition, error) {
	row := db.conn.QueryRowContext(ctx, `
		SELECT id, user_id, name, modality, muscle_group, equipment,
		       created_at, updated_at
		FROM exercise_definitions
		WHERE id = ?`, id)

	var e domain.ExerciseDefinition
	var createdAt, updatedAt string

	err := row.Scan(&e.ID, &e.UserID, &e.Name, &e.Modality,
		&e.MuscleGroup, &e.Equipment, &createdAt, &updatedAt)
	if err != nil {
		return nil, err
	}

	e.CreatedAt = parseTime(createdAt)
	e.UpdatedAt = parseTime(updatedAt)

	return &e, nil
}

// ExerciseCount returns the number of locally cached exercise definitions.
func (db *DB) ExerciseCount(ctx context.Context) (int, error) {
	var count int
	err := db.conn.QueryRowContext(ctx,
		"SELECT COUNT(*) FROM exercise_definitions").Scan(&count)
	if err != nil {
		return 0, fmt.Errorf("failed to count exercises: %w", err)
	}
	return count, nil
}
