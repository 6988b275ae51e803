package store

import (
	"context"
	"database/sql"
	"fmt"
	"time"

	"github.com/liftlog/liftlog/internal/domain"
)

// UpsertSession inserts or replaces a workout session row.
func (db *DB) UpsertSession(ctx context.Context, s *domain.WorkoutSession) error {
	if err := s.Validate(); err != nil {
		return fmt.Errorf("invalid session: %w", err)
	}
	return db.upsertSession(ctx, db.conn, s)
}

// UpsertSessionTx is UpsertSession inside an existing transaction.
func (db *DB) UpsertSessionTx(ctx context.Context, tx *sql.Tx, s *domain.WorkoutSession) error {
	if err := s.Validate(); err != nil {
		return fmt.Errorf("invalid session: %w", err)
	}
	return db.upsertSession(ctx, tx, s)
}

// execer covers both *sql.DB and *sql.Tx.
type execer interface {
	ExecContext(ctx context.Context, query string, args ...any) (sql.Result, error)
}

func (db *DB) upsertSession(ctx context.Context, ex execer, s *domain.WorkoutSession) error {
	query := `
	INSERT INTO workout_sessions (
		id, user_id, template_id, gym_id, name, notes,
		started_at, completed_at, created_at, updated_at
	) VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?)
	ON CONFLICT(id) DO UPDATE SET
		user_id = excluded.user_id,
		template_id = excluded.template_id,
		gym_id = excluded.gym_id,
		name = excluded.name,
		notes = excluded.notes,
		started_at = excluded.started_at,
		completed_at = excluded.completed_at,
		updated_at = excluded.updated_at
	`

	_, err := ex.ExecContext(ctx, query,
		s.ID,
		s.UserID,
		nullableString(s.TemplateID),
		nullableString(s.GymID),
		s.Name,
		s.Notes,
		s.StartedAt.Format(time.RFC3339),
		timeToNullString(s.CompletedAt),
		s.CreatedAt.Format(time.RFC3339),
		s.UpdatedAt.Format(time.RFC3339),
	)
	if err != nil {
		return fmt.Errorf("failed to upsert session: %w", err)
	}
	return nil
}

// GetSession retrieves a session by id.
// Returns sql.ErrNoRows if the session is not found.
func (db *DB) GetSession(ctx context.Context, id string) (*domain.WorkoutSession, error) {
	query := `
	SELECT id, user_id, template_id, gym_id, name, notes,
	       started_at, completed_at, created_at, updated_at
	FROM workout_sessions
	WHERE id = ?
	`

	row := db.conn.QueryRowContext(ctx, query, id)

	var s domain.WorkoutSession
	var templateID, gymID, completedAt sql.NullString
	var startedAt, createdAt, updatedAt string

	err := row.Scan(
		&s.ID, &s.UserID, &templateID, &gymID, &s.Name, &s.Notes,
		&startedAt, &completedAt, &createdAt, &updatedAt,
	)
	if err != nil {
		return nil, err
	}

	s.TemplateID = nullStringPtr(templateID)
	s.GymID = nullStringPtr(gymID)
	s.StartedAt = parseTime(startedAt)
	s.CompletedAt = nullStringToTime(completedAt)
	s.CreatedAt = parseTime(createdAt)
	s.UpdatedAt = parseTime(updatedAt)

	return &s, nil
}

// ActiveSession returns the user's most recent incomplete session, the
// one an in-progress workout would resume. Returns sql.ErrNoRows when
// every session is completed.
func (db *DB) ActiveSession(ctx context.Context, userID string) (*domain.WorkoutSession, error) {
	query := `
	SELECT id, user_id, template_id, gym_id, name, notes,
	       started_at, completed_at, created_at, updated_at
	FROM workout_sessions
	WHERE user_id = ? AND completed_at IS NULL
	ORDER BY started_at DESC
	LIMIT 1
	`

	row := db.conn.QueryRowContext(ctx, query, userID)

	var s domain.WorkoutSession
	var templateID, gymID, completedAt sql.NullString
	var startedAt, createdAt, updatedAt string

	err := row.Scan(
		&s.ID, &s.UserID, &templateID, &gymID, &s.Name, &s.Notes,
		&startedAt, &completedAt, &createdAt, &updatedAt,
	)
	if err != nil {
		return nil, err
	}

	s.TemplateID = nullStringPtr(templateID)
	s.GymID = nullStringPtr(gymID)
	s.StartedAt = parseTime(startedAt)
	s.CompletedAt = nullStringToTime(completedAt)
	s.CreatedAt = parseTime(createdAt)
	s.UpdatedAt = parseTime(updatedAt)

	return &s, nil
}

// DeleteSession removes a session row. Idempotent.
func (db *DB) DeleteSession(ctx context.Context, id string) error {
	return db.deleteSession(ctx, db.conn, id)
}

// DeleteSessionTx is DeleteSession inside an existing transaction.
func (db *DB) DeleteSessionTx(ctx context.Context, tx *sql.Tx, id string) error {
	return db.deleteSession(ctx, tx, id)
}

func (db *DB) deleteSession(ctx context.Context, ex execer, id string) error {
	if _, err := ex.ExecContext(ctx,
		"DELETE FROM workout_sessions WHERE id = ?", id); err != nil {
		return fmt.Errorf("failed to delete session %s: %w", id, err)
	}
	return nil
}

// SessionCount returns the number of locally cached sessions.
func (db *DB) SessionCount(ctx context.Context) (int, error) {
	var count int
	err := db.conn.QueryRowContext(ctx,
		"SELECT COUNT(*) FROM workout_sessions").Scan(&count)
	if err != nil {
		return 0, fmt.Errorf("failed to count sessions: %w", err)
	}
	return count, nil
}

func nullableString(s *string) sql.NullString {
	if s == nil {
		return sql.NullString{}
	}
	return sql.NullString{String: *s, Valid: true}
}

func nullStringPtr(ns sql.NullString) *string {
	if !ns.Valid {
		return nil
	}
	s := ns.String
	return &s
}
