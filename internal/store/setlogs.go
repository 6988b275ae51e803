package store

import (
	"context"
	"database/sql"
	"fmt"
	"time"

	"github.com/liftlog/liftlog/internal/domain"
)

// InsertSetLogTx writes a committed set log inside an existing transaction.
//
// The reconciler groups this with the draft update so a crash between the
// two never leaves a saved draft pointing at a missing record.
func (db *DB) InsertSetLogTx(ctx context.Context, tx *sql.Tx, l *domain.SetLog) error {
	query := `
	INSERT INTO set_logs (
		id, session_id, user_id, exercise_id, set_index,
		weight_kg, reps, reps_l, reps_r, time_seconds, is_pb,
		created_at, updated_at
	) VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)
	ON CONFLICT(id) DO UPDATE SET
		session_id = excluded.session_id,
		weight_kg = excluded.weight_kg,
		reps = excluded.reps,
		reps_l = excluded.reps_l,
		reps_r = excluded.reps_r,
		time_seconds = excluded.time_seconds,
		is_pb = excluded.is_pb,
		updated_at = excluded.updated_at
	`

	_, err := tx.ExecContext(ctx, query,
		l.ID, l.SessionID, l.UserID, l.ExerciseID, l.SetIndex,
		nullFloat(l.WeightKg), nullInt(l.Reps), nullInt(l.RepsL),
		nullInt(l.RepsR), nullInt(l.TimeSeconds), boolToInt(l.IsPB),
		l.CreatedAt.Format(time.RFC3339), l.UpdatedAt.Format(time.RFC3339),
	)
	if err != nil {
		return fmt.Errorf("failed to insert set log: %w", err)
	}
	return nil
}

// DeleteSetLogTx removes a single set log inside an existing transaction.
// Idempotent.
func (db *DB) DeleteSetLogTx(ctx context.Context, tx *sql.Tx, id string) error {
	if _, err := tx.ExecContext(ctx,
		"DELETE FROM set_logs WHERE id = ?", id); err != nil {
		return fmt.Errorf("failed to delete set log %s: %w", id, err)
	}
	return nil
}

// DeleteSetLogsForSession removes all set logs of one session. Idempotent.
func (db *DB) DeleteSetLogsForSession(ctx context.Context, sessionID string) error {
	return db.deleteSetLogsForSession(ctx, db.conn, sessionID)
}

// DeleteSetLogsForSessionTx is DeleteSetLogsForSession inside an existing
// transaction.
func (db *DB) DeleteSetLogsForSessionTx(ctx context.Context, tx *sql.Tx, sessionID string) error {
	return db.deleteSetLogsForSession(ctx, tx, sessionID)
}

func (db *DB) deleteSetLogsForSession(ctx context.Context, ex execer, sessionID string) error {
	if _, err := ex.ExecContext(ctx,
		"DELETE FROM set_logs WHERE session_id = ?", sessionID); err != nil {
		return fmt.Errorf("failed to delete set logs for session %s: %w", sessionID, err)
	}
	return nil
}

// ListSetLogsForSession returns the set logs of a session ordered by
// exercise then set index.
func (db *DB) ListSetLogsForSession(ctx context.Context, sessionID string) ([]*domain.SetLog, error) {
	query := `
	SELECT id, session_id, user_id, exercise_id, set_index,
	       weight_kg, reps, reps_l, reps_r, time_seconds, is_pb,
	       created_at, updated_at
	FROM set_logs
	WHERE session_id = ?
	ORDER BY exercise_id ASC, set_index ASC
	`

	rows, err := db.conn.QueryContext(ctx, query, sessionID)
	if err != nil {
		return nil, fmt.Errorf("failed to query set logs: %w", err)
	}
	defer rows.Close()

	return scanSetLogs(rows)
}

// BestPerformance returns the user's best prior set for an exercise:
// maximum weight*reps volume for weighted work, maximum summed-side
// volume for unilateral work (weight defaults to 1 for bodyweight
// movements), and maximum elapsed time for timed work. An exercise has
// one modality, so only one score term is ever nonzero for its rows.
// Returns nil when no prior set exists.
func (db *DB) BestPerformance(ctx context.Context, userID, exerciseID string) (*domain.SetLog, error) {
	query := `
	SELECT id, session_id, user_id, exercise_id, set_index,
	       weight_kg, reps, reps_l, reps_r, time_seconds, is_pb,
	       created_at, updated_at
	FROM set_logs
	WHERE user_id = ? AND exercise_id = ?
	ORDER BY MAX(
	         COALESCE(weight_kg * reps, 0),
	         COALESCE(COALESCE(weight_kg, 1.0) * (reps_l + reps_r), 0),
	         COALESCE(time_seconds, 0)) DESC
	LIMIT 1
	`

	row := db.conn.QueryRowContext(ctx, query, userID, exerciseID)
	l, err := scanSetLog(row)
	if err == sql.ErrNoRows {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("failed to query best performance: %w", err)
	}
	return l, nil
}

// rowScanner covers *sql.Row and *sql.Rows.
type rowScanner interface {
	Scan(dest ...any) error
}

func scanSetLog(row rowScanner) (*domain.SetLog, error) {
	var l domain.SetLog
	var weight sql.NullFloat64
	var reps, repsL, repsR, timeSeconds sql.NullInt64
	var isPB int
	var createdAt, updatedAt string

	err := row.Scan(
		&l.ID, &l.SessionID, &l.UserID, &l.ExerciseID, &l.SetIndex,
		&weight, &reps, &repsL, &repsR, &timeSeconds, &isPB,
		&createdAt, &updatedAt,
	)
	if err != nil {
		return nil, err
	}

	l.WeightKg = nullFloatPtr(weight)
	l.Reps = nullIntPtr(reps)
	l.RepsL = nullIntPtr(repsL)
	l.RepsR = nullIntPtr(repsR)
	l.TimeSeconds = nullIntPtr(timeSeconds)
	l.IsPB = isPB != 0
	l.CreatedAt = parseTime(createdAt)
	l.UpdatedAt = parseTime(updatedAt)

	return &l, nil
}

func scanSetLogs(rows *sql.Rows) ([]*domain.SetLog, error) {
	var logs []*domain.SetLog
	for rows.Next() {
		l, err := scanSetLog(rows)
		if err != nil {
			return nil, fmt.Errorf("failed to scan set log: %w", err)
		}
		logs = append(logs, l)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("error iterating set logs: %w", err)
	}
	return logs, nil
}

func nullFloat(f *float64) sql.NullFloat64 {
	if f == nil {
		return sql.NullFloat64{}
	}
	return sql.NullFloat64{Float64: *f, Valid: true}
}

func nullInt(i *int) sql.NullInt64 {
	if i == nil {
		return sql.NullInt64{}
	}
	return sql.NullInt64{Int64: int64(*i), Valid: true}
}

func nullFloatPtr(f sql.NullFloat64) *float64 {
	if !f.Valid {
		return nil
	}
	v := f.Float64
	return &v
}

func nullIntPtr(i sql.NullInt64) *int {
	if !i.Valid {
		return nil
	}
	v := int(i.Int64)
	return &v
}

func boolToInt(b bool) int {
	if b {
		return 1
	}
	return 0
}
