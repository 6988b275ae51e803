package store

import (
	"context"
	"database/sql"
	"fmt"

	"github.com/liftlog/liftlog/internal/domain"
)

// DraftSet is the locally-only, per-field state of one in-progress set.
//
// SessionID is nil until a session record exists for the workout; the
// reconciler backfills it in bulk once the session is created. IsSaved
// flips to true (with SetLogID set) only after the committed record is
// durably written and enqueued.
type DraftSet struct {
	ExerciseID  string
	SetIndex    int
	SessionID   *string
	WeightKg    *float64
	Reps        *int
	RepsL       *int
	RepsR       *int
	TimeSeconds *int
	IsPB        bool
	IsSaved     bool
	SetLogID    *string
}

// Validate applies the modality rules to the draft's current input.
func (d *DraftSet) Validate(modality string) error {
	l := domain.SetLog{
		ID:          "draft",
		SessionID:   "draft",
		ExerciseID:  d.ExerciseID,
		SetIndex:    d.SetIndex,
		WeightKg:    d.WeightKg,
		Reps:        d.Reps,
		RepsL:       d.RepsL,
		RepsR:       d.RepsR,
		TimeSeconds: d.TimeSeconds,
	}
	return l.Validate(modality)
}

// UpsertDraft writes a draft keyed by (exercise_id, set_index).
func (db *DB) UpsertDraft(ctx context.Context, d *DraftSet) error {
	return db.upsertDraft(ctx, db.conn, d)
}

// UpsertDraftTx is UpsertDraft inside an existing transaction.
func (db *DB) UpsertDraftTx(ctx context.Context, tx *sql.Tx, d *DraftSet) error {
	return db.upsertDraft(ctx, tx, d)
}

func (db *DB) upsertDraft(ctx context.Context, ex execer, d *DraftSet) error {
	query := `
	INSERT INTO set_drafts (
		exercise_id, set_index, session_id, weight_kg, reps,
		reps_l, reps_r, time_seconds, is_pb, is_saved, set_log_id
	) VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)
	ON CONFLICT(exercise_id, set_index) DO UPDATE SET
		session_id = excluded.session_id,
		weight_kg = excluded.weight_kg,
		reps = excluded.reps,
		reps_l = excluded.reps_l,
		reps_r = excluded.reps_r,
		time_seconds = excluded.time_seconds,
		is_pb = excluded.is_pb,
		is_saved = excluded.is_saved,
		set_log_id = excluded.set_log_id
	`

	_, err := ex.ExecContext(ctx, query,
		d.ExerciseID, d.SetIndex, nullableString(d.SessionID),
		nullFloat(d.WeightKg), nullInt(d.Reps), nullInt(d.RepsL),
		nullInt(d.RepsR), nullInt(d.TimeSeconds),
		boolToInt(d.IsPB), boolToInt(d.IsSaved), nullableString(d.SetLogID),
	)
	if err != nil {
		return fmt.Errorf("failed to upsert draft: %w", err)
	}
	return nil
}

// GetDraft retrieves a draft by composite key.
// Returns sql.ErrNoRows if absent.
func (db *DB) GetDraft(ctx context.Context, exerciseID string, setIndex int) (*DraftSet, error) {
	row := db.conn.QueryRowContext(ctx, `
		SELECT exercise_id, set_index, session_id, weight_kg, reps,
		       reps_l, reps_r, time_seconds, is_pb, is_saved, set_log_id
		FROM set_drafts
		WHERE exercise_id = ? AND set_index = ?`,
		exerciseID, setIndex)
	return scanDraft(row)
}

// ListDrafts returns drafts for one session; pass nil for the drafts of a
// not-yet-created session. Ordered by exercise then set index.
func (db *DB) ListDrafts(ctx context.Context, sessionID *string) ([]*DraftSet, error) {
	var (
		rows *sql.Rows
		err  error
	)
	base := `
		SELECT exercise_id, set_index, session_id, weight_kg, reps,
		       reps_l, reps_r, time_seconds, is_pb, is_saved, set_log_id
		FROM set_drafts`
	if sessionID == nil {
		rows, err = db.conn.QueryContext(ctx,
			base+" WHERE session_id IS NULL ORDER BY exercise_id, set_index")
	} else {
		rows, err = db.conn.QueryContext(ctx,
			base+" WHERE session_id = ? ORDER BY exercise_id, set_index", *sessionID)
	}
	if err != nil {
		return nil, fmt.Errorf("failed to query drafts: %w", err)
	}
	defer rows.Close()

	var drafts []*DraftSet
	for rows.Next() {
		d, err := scanDraft(rows)
		if err != nil {
			return nil, fmt.Errorf("failed to scan draft: %w", err)
		}
		drafts = append(drafts, d)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("error iterating drafts: %w", err)
	}
	return drafts, nil
}

// BindDraftsToSessionTx assigns sessionID to every draft whose session_id
// is NULL, in one statement. Run inside the same transaction that creates
// the session so readers never observe a partially-migrated set of drafts.
func (db *DB) BindDraftsToSessionTx(ctx context.Context, tx *sql.Tx, sessionID string) (int64, error) {
	res, err := tx.ExecContext(ctx,
		"UPDATE set_drafts SET session_id = ? WHERE session_id IS NULL", sessionID)
	if err != nil {
		return 0, fmt.Errorf("failed to bind drafts to session: %w", err)
	}
	n, err := res.RowsAffected()
	if err != nil {
		return 0, fmt.Errorf("failed to count bound drafts: %w", err)
	}
	return n, nil
}

// DeleteDraft removes one draft. Idempotent.
func (db *DB) DeleteDraft(ctx context.Context, exerciseID string, setIndex int) error {
	return db.deleteDraft(ctx, db.conn, exerciseID, setIndex)
}

// DeleteDraftTx is DeleteDraft inside an existing transaction.
func (db *DB) DeleteDraftTx(ctx context.Context, tx *sql.Tx, exerciseID string, setIndex int) error {
	return db.deleteDraft(ctx, tx, exerciseID, setIndex)
}

func (db *DB) deleteDraft(ctx context.Context, ex execer, exerciseID string, setIndex int) error {
	if _, err := ex.ExecContext(ctx,
		"DELETE FROM set_drafts WHERE exercise_id = ? AND set_index = ?",
		exerciseID, setIndex); err != nil {
		return fmt.Errorf("failed to delete draft: %w", err)
	}
	return nil
}

// DeleteDraftsForSession removes every draft of one session; pass nil to
// remove the drafts of a not-yet-created session. Leaves no orphans when
// a workout is completed or discarded.
func (db *DB) DeleteDraftsForSession(ctx context.Context, sessionID *string) error {
	return db.deleteDraftsForSession(ctx, db.conn, sessionID)
}

// DeleteDraftsForSessionTx is DeleteDraftsForSession inside an existing
// transaction.
func (db *DB) DeleteDraftsForSessionTx(ctx context.Context, tx *sql.Tx, sessionID *string) error {
	return db.deleteDraftsForSession(ctx, tx, sessionID)
}

func (db *DB) deleteDraftsForSession(ctx context.Context, ex execer, sessionID *string) error {
	var err error
	if sessionID == nil {
		_, err = ex.ExecContext(ctx,
			"DELETE FROM set_drafts WHERE session_id IS NULL")
	} else {
		_, err = ex.ExecContext(ctx,
			"DELETE FROM set_drafts WHERE session_id = ?", *sessionID)
	}
	if err != nil {
		return fmt.Errorf("failed to delete drafts: %w", err)
	}
	return nil
}

func scanDraft(row rowScanner) (*DraftSet, error) {
	var d DraftSet
	var sessionID, setLogID sql.NullString
	var weight sql.NullFloat64
	var reps, repsL, repsR, timeSeconds sql.NullInt64
	var isPB, isSaved int

	err := row.Scan(
		&d.ExerciseID, &d.SetIndex, &sessionID, &weight, &reps,
		&repsL, &repsR, &timeSeconds, &isPB, &isSaved, &setLogID,
	)
	if err != nil {
		return nil, err
	}

	d.SessionID = nullStringPtr(sessionID)
	d.WeightKg = nullFloatPtr(weight)
	d.Reps = nullIntPtr(reps)
	d.RepsL = nullIntPtr(repsL)
	d.RepsR = nullIntPtr(repsR)
	d.TimeSeconds = nullIntPtr(timeSeconds)
	d.IsPB = isPB != 0
	d.IsSaved = isSaved != 0
	d.SetLogID = nullStringPtr(setLogID)

	return &d, nil
}
