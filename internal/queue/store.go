package queue

import (
	"context"
	"database/sql"
	"fmt"
	"time"
)

// Store provides CRUD over the durable sync_queue and sync_dead_letters
// tables. It is safe for concurrent use; SQLite serializes the writes.
type Store struct {
	db *sql.DB

	// onEnqueue, when set, fires after a successful Add. The daemon wires
	// this to the syncer's Kick so newly queued work is picked up without
	// waiting for the next tick.
	onEnqueue func()
}

// NewStore creates a queue store over an open database connection.
// The sync_queue schema must already be migrated.
func NewStore(db *sql.DB) *Store {
	return &Store{db: db}
}

// OnEnqueue registers a hook invoked after every successful Add.
func (s *Store) OnEnqueue(fn func()) {
	s.onEnqueue = fn
}

// GetAll returns all queued items ascending by timestamp, then by id for
// items enqueued within the same millisecond. Never mutates.
func (s *Store) GetAll(ctx context.Context) ([]*Item, error) {
	rows, err := s.db.QueryContext(ctx, `
		SELECT id, operation, tbl, payload, timestamp, attempts,
		       COALESCE(error, ''), priority
		FROM sync_queue
		ORDER BY timestamp ASC, id ASC`)
	if err != nil {
		return nil, fmt.Errorf("failed to query sync queue: %w", err)
	}
	defer rows.Close()

	var items []*Item
	for rows.Next() {
		var it Item
		var payload string
		if err := rows.Scan(&it.ID, &it.Operation, &it.Table, &payload,
			&it.Timestamp, &it.Attempts, &it.Error, &it.Priority); err != nil {
			return nil, fmt.Errorf("failed to scan queue item: %w", err)
		}
		it.Payload = []byte(payload)
		items = append(items, &it)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("error iterating queue items: %w", err)
	}
	return items, nil
}

// Len returns the number of queued items.
func (s *Store) Len(ctx context.Context) (int, error) {
	var n int
	if err := s.db.QueryRowContext(ctx,
		"SELECT COUNT(*) FROM sync_queue").Scan(&n); err != nil {
		return 0, fmt.Errorf("failed to count queue: %w", err)
	}
	return n, nil
}

// Add appends an item and returns the store-assigned id. The item's
// Timestamp and Attempts are set by the store, not the caller.
func (s *Store) Add(ctx context.Context, it *Item) (int64, error) {
	if err := it.Validate(); err != nil {
		return 0, fmt.Errorf("invalid queue item: %w", err)
	}

	now := time.Now().UnixMilli()
	res, err := s.db.ExecContext(ctx, `
		INSERT INTO sync_queue (operation, tbl, payload, timestamp, attempts, priority)
		VALUES (?, ?, ?, ?, 0, ?)`,
		string(it.Operation), it.Table, string(it.Payload), now, it.Priority)
	if err != nil {
		return 0, fmt.Errorf("failed to add queue item: %w", err)
	}

	id, err := res.LastInsertId()
	if err != nil {
		return 0, fmt.Errorf("failed to get queue item id: %w", err)
	}
	it.ID = id
	it.Timestamp = now
	it.Attempts = 0

	if s.onEnqueue != nil {
		s.onEnqueue()
	}
	return id, nil
}

// AddTx is Add inside an existing transaction, used where a local domain
// write and its queue entry must commit or fail together so no partial
// queue entry is ever left behind.
func (s *Store) AddTx(ctx context.Context, tx *sql.Tx, it *Item) (int64, error) {
	if err := it.Validate(); err != nil {
		return 0, fmt.Errorf("invalid queue item: %w", err)
	}

	now := time.Now().UnixMilli()
	res, err := tx.ExecContext(ctx, `
		INSERT INTO sync_queue (operation, tbl, payload, timestamp, attempts, priority)
		VALUES (?, ?, ?, ?, 0, ?)`,
		string(it.Operation), it.Table, string(it.Payload), now, it.Priority)
	if err != nil {
		return 0, fmt.Errorf("failed to add queue item: %w", err)
	}

	id, err := res.LastInsertId()
	if err != nil {
		return 0, fmt.Errorf("failed to get queue item id: %w", err)
	}
	it.ID = id
	it.Timestamp = now
	it.Attempts = 0

	if s.onEnqueue != nil {
		s.onEnqueue()
	}
	return id, nil
}

// Remove deletes an item by id. Idempotent: no error if absent.
func (s *Store) Remove(ctx context.Context, id int64) error {
	if _, err := s.db.ExecContext(ctx,
		"DELETE FROM sync_queue WHERE id = ?", id); err != nil {
		return fmt.Errorf("failed to remove queue item %d: %w", id, err)
	}
	return nil
}

// IncrementAttempts records one failed delivery: attempts += 1, error is
// stored, and timestamp resets to now so the next backoff window is
// measured from this failure.
func (s *Store) IncrementAttempts(ctx context.Context, id int64, errMsg string) error {
	if _, err := s.db.ExecContext(ctx, `
		UPDATE sync_queue
		SET attempts = attempts + 1, error = ?, timestamp = ?
		WHERE id = ?`,
		errMsg, time.Now().UnixMilli(), id); err != nil {
		return fmt.Errorf("failed to increment attempts for item %d: %w", id, err)
	}
	return nil
}

// Clear drops every queued item. Destructive resets only (sign-out).
func (s *Store) Clear(ctx context.Context) error {
	if _, err := s.db.ExecContext(ctx, "DELETE FROM sync_queue"); err != nil {
		return fmt.Errorf("failed to clear sync queue: %w", err)
	}
	return nil
}

// DeadLetter copies an exhausted item into sync_dead_letters and removes
// it from the queue, in one transaction. The dropped mutation stays
// inspectable and manually replayable instead of vanishing.
func (s *Store) DeadLetter(ctx context.Context, it *Item, reason string) error {
	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("failed to begin transaction: %w", err)
	}
	defer tx.Rollback()

	if _, err := tx.ExecContext(ctx, `
		INSERT INTO sync_dead_letters
			(queue_id, operation, tbl, payload, attempts, error, reason, dropped_at)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?)`,
		it.ID, string(it.Operation), it.Table, string(it.Payload),
		it.Attempts, it.Error, reason,
		time.Now().UTC().Format(time.RFC3339)); err != nil {
		return fmt.Errorf("failed to insert dead letter: %w", err)
	}

	if _, err := tx.ExecContext(ctx,
		"DELETE FROM sync_queue WHERE id = ?", it.ID); err != nil {
		return fmt.Errorf("failed to remove dead-lettered item: %w", err)
	}

	if err := tx.Commit(); err != nil {
		return fmt.Errorf("failed to commit dead letter: %w", err)
	}
	return nil
}

// DeadLetterRecord is one dropped mutation as stored for inspection.
type DeadLetterRecord struct {
	ID        int64
	QueueID   int64
	Operation Operation
	Table     string
	Payload   []byte
	Attempts  int
	Error     string
	Reason    string
	DroppedAt time.Time
}

// ListDeadLetters returns dropped items, newest first.
func (s *Store) ListDeadLetters(ctx context.Context) ([]*DeadLetterRecord, error) {
	rows, err := s.db.QueryContext(ctx, `
		SELECT id, queue_id, operation, tbl, payload, attempts,
		       COALESCE(error, ''), reason, dropped_at
		FROM sync_dead_letters
		ORDER BY id DESC`)
	if err != nil {
		return nil, fmt.Errorf("failed to query dead letters: %w", err)
	}
	defer rows.Close()

	var recs []*DeadLetterRecord
	for rows.Next() {
		var r DeadLetterRecord
		var payload, droppedAt string
		if err := rows.Scan(&r.ID, &r.QueueID, &r.Operation, &r.Table,
			&payload, &r.Attempts, &r.Error, &r.Reason, &droppedAt); err != nil {
			return nil, fmt.Errorf("failed to scan dead letter: %w", err)
		}
		r.Payload = []byte(payload)
		if t, err := time.Parse(time.RFC3339, droppedAt); err == nil {
			r.DroppedAt = t
		}
		recs = append(recs, &r)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("error iterating dead letters: %w", err)
	}
	return recs, nil
}
