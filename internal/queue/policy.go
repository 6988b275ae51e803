package queue

import (
	"context"
	"database/sql"
	"encoding/json"
	"fmt"

	"github.com/liftlog/liftlog/internal/domain"
)

// Eligible reports whether a mutation should ever be sent to the remote
// backend.
//
// Deletes are always eligible. Session creates and updates only sync once
// the session is completed: an incomplete session is local-only state and
// must never reach the remote. Everything else syncs unconditionally.
//
// The filter runs twice: at the Enqueue entrypoint, so ineligible
// mutations never enter the durable queue in the common case, and again in
// the syncer, for the rarer item that became ineligible after being
// queued.
func Eligible(op Operation, table string, payload json.RawMessage) bool {
	if op == OpDelete {
		return true
	}
	if table != domain.TableWorkoutSessions {
		return true
	}

	var probe struct {
		CompletedAt *string `json:"completed_at"`
	}
	if err := json.Unmarshal(payload, &probe); err != nil {
		// Unreadable payloads are quarantined by the syncer, not here.
		return true
	}
	return probe.CompletedAt != nil && *probe.CompletedAt != ""
}

// Enqueue is the single entrypoint through which domain mutations reach
// the durable queue. It applies the eligibility policy first; filtered
// mutations return a zero id and no error, since a local-only mutation is
// not a failure.
func Enqueue(ctx context.Context, s *Store, op Operation, table string, payload json.RawMessage) (int64, error) {
	if !domain.KnownTable(table) {
		return 0, fmt.Errorf("unknown table %q", table)
	}
	if !Eligible(op, table, payload) {
		return 0, nil
	}
	return s.Add(ctx, &Item{
		Operation: op,
		Table:     table,
		Payload:   payload,
	})
}

// EnqueueTx is Enqueue inside an existing transaction.
func EnqueueTx(ctx context.Context, s *Store, tx *sql.Tx, op Operation, table string, payload json.RawMessage) (int64, error) {
	if !domain.KnownTable(table) {
		return 0, fmt.Errorf("unknown table %q", table)
	}
	if !Eligible(op, table, payload) {
		return 0, nil
	}
	return s.AddTx(ctx, tx, &Item{
		Operation: op,
		Table:     table,
		Payload:   payload,
	})
}
