// Package cache provides the stale-while-revalidate read path over the
// local durable store.
//
// Read consumers always see the current contents of the local cache table
// for their scope, immediately and without blocking. Revalidation fetches
// the fresh rows from the remote backend and replaces the scoped local
// rows inside a single transaction; a revalidation failure leaves the
// stale view untouched, since stale-but-available beats empty-but-fresh.
package cache

import (
	"context"
	"database/sql"
	"encoding/json"
	"fmt"
	"log"
	"os"
	"strings"
	"sync"
	"sync/atomic"

	"github.com/liftlog/liftlog/internal/metrics"
)

// Owner identifies the revalidation scope.
//
// The zero value is "unknown": auth has not resolved yet, and no
// revalidation request may be sent. This is distinct from Anonymous
// (known to be signed out) and prevents a flash of empty or wrong-scoped
// data at startup.
type Owner struct {
	known bool
	id    string
}

// UnknownOwner returns the not-yet-resolved sentinel.
func UnknownOwner() Owner { return Owner{} }

// Anonymous returns the known-signed-out owner.
func Anonymous() Owner { return Owner{known: true} }

// OwnerID returns a resolved owner scope.
func OwnerID(id string) Owner { return Owner{known: true, id: id} }

// Known reports whether the owner has been resolved (including signed-out).
func (o Owner) Known() bool { return o.known }

// ID returns the owning user id; empty for Anonymous.
func (o Owner) ID() string { return o.id }

// Strategy selects how a revalidation replaces locally-cached rows.
type Strategy int

const (
	// ReplaceSingleton deletes the owner's existing row(s) and inserts
	// the fresh one (e.g. the profile row).
	ReplaceSingleton Strategy = iota

	// ReplaceOwnedSubset deletes only the owner's rows of a shared table,
	// then bulk-inserts the fresh result set (global + owned). Rows owned
	// by other scopes are never touched.
	ReplaceOwnedSubset

	// ReplaceAll clears the table entirely and bulk-inserts fresh data.
	// For small fully-replicated junction tables with no meaningful
	// per-user partition.
	ReplaceAll
)

// TableSpec binds one remote collection to its local cache table.
type TableSpec struct {
	// Table is both the remote collection and the local table name.
	Table string

	// Strategy selects the replacement behavior.
	Strategy Strategy

	// Columns is the local insert column order.
	Columns []string

	// OwnerColumn scopes deletes for the singleton and owned-subset
	// strategies (default "user_id").
	OwnerColumn string

	// Filter builds the remote select filter for an owner scope.
	Filter func(owner Owner) map[string]string

	// BindRow converts one fetched row into values in Columns order.
	BindRow func(row json.RawMessage) ([]any, error)
}

// Fetcher is the slice of the remote client the cache layer needs.
type Fetcher interface {
	SelectRows(ctx context.Context, table string, filter map[string]string) ([]json.RawMessage, error)
}

// Revalidator keeps one table's local cache fresh for one owner scope.
type Revalidator struct {
	db     *sql.DB
	fetch  Fetcher
	spec   TableSpec
	logger *log.Logger

	ownerMu sync.Mutex
	owner   Owner

	inFlight atomic.Bool

	errMu     sync.Mutex
	lastErr   error
	lastCount int

	subMu   sync.Mutex
	subs    map[int]func()
	nextSub int
}

// New creates a revalidator. The owner starts unknown; no revalidation
// runs until SetOwner resolves it.
func New(db *sql.DB, fetch Fetcher, spec TableSpec, logger *log.Logger) *Revalidator {
	if spec.OwnerColumn == "" {
		spec.OwnerColumn = "user_id"
	}
	if logger == nil {
		logger = log.New(os.Stderr, "[cache] ", log.LstdFlags)
	}
	return &Revalidator{
		db:     db,
		fetch:  fetch,
		spec:   spec,
		logger: logger,
		subs:   make(map[int]func()),
	}
}

// SetOwner updates the owner scope. Transitioning from unknown to known
// triggers an immediate revalidation; failures are recorded on Err as
// usual.
func (r *Revalidator) SetOwner(ctx context.Context, owner Owner) {
	r.ownerMu.Lock()
	was := r.owner
	r.owner = owner
	r.ownerMu.Unlock()

	if owner.Known() && !was.Known() {
		if err := r.Revalidate(ctx); err != nil {
			r.logger.Printf("Revalidation of %s on owner resolution failed: %v", r.spec.Table, err)
		}
	}
}

// Owner returns the current owner scope.
func (r *Revalidator) Owner() Owner {
	r.ownerMu.Lock()
	defer r.ownerMu.Unlock()
	return r.owner
}

// Subscribe registers a callback invoked after every applied revalidation.
// Consumers re-read their live view from the local store on notification.
// The returned function unsubscribes.
func (r *Revalidator) Subscribe(fn func()) func() {
	r.subMu.Lock()
	id := r.nextSub
	r.nextSub++
	r.subs[id] = fn
	r.subMu.Unlock()

	return func() {
		r.subMu.Lock()
		delete(r.subs, id)
		r.subMu.Unlock()
	}
}

// Err returns the error from the most recent revalidation, or nil.
// A non-nil Err never implies the cached view is gone: reads keep
// serving the last applied rows.
func (r *Revalidator) Err() error {
	r.errMu.Lock()
	defer r.errMu.Unlock()
	return r.lastErr
}

func (r *Revalidator) setErr(err error) {
	r.errMu.Lock()
	r.lastErr = err
	r.errMu.Unlock()
}

// Revalidate fetches fresh rows for the current owner scope and replaces
// the scoped local rows in one transaction. A no-op while the owner is
// unknown or another revalidation of this table is in flight.
func (r *Revalidator) Revalidate(ctx context.Context) error {
	owner := r.Owner()
	if !owner.Known() {
		return nil
	}
	if !r.inFlight.CompareAndSwap(false, true) {
		return nil
	}
	defer r.inFlight.Store(false)

	rows, err := r.fetch.SelectRows(ctx, r.spec.Table, r.spec.Filter(owner))
	if err != nil {
		err = fmt.Errorf("fetch %s failed: %w", r.spec.Table, err)
		r.setErr(err)
		metrics.IncRevalidation(r.spec.Table, "error")
		return err
	}

	if err := r.apply(ctx, owner, rows); err != nil {
		r.setErr(err)
		metrics.IncRevalidation(r.spec.Table, "error")
		return err
	}

	r.setErr(nil)
	r.errMu.Lock()
	r.lastCount = len(rows)
	r.errMu.Unlock()
	metrics.IncRevalidation(r.spec.Table, "ok")
	r.notify()
	return nil
}

// LastCount returns the row count of the most recent applied
// revalidation.
func (r *Revalidator) LastCount() int {
	r.errMu.Lock()
	defer r.errMu.Unlock()
	return r.lastCount
}

// Table returns the cached table's name.
func (r *Revalidator) Table() string {
	return r.spec.Table
}

// apply replaces the scoped rows inside a single transaction so readers
// observe either the old scope contents or the new, never a mix.
func (r *Revalidator) apply(ctx context.Context, owner Owner, rows []json.RawMessage) error {
	tx, err := r.db.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("failed to begin transaction: %w", err)
	}
	defer tx.Rollback()

	switch r.spec.Strategy {
	case ReplaceAll:
		if _, err := tx.ExecContext(ctx, "DELETE FROM "+r.spec.Table); err != nil {
			return fmt.Errorf("failed to clear %s: %w", r.spec.Table, err)
		}
	case ReplaceSingleton, ReplaceOwnedSubset:
		if _, err := tx.ExecContext(ctx,
			fmt.Sprintf("DELETE FROM %s WHERE %s = ?", r.spec.Table, r.spec.OwnerColumn),
			owner.ID()); err != nil {
			return fmt.Errorf("failed to delete %s scope: %w", r.spec.Table, err)
		}
	}

	if len(rows) > 0 {
		placeholders := strings.TrimSuffix(strings.Repeat("?, ", len(r.spec.Columns)), ", ")
		insert := fmt.Sprintf("INSERT OR REPLACE INTO %s (%s) VALUES (%s)",
			r.spec.Table, strings.Join(r.spec.Columns, ", "), placeholders)

		stmt, err := tx.PrepareContext(ctx, insert)
		if err != nil {
			return fmt.Errorf("failed to prepare insert for %s: %w", r.spec.Table, err)
		}
		defer stmt.Close()

		for _, row := range rows {
			args, err := r.spec.BindRow(row)
			if err != nil {
				return fmt.Errorf("failed to bind %s row: %w", r.spec.Table, err)
			}
			if _, err := stmt.ExecContext(ctx, args...); err != nil {
				return fmt.Errorf("failed to insert %s row: %w", r.spec.Table, err)
			}
		}
	}

	if err := tx.Commit(); err != nil {
		return fmt.Errorf("failed to commit %s revalidation: %w", r.spec.Table, err)
	}
	return nil
}

func (r *Revalidator) notify() {
	r.subMu.Lock()
	fns := make([]func(), 0, len(r.subs))
	for _, fn := range r.subs {
		fns = append(fns, fn)
	}
	r.subMu.Unlock()

	for _, fn := range fns {
		fn()
	}
}
