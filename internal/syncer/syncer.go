// Package syncer provides the write-back engine that replays queued
// mutations against the remote backend.
//
// The syncer:
//  1. Ticks on a fixed interval (plus an immediate run on start and
//     out-of-band kicks on enqueue or connectivity regained)
//  2. Processes at most one queue item per tick, oldest first
//  3. Applies retry budget, exponential backoff, and the eligibility
//     policy before any network call
//  4. Verifies every write with a follow-up read before trusting it
//  5. Handles graceful shutdown
//
// Errors never escape a tick: a single item's failure is recorded on the
// item and the rest of the queue is considered on future ticks.
package syncer

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log"
	"os"
	"sync"
	"sync/atomic"
	"time"

	"github.com/liftlog/liftlog/internal/metrics"
	"github.com/liftlog/liftlog/internal/queue"
	"github.com/liftlog/liftlog/internal/remote"
)

// ErrRetryExhausted marks the failure passed to OnFailure when an item is
// dead-lettered rather than retried.
var ErrRetryExhausted = errors.New("retry budget exhausted")

// Backend is the slice of the remote client the syncer needs: upsert,
// delete, and the point read used for write verification.
type Backend interface {
	UpsertRow(ctx context.Context, table string, payload json.RawMessage) error
	DeleteRow(ctx context.Context, table, id string) error
	GetRow(ctx context.Context, table, id string) (json.RawMessage, error)
}

// Config holds configuration for the syncer.
type Config struct {
	// Interval is the tick period (default 5s).
	Interval time.Duration

	// MaxAttempts is the retry budget; an item reaching it is
	// dead-lettered without another remote call (default 5).
	MaxAttempts int

	// BaseBackoff seeds the exponential backoff: required delay before
	// retry is BaseBackoff * 2^attempts (default 1s).
	BaseBackoff time.Duration

	// DispatchTimeout bounds one dispatch+verify round trip so a hung
	// remote call cannot hold the in-flight flag forever (default 30s).
	DispatchTimeout time.Duration

	// Enabled gates all processing; takes effect on the next tick
	// boundary, never mid-flight (default true).
	Enabled bool

	// OnSuccess is invoked after an item is confirmed synced and removed.
	OnSuccess func(item *queue.Item)

	// OnFailure is invoked on every failed attempt and on dead-letter
	// drops. Retry exhaustion is silent data loss from the queue's
	// perspective, so it MUST be observable here.
	OnFailure func(item *queue.Item, err error)

	// Logger for syncer activity.
	Logger *log.Logger
}

// DefaultConfig returns sensible defaults.
func DefaultConfig() *Config {
	return &Config{
		Interval:        5 * time.Second,
		MaxAttempts:     5,
		BaseBackoff:     time.Second,
		DispatchTimeout: 30 * time.Second,
		Enabled:         true,
		Logger:          log.New(os.Stderr, "[syncer] ", log.LstdFlags),
	}
}

// Syncer drains the durable mutation queue against the remote backend.
type Syncer struct {
	backend Backend // nil disables all sync
	queue   *queue.Store
	config  *Config

	enabled     atomic.Bool
	online      atomic.Bool
	syncing     atomic.Bool
	queueLength atomic.Int64

	lastErrMu sync.Mutex
	lastErr   string

	kick chan struct{}

	now func() time.Time
}

// New creates a Syncer. A nil backend disables all sync: ticks become
// no-ops until a backend exists (e.g. before sign-in).
func New(backend Backend, q *queue.Store, config *Config) *Syncer {
	if config == nil {
		config = DefaultConfig()
	}
	if config.Interval <= 0 {
		config.Interval = 5 * time.Second
	}
	if config.MaxAttempts <= 0 {
		config.MaxAttempts = 5
	}
	if config.BaseBackoff <= 0 {
		config.BaseBackoff = time.Second
	}
	if config.DispatchTimeout <= 0 {
		config.DispatchTimeout = 30 * time.Second
	}
	if config.Logger == nil {
		config.Logger = log.New(os.Stderr, "[syncer] ", log.LstdFlags)
	}

	s := &Syncer{
		backend: backend,
		queue:   q,
		config:  config,
		kick:    make(chan struct{}, 1),
		now:     time.Now,
	}
	s.enabled.Store(config.Enabled)
	return s
}

// SetOnline supplies the external connectivity signal. Regaining
// connectivity kicks an immediate tick.
func (s *Syncer) SetOnline(online bool) {
	was := s.online.Swap(online)
	if online && !was {
		s.Kick()
	}
}

// SetEnabled toggles processing; takes effect on the next tick boundary.
func (s *Syncer) SetEnabled(enabled bool) {
	s.enabled.Store(enabled)
}

// Kick requests an immediate tick without waiting for the interval.
// Coalesces: multiple kicks before the next tick run once.
func (s *Syncer) Kick() {
	select {
	case s.kick <- struct{}{}:
	default:
	}
}

// IsSyncing reports whether a dispatch+verify is currently in flight.
func (s *Syncer) IsSyncing() bool {
	return s.syncing.Load()
}

// QueueLength returns the queue depth observed on the last tick.
func (s *Syncer) QueueLength() int {
	return int(s.queueLength.Load())
}

// LastError returns the most recent failure message, empty after a
// successful sync.
func (s *Syncer) LastError() string {
	s.lastErrMu.Lock()
	defer s.lastErrMu.Unlock()
	return s.lastErr
}

func (s *Syncer) setLastError(msg string) {
	s.lastErrMu.Lock()
	s.lastErr = msg
	s.lastErrMu.Unlock()
}

// Run ticks until ctx is cancelled. An immediate tick fires on entry so
// activation doesn't wait a full interval.
func (s *Syncer) Run(ctx context.Context) error {
	s.config.Logger.Printf("Starting syncer (interval=%v)", s.config.Interval)

	ticker := time.NewTicker(s.config.Interval)
	defer ticker.Stop()

	s.Tick(ctx)

	for {
		select {
		case <-ctx.Done():
			s.config.Logger.Println("Syncer stopped")
			return ctx.Err()
		case <-ticker.C:
			s.Tick(ctx)
		case <-s.kick:
			s.Tick(ctx)
		}
	}
}

// Drain ticks until the queue is empty or no further progress is possible
// this pass (offline, disabled, or every remaining item below its backoff
// threshold). Used by the one-shot CLI sync command.
func (s *Syncer) Drain(ctx context.Context) error {
	for {
		if ctx.Err() != nil {
			return ctx.Err()
		}
		before, err := s.queue.Len(ctx)
		if err != nil {
			return err
		}
		if before == 0 {
			return nil
		}
		s.Tick(ctx)
		after, err := s.queue.Len(ctx)
		if err != nil {
			return err
		}
		if after >= before {
			return nil
		}
	}
}

// Tick runs one pass of the replay state machine. At most one item is
// processed regardless of queue length, which bounds per-tick work and
// naturally rate-limits remote calls. Safe to call concurrently: a tick
// arriving while a dispatch is in flight is a no-op.
func (s *Syncer) Tick(ctx context.Context) {
	if !s.enabled.Load() || !s.online.Load() || s.backend == nil {
		return
	}
	if s.syncing.Load() {
		return
	}

	items, err := s.queue.GetAll(ctx)
	if err != nil {
		s.config.Logger.Printf("Warning: failed to read queue: %v", err)
		return
	}

	s.queueLength.Store(int64(len(items)))
	metrics.SetQueueLength(len(items))

	if len(items) == 0 {
		return
	}

	item := items[0]

	// Retry budget: a poison pill must not block the queue forever.
	if item.Attempts >= s.config.MaxAttempts {
		s.dropExhausted(ctx, item)
		return
	}

	// Backoff: skip the tick without advancing past the item. Later items
	// never overtake it; processing simply pauses until the window opens.
	// The window applies from enqueue too: a fresh item waits out the base
	// delay before its first attempt.
	required := s.config.BaseBackoff * (1 << uint(item.Attempts))
	elapsed := s.now().Sub(time.UnixMilli(item.Timestamp))
	if elapsed < required {
		return
	}

	// Eligibility: an item that became ineligible after being queued is
	// removed locally without ever contacting the remote backend.
	if !queue.Eligible(item.Operation, item.Table, item.Payload) {
		s.config.Logger.Printf("Dropping ineligible %s on %s (item %d)",
			item.Operation, item.Table, item.ID)
		if err := s.queue.Remove(ctx, item.ID); err != nil {
			s.config.Logger.Printf("Warning: failed to remove ineligible item %d: %v", item.ID, err)
		}
		return
	}

	if !s.syncing.CompareAndSwap(false, true) {
		return
	}
	defer s.syncing.Store(false)

	dispatchCtx, cancel := context.WithTimeout(ctx, s.config.DispatchTimeout)
	defer cancel()

	if err := s.dispatch(dispatchCtx, item); err != nil {
		s.recordFailure(ctx, item, err)
		return
	}

	if err := s.queue.Remove(ctx, item.ID); err != nil {
		s.config.Logger.Printf("Warning: failed to remove synced item %d: %v", item.ID, err)
		return
	}
	s.setLastError("")
	metrics.IncSyncSuccess(item.Table)
	s.config.Logger.Printf("Synced %s on %s (item %d)", item.Operation, item.Table, item.ID)
	if s.config.OnSuccess != nil {
		s.config.OnSuccess(item)
	}
}

// dispatch pushes one item to the backend and verifies the result with a
// follow-up read. The write call's own success signal is never trusted
// alone: a backend that acknowledges a write it didn't apply is treated
// as a failure here.
func (s *Syncer) dispatch(ctx context.Context, item *queue.Item) error {
	id, err := item.PayloadID()
	if err != nil {
		return err
	}

	switch item.Operation {
	case queue.OpCreate, queue.OpUpdate:
		if err := s.backend.UpsertRow(ctx, item.Table, item.Payload); err != nil {
			return err
		}
		if _, err := s.backend.GetRow(ctx, item.Table, id); err != nil {
			if errors.Is(err, remote.ErrNotFound) {
				return fmt.Errorf("verification failed: %s/%s absent after write", item.Table, id)
			}
			return fmt.Errorf("verification read failed: %w", err)
		}
		return nil

	case queue.OpDelete:
		if err := s.backend.DeleteRow(ctx, item.Table, id); err != nil {
			return err
		}
		_, err := s.backend.GetRow(ctx, item.Table, id)
		if err == nil {
			return fmt.Errorf("verification failed: %s/%s still present after delete", item.Table, id)
		}
		if errors.Is(err, remote.ErrNotFound) {
			return nil
		}
		return fmt.Errorf("verification read failed: %w", err)

	default:
		return fmt.Errorf("unknown operation %q", item.Operation)
	}
}

// dropExhausted dead-letters an item that spent its retry budget. No
// remote call is made. The failure callback fires so the data loss is
// observable, not swallowed.
func (s *Syncer) dropExhausted(ctx context.Context, item *queue.Item) {
	cause := fmt.Errorf("%w after %d attempts", ErrRetryExhausted, item.Attempts)
	s.config.Logger.Printf("Dead-lettering item %d (%s on %s): %v",
		item.ID, item.Operation, item.Table, cause)

	if err := s.queue.DeadLetter(ctx, item, cause.Error()); err != nil {
		s.config.Logger.Printf("Warning: failed to dead-letter item %d: %v", item.ID, err)
		return
	}
	metrics.IncDeadLetter(item.Table)
	if s.config.OnFailure != nil {
		s.config.OnFailure(item, cause)
	}
}

func (s *Syncer) recordFailure(ctx context.Context, item *queue.Item, cause error) {
	msg := cause.Error()
	s.setLastError(msg)
	metrics.IncSyncFailure(item.Table)
	s.config.Logger.Printf("Sync failed for item %d (attempt %d): %v",
		item.ID, item.Attempts+1, cause)

	if err := s.queue.IncrementAttempts(ctx, item.ID, msg); err != nil {
		s.config.Logger.Printf("Warning: failed to record attempt for item %d: %v", item.ID, err)
	}
	if s.config.OnFailure != nil {
		s.config.OnFailure(item, cause)
	}
}
