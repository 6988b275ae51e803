// Package workout reconciles in-progress draft sets with durable session
// state.
//
// A workout starts as pure draft state: per-set input rows with no
// session record behind them. The first saved set mints the session,
// writes it, and rebinds every floating draft to it in one transaction,
// so readers never observe a half-bound workout. Saving a set is a
// three-step commit: validate against the exercise's modality, durably
// write the record and its queue entry together, then mark the draft
// saved. A failure at any step leaves the draft unsaved with its input
// intact.
package workout

import (
	"context"
	"database/sql"
	"encoding/json"
	"errors"
	"fmt"
	"log"
	"sync"
	"time"

	"github.com/google/uuid"

	"github.com/liftlog/liftlog/internal/domain"
	"github.com/liftlog/liftlog/internal/queue"
	"github.com/liftlog/liftlog/internal/store"
)

// ErrValidation wraps modality validation failures so callers can show
// them as user input errors rather than sync faults.
var ErrValidation = errors.New("invalid set")

// ErrNoDraft is returned when an operation targets a draft that does not
// exist.
var ErrNoDraft = errors.New("no draft for set")

// ErrNoSession is returned when completing or discarding a workout that
// never saved a set and therefore has no session.
var ErrNoSession = errors.New("no active session")

// Reconciler owns the draft/session state machine for one user's active
// workout.
type Reconciler struct {
	db     *store.DB
	queue  *queue.Store
	logger *log.Logger

	// Injectable for tests.
	newID func() string
	now   func() time.Time

	mu         sync.Mutex
	userID     string
	sessionID  *string
	name       string
	templateID *string
	gymID      *string
}

// NewReconciler returns a reconciler for one user. A nil logger discards
// output.
func NewReconciler(db *store.DB, q *queue.Store, userID string, logger *log.Logger) *Reconciler {
	if logger == nil {
		logger = log.New(log.Writer(), "[workout] ", log.LstdFlags)
	}
	return &Reconciler{
		db:     db,
		queue:  q,
		logger: logger,
		newID:  uuid.NewString,
		now:    time.Now,
		userID: userID,
		name:   "Workout",
	}
}

// Restore resumes the user's in-progress workout, if any, by adopting
// the most recent incomplete session. Used by short-lived processes so a
// save does not mint a second session for the same workout.
func (r *Reconciler) Restore(ctx context.Context) error {
	r.mu.Lock()
	defer r.mu.Unlock()

	s, err := r.db.ActiveSession(ctx, r.userID)
	if errors.Is(err, sql.ErrNoRows) {
		return nil
	}
	if err != nil {
		return fmt.Errorf("failed to restore session: %w", err)
	}

	r.sessionID = &s.ID
	r.name = s.Name
	r.templateID = s.TemplateID
	r.gymID = s.GymID
	return nil
}

// StartWorkout begins a logical workout without creating a session. The
// session record is deferred until the first set is saved; until then the
// workout exists only as drafts with a null session id.
func (r *Reconciler) StartWorkout(name string, templateID, gymID *string) {
	r.mu.Lock()
	defer r.mu.Unlock()
	if name != "" {
		r.name = name
	}
	r.templateID = templateID
	r.gymID = gymID
}

// SessionID returns the active session id, or nil before the first save.
func (r *Reconciler) SessionID() *string {
	r.mu.Lock()
	defer r.mu.Unlock()
	if r.sessionID == nil {
		return nil
	}
	id := *r.sessionID
	return &id
}

// UpdateDraft writes draft input for one set. Any edit moves the set
// back to unsaved until it is saved again; a prior SetLogID is kept so a
// re-save updates the same record instead of minting a new one.
func (r *Reconciler) UpdateDraft(ctx context.Context, d *store.DraftSet) error {
	r.mu.Lock()
	sessionID := r.sessionID
	r.mu.Unlock()

	prev, err := r.db.GetDraft(ctx, d.ExerciseID, d.SetIndex)
	if err != nil && !errors.Is(err, sql.ErrNoRows) {
		return fmt.Errorf("failed to load draft: %w", err)
	}
	if prev != nil {
		d.SetLogID = prev.SetLogID
	}
	d.SessionID = sessionID
	d.IsSaved = false
	if err := r.db.UpsertDraft(ctx, d); err != nil {
		return fmt.Errorf("failed to write draft: %w", err)
	}
	return nil
}

// SaveSet commits one draft as a durable set log.
//
// The committed record, its queue entry, the draft's saved flag, and (on
// the first save of a workout) the minted session plus the bulk rebinding
// of floating drafts all share one transaction.
func (r *Reconciler) SaveSet(ctx context.Context, exerciseID string, setIndex int) (*domain.SetLog, error) {
	r.mu.Lock()
	defer r.mu.Unlock()

	draft, err := r.db.GetDraft(ctx, exerciseID, setIndex)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, ErrNoDraft
	}
	if err != nil {
		return nil, fmt.Errorf("failed to load draft: %w", err)
	}

	ex, err := r.db.GetExerciseDefinition(ctx, exerciseID)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, fmt.Errorf("unknown exercise %s", exerciseID)
	}
	if err != nil {
		return nil, fmt.Errorf("failed to load exercise: %w", err)
	}

	if err := draft.Validate(ex.Modality); err != nil {
		return nil, fmt.Errorf("%w: %v", ErrValidation, err)
	}

	now := r.now().UTC()

	logID := r.newID()
	if draft.SetLogID != nil {
		logID = *draft.SetLogID
	}
	l := &domain.SetLog{
		ID:          logID,
		UserID:      r.userID,
		ExerciseID:  exerciseID,
		SetIndex:    setIndex,
		WeightKg:    draft.WeightKg,
		Reps:        draft.Reps,
		RepsL:       draft.RepsL,
		RepsR:       draft.RepsR,
		TimeSeconds: draft.TimeSeconds,
		CreatedAt:   now,
		UpdatedAt:   now,
	}

	best, err := r.db.BestPerformance(ctx, r.userID, exerciseID)
	if err != nil {
		return nil, fmt.Errorf("failed to load best performance: %w", err)
	}
	l.IsPB = IsRecord(ex.Modality, best, l)

	err = r.db.WithTx(ctx, func(tx *sql.Tx) error {
		sessionID, err := r.ensureSessionTx(ctx, tx, now)
		if err != nil {
			return err
		}
		l.SessionID = sessionID

		if err := r.db.InsertSetLogTx(ctx, tx, l); err != nil {
			return err
		}
		payload, err := json.Marshal(l)
		if err != nil {
			return fmt.Errorf("failed to encode set log: %w", err)
		}
		if _, err := queue.EnqueueTx(ctx, r.queue, tx, queue.OpCreate, domain.TableSetLogs, payload); err != nil {
			return err
		}

		draft.SessionID = &sessionID
		draft.SetLogID = &l.ID
		draft.IsPB = l.IsPB
		draft.IsSaved = true
		return r.db.UpsertDraftTx(ctx, tx, draft)
	})
	if err != nil {
		return nil, err
	}

	r.logger.Printf("saved set %s[%d] session=%s pb=%v", exerciseID, setIndex, l.SessionID, l.IsPB)
	return l, nil
}

// ensureSessionTx returns the active session id, minting and persisting
// the session on first use. Freshly created sessions adopt every draft
// with a null session id in the same transaction.
func (r *Reconciler) ensureSessionTx(ctx context.Context, tx *sql.Tx, now time.Time) (string, error) {
	if r.sessionID != nil {
		return *r.sessionID, nil
	}

	id := r.newID()
	s := &domain.WorkoutSession{
		ID:         id,
		UserID:     r.userID,
		TemplateID: r.templateID,
		GymID:      r.gymID,
		Name:       r.name,
		StartedAt:  now,
		CreatedAt:  now,
		UpdatedAt:  now,
	}
	if err := r.db.UpsertSessionTx(ctx, tx, s); err != nil {
		return "", err
	}

	bound, err := r.db.BindDraftsToSessionTx(ctx, tx, id)
	if err != nil {
		return "", err
	}

	// An incomplete session is filtered at the enqueue entrypoint; the
	// call keeps every mutation flowing through the one policy gate.
	payload, err := json.Marshal(s)
	if err != nil {
		return "", fmt.Errorf("failed to encode session: %w", err)
	}
	if _, err := queue.EnqueueTx(ctx, r.queue, tx, queue.OpCreate, domain.TableWorkoutSessions, payload); err != nil {
		return "", err
	}

	r.sessionID = &id
	r.logger.Printf("created session %s, bound %d drafts", id, bound)
	return id, nil
}

// DeleteSet removes one set. The draft is always removed; if the set had
// been saved, the committed record is deleted locally and a delete is
// enqueued for the remote.
func (r *Reconciler) DeleteSet(ctx context.Context, exerciseID string, setIndex int) error {
	r.mu.Lock()
	defer r.mu.Unlock()

	draft, err := r.db.GetDraft(ctx, exerciseID, setIndex)
	if errors.Is(err, sql.ErrNoRows) {
		return nil
	}
	if err != nil {
		return fmt.Errorf("failed to load draft: %w", err)
	}

	return r.db.WithTx(ctx, func(tx *sql.Tx) error {
		if err := r.db.DeleteDraftTx(ctx, tx, exerciseID, setIndex); err != nil {
			return err
		}
		if draft.SetLogID == nil {
			return nil
		}
		if err := r.db.DeleteSetLogTx(ctx, tx, *draft.SetLogID); err != nil {
			return err
		}
		payload, err := json.Marshal(map[string]string{"id": *draft.SetLogID})
		if err != nil {
			return err
		}
		_, err = queue.EnqueueTx(ctx, r.queue, tx, queue.OpDelete, domain.TableSetLogs, payload)
		return err
	})
}

// CompleteSession stamps the active session completed, enqueues it for
// sync, and clears its drafts. Completion is the moment a session first
// becomes eligible to leave the device.
func (r *Reconciler) CompleteSession(ctx context.Context) (*domain.WorkoutSession, error) {
	r.mu.Lock()
	defer r.mu.Unlock()

	if r.sessionID == nil {
		return nil, ErrNoSession
	}
	id := *r.sessionID

	s, err := r.db.GetSession(ctx, id)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, fmt.Errorf("session %s missing locally", id)
	}
	if err != nil {
		return nil, fmt.Errorf("failed to load session: %w", err)
	}

	now := r.now().UTC()
	s.CompletedAt = &now
	s.UpdatedAt = now

	err = r.db.WithTx(ctx, func(tx *sql.Tx) error {
		if err := r.db.UpsertSessionTx(ctx, tx, s); err != nil {
			return err
		}
		payload, err := json.Marshal(s)
		if err != nil {
			return fmt.Errorf("failed to encode session: %w", err)
		}
		if _, err := queue.EnqueueTx(ctx, r.queue, tx, queue.OpUpdate, domain.TableWorkoutSessions, payload); err != nil {
			return err
		}
		return r.db.DeleteDraftsForSessionTx(ctx, tx, &id)
	})
	if err != nil {
		return nil, err
	}

	r.sessionID = nil
	r.name = "Workout"
	r.templateID = nil
	r.gymID = nil
	r.logger.Printf("completed session %s", id)
	return s, nil
}

// DiscardSession abandons the active workout: drafts are dropped, and if
// a session record exists it and its set logs are removed locally with a
// delete enqueued for the remote. The remote delete is idempotent, so
// discarding a never-synced session is harmless.
func (r *Reconciler) DiscardSession(ctx context.Context) error {
	r.mu.Lock()
	defer r.mu.Unlock()

	err := r.db.WithTx(ctx, func(tx *sql.Tx) error {
		if err := r.db.DeleteDraftsForSessionTx(ctx, tx, nil); err != nil {
			return err
		}
		if r.sessionID == nil {
			return nil
		}
		id := *r.sessionID
		if err := r.db.DeleteDraftsForSessionTx(ctx, tx, &id); err != nil {
			return err
		}
		if err := r.db.DeleteSetLogsForSessionTx(ctx, tx, id); err != nil {
			return err
		}
		if err := r.db.DeleteSessionTx(ctx, tx, id); err != nil {
			return err
		}
		payload, err := json.Marshal(map[string]string{"id": id})
		if err != nil {
			return err
		}
		_, err = queue.EnqueueTx(ctx, r.queue, tx, queue.OpDelete, domain.TableWorkoutSessions, payload)
		return err
	})
	if err != nil {
		return err
	}

	if r.sessionID != nil {
		r.logger.Printf("discarded session %s", *r.sessionID)
	}
	r.sessionID = nil
	r.name = "Workout"
	r.templateID = nil
	r.gymID = nil
	return nil
}
