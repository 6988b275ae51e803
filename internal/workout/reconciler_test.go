package workout

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"path/filepath"
	"testing"
	"time"

	"github.com/liftlog/liftlog/internal/domain"
	"github.com/liftlog/liftlog/internal/queue"
	"github.com/liftlog/liftlog/internal/store"
)

const testUser = "user-1"

// setupReconciler creates a temporary database seeded with a small
// exercise library and returns a reconciler with deterministic ids.
func setupReconciler(t *testing.T) (*Reconciler, *store.DB, *queue.Store) {
	t.Helper()

	dbPath := filepath.Join(t.TempDir(), "test.db")
	db, err := store.Open(dbPath)
	if err != nil {
		t.Fatalf("failed to open test database: %v", err)
	}
	t.Cleanup(func() { _ = db.Close() })

	ctx := context.Background()
	if err := db.Migrate(ctx); err != nil {
		t.Fatalf("failed to migrate test database: %v", err)
	}

	now := time.Now().UTC()
	exercises := []*domain.ExerciseDefinition{
		{ID: "bench-press", Name: "Bench Press", Modality: domain.ModalityWeightReps, CreatedAt: now, UpdatedAt: now},
		{ID: "split-squat", Name: "Split Squat", Modality: domain.ModalityUnilateral, CreatedAt: now, UpdatedAt: now},
		{ID: "plank", Name: "Plank", Modality: domain.ModalityTimed, CreatedAt: now, UpdatedAt: now},
	}
	for _, ex := range exercises {
		if err := db.UpsertExerciseDefinition(ctx, ex); err != nil {
			t.Fatalf("failed to seed exercise %s: %v", ex.ID, err)
		}
	}

	q := queue.NewStore(db.RawDB())
	r := NewReconciler(db, q, testUser, nil)

	seq := 0
	r.newID = func() string {
		seq++
		return fmt.Sprintf("test-id-%d", seq)
	}

	return r, db, q
}

func draftInput(exerciseID string, setIndex int, weight float64, reps int) *store.DraftSet {
	return &store.DraftSet{
		ExerciseID: exerciseID,
		SetIndex:   setIndex,
		WeightKg:   &weight,
		Reps:       &reps,
	}
}

func TestSaveSetMintsSessionAndBindsDrafts(t *testing.T) {
	r, db, q := setupReconciler(t)
	ctx := context.Background()

	// Three drafts accumulate before any save; none has a session.
	for i := 0; i < 3; i++ {
		if err := r.UpdateDraft(ctx, draftInput("bench-press", i, 60, 8)); err != nil {
			t.Fatalf("failed to update draft %d: %v", i, err)
		}
	}
	if r.SessionID() != nil {
		t.Fatal("session must not exist before the first save")
	}

	l, err := r.SaveSet(ctx, "bench-press", 0)
	if err != nil {
		t.Fatalf("failed to save set: %v", err)
	}

	sid := r.SessionID()
	if sid == nil {
		t.Fatal("first save must mint a session")
	}
	if l.SessionID != *sid {
		t.Errorf("set log session = %q, want %q", l.SessionID, *sid)
	}

	// Every floating draft was adopted, not just the saved one.
	drafts, err := db.ListDrafts(ctx, sid)
	if err != nil {
		t.Fatalf("failed to list drafts: %v", err)
	}
	if len(drafts) != 3 {
		t.Fatalf("got %d bound drafts, want 3", len(drafts))
	}
	floating, err := db.ListDrafts(ctx, nil)
	if err != nil {
		t.Fatalf("failed to list floating drafts: %v", err)
	}
	if len(floating) != 0 {
		t.Errorf("got %d floating drafts, want 0 after binding", len(floating))
	}

	// The incomplete session never enters the queue; the set log does.
	items, err := q.GetAll(ctx)
	if err != nil {
		t.Fatalf("failed to read queue: %v", err)
	}
	if len(items) != 1 {
		t.Fatalf("got %d queued items, want 1", len(items))
	}
	if items[0].Table != domain.TableSetLogs {
		t.Errorf("queued table = %q, want set_logs", items[0].Table)
	}
}

func TestSaveSetMarksDraftSaved(t *testing.T) {
	r, db, _ := setupReconciler(t)
	ctx := context.Background()

	if err := r.UpdateDraft(ctx, draftInput("bench-press", 0, 60, 8)); err != nil {
		t.Fatalf("failed to update draft: %v", err)
	}
	l, err := r.SaveSet(ctx, "bench-press", 0)
	if err != nil {
		t.Fatalf("failed to save set: %v", err)
	}

	d, err := db.GetDraft(ctx, "bench-press", 0)
	if err != nil {
		t.Fatalf("failed to load draft: %v", err)
	}
	if !d.IsSaved {
		t.Error("draft not marked saved")
	}
	if d.SetLogID == nil || *d.SetLogID != l.ID {
		t.Errorf("draft set_log_id = %v, want %q", d.SetLogID, l.ID)
	}
}

func TestEditAfterSaveReturnsToUnsaved(t *testing.T) {
	r, db, _ := setupReconciler(t)
	ctx := context.Background()

	if err := r.UpdateDraft(ctx, draftInput("bench-press", 0, 60, 8)); err != nil {
		t.Fatalf("failed to update draft: %v", err)
	}
	first, err := r.SaveSet(ctx, "bench-press", 0)
	if err != nil {
		t.Fatalf("failed to save set: %v", err)
	}

	if err := r.UpdateDraft(ctx, draftInput("bench-press", 0, 62.5, 8)); err != nil {
		t.Fatalf("failed to edit draft: %v", err)
	}
	d, err := db.GetDraft(ctx, "bench-press", 0)
	if err != nil {
		t.Fatalf("failed to load draft: %v", err)
	}
	if d.IsSaved {
		t.Error("edited draft must return to unsaved")
	}

	// Re-saving updates the same committed record.
	second, err := r.SaveSet(ctx, "bench-press", 0)
	if err != nil {
		t.Fatalf("failed to re-save set: %v", err)
	}
	if second.ID != first.ID {
		t.Errorf("re-save minted a new record %q, want %q", second.ID, first.ID)
	}
}

func TestSaveSetValidation(t *testing.T) {
	r, db, q := setupReconciler(t)
	ctx := context.Background()

	tests := []struct {
		name  string
		draft *store.DraftSet
	}{
		{"weighted without reps", &store.DraftSet{ExerciseID: "bench-press", SetIndex: 0, WeightKg: f(60)}},
		{"weighted with zero reps", &store.DraftSet{ExerciseID: "bench-press", SetIndex: 0, WeightKg: f(60), Reps: n(0)}},
		{"unilateral missing one side", &store.DraftSet{ExerciseID: "split-squat", SetIndex: 0, RepsL: n(8)}},
		{"timed without time", &store.DraftSet{ExerciseID: "plank", SetIndex: 0}},
		{"timed with zero seconds", &store.DraftSet{ExerciseID: "plank", SetIndex: 0, TimeSeconds: n(0)}},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if err := r.UpdateDraft(ctx, tt.draft); err != nil {
				t.Fatalf("failed to update draft: %v", err)
			}
			_, err := r.SaveSet(ctx, tt.draft.ExerciseID, tt.draft.SetIndex)
			if !errors.Is(err, ErrValidation) {
				t.Fatalf("err = %v, want ErrValidation", err)
			}

			// A rejected save leaves the draft unsaved and queues nothing.
			d, lookupErr := db.GetDraft(ctx, tt.draft.ExerciseID, tt.draft.SetIndex)
			if lookupErr != nil {
				t.Fatalf("failed to load draft: %v", lookupErr)
			}
			if d.IsSaved {
				t.Error("rejected draft must stay unsaved")
			}
			n, lenErr := q.Len(ctx)
			if lenErr != nil {
				t.Fatalf("failed to read queue: %v", lenErr)
			}
			if n != 0 {
				t.Errorf("queue length = %d, want 0 after rejected save", n)
			}
		})
	}
}

func TestSaveSetNoDraft(t *testing.T) {
	r, _, _ := setupReconciler(t)

	_, err := r.SaveSet(context.Background(), "bench-press", 0)
	if !errors.Is(err, ErrNoDraft) {
		t.Errorf("err = %v, want ErrNoDraft", err)
	}
}

func TestCompleteSessionEnqueuesAndCleansDrafts(t *testing.T) {
	r, db, q := setupReconciler(t)
	ctx := context.Background()

	if err := r.UpdateDraft(ctx, draftInput("bench-press", 0, 60, 8)); err != nil {
		t.Fatalf("failed to update draft: %v", err)
	}
	if _, err := r.SaveSet(ctx, "bench-press", 0); err != nil {
		t.Fatalf("failed to save set: %v", err)
	}
	sid := *r.SessionID()

	s, err := r.CompleteSession(ctx)
	if err != nil {
		t.Fatalf("failed to complete session: %v", err)
	}
	if s.CompletedAt == nil {
		t.Fatal("completed session missing completion stamp")
	}
	if r.SessionID() != nil {
		t.Error("reconciler should reset after completion")
	}

	drafts, err := db.ListDrafts(ctx, &sid)
	if err != nil {
		t.Fatalf("failed to list drafts: %v", err)
	}
	if len(drafts) != 0 {
		t.Errorf("got %d drafts after completion, want 0", len(drafts))
	}

	// The completed session is now eligible and queued behind the set log.
	items, err := q.GetAll(ctx)
	if err != nil {
		t.Fatalf("failed to read queue: %v", err)
	}
	if len(items) != 2 {
		t.Fatalf("got %d queued items, want 2", len(items))
	}
	last := items[len(items)-1]
	if last.Table != domain.TableWorkoutSessions || last.Operation != queue.OpUpdate {
		t.Errorf("queued %s on %s, want update on workout_sessions", last.Operation, last.Table)
	}
	var probe struct {
		CompletedAt *string `json:"completed_at"`
	}
	if err := json.Unmarshal(last.Payload, &probe); err != nil {
		t.Fatalf("failed to decode payload: %v", err)
	}
	if probe.CompletedAt == nil {
		t.Error("queued session payload missing completed_at")
	}
}

func TestCompleteWithoutSession(t *testing.T) {
	r, _, _ := setupReconciler(t)

	_, err := r.CompleteSession(context.Background())
	if !errors.Is(err, ErrNoSession) {
		t.Errorf("err = %v, want ErrNoSession", err)
	}
}

func TestDiscardSession(t *testing.T) {
	r, db, q := setupReconciler(t)
	ctx := context.Background()

	if err := r.UpdateDraft(ctx, draftInput("bench-press", 0, 60, 8)); err != nil {
		t.Fatalf("failed to update draft: %v", err)
	}
	if _, err := r.SaveSet(ctx, "bench-press", 0); err != nil {
		t.Fatalf("failed to save set: %v", err)
	}
	sid := *r.SessionID()

	if err := r.DiscardSession(ctx); err != nil {
		t.Fatalf("failed to discard session: %v", err)
	}

	if _, err := db.GetSession(ctx, sid); err == nil {
		t.Error("discarded session still present locally")
	}
	logs, err := db.ListSetLogsForSession(ctx, sid)
	if err != nil {
		t.Fatalf("failed to list set logs: %v", err)
	}
	if len(logs) != 0 {
		t.Errorf("got %d set logs after discard, want 0", len(logs))
	}
	drafts, err := db.ListDrafts(ctx, &sid)
	if err != nil {
		t.Fatalf("failed to list drafts: %v", err)
	}
	if len(drafts) != 0 {
		t.Errorf("got %d drafts after discard, want 0", len(drafts))
	}

	// The remote delete is queued so a previously synced session is
	// removed there too.
	items, err := q.GetAll(ctx)
	if err != nil {
		t.Fatalf("failed to read queue: %v", err)
	}
	last := items[len(items)-1]
	if last.Operation != queue.OpDelete || last.Table != domain.TableWorkoutSessions {
		t.Errorf("queued %s on %s, want delete on workout_sessions", last.Operation, last.Table)
	}
}

func TestRestoreResumesActiveSession(t *testing.T) {
	r, db, _ := setupReconciler(t)
	ctx := context.Background()

	if err := r.UpdateDraft(ctx, draftInput("bench-press", 0, 60, 8)); err != nil {
		t.Fatalf("failed to update draft: %v", err)
	}
	if _, err := r.SaveSet(ctx, "bench-press", 0); err != nil {
		t.Fatalf("failed to save set: %v", err)
	}
	sid := *r.SessionID()

	// A fresh process adopts the in-progress session instead of minting a
	// second one.
	fresh := NewReconciler(db, queue.NewStore(db.RawDB()), testUser, nil)
	if err := fresh.Restore(ctx); err != nil {
		t.Fatalf("failed to restore: %v", err)
	}
	got := fresh.SessionID()
	if got == nil || *got != sid {
		t.Errorf("restored session = %v, want %q", got, sid)
	}
}

func TestDeleteSavedSet(t *testing.T) {
	r, db, q := setupReconciler(t)
	ctx := context.Background()

	if err := r.UpdateDraft(ctx, draftInput("bench-press", 0, 60, 8)); err != nil {
		t.Fatalf("failed to update draft: %v", err)
	}
	l, err := r.SaveSet(ctx, "bench-press", 0)
	if err != nil {
		t.Fatalf("failed to save set: %v", err)
	}

	if err := r.DeleteSet(ctx, "bench-press", 0); err != nil {
		t.Fatalf("failed to delete set: %v", err)
	}

	if _, err := db.GetDraft(ctx, "bench-press", 0); err == nil {
		t.Error("draft still present after delete")
	}
	logs, err := db.ListSetLogsForSession(ctx, l.SessionID)
	if err != nil {
		t.Fatalf("failed to list set logs: %v", err)
	}
	if len(logs) != 0 {
		t.Errorf("got %d set logs after delete, want 0", len(logs))
	}

	items, err := q.GetAll(ctx)
	if err != nil {
		t.Fatalf("failed to read queue: %v", err)
	}
	last := items[len(items)-1]
	if last.Operation != queue.OpDelete || last.Table != domain.TableSetLogs {
		t.Errorf("queued %s on %s, want delete on set_logs", last.Operation, last.Table)
	}
}

func f(v float64) *float64 { return &v }
func n(v int) *int         { return &v }
