package cache

import (
	"context"
	"database/sql"
	"encoding/json"
	"errors"
	"fmt"
	"path/filepath"
	"testing"
	"time"

	"github.com/liftlog/liftlog/internal/domain"
	"github.com/liftlog/liftlog/internal/store"
)

// fakeFetcher serves canned rows per table and counts calls.
type fakeFetcher struct {
	rows  map[string][]json.RawMessage
	err   error
	calls int
}

func (f *fakeFetcher) SelectRows(_ context.Context, table string, _ map[string]string) ([]json.RawMessage, error) {
	f.calls++
	if f.err != nil {
		return nil, f.err
	}
	return f.rows[table], nil
}

func setupCacheDB(t *testing.T) *sql.DB {
	t.Helper()

	dbPath := filepath.Join(t.TempDir(), "test.db")
	db, err := store.Open(dbPath)
	if err != nil {
		t.Fatalf("failed to open test database: %v", err)
	}
	t.Cleanup(func() { _ = db.Close() })

	if err := db.Migrate(context.Background()); err != nil {
		t.Fatalf("failed to migrate test database: %v", err)
	}
	return db.RawDB()
}

func exerciseRow(t *testing.T, id, userID, name string) json.RawMessage {
	t.Helper()
	now := time.Now().UTC()
	raw, err := json.Marshal(&domain.ExerciseDefinition{
		ID: id, UserID: userID, Name: name,
		Modality: domain.ModalityWeightReps, CreatedAt: now, UpdatedAt: now,
	})
	if err != nil {
		t.Fatalf("failed to marshal exercise row: %v", err)
	}
	return raw
}

func countRows(t *testing.T, db *sql.DB, query string, args ...any) int {
	t.Helper()
	var n int
	if err := db.QueryRow(query, args...).Scan(&n); err != nil {
		t.Fatalf("failed to count rows: %v", err)
	}
	return n
}

func TestRevalidateUnknownOwnerIsNoOp(t *testing.T) {
	db := setupCacheDB(t)
	fetch := &fakeFetcher{}
	r := New(db, fetch, ExerciseSpec(), nil)

	if err := r.Revalidate(context.Background()); err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if fetch.calls != 0 {
		t.Errorf("fetch called %d times with unknown owner, want 0", fetch.calls)
	}
}

func TestSetOwnerTriggersRevalidation(t *testing.T) {
	db := setupCacheDB(t)
	fetch := &fakeFetcher{rows: map[string][]json.RawMessage{
		domain.TableExerciseDefinitions: {exerciseRow(t, "ex-1", "", "Bench Press")},
	}}
	r := New(db, fetch, ExerciseSpec(), nil)

	r.SetOwner(context.Background(), Anonymous())
	if fetch.calls != 1 {
		t.Fatalf("fetch called %d times on owner resolution, want 1", fetch.calls)
	}
	if got := countRows(t, db, "SELECT COUNT(*) FROM exercise_definitions"); got != 1 {
		t.Errorf("got %d cached rows, want 1", got)
	}

	// A later owner update from one known scope to another does not
	// retrigger by itself.
	r.SetOwner(context.Background(), OwnerID("user-a"))
	if fetch.calls != 1 {
		t.Errorf("fetch called %d times after known-to-known transition, want 1", fetch.calls)
	}
}

func TestOwnedSubsetScoping(t *testing.T) {
	db := setupCacheDB(t)
	ctx := context.Background()

	// Seed the local cache with a global row, one of user A's custom
	// exercises that the remote no longer has, and user B's row.
	seed := [][2]string{
		{"global-1", ""},
		{"a-stale", "user-a"},
		{"b-keep", "user-b"},
	}
	for _, s := range seed {
		if _, err := db.Exec(
			`INSERT INTO exercise_definitions (id, user_id, name, modality, created_at, updated_at)
			 VALUES (?, ?, ?, ?, ?, ?)`,
			s[0], s[1], "Seeded", domain.ModalityWeightReps,
			time.Now().UTC().Format(time.RFC3339), time.Now().UTC().Format(time.RFC3339),
		); err != nil {
			t.Fatalf("failed to seed row %s: %v", s[0], err)
		}
	}

	fetch := &fakeFetcher{rows: map[string][]json.RawMessage{
		domain.TableExerciseDefinitions: {
			exerciseRow(t, "global-1", "", "Bench Press"),
			exerciseRow(t, "a-fresh", "user-a", "Cable Fly"),
		},
	}}
	r := New(db, fetch, ExerciseSpec(), nil)
	r.SetOwner(ctx, OwnerID("user-a"))

	// User A's stale row is gone, the fresh one is in.
	if got := countRows(t, db, "SELECT COUNT(*) FROM exercise_definitions WHERE id = ?", "a-stale"); got != 0 {
		t.Error("stale owned row survived revalidation")
	}
	if got := countRows(t, db, "SELECT COUNT(*) FROM exercise_definitions WHERE id = ?", "a-fresh"); got != 1 {
		t.Error("fresh owned row missing after revalidation")
	}

	// Rows belonging to other scopes are untouched.
	if got := countRows(t, db, "SELECT COUNT(*) FROM exercise_definitions WHERE user_id = ?", "user-b"); got != 1 {
		t.Error("another owner's row was deleted")
	}
	if got := countRows(t, db, "SELECT COUNT(*) FROM exercise_definitions WHERE id = ?", "global-1"); got != 1 {
		t.Error("global row missing after revalidation")
	}
}

func TestFetchFailureKeepsStaleView(t *testing.T) {
	db := setupCacheDB(t)
	ctx := context.Background()

	fetch := &fakeFetcher{rows: map[string][]json.RawMessage{
		domain.TableExerciseDefinitions: {exerciseRow(t, "ex-1", "user-a", "Bench Press")},
	}}
	r := New(db, fetch, ExerciseSpec(), nil)
	r.SetOwner(ctx, OwnerID("user-a"))

	if got := countRows(t, db, "SELECT COUNT(*) FROM exercise_definitions"); got != 1 {
		t.Fatalf("got %d cached rows, want 1", got)
	}

	// The backend goes away. The cached view must survive untouched and
	// the failure must be observable.
	fetch.err = errors.New("remote unreachable")
	if err := r.Revalidate(ctx); err == nil {
		t.Fatal("expected revalidation error")
	}
	if r.Err() == nil {
		t.Error("Err() is nil after failed revalidation")
	}
	if got := countRows(t, db, "SELECT COUNT(*) FROM exercise_definitions"); got != 1 {
		t.Errorf("got %d cached rows after failure, want 1 (stale view kept)", got)
	}

	// Recovery clears the recorded error.
	fetch.err = nil
	if err := r.Revalidate(ctx); err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if r.Err() != nil {
		t.Errorf("Err() = %v after recovery, want nil", r.Err())
	}
}

func TestReplaceAllRebuildsJunction(t *testing.T) {
	db := setupCacheDB(t)
	ctx := context.Background()

	if _, err := db.Exec(
		`INSERT INTO template_exercises (id, template_id, exercise_id, position, target_sets)
		 VALUES ('stale', 'tpl-1', 'ex-1', 0, 3)`,
	); err != nil {
		t.Fatalf("failed to seed junction row: %v", err)
	}

	fresh, err := json.Marshal(&domain.TemplateExercise{
		ID: "fresh", TemplateID: "tpl-2", ExerciseID: "ex-2", Position: 1, TargetSets: 4,
	})
	if err != nil {
		t.Fatalf("failed to marshal junction row: %v", err)
	}
	fetch := &fakeFetcher{rows: map[string][]json.RawMessage{
		domain.TableTemplateExercises: {json.RawMessage(fresh)},
	}}
	r := New(db, fetch, TemplateExerciseSpec(), nil)
	r.SetOwner(ctx, OwnerID("user-a"))

	if got := countRows(t, db, "SELECT COUNT(*) FROM template_exercises"); got != 1 {
		t.Fatalf("got %d junction rows, want 1", got)
	}
	if got := countRows(t, db, "SELECT COUNT(*) FROM template_exercises WHERE id = 'fresh'"); got != 1 {
		t.Error("fresh junction row missing after rebuild")
	}
}

func TestSingletonReplace(t *testing.T) {
	db := setupCacheDB(t)
	ctx := context.Background()

	now := time.Now().UTC()
	profile := func(id, name string) json.RawMessage {
		raw, err := json.Marshal(&domain.Profile{
			ID: id, UserID: "user-a", DisplayName: name,
			CreatedAt: now, UpdatedAt: now,
		})
		if err != nil {
			t.Fatalf("failed to marshal profile: %v", err)
		}
		return raw
	}

	fetch := &fakeFetcher{rows: map[string][]json.RawMessage{
		domain.TableProfiles: {profile("prof-1", "Alice")},
	}}
	r := New(db, fetch, ProfileSpec(), nil)
	r.SetOwner(ctx, OwnerID("user-a"))

	fetch.rows[domain.TableProfiles] = []json.RawMessage{profile("prof-1", "Alice B")}
	if err := r.Revalidate(ctx); err != nil {
		t.Fatalf("unexpected error: %v", err)
	}

	if got := countRows(t, db, "SELECT COUNT(*) FROM profiles WHERE user_id = 'user-a'"); got != 1 {
		t.Fatalf("got %d profile rows, want 1", got)
	}
	var name string
	if err := db.QueryRow("SELECT display_name FROM profiles WHERE id = 'prof-1'").Scan(&name); err != nil {
		t.Fatalf("failed to read profile: %v", err)
	}
	if name != "Alice B" {
		t.Errorf("display_name = %q, want %q", name, "Alice B")
	}
}

func TestSubscribeNotifiesOnApply(t *testing.T) {
	db := setupCacheDB(t)
	ctx := context.Background()

	fetch := &fakeFetcher{rows: map[string][]json.RawMessage{}}
	r := New(db, fetch, ExerciseSpec(), nil)

	notified := 0
	unsub := r.Subscribe(func() { notified++ })

	r.SetOwner(ctx, OwnerID("user-a"))
	if notified != 1 {
		t.Fatalf("notified %d times after applied revalidation, want 1", notified)
	}

	// Failed revalidations do not notify; readers have nothing new to load.
	fetch.err = fmt.Errorf("remote unreachable")
	_ = r.Revalidate(ctx)
	if notified != 1 {
		t.Errorf("notified %d times after failed revalidation, want 1", notified)
	}

	fetch.err = nil
	unsub()
	if err := r.Revalidate(ctx); err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if notified != 1 {
		t.Errorf("notified %d times after unsubscribe, want 1", notified)
	}
	if r.LastCount() != 0 {
		t.Errorf("LastCount = %d, want 0", r.LastCount())
	}
}
