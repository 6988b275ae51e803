package queue

import (
	"context"
	"encoding/json"
	"path/filepath"
	"testing"
	"time"

	"github.com/liftlog/liftlog/internal/store"
)

// setupTestQueue creates a temporary database with the full schema and
// returns its queue store.
func setupTestQueue(t *testing.T) (*Store, *store.DB) {
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

	return NewStore(db.RawDB()), db
}

func testItem(op Operation, table, id string) *Item {
	payload, _ := json.Marshal(map[string]string{"id": id})
	return &Item{Operation: op, Table: table, Payload: payload}
}

func TestAddAssignsIdentity(t *testing.T) {
	q, _ := setupTestQueue(t)
	ctx := context.Background()

	before := time.Now().UnixMilli()
	it := testItem(OpCreate, "set_logs", "set-1")
	id, err := q.Add(ctx, it)
	if err != nil {
		t.Fatalf("failed to add item: %v", err)
	}

	if id == 0 {
		t.Error("expected store-assigned id, got 0")
	}
	if it.ID != id {
		t.Errorf("item.ID = %d, want %d", it.ID, id)
	}
	if it.Timestamp < before {
		t.Errorf("timestamp %d predates enqueue time %d", it.Timestamp, before)
	}
	if it.Attempts != 0 {
		t.Errorf("attempts = %d, want 0", it.Attempts)
	}
}

func TestGetAllOldestFirst(t *testing.T) {
	q, _ := setupTestQueue(t)
	ctx := context.Background()

	ids := make([]int64, 0, 3)
	for _, name := range []string{"set-1", "set-2", "set-3"} {
		id, err := q.Add(ctx, testItem(OpCreate, "set_logs", name))
		if err != nil {
			t.Fatalf("failed to add %s: %v", name, err)
		}
		ids = append(ids, id)
	}

	items, err := q.GetAll(ctx)
	if err != nil {
		t.Fatalf("failed to read queue: %v", err)
	}
	if len(items) != 3 {
		t.Fatalf("got %d items, want 3", len(items))
	}
	for i, it := range items {
		if it.ID != ids[i] {
			t.Errorf("position %d: id = %d, want %d", i, it.ID, ids[i])
		}
	}
}

func TestIncrementAttemptsResetsTimestamp(t *testing.T) {
	q, _ := setupTestQueue(t)
	ctx := context.Background()

	it := testItem(OpUpdate, "set_logs", "set-1")
	id, err := q.Add(ctx, it)
	if err != nil {
		t.Fatalf("failed to add item: %v", err)
	}
	original := it.Timestamp

	time.Sleep(5 * time.Millisecond)
	if err := q.IncrementAttempts(ctx, id, "network unreachable"); err != nil {
		t.Fatalf("failed to increment attempts: %v", err)
	}

	items, err := q.GetAll(ctx)
	if err != nil {
		t.Fatalf("failed to read queue: %v", err)
	}
	got := items[0]
	if got.Attempts != 1 {
		t.Errorf("attempts = %d, want 1", got.Attempts)
	}
	if got.Error != "network unreachable" {
		t.Errorf("error = %q, want recorded failure", got.Error)
	}
	// The attempt timestamp seeds the backoff window.
	if got.Timestamp <= original {
		t.Errorf("timestamp %d not advanced past %d", got.Timestamp, original)
	}
}

func TestRemoveIdempotent(t *testing.T) {
	q, _ := setupTestQueue(t)
	ctx := context.Background()

	id, err := q.Add(ctx, testItem(OpDelete, "set_logs", "set-1"))
	if err != nil {
		t.Fatalf("failed to add item: %v", err)
	}

	if err := q.Remove(ctx, id); err != nil {
		t.Fatalf("failed to remove item: %v", err)
	}
	if err := q.Remove(ctx, id); err != nil {
		t.Errorf("second remove should be a no-op, got %v", err)
	}

	n, err := q.Len(ctx)
	if err != nil {
		t.Fatalf("failed to read length: %v", err)
	}
	if n != 0 {
		t.Errorf("queue length = %d, want 0", n)
	}
}

func TestClear(t *testing.T) {
	q, _ := setupTestQueue(t)
	ctx := context.Background()

	for i := 0; i < 4; i++ {
		if _, err := q.Add(ctx, testItem(OpCreate, "set_logs", "set")); err != nil {
			t.Fatalf("failed to add item: %v", err)
		}
	}
	if err := q.Clear(ctx); err != nil {
		t.Fatalf("failed to clear queue: %v", err)
	}
	n, err := q.Len(ctx)
	if err != nil {
		t.Fatalf("failed to read length: %v", err)
	}
	if n != 0 {
		t.Errorf("queue length after clear = %d, want 0", n)
	}
}

func TestDeadLetterMovesItem(t *testing.T) {
	q, _ := setupTestQueue(t)
	ctx := context.Background()

	it := testItem(OpCreate, "set_logs", "poison")
	if _, err := q.Add(ctx, it); err != nil {
		t.Fatalf("failed to add item: %v", err)
	}
	for i := 0; i < 5; i++ {
		if err := q.IncrementAttempts(ctx, it.ID, "remote rejected payload"); err != nil {
			t.Fatalf("failed to increment attempts: %v", err)
		}
	}
	items, _ := q.GetAll(ctx)
	if err := q.DeadLetter(ctx, items[0], "retry budget exhausted after 5 attempts"); err != nil {
		t.Fatalf("failed to dead-letter item: %v", err)
	}

	n, _ := q.Len(ctx)
	if n != 0 {
		t.Errorf("queue length = %d, want 0 after dead letter", n)
	}

	records, err := q.ListDeadLetters(ctx)
	if err != nil {
		t.Fatalf("failed to list dead letters: %v", err)
	}
	if len(records) != 1 {
		t.Fatalf("got %d dead letters, want 1", len(records))
	}
	rec := records[0]
	if rec.QueueID != it.ID {
		t.Errorf("queue id = %d, want %d", rec.QueueID, it.ID)
	}
	if rec.Attempts != 5 {
		t.Errorf("attempts = %d, want 5", rec.Attempts)
	}
	if rec.Reason == "" {
		t.Error("expected drop reason to be recorded")
	}
}

func TestOnEnqueueFires(t *testing.T) {
	q, _ := setupTestQueue(t)
	ctx := context.Background()

	fired := 0
	q.OnEnqueue(func() { fired++ })

	if _, err := q.Add(ctx, testItem(OpCreate, "set_logs", "set-1")); err != nil {
		t.Fatalf("failed to add item: %v", err)
	}
	if fired != 1 {
		t.Errorf("enqueue hook fired %d times, want 1", fired)
	}
}
