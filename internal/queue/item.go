// Package queue provides the durable mutation queue for offline write-back
// synchronization.
//
// Every domain mutation that must reach the remote backend is recorded as a
// QueueItem in the local sync_queue table and replayed by the syncer in
// FIFO order. Items that exhaust their retry budget are preserved in a
// dead-letter table for inspection instead of being discarded outright.
package queue

import (
	"encoding/json"
	"fmt"
)

// Operation is the kind of mutation a queue item carries.
type Operation string

const (
	OpCreate Operation = "create"
	OpUpdate Operation = "update"
	OpDelete Operation = "delete"
)

// Valid reports whether op is a known operation.
func (op Operation) Valid() bool {
	switch op {
	case OpCreate, OpUpdate, OpDelete:
		return true
	}
	return false
}

// Item is one pending mutation.
//
// ID is assigned by the store on Add, never by the caller. Timestamp is
// epoch milliseconds of the last enqueue or attempt; incrementing attempts
// resets it to now so backoff is measured from the latest failure. The
// payload is opaque to the queue: the full record for create/update, or
// {"id": ...} for delete.
type Item struct {
	ID        int64           `json:"id"`
	Operation Operation       `json:"operation"`
	Table     string          `json:"table"`
	Payload   json.RawMessage `json:"payload"`
	Timestamp int64           `json:"timestamp"`
	Attempts  int             `json:"attempts"`
	Error     string          `json:"error,omitempty"`
	Priority  int             `json:"priority"`
}

// PayloadID extracts the "id" field from the payload. Every payload,
// full record or delete marker, carries the target row id.
func (it *Item) PayloadID() (string, error) {
	var probe struct {
		ID string `json:"id"`
	}
	if err := json.Unmarshal(it.Payload, &probe); err != nil {
		return "", fmt.Errorf("failed to parse payload: %w", err)
	}
	if probe.ID == "" {
		return "", fmt.Errorf("payload has no id")
	}
	return probe.ID, nil
}

// Validate checks the fields a caller controls before enqueueing.
func (it *Item) Validate() error {
	if !it.Operation.Valid() {
		return fmt.Errorf("unknown operation %q", it.Operation)
	}
	if it.Table == "" {
		return fmt.Errorf("table is required")
	}
	if len(it.Payload) == 0 {
		return fmt.Errorf("payload is required")
	}
	if _, err := it.PayloadID(); err != nil {
		return err
	}
	return nil
}
