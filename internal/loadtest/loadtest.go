// Package loadtest provides soak testing utilities for the sync queue.
//
// The harness fills the durable queue with synthetic set logs, then
// simulates many concurrent readers polling for pending work to validate
// that the queue sustains concurrent access with low read latency and
// without ordering corruption.
package loadtest

import (
	"context"
	"encoding/json"
	"fmt"
	"math/rand"
	"sort"
	"sync"
	"time"

	"github.com/liftlog/liftlog/internal/domain"
	"github.com/liftlog/liftlog/internal/queue"
	"github.com/liftlog/liftlog/internal/store"
)

// Harness is a populated test database plus its sync queue.
type Harness struct {
	DB         *store.DB
	Queue      *queue.Store
	ItemIDs    []int64
	TotalItems int
}

// LatencyStats captures performance metrics from load tests.
type LatencyStats struct {
	Min          time.Duration
	Max          time.Duration
	Mean         time.Duration
	P50          time.Duration
	P95          time.Duration
	P99          time.Duration
	TotalQueries int
	Errors       int
	Durations    []time.Duration
}

// CreateHarness opens a database at dbPath, migrates it, and enqueues
// numItems synthetic set log creates with realistic field distributions.
func CreateHarness(dbPath string, numItems int) (*Harness, error) {
	db, err := store.Open(dbPath)
	if err != nil {
		return nil, fmt.Errorf("failed to open database: %w", err)
	}

	// Concurrency headroom for the reader swarm.
	db.RawDB().SetMaxOpenConns(150)
	db.RawDB().SetMaxIdleConns(50)
	db.RawDB().SetConnMaxLifetime(10 * time.Minute)

	if err := db.Migrate(context.Background()); err != nil {
		_ = db.Close()
		return nil, fmt.Errorf("failed to migrate: %w", err)
	}

	h := &Harness{
		DB:         db,
		Queue:      queue.NewStore(db.RawDB()),
		ItemIDs:    make([]int64, 0, numItems),
		TotalItems: numItems,
	}

	ctx := context.Background()
	for _, payload := range generateSetLogs(numItems) {
		id, err := queue.Enqueue(ctx, h.Queue, queue.OpCreate, domain.TableSetLogs, payload)
		if err != nil {
			_ = db.Close()
			return nil, fmt.Errorf("failed to enqueue item: %w", err)
		}
		h.ItemIDs = append(h.ItemIDs, id)
	}

	return h, nil
}

// Close closes the harness database.
func (h *Harness) Close() error {
	if h.DB != nil {
		return h.DB.Close()
	}
	return nil
}

// RunConcurrentReads simulates N concurrent pollers reading the pending
// queue. Each poller performs readsPerPoller full reads, recording
// latency for each. Returns aggregated latency statistics.
func (h *Harness) RunConcurrentReads(numPollers, readsPerPoller int) (*LatencyStats, error) {
	var wg sync.WaitGroup

	resultsChan := make(chan []time.Duration, numPollers)
	errorsChan := make(chan error, numPollers)

	for i := 0; i < numPollers; i++ {
		wg.Add(1)
		go func(pollerID int) {
			defer wg.Done()

			durations := make([]time.Duration, 0, readsPerPoller)
			ctx := context.Background()

			for j := 0; j < readsPerPoller; j++ {
				start := time.Now()
				_, err := h.Queue.GetAll(ctx)
				durations = append(durations, time.Since(start))

				if err != nil {
					errorsChan <- fmt.Errorf("poller %d read %d failed: %w", pollerID, j, err)
					return
				}
			}

			resultsChan <- durations
		}(i)
	}

	wg.Wait()
	close(resultsChan)
	close(errorsChan)

	errorCount := 0
	for range errorsChan {
		errorCount++
	}

	var allDurations []time.Duration
	for durations := range resultsChan {
		allDurations = append(allDurations, durations...)
	}

	if len(allDurations) == 0 {
		return nil, fmt.Errorf("no successful reads completed")
	}

	stats := computeLatencyStats(allDurations)
	stats.Errors = errorCount
	return stats, nil
}

// VerifyOrdering runs concurrent readers against a queue under mutation
// and checks that every observed snapshot is oldest-first. Mutators
// enqueue and remove items while readers verify ordering, for the given
// duration.
func (h *Harness) VerifyOrdering(numReaders int, duration time.Duration) error {
	ctx, cancel := context.WithTimeout(context.Background(), duration)
	defer cancel()

	var wg sync.WaitGroup
	errorsChan := make(chan error, numReaders+1)

	for i := 0; i < numReaders; i++ {
		wg.Add(1)
		go func(readerID int) {
			defer wg.Done()

			for {
				select {
				case <-ctx.Done():
					return
				default:
					items, err := h.Queue.GetAll(ctx)
					if err != nil && ctx.Err() == nil {
						errorsChan <- fmt.Errorf("reader %d read failed: %w", readerID, err)
						return
					}
					for k := 1; k < len(items); k++ {
						prev, cur := items[k-1], items[k]
						if cur.Timestamp < prev.Timestamp ||
							(cur.Timestamp == prev.Timestamp && cur.ID < prev.ID) {
							errorsChan <- fmt.Errorf("reader %d observed out-of-order items %d and %d",
								readerID, prev.ID, cur.ID)
							return
						}
					}
					time.Sleep(1 * time.Millisecond)
				}
			}
		}(i)
	}

	// One mutator churns the queue while the readers watch.
	wg.Add(1)
	go func() {
		defer wg.Done()

		payloads := generateSetLogs(64)
		i := 0
		for {
			select {
			case <-ctx.Done():
				return
			default:
				id, err := queue.Enqueue(ctx, h.Queue, queue.OpCreate, domain.TableSetLogs, payloads[i%len(payloads)])
				if err != nil && ctx.Err() == nil {
					errorsChan <- fmt.Errorf("mutator enqueue failed: %w", err)
					return
				}
				if i%3 == 0 {
					if err := h.Queue.Remove(ctx, id); err != nil && ctx.Err() == nil {
						errorsChan <- fmt.Errorf("mutator remove failed: %w", err)
						return
					}
				}
				i++
				time.Sleep(2 * time.Millisecond)
			}
		}
	}()

	wg.Wait()
	close(errorsChan)

	for err := range errorsChan {
		if err != nil {
			return err
		}
	}
	return nil
}

// Stats returns summary statistics about the harness.
func (h *Harness) Stats(ctx context.Context) (map[string]any, error) {
	pending, err := h.Queue.Len(ctx)
	if err != nil {
		return nil, err
	}
	return map[string]any{
		"total_enqueued": h.TotalItems,
		"pending":        pending,
	}, nil
}

// generateSetLogs builds synthetic set log payloads with a deterministic
// seed so runs are reproducible.
func generateSetLogs(count int) []json.RawMessage {
	rng := rand.New(rand.NewSource(42))
	baseTime := time.Now().Add(-30 * 24 * time.Hour)

	payloads := make([]json.RawMessage, count)
	for i := 0; i < count; i++ {
		weight := 20.0 + float64(rng.Intn(40))*2.5
		reps := 3 + rng.Intn(10)
		createdAt := baseTime.Add(time.Duration(i) * time.Minute)

		l := domain.SetLog{
			ID:         fmt.Sprintf("soak-%05d", i),
			SessionID:  fmt.Sprintf("soak-session-%03d", i/10),
			UserID:     "soak-user",
			ExerciseID: fmt.Sprintf("soak-exercise-%02d", i%20),
			SetIndex:   i % 5,
			WeightKg:   &weight,
			Reps:       &reps,
			CreatedAt:  createdAt,
			UpdatedAt:  createdAt,
		}
		payload, _ := json.Marshal(l)
		payloads[i] = payload
	}
	return payloads
}

func computeLatencyStats(durations []time.Duration) *LatencyStats {
	if len(durations) == 0 {
		return &LatencyStats{}
	}

	sorted := make([]time.Duration, len(durations))
	copy(sorted, durations)
	sort.Slice(sorted, func(i, j int) bool {
		return sorted[i] < sorted[j]
	})

	var sum time.Duration
	for _, d := range durations {
		sum += d
	}
	mean := sum / time.Duration(len(durations))

	return &LatencyStats{
		Min:          sorted[0],
		Max:          sorted[len(sorted)-1],
		Mean:         mean,
		P50:          sorted[len(sorted)*50/100],
		P95:          sorted[len(sorted)*95/100],
		P99:          sorted[len(sorted)*99/100],
		TotalQueries: len(durations),
		Durations:    sorted,
	}
}

// PrintStats formats and prints latency statistics.
func (s *LatencyStats) PrintStats() {
	fmt.Printf("Latency Statistics:\n")
	fmt.Printf("  Total Reads:  %d\n", s.TotalQueries)
	fmt.Printf("  Errors:       %d\n", s.Errors)
	fmt.Printf("  Min:          %v\n", s.Min)
	fmt.Printf("  P50 (Median): %v\n", s.P50)
	fmt.Printf("  Mean:         %v\n", s.Mean)
	fmt.Printf("  P95:          %v\n", s.P95)
	fmt.Printf("  P99:          %v\n", s.P99)
	fmt.Printf("  Max:          %v\n", s.Max)
}
