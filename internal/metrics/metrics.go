// Package metrics registers the Prometheus instrumentation for the sync
// engine. Served from the dashboard HTTP mux under /metrics.
package metrics

import (
	"sync"

	"github.com/prometheus/client_golang/prometheus"
)

var (
	once sync.Once

	syncSuccesses = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: "liftlog",
			Name:      "sync_success_total",
			Help:      "Queue items confirmed synced, by table.",
		},
		[]string{"table"},
	)

	syncFailures = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: "liftlog",
			Name:      "sync_failure_total",
			Help:      "Failed sync attempts (dispatch or verification), by table.",
		},
		[]string{"table"},
	)

	deadLetters = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: "liftlog",
			Name:      "sync_dead_letter_total",
			Help:      "Queue items dropped after exhausting the retry budget.",
		},
		[]string{"table"},
	)

	queueLength = prometheus.NewGauge(
		prometheus.GaugeOpts{
			Namespace: "liftlog",
			Name:      "sync_queue_length",
			Help:      "Queue depth observed on the last syncer tick.",
		},
	)

	revalidations = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: "liftlog",
			Name:      "cache_revalidation_total",
			Help:      "Cache revalidations by table and outcome.",
		},
		[]string{"table", "outcome"},
	)
)

// Register registers Prometheus metrics. Safe to call multiple times.
func Register() {
	once.Do(func() {
		prometheus.MustRegister(
			syncSuccesses,
			syncFailures,
			deadLetters,
			queueLength,
			revalidations,
		)
	})
}

// IncSyncSuccess increments the success counter for a table.
func IncSyncSuccess(table string) { syncSuccesses.WithLabelValues(table).Inc() }

// IncSyncFailure increments the failure counter for a table.
func IncSyncFailure(table string) { syncFailures.WithLabelValues(table).Inc() }

// IncDeadLetter increments the dead-letter counter for a table.
func IncDeadLetter(table string) { deadLetters.WithLabelValues(table).Inc() }

// SetQueueLength records the queue depth.
func SetQueueLength(n int) { queueLength.Set(float64(n)) }

// IncRevalidation records a cache revalidation outcome ("ok" or "error").
func IncRevalidation(table, outcome string) {
	revalidations.WithLabelValues(table, outcome).Inc()
}
