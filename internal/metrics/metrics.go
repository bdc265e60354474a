// Package metrics exposes Prometheus instrumentation for the sync engine.
package metrics

import (
	"net/http"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

var (
	// OperationsEnqueued counts mutations accepted into the queue, by kind.
	OperationsEnqueued = promauto.NewCounterVec(prometheus.CounterOpts{
		Namespace: "syncagent",
		Name:      "operations_enqueued_total",
		Help:      "Sync operations accepted into the local queue.",
	}, []string{"kind"})

	// OperationsSucceeded counts operations confirmed by the server, by kind.
	OperationsSucceeded = promauto.NewCounterVec(prometheus.CounterOpts{
		Namespace: "syncagent",
		Name:      "operations_succeeded_total",
		Help:      "Sync operations acknowledged with a 2xx response.",
	}, []string{"kind"})

	// OperationsRetried counts failed attempts that left retry budget, by kind.
	OperationsRetried = promauto.NewCounterVec(prometheus.CounterOpts{
		Namespace: "syncagent",
		Name:      "operations_retried_total",
		Help:      "Failed attempts that will be retried.",
	}, []string{"kind"})

	// OperationsTerminal counts operations dropped after exhausting their
	// budget, by kind. Anything here was reported to the user as unsynced.
	OperationsTerminal = promauto.NewCounterVec(prometheus.CounterOpts{
		Namespace: "syncagent",
		Name:      "operations_failed_terminal_total",
		Help:      "Sync operations removed after exhausting their retry budget.",
	}, []string{"kind"})

	// DrainDuration observes full drain pass durations.
	DrainDuration = promauto.NewHistogram(prometheus.HistogramOpts{
		Namespace: "syncagent",
		Name:      "drain_duration_seconds",
		Help:      "Duration of full drain passes.",
		Buckets:   prometheus.ExponentialBuckets(0.05, 2, 12),
	})

	// QueueDepth tracks the number of pending operations.
	QueueDepth = promauto.NewGauge(prometheus.GaugeOpts{
		Namespace: "syncagent",
		Name:      "queue_depth",
		Help:      "Pending operations in the sync queue.",
	})
)

// Handler returns the HTTP handler serving the metrics endpoint.
func Handler() http.Handler {
	return promhttp.Handler()
}
