package metrics

import (
	"sync"

	"github.com/prometheus/client_golang/prometheus"
)

var (
	once sync.Once

	// ModelRequestsTotal counts model calls by provider, operation and result.
	ModelRequestsTotal = prometheus.NewCounterVec(prometheus.CounterOpts{
		Namespace: "healsmart",
		Subsystem: "model",
		Name:      "requests_total",
		Help:      "Total number of calls to the hosted model, labeled by provider, operation and result.",
	}, []string{"provider", "operation", "result"})

	// ModelRequestDurationSeconds is the wall time of a single model call.
	ModelRequestDurationSeconds = prometheus.NewHistogramVec(prometheus.HistogramOpts{
		Namespace: "healsmart",
		Subsystem: "model",
		Name:      "request_duration_seconds",
		Help:      "Time spent waiting for the hosted model, per call.",
		Buckets:   []float64{0.25, 0.5, 1, 2, 5, 10, 20, 30, 60, 120},
	}, []string{"provider", "operation"})

	// UploadsRejectedTotal counts uploads refused before reaching the model.
	UploadsRejectedTotal = prometheus.NewCounterVec(prometheus.CounterOpts{
		Namespace: "healsmart",
		Subsystem: "upload",
		Name:      "rejected_total",
		Help:      "Total number of uploads rejected during validation, labeled by reason.",
	}, []string{"reason"})
)

// Register registers application metrics with the default Prometheus registry.
// Safe to call multiple times.
func Register() {
	once.Do(func() {
		prometheus.MustRegister(
			ModelRequestsTotal,
			ModelRequestDurationSeconds,
			UploadsRejectedTotal,
		)
	})
}
