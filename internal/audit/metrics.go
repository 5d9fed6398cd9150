package audit

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

// Metrics holds Prometheus metrics for the audit trail.
type Metrics struct {
	Emitted         *prometheus.CounterVec
	PersistFailures prometheus.Counter
	StreamFailures  prometheus.Counter
	StreamDropped   prometheus.Counter
	PersistDuration prometheus.Histogram
}

func NewMetrics() *Metrics {
	return &Metrics{
		Emitted: promauto.NewCounterVec(prometheus.CounterOpts{
			Name: "docflow_audit_entries_total",
			Help: "Audit entries persisted, by outcome",
		}, []string{"outcome"}),
		PersistFailures: promauto.NewCounter(prometheus.CounterOpts{
			Name: "docflow_audit_persist_failures_total",
			Help: "Audit entries that could not be persisted",
		}),
		StreamFailures: promauto.NewCounter(prometheus.CounterOpts{
			Name: "docflow_audit_stream_failures_total",
			Help: "Audit entries that failed to publish to the stream",
		}),
		StreamDropped: promauto.NewCounter(prometheus.CounterOpts{
			Name: "docflow_audit_stream_dropped_total",
			Help: "Audit entries not streamed because the stream breaker was open",
		}),
		PersistDuration: promauto.NewHistogram(prometheus.HistogramOpts{
			Name:    "docflow_audit_persist_duration_seconds",
			Help:    "Duration of audit store appends",
			Buckets: []float64{0.001, 0.005, 0.01, 0.025, 0.05, 0.1, 0.25, 0.5, 1},
		}),
	}
}
