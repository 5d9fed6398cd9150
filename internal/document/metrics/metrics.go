package metrics

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

// Metrics tracks tenant-facing document operations.
type Metrics struct {
	Operations      *prometheus.CounterVec
	ConflictRetries prometheus.Counter
	Deleted         prometheus.Counter
}

func New() *Metrics {
	return &Metrics{
		Operations: promauto.NewCounterVec(prometheus.CounterOpts{
			Name: "docflow_document_operations_total",
			Help: "Document service operations, by operation and result code",
		}, []string{"operation", "result"}),
		ConflictRetries: promauto.NewCounter(prometheus.CounterOpts{
			Name: "docflow_document_conflict_retries_total",
			Help: "Metadata writes retried after losing a version race",
		}),
		Deleted: promauto.NewCounter(prometheus.CounterOpts{
			Name: "docflow_documents_deleted_total",
			Help: "Documents tombstoned",
		}),
	}
}

func (m *Metrics) Observe(operation, result string) {
	if m == nil {
		return
	}
	m.Operations.WithLabelValues(operation, result).Inc()
}

func (m *Metrics) IncConflictRetry() {
	if m == nil {
		return
	}
	m.ConflictRetries.Inc()
}

func (m *Metrics) IncDeleted() {
	if m == nil {
		return
	}
	m.Deleted.Inc()
}
