package analysis

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"

	"docflow/internal/document/models"
)

type Metrics struct {
	ProviderCalls *prometheus.CounterVec
	Outcomes      *prometheus.CounterVec
}

func NewMetrics() *Metrics {
	return &Metrics{
		ProviderCalls: promauto.NewCounterVec(prometheus.CounterOpts{
			Name: "docflow_analysis_provider_calls_total",
			Help: "Analysis provider calls after retries, by provider and result",
		}, []string{"provider", "result"}),
		Outcomes: promauto.NewCounterVec(prometheus.CounterOpts{
			Name: "docflow_analysis_outcomes_total",
			Help: "Reconciled analyses, by validation status",
		}, []string{"validation_status"}),
	}
}

func (m *Metrics) observeCall(provider, result string) {
	if m == nil {
		return
	}
	m.ProviderCalls.WithLabelValues(provider, result).Inc()
}

func (m *Metrics) observeOutcome(status models.ValidationStatus) {
	if m == nil {
		return
	}
	m.Outcomes.WithLabelValues(string(status)).Inc()
}
