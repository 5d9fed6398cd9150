package workflow

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

// Metrics tracks transition attempts by trigger and outcome.
type Metrics struct {
	Attempts *prometheus.CounterVec
}

func NewMetrics() *Metrics {
	return &Metrics{
		Attempts: promauto.NewCounterVec(prometheus.CounterOpts{
			Name: "docflow_workflow_transitions_total",
			Help: "Workflow transition attempts, by trigger and outcome",
		}, []string{"trigger", "outcome"}),
	}
}

func (m *Metrics) observe(trigger Trigger, outcome string) {
	if m == nil {
		return
	}
	m.Attempts.WithLabelValues(string(trigger), outcome).Inc()
}
