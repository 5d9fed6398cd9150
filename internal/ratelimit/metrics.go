package ratelimit

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

type Metrics struct {
	Decisions *prometheus.CounterVec
}

func NewMetrics() *Metrics {
	return &Metrics{
		Decisions: promauto.NewCounterVec(prometheus.CounterOpts{
			Name: "docflow_ratelimit_decisions_total",
			Help: "Rate limit decisions by scope and result",
		}, []string{"scope", "result"}),
	}
}

func (m *Metrics) observe(scope, result string) {
	if m == nil {
		return
	}
	m.Decisions.WithLabelValues(scope, result).Inc()
}
