package metrics

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

// Metrics provides observability for tenant isolation decisions.
type Metrics struct {
	Denied *prometheus.CounterVec
}

func New() *Metrics {
	return &Metrics{
		Denied: promauto.NewCounterVec(prometheus.CounterOpts{
			Name: "docflow_tenant_guard_denied_total",
			Help: "Operations denied by the tenant isolation guard, by permission",
		}, []string{"permission"}),
	}
}

func (m *Metrics) IncDenied(permission string) {
	m.Denied.WithLabelValues(permission).Inc()
}
