package ocr

import (
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

type Metrics struct {
	Attempts        *prometheus.CounterVec
	AttemptDuration *prometheus.HistogramVec
	Outcomes        *prometheus.CounterVec
}

func NewMetrics() *Metrics {
	return &Metrics{
		Attempts: promauto.NewCounterVec(prometheus.CounterOpts{
			Name: "docflow_ocr_attempts_total",
			Help: "OCR strategy attempts, by strategy and result",
		}, []string{"strategy", "result"}),
		AttemptDuration: promauto.NewHistogramVec(prometheus.HistogramOpts{
			Name:    "docflow_ocr_attempt_duration_seconds",
			Help:    "Duration of a single OCR strategy attempt",
			Buckets: []float64{0.01, 0.05, 0.1, 0.5, 1, 2.5, 5, 10, 30},
		}, []string{"strategy"}),
		Outcomes: promauto.NewCounterVec(prometheus.CounterOpts{
			Name: "docflow_ocr_extractions_total",
			Help: "OCR extractions, by outcome (primary, fallback, exhausted)",
		}, []string{"outcome"}),
	}
}

func (m *Metrics) observeAttempt(strategy string, err error, d time.Duration) {
	if m == nil {
		return
	}
	result := "ok"
	if err != nil {
		result = "error"
	}
	m.Attempts.WithLabelValues(strategy, result).Inc()
	m.AttemptDuration.WithLabelValues(strategy).Observe(d.Seconds())
}

func (m *Metrics) observeOutcome(outcome string) {
	if m == nil {
		return
	}
	m.Outcomes.WithLabelValues(outcome).Inc()
}
