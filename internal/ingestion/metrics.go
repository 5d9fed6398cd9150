package ingestion

import (
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"

	dErrors "docflow/pkg/domain-errors"
)

type Metrics struct {
	Submissions *prometheus.CounterVec
	Bytes       prometheus.Counter
	Duration    prometheus.Histogram
}

func NewMetrics() *Metrics {
	return &Metrics{
		Submissions: promauto.NewCounterVec(prometheus.CounterOpts{
			Name: "docflow_ingestion_submissions_total",
			Help: "Upload attempts, by result code",
		}, []string{"result"}),
		Bytes: promauto.NewCounter(prometheus.CounterOpts{
			Name: "docflow_ingestion_bytes_total",
			Help: "Bytes accepted by the ingestion gateway",
		}),
		Duration: promauto.NewHistogram(prometheus.HistogramOpts{
			Name:    "docflow_ingestion_duration_seconds",
			Help:    "Time spent in Submit",
			Buckets: prometheus.DefBuckets,
		}),
	}
}

func (m *Metrics) observe(err error, size int64, d time.Duration) {
	if m == nil {
		return
	}
	m.Duration.Observe(d.Seconds())
	if err != nil {
		m.Submissions.WithLabelValues(string(dErrors.CodeOf(err))).Inc()
		return
	}
	m.Submissions.WithLabelValues("accepted").Inc()
	m.Bytes.Add(float64(size))
}
