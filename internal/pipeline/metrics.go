package pipeline

import (
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

type Metrics struct {
	Jobs        *prometheus.CounterVec
	JobDuration *prometheus.HistogramVec
	QueueDepth  prometheus.Gauge
	Rejected    prometheus.Counter
	Overflow    prometheus.Counter
	Recovered   *prometheus.CounterVec
}

func NewMetrics() *Metrics {
	return &Metrics{
		Jobs: promauto.NewCounterVec(prometheus.CounterOpts{
			Name: "docflow_pipeline_jobs_total",
			Help: "Pipeline jobs processed, by kind and result",
		}, []string{"kind", "result"}),
		JobDuration: promauto.NewHistogramVec(prometheus.HistogramOpts{
			Name:    "docflow_pipeline_job_duration_seconds",
			Help:    "Time spent running a pipeline job",
			Buckets: []float64{0.1, 0.5, 1, 2.5, 5, 10, 30, 60, 120},
		}, []string{"kind"}),
		QueueDepth: promauto.NewGauge(prometheus.GaugeOpts{
			Name: "docflow_pipeline_queue_depth",
			Help: "Jobs waiting in the pipeline queue",
		}),
		Rejected: promauto.NewCounter(prometheus.CounterOpts{
			Name: "docflow_pipeline_enqueue_rejected_total",
			Help: "Jobs refused because the pipeline was stopped",
		}),
		Overflow: promauto.NewCounter(prometheus.CounterOpts{
			Name: "docflow_pipeline_queue_overflow_total",
			Help: "Jobs queued past the configured backlog size",
		}),
		Recovered: promauto.NewCounterVec(prometheus.CounterOpts{
			Name: "docflow_pipeline_recovered_jobs_total",
			Help: "Jobs re-enqueued for documents found mid-pipeline at startup",
		}, []string{"kind"}),
	}
}

func (m *Metrics) observeJob(kind jobKind, result string, d time.Duration) {
	if m == nil {
		return
	}
	m.Jobs.WithLabelValues(string(kind), result).Inc()
	m.JobDuration.WithLabelValues(string(kind)).Observe(d.Seconds())
}

func (m *Metrics) setDepth(n int) {
	if m == nil {
		return
	}
	m.QueueDepth.Set(float64(n))
}

func (m *Metrics) incRejected() {
	if m == nil {
		return
	}
	m.Rejected.Inc()
}

func (m *Metrics) incOverflow() {
	if m == nil {
		return
	}
	m.Overflow.Inc()
}

func (m *Metrics) incRecovered(kind jobKind) {
	if m == nil {
		return
	}
	m.Recovered.WithLabelValues(string(kind)).Inc()
}
