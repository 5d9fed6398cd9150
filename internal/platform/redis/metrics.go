package redis

import (
	"context"
	"net"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
	"github.com/redis/go-redis/v9"
)

type Metrics struct {
	CommandDuration *prometheus.HistogramVec
}

func NewMetrics() *Metrics {
	return newMetrics(promauto.With(prometheus.DefaultRegisterer))
}

func newMetrics(f promauto.Factory) *Metrics {
	return &Metrics{
		CommandDuration: f.NewHistogramVec(prometheus.HistogramOpts{
			Name:    "docflow_redis_command_duration_seconds",
			Help:    "Redis command latency by command name and result",
			Buckets: []float64{.0005, .001, .0025, .005, .01, .025, .05, .1, .25, .5, 1},
		}, []string{"command", "result"}),
	}
}

func (m *Metrics) observe(command string, err error, elapsed time.Duration) {
	if m == nil {
		return
	}
	m.CommandDuration.WithLabelValues(command, commandResult(err)).Observe(elapsed.Seconds())
}

type commandHook struct {
	metrics *Metrics
}

func (h commandHook) DialHook(next redis.DialHook) redis.DialHook {
	return func(ctx context.Context, network, addr string) (net.Conn, error) {
		return next(ctx, network, addr)
	}
}

func (h commandHook) ProcessHook(next redis.ProcessHook) redis.ProcessHook {
	return func(ctx context.Context, cmd redis.Cmder) error {
		start := time.Now()
		err := next(ctx, cmd)
		h.metrics.observe(cmd.Name(), err, time.Since(start))
		return err
	}
}

func (h commandHook) ProcessPipelineHook(next redis.ProcessPipelineHook) redis.ProcessPipelineHook {
	return func(ctx context.Context, cmds []redis.Cmder) error {
		start := time.Now()
		err := next(ctx, cmds)
		h.metrics.observe("pipeline", err, time.Since(start))
		return err
	}
}
