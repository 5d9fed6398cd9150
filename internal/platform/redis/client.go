// Package redis opens the shared Redis connection used by the OCR cache and
// the upload rate limiter.
package redis

import (
	"context"
	"errors"
	"fmt"

	"github.com/redis/go-redis/v9"

	"docflow/internal/platform/config"
)

// Client embeds the go-redis client so stores can take *redis.Client directly.
type Client struct {
	*redis.Client
}

type Option func(*redis.Client)

// WithMetrics instruments every command and pipeline with m.
func WithMetrics(m *Metrics) Option {
	return func(c *redis.Client) {
		if m != nil {
			c.AddHook(commandHook{metrics: m})
		}
	}
}

// New connects to cfg.URL and verifies the connection with a ping. An empty
// URL means Redis is not configured and yields a nil client.
func New(ctx context.Context, cfg config.RedisConfig, opts ...Option) (*Client, error) {
	if cfg.URL == "" {
		return nil, nil
	}
	ropts, err := redis.ParseURL(cfg.URL)
	if err != nil {
		return nil, fmt.Errorf("parse redis URL: %w", err)
	}
	applyPool(ropts, cfg)

	rc := redis.NewClient(ropts)
	for _, opt := range opts {
		opt(rc)
	}
	c := &Client{Client: rc}
	if err := c.Health(ctx); err != nil {
		_ = rc.Close()
		return nil, err
	}
	return c, nil
}

// applyPool overrides URL-derived pool settings with non-zero config values.
func applyPool(o *redis.Options, cfg config.RedisConfig) {
	if cfg.PoolSize > 0 {
		o.PoolSize = cfg.PoolSize
	}
	if cfg.MinIdleConns > 0 {
		o.MinIdleConns = cfg.MinIdleConns
	}
	if cfg.DialTimeout > 0 {
		o.DialTimeout = cfg.DialTimeout
	}
	if cfg.ReadTimeout > 0 {
		o.ReadTimeout = cfg.ReadTimeout
	}
	if cfg.WriteTimeout > 0 {
		o.WriteTimeout = cfg.WriteTimeout
	}
}

func (c *Client) Health(ctx context.Context) error {
	if err := c.Ping(ctx).Err(); err != nil {
		return fmt.Errorf("redis ping: %w", err)
	}
	return nil
}

// commandResult classifies a command error. redis.Nil is a cache miss, not a
// failure.
func commandResult(err error) string {
	switch {
	case err == nil:
		return "ok"
	case errors.Is(err, redis.Nil):
		return "miss"
	default:
		return "error"
	}
}
