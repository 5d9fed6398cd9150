package ratelimit

import (
	"errors"
	"log/slog"
	"net/http"
	"strconv"
	"time"

	"docflow/internal/platform/middleware"
	"docflow/pkg/platform/httputil"
)

// Middleware enforces a per-tenant request budget. Store failures fail open.
type Middleware struct {
	store    Store
	limit    int
	window   time.Duration
	logger   *slog.Logger
	metrics  *Metrics
	disabled bool
}

type Option func(*Middleware)

func WithLogger(logger *slog.Logger) Option {
	return func(m *Middleware) { m.logger = logger }
}

func WithMetrics(metrics *Metrics) Option {
	return func(m *Middleware) { m.metrics = metrics }
}

// WithDisabled turns every check into a pass-through.
func WithDisabled(disabled bool) Option {
	return func(m *Middleware) { m.disabled = disabled }
}

func New(store Store, limit int, window time.Duration, opts ...Option) (*Middleware, error) {
	if store == nil {
		return nil, errors.New("rate limit store is required")
	}
	if limit < 1 {
		return nil, errors.New("rate limit must be at least 1")
	}
	if window <= 0 {
		return nil, errors.New("rate limit window must be positive")
	}
	m := &Middleware{
		store:  store,
		limit:  limit,
		window: window,
		logger: slog.Default(),
	}
	for _, opt := range opts {
		opt(m)
	}
	return m, nil
}

// PerTenant limits requests by the caller's tenant. It must run after
// authentication; unauthenticated requests pass through.
func (m *Middleware) PerTenant(scope string) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			if m.disabled {
				next.ServeHTTP(w, r)
				return
			}
			ctx := r.Context()
			tc := middleware.TenantContext(ctx)
			if tc == nil {
				next.ServeHTTP(w, r)
				return
			}

			result, err := m.store.AllowN(ctx, key(scope, tc.TenantID.String()), 1, m.limit, m.window)
			if err != nil {
				m.metrics.observe(scope, "error")
				m.logger.ErrorContext(ctx, "rate limit check failed",
					"scope", scope,
					"tenant_id", tc.TenantID,
					"error", err,
				)
				next.ServeHTTP(w, r)
				return
			}

			addHeaders(w, result)
			if !result.Allowed {
				m.metrics.observe(scope, "rejected")
				m.logger.InfoContext(ctx, "rate limit exceeded",
					"scope", scope,
					"tenant_id", tc.TenantID,
				)
				w.Header().Set("Retry-After", strconv.Itoa(result.RetryAfter))
				httputil.WriteJSON(w, http.StatusTooManyRequests, &ExceededResponse{
					Error:      "rate_limit_exceeded",
					Message:    "Too many requests for this tenant. Please try again later.",
					RetryAfter: result.RetryAfter,
				})
				return
			}
			m.metrics.observe(scope, "allowed")
			next.ServeHTTP(w, r)
		})
	}
}

func addHeaders(w http.ResponseWriter, result *Result) {
	w.Header().Set("X-RateLimit-Limit", strconv.Itoa(result.Limit))
	w.Header().Set("X-RateLimit-Remaining", strconv.Itoa(result.Remaining))
	w.Header().Set("X-RateLimit-Reset", strconv.FormatInt(result.ResetAt.Unix(), 10))
}
