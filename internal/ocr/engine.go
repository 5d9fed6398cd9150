// Package ocr extracts text from document content by running an ordered list
// of strategies with confidence-based fallback.
//
// Strategies run sequentially in priority order. The first one whose
// confidence reaches the threshold ends the run. When none does, every
// strategy is attempted and the highest-confidence output is kept. Errors and
// timeouts score zero and are recorded in Failures; only when no strategy
// produced any result does Extract return ErrOCRExhausted.
package ocr

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"

	"docflow/internal/blob"
	"docflow/internal/document/models"
	"docflow/pkg/requestcontext"
)

var tracer = otel.Tracer("docflow/ocr")

// ErrOCRExhausted means every strategy failed or timed out.
var ErrOCRExhausted = errors.New("ocr exhausted: no strategy produced a result")

// Content is the input to a strategy.
type Content struct {
	Data     []byte
	MimeType string
	Filename string
}

// Attempt is one strategy's output. Confidence is in [0,1].
type Attempt struct {
	Text       string  `json:"text"`
	Confidence float64 `json:"confidence"`
}

// Strategy is a single extraction technique.
type Strategy interface {
	Name() string
	Attempt(ctx context.Context, c Content) (Attempt, error)
}

const (
	DefaultThreshold      = 0.75
	defaultAttemptTimeout = 30 * time.Second
	defaultCacheTTL       = 24 * time.Hour
)

type Engine struct {
	strategies     []Strategy
	threshold      float64
	attemptTimeout time.Duration
	cache          Cache
	cacheTTL       time.Duration
	logger         *slog.Logger
	metrics        *Metrics
}

type Option func(*Engine)

func WithLogger(logger *slog.Logger) Option {
	return func(e *Engine) { e.logger = logger }
}

func WithMetrics(m *Metrics) Option {
	return func(e *Engine) { e.metrics = m }
}

func WithThreshold(t float64) Option {
	return func(e *Engine) {
		if t > 0 && t <= 1 {
			e.threshold = t
		}
	}
}

// WithAttemptTimeout bounds each strategy call.
func WithAttemptTimeout(d time.Duration) Option {
	return func(e *Engine) {
		if d > 0 {
			e.attemptTimeout = d
		}
	}
}

// WithCache memoizes successful attempts per content hash and strategy.
func WithCache(c Cache, ttl time.Duration) Option {
	return func(e *Engine) {
		e.cache = c
		if ttl > 0 {
			e.cacheTTL = ttl
		}
	}
}

// NewEngine builds an engine over strategies in priority order.
func NewEngine(strategies []Strategy, opts ...Option) (*Engine, error) {
	if len(strategies) == 0 {
		return nil, errors.New("at least one OCR strategy is required")
	}
	seen := make(map[string]struct{}, len(strategies))
	for _, s := range strategies {
		if s == nil {
			return nil, errors.New("nil OCR strategy")
		}
		if _, dup := seen[s.Name()]; dup {
			return nil, fmt.Errorf("duplicate OCR strategy %q", s.Name())
		}
		seen[s.Name()] = struct{}{}
	}
	e := &Engine{
		strategies:     strategies,
		threshold:      DefaultThreshold,
		attemptTimeout: defaultAttemptTimeout,
		cacheTTL:       defaultCacheTTL,
		logger:         slog.Default(),
	}
	for _, opt := range opts {
		opt(e)
	}
	return e, nil
}

// Threshold is the confidence at which a strategy's output is accepted.
func (e *Engine) Threshold() float64 { return e.threshold }

// Extract runs the strategies against c. On ErrOCRExhausted the returned
// result still lists every attempt and its failure.
func (e *Engine) Extract(ctx context.Context, c Content) (*models.OCRResult, error) {
	ctx, span := tracer.Start(ctx, "ocr.Extract")
	defer span.End()

	result := &models.OCRResult{
		Attempted: make([]string, 0, len(e.strategies)),
		Scores:    make(map[string]float64, len(e.strategies)),
		Failures:  make(map[string]string),
	}
	hash := blob.ContentHash(c.Data)

	var (
		best     Attempt
		bestName string
		produced bool
	)
	for _, s := range e.strategies {
		name := s.Name()
		start := time.Now()
		att, err := e.attempt(ctx, s, c, hash)
		e.metrics.observeAttempt(name, err, time.Since(start))

		result.Attempted = append(result.Attempted, name)
		if err != nil {
			result.Scores[name] = 0
			result.Failures[name] = err.Error()
			e.logger.WarnContext(ctx, "ocr strategy failed",
				"strategy", name,
				"error", err,
			)
			continue
		}

		result.Scores[name] = att.Confidence
		if !produced || better(att, best) {
			best, bestName = att, name
		}
		produced = true
		if att.Confidence >= e.threshold {
			break
		}
	}

	result.FallbackUsed = result.Scores[result.Attempted[0]] < e.threshold
	result.CompletedAt = requestcontext.Now(ctx)
	if len(result.Failures) == 0 {
		result.Failures = nil
	}
	span.SetAttributes(
		attribute.Int("ocr.attempted", len(result.Attempted)),
		attribute.Bool("ocr.fallback_used", result.FallbackUsed),
	)

	if !produced {
		e.metrics.observeOutcome("exhausted")
		return result, ErrOCRExhausted
	}
	result.Text = best.Text
	result.Selected = bestName
	if result.FallbackUsed {
		e.metrics.observeOutcome("fallback")
	} else {
		e.metrics.observeOutcome("primary")
	}
	return result, nil
}

// better orders by confidence, then text length. Earlier strategies win
// remaining ties because the caller only replaces on strictly better.
func better(a, b Attempt) bool {
	if a.Confidence != b.Confidence {
		return a.Confidence > b.Confidence
	}
	return len(a.Text) > len(b.Text)
}

func (e *Engine) attempt(ctx context.Context, s Strategy, c Content, hash string) (Attempt, error) {
	key := cacheKey(s.Name(), hash)
	if e.cache != nil {
		if cached, ok, err := e.cache.Get(ctx, key); err == nil && ok {
			return cached, nil
		}
	}

	att, err := e.run(ctx, s, c)
	if err != nil {
		return Attempt{}, err
	}
	att.Confidence = clamp(att.Confidence)

	if e.cache != nil {
		if err := e.cache.Set(ctx, key, att, e.cacheTTL); err != nil {
			e.logger.WarnContext(ctx, "ocr cache write failed", "strategy", s.Name(), "error", err)
		}
	}
	return att, nil
}

// run enforces the per-attempt timeout even for strategies that ignore ctx.
func (e *Engine) run(ctx context.Context, s Strategy, c Content) (Attempt, error) {
	attemptCtx, cancel := context.WithTimeout(ctx, e.attemptTimeout)
	defer cancel()

	type outcome struct {
		att Attempt
		err error
	}
	done := make(chan outcome, 1)
	go func() {
		att, err := s.Attempt(attemptCtx, c)
		done <- outcome{att, err}
	}()

	select {
	case out := <-done:
		return out.att, out.err
	case <-attemptCtx.Done():
		return Attempt{}, fmt.Errorf("strategy %s: %w", s.Name(), attemptCtx.Err())
	}
}

func clamp(v float64) float64 {
	switch {
	case v < 0:
		return 0
	case v > 1:
		return 1
	default:
		return v
	}
}
