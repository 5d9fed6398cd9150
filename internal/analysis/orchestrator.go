// Package analysis fans extracted text out to several AI providers and
// reconciles their answers into one validated result.
//
// Providers run concurrently under one overall deadline; each call also has
// its own timeout and a bounded number of retries with exponential backoff.
// A per-provider circuit breaker, owned by the Orchestrator, skips providers
// that keep failing until their cooldown has elapsed.
package analysis

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"sync"
	"time"

	"github.com/cenkalti/backoff/v4"
	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"golang.org/x/sync/errgroup"

	"docflow/internal/document/models"
	"docflow/pkg/platform/circuit"
	"docflow/pkg/requestcontext"
)

var tracer = otel.Tracer("docflow/analysis")

const (
	defaultThreshold        = 0.7
	defaultQuorum           = 1
	defaultDeadline         = 45 * time.Second
	defaultProviderTimeout  = 20 * time.Second
	defaultMaxRetries       = 2
	defaultBreakerThreshold = 3
	defaultBreakerCooldown  = time.Minute
	defaultInitialBackoff   = 200 * time.Millisecond
)

type Orchestrator struct {
	providers       []Provider
	breakers        map[string]*circuit.Breaker
	rec             reconciler
	deadline        time.Duration
	providerTimeout time.Duration
	maxRetries      int
	initialBackoff  time.Duration
	logger          *slog.Logger
	metrics         *Metrics

	breakerThreshold int
	breakerCooldown  time.Duration
	clock            func() time.Time
}

type Option func(*Orchestrator)

func WithLogger(logger *slog.Logger) Option {
	return func(o *Orchestrator) { o.logger = logger }
}

func WithMetrics(m *Metrics) Option {
	return func(o *Orchestrator) { o.metrics = m }
}

// WithThreshold sets the consensus confidence needed for VALID.
func WithThreshold(t float64) Option {
	return func(o *Orchestrator) { o.rec.threshold = t }
}

// WithQuorum sets the minimum number of responders for VALID.
func WithQuorum(n int) Option {
	return func(o *Orchestrator) {
		if n > 0 {
			o.rec.quorum = n
		}
	}
}

// WithPrecedence sets per-field provider precedence lists.
func WithPrecedence(p map[string][]string) Option {
	return func(o *Orchestrator) { o.rec.precedence = p }
}

// WithDeadline bounds the whole fan-out.
func WithDeadline(d time.Duration) Option {
	return func(o *Orchestrator) {
		if d > 0 {
			o.deadline = d
		}
	}
}

// WithProviderTimeout bounds each provider call attempt.
func WithProviderTimeout(d time.Duration) Option {
	return func(o *Orchestrator) {
		if d > 0 {
			o.providerTimeout = d
		}
	}
}

func WithMaxRetries(n int) Option {
	return func(o *Orchestrator) {
		if n >= 0 {
			o.maxRetries = n
		}
	}
}

// WithInitialBackoff sets the first retry interval.
func WithInitialBackoff(d time.Duration) Option {
	return func(o *Orchestrator) {
		if d > 0 {
			o.initialBackoff = d
		}
	}
}

// WithBreaker configures the per-provider breakers.
func WithBreaker(threshold int, cooldown time.Duration) Option {
	return func(o *Orchestrator) {
		o.breakerThreshold = threshold
		o.breakerCooldown = cooldown
	}
}

// WithClock overrides the breakers' time source.
func WithClock(now func() time.Time) Option {
	return func(o *Orchestrator) { o.clock = now }
}

func New(providers []Provider, opts ...Option) (*Orchestrator, error) {
	if len(providers) == 0 {
		return nil, errors.New("at least one analysis provider is required")
	}
	o := &Orchestrator{
		providers:        providers,
		rec:              reconciler{threshold: defaultThreshold, quorum: defaultQuorum},
		deadline:         defaultDeadline,
		providerTimeout:  defaultProviderTimeout,
		maxRetries:       defaultMaxRetries,
		initialBackoff:   defaultInitialBackoff,
		logger:           slog.Default(),
		breakerThreshold: defaultBreakerThreshold,
		breakerCooldown:  defaultBreakerCooldown,
		clock:            time.Now,
	}
	for _, opt := range opts {
		opt(o)
	}

	o.breakers = make(map[string]*circuit.Breaker, len(providers))
	for _, p := range providers {
		if p == nil || p.Name() == "" {
			return nil, errors.New("analysis providers must be non-nil and named")
		}
		if _, dup := o.breakers[p.Name()]; dup {
			return nil, fmt.Errorf("duplicate analysis provider %q", p.Name())
		}
		o.breakers[p.Name()] = circuit.New(p.Name(),
			circuit.WithFailureThreshold(o.breakerThreshold),
			circuit.WithSuccessThreshold(1),
			circuit.WithCooldown(o.breakerCooldown),
			circuit.WithClock(o.clock),
		)
	}
	return o, nil
}

// BreakerState exposes a provider's breaker state.
func (o *Orchestrator) BreakerState(provider string) circuit.State {
	if b, ok := o.breakers[provider]; ok {
		return b.State()
	}
	return ""
}

type outcome struct {
	result models.ProviderResult
	err    error
}

// Analyze fans req out to every provider and reconciles whatever arrived
// before the deadline. With zero responders the returned analysis is
// UNDETERMINED and the error is ErrAnalysisUnavailable.
func (o *Orchestrator) Analyze(ctx context.Context, req Request) (*models.AIAnalysis, error) {
	ctx, span := tracer.Start(ctx, "analysis.Analyze")
	defer span.End()

	fanCtx, cancel := context.WithTimeout(ctx, o.deadline)
	defer cancel()

	var (
		mu       sync.Mutex
		outcomes = make(map[string]outcome, len(o.providers))
		g        errgroup.Group
	)
	for _, p := range o.providers {
		g.Go(func() error {
			res, err := o.call(fanCtx, p, req)
			mu.Lock()
			outcomes[p.Name()] = outcome{res, err}
			mu.Unlock()
			return nil
		})
	}
	_ = g.Wait()

	results := make(map[string]models.ProviderResult, len(outcomes))
	failures := make(map[string]string)
	for name, out := range outcomes {
		if out.err != nil {
			failures[name] = out.err.Error()
			continue
		}
		results[name] = out.result
	}

	analysis := o.rec.reconcile(results, failures)
	analysis.CompletedAt = requestcontext.Now(ctx)
	o.metrics.observeOutcome(analysis.ValidationStatus)
	span.SetAttributes(
		attribute.Int("analysis.responders", len(results)),
		attribute.String("analysis.validation_status", string(analysis.ValidationStatus)),
	)

	if len(results) == 0 {
		o.logger.WarnContext(ctx, "no analysis provider responded", "failures", failures)
		return analysis, ErrAnalysisUnavailable
	}
	if len(failures) > 0 {
		o.logger.InfoContext(ctx, "analysis completed with degraded providers",
			"responders", len(results),
			"failed", len(failures),
		)
	}
	return analysis, nil
}

// call runs one provider behind its breaker with bounded retries.
func (o *Orchestrator) call(ctx context.Context, p Provider, req Request) (models.ProviderResult, error) {
	name := p.Name()
	breaker := o.breakers[name]
	if !breaker.Allow() {
		o.metrics.observeCall(name, "circuit_open")
		return models.ProviderResult{}, NewProviderError(ErrorCircuitOpen, name, "circuit open", nil)
	}

	var result models.ProviderResult
	attempts := 0
	op := func() error {
		attempts++
		res, err := o.invoke(ctx, p, req)
		if err == nil {
			result = res
			return nil
		}
		if !IsRetryable(err) || ctx.Err() != nil {
			return backoff.Permanent(err)
		}
		o.logger.DebugContext(ctx, "retrying analysis provider", "provider", name, "attempt", attempts, "error", err)
		return err
	}

	eb := backoff.NewExponentialBackOff()
	eb.InitialInterval = o.initialBackoff
	eb.MaxElapsedTime = 0
	err := backoff.Retry(op, backoff.WithContext(backoff.WithMaxRetries(eb, uint64(o.maxRetries)), ctx))
	if err != nil {
		if _, change := breaker.RecordFailure(); change.Opened {
			o.logger.WarnContext(ctx, "analysis provider circuit opened", "provider", name)
		}
		o.metrics.observeCall(name, string(CategoryOf(err)))
		return models.ProviderResult{}, err
	}
	if _, change := breaker.RecordSuccess(); change.Closed {
		o.logger.InfoContext(ctx, "analysis provider circuit closed", "provider", name)
	}
	o.metrics.observeCall(name, "ok")
	return result, nil
}

// invoke runs a single attempt under the per-provider timeout, returning
// when the timeout fires even if the provider ignores ctx.
func (o *Orchestrator) invoke(ctx context.Context, p Provider, req Request) (models.ProviderResult, error) {
	callCtx, cancel := context.WithTimeout(ctx, o.providerTimeout)
	defer cancel()

	done := make(chan outcome, 1)
	go func() {
		res, err := p.Analyze(callCtx, req)
		done <- outcome{res, err}
	}()

	select {
	case out := <-done:
		if out.err != nil {
			var pe *ProviderError
			if !errors.As(out.err, &pe) {
				return models.ProviderResult{}, classify(callCtx, p.Name(), out.err)
			}
			return models.ProviderResult{}, out.err
		}
		normalizeFields(out.result.Fields)
		out.result.Confidence = clamp(out.result.Confidence)
		return out.result, nil
	case <-callCtx.Done():
		return models.ProviderResult{}, classify(callCtx, p.Name(), callCtx.Err())
	}
}

func classify(ctx context.Context, provider string, err error) error {
	if errors.Is(err, context.DeadlineExceeded) || errors.Is(ctx.Err(), context.DeadlineExceeded) {
		return NewProviderError(ErrorTimeout, provider, "call timed out", err)
	}
	return NewProviderError(ErrorProviderOutage, provider, "call failed", err)
}
