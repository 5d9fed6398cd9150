package audit

import (
	"context"
	"fmt"
	"log/slog"
	"time"

	id "docflow/pkg/domain"
	"docflow/pkg/platform/circuit"
	"docflow/pkg/platform/tx"
	"docflow/pkg/requestcontext"
)

const defaultStreamTimeout = 2 * time.Second

// Publisher writes audit entries with fail-closed semantics: the store append
// is synchronous and its error fails the calling operation. Streaming to
// downstream consumers is best effort, guarded by a circuit breaker, and
// happens only after the surrounding unit of work commits.
type Publisher struct {
	store         Store
	stream        Stream
	breaker       *circuit.Breaker
	streamTimeout time.Duration
	logger        *slog.Logger
	metrics       *Metrics
}

type Option func(*Publisher)

func WithLogger(logger *slog.Logger) Option {
	return func(p *Publisher) { p.logger = logger }
}

func WithMetrics(m *Metrics) Option {
	return func(p *Publisher) { p.metrics = m }
}

// WithStream enables best-effort publishing of every persisted entry.
func WithStream(s Stream) Option {
	return func(p *Publisher) { p.stream = s }
}

func New(store Store, opts ...Option) *Publisher {
	p := &Publisher{
		store:         store,
		breaker:       circuit.New("audit-stream", circuit.WithFailureThreshold(5), circuit.WithSuccessThreshold(1), circuit.WithCooldown(time.Minute)),
		streamTimeout: defaultStreamTimeout,
	}
	for _, opt := range opts {
		opt(p)
	}
	return p
}

// Emit persists entry. ID, Timestamp and RequestID are filled from ctx when
// unset. When ctx carries a unit of work the entry is streamed after commit.
func (p *Publisher) Emit(ctx context.Context, entry Entry) error {
	if entry.DocumentID.IsNil() {
		return fmt.Errorf("audit entry requires DocumentID")
	}
	if entry.Trigger == "" || entry.Outcome == "" {
		return fmt.Errorf("audit entry requires Trigger and Outcome")
	}
	if entry.ID.IsNil() {
		entry.ID = id.NewAuditEntryID()
	}
	if entry.Timestamp.IsZero() {
		entry.Timestamp = requestcontext.Now(ctx)
	}
	if entry.RequestID == "" {
		entry.RequestID = requestcontext.RequestID(ctx)
	}

	start := time.Now()
	if err := p.store.Append(ctx, entry); err != nil {
		if p.metrics != nil {
			p.metrics.PersistFailures.Inc()
		}
		if p.logger != nil {
			p.logger.ErrorContext(ctx, "audit persistence failed",
				"document_id", entry.DocumentID,
				"trigger", entry.Trigger,
				"outcome", entry.Outcome,
				"error", err,
			)
		}
		return fmt.Errorf("audit persistence failed: %w", err)
	}
	if p.metrics != nil {
		p.metrics.PersistDuration.Observe(time.Since(start).Seconds())
		p.metrics.Emitted.WithLabelValues(string(entry.Outcome)).Inc()
	}

	tx.AfterCommit(ctx, func(ctx context.Context) {
		p.publish(ctx, entry)
	})
	return nil
}

// List returns the trail for one document in append order.
func (p *Publisher) List(ctx context.Context, documentID id.DocumentID) ([]Entry, error) {
	return p.store.ListByDocument(ctx, documentID)
}

func (p *Publisher) publish(ctx context.Context, entry Entry) {
	if p.stream == nil {
		return
	}
	if !p.breaker.Allow() {
		if p.metrics != nil {
			p.metrics.StreamDropped.Inc()
		}
		return
	}

	streamCtx, cancel := context.WithTimeout(context.WithoutCancel(ctx), p.streamTimeout)
	defer cancel()
	if err := p.stream.Publish(streamCtx, entry); err != nil {
		_, change := p.breaker.RecordFailure()
		if p.metrics != nil {
			p.metrics.StreamFailures.Inc()
		}
		if p.logger != nil {
			p.logger.WarnContext(ctx, "audit stream publish failed",
				"document_id", entry.DocumentID,
				"breaker_opened", change.Opened,
				"error", err,
			)
		}
		return
	}
	p.breaker.RecordSuccess()
}
