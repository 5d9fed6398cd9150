// Package workflow is the document state machine. Every state change goes
// through Service, which consults the explicit transition table, writes the
// new record with an optimistic version check and appends exactly one audit
// entry per attempt.
package workflow

import (
	"context"
	"errors"
	"log/slog"

	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"

	"docflow/internal/audit"
	"docflow/internal/document/models"
	tenantmodels "docflow/internal/tenant/models"
	id "docflow/pkg/domain"
	dErrors "docflow/pkg/domain-errors"
	"docflow/pkg/platform/sentinel"
	"docflow/pkg/platform/tx"
	"docflow/pkg/requestcontext"
)

var tracer = otel.Tracer("docflow/workflow")

// DocumentStore is the persistence port used by the state machine.
type DocumentStore interface {
	Get(ctx context.Context, docID id.DocumentID) (*models.Document, error)
	Replace(ctx context.Context, doc *models.Document, expectedVersion int64) error
}

// AuditEmitter appends audit entries.
type AuditEmitter interface {
	Emit(ctx context.Context, entry audit.Entry) error
}

// Guard authorizes user-fired triggers.
type Guard interface {
	Check(ctx context.Context, tc *tenantmodels.TenantContext, perm tenantmodels.Permission) error
	Authorize(ctx context.Context, tc *tenantmodels.TenantContext, perm tenantmodels.Permission, resourceTenant id.TenantID) error
}

const defaultMaxConflictRetries = 3

type Service struct {
	docs               DocumentStore
	audit              AuditEmitter
	guard              Guard
	table              *Table
	tx                 tx.Runner
	maxConflictRetries int
	logger             *slog.Logger
	metrics            *Metrics
}

type Option func(*Service)

func WithLogger(logger *slog.Logger) Option {
	return func(s *Service) { s.logger = logger }
}

func WithMetrics(m *Metrics) Option {
	return func(s *Service) { s.metrics = m }
}

// WithTxRunner makes the record replace and its audit entry one transaction.
func WithTxRunner(r tx.Runner) Option {
	return func(s *Service) {
		if r != nil {
			s.tx = r
		}
	}
}

// WithAdvanceOnNeedsReview routes NEEDS_REVIEW analyses to PAGO_A_CONCILIAR.
func WithAdvanceOnNeedsReview(advance bool) Option {
	return func(s *Service) { s.table = NewTable(advance) }
}

// WithMaxConflictRetries bounds how often a pipeline write is retried after
// losing a version race.
func WithMaxConflictRetries(n int) Option {
	return func(s *Service) {
		if n >= 0 {
			s.maxConflictRetries = n
		}
	}
}

func New(docs DocumentStore, auditor AuditEmitter, guard Guard, opts ...Option) *Service {
	s := &Service{
		docs:               docs,
		audit:              auditor,
		guard:              guard,
		table:              NewTable(false),
		tx:                 tx.NoopRunner{},
		maxConflictRetries: defaultMaxConflictRetries,
		logger:             slog.Default(),
	}
	for _, opt := range opts {
		opt(s)
	}
	return s
}

// Transition fires a user trigger. A pipeline trigger is refused as an
// invalid transition and audited like any other refused pair; a lost version
// race returns a conflict error and the caller must re-read.
func (s *Service) Transition(ctx context.Context, tc *tenantmodels.TenantContext, docID id.DocumentID, raw string) (*models.Document, error) {
	ctx, span := tracer.Start(ctx, "workflow.Transition")
	defer span.End()

	trigger, ok := ParseTrigger(raw)
	if !ok {
		return nil, dErrors.Newf(dErrors.CodeValidation, "unknown trigger %q", raw)
	}
	span.SetAttributes(attribute.String("workflow.trigger", string(trigger)))

	perm, userTrigger := trigger.Permission()
	if !userTrigger {
		perm = tenantmodels.PermDocumentsRead
	}
	if err := s.guard.Check(ctx, tc, perm); err != nil {
		return nil, err
	}

	doc, err := s.docs.Get(ctx, docID)
	if err != nil {
		return nil, translateStoreErr(err)
	}
	if err := s.guard.Authorize(ctx, tc, perm, doc.TenantID); err != nil {
		return nil, err
	}
	if !userTrigger {
		return nil, s.reject(ctx, audit.Entry{
			DocumentID: doc.ID,
			TenantID:   doc.TenantID,
			Actor:      tc.Actor(),
			Trigger:    string(trigger),
			From:       string(doc.Status),
		}, "trigger is reserved for the pipeline")
	}

	updated, err := s.attempt(ctx, doc, trigger, tc.Actor(), nil)
	if err != nil {
		span.RecordError(err)
		span.SetStatus(codes.Error, err.Error())
		return nil, err
	}
	return updated, nil
}

// ApplySystem fires a pipeline trigger. mutate attaches the stage's results
// to the record and is applied in the same versioned write as the status
// change. Conflicts with concurrent edits are retried a bounded number of
// times; a deleted document yields a not-found error so the caller can
// discard its result.
func (s *Service) ApplySystem(ctx context.Context, docID id.DocumentID, trigger Trigger, mutate func(*models.Document)) (*models.Document, error) {
	ctx, span := tracer.Start(ctx, "workflow.ApplySystem")
	defer span.End()
	span.SetAttributes(attribute.String("workflow.trigger", string(trigger)))

	if !trigger.IsSystem() {
		return nil, dErrors.Newf(dErrors.CodeInvariantViolation, "trigger %q is not a pipeline trigger", trigger)
	}

	var lastErr error
	for range s.maxConflictRetries + 1 {
		doc, err := s.docs.Get(ctx, docID)
		if err != nil {
			return nil, translateStoreErr(err)
		}
		updated, err := s.attempt(ctx, doc, trigger, trigger.SystemActor(), mutate)
		if err == nil {
			return updated, nil
		}
		if !dErrors.HasCode(err, dErrors.CodeConflict) {
			span.RecordError(err)
			return nil, err
		}
		lastErr = err
	}
	span.SetStatus(codes.Error, "conflict retries exhausted")
	return nil, lastErr
}

// attempt runs one transition attempt against doc as read, producing exactly
// one audit entry.
func (s *Service) attempt(ctx context.Context, doc *models.Document, trigger Trigger, actor string, mutate func(*models.Document)) (*models.Document, error) {
	entry := audit.Entry{
		DocumentID: doc.ID,
		TenantID:   doc.TenantID,
		Actor:      actor,
		Trigger:    string(trigger),
		From:       string(doc.Status),
	}

	to, ok := s.table.Next(doc.Status, trigger)
	if !ok {
		return nil, s.reject(ctx, entry, "transition not allowed")
	}

	expected := doc.Version
	updated := doc.Clone()
	if mutate != nil {
		mutate(updated)
	}
	updated.Status = to
	updated.UpdatedAt = requestcontext.Now(ctx)

	entry.To = string(to)
	entry.Outcome = audit.OutcomeApplied
	err := s.tx.RunInTx(ctx, func(ctx context.Context) error {
		if err := s.docs.Replace(ctx, updated, expected); err != nil {
			return err
		}
		return s.audit.Emit(ctx, entry)
	})
	switch {
	case err == nil:
		s.metrics.observe(trigger, string(audit.OutcomeApplied))
		s.logger.InfoContext(ctx, "workflow transition applied",
			"document_id", doc.ID,
			"tenant_id", doc.TenantID,
			"from", doc.Status,
			"to", to,
			"trigger", trigger,
			"actor", actor,
		)
		return updated, nil
	case errors.Is(err, sentinel.ErrConflict):
		entry.To = ""
		entry.Outcome = audit.OutcomeConflict
		entry.Reason = "document modified concurrently"
		if auditErr := s.audit.Emit(ctx, entry); auditErr != nil {
			return nil, dErrors.Wrap(auditErr, dErrors.CodeInternal, "failed to record audit entry")
		}
		s.metrics.observe(trigger, string(audit.OutcomeConflict))
		return nil, dErrors.Wrap(err, dErrors.CodeConflict, "document was modified concurrently; re-read and retry")
	default:
		return nil, translateStoreErr(err)
	}
}

// reject records a refused attempt and returns the invalid transition error.
func (s *Service) reject(ctx context.Context, entry audit.Entry, reason string) error {
	trigger := Trigger(entry.Trigger)
	entry.Outcome = audit.OutcomeRejected
	entry.Reason = reason
	if err := s.audit.Emit(ctx, entry); err != nil {
		return dErrors.Wrap(err, dErrors.CodeInternal, "failed to record audit entry")
	}
	s.metrics.observe(trigger, string(audit.OutcomeRejected))
	s.logger.InfoContext(ctx, "workflow transition rejected",
		"document_id", entry.DocumentID,
		"from", entry.From,
		"trigger", trigger,
		"reason", reason,
	)
	return dErrors.Newf(dErrors.CodeInvalidTransition, "cannot %s a document in %s", trigger, entry.From)
}

func translateStoreErr(err error) error {
	switch {
	case errors.Is(err, sentinel.ErrNotFound):
		return dErrors.Wrap(err, dErrors.CodeNotFound, "document not found")
	case errors.Is(err, sentinel.ErrConflict):
		return dErrors.Wrap(err, dErrors.CodeConflict, "document was modified concurrently")
	default:
		var de *dErrors.Error
		if errors.As(err, &de) {
			return err
		}
		return dErrors.Wrap(err, dErrors.CodeInternal, "failed to persist document")
	}
}
