// Package service exposes tenant-scoped reads and edits of documents. Every
// operation takes an explicit TenantContext and is checked by the guard before
// any record is returned or changed.
package service

import (
	"context"
	"errors"
	"log/slog"

	"docflow/internal/audit"
	"docflow/internal/document/metrics"
	"docflow/internal/document/models"
	tenantmodels "docflow/internal/tenant/models"
	id "docflow/pkg/domain"
	dErrors "docflow/pkg/domain-errors"
	"docflow/pkg/platform/sentinel"
	"docflow/pkg/platform/tx"
	"docflow/pkg/requestcontext"
)

const (
	TriggerUpdateMetadata = "update_metadata"
	TriggerDelete         = "delete"

	defaultMaxConflictRetries = 3
)

type Store interface {
	Get(ctx context.Context, docID id.DocumentID) (*models.Document, error)
	Replace(ctx context.Context, doc *models.Document, expectedVersion int64) error
	List(ctx context.Context, filter models.Filter) ([]*models.Document, error)
	StatusCounts(ctx context.Context, tenantID *id.TenantID) (map[models.Status]int, error)
}

// AuditLog appends and reads audit entries.
type AuditLog interface {
	Emit(ctx context.Context, entry audit.Entry) error
	List(ctx context.Context, documentID id.DocumentID) ([]audit.Entry, error)
}

type Guard interface {
	Check(ctx context.Context, tc *tenantmodels.TenantContext, perm tenantmodels.Permission) error
	Authorize(ctx context.Context, tc *tenantmodels.TenantContext, perm tenantmodels.Permission, resourceTenant id.TenantID) error
	AuthorizeScope(ctx context.Context, tc *tenantmodels.TenantContext, perm tenantmodels.Permission, allTenants bool) (*id.TenantID, error)
}

type Service struct {
	docs               Store
	audit              AuditLog
	guard              Guard
	tx                 tx.Runner
	maxConflictRetries int
	logger             *slog.Logger
	metrics            *metrics.Metrics
}

type Option func(*Service)

func WithLogger(logger *slog.Logger) Option {
	return func(s *Service) { s.logger = logger }
}

func WithMetrics(m *metrics.Metrics) Option {
	return func(s *Service) { s.metrics = m }
}

// WithTxRunner makes each record write and its audit entry one transaction.
func WithTxRunner(r tx.Runner) Option {
	return func(s *Service) {
		if r != nil {
			s.tx = r
		}
	}
}

func WithMaxConflictRetries(n int) Option {
	return func(s *Service) {
		if n >= 0 {
			s.maxConflictRetries = n
		}
	}
}

func New(docs Store, auditLog AuditLog, guard Guard, opts ...Option) (*Service, error) {
	if docs == nil {
		return nil, errors.New("document store is required")
	}
	if auditLog == nil {
		return nil, errors.New("audit log is required")
	}
	if guard == nil {
		return nil, errors.New("guard is required")
	}
	s := &Service{
		docs:               docs,
		audit:              auditLog,
		guard:              guard,
		tx:                 tx.NoopRunner{},
		maxConflictRetries: defaultMaxConflictRetries,
		logger:             slog.Default(),
	}
	for _, opt := range opts {
		opt(s)
	}
	return s, nil
}

// Get returns one document of the caller's tenant. Tombstoned documents are
// not found.
func (s *Service) Get(ctx context.Context, tc *tenantmodels.TenantContext, docID id.DocumentID) (*models.Document, error) {
	doc, err := s.load(ctx, tc, tenantmodels.PermDocumentsRead, docID)
	s.observe("get", err)
	return doc, err
}

// List returns documents ordered by CreatedAt desc then ID asc. Cross-tenant
// listing requires documents:read_all_tenants.
func (s *Service) List(ctx context.Context, tc *tenantmodels.TenantContext, filter models.Filter) ([]*models.Document, error) {
	docs, err := s.list(ctx, tc, filter)
	s.observe("list", err)
	return docs, err
}

func (s *Service) list(ctx context.Context, tc *tenantmodels.TenantContext, filter models.Filter) ([]*models.Document, error) {
	scope, err := s.guard.AuthorizeScope(ctx, tc, tenantmodels.PermDocumentsRead, filter.AllTenants)
	if err != nil {
		return nil, err
	}
	filter.TenantID = scope
	if err := filter.Normalize(); err != nil {
		return nil, err
	}
	docs, err := s.docs.List(ctx, filter)
	if err != nil {
		return nil, dErrors.Wrap(err, dErrors.CodeInternal, "failed to list documents")
	}
	return docs, nil
}

// UpdateMetadata applies patch under the version check, retrying a bounded
// number of times when a pipeline write lands in between.
func (s *Service) UpdateMetadata(ctx context.Context, tc *tenantmodels.TenantContext, docID id.DocumentID, patch models.Patch) (*models.Document, error) {
	if err := s.guard.Check(ctx, tc, tenantmodels.PermDocumentsUpdate); err != nil {
		s.observe("update_metadata", err)
		return nil, err
	}
	if err := patch.Validate(); err != nil {
		s.observe("update_metadata", err)
		return nil, err
	}
	doc, err := s.write(ctx, tc, tenantmodels.PermDocumentsUpdate, docID, TriggerUpdateMetadata, func(d *models.Document) {
		patch.ApplyTo(d, requestcontext.Now(ctx))
	})
	s.observe("update_metadata", err)
	return doc, err
}

// Delete tombstones a document. Its blob is left for external reclamation.
func (s *Service) Delete(ctx context.Context, tc *tenantmodels.TenantContext, docID id.DocumentID) error {
	if err := s.guard.Check(ctx, tc, tenantmodels.PermDocumentsDelete); err != nil {
		s.observe("delete", err)
		return err
	}
	_, err := s.write(ctx, tc, tenantmodels.PermDocumentsDelete, docID, TriggerDelete, func(d *models.Document) {
		now := requestcontext.Now(ctx)
		d.DeletedAt = &now
		d.UpdatedAt = now
	})
	s.observe("delete", err)
	if err == nil {
		s.metrics.IncDeleted()
	}
	return err
}

// ListAudit returns the audit trail of a live document.
func (s *Service) ListAudit(ctx context.Context, tc *tenantmodels.TenantContext, docID id.DocumentID) ([]audit.Entry, error) {
	if _, err := s.load(ctx, tc, tenantmodels.PermAuditRead, docID); err != nil {
		s.observe("list_audit", err)
		return nil, err
	}
	entries, err := s.audit.List(ctx, docID)
	if err != nil {
		err = dErrors.Wrap(err, dErrors.CodeInternal, "failed to read audit trail")
	}
	s.observe("list_audit", err)
	return entries, err
}

// StatusCounts counts live documents per status for the caller's tenant, or
// for every tenant when allTenants is requested and permitted.
func (s *Service) StatusCounts(ctx context.Context, tc *tenantmodels.TenantContext, allTenants bool) (map[models.Status]int, error) {
	scope, err := s.guard.AuthorizeScope(ctx, tc, tenantmodels.PermDocumentsRead, allTenants)
	if err != nil {
		s.observe("status_counts", err)
		return nil, err
	}
	counts, err := s.docs.StatusCounts(ctx, scope)
	if err != nil {
		err = dErrors.Wrap(err, dErrors.CodeInternal, "failed to count documents")
	}
	s.observe("status_counts", err)
	return counts, err
}

func (s *Service) load(ctx context.Context, tc *tenantmodels.TenantContext, perm tenantmodels.Permission, docID id.DocumentID) (*models.Document, error) {
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
	return doc, nil
}

// write re-reads, mutates and replaces the document, auditing each applied
// change in the same transaction.
func (s *Service) write(ctx context.Context, tc *tenantmodels.TenantContext, perm tenantmodels.Permission, docID id.DocumentID, trigger string, mutate func(*models.Document)) (*models.Document, error) {
	var lastErr error
	for attempt := range s.maxConflictRetries + 1 {
		if attempt > 0 {
			s.metrics.IncConflictRetry()
		}
		doc, err := s.load(ctx, tc, perm, docID)
		if err != nil {
			return nil, err
		}
		expected := doc.Version
		updated := doc.Clone()
		mutate(updated)

		err = s.tx.RunInTx(ctx, func(ctx context.Context) error {
			if err := s.docs.Replace(ctx, updated, expected); err != nil {
				return err
			}
			return s.audit.Emit(ctx, audit.Entry{
				DocumentID: doc.ID,
				TenantID:   doc.TenantID,
				Actor:      tc.Actor(),
				Trigger:    trigger,
				From:       string(doc.Status),
				To:         string(updated.Status),
				Outcome:    audit.OutcomeApplied,
			})
		})
		if err == nil {
			s.logger.InfoContext(ctx, "document updated",
				"document_id", doc.ID,
				"tenant_id", doc.TenantID,
				"trigger", trigger,
				"actor", tc.Actor(),
			)
			return updated, nil
		}
		if !errors.Is(err, sentinel.ErrConflict) {
			return nil, translateStoreErr(err)
		}
		lastErr = err
	}
	return nil, dErrors.Wrap(lastErr, dErrors.CodeConflict, "document was modified concurrently; re-read and retry")
}

func (s *Service) observe(operation string, err error) {
	result := "ok"
	if err != nil {
		result = string(dErrors.CodeOf(err))
	}
	s.metrics.Observe(operation, result)
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
