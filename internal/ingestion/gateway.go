// Package ingestion accepts uploaded files, stores their bytes and creates the
// initial document record. OCR is only scheduled here; Submit returns before
// any extraction runs.
package ingestion

import (
	"context"
	"errors"
	"log/slog"
	"strconv"
	"strings"
	"sync"
	"time"

	"github.com/gabriel-vasile/mimetype"

	"docflow/internal/audit"
	"docflow/internal/blob"
	"docflow/internal/document/models"
	"docflow/internal/platform/config"
	tenantmodels "docflow/internal/tenant/models"
	id "docflow/pkg/domain"
	dErrors "docflow/pkg/domain-errors"
	"docflow/pkg/platform/tx"
	"docflow/pkg/requestcontext"
)

// DocumentStore is the subset of document persistence used on upload.
type DocumentStore interface {
	Create(ctx context.Context, doc *models.Document) error
	UsageBytes(ctx context.Context, tenantID id.TenantID) (int64, error)
}

// Dispatcher schedules background OCR for a freshly created document.
type Dispatcher interface {
	EnqueueOCR(ctx context.Context, docID id.DocumentID) error
}

type Guard interface {
	Check(ctx context.Context, tc *tenantmodels.TenantContext, perm tenantmodels.Permission) error
}

type AuditEmitter interface {
	Emit(ctx context.Context, entry audit.Entry) error
}

// PageCounter returns the page count of a PDF, failing on malformed input.
type PageCounter func(data []byte) (int, error)

// SubmitRequest is one upload.
type SubmitRequest struct {
	Filename string
	MimeType string
	Size     int64
	Content  []byte
	Category string
	Metadata map[string]string
}

type Gateway struct {
	docs       DocumentStore
	blobs      blob.Store
	guard      Guard
	audit      AuditEmitter
	dispatcher Dispatcher
	policy     config.IngestionPolicy
	pages      PageCounter
	tx         tx.Runner
	logger     *slog.Logger
	metrics    *Metrics

	quotaMu    sync.Mutex
	tenantLock map[id.TenantID]*sync.Mutex
}

type Option func(*Gateway)

func WithLogger(logger *slog.Logger) Option {
	return func(g *Gateway) { g.logger = logger }
}

func WithMetrics(m *Metrics) Option {
	return func(g *Gateway) { g.metrics = m }
}

func WithPolicy(p config.IngestionPolicy) Option {
	return func(g *Gateway) { g.policy = p }
}

func WithPageCounter(pc PageCounter) Option {
	return func(g *Gateway) { g.pages = pc }
}

func WithTxRunner(r tx.Runner) Option {
	return func(g *Gateway) {
		if r != nil {
			g.tx = r
		}
	}
}

// New constructs a Gateway. All collaborators are required.
func New(docs DocumentStore, blobs blob.Store, guard Guard, auditor AuditEmitter, dispatcher Dispatcher, opts ...Option) (*Gateway, error) {
	if docs == nil {
		return nil, errors.New("document store is required")
	}
	if blobs == nil {
		return nil, errors.New("blob store is required")
	}
	if guard == nil {
		return nil, errors.New("guard is required")
	}
	if auditor == nil {
		return nil, errors.New("audit emitter is required")
	}
	if dispatcher == nil {
		return nil, errors.New("dispatcher is required")
	}
	g := &Gateway{
		docs:       docs,
		blobs:      blobs,
		guard:      guard,
		audit:      auditor,
		dispatcher: dispatcher,
		policy:     config.DefaultPolicy().Ingestion,
		pages:      CountPDFPages,
		tx:         tx.NoopRunner{},
		logger:     slog.Default(),
		tenantLock: make(map[id.TenantID]*sync.Mutex),
	}
	for _, opt := range opts {
		opt(g)
	}
	return g, nil
}

// Submit validates and stores an upload, creates the document at RECEBIDO
// and schedules OCR.
func (g *Gateway) Submit(ctx context.Context, tc *tenantmodels.TenantContext, req SubmitRequest) (*models.DocumentRef, error) {
	start := time.Now()
	ref, err := g.submit(ctx, tc, req)
	g.metrics.observe(err, req.Size, time.Since(start))
	return ref, err
}

func (g *Gateway) submit(ctx context.Context, tc *tenantmodels.TenantContext, req SubmitRequest) (*models.DocumentRef, error) {
	if err := g.guard.Check(ctx, tc, tenantmodels.PermDocumentsCreate); err != nil {
		return nil, err
	}

	mimeType, err := g.validate(req)
	if err != nil {
		return nil, err
	}

	metadata := make(map[string]string, len(req.Metadata)+1)
	for k, v := range req.Metadata {
		metadata[k] = v
	}
	if mimeType == "application/pdf" {
		n, err := g.pages(req.Content)
		if err != nil {
			return nil, dErrors.Wrap(err, dErrors.CodeValidation, "file is not a readable PDF")
		}
		metadata["pages"] = strconv.Itoa(n)
	}

	unlock := g.lockTenant(tc.TenantID)
	defer unlock()

	if err := g.checkQuota(ctx, tc.TenantID, req.Size); err != nil {
		return nil, err
	}

	storageRef, err := g.store(ctx, tc.TenantID, req.Content)
	if err != nil {
		return nil, err
	}

	now := requestcontext.Now(ctx)
	doc := &models.Document{
		ID:         id.NewDocumentID(),
		TenantID:   tc.TenantID,
		OwnerID:    tc.UserID,
		Filename:   strings.TrimSpace(req.Filename),
		MimeType:   mimeType,
		Size:       req.Size,
		StorageRef: storageRef.String(),
		Status:     models.StatusRecebido,
		Category:   strings.TrimSpace(req.Category),
		Metadata:   metadata,
		Version:    1,
		CreatedAt:  now,
		UpdatedAt:  now,
	}

	err = g.tx.RunInTx(ctx, func(ctx context.Context) error {
		if err := g.docs.Create(ctx, doc); err != nil {
			return err
		}
		return g.audit.Emit(ctx, audit.Entry{
			DocumentID: doc.ID,
			TenantID:   doc.TenantID,
			Actor:      tc.Actor(),
			Trigger:    audit.TriggerCreate,
			To:         string(models.StatusRecebido),
			Outcome:    audit.OutcomeApplied,
		})
	})
	if err != nil {
		return nil, dErrors.Wrap(err, dErrors.CodeInternal, "failed to create document")
	}

	g.logger.InfoContext(ctx, "document received",
		"document_id", doc.ID,
		"tenant_id", doc.TenantID,
		"mime_type", doc.MimeType,
		"size", doc.Size,
	)

	if err := g.dispatcher.EnqueueOCR(ctx, doc.ID); err != nil {
		g.logger.WarnContext(ctx, "failed to schedule OCR, recovered on next startup",
			"document_id", doc.ID,
			"error", err,
		)
	}

	return &models.DocumentRef{ID: doc.ID, Status: doc.Status}, nil
}

// validate checks the request shape and returns the canonical mime type.
func (g *Gateway) validate(req SubmitRequest) (string, error) {
	if len(req.Content) == 0 {
		return "", dErrors.New(dErrors.CodeValidation, "file content is empty")
	}
	if strings.TrimSpace(req.Filename) == "" {
		return "", dErrors.New(dErrors.CodeValidation, "filename is required")
	}
	if req.Size != int64(len(req.Content)) {
		return "", dErrors.Newf(dErrors.CodeValidation, "declared size %d does not match content length %d", req.Size, len(req.Content))
	}
	if err := models.ValidateMetadata(req.Metadata); err != nil {
		return "", err
	}

	declared := normalizeMime(req.MimeType)
	if !g.allowed(declared) {
		return "", dErrors.Newf(dErrors.CodeUnsupportedFormat, "mime type %q is not accepted", req.MimeType)
	}
	if req.Size > g.policy.MaxFileBytes {
		return "", dErrors.Newf(dErrors.CodePayloadTooLarge, "file exceeds the %d byte limit", g.policy.MaxFileBytes)
	}

	canonical := canonicalMime(declared)
	if detected := mimetype.Detect(req.Content); !detected.Is(canonical) {
		return "", dErrors.Newf(dErrors.CodeUnsupportedFormat, "content looks like %s, not %s", detected.String(), canonical)
	}
	return canonical, nil
}

func (g *Gateway) allowed(mimeType string) bool {
	for _, m := range g.policy.AllowedMimeTypes {
		if normalizeMime(m) == mimeType {
			return true
		}
	}
	return false
}

func (g *Gateway) checkQuota(ctx context.Context, tenantID id.TenantID, size int64) error {
	used, err := g.docs.UsageBytes(ctx, tenantID)
	if err != nil {
		return dErrors.Wrap(err, dErrors.CodeInternal, "failed to read tenant usage")
	}
	limit := g.quotaFor(tenantID)
	if used+size > limit {
		g.logger.InfoContext(ctx, "tenant quota exceeded",
			"tenant_id", tenantID,
			"used", used,
			"size", size,
			"limit", limit,
		)
		return dErrors.Newf(dErrors.CodeQuotaExceeded, "tenant storage quota of %d bytes exceeded", limit)
	}
	return nil
}

func (g *Gateway) quotaFor(tenantID id.TenantID) int64 {
	if q, ok := g.policy.QuotaOverrides[tenantID.String()]; ok && q > 0 {
		return q
	}
	return g.policy.DefaultQuotaBytes
}

func (g *Gateway) store(ctx context.Context, tenantID id.TenantID, data []byte) (blob.Ref, error) {
	timeout := g.policy.StorageTimeout.Duration
	if timeout <= 0 {
		timeout = 10 * time.Second
	}
	putCtx, cancel := context.WithTimeout(ctx, timeout)
	defer cancel()

	ref, err := g.blobs.Put(putCtx, blob.ContentKey(tenantID, data), data)
	if err != nil {
		g.logger.ErrorContext(ctx, "blob storage write failed",
			"tenant_id", tenantID,
			"error", err,
		)
		return "", dErrors.Wrap(err, dErrors.CodeUpstream, "document storage unavailable")
	}
	return ref, nil
}

// lockTenant serializes quota check and create per tenant within this process.
func (g *Gateway) lockTenant(tenantID id.TenantID) func() {
	g.quotaMu.Lock()
	mu, ok := g.tenantLock[tenantID]
	if !ok {
		mu = &sync.Mutex{}
		g.tenantLock[tenantID] = mu
	}
	g.quotaMu.Unlock()
	mu.Lock()
	return mu.Unlock
}

func normalizeMime(m string) string {
	m, _, _ = strings.Cut(m, ";")
	return strings.ToLower(strings.TrimSpace(m))
}

func canonicalMime(m string) string {
	if m == "image/jpg" {
		return "image/jpeg"
	}
	return m
}
