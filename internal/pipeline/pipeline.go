// Package pipeline runs the asynchronous half of document processing. An OCR
// job extracts text and moves the document out of RECEBIDO; on success it
// schedules an analysis job whose verdict moves the document out of
// VALIDANDO. Both stages attach their results in the same versioned write as
// their transition, and a document deleted while a job is in flight has the
// job's result discarded.
package pipeline

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/trace"

	"docflow/internal/analysis"
	"docflow/internal/blob"
	"docflow/internal/document/models"
	"docflow/internal/ocr"
	"docflow/internal/workflow"
	id "docflow/pkg/domain"
	dErrors "docflow/pkg/domain-errors"
	"docflow/pkg/platform/sentinel"
	"docflow/pkg/requestcontext"
)

var tracer = otel.Tracer("docflow/pipeline")

const (
	defaultWorkers     = 4
	defaultQueueSize   = 1024
	defaultBlobTimeout = 10 * time.Second
)

type DocumentStore interface {
	Get(ctx context.Context, docID id.DocumentID) (*models.Document, error)
	List(ctx context.Context, filter models.Filter) ([]*models.Document, error)
}

type Extractor interface {
	Extract(ctx context.Context, c ocr.Content) (*models.OCRResult, error)
}

type Analyzer interface {
	Analyze(ctx context.Context, req analysis.Request) (*models.AIAnalysis, error)
}

// Workflow applies pipeline triggers.
type Workflow interface {
	ApplySystem(ctx context.Context, docID id.DocumentID, trigger workflow.Trigger, mutate func(*models.Document)) (*models.Document, error)
}

type jobKind string

const (
	jobOCR      jobKind = "ocr"
	jobAnalysis jobKind = "analysis"
)

type job struct {
	kind      jobKind
	docID     id.DocumentID
	requestID string
}

type Pipeline struct {
	docs        DocumentStore
	blobs       blob.Store
	extractor   Extractor
	analyzer    Analyzer
	workflow    Workflow
	pool        *pool
	workers     int
	queueSize   int
	blobTimeout time.Duration
	logger      *slog.Logger
	metrics     *Metrics
}

type Option func(*Pipeline)

func WithLogger(logger *slog.Logger) Option {
	return func(p *Pipeline) { p.logger = logger }
}

func WithMetrics(m *Metrics) Option {
	return func(p *Pipeline) { p.metrics = m }
}

// WithWorkers sets the number of concurrent jobs.
func WithWorkers(n int) Option {
	return func(p *Pipeline) {
		if n > 0 {
			p.workers = n
		}
	}
}

// WithQueueSize sets the backlog size past which queued jobs are counted as
// overflow. Overflowing jobs are still queued.
func WithQueueSize(n int) Option {
	return func(p *Pipeline) {
		if n > 0 {
			p.queueSize = n
		}
	}
}

func WithBlobTimeout(d time.Duration) Option {
	return func(p *Pipeline) {
		if d > 0 {
			p.blobTimeout = d
		}
	}
}

func New(docs DocumentStore, blobs blob.Store, extractor Extractor, analyzer Analyzer, wf Workflow, opts ...Option) (*Pipeline, error) {
	if docs == nil {
		return nil, errors.New("document store is required")
	}
	if blobs == nil {
		return nil, errors.New("blob store is required")
	}
	if extractor == nil || analyzer == nil {
		return nil, errors.New("extractor and analyzer are required")
	}
	if wf == nil {
		return nil, errors.New("workflow is required")
	}
	p := &Pipeline{
		docs:        docs,
		blobs:       blobs,
		extractor:   extractor,
		analyzer:    analyzer,
		workflow:    wf,
		workers:     defaultWorkers,
		queueSize:   defaultQueueSize,
		blobTimeout: defaultBlobTimeout,
		logger:      slog.Default(),
	}
	for _, opt := range opts {
		opt(p)
	}
	p.pool = newPool(p.workers, p.queueSize, p.run)
	return p, nil
}

// Start launches the workers. Jobs enqueued before Start wait in the queue.
func (p *Pipeline) Start(ctx context.Context) {
	p.pool.start(context.WithoutCancel(ctx))
	p.logger.InfoContext(ctx, "pipeline started", "workers", p.workers, "queue_size", p.queueSize)
}

// Stop refuses new work and waits for queued jobs to finish.
func (p *Pipeline) Stop() {
	p.pool.stop()
}

// EnqueueOCR schedules text extraction for a freshly ingested document.
func (p *Pipeline) EnqueueOCR(ctx context.Context, docID id.DocumentID) error {
	return p.enqueue(job{kind: jobOCR, docID: docID, requestID: requestcontext.RequestID(ctx)})
}

func (p *Pipeline) enqueue(j job) error {
	overflow, err := p.pool.submit(j)
	if err != nil {
		p.metrics.incRejected()
		return fmt.Errorf("enqueue %s job: %w", j.kind, err)
	}
	if overflow {
		p.metrics.incOverflow()
		p.logger.Warn("pipeline backlog over limit", "kind", j.kind, "document_id", j.docID, "queue_size", p.queueSize)
	}
	p.metrics.setDepth(p.pool.depth())
	return nil
}

// Recover re-enqueues every live document left mid-pipeline by a previous
// process: RECEBIDO documents get an OCR job and VALIDANDO documents an
// analysis job. Call it once after Start and before accepting uploads.
// Results for documents another process already moved on are discarded by
// the versioned workflow write.
func (p *Pipeline) Recover(ctx context.Context) (int, error) {
	var pending []job
	for _, stage := range []struct {
		status models.Status
		kind   jobKind
	}{
		{models.StatusRecebido, jobOCR},
		{models.StatusValidando, jobAnalysis},
	} {
		status := stage.status
		for offset := 0; ; offset += models.MaxListLimit {
			docs, err := p.docs.List(ctx, models.Filter{
				Status:     &status,
				AllTenants: true,
				Limit:      models.MaxListLimit,
				Offset:     offset,
			})
			if err != nil {
				return 0, fmt.Errorf("list %s documents: %w", status, err)
			}
			for _, d := range docs {
				pending = append(pending, job{kind: stage.kind, docID: d.ID})
			}
			if len(docs) < models.MaxListLimit {
				break
			}
		}
	}

	for i, j := range pending {
		if err := p.enqueue(j); err != nil {
			return i, err
		}
		p.metrics.incRecovered(j.kind)
	}
	if len(pending) > 0 {
		p.logger.InfoContext(ctx, "pipeline recovered unfinished documents", "jobs", len(pending))
	}
	return len(pending), nil
}

func (p *Pipeline) run(ctx context.Context, j job) {
	p.metrics.setDepth(p.pool.depth())
	if j.requestID != "" {
		ctx = requestcontext.WithRequestID(ctx, j.requestID)
	}
	start := time.Now()
	var result string
	switch j.kind {
	case jobOCR:
		result = p.processOCR(ctx, j.docID)
	case jobAnalysis:
		result = p.processAnalysis(ctx, j.docID)
	default:
		result = "unknown"
	}
	p.metrics.observeJob(j.kind, result, time.Since(start))
}

// processOCR extracts text and fires ocr_completed or ocr_exhausted. An
// unreadable blob counts as exhaustion so the document lands in review.
func (p *Pipeline) processOCR(ctx context.Context, docID id.DocumentID) string {
	ctx, span := tracer.Start(ctx, "pipeline.ocr",
		trace.WithSpanKind(trace.SpanKindConsumer),
		trace.WithAttributes(attribute.String("document.id", docID.String())),
	)
	defer span.End()

	doc, err := p.docs.Get(ctx, docID)
	if err != nil {
		return p.abandon(ctx, jobOCR, docID, err)
	}

	result, err := p.extract(ctx, doc)
	trigger := workflow.TriggerOCRCompleted
	if err != nil {
		trigger = workflow.TriggerOCRExhausted
		p.logger.WarnContext(ctx, "ocr exhausted; routing to manual review",
			"document_id", docID,
			"tenant_id", doc.TenantID,
			"error", err,
		)
	}

	if _, err := p.workflow.ApplySystem(ctx, docID, trigger, func(d *models.Document) {
		d.OCR = result
	}); err != nil {
		return p.abandon(ctx, jobOCR, docID, err)
	}
	if trigger == workflow.TriggerOCRExhausted {
		return "exhausted"
	}

	next := job{kind: jobAnalysis, docID: docID, requestID: requestcontext.RequestID(ctx)}
	if err := p.enqueue(next); err != nil {
		p.logger.WarnContext(ctx, "analysis queue unavailable; running inline", "document_id", docID, "error", err)
		p.run(ctx, next)
	}
	return "ok"
}

func (p *Pipeline) extract(ctx context.Context, doc *models.Document) (*models.OCRResult, error) {
	blobCtx, cancel := context.WithTimeout(ctx, p.blobTimeout)
	data, err := p.blobs.Get(blobCtx, blob.Ref(doc.StorageRef))
	cancel()
	if err != nil {
		return &models.OCRResult{
			Attempted:   []string{},
			Scores:      map[string]float64{},
			Failures:    map[string]string{"storage": err.Error()},
			CompletedAt: requestcontext.Now(ctx),
		}, fmt.Errorf("load content: %w", err)
	}
	return p.extractor.Extract(ctx, ocr.Content{
		Data:     data,
		MimeType: doc.MimeType,
		Filename: doc.Filename,
	})
}

// processAnalysis runs the providers and maps the verdict to a trigger.
func (p *Pipeline) processAnalysis(ctx context.Context, docID id.DocumentID) string {
	ctx, span := tracer.Start(ctx, "pipeline.analysis",
		trace.WithSpanKind(trace.SpanKindConsumer),
		trace.WithAttributes(attribute.String("document.id", docID.String())),
	)
	defer span.End()

	doc, err := p.docs.Get(ctx, docID)
	if err != nil {
		return p.abandon(ctx, jobAnalysis, docID, err)
	}
	req := analysis.Request{Filename: doc.Filename, Metadata: doc.Metadata}
	if doc.OCR != nil {
		req.Text = doc.OCR.Text
	}

	result, err := p.analyzer.Analyze(ctx, req)
	if result == nil {
		result = &models.AIAnalysis{ValidationStatus: models.ValidationUndetermined, CompletedAt: requestcontext.Now(ctx)}
	}
	trigger := triggerFor(result.ValidationStatus)
	if err != nil && !errors.Is(err, analysis.ErrAnalysisUnavailable) {
		p.logger.ErrorContext(ctx, "analysis failed", "document_id", docID, "error", err)
	}

	if _, err := p.workflow.ApplySystem(ctx, docID, trigger, func(d *models.Document) {
		d.Analysis = result
		if d.Category == "" && result.ConsensusCategory != "" {
			d.Category = result.ConsensusCategory
		}
	}); err != nil {
		return p.abandon(ctx, jobAnalysis, docID, err)
	}
	return string(result.ValidationStatus)
}

func triggerFor(status models.ValidationStatus) workflow.Trigger {
	switch status {
	case models.ValidationValid:
		return workflow.TriggerAnalysisValid
	case models.ValidationNeedsReview:
		return workflow.TriggerAnalysisNeedsReview
	default:
		return workflow.TriggerAnalysisUnavailable
	}
}

// abandon logs why a job's result was not applied and names the outcome.
func (p *Pipeline) abandon(ctx context.Context, kind jobKind, docID id.DocumentID, err error) string {
	switch {
	case errors.Is(err, sentinel.ErrNotFound), dErrors.HasCode(err, dErrors.CodeNotFound):
		p.logger.InfoContext(ctx, "document gone; discarding pipeline result", "kind", kind, "document_id", docID)
		return "discarded"
	case dErrors.HasCode(err, dErrors.CodeInvalidTransition):
		p.logger.InfoContext(ctx, "document moved on; discarding pipeline result", "kind", kind, "document_id", docID)
		return "discarded"
	default:
		p.logger.ErrorContext(ctx, "pipeline job failed", "kind", kind, "document_id", docID, "error", err)
		return "error"
	}
}
