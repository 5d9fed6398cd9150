package pipeline

import (
	"context"
	"errors"
	"io"
	"log/slog"
	"sync/atomic"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/stretchr/testify/suite"

	"docflow/internal/analysis"
	"docflow/internal/audit"
	auditstore "docflow/internal/audit/store"
	"docflow/internal/blob"
	"docflow/internal/document/models"
	docstore "docflow/internal/document/store"
	"docflow/internal/ocr"
	"docflow/internal/tenant/guard"
	"docflow/internal/workflow"
	id "docflow/pkg/domain"
	"docflow/pkg/platform/sentinel"
)

type stubStrategy struct {
	name    string
	attempt ocr.Attempt
	err     error
	calls   atomic.Int32
	started chan struct{}
	release chan struct{}
}

func (s *stubStrategy) Name() string { return s.name }

func (s *stubStrategy) Attempt(ctx context.Context, _ ocr.Content) (ocr.Attempt, error) {
	s.calls.Add(1)
	if s.started != nil {
		close(s.started)
		<-s.release
	}
	return s.attempt, s.err
}

type stubProvider struct {
	name   string
	result models.ProviderResult
	err    error
	delay  time.Duration
	calls  atomic.Int32
}

func (p *stubProvider) Name() string { return p.name }

func (p *stubProvider) Analyze(ctx context.Context, _ analysis.Request) (models.ProviderResult, error) {
	p.calls.Add(1)
	if p.delay > 0 {
		select {
		case <-time.After(p.delay):
		case <-ctx.Done():
			return models.ProviderResult{}, ctx.Err()
		}
	}
	return p.result, p.err
}

const boletoText = "BOLETO BANCARIO Banco do Brasil vencimento 10/04/2026 valor R$ 1.500,00 beneficiario ACME LTDA"

type PipelineSuite struct {
	suite.Suite
	ctx    context.Context
	logger *slog.Logger
	docs   *docstore.InMemoryStore
	blobs  *blob.InMemoryStore
	audits *auditstore.InMemoryStore
	tenant id.TenantID
}

func TestPipelineSuite(t *testing.T) {
	suite.Run(t, new(PipelineSuite))
}

func (s *PipelineSuite) SetupTest() {
	s.ctx = context.Background()
	s.logger = slog.New(slog.NewTextHandler(io.Discard, nil))
	s.docs = docstore.NewInMemory()
	s.blobs = blob.NewInMemory()
	s.audits = auditstore.NewInMemory()
	s.tenant = id.TenantID(uuid.New())
}

func (s *PipelineSuite) build(strategies []ocr.Strategy, providers []analysis.Provider, opts ...Option) *Pipeline {
	engine, err := ocr.NewEngine(strategies, ocr.WithLogger(s.logger), ocr.WithAttemptTimeout(time.Second))
	s.Require().NoError(err)
	orchestrator, err := analysis.New(providers,
		analysis.WithLogger(s.logger),
		analysis.WithProviderTimeout(50*time.Millisecond),
		analysis.WithInitialBackoff(time.Millisecond),
		analysis.WithMaxRetries(0),
	)
	s.Require().NoError(err)
	wf := workflow.New(s.docs, audit.New(s.audits), guard.New(), workflow.WithLogger(s.logger))

	p, err := New(s.docs, s.blobs, engine, orchestrator, wf, append([]Option{WithLogger(s.logger), WithWorkers(2)}, opts...)...)
	s.Require().NoError(err)
	return p
}

func (s *PipelineSuite) seed(content []byte) *models.Document {
	ref, err := s.blobs.Put(s.ctx, blob.ContentKey(s.tenant, content), content)
	s.Require().NoError(err)
	doc := &models.Document{
		ID:         id.NewDocumentID(),
		TenantID:   s.tenant,
		OwnerID:    id.UserID(uuid.New()),
		Filename:   "boleto_acme_1500.pdf",
		MimeType:   "application/pdf",
		Size:       int64(len(content)),
		StorageRef: ref.String(),
		Status:     models.StatusRecebido,
		Version:    1,
		CreatedAt:  time.Now(),
		UpdatedAt:  time.Now(),
	}
	s.Require().NoError(s.docs.Create(s.ctx, doc))
	return doc
}

func (s *PipelineSuite) process(p *Pipeline, docIDs ...id.DocumentID) {
	p.Start(s.ctx)
	for _, docID := range docIDs {
		s.Require().NoError(p.EnqueueOCR(s.ctx, docID))
	}
	p.Stop()
}

func (s *PipelineSuite) triggers(docID id.DocumentID) []string {
	entries, err := s.audits.ListByDocument(s.ctx, docID)
	s.Require().NoError(err)
	out := make([]string, 0, len(entries))
	for _, e := range entries {
		out = append(out, e.Trigger+":"+string(e.Outcome))
	}
	return out
}

func answer(category string, confidence float64) models.ProviderResult {
	return models.ProviderResult{Categories: []string{category}, Confidence: confidence}
}

// Low-confidence primary OCR falls back, then analysis validates.
func (s *PipelineSuite) TestFallbackThenValidAnalysis() {
	primary := &stubStrategy{name: "text_layer", attempt: ocr.Attempt{Text: "b0l3t0", Confidence: 0.4}}
	secondary := &stubStrategy{name: "tesseract", attempt: ocr.Attempt{Text: boletoText, Confidence: 0.9}}
	p := s.build(
		[]ocr.Strategy{primary, secondary},
		[]analysis.Provider{
			&stubProvider{name: "openai", result: answer("boleto", 0.9)},
			&stubProvider{name: "glm", result: answer("boleto", 0.85)},
		},
	)
	doc := s.seed([]byte("%PDF-1.4 scanned"))

	s.process(p, doc.ID)

	got, err := s.docs.Get(s.ctx, doc.ID)
	s.Require().NoError(err)
	s.Equal(models.StatusPagoAConciliar, got.Status)
	s.Require().NotNil(got.OCR)
	s.True(got.OCR.FallbackUsed)
	s.Equal("tesseract", got.OCR.Selected)
	s.Equal(boletoText, got.OCR.Text)
	s.Equal([]string{"text_layer", "tesseract"}, got.OCR.Attempted)
	s.Require().NotNil(got.Analysis)
	s.Equal(models.ValidationValid, got.Analysis.ValidationStatus)
	s.Equal("boleto", got.Category)
	s.Equal(int64(3), got.Version)
	s.Equal([]string{"ocr_completed:applied", "analysis_valid:applied"}, s.triggers(doc.ID))
}

// One provider timing out still yields a VALID verdict from the other two.
func (s *PipelineSuite) TestSlowProviderDoesNotBlockVerdict() {
	p := s.build(
		[]ocr.Strategy{&stubStrategy{name: "text_layer", attempt: ocr.Attempt{Text: boletoText, Confidence: 0.95}}},
		[]analysis.Provider{
			&stubProvider{name: "openai", result: answer("boleto", 0.9)},
			&stubProvider{name: "glm", result: answer("boleto", 0.8)},
			&stubProvider{name: "vertex", delay: 5 * time.Second},
		},
	)
	doc := s.seed([]byte("%PDF-1.4 text"))

	s.process(p, doc.ID)

	got, err := s.docs.Get(s.ctx, doc.ID)
	s.Require().NoError(err)
	s.Equal(models.StatusPagoAConciliar, got.Status)
	s.False(got.OCR.FallbackUsed)
	s.Len(got.Analysis.Providers, 2)
	s.Contains(got.Analysis.Failures, "vertex")
}

func (s *PipelineSuite) TestOCRExhaustedGoesToReview() {
	provider := &stubProvider{name: "openai", result: answer("boleto", 0.9)}
	p := s.build(
		[]ocr.Strategy{
			&stubStrategy{name: "text_layer", err: errors.New("not a pdf")},
			&stubStrategy{name: "tesseract", err: errors.New("engine crashed")},
		},
		[]analysis.Provider{provider},
	)
	doc := s.seed([]byte("garbage"))

	s.process(p, doc.ID)

	got, err := s.docs.Get(s.ctx, doc.ID)
	s.Require().NoError(err)
	s.Equal(models.StatusPendenteRevisao, got.Status)
	s.Require().NotNil(got.OCR)
	s.Len(got.OCR.Failures, 2)
	s.Nil(got.Analysis)
	s.Zero(provider.calls.Load())
	s.Equal([]string{"ocr_exhausted:applied"}, s.triggers(doc.ID))
}

func (s *PipelineSuite) TestUnreadableBlobGoesToReview() {
	strategy := &stubStrategy{name: "text_layer", attempt: ocr.Attempt{Text: boletoText, Confidence: 0.95}}
	p := s.build([]ocr.Strategy{strategy}, []analysis.Provider{&stubProvider{name: "openai"}})
	doc := s.seed([]byte("%PDF"))
	doc.StorageRef = "tenants/missing"
	s.Require().NoError(s.docs.Replace(s.ctx, doc, doc.Version))

	s.process(p, doc.ID)

	got, err := s.docs.Get(s.ctx, doc.ID)
	s.Require().NoError(err)
	s.Equal(models.StatusPendenteRevisao, got.Status)
	s.Contains(got.OCR.Failures, "storage")
	s.Zero(strategy.calls.Load())
}

func (s *PipelineSuite) TestAnalysisOutcomes() {
	s.Run("all providers down", func() {
		p := s.build(
			[]ocr.Strategy{&stubStrategy{name: "text_layer", attempt: ocr.Attempt{Text: boletoText, Confidence: 0.95}}},
			[]analysis.Provider{
				&stubProvider{name: "openai", err: analysis.NewProviderError(analysis.ErrorAuthentication, "openai", "401", nil)},
				&stubProvider{name: "glm", delay: 5 * time.Second},
			},
		)
		doc := s.seed([]byte("%PDF-1.4 a"))
		s.process(p, doc.ID)

		got, err := s.docs.Get(s.ctx, doc.ID)
		s.Require().NoError(err)
		s.Equal(models.StatusPendenteRevisao, got.Status)
		s.Equal(models.ValidationUndetermined, got.Analysis.ValidationStatus)
		s.Equal([]string{"ocr_completed:applied", "analysis_unavailable:applied"}, s.triggers(doc.ID))
	})

	s.Run("low confidence needs review", func() {
		p := s.build(
			[]ocr.Strategy{&stubStrategy{name: "text_layer", attempt: ocr.Attempt{Text: boletoText, Confidence: 0.95}}},
			[]analysis.Provider{
				&stubProvider{name: "openai", result: answer("boleto", 0.5)},
				&stubProvider{name: "glm", result: answer("recibo", 0.6)},
			},
		)
		doc := s.seed([]byte("%PDF-1.4 b"))
		s.process(p, doc.ID)

		got, err := s.docs.Get(s.ctx, doc.ID)
		s.Require().NoError(err)
		s.Equal(models.StatusPendenteRevisao, got.Status)
		s.Equal(models.ValidationNeedsReview, got.Analysis.ValidationStatus)
	})
}

func (s *PipelineSuite) TestDeletedWhileInFlightIsDiscarded() {
	gate := &stubStrategy{
		name:    "text_layer",
		attempt: ocr.Attempt{Text: boletoText, Confidence: 0.95},
		started: make(chan struct{}),
		release: make(chan struct{}),
	}
	provider := &stubProvider{name: "openai", result: answer("boleto", 0.9)}
	p := s.build([]ocr.Strategy{gate}, []analysis.Provider{provider}, WithWorkers(1))
	doc := s.seed([]byte("%PDF-1.4 c"))

	p.Start(s.ctx)
	s.Require().NoError(p.EnqueueOCR(s.ctx, doc.ID))
	<-gate.started

	current, err := s.docs.Get(s.ctx, doc.ID)
	s.Require().NoError(err)
	deletedAt := time.Now()
	current.DeletedAt = &deletedAt
	s.Require().NoError(s.docs.Replace(s.ctx, current, current.Version))

	close(gate.release)
	p.Stop()

	_, err = s.docs.Get(s.ctx, doc.ID)
	s.ErrorIs(err, sentinel.ErrNotFound)
	s.Empty(s.triggers(doc.ID))
	s.Zero(provider.calls.Load())
}

func (s *PipelineSuite) TestManyDocumentsOnBoundedPool() {
	p := s.build(
		[]ocr.Strategy{&stubStrategy{name: "text_layer", attempt: ocr.Attempt{Text: boletoText, Confidence: 0.95}}},
		[]analysis.Provider{&stubProvider{name: "openai", result: answer("boleto", 0.9)}},
		WithWorkers(3),
	)
	ids := make([]id.DocumentID, 0, 20)
	for i := range 20 {
		ids = append(ids, s.seed([]byte{'%', 'P', 'D', 'F', byte(i)}).ID)
	}

	s.process(p, ids...)

	for _, docID := range ids {
		got, err := s.docs.Get(s.ctx, docID)
		s.Require().NoError(err)
		s.Equal(models.StatusPagoAConciliar, got.Status)
	}
}

// firstCallGate blocks only its first attempt until released.
type firstCallGate struct {
	attempt ocr.Attempt
	calls   atomic.Int32
	started chan struct{}
	release chan struct{}
}

func (g *firstCallGate) Name() string { return "text_layer" }

func (g *firstCallGate) Attempt(context.Context, ocr.Content) (ocr.Attempt, error) {
	if g.calls.Add(1) == 1 {
		close(g.started)
		<-g.release
	}
	return g.attempt, nil
}

// A burst past the backlog size is delayed, never dropped.
func (s *PipelineSuite) TestBurstPastBacklogStillCompletes() {
	gate := &firstCallGate{
		attempt: ocr.Attempt{Text: boletoText, Confidence: 0.95},
		started: make(chan struct{}),
		release: make(chan struct{}),
	}
	p := s.build(
		[]ocr.Strategy{gate},
		[]analysis.Provider{&stubProvider{name: "openai", result: answer("boleto", 0.9)}},
		WithWorkers(1),
		WithQueueSize(1),
	)
	first := s.seed([]byte("%PDF-1.4 first"))
	second := s.seed([]byte("%PDF-1.4 second"))
	third := s.seed([]byte("%PDF-1.4 third"))

	p.Start(s.ctx)
	s.Require().NoError(p.EnqueueOCR(s.ctx, first.ID))
	<-gate.started
	s.Require().NoError(p.EnqueueOCR(s.ctx, second.ID))
	s.Require().NoError(p.EnqueueOCR(s.ctx, third.ID))
	s.Equal(2, p.pool.depth())

	close(gate.release)
	p.Stop()

	for _, doc := range []*models.Document{first, second, third} {
		got, err := s.docs.Get(s.ctx, doc.ID)
		s.Require().NoError(err)
		s.Equal(models.StatusPagoAConciliar, got.Status, doc.ID.String())
	}
	s.Equal(int32(3), gate.calls.Load())
}

func (s *PipelineSuite) TestEnqueueAfterStopIsRefused() {
	p := s.build(
		[]ocr.Strategy{&stubStrategy{name: "text_layer"}},
		[]analysis.Provider{&stubProvider{name: "openai"}},
	)
	p.Start(s.ctx)
	p.Stop()
	s.ErrorIs(p.EnqueueOCR(s.ctx, id.NewDocumentID()), ErrStopped)
}

// Documents left mid-pipeline by a previous process are picked up again.
func (s *PipelineSuite) TestRecoverResumesUnfinishedDocuments() {
	provider := &stubProvider{name: "openai", result: answer("boleto", 0.9)}
	strategy := &stubStrategy{name: "text_layer", attempt: ocr.Attempt{Text: boletoText, Confidence: 0.95}}
	p := s.build([]ocr.Strategy{strategy}, []analysis.Provider{provider})

	received := s.seed([]byte("%PDF-1.4 received"))

	validating := s.seed([]byte("%PDF-1.4 validating"))
	validating.Status = models.StatusValidando
	validating.OCR = &models.OCRResult{Text: boletoText, Selected: "text_layer"}
	s.Require().NoError(s.docs.Replace(s.ctx, validating, validating.Version))

	archived := s.seed([]byte("%PDF-1.4 archived"))
	archived.Status = models.StatusArquivado
	s.Require().NoError(s.docs.Replace(s.ctx, archived, archived.Version))

	deleted := s.seed([]byte("%PDF-1.4 deleted"))
	deletedAt := time.Now()
	deleted.DeletedAt = &deletedAt
	s.Require().NoError(s.docs.Replace(s.ctx, deleted, deleted.Version))

	p.Start(s.ctx)
	n, err := p.Recover(s.ctx)
	s.Require().NoError(err)
	s.Equal(2, n)
	p.Stop()

	for _, doc := range []*models.Document{received, validating} {
		got, err := s.docs.Get(s.ctx, doc.ID)
		s.Require().NoError(err)
		s.Equal(models.StatusPagoAConciliar, got.Status, doc.ID.String())
	}
	got, err := s.docs.Get(s.ctx, archived.ID)
	s.Require().NoError(err)
	s.Equal(models.StatusArquivado, got.Status)

	s.Equal(int32(1), strategy.calls.Load(), "only the received document needs OCR")
	s.Equal(int32(2), provider.calls.Load())
	s.Empty(s.triggers(deleted.ID))
}

func (s *PipelineSuite) TestRecoverWithNothingPending() {
	p := s.build(
		[]ocr.Strategy{&stubStrategy{name: "text_layer"}},
		[]analysis.Provider{&stubProvider{name: "openai"}},
	)
	p.Start(s.ctx)
	defer p.Stop()

	n, err := p.Recover(s.ctx)
	s.Require().NoError(err)
	s.Zero(n)
}

func (s *PipelineSuite) TestNewRequiresCollaborators() {
	_, err := New(nil, s.blobs, nil, nil, nil)
	s.Error(err)
}
