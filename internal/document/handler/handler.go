package handler

import (
	"context"
	"encoding/json"
	"errors"
	"io"
	"log/slog"
	"net/http"
	"strconv"
	"strings"
	"time"

	"github.com/gabriel-vasile/mimetype"
	"github.com/go-chi/chi/v5"

	"docflow/internal/audit"
	"docflow/internal/document/models"
	"docflow/internal/ingestion"
	"docflow/internal/platform/metrics"
	"docflow/internal/platform/middleware"
	tenantmodels "docflow/internal/tenant/models"
	id "docflow/pkg/domain"
	dErrors "docflow/pkg/domain-errors"
	"docflow/pkg/platform/httputil"
	"docflow/pkg/requestcontext"
)

const (
	defaultMaxUploadBytes = 10 << 20
	// multipartOverhead covers form boundaries and text fields around the file.
	multipartOverhead = 1 << 20
	formMemory        = 32 << 20
)

// Submitter accepts new documents.
type Submitter interface {
	Submit(ctx context.Context, tc *tenantmodels.TenantContext, req ingestion.SubmitRequest) (*models.DocumentRef, error)
}

// DocumentService serves tenant-scoped document reads and edits.
type DocumentService interface {
	Get(ctx context.Context, tc *tenantmodels.TenantContext, docID id.DocumentID) (*models.Document, error)
	List(ctx context.Context, tc *tenantmodels.TenantContext, filter models.Filter) ([]*models.Document, error)
	UpdateMetadata(ctx context.Context, tc *tenantmodels.TenantContext, docID id.DocumentID, patch models.Patch) (*models.Document, error)
	Delete(ctx context.Context, tc *tenantmodels.TenantContext, docID id.DocumentID) error
	ListAudit(ctx context.Context, tc *tenantmodels.TenantContext, docID id.DocumentID) ([]audit.Entry, error)
	StatusCounts(ctx context.Context, tc *tenantmodels.TenantContext, allTenants bool) (map[models.Status]int, error)
}

// Workflow fires user triggers.
type Workflow interface {
	Transition(ctx context.Context, tc *tenantmodels.TenantContext, docID id.DocumentID, trigger string) (*models.Document, error)
}

// Handler serves the document API.
type Handler struct {
	submitter      Submitter
	documents      DocumentService
	workflow       Workflow
	validator      middleware.TokenValidator
	logger         *slog.Logger
	metrics        *metrics.Metrics
	maxUploadBytes int64
}

// New creates a document Handler. maxUploadBytes bounds the file part; the
// gateway enforces the policy limit on the decoded content.
func New(
	submitter Submitter,
	documents DocumentService,
	workflow Workflow,
	validator middleware.TokenValidator,
	logger *slog.Logger,
	metrics *metrics.Metrics,
	maxUploadBytes int64,
) *Handler {
	if maxUploadBytes <= 0 {
		maxUploadBytes = defaultMaxUploadBytes
	}
	return &Handler{
		submitter:      submitter,
		documents:      documents,
		workflow:       workflow,
		validator:      validator,
		logger:         logger,
		metrics:        metrics,
		maxUploadBytes: maxUploadBytes,
	}
}

// Register mounts the authenticated document routes on r. uploadLimits run
// after authentication on the submit route only.
func (h *Handler) Register(r chi.Router, uploadLimits ...func(http.Handler) http.Handler) {
	r.Group(func(r chi.Router) {
		r.Use(middleware.RequireAuth(h.validator, h.logger))

		r.Route("/v1/documents", func(r chi.Router) {
			r.With(uploadLimits...).Post("/", h.handleSubmit)
			r.Get("/", h.handleList)
			r.Route("/{id}", func(r chi.Router) {
				r.Get("/", h.handleGet)
				r.Patch("/", h.handleUpdateMetadata)
				r.Delete("/", h.handleDelete)
				r.Post("/transitions", h.handleTransition)
				r.Get("/audit", h.handleListAudit)
			})
		})
		r.Get("/v1/admin/documents/stats", h.handleStats)
	})
}

func (h *Handler) handleSubmit(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	requestID := requestcontext.RequestID(ctx)

	r.Body = http.MaxBytesReader(w, r.Body, h.maxUploadBytes+multipartOverhead)
	if err := r.ParseMultipartForm(formMemory); err != nil {
		var tooLarge *http.MaxBytesError
		if errors.As(err, &tooLarge) {
			httputil.WriteError(w, dErrors.New(dErrors.CodePayloadTooLarge, "upload exceeds size limit"))
			return
		}
		h.logger.WarnContext(ctx, "invalid multipart upload",
			"request_id", requestID,
			"error", err,
		)
		httputil.WriteError(w, dErrors.New(dErrors.CodeBadRequest, "expected multipart/form-data with a file part"))
		return
	}
	defer func() { _ = r.MultipartForm.RemoveAll() }()

	file, header, err := r.FormFile("file")
	if err != nil {
		httputil.WriteError(w, dErrors.New(dErrors.CodeValidation, "file part is required"))
		return
	}
	defer file.Close()

	content, err := io.ReadAll(file)
	if err != nil {
		httputil.WriteError(w, dErrors.Wrap(err, dErrors.CodeBadRequest, "failed to read upload"))
		return
	}

	req := ingestion.SubmitRequest{
		Filename: header.Filename,
		MimeType: partMimeType(header.Header.Get("Content-Type"), content),
		Size:     int64(len(content)),
		Content:  content,
		Category: strings.TrimSpace(r.FormValue("category")),
	}
	if raw := r.FormValue("metadata"); raw != "" {
		if err := json.Unmarshal([]byte(raw), &req.Metadata); err != nil {
			httputil.WriteError(w, dErrors.New(dErrors.CodeValidation, "metadata must be a JSON object of strings"))
			return
		}
	}

	ref, err := h.submitter.Submit(ctx, middleware.TenantContext(ctx), req)
	if err != nil {
		h.writeError(ctx, w, "submit document", err)
		return
	}
	h.metrics.ObserveUpload(req.Size)
	httputil.WriteJSON(w, http.StatusAccepted, ref)
}

// partMimeType returns the declared part type, or the sniffed type when the
// client sent none or a generic one. Ingestion still checks the declared type
// against the content.
func partMimeType(declared string, content []byte) string {
	base, _, _ := strings.Cut(declared, ";")
	base = strings.ToLower(strings.TrimSpace(base))
	if base != "" && base != "application/octet-stream" {
		return declared
	}
	detected, _, _ := strings.Cut(mimetype.Detect(content).String(), ";")
	return detected
}

func (h *Handler) handleList(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	filter, err := parseFilter(r)
	if err != nil {
		httputil.WriteError(w, err)
		return
	}
	docs, err := h.documents.List(ctx, middleware.TenantContext(ctx), filter)
	if err != nil {
		h.writeError(ctx, w, "list documents", err)
		return
	}
	httputil.WriteJSON(w, http.StatusOK, ListResponse{Documents: docs, Count: len(docs)})
}

func (h *Handler) handleGet(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	docID, ok := documentID(w, r)
	if !ok {
		return
	}
	doc, err := h.documents.Get(ctx, middleware.TenantContext(ctx), docID)
	if err != nil {
		h.writeError(ctx, w, "get document", err)
		return
	}
	httputil.WriteJSON(w, http.StatusOK, doc)
}

func (h *Handler) handleUpdateMetadata(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	docID, ok := documentID(w, r)
	if !ok {
		return
	}
	req, ok := httputil.DecodeAndPrepare[UpdateMetadataRequest](w, r, h.logger, ctx, requestcontext.RequestID(ctx))
	if !ok {
		return
	}
	doc, err := h.documents.UpdateMetadata(ctx, middleware.TenantContext(ctx), docID, req.Patch())
	if err != nil {
		h.writeError(ctx, w, "update document metadata", err)
		return
	}
	httputil.WriteJSON(w, http.StatusOK, doc)
}

func (h *Handler) handleDelete(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	docID, ok := documentID(w, r)
	if !ok {
		return
	}
	if err := h.documents.Delete(ctx, middleware.TenantContext(ctx), docID); err != nil {
		h.writeError(ctx, w, "delete document", err)
		return
	}
	w.WriteHeader(http.StatusNoContent)
}

func (h *Handler) handleTransition(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	docID, ok := documentID(w, r)
	if !ok {
		return
	}
	req, ok := httputil.DecodeAndPrepare[TransitionRequest](w, r, h.logger, ctx, requestcontext.RequestID(ctx))
	if !ok {
		return
	}
	doc, err := h.workflow.Transition(ctx, middleware.TenantContext(ctx), docID, req.Trigger)
	if err != nil {
		h.writeError(ctx, w, "transition document", err)
		return
	}
	httputil.WriteJSON(w, http.StatusOK, doc)
}

func (h *Handler) handleListAudit(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	docID, ok := documentID(w, r)
	if !ok {
		return
	}
	entries, err := h.documents.ListAudit(ctx, middleware.TenantContext(ctx), docID)
	if err != nil {
		h.writeError(ctx, w, "list audit trail", err)
		return
	}
	httputil.WriteJSON(w, http.StatusOK, AuditResponse{Entries: entries})
}

func (h *Handler) handleStats(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	allTenants := r.URL.Query().Get("all_tenants") == "true"
	counts, err := h.documents.StatusCounts(ctx, middleware.TenantContext(ctx), allTenants)
	if err != nil {
		h.writeError(ctx, w, "document stats", err)
		return
	}
	resp := StatsResponse{Counts: make(map[string]int, len(models.AllStatuses))}
	for _, s := range models.AllStatuses {
		resp.Counts[string(s)] = counts[s]
		resp.Total += counts[s]
	}
	httputil.WriteJSON(w, http.StatusOK, resp)
}

// writeError logs server-side failures and writes the mapped response.
func (h *Handler) writeError(ctx context.Context, w http.ResponseWriter, op string, err error) {
	if dErrors.CodeOf(err) == dErrors.CodeInternal {
		h.logger.ErrorContext(ctx, "failed to "+op,
			"request_id", requestcontext.RequestID(ctx),
			"error", err,
		)
	}
	httputil.WriteError(w, err)
}

func documentID(w http.ResponseWriter, r *http.Request) (id.DocumentID, bool) {
	docID, err := id.ParseDocumentID(chi.URLParam(r, "id"))
	if err != nil {
		httputil.WriteError(w, dErrors.New(dErrors.CodeValidation, "invalid document id"))
		return id.DocumentID{}, false
	}
	return docID, true
}

func parseFilter(r *http.Request) (models.Filter, error) {
	q := r.URL.Query()
	var f models.Filter
	if v := q.Get("status"); v != "" {
		status, ok := models.ParseStatus(strings.ToUpper(v))
		if !ok {
			return f, dErrors.Newf(dErrors.CodeValidation, "unknown status %q", v)
		}
		f.Status = &status
	}
	if v := strings.TrimSpace(q.Get("category")); v != "" {
		f.Category = &v
	}
	var err error
	if f.From, err = parseTime(q.Get("from")); err != nil {
		return f, err
	}
	if f.To, err = parseTime(q.Get("to")); err != nil {
		return f, err
	}
	f.AllTenants = q.Get("all_tenants") == "true"
	if f.Limit, err = parseInt(q.Get("limit"), "limit"); err != nil {
		return f, err
	}
	if f.Offset, err = parseInt(q.Get("offset"), "offset"); err != nil {
		return f, err
	}
	return f, nil
}

// parseTime accepts RFC 3339 timestamps or plain dates.
func parseTime(v string) (*time.Time, error) {
	if v == "" {
		return nil, nil
	}
	for _, layout := range []string{time.RFC3339, time.DateOnly} {
		if t, err := time.Parse(layout, v); err == nil {
			return &t, nil
		}
	}
	return nil, dErrors.Newf(dErrors.CodeValidation, "invalid date %q", v)
}

func parseInt(v, name string) (int, error) {
	if v == "" {
		return 0, nil
	}
	n, err := strconv.Atoi(v)
	if err != nil {
		return 0, dErrors.Newf(dErrors.CodeValidation, "%s must be an integer", name)
	}
	return n, nil
}
