package models

import (
	"maps"
	"slices"
	"time"

	id "docflow/pkg/domain"
)

// Status is the workflow state of a document.
type Status string

const (
	StatusRecebido        Status = "RECEBIDO"
	StatusValidando       Status = "VALIDANDO"
	StatusPagoAConciliar  Status = "PAGO_A_CONCILIAR"
	StatusEmConciliacao   Status = "EM_CONCILIACAO"
	StatusArquivado       Status = "ARQUIVADO"
	StatusPendenteRevisao Status = "PENDENTE_REVISAO"
	StatusRejeitado       Status = "REJEITADO"
)

// AllStatuses lists every workflow state.
var AllStatuses = []Status{
	StatusRecebido,
	StatusValidando,
	StatusPagoAConciliar,
	StatusEmConciliacao,
	StatusArquivado,
	StatusPendenteRevisao,
	StatusRejeitado,
}

func (s Status) IsValid() bool {
	return slices.Contains(AllStatuses, s)
}

// IsTerminal reports whether no further transition can leave s.
func (s Status) IsTerminal() bool {
	return s == StatusArquivado || s == StatusRejeitado
}

func ParseStatus(s string) (Status, bool) {
	st := Status(s)
	return st, st.IsValid()
}

// Document is the aggregate root of the pipeline.
//
// Invariants:
//   - TenantID is immutable after creation
//   - Version increases by exactly one on every persisted change
//   - A document with DeletedAt set is invisible to every read path
type Document struct {
	ID         id.DocumentID     `json:"id"`
	TenantID   id.TenantID       `json:"tenant_id"`
	OwnerID    id.UserID         `json:"owner_id"`
	Filename   string            `json:"filename"`
	MimeType   string            `json:"mime_type"`
	Size       int64             `json:"size"`
	StorageRef string            `json:"storage_ref"`
	Status     Status            `json:"status"`
	Category   string            `json:"category,omitempty"`
	Metadata   map[string]string `json:"metadata,omitempty"`
	Version    int64             `json:"version"`
	CreatedAt  time.Time         `json:"created_at"`
	UpdatedAt  time.Time         `json:"updated_at"`
	DeletedAt  *time.Time        `json:"deleted_at,omitempty"`
	OCR        *OCRResult        `json:"ocr,omitempty"`
	Analysis   *AIAnalysis       `json:"analysis,omitempty"`
}

func (d *Document) IsDeleted() bool {
	return d.DeletedAt != nil
}

// Clone returns a deep copy so stores never share mutable state with callers.
func (d *Document) Clone() *Document {
	if d == nil {
		return nil
	}
	out := *d
	out.Metadata = maps.Clone(d.Metadata)
	if d.DeletedAt != nil {
		t := *d.DeletedAt
		out.DeletedAt = &t
	}
	out.OCR = d.OCR.Clone()
	out.Analysis = d.Analysis.Clone()
	return &out
}

// DocumentRef is returned to the submitter.
type DocumentRef struct {
	ID     id.DocumentID `json:"id"`
	Status Status        `json:"status"`
}

// OCRResult is the outcome of the extraction engine.
//
// Invariants:
//   - keys of Scores are exactly the entries of Attempted
//   - FallbackUsed == Scores[Attempted[0]] < threshold
type OCRResult struct {
	Text         string             `json:"text"`
	Attempted    []string           `json:"attempted"`
	Scores       map[string]float64 `json:"scores"`
	FallbackUsed bool               `json:"fallback_used"`
	Selected     string             `json:"selected"`
	Failures     map[string]string  `json:"failures,omitempty"`
	CompletedAt  time.Time          `json:"completed_at"`
}

func (r *OCRResult) Clone() *OCRResult {
	if r == nil {
		return nil
	}
	out := *r
	out.Attempted = slices.Clone(r.Attempted)
	out.Scores = maps.Clone(r.Scores)
	out.Failures = maps.Clone(r.Failures)
	return &out
}

// ValidationStatus is the verdict of the analysis orchestrator.
type ValidationStatus string

const (
	ValidationValid        ValidationStatus = "VALID"
	ValidationNeedsReview  ValidationStatus = "NEEDS_REVIEW"
	ValidationUndetermined ValidationStatus = "UNDETERMINED"
)

// ProviderResult is one provider's structured answer.
type ProviderResult struct {
	Categories []string          `json:"categories"`
	Fields     map[string]string `json:"fields"`
	Confidence float64           `json:"confidence"`
}

// PrimaryCategory is the provider's first category, or "" when none.
func (p ProviderResult) PrimaryCategory() string {
	if len(p.Categories) == 0 {
		return ""
	}
	return p.Categories[0]
}

// AIAnalysis is the reconciled result of all providers.
//
// Invariant: ValidationStatus is UNDETERMINED only if Providers is empty.
type AIAnalysis struct {
	Providers           map[string]ProviderResult `json:"providers"`
	ConsensusCategory   string                    `json:"consensus_category"`
	ConsensusConfidence float64                   `json:"consensus_confidence"`
	Fields              map[string]string         `json:"fields,omitempty"`
	FieldSources        map[string]string         `json:"field_sources,omitempty"`
	ValidationStatus    ValidationStatus          `json:"validation_status"`
	Failures            map[string]string         `json:"failures,omitempty"`
	CompletedAt         time.Time                 `json:"completed_at"`
}

func (a *AIAnalysis) Clone() *AIAnalysis {
	if a == nil {
		return nil
	}
	out := *a
	if a.Providers != nil {
		out.Providers = make(map[string]ProviderResult, len(a.Providers))
		for k, v := range a.Providers {
			v.Categories = slices.Clone(v.Categories)
			v.Fields = maps.Clone(v.Fields)
			out.Providers[k] = v
		}
	}
	out.Fields = maps.Clone(a.Fields)
	out.FieldSources = maps.Clone(a.FieldSources)
	out.Failures = maps.Clone(a.Failures)
	return &out
}
