package workflow

import (
	"docflow/internal/document/models"
	tenantmodels "docflow/internal/tenant/models"
)

// Trigger is an event that may move a document between states.
type Trigger string

const (
	TriggerOCRCompleted        Trigger = "ocr_completed"
	TriggerOCRExhausted        Trigger = "ocr_exhausted"
	TriggerAnalysisValid       Trigger = "analysis_valid"
	TriggerAnalysisNeedsReview Trigger = "analysis_needs_review"
	TriggerAnalysisUnavailable Trigger = "analysis_unavailable"

	TriggerApprove   Trigger = "approve"
	TriggerReconcile Trigger = "reconcile"
	TriggerArchive   Trigger = "archive"
	TriggerRevise    Trigger = "revise"
	TriggerReject    Trigger = "reject"
)

// AllTriggers lists every trigger the machine understands.
var AllTriggers = []Trigger{
	TriggerOCRCompleted,
	TriggerOCRExhausted,
	TriggerAnalysisValid,
	TriggerAnalysisNeedsReview,
	TriggerAnalysisUnavailable,
	TriggerApprove,
	TriggerReconcile,
	TriggerArchive,
	TriggerRevise,
	TriggerReject,
}

var systemActors = map[Trigger]string{
	TriggerOCRCompleted:        "system:ocr",
	TriggerOCRExhausted:        "system:ocr",
	TriggerAnalysisValid:       "system:analysis",
	TriggerAnalysisNeedsReview: "system:analysis",
	TriggerAnalysisUnavailable: "system:analysis",
}

var userPermissions = map[Trigger]tenantmodels.Permission{
	TriggerApprove:   tenantmodels.PermWorkflowApprove,
	TriggerReconcile: tenantmodels.PermWorkflowReconcile,
	TriggerArchive:   tenantmodels.PermWorkflowArchive,
	TriggerRevise:    tenantmodels.PermWorkflowRevise,
	TriggerReject:    tenantmodels.PermWorkflowReject,
}

func ParseTrigger(s string) (Trigger, bool) {
	t := Trigger(s)
	_, sys := systemActors[t]
	_, usr := userPermissions[t]
	return t, sys || usr
}

// IsSystem reports whether t may only be fired by the pipeline.
func (t Trigger) IsSystem() bool {
	_, ok := systemActors[t]
	return ok
}

// Permission returns the permission a user needs to fire t.
func (t Trigger) Permission() (tenantmodels.Permission, bool) {
	p, ok := userPermissions[t]
	return p, ok
}

// SystemActor returns the audit actor for a pipeline trigger.
func (t Trigger) SystemActor() string {
	return systemActors[t]
}

type edge struct {
	from    models.Status
	trigger Trigger
}

// Table is the explicit, total transition table. Any (state, trigger) pair
// absent from it is an invalid transition.
type Table struct {
	edges map[edge]models.Status
}

// NewTable builds the table. advanceOnNeedsReview routes NEEDS_REVIEW analyses
// forward to PAGO_A_CONCILIAR instead of manual review.
func NewTable(advanceOnNeedsReview bool) *Table {
	needsReviewTarget := models.StatusPendenteRevisao
	if advanceOnNeedsReview {
		needsReviewTarget = models.StatusPagoAConciliar
	}
	t := &Table{edges: map[edge]models.Status{
		{models.StatusRecebido, TriggerOCRCompleted}:         models.StatusValidando,
		{models.StatusRecebido, TriggerOCRExhausted}:         models.StatusPendenteRevisao,
		{models.StatusValidando, TriggerAnalysisValid}:       models.StatusPagoAConciliar,
		{models.StatusValidando, TriggerAnalysisNeedsReview}: needsReviewTarget,
		{models.StatusValidando, TriggerAnalysisUnavailable}: models.StatusPendenteRevisao,
		{models.StatusPendenteRevisao, TriggerApprove}:       models.StatusPagoAConciliar,
		{models.StatusPagoAConciliar, TriggerReconcile}:      models.StatusEmConciliacao,
		{models.StatusEmConciliacao, TriggerArchive}:         models.StatusArquivado,
		{models.StatusValidando, TriggerRevise}:              models.StatusPendenteRevisao,
		{models.StatusPagoAConciliar, TriggerRevise}:         models.StatusPendenteRevisao,
		{models.StatusEmConciliacao, TriggerRevise}:          models.StatusPendenteRevisao,
	}}
	for _, s := range models.AllStatuses {
		if !s.IsTerminal() {
			t.edges[edge{s, TriggerReject}] = models.StatusRejeitado
		}
	}
	return t
}

// Next returns the target state for (from, trigger).
func (t *Table) Next(from models.Status, trigger Trigger) (models.Status, bool) {
	to, ok := t.edges[edge{from, trigger}]
	return to, ok
}
