package handler

import (
	"strings"

	"docflow/internal/audit"
	"docflow/internal/document/models"
	dErrors "docflow/pkg/domain-errors"
)

// UpdateMetadataRequest is the PATCH body for a document.
type UpdateMetadataRequest struct {
	Category *string           `json:"category"`
	Set      map[string]string `json:"set"`
	Unset    []string          `json:"unset"`
}

func (r *UpdateMetadataRequest) Validate() error {
	if r.Category != nil {
		trimmed := strings.TrimSpace(*r.Category)
		r.Category = &trimmed
	}
	return nil
}

func (r *UpdateMetadataRequest) Patch() models.Patch {
	return models.Patch{Category: r.Category, Set: r.Set, Unset: r.Unset}
}

// TransitionRequest fires a user trigger.
type TransitionRequest struct {
	Trigger string `json:"trigger"`
}

func (r *TransitionRequest) Validate() error {
	r.Trigger = strings.ToLower(strings.TrimSpace(r.Trigger))
	if r.Trigger == "" {
		return dErrors.New(dErrors.CodeValidation, "trigger is required")
	}
	return nil
}

type ListResponse struct {
	Documents []*models.Document `json:"documents"`
	Count     int                `json:"count"`
}

type AuditResponse struct {
	Entries []audit.Entry `json:"entries"`
}

type StatsResponse struct {
	Counts map[string]int `json:"counts"`
	Total  int            `json:"total"`
}
