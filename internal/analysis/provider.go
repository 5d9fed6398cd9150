package analysis

import (
	"context"
	"errors"
	"fmt"

	"docflow/internal/document/models"
)

// Request is the content handed to every provider.
type Request struct {
	Text     string
	Filename string
	Metadata map[string]string
}

// Provider is one independent AI backend.
type Provider interface {
	Name() string
	Analyze(ctx context.Context, req Request) (models.ProviderResult, error)
}

// ErrorCategory is the normalized provider failure taxonomy.
type ErrorCategory string

const (
	ErrorTimeout          ErrorCategory = "timeout"
	ErrorBadData          ErrorCategory = "bad_data"
	ErrorAuthentication   ErrorCategory = "authentication"
	ErrorProviderOutage   ErrorCategory = "provider_outage"
	ErrorContractMismatch ErrorCategory = "contract_mismatch"
	ErrorRateLimited      ErrorCategory = "rate_limited"
	ErrorCircuitOpen      ErrorCategory = "circuit_open"
)

// ProviderError wraps provider failures with a category. Only timeouts,
// outages and rate limiting are retried.
type ProviderError struct {
	Category   ErrorCategory
	Provider   string
	Message    string
	Underlying error
	Retryable  bool
}

func (e *ProviderError) Error() string {
	if e.Underlying != nil {
		return fmt.Sprintf("provider %s [%s]: %s: %v", e.Provider, e.Category, e.Message, e.Underlying)
	}
	return fmt.Sprintf("provider %s [%s]: %s", e.Provider, e.Category, e.Message)
}

func (e *ProviderError) Unwrap() error {
	return e.Underlying
}

func NewProviderError(category ErrorCategory, provider, message string, underlying error) *ProviderError {
	return &ProviderError{
		Category:   category,
		Provider:   provider,
		Message:    message,
		Underlying: underlying,
		Retryable:  category == ErrorTimeout || category == ErrorProviderOutage || category == ErrorRateLimited,
	}
}

// IsRetryable reports whether err is worth another attempt.
func IsRetryable(err error) bool {
	var pe *ProviderError
	if errors.As(err, &pe) {
		return pe.Retryable
	}
	return false
}

// CategoryOf extracts the category, defaulting to provider_outage.
func CategoryOf(err error) ErrorCategory {
	var pe *ProviderError
	if errors.As(err, &pe) {
		return pe.Category
	}
	return ErrorProviderOutage
}

// ErrAnalysisUnavailable means no provider responded before the deadline.
var ErrAnalysisUnavailable = errors.New("analysis unavailable: no provider responded")
