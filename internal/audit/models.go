package audit

import (
	"context"
	"time"

	id "docflow/pkg/domain"
)

// Outcome records what happened to a transition attempt.
type Outcome string

const (
	OutcomeApplied  Outcome = "applied"
	OutcomeRejected Outcome = "rejected"
	OutcomeConflict Outcome = "conflict"
)

// TriggerCreate is the pseudo-trigger recorded when a document is ingested.
const TriggerCreate = "create"

// Entry is one append-only record of a document lifecycle event. Rejected and
// conflicting attempts are recorded too, so the log is a forensic trail of
// every attempt, not only of state changes.
type Entry struct {
	ID         id.AuditEntryID `json:"id"`
	DocumentID id.DocumentID   `json:"document_id"`
	TenantID   id.TenantID     `json:"tenant_id"`
	Actor      string          `json:"actor"`
	Trigger    string          `json:"trigger"`
	From       string          `json:"from"`
	To         string          `json:"to"`
	Outcome    Outcome         `json:"outcome"`
	Reason     string          `json:"reason,omitempty"`
	RequestID  string          `json:"request_id,omitempty"`
	Timestamp  time.Time       `json:"timestamp"`
}

// Store persists entries. Append must join a transaction carried in ctx when
// the implementation supports one.
type Store interface {
	Append(ctx context.Context, entry Entry) error
	ListByDocument(ctx context.Context, documentID id.DocumentID) ([]Entry, error)
}

// Stream forwards committed entries to downstream consumers.
type Stream interface {
	Publish(ctx context.Context, entry Entry) error
}
