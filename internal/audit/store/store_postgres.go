package store

import (
	"context"
	"database/sql"
	"fmt"

	"github.com/google/uuid"

	"docflow/internal/audit"
	id "docflow/pkg/domain"
	txcontext "docflow/pkg/platform/tx"
)

// PostgresStore appends audit entries to document_audit. When ctx carries a
// transaction the insert joins it, so a transition and its audit entry commit
// together.
type PostgresStore struct {
	db *sql.DB
}

func NewPostgres(db *sql.DB) *PostgresStore {
	return &PostgresStore{db: db}
}

type dbExecutor interface {
	ExecContext(ctx context.Context, query string, args ...any) (sql.Result, error)
}

func (s *PostgresStore) execer(ctx context.Context) dbExecutor {
	if tx, ok := txcontext.From(ctx); ok {
		return tx
	}
	return s.db
}

func (s *PostgresStore) Append(ctx context.Context, entry audit.Entry) error {
	query := `
		INSERT INTO document_audit (
			id, document_id, tenant_id, actor, trigger,
			from_status, to_status, outcome, reason, request_id, created_at
		)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $11)
	`
	_, err := s.execer(ctx).ExecContext(ctx, query,
		uuid.UUID(entry.ID),
		uuid.UUID(entry.DocumentID),
		uuid.UUID(entry.TenantID),
		entry.Actor,
		entry.Trigger,
		entry.From,
		entry.To,
		string(entry.Outcome),
		entry.Reason,
		entry.RequestID,
		entry.Timestamp,
	)
	if err != nil {
		return fmt.Errorf("insert audit entry: %w", err)
	}
	return nil
}

func (s *PostgresStore) ListByDocument(ctx context.Context, documentID id.DocumentID) ([]audit.Entry, error) {
	query := `
		SELECT id, document_id, tenant_id, actor, trigger,
		       from_status, to_status, outcome, reason, request_id, created_at
		FROM document_audit
		WHERE document_id = $1
		ORDER BY created_at ASC, seq ASC
	`
	rows, err := s.db.QueryContext(ctx, query, uuid.UUID(documentID))
	if err != nil {
		return nil, fmt.Errorf("query audit entries: %w", err)
	}
	defer rows.Close()

	entries := make([]audit.Entry, 0)
	for rows.Next() {
		var (
			entry    audit.Entry
			entryID  uuid.UUID
			docID    uuid.UUID
			tenantID uuid.UUID
			outcome  string
		)
		if err := rows.Scan(&entryID, &docID, &tenantID, &entry.Actor, &entry.Trigger,
			&entry.From, &entry.To, &outcome, &entry.Reason, &entry.RequestID, &entry.Timestamp); err != nil {
			return nil, fmt.Errorf("scan audit entry: %w", err)
		}
		entry.ID = id.AuditEntryID(entryID)
		entry.DocumentID = id.DocumentID(docID)
		entry.TenantID = id.TenantID(tenantID)
		entry.Outcome = audit.Outcome(outcome)
		entries = append(entries, entry)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterate audit entries: %w", err)
	}
	return entries, nil
}
