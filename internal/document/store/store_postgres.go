package store

import (
	"context"
	"database/sql"
	"encoding/json"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/google/uuid"

	"docflow/internal/document/models"
	id "docflow/pkg/domain"
	"docflow/pkg/platform/sentinel"
	txcontext "docflow/pkg/platform/tx"
)

// PostgresStore persists documents in PostgreSQL. OCR and analysis results are
// stored as JSONB columns on the same row, so attaching a result and changing
// status is one UPDATE guarded by the version column.
type PostgresStore struct {
	db *sql.DB
}

func NewPostgres(db *sql.DB) *PostgresStore {
	return &PostgresStore{db: db}
}

type dbExecutor interface {
	ExecContext(ctx context.Context, query string, args ...any) (sql.Result, error)
	QueryContext(ctx context.Context, query string, args ...any) (*sql.Rows, error)
	QueryRowContext(ctx context.Context, query string, args ...any) *sql.Row
}

func (s *PostgresStore) execer(ctx context.Context) dbExecutor {
	if tx, ok := txcontext.From(ctx); ok {
		return tx
	}
	return s.db
}

const documentColumns = `id, tenant_id, owner_id, filename, mime_type, size, storage_ref,
	status, category, metadata, version, created_at, updated_at, deleted_at, ocr, analysis`

func (s *PostgresStore) Create(ctx context.Context, doc *models.Document) error {
	row, err := toRow(doc)
	if err != nil {
		return err
	}
	query := `INSERT INTO documents (` + documentColumns + `)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $11, $12, $13, $14, $15, $16)`
	_, err = s.execer(ctx).ExecContext(ctx, query,
		row.id, row.tenantID, row.ownerID, doc.Filename, doc.MimeType, doc.Size, doc.StorageRef,
		string(doc.Status), doc.Category, row.metadata, doc.Version, doc.CreatedAt, doc.UpdatedAt,
		doc.DeletedAt, row.ocr, row.analysis,
	)
	if err != nil {
		if isUniqueViolation(err) {
			return sentinel.ErrConflict
		}
		return fmt.Errorf("insert document: %w", err)
	}
	return nil
}

func (s *PostgresStore) Get(ctx context.Context, docID id.DocumentID) (*models.Document, error) {
	query := `SELECT ` + documentColumns + ` FROM documents WHERE id = $1 AND deleted_at IS NULL`
	doc, err := scanDocument(s.execer(ctx).QueryRowContext(ctx, query, uuid.UUID(docID)))
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, sentinel.ErrNotFound
		}
		return nil, fmt.Errorf("find document: %w", err)
	}
	return doc, nil
}

// Replace overwrites every mutable column when the stored version equals
// expectedVersion. tenant_id and created_at are never written.
func (s *PostgresStore) Replace(ctx context.Context, doc *models.Document, expectedVersion int64) error {
	row, err := toRow(doc)
	if err != nil {
		return err
	}
	query := `
		UPDATE documents SET
			filename = $3, mime_type = $4, size = $5, storage_ref = $6, status = $7,
			category = $8, metadata = $9, version = $14, updated_at = $10,
			deleted_at = $11, ocr = $12, analysis = $13
		WHERE id = $1 AND version = $2 AND deleted_at IS NULL
	`
	res, err := s.execer(ctx).ExecContext(ctx, query,
		row.id, expectedVersion, doc.Filename, doc.MimeType, doc.Size, doc.StorageRef,
		string(doc.Status), doc.Category, row.metadata, doc.UpdatedAt, doc.DeletedAt,
		row.ocr, row.analysis, expectedVersion+1,
	)
	if err != nil {
		return fmt.Errorf("update document: %w", err)
	}
	affected, err := res.RowsAffected()
	if err != nil {
		return fmt.Errorf("update document: %w", err)
	}
	if affected == 1 {
		doc.Version = expectedVersion + 1
		return nil
	}

	var exists bool
	err = s.execer(ctx).QueryRowContext(ctx,
		`SELECT EXISTS (SELECT 1 FROM documents WHERE id = $1 AND deleted_at IS NULL)`,
		row.id,
	).Scan(&exists)
	if err != nil {
		return fmt.Errorf("check document: %w", err)
	}
	if !exists {
		return sentinel.ErrNotFound
	}
	return sentinel.ErrConflict
}

func (s *PostgresStore) List(ctx context.Context, filter models.Filter) ([]*models.Document, error) {
	var (
		where []string
		args  []any
	)
	add := func(clause string, arg any) {
		args = append(args, arg)
		where = append(where, fmt.Sprintf(clause, len(args)))
	}
	where = append(where, "deleted_at IS NULL")
	if filter.TenantID != nil {
		add("tenant_id = $%d", uuid.UUID(*filter.TenantID))
	}
	if filter.Status != nil {
		add("status = $%d", string(*filter.Status))
	}
	if filter.Category != nil {
		add("category = $%d", *filter.Category)
	}
	if filter.From != nil {
		add("created_at >= $%d", *filter.From)
	}
	if filter.To != nil {
		add("created_at < $%d", *filter.To)
	}
	args = append(args, filter.Limit, filter.Offset)
	query := fmt.Sprintf(`SELECT %s FROM documents WHERE %s
		ORDER BY created_at DESC, id ASC LIMIT $%d OFFSET $%d`,
		documentColumns, strings.Join(where, " AND "), len(args)-1, len(args))

	rows, err := s.execer(ctx).QueryContext(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("query documents: %w", err)
	}
	defer rows.Close()

	docs := make([]*models.Document, 0)
	for rows.Next() {
		doc, err := scanDocument(rows)
		if err != nil {
			return nil, fmt.Errorf("scan document: %w", err)
		}
		docs = append(docs, doc)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterate documents: %w", err)
	}
	return docs, nil
}

func (s *PostgresStore) UsageBytes(ctx context.Context, tenantID id.TenantID) (int64, error) {
	var total int64
	err := s.execer(ctx).QueryRowContext(ctx,
		`SELECT COALESCE(SUM(size), 0) FROM documents WHERE tenant_id = $1 AND deleted_at IS NULL`,
		uuid.UUID(tenantID),
	).Scan(&total)
	if err != nil {
		return 0, fmt.Errorf("sum tenant usage: %w", err)
	}
	return total, nil
}

func (s *PostgresStore) StatusCounts(ctx context.Context, tenantID *id.TenantID) (map[models.Status]int, error) {
	query := `SELECT status, COUNT(*) FROM documents WHERE deleted_at IS NULL`
	var args []any
	if tenantID != nil {
		query += ` AND tenant_id = $1`
		args = append(args, uuid.UUID(*tenantID))
	}
	query += ` GROUP BY status`

	rows, err := s.execer(ctx).QueryContext(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("count documents: %w", err)
	}
	defer rows.Close()

	counts := make(map[models.Status]int)
	for rows.Next() {
		var (
			status string
			n      int
		)
		if err := rows.Scan(&status, &n); err != nil {
			return nil, fmt.Errorf("scan status count: %w", err)
		}
		counts[models.Status(status)] = n
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterate status counts: %w", err)
	}
	return counts, nil
}

type documentRow struct {
	id       uuid.UUID
	tenantID uuid.UUID
	ownerID  uuid.UUID
	metadata []byte
	ocr      []byte
	analysis []byte
}

func toRow(doc *models.Document) (documentRow, error) {
	meta := doc.Metadata
	if meta == nil {
		meta = map[string]string{}
	}
	metaBytes, err := json.Marshal(meta)
	if err != nil {
		return documentRow{}, fmt.Errorf("marshal metadata: %w", err)
	}
	row := documentRow{
		id:       uuid.UUID(doc.ID),
		tenantID: uuid.UUID(doc.TenantID),
		ownerID:  uuid.UUID(doc.OwnerID),
		metadata: metaBytes,
	}
	if doc.OCR != nil {
		if row.ocr, err = json.Marshal(doc.OCR); err != nil {
			return documentRow{}, fmt.Errorf("marshal ocr result: %w", err)
		}
	}
	if doc.Analysis != nil {
		if row.analysis, err = json.Marshal(doc.Analysis); err != nil {
			return documentRow{}, fmt.Errorf("marshal analysis: %w", err)
		}
	}
	return row, nil
}

type scanner interface {
	Scan(dest ...any) error
}

func scanDocument(sc scanner) (*models.Document, error) {
	var (
		doc       models.Document
		docID     uuid.UUID
		tenantID  uuid.UUID
		ownerID   uuid.UUID
		status    string
		metadata  []byte
		deletedAt sql.NullTime
		ocr       []byte
		analysis  []byte
		createdAt time.Time
		updatedAt time.Time
	)
	err := sc.Scan(&docID, &tenantID, &ownerID, &doc.Filename, &doc.MimeType, &doc.Size,
		&doc.StorageRef, &status, &doc.Category, &metadata, &doc.Version, &createdAt,
		&updatedAt, &deletedAt, &ocr, &analysis)
	if err != nil {
		return nil, err
	}
	doc.ID = id.DocumentID(docID)
	doc.TenantID = id.TenantID(tenantID)
	doc.OwnerID = id.UserID(ownerID)
	doc.Status = models.Status(status)
	doc.CreatedAt = createdAt.UTC()
	doc.UpdatedAt = updatedAt.UTC()
	if deletedAt.Valid {
		t := deletedAt.Time.UTC()
		doc.DeletedAt = &t
	}
	if len(metadata) > 0 {
		if err := json.Unmarshal(metadata, &doc.Metadata); err != nil {
			return nil, fmt.Errorf("unmarshal metadata: %w", err)
		}
	}
	if len(ocr) > 0 {
		doc.OCR = &models.OCRResult{}
		if err := json.Unmarshal(ocr, doc.OCR); err != nil {
			return nil, fmt.Errorf("unmarshal ocr result: %w", err)
		}
	}
	if len(analysis) > 0 {
		doc.Analysis = &models.AIAnalysis{}
		if err := json.Unmarshal(analysis, doc.Analysis); err != nil {
			return nil, fmt.Errorf("unmarshal analysis: %w", err)
		}
	}
	return &doc, nil
}
