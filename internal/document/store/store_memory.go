package store

import (
	"context"
	"slices"
	"strings"
	"sync"

	"docflow/internal/document/models"
	id "docflow/pkg/domain"
	"docflow/pkg/platform/sentinel"
)

// InMemoryStore keeps documents in a map guarded by a RWMutex. Records are
// deep-copied on the way in and out, so a replace is atomic from a reader's
// point of view.
type InMemoryStore struct {
	mu   sync.RWMutex
	docs map[id.DocumentID]*models.Document
}

func NewInMemory() *InMemoryStore {
	return &InMemoryStore{docs: make(map[id.DocumentID]*models.Document)}
}

func (s *InMemoryStore) Create(_ context.Context, doc *models.Document) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if _, ok := s.docs[doc.ID]; ok {
		return sentinel.ErrConflict
	}
	s.docs[doc.ID] = doc.Clone()
	return nil
}

func (s *InMemoryStore) Get(_ context.Context, docID id.DocumentID) (*models.Document, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	doc, ok := s.docs[docID]
	if !ok || doc.IsDeleted() {
		return nil, sentinel.ErrNotFound
	}
	return doc.Clone(), nil
}

// Replace stores doc if the persisted version still equals expectedVersion,
// bumping doc.Version on success.
func (s *InMemoryStore) Replace(_ context.Context, doc *models.Document, expectedVersion int64) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	current, ok := s.docs[doc.ID]
	if !ok || current.IsDeleted() {
		return sentinel.ErrNotFound
	}
	if current.Version != expectedVersion {
		return sentinel.ErrConflict
	}
	doc.Version = expectedVersion + 1
	s.docs[doc.ID] = doc.Clone()
	return nil
}

func (s *InMemoryStore) List(_ context.Context, filter models.Filter) ([]*models.Document, error) {
	s.mu.RLock()
	matched := make([]*models.Document, 0)
	for _, doc := range s.docs {
		if filter.Matches(doc) {
			matched = append(matched, doc.Clone())
		}
	}
	s.mu.RUnlock()

	SortDocuments(matched)
	return paginate(matched, filter.Offset, filter.Limit), nil
}

func (s *InMemoryStore) UsageBytes(_ context.Context, tenantID id.TenantID) (int64, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	var total int64
	for _, doc := range s.docs {
		if doc.TenantID == tenantID && !doc.IsDeleted() {
			total += doc.Size
		}
	}
	return total, nil
}

func (s *InMemoryStore) StatusCounts(_ context.Context, tenantID *id.TenantID) (map[models.Status]int, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	counts := make(map[models.Status]int, len(models.AllStatuses))
	for _, doc := range s.docs {
		if doc.IsDeleted() {
			continue
		}
		if tenantID != nil && doc.TenantID != *tenantID {
			continue
		}
		counts[doc.Status]++
	}
	return counts, nil
}

// SortDocuments orders by CreatedAt descending, then ID ascending, giving a
// total order so repeated listings are identical.
func SortDocuments(docs []*models.Document) {
	slices.SortFunc(docs, func(a, b *models.Document) int {
		if c := b.CreatedAt.Compare(a.CreatedAt); c != 0 {
			return c
		}
		return strings.Compare(a.ID.String(), b.ID.String())
	})
}

func paginate(docs []*models.Document, offset, limit int) []*models.Document {
	if offset >= len(docs) {
		return []*models.Document{}
	}
	end := len(docs)
	if limit > 0 && offset+limit < end {
		end = offset + limit
	}
	return docs[offset:end]
}
