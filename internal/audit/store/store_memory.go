package store

import (
	"context"
	"sync"

	"docflow/internal/audit"
	id "docflow/pkg/domain"
)

type InMemoryStore struct {
	mu      sync.RWMutex
	entries map[id.DocumentID][]audit.Entry
}

func NewInMemory() *InMemoryStore {
	return &InMemoryStore{entries: make(map[id.DocumentID][]audit.Entry)}
}

func (s *InMemoryStore) Append(_ context.Context, entry audit.Entry) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.entries[entry.DocumentID] = append(s.entries[entry.DocumentID], entry)
	return nil
}

// ListByDocument returns entries in append order.
func (s *InMemoryStore) ListByDocument(_ context.Context, documentID id.DocumentID) ([]audit.Entry, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return append([]audit.Entry{}, s.entries[documentID]...), nil
}

func (s *InMemoryStore) Clear() {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.entries = make(map[id.DocumentID][]audit.Entry)
}
