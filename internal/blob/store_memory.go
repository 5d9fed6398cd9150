package blob

import (
	"context"
	"slices"
	"sync"
)

// InMemoryStore keeps objects in process memory.
type InMemoryStore struct {
	mu      sync.RWMutex
	objects map[string][]byte
	puts    int
}

func NewInMemory() *InMemoryStore {
	return &InMemoryStore{objects: make(map[string][]byte)}
}

func (s *InMemoryStore) Put(ctx context.Context, key string, data []byte) (Ref, error) {
	if err := ctx.Err(); err != nil {
		return "", err
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	s.puts++
	if _, ok := s.objects[key]; !ok {
		s.objects[key] = slices.Clone(data)
	}
	return Ref(key), nil
}

func (s *InMemoryStore) Get(ctx context.Context, ref Ref) ([]byte, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	s.mu.RLock()
	defer s.mu.RUnlock()
	data, ok := s.objects[string(ref)]
	if !ok {
		return nil, ErrNotFound
	}
	return slices.Clone(data), nil
}

// Len reports how many distinct objects are stored.
func (s *InMemoryStore) Len() int {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return len(s.objects)
}
