package ratelimit

import (
	"context"
	"sync"
	"time"
)

// InMemoryStore keeps request timestamps per key. Not shared between
// instances; use RedisStore when running more than one.
type InMemoryStore struct {
	mu      sync.Mutex
	windows map[string][]time.Time
	now     func() time.Time
}

func NewInMemory() *InMemoryStore {
	return &InMemoryStore{
		windows: make(map[string][]time.Time),
		now:     time.Now,
	}
}

// WithClock replaces the time source. Tests only.
func (s *InMemoryStore) WithClock(now func() time.Time) *InMemoryStore {
	s.now = now
	return s
}

func (s *InMemoryStore) AllowN(_ context.Context, key string, cost, limit int, window time.Duration) (*Result, error) {
	if cost < 1 {
		cost = 1
	}
	s.mu.Lock()
	defer s.mu.Unlock()

	now := s.now()
	stamps := prune(s.windows[key], now.Add(-window))

	if len(stamps)+cost > limit {
		resetAt := now.Add(window)
		if len(stamps) > 0 {
			resetAt = stamps[0].Add(window)
		}
		s.store(key, stamps)
		return &Result{
			Allowed:    false,
			Limit:      limit,
			Remaining:  max(limit-len(stamps), 0),
			ResetAt:    resetAt,
			RetryAfter: retryAfter(now, resetAt),
		}, nil
	}

	for range cost {
		stamps = append(stamps, now)
	}
	s.store(key, stamps)
	return &Result{
		Allowed:   true,
		Limit:     limit,
		Remaining: limit - len(stamps),
		ResetAt:   stamps[0].Add(window),
	}, nil
}

func (s *InMemoryStore) store(key string, stamps []time.Time) {
	if len(stamps) == 0 {
		delete(s.windows, key)
		return
	}
	s.windows[key] = stamps
}

// prune drops timestamps at or before cutoff. stamps is sorted ascending.
func prune(stamps []time.Time, cutoff time.Time) []time.Time {
	i := 0
	for ; i < len(stamps); i++ {
		if stamps[i].After(cutoff) {
			break
		}
	}
	return stamps[i:]
}
