package ratelimit

import (
	"context"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"github.com/stretchr/testify/suite"
)

type InMemoryStoreSuite struct {
	suite.Suite
	now   time.Time
	store *InMemoryStore
}

func TestInMemoryStoreSuite(t *testing.T) {
	suite.Run(t, new(InMemoryStoreSuite))
}

func (s *InMemoryStoreSuite) SetupTest() {
	s.now = time.Date(2026, 3, 1, 12, 0, 0, 0, time.UTC)
	s.store = NewInMemory().WithClock(func() time.Time { return s.now })
}

func (s *InMemoryStoreSuite) TestLimitWithinWindow() {
	ctx := context.Background()
	for i := range 3 {
		res, err := s.store.AllowN(ctx, "k", 1, 3, time.Minute)
		s.Require().NoError(err)
		s.True(res.Allowed)
		s.Equal(2-i, res.Remaining)
		s.Equal(s.now.Add(time.Minute), res.ResetAt)
	}

	res, err := s.store.AllowN(ctx, "k", 1, 3, time.Minute)
	s.Require().NoError(err)
	s.False(res.Allowed)
	s.Equal(0, res.Remaining)
	s.Equal(60, res.RetryAfter)
}

func (s *InMemoryStoreSuite) TestWindowSlides() {
	ctx := context.Background()
	_, err := s.store.AllowN(ctx, "k", 1, 2, time.Minute)
	s.Require().NoError(err)

	s.now = s.now.Add(30 * time.Second)
	_, err = s.store.AllowN(ctx, "k", 1, 2, time.Minute)
	s.Require().NoError(err)

	res, err := s.store.AllowN(ctx, "k", 1, 2, time.Minute)
	s.Require().NoError(err)
	s.False(res.Allowed)
	s.Equal(30, res.RetryAfter)

	s.now = s.now.Add(30 * time.Second)
	res, err = s.store.AllowN(ctx, "k", 1, 2, time.Minute)
	s.Require().NoError(err)
	s.True(res.Allowed, "the first request left the window")
	s.Equal(0, res.Remaining)
}

func (s *InMemoryStoreSuite) TestKeysAreIndependent() {
	ctx := context.Background()
	res, err := s.store.AllowN(ctx, "a", 1, 1, time.Minute)
	s.Require().NoError(err)
	s.True(res.Allowed)

	res, err = s.store.AllowN(ctx, "a", 1, 1, time.Minute)
	s.Require().NoError(err)
	s.False(res.Allowed)

	res, err = s.store.AllowN(ctx, "b", 1, 1, time.Minute)
	s.Require().NoError(err)
	s.True(res.Allowed)
}

func (s *InMemoryStoreSuite) TestCostLargerThanRemaining() {
	ctx := context.Background()
	res, err := s.store.AllowN(ctx, "k", 4, 5, time.Minute)
	s.Require().NoError(err)
	s.True(res.Allowed)
	s.Equal(1, res.Remaining)

	res, err = s.store.AllowN(ctx, "k", 2, 5, time.Minute)
	s.Require().NoError(err)
	s.False(res.Allowed)
	s.Equal(1, res.Remaining)
}

func (s *InMemoryStoreSuite) TestConcurrentCallersNeverExceedLimit() {
	store := NewInMemory()
	const (
		callers = 50
		limit   = 10
	)
	var (
		wg      sync.WaitGroup
		allowed atomic.Int32
	)
	for range callers {
		wg.Add(1)
		go func() {
			defer wg.Done()
			res, err := store.AllowN(context.Background(), "k", 1, limit, time.Minute)
			if err == nil && res.Allowed {
				allowed.Add(1)
			}
		}()
	}
	wg.Wait()
	s.Equal(int32(limit), allowed.Load())
}
