package circuit

import (
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/suite"
)

type BreakerSuite struct {
	suite.Suite
	now time.Time
}

func TestBreakerSuite(t *testing.T) {
	suite.Run(t, new(BreakerSuite))
}

func (s *BreakerSuite) SetupTest() {
	s.now = time.Date(2026, 1, 1, 12, 0, 0, 0, time.UTC)
}

func (s *BreakerSuite) breaker(opts ...Option) *Breaker {
	opts = append([]Option{WithClock(func() time.Time { return s.now })}, opts...)
	return New("openai", opts...)
}

func (s *BreakerSuite) TestDefaults() {
	b := s.breaker()
	s.Equal("openai", b.Name())
	s.Equal(StateClosed, b.State())
	s.True(b.Allow())

	for range 4 {
		b.RecordFailure()
	}
	s.False(b.IsOpen(), "default threshold is five")
	_, change := b.RecordFailure()
	s.True(change.Opened)
}

func (s *BreakerSuite) TestConsecutiveFailuresOpen() {
	b := s.breaker(WithFailureThreshold(3))

	b.RecordFailure()
	b.RecordFailure()
	b.RecordSuccess()
	b.RecordFailure()
	b.RecordFailure()
	s.False(b.IsOpen(), "a success in between resets the streak")

	useFallback, change := b.RecordFailure()
	s.True(useFallback)
	s.True(change.Opened)
	s.Equal(StateOpen, b.State())
	s.False(b.Allow())

	useFallback, change = b.RecordFailure()
	s.True(useFallback)
	s.False(change.Opened, "already open")
}

func (s *BreakerSuite) TestCooldownLetsTrialCallsThrough() {
	b := s.breaker(WithFailureThreshold(1), WithSuccessThreshold(2), WithCooldown(time.Minute))
	b.RecordFailure()

	s.now = s.now.Add(59 * time.Second)
	s.False(b.Allow())

	s.now = s.now.Add(time.Second)
	s.True(b.Allow())
	s.Equal(StateHalfOpen, b.State())

	usePrimary, change := b.RecordSuccess()
	s.False(usePrimary)
	s.False(change.Closed)

	usePrimary, change = b.RecordSuccess()
	s.True(usePrimary)
	s.True(change.Closed)
	s.Equal(StateClosed, b.State())
}

func (s *BreakerSuite) TestFailedTrialRestartsCooldown() {
	b := s.breaker(WithFailureThreshold(1), WithSuccessThreshold(2), WithCooldown(time.Minute))
	b.RecordFailure()

	s.now = s.now.Add(time.Minute)
	s.True(b.Allow())
	b.RecordSuccess()
	b.RecordFailure()

	s.False(b.Allow())
	s.Equal(StateOpen, b.State())

	s.now = s.now.Add(time.Minute)
	s.True(b.Allow())
	b.RecordSuccess()
	s.True(b.IsOpen(), "the earlier trial success was discarded")
	b.RecordSuccess()
	s.False(b.IsOpen())
}

func (s *BreakerSuite) TestReset() {
	b := s.breaker(WithFailureThreshold(1))
	b.RecordFailure()
	s.True(b.IsOpen())

	b.Reset()
	s.Equal(StateClosed, b.State())
	s.True(b.Allow())
}

func (s *BreakerSuite) TestIgnoresNonPositiveOptions() {
	b := s.breaker(WithFailureThreshold(0), WithSuccessThreshold(-1), WithCooldown(0), WithClock(nil))
	for range 5 {
		b.RecordFailure()
	}
	s.True(b.IsOpen())
}

func (s *BreakerSuite) TestConcurrentRecords() {
	b := New("vertex", WithFailureThreshold(1000))
	var wg sync.WaitGroup
	for range 100 {
		wg.Add(2)
		go func() { defer wg.Done(); b.RecordFailure() }()
		go func() { defer wg.Done(); _ = b.Allow() }()
	}
	wg.Wait()
	s.False(b.IsOpen())
}
