package circuit

import (
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/suite"
)

type BreakerSuite struct {
	suite.Suite
	now     time.Time
	breaker *Breaker
}

func TestBreakerSuite(t *testing.T) {
	suite.Run(t, new(BreakerSuite))
}

func (s *BreakerSuite) SetupTest() {
	s.now = time.Date(2026, 1, 1, 0, 0, 0, 0, time.UTC)
	s.breaker = New("company-detail",
		WithFailureThreshold(3),
		WithSuccessThreshold(2),
		WithCooldown(time.Minute),
		WithClock(func() time.Time { return s.now }),
	)
}

func (s *BreakerSuite) fail(n int) {
	for range n {
		s.breaker.RecordFailure()
	}
}

func (s *BreakerSuite) TestStartsClosed() {
	s.Equal("company-detail", s.breaker.Name())
	s.Equal(StateClosed, s.breaker.State())
	s.True(s.breaker.Allow())
}

func (s *BreakerSuite) TestOpensOnConsecutiveFailures() {
	s.fail(2)
	s.False(s.breaker.IsOpen())

	useFallback, change := s.breaker.RecordFailure()
	s.True(useFallback)
	s.True(change.Opened)
	s.True(s.breaker.IsOpen())
	s.False(s.breaker.Allow())
}

func (s *BreakerSuite) TestSuccessBreaksTheStreak() {
	s.fail(2)
	s.breaker.RecordSuccess()
	s.fail(2)
	s.False(s.breaker.IsOpen())
}

func (s *BreakerSuite) TestProbeAfterCooldown() {
	s.fail(3)

	s.now = s.now.Add(59 * time.Second)
	s.False(s.breaker.Allow())
	s.now = s.now.Add(time.Second)
	s.True(s.breaker.Allow())

	s.Run("failed probe re-arms the cooldown", func() {
		useFallback, change := s.breaker.RecordFailure()
		s.True(useFallback)
		s.False(change.Opened)
		s.False(s.breaker.Allow())
	})

	s.Run("closes after enough successful probes", func() {
		s.now = s.now.Add(time.Minute)
		usePrimary, change := s.breaker.RecordSuccess()
		s.False(usePrimary)
		s.False(change.Closed)

		usePrimary, change = s.breaker.RecordSuccess()
		s.True(usePrimary)
		s.True(change.Closed)
		s.Equal(StateClosed, s.breaker.State())
	})
}

func (s *BreakerSuite) TestFailureWhileOpenResetsProbeSuccesses() {
	s.fail(3)
	s.breaker.RecordSuccess()
	s.breaker.RecordFailure()
	s.breaker.RecordSuccess()
	s.True(s.breaker.IsOpen())
	s.breaker.RecordSuccess()
	s.False(s.breaker.IsOpen())
}

func (s *BreakerSuite) TestReset() {
	s.fail(3)
	s.breaker.Reset()
	s.Equal(StateClosed, s.breaker.State())
	s.True(s.breaker.Allow())
}

func TestBreakerConcurrentUse(t *testing.T) {
	b := New("company-stakeholders", WithFailureThreshold(1000))

	var wg sync.WaitGroup
	for range 50 {
		wg.Go(func() {
			for range 10 {
				b.RecordFailure()
				b.Allow()
			}
		})
	}
	wg.Wait()

	assert.False(t, b.IsOpen())
}
