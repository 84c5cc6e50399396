package ratelimit

import (
	"fmt"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/require"
	"github.com/stretchr/testify/suite"
)

const (
	testLimit  = 10
	testWindow = time.Minute
)

type WindowStoreSuite struct {
	suite.Suite
	store *WindowStore
	start time.Time
}

func TestWindowStoreSuite(t *testing.T) {
	suite.Run(t, new(WindowStoreSuite))
}

func (s *WindowStoreSuite) SetupTest() {
	store, err := NewWindowStore(100)
	s.Require().NoError(err)
	s.store = store
	s.start = time.Date(2026, 4, 1, 9, 0, 0, 0, time.UTC)
}

func (s *WindowStoreSuite) TestAllow() {
	s.Run("first request allowed", func() {
		res := s.store.Allow("10.0.0.1", testLimit, testWindow, s.start)
		s.True(res.Allowed)
		s.Equal(testLimit, res.Limit)
		s.Equal(testLimit-1, res.Remaining)
		s.Equal(s.start.Add(testWindow), res.ResetAt)
	})

	s.Run("requests up to limit allowed then denied", func() {
		for i := range testLimit {
			res := s.store.Allow("10.0.0.2", testLimit, testWindow, s.start.Add(time.Duration(i)*time.Second))
			s.Require().True(res.Allowed, "request %d", i+1)
		}
		res := s.store.Allow("10.0.0.2", testLimit, testWindow, s.start.Add(15*time.Second))
		s.False(res.Allowed)
		s.Equal(0, res.Remaining)
		s.Equal(s.start.Add(testWindow), res.ResetAt)
	})

	s.Run("allowed again after window rolls", func() {
		for range testLimit {
			s.Require().True(s.store.Allow("10.0.0.3", testLimit, testWindow, s.start).Allowed)
		}
		s.False(s.store.Allow("10.0.0.3", testLimit, testWindow, s.start.Add(30*time.Second)).Allowed)

		res := s.store.Allow("10.0.0.3", testLimit, testWindow, s.start.Add(61*time.Second))
		s.True(res.Allowed)
		s.Equal(testLimit-1, res.Remaining)
	})

	s.Run("rejected requests are not recorded", func() {
		for range testLimit {
			s.store.Allow("10.0.0.4", testLimit, testWindow, s.start)
		}
		for range 5 {
			s.store.Allow("10.0.0.4", testLimit, testWindow, s.start.Add(10*time.Second))
		}
		s.Equal(testLimit, s.store.Count("10.0.0.4", testWindow, s.start.Add(10*time.Second)))
	})

	s.Run("keys are isolated", func() {
		for range testLimit {
			s.store.Allow("10.0.0.5", testLimit, testWindow, s.start)
		}
		s.True(s.store.Allow("10.0.0.6", testLimit, testWindow, s.start).Allowed)
	})
}

func (s *WindowStoreSuite) TestSlidingNotFixed() {
	// 5 early and 5 late requests; the early ones expire first.
	for range 5 {
		s.store.Allow("k", testLimit, testWindow, s.start)
	}
	for range 5 {
		s.store.Allow("k", testLimit, testWindow, s.start.Add(40*time.Second))
	}
	s.False(s.store.Allow("k", testLimit, testWindow, s.start.Add(50*time.Second)).Allowed)
	s.True(s.store.Allow("k", testLimit, testWindow, s.start.Add(61*time.Second)).Allowed)
	s.Equal(6, s.store.Count("k", testWindow, s.start.Add(61*time.Second)))
}

func (s *WindowStoreSuite) TestCountUnknownKey() {
	s.Equal(0, s.store.Count("unknown", testWindow, s.start))
}

func (s *WindowStoreSuite) TestBoundedKeys() {
	for i := range 150 {
		s.store.Allow(fmt.Sprintf("ip-%d", i), testLimit, testWindow, s.start)
	}
	s.Equal(100, s.store.Len())
}

func TestWindowStoreConcurrentSameKey(t *testing.T) {
	t.Parallel()

	store, err := NewWindowStore(10)
	require.NoError(t, err)
	now := time.Now()

	var wg sync.WaitGroup
	var mu sync.Mutex
	allowed := 0
	for range 50 {
		wg.Add(1)
		go func() {
			defer wg.Done()
			if store.Allow("shared", testLimit, testWindow, now).Allowed {
				mu.Lock()
				allowed++
				mu.Unlock()
			}
		}()
	}
	wg.Wait()

	require.Equal(t, testLimit, allowed)
}
