package ratelimit

import (
	"fmt"
	"sync"
	"time"

	lru "github.com/hashicorp/golang-lru/v2"
)

// DefaultMaxTrackedKeys bounds how many client IPs keep a window.
const DefaultMaxTrackedKeys = 100_000

// WindowResult is the outcome of one sliding-window check.
type WindowResult struct {
	Allowed   bool
	Limit     int
	Remaining int
	ResetAt   time.Time
}

// slidingWindow holds request timestamps in arrival order.
type slidingWindow struct {
	mu         sync.Mutex
	timestamps []time.Time
}

// WindowStore keeps a sliding window of request timestamps per key.
// Windows live in a bounded LRU; each window has its own lock so distinct
// keys are checked in parallel.
type WindowStore struct {
	mu      sync.Mutex
	windows *lru.Cache[string, *slidingWindow]
}

// NewWindowStore creates a store tracking at most maxKeys windows.
func NewWindowStore(maxKeys int) (*WindowStore, error) {
	if maxKeys <= 0 {
		maxKeys = DefaultMaxTrackedKeys
	}
	cache, err := lru.New[string, *slidingWindow](maxKeys)
	if err != nil {
		return nil, fmt.Errorf("create window cache: %w", err)
	}
	return &WindowStore{windows: cache}, nil
}

func (s *WindowStore) window(key string) *slidingWindow {
	s.mu.Lock()
	defer s.mu.Unlock()
	if w, ok := s.windows.Get(key); ok {
		return w
	}
	w := &slidingWindow{}
	s.windows.Add(key, w)
	return w
}

// Allow records a request for key at now unless the trailing window
// already holds limit requests.
func (s *WindowStore) Allow(key string, limit int, window time.Duration, now time.Time) WindowResult {
	w := s.window(key)
	w.mu.Lock()
	defer w.mu.Unlock()

	w.prune(now, window)

	if len(w.timestamps) >= limit {
		var resetAt time.Time
		if len(w.timestamps) > 0 {
			resetAt = w.timestamps[0].Add(window)
		} else {
			resetAt = now.Add(window)
		}
		return WindowResult{Allowed: false, Limit: limit, Remaining: 0, ResetAt: resetAt}
	}

	w.timestamps = append(w.timestamps, now)
	return WindowResult{
		Allowed:   true,
		Limit:     limit,
		Remaining: limit - len(w.timestamps),
		ResetAt:   w.timestamps[0].Add(window),
	}
}

// Count returns the number of requests for key inside the trailing window.
func (s *WindowStore) Count(key string, window time.Duration, now time.Time) int {
	w, ok := s.windows.Peek(key)
	if !ok {
		return 0
	}
	w.mu.Lock()
	defer w.mu.Unlock()
	w.prune(now, window)
	return len(w.timestamps)
}

// Len returns the number of tracked keys.
func (s *WindowStore) Len() int {
	return s.windows.Len()
}

// prune drops timestamps at or before now-window.
func (w *slidingWindow) prune(now time.Time, window time.Duration) {
	cutoff := now.Add(-window)
	i := 0
	for ; i < len(w.timestamps); i++ {
		if w.timestamps[i].After(cutoff) {
			break
		}
	}
	w.timestamps = w.timestamps[i:]
}
