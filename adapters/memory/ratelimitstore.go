package memory

import (
	"context"
	"sync"
	"time"

	"github.com/ambrood/sitepulse/domain/ratelimit"
	"github.com/ambrood/sitepulse/ports"
)

// RateLimitStore is an in-memory implementation of ports.RateLimitStore.
// State does not survive a restart; acceptable for a best-effort ingestion
// guard.
type RateLimitStore struct {
	mu    sync.RWMutex
	state map[string]ratelimit.WindowState
}

// NewRateLimitStore creates a new in-memory rate limit store.
func NewRateLimitStore() *RateLimitStore {
	return &RateLimitStore{
		state: make(map[string]ratelimit.WindowState),
	}
}

// Get retrieves current rate limit state for a key.
func (s *RateLimitStore) Get(ctx context.Context, key string) (ratelimit.WindowState, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.state[key], nil
}

// Set updates rate limit state for a key.
func (s *RateLimitStore) Set(ctx context.Context, key string, state ratelimit.WindowState) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.state[key] = state
	return nil
}

// Cleanup drops keys whose windows have fully expired so the map does not
// grow with every client address ever seen.
func (s *RateLimitStore) Cleanup(ctx context.Context, cfg ratelimit.Config, now time.Time) (int, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	removed := 0
	for key, state := range s.state {
		if ratelimit.Expired(state, cfg, now) {
			delete(s.state, key)
			removed++
		}
	}
	return removed, nil
}

// Len returns the number of tracked keys (for tests).
func (s *RateLimitStore) Len() int {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return len(s.state)
}

// Ensure interface compliance.
var _ ports.RateLimitStore = (*RateLimitStore)(nil)
