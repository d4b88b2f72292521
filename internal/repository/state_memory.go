package repository

import (
	"context"
	"errors"
	"sync"
	"time"

	"github.com/acosmic/acosmibot-api/internal/domain"
)

type stateEntry struct {
	state    domain.OAuthState
	consumed bool
}

// MemoryStateStore keeps OAuth states in process memory. Consumed states stay
// as tombstones for retention past their expiry so replays can be told apart
// from unknown values.
type MemoryStateStore struct {
	mu        sync.Mutex
	states    map[string]*stateEntry
	retention time.Duration
}

// NewMemoryStateStore creates an empty MemoryStateStore.
func NewMemoryStateStore(retention time.Duration) *MemoryStateStore {
	return &MemoryStateStore{
		states:    make(map[string]*stateEntry),
		retention: retention,
	}
}

// Save stores a fresh state.
func (s *MemoryStateStore) Save(_ context.Context, state domain.OAuthState) error {
	if state.Value == "" {
		return errors.New("oauth state value is empty")
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	if _, exists := s.states[state.Value]; exists {
		return errors.New("oauth state collision")
	}
	s.states[state.Value] = &stateEntry{state: state}
	return nil
}

// Consume atomically checks and invalidates value. Exactly one caller can
// consume a given state.
func (s *MemoryStateStore) Consume(_ context.Context, value string, now time.Time) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	entry, ok := s.states[value]
	switch {
	case !ok:
		return domain.ErrStateUnknown
	case entry.consumed:
		return domain.ErrStateReplay
	case entry.state.IsExpired(now):
		return domain.ErrStateExpired
	}
	entry.consumed = true
	return nil
}

// Sweep drops states whose expiry plus retention has passed and returns how
// many were removed.
func (s *MemoryStateStore) Sweep(now time.Time) int {
	s.mu.Lock()
	defer s.mu.Unlock()

	removed := 0
	for value, entry := range s.states {
		if !now.Before(entry.state.ExpiresAt.Add(s.retention)) {
			delete(s.states, value)
			removed++
		}
	}
	return removed
}

// Len returns the number of tracked states, tombstones included.
func (s *MemoryStateStore) Len() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return len(s.states)
}
