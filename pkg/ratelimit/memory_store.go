package ratelimit

import (
	"context"
	"sync"

	"github.com/chronicler-labs/chronicler/core/pkg/contracts"
)

// MemoryStateStore for testing/single-instance deployments.
type MemoryStateStore struct {
	mu     sync.RWMutex
	states map[string]contracts.RateLimitState
}

func NewMemoryStateStore() *MemoryStateStore {
	return &MemoryStateStore{
		states: make(map[string]contracts.RateLimitState),
	}
}

func (s *MemoryStateStore) Get(ctx context.Context, agentID string) (contracts.RateLimitState, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	state, ok := s.states[agentID]
	if !ok {
		return contracts.RateLimitState{AgentID: agentID}, nil
	}
	return state, nil
}

func (s *MemoryStateStore) Put(ctx context.Context, state contracts.RateLimitState) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.states[state.AgentID] = state
	return nil
}
