package ledger

import (
	"context"
	"sync"

	"github.com/chronicler-labs/chronicler/core/pkg/contracts"
)

// ActionStore abstracts persistence of actions, batch commitments and status
// transitions. Implementations return contracts.ErrNotFound for unknown
// records. The ledger is the only writer; stores never mutate on read.
type ActionStore interface {
	AppendAction(ctx context.Context, a contracts.Action) error
	GetAction(ctx context.Context, index int64) (contracts.Action, error)
	HasActionID(ctx context.Context, actionID string) (bool, error)
	NextIndex(ctx context.Context) (int64, error)
	SetStatus(ctx context.Context, index int64, status contracts.ActionStatus) error
	SetBatchID(ctx context.Context, startIndex, endIndex, batchID int64) error

	// PendingActions returns the unsealed tail, ordered by index.
	PendingActions(ctx context.Context) ([]contracts.Action, error)
	ActionsInRange(ctx context.Context, startIndex, endIndex int64) ([]contracts.Action, error)
	ListByAgent(ctx context.Context, agentID string, limit, offset int) ([]contracts.Action, error)
	ListByTool(ctx context.Context, toolID string, limit, offset int) ([]contracts.Action, error)

	PutBatch(ctx context.Context, b contracts.BatchCommitment) error
	GetBatch(ctx context.Context, batchID int64) (contracts.BatchCommitment, error)
	NextBatchID(ctx context.Context) (int64, error)
	ListBatches(ctx context.Context) ([]contracts.BatchCommitment, error)

	AppendTransition(ctx context.Context, t contracts.StatusTransition) error
	Transitions(ctx context.Context, index int64) ([]contracts.StatusTransition, error)
}

// MemoryActionStore is a thread-safe in-memory ActionStore for tests and
// single-node deployments.
type MemoryActionStore struct {
	mu          sync.RWMutex
	actions     []contracts.Action
	byID        map[string]int64
	batches     map[int64]contracts.BatchCommitment
	transitions map[int64][]contracts.StatusTransition
}

func NewMemoryActionStore() *MemoryActionStore {
	return &MemoryActionStore{
		byID:        make(map[string]int64),
		batches:     make(map[int64]contracts.BatchCommitment),
		transitions: make(map[int64][]contracts.StatusTransition),
	}
}

func (s *MemoryActionStore) AppendAction(ctx context.Context, a contracts.Action) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.actions = append(s.actions, a)
	s.byID[a.ActionID] = a.Index
	return nil
}

func (s *MemoryActionStore) GetAction(ctx context.Context, index int64) (contracts.Action, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	if index < 0 || index >= int64(len(s.actions)) {
		return contracts.Action{}, contracts.ErrNotFound
	}
	return s.actions[index], nil
}

func (s *MemoryActionStore) HasActionID(ctx context.Context, actionID string) (bool, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	_, ok := s.byID[actionID]
	return ok, nil
}

func (s *MemoryActionStore) NextIndex(ctx context.Context) (int64, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return int64(len(s.actions)), nil
}

func (s *MemoryActionStore) SetStatus(ctx context.Context, index int64, status contracts.ActionStatus) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if index < 0 || index >= int64(len(s.actions)) {
		return contracts.ErrNotFound
	}
	s.actions[index].Status = status
	return nil
}

func (s *MemoryActionStore) SetBatchID(ctx context.Context, startIndex, endIndex, batchID int64) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if startIndex < 0 || endIndex >= int64(len(s.actions)) {
		return contracts.ErrNotFound
	}
	for i := startIndex; i <= endIndex; i++ {
		s.actions[i].BatchID = batchID
	}
	return nil
}

func (s *MemoryActionStore) PendingActions(ctx context.Context) ([]contracts.Action, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	var out []contracts.Action
	for _, a := range s.actions {
		if a.BatchID == contracts.BatchUnassigned {
			out = append(out, a)
		}
	}
	return out, nil
}

func (s *MemoryActionStore) ActionsInRange(ctx context.Context, startIndex, endIndex int64) ([]contracts.Action, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	if startIndex < 0 || endIndex >= int64(len(s.actions)) || startIndex > endIndex {
		return nil, contracts.ErrNotFound
	}
	out := make([]contracts.Action, endIndex-startIndex+1)
	copy(out, s.actions[startIndex:endIndex+1])
	return out, nil
}

func paginate(matched []contracts.Action, limit, offset int) []contracts.Action {
	if offset >= len(matched) {
		return nil
	}
	matched = matched[offset:]
	if limit > 0 && limit < len(matched) {
		matched = matched[:limit]
	}
	return matched
}

func (s *MemoryActionStore) ListByAgent(ctx context.Context, agentID string, limit, offset int) ([]contracts.Action, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	var matched []contracts.Action
	for _, a := range s.actions {
		if a.AgentID == agentID {
			matched = append(matched, a)
		}
	}
	return paginate(matched, limit, offset), nil
}

func (s *MemoryActionStore) ListByTool(ctx context.Context, toolID string, limit, offset int) ([]contracts.Action, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	var matched []contracts.Action
	for _, a := range s.actions {
		if a.ToolID == toolID {
			matched = append(matched, a)
		}
	}
	return paginate(matched, limit, offset), nil
}

func (s *MemoryActionStore) PutBatch(ctx context.Context, b contracts.BatchCommitment) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.batches[b.BatchID] = b
	return nil
}

func (s *MemoryActionStore) GetBatch(ctx context.Context, batchID int64) (contracts.BatchCommitment, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	b, ok := s.batches[batchID]
	if !ok {
		return contracts.BatchCommitment{}, contracts.ErrNotFound
	}
	return b, nil
}

func (s *MemoryActionStore) NextBatchID(ctx context.Context) (int64, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return int64(len(s.batches)) + 1, nil
}

func (s *MemoryActionStore) ListBatches(ctx context.Context) ([]contracts.BatchCommitment, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	out := make([]contracts.BatchCommitment, 0, len(s.batches))
	for id := int64(1); id <= int64(len(s.batches)); id++ {
		out = append(out, s.batches[id])
	}
	return out, nil
}

func (s *MemoryActionStore) AppendTransition(ctx context.Context, t contracts.StatusTransition) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.transitions[t.ActionIndex] = append(s.transitions[t.ActionIndex], t)
	return nil
}

func (s *MemoryActionStore) Transitions(ctx context.Context, index int64) ([]contracts.StatusTransition, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	out := make([]contracts.StatusTransition, len(s.transitions[index]))
	copy(out, s.transitions[index])
	return out, nil
}
