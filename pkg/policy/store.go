// Package policy implements the policy store: named limit bundles, per-subject
// assignments and default-policy fallback resolution.
package policy

import (
	"context"
	"sort"
	"sync"

	"github.com/chronicler-labs/chronicler/core/pkg/contracts"
)

// Store abstracts persistence of policies and assignments. Implementations
// return contracts.ErrNotFound for unknown records and never hand out shared
// mutable state.
type Store interface {
	GetPolicy(ctx context.Context, policyID int64) (contracts.Policy, error)
	PutPolicy(ctx context.Context, p contracts.Policy) error
	// NextPolicyID allocates the next free policy id (> DefaultPolicyID).
	NextPolicyID(ctx context.Context) (int64, error)
	ListPolicies(ctx context.Context) ([]contracts.Policy, error)

	GetAssignment(ctx context.Context, kind contracts.SubjectKind, subjectID string) (contracts.PolicyAssignment, error)
	PutAssignment(ctx context.Context, a contracts.PolicyAssignment) error
	DeleteAssignment(ctx context.Context, kind contracts.SubjectKind, subjectID string) error
}

type assignmentKey struct {
	kind      contracts.SubjectKind
	subjectID string
}

// MemoryStore is a thread-safe in-memory Store for tests and single-node
// deployments.
type MemoryStore struct {
	mu          sync.RWMutex
	policies    map[int64]contracts.Policy
	assignments map[assignmentKey]contracts.PolicyAssignment
	nextID      int64
}

func NewMemoryStore() *MemoryStore {
	return &MemoryStore{
		policies:    make(map[int64]contracts.Policy),
		assignments: make(map[assignmentKey]contracts.PolicyAssignment),
		nextID:      contracts.DefaultPolicyID + 1,
	}
}

func (s *MemoryStore) GetPolicy(ctx context.Context, policyID int64) (contracts.Policy, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	p, ok := s.policies[policyID]
	if !ok {
		return contracts.Policy{}, contracts.ErrNotFound
	}
	return p, nil
}

func (s *MemoryStore) PutPolicy(ctx context.Context, p contracts.Policy) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.policies[p.PolicyID] = p
	if p.PolicyID >= s.nextID {
		s.nextID = p.PolicyID + 1
	}
	return nil
}

func (s *MemoryStore) NextPolicyID(ctx context.Context) (int64, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	id := s.nextID
	s.nextID++
	return id, nil
}

func (s *MemoryStore) ListPolicies(ctx context.Context) ([]contracts.Policy, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	out := make([]contracts.Policy, 0, len(s.policies))
	for _, p := range s.policies {
		out = append(out, p)
	}
	sort.Slice(out, func(i, j int) bool { return out[i].PolicyID < out[j].PolicyID })
	return out, nil
}

func (s *MemoryStore) GetAssignment(ctx context.Context, kind contracts.SubjectKind, subjectID string) (contracts.PolicyAssignment, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	a, ok := s.assignments[assignmentKey{kind, subjectID}]
	if !ok {
		return contracts.PolicyAssignment{}, contracts.ErrNotFound
	}
	return a, nil
}

func (s *MemoryStore) PutAssignment(ctx context.Context, a contracts.PolicyAssignment) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.assignments[assignmentKey{a.SubjectKind, a.SubjectID}] = a
	return nil
}

func (s *MemoryStore) DeleteAssignment(ctx context.Context, kind contracts.SubjectKind, subjectID string) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	key := assignmentKey{kind, subjectID}
	if _, ok := s.assignments[key]; !ok {
		return contracts.ErrNotFound
	}
	delete(s.assignments, key)
	return nil
}
