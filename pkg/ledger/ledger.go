// Package ledger implements the append-only action ledger: sequential,
// immutable action records, pending-queue management, Merkle-batch sealing
// and inclusion-proof verification.
package ledger

import (
	"context"
	"fmt"
	"log/slog"
	"sync"
	"time"

	"github.com/chronicler-labs/chronicler/core/pkg/audit"
	"github.com/chronicler-labs/chronicler/core/pkg/contracts"
	"github.com/chronicler-labs/chronicler/core/pkg/merkle"
	"github.com/chronicler-labs/chronicler/core/pkg/ratelimit"
	"github.com/chronicler-labs/chronicler/core/pkg/registry"
)

// DefaultBatchThreshold seals a batch automatically once this many actions
// are pending.
const DefaultBatchThreshold = 100

// Ledger owns Action and BatchCommitment records. All mutating operations run
// under one mutex, so every operation observes a consistent queue and no
// check/commit pair can interleave with another writer.
type Ledger struct {
	mu             sync.Mutex
	store          ActionStore
	limiter        *ratelimit.Limiter
	reg            registry.Registry
	events         audit.Logger
	log            *slog.Logger
	batchThreshold int
	clock          func() time.Time
}

// Option configures a Ledger.
type Option func(*Ledger)

// WithBatchThreshold overrides the auto-seal threshold.
func WithBatchThreshold(n int) Option {
	return func(l *Ledger) {
		if n > 0 {
			l.batchThreshold = n
		}
	}
}

// WithClock overrides clock for testing.
func WithClock(clock func() time.Time) Option {
	return func(l *Ledger) { l.clock = clock }
}

// WithLogger overrides the logger that reports dropped audit events.
func WithLogger(log *slog.Logger) Option {
	return func(l *Ledger) {
		if log != nil {
			l.log = log
		}
	}
}

func New(store ActionStore, limiter *ratelimit.Limiter, reg registry.Registry, events audit.Logger, opts ...Option) *Ledger {
	if events == nil {
		events = audit.NopLogger{}
	}
	l := &Ledger{
		store:          store,
		limiter:        limiter,
		reg:            reg,
		events:         events,
		log:            slog.Default(),
		batchThreshold: DefaultBatchThreshold,
		clock:          time.Now,
	}
	for _, opt := range opts {
		opt(l)
	}
	return l
}

// LogAction appends a new action at the next index and enqueues it for
// batching. The caller must have passed the access gate first; logging
// records the rate-limit side effects and bumps the registry counters.
// Reaching the batch threshold seals the pending queue immediately with an
// empty external reference (see AttachReference).
func (l *Ledger) LogAction(ctx context.Context, actionID, agentID, toolID, dataHash string, status contracts.ActionStatus, resourceCost int64) (contracts.Action, error) {
	l.mu.Lock()
	defer l.mu.Unlock()

	if actionID == "" {
		return contracts.Action{}, fmt.Errorf("%w: empty action id", contracts.ErrInvalidParameter)
	}
	if !status.Valid() {
		return contracts.Action{}, fmt.Errorf("%w: %q", contracts.ErrInvalidStatus, status)
	}
	dup, err := l.store.HasActionID(ctx, actionID)
	if err != nil {
		return contracts.Action{}, err
	}
	if dup {
		return contracts.Action{}, fmt.Errorf("%w: %s", contracts.ErrDuplicateAction, actionID)
	}

	index, err := l.store.NextIndex(ctx)
	if err != nil {
		return contracts.Action{}, err
	}

	action := contracts.Action{
		Index:        index,
		ActionID:     actionID,
		AgentID:      agentID,
		ToolID:       toolID,
		DataHash:     dataHash,
		Timestamp:    l.clock().UTC(),
		Status:       status,
		ResourceCost: resourceCost,
		BatchID:      contracts.BatchUnassigned,
	}
	// The rate-limit write goes first: it is the one fallible side effect,
	// and the append below is the commit point. A failed call leaves no
	// half-logged action behind.
	if err := l.limiter.Record(ctx, agentID, resourceCost); err != nil {
		return contracts.Action{}, fmt.Errorf("ledger: recording rate-limit state: %w", err)
	}
	if err := l.store.AppendAction(ctx, action); err != nil {
		return contracts.Action{}, err
	}
	l.reg.IncrementAgentActionCount(ctx, agentID)
	l.reg.IncrementToolUsageCount(ctx, toolID)

	if err := l.events.Record(ctx, audit.EventActionLogged, agentID, map[string]any{
		"action": action,
	}); err != nil {
		l.log.Warn("audit event dropped", "type", audit.EventActionLogged, "error", err)
	}

	pending, err := l.store.PendingActions(ctx)
	if err != nil {
		return contracts.Action{}, err
	}
	if len(pending) >= l.batchThreshold {
		// Auto-seal commits with an empty reference; the operator attaches
		// the real one afterwards.
		if _, err := l.sealLocked(ctx, pending, ""); err != nil {
			return contracts.Action{}, fmt.Errorf("ledger: auto-seal failed: %w", err)
		}
	}

	return action, nil
}

// UpdateStatus overwrites an action's status and logs the transition.
// Transitions are unrestricted but never silent.
func (l *Ledger) UpdateStatus(ctx context.Context, index int64, newStatus contracts.ActionStatus) error {
	l.mu.Lock()
	defer l.mu.Unlock()

	if !newStatus.Valid() {
		return fmt.Errorf("%w: %q", contracts.ErrInvalidStatus, newStatus)
	}
	action, err := l.store.GetAction(ctx, index)
	if err != nil {
		return err
	}
	if action.Status == newStatus {
		return contracts.ErrNoOp
	}

	if err := l.store.SetStatus(ctx, index, newStatus); err != nil {
		return err
	}
	err = l.store.AppendTransition(ctx, contracts.StatusTransition{
		ActionIndex: index,
		From:        action.Status,
		To:          newStatus,
		Timestamp:   l.clock().UTC(),
	})
	if err != nil {
		// No status change may be observable without its transition record.
		if revertErr := l.store.SetStatus(ctx, index, action.Status); revertErr != nil {
			return fmt.Errorf("ledger: recording transition: %w (revert failed: %v)", err, revertErr)
		}
		return fmt.Errorf("ledger: recording transition: %w", err)
	}
	return nil
}

// SealPendingBatch seals the current pending queue under a Merkle root.
// The queue must be non-empty and the external reference must be provided.
func (l *Ledger) SealPendingBatch(ctx context.Context, externalDataRef string) (contracts.BatchCommitment, error) {
	l.mu.Lock()
	defer l.mu.Unlock()

	if externalDataRef == "" {
		return contracts.BatchCommitment{}, contracts.ErrMissingReference
	}
	pending, err := l.store.PendingActions(ctx)
	if err != nil {
		return contracts.BatchCommitment{}, err
	}
	if len(pending) == 0 {
		return contracts.BatchCommitment{}, contracts.ErrEmptyBatch
	}
	return l.sealLocked(ctx, pending, externalDataRef)
}

// ForceSeal seals even when the pending queue is empty, for administrative
// recovery. The external reference is still required. An empty force seal
// produces an empty-range commitment over the zero digest.
func (l *Ledger) ForceSeal(ctx context.Context, externalDataRef string) (contracts.BatchCommitment, error) {
	l.mu.Lock()
	defer l.mu.Unlock()

	if externalDataRef == "" {
		return contracts.BatchCommitment{}, contracts.ErrMissingReference
	}
	pending, err := l.store.PendingActions(ctx)
	if err != nil {
		return contracts.BatchCommitment{}, err
	}
	return l.sealLocked(ctx, pending, externalDataRef)
}

// sealLocked commits the pending actions under one root. Caller holds l.mu.
func (l *Ledger) sealLocked(ctx context.Context, pending []contracts.Action, externalDataRef string) (contracts.BatchCommitment, error) {
	batchID, err := l.store.NextBatchID(ctx)
	if err != nil {
		return contracts.BatchCommitment{}, err
	}

	leaves := make([]merkle.Digest, len(pending))
	for i, a := range pending {
		leaves[i] = merkle.HashLeaf(a)
	}
	root := merkle.ComputeRoot(leaves)

	batch := contracts.BatchCommitment{
		BatchID:         batchID,
		MerkleRoot:      merkle.EncodeDigest(root),
		Timestamp:       l.clock().UTC(),
		ExternalDataRef: externalDataRef,
		ActionCount:     int64(len(pending)),
		Sealed:          true,
	}
	if len(pending) > 0 {
		batch.StartIndex = pending[0].Index
		batch.EndIndex = pending[len(pending)-1].Index
	} else {
		// Empty force seal: empty range just past the last action.
		next, err := l.store.NextIndex(ctx)
		if err != nil {
			return contracts.BatchCommitment{}, err
		}
		batch.StartIndex = next
		batch.EndIndex = next - 1
	}

	if err := l.store.PutBatch(ctx, batch); err != nil {
		return contracts.BatchCommitment{}, err
	}
	if len(pending) > 0 {
		if err := l.store.SetBatchID(ctx, batch.StartIndex, batch.EndIndex, batchID); err != nil {
			return contracts.BatchCommitment{}, err
		}
	}

	if err := l.events.Record(ctx, audit.EventBatchSealed, fmt.Sprintf("batch:%d", batchID), map[string]any{
		"batch": batch,
	}); err != nil {
		l.log.Warn("audit event dropped", "type", audit.EventBatchSealed, "error", err)
	}
	return batch, nil
}

// AttachReference completes an auto-sealed batch with its external data
// reference. It may be set exactly once.
func (l *Ledger) AttachReference(ctx context.Context, batchID int64, externalDataRef string) error {
	l.mu.Lock()
	defer l.mu.Unlock()

	if externalDataRef == "" {
		return contracts.ErrMissingReference
	}
	batch, err := l.store.GetBatch(ctx, batchID)
	if err != nil {
		return err
	}
	if batch.ExternalDataRef != "" {
		return fmt.Errorf("%w: batch %d already has a reference", contracts.ErrInvalidParameter, batchID)
	}
	batch.ExternalDataRef = externalDataRef
	return l.store.PutBatch(ctx, batch)
}

// VerifyInclusion proves that the given action at actionIndex is part of the
// sealed batch. A proof mismatch returns false; an unknown batch or an index
// outside its range is an error.
func (l *Ledger) VerifyInclusion(ctx context.Context, batchID, actionIndex int64, action contracts.Action, proof []merkle.ProofStep) (bool, error) {
	batch, err := l.store.GetBatch(ctx, batchID)
	if err != nil {
		return false, err
	}
	if !batch.Contains(actionIndex) {
		return false, fmt.Errorf("%w: action %d outside batch range [%d,%d]", contracts.ErrNotFound, actionIndex, batch.StartIndex, batch.EndIndex)
	}

	root, err := merkle.DecodeDigest(batch.MerkleRoot)
	if err != nil {
		return false, fmt.Errorf("ledger: corrupt stored root for batch %d: %w", batchID, err)
	}
	return merkle.VerifyProof(merkle.HashLeaf(action), proof, root), nil
}

// BuildInclusionProof reconstructs the sibling path for an action inside a
// sealed batch from the stored records.
func (l *Ledger) BuildInclusionProof(ctx context.Context, batchID, actionIndex int64) ([]merkle.ProofStep, error) {
	batch, err := l.store.GetBatch(ctx, batchID)
	if err != nil {
		return nil, err
	}
	if !batch.Contains(actionIndex) {
		return nil, fmt.Errorf("%w: action %d outside batch range [%d,%d]", contracts.ErrNotFound, actionIndex, batch.StartIndex, batch.EndIndex)
	}

	actions, err := l.store.ActionsInRange(ctx, batch.StartIndex, batch.EndIndex)
	if err != nil {
		return nil, err
	}
	leaves := make([]merkle.Digest, len(actions))
	for i, a := range actions {
		leaves[i] = merkle.HashLeaf(a)
	}
	return merkle.BuildProof(leaves, int(actionIndex-batch.StartIndex))
}

// GetAction retrieves an action by index.
func (l *Ledger) GetAction(ctx context.Context, index int64) (contracts.Action, error) {
	return l.store.GetAction(ctx, index)
}

// GetBatch retrieves a sealed batch commitment.
func (l *Ledger) GetBatch(ctx context.Context, batchID int64) (contracts.BatchCommitment, error) {
	return l.store.GetBatch(ctx, batchID)
}

// PendingCount returns the number of actions logged since the last seal.
func (l *Ledger) PendingCount(ctx context.Context) (int, error) {
	pending, err := l.store.PendingActions(ctx)
	if err != nil {
		return 0, err
	}
	return len(pending), nil
}

// ListActionsByAgent returns an agent's actions, oldest first.
func (l *Ledger) ListActionsByAgent(ctx context.Context, agentID string, limit, offset int) ([]contracts.Action, error) {
	return l.store.ListByAgent(ctx, agentID, limit, offset)
}

// ListActionsByTool returns a tool's actions, oldest first.
func (l *Ledger) ListActionsByTool(ctx context.Context, toolID string, limit, offset int) ([]contracts.Action, error) {
	return l.store.ListByTool(ctx, toolID, limit, offset)
}

// ListBatches returns all sealed commitments ordered by id.
func (l *Ledger) ListBatches(ctx context.Context) ([]contracts.BatchCommitment, error) {
	return l.store.ListBatches(ctx)
}

// Transitions returns the status history of an action.
func (l *Ledger) Transitions(ctx context.Context, index int64) ([]contracts.StatusTransition, error) {
	return l.store.Transitions(ctx, index)
}
