// Package contracts defines the shared data model of the Chronicler core:
// actions, batch commitments, policies, rate-limit state and access decisions.
// All cross-component reads are by value; no component hands out a mutable
// reference to a record it owns.
package contracts

import "time"

// ActionStatus is the lifecycle status of a logged action.
type ActionStatus string

const (
	StatusPending   ActionStatus = "pending"
	StatusSuccess   ActionStatus = "success"
	StatusFailed    ActionStatus = "failed"
	StatusCancelled ActionStatus = "cancelled"
)

// Valid reports whether s is one of the defined statuses.
func (s ActionStatus) Valid() bool {
	switch s {
	case StatusPending, StatusSuccess, StatusFailed, StatusCancelled:
		return true
	}
	return false
}

// BatchUnassigned is the BatchID of an action that has not been sealed yet.
const BatchUnassigned int64 = 0

// Action is one recorded agent/tool invocation.
//
// Index is assigned at creation, strictly monotonic, never reused. Everything
// except Status and BatchID is immutable after creation. BatchID is set
// exactly once, when the batch containing the action is sealed.
type Action struct {
	Index        int64        `json:"index"`
	ActionID     string       `json:"action_id"`
	AgentID      string       `json:"agent_id"`
	ToolID       string       `json:"tool_id"`
	DataHash     string       `json:"data_hash"`
	Timestamp    time.Time    `json:"timestamp"`
	Status       ActionStatus `json:"status"`
	ResourceCost int64        `json:"resource_cost"`
	BatchID      int64        `json:"batch_id"`
}

// StatusTransition records one status overwrite on an action.
// Transitions are unrestricted but every overwrite is logged, so the full
// history of an action remains reconstructible.
type StatusTransition struct {
	ActionIndex int64        `json:"action_index"`
	From        ActionStatus `json:"from"`
	To          ActionStatus `json:"to"`
	Timestamp   time.Time    `json:"timestamp"`
}

// BatchCommitment is a sealed, contiguous, provable group of actions.
// Once Sealed, a commitment is immutable except for a one-time attachment of
// an external data reference to auto-sealed batches.
type BatchCommitment struct {
	BatchID         int64     `json:"batch_id"`
	MerkleRoot      string    `json:"merkle_root"`
	StartIndex      int64     `json:"start_index"`
	EndIndex        int64     `json:"end_index"`
	Timestamp       time.Time `json:"timestamp"`
	ExternalDataRef string    `json:"external_data_ref,omitempty"`
	ActionCount     int64     `json:"action_count"`
	Sealed          bool      `json:"sealed"`
}

// Contains reports whether the action index falls inside the batch range.
func (b BatchCommitment) Contains(index int64) bool {
	return index >= b.StartIndex && index <= b.EndIndex
}
