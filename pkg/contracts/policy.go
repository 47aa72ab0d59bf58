package contracts

import "time"

// DefaultPolicyID is the reserved identifier of the default policy. It always
// exists and is always active; every other policy id is greater.
const DefaultPolicyID int64 = 1

// SubjectKind distinguishes the two kinds of policy subjects.
type SubjectKind string

const (
	SubjectAgent SubjectKind = "agent"
	SubjectTool  SubjectKind = "tool"
)

// Valid reports whether k is a defined subject kind.
func (k SubjectKind) Valid() bool {
	return k == SubjectAgent || k == SubjectTool
}

// Policy is a named bundle of resource/risk/rate limits.
type Policy struct {
	PolicyID        int64     `json:"policy_id"`
	DailyLimit      int64     `json:"daily_limit"`
	MaxResourceCost int64     `json:"max_resource_cost"`
	MaxRisk         int64     `json:"max_risk"` // 0-100
	CooldownSeconds int64     `json:"cooldown_seconds"`
	Active          bool      `json:"active"`
	CreatedAt       time.Time `json:"created_at"`
	UpdatedAt       time.Time `json:"updated_at"`
}

// PolicyAssignment maps a subject to a policy. At most one active assignment
// exists per subject; absence means the default policy applies.
type PolicyAssignment struct {
	SubjectKind SubjectKind `json:"subject_kind"`
	SubjectID   string      `json:"subject_id"`
	PolicyID    int64       `json:"policy_id"`
	Active      bool        `json:"active"`
	AssignedAt  time.Time   `json:"assigned_at"`
}

// RateLimitState holds the per-agent rolling-window counters.
// Owned exclusively by the rate limiter; read by the access gate by value.
type RateLimitState struct {
	AgentID           string    `json:"agent_id"`
	LastActionTime    time.Time `json:"last_action_time"`
	DailyCount        int64     `json:"daily_count"`
	WindowStart       time.Time `json:"window_start"`
	TotalActions      int64     `json:"total_actions"`
	TotalResourceCost int64     `json:"total_resource_cost"`
}
