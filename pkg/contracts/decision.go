package contracts

import "time"

// DenyReason is a typed denial outcome from the access gate. Denials are
// expected, frequent results the caller branches on; they are never errors.
type DenyReason string

const (
	DenyInvalidAgent          DenyReason = "InvalidAgent"
	DenyInvalidTool           DenyReason = "InvalidTool"
	DenyPolicyInactive        DenyReason = "PolicyInactive"
	DenyResourceLimitExceeded DenyReason = "ResourceLimitExceeded"
	DenyRiskLimitExceeded     DenyReason = "RiskLimitExceeded"
	DenyCooldownActive        DenyReason = "CooldownActive"
	DenyDailyLimitExceeded    DenyReason = "DailyLimitExceeded"
)

// Decision is the result of an access check.
// An allowed decision has an empty Reason.
type Decision struct {
	Allowed bool             `json:"allowed"`
	Reason  DenyReason       `json:"reason,omitempty"`
	Receipt *DecisionReceipt `json:"receipt,omitempty"`
}

// DecisionReceipt is evidence that an access check was performed.
type DecisionReceipt struct {
	ID           string    `json:"id"`
	AgentID      string    `json:"agent_id"`
	ToolID       string    `json:"tool_id"`
	ResourceCost int64     `json:"resource_cost"`
	Outcome      string    `json:"outcome"` // "allowed" or "denied"
	Reason       string    `json:"reason,omitempty"`
	Timestamp    time.Time `json:"timestamp"`
}
