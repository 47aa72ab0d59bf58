// Package gate is the access-control engine: it resolves per-subject policies
// and enforces resource, risk and rate ceilings before an action may be
// recorded. Checks are read-only; the caller records the action (and its
// rate-limit side effects) separately once it is actually logged.
package gate

import (
	"context"
	"fmt"
	"log/slog"
	"time"

	"github.com/google/uuid"

	"github.com/chronicler-labs/chronicler/core/pkg/audit"
	"github.com/chronicler-labs/chronicler/core/pkg/contracts"
	"github.com/chronicler-labs/chronicler/core/pkg/policy"
	"github.com/chronicler-labs/chronicler/core/pkg/ratelimit"
	"github.com/chronicler-labs/chronicler/core/pkg/registry"
)

// Gate orchestrates registry validation, policy resolution and rate limiting
// into a single allow/deny decision.
type Gate struct {
	reg      registry.Registry
	policies *policy.Service
	limiter  *ratelimit.Limiter
	events   audit.Logger
	log      *slog.Logger
	clock    func() time.Time
}

func New(reg registry.Registry, policies *policy.Service, limiter *ratelimit.Limiter, events audit.Logger) *Gate {
	if events == nil {
		events = audit.NopLogger{}
	}
	return &Gate{
		reg:      reg,
		policies: policies,
		limiter:  limiter,
		events:   events,
		log:      slog.Default(),
		clock:    time.Now,
	}
}

// WithClock overrides clock for testing.
func (g *Gate) WithClock(clock func() time.Time) *Gate {
	g.clock = clock
	return g
}

// WithLogger overrides the logger that reports dropped audit events.
func (g *Gate) WithLogger(log *slog.Logger) *Gate {
	if log != nil {
		g.log = log
	}
	return g
}

// CheckActionAllowed runs the ordered checks, first failure wins:
// registry validity, policy activity, resource ceiling, risk ceiling, rate
// limit. Denials come back as Decision values, never as errors; an error
// means a store failed, in which case the check fails closed.
func (g *Gate) CheckActionAllowed(ctx context.Context, agentID, toolID string, resourceCost int64) (contracts.Decision, error) {
	// 1. Registry validity.
	if !g.reg.IsValidAgent(ctx, agentID) {
		return g.deny(ctx, agentID, toolID, resourceCost, contracts.DenyInvalidAgent), nil
	}
	if !g.reg.IsValidTool(ctx, toolID) {
		return g.deny(ctx, agentID, toolID, resourceCost, contracts.DenyInvalidTool), nil
	}

	// 2. Effective policies, both must be active.
	agentPolicy, err := g.policies.ResolveEffectivePolicy(ctx, contracts.SubjectAgent, agentID)
	if err != nil {
		// Fail closed: an unresolvable policy store aborts the check.
		return contracts.Decision{}, fmt.Errorf("gate: resolving agent policy: %w", err)
	}
	toolPolicy, err := g.policies.ResolveEffectivePolicy(ctx, contracts.SubjectTool, toolID)
	if err != nil {
		return contracts.Decision{}, fmt.Errorf("gate: resolving tool policy: %w", err)
	}
	if !agentPolicy.Active || !toolPolicy.Active {
		return g.deny(ctx, agentID, toolID, resourceCost, contracts.DenyPolicyInactive), nil
	}

	// 3. Resource ceiling: the stricter of the two policies applies.
	if resourceCost > agentPolicy.MaxResourceCost || resourceCost > toolPolicy.MaxResourceCost {
		return g.deny(ctx, agentID, toolID, resourceCost, contracts.DenyResourceLimitExceeded), nil
	}

	// 4. Risk ceiling against the tool's registered risk level.
	tool, err := g.reg.GetTool(ctx, toolID)
	if err != nil {
		return g.deny(ctx, agentID, toolID, resourceCost, contracts.DenyInvalidTool), nil
	}
	if tool.RiskLevel > agentPolicy.MaxRisk || tool.RiskLevel > toolPolicy.MaxRisk {
		return g.deny(ctx, agentID, toolID, resourceCost, contracts.DenyRiskLimitExceeded), nil
	}

	// 5. Rate limit and cooldown, against the agent's own policy only.
	ok, reason, err := g.limiter.CheckOnly(ctx, agentID, agentPolicy)
	if err != nil {
		return contracts.Decision{}, fmt.Errorf("gate: rate limit check failed: %w", err)
	}
	if !ok {
		d := g.deny(ctx, agentID, toolID, resourceCost, reason)
		if err := g.events.Record(ctx, audit.EventRateLimitExceeded, agentID, map[string]any{
			"tool_id": toolID,
			"reason":  string(reason),
		}); err != nil {
			g.log.Warn("audit event dropped", "type", audit.EventRateLimitExceeded, "error", err)
		}
		return d, nil
	}

	return contracts.Decision{
		Allowed: true,
		Receipt: g.receipt(agentID, toolID, resourceCost, "allowed", ""),
	}, nil
}

func (g *Gate) deny(ctx context.Context, agentID, toolID string, resourceCost int64, reason contracts.DenyReason) contracts.Decision {
	if err := g.events.Record(ctx, audit.EventAccessDenied, agentID, map[string]any{
		"tool_id":       toolID,
		"resource_cost": resourceCost,
		"reason":        string(reason),
	}); err != nil {
		g.log.Warn("audit event dropped", "type", audit.EventAccessDenied, "error", err)
	}
	return contracts.Decision{
		Allowed: false,
		Reason:  reason,
		Receipt: g.receipt(agentID, toolID, resourceCost, "denied", string(reason)),
	}
}

func (g *Gate) receipt(agentID, toolID string, resourceCost int64, outcome, reason string) *contracts.DecisionReceipt {
	return &contracts.DecisionReceipt{
		ID:           uuid.New().String(),
		AgentID:      agentID,
		ToolID:       toolID,
		ResourceCost: resourceCost,
		Outcome:      outcome,
		Reason:       reason,
		Timestamp:    g.clock().UTC(),
	}
}
