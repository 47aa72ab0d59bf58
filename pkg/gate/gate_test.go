package gate

import (
	"bytes"
	"context"
	"errors"
	"log/slog"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/chronicler-labs/chronicler/core/pkg/audit"
	"github.com/chronicler-labs/chronicler/core/pkg/contracts"
	"github.com/chronicler-labs/chronicler/core/pkg/policy"
	"github.com/chronicler-labs/chronicler/core/pkg/ratelimit"
	"github.com/chronicler-labs/chronicler/core/pkg/registry"
)

type harness struct {
	gate     *Gate
	policies *policy.Service
	limiter  *ratelimit.Limiter
	registry *registry.InMemoryRegistry
	now      time.Time
}

func (h *harness) clock() time.Time { return h.now }

func newHarness(t *testing.T) *harness {
	t.Helper()
	h := &harness{now: time.Unix(1700000000, 0).UTC()}

	h.registry = registry.NewInMemoryRegistry()
	h.registry.RegisterAgent(registry.Agent{AgentID: "agent-a", Active: true})
	h.registry.RegisterTool(registry.Tool{ToolID: "tool-t", RiskLevel: 40, Active: true})

	var err error
	h.policies, err = policy.NewService(policy.NewMemoryStore(), h.registry, nil)
	require.NoError(t, err)
	h.policies.WithClock(h.clock)

	h.limiter = ratelimit.NewLimiter(ratelimit.NewMemoryStateStore()).WithClock(h.clock)
	h.gate = New(h.registry, h.policies, h.limiter, nil).WithClock(h.clock)
	return h
}

// assignScenarioPolicy binds {dailyLimit:2, maxResourceCost:500, maxRisk:50,
// cooldown:0} to agent-a.
func assignScenarioPolicy(t *testing.T, h *harness) int64 {
	t.Helper()
	id, err := h.policies.CreatePolicy(context.Background(), 2, 500, 50, 0)
	require.NoError(t, err)
	require.NoError(t, h.policies.AssignPolicy(context.Background(), contracts.SubjectAgent, "agent-a", id))
	return id
}

func TestDailyLimitScenario(t *testing.T) {
	ctx := context.Background()
	h := newHarness(t)
	assignScenarioPolicy(t, h)

	for i := 0; i < 2; i++ {
		d, err := h.gate.CheckActionAllowed(ctx, "agent-a", "tool-t", 300)
		require.NoError(t, err)
		require.True(t, d.Allowed, "call %d", i)
		require.Empty(t, d.Reason)
		// The check is read-only; recording happens when the action is logged.
		require.NoError(t, h.limiter.Record(ctx, "agent-a", 300))
	}

	d, err := h.gate.CheckActionAllowed(ctx, "agent-a", "tool-t", 300)
	require.NoError(t, err)
	assert.False(t, d.Allowed)
	assert.Equal(t, contracts.DenyDailyLimitExceeded, d.Reason)
}

func TestResourceLimitScenario(t *testing.T) {
	ctx := context.Background()
	h := newHarness(t)
	assignScenarioPolicy(t, h)

	// Over the 500 ceiling on the very first call.
	d, err := h.gate.CheckActionAllowed(ctx, "agent-a", "tool-t", 600)
	require.NoError(t, err)
	assert.False(t, d.Allowed)
	assert.Equal(t, contracts.DenyResourceLimitExceeded, d.Reason)
}

func TestRegistryValidity(t *testing.T) {
	ctx := context.Background()
	h := newHarness(t)

	d, err := h.gate.CheckActionAllowed(ctx, "ghost", "tool-t", 1)
	require.NoError(t, err)
	assert.Equal(t, contracts.DenyInvalidAgent, d.Reason)

	d, err = h.gate.CheckActionAllowed(ctx, "agent-a", "ghost", 1)
	require.NoError(t, err)
	assert.Equal(t, contracts.DenyInvalidTool, d.Reason)

	// Inactive registrations are invalid too.
	h.registry.RegisterAgent(registry.Agent{AgentID: "agent-off", Active: false})
	d, err = h.gate.CheckActionAllowed(ctx, "agent-off", "tool-t", 1)
	require.NoError(t, err)
	assert.Equal(t, contracts.DenyInvalidAgent, d.Reason)
}

func TestRiskCeiling(t *testing.T) {
	ctx := context.Background()
	h := newHarness(t)

	// Agent policy caps risk at 30; the tool's registered level is 40.
	id, err := h.policies.CreatePolicy(ctx, 100, 10000, 30, 0)
	require.NoError(t, err)
	require.NoError(t, h.policies.AssignPolicy(ctx, contracts.SubjectAgent, "agent-a", id))

	d, err := h.gate.CheckActionAllowed(ctx, "agent-a", "tool-t", 1)
	require.NoError(t, err)
	assert.False(t, d.Allowed)
	assert.Equal(t, contracts.DenyRiskLimitExceeded, d.Reason)
}

func TestToolPolicyCeilingsApply(t *testing.T) {
	ctx := context.Background()
	h := newHarness(t)

	// Tool policy is the stricter one here: cost cap 200.
	id, err := h.policies.CreatePolicy(ctx, 100, 200, 90, 0)
	require.NoError(t, err)
	require.NoError(t, h.policies.AssignPolicy(ctx, contracts.SubjectTool, "tool-t", id))

	d, err := h.gate.CheckActionAllowed(ctx, "agent-a", "tool-t", 300)
	require.NoError(t, err)
	assert.False(t, d.Allowed)
	assert.Equal(t, contracts.DenyResourceLimitExceeded, d.Reason)

	d, err = h.gate.CheckActionAllowed(ctx, "agent-a", "tool-t", 150)
	require.NoError(t, err)
	assert.True(t, d.Allowed)
}

func TestToolPolicyNotConsultedForRateLimit(t *testing.T) {
	ctx := context.Background()
	h := newHarness(t)

	// Tool policy with dailyLimit 1 must not throttle the agent, whose own
	// policy allows plenty.
	toolPol, err := h.policies.CreatePolicy(ctx, 1, 10000, 90, 0)
	require.NoError(t, err)
	require.NoError(t, h.policies.AssignPolicy(ctx, contracts.SubjectTool, "tool-t", toolPol))

	for i := 0; i < 3; i++ {
		d, err := h.gate.CheckActionAllowed(ctx, "agent-a", "tool-t", 1)
		require.NoError(t, err)
		require.True(t, d.Allowed, "call %d", i)
		require.NoError(t, h.limiter.Record(ctx, "agent-a", 1))
	}
}

func TestCooldownDenial(t *testing.T) {
	ctx := context.Background()
	h := newHarness(t)

	id, err := h.policies.CreatePolicy(ctx, 100, 10000, 90, 60)
	require.NoError(t, err)
	require.NoError(t, h.policies.AssignPolicy(ctx, contracts.SubjectAgent, "agent-a", id))

	d, err := h.gate.CheckActionAllowed(ctx, "agent-a", "tool-t", 1)
	require.NoError(t, err)
	require.True(t, d.Allowed)
	require.NoError(t, h.limiter.Record(ctx, "agent-a", 1))

	h.now = h.now.Add(10 * time.Second)
	d, err = h.gate.CheckActionAllowed(ctx, "agent-a", "tool-t", 1)
	require.NoError(t, err)
	assert.False(t, d.Allowed)
	assert.Equal(t, contracts.DenyCooldownActive, d.Reason)

	h.now = h.now.Add(60 * time.Second)
	d, err = h.gate.CheckActionAllowed(ctx, "agent-a", "tool-t", 1)
	require.NoError(t, err)
	assert.True(t, d.Allowed)
}

func TestDecisionReceipts(t *testing.T) {
	ctx := context.Background()
	h := newHarness(t)

	d, err := h.gate.CheckActionAllowed(ctx, "agent-a", "tool-t", 42)
	require.NoError(t, err)
	require.NotNil(t, d.Receipt)
	assert.Equal(t, "allowed", d.Receipt.Outcome)
	assert.Equal(t, int64(42), d.Receipt.ResourceCost)
	assert.NotEmpty(t, d.Receipt.ID)

	d, err = h.gate.CheckActionAllowed(ctx, "ghost", "tool-t", 42)
	require.NoError(t, err)
	require.NotNil(t, d.Receipt)
	assert.Equal(t, "denied", d.Receipt.Outcome)
	assert.Equal(t, string(contracts.DenyInvalidAgent), d.Receipt.Reason)
}

type rejectingLogger struct{ err error }

func (r rejectingLogger) Record(context.Context, audit.EventType, string, map[string]any) error {
	return r.err
}

func TestDenialSurvivesAuditFailure(t *testing.T) {
	ctx := context.Background()
	h := newHarness(t)

	var buf bytes.Buffer
	h.gate = New(h.registry, h.policies, h.limiter, rejectingLogger{err: errors.New("outbox full")}).
		WithClock(h.clock).
		WithLogger(slog.New(slog.NewTextHandler(&buf, nil)))

	d, err := h.gate.CheckActionAllowed(ctx, "ghost", "tool-t", 1)
	require.NoError(t, err, "an audit sink failure never blocks the decision")
	assert.False(t, d.Allowed)
	assert.Equal(t, contracts.DenyInvalidAgent, d.Reason)
	assert.Contains(t, buf.String(), "audit event dropped")
}
