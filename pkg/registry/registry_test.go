package registry

import (
	"context"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestAgentValidity(t *testing.T) {
	r := NewInMemoryRegistry()
	ctx := context.Background()

	assert.False(t, r.IsValidAgent(ctx, "agent-1"), "unknown agent")

	r.RegisterAgent(Agent{AgentID: "agent-1", Active: true})
	assert.True(t, r.IsValidAgent(ctx, "agent-1"))

	r.RegisterAgent(Agent{AgentID: "agent-1", Active: false})
	assert.False(t, r.IsValidAgent(ctx, "agent-1"), "deactivated agent")
}

func TestToolValidityAndLookup(t *testing.T) {
	r := NewInMemoryRegistry()
	ctx := context.Background()

	_, err := r.GetTool(ctx, "tool-1")
	require.ErrorIs(t, err, ErrToolNotFound)
	assert.False(t, r.IsValidTool(ctx, "tool-1"))

	r.RegisterTool(Tool{ToolID: "tool-1", RiskLevel: 30, Active: true})
	assert.True(t, r.IsValidTool(ctx, "tool-1"))

	tool, err := r.GetTool(ctx, "tool-1")
	require.NoError(t, err)
	assert.Equal(t, int64(30), tool.RiskLevel)

	r.RegisterTool(Tool{ToolID: "tool-1", RiskLevel: 30, Active: false})
	assert.False(t, r.IsValidTool(ctx, "tool-1"), "deactivated tool")
}

func TestUsageCounters(t *testing.T) {
	r := NewInMemoryRegistry()
	ctx := context.Background()

	r.RegisterAgent(Agent{AgentID: "agent-1", Active: true})
	r.RegisterTool(Tool{ToolID: "tool-1", RiskLevel: 10, Active: true})

	assert.Zero(t, r.AgentActionCount("agent-1"))
	assert.Zero(t, r.ToolUsageCount("tool-1"))

	for i := 0; i < 3; i++ {
		r.IncrementAgentActionCount(ctx, "agent-1")
	}
	r.IncrementToolUsageCount(ctx, "tool-1")

	assert.Equal(t, int64(3), r.AgentActionCount("agent-1"))
	assert.Equal(t, int64(1), r.ToolUsageCount("tool-1"))

	// Counters for subjects never registered stay readable.
	assert.Zero(t, r.AgentActionCount("ghost"))
}
