// Package registry defines the boundary to the external agent/tool registry.
// The core consumes validity checks and tool risk levels, and increments two
// usage counters as a side effect of logging; everything else about identity
// management lives outside this module.
package registry

import (
	"context"
	"errors"
	"sync"
)

var ErrToolNotFound = errors.New("registry: tool not found")

// Tool is the slice of a registered tool the core cares about.
type Tool struct {
	ToolID    string `json:"tool_id"`
	RiskLevel int64  `json:"risk_level"` // 0-100
	Active    bool   `json:"active"`
}

// Agent is the slice of a registered agent the core cares about.
type Agent struct {
	AgentID string `json:"agent_id"`
	Active  bool   `json:"active"`
}

// Registry is the read/increment surface the core consumes.
type Registry interface {
	// IsValidAgent reports whether the agent is registered and active.
	IsValidAgent(ctx context.Context, agentID string) bool
	// IsValidTool reports whether the tool is registered and active.
	IsValidTool(ctx context.Context, toolID string) bool
	// GetTool retrieves a tool's registered record.
	GetTool(ctx context.Context, toolID string) (Tool, error)
	// IncrementAgentActionCount bumps the agent's lifetime action counter.
	IncrementAgentActionCount(ctx context.Context, agentID string)
	// IncrementToolUsageCount bumps the tool's lifetime usage counter.
	IncrementToolUsageCount(ctx context.Context, toolID string)
}

// InMemoryRegistry is a thread-safe in-memory implementation for tests and
// single-node deployments.
type InMemoryRegistry struct {
	mu          sync.RWMutex
	agents      map[string]Agent
	tools       map[string]Tool
	agentCounts map[string]int64
	toolCounts  map[string]int64
}

func NewInMemoryRegistry() *InMemoryRegistry {
	return &InMemoryRegistry{
		agents:      make(map[string]Agent),
		tools:       make(map[string]Tool),
		agentCounts: make(map[string]int64),
		toolCounts:  make(map[string]int64),
	}
}

// RegisterAgent adds or replaces an agent record.
func (r *InMemoryRegistry) RegisterAgent(agent Agent) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.agents[agent.AgentID] = agent
}

// RegisterTool adds or replaces a tool record.
func (r *InMemoryRegistry) RegisterTool(tool Tool) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.tools[tool.ToolID] = tool
}

func (r *InMemoryRegistry) IsValidAgent(ctx context.Context, agentID string) bool {
	r.mu.RLock()
	defer r.mu.RUnlock()
	a, ok := r.agents[agentID]
	return ok && a.Active
}

func (r *InMemoryRegistry) IsValidTool(ctx context.Context, toolID string) bool {
	r.mu.RLock()
	defer r.mu.RUnlock()
	t, ok := r.tools[toolID]
	return ok && t.Active
}

func (r *InMemoryRegistry) GetTool(ctx context.Context, toolID string) (Tool, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	t, ok := r.tools[toolID]
	if !ok {
		return Tool{}, ErrToolNotFound
	}
	return t, nil
}

func (r *InMemoryRegistry) IncrementAgentActionCount(ctx context.Context, agentID string) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.agentCounts[agentID]++
}

func (r *InMemoryRegistry) IncrementToolUsageCount(ctx context.Context, toolID string) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.toolCounts[toolID]++
}

// AgentActionCount returns the lifetime counter for an agent.
func (r *InMemoryRegistry) AgentActionCount(agentID string) int64 {
	r.mu.RLock()
	defer r.mu.RUnlock()
	return r.agentCounts[agentID]
}

// ToolUsageCount returns the lifetime counter for a tool.
func (r *InMemoryRegistry) ToolUsageCount(toolID string) int64 {
	r.mu.RLock()
	defer r.mu.RUnlock()
	return r.toolCounts[toolID]
}
