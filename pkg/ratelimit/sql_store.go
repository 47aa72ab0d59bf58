package ratelimit

import (
	"context"
	"database/sql"
	"errors"
	"time"

	"github.com/chronicler-labs/chronicler/core/pkg/contracts"
)

// SQLStateStore persists rate-limit state in the node's SQLite database.
// Multi-node deployments share counters through Redis or Postgres instead.
type SQLStateStore struct {
	db *sql.DB
}

func NewSQLStateStore(db *sql.DB) (*SQLStateStore, error) {
	s := &SQLStateStore{db: db}
	if err := s.migrate(); err != nil {
		return nil, err
	}
	return s, nil
}

func (s *SQLStateStore) migrate() error {
	query := `
	CREATE TABLE IF NOT EXISTS rate_limit_states (
		agent_id TEXT PRIMARY KEY,
		last_action_time INTEGER NOT NULL DEFAULT 0,
		daily_count INTEGER NOT NULL DEFAULT 0,
		window_start INTEGER NOT NULL DEFAULT 0,
		total_actions INTEGER NOT NULL DEFAULT 0,
		total_resource_cost INTEGER NOT NULL DEFAULT 0
	);`
	_, err := s.db.ExecContext(context.Background(), query)
	return err
}

func (s *SQLStateStore) Get(ctx context.Context, agentID string) (contracts.RateLimitState, error) {
	query := `
		SELECT agent_id, last_action_time, daily_count, window_start, total_actions, total_resource_cost
		FROM rate_limit_states WHERE agent_id = ?
	`
	var state contracts.RateLimitState
	var lastAction, windowStart int64
	err := s.db.QueryRowContext(ctx, query, agentID).Scan(
		&state.AgentID, &lastAction, &state.DailyCount, &windowStart,
		&state.TotalActions, &state.TotalResourceCost,
	)
	if errors.Is(err, sql.ErrNoRows) {
		return contracts.RateLimitState{AgentID: agentID}, nil
	}
	if err != nil {
		return contracts.RateLimitState{}, err
	}
	if lastAction > 0 {
		state.LastActionTime = time.Unix(lastAction, 0).UTC()
	}
	if windowStart > 0 {
		state.WindowStart = time.Unix(windowStart, 0).UTC()
	}
	return state, nil
}

func (s *SQLStateStore) Put(ctx context.Context, state contracts.RateLimitState) error {
	query := `
		INSERT INTO rate_limit_states (agent_id, last_action_time, daily_count, window_start, total_actions, total_resource_cost)
		VALUES (?, ?, ?, ?, ?, ?)
		ON CONFLICT (agent_id) DO UPDATE SET
			last_action_time = excluded.last_action_time,
			daily_count = excluded.daily_count,
			window_start = excluded.window_start,
			total_actions = excluded.total_actions,
			total_resource_cost = excluded.total_resource_cost
	`
	var lastAction, windowStart int64
	if !state.LastActionTime.IsZero() {
		lastAction = state.LastActionTime.Unix()
	}
	if !state.WindowStart.IsZero() {
		windowStart = state.WindowStart.Unix()
	}
	_, err := s.db.ExecContext(ctx, query,
		state.AgentID, lastAction, state.DailyCount, windowStart,
		state.TotalActions, state.TotalResourceCost,
	)
	return err
}
