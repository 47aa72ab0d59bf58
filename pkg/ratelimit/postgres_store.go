package ratelimit

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"time"

	_ "github.com/lib/pq"

	"github.com/chronicler-labs/chronicler/core/pkg/contracts"
)

// PostgresStateStore persists rate-limit state in PostgreSQL, for deployments
// where several nodes share one set of per-agent counters.
type PostgresStateStore struct {
	db *sql.DB
}

func NewPostgresStateStore(db *sql.DB) (*PostgresStateStore, error) {
	s := &PostgresStateStore{db: db}
	if err := s.migrate(); err != nil {
		return nil, err
	}
	return s, nil
}

func (s *PostgresStateStore) migrate() error {
	query := `
	CREATE TABLE IF NOT EXISTS rate_limit_states (
		agent_id TEXT PRIMARY KEY,
		last_action_time BIGINT NOT NULL DEFAULT 0,
		daily_count BIGINT NOT NULL DEFAULT 0,
		window_start BIGINT NOT NULL DEFAULT 0,
		total_actions BIGINT NOT NULL DEFAULT 0,
		total_resource_cost BIGINT NOT NULL DEFAULT 0
	);`
	_, err := s.db.ExecContext(context.Background(), query)
	return err
}

func (s *PostgresStateStore) Get(ctx context.Context, agentID string) (contracts.RateLimitState, error) {
	query := `
		SELECT agent_id, last_action_time, daily_count, window_start, total_actions, total_resource_cost
		FROM rate_limit_states WHERE agent_id = $1
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
		return contracts.RateLimitState{}, fmt.Errorf("ratelimit: postgres read failed: %w", err)
	}
	if lastAction > 0 {
		state.LastActionTime = time.Unix(lastAction, 0).UTC()
	}
	if windowStart > 0 {
		state.WindowStart = time.Unix(windowStart, 0).UTC()
	}
	return state, nil
}

func (s *PostgresStateStore) Put(ctx context.Context, state contracts.RateLimitState) error {
	query := `
		INSERT INTO rate_limit_states (agent_id, last_action_time, daily_count, window_start, total_actions, total_resource_cost)
		VALUES ($1, $2, $3, $4, $5, $6)
		ON CONFLICT (agent_id) DO UPDATE SET
			last_action_time = EXCLUDED.last_action_time,
			daily_count = EXCLUDED.daily_count,
			window_start = EXCLUDED.window_start,
			total_actions = EXCLUDED.total_actions,
			total_resource_cost = EXCLUDED.total_resource_cost
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
	if err != nil {
		return fmt.Errorf("ratelimit: postgres write failed: %w", err)
	}
	return nil
}
