package ratelimit

import (
	"context"
	"fmt"
	"strconv"
	"time"

	"github.com/redis/go-redis/v9"

	"github.com/chronicler-labs/chronicler/core/pkg/contracts"
)

// redisRecordScript applies the lazy window reset and the counter increments
// atomically in Redis.
// KEYS[1] = state key (e.g. "ratelimit:agent-1")
// ARGV[1] = current unix timestamp (seconds)
// ARGV[2] = resource cost
// ARGV[3] = window length (seconds)
var redisRecordScript = redis.NewScript(`
local key = KEYS[1]
local now = tonumber(ARGV[1])
local cost = tonumber(ARGV[2])
local window = tonumber(ARGV[3])

local state = redis.call("HMGET", key, "daily_count", "window_start")
local daily = tonumber(state[1])
local window_start = tonumber(state[2])

if not daily or not window_start then
    daily = 0
    window_start = now
end

-- Lazy window reset
if now - window_start >= window then
    daily = 0
    window_start = now
end

daily = daily + 1

redis.call("HSET", key,
    "daily_count", daily,
    "window_start", window_start,
    "last_action_time", now)
redis.call("HINCRBY", key, "total_actions", 1)
redis.call("HINCRBY", key, "total_resource_cost", cost)

return daily
`)

// RedisStateStore implements StateStore using Redis, with an atomic record
// path for multi-instance deployments.
type RedisStateStore struct {
	client *redis.Client
}

// NewRedisStateStore creates a store backed by Redis.
func NewRedisStateStore(addr, password string, db int) *RedisStateStore {
	rdb := redis.NewClient(&redis.Options{
		Addr:     addr,
		Password: password,
		DB:       db,
	})
	return &RedisStateStore{client: rdb}
}

func stateKey(agentID string) string {
	return fmt.Sprintf("ratelimit:%s", agentID)
}

// parseField decodes an integer hash field. A missing field is zero; a value
// that does not parse means the key was written by something else and must
// not be silently read as an empty state.
func parseField(fields map[string]string, name string) (int64, error) {
	raw, ok := fields[name]
	if !ok || raw == "" {
		return 0, nil
	}
	v, err := strconv.ParseInt(raw, 10, 64)
	if err != nil {
		return 0, fmt.Errorf("ratelimit: corrupt redis field %s: %w", name, err)
	}
	return v, nil
}

func (s *RedisStateStore) Get(ctx context.Context, agentID string) (contracts.RateLimitState, error) {
	fields, err := s.client.HGetAll(ctx, stateKey(agentID)).Result()
	if err != nil {
		return contracts.RateLimitState{}, fmt.Errorf("ratelimit: redis read failed: %w", err)
	}

	state := contracts.RateLimitState{AgentID: agentID}
	if len(fields) == 0 {
		return state, nil
	}

	lastAction, err := parseField(fields, "last_action_time")
	if err != nil {
		return contracts.RateLimitState{}, err
	}
	windowStart, err := parseField(fields, "window_start")
	if err != nil {
		return contracts.RateLimitState{}, err
	}
	if state.DailyCount, err = parseField(fields, "daily_count"); err != nil {
		return contracts.RateLimitState{}, err
	}
	if state.TotalActions, err = parseField(fields, "total_actions"); err != nil {
		return contracts.RateLimitState{}, err
	}
	if state.TotalResourceCost, err = parseField(fields, "total_resource_cost"); err != nil {
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

func (s *RedisStateStore) Put(ctx context.Context, state contracts.RateLimitState) error {
	var lastAction, windowStart int64
	if !state.LastActionTime.IsZero() {
		lastAction = state.LastActionTime.Unix()
	}
	if !state.WindowStart.IsZero() {
		windowStart = state.WindowStart.Unix()
	}
	err := s.client.HSet(ctx, stateKey(state.AgentID),
		"last_action_time", lastAction,
		"daily_count", state.DailyCount,
		"window_start", windowStart,
		"total_actions", state.TotalActions,
		"total_resource_cost", state.TotalResourceCost,
	).Err()
	if err != nil {
		return fmt.Errorf("ratelimit: redis write failed: %w", err)
	}
	return nil
}

// RecordAtomic executes the Lua script so reset and increment cannot be
// interleaved with another writer.
func (s *RedisStateStore) RecordAtomic(ctx context.Context, agentID string, resourceCost int64, now time.Time) error {
	err := redisRecordScript.Run(ctx, s.client,
		[]string{stateKey(agentID)},
		now.Unix(), resourceCost, WindowSeconds,
	).Err()
	if err != nil {
		return fmt.Errorf("ratelimit: redis record failed: %w", err)
	}
	return nil
}
