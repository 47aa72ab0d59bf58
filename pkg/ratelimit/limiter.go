// Package ratelimit tracks per-agent rolling-window counters and cooldowns.
// The window is sliding, not calendar-aligned: it resets lazily whenever a
// check or record finds it older than WindowSeconds.
package ratelimit

import (
	"context"
	"time"

	"github.com/chronicler-labs/chronicler/core/pkg/contracts"
)

// WindowSeconds is the length of the rolling daily window.
const WindowSeconds = 86400

// StateStore abstracts persistence of per-agent counters. A missing agent
// yields a zero state, not an error.
type StateStore interface {
	Get(ctx context.Context, agentID string) (contracts.RateLimitState, error)
	Put(ctx context.Context, state contracts.RateLimitState) error
}

// AtomicRecorder is an optional fast path for stores that can apply the
// reset-and-increment in one round trip (e.g. a Redis script).
type AtomicRecorder interface {
	RecordAtomic(ctx context.Context, agentID string, resourceCost int64, now time.Time) error
}

// Limiter evaluates and records per-agent rate-limit state.
type Limiter struct {
	store StateStore
	clock func() time.Time
}

func NewLimiter(store StateStore) *Limiter {
	return &Limiter{store: store, clock: time.Now}
}

// WithClock overrides clock for testing.
func (l *Limiter) WithClock(clock func() time.Time) *Limiter {
	l.clock = clock
	return l
}

// windowExpired reports whether the state's window is due for a reset at now.
func windowExpired(state contracts.RateLimitState, now time.Time) bool {
	return now.Sub(state.WindowStart) >= WindowSeconds*time.Second
}

// effective applies the lazy window reset logically, without mutating the
// persisted state. CheckOnly stays idempotent because of this.
func effective(state contracts.RateLimitState, now time.Time) contracts.RateLimitState {
	if windowExpired(state, now) {
		state.DailyCount = 0
		state.WindowStart = now
	}
	return state
}

// CheckOnly evaluates the limits read-only. It returns ok=false with a typed
// reason when the cooldown is still active or the daily limit is reached.
func (l *Limiter) CheckOnly(ctx context.Context, agentID string, policy contracts.Policy) (bool, contracts.DenyReason, error) {
	state, err := l.store.Get(ctx, agentID)
	if err != nil {
		return false, "", err
	}

	now := l.clock()
	eff := effective(state, now)

	if policy.CooldownSeconds > 0 && !eff.LastActionTime.IsZero() {
		if now.Sub(eff.LastActionTime) < time.Duration(policy.CooldownSeconds)*time.Second {
			return false, contracts.DenyCooldownActive, nil
		}
	}
	if eff.DailyCount >= policy.DailyLimit {
		return false, contracts.DenyDailyLimitExceeded, nil
	}
	return true, "", nil
}

// Record applies the lazy reset to persisted state if due, then counts the
// action. Called once per admitted action, after the ledger append.
func (l *Limiter) Record(ctx context.Context, agentID string, resourceCost int64) error {
	now := l.clock()

	if ar, ok := l.store.(AtomicRecorder); ok {
		return ar.RecordAtomic(ctx, agentID, resourceCost, now)
	}

	state, err := l.store.Get(ctx, agentID)
	if err != nil {
		return err
	}
	state.AgentID = agentID
	if windowExpired(state, now) {
		state.DailyCount = 0
		state.WindowStart = now
	}
	state.DailyCount++
	state.TotalActions++
	state.TotalResourceCost += resourceCost
	state.LastActionTime = now

	return l.store.Put(ctx, state)
}

// State returns the persisted counters for an agent, reset applied logically.
func (l *Limiter) State(ctx context.Context, agentID string) (contracts.RateLimitState, error) {
	state, err := l.store.Get(ctx, agentID)
	if err != nil {
		return contracts.RateLimitState{}, err
	}
	return effective(state, l.clock()), nil
}
