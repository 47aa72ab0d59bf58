package ratelimit

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/chronicler-labs/chronicler/core/pkg/contracts"
)

type fakeClock struct {
	now time.Time
}

func (c *fakeClock) Now() time.Time          { return c.now }
func (c *fakeClock) Advance(d time.Duration) { c.now = c.now.Add(d) }

func newTestLimiter() (*Limiter, *fakeClock) {
	clock := &fakeClock{now: time.Unix(1700000000, 0).UTC()}
	l := NewLimiter(NewMemoryStateStore()).WithClock(clock.Now)
	return l, clock
}

func TestDailyLimitAndWindowReset(t *testing.T) {
	ctx := context.Background()
	l, clock := newTestLimiter()
	p := contracts.Policy{DailyLimit: 3, Active: true}

	for i := 0; i < 3; i++ {
		ok, reason, err := l.CheckOnly(ctx, "agent-1", p)
		require.NoError(t, err)
		require.True(t, ok, "call %d", i)
		require.Empty(t, reason)
		require.NoError(t, l.Record(ctx, "agent-1", 100))
		clock.Advance(time.Minute)
	}

	ok, reason, err := l.CheckOnly(ctx, "agent-1", p)
	require.NoError(t, err)
	assert.False(t, ok)
	assert.Equal(t, contracts.DenyDailyLimitExceeded, reason)

	// CheckOnly is idempotent: repeating it does not consume anything.
	ok, reason, err = l.CheckOnly(ctx, "agent-1", p)
	require.NoError(t, err)
	assert.False(t, ok)
	assert.Equal(t, contracts.DenyDailyLimitExceeded, reason)

	// Advancing past the window start resets the effective count to zero.
	clock.Advance(WindowSeconds * time.Second)
	ok, reason, err = l.CheckOnly(ctx, "agent-1", p)
	require.NoError(t, err)
	assert.True(t, ok)
	assert.Empty(t, reason)

	state, err := l.State(ctx, "agent-1")
	require.NoError(t, err)
	assert.Equal(t, int64(0), state.DailyCount)
	assert.Equal(t, int64(3), state.TotalActions)
}

func TestWindowSlidesFromFirstAction(t *testing.T) {
	ctx := context.Background()
	l, clock := newTestLimiter()
	p := contracts.Policy{DailyLimit: 1, Active: true}

	require.NoError(t, l.Record(ctx, "agent-1", 10))

	// One second short of the window the limit still binds.
	clock.Advance(WindowSeconds*time.Second - time.Second)
	ok, reason, err := l.CheckOnly(ctx, "agent-1", p)
	require.NoError(t, err)
	assert.False(t, ok)
	assert.Equal(t, contracts.DenyDailyLimitExceeded, reason)

	clock.Advance(time.Second)
	ok, _, err = l.CheckOnly(ctx, "agent-1", p)
	require.NoError(t, err)
	assert.True(t, ok)

	// Recording after expiry persists the reset window.
	require.NoError(t, l.Record(ctx, "agent-1", 10))
	state, err := l.State(ctx, "agent-1")
	require.NoError(t, err)
	assert.Equal(t, int64(1), state.DailyCount)
	assert.Equal(t, clock.Now(), state.WindowStart)
}

func TestCooldown(t *testing.T) {
	ctx := context.Background()
	l, clock := newTestLimiter()
	p := contracts.Policy{DailyLimit: 100, CooldownSeconds: 60, Active: true}

	// A fresh agent has no cooldown.
	ok, _, err := l.CheckOnly(ctx, "agent-1", p)
	require.NoError(t, err)
	require.True(t, ok)
	require.NoError(t, l.Record(ctx, "agent-1", 1))

	clock.Advance(30 * time.Second)
	ok, reason, err := l.CheckOnly(ctx, "agent-1", p)
	require.NoError(t, err)
	assert.False(t, ok)
	assert.Equal(t, contracts.DenyCooldownActive, reason)

	clock.Advance(30 * time.Second)
	ok, _, err = l.CheckOnly(ctx, "agent-1", p)
	require.NoError(t, err)
	assert.True(t, ok)
}

func TestRecordAccumulatesTotals(t *testing.T) {
	ctx := context.Background()
	l, _ := newTestLimiter()

	require.NoError(t, l.Record(ctx, "agent-1", 100))
	require.NoError(t, l.Record(ctx, "agent-1", 250))

	state, err := l.State(ctx, "agent-1")
	require.NoError(t, err)
	assert.Equal(t, int64(2), state.DailyCount)
	assert.Equal(t, int64(2), state.TotalActions)
	assert.Equal(t, int64(350), state.TotalResourceCost)
}

func TestAgentsAreIsolated(t *testing.T) {
	ctx := context.Background()
	l, _ := newTestLimiter()
	p := contracts.Policy{DailyLimit: 1, Active: true}

	require.NoError(t, l.Record(ctx, "agent-1", 1))

	ok, _, err := l.CheckOnly(ctx, "agent-2", p)
	require.NoError(t, err)
	assert.True(t, ok)
}
