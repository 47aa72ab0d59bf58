package ratelimit

import (
	"context"
	"regexp"
	"testing"
	"time"

	"github.com/DATA-DOG/go-sqlmock"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/chronicler-labs/chronicler/core/pkg/contracts"
)

func newMockStore(t *testing.T) (*SQLStateStore, sqlmock.Sqlmock) {
	t.Helper()
	db, mock, err := sqlmock.New()
	require.NoError(t, err)
	t.Cleanup(func() { _ = db.Close() })

	mock.ExpectExec("CREATE TABLE IF NOT EXISTS rate_limit_states").
		WillReturnResult(sqlmock.NewResult(0, 0))
	store, err := NewSQLStateStore(db)
	require.NoError(t, err)
	return store, mock
}

func TestSQLStateStoreGet(t *testing.T) {
	store, mock := newMockStore(t)
	ctx := context.Background()

	rows := sqlmock.NewRows([]string{"agent_id", "last_action_time", "daily_count", "window_start", "total_actions", "total_resource_cost"}).
		AddRow("agent-1", int64(1700000500), int64(4), int64(1700000000), int64(12), int64(3400))

	mock.ExpectQuery(regexp.QuoteMeta("FROM rate_limit_states WHERE agent_id = ?")).
		WithArgs("agent-1").
		WillReturnRows(rows)

	state, err := store.Get(ctx, "agent-1")
	require.NoError(t, err)
	assert.Equal(t, "agent-1", state.AgentID)
	assert.Equal(t, int64(4), state.DailyCount)
	assert.Equal(t, time.Unix(1700000000, 0).UTC(), state.WindowStart)
	assert.Equal(t, int64(3400), state.TotalResourceCost)

	require.NoError(t, mock.ExpectationsWereMet())
}

func TestSQLStateStoreGetMissingIsZeroState(t *testing.T) {
	store, mock := newMockStore(t)
	ctx := context.Background()

	mock.ExpectQuery(regexp.QuoteMeta("FROM rate_limit_states WHERE agent_id = ?")).
		WithArgs("agent-2").
		WillReturnRows(sqlmock.NewRows([]string{"agent_id", "last_action_time", "daily_count", "window_start", "total_actions", "total_resource_cost"}))

	state, err := store.Get(ctx, "agent-2")
	require.NoError(t, err)
	assert.Equal(t, "agent-2", state.AgentID)
	assert.Zero(t, state.DailyCount)
	assert.True(t, state.WindowStart.IsZero())

	require.NoError(t, mock.ExpectationsWereMet())
}

func TestSQLStateStorePut(t *testing.T) {
	store, mock := newMockStore(t)
	ctx := context.Background()

	now := time.Unix(1700000600, 0).UTC()
	mock.ExpectExec("INSERT INTO rate_limit_states").
		WithArgs("agent-1", now.Unix(), int64(5), now.Unix(), int64(13), int64(3500)).
		WillReturnResult(sqlmock.NewResult(0, 1))

	err := store.Put(ctx, contracts.RateLimitState{
		AgentID:           "agent-1",
		LastActionTime:    now,
		DailyCount:        5,
		WindowStart:       now,
		TotalActions:      13,
		TotalResourceCost: 3500,
	})
	require.NoError(t, err)
	require.NoError(t, mock.ExpectationsWereMet())
}
