package audit

import (
	"context"
	"database/sql"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	_ "modernc.org/sqlite"
)

func newOutboxStore(t *testing.T) *OutboxStore {
	t.Helper()
	db, err := sql.Open("sqlite", ":memory:")
	require.NoError(t, err)
	db.SetMaxOpenConns(1)
	t.Cleanup(func() { _ = db.Close() })

	store, err := NewOutboxStore(db)
	require.NoError(t, err)
	return store
}

func TestOutboxRecordAndDrain(t *testing.T) {
	store := newOutboxStore(t)
	ctx := context.Background()

	pending, err := store.GetPending(ctx)
	require.NoError(t, err)
	assert.Empty(t, pending)

	require.NoError(t, store.Record(ctx, EventActionLogged, "agent-1", map[string]any{"index": 0}))
	require.NoError(t, store.Record(ctx, EventBatchSealed, "system", nil))

	pending, err = store.GetPending(ctx)
	require.NoError(t, err)
	require.Len(t, pending, 2)
	for _, rec := range pending {
		assert.Equal(t, "PENDING", rec.Status)
		assert.Equal(t, rec.ID, rec.Event.ID)
	}
	assert.Equal(t, EventActionLogged, pending[0].Event.Type)
	assert.Equal(t, "agent-1", pending[0].Event.SubjectID)

	require.NoError(t, store.MarkDispatched(ctx, pending[0].ID))

	remaining, err := store.GetPending(ctx)
	require.NoError(t, err)
	require.Len(t, remaining, 1)
	assert.Equal(t, pending[1].ID, remaining[0].ID)
}

func TestOutboxMarkDispatchedUnknown(t *testing.T) {
	store := newOutboxStore(t)
	err := store.MarkDispatched(context.Background(), "ghost")
	require.Error(t, err)
}
