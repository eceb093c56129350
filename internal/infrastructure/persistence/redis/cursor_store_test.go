package redis

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/avalia-hub/avalia-hub/internal/application/saga"
	"github.com/avalia-hub/avalia-hub/internal/domain/shared"
)

func testCursor(runID string, status saga.CascadeStatus) *saga.CascadeCursor {
	now := time.Date(2026, 3, 7, 10, 0, 0, 0, time.UTC)
	return &saga.CascadeCursor{
		RunID:     runID,
		ClassID:   "c1",
		Pending:   []string{"s2"},
		Completed: []string{"s1"},
		Step:      saga.StepDeleteReceived,
		Status:    status,
		StartedAt: now,
		UpdatedAt: now,
	}
}

func TestCursorStore_SaveIndexesUnfinishedRuns(t *testing.T) {
	cache, mr := newTestCache(t)
	store := NewCursorStore(cache)
	ctx := context.Background()

	require.NoError(t, store.Save(ctx, testCursor("r2", saga.StatusFailed)))
	require.NoError(t, store.Save(ctx, testCursor("r1", saga.StatusRunning)))

	members, err := mr.Members(store.indexKey())
	require.NoError(t, err)
	assert.Equal(t, []string{"r1", "r2"}, members)
	assert.Equal(t, CursorTTL, mr.TTL(store.runKey("r1")))

	ids, err := store.ListUnfinished(ctx)
	require.NoError(t, err)
	assert.Equal(t, []string{"r1", "r2"}, ids)

	got, err := store.Load(ctx, "r2")
	require.NoError(t, err)
	assert.Equal(t, "c1", got.ClassID)
	assert.Equal(t, saga.StatusFailed, got.Status)
	assert.Equal(t, saga.StepDeleteReceived, got.Step)
	assert.Equal(t, []string{"s1"}, got.Completed)
	assert.Equal(t, []string{"s2"}, got.Pending)
	assert.True(t, got.UpdatedAt.Equal(time.Date(2026, 3, 7, 10, 0, 0, 0, time.UTC)))
}

func TestCursorStore_CompletionLeavesTheIndex(t *testing.T) {
	cache, mr := newTestCache(t)
	store := NewCursorStore(cache)
	ctx := context.Background()

	require.NoError(t, store.Save(ctx, testCursor("r1", saga.StatusRunning)))
	require.NoError(t, store.Save(ctx, testCursor("r2", saga.StatusRunning)))

	done := testCursor("r1", saga.StatusCompleted)
	done.Pending = []string{}
	done.Step = saga.StepDone
	require.NoError(t, store.Save(ctx, done))

	isMember, err := mr.IsMember(store.indexKey(), "r1")
	require.NoError(t, err)
	assert.False(t, isMember)

	ids, err := store.ListUnfinished(ctx)
	require.NoError(t, err)
	assert.Equal(t, []string{"r2"}, ids)

	// The completed cursor is still readable.
	got, err := store.Load(ctx, "r1")
	require.NoError(t, err)
	assert.True(t, got.Finished())
}

func TestCursorStore_LoadMissing(t *testing.T) {
	cache, _ := newTestCache(t)
	store := NewCursorStore(cache)

	_, err := store.Load(context.Background(), "nope")
	assert.ErrorIs(t, err, shared.ErrCascadeNotFound)
}

func TestCursorStore_ListPrunesExpiredCursors(t *testing.T) {
	cache, mr := newTestCache(t)
	store := NewCursorStore(cache)
	ctx := context.Background()

	store.ttl = time.Minute
	require.NoError(t, store.Save(ctx, testCursor("old", saga.StatusFailed)))
	store.ttl = CursorTTL
	require.NoError(t, store.Save(ctx, testCursor("live", saga.StatusFailed)))

	mr.FastForward(2 * time.Minute)
	require.False(t, mr.Exists(store.runKey("old")))

	ids, err := store.ListUnfinished(ctx)
	require.NoError(t, err)
	assert.Equal(t, []string{"live"}, ids)

	members, err := mr.Members(store.indexKey())
	require.NoError(t, err)
	assert.Equal(t, []string{"live"}, members)
}

func TestCursorStore_ListEmpty(t *testing.T) {
	cache, _ := newTestCache(t)
	store := NewCursorStore(cache)

	ids, err := store.ListUnfinished(context.Background())
	require.NoError(t, err)
	assert.Empty(t, ids)
}

func TestCursorStore_StoreErrors(t *testing.T) {
	cache, mr := newTestCache(t)
	store := NewCursorStore(cache)
	ctx := context.Background()
	require.NoError(t, cache.Ping(ctx))

	mr.SetError("ERR injected")
	defer mr.SetError("")

	err := store.Save(ctx, testCursor("r1", saga.StatusRunning))
	assert.True(t, shared.IsStore(err))

	_, err = store.Load(ctx, "r1")
	assert.True(t, shared.IsStore(err))

	_, err = store.ListUnfinished(ctx)
	assert.True(t, shared.IsStore(err))
}
