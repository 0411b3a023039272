package localstore

import (
	"context"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/kasuganosora/syncbase/internal/model"
)

func newTestStore(t *testing.T) *Store {
	s, err := Open(Config{InMemory: true})
	require.NoError(t, err)
	t.Cleanup(func() { s.Close() })
	return s
}

func TestStore_EnqueuePendingClear(t *testing.T) {
	ctx := context.Background()
	s := newTestStore(t)

	pending, err := s.Pending(ctx)
	require.NoError(t, err)
	assert.Empty(t, pending)

	require.NoError(t, s.Enqueue(ctx, model.Change{Table: "items", Action: model.ActionInsert, Record: model.Record{"id": "a"}}))
	require.NoError(t, s.Enqueue(ctx, model.Change{Table: "items", Action: model.ActionUpdate, Record: model.Record{"id": "a", "color": "red"}}))

	pending, err = s.Pending(ctx)
	require.NoError(t, err)
	require.Len(t, pending, 2)
	assert.Equal(t, model.ActionInsert, pending[0].Action)
	assert.Equal(t, model.ActionUpdate, pending[1].Action)

	require.NoError(t, s.ClearPending(ctx))
	pending, err = s.Pending(ctx)
	require.NoError(t, err)
	assert.Empty(t, pending)
}

func TestStore_PendingPreservesInsertionOrder(t *testing.T) {
	ctx := context.Background()
	s := newTestStore(t)

	for i := 0; i < 25; i++ {
		require.NoError(t, s.Enqueue(ctx, model.Change{Table: "items", Action: model.ActionUpdate, Record: model.Record{"seq": int64(i)}}))
	}

	pending, err := s.Pending(ctx)
	require.NoError(t, err)
	require.Len(t, pending, 25)
	for i, ch := range pending {
		assert.EqualValues(t, i, ch.Record["seq"])
	}
}

func TestStore_LocalVersionDefaultsToZero(t *testing.T) {
	ctx := context.Background()
	s := newTestStore(t)

	v, err := s.LocalVersion(ctx, "items")
	require.NoError(t, err)
	assert.EqualValues(t, 0, v)
}

func TestStore_SetLocalVersionPersists(t *testing.T) {
	ctx := context.Background()
	s := newTestStore(t)

	require.NoError(t, s.SetLocalVersion(ctx, "items", 42))
	v, err := s.LocalVersion(ctx, "items")
	require.NoError(t, err)
	assert.EqualValues(t, 42, v)

	require.NoError(t, s.SetLocalVersion(ctx, "items", 43))
	v, err = s.LocalVersion(ctx, "items")
	require.NoError(t, err)
	assert.EqualValues(t, 43, v)

	other, err := s.LocalVersion(ctx, "widgets")
	require.NoError(t, err)
	assert.EqualValues(t, 0, other, "versions are scoped per table")
}
