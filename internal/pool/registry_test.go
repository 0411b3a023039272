package pool

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	_ "modernc.org/sqlite"
)

func TestRegistry_OpenGetClose(t *testing.T) {
	r := NewRegistry()
	db, err := r.Open("primary", "sqlite", ":memory:", DefaultConfig())
	require.NoError(t, err)
	require.NotNil(t, db)

	got, err := r.Get("primary")
	require.NoError(t, err)
	assert.Equal(t, db, got)

	assert.Equal(t, int64(1), r.Metrics().Snapshot()["opened"])

	require.NoError(t, r.Close())
	assert.Equal(t, int64(1), r.Metrics().Snapshot()["closed"])

	_, err = r.Get("primary")
	require.Error(t, err)
}

func TestRegistry_OpenBadDriverFails(t *testing.T) {
	r := NewRegistry()
	_, err := r.Open("bogus", "no-such-driver", "x", DefaultConfig())
	require.Error(t, err)
}

func TestRegistry_ReplacingClosesOldHandle(t *testing.T) {
	r := NewRegistry()
	_, err := r.Open("primary", "sqlite", ":memory:", DefaultConfig())
	require.NoError(t, err)
	_, err = r.Open("primary", "sqlite", ":memory:", DefaultConfig())
	require.NoError(t, err)
	assert.Equal(t, int64(2), r.Metrics().Snapshot()["opened"])
	assert.Equal(t, int64(1), r.Metrics().Snapshot()["closed"])
}
