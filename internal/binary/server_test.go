package binary

import (
	"context"
	"database/sql"
	"io"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	_ "modernc.org/sqlite"

	"github.com/kasuganosora/syncbase/internal/access"
	"github.com/kasuganosora/syncbase/internal/query"
	"github.com/kasuganosora/syncbase/internal/schema"
)

func newEngineHarness(t *testing.T) *Engine {
	db, err := sql.Open("sqlite", ":memory:")
	require.NoError(t, err)
	require.NoError(t, EnsureSchema(context.Background(), db, "sqlite"))

	cat := schema.New(&schema.SQLiteReflector{DB: db})
	for _, s := range Schemas() {
		cat.Augment(s)
	}
	_, err = cat.Load()
	require.NoError(t, err)

	c := access.New(db, query.SQLiteDialect{}, cat)
	return NewEngine(c, Config{Root: t.TempDir()})
}

func TestEngine_SaveWritesMetadataAndMovesFile(t *testing.T) {
	ctx := context.Background()
	e := newEngineHarness(t)

	meta, err := e.Save(ctx, SaveInput{
		Table:    "widgets",
		TableUID: "w1",
		Filename: "photo.jpg",
		Contents: strings.NewReader("hello world"),
	})
	require.NoError(t, err)
	assert.NotEmpty(t, meta.UID)
	assert.NotEmpty(t, meta.Checksum)
	assert.EqualValues(t, len("hello world"), meta.Size)
	assert.False(t, meta.CreationTS.IsZero())
	assert.Equal(t, meta.CreationTS, meta.ModificationTS, "a fresh uid has equal creation and modification timestamps")

	r, reopened, err := e.Open(ctx, meta.UID)
	require.NoError(t, err)
	defer r.Close()
	data, err := io.ReadAll(r)
	require.NoError(t, err)
	assert.Equal(t, "hello world", string(data))
	assert.Equal(t, meta.Checksum, reopened.Checksum)
}

func TestEngine_SavePreservesCreationTSOnUpdate(t *testing.T) {
	ctx := context.Background()
	e := newEngineHarness(t)

	first, err := e.Save(ctx, SaveInput{Table: "widgets", TableUID: "w1", Filename: "a.txt", Contents: strings.NewReader("v1")})
	require.NoError(t, err)

	second, err := e.Save(ctx, SaveInput{UID: first.UID, Table: "widgets", TableUID: "w1", Filename: "a.txt", Contents: strings.NewReader("v2")})
	require.NoError(t, err)

	assert.True(t, first.CreationTS.Equal(second.CreationTS), "creation_ts must survive an update unchanged")
	assert.NotEqual(t, first.Checksum, second.Checksum)

	r, _, err := e.Open(ctx, first.UID)
	require.NoError(t, err)
	defer r.Close()
	data, err := io.ReadAll(r)
	require.NoError(t, err)
	assert.Equal(t, "v2", string(data))
}

func TestEngine_DeleteRemovesRowAndFile(t *testing.T) {
	ctx := context.Background()
	e := newEngineHarness(t)

	meta, err := e.Save(ctx, SaveInput{Table: "widgets", TableUID: "w1", Filename: "a.txt", Contents: strings.NewReader("v1")})
	require.NoError(t, err)

	require.NoError(t, e.Delete(ctx, meta.UID))

	_, _, err = e.Open(ctx, meta.UID)
	assert.Error(t, err)
}
