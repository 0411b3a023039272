package track

import (
	"context"
	"database/sql"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	_ "modernc.org/sqlite"

	"github.com/kasuganosora/syncbase/internal/access"
	"github.com/kasuganosora/syncbase/internal/model"
	"github.com/kasuganosora/syncbase/internal/query"
	"github.com/kasuganosora/syncbase/internal/schema"
)

func newTrackedClient(t *testing.T, cfg Config) (*access.Client, *Tracker, *sql.DB) {
	db, err := sql.Open("sqlite", ":memory:")
	require.NoError(t, err)
	_, err = db.Exec(`
		CREATE TABLE widgets (id INTEGER PRIMARY KEY AUTOINCREMENT, name TEXT, color TEXT,
			version_record INTEGER, version_table INTEGER, version_date DATETIME, version_user TEXT);
	`)
	require.NoError(t, err)
	require.NoError(t, EnsureSchema(context.Background(), db, "sqlite"))

	cat := schema.New(&schema.SQLiteReflector{DB: db})
	for _, s := range Schemas() {
		cat.Augment(s)
	}
	_, err = cat.Load()
	require.NoError(t, err)

	c := access.New(db, query.SQLiteDialect{}, cat)
	tr := New(cfg)
	tr.Install(c)
	return c, tr, db
}

func TestTracker_InsertStampsVersionZeroAndAllocatesTableVersion(t *testing.T) {
	ctx := WithActor(context.Background(), "alice")
	c, _, _ := newTrackedClient(t, DefaultConfig())

	row, err := c.Insert(ctx, "widgets", model.Record{"name": "sprocket"})
	require.NoError(t, err)
	assert.EqualValues(t, 0, row[model.ColVersionRecord])
	assert.EqualValues(t, 1, row[model.ColVersionTable])
	assert.Equal(t, "alice", row[model.ColVersionUser])

	tv, err := c.GetByPk(ctx, TableTableVersion, model.Record{"table_name": "widgets"}, nil)
	require.NoError(t, err)
	require.NotNil(t, tv)
	assert.EqualValues(t, 1, tv["version_table"])
}

func TestTracker_UpdateBumpsVersionAndWritesModifTrack(t *testing.T) {
	ctx := WithActor(context.Background(), "bob")
	c, _, _ := newTrackedClient(t, DefaultConfig())

	row, err := c.Insert(ctx, "widgets", model.Record{"name": "sprocket", "color": "red"})
	require.NoError(t, err)

	updated, err := c.Update(ctx, "widgets", model.Record{"id": row["id"], "color": "blue"})
	require.NoError(t, err)
	assert.EqualValues(t, 1, updated[model.ColVersionRecord])
	assert.EqualValues(t, 2, updated[model.ColVersionTable])

	history, err := c.Search(ctx, query.SelectSpec{
		Table:     TableModifTrack,
		Predicate: model.Eq("column_name", "color"),
		HasFilter: true,
	})
	require.NoError(t, err)
	require.Len(t, history, 1)
	assert.Equal(t, "red", history[0]["column_before"])
	assert.Equal(t, "blue", history[0]["column_after"])
}

func TestTracker_RemoveWritesDeleteTrack(t *testing.T) {
	ctx := WithActor(context.Background(), "carol")
	c, _, _ := newTrackedClient(t, DefaultConfig())

	row, err := c.Insert(ctx, "widgets", model.Record{"name": "gizmo"})
	require.NoError(t, err)
	require.NoError(t, c.Remove(ctx, "widgets", model.Record{"id": row["id"]}))

	expectedUID := model.Record{"id": row["id"]}.PKString([]string{"id"})
	tomb, err := c.SearchFirst(ctx, query.SelectSpec{
		Table: TableDeleteTrack,
		Predicate: model.And(
			model.Eq("table_name", "widgets"),
			model.Eq("table_uid", expectedUID),
		),
		HasFilter: true,
	})
	require.NoError(t, err)
	require.NotNil(t, tomb)
	assert.Equal(t, "carol", tomb["deleted_by"])
}

func TestTracker_StrictActorRejectsMissingActor(t *testing.T) {
	ctx := context.Background()
	c, _, _ := newTrackedClient(t, DefaultConfig())

	_, err := c.Insert(ctx, "widgets", model.Record{"name": "sprocket"})
	require.Error(t, err)
	var authErr *model.AuthError
	assert.ErrorAs(t, err, &authErr)
}

func TestTracker_NonStrictActorAllowsMissingActor(t *testing.T) {
	ctx := context.Background()
	c, _, _ := newTrackedClient(t, Config{StrictActor: false})

	row, err := c.Insert(ctx, "widgets", model.Record{"name": "sprocket"})
	require.NoError(t, err)
	assert.Nil(t, row[model.ColVersionUser])
}

func TestTracker_ExcludeSkipsTable(t *testing.T) {
	ctx := context.Background()
	c, _, _ := newTrackedClient(t, Config{Exclude: []string{"widgets"}})

	row, err := c.Insert(ctx, "widgets", model.Record{"name": "untracked"})
	require.NoError(t, err)
	assert.Nil(t, row[model.ColVersionTable])
}
