package sync

import (
	"context"
	"database/sql"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	_ "modernc.org/sqlite"

	"github.com/kasuganosora/syncbase/internal/access"
	"github.com/kasuganosora/syncbase/internal/model"
	"github.com/kasuganosora/syncbase/internal/query"
	"github.com/kasuganosora/syncbase/internal/schema"
	"github.com/kasuganosora/syncbase/internal/track"
)

func newSyncHarness(t *testing.T, cfg Config) (*access.Client, *Server, *sql.DB) {
	db, err := sql.Open("sqlite", ":memory:")
	require.NoError(t, err)
	_, err = db.Exec(`
		CREATE TABLE items (id TEXT PRIMARY KEY, color TEXT,
			version_record INTEGER, version_table INTEGER, version_date DATETIME, version_user TEXT);
	`)
	require.NoError(t, err)
	require.NoError(t, track.EnsureSchema(context.Background(), db, "sqlite"))
	require.NoError(t, EnsureSchema(context.Background(), db, "sqlite"))

	cat := schema.New(&schema.SQLiteReflector{DB: db})
	for _, s := range track.Schemas() {
		cat.Augment(s)
	}
	for _, s := range Schemas() {
		cat.Augment(s)
	}
	_, err = cat.Load()
	require.NoError(t, err)

	c := access.New(db, query.SQLiteDialect{}, cat)
	tr := track.New(track.DefaultConfig())
	tr.Install(c)

	srv := NewServer(c, cfg)
	return c, srv, db
}

func TestServer_Apply_IdempotentUpload(t *testing.T) {
	ctx := track.WithActor(context.Background(), "alice")
	c, srv, _ := newSyncHarness(t, Config{Tables: []string{"items"}})

	cs := model.ChangeSet{
		UUID:       "upload-1",
		ClientDate: time.Now().UTC(),
		TimeSkewMs: 0,
		Changes: []model.Change{
			{Table: "items", Action: model.ActionInsert, Record: model.Record{"id": "a", "color": "red"}},
		},
	}

	refresh1, err := srv.Apply(ctx, cs)
	require.NoError(t, err)
	assert.False(t, refresh1)

	refresh2, err := srv.Apply(ctx, cs)
	require.NoError(t, err)
	assert.False(t, refresh2)

	logs, err := c.Search(ctx, query.SelectSpec{Table: TableSyncLog, Predicate: model.Eq("uuid", "upload-1"), HasFilter: true})
	require.NoError(t, err)
	assert.Len(t, logs, 1)
	assert.Equal(t, string(model.SyncStatusDone), logs[0]["status"])

	rows, err := c.Search(ctx, query.SelectSpec{Table: "items", Predicate: model.Eq("id", "a"), HasFilter: true})
	require.NoError(t, err)
	assert.Len(t, rows, 1)
}

func TestServer_Apply_StraightforwardInsert(t *testing.T) {
	ctx := track.WithActor(context.Background(), "alice")
	c, srv, _ := newSyncHarness(t, Config{Tables: []string{"items"}})

	cs := model.ChangeSet{
		UUID:       "upload-insert",
		ClientDate: time.Now().UTC(),
		Changes: []model.Change{
			{Table: "items", Action: model.ActionInsert, Record: model.Record{"id": "a", "color": "red"}},
		},
	}
	refresh, err := srv.Apply(ctx, cs)
	require.NoError(t, err)
	assert.False(t, refresh)

	row, err := c.GetByPk(ctx, "items", model.Record{"id": "a"}, nil)
	require.NoError(t, err)
	require.NotNil(t, row)
	assert.Equal(t, "red", row["color"])
}

func TestServer_Apply_LastWriterWinsHistorySplit(t *testing.T) {
	ctx := track.WithActor(context.Background(), "alice")
	c, srv, _ := newSyncHarness(t, Config{Tables: []string{"items"}})

	T1 := time.Date(2026, 1, 1, 10, 0, 0, 0, time.UTC)
	T2 := T1.Add(1 * time.Hour)

	_, err := c.Insert(ctx, "items", model.Record{"id": "a", "color": "orig"})
	require.NoError(t, err)

	updated, err := c.Update(ctx, "items", model.Record{"id": "a", "color": "S", "version_date": T2})
	require.NoError(t, err)
	require.EqualValues(t, 1, updated[model.ColVersionRecord])

	cs := model.ChangeSet{
		UUID:       "upload-conflict",
		ClientDate: T1,
		TimeSkewMs: 0,
		Changes: []model.Change{
			{Table: "items", Action: model.ActionUpdate, Record: model.Record{"id": "a", "color": "C", "version_record": int64(0)}},
		},
	}
	refresh, err := srv.Apply(ctx, cs)
	require.NoError(t, err)
	assert.False(t, refresh)

	row, err := c.GetByPk(ctx, "items", model.Record{"id": "a"}, nil)
	require.NoError(t, err)
	require.NotNil(t, row)
	assert.Equal(t, "S", row["color"], "server's own later write must survive the conflicting older upload")

	history, err := c.Search(ctx, query.SelectSpec{
		Table:     track.TableModifTrack,
		Predicate: model.And(model.Eq("table_uid", "a"), model.Eq("column_name", "color")),
		HasFilter: true,
		OrderBy:   "version_date asc",
	})
	require.NoError(t, err)
	require.Len(t, history, 2, "the original edit's history row must be split into two contiguous transitions")

	assert.Equal(t, "orig", history[0]["column_before"])
	assert.Equal(t, "C", history[0]["column_after"])

	assert.Equal(t, "C", history[1]["column_before"])
	assert.Equal(t, "S", history[1]["column_after"])
}

func TestServer_Apply_UpdateAgainstTombstoneIsDropped(t *testing.T) {
	ctx := track.WithActor(context.Background(), "alice")
	c, srv, _ := newSyncHarness(t, Config{Tables: []string{"items"}})

	_, err := c.Insert(ctx, "items", model.Record{"id": "a", "color": "orig"})
	require.NoError(t, err)
	require.NoError(t, c.Remove(ctx, "items", model.Record{"id": "a"}))

	cs := model.ChangeSet{
		UUID:       "upload-against-tombstone",
		ClientDate: time.Now().UTC(),
		Changes: []model.Change{
			{Table: "items", Action: model.ActionUpdate, Record: model.Record{"id": "a", "color": "late"}},
		},
	}
	refresh, err := srv.Apply(ctx, cs)
	require.NoError(t, err)
	assert.False(t, refresh)

	row, err := c.GetByPk(ctx, "items", model.Record{"id": "a"}, nil)
	require.NoError(t, err)
	assert.Nil(t, row, "a deleted row must not be resurrected by an update that races the delete")
}
