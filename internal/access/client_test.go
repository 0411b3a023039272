package access

import (
	"context"
	"database/sql"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	_ "modernc.org/sqlite"

	"github.com/kasuganosora/syncbase/internal/model"
	"github.com/kasuganosora/syncbase/internal/query"
	"github.com/kasuganosora/syncbase/internal/schema"
)

func newTestClient(t *testing.T) (*Client, *sql.DB) {
	db, err := sql.Open("sqlite", ":memory:")
	require.NoError(t, err)
	_, err = db.Exec(`
		CREATE TABLE customers (id INTEGER PRIMARY KEY AUTOINCREMENT, name TEXT);
		CREATE TABLE orders (id INTEGER PRIMARY KEY AUTOINCREMENT, customer_id INTEGER, total REAL,
			FOREIGN KEY (customer_id) REFERENCES customers(id));
	`)
	require.NoError(t, err)

	cat := schema.New(&schema.SQLiteReflector{DB: db})
	_, err = cat.Load()
	require.NoError(t, err)

	return New(db, query.SQLiteDialect{}, cat), db
}

func TestClient_InsertGetUpdateRemove(t *testing.T) {
	ctx := context.Background()
	c, _ := newTestClient(t)

	inserted, err := c.Insert(ctx, "customers", model.Record{"name": "alice"})
	require.NoError(t, err)
	id := inserted["id"]
	require.NotNil(t, id)

	got, err := c.GetByPk(ctx, "customers", model.Record{"id": id}, nil)
	require.NoError(t, err)
	require.NotNil(t, got)
	assert.Equal(t, "alice", got["name"])

	_, err = c.Update(ctx, "customers", model.Record{"id": id, "name": "alicia"})
	require.NoError(t, err)

	got, err = c.GetByPk(ctx, "customers", model.Record{"id": id}, nil)
	require.NoError(t, err)
	assert.Equal(t, "alicia", got["name"])

	require.NoError(t, c.Remove(ctx, "customers", model.Record{"id": id}))
	got, err = c.GetByPk(ctx, "customers", model.Record{"id": id}, nil)
	require.NoError(t, err)
	assert.Nil(t, got)
}

func TestClient_SearchWithJoinFetch(t *testing.T) {
	ctx := context.Background()
	c, _ := newTestClient(t)

	cust, err := c.Insert(ctx, "customers", model.Record{"name": "bob"})
	require.NoError(t, err)
	_, err = c.Insert(ctx, "orders", model.Record{"customer_id": cust["id"], "total": 9.5})
	require.NoError(t, err)
	_, err = c.Insert(ctx, "orders", model.Record{"customer_id": cust["id"], "total": 3.25})
	require.NoError(t, err)

	rows, err := c.Search(ctx, query.SelectSpec{
		Table: "customers",
		Joins: []query.JoinFetch{{OtherTable: "orders", Type: query.Join2Many, Name: "orders"}},
	})
	require.NoError(t, err)
	require.Len(t, rows, 1)
	orders, ok := rows[0]["orders"].([]model.Record)
	require.True(t, ok)
	assert.Len(t, orders, 2)
}

func TestClient_ChangesAutoAndTokenSubstitution(t *testing.T) {
	ctx := context.Background()
	c, _ := newTestClient(t)

	results, err := c.Changes(ctx, []ChangeOp{
		{Action: model.ActionAuto, Table: "customers", Record: model.Record{"name": "carol"}},
		{Action: model.ActionInsert, Table: "orders", Record: model.Record{"customer_id": "${customers.id}", "total": 12.0}},
	})
	require.NoError(t, err)
	require.Len(t, results, 2)
	assert.Equal(t, results[0]["id"], results[1]["customer_id"])
}

func TestClient_TransactionCommitsOnDone(t *testing.T) {
	ctx := context.Background()
	c, db := newTestClient(t)

	err := c.Transaction(ctx, time.Second, func(tx *Client, done func(error)) error {
		_, err := tx.Insert(ctx, "customers", model.Record{"name": "dave"})
		done(nil)
		return err
	})
	require.NoError(t, err)

	var count int
	require.NoError(t, db.QueryRow(`SELECT COUNT(*) FROM customers WHERE name = 'dave'`).Scan(&count))
	assert.Equal(t, 1, count)
}

func TestClient_TransactionRollsBackOnError(t *testing.T) {
	ctx := context.Background()
	c, db := newTestClient(t)

	err := c.Transaction(ctx, time.Second, func(tx *Client, done func(error)) error {
		_, ierr := tx.Insert(ctx, "customers", model.Record{"name": "erin"})
		require.NoError(t, ierr)
		return assert.AnError
	})
	require.Error(t, err)

	var count int
	require.NoError(t, db.QueryRow(`SELECT COUNT(*) FROM customers WHERE name = 'erin'`).Scan(&count))
	assert.Equal(t, 0, count)
}

func TestClient_NestedTransactionRejected(t *testing.T) {
	ctx := context.Background()
	c, _ := newTestClient(t)

	err := c.Transaction(ctx, time.Second, func(tx *Client, done func(error)) error {
		defer done(nil)
		return tx.Transaction(ctx, time.Second, func(*Client, func(error)) error { return nil })
	})
	require.Error(t, err)
}

func TestClient_Hooks(t *testing.T) {
	ctx := context.Background()
	c, _ := newTestClient(t)

	var beforeCalled, afterCalled bool
	c.Before(OpInsert, "customers", func(ctx context.Context, tx *Client, io *HookIO) error {
		beforeCalled = true
		io.Record["name"] = "hooked"
		return nil
	})
	c.After(OpInsert, "customers", func(ctx context.Context, tx *Client, io *HookIO) error {
		afterCalled = true
		return nil
	})

	rec, err := c.Insert(ctx, "customers", model.Record{"name": "original"})
	require.NoError(t, err)
	assert.True(t, beforeCalled)
	assert.True(t, afterCalled)
	assert.Equal(t, "hooked", rec["name"])
}

func TestClient_ViewRewrite(t *testing.T) {
	ctx := context.Background()
	c, db := newTestClient(t)
	_, err := db.Exec(`CREATE VIEW active_customers AS SELECT * FROM customers WHERE name != 'blocked'`)
	require.NoError(t, err)

	_, err = c.Insert(ctx, "customers", model.Record{"name": "blocked"})
	require.NoError(t, err)
	_, err = c.Insert(ctx, "customers", model.Record{"name": "ok"})
	require.NoError(t, err)

	c.ViewRewrite("customers", func() string { return "active_customers" })

	rows, err := c.Search(ctx, query.SelectSpec{Table: "customers"})
	require.NoError(t, err)
	for _, r := range rows {
		assert.NotEqual(t, "blocked", r["name"])
	}
}
