package schema

import (
	"database/sql"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	_ "modernc.org/sqlite"

	"github.com/kasuganosora/syncbase/internal/model"
)

func openTestDB(t *testing.T) *sql.DB {
	db, err := sql.Open("sqlite", ":memory:")
	require.NoError(t, err)
	_, err = db.Exec(`
		CREATE TABLE customers (id INTEGER PRIMARY KEY, name TEXT);
		CREATE TABLE orders (id INTEGER PRIMARY KEY, customer_id INTEGER, total REAL,
			FOREIGN KEY (customer_id) REFERENCES customers(id));
	`)
	require.NoError(t, err)
	return db
}

func TestCatalog_LoadReflectsTablesAndFKs(t *testing.T) {
	db := openTestDB(t)
	cat := New(&SQLiteReflector{DB: db})

	tables, err := cat.Load()
	require.NoError(t, err)
	require.Contains(t, tables, "customers")
	require.Contains(t, tables, "orders")

	orders := tables["orders"]
	assert.Equal(t, []string{"id"}, orders.PrimaryKey)
	require.Len(t, orders.ForeignKeys, 1)
	assert.Equal(t, "customer_id", orders.ForeignKeys[0].ThisColumn)
	assert.Equal(t, "customers", orders.ForeignKeys[0].TargetTable)
	assert.Equal(t, "id", orders.ForeignKeys[0].TargetColumn)
}

func TestCatalog_DefaultsPKToAllColumnsWhenNoneDetected(t *testing.T) {
	db, err := sql.Open("sqlite", ":memory:")
	require.NoError(t, err)
	_, err = db.Exec(`CREATE TABLE tags (name TEXT, color TEXT)`)
	require.NoError(t, err)

	cat := New(&SQLiteReflector{DB: db})
	tables, err := cat.Load()
	require.NoError(t, err)
	assert.ElementsMatch(t, []string{"name", "color"}, tables["tags"].PrimaryKey)
}

func TestCatalog_AugmentMergesColumns(t *testing.T) {
	db := openTestDB(t)
	cat := New(&SQLiteReflector{DB: db})
	_, err := cat.Load()
	require.NoError(t, err)

	cat.Augment(model.TableSchema{
		Name:    "customers",
		Columns: []model.ColumnSchema{{Name: "name", Type: "varchar"}, {Name: "email", Type: "text"}},
	})

	tbl, err := cat.GetTable("customers")
	require.NoError(t, err)
	assert.True(t, tbl.HasColumn("email"))
	for _, c := range tbl.Columns {
		if c.Name == "name" {
			assert.Equal(t, "varchar", c.Type)
		}
	}
}

func TestCatalog_InvalidateForcesReload(t *testing.T) {
	db := openTestDB(t)
	cat := New(&SQLiteReflector{DB: db})
	_, err := cat.Load()
	require.NoError(t, err)

	_, err = db.Exec(`CREATE TABLE shipments (id INTEGER PRIMARY KEY)`)
	require.NoError(t, err)

	_, err = cat.GetTable("shipments")
	require.Error(t, err)

	cat.Invalidate()
	tbl, err := cat.GetTable("shipments")
	require.NoError(t, err)
	assert.Equal(t, "shipments", tbl.Name)
}

func TestCatalog_SurrogateVersionGrowsMonotonically(t *testing.T) {
	db := openTestDB(t)
	cat := New(&SQLiteReflector{DB: db})
	v1, err := cat.Version()
	require.NoError(t, err)

	_, err = db.Exec(`ALTER TABLE customers ADD COLUMN email TEXT`)
	require.NoError(t, err)
	cat.Invalidate()

	v2, err := cat.Version()
	require.NoError(t, err)
	assert.Greater(t, v2, v1)
}
