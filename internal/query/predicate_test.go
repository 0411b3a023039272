package query

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/kasuganosora/syncbase/internal/model"
)

func TestCompilePredicate_Eq(t *testing.T) {
	c, err := CompilePredicate(MySQLDialect{}, "t", model.Eq("name", "bob"))
	require.NoError(t, err)
	assert.Equal(t, "t.`name` = ?", c.SQL)
	assert.Equal(t, []interface{}{"bob"}, c.Args)
}

func TestCompilePredicate_EqNilIsNull(t *testing.T) {
	c, err := CompilePredicate(MySQLDialect{}, "t", model.Eq("deleted_at", nil))
	require.NoError(t, err)
	assert.Equal(t, "t.`deleted_at` IS NULL", c.SQL)
	assert.Empty(t, c.Args)
}

func TestCompilePredicate_AndOr(t *testing.T) {
	p := model.And(
		model.Eq("status", "open"),
		model.Or(model.Cmp("age", model.OpGt, 18), model.Cmp("age", model.OpLt, 5)),
	)
	c, err := CompilePredicate(PostgresDialect{}, "t", p)
	require.NoError(t, err)
	assert.Equal(t, `(t."status" = $1) AND ((t."age" > $2) OR (t."age" < $3))`, c.SQL)
	assert.Equal(t, []interface{}{"open", 18, 5}, c.Args)
}

func TestCompilePredicate_In(t *testing.T) {
	c, err := CompilePredicate(SQLiteDialect{}, "t", model.In("id", []interface{}{1, 2, 3}))
	require.NoError(t, err)
	assert.Equal(t, `t."id" IN (?, ?, ?)`, c.SQL)
	assert.Equal(t, []interface{}{1, 2, 3}, c.Args)
}

func TestCompilePredicate_InEmptyIsError(t *testing.T) {
	_, err := CompilePredicate(SQLiteDialect{}, "t", model.In("id", nil))
	require.Error(t, err)
}

func TestCompilePredicate_Between(t *testing.T) {
	c, err := CompilePredicate(MySQLDialect{}, "t", model.Between("age", 10, 20))
	require.NoError(t, err)
	assert.Equal(t, "t.`age` BETWEEN ? AND ?", c.SQL)
}

func TestCompilePredicate_BetweenWrongArity(t *testing.T) {
	bad := model.Predicate{Op: model.OpBetween, Field: "age", Values: []interface{}{1}}
	_, err := CompilePredicate(MySQLDialect{}, "t", bad)
	require.Error(t, err)
}

func TestParseOrderBy_MixedDirectionRejected(t *testing.T) {
	schema := &model.TableSchema{Name: "orders", Columns: []model.ColumnSchema{{Name: "id"}, {Name: "created_at"}}}
	_, err := ParseOrderBy("id asc, created_at desc", schema)
	require.Error(t, err)
}

func TestParseOrderBy_UnknownColumn(t *testing.T) {
	schema := &model.TableSchema{Name: "orders", Columns: []model.ColumnSchema{{Name: "id"}}}
	_, err := ParseOrderBy("bogus desc", schema)
	require.Error(t, err)
}

func TestParseOrderBy_OK(t *testing.T) {
	schema := &model.TableSchema{Name: "orders", Columns: []model.ColumnSchema{{Name: "id"}, {Name: "created_at"}}}
	clauses, err := ParseOrderBy("id, created_at asc", schema)
	require.NoError(t, err)
	require.Len(t, clauses, 2)
	assert.False(t, clauses[0].Desc)
	assert.False(t, clauses[1].Desc)
	assert.Equal(t, `t1."id" ASC, t1."created_at" ASC`, RenderOrderBy(PostgresDialect{}, "t1", clauses))
}
