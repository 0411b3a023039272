package query

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/kasuganosora/syncbase/internal/model"
)

type fakeResolver struct {
	tables map[string]*model.TableSchema
}

func (f *fakeResolver) GetTable(name string) (*model.TableSchema, error) {
	t, ok := f.tables[name]
	if !ok {
		return nil, model.NewNotFoundError("schema", name)
	}
	return t, nil
}

func customersOrdersResolver() *fakeResolver {
	customers := &model.TableSchema{
		Name:       "customers",
		Columns:    []model.ColumnSchema{{Name: "id"}, {Name: "name"}},
		PrimaryKey: []string{"id"},
	}
	orders := &model.TableSchema{
		Name:       "orders",
		Columns:    []model.ColumnSchema{{Name: "id"}, {Name: "customer_id"}, {Name: "total"}},
		PrimaryKey: []string{"id"},
		ForeignKeys: []model.ForeignKey{
			{ThisColumn: "customer_id", TargetTable: "customers", TargetColumn: "id"},
		},
	}
	items := &model.TableSchema{
		Name:       "order_items",
		Columns:    []model.ColumnSchema{{Name: "id"}, {Name: "order_id"}, {Name: "sku"}},
		PrimaryKey: []string{"id"},
		ForeignKeys: []model.ForeignKey{
			{ThisColumn: "order_id", TargetTable: "orders", TargetColumn: "id"},
		},
	}
	return &fakeResolver{tables: map[string]*model.TableSchema{
		"customers":    customers,
		"orders":       orders,
		"order_items":  items,
	}}
}

func TestBuildPlan_ResolvesFKAndAliases(t *testing.T) {
	resolver := customersOrdersResolver()
	plan, err := BuildPlan(resolver, MySQLDialect{}, SelectSpec{
		Table: "customers",
		Joins: []JoinFetch{
			{OtherTable: "orders", Type: Join2Many, Joins: []JoinFetch{
				{OtherTable: "order_items", Type: Join2Many},
			}},
		},
	})
	require.NoError(t, err)
	require.Len(t, plan.Joins, 1)
	orders := plan.Joins[0]
	assert.Equal(t, "t1", orders.alias)
	assert.Equal(t, "main_orders", orders.aliasPath)
	assert.Equal(t, "id", orders.thisField)
	assert.Equal(t, "customer_id", orders.otherField)
	require.Len(t, orders.children, 1)
	assert.Equal(t, "t2", orders.children[0].alias)
	assert.Equal(t, "main_orders_order_items", orders.children[0].aliasPath)
}

func TestBuildPlan_MissingFKIsError(t *testing.T) {
	resolver := &fakeResolver{tables: map[string]*model.TableSchema{
		"a": {Name: "a", Columns: []model.ColumnSchema{{Name: "id"}}, PrimaryKey: []string{"id"}},
		"b": {Name: "b", Columns: []model.ColumnSchema{{Name: "id"}}, PrimaryKey: []string{"id"}},
	}}
	_, err := BuildPlan(resolver, MySQLDialect{}, SelectSpec{
		Table: "a",
		Joins: []JoinFetch{{OtherTable: "b", Type: Join2One}},
	})
	require.Error(t, err)
}

func TestBuildPlan_OneSidedFieldIsError(t *testing.T) {
	resolver := customersOrdersResolver()
	_, err := BuildPlan(resolver, MySQLDialect{}, SelectSpec{
		Table: "customers",
		Joins: []JoinFetch{{OtherTable: "orders", Type: Join2Many, ThisField: "id"}},
	})
	require.Error(t, err)
}

func TestMainQuery_NoJoinsAppliesNativePaging(t *testing.T) {
	resolver := customersOrdersResolver()
	plan, err := BuildPlan(resolver, MySQLDialect{}, SelectSpec{
		Table: "customers", Limit: 10, Offset: 5,
	})
	require.NoError(t, err)
	assert.False(t, plan.NeedsTwoStep())
	q := plan.MainQuery(nil)
	assert.Contains(t, q.SQL, "LIMIT 10")
	assert.Contains(t, q.SQL, "OFFSET 5")
}

func TestMainQuery_ToManyJoinWithPagingNeedsTwoStep(t *testing.T) {
	resolver := customersOrdersResolver()
	plan, err := BuildPlan(resolver, MySQLDialect{}, SelectSpec{
		Table: "customers", Limit: 10,
		Joins: []JoinFetch{{OtherTable: "orders", Type: Join2Many}},
	})
	require.NoError(t, err)
	require.True(t, plan.NeedsTwoStep())

	page := plan.RootPageQuery()
	assert.Contains(t, page.SQL, "LIMIT 10")

	main := plan.MainQuery([]model.Record{{"id": 1}, {"id": 2}})
	assert.Contains(t, main.SQL, "LEFT JOIN")
	assert.Contains(t, main.SQL, "IN (?, ?)")
	assert.NotContains(t, main.SQL, "LIMIT")
}

func TestAssemble_GroupsAndDedupes(t *testing.T) {
	resolver := customersOrdersResolver()
	plan, err := BuildPlan(resolver, MySQLDialect{}, SelectSpec{
		Table: "customers",
		Joins: []JoinFetch{{OtherTable: "orders", Type: Join2Many, Name: "orders"}},
	})
	require.NoError(t, err)

	flatRows := []model.Record{
		{"main.id": 1, "main.name": "alice", "main_orders.id": 10, "main_orders.customer_id": 1, "main_orders.total": 5},
		{"main.id": 1, "main.name": "alice", "main_orders.id": 11, "main_orders.customer_id": 1, "main_orders.total": 6},
		{"main.id": 2, "main.name": "bob", "main_orders.id": nil, "main_orders.customer_id": nil, "main_orders.total": nil},
	}
	out := plan.Assemble(flatRows)
	require.Len(t, out, 2)
	assert.Equal(t, "alice", out[0]["name"])
	orders, ok := out[0]["orders"].([]model.Record)
	require.True(t, ok)
	assert.Len(t, orders, 2)
	_, hasOrders := out[1]["orders"]
	assert.False(t, hasOrders)
}
