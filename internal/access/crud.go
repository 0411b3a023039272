package access

import (
	"context"
	"strings"

	"github.com/kasuganosora/syncbase/internal/dbutil"
	"github.com/kasuganosora/syncbase/internal/model"
	"github.com/kasuganosora/syncbase/internal/query"
)

// plan builds and wires a query.Plan for table, honoring any registered
// view rewrite.
func (c *Client) plan(table string, spec query.SelectSpec) (*query.Plan, error) {
	p, err := query.BuildPlan(c.catalog, c.dialect, spec)
	if err != nil {
		return nil, err
	}
	p.UseRootSource(c.sourceFor(table, false))
	return p, nil
}

func (c *Client) runSelect(ctx context.Context, p *query.Plan) ([]model.Record, error) {
	if p.NeedsTwoStep() {
		page := p.RootPageQuery()
		rows, err := c.db.QueryContext(ctx, page.SQL, page.Args...)
		if err != nil {
			return nil, model.NewBackendError("select.page", err)
		}
		pkRows, err := dbutil.ScanRows(rows)
		if err != nil {
			return nil, err
		}
		if len(pkRows) == 0 {
			return nil, nil
		}
		flatRows, err := c.queryFlat(ctx, p.MainQuery(pkRows))
		if err != nil {
			return nil, err
		}
		return p.Assemble(flatRows), nil
	}

	flatRows, err := c.queryFlat(ctx, p.MainQuery(nil))
	if err != nil {
		return nil, err
	}
	if len(p.Joins) == 0 {
		out := make([]model.Record, len(flatRows))
		for i, r := range flatRows {
			out[i] = stripMainPrefix(r)
		}
		return out, nil
	}
	return p.Assemble(flatRows), nil
}

// queryFlat runs a MainQuery statement and returns its rows exactly as
// aliased ("main.<col>", "<aliasPath>.<col>"), for Plan.Assemble to
// consume.
func (c *Client) queryFlat(ctx context.Context, compiled query.Compiled) ([]model.Record, error) {
	rows, err := c.db.QueryContext(ctx, compiled.SQL, compiled.Args...)
	if err != nil {
		return nil, model.NewBackendError("select", err)
	}
	return dbutil.ScanRows(rows)
}

func stripMainPrefix(r model.Record) model.Record {
	out := make(model.Record, len(r))
	for k, v := range r {
		if strings.HasPrefix(k, "main.") {
			out[k[len("main."):]] = v
			continue
		}
		out[k] = v
	}
	return out
}

// GetByPk fetches one record by its primary key, or nil if none matches.
func (c *Client) GetByPk(ctx context.Context, table string, pk model.Record, joins []query.JoinFetch) (model.Record, error) {
	io := &HookIO{Op: OpGetByPk, Table: table, Record: pk}
	if err := c.runBefore(ctx, io); err != nil {
		return nil, err
	}

	schemaTable, err := c.catalog.GetTable(table)
	if err != nil {
		return nil, err
	}
	pred := model.EqRecord(filterPK(pk, schemaTable.PrimaryKey))
	p, err := c.plan(table, query.SelectSpec{Table: table, Predicate: pred, HasFilter: true, Limit: 1, Joins: joins})
	if err != nil {
		return nil, err
	}
	rows, err := c.runSelect(ctx, p)
	if err != nil {
		return nil, err
	}
	io.Out = rows
	if err := c.runAfter(ctx, io); err != nil {
		return nil, err
	}
	if len(io.Out) == 0 {
		return nil, nil
	}
	return io.Out[0], nil
}

func filterPK(r model.Record, pk []string) model.Record {
	out := make(model.Record, len(pk))
	for _, col := range pk {
		out[col] = r[col]
	}
	return out
}

// Search returns every record matching spec, with join-fetch children
// attached.
func (c *Client) Search(ctx context.Context, spec query.SelectSpec) ([]model.Record, error) {
	io := &HookIO{Op: OpSearch, Table: spec.Table, Spec: spec}
	if err := c.runBefore(ctx, io); err != nil {
		return nil, err
	}
	p, err := c.plan(spec.Table, spec)
	if err != nil {
		return nil, err
	}
	rows, err := c.runSelect(ctx, p)
	if err != nil {
		return nil, err
	}
	io.Out = rows
	if err := c.runAfter(ctx, io); err != nil {
		return nil, err
	}
	return io.Out, nil
}

// SearchFirst is Search with Limit forced to 1.
func (c *Client) SearchFirst(ctx context.Context, spec query.SelectSpec) (model.Record, error) {
	spec.Limit = 1
	spec.Offset = 0
	io := &HookIO{Op: OpSearchFirst, Table: spec.Table, Spec: spec}
	if err := c.runBefore(ctx, io); err != nil {
		return nil, err
	}
	p, err := c.plan(spec.Table, spec)
	if err != nil {
		return nil, err
	}
	rows, err := c.runSelect(ctx, p)
	if err != nil {
		return nil, err
	}
	io.Out = rows
	if err := c.runAfter(ctx, io); err != nil {
		return nil, err
	}
	if len(io.Out) == 0 {
		return nil, nil
	}
	return io.Out[0], nil
}

// Insert inserts one record and returns it with backend-generated columns
// populated (the modification tracker's before-hooks are what actually
// stamp version_* columns; this method only issues the INSERT).
func (c *Client) Insert(ctx context.Context, table string, rec model.Record) (model.Record, error) {
	io := &HookIO{Op: OpInsert, Table: table, Record: rec}
	if err := c.runBefore(ctx, io); err != nil {
		return nil, err
	}
	rec = io.Record

	cols := make([]string, 0, len(rec))
	for col := range rec {
		cols = append(cols, col)
	}
	placeholders := make([]string, len(cols))
	args := make([]interface{}, len(cols))
	quoted := make([]string, len(cols))
	for i, col := range cols {
		quoted[i] = c.dialect.Quote(col)
		placeholders[i] = c.dialect.Placeholder(i + 1)
		args[i] = rec[col]
	}
	sqlText := "INSERT INTO " + c.dialect.Quote(table) + " (" + strings.Join(quoted, ", ") + ") VALUES (" + strings.Join(placeholders, ", ") + ")"

	result, err := c.db.ExecContext(ctx, sqlText, args...)
	if err != nil {
		return nil, model.NewBackendError("insert", err)
	}

	out := rec.Clone()
	if schemaTable, err := c.catalog.GetTable(table); err == nil {
		if len(schemaTable.PrimaryKey) == 1 {
			pkCol := schemaTable.PrimaryKey[0]
			if _, present := out[pkCol]; !present {
				if id, err := result.LastInsertId(); err == nil && id != 0 {
					out[pkCol] = id
				}
			}
		}
	}

	io.Out = []model.Record{out}
	if err := c.runAfter(ctx, io); err != nil {
		return nil, err
	}
	return io.Out[0], nil
}

// Update requires rec to carry the table's full primary key; every other
// present column is set. Returns the updated record.
func (c *Client) Update(ctx context.Context, table string, rec model.Record) (model.Record, error) {
	io := &HookIO{Op: OpUpdate, Table: table, Record: rec}
	if err := c.runBefore(ctx, io); err != nil {
		return nil, err
	}
	rec = io.Record

	schemaTable, err := c.catalog.GetTable(table)
	if err != nil {
		return nil, err
	}
	if err := requirePK(rec, schemaTable.PrimaryKey); err != nil {
		return nil, err
	}

	sets := []string{}
	args := []interface{}{}
	n := 1
	for col, val := range rec {
		if contains(schemaTable.PrimaryKey, col) {
			continue
		}
		sets = append(sets, c.dialect.Quote(col)+" = "+c.dialect.Placeholder(n))
		args = append(args, val)
		n++
	}
	where := []string{}
	for _, col := range schemaTable.PrimaryKey {
		where = append(where, c.dialect.Quote(col)+" = "+c.dialect.Placeholder(n))
		args = append(args, rec[col])
		n++
	}
	if len(sets) == 0 {
		io.Out = []model.Record{rec}
		if err := c.runAfter(ctx, io); err != nil {
			return nil, err
		}
		return io.Out[0], nil
	}

	sqlText := "UPDATE " + c.dialect.Quote(table) + " SET " + strings.Join(sets, ", ") + " WHERE " + strings.Join(where, " AND ")
	if _, err := c.db.ExecContext(ctx, sqlText, args...); err != nil {
		return nil, model.NewBackendError("update", err)
	}

	io.Out = []model.Record{rec}
	if err := c.runAfter(ctx, io); err != nil {
		return nil, err
	}
	return io.Out[0], nil
}

// Remove deletes the row identified by pkOrRecord's primary-key columns.
func (c *Client) Remove(ctx context.Context, table string, pkOrRecord model.Record) error {
	io := &HookIO{Op: OpRemove, Table: table, Record: pkOrRecord}
	if err := c.runBefore(ctx, io); err != nil {
		return err
	}

	schemaTable, err := c.catalog.GetTable(table)
	if err != nil {
		return err
	}
	pred := model.EqRecord(filterPK(io.Record, schemaTable.PrimaryKey))
	compiled, err := query.CompilePredicate(c.dialect, "", pred)
	if err != nil {
		return err
	}
	sqlText := "DELETE FROM " + c.dialect.Quote(table) + " WHERE " + compiled.SQL
	if _, err := c.db.ExecContext(ctx, sqlText, compiled.Args...); err != nil {
		return model.NewBackendError("remove", err)
	}

	return c.runAfter(ctx, io)
}

// RemoveWhere deletes every row matching conditions.
func (c *Client) RemoveWhere(ctx context.Context, table string, conditions model.Predicate) error {
	io := &HookIO{Op: OpRemoveWhere, Table: table, Spec: query.SelectSpec{Table: table, Predicate: conditions, HasFilter: true}}
	if err := c.runBefore(ctx, io); err != nil {
		return err
	}

	compiled, err := query.CompilePredicate(c.dialect, "", conditions)
	if err != nil {
		return err
	}
	sqlText := "DELETE FROM " + c.dialect.Quote(table) + " WHERE " + compiled.SQL
	if _, err := c.db.ExecContext(ctx, sqlText, compiled.Args...); err != nil {
		return model.NewBackendError("removeWhere", err)
	}

	return c.runAfter(ctx, io)
}

func requirePK(rec model.Record, pk []string) error {
	for _, col := range pk {
		if _, ok := rec[col]; !ok {
			return model.NewConfigurationError("update requires the full primary key; missing column %q", col)
		}
	}
	return nil
}

func contains(list []string, v string) bool {
	for _, s := range list {
		if s == v {
			return true
		}
	}
	return false
}
