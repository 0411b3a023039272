package query

import (
	"strconv"
	"strings"

	"github.com/kasuganosora/syncbase/internal/model"
)

// SelectSpec describes one search/searchFirst/getByPk call.
type SelectSpec struct {
	Table     string
	Predicate model.Predicate
	HasFilter bool
	OrderBy   string
	Offset    int
	Limit     int
	Joins     []JoinFetch
}

// Plan is a compiled SelectSpec: either a single flat query (no joins, or
// joins with no paging requirement) or a two-step plan where paging is
// applied to the parent row set before the joined columns are fetched —
// for paging over a joined result, paging applies to the parent row set.
type Plan struct {
	RootAlias  string
	RootSchema *model.TableSchema
	Joins      []*resolvedJoin

	needsTwoStep bool
	whereSQL     string
	whereArgs    []interface{}
	orderSQL     string
	offset       int
	limit        int
	dialect      Dialect
	rootSource   string
}

// UseRootSource overrides the FROM-clause source for the root table, e.g.
// to splice in a per-table view rewrite (getTable_T()) in place of the
// bare table name. Defaults to the quoted table name.
func (p *Plan) UseRootSource(expr string) { p.rootSource = expr }

func (p *Plan) rootFrom() string {
	if p.rootSource != "" {
		return p.rootSource
	}
	return p.dialect.Quote(p.RootSchema.Name)
}

// BuildPlan validates and compiles a SelectSpec against the schema catalog.
func BuildPlan(resolver SchemaResolver, d Dialect, spec SelectSpec) (*Plan, error) {
	rootSchema, err := resolver.GetTable(spec.Table)
	if err != nil {
		return nil, err
	}

	orderClauses, err := ParseOrderBy(spec.OrderBy, rootSchema)
	if err != nil {
		return nil, err
	}

	counter := 0
	joins, err := resolveJoins(resolver, spec.Table, spec.Joins, "main", &counter)
	if err != nil {
		return nil, err
	}

	var whereSQL string
	var whereArgs []interface{}
	if spec.HasFilter {
		compiled, err := CompilePredicate(d, "t", spec.Predicate)
		if err != nil {
			return nil, err
		}
		whereSQL, whereArgs = compiled.SQL, compiled.Args
	}

	hasPaging := spec.Limit > 0 || spec.Offset > 0
	needsTwoStep := len(joins) > 0 && hasPaging && anyToMany(joins)

	return &Plan{
		RootAlias:    "t",
		RootSchema:   rootSchema,
		Joins:        joins,
		needsTwoStep: needsTwoStep,
		whereSQL:     whereSQL,
		whereArgs:    whereArgs,
		orderSQL:     RenderOrderBy(d, "t", orderClauses),
		offset:       spec.Offset,
		limit:        spec.Limit,
		dialect:      d,
	}, nil
}

func anyToMany(joins []*resolvedJoin) bool {
	for _, j := range joins {
		if j.spec.Type == Join2Many {
			return true
		}
		if anyToMany(j.children) {
			return true
		}
	}
	return false
}

// NeedsTwoStep reports whether this plan requires RootPageQuery() followed
// by MainQuery(pkRows) instead of a single MainQuery(nil) call: paging over
// a to-many join can't be expressed as a native LIMIT/OFFSET on the
// flattened row set, since one parent row fans out to many joined rows.
func (p *Plan) NeedsTwoStep() bool { return p.needsTwoStep }

// RootPageQuery builds the query that selects just the parent primary-key
// tuples for the current page, used only when NeedsTwoStep() is true.
func (p *Plan) RootPageQuery() Compiled {
	cols := make([]string, len(p.RootSchema.PrimaryKey))
	for i, c := range p.RootSchema.PrimaryKey {
		cols[i] = "t." + p.dialect.Quote(c)
	}
	sql := "SELECT " + strings.Join(cols, ", ") + " FROM " + p.rootFrom() + " t"
	args := append([]interface{}{}, p.whereArgs...)
	if p.whereSQL != "" {
		sql += " WHERE " + p.whereSQL
	}
	if p.orderSQL != "" {
		sql += " ORDER BY " + p.orderSQL
	}
	sql, args = appendLimitOffset(sql, args, p.limit, p.offset)
	return Compiled{SQL: sql, Args: args}
}

// MainQuery builds the full flattened query: the root table plus one LEFT
// JOIN per descendant in the join-fetch tree, each ON-clause combining the
// resolved FK equality with any JoinSearch predicate. When pkRows is
// non-nil the query is additionally restricted to those parent
// primary-key tuples (the two-step paging path); otherwise LIMIT/OFFSET
// are applied natively, which is safe because no to-many join exists.
func (p *Plan) MainQuery(pkRows []model.Record) Compiled {
	c := &compiler{dialect: p.dialect, next: 1}
	var args []interface{}

	selectCols := make([]string, 0, len(p.RootSchema.Columns))
	for _, col := range p.RootSchema.Columns {
		selectCols = append(selectCols, "t."+p.dialect.Quote(col.Name)+" AS "+p.dialect.Quote("main."+col.Name))
	}

	joinList := flatten(p.Joins)
	var joinSQL strings.Builder
	for _, j := range joinList {
		for _, col := range j.schema.Columns {
			selectCols = append(selectCols, j.alias+"."+p.dialect.Quote(col.Name)+" AS "+p.dialect.Quote(j.aliasPath+"."+col.Name))
		}
		parentAlias := "t"
		if pa := findParentAlias(p.Joins, j); pa != "" {
			parentAlias = pa
		}
		on := parentAlias + "." + p.dialect.Quote(j.thisField) + " = " + j.alias + "." + p.dialect.Quote(j.otherField)
		if j.spec.JoinSearch.Op != "" {
			cond, condArgs, err := c.compile(j.alias, j.spec.JoinSearch)
			if err == nil {
				on += " AND (" + cond + ")"
				args = append(args, condArgs...)
			}
		}
		joinSQL.WriteString(" LEFT JOIN " + p.dialect.Quote(j.schema.Name) + " " + j.alias + " ON " + on)
	}

	sql := "SELECT " + strings.Join(selectCols, ", ") + " FROM " + p.rootFrom() + " t" + joinSQL.String()

	// The WHERE fragment was compiled against a fresh placeholder sequence
	// in BuildPlan; splice it in after the join ON-clauses so every
	// placeholder in the final statement is numbered in emission order
	// (only matters for dialects with numbered markers, i.e. postgres).
	conditions := make([]string, 0, 2)
	if p.whereSQL != "" {
		rewritten, whereArgs := renumber(p.dialect, p.whereSQL, p.whereArgs, &c.next)
		conditions = append(conditions, rewritten)
		args = append(args, whereArgs...)
	}
	if len(pkRows) > 0 {
		pkCond, pkArgs := p.pkInClause(c, pkRows)
		conditions = append(conditions, pkCond)
		args = append(args, pkArgs...)
	}
	if len(conditions) > 0 {
		sql += " WHERE " + strings.Join(conditions, " AND ")
	}
	if p.orderSQL != "" {
		sql += " ORDER BY " + p.orderSQL
	}
	if pkRows == nil && !anyToMany(p.Joins) {
		sql, args = appendLimitOffset(sql, args, p.limit, p.offset)
	}
	return Compiled{SQL: sql, Args: args}
}

func (p *Plan) pkInClause(c *compiler, pkRows []model.Record) (string, []interface{}) {
	pk := p.RootSchema.PrimaryKey
	if len(pk) == 1 {
		col := "t." + p.dialect.Quote(pk[0])
		placeholders := make([]string, len(pkRows))
		args := make([]interface{}, len(pkRows))
		for i, r := range pkRows {
			placeholders[i] = c.placeholder()
			args[i] = r[pk[0]]
		}
		return col + " IN (" + strings.Join(placeholders, ", ") + ")", args
	}
	// Composite PK: no portable tuple-IN syntax, so OR together per-row
	// equality conjunctions instead.
	parts := make([]string, len(pkRows))
	var args []interface{}
	for i, r := range pkRows {
		sub := make([]string, len(pk))
		for j, col := range pk {
			sub[j] = "t." + p.dialect.Quote(col) + " = " + c.placeholder()
			args = append(args, r[col])
		}
		parts[i] = "(" + strings.Join(sub, " AND ") + ")"
	}
	return strings.Join(parts, " OR "), args
}

func appendLimitOffset(sql string, args []interface{}, limit, offset int) (string, []interface{}) {
	if limit > 0 {
		sql += " LIMIT " + strconv.Itoa(limit)
	}
	if offset > 0 {
		sql += " OFFSET " + strconv.Itoa(offset)
	}
	return sql, args
}

func findParentAlias(roots []*resolvedJoin, target *resolvedJoin) string {
	for _, j := range roots {
		for _, child := range j.children {
			if child == target {
				return j.alias
			}
		}
		if a := findParentAlias(j.children, target); a != "" {
			return a
		}
	}
	return ""
}

// renumber rewrites a WHERE fragment's placeholders to continue from
// c.next, needed because the root WHERE clause is compiled independently
// of the join ON-clauses but must share one placeholder sequence for
// dialects with numbered markers (postgres' "$n"); "?"-style dialects need
// no rewriting, since every "?" is already positionally correct.
func renumber(d Dialect, sql string, args []interface{}, next *int) (string, []interface{}) {
	if d.Name() != "postgres" {
		*next += len(args)
		return sql, args
	}
	var b strings.Builder
	for i := 0; i < len(sql); i++ {
		if sql[i] == '$' {
			j := i + 1
			for j < len(sql) && sql[j] >= '0' && sql[j] <= '9' {
				j++
			}
			if j > i+1 {
				b.WriteString(d.Placeholder(*next))
				*next++
				i = j - 1
				continue
			}
		}
		b.WriteByte(sql[i])
	}
	return b.String(), args
}
