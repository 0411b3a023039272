package query

import (
	"strings"

	"github.com/kasuganosora/syncbase/internal/model"
)

// Compiled is a built WHERE fragment with its bound arguments in order.
type Compiled struct {
	SQL  string
	Args []interface{}
}

// compiler tracks the running placeholder index across a whole statement so
// nested predicate/join compilation shares one counter.
type compiler struct {
	dialect Dialect
	next    int
}

func newCompiler(d Dialect) *compiler {
	return &compiler{dialect: d, next: 1}
}

func (c *compiler) placeholder() string {
	p := c.dialect.Placeholder(c.next)
	c.next++
	return p
}

// CompilePredicate validates and compiles a predicate tree into a WHERE
// fragment (without the "WHERE" keyword) qualified by the given SQL alias.
func CompilePredicate(d Dialect, alias string, p model.Predicate) (Compiled, error) {
	c := newCompiler(d)
	sql, args, err := c.compile(alias, p)
	if err != nil {
		return Compiled{}, err
	}
	return Compiled{SQL: sql, Args: args}, nil
}

func (c *compiler) compile(alias string, p model.Predicate) (string, []interface{}, error) {
	qualify := func(field string) string {
		if alias == "" {
			return c.dialect.Quote(field)
		}
		return alias + "." + c.dialect.Quote(field)
	}

	switch p.Op {
	case model.OpAnd, model.OpOr:
		subs := p.And
		joiner := " AND "
		if p.Op == model.OpOr {
			subs = p.Or
			joiner = " OR "
		}
		if len(subs) == 0 {
			return "1=1", nil, nil
		}
		parts := make([]string, 0, len(subs))
		var args []interface{}
		for _, sub := range subs {
			sql, a, err := c.compile(alias, sub)
			if err != nil {
				return "", nil, err
			}
			parts = append(parts, "("+sql+")")
			args = append(args, a...)
		}
		return strings.Join(parts, joiner), args, nil

	case model.OpIsNull:
		return qualify(p.Field) + " IS NULL", nil, nil

	case model.OpEq, model.OpNeq, model.OpGt, model.OpGte, model.OpLt, model.OpLte:
		ph := c.placeholder()
		return qualify(p.Field) + " " + string(p.Op) + " " + ph, []interface{}{p.Value}, nil

	case model.OpLike:
		ph := c.placeholder()
		return "LOWER(" + qualify(p.Field) + ") LIKE LOWER(" + ph + ")", []interface{}{p.Value}, nil

	case model.OpIn, model.OpNotIn:
		if len(p.Values) == 0 {
			return "", nil, model.NewConfigurationError("IN/NOT IN requires a non-empty value list for column %q", p.Field)
		}
		placeholders := make([]string, len(p.Values))
		for i := range p.Values {
			placeholders[i] = c.placeholder()
		}
		kw := "IN"
		if p.Op == model.OpNotIn {
			kw = "NOT IN"
		}
		return qualify(p.Field) + " " + kw + " (" + strings.Join(placeholders, ", ") + ")", p.Values, nil

	case model.OpBetween:
		if len(p.Values) != 2 {
			return "", nil, model.NewConfigurationError("BETWEEN requires exactly 2 values for column %q", p.Field)
		}
		lo, hi := c.placeholder(), c.placeholder()
		return qualify(p.Field) + " BETWEEN " + lo + " AND " + hi, []interface{}{p.Values[0], p.Values[1]}, nil

	default:
		return "", nil, model.NewConfigurationError("unknown predicate operator %q", p.Op)
	}
}

// OrderByClause is one parsed "column asc|desc" entry.
type OrderByClause struct {
	Column string
	Desc   bool
}

// ParseOrderBy parses a comma-separated "col [asc|desc], col2 ..." string,
// validating every column name against the schema and rejecting mixed
// ASC/DESC directions.
func ParseOrderBy(raw string, schema *model.TableSchema) ([]OrderByClause, error) {
	raw = strings.TrimSpace(raw)
	if raw == "" {
		return nil, nil
	}
	parts := strings.Split(raw, ",")
	clauses := make([]OrderByClause, 0, len(parts))
	var sawDesc, sawAsc bool
	for _, part := range parts {
		fields := strings.Fields(strings.TrimSpace(part))
		if len(fields) == 0 {
			continue
		}
		col := fields[0]
		if schema != nil && !schema.HasColumn(col) {
			return nil, model.NewConfigurationError("unknown order-by column %q on table %q", col, schema.Name)
		}
		desc := false
		if len(fields) > 1 {
			switch strings.ToUpper(fields[1]) {
			case "DESC":
				desc = true
				sawDesc = true
			case "ASC":
				sawAsc = true
			default:
				return nil, model.NewConfigurationError("invalid order-by direction %q", fields[1])
			}
		} else {
			sawAsc = true
		}
		clauses = append(clauses, OrderByClause{Column: col, Desc: desc})
	}
	if sawDesc && sawAsc {
		return nil, model.NewConfigurationError("mixed ASC/DESC in the same order-by clause is not allowed")
	}
	return clauses, nil
}

// RenderOrderBy renders parsed clauses back to SQL, qualified by alias.
func RenderOrderBy(d Dialect, alias string, clauses []OrderByClause) string {
	if len(clauses) == 0 {
		return ""
	}
	parts := make([]string, len(clauses))
	for i, c := range clauses {
		dir := "ASC"
		if c.Desc {
			dir = "DESC"
		}
		col := d.Quote(c.Column)
		if alias != "" {
			col = alias + "." + col
		}
		parts[i] = col + " " + dir
	}
	return strings.Join(parts, ", ")
}
