package query

import "github.com/kasuganosora/syncbase/internal/model"

// JoinType distinguishes a has-one from a has-many join-fetch child.
type JoinType string

const (
	Join2One  JoinType = "2one"
	Join2Many JoinType = "2many"
)

// JoinFetch is the recursive join-fetch directive: it instructs the query
// layer to attach related rows to parents.
type JoinFetch struct {
	OtherTable string
	ThisTable  string // optional; defaults to the parent in the tree
	ThisField  string // optional; resolved via FK metadata when empty
	OtherField string // optional; resolved via FK metadata when empty
	Type       JoinType
	Name       string // optional; defaults to OtherTable
	JoinSearch model.Predicate
	Joins      []JoinFetch
	OrderBy    string
}

// resolvedJoin captures a JoinFetch after FK resolution and alias
// assignment, ready for SQL emission.
type resolvedJoin struct {
	spec       JoinFetch
	alias      string
	aliasPath  string
	thisField  string
	otherField string
	schema     *model.TableSchema
	children   []*resolvedJoin
}

// SchemaResolver is the subset of the Schema Catalog the query builder
// needs: table metadata lookup for FK resolution and column validation.
type SchemaResolver interface {
	GetTable(name string) (*model.TableSchema, error)
}

// resolveJoins walks a JoinFetch tree, assigning SQL aliases "t1", "t2", ...
// in pre-order and resolving FK columns's contract: if neither
// ThisField nor OtherField is given, look for FKs thisTable->otherTable
// first, else the reverse; if one side is given, both must be.
func resolveJoins(resolver SchemaResolver, parentTable string, specs []JoinFetch, parentPath string, counter *int) ([]*resolvedJoin, error) {
	out := make([]*resolvedJoin, 0, len(specs))
	for _, spec := range specs {
		thisTable := spec.ThisTable
		if thisTable == "" {
			thisTable = parentTable
		}
		name := spec.Name
		if name == "" {
			name = spec.OtherTable
		}

		if (spec.ThisField == "") != (spec.OtherField == "") {
			return nil, model.NewConfigurationError("join-fetch %q: thisField and otherField must be given together or not at all", name)
		}

		thisField, otherField := spec.ThisField, spec.OtherField
		if thisField == "" {
			var err error
			thisField, otherField, err = resolveFK(resolver, thisTable, spec.OtherTable)
			if err != nil {
				return nil, err
			}
		}

		otherSchema, err := resolver.GetTable(spec.OtherTable)
		if err != nil {
			return nil, err
		}

		*counter++
		alias := aliasFor(*counter)
		path := parentPath + "_" + name

		children, err := resolveJoins(resolver, spec.OtherTable, spec.Joins, path, counter)
		if err != nil {
			return nil, err
		}

		out = append(out, &resolvedJoin{
			spec:       spec,
			alias:      alias,
			aliasPath:  path,
			thisField:  thisField,
			otherField: otherField,
			schema:     otherSchema,
			children:   children,
		})
	}
	return out, nil
}

func aliasFor(n int) string {
	return "t" + itoa(n)
}

func itoa(n int) string {
	if n == 0 {
		return "0"
	}
	digits := []byte{}
	for n > 0 {
		digits = append([]byte{byte('0' + n%10)}, digits...)
		n /= 10
	}
	return string(digits)
}

// resolveFK looks for a single-column FK from thisTable to otherTable, then
// the reverse direction's contract.
func resolveFK(resolver SchemaResolver, thisTable, otherTable string) (thisField, otherField string, err error) {
	this, err := resolver.GetTable(thisTable)
	if err != nil {
		return "", "", err
	}
	for _, fk := range this.ForeignKeys {
		if fk.TargetTable == otherTable {
			return fk.ThisColumn, fk.TargetColumn, nil
		}
	}
	other, err := resolver.GetTable(otherTable)
	if err != nil {
		return "", "", err
	}
	for _, fk := range other.ForeignKeys {
		if fk.TargetTable == thisTable {
			return fk.TargetColumn, fk.ThisColumn, nil
		}
	}
	return "", "", model.NewConfigurationError("no foreign key found between %q and %q, and none was supplied explicitly", thisTable, otherTable)
}

// flatten returns every resolvedJoin in the tree, pre-order.
func flatten(joins []*resolvedJoin) []*resolvedJoin {
	var out []*resolvedJoin
	for _, j := range joins {
		out = append(out, j)
		out = append(out, flatten(j.children)...)
	}
	return out
}
