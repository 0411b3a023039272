package query

import (
	"strings"

	"github.com/kasuganosora/syncbase/internal/model"
)

// Assemble groups the flattened rows returned by MainQuery back into
// nested records: one entry per distinct root primary key, with each
// join-fetch child attached under its Name — a single nested record for
// "2one" joins, a deduplicated slice for "2many" joins. Rows are expected
// to carry one column per selected field, aliased "main.<col>" for the
// root table and "<aliasPath>.<col>" for each join descendant, exactly as
// MainQuery's SELECT list produces them.
func (p *Plan) Assemble(flatRows []model.Record) []model.Record {
	index := make(map[string]model.Record)
	seen := make(map[string]map[string]bool)
	order := make([]string, 0, len(flatRows))

	for _, row := range flatRows {
		rootRec := extractPrefixed(row, "main.")
		key := rootRec.PKString(p.RootSchema.PrimaryKey)
		record, ok := index[key]
		if !ok {
			record = rootRec
			index[key] = record
			order = append(order, key)
		}
		attachJoins(record, seen, p.Joins, row)
	}

	out := make([]model.Record, len(order))
	for i, k := range order {
		out[i] = index[k]
	}
	return out
}

// attachJoins places one flat row's joined columns into the already
// assembled tree rooted at record, recursing into children. seen is keyed
// by aliasPath (unique across the whole tree) and tracks which joined
// primary keys have already been attached, so a "2many" fan-out row
// doesn't duplicate a sibling join's rows across the cartesian product.
func attachJoins(record model.Record, seen map[string]map[string]bool, joins []*resolvedJoin, row model.Record) {
	for _, j := range joins {
		child := extractPrefixed(row, j.aliasPath+".")
		if allNil(child) {
			continue
		}

		name := j.spec.Name
		if name == "" {
			name = j.spec.OtherTable
		}
		pkKey := child.PKString(j.schema.PrimaryKey)

		byPK, ok := seen[j.aliasPath]
		if !ok {
			byPK = make(map[string]bool)
			seen[j.aliasPath] = byPK
		}

		var childRecord model.Record
		if j.spec.Type == Join2One {
			if existing, ok := record[name].(model.Record); ok {
				childRecord = existing
			} else {
				childRecord = child
				record[name] = childRecord
			}
		} else {
			list, _ := record[name].([]model.Record)
			if !byPK[pkKey] {
				list = append(list, child)
				record[name] = list
				childRecord = child
			} else {
				for _, existing := range list {
					if existing.PKString(j.schema.PrimaryKey) == pkKey {
						childRecord = existing
						break
					}
				}
			}
		}
		byPK[pkKey] = true

		if len(j.children) > 0 && childRecord != nil {
			attachJoins(childRecord, seen, j.children, row)
		}
	}
}

func extractPrefixed(row model.Record, prefix string) model.Record {
	out := make(model.Record)
	for k, v := range row {
		if strings.HasPrefix(k, prefix) {
			out[k[len(prefix):]] = v
		}
	}
	return out
}

func allNil(r model.Record) bool {
	for _, v := range r {
		if v != nil {
			return false
		}
	}
	return true
}
