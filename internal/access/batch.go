package access

import (
	"context"
	"strings"

	"github.com/kasuganosora/syncbase/internal/model"
	"github.com/kasuganosora/syncbase/internal/query"
)

// ReadSpec is one multiread entry: exactly one of PK/Search/SearchFirst
// should be set's {pk:…} / {search:…} / {searchFirst:…}
// union.
type ReadSpec struct {
	Table       string
	PK          model.Record
	Search      *query.SelectSpec
	SearchFirst *query.SelectSpec
	Joins       []query.JoinFetch
}

// Multiread resolves several independent reads in one call, keyed by
// caller-chosen name.
func (c *Client) Multiread(ctx context.Context, specs map[string]ReadSpec) (map[string]interface{}, error) {
	out := make(map[string]interface{}, len(specs))
	for name, spec := range specs {
		switch {
		case spec.PK != nil:
			rec, err := c.GetByPk(ctx, spec.Table, spec.PK, spec.Joins)
			if err != nil {
				return nil, err
			}
			out[name] = rec
		case spec.Search != nil:
			rows, err := c.Search(ctx, *spec.Search)
			if err != nil {
				return nil, err
			}
			out[name] = rows
		case spec.SearchFirst != nil:
			rec, err := c.SearchFirst(ctx, *spec.SearchFirst)
			if err != nil {
				return nil, err
			}
			out[name] = rec
		default:
			return nil, model.NewConfigurationError("multiread entry %q specifies neither pk, search nor searchFirst", name)
		}
	}
	return out, nil
}

// ChangeOp is one entry of a changes() batch.
type ChangeOp struct {
	Action     model.ChangeAction
	Table      string
	Record     model.Record
	Conditions model.Predicate
}

// Changes applies a sequence of writes in order, resolving action="auto"
// to update-if-exists-else-insert and substituting "${table.field}"
// tokens with the most recently written value for that table within the
// same batch.
func (c *Client) Changes(ctx context.Context, ops []ChangeOp) ([]model.Record, error) {
	latest := make(map[string]model.Record)
	results := make([]model.Record, 0, len(ops))

	for _, op := range ops {
		rec := substituteTokens(op.Record, latest)

		var result model.Record
		var err error
		switch op.Action {
		case model.ActionInsert:
			result, err = c.Insert(ctx, op.Table, rec)
		case model.ActionUpdate:
			result, err = c.Update(ctx, op.Table, rec)
		case model.ActionRemove:
			err = c.Remove(ctx, op.Table, rec)
		case model.ActionRemoveWhere:
			err = c.RemoveWhere(ctx, op.Table, op.Conditions)
		case model.ActionAuto:
			result, err = c.applyAuto(ctx, op.Table, rec)
		default:
			err = model.NewConfigurationError("unknown change action %q", op.Action)
		}
		if err != nil {
			return nil, err
		}
		if result != nil {
			latest[op.Table] = result
			results = append(results, result)
		}
	}
	return results, nil
}

func (c *Client) applyAuto(ctx context.Context, table string, rec model.Record) (model.Record, error) {
	schemaTable, err := c.catalog.GetTable(table)
	if err != nil {
		return nil, err
	}
	if !hasAllPK(rec, schemaTable.PrimaryKey) {
		return c.Insert(ctx, table, rec)
	}
	existing, err := c.GetByPk(ctx, table, filterPK(rec, schemaTable.PrimaryKey), nil)
	if err != nil {
		return nil, err
	}
	if existing == nil {
		return c.Insert(ctx, table, rec)
	}
	return c.Update(ctx, table, rec)
}

func hasAllPK(rec model.Record, pk []string) bool {
	for _, col := range pk {
		if v, ok := rec[col]; !ok || v == nil {
			return false
		}
	}
	return len(pk) > 0
}

// substituteTokens replaces any string value of the form "${table.field}"
// with the field's value from the most recently written record for that
// table in this batch.
func substituteTokens(rec model.Record, latest map[string]model.Record) model.Record {
	out := make(model.Record, len(rec))
	for k, v := range rec {
		s, ok := v.(string)
		if !ok || !strings.HasPrefix(s, "${") || !strings.HasSuffix(s, "}") {
			out[k] = v
			continue
		}
		ref := s[2 : len(s)-1]
		parts := strings.SplitN(ref, ".", 2)
		if len(parts) != 2 {
			out[k] = v
			continue
		}
		if src, ok := latest[parts[0]]; ok {
			out[k] = src[parts[1]]
			continue
		}
		out[k] = v
	}
	return out
}
