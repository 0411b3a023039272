package track

import (
	"context"

	"github.com/kasuganosora/syncbase/internal/access"
	"github.com/kasuganosora/syncbase/internal/model"
)

// allocateVersion upserts the TableVersion row for table and returns the
// freshly bumped version_table value, also mirrored to the TableVersion
// row for table with upsert semantics.
// c is whatever scope (root or transactional clone) the observed mutation
// is itself running under, so this upsert is part of the same transaction.
// AllocateVersion exposes allocateVersion to collaborators outside this
// package (the sync engine's history-split step needs a fresh version_table
// value for the audit row it inserts, independent of an insert/update/
// remove of the tracked table itself).
func AllocateVersion(ctx context.Context, c *access.Client, table string) (int64, error) {
	return allocateVersion(ctx, c, table)
}

func allocateVersion(ctx context.Context, c *access.Client, table string) (int64, error) {
	existing, err := c.GetByPk(ctx, TableTableVersion, model.Record{"table_name": table}, nil)
	if err != nil {
		return 0, err
	}
	stamp := now()
	if existing == nil {
		if _, err := c.Insert(ctx, TableTableVersion, model.Record{
			"table_name":    table,
			"version_table": int64(1),
			"version_date":  stamp,
		}); err != nil {
			return 0, err
		}
		return 1, nil
	}

	current, _ := existing["version_table"].(int64)
	next := current + 1
	if _, err := c.Update(ctx, TableTableVersion, model.Record{
		"table_name":    table,
		"version_table": next,
		"version_date":  stamp,
	}); err != nil {
		return 0, err
	}
	return next, nil
}
