package track

import (
	"context"

	"github.com/kasuganosora/syncbase/internal/access"
	"github.com/kasuganosora/syncbase/internal/model"
)

const stashOldRow = "track.oldRow"

// beforeInsert stamps version_record=0 and allocates a fresh version_table
// for the row about to be written.
func (t *Tracker) beforeInsert(ctx context.Context, c *access.Client, io *access.HookIO) error {
	if !t.tracked(io.Table) {
		return nil
	}
	actor, err := t.resolveActor(ctx)
	if err != nil {
		return err
	}
	versionTable, err := allocateVersion(ctx, c, io.Table)
	if err != nil {
		return err
	}

	rec := io.Record.Clone()
	rec[model.ColVersionRecord] = int64(0)
	rec[model.ColVersionTable] = versionTable
	if _, has := rec[model.ColVersionDate]; !has {
		rec[model.ColVersionDate] = now()
	}
	if actor != "" {
		rec[model.ColVersionUser] = actor
	}
	io.Record = rec
	return nil
}

// beforeUpdate fetches the row's current state (for the post-update diff)
// and stamps the new version triplet.
func (t *Tracker) beforeUpdate(ctx context.Context, c *access.Client, io *access.HookIO) error {
	if !t.tracked(io.Table) {
		return nil
	}
	actor, err := t.resolveActor(ctx)
	if err != nil {
		return err
	}

	schemaTable, err := c.TableSchema(io.Table)
	if err != nil {
		return err
	}
	pk := filterPK(io.Record, schemaTable.PrimaryKey)
	old, err := c.GetByPk(ctx, io.Table, pk, nil)
	if err != nil {
		return err
	}
	io.Stash(stashOldRow, old)

	versionTable, err := allocateVersion(ctx, c, io.Table)
	if err != nil {
		return err
	}

	rec := io.Record.Clone()
	rec[model.ColVersionRecord] = toInt64(valueOrNil(old, model.ColVersionRecord)) + 1
	rec[model.ColVersionTable] = versionTable
	if _, has := rec[model.ColVersionDate]; !has {
		rec[model.ColVersionDate] = now()
	}
	if actor != "" {
		rec[model.ColVersionUser] = actor
	}
	io.Record = rec
	return nil
}

// afterUpdate writes one ModifTrack row per column whose string
// representation changed.
func (t *Tracker) afterUpdate(ctx context.Context, c *access.Client, io *access.HookIO) error {
	if !t.tracked(io.Table) {
		return nil
	}
	oldVal, _ := io.Stashed(stashOldRow)
	old, _ := oldVal.(model.Record)
	if old == nil {
		return nil // no prior row: nothing to diff (shouldn't happen for a real update)
	}
	if len(io.Out) == 0 {
		return nil
	}
	newRec := io.Out[0]

	schemaTable, err := c.TableSchema(io.Table)
	if err != nil {
		return err
	}
	tableUID := old.PKString(schemaTable.PrimaryKey)
	versionRecord := toInt64(newRec[model.ColVersionRecord])
	versionTable := toInt64(newRec[model.ColVersionTable])
	versionDate := newRec[model.ColVersionDate]
	versionUser, _ := newRec[model.ColVersionUser].(string)

	for col, newVal := range newRec {
		if isReservedColumn(col) || contains(schemaTable.PrimaryKey, col) || t.cfg.isMasked(io.Table, col) {
			continue
		}
		oldVal, existed := old[col]
		if !existed {
			continue // column not present on the prior row: nothing to diff against
		}
		if stringify(oldVal) == stringify(newVal) {
			continue
		}
		if _, err := c.Insert(ctx, TableModifTrack, model.Record{
			"table_name":     io.Table,
			"table_uid":      tableUID,
			"column_name":    col,
			"column_before":  stringify(oldVal),
			"column_after":   stringify(newVal),
			"version_record": versionRecord,
			"version_table":  versionTable,
			"version_date":   versionDate,
			"version_user":   versionUser,
		}); err != nil {
			return err
		}
	}
	return nil
}

// beforeRemove fetches the row so afterRemove can compute its table_uid
// after the delete has happened.
func (t *Tracker) beforeRemove(ctx context.Context, c *access.Client, io *access.HookIO) error {
	if !t.tracked(io.Table) {
		return nil
	}
	schemaTable, err := c.TableSchema(io.Table)
	if err != nil {
		return err
	}
	pk := filterPK(io.Record, schemaTable.PrimaryKey)
	old, err := c.GetByPk(ctx, io.Table, pk, nil)
	if err != nil {
		return err
	}
	io.Stash(stashOldRow, old)
	return nil
}

// afterRemove writes a DeleteTrack tombstone.
func (t *Tracker) afterRemove(ctx context.Context, c *access.Client, io *access.HookIO) error {
	if !t.tracked(io.Table) {
		return nil
	}
	oldVal, _ := io.Stashed(stashOldRow)
	old, _ := oldVal.(model.Record)
	if old == nil {
		return nil // row was already gone; nothing to tombstone
	}
	actor, err := t.resolveActor(ctx)
	if err != nil {
		return err
	}

	schemaTable, err := c.TableSchema(io.Table)
	if err != nil {
		return err
	}
	versionTable, err := allocateVersion(ctx, c, io.Table)
	if err != nil {
		return err
	}

	_, err = c.Insert(ctx, TableDeleteTrack, model.Record{
		"table_name":    io.Table,
		"table_uid":     old.PKString(schemaTable.PrimaryKey),
		"table_version": versionTable,
		"deleted_at":    now(),
		"deleted_by":    actor,
	})
	return err
}

// beforeRemoveWhere fetches every row the predicate matches so
// afterRemoveWhere can tombstone each one once the bulk delete has run.
func (t *Tracker) beforeRemoveWhere(ctx context.Context, c *access.Client, io *access.HookIO) error {
	if !t.tracked(io.Table) {
		return nil
	}
	rows, err := c.Search(ctx, io.Spec)
	if err != nil {
		return err
	}
	io.Stash(stashOldRow, rows)
	return nil
}

// afterRemoveWhere writes a DeleteTrack tombstone per row matched by the
// predicate.
func (t *Tracker) afterRemoveWhere(ctx context.Context, c *access.Client, io *access.HookIO) error {
	if !t.tracked(io.Table) {
		return nil
	}
	rowsVal, _ := io.Stashed(stashOldRow)
	rows, _ := rowsVal.([]model.Record)
	if len(rows) == 0 {
		return nil
	}
	actor, err := t.resolveActor(ctx)
	if err != nil {
		return err
	}
	schemaTable, err := c.TableSchema(io.Table)
	if err != nil {
		return err
	}

	for _, row := range rows {
		versionTable, err := allocateVersion(ctx, c, io.Table)
		if err != nil {
			return err
		}
		if _, err := c.Insert(ctx, TableDeleteTrack, model.Record{
			"table_name":    io.Table,
			"table_uid":     row.PKString(schemaTable.PrimaryKey),
			"table_version": versionTable,
			"deleted_at":    now(),
			"deleted_by":    actor,
		}); err != nil {
			return err
		}
	}
	return nil
}

func filterPK(r model.Record, pk []string) model.Record {
	out := make(model.Record, len(pk))
	for _, col := range pk {
		out[col] = r[col]
	}
	return out
}

func valueOrNil(r model.Record, key string) interface{} {
	if r == nil {
		return nil
	}
	return r[key]
}

func isReservedColumn(col string) bool {
	switch col {
	case model.ColVersionRecord, model.ColVersionTable, model.ColVersionDate, model.ColVersionUser:
		return true
	default:
		return false
	}
}
