package sync

import (
	"context"
	"time"

	"github.com/kasuganosora/syncbase/internal/access"
	"github.com/kasuganosora/syncbase/internal/model"
	"github.com/kasuganosora/syncbase/internal/query"
	"github.com/kasuganosora/syncbase/internal/track"
)

// resolveConflictingUpdate implements the "row present" branch: a newer
// incoming version_record applies wholesale; otherwise each conflicting
// column is resolved against its own ModifTrack history.
func (s *Server) resolveConflictingUpdate(ctx context.Context, tx *access.Client, table string, schemaTable *model.TableSchema, existing, incoming model.Record, T time.Time) error {
	incomingVR := toInt64(incoming[model.ColVersionRecord])
	serverVR := toInt64(existing[model.ColVersionRecord])
	if incomingVR > serverVR {
		incoming[model.ColVersionDate] = T
		_, err := tx.Update(ctx, table, incoming)
		return err
	}

	uid := existing.PKString(schemaTable.PrimaryKey)
	toApply := model.Record{}
	for _, col := range schemaTable.PrimaryKey {
		toApply[col] = incoming[col]
	}

	for col, newVal := range incoming {
		if isReservedOrPK(col, schemaTable.PrimaryKey) || s.cfg.isMasked(table, col) {
			continue
		}
		oldVal, existed := existing[col]
		if !existed || stringify(oldVal) == stringify(newVal) {
			continue
		}

		hist, err := tx.SearchFirst(ctx, query.SelectSpec{
			Table: track.TableModifTrack,
			Predicate: model.And(
				model.Eq("table_name", table),
				model.Eq("table_uid", uid),
				model.Eq("column_name", col),
				model.Cmp("version_record", model.OpGte, incomingVR),
			),
			HasFilter: true,
			OrderBy:   "version_record asc",
		})
		if err != nil {
			return err
		}
		if hist == nil {
			toApply[col] = newVal // nothing recorded after incoming's base: incoming wins
			continue
		}
		histDate := asTime(hist["version_date"])
		if !histDate.After(T) {
			toApply[col] = newVal // history older than our change: incoming wins
			continue
		}
		if err := s.splitHistory(ctx, tx, table, uid, hist, newVal, T); err != nil {
			return err
		}
		// column dropped: the row itself is not touched for col.
	}

	if len(toApply) <= len(schemaTable.PrimaryKey) {
		return nil
	}
	toApply[model.ColVersionDate] = T
	_, err := tx.Update(ctx, table, toApply)
	return err
}

// splitHistory rewrites hist's column_before to the incoming value and
// inserts a new ModifTrack row for the old_before -> incoming transition
// stamped at T's history-split rule.
func (s *Server) splitHistory(ctx context.Context, tx *access.Client, table, uid string, hist model.Record, incomingVal interface{}, T time.Time) error {
	originalBefore := hist["column_before"]

	if _, err := tx.Update(ctx, track.TableModifTrack, model.Record{
		"table_name":     table,
		"table_uid":      uid,
		"column_name":    hist["column_name"],
		"version_table":  hist["version_table"],
		"version_record": hist["version_record"],
		"version_date":   hist["version_date"],
		"column_before":  stringify(incomingVal),
	}); err != nil {
		return err
	}

	newVersionTable, err := track.AllocateVersion(ctx, tx, table)
	if err != nil {
		return err
	}
	_, err = tx.Insert(ctx, track.TableModifTrack, model.Record{
		"table_name":     table,
		"table_uid":      uid,
		"column_name":    hist["column_name"],
		"column_before":  originalBefore,
		"column_after":   stringify(incomingVal),
		"version_record": hist["version_record"],
		"version_table":  newVersionTable,
		"version_date":   T,
		"version_user":   hist["version_user"],
	})
	return err
}

// resolveConflictingInsert implements the conflicting-insert case: the
// incoming change is an insert but the row already exists.
func (s *Server) resolveConflictingInsert(ctx context.Context, tx *access.Client, table string, schemaTable *model.TableSchema, existing, incoming model.Record, T time.Time) error {
	rowDate := asTime(existing[model.ColVersionDate])
	toApply := model.Record{}
	for _, col := range schemaTable.PrimaryKey {
		toApply[col] = incoming[col]
	}

	for col, newVal := range incoming {
		if isReservedOrPK(col, schemaTable.PrimaryKey) || s.cfg.isMasked(table, col) {
			continue
		}
		oldVal, existed := existing[col]
		if !existed || stringify(oldVal) == stringify(newVal) {
			continue
		}
		if rowDate.After(T) {
			if _, err := tx.Insert(ctx, track.TableModifTrack, model.Record{
				"table_name":     table,
				"table_uid":      existing.PKString(schemaTable.PrimaryKey),
				"column_name":    col,
				"column_before":  stringify(newVal),
				"column_after":   stringify(oldVal),
				"version_record": existing[model.ColVersionRecord],
				"version_table":  existing[model.ColVersionTable],
				"version_date":   existing[model.ColVersionDate],
				"version_user":   existing[model.ColVersionUser],
			}); err != nil {
				return err
			}
			continue
		}
		toApply[col] = newVal
	}

	if len(toApply) <= len(schemaTable.PrimaryKey) {
		return nil
	}
	toApply[model.ColVersionDate] = T
	_, err := tx.Update(ctx, table, toApply)
	return err
}

func isReservedOrPK(col string, pk []string) bool {
	switch col {
	case model.ColVersionRecord, model.ColVersionTable, model.ColVersionDate, model.ColVersionUser:
		return true
	}
	for _, p := range pk {
		if p == col {
			return true
		}
	}
	return false
}
