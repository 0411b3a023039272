package sync

import (
	"context"
	"encoding/json"
	"time"

	"github.com/kasuganosora/syncbase/internal/access"
	"github.com/kasuganosora/syncbase/internal/model"
	"github.com/kasuganosora/syncbase/internal/query"
	"github.com/kasuganosora/syncbase/internal/track"
)

// Server is the server-side half of the Sync Engine: accepting uploaded
// change-sets and applying them with per-column last-writer-wins
// resolution.
type Server struct {
	db  *access.Client // root client; Apply opens its own transaction per change-set
	cfg Config
}

// NewServer builds a Server over db, scoped by cfg.
func NewServer(db *access.Client, cfg Config) *Server {
	return &Server{db: db, cfg: cfg}
}

// Apply applies cs and reports whether the caller should refresh (a
// conflict could not be reconciled, or the change-set failed outright).
// Any failure inside the apply transaction (the idempotency check, the
// initial SyncLog row, or a change) is recorded as an error-status SyncLog
// row and reported as (true, nil). A non-nil error here means that error
// row, or the final done-status update, could not be written — conflicts
// during apply are not returned as errors.
//
// The authoritative serialization for a given uuid is the SyncLog
// idempotency check and its initial todo row, done inside the same
// transaction as the change-set's own mutations: two concurrent uploads
// of the same uuid cannot both observe "no prior row" and proceed, since
// the second transaction's insert is serialized against the first by the
// uuid primary key.
func (s *Server) Apply(ctx context.Context, cs model.ChangeSet) (shouldRefresh bool, err error) {
	data, _ := json.Marshal(cs)
	syncStart := time.Now().UTC()
	adjusted := cs.ClientDate.Add(time.Duration(cs.TimeSkewMs) * time.Millisecond)

	var alreadyApplied bool
	applyErr := s.db.Transaction(ctx, 30*time.Second, func(tx *access.Client, done func(error)) error {
		existing, err := tx.GetByPk(ctx, TableSyncLog, model.Record{"uuid": cs.UUID}, nil)
		if err != nil {
			done(err)
			return err
		}
		if existing != nil {
			alreadyApplied = true
			done(nil)
			return nil
		}

		if _, err := tx.Insert(ctx, TableSyncLog, model.Record{
			"uuid":        cs.UUID,
			"client_date": cs.ClientDate,
			"sync_date":   syncStart,
			"status":      string(model.SyncStatusTodo),
			"data":        string(data),
		}); err != nil {
			done(err)
			return err
		}

		for _, ch := range cs.Changes {
			actor := actorFor(ch.Record)
			cctx := track.WithActor(ctx, actor)
			if err := s.applyChange(cctx, tx, ch, adjusted); err != nil {
				done(err)
				return err
			}
		}
		done(nil)
		return nil
	})

	if alreadyApplied {
		return false, nil
	}

	if applyErr != nil {
		// The transaction rolled back, so no SyncLog row for this uuid was
		// ever committed: record the failure as a fresh row instead of
		// updating one that doesn't exist.
		if _, ierr := s.db.Insert(ctx, TableSyncLog, model.Record{
			"uuid":        cs.UUID,
			"client_date": cs.ClientDate,
			"sync_date":   syncStart,
			"status":      string(model.SyncStatusError),
			"data":        string(data),
			"error_msg":   applyErr.Error(),
		}); ierr != nil {
			return true, ierr
		}
		return true, nil
	}

	if _, err := s.db.Update(ctx, TableSyncLog, model.Record{
		"uuid":   cs.UUID,
		"status": string(model.SyncStatusDone),
	}); err != nil {
		return false, err
	}
	return false, nil
}

// applyChange plans and executes one change of the batch against tx (a
// transactional client).
func (s *Server) applyChange(ctx context.Context, tx *access.Client, ch model.Change, T time.Time) error {
	switch ch.Action {
	case model.ActionRemoveWhere:
		return tx.RemoveWhere(ctx, ch.Table, combinePredicates(ch.Conditions))
	}

	schemaTable, err := tx.TableSchema(ch.Table)
	if err != nil {
		return err
	}

	if ch.Action == model.ActionRemove {
		pk := filterPK(ch.Record, schemaTable.PrimaryKey)
		existing, err := tx.GetByPk(ctx, ch.Table, pk, nil)
		if err != nil {
			return err
		}
		if existing == nil {
			return nil
		}
		return tx.Remove(ctx, ch.Table, pk)
	}

	pk := filterPK(ch.Record, schemaTable.PrimaryKey)
	if !hasAllPK(pk, schemaTable.PrimaryKey) {
		_, err := tx.Insert(ctx, ch.Table, ch.Record)
		return err
	}

	existing, err := tx.GetByPk(ctx, ch.Table, pk, nil)
	if err != nil {
		return err
	}
	if existing == nil {
		if ch.Action == model.ActionUpdate {
			uid := model.Record(pk).PKString(schemaTable.PrimaryKey)
			tomb, err := tx.SearchFirst(ctx, query.SelectSpec{
				Table: track.TableDeleteTrack,
				Predicate: model.And(
					model.Eq("table_name", ch.Table),
					model.Eq("table_uid", uid),
				),
				HasFilter: true,
			})
			if err != nil {
				return err
			}
			if tomb != nil {
				return nil
			}
		}
		_, err := tx.Insert(ctx, ch.Table, ch.Record)
		return err
	}

	if ch.Action == model.ActionInsert {
		return s.resolveConflictingInsert(ctx, tx, ch.Table, schemaTable, existing, ch.Record, T)
	}
	return s.resolveConflictingUpdate(ctx, tx, ch.Table, schemaTable, existing, ch.Record, T)
}

func filterPK(r model.Record, pk []string) model.Record {
	out := make(model.Record, len(pk))
	for _, col := range pk {
		out[col] = r[col]
	}
	return out
}

func hasAllPK(r model.Record, pk []string) bool {
	for _, col := range pk {
		if v, ok := r[col]; !ok || v == nil {
			return false
		}
	}
	return len(pk) > 0
}

func combinePredicates(preds []model.Predicate) model.Predicate {
	if len(preds) == 1 {
		return preds[0]
	}
	return model.And(preds...)
}
