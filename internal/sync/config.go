// Package sync implements the Sync Engine (Y): server-side change-set
// apply with per-column last-writer-wins conflict resolution and history
// splitting, and client-side upload/poll/download/apply.
//
// Grounded on pkg/resource/mvcc_simple.go's visibility-check shape (compare
// a candidate version against a reference point, decide visible/not) for
// the column-vs-history ordering comparisons in Apply, generalized from
// snapshot-isolation visibility to last-writer-wins-by-timestamp.
package sync

import "github.com/kasuganosora/syncbase/internal/model"

// Config scopes a Server/Client to a set of tables and masked columns.
type Config struct {
	// Tables lists every table the sync engine moves changes for. The
	// client downloads each entry by name through RemoteTransport; it does
	// not read model.TableSchema.ViewOfTables or OR across sub-tables'
	// version columns.
	Tables []string

	// Masked excludes columns from conflict comparison and from history,
	// per the glossary's "masked column" (e.g. password hashes).
	Masked map[string][]string
}

func (cfg Config) isMasked(table, column string) bool {
	for _, c := range cfg.Masked[table] {
		if c == column {
			return true
		}
	}
	return false
}

// DefaultActor is used when a change carries no version_user of its own.
const DefaultActor = "sync"

func actorFor(rec model.Record) string {
	if u, ok := rec[model.ColVersionUser].(string); ok && u != "" {
		return u
	}
	return DefaultActor
}
