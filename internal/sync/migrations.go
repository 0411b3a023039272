package sync

import (
	"context"
	"database/sql"

	"github.com/kasuganosora/syncbase/internal/model"
)

const TableSyncLog = "sync_log"

// Schemas returns the catalog schema for sync_log, for schema.Catalog.Augment.
func Schemas() []model.TableSchema {
	return []model.TableSchema{
		{
			Name: TableSyncLog,
			Columns: []model.ColumnSchema{
				{Name: "uuid", Type: "text"},
				{Name: "client_date", Type: "timestamp"},
				{Name: "sync_date", Type: "timestamp"},
				{Name: "status", Type: "text"},
				{Name: "data", Type: "text"},
				{Name: "error_msg", Type: "text"},
			},
			PrimaryKey: []string{"uuid"},
		},
	}
}

var ddlByDialect = map[string]string{
	"mysql": `CREATE TABLE IF NOT EXISTS sync_log (
		uuid VARCHAR(191) PRIMARY KEY,
		client_date DATETIME,
		sync_date DATETIME,
		status VARCHAR(32) NOT NULL,
		data LONGTEXT,
		error_msg TEXT
	)`,
	"postgres": `CREATE TABLE IF NOT EXISTS sync_log (
		uuid TEXT PRIMARY KEY,
		client_date TIMESTAMPTZ,
		sync_date TIMESTAMPTZ,
		status TEXT NOT NULL,
		data TEXT,
		error_msg TEXT
	)`,
	"sqlite": `CREATE TABLE IF NOT EXISTS sync_log (
		uuid TEXT PRIMARY KEY,
		client_date DATETIME,
		sync_date DATETIME,
		status TEXT NOT NULL,
		data TEXT,
		error_msg TEXT
	)`,
}

// EnsureSchema creates the sync_log table if it does not already exist.
func EnsureSchema(ctx context.Context, db *sql.DB, dialectName string) error {
	stmt, ok := ddlByDialect[dialectName]
	if !ok {
		return model.NewConfigurationError("sync: no sync_log DDL for dialect %q", dialectName)
	}
	if _, err := db.ExecContext(ctx, stmt); err != nil {
		return model.NewBackendError("sync.ensureSchema", err)
	}
	return nil
}
