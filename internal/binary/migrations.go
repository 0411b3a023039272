package binary

import (
	"context"
	"database/sql"

	"github.com/kasuganosora/syncbase/internal/model"
)

const TableBinaryMeta = "binary_meta"

// Schemas returns the catalog schema for binary_meta, for schema.Catalog.Augment.
func Schemas() []model.TableSchema {
	return []model.TableSchema{
		{
			Name: TableBinaryMeta,
			Columns: []model.ColumnSchema{
				{Name: "uid", Type: "text"},
				{Name: "table_name", Type: "text"},
				{Name: "table_uid", Type: "text"},
				{Name: "checksum", Type: "text"},
				{Name: "size", Type: "bigint"},
				{Name: "creation_ts", Type: "timestamp"},
				{Name: "modification_ts", Type: "timestamp"},
				{Name: "mime_type", Type: "text"},
				{Name: "filename", Type: "text"},
				{Name: "description", Type: "text"},
				{Name: "path", Type: "text"},
			},
			PrimaryKey: []string{"uid"},
		},
	}
}

var ddlByDialect = map[string]string{
	"mysql": `CREATE TABLE IF NOT EXISTS binary_meta (
		uid VARCHAR(191) PRIMARY KEY,
		table_name VARCHAR(191) NOT NULL,
		table_uid VARCHAR(512) NOT NULL,
		checksum VARCHAR(191) NOT NULL,
		size BIGINT NOT NULL,
		creation_ts DATETIME NOT NULL,
		modification_ts DATETIME NOT NULL,
		mime_type VARCHAR(191),
		filename VARCHAR(512),
		description TEXT,
		path VARCHAR(1024) NOT NULL
	)`,
	"postgres": `CREATE TABLE IF NOT EXISTS binary_meta (
		uid TEXT PRIMARY KEY,
		table_name TEXT NOT NULL,
		table_uid TEXT NOT NULL,
		checksum TEXT NOT NULL,
		size BIGINT NOT NULL,
		creation_ts TIMESTAMPTZ NOT NULL,
		modification_ts TIMESTAMPTZ NOT NULL,
		mime_type TEXT,
		filename TEXT,
		description TEXT,
		path TEXT NOT NULL
	)`,
	"sqlite": `CREATE TABLE IF NOT EXISTS binary_meta (
		uid TEXT PRIMARY KEY,
		table_name TEXT NOT NULL,
		table_uid TEXT NOT NULL,
		checksum TEXT NOT NULL,
		size INTEGER NOT NULL,
		creation_ts DATETIME NOT NULL,
		modification_ts DATETIME NOT NULL,
		mime_type TEXT,
		filename TEXT,
		description TEXT,
		path TEXT NOT NULL
	)`,
}

// EnsureSchema creates binary_meta if it does not already exist.
func EnsureSchema(ctx context.Context, db *sql.DB, dialectName string) error {
	stmt, ok := ddlByDialect[dialectName]
	if !ok {
		return model.NewConfigurationError("binary: no binary_meta DDL for dialect %q", dialectName)
	}
	if _, err := db.ExecContext(ctx, stmt); err != nil {
		return model.NewBackendError("binary.ensureSchema", err)
	}
	return nil
}
