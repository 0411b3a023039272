package track

import (
	"context"
	"database/sql"

	"github.com/kasuganosora/syncbase/internal/model"
)

// Schemas returns the catalog schema for the three tracking tables, for
// callers to feed to schema.Catalog.Augment so the access client's PK/
// column knowledge covers them without a live reflect pass finding
// anything surprising.
func Schemas() []model.TableSchema {
	return []model.TableSchema{
		{
			Name: TableTableVersion,
			Columns: []model.ColumnSchema{
				{Name: "table_name", Type: "text"},
				{Name: "version_table", Type: "bigint"},
				{Name: "version_date", Type: "timestamp"},
			},
			PrimaryKey: []string{"table_name"},
		},
		{
			Name: TableModifTrack,
			Columns: []model.ColumnSchema{
				{Name: "table_name", Type: "text"},
				{Name: "table_uid", Type: "text"},
				{Name: "column_name", Type: "text"},
				{Name: "column_before", Type: "text"},
				{Name: "column_after", Type: "text"},
				{Name: "version_record", Type: "bigint"},
				{Name: "version_table", Type: "bigint"},
				{Name: "version_date", Type: "timestamp"},
				{Name: "version_user", Type: "text"},
			},
			PrimaryKey: []string{"table_name", "table_uid", "version_table", "version_record", "version_date", "column_name"},
		},
		{
			Name: TableDeleteTrack,
			Columns: []model.ColumnSchema{
				{Name: "table_name", Type: "text"},
				{Name: "table_uid", Type: "text"},
				{Name: "table_version", Type: "bigint"},
				{Name: "deleted_at", Type: "timestamp"},
				{Name: "deleted_by", Type: "text"},
			},
			PrimaryKey: []string{"table_name", "table_uid", "table_version"},
		},
	}
}

// ddlByDialect maps a query.Dialect.Name() to the portable CREATE TABLE
// statements for the three tracking tables. Kept separate per dialect
// (rather than one statement with a type-mapping table) because the pack's
// own per-backend source files (mysql_source.go/postgresql/sqlite_source.go)
// each hardcode their own DDL rather than generalizing it.
var ddlByDialect = map[string][]string{
	"mysql": {
		`CREATE TABLE IF NOT EXISTS table_version (
			table_name VARCHAR(191) PRIMARY KEY,
			version_table BIGINT NOT NULL,
			version_date DATETIME NOT NULL
		)`,
		`CREATE TABLE IF NOT EXISTS modif_track (
			table_name VARCHAR(191) NOT NULL,
			table_uid VARCHAR(512) NOT NULL,
			column_name VARCHAR(191) NOT NULL,
			column_before TEXT,
			column_after TEXT,
			version_record BIGINT NOT NULL,
			version_table BIGINT NOT NULL,
			version_date DATETIME NOT NULL,
			version_user VARCHAR(191),
			PRIMARY KEY (table_name, table_uid(191), version_table, version_record, version_date, column_name)
		)`,
		`CREATE TABLE IF NOT EXISTS delete_track (
			table_name VARCHAR(191) NOT NULL,
			table_uid VARCHAR(512) NOT NULL,
			table_version BIGINT NOT NULL,
			deleted_at DATETIME NOT NULL,
			deleted_by VARCHAR(191),
			PRIMARY KEY (table_name, table_uid(191), table_version)
		)`,
	},
	"postgres": {
		`CREATE TABLE IF NOT EXISTS table_version (
			table_name TEXT PRIMARY KEY,
			version_table BIGINT NOT NULL,
			version_date TIMESTAMPTZ NOT NULL
		)`,
		`CREATE TABLE IF NOT EXISTS modif_track (
			table_name TEXT NOT NULL,
			table_uid TEXT NOT NULL,
			column_name TEXT NOT NULL,
			column_before TEXT,
			column_after TEXT,
			version_record BIGINT NOT NULL,
			version_table BIGINT NOT NULL,
			version_date TIMESTAMPTZ NOT NULL,
			version_user TEXT,
			PRIMARY KEY (table_name, table_uid, version_table, version_record, version_date, column_name)
		)`,
		`CREATE TABLE IF NOT EXISTS delete_track (
			table_name TEXT NOT NULL,
			table_uid TEXT NOT NULL,
			table_version BIGINT NOT NULL,
			deleted_at TIMESTAMPTZ NOT NULL,
			deleted_by TEXT,
			PRIMARY KEY (table_name, table_uid, table_version)
		)`,
	},
	"sqlite": {
		`CREATE TABLE IF NOT EXISTS table_version (
			table_name TEXT PRIMARY KEY,
			version_table INTEGER NOT NULL,
			version_date DATETIME NOT NULL
		)`,
		`CREATE TABLE IF NOT EXISTS modif_track (
			table_name TEXT NOT NULL,
			table_uid TEXT NOT NULL,
			column_name TEXT NOT NULL,
			column_before TEXT,
			column_after TEXT,
			version_record INTEGER NOT NULL,
			version_table INTEGER NOT NULL,
			version_date DATETIME NOT NULL,
			version_user TEXT,
			PRIMARY KEY (table_name, table_uid, version_table, version_record, version_date, column_name)
		)`,
		`CREATE TABLE IF NOT EXISTS delete_track (
			table_name TEXT NOT NULL,
			table_uid TEXT NOT NULL,
			table_version INTEGER NOT NULL,
			deleted_at DATETIME NOT NULL,
			deleted_by TEXT,
			PRIMARY KEY (table_name, table_uid, table_version)
		)`,
	},
}

// EnsureSchema creates the three tracking tables if they do not already
// exist, for the given dialect name ("mysql"/"postgres"/"sqlite").
func EnsureSchema(ctx context.Context, db *sql.DB, dialectName string) error {
	stmts, ok := ddlByDialect[dialectName]
	if !ok {
		return model.NewConfigurationError("track: no tracking-table DDL for dialect %q", dialectName)
	}
	for _, stmt := range stmts {
		if _, err := db.ExecContext(ctx, stmt); err != nil {
			return model.NewBackendError("track.ensureSchema", err)
		}
	}
	return nil
}
