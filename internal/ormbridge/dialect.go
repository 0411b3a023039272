// Package ormbridge implements a gorm.Dialector/gorm.Migrator pair that
// routes every SQL statement GORM generates through an
// internal/access.Client's Unsafe escape hatch instead of a direct network
// connection, so an existing GORM model can be pointed at the offline-sync
// core exactly as it would at a real database.
//
// Grounded on pkg/api/gorm/{dialect.go,driver.go,migrator.go}: kept the
// dialector/connector/conn/migrator split and the MySQL-compatible
// ON CONFLICT clause rewrite, generalized from a single
// hardcoded MySQL-only dialect to pick its identifier quoting, placeholder
// style, and clause builders from whichever of the three backend families
// the wrapped Client actually talks to.
package ormbridge

import (
	"database/sql"
	"fmt"

	"gorm.io/gorm"
	"gorm.io/gorm/callbacks"
	"gorm.io/gorm/clause"
	gormschema "gorm.io/gorm/schema"

	"github.com/kasuganosora/syncbase/internal/access"
)

// ClauseOnConflict is the clause name GORM looks up a builder for when
// generating an upsert.
const ClauseOnConflict = "ON CONFLICT"

// Dialector implements gorm.Dialector over an access.Client.
type Dialector struct {
	Client *access.Client
	sqlDB  *sql.DB
}

// NewDialector builds a GORM dialector backed by client. The returned
// gorm.DB's every statement runs through client.Unsafe, bypassing
// view-rewrite and the hook chain exactly as any other Unsafe caller does.
func NewDialector(client *access.Client) gorm.Dialector {
	return &Dialector{Client: client}
}

// Name reports the backend family (mysql/postgres/sqlite) the wrapped
// Client actually talks to, so GORM's own family-sensitive behavior (and
// internal/schema's GormReflector, which switches on this exact string)
// sees the real backend instead of an invented dialect name.
func (d *Dialector) Name() string {
	if d.Client == nil {
		return "syncbase"
	}
	return d.Client.Dialect().Name()
}

// Initialize wires the *sql.DB GORM will use and registers the clause
// builders/callbacks it needs.
func (d *Dialector) Initialize(db *gorm.DB) error {
	if d.Client == nil {
		return fmt.Errorf("ormbridge: Dialector.Client must not be nil")
	}

	d.sqlDB = OpenDB(d.Client)
	db.ConnPool = d.sqlDB

	if d.Name() == "mysql" {
		for k, v := range d.mysqlClauseBuilders() {
			db.ClauseBuilders[k] = v
		}
	}

	callbacks.RegisterDefaultCallbacks(db, &callbacks.Config{})
	return nil
}

// mysqlClauseBuilders rewrites GORM's Postgres-shaped ON CONFLICT clause
// into MySQL's ON DUPLICATE KEY UPDATE syntax. Only needed for the MySQL
// family — GORM's default builder already emits syntax Postgres and SQLite
// both accept natively.
func (d *Dialector) mysqlClauseBuilders() map[string]clause.ClauseBuilder {
	return map[string]clause.ClauseBuilder{
		ClauseOnConflict: func(c clause.Clause, builder clause.Builder) {
			onConflict, ok := c.Expression.(clause.OnConflict)
			if !ok {
				return
			}

			if onConflict.DoNothing {
				builder.WriteString("ON DUPLICATE KEY UPDATE ")
				if len(onConflict.DoUpdates) > 0 {
					for idx, assignment := range onConflict.DoUpdates {
						if idx > 0 {
							builder.WriteByte(',')
						}
						builder.WriteQuoted(assignment.Column)
						builder.WriteByte('=')
						builder.WriteQuoted(assignment.Column)
					}
				} else {
					builder.WriteString("`id`=`id`")
				}
				return
			}

			builder.WriteString("ON DUPLICATE KEY UPDATE ")
			for idx, assignment := range onConflict.DoUpdates {
				if idx > 0 {
					builder.WriteByte(',')
				}
				builder.WriteQuoted(assignment.Column)
				builder.WriteByte('=')
				if col, ok := assignment.Value.(clause.Column); ok && col.Table == "excluded" {
					builder.WriteString("VALUES(")
					builder.WriteQuoted(clause.Column{Name: col.Name})
					builder.WriteByte(')')
				} else {
					builder.AddVar(builder, assignment.Value)
				}
			}
		},
	}
}

// Migrator returns the schema migration tool.
func (d *Dialector) Migrator(db *gorm.DB) gorm.Migrator {
	return &Migrator{Dialector: d, DB: db}
}

// DataTypeOf maps a GORM schema field to this backend's SQL type name.
func (d *Dialector) DataTypeOf(field *gormschema.Field) string {
	switch field.DataType {
	case gormschema.Bool:
		return "BOOLEAN"
	case gormschema.Int, gormschema.Uint:
		if d.Name() == "postgres" && field.AutoIncrement {
			if field.Size <= 32 {
				return "SERIAL"
			}
			return "BIGSERIAL"
		}
		switch {
		case field.Size <= 8 && d.Name() != "postgres":
			return "TINYINT"
		case field.Size <= 16:
			return "SMALLINT"
		case field.Size <= 32:
			if d.Name() == "postgres" {
				return "INTEGER"
			}
			return "INT"
		default:
			return "BIGINT"
		}
	case gormschema.Float:
		if field.Size <= 32 {
			return "FLOAT"
		}
		if d.Name() == "postgres" {
			return "DOUBLE PRECISION"
		}
		return "DOUBLE"
	case gormschema.String:
		if field.Size > 0 && field.Size <= 65535 {
			return fmt.Sprintf("VARCHAR(%d)", field.Size)
		}
		return "TEXT"
	case gormschema.Time:
		return "TIMESTAMP"
	case gormschema.Bytes:
		if d.Name() == "postgres" {
			return "BYTEA"
		}
		return "BLOB"
	default:
		return "VARCHAR(255)"
	}
}

// DefaultValueOf returns a clause expression for a field's default value.
func (d *Dialector) DefaultValueOf(field *gormschema.Field) clause.Expression {
	if field.DefaultValue != "" {
		return clause.Expr{SQL: "DEFAULT"}
	}
	return nil
}

// BindVarTo writes this backend's placeholder style for the value already
// appended to stmt.Vars.
func (d *Dialector) BindVarTo(writer clause.Writer, stmt *gorm.Statement, _ interface{}) {
	writer.WriteString(d.Client.Dialect().Placeholder(len(stmt.Vars)))
}

// QuoteTo quotes an identifier the way this backend expects.
func (d *Dialector) QuoteTo(writer clause.Writer, str string) {
	writer.WriteString(d.Client.Dialect().Quote(str))
}

// Explain returns a human-readable version of sql with vars bound in.
func (d *Dialector) Explain(sql string, vars ...interface{}) string {
	return fmt.Sprintf("%s %v", sql, vars)
}

// CloseDB releases the *sql.DB created during Initialize.
func (d *Dialector) CloseDB() error {
	if d.sqlDB != nil {
		return d.sqlDB.Close()
	}
	return nil
}
