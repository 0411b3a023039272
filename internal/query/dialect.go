// Package query implements the predicate/join-fetch grammar against a
// concrete backend: translating model.Predicate trees and JoinFetch
// specs into parameterized SQL with stable aliasing and parent-level
// paging. A paged query with a to-many join first selects one page of root
// primary keys with LIMIT/OFFSET, then fetches the joined rows for those
// keys; no window function is used.
//
// Placeholder and identifier-quoting style is pluggable per backend,
// generalizing MySQL-only "?"-placeholder helpers
// (mysql_source.go's buildInsertSQL/buildWhereSQL) and the backtick-quoting
// identifier-escaping convention into one Dialect per backend family.
package query

import (
	"fmt"
	"strconv"
	"strings"
)

// Dialect abstracts the two things that differ between backends when
// building SQL text: how positional parameters are written, and how
// identifiers are quoted.
type Dialect interface {
	// Name identifies the dialect, e.g. "mysql", "postgres", "sqlite".
	Name() string

	// Placeholder returns the parameter marker for the nth (1-based)
	// bound value in a statement.
	Placeholder(n int) string

	// Quote wraps a bare identifier (table or column name) the way this
	// backend expects.
	Quote(identifier string) string
}

// MySQLDialect uses "?" placeholders and backtick-quoted identifiers.
type MySQLDialect struct{}

func (MySQLDialect) Name() string                { return "mysql" }
func (MySQLDialect) Placeholder(int) string       { return "?" }
func (MySQLDialect) Quote(identifier string) string {
	return "`" + strings.ReplaceAll(identifier, "`", "``") + "`"
}

// SQLiteDialect uses "?" placeholders and double-quoted identifiers.
type SQLiteDialect struct{}

func (SQLiteDialect) Name() string          { return "sqlite" }
func (SQLiteDialect) Placeholder(int) string { return "?" }
func (SQLiteDialect) Quote(identifier string) string {
	return `"` + strings.ReplaceAll(identifier, `"`, `""`) + `"`
}

// PostgresDialect uses "$n" placeholders and double-quoted identifiers.
type PostgresDialect struct{}

func (PostgresDialect) Name() string { return "postgres" }
func (PostgresDialect) Placeholder(n int) string {
	return "$" + strconv.Itoa(n)
}
func (PostgresDialect) Quote(identifier string) string {
	return `"` + strings.ReplaceAll(identifier, `"`, `""`) + `"`
}

// DialectForDriver resolves the Dialect for a database/sql driver name, the
// same name used to open a connection via sql.Open.
func DialectForDriver(driverName string) (Dialect, error) {
	switch driverName {
	case "mysql":
		return MySQLDialect{}, nil
	case "sqlite":
		return SQLiteDialect{}, nil
	case "postgres":
		return PostgresDialect{}, nil
	default:
		return nil, fmt.Errorf("query: no dialect registered for driver %q", driverName)
	}
}
