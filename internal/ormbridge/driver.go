package ormbridge

import (
	"context"
	"database/sql"
	"database/sql/driver"
	"fmt"
	"io"
	"strings"

	"github.com/kasuganosora/syncbase/internal/access"
)

// ---------------------------------------------------------------------------
// database/sql/driver implementation routing every statement through
// access.Client.Unsafe, grounded on pkg/api/gorm/driver.go's
// connector/conn/stmt/resultRows/execResult/noopTx split.
// ---------------------------------------------------------------------------

type syncbaseDriver struct{}

func (d *syncbaseDriver) Open(_ string) (driver.Conn, error) {
	return nil, fmt.Errorf("ormbridge: use sql.OpenDB(NewConnector(client)) instead of sql.Open")
}

// NewConnector creates a driver.Connector that routes all SQL through
// client.Unsafe. The resulting connector is used with sql.OpenDB.
func NewConnector(client *access.Client) driver.Connector {
	return &connector{client: client}
}

// OpenDB is a convenience wrapper: sql.OpenDB(NewConnector(client)).
func OpenDB(client *access.Client) *sql.DB {
	return sql.OpenDB(NewConnector(client))
}

type connector struct {
	client *access.Client
}

func (c *connector) Connect(_ context.Context) (driver.Conn, error) {
	return &conn{client: c.client}, nil
}

func (c *connector) Driver() driver.Driver {
	return &syncbaseDriver{}
}

// conn implements driver.Conn plus the Context variants, so database/sql
// skips the non-context Prepare path for everything but raw *sql.Stmt use.
type conn struct {
	client *access.Client
}

func (c *conn) Prepare(query string) (driver.Stmt, error) {
	return &stmt{client: c.client, query: query}, nil
}

func (c *conn) Close() error { return nil }

// Begin is a no-op transaction: every statement already runs against
// whatever transactional scope the caller's access.Client carries (a root
// client outside a transaction, or a tx-scoped clone inside one), so GORM's
// own Begin/Commit bracketing has nothing further to do here.
func (c *conn) Begin() (driver.Tx, error) {
	return &noopTx{}, nil
}

// QueryContext routes SELECT-family statements through Unsafe.QueryRows,
// eagerly materializing the result so driver.Rows can answer Columns()
// correctly even for a zero-row result.
func (c *conn) QueryContext(ctx context.Context, query string, args []driver.NamedValue) (driver.Rows, error) {
	iargs := namedValuesToArgs(args)

	var rows *sql.Rows
	err := c.client.Unsafe(ctx, func(u *access.UnsafeClient) error {
		var qerr error
		rows, qerr = u.QueryRows(query, iargs...)
		return qerr
	})
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	return collectRows(rows)
}

// ExecContext routes INSERT/UPDATE/DELETE/DDL through Unsafe.Exec. A
// SELECT-shaped statement reaching Exec (gormDB.Exec("SELECT ...")) falls
// back to the query path.
func (c *conn) ExecContext(ctx context.Context, query string, args []driver.NamedValue) (driver.Result, error) {
	iargs := namedValuesToArgs(args)

	if isReadStatement(query) {
		var rows *sql.Rows
		err := c.client.Unsafe(ctx, func(u *access.UnsafeClient) error {
			var qerr error
			rows, qerr = u.QueryRows(query, iargs...)
			return qerr
		})
		if err != nil {
			return nil, err
		}
		count := int64(0)
		for rows.Next() {
			count++
		}
		rows.Close()
		return &execResult{affected: count}, nil
	}

	var res sql.Result
	err := c.client.Unsafe(ctx, func(u *access.UnsafeClient) error {
		var eerr error
		res, eerr = u.Exec(query, iargs...)
		return eerr
	})
	if err != nil {
		return nil, err
	}
	affected, _ := res.RowsAffected()
	insertID, _ := res.LastInsertId()
	return &execResult{affected: affected, insertID: insertID}, nil
}

// ---------------------------------------------------------------------------
// stmt — fallback prepared-statement path (rarely used; database/sql
// prefers the *Context methods above when they're implemented)
// ---------------------------------------------------------------------------

type stmt struct {
	client *access.Client
	query  string
}

func (s *stmt) Close() error  { return nil }
func (s *stmt) NumInput() int { return -1 }

func (s *stmt) Exec(args []driver.Value) (driver.Result, error) {
	iargs := valuesToArgs(args)
	var res sql.Result
	err := s.client.Unsafe(context.Background(), func(u *access.UnsafeClient) error {
		var eerr error
		res, eerr = u.Exec(s.query, iargs...)
		return eerr
	})
	if err != nil {
		return nil, err
	}
	affected, _ := res.RowsAffected()
	insertID, _ := res.LastInsertId()
	return &execResult{affected: affected, insertID: insertID}, nil
}

func (s *stmt) Query(args []driver.Value) (driver.Rows, error) {
	iargs := valuesToArgs(args)
	var rows *sql.Rows
	err := s.client.Unsafe(context.Background(), func(u *access.UnsafeClient) error {
		var qerr error
		rows, qerr = u.QueryRows(s.query, iargs...)
		return qerr
	})
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	return collectRows(rows)
}

// ---------------------------------------------------------------------------
// resultRows — driver.Rows over an eagerly-materialized result set
// ---------------------------------------------------------------------------

type resultRows struct {
	columns []string
	data    [][]driver.Value
	index   int
}

func (r *resultRows) Columns() []string { return r.columns }
func (r *resultRows) Close() error      { return nil }

func (r *resultRows) Next(dest []driver.Value) error {
	if r.index >= len(r.data) {
		return io.EOF
	}
	copy(dest, r.data[r.index])
	r.index++
	return nil
}

// collectRows drains rows into a resultRows, preserving column order even
// when the result set is empty.
func collectRows(rows *sql.Rows) (*resultRows, error) {
	cols, err := rows.Columns()
	if err != nil {
		return nil, err
	}

	var data [][]driver.Value
	for rows.Next() {
		raw := make([]interface{}, len(cols))
		scanArgs := make([]interface{}, len(cols))
		for i := range raw {
			scanArgs[i] = &raw[i]
		}
		if err := rows.Scan(scanArgs...); err != nil {
			return nil, err
		}
		vals := make([]driver.Value, len(cols))
		for i, v := range raw {
			vals[i] = toDriverValue(v)
		}
		data = append(data, vals)
	}
	if err := rows.Err(); err != nil {
		return nil, err
	}
	return &resultRows{columns: cols, data: data}, nil
}

// ---------------------------------------------------------------------------
// execResult — driver.Result
// ---------------------------------------------------------------------------

type execResult struct {
	affected int64
	insertID int64
}

func (r *execResult) LastInsertId() (int64, error) { return r.insertID, nil }
func (r *execResult) RowsAffected() (int64, error) { return r.affected, nil }

// ---------------------------------------------------------------------------
// noopTx
// ---------------------------------------------------------------------------

type noopTx struct{}

func (t *noopTx) Commit() error   { return nil }
func (t *noopTx) Rollback() error { return nil }

// ---------------------------------------------------------------------------
// helpers
// ---------------------------------------------------------------------------

func namedValuesToArgs(named []driver.NamedValue) []interface{} {
	args := make([]interface{}, len(named))
	for i, nv := range named {
		args[i] = nv.Value
	}
	return args
}

func valuesToArgs(vals []driver.Value) []interface{} {
	args := make([]interface{}, len(vals))
	for i, v := range vals {
		args[i] = v
	}
	return args
}

// isReadStatement returns true for SQL that should go through the query
// path even though it arrived via ExecContext.
func isReadStatement(query string) bool {
	q := strings.TrimSpace(query)
	if len(q) < 4 {
		return false
	}
	prefix := strings.ToUpper(q[:4])
	return prefix == "SELE" || prefix == "SHOW" || prefix == "DESC" || prefix == "EXPL" || prefix == "PRAG"
}

// toDriverValue normalizes a scanned value to the database/sql/driver.Value
// type set. The underlying drivers (mysql/pq/sqlite) already return
// driver.Value-safe types from a *interface{} scan target in the common
// case; this only covers the odd integer width a driver occasionally hands
// back directly.
func toDriverValue(v interface{}) driver.Value {
	switch val := v.(type) {
	case int:
		return int64(val)
	case int8:
		return int64(val)
	case int16:
		return int64(val)
	case int32:
		return int64(val)
	case uint:
		return int64(val)
	case uint8:
		return int64(val)
	case uint16:
		return int64(val)
	case uint32:
		return int64(val)
	case uint64:
		return int64(val)
	case float32:
		return float64(val)
	default:
		return val
	}
}
