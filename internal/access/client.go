// Package access implements the Access Client (C): the connection-scoped
// object exposing getByPk/search/searchFirst/insert/update/remove/
// removeWhere/multiread/changes/unsafe, with per-operation interceptors,
// per-table view rewrites, and timeout-bounded transactions.
//
// Grounded on pkg/resource/mysql_source/mysql_source.go for the
// connect/query/insert/update/delete/execute/transaction method set (kept
// its method shapes, replaced its hand-built SQL strings with
// internal/query's compiled statements) and on
// pkg/resource/domain/repository.go's Repository interface for the
// operation names themselves.
package access

import (
	"context"
	"database/sql"
	"sort"
	"sync"
	"time"

	"github.com/kasuganosora/syncbase/internal/dbutil"
	"github.com/kasuganosora/syncbase/internal/model"
	"github.com/kasuganosora/syncbase/internal/query"
	"github.com/kasuganosora/syncbase/internal/schema"
)

// Execer is the subset of *sql.DB / *sql.Tx the client needs; both satisfy
// it without adaptation, which is how the raw and GORM-mediated paths
// share one code path (internal/ormbridge's driver answers the same
// database/sql surface through a *sql.DB handle of its own).
type Execer interface {
	QueryContext(ctx context.Context, query string, args ...interface{}) (*sql.Rows, error)
	ExecContext(ctx context.Context, query string, args ...interface{}) (sql.Result, error)
}

// Operation identifies which Client method a hook or view rewrite applies
// to.
type Operation string

const (
	OpGetByPk     Operation = "getByPk"
	OpSearch      Operation = "search"
	OpSearchFirst Operation = "searchFirst"
	OpInsert      Operation = "insert"
	OpUpdate      Operation = "update"
	OpRemove      Operation = "remove"
	OpRemoveWhere Operation = "removeWhere"
)

// Hook runs before or after an operation. before hooks receive io.In only;
// after hooks additionally receive io.Out and may mutate it in place.
// Returning an error short-circuits the remaining hook chain and the
// operation (for before hooks, the operation itself never runs). The
// Client passed in is whichever scope the operation is running under
// (the transactional clone, inside a Transaction) so a hook that issues
// its own writes — the modification tracker, notably — stays inside the
// same transaction as the operation it's observing.
type Hook func(ctx context.Context, c *Client, io *HookIO) error

// HookIO carries one operation's inputs/outputs through the interceptor
// chain.
type HookIO struct {
	Op     Operation
	Table  string
	Record model.Record
	Values []model.Record // insert/changes may operate on several records
	Spec   query.SelectSpec
	Out    []model.Record

	state map[string]interface{}
}

// Stash lets a before-hook pass private state (e.g. a pre-update row
// snapshot) to the matching after-hook of the same operation.
func (io *HookIO) Stash(key string, v interface{}) {
	if io.state == nil {
		io.state = make(map[string]interface{})
	}
	io.state[key] = v
}

// Stashed retrieves state a before-hook stored with Stash.
func (io *HookIO) Stashed(key string) (interface{}, bool) {
	v, ok := io.state[key]
	return v, ok
}

type hookKey struct {
	op    Operation
	table string // empty = every table
}

// Client is one connection-scoped Access Client.
type Client struct {
	db      Execer
	rawDB   *sql.DB // non-nil only on the root (non-transactional) client
	dialect query.Dialect
	catalog *schema.Catalog

	mu          sync.RWMutex
	beforeHooks map[hookKey][]Hook
	afterHooks  map[hookKey][]Hook
	viewRewrite map[string]func() string

	inTx bool
}

// New builds a root Access Client over an already-open database handle.
func New(db *sql.DB, dialect query.Dialect, catalog *schema.Catalog) *Client {
	return &Client{
		db:          db,
		rawDB:       db,
		dialect:     dialect,
		catalog:     catalog,
		beforeHooks: make(map[hookKey][]Hook),
		afterHooks:  make(map[hookKey][]Hook),
		viewRewrite: make(map[string]func() string),
	}
}

// Before registers a before-hook. table == "" applies to every table.
func (c *Client) Before(op Operation, table string, h Hook) {
	c.mu.Lock()
	defer c.mu.Unlock()
	k := hookKey{op: op, table: table}
	c.beforeHooks[k] = append(c.beforeHooks[k], h)
}

// After registers an after-hook. table == "" applies to every table.
func (c *Client) After(op Operation, table string, h Hook) {
	c.mu.Lock()
	defer c.mu.Unlock()
	k := hookKey{op: op, table: table}
	c.afterHooks[k] = append(c.afterHooks[k], h)
}

// TableSchema exposes the client's catalog lookup to collaborators outside
// this package (the modification tracker and sync engine both need a
// table's primary key without re-deriving it).
func (c *Client) TableSchema(table string) (*model.TableSchema, error) {
	return c.catalog.GetTable(table)
}

// Dialect exposes the backend dialect so collaborators that sit above the
// Client (internal/ormbridge, notably) can pick backend-specific behavior
// — ON DUPLICATE KEY vs ON CONFLICT clause generation, in particular —
// without the Client having to know about GORM at all.
func (c *Client) Dialect() query.Dialect {
	return c.dialect
}

// Tables returns every table name the catalog currently knows about,
// sorted. internal/ormbridge's Migrator.GetTables uses this instead of a
// hand-rolled information_schema query, so it works identically across
// every backend family the catalog already reflects.
func (c *Client) Tables() ([]string, error) {
	m, err := c.catalog.Load()
	if err != nil {
		return nil, err
	}
	names := make([]string, 0, len(m))
	for name := range m {
		names = append(names, name)
	}
	sort.Strings(names)
	return names, nil
}

// InvalidateSchema drops the catalog's cached reflection, forcing a
// re-reflect on next use. Callers that execute DDL through the Unsafe
// escape hatch — internal/ormbridge's Migrator, notably, which always
// knows its own statements are DDL — call this directly instead of going
// through internal/unsafesql's classifier.
func (c *Client) InvalidateSchema() {
	c.catalog.Invalidate()
}

// ViewRewrite registers a per-table SELECT-source rewrite (getTable_T()):
// every SELECT-family query against table uses the returned SQL
// expression in place of the bare table name.
func (c *Client) ViewRewrite(table string, expr func() string) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.viewRewrite[table] = expr
}

func (c *Client) runBefore(ctx context.Context, io *HookIO) error {
	c.mu.RLock()
	all := append(append([]Hook{}, c.beforeHooks[hookKey{op: io.Op}]...), c.beforeHooks[hookKey{op: io.Op, table: io.Table}]...)
	c.mu.RUnlock()
	for _, h := range all {
		if err := h(ctx, c, io); err != nil {
			return err
		}
	}
	return nil
}

func (c *Client) runAfter(ctx context.Context, io *HookIO) error {
	c.mu.RLock()
	all := append(append([]Hook{}, c.afterHooks[hookKey{op: io.Op}]...), c.afterHooks[hookKey{op: io.Op, table: io.Table}]...)
	c.mu.RUnlock()
	for _, h := range all {
		if err := h(ctx, c, io); err != nil {
			return err
		}
	}
	return nil
}

// sourceFor resolves the FROM-clause source for a table, honoring any
// registered view rewrite unless unsafe is in effect.
func (c *Client) sourceFor(table string, unsafe bool) string {
	if !unsafe {
		c.mu.RLock()
		rewrite, ok := c.viewRewrite[table]
		c.mu.RUnlock()
		if ok {
			return rewrite()
		}
	}
	return c.dialect.Quote(table)
}

// Unsafe grants fn a view of the client that bypasses view-rewrite and
// permits arbitrary SQL execution.
func (c *Client) Unsafe(ctx context.Context, fn func(u *UnsafeClient) error) error {
	return fn(&UnsafeClient{client: c, ctx: ctx})
}

// UnsafeClient is the privilege-escalated handle passed to Unsafe's
// callback.
type UnsafeClient struct {
	client *Client
	ctx    context.Context
}

// Exec runs a raw statement, bypassing view-rewrite. The caller is
// responsible for invalidating the schema catalog afterward if the
// statement was DDL (Client.InvalidateSchema); Exec does not inspect the
// statement.
func (u *UnsafeClient) Exec(sqlText string, args ...interface{}) (sql.Result, error) {
	res, err := u.client.db.ExecContext(u.ctx, sqlText, args...)
	if err != nil {
		return nil, model.NewBackendError("unsafe.exec", err)
	}
	return res, nil
}

// Query runs a raw query, bypassing view-rewrite.
func (u *UnsafeClient) Query(sqlText string, args ...interface{}) ([]model.Record, error) {
	rows, err := u.client.db.QueryContext(u.ctx, sqlText, args...)
	if err != nil {
		return nil, model.NewBackendError("unsafe.query", err)
	}
	return dbutil.ScanRows(rows)
}

// QueryRows runs a raw query and returns the *sql.Rows directly instead of
// materializing it into model.Record, for a caller that needs the driver's
// own column order and type information rather than a name-keyed map — the
// internal/ormbridge driver.Rows implementation, specifically, which must
// answer database/sql/driver's positional Columns()/Next() contract even
// for a zero-row result. The caller owns rows and must Close it.
func (u *UnsafeClient) QueryRows(sqlText string, args ...interface{}) (*sql.Rows, error) {
	rows, err := u.client.db.QueryContext(u.ctx, sqlText, args...)
	if err != nil {
		return nil, model.NewBackendError("unsafe.query", err)
	}
	return rows, nil
}

// Transaction opens a backend transaction on a cloned Client and invokes
// fn(tx, done). Commits on done(nil), rolls back on done(err) or on fn
// returning an error, and rolls back with a timeout error if done is not
// called within timeout. Nested transactions are rejected. done is
// idempotent: calling it again after the first call is a no-op. If fn has
// already called done(nil) and then returns an error, the commit stands
// and fn's error is returned.
func (c *Client) Transaction(ctx context.Context, timeout time.Duration, fn func(tx *Client, done func(error)) error) error {
	if c.inTx {
		return model.NewConflictError("transaction", "nested transactions are rejected")
	}
	if timeout <= 0 {
		timeout = 30 * time.Second
	}
	if c.rawDB == nil {
		return model.NewConfigurationError("transaction requires a root client with a raw *sql.DB handle")
	}

	sqlTx, err := c.rawDB.BeginTx(ctx, nil)
	if err != nil {
		return model.NewBackendError("begin", err)
	}

	txClient := &Client{
		db:          sqlTx,
		dialect:     c.dialect,
		catalog:     c.catalog,
		beforeHooks: c.beforeHooks,
		afterHooks:  c.afterHooks,
		viewRewrite: c.viewRewrite,
		inTx:        true,
	}

	var once sync.Once
	var finalErr error
	done := make(chan struct{})
	finalize := func(callerErr error) {
		once.Do(func() {
			if callerErr != nil {
				finalErr = sqlTx.Rollback()
				if finalErr == nil {
					finalErr = callerErr
				}
			} else {
				finalErr = sqlTx.Commit()
			}
			close(done)
		})
	}

	fnErr := fn(txClient, finalize)
	if fnErr != nil {
		finalize(fnErr)
	}

	select {
	case <-done:
		if finalErr == nil && fnErr != nil {
			return fnErr
		}
		return finalErr
	case <-time.After(timeout):
		once.Do(func() {
			sqlTx.Rollback()
			finalErr = model.NewTimeoutError("transaction", timeout.String())
			close(done)
		})
		return finalErr
	}
}
