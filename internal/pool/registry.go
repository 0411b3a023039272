// Package pool manages the *sql.DB handles the access client opens against
// each configured backend, generalizing a single-backend
// ConnectionPool (pkg/resource/infrastructure/pool/connection_pool.go) into
// a small named registry: one pooled *sql.DB per backend, since a single
// deployment may read/write mysql, postgres and a local sqlite client store
// at once.
package pool

import (
	"database/sql"
	"sync"
	"time"

	"github.com/kasuganosora/syncbase/internal/model"
)

// Config mirrors the database/sql pool knobs a ConnectionPool
// typically exposes as setters.
type Config struct {
	MaxOpenConns    int
	MaxIdleConns    int
	ConnMaxLifetime time.Duration
	ConnMaxIdleTime time.Duration
}

// DefaultConfig matches NewConnectionPool's original defaults.
func DefaultConfig() Config {
	return Config{
		MaxOpenConns:    10,
		MaxIdleConns:    5,
		ConnMaxLifetime: 30 * time.Minute,
		ConnMaxIdleTime: 5 * time.Minute,
	}
}

// Metrics counts lifecycle events across every handle in a Registry.
type Metrics struct {
	mu       sync.RWMutex
	Opened   int64
	Closed   int64
	OpenErrs int64
}

func (m *Metrics) incOpened()   { m.mu.Lock(); m.Opened++; m.mu.Unlock() }
func (m *Metrics) incClosed()   { m.mu.Lock(); m.Closed++; m.mu.Unlock() }
func (m *Metrics) incOpenErr()  { m.mu.Lock(); m.OpenErrs++; m.mu.Unlock() }

// Snapshot returns a point-in-time copy of the counters.
func (m *Metrics) Snapshot() map[string]int64 {
	m.mu.RLock()
	defer m.mu.RUnlock()
	return map[string]int64{"opened": m.Opened, "closed": m.Closed, "open_errors": m.OpenErrs}
}

// Registry holds one pooled *sql.DB per named backend (e.g. "primary",
// "warehouse", "localstore").
type Registry struct {
	mu      sync.RWMutex
	handles map[string]*sql.DB
	metrics *Metrics
}

// NewRegistry builds an empty registry.
func NewRegistry() *Registry {
	return &Registry{handles: make(map[string]*sql.DB), metrics: &Metrics{}}
}

// Open opens (or replaces) the named backend's handle via database/sql,
// applying cfg's pool limits, and verifies connectivity with Ping.
func (r *Registry) Open(name, driverName, dsn string, cfg Config) (*sql.DB, error) {
	db, err := sql.Open(driverName, dsn)
	if err != nil {
		r.metrics.incOpenErr()
		return nil, model.NewBackendError("open:"+name, err)
	}
	db.SetMaxOpenConns(cfg.MaxOpenConns)
	db.SetMaxIdleConns(cfg.MaxIdleConns)
	db.SetConnMaxLifetime(cfg.ConnMaxLifetime)
	db.SetConnMaxIdleTime(cfg.ConnMaxIdleTime)

	if err := db.Ping(); err != nil {
		safeClose(db)
		r.metrics.incOpenErr()
		return nil, model.NewBackendError("ping:"+name, err)
	}

	r.mu.Lock()
	if old, ok := r.handles[name]; ok {
		safeClose(old)
		r.metrics.incClosed()
	}
	r.handles[name] = db
	r.mu.Unlock()
	r.metrics.incOpened()
	return db, nil
}

// Get returns the named backend's pooled handle.
func (r *Registry) Get(name string) (*sql.DB, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	db, ok := r.handles[name]
	if !ok {
		return nil, model.NewNotFoundError("backend", name)
	}
	return db, nil
}

// Close closes every handle in the registry.
func (r *Registry) Close() error {
	r.mu.Lock()
	defer r.mu.Unlock()
	for name, db := range r.handles {
		safeClose(db)
		r.metrics.incClosed()
		delete(r.handles, name)
	}
	return nil
}

// Metrics returns the registry's lifecycle counters.
func (r *Registry) Metrics() *Metrics { return r.metrics }

// safeClose recovers from panics caused by closing an already-broken or
// zero-value *sql.DB.
func safeClose(db *sql.DB) {
	if db == nil {
		return
	}
	defer func() { recover() }()
	db.Close()
}
