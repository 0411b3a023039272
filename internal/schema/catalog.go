// Package schema implements the Schema Catalog: it reflects a backend's
// tables, columns, primary keys and foreign keys, caches the result, and
// lets a caller layer a partial schema on top ("augmentation").
//
// Grounded on pkg/resource/domain/table_info.go's TableInfo business-method
// style (HasColumn/GetColumn/GetPrimaryKey) and pkg/api/gorm/migrator.go's
// use of information_schema/gorm.Migrator for reflection — generalized
// into one Reflector per backend family instead of one GORM-only path.
package schema

import (
	"sort"
	"sync"

	"github.com/kasuganosora/syncbase/internal/model"
)

// Reflector reads table/column/PK/FK metadata from a concrete backend.
type Reflector interface {
	ReflectTables() ([]model.TableSchema, error)
	// DBVersion returns the db_version row's version value, if the
	// backend has one; ok is false when no such row exists.
	DBVersion() (version int64, ok bool, err error)
}

// Catalog is the process-wide, read-mostly schema cache.
type Catalog struct {
	mu        sync.RWMutex
	reflector Reflector
	tables    map[string]*model.TableSchema
	overrides map[string]model.TableSchema
	version   int64
	loaded    bool
}

// New builds a Catalog backed by the given Reflector.
func New(reflector Reflector) *Catalog {
	return &Catalog{
		reflector: reflector,
		tables:    make(map[string]*model.TableSchema),
		overrides: make(map[string]model.TableSchema),
	}
}

// Augment merges a caller-supplied partial schema into the catalog:
// existing columns are updated in place, new columns are appended, and
// the override is remembered so it survives a future reload. This never
// removes a column the backend actually reports.
func (c *Catalog) Augment(override model.TableSchema) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.overrides[override.Name] = override
	if t, ok := c.tables[override.Name]; ok {
		merge(t, override)
	}
}

// Load reflects the backend (if not already cached) and returns the full
// schema map, keyed by table name.
func (c *Catalog) Load() (map[string]*model.TableSchema, error) {
	c.mu.RLock()
	if c.loaded {
		defer c.mu.RUnlock()
		return c.snapshotLocked(), nil
	}
	c.mu.RUnlock()

	tables, err := c.reflector.ReflectTables()
	if err != nil {
		return nil, model.NewBackendError("schema.load", err)
	}

	c.mu.Lock()
	defer c.mu.Unlock()
	c.tables = make(map[string]*model.TableSchema, len(tables))
	for i := range tables {
		t := tables[i]
		if len(t.PrimaryKey) == 0 {
			t.PrimaryKey = t.ColumnNames()
		}
		c.tables[t.Name] = &t
	}
	for name, override := range c.overrides {
		if t, ok := c.tables[name]; ok {
			merge(t, override)
		} else {
			t := override
			if len(t.PrimaryKey) == 0 {
				t.PrimaryKey = t.ColumnNames()
			}
			c.tables[name] = &t
		}
	}

	if v, ok, err := c.reflector.DBVersion(); err == nil && ok {
		c.version = v
	} else {
		c.version = surrogateVersion(c.tables)
	}
	c.loaded = true
	return c.snapshotLocked(), nil
}

// GetTable returns one table's schema, reflecting/caching on first use.
// It implements query.SchemaResolver.
func (c *Catalog) GetTable(name string) (*model.TableSchema, error) {
	if _, err := c.Load(); err != nil {
		return nil, err
	}
	c.mu.RLock()
	defer c.mu.RUnlock()
	t, ok := c.tables[name]
	if !ok {
		return nil, model.NewNotFoundError("table", name)
	}
	return t, nil
}

// Version returns the catalog's current schema version: the db_version
// row if present, else a surrogate derived from table/column counts.
func (c *Catalog) Version() (int64, error) {
	if _, err := c.Load(); err != nil {
		return 0, err
	}
	c.mu.RLock()
	defer c.mu.RUnlock()
	return c.version, nil
}

// Invalidate drops the cached schema, forcing the next Load/GetTable to
// re-reflect the backend. Called through access.Client.InvalidateSchema
// (internal/ormbridge's Migrator does so after each DDL statement it runs)
// and by the sync client when the remote schema version is newer. The
// access client does not inspect executed statements for DDL, and
// internal/unsafesql does not call it.
func (c *Catalog) Invalidate() {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.loaded = false
	c.tables = make(map[string]*model.TableSchema)
}

func (c *Catalog) snapshotLocked() map[string]*model.TableSchema {
	out := make(map[string]*model.TableSchema, len(c.tables))
	for k, v := range c.tables {
		out[k] = v
	}
	return out
}

func merge(dst *model.TableSchema, override model.TableSchema) {
	for _, col := range override.Columns {
		found := false
		for i := range dst.Columns {
			if dst.Columns[i].Name == col.Name {
				dst.Columns[i] = col
				found = true
				break
			}
		}
		if !found {
			dst.Columns = append(dst.Columns, col)
		}
	}
	if len(override.PrimaryKey) > 0 {
		dst.PrimaryKey = override.PrimaryKey
	}
	if len(override.ForeignKeys) > 0 {
		dst.ForeignKeys = append(dst.ForeignKeys, override.ForeignKeys...)
	}
	if len(override.ViewOfTables) > 0 {
		dst.ViewOfTables = override.ViewOfTables
	}
}

// surrogateVersion derives a monotonic proxy from (total tables + total
// columns) under the assumption that schema only grows.
func surrogateVersion(tables map[string]*model.TableSchema) int64 {
	names := make([]string, 0, len(tables))
	for name := range tables {
		names = append(names, name)
	}
	sort.Strings(names)
	total := int64(len(tables))
	for _, name := range names {
		total += int64(len(tables[name].Columns))
	}
	return total
}
