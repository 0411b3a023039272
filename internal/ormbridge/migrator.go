package ormbridge

import (
	"context"
	"fmt"
	"strings"
	"sync"

	"gorm.io/gorm"
	"gorm.io/gorm/clause"
	gormschema "gorm.io/gorm/schema"

	"github.com/kasuganosora/syncbase/internal/access"
)

// Migrator implements gorm.Migrator. Structural questions a caller asks
// about an existing table or column (HasTable, HasColumn, GetTables) are
// answered from the Schema Catalog the Client already maintains, rather
// than by hand-building information_schema/pragma probes per backend —
// the Catalog already does that reflection (internal/schema) and this way
// Migrator's read side works identically across all three backend
// families. DDL (CreateTable, AddColumn, ...) still goes out as raw SQL
// through Unsafe, since that part genuinely differs per dialect, and
// invalidates the catalog on success so the next structural question sees
// the change.
type Migrator struct {
	Dialector *Dialector
	DB        *gorm.DB
}

func (m *Migrator) client() *access.Client { return m.Dialector.Client }

func (m *Migrator) exec(sqlText string) error {
	err := m.client().Unsafe(context.Background(), func(u *access.UnsafeClient) error {
		_, eerr := u.Exec(sqlText)
		return eerr
	})
	if err != nil {
		return err
	}
	m.client().InvalidateSchema()
	return nil
}

// AutoMigrate creates tables for the given models if they don't exist.
func (m *Migrator) AutoMigrate(dst ...interface{}) error {
	for _, value := range dst {
		s, err := gormschema.Parse(value, &sync.Map{}, gormschema.NamingStrategy{})
		if err != nil {
			return fmt.Errorf("ormbridge: parse schema: %w", err)
		}
		if m.HasTable(s.Table) {
			continue
		}
		if err := m.exec(m.createTableSQL(s)); err != nil {
			return fmt.Errorf("ormbridge: create table %s: %w", s.Table, err)
		}
	}
	return nil
}

// HasTable checks whether a table exists, via the Schema Catalog.
func (m *Migrator) HasTable(value interface{}) bool {
	_, err := m.client().TableSchema(m.getTableName(value))
	return err == nil
}

// CreateTable creates tables for the given models.
func (m *Migrator) CreateTable(values ...interface{}) error {
	for _, value := range values {
		s, err := gormschema.Parse(value, &sync.Map{}, gormschema.NamingStrategy{})
		if err != nil {
			return fmt.Errorf("ormbridge: parse schema: %w", err)
		}
		if err := m.exec(m.createTableSQL(s)); err != nil {
			return err
		}
	}
	return nil
}

// DropTable drops the given tables.
func (m *Migrator) DropTable(values ...interface{}) error {
	for _, value := range values {
		tableName := m.getTableName(value)
		if err := m.exec("DROP TABLE IF EXISTS " + m.quote(tableName)); err != nil {
			return err
		}
	}
	return nil
}

// RenameTable renames a table.
func (m *Migrator) RenameTable(oldName, newName interface{}) error {
	old := m.getTableName(oldName)
	next := m.getTableName(newName)
	return m.exec("ALTER TABLE " + m.quote(old) + " RENAME TO " + m.quote(next))
}

// GetTables returns every table name the catalog knows about.
func (m *Migrator) GetTables() ([]string, error) {
	return m.client().Tables()
}

// AddColumn adds a column to the table, typed from the model's schema.
func (m *Migrator) AddColumn(value interface{}, field string) error {
	tableName := m.getTableName(value)
	colType := m.resolveColumnType(value, field)
	return m.exec("ALTER TABLE " + m.quote(tableName) + " ADD COLUMN " + m.quote(field) + " " + colType)
}

// DropColumn drops a column from the table.
func (m *Migrator) DropColumn(value interface{}, name string) error {
	tableName := m.getTableName(value)
	return m.exec("ALTER TABLE " + m.quote(tableName) + " DROP COLUMN " + m.quote(name))
}

// AlterColumn modifies a column's type, typed from the model's schema.
func (m *Migrator) AlterColumn(value interface{}, field string) error {
	tableName := m.getTableName(value)
	colType := m.resolveColumnType(value, field)
	switch m.Dialector.Name() {
	case "postgres":
		return m.exec("ALTER TABLE " + m.quote(tableName) + " ALTER COLUMN " + m.quote(field) + " TYPE " + colType)
	case "sqlite":
		// SQLite has no native ALTER COLUMN TYPE; callers needing one must
		// rebuild the table. Reported as unsupported rather than silently
		// doing nothing.
		return gorm.ErrNotImplemented
	default:
		return m.exec("ALTER TABLE " + m.quote(tableName) + " MODIFY COLUMN " + m.quote(field) + " " + colType)
	}
}

// RenameColumn renames a column.
func (m *Migrator) RenameColumn(value interface{}, oldName, field string) error {
	tableName := m.getTableName(value)
	return m.exec("ALTER TABLE " + m.quote(tableName) + " RENAME COLUMN " + m.quote(oldName) + " TO " + m.quote(field))
}

// HasColumn checks whether a column exists, via the Schema Catalog.
func (m *Migrator) HasColumn(value interface{}, name string) bool {
	t, err := m.client().TableSchema(m.getTableName(value))
	if err != nil {
		return false
	}
	return t.HasColumn(name)
}

// ColumnTypes is not backed by the catalog's column model; callers that
// need GORM's full gorm.ColumnType introspection should query the backend
// directly.
func (m *Migrator) ColumnTypes(value interface{}) ([]gorm.ColumnType, error) {
	return []gorm.ColumnType{}, nil
}

// CreateConstraint is not supported; this schema's referential integrity
// is enforced at the application layer (internal/track), not via named DB
// constraints.
func (m *Migrator) CreateConstraint(value interface{}, name string) error {
	return gorm.ErrNotImplemented
}

// DropConstraint drops a named constraint.
func (m *Migrator) DropConstraint(value interface{}, name string) error {
	tableName := m.getTableName(value)
	return m.exec("ALTER TABLE " + m.quote(tableName) + " DROP CONSTRAINT " + m.quote(name))
}

// HasConstraint reports false unconditionally; see CreateConstraint.
func (m *Migrator) HasConstraint(value interface{}, name string) bool {
	return false
}

// CreateIndex creates an index from the model's schema index definition.
func (m *Migrator) CreateIndex(value interface{}, name string) error {
	tableName := m.getTableName(value)
	columns := m.resolveIndexColumns(value, name)
	return m.exec("CREATE INDEX " + m.quote(name) + " ON " + m.quote(tableName) + " (" + columns + ")")
}

// DropIndex drops an index. MySQL requires the table name; Postgres and
// SQLite address an index by name alone.
func (m *Migrator) DropIndex(value interface{}, name string) error {
	if m.Dialector.Name() == "mysql" {
		tableName := m.getTableName(value)
		return m.exec("DROP INDEX " + m.quote(name) + " ON " + m.quote(tableName))
	}
	return m.exec("DROP INDEX " + m.quote(name))
}

// HasIndex reports false unconditionally; the Schema Catalog does not
// model indexes, only columns and keys.
func (m *Migrator) HasIndex(value interface{}, name string) bool {
	return false
}

// RenameIndex renames an index by dropping and re-creating it.
func (m *Migrator) RenameIndex(value interface{}, oldName, newName string) error {
	if err := m.DropIndex(value, oldName); err != nil {
		return err
	}
	return m.CreateIndex(value, newName)
}

// CreateView is not supported.
func (m *Migrator) CreateView(name string, option gorm.ViewOption) error {
	return gorm.ErrNotImplemented
}

// DropView is not supported.
func (m *Migrator) DropView(name string) error {
	return gorm.ErrNotImplemented
}

// CurrentDatabase is not meaningful across all three backend families
// (SQLite has no concept of a named current database); callers needing it
// should ask their own connection directly.
func (m *Migrator) CurrentDatabase() string {
	return ""
}

// FullDataTypeOf returns the complete data type for a field.
func (m *Migrator) FullDataTypeOf(field *gormschema.Field) clause.Expr {
	return clause.Expr{SQL: m.Dialector.DataTypeOf(field)}
}

// GetIndexes is not backed by the catalog.
func (m *Migrator) GetIndexes(value interface{}) ([]gorm.Index, error) {
	return []gorm.Index{}, nil
}

// GetTypeAliases returns no aliases.
func (m *Migrator) GetTypeAliases(typ string) []string {
	return nil
}

// MigrateColumn, MigrateColumnUnique, MigrateTable, MigrateValue: GORM's
// structural-diff AutoMigrate path. Not supported — AutoMigrate here only
// creates missing tables; an existing table's shape is changed through the
// explicit Add/Alter/DropColumn calls above, not an automatic diff.
func (m *Migrator) MigrateColumn(value interface{}, field *gormschema.Field, columnType gorm.ColumnType) error {
	return gorm.ErrNotImplemented
}

func (m *Migrator) MigrateColumnUnique(value interface{}, field *gormschema.Field, columnType gorm.ColumnType) error {
	return gorm.ErrNotImplemented
}

func (m *Migrator) MigrateTable(value interface{}, fields []gormschema.Field, fieldOpts map[string][]string) error {
	return gorm.ErrNotImplemented
}

func (m *Migrator) MigrateValue(value interface{}, field *gormschema.Field, valueRef interface{}) error {
	return gorm.ErrNotImplemented
}

// TableType returns no type information.
func (m *Migrator) TableType(value interface{}) (gorm.TableType, error) {
	return nil, nil
}

// ---------------------------------------------------------------------------
// helpers
// ---------------------------------------------------------------------------

func (m *Migrator) quote(name string) string {
	return m.client().Dialect().Quote(name)
}

func escapeStringValue(s string) string {
	s = strings.ReplaceAll(s, `\`, `\\`)
	s = strings.ReplaceAll(s, `'`, `''`)
	return s
}

// getTableName resolves the table name from various value types, using
// GORM's schema parser (and its NamingStrategy) for model structs.
func (m *Migrator) getTableName(value interface{}) string {
	if str, ok := value.(string); ok {
		return str
	}
	if s, ok := value.(*gormschema.Schema); ok {
		return s.Table
	}
	if ptrStr, ok := value.(*string); ok {
		return *ptrStr
	}

	s, err := gormschema.Parse(value, &sync.Map{}, gormschema.NamingStrategy{})
	if err == nil {
		return s.Table
	}

	typ := fmt.Sprintf("%T", value)
	typeName := strings.TrimPrefix(typ, "*")
	if idx := strings.LastIndex(typeName, "."); idx != -1 {
		typeName = typeName[idx+1:]
	}
	return strings.ToLower(typeName)
}

// resolveColumnType looks up a field in the model's schema and returns its
// SQL type. Falls back to VARCHAR(255) if the schema can't be parsed.
func (m *Migrator) resolveColumnType(value interface{}, fieldName string) string {
	s, err := gormschema.Parse(value, &sync.Map{}, gormschema.NamingStrategy{})
	if err != nil {
		return "VARCHAR(255)"
	}
	for _, f := range s.Fields {
		if f.DBName == fieldName || f.Name == fieldName {
			return m.Dialector.DataTypeOf(f)
		}
	}
	return "VARCHAR(255)"
}

// resolveIndexColumns looks up an index definition in the model's schema
// and returns its comma-separated quoted column list. Falls back to "id".
func (m *Migrator) resolveIndexColumns(value interface{}, indexName string) string {
	s, err := gormschema.Parse(value, &sync.Map{}, gormschema.NamingStrategy{})
	if err != nil {
		return m.quote("id")
	}
	for _, idx := range s.ParseIndexes() {
		if idx.Name == indexName {
			cols := make([]string, 0, len(idx.Fields))
			for _, f := range idx.Fields {
				cols = append(cols, m.quote(f.Field.DBName))
			}
			if len(cols) > 0 {
				return strings.Join(cols, ", ")
			}
		}
	}
	return m.quote("id")
}

// createTableSQL generates a CREATE TABLE statement from a parsed GORM
// schema with column types, primary keys, and defaults.
func (m *Migrator) createTableSQL(s *gormschema.Schema) string {
	var columnDefs []string
	var primaryKeys []string

	for _, field := range s.Fields {
		if field.DBName == "" {
			continue
		}
		colName := field.DBName
		colType := m.Dialector.DataTypeOf(field)
		def := m.quote(colName) + " " + colType

		if field.PrimaryKey {
			primaryKeys = append(primaryKeys, m.quote(colName))
		}
		if !field.PrimaryKey && !field.Unique {
			def += " NULL"
		}

		if field.DefaultValue != "" && field.DefaultValue != "nil" {
			defaultVal := field.DefaultValue
			if field.DefaultValueInterface != nil {
				if _, isString := field.DefaultValueInterface.(string); isString {
					defaultVal = "'" + escapeStringValue(defaultVal) + "'"
				} else {
					defaultVal = fmt.Sprintf("%v", field.DefaultValueInterface)
				}
			}
			def += " DEFAULT " + defaultVal
		}

		if field.AutoIncrement && m.Dialector.Name() != "postgres" {
			def += " AUTO_INCREMENT"
		}
		if field.Unique {
			def += " UNIQUE"
		}

		columnDefs = append(columnDefs, def)
	}

	sql := "CREATE TABLE IF NOT EXISTS " + m.quote(s.Table) + " (" + strings.Join(columnDefs, ", ")
	if len(primaryKeys) > 0 {
		sql += ", PRIMARY KEY (" + strings.Join(primaryKeys, ", ") + ")"
	}
	sql += ")"
	return sql
}
