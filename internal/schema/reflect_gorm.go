package schema

import (
	"gorm.io/gorm"

	"github.com/kasuganosora/syncbase/internal/model"
)

// GormReflector lets a caller hand the catalog a *gorm.DB instead of a raw
// DSN — used when the Access Client is mediated through internal/ormbridge
// rather than a direct database/sql connection. Reflection itself is
// delegated to the matching per-family Reflector against the *sql.DB gorm
// already holds, since gorm.Migrator's low-level column/FK introspection is
// itself backend-specific and information_schema/pragma queries already
// cover every family this catalog supports.
type GormReflector struct {
	DB *gorm.DB
}

func (r *GormReflector) ReflectTables() ([]model.TableSchema, error) {
	inner, err := r.delegate()
	if err != nil {
		return nil, err
	}
	return inner.ReflectTables()
}

func (r *GormReflector) DBVersion() (int64, bool, error) {
	inner, err := r.delegate()
	if err != nil {
		return 0, false, err
	}
	return inner.DBVersion()
}

func (r *GormReflector) delegate() (Reflector, error) {
	sqlDB, err := r.DB.DB()
	if err != nil {
		return nil, model.NewBackendError("gorm.DB", err)
	}
	switch r.DB.Dialector.Name() {
	case "mysql":
		return &MySQLReflector{DB: sqlDB, Database: r.DB.Migrator().CurrentDatabase()}, nil
	case "postgres":
		return &PostgresReflector{DB: sqlDB}, nil
	case "sqlite":
		return &SQLiteReflector{DB: sqlDB}, nil
	default:
		return nil, model.NewConfigurationError("no schema reflector registered for gorm dialect %q", r.DB.Dialector.Name())
	}
}
