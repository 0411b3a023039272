package schema

import (
	"database/sql"

	"github.com/kasuganosora/syncbase/internal/dbutil"
	"github.com/kasuganosora/syncbase/internal/model"
)

// SQLiteReflector reads table metadata via sqlite_master and the
// table_info/foreign_key_list pragmas.
type SQLiteReflector struct {
	DB *sql.DB
}

func (r *SQLiteReflector) ReflectTables() ([]model.TableSchema, error) {
	nameRows, err := r.DB.Query(`SELECT name FROM sqlite_master WHERE type = 'table' AND name NOT LIKE 'sqlite_%'`)
	if err != nil {
		return nil, model.NewBackendError("reflect_tables", err)
	}
	names, err := dbutil.ScanRows(nameRows)
	if err != nil {
		return nil, err
	}

	out := make([]model.TableSchema, 0, len(names))
	for _, n := range names {
		name := stringOf(n["name"])
		t := model.TableSchema{Name: name}

		colRows, err := r.DB.Query(`SELECT name, type, pk FROM pragma_table_info(?)`, name)
		if err != nil {
			return nil, model.NewBackendError("table_info:"+name, err)
		}
		cols, err := dbutil.ScanRows(colRows)
		if err != nil {
			return nil, err
		}
		for _, c := range cols {
			t.Columns = append(t.Columns, model.ColumnSchema{
				Name: stringOf(c["name"]),
				Type: stringOf(c["type"]),
			})
			if pk, ok := c["pk"].(int64); ok && pk > 0 {
				t.PrimaryKey = append(t.PrimaryKey, stringOf(c["name"]))
			}
		}

		fkRows, err := r.DB.Query(`SELECT "from", "table", "to" FROM pragma_foreign_key_list(?)`, name)
		if err != nil {
			return nil, model.NewBackendError("fk_list:"+name, err)
		}
		fks, err := dbutil.ScanRows(fkRows)
		if err != nil {
			return nil, err
		}
		for _, fk := range fks {
			t.ForeignKeys = append(t.ForeignKeys, model.ForeignKey{
				ThisColumn:   stringOf(fk["from"]),
				TargetTable:  stringOf(fk["table"]),
				TargetColumn: stringOf(fk["to"]),
			})
		}

		out = append(out, t)
	}
	return out, nil
}

func (r *SQLiteReflector) DBVersion() (int64, bool, error) {
	return queryDBVersion(r.DB, "SELECT version FROM db_version LIMIT 1")
}
