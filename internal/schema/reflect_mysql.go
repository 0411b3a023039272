package schema

import (
	"database/sql"

	"github.com/kasuganosora/syncbase/internal/dbutil"
	"github.com/kasuganosora/syncbase/internal/model"
)

// MySQLReflector reads table metadata from information_schema.
type MySQLReflector struct {
	DB       *sql.DB
	Database string
}

func (r *MySQLReflector) ReflectTables() ([]model.TableSchema, error) {
	rows, err := r.DB.Query(
		`SELECT table_name, column_name, data_type, character_maximum_length, column_key
		 FROM information_schema.columns
		 WHERE table_schema = ?
		 ORDER BY table_name, ordinal_position`, r.Database)
	if err != nil {
		return nil, model.NewBackendError("reflect_tables", err)
	}
	cols, err := dbutil.ScanRows(rows)
	if err != nil {
		return nil, err
	}

	byTable := map[string]*model.TableSchema{}
	order := []string{}
	for _, c := range cols {
		name, _ := c["table_name"].(string)
		t, ok := byTable[name]
		if !ok {
			t = &model.TableSchema{Name: name}
			byTable[name] = t
			order = append(order, name)
		}
		size := 0
		if n, ok := c["character_maximum_length"].(int64); ok {
			size = int(n)
		}
		t.Columns = append(t.Columns, model.ColumnSchema{
			Name: stringOf(c["column_name"]),
			Type: stringOf(c["data_type"]),
			Size: size,
		})
		if stringOf(c["column_key"]) == "PRI" {
			t.PrimaryKey = append(t.PrimaryKey, stringOf(c["column_name"]))
		}
	}

	fkRows, err := r.DB.Query(
		`SELECT table_name, column_name, referenced_table_name, referenced_column_name
		 FROM information_schema.key_column_usage
		 WHERE table_schema = ? AND referenced_table_name IS NOT NULL`, r.Database)
	if err != nil {
		return nil, model.NewBackendError("reflect_fks", err)
	}
	fks, err := dbutil.ScanRows(fkRows)
	if err != nil {
		return nil, err
	}
	for _, fk := range fks {
		name, _ := fk["table_name"].(string)
		t, ok := byTable[name]
		if !ok {
			continue
		}
		t.ForeignKeys = append(t.ForeignKeys, model.ForeignKey{
			ThisColumn:   stringOf(fk["column_name"]),
			TargetTable:  stringOf(fk["referenced_table_name"]),
			TargetColumn: stringOf(fk["referenced_column_name"]),
		})
	}

	out := make([]model.TableSchema, 0, len(order))
	for _, name := range order {
		out = append(out, *byTable[name])
	}
	return out, nil
}

func (r *MySQLReflector) DBVersion() (int64, bool, error) {
	return queryDBVersion(r.DB, "SELECT version FROM db_version LIMIT 1")
}

func stringOf(v interface{}) string {
	s, _ := v.(string)
	return s
}

func queryDBVersion(db *sql.DB, q string) (int64, bool, error) {
	var v int64
	err := db.QueryRow(q).Scan(&v)
	if err == sql.ErrNoRows {
		return 0, false, nil
	}
	if err != nil {
		// A missing db_version table is not an error condition the
		// caller needs to see — it just means no override exists.
		return 0, false, nil
	}
	return v, true, nil
}
