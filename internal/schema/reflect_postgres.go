package schema

import (
	"database/sql"

	"github.com/kasuganosora/syncbase/internal/dbutil"
	"github.com/kasuganosora/syncbase/internal/model"
)

// PostgresReflector reads table metadata from information_schema and
// pg_constraint, scoped to the "public" schema.
type PostgresReflector struct {
	DB *sql.DB
}

func (r *PostgresReflector) ReflectTables() ([]model.TableSchema, error) {
	rows, err := r.DB.Query(
		`SELECT c.table_name, c.column_name, c.data_type,
		        COALESCE(c.character_maximum_length, 0)
		 FROM information_schema.columns c
		 WHERE c.table_schema = 'public'
		 ORDER BY c.table_name, c.ordinal_position`)
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
		name := stringOf(c["table_name"])
		t, ok := byTable[name]
		if !ok {
			t = &model.TableSchema{Name: name}
			byTable[name] = t
			order = append(order, name)
		}
		size := 0
		if n, ok := c["coalesce"].(int64); ok {
			size = int(n)
		}
		t.Columns = append(t.Columns, model.ColumnSchema{
			Name: stringOf(c["column_name"]),
			Type: stringOf(c["data_type"]),
			Size: size,
		})
	}

	pkRows, err := r.DB.Query(
		`SELECT tc.table_name, kcu.column_name
		 FROM information_schema.table_constraints tc
		 JOIN information_schema.key_column_usage kcu
		   ON tc.constraint_name = kcu.constraint_name AND tc.table_schema = kcu.table_schema
		 WHERE tc.constraint_type = 'PRIMARY KEY' AND tc.table_schema = 'public'
		 ORDER BY tc.table_name, kcu.ordinal_position`)
	if err != nil {
		return nil, model.NewBackendError("reflect_pks", err)
	}
	pks, err := dbutil.ScanRows(pkRows)
	if err != nil {
		return nil, err
	}
	for _, pk := range pks {
		name := stringOf(pk["table_name"])
		if t, ok := byTable[name]; ok {
			t.PrimaryKey = append(t.PrimaryKey, stringOf(pk["column_name"]))
		}
	}

	fkRows, err := r.DB.Query(
		`SELECT tc.table_name, kcu.column_name, ccu.table_name AS target_table, ccu.column_name AS target_column
		 FROM information_schema.table_constraints tc
		 JOIN information_schema.key_column_usage kcu
		   ON tc.constraint_name = kcu.constraint_name AND tc.table_schema = kcu.table_schema
		 JOIN information_schema.constraint_column_usage ccu
		   ON tc.constraint_name = ccu.constraint_name AND tc.table_schema = ccu.table_schema
		 WHERE tc.constraint_type = 'FOREIGN KEY' AND tc.table_schema = 'public'`)
	if err != nil {
		return nil, model.NewBackendError("reflect_fks", err)
	}
	fks, err := dbutil.ScanRows(fkRows)
	if err != nil {
		return nil, err
	}
	for _, fk := range fks {
		name := stringOf(fk["table_name"])
		if t, ok := byTable[name]; ok {
			t.ForeignKeys = append(t.ForeignKeys, model.ForeignKey{
				ThisColumn:   stringOf(fk["column_name"]),
				TargetTable:  stringOf(fk["target_table"]),
				TargetColumn: stringOf(fk["target_column"]),
			})
		}
	}

	out := make([]model.TableSchema, 0, len(order))
	for _, name := range order {
		out = append(out, *byTable[name])
	}
	return out, nil
}

func (r *PostgresReflector) DBVersion() (int64, bool, error) {
	return queryDBVersion(r.DB, "SELECT version FROM db_version LIMIT 1")
}
