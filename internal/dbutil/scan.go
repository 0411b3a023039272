// Package dbutil holds small database/sql helpers shared by the schema
// catalog, access client and sync engine, grounded on the
// column-types-then-scan-into-interface{} pattern used throughout
// mysql_source.go's Query method.
package dbutil

import (
	"database/sql"

	"github.com/kasuganosora/syncbase/internal/model"
)

// ScanRows drains rows into a slice of generic records, keyed by column
// name. Byte slices coming back from drivers that return TEXT/VARCHAR as
// []byte are converted to string so callers never have to special-case it.
func ScanRows(rows *sql.Rows) ([]model.Record, error) {
	defer rows.Close()

	cols, err := rows.Columns()
	if err != nil {
		return nil, model.NewBackendError("columns", err)
	}

	var out []model.Record
	for rows.Next() {
		values := make([]interface{}, len(cols))
		scanArgs := make([]interface{}, len(cols))
		for i := range scanArgs {
			scanArgs[i] = &values[i]
		}
		if err := rows.Scan(scanArgs...); err != nil {
			return nil, model.NewBackendError("scan", err)
		}
		rec := make(model.Record, len(cols))
		for i, col := range cols {
			rec[col] = normalize(values[i])
		}
		out = append(out, rec)
	}
	if err := rows.Err(); err != nil {
		return nil, model.NewBackendError("rows", err)
	}
	return out, nil
}

func normalize(v interface{}) interface{} {
	if b, ok := v.([]byte); ok {
		return string(b)
	}
	return v
}
