package dbv

import (
	"context"
	"database/sql"
)

// GetRow executes the SQL query and maps the first result row into a new T
// by column name, like ScanRows.
//
// It returns [sql.ErrNoRows] if the query yields no rows and ignores any rows
// after the first; add LIMIT 1 (or an equivalent WHERE clause) when you
// require at most one row.
//
// Example:
//
//	m, err := dbv.GetRow[*Marque](ctx, db, `SELECT * FROM marque WHERE uid_marque = ?`, 1)
//	if errors.Is(err, sql.ErrNoRows) {
//	    // handle not found
//	}
func GetRow[T Row](ctx context.Context, q Querier, query string, args ...any) (out T, err error) {
	var zero T
	info, err := rowTypeInfo(zero)
	if err != nil {
		return zero, err
	}
	rows, err := q.QueryContext(ctx, query, args...)
	if err != nil {
		return zero, err
	}
	// Ensure Close error is propagated if no earlier error occurred.
	defer func() {
		if cerr := rows.Close(); cerr != nil && err == nil {
			err = cerr
		}
	}()

	cols, err := rows.Columns()
	if err != nil {
		return zero, err
	}
	if !rows.Next() {
		if ne := rows.Err(); ne != nil {
			return zero, ne
		}
		return zero, sql.ErrNoRows
	}
	rv, err := newRowScanner(getMapper().getPlan(info, cols)).scan(rows)
	if err != nil {
		return zero, err
	}
	return rv.Interface().(T), nil
}
