package dbv

import (
	"context"
	"database/sql"
)

// Exec executes a statement that does not return rows on any Execer
// (*sql.DB, *sql.Tx, *sql.Conn), binding :named or positional parameters and
// rewriting placeholders for def.
//
// Example:
//
//	res, err := dbv.Exec(ctx, tx, dbv.Postgres(),
//	    `UPDATE marque SET name = :name WHERE uid_marque = :id`,
//	    map[string]any{"name": "TOYOTA", "id": 4893059})
//	if err != nil {
//	    log.Fatal(err)
//	}
//	n, _ := res.RowsAffected()
//
// Use Database.ExecSQL to get statement logging and metrics as well.
func Exec(ctx context.Context, e Execer, def Definition, query string, params ...any) (sql.Result, error) {
	bound, args, err := rebind(def.Placeholder(), def, query, params...)
	if err != nil {
		return nil, err
	}
	return e.ExecContext(ctx, bound, args...)
}
