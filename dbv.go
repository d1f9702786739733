package dbv

import (
	"context"
	"database/sql"
)

// Querier is implemented by *sql.DB, *sql.Tx, *sql.Conn, *Database and any
// wrapper that can execute a query returning rows.
type Querier interface {
	QueryContext(ctx context.Context, query string, args ...any) (*sql.Rows, error)
}

// Execer is implemented by *sql.DB, *sql.Tx, *sql.Conn, *Database and any
// wrapper that can execute a statement that does not return rows.
type Execer interface {
	ExecContext(ctx context.Context, query string, args ...any) (sql.Result, error)
}

// executor is the part of *sql.DB and *sql.Tx a Database runs statements on.
type executor interface {
	Querier
	Execer
}

// Statement is one rendered SQL statement with its positional arguments.
type Statement struct {
	SQL  string
	Args []any
}
