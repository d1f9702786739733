package dbv

import (
	"context"
	"database/sql"
	"time"

	"github.com/pkg/errors"
	"go.uber.org/zap"
)

// Database runs generated and hand-written SQL for one dialect over a
// *sql.DB. Inside Transaction and DryRun the same type runs on the
// transaction instead.
type Database struct {
	db      *sql.DB
	tx      *sql.Tx
	def     Definition
	logger  *zap.Logger
	metrics *Metrics
}

// Option configures a Database.
type Option func(*Database)

// WithLogger logs every statement at debug level and failures at error level.
func WithLogger(l *zap.Logger) Option {
	return func(d *Database) {
		if l != nil {
			d.logger = l
		}
	}
}

// WithMetrics records statement durations and failures.
func WithMetrics(m *Metrics) Option {
	return func(d *Database) { d.metrics = m }
}

// New wraps an open pool.
//
//	pool, _ := sql.Open("sqlite", "file:cars.db")
//	db := dbv.New(pool, dbv.SQLite(), dbv.WithLogger(logger))
func New(pool *sql.DB, def Definition, opts ...Option) *Database {
	d := &Database{db: pool, def: def, logger: zap.NewNop()}
	for _, o := range opts {
		o(d)
	}
	return d
}

// Definition returns the dialect of the database.
func (d *Database) Definition() Definition { return d.def }

// DB returns the underlying pool.
func (d *Database) DB() *sql.DB { return d.db }

// Close closes the underlying pool.
func (d *Database) Close() error {
	if d.db != nil {
		return d.db.Close()
	}
	return nil
}

func (d *Database) conn() executor {
	if d.tx != nil {
		return d.tx
	}
	return d.db
}

// QueryContext runs a query as written, with logging and metrics.
func (d *Database) QueryContext(ctx context.Context, query string, args ...any) (rows *sql.Rows, err error) {
	defer d.sendStats(time.Now(), "QueryContext", query, len(args), &err)
	return d.conn().QueryContext(ctx, query, args...)
}

// ExecContext runs a statement as written, with logging and metrics.
func (d *Database) ExecContext(ctx context.Context, query string, args ...any) (res sql.Result, err error) {
	defer d.sendStats(time.Now(), "ExecContext", query, len(args), &err)
	return d.conn().ExecContext(ctx, query, args...)
}

func (d *Database) query(ctx context.Context, st Statement) (*sql.Rows, error) {
	return d.QueryContext(ctx, st.SQL, st.Args...)
}

func (d *Database) exec(ctx context.Context, st Statement) (sql.Result, error) {
	return d.ExecContext(ctx, st.SQL, st.Args...)
}

// Transaction runs fn in a transaction. It commits when fn returns nil and
// rolls back when fn fails or panics. Called on a Database that is already
// in a transaction, fn joins it.
func (d *Database) Transaction(ctx context.Context, fn func(tx *Database) error) (err error) {
	if d.tx != nil {
		return fn(d)
	}
	tx, err := d.begin(ctx)
	if err != nil {
		return err
	}
	defer func() {
		if p := recover(); p != nil {
			d.rollback(tx)
			panic(p)
		}
	}()
	if err := fn(d.withTx(tx)); err != nil {
		d.rollback(tx)
		return err
	}
	defer d.sendStats(time.Now(), "TxCommit", "COMMIT", 0, &err)
	return errors.Wrap(tx.Commit(), "dbv: commit")
}

// DryRun runs fn in a transaction that is always rolled back, so generated
// keys and constraint checks can be observed without keeping any change.
func (d *Database) DryRun(ctx context.Context, fn func(tx *Database) error) error {
	if d.tx != nil {
		return ErrNestedDryRun
	}
	tx, err := d.begin(ctx)
	if err != nil {
		return err
	}
	defer d.rollback(tx)
	return fn(d.withTx(tx))
}

func (d *Database) begin(ctx context.Context) (*sql.Tx, error) {
	tx, err := d.db.BeginTx(ctx, nil)
	if err != nil {
		d.logger.Error("begin transaction", zap.Error(err))
		return nil, errors.Wrap(err, "dbv: begin")
	}
	return tx, nil
}

func (d *Database) rollback(tx *sql.Tx) {
	var err error
	defer d.sendStats(time.Now(), "TxRollback", "ROLLBACK", 0, &err)
	err = tx.Rollback()
}

func (d *Database) withTx(tx *sql.Tx) *Database {
	cp := *d
	cp.tx = tx
	return &cp
}

// CreateTable creates the table of row.
//
//	err := db.CreateTable(ctx, &Marque{}, dbv.IfNotExists(), dbv.WithForeignKeys())
func (d *Database) CreateTable(ctx context.Context, row Row, opts ...TableOption) error {
	st, err := CreateTableStatement(d.def, row, opts...)
	if err != nil {
		return err
	}
	_, err = d.exec(ctx, st)
	return errors.Wrap(err, "dbv: create table")
}

// DropTable drops the table of row.
func (d *Database) DropTable(ctx context.Context, row Row, ifExists bool) error {
	info, err := Inspect(row)
	if err != nil {
		return err
	}
	_, err = d.ExecContext(ctx, d.def.DropTable(d.def.QuoteIdentifier(info.Name), ifExists))
	return errors.Wrapf(err, "dbv: drop table %s", info.Name)
}
