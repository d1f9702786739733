package dbv

import (
	"context"
	"database/sql"

	"github.com/XSAM/otelsql"
	"github.com/pkg/errors"
	"go.opentelemetry.io/otel/attribute"
	"go.uber.org/zap"

	// Registers the "sqlite" driver.
	_ "modernc.org/sqlite"
)

// Open connects to the database described by s and checks it is reachable.
// The mysql, postgres and sqlite drivers are linked in; SQL Server and
// Oracle need their driver registered by the caller and an explicit DSN.
func Open(ctx context.Context, s Settings, opts ...Option) (*Database, error) {
	def, err := DefinitionFor(s.Dialect)
	if err != nil {
		return nil, err
	}
	dsn, err := s.DataSourceName()
	if err != nil {
		return nil, err
	}

	var pool *sql.DB
	if s.Tracing {
		pool, err = otelsql.Open(def.DriverName(), dsn,
			otelsql.WithAttributes(attribute.String("db.system", def.Name())))
	} else {
		pool, err = sql.Open(def.DriverName(), dsn)
	}
	if err != nil {
		return nil, errors.Wrapf(err, "dbv: open %s", def.Name())
	}

	if s.MaxOpenConns > 0 {
		pool.SetMaxOpenConns(s.MaxOpenConns)
	}
	if s.MaxIdleConns > 0 {
		pool.SetMaxIdleConns(s.MaxIdleConns)
	}
	if s.ConnMaxLifetime > 0 {
		pool.SetConnMaxLifetime(s.ConnMaxLifetime)
	}
	// Every connection to :memory: is a separate database.
	if s.inMemory() {
		pool.SetMaxOpenConns(1)
	}

	if err := pool.PingContext(ctx); err != nil {
		_ = pool.Close()
		return nil, errors.Wrapf(err, "dbv: ping %s", def.Name())
	}

	db := New(pool, def, opts...)
	db.logger.Info("database opened",
		zap.String("dialect", def.Name()),
		zap.String("database", s.Database),
		zap.Bool("tracing", s.Tracing))
	return db, nil
}
