package dbv

import (
	"context"
	"database/sql"
	"database/sql/driver"
	"errors"
	"io"
	"testing"

	"github.com/DATA-DOG/go-sqlmock"
	"github.com/stretchr/testify/require"
)

type CarCompany struct {
	Table `dbv:"car_company"`
	ID    DBInteger `dbv:"uid_carcompany,pk,autoincrement"`
	Name  DBString  `dbv:"name"`
}

type Marque struct {
	Table        `dbv:"marque"`
	ID           DBInteger `dbv:"uid_marque,pk,autoincrement"`
	Name         DBString  `dbv:"name"`
	NumericCode  DBNumber  `dbv:"numeric_code"`
	Enabled      DBBoolean `dbv:"enabled"`
	CreationDate DBDate    `dbv:"creation_date"`
	CarCompanyID DBInteger `dbv:"fk_carcompany,fk=car_company.uid_carcompany"`
}

// Tag has no primary key.
type Tag struct {
	Table
	Label DBString `dbv:"label"`
	Note  DBString
}

type DBHandler func(query string, args []driver.NamedValue) (cols []string, rows [][]driver.Value, err error)

type testConnector struct {
	h DBHandler
}

func (c *testConnector) Connect(context.Context) (driver.Conn, error) { return &testConn{h: c.h}, nil }
func (c *testConnector) Driver() driver.Driver                        { return testDriver{} }

type testDriver struct{}

func (testDriver) Open(name string) (driver.Conn, error) {
	return nil, errors.New("testDriver.Open should not be called; use sql.OpenDB with connector")
}

type testConn struct {
	h DBHandler
}

func (c *testConn) Prepare(string) (driver.Stmt, error) { return nil, driver.ErrSkip }
func (c *testConn) Close() error                        { return nil }
func (c *testConn) Begin() (driver.Tx, error)           { return nil, driver.ErrSkip }

func (c *testConn) QueryContext(ctx context.Context, query string, args []driver.NamedValue) (driver.Rows, error) {
	cols, data, err := c.h(query, args)
	if err != nil {
		return nil, err
	}
	return &testRows{cols: cols, data: data}, nil
}

type testRows struct {
	cols []string
	data [][]driver.Value
	i    int
}

func (r *testRows) Columns() []string { return append([]string(nil), r.cols...) }
func (r *testRows) Close() error      { return nil }
func (r *testRows) Next(dest []driver.Value) error {
	if r.i >= len(r.data) {
		return io.EOF
	}
	row := r.data[r.i]
	for i := range dest {
		if i < len(row) {
			dest[i] = row[i]
		} else {
			dest[i] = nil
		}
	}
	r.i++
	return nil
}

// newTestDB creates a *sql.DB backed by the in-memory test driver.
func newTestDB(t *testing.T, h DBHandler) *sql.DB {
	t.Helper()
	return sql.OpenDB(&testConnector{h: h})
}

// newMockDB returns a Database over go-sqlmock matching statements exactly.
func newMockDB(t *testing.T, def Definition, opts ...Option) (*Database, sqlmock.Sqlmock) {
	t.Helper()
	pool, mock, err := sqlmock.New(sqlmock.QueryMatcherOption(sqlmock.QueryMatcherEqual))
	require.NoError(t, err)
	t.Cleanup(func() { _ = pool.Close() })
	return New(pool, def, opts...), mock
}

// newSQLiteDB opens an in-memory SQLite database with the car tables created.
func newSQLiteDB(t *testing.T, opts ...Option) *Database {
	t.Helper()
	db, err := Open(context.Background(), Settings{Dialect: "sqlite"}, opts...)
	require.NoError(t, err)
	t.Cleanup(func() { _ = db.Close() })

	ctx := context.Background()
	require.NoError(t, db.CreateTable(ctx, &CarCompany{}, IfNotExists()))
	require.NoError(t, db.CreateTable(ctx, &Marque{}, IfNotExists(), WithForeignKeys()))
	return db
}

func newCompany(name string) *CarCompany {
	c := &CarCompany{}
	c.Name.Set(name)
	return c
}

func newMarque(name string, company *CarCompany) *Marque {
	m := &Marque{}
	m.Name.Set(name)
	m.Enabled.Set(true)
	m.NumericCode.Set(1.5)
	if company != nil {
		m.CarCompanyID.Set(company.ID.Value())
	}
	return m
}
