package dbv

import (
	"github.com/pkg/errors"
)

var (
	// ErrNotARow is returned when a value is not a pointer to a struct that
	// embeds [Table].
	ErrNotARow = errors.New("dbv: value is not a row (pointer to struct embedding dbv.Table)")

	// ErrColumnNotFound is returned when a field pointer does not belong to
	// any mapped column of the row it was resolved against.
	ErrColumnNotFound = errors.New("dbv: field is not a mapped column of the row")

	// ErrColumnNotInQuery is returned when a condition or sort refers to a
	// row that was never added to the query.
	ErrColumnNotInQuery = errors.New("dbv: column belongs to a row that is not part of the query")

	// ErrNoPrimaryKey is returned by operations that must address rows by
	// primary key when the table has none, or when its value is undefined.
	ErrNoPrimaryKey = errors.New("dbv: row has no usable primary key")

	// ErrBlankQuery is returned when a query or delete would touch every row
	// of a table because no condition was supplied.
	ErrBlankQuery = errors.New("dbv: blank query: no conditions were supplied")

	// ErrCartesianJoin is returned when some tables of a query cannot be
	// reached from the others through foreign keys.
	ErrCartesianJoin = errors.New("dbv: accidental cartesian join: tables are not connected")

	// ErrBadForeignKey is returned when a foreign key names a column its
	// target table does not have.
	ErrBadForeignKey = errors.New("dbv: foreign key references an unknown column")

	// ErrDuplicateTable is returned when the same row type is added to a query twice.
	ErrDuplicateTable = errors.New("dbv: table already added to query")

	// ErrUnexpectedRowCount is returned by GetOnly and GetByPrimaryKey when
	// the number of returned rows differs from the expected count.
	ErrUnexpectedRowCount = errors.New("dbv: unexpected number of rows")

	// ErrUnsupportedDialect is returned for unknown dialect names.
	ErrUnsupportedDialect = errors.New("dbv: unsupported dialect")

	// ErrNoTables is returned when a query is executed without any row.
	ErrNoTables = errors.New("dbv: query has no tables")

	// ErrNestedDryRun is returned by DryRun inside a transaction, which it
	// could not roll back on its own.
	ErrNestedDryRun = errors.New("dbv: dry run inside a transaction")
)
