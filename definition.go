package dbv

import (
	"strconv"
	"strings"

	"github.com/google/uuid"
	"github.com/lib/pq"
	"github.com/pkg/errors"
)

// KeyStrategy is how a dialect hands back generated primary keys after INSERT.
type KeyStrategy uint8

const (
	// NoGeneratedKeys leaves generated keys unset on the row.
	NoGeneratedKeys KeyStrategy = iota
	// LastInsertID uses sql.Result.LastInsertId.
	LastInsertID
	// Returning appends RETURNING <key> and reads it as a row.
	Returning
	// OutputInserted adds OUTPUT INSERTED.<key> before VALUES and reads it as a row.
	OutputInserted
)

// Definition produces the dialect-specific fragments of generated SQL.
// Vendor definitions embed ansiDefinition and override what differs.
type Definition interface {
	// Name is the canonical dialect name ("mysql", "postgres", ...).
	Name() string
	// DriverName is the database/sql driver the dialect is opened with.
	DriverName() string
	Placeholder() Placeholder
	QuoteIdentifier(name string) string
	// TableAlias renders an aliased table (or subquery) reference.
	TableAlias(table, alias string) string
	ColumnType(kind ColumnKind) string
	// AutoIncrementColumn returns the column definition of a generated key.
	// inlinePK reports that it already declares the primary key.
	AutoIncrementColumn(kind ColumnKind) (spec string, inlinePK bool)
	CreateTable(ifNotExists bool) string
	DropTable(table string, ifExists bool) string
	InsertDefaultValues(table string) string
	// PageClause renders limit/offset; ordered reports an ORDER BY is present.
	PageClause(limit, offset int, ordered bool) string
	Lower(expr string) string
	TrueCondition() string
	FalseCondition() string
	// ConvertValue adapts a column value before it is bound.
	ConvertValue(kind ColumnKind, v any) any
	KeyStrategy() KeyStrategy
}

// ansiDefinition holds the defaults shared by most databases.
type ansiDefinition struct{}

func (ansiDefinition) Placeholder() Placeholder { return PlaceholderQuestion }

func (ansiDefinition) QuoteIdentifier(name string) string {
	return `"` + strings.ReplaceAll(name, `"`, `""`) + `"`
}

func (ansiDefinition) TableAlias(table, alias string) string { return table + " AS " + alias }

func (ansiDefinition) CreateTable(ifNotExists bool) string {
	if ifNotExists {
		return "CREATE TABLE IF NOT EXISTS "
	}
	return "CREATE TABLE "
}

func (ansiDefinition) DropTable(table string, ifExists bool) string {
	if ifExists {
		return "DROP TABLE IF EXISTS " + table
	}
	return "DROP TABLE " + table
}

func (ansiDefinition) InsertDefaultValues(table string) string {
	return "INSERT INTO " + table + " DEFAULT VALUES"
}

func (ansiDefinition) PageClause(limit, offset int, _ bool) string {
	var b strings.Builder
	if limit > 0 {
		b.WriteString(" LIMIT ")
		b.WriteString(strconv.Itoa(limit))
	}
	if offset > 0 {
		b.WriteString(" OFFSET ")
		b.WriteString(strconv.Itoa(offset))
	}
	return b.String()
}

func (ansiDefinition) Lower(expr string) string { return "LOWER(" + expr + ")" }
func (ansiDefinition) TrueCondition() string    { return "1=1" }
func (ansiDefinition) FalseCondition() string   { return "1=0" }

func (ansiDefinition) ConvertValue(_ ColumnKind, v any) any {
	if u, ok := v.(uuid.UUID); ok {
		return u.String()
	}
	return v
}

func (ansiDefinition) KeyStrategy() KeyStrategy { return LastInsertID }

// MySQLDefinition targets MySQL and MariaDB.
type MySQLDefinition struct{ ansiDefinition }

func (MySQLDefinition) Name() string       { return "mysql" }
func (MySQLDefinition) DriverName() string { return "mysql" }

func (MySQLDefinition) QuoteIdentifier(name string) string {
	return "`" + strings.ReplaceAll(name, "`", "``") + "`"
}

func (MySQLDefinition) ColumnType(kind ColumnKind) string {
	switch kind {
	case KindInteger:
		return "BIGINT"
	case KindNumber:
		return "DOUBLE"
	case KindBoolean:
		return "BOOLEAN"
	case KindDate:
		return "DATETIME(6)"
	case KindBytes:
		return "LONGBLOB"
	case KindUUID:
		return "CHAR(36)"
	default:
		return "VARCHAR(1000)"
	}
}

func (d MySQLDefinition) AutoIncrementColumn(kind ColumnKind) (string, bool) {
	return d.ColumnType(kind) + " AUTO_INCREMENT", false
}

func (MySQLDefinition) InsertDefaultValues(table string) string {
	return "INSERT INTO " + table + " () VALUES ()"
}

func (MySQLDefinition) PageClause(limit, offset int, _ bool) string {
	if limit <= 0 && offset <= 0 {
		return ""
	}
	if limit <= 0 {
		// MySQL has no OFFSET without LIMIT.
		return " LIMIT 18446744073709551615 OFFSET " + strconv.Itoa(offset)
	}
	return ansiDefinition{}.PageClause(limit, offset, true)
}

// PostgresDefinition targets PostgreSQL and wire-compatible databases.
type PostgresDefinition struct{ ansiDefinition }

func (PostgresDefinition) Name() string             { return "postgres" }
func (PostgresDefinition) DriverName() string       { return "postgres" }
func (PostgresDefinition) Placeholder() Placeholder { return PlaceholderDollar }
func (PostgresDefinition) KeyStrategy() KeyStrategy { return Returning }

func (PostgresDefinition) QuoteIdentifier(name string) string { return pq.QuoteIdentifier(name) }

func (PostgresDefinition) ColumnType(kind ColumnKind) string {
	switch kind {
	case KindInteger:
		return "BIGINT"
	case KindNumber:
		return "DOUBLE PRECISION"
	case KindBoolean:
		return "BOOLEAN"
	case KindDate:
		return "TIMESTAMP"
	case KindBytes:
		return "BYTEA"
	case KindUUID:
		return "UUID"
	default:
		return "VARCHAR(1000)"
	}
}

func (PostgresDefinition) AutoIncrementColumn(ColumnKind) (string, bool) {
	return "BIGSERIAL", false
}

// SQLiteDefinition targets SQLite 3.
type SQLiteDefinition struct{ ansiDefinition }

func (SQLiteDefinition) Name() string       { return "sqlite" }
func (SQLiteDefinition) DriverName() string { return "sqlite" }

func (SQLiteDefinition) ColumnType(kind ColumnKind) string {
	switch kind {
	case KindInteger, KindBoolean:
		return "INTEGER"
	case KindNumber:
		return "REAL"
	case KindDate:
		return "DATETIME"
	case KindBytes:
		return "BLOB"
	default:
		return "TEXT"
	}
}

func (SQLiteDefinition) AutoIncrementColumn(ColumnKind) (string, bool) {
	return "INTEGER PRIMARY KEY AUTOINCREMENT", true
}

func (SQLiteDefinition) PageClause(limit, offset int, _ bool) string {
	if limit <= 0 && offset > 0 {
		return " LIMIT -1 OFFSET " + strconv.Itoa(offset)
	}
	return ansiDefinition{}.PageClause(limit, offset, true)
}

// SQLServerDefinition targets Microsoft SQL Server 2016 and later. Its
// driver is not linked by this package.
type SQLServerDefinition struct{ ansiDefinition }

func (SQLServerDefinition) Name() string             { return "sqlserver" }
func (SQLServerDefinition) DriverName() string       { return "sqlserver" }
func (SQLServerDefinition) Placeholder() Placeholder { return PlaceholderAtP }
func (SQLServerDefinition) KeyStrategy() KeyStrategy { return OutputInserted }

func (SQLServerDefinition) QuoteIdentifier(name string) string {
	return "[" + strings.ReplaceAll(name, "]", "]]") + "]"
}

func (SQLServerDefinition) ColumnType(kind ColumnKind) string {
	switch kind {
	case KindInteger:
		return "BIGINT"
	case KindNumber:
		return "FLOAT"
	case KindBoolean:
		return "BIT"
	case KindDate:
		return "DATETIME2"
	case KindBytes:
		return "VARBINARY(MAX)"
	case KindUUID:
		return "UNIQUEIDENTIFIER"
	default:
		return "NVARCHAR(1000)"
	}
}

func (SQLServerDefinition) AutoIncrementColumn(ColumnKind) (string, bool) {
	return "BIGINT IDENTITY(1,1)", false
}

// CreateTable ignores ifNotExists: SQL Server has no such clause.
func (SQLServerDefinition) CreateTable(bool) string { return "CREATE TABLE " }

func (SQLServerDefinition) PageClause(limit, offset int, ordered bool) string {
	return fetchClause(limit, offset, ordered, " ORDER BY (SELECT NULL)")
}

func (SQLServerDefinition) ConvertValue(_ ColumnKind, v any) any {
	return boolAsInt(v)
}

// OracleDefinition targets Oracle 12c and later. Its driver is not linked by
// this package.
type OracleDefinition struct{ ansiDefinition }

func (OracleDefinition) Name() string             { return "oracle" }
func (OracleDefinition) DriverName() string       { return "godror" }
func (OracleDefinition) Placeholder() Placeholder { return PlaceholderColonNum }
func (OracleDefinition) KeyStrategy() KeyStrategy { return NoGeneratedKeys }

// TableAlias omits AS, which Oracle rejects for table aliases.
func (OracleDefinition) TableAlias(table, alias string) string { return table + " " + alias }

func (OracleDefinition) ColumnType(kind ColumnKind) string {
	switch kind {
	case KindInteger:
		return "NUMBER(19)"
	case KindNumber:
		return "BINARY_DOUBLE"
	case KindBoolean:
		return "NUMBER(1)"
	case KindDate:
		return "TIMESTAMP"
	case KindBytes:
		return "BLOB"
	case KindUUID:
		return "CHAR(36)"
	default:
		return "VARCHAR2(1000)"
	}
}

func (OracleDefinition) AutoIncrementColumn(ColumnKind) (string, bool) {
	return "NUMBER(19) GENERATED BY DEFAULT AS IDENTITY", false
}

func (OracleDefinition) CreateTable(bool) string { return "CREATE TABLE " }

func (OracleDefinition) DropTable(table string, _ bool) string { return "DROP TABLE " + table }

func (OracleDefinition) InsertDefaultValues(table string) string {
	return "INSERT INTO " + table + " VALUES (DEFAULT)"
}

func (OracleDefinition) PageClause(limit, offset int, ordered bool) string {
	return fetchClause(limit, offset, ordered, "")
}

func (OracleDefinition) ConvertValue(_ ColumnKind, v any) any {
	return boolAsInt(v)
}

func fetchClause(limit, offset int, ordered bool, orderPrefix string) string {
	if limit <= 0 && offset <= 0 {
		return ""
	}
	var b strings.Builder
	if !ordered {
		b.WriteString(orderPrefix)
	}
	b.WriteString(" OFFSET ")
	b.WriteString(strconv.Itoa(offset))
	b.WriteString(" ROWS")
	if limit > 0 {
		b.WriteString(" FETCH NEXT ")
		b.WriteString(strconv.Itoa(limit))
		b.WriteString(" ROWS ONLY")
	}
	return b.String()
}

func boolAsInt(v any) any {
	switch b := v.(type) {
	case bool:
		if b {
			return int64(1)
		}
		return int64(0)
	case uuid.UUID:
		return b.String()
	}
	return v
}

// MySQL returns the MySQL definition.
func MySQL() Definition { return MySQLDefinition{} }

// Postgres returns the PostgreSQL definition.
func Postgres() Definition { return PostgresDefinition{} }

// SQLite returns the SQLite definition.
func SQLite() Definition { return SQLiteDefinition{} }

// SQLServer returns the SQL Server definition.
func SQLServer() Definition { return SQLServerDefinition{} }

// Oracle returns the Oracle definition.
func Oracle() Definition { return OracleDefinition{} }

// DefinitionFor returns the definition for a dialect or driver name.
//
// Supported values include:
//   - mysql, mariadb
//   - postgres, postgresql, pgx, supabase, cockroachdb
//   - sqlite, sqlite3
//   - sqlserver, mssql
//   - oracle, godror
func DefinitionFor(name string) (Definition, error) {
	switch strings.ToLower(strings.TrimSpace(name)) {
	case "mysql", "mariadb":
		return MySQL(), nil
	case "postgres", "postgresql", "pgx", "supabase", "cockroachdb":
		return Postgres(), nil
	case "sqlite", "sqlite3":
		return SQLite(), nil
	case "sqlserver", "mssql":
		return SQLServer(), nil
	case "oracle", "godror":
		return Oracle(), nil
	default:
		return nil, errors.Wrapf(ErrUnsupportedDialect, "%q", name)
	}
}
