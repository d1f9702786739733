/*
Package dbv maps Go structs onto relational tables and turns rows used as
examples into SQL. You describe a table once with struct tags; dbv renders
SELECT, INSERT, UPDATE, DELETE and CREATE TABLE statements for the dialect in
use and runs them through database/sql.

# Rows

A row is a pointer to a struct embedding dbv.Table. Column fields use the
value types of this package (DBInteger, DBNumber, DBString, DBBoolean, DBDate,
DBBytes, DBUUID), which carry the value, whether it is NULL, whether it changed
since it was loaded, and an optional comparison operator.

	type CarCompany struct {
	    dbv.Table `dbv:"car_company"`
	    ID        dbv.DBInteger `dbv:"uid_carcompany,pk,autoincrement"`
	    Name      dbv.DBString  `dbv:"name"`
	}

	type Marque struct {
	    dbv.Table    `dbv:"marque"`
	    ID           dbv.DBInteger `dbv:"uid_marque,pk,autoincrement"`
	    Name         dbv.DBString  `dbv:"name"`
	    CarCompanyID dbv.DBInteger `dbv:"fk_carcompany,fk=car_company.uid_carcompany"`
	}

Untagged value fields map to the snake_case of the field name. Mappings are
built once per type by reflection and cached in a sync.Map.

# Queries

Every defined value and operator of a required row restricts a query, so a
row doubles as an example:

	toyota := &CarCompany{}
	toyota.Name.PermittedPatternIgnoreCase("toy%")
	rows, err := db.Query(toyota, &Marque{}).GetAll(ctx)
	marques := dbv.AllInstances[*Marque](rows)

Tables are joined along their foreign keys, in both directions. Tables that
no foreign key reaches are rejected with ErrCartesianJoin unless
SetCartesianJoinAllowed is used, and a query without any condition is
rejected with ErrBlankQuery unless SetBlankQueryAllowed is used. Optional
tables (AddOptional) are LEFT OUTER JOINed and come back as nil when absent.

Conditions beyond the example values are built from column references:

	m := &Marque{}
	q := db.Query(m).AddCondition(dbv.Or(
	    dbv.Column(m, &m.Name).IsIn("TOYOTA", "HONDA"),
	    dbv.Column(m, &m.ID).IsGreaterThan(100),
	))

# Changes

Insert, Update and Delete return the ActionList they executed. Inserts fill
generated keys back into the row; updates write changed columns only. Every
executed action can be reverted:

	done, err := db.Update(ctx, marque)
	undo, _ := done.Revert()
	_, err = undo.Execute(ctx, db)

# Dialects

A Definition renders the dialect-specific parts of each statement: identifier
quoting, placeholders, column types, paging and how generated keys come back.
MySQL, PostgreSQL, SQLite, SQL Server and Oracle are provided. Statements are
always built with '?' and rewritten to the dialect's placeholder style at the
end, the same rewriting ExecSQL and QuerySQL apply to hand-written SQL with
:named parameters.

# Operations

Open builds a Database from Settings (YAML, .env files and DBV_* variables),
optionally with OpenTelemetry tracing. Statements are logged through zap and
timed into Prometheus collectors when WithLogger and WithMetrics are given.
*/
package dbv
