package dbv

import (
	"context"
	"testing"

	"github.com/DATA-DOG/go-sqlmock"
	"github.com/pkg/errors"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// loadedMarque returns a marque as if read from the database.
func loadedMarque(id int64, name string) *Marque {
	m := &Marque{}
	m.ID.load(id)
	m.Name.load(name)
	m.dbvTable().loaded = true
	return m
}

func statementsOf(t *testing.T, a *Action, def Definition) []Statement {
	t.Helper()
	sts, err := a.Statements(def)
	require.NoError(t, err)
	return sts
}

func TestInsertStatements(t *testing.T) {
	cases := []struct {
		def  Definition
		sql  string
		args []any
	}{
		{SQLite(), `INSERT INTO "marque" ("name", "numeric_code", "enabled") VALUES (?, ?, ?)`,
			[]any{"COROLLA", 1.5, true}},
		{Postgres(), `INSERT INTO "marque" ("name", "numeric_code", "enabled") VALUES ($1, $2, $3) RETURNING "uid_marque"`,
			[]any{"COROLLA", 1.5, true}},
		{SQLServer(), `INSERT INTO [marque] ([name], [numeric_code], [enabled]) OUTPUT INSERTED.[uid_marque] VALUES (@p1, @p2, @p3)`,
			[]any{"COROLLA", 1.5, int64(1)}},
		{Oracle(), `INSERT INTO "marque" ("name", "numeric_code", "enabled") VALUES (:1, :2, :3)`,
			[]any{"COROLLA", 1.5, int64(1)}},
	}
	for _, tc := range cases {
		t.Run(tc.def.Name(), func(t *testing.T) {
			sts := statementsOf(t, NewInsert(newMarque("COROLLA", nil)), tc.def)
			require.Len(t, sts, 1)
			assert.Equal(t, tc.sql, sts[0].SQL)
			assert.Equal(t, tc.args, sts[0].Args)
		})
	}
}

func TestInsertStatements_DefaultValuesAndExplicitKey(t *testing.T) {
	cases := []struct {
		def Definition
		sql string
	}{
		{SQLite(), `INSERT INTO "car_company" DEFAULT VALUES`},
		{Postgres(), `INSERT INTO "car_company" DEFAULT VALUES RETURNING "uid_carcompany"`},
		{SQLServer(), `INSERT INTO [car_company] OUTPUT INSERTED.[uid_carcompany] DEFAULT VALUES`},
		{MySQL(), "INSERT INTO `car_company` () VALUES ()"},
	}
	for _, tc := range cases {
		sts := statementsOf(t, NewInsert(&CarCompany{}), tc.def)
		assert.Equal(t, tc.sql, sts[0].SQL, tc.def.Name())
	}

	c := newCompany("KIA")
	c.ID.Set(5)
	sts := statementsOf(t, NewInsert(c), Postgres())
	assert.Equal(t, `INSERT INTO "car_company" ("uid_carcompany", "name") VALUES ($1, $2)`, sts[0].SQL)
	assert.Equal(t, []any{int64(5), "KIA"}, sts[0].Args)
}

func TestUpdateStatements(t *testing.T) {
	m := loadedMarque(4, "A")
	sts := statementsOf(t, NewUpdate(m), SQLite())
	assert.Empty(t, sts, "nothing changed")

	m.Name.Set("B")
	m.Enabled.Set(true)
	sts = statementsOf(t, NewUpdate(m), SQLite())
	require.Len(t, sts, 1)
	assert.Equal(t, `UPDATE "marque" SET "name" = ?, "enabled" = ? WHERE "uid_marque" = ?`, sts[0].SQL)
	assert.Equal(t, []any{"B", true, int64(4)}, sts[0].Args)

	// A changed key is written and matched by its previous value.
	k := loadedMarque(4, "A")
	k.ID.Set(9)
	sts = statementsOf(t, NewUpdate(k), Postgres())
	assert.Equal(t, `UPDATE "marque" SET "uid_marque" = $1 WHERE "uid_marque" = $2`, sts[0].SQL)
	assert.Equal(t, []any{int64(9), int64(4)}, sts[0].Args)

	// A key set on a fresh row only addresses it.
	f := &Marque{}
	f.ID.Set(4)
	f.Name.Set("B")
	sts = statementsOf(t, NewUpdate(f), SQLite())
	assert.Equal(t, `UPDATE "marque" SET "name" = ? WHERE "uid_marque" = ?`, sts[0].SQL)

	nokey := &Marque{}
	nokey.Name.Set("B")
	_, err := NewUpdate(nokey).Statements(SQLite())
	assert.True(t, errors.Is(err, ErrNoPrimaryKey), "got %v", err)

	tag := &Tag{}
	tag.Label.Set("x")
	_, err = NewUpdate(tag).Statements(SQLite())
	assert.True(t, errors.Is(err, ErrNoPrimaryKey), "got %v", err)
}

func TestDeleteStatements(t *testing.T) {
	sts := statementsOf(t, NewDelete(loadedMarque(4, "A")), SQLite())
	assert.Equal(t, `DELETE FROM "marque" WHERE "uid_marque" = ?`, sts[0].SQL)
	assert.Equal(t, []any{int64(4)}, sts[0].Args)

	byName := &Marque{}
	byName.Name.Set("A")
	byName.NumericCode.PermittedGreaterThan(2)
	sts = statementsOf(t, NewDelete(byName), Postgres())
	assert.Equal(t, `DELETE FROM "marque" WHERE ("name" = $1) AND ("numeric_code" > $2)`, sts[0].SQL)

	tag := &Tag{}
	tag.Label.Set("x")
	sts = statementsOf(t, NewDelete(tag), SQLite())
	assert.Equal(t, `DELETE FROM "tag" WHERE "label" = ?`, sts[0].SQL)

	mb := &membership{}
	mb.Company.Set(1)
	mb.Person.Set("ann")
	sts = statementsOf(t, NewDelete(mb), SQLite())
	assert.Equal(t, `DELETE FROM "membership" WHERE ("company" = ?) AND ("person" = ?)`, sts[0].SQL)

	_, err := NewDelete(&Tag{}).Statements(SQLite())
	assert.True(t, errors.Is(err, ErrBlankQuery))
}

func TestActionList_Statements(t *testing.T) {
	m := loadedMarque(4, "A")
	m.Name.Set("B")
	list := ActionList{NewInsert(newCompany("KIA")), NewUpdate(m), NewUpdate(loadedMarque(5, "C")), NewDelete(loadedMarque(6, "D"))}
	sts, err := list.Statements(SQLite())
	require.NoError(t, err)
	require.Len(t, sts, 3)
	assert.Equal(t, `INSERT INTO "car_company" ("name") VALUES (?)`, sts[0].SQL)
	assert.Equal(t, `UPDATE "marque" SET "name" = ? WHERE "uid_marque" = ?`, sts[1].SQL)
	assert.Equal(t, `DELETE FROM "marque" WHERE "uid_marque" = ?`, sts[2].SQL)
}

func TestAction_RevertNeedsExecution(t *testing.T) {
	_, err := NewInsert(newCompany("A")).Revert()
	assert.Error(t, err)
	assert.Equal(t, "insert", ActionInsert.String())
	assert.Equal(t, "unknown", ActionKind(0).String())
}

func TestDatabase_InsertLastInsertID(t *testing.T) {
	db, mock := newMockDB(t, SQLite())
	mock.ExpectExec(`INSERT INTO "car_company" ("name") VALUES (?)`).
		WithArgs("TOYOTA").
		WillReturnResult(sqlmock.NewResult(7, 1))

	c := newCompany("TOYOTA")
	done, err := db.Insert(context.Background(), c)
	require.NoError(t, err)
	assert.EqualValues(t, 7, c.ID.Value())
	assert.True(t, IsLoaded(c))
	assert.False(t, c.Name.HasChanged())

	require.Len(t, done, 1)
	assert.Equal(t, ActionInsert, done[0].Kind())
	assert.NotSame(t, c, done[0].Row())

	back, err := done.Revert()
	require.NoError(t, err)
	sts, err := back.Statements(SQLite())
	require.NoError(t, err)
	assert.Equal(t, []Statement{{SQL: `DELETE FROM "car_company" WHERE "uid_carcompany" = ?`, Args: []any{int64(7)}}}, sts)
	require.NoError(t, mock.ExpectationsWereMet())
}

func TestDatabase_InsertReturningKeys(t *testing.T) {
	cases := []struct {
		def Definition
		sql string
		arg string
	}{
		{Postgres(), `INSERT INTO "car_company" ("name") VALUES ($1) RETURNING "uid_carcompany"`, "KIA"},
		{SQLServer(), `INSERT INTO [car_company] ([name]) OUTPUT INSERTED.[uid_carcompany] VALUES (@p1)`, "KIA"},
	}
	for _, tc := range cases {
		t.Run(tc.def.Name(), func(t *testing.T) {
			db, mock := newMockDB(t, tc.def)
			mock.ExpectQuery(tc.sql).WithArgs(tc.arg).
				WillReturnRows(sqlmock.NewRows([]string{"uid_carcompany"}).AddRow(int64(3)))

			c := newCompany(tc.arg)
			_, err := db.Insert(context.Background(), c)
			require.NoError(t, err)
			assert.EqualValues(t, 3, c.ID.Value())
			require.NoError(t, mock.ExpectationsWereMet())
		})
	}
}

func TestDatabase_InsertWithoutGeneratedKeys(t *testing.T) {
	db, mock := newMockDB(t, Oracle())
	mock.ExpectExec(`INSERT INTO "car_company" ("name") VALUES (:1)`).WithArgs("KIA").
		WillReturnResult(sqlmock.NewResult(0, 1))

	c := newCompany("KIA")
	done, err := db.Insert(context.Background(), c)
	require.NoError(t, err)
	assert.False(t, c.ID.IsDefined())

	// Without a key the insert is undone by example.
	back, err := done.Revert()
	require.NoError(t, err)
	sts, err := back.Statements(Oracle())
	require.NoError(t, err)
	assert.Equal(t, `DELETE FROM "car_company" WHERE "name" = :1`, sts[0].SQL)
	require.NoError(t, mock.ExpectationsWereMet())
}

func TestDatabase_InsertError(t *testing.T) {
	db, mock := newMockDB(t, SQLite())
	mock.ExpectExec(`INSERT INTO "car_company" ("name") VALUES (?)`).WillReturnError(errors.New("boom"))

	c := newCompany("A")
	_, err := db.Insert(context.Background(), c)
	require.Error(t, err)
	assert.Contains(t, err.Error(), "insert into car_company")
	assert.False(t, IsLoaded(c))
	assert.True(t, c.Name.HasChanged())
	require.NoError(t, mock.ExpectationsWereMet())
}

func TestDatabase_UpdateAndRevert(t *testing.T) {
	db, mock := newMockDB(t, SQLite())
	mock.ExpectExec(`UPDATE "marque" SET "name" = ? WHERE "uid_marque" = ?`).
		WithArgs("B", 4).
		WillReturnResult(sqlmock.NewResult(0, 1))

	m := loadedMarque(4, "A")
	done, err := db.Update(context.Background(), m)
	require.NoError(t, err)
	assert.Empty(t, done, "unchanged rows are skipped")

	m.Name.Set("B")
	done, err = db.Update(context.Background(), m)
	require.NoError(t, err)
	require.Len(t, done, 1)
	assert.False(t, m.Name.HasChanged())

	back, err := done.Revert()
	require.NoError(t, err)
	sts, err := back.Statements(SQLite())
	require.NoError(t, err)
	assert.Equal(t, []Statement{{SQL: `UPDATE "marque" SET "name" = ? WHERE "uid_marque" = ?`, Args: []any{"A", int64(4)}}}, sts)
	require.NoError(t, mock.ExpectationsWereMet())
}

func TestDatabase_DeleteAndRevert(t *testing.T) {
	db, mock := newMockDB(t, SQLite())
	mock.ExpectQuery(`SELECT `+selectList("t0", marqueColumns...)+` FROM "marque" AS t0 WHERE t0."uid_marque" = ?`).
		WithArgs(4).
		WillReturnRows(sqlmock.NewRows(marqueColumns).AddRow(int64(4), "A", nil, int64(1), nil, nil))
	mock.ExpectExec(`DELETE FROM "marque" WHERE "uid_marque" = ?`).
		WithArgs(4).
		WillReturnResult(sqlmock.NewResult(0, 1))

	m := loadedMarque(4, "A")
	done, err := db.Delete(context.Background(), m)
	require.NoError(t, err)
	assert.False(t, IsLoaded(m))
	require.Len(t, done, 1)
	require.Len(t, done[0].Deleted(), 1)

	back, err := done.Revert()
	require.NoError(t, err)
	sts, err := back.Statements(SQLite())
	require.NoError(t, err)
	require.Len(t, sts, 1)
	assert.Equal(t, `INSERT INTO "marque" ("uid_marque", "name", "numeric_code", "enabled", "creation_date", "fk_carcompany")`+
		` VALUES (?, ?, ?, ?, ?, ?)`, sts[0].SQL)
	assert.Equal(t, []any{int64(4), "A", nil, true, nil, nil}, sts[0].Args)
	require.NoError(t, mock.ExpectationsWereMet())
}

func TestDatabase_DeleteBlank(t *testing.T) {
	db, mock := newMockDB(t, SQLite())
	_, err := db.Delete(context.Background(), &Tag{})
	assert.True(t, errors.Is(err, ErrBlankQuery))
	require.NoError(t, mock.ExpectationsWereMet())
}

func TestActionList_ExecuteInTransaction(t *testing.T) {
	db, mock := newMockDB(t, SQLite())
	mock.ExpectBegin()
	mock.ExpectExec(`INSERT INTO "car_company" ("name") VALUES (?)`).WithArgs("KIA").
		WillReturnResult(sqlmock.NewResult(3, 1))
	mock.ExpectExec(`UPDATE "marque" SET "name" = ? WHERE "uid_marque" = ?`).WithArgs("B", 4).
		WillReturnResult(sqlmock.NewResult(0, 1))
	mock.ExpectCommit()

	m := loadedMarque(4, "A")
	m.Name.Set("B")
	c := newCompany("KIA")
	done, err := ActionList{NewInsert(c), NewUpdate(m), NewUpdate(loadedMarque(5, "C"))}.Execute(context.Background(), db)
	require.NoError(t, err)
	require.Len(t, done, 2)
	assert.EqualValues(t, 3, c.ID.Value())

	back, err := done.Revert()
	require.NoError(t, err)
	require.Len(t, back, 2)
	assert.Equal(t, ActionUpdate, back[0].Kind(), "reverts run last action first")
	assert.Equal(t, ActionDelete, back[1].Kind())
	require.NoError(t, mock.ExpectationsWereMet())
}

func TestActionList_ExecuteRollsBackOnError(t *testing.T) {
	db, mock := newMockDB(t, SQLite())
	mock.ExpectBegin()
	mock.ExpectExec(`INSERT INTO "car_company" ("name") VALUES (?)`).WithArgs("KIA").
		WillReturnResult(sqlmock.NewResult(3, 1))
	mock.ExpectExec(`INSERT INTO "car_company" ("name") VALUES (?)`).WithArgs("BAD").
		WillReturnError(errors.New("boom"))
	mock.ExpectRollback()

	done, err := ActionList{NewInsert(newCompany("KIA")), NewInsert(newCompany("BAD"))}.Execute(context.Background(), db)
	require.Error(t, err)
	assert.Contains(t, err.Error(), "boom")
	assert.Nil(t, done)
	require.NoError(t, mock.ExpectationsWereMet())
}
