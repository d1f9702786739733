package dbv

import (
	"testing"

	"github.com/pkg/errors"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type Model struct {
	Table    `dbv:"model"`
	ID       DBInteger `dbv:"uid_model,pk,autoincrement"`
	Name     DBString  `dbv:"name"`
	MarqueID DBInteger `dbv:"fk_marque,fk=marque.uid_marque"`
}

func planOf(t *testing.T, q *Query) ([]joinStep, error) {
	t.Helper()
	require.NoError(t, q.err)
	g, err := newQueryGraph(q.tables)
	require.NoError(t, err)
	return g.plan(q.cartesianOK)
}

func TestQueryGraph_EdgesBothWays(t *testing.T) {
	q := NewQuery(SQLite(), &CarCompany{}, &Marque{}, &Model{})
	g, err := newQueryGraph(q.tables)
	require.NoError(t, err)

	require.Len(t, g.adj[0], 1)
	assert.Equal(t, joinEdge{from: 0, to: 1, fromCol: "uid_carcompany", toCol: "fk_carcompany"}, g.adj[0][0])
	assert.Len(t, g.adj[1], 2)
	require.Len(t, g.adj[2], 1)
	assert.Equal(t, joinEdge{from: 2, to: 1, fromCol: "fk_marque", toCol: "uid_marque"}, g.adj[2][0])
	assert.True(t, g.connected())

	g, err = newQueryGraph(NewQuery(SQLite(), &CarCompany{}, &Tag{}).tables)
	require.NoError(t, err)
	assert.False(t, g.connected())
}

func TestQueryGraph_PlanFollowsForeignKeys(t *testing.T) {
	steps, err := planOf(t, NewQuery(SQLite(), &CarCompany{}, &Model{}, &Marque{}))
	require.NoError(t, err)

	var order []int
	var kinds []joinKind
	for _, s := range steps {
		order = append(order, s.table)
		kinds = append(kinds, s.kind)
	}
	// model only reaches company through marque.
	assert.Equal(t, []int{0, 2, 1}, order)
	assert.Equal(t, []joinKind{joinFrom, joinInner, joinInner}, kinds)
	assert.Equal(t, []joinEdge{{from: 1, to: 2, fromCol: "fk_marque", toCol: "uid_marque"}}, steps[2].edges)
}

func TestQueryGraph_OptionalChain(t *testing.T) {
	steps, err := planOf(t, NewQuery(SQLite(), &CarCompany{}).AddOptional(&Marque{}, &Model{}))
	require.NoError(t, err)
	require.Len(t, steps, 3)
	assert.Equal(t, joinFrom, steps[0].kind)
	assert.Equal(t, joinLeft, steps[1].kind)
	assert.Equal(t, 1, steps[1].table)
	assert.Equal(t, joinLeft, steps[2].kind)
	assert.Equal(t, 2, steps[2].table)
}

func TestQueryGraph_RequiredBehindOptionalIsCartesian(t *testing.T) {
	q := NewQuery(SQLite(), &CarCompany{}).AddOptional(&Marque{}).Add(&Model{})
	_, err := planOf(t, q)
	assert.True(t, errors.Is(err, ErrCartesianJoin), "got %v", err)

	steps, err := planOf(t, q.SetCartesianJoinAllowed(true))
	require.NoError(t, err)
	require.Len(t, steps, 3)
	assert.Equal(t, joinCross, steps[1].kind)
	assert.Equal(t, 2, steps[1].table)
	// marque is outer joined onto both placed tables.
	assert.Equal(t, joinLeft, steps[2].kind)
	assert.Len(t, steps[2].edges, 2)
}

func TestQuerySQL_ThreeTables(t *testing.T) {
	model := &Model{}
	model.Name.Set("COROLLA")
	st, err := NewQuery(SQLite(), newCompany("TOYOTA"), model, &Marque{}).SQL()
	require.NoError(t, err)
	assert.Contains(t, st.SQL, ` FROM "car_company" AS t0`+
		` INNER JOIN "marque" AS t2 ON t2."fk_carcompany" = t0."uid_carcompany"`+
		` INNER JOIN "model" AS t1 ON t1."fk_marque" = t2."uid_marque"`+
		` WHERE (t0."name" = ?) AND (t1."name" = ?)`)
	assert.Equal(t, []any{"TOYOTA", "COROLLA"}, st.Args)
}

type strayModel struct {
	Table    `dbv:"stray_model"`
	ID       DBInteger `dbv:"uid_stray,pk"`
	MarqueID DBInteger `dbv:"fk_marque,fk=marque.uid_missing"`
}

func TestQueryGraph_UnknownForeignKeyColumn(t *testing.T) {
	q := NewQuery(SQLite(), &Marque{}, &strayModel{})
	_, err := newQueryGraph(q.tables)
	assert.True(t, errors.Is(err, ErrBadForeignKey), "got %v", err)
	assert.Contains(t, err.Error(), "stray_model.fk_marque references marque.uid_missing")

	_, err = q.SQL()
	assert.True(t, errors.Is(err, ErrBadForeignKey), "got %v", err)
	assert.False(t, errors.Is(err, ErrCartesianJoin))

	// Ignoring the key leaves the tables unconnected instead.
	stray := &strayModel{}
	require.NoError(t, IgnoreForeignKey(stray, &stray.MarqueID))
	_, err = NewQuery(SQLite(), &Marque{}, stray).SQL()
	assert.True(t, errors.Is(err, ErrCartesianJoin), "got %v", err)
}
