package dbv

import (
	"context"
	"database/sql"
	"reflect"
	"strconv"
	"strings"

	"github.com/pkg/errors"
)

type queryTable struct {
	row      Row
	info     *TableInfo
	rv       reflect.Value
	alias    string
	optional bool
}

// Query selects rows from one or more tables. Tables are joined along the
// foreign keys declared between them; every defined column value of a
// required row restricts the result, as do conditions added explicitly.
//
//	company := &CarCompany{}
//	company.Name.Set("TOYOTA")
//	marque := &Marque{}
//	rows, err := db.Query(company, marque).GetAll(ctx)
//	for _, m := range dbv.AllInstances[*Marque](rows) { ... }
//
// A Query is not safe for concurrent use.
type Query struct {
	db     *Database
	def    Definition
	tables []*queryTable
	conds  []Condition
	sorts  []Sort

	limit       int
	pageSize    int
	blankOK     bool
	cartesianOK bool
	distinct    bool
	matchAny    bool

	err error
}

// Query starts a query over the given rows, all of them required.
func (d *Database) Query(rows ...Row) *Query {
	return NewQuery(d.def, rows...).on(d)
}

// NewQuery starts a query that is only rendered, not executed.
func NewQuery(def Definition, rows ...Row) *Query {
	q := &Query{def: def}
	return q.Add(rows...)
}

func (q *Query) on(d *Database) *Query {
	q.db = d
	return q
}

// Add adds required tables, joined with INNER JOIN.
func (q *Query) Add(rows ...Row) *Query {
	for _, r := range rows {
		q.add(r, false)
	}
	return q
}

// AddOptional adds tables joined with LEFT OUTER JOIN. Their column values
// restrict the joined rows, not the result.
func (q *Query) AddOptional(rows ...Row) *Query {
	for _, r := range rows {
		q.add(r, true)
	}
	return q
}

func (q *Query) add(row Row, optional bool) {
	if q.err != nil {
		return
	}
	info, rv, err := inspect(row)
	if err != nil {
		q.err = err
		return
	}
	for _, t := range q.tables {
		if t.info == info {
			q.err = errors.Wrapf(ErrDuplicateTable, "%s", info.Name)
			return
		}
	}
	q.tables = append(q.tables, &queryTable{
		row:      row,
		info:     info,
		rv:       rv,
		alias:    "t" + strconv.Itoa(len(q.tables)),
		optional: optional,
	})
}

// AddCondition adds conditions on columns of the query's rows.
func (q *Query) AddCondition(conds ...Condition) *Query {
	q.conds = append(q.conds, conds...)
	return q
}

// OrderBy replaces the sort order.
func (q *Query) OrderBy(sorts ...Sort) *Query {
	q.sorts = sorts
	return q
}

// SetRowLimit limits the rows GetAll returns; 0 removes the limit.
func (q *Query) SetRowLimit(n int) *Query {
	q.limit = n
	return q
}

// SetPageSize sets the page size of GetPage. Without it the row limit is used.
func (q *Query) SetPageSize(n int) *Query {
	q.pageSize = n
	return q
}

// SetBlankQueryAllowed permits executing a query without any condition.
func (q *Query) SetBlankQueryAllowed(ok bool) *Query {
	q.blankOK = ok
	return q
}

// SetCartesianJoinAllowed permits tables that no foreign key connects.
func (q *Query) SetCartesianJoinAllowed(ok bool) *Query {
	q.cartesianOK = ok
	return q
}

// SetDistinct selects distinct rows only.
func (q *Query) SetDistinct(ok bool) *Query {
	q.distinct = ok
	return q
}

// SetMatchAny combines conditions with OR.
func (q *Query) SetMatchAny() *Query {
	q.matchAny = true
	return q
}

// SetMatchAll combines conditions with AND, the default.
func (q *Query) SetMatchAll() *Query {
	q.matchAny = false
	return q
}

func (q *Query) aliasOf(row Row) (string, bool) {
	for _, t := range q.tables {
		if t.row == row {
			return t.alias, true
		}
	}
	rt := reflect.TypeOf(row)
	for _, t := range q.tables {
		if reflect.TypeOf(t.row) == rt {
			return t.alias, true
		}
	}
	return "", false
}

// queryPlan records how result columns map back to the query's tables.
type queryPlan struct {
	cols     [][]*ColumnInfo
	ncols    int
	filtered bool
}

// SQL renders the SELECT statement without executing it.
func (q *Query) SQL() (Statement, error) {
	st, _, err := q.render(q.limit, 0)
	return st, err
}

func (q *Query) render(limit, offset int) (Statement, *queryPlan, error) {
	if q.err != nil {
		return Statement{}, nil, q.err
	}
	if len(q.tables) == 0 {
		return Statement{}, nil, ErrNoTables
	}
	g, err := newQueryGraph(q.tables)
	if err != nil {
		return Statement{}, nil, err
	}
	steps, err := g.plan(q.cartesianOK)
	if err != nil {
		return Statement{}, nil, err
	}

	r := newRenderer(q.def)
	r.alias = q.aliasOf
	plan := &queryPlan{cols: make([][]*ColumnInfo, len(q.tables))}

	var b strings.Builder
	b.WriteString("SELECT ")
	if q.distinct {
		b.WriteString("DISTINCT ")
	}
	for i, t := range q.tables {
		tbl := t.row.dbvTable()
		for _, ci := range t.info.Columns {
			if !tbl.returned(ci) {
				continue
			}
			if plan.ncols > 0 {
				b.WriteString(", ")
			}
			b.WriteString(r.qualify(t.alias, ci.Name))
			b.WriteString(" AS ")
			b.WriteString(t.alias + "_c" + strconv.Itoa(len(plan.cols[i])))
			plan.cols[i] = append(plan.cols[i], ci)
			plan.ncols++
		}
	}

	// Arguments are bound in textual order, so WHERE conditions of the
	// filtering tables are rendered once the FROM clause is complete.
	b.WriteString(" FROM ")
	var filtering []*queryTable
	for _, s := range steps {
		t := q.tables[s.table]
		ref := q.def.TableAlias(q.def.QuoteIdentifier(t.info.Name), t.alias)
		switch s.kind {
		case joinFrom:
			b.WriteString(ref)
			filtering = append(filtering, t)
		case joinInner:
			b.WriteString(" INNER JOIN " + ref + " ON " + combine(q.edgeConditions(r, s), " AND "))
			filtering = append(filtering, t)
		case joinCross:
			b.WriteString(" CROSS JOIN " + ref)
			filtering = append(filtering, t)
		case joinLeft, joinLeftUnconnected:
			on := append(q.edgeConditions(r, s), r.rowConditions(t.alias, t.info, t.rv)...)
			if len(on) == 0 {
				on = []string{q.def.TrueCondition()}
			}
			b.WriteString(" LEFT OUTER JOIN " + ref + " ON " + combine(on, " AND "))
		}
	}

	var where []string
	for _, t := range filtering {
		where = append(where, r.rowConditions(t.alias, t.info, t.rv)...)
	}
	for _, c := range q.conds {
		s, err := c.render(r)
		if err != nil {
			return Statement{}, nil, err
		}
		where = append(where, s)
	}
	if len(where) > 0 {
		plan.filtered = true
		sep := " AND "
		if q.matchAny {
			sep = " OR "
		}
		b.WriteString(" WHERE ")
		b.WriteString(combine(where, sep))
	}

	if len(q.sorts) > 0 {
		parts := make([]string, len(q.sorts))
		for i, s := range q.sorts {
			p, err := s.render(r)
			if err != nil {
				return Statement{}, nil, err
			}
			parts[i] = p
		}
		b.WriteString(" ORDER BY ")
		b.WriteString(strings.Join(parts, ", "))
	}
	b.WriteString(q.def.PageClause(limit, offset, len(q.sorts) > 0))
	return r.finish(b.String()), plan, nil
}

func (q *Query) edgeConditions(r *renderer, s joinStep) []string {
	out := make([]string, 0, len(s.edges))
	for _, e := range s.edges {
		out = append(out, r.qualify(q.tables[e.from].alias, e.fromCol)+" = "+r.qualify(q.tables[e.to].alias, e.toCol))
	}
	return out
}

// GetAll runs the query and returns every result row.
func (q *Query) GetAll(ctx context.Context) ([]*QueryRow, error) {
	return q.run(ctx, q.limit, 0)
}

// GetPage returns the zero-based page of the result.
func (q *Query) GetPage(ctx context.Context, page int) ([]*QueryRow, error) {
	size := q.pageSize
	if size <= 0 {
		size = q.limit
	}
	if size <= 0 {
		return nil, errors.New("dbv: GetPage needs a page size or row limit")
	}
	if page < 0 {
		return nil, errors.Errorf("dbv: invalid page %d", page)
	}
	return q.run(ctx, size, page*size)
}

// GetOnly runs the query and returns its single result row.
func (q *Query) GetOnly(ctx context.Context) (*QueryRow, error) {
	rows, err := q.run(ctx, 0, 0)
	if err != nil {
		return nil, err
	}
	if len(rows) != 1 {
		return nil, errors.Wrapf(ErrUnexpectedRowCount, "expected 1, got %d", len(rows))
	}
	return rows[0], nil
}

// Count returns the number of rows the query would return.
func (q *Query) Count(ctx context.Context) (int64, error) {
	// Sorts are dropped; SQL Server rejects ORDER BY in a derived table.
	unsorted := *q
	unsorted.sorts = nil
	st, plan, err := unsorted.render(0, 0)
	if err != nil {
		return 0, err
	}
	if err := q.checkRunnable(plan); err != nil {
		return 0, err
	}
	st.SQL = "SELECT COUNT(*) FROM " + q.def.TableAlias("("+st.SQL+")", "dbv_count")
	rows, err := q.db.query(ctx, st)
	if err != nil {
		return 0, err
	}
	defer rows.Close()
	var n int64
	if rows.Next() {
		if err := rows.Scan(&n); err != nil {
			return 0, err
		}
	}
	return n, rows.Err()
}

func (q *Query) checkRunnable(plan *queryPlan) error {
	if q.db == nil {
		return errors.New("dbv: query is not bound to a database")
	}
	if !plan.filtered && !q.blankOK {
		return ErrBlankQuery
	}
	return nil
}

func (q *Query) run(ctx context.Context, limit, offset int) (out []*QueryRow, err error) {
	st, plan, err := q.render(limit, offset)
	if err != nil {
		return nil, err
	}
	if err := q.checkRunnable(plan); err != nil {
		return nil, err
	}
	rows, err := q.db.query(ctx, st)
	if err != nil {
		return nil, err
	}
	defer func() {
		if cerr := rows.Close(); cerr != nil && err == nil {
			err = cerr
		}
	}()
	return q.scan(rows, plan)
}

func (q *Query) scan(rows *sql.Rows, plan *queryPlan) ([]*QueryRow, error) {
	vals := make([]any, plan.ncols)
	dests := make([]any, plan.ncols)
	for i := range vals {
		dests[i] = &vals[i]
	}
	var out []*QueryRow
	for rows.Next() {
		if err := rows.Scan(dests...); err != nil {
			return nil, err
		}
		qr := &QueryRow{rows: make([]Row, len(q.tables))}
		off := 0
		for i, t := range q.tables {
			seg := vals[off : off+len(plan.cols[i])]
			off += len(plan.cols[i])
			if t.optional && allNil(seg) {
				continue
			}
			rv := reflect.New(t.info.Type)
			if err := loadColumns(rv.Elem(), plan.cols[i], seg); err != nil {
				return nil, err
			}
			qr.rows[i] = rv.Interface().(Row)
		}
		out = append(out, qr)
	}
	return out, rows.Err()
}

func allNil(vals []any) bool {
	for _, v := range vals {
		if v != nil {
			return false
		}
	}
	return true
}

// QueryRow is one result row of a Query: one row value per query table.
type QueryRow struct {
	rows []Row
}

// Rows returns the row of every query table in the order they were added.
// Optional tables without a matching row are nil.
func (qr *QueryRow) Rows() []Row { return append([]Row(nil), qr.rows...) }

// Instance returns the row of type T, or nil when absent.
func Instance[T Row](qr *QueryRow) T {
	var zero T
	if qr == nil {
		return zero
	}
	for _, r := range qr.rows {
		if v, ok := r.(T); ok {
			return v
		}
	}
	return zero
}

// AllInstances returns the distinct rows of type T across results, in the
// order they were first seen.
func AllInstances[T Row](rows []*QueryRow) []T {
	var out []T
	seen := make(map[string]struct{})
	for _, qr := range rows {
		v := Instance[T](qr)
		if any(v) == nil || reflect.ValueOf(v).IsNil() {
			continue
		}
		info, rv, err := inspect(v)
		if err != nil {
			continue
		}
		key := rowKey(info, rv)
		if _, dup := seen[key]; dup {
			continue
		}
		seen[key] = struct{}{}
		out = append(out, v)
	}
	return out
}

// GetByExample returns the rows matching the defined values and operators of
// example. An example without any condition is a blank query.
func GetByExample[T Row](ctx context.Context, db *Database, example T) ([]T, error) {
	rows, err := db.Query(example).GetAll(ctx)
	if err != nil {
		return nil, err
	}
	return AllInstances[T](rows), nil
}

// GetAllRows returns every row of T's table.
func GetAllRows[T Row](ctx context.Context, db *Database) ([]T, error) {
	row, err := newRow[T]()
	if err != nil {
		return nil, err
	}
	rows, err := db.Query(row).SetBlankQueryAllowed(true).GetAll(ctx)
	if err != nil {
		return nil, err
	}
	return AllInstances[T](rows), nil
}

// GetByPrimaryKey returns the row whose primary key equals keys, given in
// declaration order. It returns sql.ErrNoRows when there is none.
func GetByPrimaryKey[T Row](ctx context.Context, db *Database, keys ...any) (T, error) {
	var zero T
	row, err := newRow[T]()
	if err != nil {
		return zero, err
	}
	info, err := Inspect(row)
	if err != nil {
		return zero, err
	}
	if len(info.PrimaryKeys) == 0 {
		return zero, errors.Wrapf(ErrNoPrimaryKey, "%s", info.Name)
	}
	if len(keys) != len(info.PrimaryKeys) {
		return zero, errors.Errorf("dbv: %s has %d primary key columns, got %d values", info.Name, len(info.PrimaryKeys), len(keys))
	}
	q := db.Query(row)
	for i, pk := range info.PrimaryKeys {
		q.AddCondition((&ColumnRef{row: row, table: info, col: pk}).Is(keys[i]))
	}
	rows, err := q.GetAll(ctx)
	if err != nil {
		return zero, err
	}
	switch len(rows) {
	case 0:
		return zero, sql.ErrNoRows
	case 1:
		return Instance[T](rows[0]), nil
	}
	return zero, errors.Wrapf(ErrUnexpectedRowCount, "%s: %d rows share a primary key", info.Name, len(rows))
}

func newRow[T Row]() (T, error) {
	var zero T
	rt := reflect.TypeOf(zero)
	if rt == nil || rt.Kind() != reflect.Pointer || rt.Elem().Kind() != reflect.Struct {
		return zero, errors.Wrapf(ErrNotARow, "%T", zero)
	}
	return reflect.New(rt.Elem()).Interface().(T), nil
}
