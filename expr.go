package dbv

import (
	"strings"
)

// Condition is a boolean SQL expression added to a query with AddCondition.
type Condition interface {
	render(r *renderer) (string, error)
}

// ColumnRef refers to one column of a row taking part in a query.
type ColumnRef struct {
	row   Row
	table *TableInfo
	col   *ColumnInfo
	err   error
}

// Column returns a reference to the column backing field, which must point
// into row:
//
//	m := &Marque{}
//	q := db.Query(m).AddCondition(dbv.Column(m, &m.Name).IsLike("TOY%"))
//
// Resolution errors surface when the query is rendered.
func Column(row Row, field QueryableDatatype) *ColumnRef {
	info, ci, err := columnFor(row, field)
	return &ColumnRef{row: row, table: info, col: ci, err: err}
}

// Name returns the column name, or "" when the reference is invalid.
func (c *ColumnRef) Name() string {
	if c.col == nil {
		return ""
	}
	return c.col.Name
}

func (c *ColumnRef) with(op *operator) Condition { return &columnCondition{ref: c, op: op} }

// Is matches rows where the column equals v; nil matches NULL.
func (c *ColumnRef) Is(v any) Condition {
	if v == nil {
		return c.IsNull()
	}
	return c.with(&operator{kind: opIn, values: []any{v}})
}

// IsNot matches rows where the column differs from v; nil matches NOT NULL.
func (c *ColumnRef) IsNot(v any) Condition {
	if v == nil {
		return c.IsNotNull()
	}
	return c.with(&operator{kind: opIn, values: []any{v}, negated: true})
}

// IsIn matches any of vals; an empty list matches nothing.
func (c *ColumnRef) IsIn(vals ...any) Condition {
	return c.with(&operator{kind: opIn, values: vals})
}

func (c *ColumnRef) IsNotIn(vals ...any) Condition {
	return c.with(&operator{kind: opIn, values: vals, negated: true})
}

func (c *ColumnRef) IsLike(pattern string) Condition {
	return c.with(&operator{kind: opLike, pattern: pattern})
}

func (c *ColumnRef) IsLikeIgnoreCase(pattern string) Condition {
	return c.with(&operator{kind: opLike, pattern: pattern, ignoreCase: true})
}

// IsBetween matches lower <= v <= upper.
func (c *ColumnRef) IsBetween(lower, upper any) Condition {
	return c.with(rangeOperator(lower, upper, true, true))
}

func (c *ColumnRef) IsGreaterThan(v any) Condition {
	return c.with(&operator{kind: opRange, lower: v, hasLower: true})
}

func (c *ColumnRef) IsGreaterThanOrEqual(v any) Condition {
	return c.with(&operator{kind: opRange, lower: v, hasLower: true, lowerIncl: true})
}

func (c *ColumnRef) IsLessThan(v any) Condition {
	return c.with(&operator{kind: opRange, upper: v, hasUpper: true})
}

func (c *ColumnRef) IsLessThanOrEqual(v any) Condition {
	return c.with(&operator{kind: opRange, upper: v, hasUpper: true, upperIncl: true})
}

func (c *ColumnRef) IsNull() Condition { return c.with(&operator{kind: opNull}) }

func (c *ColumnRef) IsNotNull() Condition { return c.with(&operator{kind: opNull, negated: true}) }

// IsColumn compares two columns for equality, typically to join rows on
// something other than a declared foreign key.
func (c *ColumnRef) IsColumn(other *ColumnRef) Condition {
	return &columnComparison{left: c, right: other, cmp: " = "}
}

// Asc sorts by the column in ascending order.
func (c *ColumnRef) Asc() Sort { return Sort{ref: c} }

// Desc sorts by the column in descending order.
func (c *ColumnRef) Desc() Sort { return Sort{ref: c, desc: true} }

// Sort is one ORDER BY term.
type Sort struct {
	ref  *ColumnRef
	desc bool
}

func (s Sort) render(r *renderer) (string, error) {
	col, err := r.columnOf(s.ref)
	if err != nil {
		return "", err
	}
	if s.desc {
		return col + " DESC", nil
	}
	return col + " ASC", nil
}

type columnCondition struct {
	ref *ColumnRef
	op  *operator
}

func (c *columnCondition) render(r *renderer) (string, error) {
	col, err := r.columnOf(c.ref)
	if err != nil {
		return "", err
	}
	return c.op.render(r, col, c.ref.col.Kind), nil
}

type columnComparison struct {
	left, right *ColumnRef
	cmp         string
}

func (c *columnComparison) render(r *renderer) (string, error) {
	l, err := r.columnOf(c.left)
	if err != nil {
		return "", err
	}
	rr, err := r.columnOf(c.right)
	if err != nil {
		return "", err
	}
	return l + c.cmp + rr, nil
}

type junction struct {
	sep   string
	conds []Condition
}

// And matches when every condition matches. And() is always true.
func And(conds ...Condition) Condition { return &junction{sep: " AND ", conds: conds} }

// Or matches when any condition matches. Or() is always false.
func Or(conds ...Condition) Condition { return &junction{sep: " OR ", conds: conds} }

func (j *junction) render(r *renderer) (string, error) {
	if len(j.conds) == 0 {
		if j.sep == " AND " {
			return r.def.TrueCondition(), nil
		}
		return r.def.FalseCondition(), nil
	}
	parts := make([]string, 0, len(j.conds))
	for _, c := range j.conds {
		s, err := c.render(r)
		if err != nil {
			return "", err
		}
		parts = append(parts, s)
	}
	return combine(parts, j.sep), nil
}

type negation struct{ cond Condition }

// Not negates a condition.
func Not(c Condition) Condition { return negation{cond: c} }

func (n negation) render(r *renderer) (string, error) {
	s, err := n.cond.render(r)
	if err != nil {
		return "", err
	}
	return "NOT (" + s + ")", nil
}

type rawCondition struct {
	sql  string
	args []any
}

// Raw is a hand-written condition using '?' placeholders. Column names are
// not qualified or quoted for you.
func Raw(sql string, args ...any) Condition {
	return rawCondition{sql: strings.TrimSpace(sql), args: args}
}

func (c rawCondition) render(r *renderer) (string, error) {
	r.args = append(r.args, c.args...)
	return c.sql, nil
}
