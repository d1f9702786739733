package dbv

import (
	"reflect"
	"strings"

	"github.com/pkg/errors"
)

// renderer collects positional arguments while SQL fragments are produced.
// Fragments always use '?'; the finished statement is rewritten to the
// dialect's placeholder style by finish. Fragments must therefore be rendered
// in the order they appear in the final SQL.
type renderer struct {
	def  Definition
	args []any
	// alias resolves the table alias of a row; nil renders unqualified columns.
	alias func(Row) (string, bool)
}

func newRenderer(def Definition) *renderer {
	return &renderer{def: def}
}

func (r *renderer) bind(kind ColumnKind, v any) string {
	r.args = append(r.args, r.def.ConvertValue(kind, v))
	return "?"
}

func (r *renderer) inList(col string, kind ColumnKind, vals []any, ignoreCase bool) string {
	if len(vals) == 0 {
		return r.def.FalseCondition()
	}
	target := col
	if ignoreCase {
		target = r.def.Lower(col)
	}
	ph := make([]string, len(vals))
	for i, v := range vals {
		p := r.bind(kind, v)
		if ignoreCase {
			p = r.def.Lower(p)
		}
		ph[i] = p
	}
	if len(ph) == 1 {
		return target + " = " + ph[0]
	}
	return target + " IN (" + strings.Join(ph, ", ") + ")"
}

func (r *renderer) qualify(alias, name string) string {
	q := r.def.QuoteIdentifier(name)
	if alias == "" {
		return q
	}
	return alias + "." + q
}

func (r *renderer) columnOf(ref *ColumnRef) (string, error) {
	if ref.err != nil {
		return "", ref.err
	}
	alias := ""
	if r.alias != nil {
		a, ok := r.alias(ref.row)
		if !ok {
			return "", errors.Wrapf(ErrColumnNotInQuery, "%s.%s", ref.table.Name, ref.col.Name)
		}
		alias = a
	}
	return r.qualify(alias, ref.col.Name), nil
}

// rowConditions renders the example conditions of one row: the operator of
// every column that has one, otherwise equality with every defined value.
func (r *renderer) rowConditions(alias string, info *TableInfo, rv reflect.Value) []string {
	var out []string
	for _, ci := range info.Columns {
		st := ci.value(rv).state()
		col := r.qualify(alias, ci.Name)
		switch {
		case st.op != nil:
			out = append(out, st.op.render(r, col, ci.Kind))
		case st.defined && st.null:
			out = append(out, col+" IS NULL")
		case st.defined:
			out = append(out, col+" = "+r.bind(ci.Kind, st.value))
		}
	}
	return out
}

// finish rewrites placeholders for the dialect and returns the statement.
func (r *renderer) finish(sql string) Statement {
	return Statement{SQL: rewritePlaceholders(sql, r.def.Placeholder()), Args: r.args}
}
