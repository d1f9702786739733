package dbv

import (
	"strings"
)

type opKind uint8

const (
	opIn opKind = iota + 1
	opRange
	opLike
	opNull
)

// operator is the comparison a column contributes to a query when its row is
// used as an example.
type operator struct {
	kind   opKind
	values []any

	lower, upper         any
	hasLower, hasUpper   bool
	lowerIncl, upperIncl bool

	pattern    string
	ignoreCase bool
	negated    bool
}

func (o *operator) render(r *renderer, col string, kind ColumnKind) string {
	var cond string
	switch o.kind {
	case opNull:
		if o.negated {
			return col + " IS NOT NULL"
		}
		return col + " IS NULL"
	case opIn:
		cond = r.inList(col, kind, o.values, o.ignoreCase)
	case opRange:
		cond = o.renderRange(r, col, kind)
	case opLike:
		target, arg := col, r.bind(KindString, o.pattern)
		if o.ignoreCase {
			target, arg = r.def.Lower(target), r.def.Lower(arg)
		}
		cond = target + " LIKE " + arg
	}
	if o.negated {
		return "NOT (" + cond + ")"
	}
	return cond
}

func (o *operator) renderRange(r *renderer, col string, kind ColumnKind) string {
	parts := make([]string, 0, 2)
	if o.hasLower {
		cmp := " > "
		if o.lowerIncl {
			cmp = " >= "
		}
		parts = append(parts, col+cmp+r.bind(kind, o.lower))
	}
	if o.hasUpper {
		cmp := " < "
		if o.upperIncl {
			cmp = " <= "
		}
		parts = append(parts, col+cmp+r.bind(kind, o.upper))
	}
	switch len(parts) {
	case 0:
		return r.def.TrueCondition()
	case 1:
		return parts[0]
	}
	return "(" + strings.Join(parts, " AND ") + ")"
}

// combine joins conditions with sep, parenthesising each when there is more
// than one.
func combine(conds []string, sep string) string {
	if len(conds) == 1 {
		return conds[0]
	}
	var b strings.Builder
	for i, c := range conds {
		if i > 0 {
			b.WriteString(sep)
		}
		b.WriteByte('(')
		b.WriteString(c)
		b.WriteByte(')')
	}
	return b.String()
}
