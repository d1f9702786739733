package dbv

import (
	"context"
	"database/sql"
	"hash/fnv"
	"reflect"
	"sync"

	"github.com/pkg/errors"
)

// Mapper owns the reflection caches. Use the package-level lazy getter
// (getMapper) or create your own in tests.
type Mapper struct {
	tables sync.Map // reflect.Type -> *TableInfo
	plans  sync.Map // planKey -> *scanPlan
}

func NewMapper() *Mapper { return &Mapper{} }

var (
	mapper     *Mapper
	mapperOnce sync.Once
)

func getMapper() *Mapper {
	mapperOnce.Do(func() { mapper = NewMapper() })
	return mapper
}

type planKey struct {
	rt    reflect.Type
	hash  uint64 // FNV-1a of normalized columns
	ncols int
}

// scanPlan maps result columns to row columns; nil entries are dropped.
type scanPlan struct {
	info *TableInfo
	cols []*ColumnInfo
}

func (m *Mapper) getPlan(info *TableInfo, cols []string) *scanPlan {
	h := fnv.New64a()
	for i := range cols {
		cols[i] = normalizeColAscii(cols[i])
		_, _ = h.Write([]byte(cols[i]))
		_, _ = h.Write([]byte{0})
	}
	key := planKey{rt: info.Type, hash: h.Sum64(), ncols: len(cols)}
	if v, ok := m.plans.Load(key); ok {
		return v.(*scanPlan)
	}
	p := &scanPlan{info: info, cols: make([]*ColumnInfo, len(cols))}
	for i, c := range cols {
		if ci, ok := info.Lookup(c); ok {
			p.cols[i] = ci
		}
	}
	m.plans.Store(key, p)
	return p
}

// ScanRows runs query and maps every result row into a new T by column name.
// Columns without a matching row column are dropped; row columns missing
// from the result stay undefined.
//
//	marques, err := dbv.ScanRows[*Marque](ctx, db, "SELECT * FROM marque WHERE name LIKE ?", "T%")
func ScanRows[T Row](ctx context.Context, q Querier, query string, args ...any) ([]T, error) {
	var zero T
	info, err := rowTypeInfo(zero)
	if err != nil {
		return nil, err
	}
	rows, err := q.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	return scanAll[T](getMapper(), info, rows)
}

func scanAll[T Row](m *Mapper, info *TableInfo, rows *sql.Rows) ([]T, error) {
	cols, err := rows.Columns()
	if err != nil {
		return nil, err
	}
	if len(cols) == 0 {
		return nil, errors.New("dbv: query returned zero columns")
	}
	sc := newRowScanner(m.getPlan(info, cols))

	var out []T
	for rows.Next() {
		rv, err := sc.scan(rows)
		if err != nil {
			return nil, err
		}
		out = append(out, rv.Interface().(T))
	}
	if err := rows.Err(); err != nil {
		return nil, err
	}
	return out, nil
}

// rowScanner reuses its destination slices across rows.
type rowScanner struct {
	pl    *scanPlan
	vals  []any
	dests []any
}

func newRowScanner(pl *scanPlan) *rowScanner {
	sc := &rowScanner{pl: pl, vals: make([]any, len(pl.cols)), dests: make([]any, len(pl.cols))}
	for i := range sc.vals {
		sc.dests[i] = &sc.vals[i]
	}
	return sc
}

// scan reads the current result row into a new row pointer.
func (sc *rowScanner) scan(rows *sql.Rows) (reflect.Value, error) {
	if err := rows.Scan(sc.dests...); err != nil {
		return reflect.Value{}, err
	}
	rv := reflect.New(sc.pl.info.Type)
	if err := loadColumns(rv.Elem(), sc.pl.cols, sc.vals); err != nil {
		return reflect.Value{}, err
	}
	return rv, nil
}

// rowTypeInfo returns the mapping of a row type given its (possibly nil)
// pointer value.
func rowTypeInfo(row Row) (*TableInfo, error) {
	rt := reflect.TypeOf(row)
	if rt == nil || rt.Kind() != reflect.Pointer || rt.Elem().Kind() != reflect.Struct {
		return nil, errors.Wrapf(ErrNotARow, "%T", row)
	}
	return getMapper().tableInfo(rt.Elem())
}

// loadColumns stores scanned driver values into the row's columns and marks
// the row loaded.
func loadColumns(rv reflect.Value, cols []*ColumnInfo, vals []any) error {
	for i, ci := range cols {
		if ci == nil {
			continue
		}
		v, err := convertValue(ci.Kind, vals[i])
		if err != nil {
			return errors.Wrapf(err, "column %s", ci.Name)
		}
		ci.value(rv).state().load(v)
	}
	rv.Addr().Interface().(Row).dbvTable().loaded = true
	return nil
}

// normalizeColAscii strips identifier quotes and lower-cases ASCII.
func normalizeColAscii(s string) string {
	if l := len(s); l >= 2 {
		switch s[0] {
		case '"':
			if s[l-1] == '"' {
				s = s[1 : l-1]
			}
		case '`':
			if s[l-1] == '`' {
				s = s[1 : l-1]
			}
		case '[':
			if s[l-1] == ']' {
				s = s[1 : l-1]
			}
		}
	}
	return toLowerAscii(s)
}

func toLowerAscii(s string) string {
	var need bool
	for i := 0; i < len(s); i++ {
		c := s[i]
		if 'A' <= c && c <= 'Z' {
			need = true
			break
		}
	}
	if !need {
		return s
	}
	b := make([]byte, len(s))
	for i := 0; i < len(s); i++ {
		c := s[i]
		if 'A' <= c && c <= 'Z' {
			c = c + ('a' - 'A')
		}
		b[i] = c
	}
	return string(b)
}
