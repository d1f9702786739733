package dbv

import (
	"context"
	"database/sql"
	"database/sql/driver"
	"reflect"
	"strconv"
	"strings"
	"time"
	"unicode"
	"unicode/utf8"

	"github.com/pkg/errors"
)

// Placeholder selects the positional parameter style of a dialect.
//
//   - PlaceholderQuestion → "?"          (MySQL, SQLite)
//   - PlaceholderDollar   → "$1, $2, …"  (PostgreSQL)
//   - PlaceholderAtP      → "@p1, @p2…"  (SQL Server)
//   - PlaceholderColonNum → ":1, :2, …"  (Oracle)
type Placeholder int

const (
	PlaceholderQuestion Placeholder = iota
	PlaceholderDollar
	PlaceholderAtP
	PlaceholderColonNum
)

var (
	// ErrNilParams is returned when named binding is requested with a nil value.
	ErrNilParams = errors.New("dbv: named bind: nil params")

	// ErrUnsupportedArg is returned when the single named-binding argument is
	// not a row, a struct or a map[string]any.
	ErrUnsupportedArg = errors.New("dbv: named bind: params must be a row, struct or map[string]any")

	// ErrDuplicateKeyTag is returned when two struct fields resolve to the
	// same parameter name.
	ErrDuplicateKeyTag = errors.New("dbv: named bind: duplicate key from struct tags/fields")
)

// Rebind resolves :named parameters and rewrites '?' to the placeholder style.
//
// With exactly one row, struct or map[string]any, :name tokens are bound from
// it (rows bind by column name); slices expand to a list and an empty slice
// becomes NULL. Any other params are passed through as positional arguments.
// Quoted strings, identifiers, comments, PostgreSQL casts (::) and
// dollar-quoted blocks are left untouched.
func Rebind(ph Placeholder, query string, params ...any) (string, []any, error) {
	return rebind(ph, nil, query, params...)
}

// rebind is Rebind with row values adapted by def's ConvertValue, when def
// is not nil.
func rebind(ph Placeholder, def Definition, query string, params ...any) (string, []any, error) {
	if len(params) == 1 && looksBindable(params[0]) {
		positional, args, err := bindNamed(query, params[0], def)
		if err != nil {
			return "", nil, err
		}
		return rewritePlaceholders(positional, ph), args, nil
	}
	return rewritePlaceholders(query, ph), params, nil
}

// ExecSQL runs hand-written SQL with named or positional parameters,
// rewritten for the database's dialect.
func (d *Database) ExecSQL(ctx context.Context, query string, params ...any) (sql.Result, error) {
	bound, args, err := rebind(d.def.Placeholder(), d.def, query, params...)
	if err != nil {
		return nil, err
	}
	return d.ExecContext(ctx, bound, args...)
}

// QuerySQL runs a hand-written query like ExecSQL and returns the raw rows.
func (d *Database) QuerySQL(ctx context.Context, query string, params ...any) (*sql.Rows, error) {
	bound, args, err := rebind(d.def.Placeholder(), d.def, query, params...)
	if err != nil {
		return nil, err
	}
	return d.QueryContext(ctx, bound, args...)
}

// sqlLexer walks SQL text, stepping over regions where '?' and ':' are
// literal text.
type sqlLexer struct {
	s string
}

// literal reports the end of a literal region starting at i, if any.
func (l sqlLexer) literal(i int) (end int, ok bool, err error) {
	s := l.s
	switch s[i] {
	case '\'', '"', '`':
		end, err = l.quoted(i+1, s[i])
		return end, true, err
	case '-':
		if strings.HasPrefix(s[i:], "--") {
			if nl := strings.IndexByte(s[i:], '\n'); nl >= 0 {
				return i + nl + 1, true, nil
			}
			return len(s), true, nil
		}
	case '/':
		if strings.HasPrefix(s[i:], "/*") {
			if j := strings.Index(s[i+2:], "*/"); j >= 0 {
				return i + 2 + j + 2, true, nil
			}
			return 0, true, errors.New("dbv: unterminated block comment")
		}
	case '$':
		return l.dollarQuoted(i)
	}
	return 0, false, nil
}

// quoted finds the end of a quoted region; doubled quotes are escapes.
func (l sqlLexer) quoted(i int, q byte) (int, error) {
	s := l.s
	for i < len(s) {
		if s[i] == q {
			if i+1 < len(s) && s[i+1] == q {
				i += 2
				continue
			}
			return i + 1, nil
		}
		i++
	}
	return 0, errors.Errorf("dbv: unterminated %c-quoted text", q)
}

// dollarQuoted handles $$...$$ and $tag$...$tag$ (PostgreSQL).
func (l sqlLexer) dollarQuoted(i int) (int, bool, error) {
	s := l.s
	j := i + 1
	for j < len(s) && s[j] != '$' && isIdentRune(rune(s[j])) {
		j++
	}
	if j >= len(s) || s[j] != '$' {
		return 0, false, nil
	}
	tag := s[i : j+1]
	idx := strings.Index(s[j+1:], tag)
	if idx < 0 {
		return 0, true, errors.New("dbv: unterminated dollar-quoted string")
	}
	return j + 1 + idx + len(tag), true, nil
}

func isIdentRune(r rune) bool { return r == '_' || unicode.IsLetter(r) || unicode.IsDigit(r) }

type nameToken struct {
	name       string
	start, end int
}

func findNamedParams(query string) ([]nameToken, error) {
	lx := sqlLexer{s: query}
	var out []nameToken
	for i := 0; i < len(query); {
		end, ok, err := lx.literal(i)
		if err != nil {
			return nil, err
		}
		if ok {
			i = end
			continue
		}
		if query[i] == ':' {
			if strings.HasPrefix(query[i:], "::") {
				i += 2
				continue
			}
			j := i + 1
			for j < len(query) {
				r, w := utf8.DecodeRuneInString(query[j:])
				if !isIdentRune(r) {
					break
				}
				j += w
			}
			if j > i+1 {
				out = append(out, nameToken{name: query[i+1 : j], start: i, end: j})
				i = j
				continue
			}
		}
		_, w := utf8.DecodeRuneInString(query[i:])
		i += w
	}
	return out, nil
}

// rewritePlaceholders numbers '?' outside literal regions for ph.
func rewritePlaceholders(query string, ph Placeholder) string {
	if ph == PlaceholderQuestion {
		return query
	}
	lx := sqlLexer{s: query}
	out := make([]byte, 0, len(query)+16)
	arg := 1
	for i := 0; i < len(query); {
		if end, ok, _ := lx.literal(i); ok && end > i {
			out = append(out, query[i:end]...)
			i = end
			continue
		}
		if query[i] != '?' {
			out = append(out, query[i])
			i++
			continue
		}
		switch ph {
		case PlaceholderDollar:
			out = append(out, '$')
		case PlaceholderAtP:
			out = append(out, '@', 'p')
		case PlaceholderColonNum:
			out = append(out, ':')
		}
		out = strconv.AppendInt(out, int64(arg), 10)
		arg++
		i++
	}
	return string(out)
}

func looksBindable(v any) bool {
	if _, ok := v.(Row); ok {
		return true
	}
	rv := reflect.ValueOf(v)
	for rv.Kind() == reflect.Pointer {
		if rv.IsNil() {
			return false
		}
		rv = rv.Elem()
	}
	if rv.Kind() == reflect.Map {
		return rv.Type().Key().Kind() == reflect.String
	}
	if rv.Kind() != reflect.Struct || rv.Type() == reflect.TypeOf(time.Time{}) {
		return false
	}
	_, valuer := v.(driver.Valuer)
	return !valuer
}

func bindNamed(query string, params any, def Definition) (string, []any, error) {
	if params == nil {
		return "", nil, ErrNilParams
	}
	toks, err := findNamedParams(query)
	if err != nil {
		return "", nil, err
	}
	if len(toks) == 0 {
		return query, nil, nil
	}
	lookup, err := paramLookup(params, def)
	if err != nil {
		return "", nil, err
	}

	var b strings.Builder
	b.Grow(len(query))
	args := make([]any, 0, len(toks))
	last := 0
	for _, t := range toks {
		b.WriteString(query[last:t.start])
		val, ok := lookup[strings.ToLower(t.name)]
		if !ok {
			return "", nil, errors.Errorf("dbv: named bind: missing value for :%s", t.name)
		}
		if rv := reflect.ValueOf(val); isListValue(val, rv) {
			if rv.Len() == 0 {
				b.WriteString("NULL")
			}
			for i := 0; i < rv.Len(); i++ {
				if i > 0 {
					b.WriteByte(',')
				}
				b.WriteByte('?')
				args = append(args, rv.Index(i).Interface())
			}
		} else {
			b.WriteByte('?')
			args = append(args, val)
		}
		last = t.end
	}
	b.WriteString(query[last:])
	return b.String(), args, nil
}

// isListValue reports whether a named value expands to a comma list.
// []byte, byte arrays (uuid.UUID) and driver.Valuer values are scalars.
func isListValue(val any, rv reflect.Value) bool {
	if !rv.IsValid() {
		return false
	}
	if _, ok := val.(driver.Valuer); ok {
		return false
	}
	switch rv.Kind() {
	case reflect.Slice, reflect.Array:
		return rv.Type().Elem().Kind() != reflect.Uint8
	}
	return false
}

// paramLookup flattens params into lower-case name -> value. Row values go
// through def when it is set.
func paramLookup(params any, def Definition) (map[string]any, error) {
	if row, ok := params.(Row); ok {
		info, rv, err := inspect(row)
		if err != nil {
			return nil, err
		}
		m := make(map[string]any, len(info.Columns))
		for _, ci := range info.Columns {
			v := ci.value(rv).SQLValue()
			if def != nil {
				v = def.ConvertValue(ci.Kind, v)
			}
			m[strings.ToLower(ci.Name)] = v
		}
		return m, nil
	}
	rv := reflect.ValueOf(params)
	for rv.Kind() == reflect.Pointer {
		if rv.IsNil() {
			return nil, ErrNilParams
		}
		rv = rv.Elem()
	}
	switch rv.Kind() {
	case reflect.Map:
		if rv.Type().Key().Kind() != reflect.String {
			return nil, ErrUnsupportedArg
		}
		m := make(map[string]any, rv.Len())
		iter := rv.MapRange()
		for iter.Next() {
			m[strings.ToLower(iter.Key().String())] = iter.Value().Interface()
		}
		return m, nil
	case reflect.Struct:
		m := make(map[string]any)
		if err := addStructFields(m, rv); err != nil {
			return nil, err
		}
		return m, nil
	}
	return nil, ErrUnsupportedArg
}

func addStructFields(dst map[string]any, v reflect.Value) error {
	t := v.Type()
	for i := 0; i < t.NumField(); i++ {
		f := t.Field(i)
		if f.PkgPath != "" && !f.Anonymous {
			continue
		}
		if f.Anonymous {
			fv := v.Field(i)
			for fv.Kind() == reflect.Pointer && !fv.IsNil() {
				fv = fv.Elem()
			}
			if fv.Kind() == reflect.Struct {
				if err := addStructFields(dst, fv); err != nil {
					return err
				}
				continue
			}
			if fv.Kind() == reflect.Pointer {
				continue
			}
		}
		tag := f.Tag.Get("db")
		if tag == "-" {
			continue
		}
		name := tag
		if name == "" {
			name = f.Name
		}
		key := strings.ToLower(name)
		if _, exists := dst[key]; exists {
			return errors.Wrapf(ErrDuplicateKeyTag, "%q", key)
		}
		dst[key] = v.Field(i).Interface()
	}
	return nil
}
