package dbv

import (
	"fmt"
	"reflect"
	"regexp"
	"strings"

	"github.com/pkg/errors"
)

// Table is embedded by value in every row struct. The `dbv` tag on the
// embedded field names the table; without one the snake_case type name is
// used.
//
//	type Marque struct {
//	    dbv.Table    `dbv:"marque"`
//	    ID           dbv.DBInteger `dbv:"uid_marque,pk,autoincrement"`
//	    Name         dbv.DBString  `dbv:"name,notnull"`
//	    CarCompanyID dbv.DBInteger `dbv:"fk_carcompany,fk=car_company.uid_carcompany"`
//	}
type Table struct {
	loaded     bool
	ignoredFKs map[string]struct{}
	returnOnly map[string]struct{}
}

func (t *Table) dbvTable() *Table { return t }

// Row is implemented by pointers to structs embedding Table.
type Row interface {
	dbvTable() *Table
}

func (t *Table) fkIgnored(col string) bool {
	_, ok := t.ignoredFKs[col]
	return ok
}

func (t *Table) returned(ci *ColumnInfo) bool {
	if t.returnOnly == nil || ci.PrimaryKey {
		return true
	}
	_, ok := t.returnOnly[ci.Name]
	return ok
}

// TableInfo is the mapping of one row type.
type TableInfo struct {
	Name        string
	Type        reflect.Type
	Columns     []*ColumnInfo
	PrimaryKeys []*ColumnInfo

	byName map[string]*ColumnInfo
}

// ForeignKey is the target of a foreign key column.
type ForeignKey struct {
	Table  string
	Column string
}

// ColumnInfo is the mapping of one column.
type ColumnInfo struct {
	Name          string
	Field         string
	Kind          ColumnKind
	PrimaryKey    bool
	AutoIncrement bool
	NotNull       bool
	Unique        bool
	References    *ForeignKey

	index []int
}

// Lookup returns the column with the given (case-insensitive) name.
func (ti *TableInfo) Lookup(name string) (*ColumnInfo, bool) {
	ci, ok := ti.byName[strings.ToLower(name)]
	return ci, ok
}

func (ti *TableInfo) generatedKey() *ColumnInfo {
	if len(ti.PrimaryKeys) != 1 || !ti.PrimaryKeys[0].AutoIncrement {
		return nil
	}
	return ti.PrimaryKeys[0]
}

func (ci *ColumnInfo) value(rv reflect.Value) QueryableDatatype {
	return rv.FieldByIndex(ci.index).Addr().Interface().(QueryableDatatype)
}

var (
	tableType = reflect.TypeOf(Table{})
	qdtType   = reflect.TypeOf((*QueryableDatatype)(nil)).Elem()
)

// Inspect returns the mapping of a row's type.
func Inspect(row Row) (*TableInfo, error) {
	info, _, err := inspect(row)
	return info, err
}

// inspect returns the row's mapping and its addressable struct value.
func inspect(row Row) (*TableInfo, reflect.Value, error) {
	rv := reflect.ValueOf(row)
	if !rv.IsValid() || rv.Kind() != reflect.Pointer || rv.IsNil() || rv.Elem().Kind() != reflect.Struct {
		return nil, reflect.Value{}, errors.Wrapf(ErrNotARow, "%T", row)
	}
	info, err := getMapper().tableInfo(rv.Elem().Type())
	if err != nil {
		return nil, reflect.Value{}, err
	}
	return info, rv.Elem(), nil
}

func (m *Mapper) tableInfo(rt reflect.Type) (*TableInfo, error) {
	if v, ok := m.tables.Load(rt); ok {
		return v.(*TableInfo), nil
	}
	info, err := buildTableInfo(rt)
	if err != nil {
		return nil, err
	}
	v, _ := m.tables.LoadOrStore(rt, info)
	return v.(*TableInfo), nil
}

func buildTableInfo(rt reflect.Type) (*TableInfo, error) {
	info := &TableInfo{Type: rt, byName: make(map[string]*ColumnInfo)}
	hasTable := false

	var walk func(t reflect.Type, base []int) error
	walk = func(t reflect.Type, base []int) error {
		for i := 0; i < t.NumField(); i++ {
			sf := t.Field(i)
			path := append(append([]int(nil), base...), i)
			tag, tagged := sf.Tag.Lookup("dbv")

			if sf.Anonymous && sf.Type == tableType {
				hasTable = true
				if tagged && tag != "" {
					info.Name = tag
				}
				continue
			}
			if tag == "-" || (sf.PkgPath != "" && !sf.Anonymous) {
				continue
			}
			if reflect.PointerTo(sf.Type).Implements(qdtType) {
				ci, err := parseColumnTag(sf, tag)
				if err != nil {
					return errors.Wrapf(err, "%s.%s", rt.Name(), sf.Name)
				}
				ci.index = path
				ci.Kind = reflect.New(sf.Type).Interface().(QueryableDatatype).Kind()
				key := strings.ToLower(ci.Name)
				if _, dup := info.byName[key]; dup {
					return errors.Errorf("dbv: %s: duplicate column %q", rt.Name(), ci.Name)
				}
				info.byName[key] = ci
				info.Columns = append(info.Columns, ci)
				if ci.PrimaryKey {
					info.PrimaryKeys = append(info.PrimaryKeys, ci)
				}
				continue
			}
			// Embedded structs contribute their columns.
			if sf.Anonymous && sf.Type.Kind() == reflect.Struct {
				if err := walk(sf.Type, path); err != nil {
					return err
				}
			}
		}
		return nil
	}
	if err := walk(rt, nil); err != nil {
		return nil, err
	}
	if !hasTable {
		return nil, errors.Wrapf(ErrNotARow, "%s does not embed dbv.Table", rt)
	}
	if info.Name == "" {
		info.Name = ToSnakeCase(rt.Name())
	}
	return info, nil
}

// parseColumnTag supports "name,pk,autoincrement,notnull,unique,fk=table.column".
func parseColumnTag(sf reflect.StructField, tag string) (*ColumnInfo, error) {
	ci := &ColumnInfo{Field: sf.Name}
	for i, part := range strings.Split(tag, ",") {
		part = strings.TrimSpace(part)
		if i == 0 {
			ci.Name = part
			continue
		}
		switch {
		case part == "":
		case part == "pk":
			ci.PrimaryKey = true
		case part == "autoincrement":
			ci.AutoIncrement = true
		case part == "notnull":
			ci.NotNull = true
		case part == "unique":
			ci.Unique = true
		case strings.HasPrefix(part, "fk="):
			target := strings.TrimPrefix(part, "fk=")
			dot := strings.LastIndexByte(target, '.')
			if dot <= 0 || dot == len(target)-1 {
				return nil, errors.Errorf("dbv: foreign key %q must be table.column", target)
			}
			ci.References = &ForeignKey{Table: target[:dot], Column: target[dot+1:]}
		default:
			return nil, errors.Errorf("dbv: unknown column option %q", part)
		}
	}
	if ci.Name == "" {
		ci.Name = ToSnakeCase(sf.Name)
	}
	return ci, nil
}

var (
	matchFirstCap = regexp.MustCompile("(.)([A-Z][a-z]+)")
	matchAllCap   = regexp.MustCompile("([a-z0-9])([A-Z])")
)

// ToSnakeCase converts a Go identifier to the default table or column name.
func ToSnakeCase(str string) string {
	snake := matchFirstCap.ReplaceAllString(str, "${1}_${2}")
	snake = matchAllCap.ReplaceAllString(snake, "${1}_${2}")
	return strings.ToLower(snake)
}

// columnFor resolves a pointer to one of the row's fields to its column.
func columnFor(row Row, field QueryableDatatype) (*TableInfo, *ColumnInfo, error) {
	info, rv, err := inspect(row)
	if err != nil {
		return nil, nil, err
	}
	fp := reflect.ValueOf(field)
	if !fp.IsValid() || fp.Kind() != reflect.Pointer || fp.IsNil() {
		return nil, nil, errors.Wrapf(ErrColumnNotFound, "%s: nil field", info.Name)
	}
	for _, ci := range info.Columns {
		f := rv.FieldByIndex(ci.index).Addr()
		if f.Pointer() == fp.Pointer() && f.Type() == fp.Type() {
			return info, ci, nil
		}
	}
	return nil, nil, errors.Wrapf(ErrColumnNotFound, "%s: %T", info.Name, field)
}

// TableName returns the table a row maps to.
func TableName(row Row) (string, error) {
	info, err := Inspect(row)
	if err != nil {
		return "", err
	}
	return info.Name, nil
}

// IsLoaded reports whether the row was read from, or written to, the database.
func IsLoaded(row Row) bool { return row.dbvTable().loaded }

// IgnoreForeignKey stops the given foreign key from joining this row to
// other tables in queries.
func IgnoreForeignKey(row Row, field QueryableDatatype) error {
	_, ci, err := columnFor(row, field)
	if err != nil {
		return err
	}
	if ci.References == nil {
		return errors.Errorf("dbv: column %q is not a foreign key", ci.Name)
	}
	t := row.dbvTable()
	if t.ignoredFKs == nil {
		t.ignoredFKs = make(map[string]struct{})
	}
	t.ignoredFKs[ci.Name] = struct{}{}
	return nil
}

// IgnoreAllForeignKeys ignores every foreign key of the row.
func IgnoreAllForeignKeys(row Row) error {
	info, err := Inspect(row)
	if err != nil {
		return err
	}
	t := row.dbvTable()
	t.ignoredFKs = make(map[string]struct{})
	for _, ci := range info.Columns {
		if ci.References != nil {
			t.ignoredFKs[ci.Name] = struct{}{}
		}
	}
	return nil
}

// UseAllForeignKeys undoes IgnoreForeignKey and IgnoreAllForeignKeys.
func UseAllForeignKeys(row Row) { row.dbvTable().ignoredFKs = nil }

// ReturnColumns limits the columns a query selects for this row. Primary
// keys are always selected.
func ReturnColumns(row Row, fields ...QueryableDatatype) error {
	only := make(map[string]struct{}, len(fields))
	for _, f := range fields {
		_, ci, err := columnFor(row, f)
		if err != nil {
			return err
		}
		only[ci.Name] = struct{}{}
	}
	row.dbvTable().returnOnly = only
	return nil
}

// ReturnAllColumns undoes ReturnColumns.
func ReturnAllColumns(row Row) { row.dbvTable().returnOnly = nil }

// PrimaryKeyValues returns the primary key values of the row in declaration order.
func PrimaryKeyValues(row Row) ([]any, error) {
	info, rv, err := inspect(row)
	if err != nil {
		return nil, err
	}
	if len(info.PrimaryKeys) == 0 {
		return nil, errors.Wrapf(ErrNoPrimaryKey, "%s", info.Name)
	}
	out := make([]any, len(info.PrimaryKeys))
	for i, ci := range info.PrimaryKeys {
		out[i] = ci.value(rv).SQLValue()
	}
	return out, nil
}

// NewRowOf returns a new, empty row of the same type as row.
func NewRowOf(row Row) Row {
	return reflect.New(reflect.TypeOf(row).Elem()).Interface().(Row)
}

// CloneRow returns a copy of row including values, operators and change state.
func CloneRow(row Row) Row {
	rv := reflect.ValueOf(row).Elem()
	cp := reflect.New(rv.Type())
	cp.Elem().Set(rv)
	out := cp.Interface().(Row)
	t := out.dbvTable()
	t.ignoredFKs = cloneSet(t.ignoredFKs)
	t.returnOnly = cloneSet(t.returnOnly)
	return out
}

func cloneSet(in map[string]struct{}) map[string]struct{} {
	if in == nil {
		return nil
	}
	out := make(map[string]struct{}, len(in))
	for k := range in {
		out[k] = struct{}{}
	}
	return out
}

// markStored marks every column unchanged and the row loaded.
func markStored(info *TableInfo, rv reflect.Value) {
	for _, ci := range info.Columns {
		ci.value(rv).state().SetUnchanged()
	}
	rv.Addr().Interface().(Row).dbvTable().loaded = true
}

// rowKey identifies a row by its primary key, or by all values without one.
func rowKey(info *TableInfo, rv reflect.Value) string {
	cols := info.PrimaryKeys
	if len(cols) == 0 {
		cols = info.Columns
	}
	var b strings.Builder
	for _, ci := range cols {
		fmt.Fprintf(&b, "%v\x00", ci.value(rv).SQLValue())
	}
	return b.String()
}
