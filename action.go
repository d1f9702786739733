package dbv

import (
	"context"
	"reflect"
	"strings"

	"github.com/pkg/errors"
)

// ActionKind is the kind of change an Action makes.
type ActionKind uint8

const (
	ActionInsert ActionKind = iota + 1
	ActionUpdate
	ActionDelete
)

func (k ActionKind) String() string {
	switch k {
	case ActionInsert:
		return "insert"
	case ActionUpdate:
		return "update"
	case ActionDelete:
		return "delete"
	default:
		return "unknown"
	}
}

// Action is one insert, update or delete of a row. Actions returned by
// Database.Insert, Update and Delete have run and keep a snapshot of what
// they changed, from which Revert builds the opposite actions.
type Action struct {
	kind ActionKind
	row  Row

	executed bool
	// deleted holds the rows a delete removed.
	deleted []Row
}

// NewInsert returns an action inserting row.
func NewInsert(row Row) *Action { return &Action{kind: ActionInsert, row: row} }

// NewUpdate returns an action writing the changed columns of row.
func NewUpdate(row Row) *Action { return &Action{kind: ActionUpdate, row: row} }

// NewDelete returns an action deleting row: by primary key when it is
// defined, otherwise every row matching row as an example.
func NewDelete(row Row) *Action { return &Action{kind: ActionDelete, row: row} }

func (a *Action) Kind() ActionKind { return a.kind }

// Row returns the row of the action. For executed actions it is a snapshot.
func (a *Action) Row() Row { return a.row }

// Deleted returns the rows an executed delete removed.
func (a *Action) Deleted() []Row { return append([]Row(nil), a.deleted...) }

// Statements renders the SQL of the action for def.
func (a *Action) Statements(def Definition) ([]Statement, error) {
	info, rv, err := inspect(a.row)
	if err != nil {
		return nil, err
	}
	var st Statement
	switch a.kind {
	case ActionInsert:
		st = insertStatement(def, info, rv)
	case ActionUpdate:
		var ok bool
		st, ok, err = updateStatement(def, info, rv)
		if err != nil || !ok {
			return nil, err
		}
	case ActionDelete:
		st, err = deleteStatement(def, info, rv)
	default:
		err = errors.Errorf("dbv: unknown action %d", a.kind)
	}
	if err != nil {
		return nil, err
	}
	return []Statement{st}, nil
}

// Revert returns the actions undoing an executed action: a delete of an
// inserted row, an update back to the previous values, or inserts of the
// deleted rows.
func (a *Action) Revert() (ActionList, error) {
	if !a.executed {
		return nil, errors.Errorf("dbv: %s has not been executed", a.kind)
	}
	info, rv, err := inspect(a.row)
	if err != nil {
		return nil, err
	}
	switch a.kind {
	case ActionInsert:
		if hasKey(info, rv) {
			return ActionList{NewDelete(keyRow(info, rv))}, nil
		}
		return ActionList{NewDelete(exampleRow(info, rv))}, nil
	case ActionUpdate:
		back, ok := revertUpdateRow(info, rv)
		if !ok {
			return nil, nil
		}
		return ActionList{NewUpdate(back)}, nil
	case ActionDelete:
		out := make(ActionList, 0, len(a.deleted))
		for _, r := range a.deleted {
			out = append(out, NewInsert(CloneRow(r)))
		}
		return out, nil
	}
	return nil, errors.Errorf("dbv: unknown action %d", a.kind)
}

// execute runs the action against d and returns its executed record, or nil
// when there was nothing to do.
func (a *Action) execute(ctx context.Context, d *Database) (*Action, error) {
	info, rv, err := inspect(a.row)
	if err != nil {
		return nil, err
	}
	switch a.kind {
	case ActionInsert:
		return d.insert(ctx, a.row, info, rv)
	case ActionUpdate:
		return d.update(ctx, a.row, info, rv)
	case ActionDelete:
		return d.delete(ctx, a.row, info, rv)
	}
	return nil, errors.Errorf("dbv: unknown action %d", a.kind)
}

// ActionList is an ordered list of actions.
type ActionList []*Action

// Statements renders every action for def, in order.
func (l ActionList) Statements(def Definition) ([]Statement, error) {
	var out []Statement
	for _, a := range l {
		st, err := a.Statements(def)
		if err != nil {
			return nil, err
		}
		out = append(out, st...)
	}
	return out, nil
}

// Revert returns the actions undoing the list, last action first.
func (l ActionList) Revert() (ActionList, error) {
	var out ActionList
	for i := len(l) - 1; i >= 0; i-- {
		r, err := l[i].Revert()
		if err != nil {
			return nil, err
		}
		out = append(out, r...)
	}
	return out, nil
}

// Execute runs the actions in one transaction and returns what ran.
func (l ActionList) Execute(ctx context.Context, db *Database) (ActionList, error) {
	var out ActionList
	err := db.Transaction(ctx, func(tx *Database) error {
		out = out[:0]
		for _, a := range l {
			done, err := a.execute(ctx, tx)
			if err != nil {
				return err
			}
			if done != nil {
				out = append(out, done)
			}
		}
		return nil
	})
	if err != nil {
		return nil, err
	}
	return out, nil
}

// Insert inserts rows, filling generated keys back into them.
func (d *Database) Insert(ctx context.Context, rows ...Row) (ActionList, error) {
	return d.run(ctx, ActionInsert, rows)
}

// Update writes the changed columns of rows. Unchanged rows are skipped.
func (d *Database) Update(ctx context.Context, rows ...Row) (ActionList, error) {
	return d.run(ctx, ActionUpdate, rows)
}

// Delete deletes rows by primary key, or by example for rows without a
// defined key.
func (d *Database) Delete(ctx context.Context, rows ...Row) (ActionList, error) {
	return d.run(ctx, ActionDelete, rows)
}

func (d *Database) run(ctx context.Context, kind ActionKind, rows []Row) (ActionList, error) {
	var out ActionList
	for _, r := range rows {
		done, err := (&Action{kind: kind, row: r}).execute(ctx, d)
		if err != nil {
			return out, err
		}
		if done != nil {
			out = append(out, done)
		}
	}
	return out, nil
}

func (d *Database) insert(ctx context.Context, row Row, info *TableInfo, rv reflect.Value) (*Action, error) {
	st := insertStatement(d.def, info, rv)
	gen := info.generatedKey()
	if gen != nil && !gen.value(rv).IsNull() {
		gen = nil
	}

	switch {
	case gen == nil || d.def.KeyStrategy() == NoGeneratedKeys:
		if _, err := d.exec(ctx, st); err != nil {
			return nil, errors.Wrapf(err, "dbv: insert into %s", info.Name)
		}
	case d.def.KeyStrategy() == LastInsertID:
		res, err := d.exec(ctx, st)
		if err != nil {
			return nil, errors.Wrapf(err, "dbv: insert into %s", info.Name)
		}
		id, err := res.LastInsertId()
		if err != nil {
			return nil, errors.Wrapf(err, "dbv: %s: generated key", info.Name)
		}
		if err := setGenerated(gen, rv, id); err != nil {
			return nil, err
		}
	default:
		var id any
		if err := d.queryValue(ctx, st, &id); err != nil {
			return nil, errors.Wrapf(err, "dbv: insert into %s", info.Name)
		}
		if err := setGenerated(gen, rv, id); err != nil {
			return nil, err
		}
	}
	markStored(info, rv)
	return &Action{kind: ActionInsert, row: CloneRow(row), executed: true}, nil
}

func (d *Database) queryValue(ctx context.Context, st Statement, dest any) (err error) {
	rows, err := d.query(ctx, st)
	if err != nil {
		return err
	}
	defer func() {
		if cerr := rows.Close(); cerr != nil && err == nil {
			err = cerr
		}
	}()
	if !rows.Next() {
		if err := rows.Err(); err != nil {
			return err
		}
		return errors.New("dbv: statement returned no rows")
	}
	return rows.Scan(dest)
}

func setGenerated(ci *ColumnInfo, rv reflect.Value, raw any) error {
	v, err := convertValue(ci.Kind, raw)
	if err != nil {
		return errors.Wrapf(err, "dbv: generated key %s", ci.Name)
	}
	ci.value(rv).state().load(v)
	return nil
}

func (d *Database) update(ctx context.Context, row Row, info *TableInfo, rv reflect.Value) (*Action, error) {
	st, ok, err := updateStatement(d.def, info, rv)
	if err != nil || !ok {
		return nil, err
	}
	snapshot := CloneRow(row)
	if _, err := d.exec(ctx, st); err != nil {
		return nil, errors.Wrapf(err, "dbv: update %s", info.Name)
	}
	markStored(info, rv)
	return &Action{kind: ActionUpdate, row: snapshot, executed: true}, nil
}

func (d *Database) delete(ctx context.Context, row Row, info *TableInfo, rv reflect.Value) (*Action, error) {
	// Removed rows are read with every column.
	var target Row
	if hasKey(info, rv) {
		target = keyRow(info, rv)
	} else {
		target = CloneRow(row)
		ReturnAllColumns(target)
	}
	st, err := deleteStatement(d.def, info, rv)
	if err != nil {
		return nil, err
	}
	found, err := d.Query(target).GetAll(ctx)
	if err != nil {
		return nil, errors.Wrapf(err, "dbv: delete from %s: read rows", info.Name)
	}
	deleted := make([]Row, 0, len(found))
	for _, qr := range found {
		deleted = append(deleted, qr.rows[0])
	}
	if _, err := d.exec(ctx, st); err != nil {
		return nil, errors.Wrapf(err, "dbv: delete from %s", info.Name)
	}
	row.dbvTable().loaded = false
	return &Action{kind: ActionDelete, row: CloneRow(row), executed: true, deleted: deleted}, nil
}

func insertStatement(def Definition, info *TableInfo, rv reflect.Value) Statement {
	r := newRenderer(def)
	gen := info.generatedKey()
	var cols, vals []string
	for _, ci := range info.Columns {
		st := ci.value(rv).state()
		if !st.defined || (ci == gen && st.null) {
			continue
		}
		cols = append(cols, def.QuoteIdentifier(ci.Name))
		vals = append(vals, r.bind(ci.Kind, st.SQLValue()))
	}
	returnKey := gen != nil && gen.value(rv).IsNull()

	table := def.QuoteIdentifier(info.Name)
	var b strings.Builder
	output := ""
	if returnKey && def.KeyStrategy() == OutputInserted {
		output = " OUTPUT INSERTED." + def.QuoteIdentifier(gen.Name)
	}
	switch {
	case len(cols) > 0:
		b.WriteString("INSERT INTO " + table + " (" + strings.Join(cols, ", ") + ")")
		b.WriteString(output)
		b.WriteString(" VALUES (" + strings.Join(vals, ", ") + ")")
	case output != "":
		b.WriteString("INSERT INTO " + table + output + " DEFAULT VALUES")
	default:
		b.WriteString(def.InsertDefaultValues(table))
	}
	if returnKey && def.KeyStrategy() == Returning {
		b.WriteString(" RETURNING " + def.QuoteIdentifier(gen.Name))
	}
	return r.finish(b.String())
}

// updateStatement renders the update of the changed columns; ok is false
// when nothing changed.
func updateStatement(def Definition, info *TableInfo, rv reflect.Value) (st Statement, ok bool, err error) {
	if len(info.PrimaryKeys) == 0 {
		return Statement{}, false, errors.Wrapf(ErrNoPrimaryKey, "%s", info.Name)
	}
	r := newRenderer(def)
	var sets []string
	for _, ci := range info.Columns {
		s := ci.value(rv).state()
		if !s.changed || (ci.PrimaryKey && !s.hasPrev) {
			continue
		}
		sets = append(sets, def.QuoteIdentifier(ci.Name)+" = "+r.bind(ci.Kind, s.SQLValue()))
	}
	if len(sets) == 0 {
		return Statement{}, false, nil
	}
	where, err := keyConditions(r, info, rv, true)
	if err != nil {
		return Statement{}, false, err
	}
	return r.finish("UPDATE " + def.QuoteIdentifier(info.Name) + " SET " + strings.Join(sets, ", ") +
		" WHERE " + where), true, nil
}

func deleteStatement(def Definition, info *TableInfo, rv reflect.Value) (Statement, error) {
	r := newRenderer(def)
	var where string
	if hasKey(info, rv) {
		w, err := keyConditions(r, info, rv, false)
		if err != nil {
			return Statement{}, err
		}
		where = w
	} else {
		conds := r.rowConditions("", info, rv)
		if len(conds) == 0 {
			return Statement{}, errors.Wrapf(ErrBlankQuery, "delete from %s", info.Name)
		}
		where = combine(conds, " AND ")
	}
	return r.finish("DELETE FROM " + def.QuoteIdentifier(info.Name) + " WHERE " + where), nil
}

// keyConditions matches the row's primary key. With previous set, a changed
// key matches its value before the change.
func keyConditions(r *renderer, info *TableInfo, rv reflect.Value, previous bool) (string, error) {
	conds := make([]string, 0, len(info.PrimaryKeys))
	for _, ci := range info.PrimaryKeys {
		s := ci.value(rv).state()
		v := s.SQLValue()
		if previous {
			if p, ok := s.Previous(); ok {
				v = p
			}
		}
		if v == nil {
			return "", errors.Wrapf(ErrNoPrimaryKey, "%s.%s is not set", info.Name, ci.Name)
		}
		conds = append(conds, r.qualify("", ci.Name)+" = "+r.bind(ci.Kind, v))
	}
	return combine(conds, " AND "), nil
}

func hasKey(info *TableInfo, rv reflect.Value) bool {
	if len(info.PrimaryKeys) == 0 {
		return false
	}
	for _, ci := range info.PrimaryKeys {
		if ci.value(rv).IsNull() {
			return false
		}
	}
	return true
}

// keyRow returns a new row holding only the primary key of rv.
func keyRow(info *TableInfo, rv reflect.Value) Row {
	out := reflect.New(info.Type)
	for _, ci := range info.PrimaryKeys {
		ci.value(out.Elem()).state().load(ci.value(rv).SQLValue())
	}
	return out.Interface().(Row)
}

// exampleRow returns a new row with the defined values of rv and no operators.
func exampleRow(info *TableInfo, rv reflect.Value) Row {
	out := reflect.New(info.Type)
	for _, ci := range info.Columns {
		if s := ci.value(rv).state(); s.defined {
			ci.value(out.Elem()).state().load(s.SQLValue())
		}
	}
	return out.Interface().(Row)
}

// revertUpdateRow returns a row that, updated, restores the values rv held
// before its changes.
func revertUpdateRow(info *TableInfo, rv reflect.Value) (Row, bool) {
	out := reflect.New(info.Type)
	reverted := false
	for _, ci := range info.Columns {
		s := ci.value(rv).state()
		ns := ci.value(out.Elem()).state()
		if !s.defined {
			continue
		}
		ns.load(s.SQLValue())
		if prev, ok := s.Previous(); s.changed && ok {
			ns.assign(prev, prev == nil)
			reverted = true
		}
	}
	return out.Interface().(Row), reverted
}
