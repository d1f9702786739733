package dbv

import (
	"strings"
)

type tableOptions struct {
	ifNotExists bool
	foreignKeys bool
}

// TableOption configures CreateTable.
type TableOption func(*tableOptions)

// IfNotExists skips creation when the table exists, where the dialect
// supports it.
func IfNotExists() TableOption { return func(o *tableOptions) { o.ifNotExists = true } }

// WithForeignKeys adds FOREIGN KEY constraints for fk= columns.
func WithForeignKeys() TableOption { return func(o *tableOptions) { o.foreignKeys = true } }

// CreateTableStatement renders the CREATE TABLE statement of row's table.
func CreateTableStatement(def Definition, row Row, opts ...TableOption) (Statement, error) {
	info, err := Inspect(row)
	if err != nil {
		return Statement{}, err
	}
	var o tableOptions
	for _, opt := range opts {
		opt(&o)
	}

	gen := info.generatedKey()
	inlinePK := false
	defs := make([]string, 0, len(info.Columns)+2)
	for _, ci := range info.Columns {
		col := def.QuoteIdentifier(ci.Name) + " "
		if ci == gen {
			spec, inline := def.AutoIncrementColumn(ci.Kind)
			col += spec
			inlinePK = inline
		} else {
			col += def.ColumnType(ci.Kind)
			if ci.NotNull || ci.PrimaryKey {
				col += " NOT NULL"
			}
		}
		if ci.Unique && !ci.PrimaryKey {
			col += " UNIQUE"
		}
		defs = append(defs, col)
	}
	if len(info.PrimaryKeys) > 0 && !inlinePK {
		defs = append(defs, "PRIMARY KEY ("+quoteColumns(def, info.PrimaryKeys)+")")
	}
	if o.foreignKeys {
		for _, ci := range info.Columns {
			if fk := ci.References; fk != nil {
				defs = append(defs, "FOREIGN KEY ("+def.QuoteIdentifier(ci.Name)+") REFERENCES "+
					def.QuoteIdentifier(fk.Table)+" ("+def.QuoteIdentifier(fk.Column)+")")
			}
		}
	}

	var b strings.Builder
	b.WriteString(def.CreateTable(o.ifNotExists))
	b.WriteString(def.QuoteIdentifier(info.Name))
	b.WriteString(" (")
	b.WriteString(strings.Join(defs, ", "))
	b.WriteString(")")
	return Statement{SQL: b.String()}, nil
}

func quoteColumns(def Definition, cols []*ColumnInfo) string {
	names := make([]string, len(cols))
	for i, ci := range cols {
		names[i] = def.QuoteIdentifier(ci.Name)
	}
	return strings.Join(names, ", ")
}
