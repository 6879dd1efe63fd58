// Package dataset holds an in-memory, schema-agnostic copy of database tables.
//
// A Dataset is an ordered list of tables, each an ordered list of rows, each an
// ordered list of named, typed column values. Order is significant everywhere:
// tables are listed parents-first so that replaying them in sequence satisfies
// foreign keys, and rows keep their insertion order.
package dataset

import (
	"errors"
	"fmt"
	"slices"
)

// Field is one named column value within a row.
type Field struct {
	Column string
	Value  Value
}

// F is shorthand for building a Field.
func F(column string, value Value) Field {
	return Field{Column: column, Value: value}
}

// Row is an ordered set of column values.
type Row struct {
	fields []Field
}

// NewRow builds a row from fields, keeping their order.
func NewRow(fields ...Field) Row {
	return Row{fields: slices.Clone(fields)}
}

// Fields returns a copy of the row's fields.
func (r Row) Fields() []Field { return slices.Clone(r.fields) }

// Len returns the number of columns in the row.
func (r Row) Len() int { return len(r.fields) }

// Columns returns the column names in order.
func (r Row) Columns() []string {
	names := make([]string, len(r.fields))
	for i, f := range r.fields {
		names[i] = f.Column
	}
	return names
}

// Get returns the value of column.
func (r Row) Get(column string) (Value, bool) {
	for _, f := range r.fields {
		if f.Column == column {
			return f.Value, true
		}
	}
	return Value{}, false
}

// Equal reports whether both rows hold the same columns and values in order.
func (r Row) Equal(other Row) bool {
	return slices.EqualFunc(r.fields, other.fields, func(a, b Field) bool {
		return a.Column == b.Column && a.Value.Equal(b.Value)
	})
}

// Table is the captured content of one database table.
type Table struct {
	Name    string
	Columns []string
	Rows    []Row
}

// Dataset is a named capture of a set of tables.
type Dataset struct {
	Name   string
	Tables []Table
}

// Table returns the table called name.
func (d Dataset) Table(name string) (Table, bool) {
	for _, t := range d.Tables {
		if t.Name == name {
			return t, true
		}
	}
	return Table{}, false
}

// TableNames returns the table names in order.
func (d Dataset) TableNames() []string {
	names := make([]string, len(d.Tables))
	for i, t := range d.Tables {
		names[i] = t.Name
	}
	return names
}

// RowCount returns the total number of rows across all tables.
func (d Dataset) RowCount() int {
	total := 0
	for _, t := range d.Tables {
		total += len(t.Rows)
	}
	return total
}

// Validate checks structural invariants: table names are present and unique,
// column lists are non-empty and unique, and every row carries exactly the
// table's columns in order with valid values.
func (d Dataset) Validate() error {
	seen := make(map[string]struct{}, len(d.Tables))
	for _, t := range d.Tables {
		if t.Name == "" {
			return errors.New("table name is required")
		}
		if _, dup := seen[t.Name]; dup {
			return fmt.Errorf("table %q listed twice", t.Name)
		}
		seen[t.Name] = struct{}{}
		if err := t.validate(); err != nil {
			return fmt.Errorf("table %q: %w", t.Name, err)
		}
	}
	return nil
}

func (t Table) validate() error {
	if len(t.Columns) == 0 {
		return errors.New("at least one column is required")
	}
	cols := make(map[string]struct{}, len(t.Columns))
	for _, c := range t.Columns {
		if c == "" {
			return errors.New("column name is required")
		}
		if _, dup := cols[c]; dup {
			return fmt.Errorf("column %q listed twice", c)
		}
		cols[c] = struct{}{}
	}
	for i, row := range t.Rows {
		if !slices.Equal(row.Columns(), t.Columns) {
			return fmt.Errorf("row %d: columns %v do not match table columns %v", i, row.Columns(), t.Columns)
		}
		for _, f := range row.fields {
			if !f.Value.IsValid() {
				return fmt.Errorf("row %d: column %q has no value kind", i, f.Column)
			}
		}
	}
	return nil
}

// Equal reports structural equality: same name, same tables in the same order,
// same columns, same rows in the same order with equal values.
func (d Dataset) Equal(other Dataset) bool {
	return d.Diff(other) == ""
}

// Diff describes the first difference between d and other, or returns "" when
// they are structurally equal.
func (d Dataset) Diff(other Dataset) string {
	if d.Name != other.Name {
		return fmt.Sprintf("name %q != %q", d.Name, other.Name)
	}
	if !slices.Equal(d.TableNames(), other.TableNames()) {
		return fmt.Sprintf("tables %v != %v", d.TableNames(), other.TableNames())
	}
	for i, t := range d.Tables {
		o := other.Tables[i]
		if !slices.Equal(t.Columns, o.Columns) {
			return fmt.Sprintf("table %q: columns %v != %v", t.Name, t.Columns, o.Columns)
		}
		if len(t.Rows) != len(o.Rows) {
			return fmt.Sprintf("table %q: %d rows != %d rows", t.Name, len(t.Rows), len(o.Rows))
		}
		for r := range t.Rows {
			if !t.Rows[r].Equal(o.Rows[r]) {
				return fmt.Sprintf("table %q row %d: %v != %v", t.Name, r, t.Rows[r].fields, o.Rows[r].fields)
			}
		}
	}
	return ""
}
