package dataset

import (
	"fmt"
	"regexp"
	"strings"
)

// validIdentifier matches table and column names that may be interpolated
// into SQL. Identifiers cannot be bound as parameters.
var validIdentifier = regexp.MustCompile(`^[A-Za-z_][A-Za-z0-9_]*$`)

// ValidIdentifier reports whether name is safe to use as a table or column
// name.
func ValidIdentifier(name string) bool {
	return validIdentifier.MatchString(name)
}

// ValidateIdentifier returns an error naming kind ("table", "column") when
// name is not a valid identifier.
func ValidateIdentifier(kind, name string) error {
	if !ValidIdentifier(name) {
		return fmt.Errorf("invalid %s name %q: must match pattern %s", kind, name, validIdentifier.String())
	}
	return nil
}

// Row holds the values of one row, aligned with Table.Columns.
type Row []any

// Table is a named, ordered set of rows.
type Table struct {
	Name    string
	Columns []string
	Rows    []Row
}

// Dataset is an ordered collection of tables.
type Dataset struct {
	Tables []*Table
}

// New returns an empty dataset.
func New() *Dataset {
	return &Dataset{}
}

// Table returns the table with the given name, matched case-insensitively,
// or nil.
func (d *Dataset) Table(name string) *Table {
	for _, t := range d.Tables {
		if strings.EqualFold(t.Name, name) {
			return t
		}
	}
	return nil
}

// AddTable returns the named table, creating it at the end of the dataset if
// it does not exist yet.
func (d *Dataset) AddTable(name string) (*Table, error) {
	if err := ValidateIdentifier("table", name); err != nil {
		return nil, err
	}
	if t := d.Table(name); t != nil {
		return t, nil
	}
	t := &Table{Name: name}
	d.Tables = append(d.Tables, t)
	return t, nil
}

// TableNames returns the table names in declaration order.
func (d *Dataset) TableNames() []string {
	names := make([]string, len(d.Tables))
	for i, t := range d.Tables {
		names[i] = t.Name
	}
	return names
}

// RowCount returns the number of rows across all tables.
func (d *Dataset) RowCount() int {
	n := 0
	for _, t := range d.Tables {
		n += len(t.Rows)
	}
	return n
}

// ColumnIndex returns the index of the named column, matched
// case-insensitively, or -1.
func (t *Table) ColumnIndex(name string) int {
	for i, c := range t.Columns {
		if strings.EqualFold(c, name) {
			return i
		}
	}
	return -1
}

// Value returns the value of column col in row i. The second result is false
// when the column does not exist.
func (t *Table) Value(i int, col string) (any, bool) {
	idx := t.ColumnIndex(col)
	if idx < 0 || i < 0 || i >= len(t.Rows) {
		return nil, false
	}
	return t.Rows[i][idx], true
}

// AddRow appends a row given as parallel column and value slices. Columns not
// seen before are appended to the table and earlier rows get NULL for them.
// Columns of the table absent from cols are NULL in the new row.
func (t *Table) AddRow(cols []string, vals []any) error {
	if len(cols) != len(vals) {
		return fmt.Errorf("table %s: %d columns but %d values", t.Name, len(cols), len(vals))
	}
	for _, c := range cols {
		if err := ValidateIdentifier("column", c); err != nil {
			return fmt.Errorf("table %s: %w", t.Name, err)
		}
		if t.ColumnIndex(c) < 0 {
			t.Columns = append(t.Columns, c)
			for i := range t.Rows {
				t.Rows[i] = append(t.Rows[i], nil)
			}
		}
	}

	row := make(Row, len(t.Columns))
	for i, c := range cols {
		row[t.ColumnIndex(c)] = vals[i]
	}
	t.Rows = append(t.Rows, row)
	return nil
}

// Merge appends the tables and rows of other to d. Rows for a table that
// already exists in d are appended to it.
func (d *Dataset) Merge(other *Dataset) error {
	if other == nil {
		return nil
	}
	for _, ot := range other.Tables {
		t, err := d.AddTable(ot.Name)
		if err != nil {
			return err
		}
		for _, c := range ot.Columns {
			if t.ColumnIndex(c) < 0 {
				t.Columns = append(t.Columns, c)
				for i := range t.Rows {
					t.Rows[i] = append(t.Rows[i], nil)
				}
			}
		}
		for _, r := range ot.Rows {
			if err := t.AddRow(ot.Columns, r); err != nil {
				return err
			}
		}
	}
	return nil
}
