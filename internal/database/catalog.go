package database

import (
	"context"
	"fmt"
	"strings"

	"github.com/roach88/dsunit/internal/dataset"
)

// canonical returns ds with table and column names replaced by their
// catalogue spelling, matched case-insensitively. Names with no match are
// kept as declared so the database reports them. Rows are shared with ds.
//
// Dialects that do not match quoted identifiers case-sensitively get ds
// back unchanged.
func (c *SQLConnection) canonical(ctx context.Context, ds *dataset.Dataset) (*dataset.Dataset, error) {
	if ds == nil || !c.dialect.CaseSensitive() || len(ds.Tables) == 0 {
		return ds, nil
	}

	tables, err := c.Tables(ctx)
	if err != nil {
		return nil, err
	}

	out := &dataset.Dataset{Tables: make([]*dataset.Table, len(ds.Tables))}
	for i, t := range ds.Tables {
		name, found := matchFold(tables, t.Name)
		cols := t.Columns
		if found && len(cols) > 0 {
			actual, err := c.columns(ctx, name)
			if err != nil {
				return nil, &ExecError{Operation: "catalog", Table: name, Err: err}
			}
			cols = make([]string, len(t.Columns))
			for j, col := range t.Columns {
				cols[j], _ = matchFold(actual, col)
			}
		}
		out.Tables[i] = &dataset.Table{Name: name, Columns: cols, Rows: t.Rows}
	}
	return out, nil
}

// canonicalTables resolves table names the way canonical does.
func (c *SQLConnection) canonicalTables(ctx context.Context, names []string) ([]string, error) {
	if !c.dialect.CaseSensitive() || len(names) == 0 {
		return names, nil
	}
	tables, err := c.Tables(ctx)
	if err != nil {
		return nil, err
	}
	out := make([]string, len(names))
	for i, n := range names {
		out[i], _ = matchFold(tables, n)
	}
	return out, nil
}

// columns lists the columns of table, cached per connection.
func (c *SQLConnection) columns(ctx context.Context, table string) ([]string, error) {
	c.mu.Lock()
	cols, ok := c.cols[table]
	c.mu.Unlock()
	if ok {
		return cols, nil
	}

	rows, err := c.conn.QueryContext(ctx, "SELECT * FROM "+c.dialect.Quote(table)+" WHERE 1 = 0")
	if err != nil {
		return nil, fmt.Errorf("list columns: %w", err)
	}
	defer rows.Close()

	cols, err = rows.Columns()
	if err != nil {
		return nil, fmt.Errorf("list columns: %w", err)
	}

	c.mu.Lock()
	c.cols[table] = cols
	c.mu.Unlock()
	return cols, nil
}

// matchFold returns the exact match of name in names, else the first
// case-insensitive match, else name itself.
func matchFold(names []string, name string) (string, bool) {
	for _, n := range names {
		if n == name {
			return n, true
		}
	}
	for _, n := range names {
		if strings.EqualFold(n, name) {
			return n, true
		}
	}
	return name, false
}
