package database

import (
	"context"
	"fmt"
	"strings"

	"github.com/roach88/dsunit/internal/dataset"
)

// Snapshot implements Connection. Tables whose names cannot be written as
// dataset identifiers, such as order-items, are left out.
func (c *SQLConnection) Snapshot(ctx context.Context) (*dataset.Dataset, error) {
	tables, err := c.Tables(ctx)
	if err != nil {
		return nil, err
	}
	names := tables[:0:0]
	for _, name := range tables {
		if dataset.ValidIdentifier(name) {
			names = append(names, name)
		}
	}
	return c.snapshotTables(ctx, names)
}

// Tables lists the user tables of the connection, sorted by name.
func (c *SQLConnection) Tables(ctx context.Context) ([]string, error) {
	rows, err := c.conn.QueryContext(ctx, c.dialect.TablesQuery())
	if err != nil {
		return nil, &ExecError{Operation: "snapshot", Err: fmt.Errorf("list tables: %w", err)}
	}
	defer rows.Close()

	var names []string
	for rows.Next() {
		var name string
		if err := rows.Scan(&name); err != nil {
			return nil, &ExecError{Operation: "snapshot", Err: fmt.Errorf("scan table name: %w", err)}
		}
		names = append(names, name)
	}
	if err := rows.Err(); err != nil {
		return nil, &ExecError{Operation: "snapshot", Err: fmt.Errorf("iterate tables: %w", err)}
	}
	return names, nil
}

// SnapshotTables returns the content of the named tables, in the given
// order. Rows are ordered by primary key so that snapshots are
// deterministic; tables without a key are returned in storage order.
// Names are matched against the catalogue like dataset names in Execute.
func (c *SQLConnection) SnapshotTables(ctx context.Context, tables ...string) (*dataset.Dataset, error) {
	for _, name := range tables {
		if err := dataset.ValidateIdentifier("table", name); err != nil {
			return nil, &ExecError{Operation: "snapshot", Table: name, Err: err}
		}
	}
	tables, err := c.canonicalTables(ctx, tables)
	if err != nil {
		return nil, err
	}
	return c.snapshotTables(ctx, tables)
}

func (c *SQLConnection) snapshotTables(ctx context.Context, tables []string) (*dataset.Dataset, error) {
	ds := dataset.New()
	for _, name := range tables {
		if err := c.snapshotTable(ctx, ds, name); err != nil {
			return nil, &ExecError{Operation: "snapshot", Table: name, Err: err}
		}
	}
	return ds, nil
}

func (c *SQLConnection) snapshotTable(ctx context.Context, ds *dataset.Dataset, name string) error {
	keys, err := c.PrimaryKeys(ctx, name)
	if err != nil {
		return err
	}

	query := "SELECT * FROM " + c.dialect.Quote(name)
	if len(keys) > 0 {
		quoted := make([]string, len(keys))
		for i, k := range keys {
			quoted[i] = c.dialect.Quote(k)
		}
		query += " ORDER BY " + strings.Join(quoted, ", ")
	}

	rows, err := c.conn.QueryContext(ctx, query)
	if err != nil {
		return fmt.Errorf("select rows: %w", err)
	}
	defer rows.Close()

	cols, err := rows.Columns()
	if err != nil {
		return fmt.Errorf("read columns: %w", err)
	}

	table, err := ds.AddTable(name)
	if err != nil {
		return err
	}
	table.Columns = append(table.Columns, cols...)

	for rows.Next() {
		values := make([]any, len(cols))
		ptrs := make([]any, len(cols))
		for i := range values {
			ptrs[i] = &values[i]
		}
		if err := rows.Scan(ptrs...); err != nil {
			return fmt.Errorf("scan row: %w", err)
		}
		row := make(dataset.Row, len(cols))
		for i, v := range values {
			row[i] = dataset.Normalize(v)
		}
		table.Rows = append(table.Rows, row)
	}
	if err := rows.Err(); err != nil {
		return fmt.Errorf("iterate rows: %w", err)
	}
	return nil
}
