package operation

import (
	"context"
	"fmt"
	"strings"

	"github.com/roach88/dsunit/internal/database"
	"github.com/roach88/dsunit/internal/dataset"
)

// Lookup maps kinds to executable operations.
type Lookup interface {
	Get(kind Kind) (database.Operation, bool)
}

// MapLookup is a Lookup backed by a map. Custom lookups usually start from
// DefaultLookup and override entries.
type MapLookup map[Kind]database.Operation

// Get implements Lookup.
func (m MapLookup) Get(kind Kind) (database.Operation, bool) {
	op, ok := m[kind]
	return op, ok
}

// DefaultLookup returns a lookup supporting every built-in kind.
func DefaultLookup() MapLookup {
	return MapLookup{
		CleanInsert:   Composite(CleanInsert, deleteAllOp{}, insertOp{}),
		Insert:        insertOp{},
		Refresh:       refreshOp{},
		Update:        updateOp{},
		Delete:        deleteOp{},
		DeleteAll:     deleteAllOp{},
		TruncateTable: truncateOp{},
	}
}

type insertOp struct{}

func (insertOp) String() string { return string(Insert) }

func (insertOp) Execute(ctx context.Context, ex database.Executor, ds *dataset.Dataset) error {
	for _, t := range ds.Tables {
		for _, row := range t.Rows {
			if err := insertRow(ctx, ex, t, row); err != nil {
				return &database.ExecError{Operation: string(Insert), Table: t.Name, Err: err}
			}
		}
	}
	return nil
}

// insertRow inserts the non-NULL cells of row so that column defaults apply
// to the rest. A row with no values inserts explicit NULLs.
func insertRow(ctx context.Context, ex database.Executor, t *dataset.Table, row dataset.Row) error {
	d := ex.Dialect()

	var cols []string
	var args []any
	for i, c := range t.Columns {
		if row[i] == nil {
			continue
		}
		cols = append(cols, d.Quote(c))
		args = append(args, row[i])
	}
	if len(cols) == 0 {
		for i, c := range t.Columns {
			cols = append(cols, d.Quote(c))
			args = append(args, row[i])
		}
	}

	placeholders := make([]string, len(cols))
	for i := range placeholders {
		placeholders[i] = d.Placeholder(i + 1)
	}

	query := fmt.Sprintf("INSERT INTO %s (%s) VALUES (%s)",
		d.Quote(t.Name), strings.Join(cols, ", "), strings.Join(placeholders, ", "))
	_, err := ex.ExecContext(ctx, query, args...)
	return err
}

type deleteAllOp struct{}

func (deleteAllOp) String() string { return string(DeleteAll) }

// Execute deletes in reverse table order so that children declared after
// their parents are removed first.
func (deleteAllOp) Execute(ctx context.Context, ex database.Executor, ds *dataset.Dataset) error {
	d := ex.Dialect()
	for i := len(ds.Tables) - 1; i >= 0; i-- {
		t := ds.Tables[i]
		if _, err := ex.ExecContext(ctx, "DELETE FROM "+d.Quote(t.Name)); err != nil {
			return &database.ExecError{Operation: string(DeleteAll), Table: t.Name, Err: err}
		}
	}
	return nil
}

type truncateOp struct{}

func (truncateOp) String() string { return string(TruncateTable) }

func (truncateOp) Execute(ctx context.Context, ex database.Executor, ds *dataset.Dataset) error {
	d := ex.Dialect()
	for i := len(ds.Tables) - 1; i >= 0; i-- {
		t := ds.Tables[i]
		if _, err := ex.ExecContext(ctx, d.TruncateSQL(t.Name)); err != nil {
			return &database.ExecError{Operation: string(TruncateTable), Table: t.Name, Err: err}
		}
	}
	return nil
}

type deleteOp struct{}

func (deleteOp) String() string { return string(Delete) }

func (deleteOp) Execute(ctx context.Context, ex database.Executor, ds *dataset.Dataset) error {
	d := ex.Dialect()
	for i := len(ds.Tables) - 1; i >= 0; i-- {
		t := ds.Tables[i]
		keys, err := keyColumns(ctx, ex, t)
		if err != nil {
			return &database.ExecError{Operation: string(Delete), Table: t.Name, Err: err}
		}
		for _, row := range t.Rows {
			where, args, err := whereKey(d, t, row, keys, 1)
			if err != nil {
				return &database.ExecError{Operation: string(Delete), Table: t.Name, Err: err}
			}
			query := "DELETE FROM " + d.Quote(t.Name) + " WHERE " + where
			if _, err := ex.ExecContext(ctx, query, args...); err != nil {
				return &database.ExecError{Operation: string(Delete), Table: t.Name, Err: err}
			}
		}
	}
	return nil
}

type updateOp struct{}

func (updateOp) String() string { return string(Update) }

func (updateOp) Execute(ctx context.Context, ex database.Executor, ds *dataset.Dataset) error {
	for _, t := range ds.Tables {
		keys, err := keyColumns(ctx, ex, t)
		if err != nil {
			return &database.ExecError{Operation: string(Update), Table: t.Name, Err: err}
		}
		for _, row := range t.Rows {
			found, err := rowExists(ctx, ex, t, row, keys)
			if err != nil {
				return &database.ExecError{Operation: string(Update), Table: t.Name, Err: err}
			}
			if !found {
				return &database.ExecError{Operation: string(Update), Table: t.Name, Err: fmt.Errorf("row %s not found", describeKey(t, row, keys))}
			}
			if err := updateRow(ctx, ex, t, row, keys); err != nil {
				return &database.ExecError{Operation: string(Update), Table: t.Name, Err: err}
			}
		}
	}
	return nil
}

type refreshOp struct{}

func (refreshOp) String() string { return string(Refresh) }

func (refreshOp) Execute(ctx context.Context, ex database.Executor, ds *dataset.Dataset) error {
	for _, t := range ds.Tables {
		keys, err := keyColumns(ctx, ex, t)
		if err != nil {
			return &database.ExecError{Operation: string(Refresh), Table: t.Name, Err: err}
		}
		for _, row := range t.Rows {
			found, err := rowExists(ctx, ex, t, row, keys)
			if err == nil {
				if found {
					err = updateRow(ctx, ex, t, row, keys)
				} else {
					err = insertRow(ctx, ex, t, row)
				}
			}
			if err != nil {
				return &database.ExecError{Operation: string(Refresh), Table: t.Name, Err: err}
			}
		}
	}
	return nil
}

// updateRow sets every non-key column of row, NULLs included.
func updateRow(ctx context.Context, ex database.Executor, t *dataset.Table, row dataset.Row, keys []string) error {
	d := ex.Dialect()

	var sets []string
	var args []any
	for i, c := range t.Columns {
		if containsFold(keys, c) {
			continue
		}
		args = append(args, row[i])
		sets = append(sets, d.Quote(c)+" = "+d.Placeholder(len(args)))
	}
	if len(sets) == 0 {
		return nil
	}

	where, keyArgs, err := whereKey(d, t, row, keys, len(args)+1)
	if err != nil {
		return err
	}
	args = append(args, keyArgs...)

	query := "UPDATE " + d.Quote(t.Name) + " SET " + strings.Join(sets, ", ") + " WHERE " + where
	_, err = ex.ExecContext(ctx, query, args...)
	return err
}

func rowExists(ctx context.Context, ex database.Executor, t *dataset.Table, row dataset.Row, keys []string) (bool, error) {
	d := ex.Dialect()
	where, args, err := whereKey(d, t, row, keys, 1)
	if err != nil {
		return false, err
	}

	rows, err := ex.QueryContext(ctx, "SELECT 1 FROM "+d.Quote(t.Name)+" WHERE "+where, args...)
	if err != nil {
		return false, err
	}
	defer rows.Close()

	found := rows.Next()
	return found, rows.Err()
}

// keyColumns returns the primary key of t, failing when the table has none
// or the dataset does not carry every key column.
func keyColumns(ctx context.Context, ex database.Executor, t *dataset.Table) ([]string, error) {
	keys, err := ex.PrimaryKeys(ctx, t.Name)
	if err != nil {
		return nil, err
	}
	if len(keys) == 0 {
		return nil, fmt.Errorf("table has no primary key")
	}
	for _, k := range keys {
		if t.ColumnIndex(k) < 0 {
			return nil, fmt.Errorf("dataset is missing primary key column %s", k)
		}
	}
	return keys, nil
}

// whereKey builds "k1 = $n AND k2 = $n+1" for row, numbering placeholders
// from start.
func whereKey(d database.Dialect, t *dataset.Table, row dataset.Row, keys []string, start int) (string, []any, error) {
	conds := make([]string, len(keys))
	args := make([]any, len(keys))
	for i, k := range keys {
		v := row[t.ColumnIndex(k)]
		if v == nil {
			return "", nil, fmt.Errorf("primary key column %s is NULL", k)
		}
		conds[i] = d.Quote(k) + " = " + d.Placeholder(start+i)
		args[i] = v
	}
	return strings.Join(conds, " AND "), args, nil
}

func describeKey(t *dataset.Table, row dataset.Row, keys []string) string {
	parts := make([]string, len(keys))
	for i, k := range keys {
		parts[i] = k + "=" + dataset.FormatValue(row[t.ColumnIndex(k)])
	}
	return "(" + strings.Join(parts, ", ") + ")"
}

func containsFold(list []string, s string) bool {
	for _, v := range list {
		if strings.EqualFold(v, s) {
			return true
		}
	}
	return false
}
