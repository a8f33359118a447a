package operation_test

import (
	"context"
	"errors"
	"regexp"
	"testing"

	"github.com/DATA-DOG/go-sqlmock"
	"github.com/roach88/dsunit/internal/database"
	"github.com/roach88/dsunit/internal/dataset"
	"github.com/roach88/dsunit/internal/operation"
	"github.com/roach88/dsunit/internal/testutil"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

const schema = `
CREATE TABLE person (id INTEGER PRIMARY KEY, name TEXT, email TEXT DEFAULT 'none');
CREATE TABLE pet (id INTEGER PRIMARY KEY, owner_id INTEGER REFERENCES person(id), name TEXT);
CREATE TABLE audit_log (message TEXT);
`

func setup(t *testing.T, seed string) (*database.SQLConnection, func(table string) int) {
	t.Helper()
	db := testutil.OpenSQLite(t, schema)
	if seed != "" {
		_, err := db.Exec(seed)
		require.NoError(t, err)
	}
	conn, err := database.FromDB(context.Background(), db)
	require.NoError(t, err)
	t.Cleanup(func() { conn.Close() })
	return conn, func(table string) int { return testutil.Count(t, db, table) }
}

func build(t *testing.T, tables map[string][][2][]any) *dataset.Dataset {
	t.Helper()
	ds := dataset.New()
	for _, name := range []string{"person", "pet", "audit_log"} {
		rows, ok := tables[name]
		if !ok {
			continue
		}
		tbl, err := ds.AddTable(name)
		require.NoError(t, err)
		for _, r := range rows {
			cols := make([]string, len(r[0]))
			for i, c := range r[0] {
				cols[i] = c.(string)
			}
			require.NoError(t, tbl.AddRow(cols, r[1]))
		}
	}
	return ds
}

func row(cols []any, vals ...any) [2][]any {
	return [2][]any{cols, vals}
}

var personCols = []any{"id", "name"}

func execute(t *testing.T, conn *database.SQLConnection, kind operation.Kind, ds *dataset.Dataset) error {
	t.Helper()
	op, ok := operation.DefaultLookup().Get(kind)
	require.True(t, ok, "kind %s", kind)
	assert.Equal(t, string(kind), op.String())
	return conn.Execute(context.Background(), op, ds)
}

func TestParseKind(t *testing.T) {
	tests := []struct {
		in   string
		want operation.Kind
	}{
		{"", operation.CleanInsert},
		{"clean-insert", operation.CleanInsert},
		{"CLEAN_INSERT", operation.CleanInsert},
		{"insert", operation.Insert},
		{"REFRESH", operation.Refresh},
		{"update", operation.Update},
		{"DELETE", operation.Delete},
		{"DELETE_ALL", operation.DeleteAll},
		{" truncate-table ", operation.TruncateTable},
	}

	for _, tt := range tests {
		t.Run(tt.in, func(t *testing.T) {
			got, err := operation.ParseKind(tt.in)
			require.NoError(t, err)
			assert.Equal(t, tt.want, got)
		})
	}

	_, err := operation.ParseKind("upsert")
	require.Error(t, err)
	assert.Contains(t, err.Error(), `unknown operation "upsert"`)
}

func TestKind_UnmarshalText(t *testing.T) {
	var k operation.Kind
	require.NoError(t, k.UnmarshalText([]byte("DELETE_ALL")))
	assert.Equal(t, operation.DeleteAll, k)

	require.NoError(t, k.UnmarshalText([]byte("MERGE")))
	assert.Equal(t, operation.Kind("merge"), k)

	require.NoError(t, k.UnmarshalText([]byte(" ")))
	assert.Equal(t, operation.CleanInsert, k)
}

func TestDefaultLookup_CoversEveryKind(t *testing.T) {
	lookup := operation.DefaultLookup()
	for _, k := range operation.Kinds {
		_, ok := lookup.Get(k)
		assert.True(t, ok, "kind %s", k)
	}
	_, ok := lookup.Get(operation.Kind("upsert"))
	assert.False(t, ok)
}

func TestInsert(t *testing.T) {
	conn, count := setup(t, "")
	ds := build(t, map[string][][2][]any{
		"person": {row(personCols, int64(1), "ann"), row(personCols, int64(2), nil)},
	})

	require.NoError(t, execute(t, conn, operation.Insert, ds))
	assert.Equal(t, 2, count("person"))

	snap, err := conn.SnapshotTables(context.Background(), "person")
	require.NoError(t, err)
	// NULL cells are omitted so the column default applies.
	assert.Equal(t, dataset.Row{int64(2), nil, "none"}, snap.Table("person").Rows[1])
}

func TestInsert_DuplicateKey(t *testing.T) {
	conn, _ := setup(t, `INSERT INTO person (id, name) VALUES (1, 'existing')`)
	ds := build(t, map[string][][2][]any{"person": {row(personCols, int64(1), "ann")}})

	err := execute(t, conn, operation.Insert, ds)
	require.Error(t, err)

	var execErr *database.ExecError
	require.ErrorAs(t, err, &execErr)
	assert.Equal(t, "insert", execErr.Operation)
	assert.Equal(t, "person", execErr.Table)
}

func TestDeleteAll_OnlyDatasetTables(t *testing.T) {
	conn, count := setup(t, `
		INSERT INTO person (id, name) VALUES (1, 'ann');
		INSERT INTO pet (id, owner_id, name) VALUES (1, 1, 'rex');
		INSERT INTO audit_log (message) VALUES ('kept');
	`)
	ds := build(t, map[string][][2][]any{"person": nil, "pet": nil})

	require.NoError(t, execute(t, conn, operation.DeleteAll, ds))
	assert.Equal(t, 0, count("person"))
	assert.Equal(t, 0, count("pet"))
	assert.Equal(t, 1, count("audit_log"))
}

func TestCleanInsert_ReplacesContent(t *testing.T) {
	conn, count := setup(t, `INSERT INTO person (id, name) VALUES (9, 'old')`)
	ds := build(t, map[string][][2][]any{"person": {row(personCols, int64(1), "ann")}})

	require.NoError(t, execute(t, conn, operation.CleanInsert, ds))
	assert.Equal(t, 1, count("person"))

	snap, err := conn.SnapshotTables(context.Background(), "person")
	require.NoError(t, err)
	assert.Equal(t, int64(1), snap.Table("person").Rows[0][0])
}

func TestTruncateTable(t *testing.T) {
	conn, count := setup(t, `INSERT INTO audit_log (message) VALUES ('a'), ('b')`)
	ds := build(t, map[string][][2][]any{"audit_log": nil})

	require.NoError(t, execute(t, conn, operation.TruncateTable, ds))
	assert.Equal(t, 0, count("audit_log"))
}

func TestDelete_ByPrimaryKey(t *testing.T) {
	conn, count := setup(t, `INSERT INTO person (id, name) VALUES (1, 'ann'), (2, 'bob'), (3, 'cat')`)
	ds := build(t, map[string][][2][]any{"person": {row([]any{"id"}, int64(1)), row([]any{"id"}, "3")}})

	require.NoError(t, execute(t, conn, operation.Delete, ds))
	assert.Equal(t, 1, count("person"))
}

func TestDelete_NoPrimaryKey(t *testing.T) {
	conn, _ := setup(t, "")
	ds := build(t, map[string][][2][]any{"audit_log": {row([]any{"message"}, "x")}})

	err := execute(t, conn, operation.Delete, ds)
	require.Error(t, err)
	assert.True(t, database.IsExecError(err))
	assert.Contains(t, err.Error(), "table has no primary key")
}

func TestDelete_NullKey(t *testing.T) {
	conn, _ := setup(t, "")
	ds := build(t, map[string][][2][]any{"person": {row(personCols, nil, "ann")}})

	err := execute(t, conn, operation.Delete, ds)
	require.Error(t, err)
	assert.Contains(t, err.Error(), "primary key column id is NULL")
}

func TestUpdate(t *testing.T) {
	conn, _ := setup(t, `INSERT INTO person (id, name, email) VALUES (1, 'ann', 'a@example.com')`)
	ds := build(t, map[string][][2][]any{"person": {row(personCols, int64(1), "anne")}})

	require.NoError(t, execute(t, conn, operation.Update, ds))

	snap, err := conn.SnapshotTables(context.Background(), "person")
	require.NoError(t, err)
	assert.Equal(t, dataset.Row{int64(1), "anne", "a@example.com"}, snap.Table("person").Rows[0])
}

func TestUpdate_MissingRow(t *testing.T) {
	conn, _ := setup(t, "")
	ds := build(t, map[string][][2][]any{"person": {row(personCols, int64(4), "ghost")}})

	err := execute(t, conn, operation.Update, ds)
	require.Error(t, err)
	assert.Contains(t, err.Error(), "row (id=4) not found")
}

func TestUpdate_MissingKeyColumn(t *testing.T) {
	conn, _ := setup(t, "")
	ds := build(t, map[string][][2][]any{"person": {row([]any{"name"}, "ann")}})

	err := execute(t, conn, operation.Update, ds)
	require.Error(t, err)
	assert.Contains(t, err.Error(), "dataset is missing primary key column id")
}

func TestRefresh_UpdatesAndInserts(t *testing.T) {
	conn, count := setup(t, `INSERT INTO person (id, name) VALUES (1, 'ann'), (5, 'untouched')`)
	ds := build(t, map[string][][2][]any{
		"person": {row(personCols, int64(1), "anne"), row(personCols, int64(2), "bob")},
	})

	require.NoError(t, execute(t, conn, operation.Refresh, ds))
	assert.Equal(t, 3, count("person"))

	snap, err := conn.SnapshotTables(context.Background(), "person")
	require.NoError(t, err)
	rows := snap.Table("person").Rows
	assert.Equal(t, "anne", rows[0][1])
	assert.Equal(t, "bob", rows[1][1])
	assert.Equal(t, "untouched", rows[2][1])
}

func TestComposite_StopsAtFirstError(t *testing.T) {
	failing := failingOp{err: errors.New("boom")}
	called := &recordingOp{}

	op := operation.Composite("custom", failing, called)
	assert.Equal(t, "custom", op.String())

	err := op.Execute(context.Background(), nil, dataset.New())
	assert.EqualError(t, err, "boom")
	assert.False(t, called.called)
}

func TestMapLookup_Override(t *testing.T) {
	lookup := operation.DefaultLookup()
	custom := &recordingOp{}
	lookup[operation.Insert] = custom

	got, ok := lookup.Get(operation.Insert)
	require.True(t, ok)
	assert.Same(t, custom, got)
}

func TestInsert_PostgresPlaceholders(t *testing.T) {
	ctx := context.Background()
	db, mock, err := sqlmock.New()
	require.NoError(t, err)
	defer db.Close()

	expectCatalog(mock)
	mock.ExpectExec(regexp.QuoteMeta(`INSERT INTO "person" ("id", "name") VALUES ($1, $2)`)).
		WithArgs(int64(1), "ann").
		WillReturnResult(sqlmock.NewResult(1, 1))
	mock.ExpectExec(regexp.QuoteMeta(`INSERT INTO "person" ("id", "name") VALUES ($1, $2)`)).
		WithArgs(int64(2), "bob").
		WillReturnError(errors.New("unique violation"))

	raw, err := db.Conn(ctx)
	require.NoError(t, err)
	conn := database.NewSQLConnection(raw, database.Postgres)
	defer conn.Close()

	ds := build(t, map[string][][2][]any{
		"person": {row(personCols, int64(1), "ann"), row(personCols, int64(2), "bob")},
	})

	err = execute(t, conn, operation.Insert, ds)
	require.Error(t, err)
	assert.Equal(t, "insert on table person: unique violation", err.Error())
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestUpdate_PostgresPlaceholders(t *testing.T) {
	ctx := context.Background()
	db, mock, err := sqlmock.New()
	require.NoError(t, err)
	defer db.Close()

	expectCatalog(mock)
	mock.ExpectQuery("SELECT kcu.column_name").
		WithArgs("person").
		WillReturnRows(sqlmock.NewRows([]string{"column_name"}).AddRow("id"))
	mock.ExpectQuery(regexp.QuoteMeta(`SELECT 1 FROM "person" WHERE "id" = $1`)).
		WithArgs(int64(1)).
		WillReturnRows(sqlmock.NewRows([]string{"?column?"}).AddRow(1))
	mock.ExpectExec(regexp.QuoteMeta(`UPDATE "person" SET "name" = $1 WHERE "id" = $2`)).
		WithArgs("anne", int64(1)).
		WillReturnResult(sqlmock.NewResult(0, 1))

	raw, err := db.Conn(ctx)
	require.NoError(t, err)
	conn := database.NewSQLConnection(raw, database.Postgres)
	defer conn.Close()

	ds := build(t, map[string][][2][]any{"person": {row(personCols, int64(1), "anne")}})

	require.NoError(t, execute(t, conn, operation.Update, ds))
	assert.NoError(t, mock.ExpectationsWereMet())
}

// expectCatalog expects the table and column lookups a PostgreSQL
// connection runs before resolving dataset names.
func expectCatalog(mock sqlmock.Sqlmock) {
	mock.ExpectQuery("FROM information_schema.tables").
		WillReturnRows(sqlmock.NewRows([]string{"table_name"}).AddRow("pet").AddRow("person"))
	mock.ExpectQuery(regexp.QuoteMeta(`SELECT * FROM "person" WHERE 1 = 0`)).
		WillReturnRows(sqlmock.NewRows([]string{"id", "name", "email"}))
}

func TestInsert_PostgresFoldsUpperCaseNames(t *testing.T) {
	ctx := context.Background()
	db, mock, err := sqlmock.New()
	require.NoError(t, err)
	defer db.Close()

	expectCatalog(mock)
	mock.ExpectExec(regexp.QuoteMeta(`INSERT INTO "person" ("id", "name") VALUES ($1, $2)`)).
		WithArgs(int64(1), "ann").
		WillReturnResult(sqlmock.NewResult(1, 1))

	raw, err := db.Conn(ctx)
	require.NoError(t, err)
	conn := database.NewSQLConnection(raw, database.Postgres)
	defer conn.Close()

	ds := dataset.New()
	tbl, err := ds.AddTable("PERSON")
	require.NoError(t, err)
	require.NoError(t, tbl.AddRow([]string{"ID", "NAME"}, []any{int64(1), "ann"}))

	require.NoError(t, execute(t, conn, operation.Insert, ds))
	assert.Equal(t, "PERSON", ds.Tables[0].Name, "the declared dataset is left untouched")
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestInsert_PostgresUnknownTableKeepsDeclaredName(t *testing.T) {
	ctx := context.Background()
	db, mock, err := sqlmock.New()
	require.NoError(t, err)
	defer db.Close()

	mock.ExpectQuery("FROM information_schema.tables").
		WillReturnRows(sqlmock.NewRows([]string{"table_name"}).AddRow("person"))
	mock.ExpectExec(regexp.QuoteMeta(`INSERT INTO "Widget" ("Id") VALUES ($1)`)).
		WithArgs(int64(1)).
		WillReturnError(errors.New(`relation "Widget" does not exist`))

	raw, err := db.Conn(ctx)
	require.NoError(t, err)
	conn := database.NewSQLConnection(raw, database.Postgres)
	defer conn.Close()

	ds := dataset.New()
	tbl, err := ds.AddTable("Widget")
	require.NoError(t, err)
	require.NoError(t, tbl.AddRow([]string{"Id"}, []any{int64(1)}))

	err = execute(t, conn, operation.Insert, ds)
	require.Error(t, err)
	assert.Contains(t, err.Error(), `relation "Widget" does not exist`)
	assert.NoError(t, mock.ExpectationsWereMet())
}

type failingOp struct{ err error }

func (f failingOp) String() string { return "failing" }

func (f failingOp) Execute(context.Context, database.Executor, *dataset.Dataset) error {
	return f.err
}

type recordingOp struct{ called bool }

func (r *recordingOp) String() string { return "recording" }

func (r *recordingOp) Execute(context.Context, database.Executor, *dataset.Dataset) error {
	r.called = true
	return nil
}
