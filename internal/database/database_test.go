package database_test

import (
	"context"
	"database/sql"
	"errors"
	"testing"

	"github.com/DATA-DOG/go-sqlmock"
	"github.com/roach88/dsunit/internal/database"
	"github.com/roach88/dsunit/internal/dataset"
	"github.com/roach88/dsunit/internal/testutil"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	gormsqlite "gorm.io/driver/sqlite"
	"gorm.io/gorm"
	gormlogger "gorm.io/gorm/logger"
	_ "modernc.org/sqlite"
)

const schema = `
CREATE TABLE person (id INTEGER PRIMARY KEY, name TEXT, email TEXT);
CREATE TABLE membership (group_id INTEGER, person_id INTEGER, role TEXT, PRIMARY KEY (person_id, group_id));
CREATE TABLE audit_log (message TEXT);
`

func TestDialectByName(t *testing.T) {
	tests := []struct {
		name string
		want string
	}{
		{"sqlite", "sqlite"},
		{"sqlite3", "sqlite"},
		{"postgres", "postgres"},
		{"pgx", "postgres"},
		{"PostgreSQL", "postgres"},
		{"mysql", "mysql"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			d, err := database.DialectByName(tt.name)
			require.NoError(t, err)
			assert.Equal(t, tt.want, d.Name())
		})
	}

	_, err := database.DialectByName("oracle")
	assert.Error(t, err)
}

func TestDialectSyntax(t *testing.T) {
	assert.Equal(t, "?", database.SQLite.Placeholder(3))
	assert.Equal(t, "$3", database.Postgres.Placeholder(3))
	assert.Equal(t, "?", database.MySQL.Placeholder(3))

	assert.Equal(t, `"person"`, database.SQLite.Quote("person"))
	assert.Equal(t, `"person"`, database.Postgres.Quote("person"))
	assert.Equal(t, "`person`", database.MySQL.Quote("person"))

	assert.Equal(t, `DELETE FROM "person"`, database.SQLite.TruncateSQL("person"))
	assert.Equal(t, `TRUNCATE TABLE "person"`, database.Postgres.TruncateSQL("person"))
	assert.Equal(t, "TRUNCATE TABLE `person`", database.MySQL.TruncateSQL("person"))
}

func TestDialectFor(t *testing.T) {
	mattn := testutil.OpenSQLite(t, "")
	d, err := database.DialectFor(mattn.Driver())
	require.NoError(t, err)
	assert.Equal(t, "sqlite", d.Name())

	modernc, err := sql.Open("sqlite", ":memory:")
	require.NoError(t, err)
	defer modernc.Close()
	d, err = database.DialectFor(modernc.Driver())
	require.NoError(t, err)
	assert.Equal(t, "sqlite", d.Name())

	mock, _, err := sqlmock.New()
	require.NoError(t, err)
	defer mock.Close()
	_, err = database.DialectFor(mock.Driver())
	assert.Error(t, err)
}

func TestFromDB_Snapshot(t *testing.T) {
	ctx := context.Background()
	db := testutil.OpenSQLite(t, schema)
	_, err := db.Exec(`
		INSERT INTO person (id, name, email) VALUES (2, 'bob', NULL);
		INSERT INTO person (id, name, email) VALUES (1, 'ann', 'ann@example.com');
		INSERT INTO membership (group_id, person_id, role) VALUES (10, 2, 'admin');
		INSERT INTO membership (group_id, person_id, role) VALUES (20, 1, 'member');
	`)
	require.NoError(t, err)

	conn, err := database.FromDB(ctx, db)
	require.NoError(t, err)
	defer conn.Close()

	snap, err := conn.Snapshot(ctx)
	require.NoError(t, err)

	assert.Equal(t, []string{"audit_log", "membership", "person"}, snap.TableNames())

	person := snap.Table("person")
	assert.Equal(t, []string{"id", "name", "email"}, person.Columns)
	assert.Equal(t, dataset.Row{int64(1), "ann", "ann@example.com"}, person.Rows[0])
	assert.Equal(t, dataset.Row{int64(2), "bob", nil}, person.Rows[1])

	// Ordered by the composite key (person_id, group_id).
	membership := snap.Table("membership")
	assert.Equal(t, dataset.Row{int64(20), int64(1), "member"}, membership.Rows[0])
	assert.Equal(t, dataset.Row{int64(10), int64(2), "admin"}, membership.Rows[1])

	assert.Empty(t, snap.Table("audit_log").Rows)
	assert.Equal(t, []string{"message"}, snap.Table("audit_log").Columns)
}

func TestPrimaryKeys_SQLite(t *testing.T) {
	ctx := context.Background()
	db := testutil.OpenSQLite(t, schema)

	conn, err := database.FromDB(ctx, db)
	require.NoError(t, err)
	defer conn.Close()

	keys, err := conn.PrimaryKeys(ctx, "membership")
	require.NoError(t, err)
	assert.Equal(t, []string{"person_id", "group_id"}, keys)

	keys, err = conn.PrimaryKeys(ctx, "audit_log")
	require.NoError(t, err)
	assert.Empty(t, keys)
}

func TestSnapshotTables_InvalidName(t *testing.T) {
	ctx := context.Background()
	db := testutil.OpenSQLite(t, schema)

	conn, err := database.FromDB(ctx, db)
	require.NoError(t, err)
	defer conn.Close()

	_, err = conn.SnapshotTables(ctx, "person; DROP TABLE person")
	require.Error(t, err)
	assert.True(t, database.IsExecError(err))
}

func TestSnapshotTables_MissingTable(t *testing.T) {
	ctx := context.Background()
	db := testutil.OpenSQLite(t, schema)

	conn, err := database.FromDB(ctx, db)
	require.NoError(t, err)
	defer conn.Close()

	_, err = conn.SnapshotTables(ctx, "nope")
	require.Error(t, err)

	var execErr *database.ExecError
	require.ErrorAs(t, err, &execErr)
	assert.Equal(t, "snapshot", execErr.Operation)
	assert.Equal(t, "nope", execErr.Table)
}

func TestClose_Idempotent(t *testing.T) {
	ctx := context.Background()
	db := testutil.OpenSQLite(t, schema)

	conn, err := database.FromDB(ctx, db)
	require.NoError(t, err)

	require.NoError(t, conn.Close())
	require.NoError(t, conn.Close())

	// The pool is not owned by the connection.
	assert.NoError(t, db.Ping())

	err = conn.Execute(ctx, nopOperation{}, dataset.New())
	require.Error(t, err)
	assert.True(t, errors.Is(err, sql.ErrConnDone))
}

func TestOpen_OwnsPool(t *testing.T) {
	ctx := context.Background()

	conn, err := database.Open(ctx, "sqlite", ":memory:", "")
	require.NoError(t, err)
	assert.Equal(t, "sqlite", conn.Dialect().Name())

	_, err = conn.ExecContext(ctx, `CREATE TABLE t (id INTEGER PRIMARY KEY)`)
	require.NoError(t, err)

	snap, err := conn.Snapshot(ctx)
	require.NoError(t, err)
	assert.Equal(t, []string{"t"}, snap.TableNames())

	require.NoError(t, conn.Close())
}

func TestOpen_Errors(t *testing.T) {
	ctx := context.Background()

	_, err := database.Open(ctx, "no-such-driver", "x", "")
	assert.Error(t, err)

	_, err = database.Open(ctx, "sqlite3", testutil.MemoryDSN(), "oracle")
	require.Error(t, err)
	assert.Contains(t, err.Error(), `unsupported dialect "oracle"`)
}

func TestFromGorm(t *testing.T) {
	ctx := context.Background()

	gdb, err := gorm.Open(gormsqlite.Open(testutil.MemoryDSN()), &gorm.Config{
		Logger: gormlogger.Default.LogMode(gormlogger.Silent),
	})
	require.NoError(t, err)
	sqlDB, err := gdb.DB()
	require.NoError(t, err)
	defer sqlDB.Close()

	type Widget struct {
		ID   uint `gorm:"primaryKey"`
		Name string
	}
	require.NoError(t, gdb.AutoMigrate(&Widget{}))
	require.NoError(t, gdb.Create(&Widget{ID: 7, Name: "gear"}).Error)

	conn, err := database.FromGorm(ctx, gdb)
	require.NoError(t, err)
	defer conn.Close()

	assert.Equal(t, "sqlite", conn.Dialect().Name())

	snap, err := conn.SnapshotTables(ctx, "widgets")
	require.NoError(t, err)
	rows := snap.Table("widgets").Rows
	require.Len(t, rows, 1)
	v, ok := snap.Table("widgets").Value(0, "name")
	require.True(t, ok)
	assert.Equal(t, "gear", v)
}

func TestSnapshot_QueryError(t *testing.T) {
	ctx := context.Background()
	db, mock, err := sqlmock.New()
	require.NoError(t, err)
	defer db.Close()

	mock.ExpectQuery("SELECT name FROM sqlite_master").WillReturnError(errors.New("disk I/O error"))

	raw, err := db.Conn(ctx)
	require.NoError(t, err)
	conn := database.NewSQLConnection(raw, database.SQLite)
	defer conn.Close()

	_, err = conn.Snapshot(ctx)
	require.Error(t, err)
	assert.True(t, database.IsExecError(err))
	assert.Contains(t, err.Error(), "disk I/O error")
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestSnapshot_SkipsTablesWithUnrepresentableNames(t *testing.T) {
	ctx := context.Background()
	db := testutil.OpenSQLite(t, schema+`CREATE TABLE "order-items" (id INTEGER PRIMARY KEY);`)
	_, err := db.Exec(`INSERT INTO "order-items" (id) VALUES (1)`)
	require.NoError(t, err)

	conn, err := database.FromDB(ctx, db)
	require.NoError(t, err)
	defer conn.Close()

	snap, err := conn.Snapshot(ctx)
	require.NoError(t, err)
	assert.Equal(t, []string{"audit_log", "membership", "person"}, snap.TableNames())

	_, err = conn.SnapshotTables(ctx, "order-items")
	require.Error(t, err)
	assert.True(t, database.IsExecError(err))
}

func TestPostgresSnapshotTables_FoldsNames(t *testing.T) {
	ctx := context.Background()
	db, mock, err := sqlmock.New()
	require.NoError(t, err)
	defer db.Close()

	mock.ExpectQuery("FROM information_schema.tables").
		WillReturnRows(sqlmock.NewRows([]string{"table_name"}).AddRow("person"))
	mock.ExpectQuery("FROM information_schema.table_constraints").
		WithArgs("person").
		WillReturnRows(sqlmock.NewRows([]string{"column_name"}).AddRow("id"))
	mock.ExpectQuery(`SELECT \* FROM "person" ORDER BY "id"`).
		WillReturnRows(sqlmock.NewRows([]string{"id", "name"}).AddRow(int64(1), "ann"))

	raw, err := db.Conn(ctx)
	require.NoError(t, err)
	conn := database.NewSQLConnection(raw, database.Postgres)
	defer conn.Close()

	snap, err := conn.SnapshotTables(ctx, "PERSON")
	require.NoError(t, err)
	assert.Equal(t, []string{"person"}, snap.TableNames())
	assert.Equal(t, 1, snap.RowCount())
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestPostgresPrimaryKeys(t *testing.T) {
	ctx := context.Background()
	db, mock, err := sqlmock.New()
	require.NoError(t, err)
	defer db.Close()

	mock.ExpectQuery("FROM information_schema.table_constraints").
		WithArgs("person").
		WillReturnRows(sqlmock.NewRows([]string{"column_name"}).AddRow("tenant").AddRow("id"))

	raw, err := db.Conn(ctx)
	require.NoError(t, err)
	conn := database.NewSQLConnection(raw, database.Postgres)
	defer conn.Close()

	keys, err := conn.PrimaryKeys(ctx, "person")
	require.NoError(t, err)
	assert.Equal(t, []string{"tenant", "id"}, keys)

	// Cached: no second query is expected.
	keys, err = conn.PrimaryKeys(ctx, "person")
	require.NoError(t, err)
	assert.Equal(t, []string{"tenant", "id"}, keys)
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestExecError(t *testing.T) {
	cause := errors.New("constraint failed")
	err := &database.ExecError{Operation: "insert", Table: "person", Err: cause}

	assert.Equal(t, "insert on table person: constraint failed", err.Error())
	assert.ErrorIs(t, err, cause)
	assert.Equal(t, "snapshot: x", (&database.ExecError{Operation: "snapshot", Err: errors.New("x")}).Error())
}

type nopOperation struct{}

func (nopOperation) String() string { return "nop" }

func (nopOperation) Execute(context.Context, database.Executor, *dataset.Dataset) error {
	return nil
}
