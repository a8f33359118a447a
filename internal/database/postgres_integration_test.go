//go:build integration
// +build integration

package database_test

import (
	"context"
	"database/sql"
	"testing"

	_ "github.com/jackc/pgx/v5/stdlib"
	_ "github.com/lib/pq"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"github.com/testcontainers/testcontainers-go"
	"github.com/testcontainers/testcontainers-go/modules/postgres"
	gormpostgres "gorm.io/driver/postgres"
	"gorm.io/gorm"
	gormlogger "gorm.io/gorm/logger"

	"github.com/roach88/dsunit/internal/database"
	"github.com/roach88/dsunit/internal/dataset"
	"github.com/roach88/dsunit/internal/operation"
)

const pgSchema = `
CREATE TABLE person (id INTEGER PRIMARY KEY, name TEXT, email TEXT);
CREATE TABLE membership (group_id INTEGER, person_id INTEGER, role TEXT, PRIMARY KEY (person_id, group_id));
`

// startPostgres runs a throwaway PostgreSQL container with pgSchema applied
// and returns its DSN.
func startPostgres(t *testing.T) string {
	t.Helper()
	if testing.Short() {
		t.Skip("skipping integration test in short mode")
	}

	ctx := context.Background()
	ctr, err := postgres.Run(ctx,
		"postgres:16-alpine",
		postgres.WithDatabase("dsunit"),
		postgres.WithUsername("dsunit"),
		postgres.WithPassword("dsunit"),
		postgres.BasicWaitStrategies(),
	)
	testcontainers.CleanupContainer(t, ctr)
	require.NoError(t, err)

	dsn, err := ctr.ConnectionString(ctx, "sslmode=disable")
	require.NoError(t, err)

	db, err := sql.Open("pgx", dsn)
	require.NoError(t, err)
	defer db.Close()
	_, err = db.ExecContext(ctx, pgSchema)
	require.NoError(t, err)

	return dsn
}

func people(t *testing.T) *dataset.Dataset {
	t.Helper()
	ds, err := dataset.YAMLDecoder{}.Decode("people.yaml", []byte(`
person:
  - id: 2
    name: bob
  - id: 1
    name: ann
    email: ann@example.com
membership:
  - group_id: 10
    person_id: 1
    role: owner
`))
	require.NoError(t, err)
	return ds
}

func TestPostgres(t *testing.T) {
	dsn := startPostgres(t)
	ctx := context.Background()
	ops := operation.DefaultLookup()

	open := map[string]func(t *testing.T) database.Connection{
		"pgx": func(t *testing.T) database.Connection {
			conn, err := database.Open(ctx, "pgx", dsn, "")
			require.NoError(t, err)
			return conn
		},
		"pq": func(t *testing.T) database.Connection {
			db, err := sql.Open("postgres", dsn)
			require.NoError(t, err)
			t.Cleanup(func() { db.Close() })
			conn, err := database.FromDB(ctx, db)
			require.NoError(t, err)
			return conn
		},
		"gorm": func(t *testing.T) database.Connection {
			gdb, err := gorm.Open(gormpostgres.Open(dsn), &gorm.Config{Logger: gormlogger.Discard})
			require.NoError(t, err)
			conn, err := database.FromGorm(ctx, gdb)
			require.NoError(t, err)
			return conn
		},
	}

	for _, name := range []string{"pgx", "pq", "gorm"} {
		t.Run(name, func(t *testing.T) {
			conn := open[name](t)
			defer conn.Close()

			cleanInsert, ok := ops.Get(operation.CleanInsert)
			require.True(t, ok)
			require.NoError(t, conn.Execute(ctx, cleanInsert, people(t)))

			snap, err := conn.Snapshot(ctx)
			require.NoError(t, err)
			assert.Equal(t, []string{"membership", "person"}, snap.TableNames())

			person := snap.Table("person")
			require.Len(t, person.Rows, 2)
			id, _ := person.Value(0, "id")
			assert.Equal(t, int64(1), id, "rows are ordered by primary key")
			email, _ := person.Value(1, "email")
			assert.Nil(t, email)

			truncate, ok := ops.Get(operation.TruncateTable)
			require.True(t, ok)
			require.NoError(t, conn.Execute(ctx, truncate, people(t)))

			snap, err = conn.Snapshot(ctx)
			require.NoError(t, err)
			assert.Zero(t, snap.RowCount())
		})
	}
}

func TestPostgres_PrimaryKeys(t *testing.T) {
	dsn := startPostgres(t)
	ctx := context.Background()

	conn, err := database.Open(ctx, "postgres", dsn, "postgres")
	require.NoError(t, err)
	defer conn.Close()

	keys, err := conn.PrimaryKeys(ctx, "membership")
	require.NoError(t, err)
	assert.Equal(t, []string{"person_id", "group_id"}, keys)
}
