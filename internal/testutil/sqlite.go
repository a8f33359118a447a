package testutil

import (
	"context"
	"database/sql"
	"testing"

	"github.com/google/uuid"
	_ "github.com/mattn/go-sqlite3"
	"github.com/stretchr/testify/require"
)

// MemoryDSN returns a DSN for a fresh shared-cache in-memory SQLite
// database. Every call names a different database, so parallel tests never
// see each other's tables while connections of one pool share the same data.
func MemoryDSN() string {
	return "file:dsunit-" + uuid.NewString() + "?mode=memory&cache=shared"
}

// OpenSQLite opens an in-memory SQLite database, applies schema and closes
// it when the test ends.
//
// One connection stays pinned for the lifetime of the test: a shared-cache
// in-memory database is dropped as soon as its last connection closes.
func OpenSQLite(t *testing.T, schema string) *sql.DB {
	t.Helper()
	return OpenSQLiteAt(t, MemoryDSN(), schema)
}

// OpenSQLiteAt is OpenSQLite for a given DSN, for tests that hand the DSN to
// code opening its own pool.
func OpenSQLiteAt(t *testing.T, dsn, schema string) *sql.DB {
	t.Helper()

	db, err := sql.Open("sqlite3", dsn)
	require.NoError(t, err)

	pin, err := db.Conn(context.Background())
	require.NoError(t, err)

	t.Cleanup(func() {
		pin.Close()
		db.Close()
	})

	if schema != "" {
		_, err = db.Exec(schema)
		require.NoError(t, err, "apply schema")
	}
	return db
}

// Count returns the number of rows in table.
func Count(t *testing.T, db *sql.DB, table string) int {
	t.Helper()
	var n int
	require.NoError(t, db.QueryRow("SELECT COUNT(*) FROM "+table).Scan(&n))
	return n
}
