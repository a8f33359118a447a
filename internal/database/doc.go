// Package database adapts database/sql handles into dataset connections.
//
// A Connection owns one dedicated *sql.Conn for the duration of a test so
// that session state (temporary tables, SQLite in-memory databases) is seen
// consistently by setup, the test and verification. Connections can be built
// from a *sql.DB, a *gorm.DB or a driver name and DSN:
//
//	conn, err := database.FromDB(ctx, db)
//	if err != nil {
//	    return err
//	}
//	defer conn.Close()
//
// The SQL dialect is inferred from the driver. SQLite (mattn/go-sqlite3 and
// modernc.org/sqlite), PostgreSQL (pgx and lib/pq) and MySQL are supported.
package database
