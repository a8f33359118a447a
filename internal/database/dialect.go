package database

import (
	"context"
	"database/sql"
	"database/sql/driver"
	"fmt"
	"sort"
	"strconv"
	"strings"

	"github.com/go-sql-driver/mysql"
	"github.com/jackc/pgx/v5/stdlib"
	"github.com/lib/pq"
	"github.com/mattn/go-sqlite3"
	"modernc.org/sqlite"
)

// Queryer is the read side of *sql.Conn, *sql.DB and *sql.Tx.
type Queryer interface {
	QueryContext(ctx context.Context, query string, args ...any) (*sql.Rows, error)
}

// Dialect captures the SQL differences between the supported engines.
// Identifiers passed to a dialect are already validated.
type Dialect interface {
	// Name is the canonical dialect name: sqlite, postgres or mysql.
	Name() string

	// Placeholder returns the bind parameter for the n-th argument (1-based).
	Placeholder(n int) string

	// Quote quotes an identifier.
	Quote(ident string) string

	// CaseSensitive reports whether quoted identifiers must match the
	// catalogue spelling exactly.
	CaseSensitive() bool

	// TablesQuery lists user tables, one name per row, sorted by name.
	TablesQuery() string

	// PrimaryKeys returns the primary key columns of table in key order.
	PrimaryKeys(ctx context.Context, q Queryer, table string) ([]string, error)

	// TruncateSQL returns the statement that empties table.
	TruncateSQL(table string) string
}

// Built-in dialects.
var (
	SQLite   Dialect = sqliteDialect{}
	Postgres Dialect = postgresDialect{}
	MySQL    Dialect = mysqlDialect{}
)

// DialectByName returns the dialect for a dialect or driver name as used in
// configuration files and gorm dialectors.
func DialectByName(name string) (Dialect, error) {
	switch strings.ToLower(name) {
	case "sqlite", "sqlite3":
		return SQLite, nil
	case "postgres", "postgresql", "pgx":
		return Postgres, nil
	case "mysql":
		return MySQL, nil
	default:
		return nil, fmt.Errorf("unsupported dialect %q", name)
	}
}

// DialectFor infers the dialect from the driver behind a *sql.DB.
func DialectFor(d driver.Driver) (Dialect, error) {
	switch d.(type) {
	case *sqlite3.SQLiteDriver, *sqlite.Driver:
		return SQLite, nil
	case *stdlib.Driver, *pq.Driver:
		return Postgres, nil
	case *mysql.MySQLDriver:
		return MySQL, nil
	default:
		return nil, fmt.Errorf("cannot infer dialect for driver %T", d)
	}
}

type sqliteDialect struct{}

func (sqliteDialect) Name() string           { return "sqlite" }
func (sqliteDialect) Placeholder(int) string { return "?" }
func (sqliteDialect) Quote(ident string) string {
	return `"` + ident + `"`
}
func (sqliteDialect) CaseSensitive() bool { return false }

func (sqliteDialect) TablesQuery() string {
	return `SELECT name FROM sqlite_master WHERE type = 'table' AND name NOT LIKE 'sqlite_%' ORDER BY name`
}

// PrimaryKeys reads PRAGMA table_info. The pk column holds the 1-based
// position within the key, or 0 for non-key columns.
func (d sqliteDialect) PrimaryKeys(ctx context.Context, q Queryer, table string) ([]string, error) {
	rows, err := q.QueryContext(ctx, "PRAGMA table_info("+d.Quote(table)+")")
	if err != nil {
		return nil, fmt.Errorf("query table info: %w", err)
	}
	defer rows.Close()

	type keyCol struct {
		name string
		pos  int
	}
	var keys []keyCol
	for rows.Next() {
		var (
			cid     int
			name    string
			typ     string
			notNull int
			dflt    sql.NullString
			pk      int
		)
		if err := rows.Scan(&cid, &name, &typ, &notNull, &dflt, &pk); err != nil {
			return nil, fmt.Errorf("scan table info: %w", err)
		}
		if pk > 0 {
			keys = append(keys, keyCol{name: name, pos: pk})
		}
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterate table info: %w", err)
	}

	sort.Slice(keys, func(i, j int) bool { return keys[i].pos < keys[j].pos })
	names := make([]string, len(keys))
	for i, k := range keys {
		names[i] = k.name
	}
	return names, nil
}

func (d sqliteDialect) TruncateSQL(table string) string {
	return "DELETE FROM " + d.Quote(table)
}

type postgresDialect struct{}

func (postgresDialect) Name() string { return "postgres" }
func (postgresDialect) Placeholder(n int) string {
	return "$" + strconv.Itoa(n)
}
func (postgresDialect) Quote(ident string) string {
	return `"` + ident + `"`
}
func (postgresDialect) CaseSensitive() bool { return true }

func (postgresDialect) TablesQuery() string {
	return `SELECT table_name FROM information_schema.tables
		WHERE table_schema = current_schema() AND table_type = 'BASE TABLE'
		ORDER BY table_name`
}

func (postgresDialect) PrimaryKeys(ctx context.Context, q Queryer, table string) ([]string, error) {
	return queryColumnList(ctx, q, `
		SELECT kcu.column_name
		FROM information_schema.table_constraints tc
		JOIN information_schema.key_column_usage kcu
		  ON tc.constraint_name = kcu.constraint_name
		 AND tc.table_schema = kcu.table_schema
		 AND tc.table_name = kcu.table_name
		WHERE tc.constraint_type = 'PRIMARY KEY'
		  AND tc.table_schema = current_schema()
		  AND tc.table_name = $1
		ORDER BY kcu.ordinal_position
	`, table)
}

func (d postgresDialect) TruncateSQL(table string) string {
	return "TRUNCATE TABLE " + d.Quote(table)
}

type mysqlDialect struct{}

func (mysqlDialect) Name() string           { return "mysql" }
func (mysqlDialect) Placeholder(int) string { return "?" }
func (mysqlDialect) Quote(ident string) string {
	return "`" + ident + "`"
}

// CaseSensitive is true because table names follow the file system on most
// MySQL installations.
func (mysqlDialect) CaseSensitive() bool { return true }

func (mysqlDialect) TablesQuery() string {
	return `SELECT table_name FROM information_schema.tables
		WHERE table_schema = DATABASE() AND table_type = 'BASE TABLE'
		ORDER BY table_name`
}

func (mysqlDialect) PrimaryKeys(ctx context.Context, q Queryer, table string) ([]string, error) {
	return queryColumnList(ctx, q, `
		SELECT column_name
		FROM information_schema.key_column_usage
		WHERE table_schema = DATABASE()
		  AND table_name = ?
		  AND constraint_name = 'PRIMARY'
		ORDER BY ordinal_position
	`, table)
}

func (d mysqlDialect) TruncateSQL(table string) string {
	return "TRUNCATE TABLE " + d.Quote(table)
}

func queryColumnList(ctx context.Context, q Queryer, query string, args ...any) ([]string, error) {
	rows, err := q.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("query primary keys: %w", err)
	}
	defer rows.Close()

	var names []string
	for rows.Next() {
		var name string
		if err := rows.Scan(&name); err != nil {
			return nil, fmt.Errorf("scan primary key: %w", err)
		}
		names = append(names, name)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterate primary keys: %w", err)
	}
	return names, nil
}
