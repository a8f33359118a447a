package database

import (
	"context"
	"database/sql"
	"fmt"
	"sync"

	"gorm.io/gorm"

	"github.com/roach88/dsunit/internal/dataset"
)

// Connection is a handle to one database that datasets are applied to and
// snapshotted from.
type Connection interface {
	// Snapshot returns the current content of every user table.
	Snapshot(ctx context.Context) (*dataset.Dataset, error)

	// Execute applies op with ds.
	Execute(ctx context.Context, op Operation, ds *dataset.Dataset) error

	// Close releases the connection. Calling Close more than once is safe.
	Close() error
}

// Operation is an executable dataset operation such as insert or
// delete-all.
type Operation interface {
	Execute(ctx context.Context, ex Executor, ds *dataset.Dataset) error
	String() string
}

// Executor is what operations run against.
type Executor interface {
	Queryer
	ExecContext(ctx context.Context, query string, args ...any) (sql.Result, error)

	// Dialect returns the SQL dialect of the connection.
	Dialect() Dialect

	// PrimaryKeys returns the key columns of table, cached per connection.
	PrimaryKeys(ctx context.Context, table string) ([]string, error)
}

// SQLConnection is a Connection over a dedicated *sql.Conn.
type SQLConnection struct {
	conn    *sql.Conn
	dialect Dialect
	release func() error

	mu      sync.Mutex
	keys    map[string][]string
	cols    map[string][]string
	closed  bool
	closeFn sync.Once
	err     error
}

var _ Connection = (*SQLConnection)(nil)
var _ Executor = (*SQLConnection)(nil)

// NewSQLConnection wraps conn. Closing the connection returns conn to its
// pool; the pool itself stays open.
func NewSQLConnection(conn *sql.Conn, dialect Dialect) *SQLConnection {
	return &SQLConnection{
		conn:    conn,
		dialect: dialect,
		keys:    make(map[string][]string),
		cols:    make(map[string][]string),
	}
}

// FromDB acquires a dedicated connection from db. The dialect is inferred
// from the registered driver.
func FromDB(ctx context.Context, db *sql.DB) (*SQLConnection, error) {
	dialect, err := DialectFor(db.Driver())
	if err != nil {
		return nil, err
	}
	return fromPool(ctx, db, dialect, nil)
}

// FromGorm acquires a dedicated connection from the pool behind a gorm
// handle. The dialect follows the gorm dialector.
func FromGorm(ctx context.Context, gdb *gorm.DB) (*SQLConnection, error) {
	db, err := gdb.DB()
	if err != nil {
		return nil, fmt.Errorf("failed to get sql.DB from gorm: %w", err)
	}
	dialect, err := DialectByName(gdb.Dialector.Name())
	if err != nil {
		return nil, err
	}
	return fromPool(ctx, db, dialect, nil)
}

// Open opens a new pool for driver and dsn and returns a connection that owns
// it: closing the connection closes the pool. dialectName may be empty, in
// which case the dialect is inferred from the driver.
func Open(ctx context.Context, driverName, dsn, dialectName string) (*SQLConnection, error) {
	db, err := sql.Open(driverName, dsn)
	if err != nil {
		return nil, fmt.Errorf("failed to open database: %w", err)
	}

	var dialect Dialect
	if dialectName != "" {
		dialect, err = DialectByName(dialectName)
	} else {
		dialect, err = DialectFor(db.Driver())
	}
	if err != nil {
		db.Close()
		return nil, err
	}

	if err := db.PingContext(ctx); err != nil {
		db.Close()
		return nil, fmt.Errorf("failed to connect to database: %w", err)
	}

	return fromPool(ctx, db, dialect, db.Close)
}

func fromPool(ctx context.Context, db *sql.DB, dialect Dialect, closePool func() error) (*SQLConnection, error) {
	conn, err := db.Conn(ctx)
	if err != nil {
		if closePool != nil {
			closePool()
		}
		return nil, fmt.Errorf("failed to acquire connection: %w", err)
	}
	c := NewSQLConnection(conn, dialect)
	c.release = closePool
	return c, nil
}

// Dialect implements Executor.
func (c *SQLConnection) Dialect() Dialect {
	return c.dialect
}

// QueryContext implements Queryer.
func (c *SQLConnection) QueryContext(ctx context.Context, query string, args ...any) (*sql.Rows, error) {
	return c.conn.QueryContext(ctx, query, args...)
}

// ExecContext implements Executor.
func (c *SQLConnection) ExecContext(ctx context.Context, query string, args ...any) (sql.Result, error) {
	return c.conn.ExecContext(ctx, query, args...)
}

// PrimaryKeys implements Executor.
func (c *SQLConnection) PrimaryKeys(ctx context.Context, table string) ([]string, error) {
	c.mu.Lock()
	keys, ok := c.keys[table]
	c.mu.Unlock()
	if ok {
		return keys, nil
	}

	keys, err := c.dialect.PrimaryKeys(ctx, c.conn, table)
	if err != nil {
		return nil, err
	}

	c.mu.Lock()
	c.keys[table] = keys
	c.mu.Unlock()
	return keys, nil
}

// Execute implements Connection. On case-sensitive dialects table and
// column names of ds are first matched against the catalogue, so that a
// dataset declaring PERSON reaches a table created as person.
func (c *SQLConnection) Execute(ctx context.Context, op Operation, ds *dataset.Dataset) error {
	if c.isClosed() {
		return &ExecError{Operation: op.String(), Err: sql.ErrConnDone}
	}
	ds, err := c.canonical(ctx, ds)
	if err != nil {
		return err
	}
	return op.Execute(ctx, c, ds)
}

// Close implements Connection. The dedicated connection is returned to its
// pool and, for connections created by Open, the pool is closed.
func (c *SQLConnection) Close() error {
	c.closeFn.Do(func() {
		c.mu.Lock()
		c.closed = true
		c.mu.Unlock()

		if err := c.conn.Close(); err != nil && err != sql.ErrConnDone {
			c.err = fmt.Errorf("failed to release connection: %w", err)
		}
		if c.release != nil {
			if err := c.release(); err != nil && c.err == nil {
				c.err = fmt.Errorf("failed to close database: %w", err)
			}
		}
	})
	return c.err
}

func (c *SQLConnection) isClosed() bool {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.closed
}
