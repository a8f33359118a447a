package resolve

import (
	"context"
	"database/sql"
	"sort"

	"gorm.io/gorm"

	"github.com/roach88/dsunit/internal/database"
	"github.com/roach88/dsunit/internal/runner"
)

// Config is connection configuration supplied explicitly by the host. It
// takes precedence over fields of the test instance with the same name.
type Config struct {
	// Connections are used as is and closed at the end of every invocation.
	Connections map[string]database.Connection

	// DataSources are pools. Each invocation acquires a dedicated connection
	// and returns it to the pool when done; the pool stays open.
	DataSources map[string]*sql.DB
}

type opener func(ctx context.Context) (database.Connection, error)

// Source combines cfg and fields into a runner.ConnectionSource. Nothing is
// opened until the source is called. Fields are considered first and
// explicit configuration then replaces fields of the same name.
//
// When opening one connection fails, the connections opened before it are
// returned along with the error so that the caller can close them.
func Source(cfg Config, fields Fields) runner.ConnectionSource {
	openers := make(map[string]opener)

	for name, gdb := range fields.Gorm {
		openers[name] = gormOpener(gdb)
	}
	for name, db := range fields.DataSources {
		openers[name] = dbOpener(db)
	}
	for name, c := range fields.Connections {
		openers[name] = connOpener(c)
	}
	for name, db := range cfg.DataSources {
		if db != nil {
			openers[name] = dbOpener(db)
		}
	}
	for name, c := range cfg.Connections {
		if c != nil {
			openers[name] = connOpener(c)
		}
	}

	names := make([]string, 0, len(openers))
	for name := range openers {
		names = append(names, name)
	}
	sort.Strings(names)

	return func(ctx context.Context) (map[string]database.Connection, error) {
		out := make(map[string]database.Connection, len(names))
		for _, name := range names {
			c, err := openers[name](ctx)
			if err != nil {
				return out, &OpenError{Connection: name, Err: err}
			}
			out[name] = c
		}
		return out, nil
	}
}

func connOpener(c database.Connection) opener {
	return func(context.Context) (database.Connection, error) {
		return c, nil
	}
}

func dbOpener(db *sql.DB) opener {
	return func(ctx context.Context) (database.Connection, error) {
		return database.FromDB(ctx, db)
	}
}

func gormOpener(gdb *gorm.DB) opener {
	return func(ctx context.Context) (database.Connection, error) {
		return database.FromGorm(ctx, gdb)
	}
}

// OpenError reports the connection that could not be opened.
type OpenError struct {
	Connection string
	Err        error
}

func (e *OpenError) Error() string {
	return "open connection " + e.Connection + ": " + e.Err.Error()
}

func (e *OpenError) Unwrap() error {
	return e.Err
}
