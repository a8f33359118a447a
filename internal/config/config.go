package config

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"sort"
	"strings"

	"github.com/hashicorp/go-multierror"
	"github.com/spf13/afero"
	"github.com/spf13/viper"

	"github.com/roach88/dsunit/internal/database"
	"github.com/roach88/dsunit/internal/runner"
)

const (
	// DefaultPath is read when no path is given. It may be absent.
	DefaultPath = "dsunit.yaml"

	// EnvPrefix prefixes environment overrides, e.g.
	// DSUNIT_CONNECTIONS_MAIN_DSN or DSUNIT_LOG_LEVEL.
	EnvPrefix = "DSUNIT"

	keyDatasets = "datasets"
	keyFormat   = "format"
	keyLogLevel = "log_level"
)

// Connection describes one named database.
type Connection struct {
	// Driver is a database/sql driver name: sqlite3, sqlite, pgx,
	// postgres or mysql.
	Driver string `mapstructure:"driver"`

	DSN string `mapstructure:"dsn"`

	// Dialect overrides the dialect inferred from the driver.
	Dialect string `mapstructure:"dialect"`
}

// Config is the content of dsunit.yaml.
type Config struct {
	// Connections by name. Names are lower-cased.
	Connections map[string]Connection `mapstructure:"connections"`

	// Datasets is the directory relative dataset locations resolve against.
	Datasets string `mapstructure:"datasets"`

	// Format is the default export format, yaml or xml.
	Format string `mapstructure:"format"`

	// LogLevel is debug, info, warn or error.
	LogLevel string `mapstructure:"log_level"`
}

// Load reads the configuration at path from fs, applying DSUNIT_
// environment overrides. An empty path means DefaultPath, which may be
// missing; an explicit path must exist. A nil fs means the OS filesystem.
func Load(fs afero.Fs, path string) (*Config, error) {
	if fs == nil {
		fs = afero.NewOsFs()
	}

	v := viper.New()
	v.SetFs(fs)
	v.SetDefault(keyDatasets, ".")
	v.SetDefault(keyFormat, "yaml")
	v.SetDefault(keyLogLevel, "warn")
	v.SetEnvPrefix(EnvPrefix)
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	v.AutomaticEnv()

	explicit := path != ""
	if !explicit {
		path = DefaultPath
	}

	exists, err := afero.Exists(fs, path)
	if err != nil {
		return nil, fmt.Errorf("stat config: %w", err)
	}
	if exists {
		v.SetConfigFile(path)
		v.SetConfigType("yaml")
		if err := v.ReadInConfig(); err != nil {
			return nil, fmt.Errorf("read config: %w", err)
		}
	} else if explicit {
		return nil, fmt.Errorf("config file %s not found", path)
	}

	var cfg Config
	if err := v.Unmarshal(&cfg); err != nil {
		return nil, fmt.Errorf("decode config: %w", err)
	}
	if cfg.Connections == nil {
		cfg.Connections = make(map[string]Connection)
	}

	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return &cfg, nil
}

// Validate reports every problem in cfg at once.
func (c *Config) Validate() error {
	var result *multierror.Error

	for _, name := range c.Names() {
		conn := c.Connections[name]
		if conn.Driver == "" {
			result = multierror.Append(result, fmt.Errorf("connections.%s: driver is required", name))
		}
		if conn.DSN == "" {
			result = multierror.Append(result, fmt.Errorf("connections.%s: dsn is required", name))
		}
		if conn.Dialect != "" {
			if _, err := database.DialectByName(conn.Dialect); err != nil {
				result = multierror.Append(result, fmt.Errorf("connections.%s: %w", name, err))
			}
		}
	}

	switch c.Format {
	case "yaml", "xml":
	default:
		result = multierror.Append(result, fmt.Errorf("format: must be yaml or xml, got %q", c.Format))
	}

	if _, err := c.Level(); err != nil {
		result = multierror.Append(result, err)
	}
	return result.ErrorOrNil()
}

// Names returns the connection names in lexicographic order.
func (c *Config) Names() []string {
	names := make([]string, 0, len(c.Connections))
	for name := range c.Connections {
		names = append(names, name)
	}
	sort.Strings(names)
	return names
}

// Level parses LogLevel.
func (c *Config) Level() (slog.Level, error) {
	var level slog.Level
	if err := level.UnmarshalText([]byte(c.LogLevel)); err != nil {
		return 0, fmt.Errorf("log_level: %w", err)
	}
	return level, nil
}

// Source returns a connection source opening the named connections, or all
// of them when names is empty. Connections are opened in name order; every
// failure is reported and the connections that did open are returned for
// closing.
func (c *Config) Source(names ...string) runner.ConnectionSource {
	if len(names) == 0 {
		names = c.Names()
	}
	return func(ctx context.Context) (map[string]database.Connection, error) {
		out := make(map[string]database.Connection, len(names))
		var result *multierror.Error
		for _, name := range names {
			conn, ok := c.Connections[strings.ToLower(name)]
			if !ok {
				result = multierror.Append(result, fmt.Errorf("connection %q is not configured", name))
				continue
			}
			sc, err := database.Open(ctx, conn.Driver, conn.DSN, conn.Dialect)
			if err != nil {
				result = multierror.Append(result, fmt.Errorf("connection %s: %w", name, err))
				continue
			}
			out[name] = sc
		}
		return out, result.ErrorOrNil()
	}
}

// ErrNoConnections is returned by Default when nothing is configured.
var ErrNoConnections = errors.New("no connections configured")

// Default returns the name of the connection used when none is given: the
// only one, or the first in name order.
func (c *Config) Default() (string, error) {
	names := c.Names()
	if len(names) == 0 {
		return "", ErrNoConnections
	}
	return names[0], nil
}
