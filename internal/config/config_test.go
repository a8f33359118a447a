package config_test

import (
	"context"
	"log/slog"
	"testing"

	"github.com/spf13/afero"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/roach88/dsunit/internal/config"
	"github.com/roach88/dsunit/internal/testutil"
)

func writeConfig(t *testing.T, content string) afero.Fs {
	t.Helper()
	fs := afero.NewMemMapFs()
	require.NoError(t, afero.WriteFile(fs, config.DefaultPath, []byte(content), 0o644))
	return fs
}

func TestLoad_MissingDefaultFile(t *testing.T) {
	cfg, err := config.Load(afero.NewMemMapFs(), "")
	require.NoError(t, err)

	assert.Empty(t, cfg.Connections)
	assert.Equal(t, ".", cfg.Datasets)
	assert.Equal(t, "yaml", cfg.Format)
	level, err := cfg.Level()
	require.NoError(t, err)
	assert.Equal(t, slog.LevelWarn, level)

	_, err = cfg.Default()
	assert.ErrorIs(t, err, config.ErrNoConnections)
}

func TestLoad_MissingExplicitFile(t *testing.T) {
	_, err := config.Load(afero.NewMemMapFs(), "other.yaml")
	require.Error(t, err)
	assert.Contains(t, err.Error(), "other.yaml not found")
}

func TestLoad_File(t *testing.T) {
	fs := writeConfig(t, `
datasets: testdata/datasets
format: xml
log_level: debug
connections:
  main:
    driver: sqlite3
    dsn: file:main.db
  reporting:
    driver: pgx
    dsn: postgres://localhost/reports
    dialect: postgres
`)

	cfg, err := config.Load(fs, "")
	require.NoError(t, err)

	assert.Equal(t, "testdata/datasets", cfg.Datasets)
	assert.Equal(t, "xml", cfg.Format)
	assert.Equal(t, []string{"main", "reporting"}, cfg.Names())
	assert.Equal(t, config.Connection{Driver: "pgx", DSN: "postgres://localhost/reports", Dialect: "postgres"}, cfg.Connections["reporting"])

	name, err := cfg.Default()
	require.NoError(t, err)
	assert.Equal(t, "main", name)
}

func TestLoad_EnvironmentOverrides(t *testing.T) {
	fs := writeConfig(t, `
connections:
  main:
    driver: sqlite3
    dsn: file:main.db
`)
	t.Setenv("DSUNIT_CONNECTIONS_MAIN_DSN", "file:override.db")
	t.Setenv("DSUNIT_LOG_LEVEL", "error")

	cfg, err := config.Load(fs, "")
	require.NoError(t, err)
	assert.Equal(t, "file:override.db", cfg.Connections["main"].DSN)
	assert.Equal(t, "error", cfg.LogLevel)
}

func TestLoad_ReportsAllProblems(t *testing.T) {
	fs := writeConfig(t, `
format: json
log_level: loud
connections:
  broken:
    dialect: oracle
`)

	_, err := config.Load(fs, "")
	require.Error(t, err)
	for _, want := range []string{
		"connections.broken: driver is required",
		"connections.broken: dsn is required",
		`unsupported dialect "oracle"`,
		`format: must be yaml or xml, got "json"`,
		"log_level:",
	} {
		assert.Contains(t, err.Error(), want)
	}
}

func TestLoad_MalformedFile(t *testing.T) {
	fs := writeConfig(t, "connections: [unclosed\n")
	_, err := config.Load(fs, "")
	require.Error(t, err)
	assert.Contains(t, err.Error(), "read config")
}

func TestSource(t *testing.T) {
	cfg := &config.Config{Connections: map[string]config.Connection{
		"main":   {Driver: "sqlite3", DSN: testutil.MemoryDSN()},
		"broken": {Driver: "no-such-driver", DSN: "x"},
	}}

	conns, err := cfg.Source("main")(context.Background())
	require.NoError(t, err)
	require.Contains(t, conns, "main")
	require.NoError(t, conns["main"].Close())

	conns, err = cfg.Source()(context.Background())
	require.Error(t, err)
	assert.Contains(t, err.Error(), "connection broken")
	require.Contains(t, conns, "main")
	require.NoError(t, conns["main"].Close())

	_, err = cfg.Source("missing")(context.Background())
	assert.Contains(t, err.Error(), `connection "missing" is not configured`)
}
