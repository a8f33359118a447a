package cli

import (
	"bytes"
	"context"
	"fmt"
	"strings"

	"github.com/spf13/afero"
	"github.com/spf13/cobra"

	"github.com/roach88/dsunit/internal/database"
	"github.com/roach88/dsunit/internal/dataset"
)

// SnapshotOptions holds flags for the snapshot command.
type SnapshotOptions struct {
	Connection string
	Tables     []string
	Output     string
	As         string
}

// TableSummary describes one exported table.
type TableSummary struct {
	Name string `json:"name"`
	Rows int    `json:"rows"`
}

// SnapshotResult is the outcome of a snapshot. Content holds the exported
// dataset when it is not written to a file.
type SnapshotResult struct {
	Connection string         `json:"connection"`
	Format     string         `json:"format"`
	Output     string         `json:"output,omitempty"`
	Tables     []TableSummary `json:"tables"`
	Content    string         `json:"content,omitempty"`
}

func (r SnapshotResult) String() string {
	rows := 0
	for _, t := range r.Tables {
		rows += t.Rows
	}
	return fmt.Sprintf("✓ Exported %d table(s), %d row(s) from %s to %s", len(r.Tables), rows, r.Connection, r.Output)
}

// tableSnapshotter is implemented by connections that can export a subset
// of their tables.
type tableSnapshotter interface {
	SnapshotTables(ctx context.Context, tables ...string) (*dataset.Dataset, error)
}

// NewSnapshotCommand creates the snapshot command.
func NewSnapshotCommand(rootOpts *RootOptions) *cobra.Command {
	opts := &SnapshotOptions{}

	cmd := &cobra.Command{
		Use:   "snapshot",
		Short: "Export the content of a connection as a flat dataset",
		Long: `Export the current content of a connection as a flat YAML or XML
dataset, ordered by primary key. The result can be used as a setup or
expected dataset.`,
		Args:          cobra.NoArgs,
		SilenceUsage:  true, // Don't print usage on errors
		SilenceErrors: true, // Don't print errors - we handle our own error output
		RunE: func(cmd *cobra.Command, args []string) error {
			return runSnapshot(cmd.Context(), rootOpts, opts, cmd)
		},
	}

	cmd.Flags().StringVarP(&opts.Connection, "connection", "c", "", "connection name (default: first configured)")
	cmd.Flags().StringSliceVar(&opts.Tables, "table", nil, "tables to export (default: all)")
	cmd.Flags().StringVarP(&opts.Output, "output", "o", "", "file to write (default: stdout)")
	cmd.Flags().StringVar(&opts.As, "as", "", "dataset format yaml|xml (default: format from config)")

	return cmd
}

func runSnapshot(ctx context.Context, rootOpts *RootOptions, opts *SnapshotOptions, cmd *cobra.Command) error {
	if ctx == nil {
		ctx = context.Background()
	}
	formatter := rootOpts.formatter(cmd)

	cfg, _, err := rootOpts.loadConfig(cmd.ErrOrStderr())
	if err != nil {
		return configFailure(formatter, err)
	}

	as := strings.ToLower(opts.As)
	if as == "" {
		as = cfg.Format
	}
	if as != "yaml" && as != "xml" {
		return configFailure(formatter, fmt.Errorf("invalid dataset format %q: must be yaml or xml", opts.As))
	}

	name, err := connectionName(cfg, opts.Connection)
	if err != nil {
		return configFailure(formatter, err)
	}

	conns, err := cfg.Source(name)(ctx)
	defer func() {
		for _, c := range conns {
			c.Close()
		}
	}()
	if err != nil {
		_ = formatter.Error(ErrCodeConnection, err.Error(), nil)
		return WrapExitError(ExitCommandError, ErrCodeConnection, err)
	}

	formatter.VerboseLog("Exporting %s as %s", name, as)

	ds, err := snapshot(ctx, conns[name], opts.Tables)
	if err != nil {
		return formatter.Fail("snapshot failed", err)
	}

	var buf bytes.Buffer
	if as == "xml" {
		err = dataset.WriteXML(&buf, ds)
	} else {
		err = dataset.WriteYAML(&buf, ds)
	}
	if err != nil {
		_ = formatter.Error(ErrCodeWrite, err.Error(), nil)
		return WrapExitError(ExitCommandError, ErrCodeWrite, err)
	}

	result := SnapshotResult{Connection: name, Format: as, Output: opts.Output}
	for _, t := range ds.Tables {
		result.Tables = append(result.Tables, TableSummary{Name: t.Name, Rows: len(t.Rows)})
	}

	if opts.Output != "" {
		if err := afero.WriteFile(rootOpts.fs(), opts.Output, buf.Bytes(), 0o644); err != nil {
			_ = formatter.Error(ErrCodeWrite, err.Error(), nil)
			return WrapExitError(ExitCommandError, ErrCodeWrite, err)
		}
		return formatter.Success(result)
	}

	if formatter.Format == "json" {
		result.Content = buf.String()
		return formatter.Success(result)
	}
	_, err = buf.WriteTo(formatter.Writer)
	return err
}

func snapshot(ctx context.Context, conn database.Connection, tables []string) (*dataset.Dataset, error) {
	if len(tables) == 0 {
		return conn.Snapshot(ctx)
	}
	ts, ok := conn.(tableSnapshotter)
	if !ok {
		return nil, fmt.Errorf("connection does not support exporting selected tables")
	}
	return ts.SnapshotTables(ctx, tables...)
}
