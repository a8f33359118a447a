package cli

import (
	"context"
	"fmt"
	"log/slog"
	"strings"

	"github.com/spf13/cobra"

	"github.com/roach88/dsunit/internal/annotation"
	"github.com/roach88/dsunit/internal/config"
	"github.com/roach88/dsunit/internal/dataset"
	"github.com/roach88/dsunit/internal/operation"
	"github.com/roach88/dsunit/internal/runner"
)

// ApplyOptions holds flags for the apply command.
type ApplyOptions struct {
	Connection string
	Type       string
}

// ApplyResult is the outcome of a successful apply.
type ApplyResult struct {
	Connection string   `json:"connection"`
	Operation  string   `json:"operation"`
	Datasets   []string `json:"datasets"`
}

func (r ApplyResult) String() string {
	return fmt.Sprintf("✓ Applied %d dataset(s) to %s (%s)", len(r.Datasets), r.Connection, r.Operation)
}

// NewApplyCommand creates the apply command.
func NewApplyCommand(rootOpts *RootOptions) *cobra.Command {
	opts := &ApplyOptions{}

	cmd := &cobra.Command{
		Use:   "apply <dataset>...",
		Short: "Apply datasets to a configured connection",
		Long: `Apply one or more flat datasets (YAML, XML or CUE) to a connection.

Datasets are applied in order, as one setup declaration: with the default
clean-insert operation the first dataset clears its tables and the
following ones are inserted on top. Locations are relative to the
datasets directory of the configuration.`,
		Args:          cobra.MinimumNArgs(1),
		SilenceUsage:  true, // Don't print usage on errors
		SilenceErrors: true, // Don't print errors - we handle our own error output
		RunE: func(cmd *cobra.Command, args []string) error {
			return runApply(cmd.Context(), rootOpts, opts, args, cmd)
		},
	}

	cmd.Flags().StringVarP(&opts.Connection, "connection", "c", "", "connection name (default: first configured)")
	cmd.Flags().StringVarP(&opts.Type, "type", "t", string(operation.CleanInsert), "operation: clean-insert|insert|refresh|update|delete|delete-all|truncate-table")

	return cmd
}

func runApply(ctx context.Context, rootOpts *RootOptions, opts *ApplyOptions, datasets []string, cmd *cobra.Command) error {
	formatter := rootOpts.formatter(cmd)

	cfg, logger, err := rootOpts.loadConfig(cmd.ErrOrStderr())
	if err != nil {
		return configFailure(formatter, err)
	}

	kind, err := operation.ParseKind(opts.Type)
	if err != nil {
		return configFailure(formatter, err)
	}

	name, err := connectionName(cfg, opts.Connection)
	if err != nil {
		return configFailure(formatter, err)
	}

	formatter.VerboseLog("Applying %d dataset(s) to %s with %s", len(datasets), name, kind)

	decls := annotation.Static{Suite: annotation.Set{
		Setup: annotation.Declaration{{Connection: name, Type: kind, Locations: datasets}},
	}}
	if err := evaluate(ctx, rootOpts, cfg, decls, name, "apply", logger); err != nil {
		return formatter.Fail("apply failed", err)
	}

	return formatter.Success(ApplyResult{
		Connection: name,
		Operation:  kind.String(),
		Datasets:   datasets,
	})
}

// evaluate runs decls against the named connection with an empty test body.
func evaluate(ctx context.Context, rootOpts *RootOptions, cfg *config.Config, decls runner.Discoverer, name, method string, logger *slog.Logger) error {
	if ctx == nil {
		ctx = context.Background()
	}
	inv := runner.NewInvocation(
		annotation.Class{Name: "dsunit", Dir: cfg.Datasets},
		method,
		cfg.Source(name),
		runner.WithLoader(dataset.NewFlatLoader(rootOpts.fs())),
	)
	r := runner.New(runner.WithDiscoverer(decls), runner.WithLogger(logger))
	return r.Evaluate(ctx, inv, func(context.Context) error { return nil })
}

// connectionName returns the lower-cased requested name, or the default
// connection of cfg.
func connectionName(cfg *config.Config, requested string) (string, error) {
	if requested == "" {
		return cfg.Default()
	}
	name := strings.ToLower(requested)
	if _, ok := cfg.Connections[name]; !ok {
		return "", fmt.Errorf("connection %q is not configured (known: %v)", requested, cfg.Names())
	}
	return name, nil
}

func configFailure(formatter *OutputFormatter, err error) error {
	_ = formatter.Error(ErrCodeConfig, err.Error(), nil)
	return WrapExitError(ExitCommandError, ErrCodeConfig, err)
}
