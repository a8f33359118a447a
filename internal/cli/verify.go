package cli

import (
	"context"
	"fmt"

	"github.com/spf13/cobra"

	"github.com/roach88/dsunit/internal/annotation"
	"github.com/roach88/dsunit/internal/assertion"
)

// VerifyOptions holds flags for the verify command.
type VerifyOptions struct {
	Connection string
	Mode       string
	Ignore     []string
}

// VerifyResult is the outcome of a successful verification.
type VerifyResult struct {
	Connection string `json:"connection"`
	Dataset    string `json:"dataset"`
	Mode       string `json:"mode"`
	Match      bool   `json:"match"`
}

func (r VerifyResult) String() string {
	return fmt.Sprintf("✓ %s matches %s (%s)", r.Connection, r.Dataset, r.Mode)
}

// NewVerifyCommand creates the verify command.
func NewVerifyCommand(rootOpts *RootOptions) *cobra.Command {
	opts := &VerifyOptions{}

	cmd := &cobra.Command{
		Use:   "verify <expected-dataset>",
		Short: "Compare a connection against an expected dataset",
		Long: `Compare the current content of a connection with an expected dataset.

Exits with 1 when the content differs and 2 when the comparison could not
be made. Modes:
  default               same tables, same columns, rows in order
  non-strict            only the expected tables and columns are compared
  non-strict-unordered  non-strict, and row order is ignored`,
		Args:          cobra.ExactArgs(1),
		SilenceUsage:  true, // Don't print usage on errors
		SilenceErrors: true, // Don't print errors - we handle our own error output
		RunE: func(cmd *cobra.Command, args []string) error {
			return runVerify(cmd.Context(), rootOpts, opts, args[0], cmd)
		},
	}

	cmd.Flags().StringVarP(&opts.Connection, "connection", "c", "", "connection name (default: first configured)")
	cmd.Flags().StringVarP(&opts.Mode, "mode", "m", string(assertion.Strict), "comparison mode (default|non-strict|non-strict-unordered)")
	cmd.Flags().StringSliceVar(&opts.Ignore, "ignore", nil, "columns to ignore, as column or table.column")

	return cmd
}

func runVerify(ctx context.Context, rootOpts *RootOptions, opts *VerifyOptions, expected string, cmd *cobra.Command) error {
	formatter := rootOpts.formatter(cmd)

	cfg, logger, err := rootOpts.loadConfig(cmd.ErrOrStderr())
	if err != nil {
		return configFailure(formatter, err)
	}

	mode, err := assertion.ParseMode(opts.Mode)
	if err != nil {
		return configFailure(formatter, err)
	}

	name, err := connectionName(cfg, opts.Connection)
	if err != nil {
		return configFailure(formatter, err)
	}

	formatter.VerboseLog("Verifying %s against %s (%s)", name, expected, mode)

	decls := annotation.Static{Suite: annotation.Set{
		Expected: []annotation.Expectation{{
			Connection:    name,
			Location:      expected,
			Mode:          mode,
			IgnoreColumns: opts.Ignore,
		}},
	}}
	if err := evaluate(ctx, rootOpts, cfg, decls, name, "verify", logger); err != nil {
		return formatter.Fail("verification failed", err)
	}

	return formatter.Success(VerifyResult{
		Connection: name,
		Dataset:    expected,
		Mode:       string(mode),
		Match:      true,
	})
}
