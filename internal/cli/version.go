package cli

import (
	"github.com/spf13/cobra"
)

// VersionInfo is the payload of the version command.
type VersionInfo struct {
	Version string `json:"version"`
}

func (v VersionInfo) String() string {
	return "dsunit " + v.Version
}

// NewVersionCommand creates the version command.
func NewVersionCommand(rootOpts *RootOptions) *cobra.Command {
	return &cobra.Command{
		Use:   "version",
		Short: "Print the version",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			return rootOpts.formatter(cmd).Success(VersionInfo{Version: Version})
		},
	}
}
