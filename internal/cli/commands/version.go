package commands

import (
	"runtime"

	"github.com/spf13/cobra"

	"github.com/conduit-lang/restgen/internal/cli/ui"
)

// NewVersionCommand creates the version command
func NewVersionCommand(opts *options) *cobra.Command {
	return &cobra.Command{
		Use:   "version",
		Short: "Show version information",
		Args:  cobra.NoArgs,
		Run: func(cmd *cobra.Command, args []string) {
			kv := ui.NewKeyValueTable(cmd.OutOrStdout(), opts.noColor)
			kv.AddRow("restgen version", Version)
			kv.AddRow("Git commit", GitCommit)
			kv.AddRow("Build date", BuildDate)
			kv.AddRow("Go version", runtime.Version())
			kv.Render()
		},
	}
}
