package commands

import (
	"fmt"
	"strings"

	"github.com/goccy/go-json"
	"github.com/spf13/cobra"

	"github.com/conduit-lang/restgen/internal/cli/ui"
	"github.com/conduit-lang/restgen/internal/web/auth"
	"github.com/conduit-lang/restgen/internal/web/router"
)

// NewRoutesCommand creates the routes command
func NewRoutesCommand(opts *options) *cobra.Command {
	var asJSON bool

	cmd := &cobra.Command{
		Use:   "routes",
		Short: "List the generated endpoints",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			a, err := newApp(cmd, opts)
			if err != nil {
				return err
			}
			defer a.close()

			registry, _, err := a.model()
			if err != nil {
				return err
			}
			routes, err := router.Plan(registry, router.Config{
				Prefix:       a.cfg.Server.APIPrefix,
				Dependencies: a.cfg.Server.Dependencies,
				Hooks:        auth.DefaultHooks(),
			})
			if err != nil {
				return err
			}

			if asJSON {
				body, err := json.MarshalIndent(routes, "", "  ")
				if err != nil {
					return err
				}
				fmt.Fprintln(cmd.OutOrStdout(), string(body))
				return nil
			}

			table := ui.NewTable(cmd.OutOrStdout(), opts.noColor, "METHOD", "PATH", "OPERATION ID", "DEPENDENCIES")
			for _, r := range routes {
				table.AddRow(r.Method, r.Pattern, r.OperationID, strings.Join(r.Dependencies, ", "))
			}
			table.Render()
			return nil
		},
	}

	cmd.Flags().BoolVar(&asJSON, "json", false, "print the routes as JSON")
	return cmd
}
