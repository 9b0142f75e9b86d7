package commands

import (
	"fmt"

	"github.com/goccy/go-json"
	"github.com/spf13/cobra"

	"github.com/conduit-lang/restgen/internal/cli/ui"
	"github.com/conduit-lang/restgen/internal/web/auth"
	"github.com/conduit-lang/restgen/internal/web/openapi"
	"github.com/conduit-lang/restgen/internal/web/router"
)

// NewOpenAPICommand creates the openapi command
func NewOpenAPICommand(opts *options) *cobra.Command {
	var output, serverURL string

	cmd := &cobra.Command{
		Use:   "openapi",
		Short: "Print the OpenAPI document of the generated endpoints",
		Long: `Describe every generated endpoint as an OpenAPI 3.1 document. The
document is printed to stdout unless --output names a file.

Examples:
  restgen openapi > openapi.json
  restgen openapi --output docs/openapi.json --server https://api.example.com`,
		Args: cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			a, err := newApp(cmd, opts)
			if err != nil {
				return err
			}
			defer a.close()

			registry, engine, err := a.model()
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

			info := apiInfo()
			if serverURL != "" {
				info.Servers = []openapi.Server{{URL: serverURL}}
			}
			gen := openapi.NewGenerator(engine, info)

			if output != "" {
				if err := gen.WriteFile(routes, output); err != nil {
					return err
				}
				ui.NewPrinter(cmd.OutOrStdout(), opts.noColor).Success("wrote %s", output)
				return nil
			}

			doc, err := gen.Document(routes)
			if err != nil {
				return err
			}
			body, err := json.MarshalIndent(doc, "", "  ")
			if err != nil {
				return err
			}
			fmt.Fprintln(cmd.OutOrStdout(), string(body))
			return nil
		},
	}

	cmd.Flags().StringVarP(&output, "output", "o", "", "write the document to a file")
	cmd.Flags().StringVar(&serverURL, "server", "", "server URL listed in the document")
	return cmd
}

func apiInfo() openapi.Info {
	return openapi.Info{Title: "restgen", Version: Version}
}
