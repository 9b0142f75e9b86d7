package commands

import (
	"fmt"

	"github.com/goccy/go-json"
	"github.com/spf13/cobra"

	"github.com/conduit-lang/restgen/internal/orm/shape"
)

// NewSchemaCommand creates the schema command
func NewSchemaCommand(opts *options) *cobra.Command {
	return &cobra.Command{
		Use:   "schema [entity]",
		Short: "Print the derived JSON schemas",
		Long: `Print the create, patch, output and search schemas derived from the
model as JSON Schema definitions, for every entity or only the named one.`,
		Args: cobra.MaximumNArgs(1),
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

			schemas := engine.Schemas()
			if len(args) == 1 {
				set, ok := engine.Set(args[0])
				if !ok {
					return a.entityNotFound(registry, args[0])
				}
				schemas = set.Schemas()
			}

			body, err := json.MarshalIndent(shape.Definitions(schemas...), "", "  ")
			if err != nil {
				return err
			}
			fmt.Fprintln(cmd.OutOrStdout(), string(body))
			return nil
		},
	}
}
