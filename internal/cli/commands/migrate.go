package commands

import (
	"fmt"

	"github.com/spf13/cobra"

	"github.com/conduit-lang/restgen/internal/orm/ddl"
	"github.com/conduit-lang/restgen/internal/orm/dialect"
)

// NewMigrateCommand creates the migrate command
func NewMigrateCommand(opts *options) *cobra.Command {
	var dryRun bool

	cmd := &cobra.Command{
		Use:   "migrate",
		Short: "Create missing tables",
		Long: `Create every entity and association table the model needs. Existing
tables are left untouched; restgen never alters or drops a table.

Examples:
  restgen migrate
  restgen migrate --dry-run`,
		Args: cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			a, err := newApp(cmd, opts)
			if err != nil {
				return err
			}
			defer a.close()

			if dryRun {
				registry, _, err := a.model()
				if err != nil {
					return err
				}
				d, err := dialect.FromDriver(a.cfg.Database.Driver)
				if err != nil {
					return err
				}
				stmts, err := ddl.NewGenerator(d).Statements(registry)
				if err != nil {
					return err
				}
				for _, stmt := range stmts {
					fmt.Fprintln(cmd.OutOrStdout(), stmt)
				}
				return nil
			}

			st, err := a.open(cmd.Context(), true)
			if err != nil {
				return err
			}
			defer st.db.Close()

			a.out.Success("tables ready for %d entities", len(st.registry.All()))
			return nil
		},
	}

	cmd.Flags().BoolVar(&dryRun, "dry-run", false, "print the statements instead of running them")
	return cmd
}
