package commands

import (
	"fmt"

	"github.com/spf13/cobra"

	"github.com/conduit-lang/restgen/internal/orm/fixtures"
)

// NewSeedCommand creates the seed command
func NewSeedCommand(opts *options) *cobra.Command {
	return &cobra.Command{
		Use:   "seed [dir]",
		Short: "Load YAML fixtures through the create endpoints' logic",
		Long: `Load <table>.yaml files from dir in dependency order. Every record goes
through the same validation, access control and relationship resolution as
a create request. A record may name its creator with _caller and
_permissions.

The directory defaults to model.fixtures from the config.`,
		Args: cobra.MaximumNArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			a, err := newApp(cmd, opts)
			if err != nil {
				return err
			}
			defer a.close()

			dir := a.cfg.Model.Fixtures
			if len(args) == 1 {
				dir = args[0]
			}
			if dir == "" {
				return fmt.Errorf("no fixtures directory given and model.fixtures is not set")
			}

			st, err := a.open(cmd.Context(), a.cfg.Database.AutoMigrate)
			if err != nil {
				return err
			}
			defer st.db.Close()

			n, err := fixtures.NewLoader(st.controllers, a.logger).LoadDir(cmd.Context(), dir)
			if err != nil {
				return err
			}
			a.out.Success("loaded %d records from %s", n, dir)
			return nil
		},
	}
}
