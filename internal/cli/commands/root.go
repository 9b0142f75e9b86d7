// Package commands implements the restgen command line.
package commands

import (
	"context"

	"github.com/fatih/color"
	"github.com/spf13/cobra"
)

var (
	// Version information, set at build time
	Version   = "dev"
	GitCommit = "unknown"
	BuildDate = "unknown"
)

// options are the persistent flags shared by every command
type options struct {
	configPath string
	noColor    bool
}

// NewRootCommand creates the root command
func NewRootCommand() *cobra.Command {
	opts := &options{}

	rootCmd := &cobra.Command{
		Use:   "restgen",
		Short: "Serve a REST API generated from an entity model",
		Long: color.CyanString(`restgen - REST endpoints from an entity model

restgen reads a YAML entity model and serves create, read, patch, delete
and search endpoints for every entity, with owner based access control,
relationship pages and derived JSON schemas.`),
		SilenceUsage:  true,
		SilenceErrors: true,
	}

	rootCmd.PersistentFlags().StringVarP(&opts.configPath, "config", "c", "", "config file (default ./restgen.yaml)")
	rootCmd.PersistentFlags().BoolVar(&opts.noColor, "no-color", false, "disable coloured output")

	rootCmd.AddCommand(NewVersionCommand(opts))
	rootCmd.AddCommand(NewInitCommand(opts))
	rootCmd.AddCommand(NewServeCommand(opts))
	rootCmd.AddCommand(NewMigrateCommand(opts))
	rootCmd.AddCommand(NewSeedCommand(opts))
	rootCmd.AddCommand(NewSchemaCommand(opts))
	rootCmd.AddCommand(NewRoutesCommand(opts))
	rootCmd.AddCommand(NewOpenAPICommand(opts))
	rootCmd.AddCommand(NewTokenCommand(opts))

	return rootCmd
}

// Execute runs the root command
func Execute(ctx context.Context) error {
	rootCmd := NewRootCommand()
	if err := rootCmd.ExecuteContext(ctx); err != nil {
		errorColor := color.New(color.FgRed, color.Bold)
		errorColor.Fprintf(rootCmd.ErrOrStderr(), "Error: %v\n", err)
		return err
	}
	return nil
}
