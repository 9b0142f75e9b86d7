package commands

import (
	"fmt"
	"os"

	"github.com/AlecAivazis/survey/v2"
	"github.com/spf13/cobra"
	"gopkg.in/yaml.v3"

	"github.com/conduit-lang/restgen/internal/cli/ui"
	"github.com/conduit-lang/restgen/internal/web/auth"
)

// initAnswers are the settings the init wizard asks for
type initAnswers struct {
	ModelPath string `survey:"model"`
	Driver    string `survey:"driver"`
	DSN       string `survey:"dsn"`
	Port      int    `survey:"port"`
	AuthMode  string `survey:"auth"`
}

func defaultAnswers() initAnswers {
	return initAnswers{
		ModelPath: "model.yaml",
		Driver:    "sqlite3",
		DSN:       "restgen.db",
		Port:      8080,
		AuthMode:  auth.ModeHeader,
	}
}

// NewInitCommand creates the init command
func NewInitCommand(opts *options) *cobra.Command {
	var (
		output string
		yes    bool
		force  bool
	)

	cmd := &cobra.Command{
		Use:   "init",
		Short: "Write a restgen.yaml interactively",
		Long: `Ask for the model path, database and auth mode and write a config file.
With --yes the defaults are written without prompting.`,
		Args: cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			out := ui.NewPrinter(cmd.OutOrStdout(), opts.noColor)

			if _, err := os.Stat(output); err == nil && !force {
				out.Error(ui.ErrorOptions{
					Problem: fmt.Sprintf("%s already exists", output),
					Hint:    "Pass --force to overwrite it.",
				})
				return fmt.Errorf("%s already exists", output)
			}

			answers := defaultAnswers()
			if !yes {
				if err := survey.Ask(initQuestions(answers), &answers); err != nil {
					return err
				}
			}

			body, err := yaml.Marshal(configDocument(answers))
			if err != nil {
				return err
			}
			if err := os.WriteFile(output, body, 0o644); err != nil {
				return fmt.Errorf("failed to write config: %w", err)
			}

			out.Success("wrote %s", output)
			if answers.AuthMode == auth.ModeJWT {
				out.Warn("set RESTGEN_AUTH_JWT_SECRET before running restgen serve")
			}
			return nil
		},
	}

	cmd.Flags().StringVarP(&output, "output", "o", "restgen.yaml", "file to write")
	cmd.Flags().BoolVarP(&yes, "yes", "y", false, "write the defaults without prompting")
	cmd.Flags().BoolVar(&force, "force", false, "overwrite an existing file")
	return cmd
}

func initQuestions(defaults initAnswers) []*survey.Question {
	return []*survey.Question{
		{
			Name:     "model",
			Prompt:   &survey.Input{Message: "Entity model file:", Default: defaults.ModelPath},
			Validate: survey.Required,
		},
		{
			Name: "driver",
			Prompt: &survey.Select{
				Message: "Database driver:",
				Options: []string{"sqlite3", "pgx", "postgres"},
				Default: defaults.Driver,
			},
		},
		{
			Name:     "dsn",
			Prompt:   &survey.Input{Message: "Database DSN:", Default: defaults.DSN},
			Validate: survey.Required,
		},
		{
			Name:   "port",
			Prompt: &survey.Input{Message: "HTTP port:", Default: fmt.Sprint(defaults.Port)},
		},
		{
			Name: "auth",
			Prompt: &survey.Select{
				Message: "How are callers identified?",
				Options: []string{auth.ModeJWT, auth.ModeHeader, auth.ModeNone},
				Default: defaults.AuthMode,
				Description: func(value string, index int) string {
					switch value {
					case auth.ModeJWT:
						return "signed bearer tokens"
					case auth.ModeHeader:
						return "X-User-Id from a trusted gateway"
					}
					return "everyone is anonymous"
				},
			},
		},
	}
}

// configDocument lays the answers out as restgen.yaml
func configDocument(a initAnswers) map[string]interface{} {
	return map[string]interface{}{
		"model": map[string]interface{}{
			"path": a.ModelPath,
		},
		"server": map[string]interface{}{
			"host": "localhost",
			"port": a.Port,
		},
		"database": map[string]interface{}{
			"driver":       a.Driver,
			"dsn":          a.DSN,
			"auto_migrate": true,
		},
		"auth": map[string]interface{}{
			"mode": a.AuthMode,
		},
		"log": map[string]interface{}{
			"mode": "development",
		},
	}
}
