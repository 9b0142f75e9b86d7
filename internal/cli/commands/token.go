package commands

import (
	"fmt"
	"time"

	"github.com/spf13/cobra"

	"github.com/conduit-lang/restgen/internal/orm/access"
	"github.com/conduit-lang/restgen/internal/web/auth"
)

// NewTokenCommand creates the token command
func NewTokenCommand(opts *options) *cobra.Command {
	var (
		permissions []string
		ttl         time.Duration
	)

	cmd := &cobra.Command{
		Use:   "token <caller-id>",
		Short: "Issue a signed token for a caller",
		Long: `Issue a bearer token accepted when auth.mode is jwt. The caller id is
matched against owner columns; permissions satisfy "permission:<name>"
dependencies.

Examples:
  restgen token 5f0c... --permission admin
  restgen token ann --ttl 1h`,
		Args: cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			a, err := newApp(cmd, opts)
			if err != nil {
				return err
			}
			defer a.close()

			if ttl <= 0 {
				ttl = a.cfg.Auth.TokenTTL
			}
			tokens, err := auth.NewTokenService(a.cfg.Auth.JWTSecret, ttl)
			if err != nil {
				return fmt.Errorf("auth.jwt_secret must be configured to issue tokens: %w", err)
			}

			token, err := tokens.Issue(access.Caller{ID: args[0], Permissions: permissions})
			if err != nil {
				return err
			}
			fmt.Fprintln(cmd.OutOrStdout(), token)
			return nil
		},
	}

	cmd.Flags().StringSliceVarP(&permissions, "permission", "p", nil, "permission granted to the caller (repeatable)")
	cmd.Flags().DurationVar(&ttl, "ttl", 0, "token lifetime (default auth.token_ttl)")
	return cmd
}
