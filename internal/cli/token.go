package cli

import (
	"errors"
	"fmt"
	"time"

	"github.com/spf13/cobra"

	"github.com/raysh454/scanhub/internal/app"
	"github.com/raysh454/scanhub/internal/server"
)

func newTokenCmd(opts *globalOptions) *cobra.Command {
	var (
		subject string
		admin   bool
		ttl     time.Duration
	)
	cmd := &cobra.Command{
		Use:   "token",
		Short: "Mint a bearer token signed with the server's JWT secret",
		Long: `Sign a token for --subject with server.jwt_secret from the config
file or SCANHUB_JWT_SECRET. Pass it to other commands with --token.`,
		Args: cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			cfg, err := app.LoadConfig(opts.configPath)
			if err != nil {
				return err
			}
			if cfg.Server.JWTSecret == "" {
				return errors.New("no jwt secret configured (server.jwt_secret or SCANHUB_JWT_SECRET)")
			}
			if subject == "" {
				subject = opts.owner
			}
			if subject == "" {
				return errors.New("--subject or --owner is required")
			}
			role := server.RoleUser
			if admin {
				role = server.RoleAdmin
			}
			tok, err := server.IssueToken(cfg.Server.JWTSecret, subject, role, ttl)
			if err != nil {
				return fmt.Errorf("sign token: %w", err)
			}
			fmt.Fprintln(cmd.OutOrStdout(), tok)
			return nil
		},
	}
	cmd.Flags().StringVar(&subject, "subject", "", "owner id the token identifies (default --owner)")
	cmd.Flags().BoolVar(&admin, "admin", false, "grant the admin role")
	cmd.Flags().DurationVar(&ttl, "ttl", 24*time.Hour, "token lifetime")
	return cmd
}
