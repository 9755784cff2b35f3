package main

import (
	"fmt"
	"time"

	"github.com/spf13/cobra"

	jwttoken "citywalk/internal/jwt_token"
	"citywalk/internal/platform/config"
)

func newTokenCmd() *cobra.Command {
	var (
		subject string
		roles   []string
		ttl     time.Duration
	)
	cmd := &cobra.Command{
		Use:   "token",
		Short: "Mint an admin token signed with JWT_SIGNING_KEY (development only)",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg, err := config.Load()
			if err != nil {
				return err
			}
			if cfg.IsProduction() {
				return fmt.Errorf("refusing to mint tokens with CITYWALK_ENV=production")
			}
			if len(roles) == 0 {
				roles = []string{cfg.AdminRole}
			}
			token, err := jwttoken.NewJWTService(cfg.JWTSigningKey, cfg.JWTIssuer).
				GenerateAdminToken(subject, roles, ttl)
			if err != nil {
				return err
			}
			fmt.Fprintln(cmd.OutOrStdout(), token)
			return nil
		},
	}
	cmd.Flags().StringVar(&subject, "subject", "sealctl", "token subject recorded as the audit actor")
	cmd.Flags().StringSliceVar(&roles, "role", nil, "roles to grant (default: ADMIN_ROLE)")
	cmd.Flags().DurationVar(&ttl, "ttl", time.Hour, "token lifetime")
	return cmd
}
