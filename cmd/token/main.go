// Command token mints a bearer token for a messaging transport adapter,
// signed with the server's JWT_SECRET.
package main

import (
	"fmt"
	"os"
	"time"

	"github.com/spf13/cobra"

	"github.com/capitalize-ai/field-ops-assistant/internal/config"
	"github.com/capitalize-ai/field-ops-assistant/internal/middleware"
)

func main() {
	if err := rootCmd(config.Load()).Execute(); err != nil {
		fmt.Fprintf(os.Stderr, "Error: %v\n", err)
		os.Exit(1)
	}
}

func rootCmd(cfg *config.Config) *cobra.Command {
	var (
		subject string
		scopes  []string
		ttl     time.Duration
	)

	cmd := &cobra.Command{
		Use:   "token",
		Short: "Mint a bearer token for a transport adapter",
		Long: `Token signs a JWT with JWT_SECRET for a messaging transport adapter.

The subject identifies the adapter in logs and rate limits. Scopes select
the API groups it may call: events:write for inbound messages and actions,
state:read for conversation state and audit replay.`,
		SilenceUsage: true,
		RunE: func(cmd *cobra.Command, args []string) error {
			token, err := middleware.NewToken(cfg.JWTSecret, subject, scopes, ttl)
			if err != nil {
				return fmt.Errorf("sign token: %w", err)
			}
			_, err = fmt.Fprintln(cmd.OutOrStdout(), token)
			return err
		},
	}

	cmd.Flags().StringVar(&subject, "subject", "", "Adapter identity")
	cmd.Flags().StringSliceVar(&scopes, "scopes", []string{middleware.ScopeEvents}, "Granted scopes")
	cmd.Flags().DurationVar(&ttl, "ttl", cfg.JWTExpiration, "Token lifetime")
	_ = cmd.MarkFlagRequired("subject")

	return cmd
}
