package cmd

import (
	"context"
	"errors"
	"fmt"
	"os"
	"text/tabwriter"

	"github.com/spf13/cobra"

	"zero-trust-session-core/internal/app"
	"zero-trust-session-core/internal/config"
)

var rootCmd = &cobra.Command{
	Use:   "ztsadmin",
	Short: "Operator tools for the zero-trust session core",
	Long: `Administer MFA enrollments, sessions, drift history and audit logs.
Reads the same environment (.env, DATABASE_URL, ADMIN_USER_IDS, ...) as the server.`,
	SilenceUsage: true,
}

func Execute() {
	if err := rootCmd.Execute(); err != nil {
		os.Exit(1)
	}
}

// openApp builds the core against the configured database.
func openApp(ctx context.Context) (*app.App, error) {
	cfg, err := config.Load()
	if err != nil {
		return nil, fmt.Errorf("config: %w", err)
	}
	if cfg.DatabaseURL == "" {
		return nil, errors.New("DATABASE_URL is not set")
	}
	return app.New(ctx, cfg, app.Options{})
}

func newTable(cmd *cobra.Command) *tabwriter.Writer {
	return tabwriter.NewWriter(cmd.OutOrStdout(), 0, 4, 2, ' ', 0)
}
