package cmd

import (
	"fmt"
	"os"

	"github.com/spf13/cobra"

	"github.com/canopyops/portal/cmd/portal/cmd/svctoken"
	"github.com/canopyops/portal/cmd/portal/cmd/users"
	"github.com/canopyops/portal/internal/config"
)

var cfg *config.Config

var rootCmd = &cobra.Command{
	Use:   "portal",
	Short: "Customer portal API server",
	Long: `Portal serves the customer-facing API behind the load balancer.
It authenticates requests via proxy identity headers, bearer tokens, browser
sessions, or pre-shared service secrets, and authorizes them by role.`,
	PersistentPreRunE: func(cmd *cobra.Command, args []string) error {
		var err error
		cfg, err = config.Load()
		if err != nil {
			return fmt.Errorf("failed to load configuration: %w", err)
		}
		return nil
	},
}

func init() {
	// Global flags
	rootCmd.PersistentFlags().String("db-url", "", "Database connection URL (env: DATABASE_URL)")
	rootCmd.PersistentFlags().String("server-addr", "", "Server bind address (env: SERVER_ADDR)")
	rootCmd.PersistentFlags().String("server-url", "", "Public base URL of the server (env: SERVER_URL)")
	rootCmd.PersistentFlags().Bool("debug", false, "Enable debug logging (env: DEBUG)")

	// Add subcommands
	rootCmd.AddCommand(svctoken.SvcTokenCmd)
	rootCmd.AddCommand(users.UsersCmd)
}

// Execute runs the root command
func Execute() {
	if err := rootCmd.Execute(); err != nil {
		fmt.Fprintln(os.Stderr, err)
		os.Exit(1)
	}
}
