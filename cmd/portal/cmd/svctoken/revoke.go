package svctoken

import (
	"context"
	"fmt"

	"github.com/spf13/cobra"

	"github.com/canopyops/portal/internal/config"
	"github.com/canopyops/portal/internal/db/bunx"
	"github.com/canopyops/portal/internal/repository"
)

var revokeCmd = &cobra.Command{
	Use:   "revoke [name]",
	Short: "Deactivate a service token",
	Long:  `Marks a service token inactive. The secret stops authenticating immediately; the row is kept for audit.`,
	Args:  cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		name := args[0]

		cfg, err := config.Load()
		if err != nil {
			return fmt.Errorf("failed to load config: %w", err)
		}

		db, err := bunx.NewDB(cfg.DatabaseURL, cfg.MaxDBConnections)
		if err != nil {
			return fmt.Errorf("failed to connect to database: %w", err)
		}
		defer bunx.Close(db)

		ctx := context.Background()
		repo := repository.NewBunServiceTokenRepository(db)

		token, err := repo.GetByName(ctx, name)
		if err != nil {
			return fmt.Errorf("failed to find service token %q: %w", name, err)
		}

		if err := repo.SetActive(ctx, token.ID, false); err != nil {
			return fmt.Errorf("failed to revoke service token: %w", err)
		}

		fmt.Printf("Service token %q revoked\n", name)
		return nil
	},
}
