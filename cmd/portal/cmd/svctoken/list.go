package svctoken

import (
	"context"
	"fmt"
	"os"
	"text/tabwriter"
	"time"

	"github.com/spf13/cobra"

	"github.com/canopyops/portal/internal/config"
	"github.com/canopyops/portal/internal/db/bunx"
	"github.com/canopyops/portal/internal/repository"
)

var listCmd = &cobra.Command{
	Use:   "list",
	Short: "List service tokens",
	RunE: func(cmd *cobra.Command, args []string) error {
		cfg, err := config.Load()
		if err != nil {
			return fmt.Errorf("failed to load config: %w", err)
		}

		db, err := bunx.NewDB(cfg.DatabaseURL, cfg.MaxDBConnections)
		if err != nil {
			return fmt.Errorf("failed to connect to database: %w", err)
		}
		defer bunx.Close(db)

		tokens, err := repository.NewBunServiceTokenRepository(db).List(context.Background())
		if err != nil {
			return fmt.Errorf("failed to list service tokens: %w", err)
		}

		w := tabwriter.NewWriter(os.Stdout, 0, 4, 2, ' ', 0)
		fmt.Fprintln(w, "NAME\tTYPE\tACTIVE\tEXPIRES\tLAST_USED")
		for _, t := range tokens {
			expires := "never"
			if t.ExpiresAt != nil {
				expires = t.ExpiresAt.Format(time.RFC3339)
			}
			lastUsed := "never"
			if t.LastUsedAt != nil {
				lastUsed = t.LastUsedAt.Format(time.RFC3339)
			}
			fmt.Fprintf(w, "%s\t%s\t%t\t%s\t%s\n", t.Name, t.ServiceType, t.IsActive, expires, lastUsed)
		}
		return w.Flush()
	},
}
