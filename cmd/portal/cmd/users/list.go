package users

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
	Short: "List principals",
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

		principals, err := repository.NewBunPrincipalRepository(db).List(context.Background())
		if err != nil {
			return fmt.Errorf("failed to list principals: %w", err)
		}

		w := tabwriter.NewWriter(os.Stdout, 0, 4, 2, ' ', 0)
		fmt.Fprintln(w, "USERNAME\tROLE\tEMAIL\tSUBJECT\tLAST_LOGIN")
		for _, p := range principals {
			lastLogin := "never"
			if p.LastLoginAt != nil {
				lastLogin = p.LastLoginAt.Format(time.RFC3339)
			}
			fmt.Fprintf(w, "%s\t%s\t%s\t%s\t%s\n", p.Username, p.Role, p.Email, p.SubjectOrEmpty(), lastLogin)
		}
		return w.Flush()
	},
}
