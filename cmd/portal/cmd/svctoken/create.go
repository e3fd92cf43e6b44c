package svctoken

import (
	"context"
	"fmt"
	"time"

	"github.com/spf13/cobra"

	"github.com/canopyops/portal/internal/config"
	"github.com/canopyops/portal/internal/db/bunx"
	"github.com/canopyops/portal/internal/db/models"
	"github.com/canopyops/portal/internal/repository"
	"github.com/canopyops/portal/internal/services/identity"
)

var createCmd = &cobra.Command{
	Use:   "create [name]",
	Short: "Create a new service token",
	Args:  cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		name := args[0]

		if serviceTypeFlag == "" {
			return fmt.Errorf("--type flag is required")
		}
		if !models.ValidServiceType(serviceTypeFlag) {
			return fmt.Errorf("invalid service type %q (valid: %s, %s, %s)",
				serviceTypeFlag, models.ServiceTypeSlackBot, models.ServiceTypeCICD, models.ServiceTypeMonitoring)
		}

		var expiresAt *time.Time
		if expiresFlag != "" {
			dur, err := time.ParseDuration(expiresFlag)
			if err != nil {
				return fmt.Errorf("invalid --expires-in duration: %w", err)
			}
			t := time.Now().Add(dur)
			expiresAt = &t
		}

		cfg, err := config.Load()
		if err != nil {
			return fmt.Errorf("failed to load config: %w", err)
		}

		db, err := bunx.NewDB(cfg.DatabaseURL, cfg.MaxDBConnections)
		if err != nil {
			return fmt.Errorf("failed to connect to database: %w", err)
		}
		defer bunx.Close(db)

		svc := identity.NewService(&cfg.Provider, identity.Dependencies{
			Principals: repository.NewBunPrincipalRepository(db),
			Sessions:   repository.NewBunSessionRepository(db),
			Tokens:     repository.NewBunServiceTokenRepository(db),
		})

		token, secret, err := svc.CreateServiceToken(context.Background(), name, serviceTypeFlag, expiresAt)
		if err != nil {
			return fmt.Errorf("failed to create service token: %w", err)
		}

		fmt.Println("Service token created successfully!")
		fmt.Println("----------------------------------------")
		fmt.Printf("Name: %s\n", token.Name)
		fmt.Printf("Type: %s\n", token.ServiceType)
		if token.ExpiresAt != nil {
			fmt.Printf("Expires: %s\n", token.ExpiresAt.Format(time.RFC3339))
		}
		fmt.Printf("Secret: %s\n", secret)
		fmt.Println("----------------------------------------")
		fmt.Println("Save the secret securely. It will not be shown again.")

		return nil
	},
}
