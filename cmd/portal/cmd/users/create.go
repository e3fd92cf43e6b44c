package users

import (
	"bufio"
	"context"
	"fmt"
	"net/mail"
	"os"
	"strings"

	"github.com/spf13/cobra"
	"golang.org/x/crypto/bcrypt"

	"github.com/canopyops/portal/internal/auth"
	"github.com/canopyops/portal/internal/config"
	"github.com/canopyops/portal/internal/db/bunx"
	"github.com/canopyops/portal/internal/db/models"
	"github.com/canopyops/portal/internal/repository"
)

// bcryptCost matches the interactive-login latency budget.
const bcryptCost = 12

var createCmd = &cobra.Command{
	Use:   "create [username]",
	Short: "Provision a new principal",
	Args:  cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		username := strings.ToLower(args[0])

		role, err := auth.ParseRole(roleFlag)
		if err != nil {
			return fmt.Errorf("invalid --role: %w", err)
		}

		if emailFlag != "" {
			if _, err := mail.ParseAddress(emailFlag); err != nil {
				return fmt.Errorf("invalid email format: %w", err)
			}
		}

		password := passwordFlag
		if stdinFlag {
			scanner := bufio.NewScanner(os.Stdin)
			fmt.Print("Enter password: ")
			if scanner.Scan() {
				password = scanner.Text()
			}
			if err := scanner.Err(); err != nil {
				return fmt.Errorf("failed to read password: %w", err)
			}
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

		principal := &models.Principal{
			Username: username,
			Email:    emailFlag,
			Name:     nameFlag,
			Role:     string(role),
		}

		if password != "" {
			hash, err := bcrypt.GenerateFromPassword([]byte(password), bcryptCost)
			if err != nil {
				return fmt.Errorf("failed to hash password: %w", err)
			}
			hashStr := string(hash)
			principal.PasswordHash = &hashStr
		}

		repo := repository.NewBunPrincipalRepository(db)
		if err := repo.Create(context.Background(), principal); err != nil {
			return fmt.Errorf("failed to create principal: %w", err)
		}

		fmt.Printf("Principal %q created with role %s\n", principal.Username, principal.Role)
		fmt.Println("The provider subject will be linked on their first authenticated request.")
		return nil
	},
}
