package cmd

import (
	"context"
	"fmt"
	"log"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/spf13/cobra"

	"github.com/canopyops/portal/internal/auth"
	"github.com/canopyops/portal/internal/db/bunx"
	"github.com/canopyops/portal/internal/pgrole"
	"github.com/canopyops/portal/internal/repository"
	"github.com/canopyops/portal/internal/server"
	"github.com/canopyops/portal/internal/services/identity"
	"github.com/canopyops/portal/internal/telemetry"
)

var serveCmd = &cobra.Command{
	Use:   "serve",
	Short: "Start the portal API server",
	Long:  `Starts the HTTP server with the authenticated API, proxy, and service hook endpoints.`,
	RunE: func(cmd *cobra.Command, args []string) error {
		// Initialize telemetry first so everything below is traced
		shutdownTelemetry, err := telemetry.Init(cmd.Context(), cfg.Observability)
		if err != nil {
			return fmt.Errorf("failed to initialize telemetry: %w", err)
		}
		defer func() {
			ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
			defer cancel()
			if err := shutdownTelemetry(ctx); err != nil {
				log.Printf("Warning: telemetry shutdown failed: %v", err)
			}
		}()

		metrics, err := telemetry.NewAuthMetrics()
		if err != nil {
			return fmt.Errorf("failed to register auth metrics: %w", err)
		}

		// Connect to database
		db, err := bunx.NewDB(cfg.DatabaseURL, cfg.MaxDBConnections)
		if err != nil {
			return fmt.Errorf("failed to connect to database: %w", err)
		}
		defer bunx.Close(db)

		log.Printf("Connected to database")

		// Initialize repositories
		principalRepo := repository.NewBunPrincipalRepository(db)
		sessionRepo := repository.NewBunSessionRepository(db)
		serviceTokenRepo := repository.NewBunServiceTokenRepository(db)

		deps := identity.Dependencies{
			Principals: principalRepo,
			Sessions:   sessionRepo,
			Tokens:     serviceTokenRepo,
		}

		var relyingParty *auth.RelyingParty
		if cfg.Provider.Enabled() {
			parser, err := identity.NewJWKSTokenParser(&cfg.Provider)
			if err != nil {
				return fmt.Errorf("failed to create token parser: %w", err)
			}
			deps.TokenParser = parser

			lifecycle, err := identity.NewLifecycleService(cmd.Context(), &cfg.Provider, sessionRepo)
			if err != nil {
				return fmt.Errorf("failed to create lifecycle service: %w", err)
			}
			deps.Lifecycle = lifecycle

			relyingParty, err = auth.NewRelyingParty(cmd.Context(), &cfg.Provider, cfg.ServerURL)
			if err != nil {
				return fmt.Errorf("failed to create relying party: %w", err)
			}

			log.Printf("Identity provider configured (profile=%s, issuer=%s)",
				cfg.Provider.Profile, cfg.Provider.Issuer)
		} else {
			log.Printf("WARNING: No identity provider configured (AUTH_PROFILE unset); only public routes will work")
		}

		identitySvc := identity.NewService(&cfg.Provider, deps)
		guard := pgrole.New(db)

		// Background sweep of expired session rows
		sweeper := server.NewSessionSweeper(sessionRepo, metrics, cfg.SessionSweepInterval)
		sweepCtx, cancelSweep := context.WithCancel(cmd.Context())
		defer cancelSweep()
		go sweeper.Run(sweepCtx)

		h2cHandler := server.NewH2CHandler(server.RouterOptions{
			Identity:     identitySvc,
			RelyingParty: relyingParty,
			Guard:        guard,
			Metrics:      metrics,
			Cfg:          cfg,
		})

		srv := &http.Server{
			Addr:         cfg.ServerAddr,
			Handler:      h2cHandler,
			ReadTimeout:  15 * time.Second,
			WriteTimeout: 15 * time.Second,
			IdleTimeout:  60 * time.Second,
		}

		// Start server in goroutine
		serverErrors := make(chan error, 1)
		go func() {
			log.Printf("Starting server on %s", cfg.ServerAddr)
			log.Printf("Server URL: %s", cfg.ServerURL)
			serverErrors <- srv.ListenAndServe()
		}()

		// Wait for interrupt signal
		shutdown := make(chan os.Signal, 1)
		signal.Notify(shutdown, os.Interrupt, syscall.SIGTERM)

		select {
		case err := <-serverErrors:
			return fmt.Errorf("server error: %w", err)

		case sig := <-shutdown:
			log.Printf("Received signal %v, shutting down gracefully", sig)

			ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
			defer cancel()

			if err := srv.Shutdown(ctx); err != nil {
				srv.Close()
				return fmt.Errorf("graceful shutdown failed: %w", err)
			}

			log.Printf("Server stopped")
			return nil
		}
	},
}

func init() {
	rootCmd.AddCommand(serveCmd)
}
