package cmd

import (
	"context"
	"fmt"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/spf13/cobra"

	"github.com/ivanovaleksey/iam-sub000/internal/auth"
	"github.com/ivanovaleksey/iam-sub000/internal/db/bunx"
	iammiddleware "github.com/ivanovaleksey/iam-sub000/internal/middleware"
	"github.com/ivanovaleksey/iam-sub000/internal/server"
	"github.com/ivanovaleksey/iam-sub000/internal/services/iam"
	"github.com/ivanovaleksey/iam-sub000/internal/telemetry"
)

var serveCmd = &cobra.Command{
	Use:   "serve",
	Short: "Start the IAM server",
	Long:  `Starts the HTTP server with the JSON-RPC endpoint and the token endpoints.`,
	RunE: func(cmd *cobra.Command, args []string) error {
		// Connect to database
		db, err := bunx.NewDB(cfg.DatabaseURL, cfg.MaxDBConnections)
		if err != nil {
			return fmt.Errorf("failed to connect to database: %w", err)
		}
		defer bunx.Close(db)
		logger.Info("connected to database")

		keys, err := auth.LoadKeySet(cfg)
		if err != nil {
			return fmt.Errorf("failed to load keys: %w", err)
		}
		logger.Info("key set loaded",
			"kid", auth.Fingerprint(keys.VerifyKey),
			"providers", len(cfg.Providers))

		metrics, err := telemetry.NewMetrics()
		if err != nil {
			return fmt.Errorf("failed to create metrics: %w", err)
		}

		svc := iam.NewService(iam.Dependencies{
			DB:      db,
			Keys:    keys,
			Metrics: metrics,
			Logger:  logger,
		}, cfg)

		authn, err := iammiddleware.NewAuthnMiddleware(cfg, iammiddleware.AuthnDependencies{
			Keys:   keys,
			Logger: logger,
		})
		if err != nil {
			return fmt.Errorf("failed to configure authentication: %w", err)
		}

		router := server.NewRouter(server.RouterOptions{
			Service:    svc,
			Keys:       keys,
			Logger:     logger,
			Metrics:    metrics,
			Middleware: []func(http.Handler) http.Handler{authn},
		})

		srv := &http.Server{
			Addr:         cfg.ListenAddr,
			Handler:      server.NewH2CHandler(router),
			ReadTimeout:  15 * time.Second,
			WriteTimeout: 15 * time.Second,
			IdleTimeout:  60 * time.Second,
		}

		// Start server in goroutine
		serverErrors := make(chan error, 1)
		go func() {
			logger.Info("server listening", "addr", cfg.ListenAddr)
			serverErrors <- srv.ListenAndServe()
		}()

		// Wait for interrupt signal
		shutdown := make(chan os.Signal, 1)
		signal.Notify(shutdown, os.Interrupt, syscall.SIGTERM)

		select {
		case err := <-serverErrors:
			return fmt.Errorf("server error: %w", err)

		case sig := <-shutdown:
			logger.Info("shutting down", "signal", sig)

			ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
			defer cancel()

			if err := srv.Shutdown(ctx); err != nil {
				srv.Close()
				return fmt.Errorf("graceful shutdown failed: %w", err)
			}

			logger.Info("server stopped")
			return nil
		}
	},
}

func init() {
	rootCmd.AddCommand(serveCmd)
}
