// SPDX-License-Identifier: Apache-2.0
// Copyright 2026 Driftline Contributors

package main

import (
	"context"
	"log/slog"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/joho/godotenv"
	"github.com/samber/oops"
	"github.com/spf13/cobra"

	"github.com/driftline/driftline/internal/auth"
	authpg "github.com/driftline/driftline/internal/auth/postgres"
	"github.com/driftline/driftline/internal/config"
	"github.com/driftline/driftline/internal/feed"
	feedpg "github.com/driftline/driftline/internal/feed/postgres"
	"github.com/driftline/driftline/internal/httpapi"
	"github.com/driftline/driftline/internal/logging"
	"github.com/driftline/driftline/internal/observability"
	"github.com/driftline/driftline/internal/store"
)

// NewServeCmd creates the serve subcommand.
func NewServeCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "serve",
		Short: "Start the API server",
		Long: `Start the HTTP API server which handles account registration,
authentication, the post feed, and likes.`,
		RunE: func(cmd *cobra.Command, _ []string) error {
			return runServe(cmd)
		},
	}

	cmd.Flags().String("environment", config.EnvDevelopment, "runtime environment (development or production)")
	cmd.Flags().String("http-addr", config.DefaultHTTPAddr, "API listen address")
	cmd.Flags().String("metrics-addr", config.DefaultMetricsAddr, "metrics/health HTTP address (empty = disabled)")
	cmd.Flags().String("log-format", config.DefaultLogFormat, "log format (json or text)")
	cmd.Flags().String("token-secret", "", "secret used to sign access tokens")

	return cmd
}

func runServe(cmd *cobra.Command) error {
	// Local development convenience; a missing .env file is not an error.
	_ = godotenv.Load()

	cfg, err := config.Load(configFile, cmd.Flags())
	if err != nil {
		return err
	}
	if err := cfg.Validate(); err != nil {
		return err
	}

	logging.SetDefault("driftline", version, cfg.LogFormat)
	logger := slog.Default()

	logger.Info("starting server",
		"environment", cfg.Environment,
		"http_addr", cfg.HTTPAddr,
		"log_format", cfg.LogFormat,
	)

	if cfg.DatabaseURL == "" {
		return oops.Code("CONFIG_INVALID").Errorf("DATABASE_URL environment variable is required")
	}

	ctx, cancel := context.WithCancel(cmd.Context())
	defer cancel()

	pool, err := store.NewPool(ctx, cfg.DatabaseURL)
	if err != nil {
		return err
	}
	defer pool.Close()

	logger.Info("connected to database")

	if err := runMigrations(cfg.DatabaseURL); err != nil {
		return err
	}

	tokens, err := auth.NewTokenService(cfg.TokenSecret)
	if err != nil {
		return err
	}
	accounts, err := auth.NewServiceWithLogger(authpg.NewAccountRepository(pool), auth.NewArgon2idHasher(), tokens, logger)
	if err != nil {
		return err
	}
	posts, err := feed.NewServiceWithLogger(feedpg.NewPostRepository(pool), logger)
	if err != nil {
		return err
	}

	// Start observability server if configured
	var obsServer *observability.Server
	var metrics *observability.Metrics
	if cfg.MetricsAddr != "" {
		obsServer = observability.NewServer(cfg.MetricsAddr, func() bool {
			return pool.Ping(ctx) == nil
		})
		metrics = obsServer.Metrics()
		obsErrChan, err := obsServer.Start()
		if err != nil {
			return oops.Code("SERVER_START_FAILED").With("server", "observability").Wrap(err)
		}
		go monitorServerErrors(ctx, cancel, obsErrChan, "observability")
		logger.Info("observability server started", "addr", obsServer.Addr())
	}

	apiServer, err := httpapi.NewServer(httpapi.ServerConfig{
		Addr:     cfg.HTTPAddr,
		Accounts: accounts,
		Posts:    posts,
		Tokens:   tokens,
		Logger:   logger,
		Metrics:  metrics,
		Version:  version,
	})
	if err != nil {
		return err
	}
	apiErrChan, err := apiServer.Start()
	if err != nil {
		if obsServer != nil {
			stopServer(obsServer.Stop, "observability", logger)
		}
		return oops.Code("SERVER_START_FAILED").With("server", "api").Wrap(err)
	}
	go monitorServerErrors(ctx, cancel, apiErrChan, "api")

	cmd.Println("Driftline server started")
	logger.Info("server ready", "addr", apiServer.Addr())

	// Handle signals
	sigChan := make(chan os.Signal, 1)
	signal.Notify(sigChan, syscall.SIGINT, syscall.SIGTERM)
	defer signal.Stop(sigChan)

	select {
	case sig := <-sigChan:
		logger.Info("received shutdown signal", "signal", sig.String())
	case <-ctx.Done():
		logger.Info("context cancelled, shutting down")
	}

	logger.Info("shutting down...")

	stopServer(apiServer.Stop, "api", logger)
	if obsServer != nil {
		stopServer(obsServer.Stop, "observability", logger)
	}

	logger.Info("shutdown complete")
	return nil
}

// runMigrations brings the schema up to date on startup so a fresh
// deployment needs no separate migrate step.
func runMigrations(databaseURL string) error {
	migrator, err := store.NewMigrator(databaseURL)
	if err != nil {
		return err
	}
	defer migrator.Close() //nolint:errcheck

	if err := migrator.Up(); err != nil {
		return oops.Code("MIGRATION_FAILED").With("operation", "run migrations").Wrap(err)
	}
	return nil
}

// stopServer stops a server with a bounded shutdown window.
func stopServer(stop func(context.Context) error, name string, logger *slog.Logger) {
	shutdownCtx, shutdownCancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer shutdownCancel()

	if err := stop(shutdownCtx); err != nil {
		logger.Warn("error stopping server", "server", name, "error", err)
	}
}

// monitorServerErrors watches a server error channel and cancels the run
// context on the first error so the process shuts down cleanly.
func monitorServerErrors(ctx context.Context, cancel context.CancelFunc, errCh <-chan error, serverName string) {
	select {
	case err, ok := <-errCh:
		if !ok {
			// Channel closed, server stopped gracefully
			return
		}
		if err != nil {
			slog.Error("server error, triggering shutdown",
				"server", serverName,
				"error", err,
			)
			cancel()
		}
	case <-ctx.Done():
	}
}
