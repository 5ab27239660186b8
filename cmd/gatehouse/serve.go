// SPDX-License-Identifier: Apache-2.0
// Copyright 2026 Gatehouse Contributors

package main

import (
	"context"
	"log/slog"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/samber/oops"
	"github.com/spf13/cobra"

	"github.com/gatehouse/gatehouse/internal/audit"
	"github.com/gatehouse/gatehouse/internal/auth"
	authpg "github.com/gatehouse/gatehouse/internal/auth/postgres"
	"github.com/gatehouse/gatehouse/internal/config"
	"github.com/gatehouse/gatehouse/internal/httpapi"
	"github.com/gatehouse/gatehouse/internal/logging"
	"github.com/gatehouse/gatehouse/internal/mail"
	"github.com/gatehouse/gatehouse/internal/observability"
	"github.com/gatehouse/gatehouse/internal/store"
)

const shutdownTimeout = 10 * time.Second

// NewServeCmd creates the serve subcommand.
func NewServeCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "serve",
		Short: "Start the authentication service",
		Long: `Start the HTTP service, apply pending database migrations, and
serve until interrupted.`,
		RunE: runServe,
	}
	// Flag defaults mirror config.Default so an unset flag never masks a
	// file-provided value with an empty string.
	cmd.Flags().String("server.addr", ":8080", "listen address for the public HTTP server")
	cmd.Flags().String("log.format", "json", "log output format (json or text)")
	return cmd
}

func runServe(cmd *cobra.Command, _ []string) error {
	cfg, err := config.Load(configFile, cmd.Flags())
	if err != nil {
		return err
	}
	if err := cfg.Validate(); err != nil {
		return err
	}

	logging.SetDefault("gatehouse", version, cfg.Log.Format)

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	// Database, with pending migrations applied before serving.
	pool, err := store.Open(ctx, cfg.Database.URL)
	if err != nil {
		return err
	}
	defer pool.Close()

	migrator, err := store.NewMigrator(cfg.Database.URL)
	if err != nil {
		return err
	}
	if err := migrator.Up(); err != nil {
		_ = migrator.Close()
		return err
	}
	if err := migrator.Close(); err != nil {
		return err
	}

	// Domain services.
	users := authpg.NewUserRepository(pool)
	hasher := auth.NewArgon2idHasher()
	issuer, err := auth.NewTokenIssuer([]byte(cfg.Auth.JWTSecret), cfg.Auth.AccessTokenTTL)
	if err != nil {
		return err
	}
	authSvc := auth.NewService(users, hasher, issuer)

	mailer, err := mail.New(cfg.SMTP)
	if err != nil {
		return err
	}
	resets := auth.NewPasswordResetService(users, hasher, issuer, mailer, cfg.Server.BaseURL)

	trail := audit.New(cfg.Audit)
	defer func() {
		if err := trail.Close(); err != nil {
			slog.Error("failed to close audit trail", "error", err)
		}
	}()

	// Observability listener.
	obsServer := observability.NewServer(cfg.Observability.Addr, func() bool {
		pingCtx, cancel := context.WithTimeout(ctx, 2*time.Second)
		defer cancel()
		return pool.Ping(pingCtx) == nil
	})
	obsErrCh, err := obsServer.Start()
	if err != nil {
		return err
	}

	// Public HTTP listener.
	limiters, err := httpapi.NewLimiters()
	if err != nil {
		return err
	}
	handler := httpapi.NewHandler(authSvc, resets, trail, obsServer.Metrics())
	router := httpapi.NewRouter(handler, authSvc, limiters, trail, obsServer.Metrics())
	apiServer := httpapi.NewServer(cfg.Server.Addr, router, limiters)
	apiErrCh, err := apiServer.Start()
	if err != nil {
		stopServers(nil, obsServer)
		return err
	}

	slog.Info("gatehouse running",
		"addr", apiServer.Addr(),
		"observability_addr", obsServer.Addr(),
	)

	select {
	case <-ctx.Done():
		slog.Info("shutdown signal received")
	case err := <-apiErrCh:
		if err != nil {
			stopServers(apiServer, obsServer)
			return oops.Code("HTTP_SERVER_FAILED").Wrap(err)
		}
	case err := <-obsErrCh:
		if err != nil {
			stopServers(apiServer, obsServer)
			return oops.Code("OBSERVABILITY_SERVER_FAILED").Wrap(err)
		}
	}

	return stopServers(apiServer, obsServer)
}

// stopServers shuts both listeners down within the shutdown timeout. A nil
// server is skipped.
func stopServers(api *httpapi.Server, obs *observability.Server) error {
	ctx, cancel := context.WithTimeout(context.Background(), shutdownTimeout)
	defer cancel()

	var firstErr error
	if api != nil {
		if err := api.Stop(ctx); err != nil {
			firstErr = err
		}
	}
	if obs != nil {
		if err := obs.Stop(ctx); err != nil && firstErr == nil {
			firstErr = err
		}
	}
	return firstErr
}
