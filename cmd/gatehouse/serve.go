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

	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/samber/oops"
	"github.com/spf13/cobra"

	"github.com/gatehouse/gatehouse/internal/auth"
	authmemory "github.com/gatehouse/gatehouse/internal/auth/memory"
	authpostgres "github.com/gatehouse/gatehouse/internal/auth/postgres"
	authredis "github.com/gatehouse/gatehouse/internal/auth/redis"
	"github.com/gatehouse/gatehouse/internal/config"
	"github.com/gatehouse/gatehouse/internal/httpapi"
	"github.com/gatehouse/gatehouse/internal/logging"
	"github.com/gatehouse/gatehouse/internal/observability"
	"github.com/gatehouse/gatehouse/internal/store"
)

// Default values for serve command flags.
const (
	defaultListenAddr   = ":8080"
	defaultMetricsAddr  = "127.0.0.1:9100"
	defaultSessionStore = config.StorePostgres
	defaultLogFormat    = "json"

	shutdownTimeout = 10 * time.Second
)

// NewServeCmd creates the serve subcommand.
func NewServeCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "serve",
		Short: "Start the HTTP API server",
		Long: `Start the HTTP API server which handles registration, login,
logout, and guarded principal lookups.`,
		RunE: func(cmd *cobra.Command, _ []string) error {
			cfg, err := config.Load(configFile, cmd.Flags())
			if err != nil {
				return err
			}
			return runServe(cmd.Context(), cfg)
		},
	}

	// Flag names match the config file keys so posflag can merge them.
	cmd.Flags().String("listen-addr", defaultListenAddr, "API listen address")
	cmd.Flags().String("metrics-addr", defaultMetricsAddr, "metrics/health HTTP address")
	cmd.Flags().String("database-url", "", "PostgreSQL connection URL (default: DATABASE_URL env)")
	cmd.Flags().String("redis-url", "", "Redis connection URL for the redis session store")
	cmd.Flags().String("session-store", defaultSessionStore, "session store backend (postgres, redis, or memory)")
	cmd.Flags().String("token-secret", "", "HMAC secret for signing access tokens (default: TOKEN_SECRET env)")
	cmd.Flags().Duration("token-ttl", auth.DefaultTokenTTL, "access token lifetime")
	cmd.Flags().Duration("session-ttl", auth.DefaultSessionTTL, "session lifetime")
	cmd.Flags().String("log-format", defaultLogFormat, "log format (json or text)")

	return cmd
}

func runServe(ctx context.Context, cfg *config.Config) error {
	// Secrets may come from the environment instead of flags or the file.
	if cfg.DatabaseURL == "" {
		cfg.DatabaseURL = os.Getenv("DATABASE_URL")
	}
	if cfg.TokenSecret == "" {
		cfg.TokenSecret = os.Getenv("TOKEN_SECRET")
	}

	if err := cfg.Validate(); err != nil {
		return err
	}

	logging.SetDefault("gatehouse", version, cfg.LogFormat)
	logger := slog.Default()

	slog.Info("starting gatehouse",
		"listen_addr", cfg.ListenAddr,
		"session_store", cfg.SessionStore,
		"log_format", cfg.LogFormat,
	)

	var pool *pgxpool.Pool
	if cfg.SessionStore != config.StoreMemory {
		var err error
		pool, err = store.Connect(ctx, cfg.DatabaseURL)
		if err != nil {
			return oops.Code("DB_CONNECT_FAILED").With("operation", "connect to database").Wrap(err)
		}
		defer pool.Close()
		slog.Info("connected to database")
	}

	principals, sessions, closeStores, err := buildRepositories(ctx, cfg, pool)
	if err != nil {
		return err
	}
	defer closeStores()

	issuer, err := auth.NewTokenIssuer([]byte(cfg.TokenSecret), cfg.TokenTTL)
	if err != nil {
		return err
	}

	svc, err := auth.NewService(principals, sessions, auth.NewArgon2idHasher(), issuer, cfg.SessionTTL)
	if err != nil {
		return err
	}

	obsServer := observability.NewServer(cfg.MetricsAddr, func() bool {
		if pool == nil {
			return true
		}
		pingCtx, cancel := context.WithTimeout(context.Background(), 2*time.Second)
		defer cancel()
		return pool.Ping(pingCtx) == nil
	})
	obsErrCh, err := obsServer.Start()
	if err != nil {
		return err
	}

	handler := httpapi.NewHandler(svc, logger, obsServer.Metrics(), cfg.SessionTTL)
	router := httpapi.NewRouter(handler, svc, obsServer.Metrics())
	apiServer := httpapi.NewServer(cfg.ListenAddr, router)
	apiErrCh, err := apiServer.Start()
	if err != nil {
		stopCtx, cancel := context.WithTimeout(context.Background(), shutdownTimeout)
		defer cancel()
		_ = obsServer.Stop(stopCtx) //nolint:errcheck // already failing, best effort
		return err
	}

	sigCh := make(chan os.Signal, 1)
	signal.Notify(sigCh, syscall.SIGINT, syscall.SIGTERM)

	select {
	case sig := <-sigCh:
		slog.Info("shutting down", "signal", sig.String())
	case err := <-apiErrCh:
		if err != nil {
			return oops.Code("API_SERVER_FAILED").Wrap(err)
		}
	case err := <-obsErrCh:
		if err != nil {
			return oops.Code("OBSERVABILITY_SERVER_FAILED").Wrap(err)
		}
	case <-ctx.Done():
		slog.Info("shutting down", "reason", "context cancelled")
	}

	stopCtx, cancel := context.WithTimeout(context.Background(), shutdownTimeout)
	defer cancel()
	if err := apiServer.Stop(stopCtx); err != nil {
		return err
	}
	return obsServer.Stop(stopCtx)
}

// buildRepositories selects the principal and session backends for the
// configured store. The returned close func releases any backend-specific
// resources beyond the shared pool.
func buildRepositories(ctx context.Context, cfg *config.Config, pool *pgxpool.Pool) (auth.PrincipalRepository, auth.SessionRepository, func(), error) {
	noop := func() {}

	switch cfg.SessionStore {
	case config.StoreMemory:
		return authmemory.NewPrincipalRepository(), authmemory.NewSessionRepository(), noop, nil

	case config.StorePostgres:
		return authpostgres.NewPrincipalRepository(pool), authpostgres.NewSessionRepository(pool), noop, nil

	case config.StoreRedis:
		sessions, err := authredis.New(ctx, cfg.RedisURL)
		if err != nil {
			return nil, nil, nil, oops.Code("REDIS_CONNECT_FAILED").With("operation", "connect to redis").Wrap(err)
		}
		closeRedis := func() {
			_ = sessions.Close() //nolint:errcheck // shutdown path
		}
		return authpostgres.NewPrincipalRepository(pool), sessions, closeRedis, nil

	default:
		return nil, nil, nil, oops.Code("CONFIG_INVALID").Errorf("unknown session store %q", cfg.SessionStore)
	}
}
