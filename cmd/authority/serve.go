// SPDX-License-Identifier: Apache-2.0
// Copyright 2026 HoloMUSH Contributors

package main

import (
	"context"
	"log/slog"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/samber/oops"
	"github.com/spf13/cobra"

	"github.com/holomush/authority/internal/cache"
	"github.com/holomush/authority/internal/config"
	"github.com/holomush/authority/internal/events"
	"github.com/holomush/authority/internal/httpapi"
	"github.com/holomush/authority/internal/observability"
	"github.com/holomush/authority/internal/store"
)

// readinessTimeout bounds the database ping behind /healthz/readiness.
const readinessTimeout = 2 * time.Second

// serveConfig holds the serve-only flags.
type serveConfig struct {
	pruneInterval time.Duration
}

// NewServeCmd creates the serve subcommand.
func NewServeCmd() *cobra.Command {
	sc := &serveConfig{}

	cmd := &cobra.Command{
		Use:   "serve",
		Short: "Start the authority API server",
		Long: `Start the HTTP API: logins, token refresh, logout, password resets,
email verification and user management. Metrics and health probes are
served on the metrics address when it is set.`,
		RunE: func(cmd *cobra.Command, _ []string) error {
			cfg, err := loadConfig(cmd)
			if err != nil {
				return err
			}
			setupLogging(cfg)
			return runServeWithDeps(cmd.Context(), cfg, sc, cmd, nil)
		},
	}

	cmd.Flags().DurationVar(&sc.pruneInterval, "prune-interval", 0, "delete expired tokens at this interval (0 = disabled)")

	return cmd
}

func defaultServeDeps(deps *ServeDeps) *ServeDeps {
	if deps == nil {
		deps = &ServeDeps{}
	}
	if deps.PoolFactory == nil {
		deps.PoolFactory = func(ctx context.Context, dsn string, opts store.ConnectOptions) (Pool, error) {
			return store.Connect(ctx, dsn, opts)
		}
	}
	if deps.CacheClientFactory == nil {
		deps.CacheClientFactory = func(ctx context.Context, opts cache.Options) (CacheClient, error) {
			return cache.NewClient(ctx, opts)
		}
	}
	if deps.PublisherFactory == nil {
		deps.PublisherFactory = func(url, exchange string, logger *slog.Logger) (Publisher, error) {
			return events.Dial(url, exchange, logger)
		}
	}
	if deps.ObservabilityServerFactory == nil {
		deps.ObservabilityServerFactory = func(addr string, readinessChecker observability.ReadinessChecker) ObservabilityServer {
			return observability.NewServer(addr, readinessChecker)
		}
	}
	if deps.APIServerFactory == nil {
		deps.APIServerFactory = func(addr string, handler http.Handler) APIServer {
			return httpapi.NewServer(addr, handler)
		}
	}
	return deps
}

// runServeWithDeps starts the API with injectable dependencies and blocks
// until a signal arrives, ctx ends or a server fails.
// If deps is nil, default implementations are used.
func runServeWithDeps(ctx context.Context, cfg *config.Config, sc *serveConfig, cmd *cobra.Command, deps *ServeDeps) error {
	deps = defaultServeDeps(deps)
	if ctx == nil {
		ctx = context.Background()
	}
	logger := slog.Default()

	logger.Info("starting authority",
		"env", cfg.App.Env,
		"addr", cfg.HTTP.Addr(),
		"base_path", cfg.HTTP.BasePath(),
	)

	pool, err := deps.PoolFactory(ctx, cfg.Database.DSN(), connectOptions(cfg, logger))
	if err != nil {
		return oops.Code("DB_CONNECT_FAILED").With("operation", "connect to database").Wrap(err)
	}
	defer pool.Close()

	w := wiring{logger: logger}

	if cfg.Redis.Addr != "" {
		client, err := deps.CacheClientFactory(ctx, cache.Options{
			Addr:     cfg.Redis.Addr,
			Password: cfg.Redis.Password,
			DB:       cfg.Redis.DB,
		})
		if err != nil {
			return oops.Code("CACHE_SETUP_FAILED").With("addr", cfg.Redis.Addr).Wrap(err)
		}
		defer func() {
			if closeErr := client.Close(); closeErr != nil {
				logger.Debug("error closing cache client", "error", closeErr)
			}
		}()
		w.cache = client
		logger.Info("user cache enabled", "addr", cfg.Redis.Addr, "ttl", cfg.Redis.TTL.String())
	}

	if cfg.AMQP.URL != "" {
		pub, err := deps.PublisherFactory(cfg.AMQP.URL, cfg.AMQP.Exchange, logger)
		if err != nil {
			return oops.Code("PUBLISHER_SETUP_FAILED").Wrap(err)
		}
		defer func() {
			if closeErr := pub.Close(); closeErr != nil {
				logger.Debug("error closing audit publisher", "error", closeErr)
			}
		}()
		w.publisher = pub
		logger.Info("audit publishing enabled", "exchange", cfg.AMQP.Exchange)
	}

	w.notifier, err = newNotifier(cfg, logger)
	if err != nil {
		return err
	}

	svc, err := newServices(cfg, pool, w)
	if err != nil {
		return oops.Code("SERVICE_SETUP_FAILED").Wrap(err)
	}

	ctx, cancel := context.WithCancel(ctx)
	defer cancel()

	shutdownTimeout := cfg.HTTP.ShutdownTimeout.Std()
	if shutdownTimeout <= 0 {
		shutdownTimeout = 5 * time.Second
	}

	// Start observability server if configured
	var obsServer ObservabilityServer
	var metrics *observability.Metrics
	if cfg.Metrics.Addr != "" {
		obsServer = deps.ObservabilityServerFactory(cfg.Metrics.Addr, observability.PingReadiness(pool, readinessTimeout))
		obsErrChan, err := obsServer.Start()
		if err != nil {
			return oops.Code("OBSERVABILITY_START_FAILED").Wrap(err)
		}
		go monitorServerErrors(ctx, cancel, obsErrChan, "observability")
		metrics = obsServer.Metrics()
		logger.Info("observability server started", "addr", obsServer.Addr())
	}

	handler, err := httpapi.New(httpapi.Config{
		BasePath:      cfg.HTTP.BasePath(),
		CORSOrigins:   cfg.HTTP.CORSOrigins,
		SecureCookies: cfg.IsProduction(),
		Logger:        logger,
		Metrics:       metrics,
	}, httpapi.Services{
		Resolver:      svc.resolver,
		Sessions:      svc.sessions,
		Resets:        svc.resets,
		Verifications: svc.verifications,
		Users:         svc.users,
	})
	if err != nil {
		stopQuietly(obsServer, shutdownTimeout, "observability")
		return oops.Code("API_SETUP_FAILED").Wrap(err)
	}

	apiServer := deps.APIServerFactory(cfg.HTTP.Addr(), handler)
	apiErrChan, err := apiServer.Start()
	if err != nil {
		stopQuietly(obsServer, shutdownTimeout, "observability")
		return oops.Code("API_START_FAILED").Wrap(err)
	}
	go monitorServerErrors(ctx, cancel, apiErrChan, "api")

	if sc != nil && sc.pruneInterval > 0 {
		go runPruner(ctx, sc.pruneInterval, svc, metrics, logger)
	}

	// Handle signals
	sigChan := make(chan os.Signal, 1)
	signal.Notify(sigChan, syscall.SIGINT, syscall.SIGTERM)
	defer signal.Stop(sigChan)

	cmd.Println("Authority started")
	logger.Info("authority ready", "addr", apiServer.Addr())

	select {
	case sig := <-sigChan:
		logger.Info("received shutdown signal", "signal", sig)
	case <-ctx.Done():
		logger.Info("context cancelled, shutting down")
	}

	shutdownCtx, shutdownCancel := context.WithTimeout(context.Background(), shutdownTimeout)
	defer shutdownCancel()

	if err := apiServer.Stop(shutdownCtx); err != nil {
		logger.Warn("error stopping api server", "error", err)
	}
	if obsServer != nil {
		if err := obsServer.Stop(shutdownCtx); err != nil {
			logger.Warn("error stopping observability server", "error", err)
		}
	}

	logger.Info("shutdown complete")
	return nil
}

// stopQuietly stops s during startup cleanup. s may be nil.
func stopQuietly(s ObservabilityServer, timeout time.Duration, name string) {
	if s == nil {
		return
	}
	ctx, cancel := context.WithTimeout(context.Background(), timeout)
	defer cancel()
	if err := s.Stop(ctx); err != nil {
		slog.Warn("failed to stop server during cleanup", "server", name, "error", err)
	}
}

// monitorServerErrors cancels ctx when a server reports an error. It exits
// when the channel closes or ctx ends.
func monitorServerErrors(ctx context.Context, cancel context.CancelFunc, errCh <-chan error, serverName string) {
	select {
	case err, ok := <-errCh:
		if !ok {
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
