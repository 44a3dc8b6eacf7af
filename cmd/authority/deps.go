// SPDX-License-Identifier: Apache-2.0
// Copyright 2026 HoloMUSH Contributors

package main

import (
	"context"
	"log/slog"
	"net/http"

	"github.com/holomush/authority/internal/auth"
	"github.com/holomush/authority/internal/cache"
	"github.com/holomush/authority/internal/observability"
	"github.com/holomush/authority/internal/store"
)

// ServeDeps contains injectable dependencies for the serve command.
// All fields with nil values will use their default implementations.
type ServeDeps struct {
	// PoolFactory connects to PostgreSQL.
	// Default: store.Connect
	PoolFactory func(ctx context.Context, dsn string, opts store.ConnectOptions) (Pool, error)

	// CacheClientFactory connects to Redis when redis.addr is set.
	// Default: cache.NewClient
	CacheClientFactory func(ctx context.Context, opts cache.Options) (CacheClient, error)

	// PublisherFactory connects the audit publisher when amqp.url is set.
	// Default: events.Dial
	PublisherFactory func(url, exchange string, logger *slog.Logger) (Publisher, error)

	// ObservabilityServerFactory creates an observability server.
	// Default: observability.NewServer
	ObservabilityServerFactory func(addr string, readinessChecker observability.ReadinessChecker) ObservabilityServer

	// APIServerFactory creates the API server.
	// Default: httpapi.NewServer
	APIServerFactory func(addr string, handler http.Handler) APIServer
}

// Pool is the database handle used by the commands. *pgxpool.Pool
// satisfies it.
type Pool interface {
	store.DB
	Ping(ctx context.Context) error
	Close()
}

// CacheClient wraps the methods used from *redis.Client.
type CacheClient interface {
	cache.Client
	Close() error
}

// Publisher wraps the methods used from events.AuditPublisher.
type Publisher interface {
	auth.AuditPublisher
	Close() error
}

// ObservabilityServer interface wraps the methods used from observability.Server.
type ObservabilityServer interface {
	Start() (<-chan error, error)
	Stop(ctx context.Context) error
	Addr() string
	Metrics() *observability.Metrics
}

// APIServer interface wraps the methods used from httpapi.Server.
type APIServer interface {
	Start() (<-chan error, error)
	Stop(ctx context.Context) error
	Addr() string
}
