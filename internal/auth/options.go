// SPDX-License-Identifier: Apache-2.0
// Copyright 2026 HoloMUSH Contributors

package auth

import (
	"log/slog"
	"time"

	"go.opentelemetry.io/otel"
)

var tracer = otel.Tracer("github.com/holomush/authority/internal/auth")

// Option configures the services in this package. Options that do not
// apply to a service are ignored by it.
type Option func(*options)

type options struct {
	logger     *slog.Logger
	now        func() time.Time
	audit      AuditRecorder
	notifier   Notifier
	refreshTTL time.Duration
	tokenTTL   time.Duration
}

func buildOptions(opts []Option) options {
	o := options{
		logger:     slog.Default(),
		now:        time.Now,
		audit:      NopAuditRecorder{},
		notifier:   NopNotifier{},
		refreshTTL: DefaultRefreshTokenTTL,
	}
	for _, opt := range opts {
		opt(&o)
	}
	return o
}

// WithLogger sets the logger.
func WithLogger(logger *slog.Logger) Option {
	return func(o *options) {
		if logger != nil {
			o.logger = logger
		}
	}
}

// WithClock overrides the time source.
func WithClock(now func() time.Time) Option {
	return func(o *options) {
		if now != nil {
			o.now = now
		}
	}
}

// WithAuditRecorder sets where security events are recorded.
func WithAuditRecorder(r AuditRecorder) Option {
	return func(o *options) {
		if r != nil {
			o.audit = r
		}
	}
}

// WithNotifier sets how reset and verification links reach the user.
func WithNotifier(n Notifier) Option {
	return func(o *options) {
		if n != nil {
			o.notifier = n
		}
	}
}

// WithRefreshTTL sets the refresh token lifetime.
func WithRefreshTTL(ttl time.Duration) Option {
	return func(o *options) {
		if ttl > 0 {
			o.refreshTTL = ttl
		}
	}
}

// WithTokenTTL overrides the lifetime of single-use tokens created by a
// password reset or email verification service.
func WithTokenTTL(ttl time.Duration) Option {
	return func(o *options) {
		if ttl > 0 {
			o.tokenTTL = ttl
		}
	}
}

// OperationResult is the outcome of a flow whose message is shown to the user.
type OperationResult struct {
	Success bool   `json:"success"`
	Message string `json:"message"`
}

// LogoutResult reports whether every requested revocation succeeded.
type LogoutResult struct {
	Success bool `json:"success"`
}
