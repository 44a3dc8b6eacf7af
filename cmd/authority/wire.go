// SPDX-License-Identifier: Apache-2.0
// Copyright 2026 HoloMUSH Contributors

package main

import (
	"context"
	"log/slog"

	"github.com/samber/oops"

	"github.com/holomush/authority/internal/auth"
	"github.com/holomush/authority/internal/auth/postgres"
	"github.com/holomush/authority/internal/cache"
	"github.com/holomush/authority/internal/config"
	"github.com/holomush/authority/internal/mail"
	"github.com/holomush/authority/internal/store"
)

// wiring holds the optional collaborators of the services.
type wiring struct {
	// cache decorates the user repository when set.
	cache     cache.Client
	publisher auth.AuditPublisher
	notifier  auth.Notifier
	logger    *slog.Logger
}

// services is the assembled domain layer.
type services struct {
	users         *auth.UserService
	sessions      *auth.SessionService
	resets        *auth.PasswordResetService
	verifications *auth.EmailVerificationService
	resolver      *auth.CredentialResolver
	audit         *auth.AuditLog
}

// newServices builds the repositories and services over db.
func newServices(cfg *config.Config, db store.DB, w wiring) (*services, error) {
	logger := w.logger
	if logger == nil {
		logger = slog.Default()
	}

	var users auth.UserRepository = postgres.NewUserRepository(db)
	if w.cache != nil {
		users = cache.NewUserRepository(users, w.cache, cfg.Redis.TTL.Std(), logger)
	}
	refresh := postgres.NewRefreshTokenRepository(db)
	resetTokens, err := postgres.NewOneTimeTokenRepository(db, auth.KindPasswordReset)
	if err != nil {
		return nil, err
	}
	verifyTokens, err := postgres.NewOneTimeTokenRepository(db, auth.KindEmailVerification)
	if err != nil {
		return nil, err
	}

	auditLog, err := auth.NewAuditLog(postgres.NewAuditRepository(db), w.publisher, auth.WithLogger(logger))
	if err != nil {
		return nil, err
	}

	issuer, err := auth.NewAccessTokenIssuer(cfg.Tokens.JWTSecret, cfg.Tokens.AccessTTL.Std(), auth.WithIssuer(cfg.Tokens.Issuer))
	if err != nil {
		return nil, err
	}
	hasher := auth.NewBcryptHasher(cfg.Tokens.BcryptCost)

	notifier := w.notifier
	if notifier == nil {
		notifier = mail.NewLogNotifier(logger)
	}
	common := []auth.Option{
		auth.WithLogger(logger),
		auth.WithAuditRecorder(auditLog),
		auth.WithNotifier(notifier),
	}

	s := &services{audit: auditLog}
	s.sessions, err = auth.NewSessionService(users, refresh, issuer, hasher,
		append(common, auth.WithRefreshTTL(cfg.Tokens.RefreshTTL.Std()))...)
	if err != nil {
		return nil, err
	}
	s.resets, err = auth.NewPasswordResetService(users, resetTokens, refresh, hasher,
		append(common, auth.WithTokenTTL(cfg.Tokens.ResetTTL.Std()))...)
	if err != nil {
		return nil, err
	}
	s.verifications, err = auth.NewEmailVerificationService(users, verifyTokens,
		append(common, auth.WithTokenTTL(cfg.Tokens.VerificationTTL.Std()))...)
	if err != nil {
		return nil, err
	}
	s.users, err = auth.NewUserService(users, refresh, hasher, s.verifications, common...)
	if err != nil {
		return nil, err
	}
	s.resolver, err = auth.NewCredentialResolver(s.sessions, issuer, users)
	if err != nil {
		return nil, err
	}
	return s, nil
}

// newNotifier sends mail over SMTP when smtp.host is set and logs the
// messages otherwise.
func newNotifier(cfg *config.Config, logger *slog.Logger) (auth.Notifier, error) {
	if cfg.SMTP.Host == "" {
		return mail.NewLogNotifier(logger), nil
	}
	n, err := mail.NewSMTPNotifier(cfg.SMTP.Host, cfg.SMTP.Port, cfg.SMTP.Username, cfg.SMTP.Password, mail.Config{
		From:      cfg.SMTP.From,
		ResetURL:  cfg.SMTP.ResetURL,
		VerifyURL: cfg.SMTP.VerifyURL,
	}, logger)
	if err != nil {
		return nil, oops.Code("MAIL_SETUP_FAILED").Wrap(err)
	}
	return n, nil
}

// connect opens the pool for one-shot commands.
func connect(ctx context.Context, cfg *config.Config, logger *slog.Logger) (Pool, error) {
	pool, err := store.Connect(ctx, cfg.Database.DSN(), connectOptions(cfg, logger))
	if err != nil {
		return nil, err
	}
	return pool, nil
}

func connectOptions(cfg *config.Config, logger *slog.Logger) store.ConnectOptions {
	return store.ConnectOptions{
		MaxConns: cfg.Database.MaxConns,
		Attempts: cfg.Database.ConnectAttempts,
		Logger:   logger,
	}
}
