// SPDX-License-Identifier: Apache-2.0
// Copyright 2026 HoloMUSH Contributors

package auth

import (
	"context"
	"time"

	"github.com/oklog/ulid/v2"
	"github.com/samber/oops"
)

// TokenKind identifies a family of single-use, email-scoped tokens.
type TokenKind string

// Token kinds.
const (
	KindPasswordReset     TokenKind = "password_reset"
	KindEmailVerification TokenKind = "email_verification"
)

// Default lifetimes of single-use tokens.
const (
	PasswordResetTTL     = 24 * time.Hour
	EmailVerificationTTL = 48 * time.Hour
)

// Valid reports whether k is a known kind.
func (k TokenKind) Valid() bool {
	return k == KindPasswordReset || k == KindEmailVerification
}

// DefaultTTL returns the kind's default lifetime.
func (k TokenKind) DefaultTTL() time.Duration {
	if k == KindEmailVerification {
		return EmailVerificationTTL
	}
	return PasswordResetTTL
}

// OneTimeToken is a password-reset or email-verification token. It refers to
// its account by email only; no storage-level link to the user exists.
type OneTimeToken struct {
	ID        ulid.ULID
	Kind      TokenKind
	Email     string
	TokenHash string
	ExpiresAt time.Time
	Used      bool
	CreatedAt time.Time
}

// NewOneTimeToken creates a validated OneTimeToken instance.
func NewOneTimeToken(kind TokenKind, email, tokenHash string, expiresAt time.Time) (*OneTimeToken, error) {
	if !kind.Valid() {
		return nil, oops.Code("ONETIME_INVALID_KIND").
			With("kind", string(kind)).
			Errorf("unknown token kind")
	}
	if email == "" {
		return nil, oops.Code("ONETIME_INVALID_EMAIL").Errorf("email cannot be empty")
	}
	if tokenHash == "" {
		return nil, oops.Code("ONETIME_INVALID_HASH").Errorf("token hash cannot be empty")
	}
	if expiresAt.IsZero() {
		return nil, oops.Code("ONETIME_INVALID_EXPIRY").Errorf("expiry time cannot be zero")
	}

	return &OneTimeToken{
		ID:        ulid.Make(),
		Kind:      kind,
		Email:     email,
		TokenHash: tokenHash,
		ExpiresAt: expiresAt,
		CreatedAt: time.Now(),
	}, nil
}

// IsExpiredAt returns true if the token would be expired at t.
func (o *OneTimeToken) IsExpiredAt(t time.Time) bool {
	return t.After(o.ExpiresAt)
}

// IsUsableAt returns true if the token is unused and unexpired at t.
func (o *OneTimeToken) IsUsableAt(t time.Time) bool {
	return !o.Used && !o.IsExpiredAt(t)
}

// OneTimeTokenRepository manages persistence for one token kind.
type OneTimeTokenRepository interface {
	// Kind returns the token kind this repository stores.
	Kind() TokenKind

	// Create stores a new token. Earlier tokens for the same email stay valid.
	Create(ctx context.Context, token *OneTimeToken) error

	// GetUnusedByTokenHash retrieves an unused token by its hash, expired or not.
	GetUnusedByTokenHash(ctx context.Context, tokenHash string) (*OneTimeToken, error)

	// MarkUsed consumes a token that is unused and unexpired at now, in one
	// conditional statement. ErrNotFound means there was nothing to consume.
	MarkUsed(ctx context.Context, tokenHash string, now time.Time) error

	// DeleteExpired removes tokens that expired before the given time and
	// returns the count of deleted records.
	DeleteExpired(ctx context.Context, before time.Time) (int64, error)
}
