// SPDX-License-Identifier: Apache-2.0
// Copyright 2026 HoloMUSH Contributors

package auth

import (
	"context"
	"time"

	"github.com/oklog/ulid/v2"
	"github.com/samber/oops"
)

// DefaultRefreshTokenTTL is the validity window of a refresh token.
const DefaultRefreshTokenTTL = 30 * 24 * time.Hour

// RefreshToken is a stored session-continuation credential. A token is
// usable while it is not revoked and not past ExpiresAt.
type RefreshToken struct {
	ID         ulid.ULID
	UserID     ulid.ULID
	TokenHash  string
	ExpiresAt  time.Time
	Revoked    bool
	DeviceInfo string
	IPAddress  string
	CreatedAt  time.Time
}

// NewRefreshToken creates a validated RefreshToken instance.
// Device descriptor and IP are optional and may be empty.
func NewRefreshToken(userID ulid.ULID, tokenHash string, device DeviceInfo, expiresAt time.Time) (*RefreshToken, error) {
	if userID.Compare(ulid.ULID{}) == 0 {
		return nil, oops.Code("REFRESH_INVALID_USER").Errorf("user ID cannot be zero")
	}
	if tokenHash == "" {
		return nil, oops.Code("REFRESH_INVALID_HASH").Errorf("token hash cannot be empty")
	}
	if expiresAt.IsZero() {
		return nil, oops.Code("REFRESH_INVALID_EXPIRY").Errorf("expiry time cannot be zero")
	}

	descriptor := ""
	if device.UserAgent != "" || device.IPAddress != "" {
		descriptor = device.Describe()
	}

	return &RefreshToken{
		ID:         ulid.Make(),
		UserID:     userID,
		TokenHash:  tokenHash,
		ExpiresAt:  expiresAt,
		DeviceInfo: descriptor,
		IPAddress:  device.IPAddress,
		CreatedAt:  time.Now(),
	}, nil
}

// IsExpiredAt returns true if the token would be expired at t.
func (r *RefreshToken) IsExpiredAt(t time.Time) bool {
	return t.After(r.ExpiresAt)
}

// IsUsableAt returns true if the token is neither revoked nor expired at t.
func (r *RefreshToken) IsUsableAt(t time.Time) bool {
	return !r.Revoked && !r.IsExpiredAt(t)
}

// RefreshTokenRepository manages refresh token persistence.
type RefreshTokenRepository interface {
	// Create stores a new refresh token.
	Create(ctx context.Context, token *RefreshToken) error

	// GetActiveByTokenHash retrieves a non-revoked token by its hash.
	// Expired tokens are returned; callers decide what expiry means.
	GetActiveByTokenHash(ctx context.Context, tokenHash string) (*RefreshToken, error)

	// Revoke marks a token revoked if it is not already. The update is a
	// single conditional statement; ErrNotFound means no active token had
	// that hash, including when a concurrent caller revoked it first.
	Revoke(ctx context.Context, tokenHash string) error

	// RevokeAllForUser revokes every active token of a user and returns the
	// number of tokens revoked.
	RevokeAllForUser(ctx context.Context, userID ulid.ULID) (int64, error)

	// ListActiveForUser returns a user's non-revoked, unexpired tokens,
	// newest first.
	ListActiveForUser(ctx context.Context, userID ulid.ULID, now time.Time) ([]*RefreshToken, error)

	// DeleteExpired removes tokens that expired before the given time and
	// returns the count of deleted records.
	DeleteExpired(ctx context.Context, before time.Time) (int64, error)
}
