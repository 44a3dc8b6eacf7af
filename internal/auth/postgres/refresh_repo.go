// SPDX-License-Identifier: Apache-2.0
// Copyright 2026 HoloMUSH Contributors

package postgres

import (
	"context"
	"errors"
	"time"

	"github.com/jackc/pgx/v5"
	"github.com/oklog/ulid/v2"
	"github.com/samber/oops"

	"github.com/holomush/authority/internal/auth"
)

const refreshColumns = `id, user_id, token_hash, expires_at, revoked, device_info, ip_address, created_at`

// RefreshTokenRepository implements auth.RefreshTokenRepository using PostgreSQL.
type RefreshTokenRepository struct {
	db DB
}

// NewRefreshTokenRepository creates a new RefreshTokenRepository.
func NewRefreshTokenRepository(db DB) *RefreshTokenRepository {
	return &RefreshTokenRepository{db: db}
}

// Create stores a new refresh token.
func (r *RefreshTokenRepository) Create(ctx context.Context, token *auth.RefreshToken) error {
	_, err := r.db.Exec(ctx, `
		INSERT INTO refresh_tokens (`+refreshColumns+`)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8)
	`,
		token.ID.String(),
		token.UserID.String(),
		token.TokenHash,
		token.ExpiresAt,
		token.Revoked,
		nullable(token.DeviceInfo),
		nullable(token.IPAddress),
		token.CreatedAt,
	)
	if isForeignKeyViolation(err) {
		return oops.Code(codeUserRecordNotFound).
			With("user_id", token.UserID.String()).
			Wrap(auth.ErrNotFound)
	}
	if err != nil {
		return oops.Code("REFRESH_CREATE_FAILED").
			With("operation", "insert refresh token").
			With("user_id", token.UserID.String()).
			Wrap(err)
	}
	return nil
}

// GetActiveByTokenHash retrieves a non-revoked token by hash.
func (r *RefreshTokenRepository) GetActiveByTokenHash(ctx context.Context, tokenHash string) (*auth.RefreshToken, error) {
	row := r.db.QueryRow(ctx, `
		SELECT `+refreshColumns+`
		FROM refresh_tokens
		WHERE token_hash = $1 AND revoked = FALSE
	`, tokenHash)

	token, err := scanRefreshToken(row)
	if errors.Is(err, pgx.ErrNoRows) {
		return nil, oops.Code(codeRefreshTokenNotFound).Wrap(auth.ErrNotFound)
	}
	if err != nil {
		return nil, oops.Code("REFRESH_GET_FAILED").
			With("operation", "get refresh token by hash").
			Wrap(err)
	}
	return token, nil
}

// Revoke revokes an active token. Concurrent callers race on the same
// conditional update; exactly one sees a row affected.
func (r *RefreshTokenRepository) Revoke(ctx context.Context, tokenHash string) error {
	tag, err := r.db.Exec(ctx, `
		UPDATE refresh_tokens SET revoked = TRUE
		WHERE token_hash = $1 AND revoked = FALSE
	`, tokenHash)
	if err != nil {
		return oops.Code("REFRESH_REVOKE_FAILED").
			With("operation", "revoke refresh token").
			Wrap(err)
	}
	if tag.RowsAffected() == 0 {
		return oops.Code(codeRefreshTokenNotFound).Wrap(auth.ErrNotFound)
	}
	return nil
}

// RevokeAllForUser revokes every active token of a user.
func (r *RefreshTokenRepository) RevokeAllForUser(ctx context.Context, userID ulid.ULID) (int64, error) {
	tag, err := r.db.Exec(ctx, `
		UPDATE refresh_tokens SET revoked = TRUE
		WHERE user_id = $1 AND revoked = FALSE
	`, userID.String())
	if err != nil {
		return 0, oops.Code("REFRESH_REVOKE_ALL_FAILED").
			With("user_id", userID.String()).
			Wrap(err)
	}
	return tag.RowsAffected(), nil
}

// ListActiveForUser returns a user's usable tokens, newest first.
func (r *RefreshTokenRepository) ListActiveForUser(ctx context.Context, userID ulid.ULID, now time.Time) ([]*auth.RefreshToken, error) {
	rows, err := r.db.Query(ctx, `
		SELECT `+refreshColumns+`
		FROM refresh_tokens
		WHERE user_id = $1 AND revoked = FALSE AND expires_at >= $2
		ORDER BY created_at DESC, id DESC
	`, userID.String(), now)
	if err != nil {
		return nil, oops.Code("REFRESH_LIST_FAILED").
			With("user_id", userID.String()).
			Wrap(err)
	}
	defer rows.Close()

	var tokens []*auth.RefreshToken
	for rows.Next() {
		token, err := scanRefreshToken(rows)
		if err != nil {
			return nil, oops.Code("REFRESH_LIST_FAILED").
				With("operation", "scan refresh token").
				Wrap(err)
		}
		tokens = append(tokens, token)
	}
	if err := rows.Err(); err != nil {
		return nil, oops.Code("REFRESH_LIST_FAILED").
			With("operation", "iterate refresh tokens").
			Wrap(err)
	}
	return tokens, nil
}

// DeleteExpired removes tokens that expired before the given time.
func (r *RefreshTokenRepository) DeleteExpired(ctx context.Context, before time.Time) (int64, error) {
	tag, err := r.db.Exec(ctx, `DELETE FROM refresh_tokens WHERE expires_at < $1`, before)
	if err != nil {
		return 0, oops.Code("REFRESH_DELETE_EXPIRED_FAILED").Wrap(err)
	}
	return tag.RowsAffected(), nil
}

func scanRefreshToken(row pgx.Row) (*auth.RefreshToken, error) {
	var (
		t              auth.RefreshToken
		id, userID     string
		device, ipAddr *string
	)
	if err := row.Scan(&id, &userID, &t.TokenHash, &t.ExpiresAt, &t.Revoked, &device, &ipAddr, &t.CreatedAt); err != nil {
		return nil, err //nolint:wrapcheck // callers add context
	}

	var err error
	if t.ID, err = parseID(id, "refresh_tokens.id"); err != nil {
		return nil, err
	}
	if t.UserID, err = parseID(userID, "refresh_tokens.user_id"); err != nil {
		return nil, err
	}
	t.DeviceInfo = deref(device)
	t.IPAddress = deref(ipAddr)
	return &t, nil
}

var _ auth.RefreshTokenRepository = (*RefreshTokenRepository)(nil)
