// SPDX-License-Identifier: Apache-2.0
// Copyright 2026 HoloMUSH Contributors

package postgres

import (
	"context"
	"errors"
	"time"

	"github.com/jackc/pgx/v5"
	"github.com/samber/oops"

	"github.com/holomush/authority/internal/auth"
)

// oneTimeTables maps each token kind to its table. Table names are never
// taken from input.
var oneTimeTables = map[auth.TokenKind]string{
	auth.KindPasswordReset:     "password_resets",
	auth.KindEmailVerification: "email_verifications",
}

// OneTimeTokenRepository implements auth.OneTimeTokenRepository for one
// token kind.
type OneTimeTokenRepository struct {
	db    DB
	kind  auth.TokenKind
	table string
}

// NewOneTimeTokenRepository creates a repository for the given kind.
func NewOneTimeTokenRepository(db DB, kind auth.TokenKind) (*OneTimeTokenRepository, error) {
	table, ok := oneTimeTables[kind]
	if !ok {
		return nil, oops.Code("ONETIME_INVALID_KIND").
			With("kind", string(kind)).
			Errorf("unknown one-time token kind")
	}
	return &OneTimeTokenRepository{db: db, kind: kind, table: table}, nil
}

// Kind returns the token kind this repository stores.
func (r *OneTimeTokenRepository) Kind() auth.TokenKind {
	return r.kind
}

// Create stores a new token.
func (r *OneTimeTokenRepository) Create(ctx context.Context, token *auth.OneTimeToken) error {
	if token.Kind != r.kind {
		return oops.Code("ONETIME_INVALID_KIND").
			With("want", string(r.kind)).
			With("got", string(token.Kind)).
			Errorf("token kind does not match repository")
	}
	_, err := r.db.Exec(ctx, `
		INSERT INTO `+r.table+` (id, email, token_hash, expires_at, used, created_at)
		VALUES ($1, $2, $3, $4, $5, $6)
	`, token.ID.String(), token.Email, token.TokenHash, token.ExpiresAt, token.Used, token.CreatedAt)
	if err != nil {
		return oops.Code("ONETIME_CREATE_FAILED").
			With("table", r.table).
			Wrap(err)
	}
	return nil
}

// GetUnusedByTokenHash retrieves an unused token, expired or not.
func (r *OneTimeTokenRepository) GetUnusedByTokenHash(ctx context.Context, tokenHash string) (*auth.OneTimeToken, error) {
	row := r.db.QueryRow(ctx, `
		SELECT id, email, token_hash, expires_at, used, created_at
		FROM `+r.table+`
		WHERE token_hash = $1 AND used = FALSE
	`, tokenHash)

	var (
		t  = auth.OneTimeToken{Kind: r.kind}
		id string
	)
	err := row.Scan(&id, &t.Email, &t.TokenHash, &t.ExpiresAt, &t.Used, &t.CreatedAt)
	if errors.Is(err, pgx.ErrNoRows) {
		return nil, oops.Code(codeOneTimeTokenNotFound).
			With("table", r.table).
			Wrap(auth.ErrNotFound)
	}
	if err != nil {
		return nil, oops.Code("ONETIME_GET_FAILED").
			With("table", r.table).
			Wrap(err)
	}
	if t.ID, err = parseID(id, r.table+".id"); err != nil {
		return nil, err
	}
	return &t, nil
}

// MarkUsed consumes a token that is unused and unexpired at now.
func (r *OneTimeTokenRepository) MarkUsed(ctx context.Context, tokenHash string, now time.Time) error {
	tag, err := r.db.Exec(ctx, `
		UPDATE `+r.table+` SET used = TRUE
		WHERE token_hash = $1 AND used = FALSE AND expires_at >= $2
	`, tokenHash, now)
	if err != nil {
		return oops.Code("ONETIME_MARK_USED_FAILED").
			With("table", r.table).
			Wrap(err)
	}
	if tag.RowsAffected() == 0 {
		return oops.Code(codeOneTimeTokenNotFound).
			With("table", r.table).
			Wrap(auth.ErrNotFound)
	}
	return nil
}

// DeleteExpired removes tokens that expired before the given time.
func (r *OneTimeTokenRepository) DeleteExpired(ctx context.Context, before time.Time) (int64, error) {
	tag, err := r.db.Exec(ctx, `DELETE FROM `+r.table+` WHERE expires_at < $1`, before)
	if err != nil {
		return 0, oops.Code("ONETIME_DELETE_EXPIRED_FAILED").
			With("table", r.table).
			Wrap(err)
	}
	return tag.RowsAffected(), nil
}

var _ auth.OneTimeTokenRepository = (*OneTimeTokenRepository)(nil)
