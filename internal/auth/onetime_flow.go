// SPDX-License-Identifier: Apache-2.0
// Copyright 2026 HoloMUSH Contributors

package auth

import (
	"context"
	"errors"
	"time"

	"github.com/samber/oops"
)

// oneTimeFlow is the create, look up and consume cycle shared by password
// reset and email verification.
type oneTimeFlow struct {
	repo OneTimeTokenRepository
	kind TokenKind
	ttl  time.Duration
	now  func() time.Time
}

func newOneTimeFlow(repo OneTimeTokenRepository, kind TokenKind, o options) oneTimeFlow {
	ttl := o.tokenTTL
	if ttl <= 0 {
		ttl = kind.DefaultTTL()
	}
	return oneTimeFlow{repo: repo, kind: kind, ttl: ttl, now: o.now}
}

// issue stores a fresh token for email and returns the plaintext.
func (f oneTimeFlow) issue(ctx context.Context, email string) (string, *OneTimeToken, error) {
	token, hash, err := GenerateOpaqueToken()
	if err != nil {
		return "", nil, oops.Code("ONETIME_CREATE_FAILED").
			With("kind", string(f.kind)).
			With("operation", "generate token").
			Wrap(err)
	}

	record, err := NewOneTimeToken(f.kind, email, hash, f.now().Add(f.ttl))
	if err != nil {
		return "", nil, oops.Code("ONETIME_CREATE_FAILED").
			With("kind", string(f.kind)).
			With("operation", "build token").
			Wrap(err)
	}

	if err := f.repo.Create(ctx, record); err != nil {
		return "", nil, oops.Code("ONETIME_CREATE_FAILED").
			With("kind", string(f.kind)).
			With("operation", "persist token").
			Wrap(err)
	}
	return token, record, nil
}

// lookup returns the unused record for token, expired or not. A missing
// record yields (nil, nil).
func (f oneTimeFlow) lookup(ctx context.Context, token string) (*OneTimeToken, error) {
	if token == "" {
		return nil, nil
	}
	record, err := f.repo.GetUnusedByTokenHash(ctx, HashOpaqueToken(token))
	if err != nil {
		if errors.Is(err, ErrNotFound) {
			return nil, nil
		}
		return nil, oops.Code("ONETIME_LOOKUP_FAILED").
			With("kind", string(f.kind)).
			Wrap(err)
	}
	return record, nil
}

// consume marks the token used. It reports false when another caller
// consumed it first or it expired in the meantime.
func (f oneTimeFlow) consume(ctx context.Context, record *OneTimeToken) (bool, error) {
	err := f.repo.MarkUsed(ctx, record.TokenHash, f.now())
	switch {
	case err == nil:
		record.Used = true
		return true, nil
	case errors.Is(err, ErrNotFound):
		return false, nil
	default:
		return false, oops.Code("ONETIME_CONSUME_FAILED").
			With("kind", string(f.kind)).
			With("token_hash", shortHash(record.TokenHash)).
			Wrap(err)
	}
}

// prune deletes tokens that expired before now.
func (f oneTimeFlow) prune(ctx context.Context) (int64, error) {
	n, err := f.repo.DeleteExpired(ctx, f.now())
	if err != nil {
		return 0, oops.Code("ONETIME_PRUNE_FAILED").
			With("kind", string(f.kind)).
			Wrap(err)
	}
	return n, nil
}

func checkKind(repo OneTimeTokenRepository, want TokenKind) error {
	if repo.Kind() != want {
		return oops.With("want", string(want), "got", string(repo.Kind())).
			Errorf("token repository stores the wrong kind")
	}
	return nil
}
