// SPDX-License-Identifier: Apache-2.0
// Copyright 2026 HoloMUSH Contributors

package auth

import (
	"errors"
	"time"

	"github.com/golang-jwt/jwt/v5"
	"github.com/google/uuid"
	"github.com/oklog/ulid/v2"
	"github.com/samber/oops"
)

// Access token configuration.
const (
	DefaultAccessTokenTTL = 24 * time.Hour
	MinSigningKeyLength   = 32
)

// AccessClaims are the claims carried by an access token. Only the subject
// (user id) and the registered timing claims are meaningful.
type AccessClaims struct {
	jwt.RegisteredClaims
}

// UserID parses the subject claim.
func (c *AccessClaims) UserID() (ulid.ULID, error) {
	id, err := ulid.Parse(c.Subject)
	if err != nil {
		return ulid.ULID{}, oops.Code(CodeAccessTokenInvalid).
			With("subject", c.Subject).
			Wrap(err)
	}
	return id, nil
}

// AccessToken is a signed access token and its expiry.
type AccessToken struct {
	Token     string
	ExpiresAt time.Time
}

// AccessTokenSigner issues access tokens for a user.
type AccessTokenSigner interface {
	Issue(userID ulid.ULID) (AccessToken, error)
	TTL() time.Duration
}

// AccessTokenIssuer signs and verifies HS256 access tokens.
type AccessTokenIssuer struct {
	secret []byte
	ttl    time.Duration
	issuer string
	now    func() time.Time
}

// IssuerOption configures an AccessTokenIssuer.
type IssuerOption func(*AccessTokenIssuer)

// WithIssuer sets the iss claim written and required by the issuer.
func WithIssuer(issuer string) IssuerOption {
	return func(i *AccessTokenIssuer) {
		i.issuer = issuer
	}
}

// WithIssuerClock overrides the time source. Used by tests.
func WithIssuerClock(now func() time.Time) IssuerOption {
	return func(i *AccessTokenIssuer) {
		i.now = now
	}
}

// NewAccessTokenIssuer creates an issuer. The secret must be at least
// MinSigningKeyLength bytes; a non-positive ttl uses DefaultAccessTokenTTL.
func NewAccessTokenIssuer(secret string, ttl time.Duration, opts ...IssuerOption) (*AccessTokenIssuer, error) {
	if len(secret) < MinSigningKeyLength {
		return nil, oops.Code("ACCESS_TOKEN_WEAK_SECRET").
			With("min_length", MinSigningKeyLength).
			Errorf("signing secret must be at least %d characters", MinSigningKeyLength)
	}
	if ttl <= 0 {
		ttl = DefaultAccessTokenTTL
	}
	i := &AccessTokenIssuer{
		secret: []byte(secret),
		ttl:    ttl,
		now:    time.Now,
	}
	for _, opt := range opts {
		opt(i)
	}
	return i, nil
}

// TTL returns the lifetime of issued tokens.
func (i *AccessTokenIssuer) TTL() time.Duration {
	return i.ttl
}

// Issue signs a token whose subject is userID.
func (i *AccessTokenIssuer) Issue(userID ulid.ULID) (AccessToken, error) {
	now := i.now()
	expiresAt := now.Add(i.ttl)

	claims := AccessClaims{
		RegisteredClaims: jwt.RegisteredClaims{
			Subject:   userID.String(),
			Issuer:    i.issuer,
			IssuedAt:  jwt.NewNumericDate(now),
			ExpiresAt: jwt.NewNumericDate(expiresAt),
			ID:        uuid.NewString(),
		},
	}

	signed, err := jwt.NewWithClaims(jwt.SigningMethodHS256, claims).SignedString(i.secret)
	if err != nil {
		return AccessToken{}, oops.Code("ACCESS_TOKEN_SIGN_FAILED").
			With("user_id", userID.String()).
			Wrap(err)
	}
	return AccessToken{Token: signed, ExpiresAt: expiresAt}, nil
}

// Parse verifies a token's signature and timing claims and returns its claims.
func (i *AccessTokenIssuer) Parse(token string) (*AccessClaims, error) {
	if token == "" {
		return nil, oops.Code(CodeAccessTokenInvalid).Errorf("access token cannot be empty")
	}

	parserOpts := []jwt.ParserOption{
		jwt.WithValidMethods([]string{jwt.SigningMethodHS256.Alg()}),
		jwt.WithTimeFunc(i.now),
		jwt.WithIssuedAt(),
		jwt.WithExpirationRequired(),
	}
	if i.issuer != "" {
		parserOpts = append(parserOpts, jwt.WithIssuer(i.issuer))
	}

	claims := &AccessClaims{}
	_, err := jwt.ParseWithClaims(token, claims, func(t *jwt.Token) (any, error) {
		if _, ok := t.Method.(*jwt.SigningMethodHMAC); !ok {
			return nil, oops.Errorf("unexpected signing method: %v", t.Header["alg"])
		}
		return i.secret, nil
	}, parserOpts...)
	if err != nil {
		if errors.Is(err, jwt.ErrTokenExpired) {
			return nil, oops.Code(CodeAccessTokenExpired).Wrap(err)
		}
		return nil, oops.Code(CodeAccessTokenInvalid).Wrap(err)
	}
	if claims.Subject == "" {
		return nil, oops.Code(CodeAccessTokenInvalid).Errorf("access token has no subject")
	}
	return claims, nil
}

// Compile-time interface check.
var _ AccessTokenSigner = (*AccessTokenIssuer)(nil)
