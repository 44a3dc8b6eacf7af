// SPDX-License-Identifier: Apache-2.0
// Copyright 2026 HoloMUSH Contributors

package auth

import (
	"context"
	"errors"

	"github.com/samber/oops"
	"go.opentelemetry.io/otel/attribute"
)

// Strategy names the way a request proved its identity.
type Strategy string

// Strategies.
const (
	StrategyLocal  Strategy = "local"
	StrategyBearer Strategy = "bearer"
	StrategyBasic  Strategy = "basic"
)

// Credentials are what a request presented. Local and basic use Email and
// Password; bearer uses Token.
type Credentials struct {
	Strategy Strategy
	Email    string
	Password string
	Token    string
}

// Principal is an authenticated user.
type Principal struct {
	User     *User
	Public   PublicUser
	Strategy Strategy
}

// AccessTokenParser verifies access tokens.
type AccessTokenParser interface {
	Parse(token string) (*AccessClaims, error)
}

// Authenticator checks an email and password.
type Authenticator interface {
	Authenticate(ctx context.Context, email, password string) (*User, error)
}

// CredentialResolver turns presented credentials into a Principal.
type CredentialResolver struct {
	authn  Authenticator
	parser AccessTokenParser
	users  UserRepository
}

// NewCredentialResolver creates a CredentialResolver. users is consulted for
// bearer tokens and may be a caching repository.
func NewCredentialResolver(authn Authenticator, parser AccessTokenParser, users UserRepository) (*CredentialResolver, error) {
	if authn == nil {
		return nil, oops.Errorf("authenticator is required")
	}
	if parser == nil {
		return nil, oops.Errorf("access token parser is required")
	}
	if users == nil {
		return nil, oops.Errorf("user repository is required")
	}
	return &CredentialResolver{authn: authn, parser: parser, users: users}, nil
}

func principal(user *User, strategy Strategy) *Principal {
	return &Principal{User: user, Public: user.Public(), Strategy: strategy}
}

// Resolve dispatches on c.Strategy.
func (r *CredentialResolver) Resolve(ctx context.Context, c Credentials) (*Principal, error) {
	switch c.Strategy {
	case StrategyLocal:
		return r.ResolvePassword(ctx, c.Email, c.Password)
	case StrategyBasic:
		return r.ResolveBasic(ctx, c.Email, c.Password)
	case StrategyBearer:
		return r.ResolveToken(ctx, c.Token)
	default:
		return nil, oops.Code(CodeInvalidCredentials).
			With("strategy", string(c.Strategy)).
			Errorf("unsupported authentication strategy")
	}
}

// ResolvePassword authenticates an email and password from a login form.
func (r *CredentialResolver) ResolvePassword(ctx context.Context, email, password string) (*Principal, error) {
	return r.resolveSecret(ctx, StrategyLocal, email, password)
}

// ResolveBasic authenticates HTTP Basic credentials.
func (r *CredentialResolver) ResolveBasic(ctx context.Context, email, password string) (*Principal, error) {
	return r.resolveSecret(ctx, StrategyBasic, email, password)
}

func (r *CredentialResolver) resolveSecret(ctx context.Context, strategy Strategy, email, password string) (*Principal, error) {
	ctx, span := tracer.Start(ctx, "auth.Resolve")
	defer span.End()
	span.SetAttributes(attribute.String("auth.strategy", string(strategy)))

	if email == "" || password == "" {
		return nil, invalidCredentials()
	}
	user, err := r.authn.Authenticate(ctx, email, password)
	if err != nil {
		return nil, err
	}
	return principal(user, strategy), nil
}

// ResolveToken verifies an access token and resolves its subject.
func (r *CredentialResolver) ResolveToken(ctx context.Context, token string) (*Principal, error) {
	claims, err := r.parser.Parse(token)
	if err != nil {
		return nil, err
	}
	return r.ResolveBearer(ctx, claims)
}

// ResolveBearer resolves the user named by already verified claims. A user
// that no longer exists or is inactive is rejected.
func (r *CredentialResolver) ResolveBearer(ctx context.Context, claims *AccessClaims) (*Principal, error) {
	ctx, span := tracer.Start(ctx, "auth.Resolve")
	defer span.End()
	span.SetAttributes(attribute.String("auth.strategy", string(StrategyBearer)))

	id, err := claims.UserID()
	if err != nil {
		return nil, err
	}

	user, err := r.users.GetByID(ctx, id)
	if err != nil {
		if errors.Is(err, ErrNotFound) {
			return nil, oops.Code(CodeUserNotFoundForToken).
				With("user_id", id.String()).
				Errorf("token subject no longer exists")
		}
		return nil, oops.Code("AUTH_RESOLVE_FAILED").
			With("operation", "get user by id").
			Wrap(err)
	}
	if !user.Active {
		return nil, oops.Code(CodeUserNotFoundForToken).
			With("user_id", id.String()).
			Errorf("token subject is inactive")
	}
	return principal(user, StrategyBearer), nil
}

var (
	_ Authenticator      = (*SessionService)(nil)
	_ AccessTokenParser  = (*AccessTokenIssuer)(nil)
	_ VerificationSender = (*EmailVerificationService)(nil)
)
