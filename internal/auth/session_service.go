// SPDX-License-Identifier: Apache-2.0
// Copyright 2026 HoloMUSH Contributors

package auth

import (
	"context"
	"errors"
	"log/slog"
	"sync"
	"time"

	"github.com/oklog/ulid/v2"
	"github.com/samber/oops"
	"go.opentelemetry.io/otel/attribute"
	"golang.org/x/crypto/bcrypt"

	"github.com/holomush/authority/pkg/errutil"
)

// dummyHash is verified against when no account matches, so unknown
// emails take as long as wrong passwords.
var dummyHash = sync.OnceValue(func() string {
	h, err := bcrypt.GenerateFromPassword([]byte("authority-timing-equaliser"), DefaultBcryptCost)
	if err != nil {
		return ""
	}
	return string(h)
})

// LoginResult carries the credentials issued by a login or refresh.
type LoginResult struct {
	AccessToken      string     `json:"accessToken"`
	AccessExpiresAt  time.Time  `json:"accessTokenExpiresAt"`
	RefreshToken     string     `json:"refreshToken"`
	RefreshExpiresAt time.Time  `json:"refreshTokenExpiresAt"`
	User             PublicUser `json:"user"`
}

// Session is the client-facing view of an active refresh token.
type Session struct {
	ID         string    `json:"id"`
	DeviceInfo string    `json:"deviceInfo,omitempty"`
	IPAddress  string    `json:"ipAddress,omitempty"`
	CreatedAt  time.Time `json:"createdAt"`
	ExpiresAt  time.Time `json:"expiresAt"`
}

// SessionService issues, rotates and revokes session credentials.
type SessionService struct {
	users      UserRepository
	refresh    RefreshTokenRepository
	issuer     AccessTokenSigner
	hasher     PasswordHasher
	refreshTTL time.Duration
	audit      AuditRecorder
	logger     *slog.Logger
	now        func() time.Time
}

// NewSessionService creates a SessionService.
func NewSessionService(
	users UserRepository,
	refresh RefreshTokenRepository,
	issuer AccessTokenSigner,
	hasher PasswordHasher,
	opts ...Option,
) (*SessionService, error) {
	if users == nil {
		return nil, oops.Errorf("user repository is required")
	}
	if refresh == nil {
		return nil, oops.Errorf("refresh token repository is required")
	}
	if issuer == nil {
		return nil, oops.Errorf("access token issuer is required")
	}
	if hasher == nil {
		return nil, oops.Errorf("password hasher is required")
	}

	o := buildOptions(opts)
	return &SessionService{
		users:      users,
		refresh:    refresh,
		issuer:     issuer,
		hasher:     hasher,
		refreshTTL: o.refreshTTL,
		audit:      o.audit,
		logger:     o.logger,
		now:        o.now,
	}, nil
}

// RefreshTTL returns the lifetime of issued refresh tokens.
func (s *SessionService) RefreshTTL() time.Duration {
	return s.refreshTTL
}

// AccessTTL returns the lifetime of issued access tokens.
func (s *SessionService) AccessTTL() time.Duration {
	return s.issuer.TTL()
}

func invalidCredentials() error {
	return oops.Code(CodeInvalidCredentials).Errorf("invalid email or password")
}

// Authenticate checks an email and password. Every failure caused by the
// credentials themselves returns the same AUTH_INVALID_CREDENTIALS error.
func (s *SessionService) Authenticate(ctx context.Context, email, password string) (*User, error) {
	ctx, span := tracer.Start(ctx, "auth.Authenticate")
	defer span.End()

	user, lookupErr := s.users.GetByEmail(ctx, email)

	var target string
	var userExists bool
	switch {
	case lookupErr == nil:
		target = user.StoredHash()
		userExists = target != ""
	case errors.Is(lookupErr, ErrNotFound):
	default:
		return nil, oops.Code("AUTH_LOGIN_FAILED").
			With("operation", "get user by email").
			Wrap(lookupErr)
	}
	if !userExists {
		target = dummyHash()
	}

	// Verify even for unknown users to keep response times uniform.
	valid, verifyErr := s.hasher.Verify(password, target)
	if verifyErr != nil {
		if !userExists {
			return nil, invalidCredentials()
		}
		return nil, oops.Code("AUTH_LOGIN_FAILED").
			With("operation", "verify password").
			With("user_id", user.ID.String()).
			Wrap(verifyErr)
	}
	if !userExists || !valid || !user.Active {
		return nil, invalidCredentials()
	}

	if s.hasher.NeedsUpgrade(target) {
		if newHash, hashErr := s.hasher.Hash(password); hashErr == nil {
			if err := s.users.UpdatePassword(ctx, user.ID, newHash); err != nil {
				s.logger.WarnContext(ctx, "password rehash not stored",
					"user_id", user.ID.String(), "error", err)
			} else {
				user.PasswordHash = &newHash
			}
		}
	}

	span.SetAttributes(attribute.String("user.id", user.ID.String()))
	return user, nil
}

// Login records the login and issues an access token and a refresh token
// bound to the given device.
func (s *SessionService) Login(ctx context.Context, user *User, device DeviceInfo) (*LoginResult, error) {
	ctx, span := tracer.Start(ctx, "auth.Login")
	defer span.End()

	if user == nil {
		return nil, oops.Code("AUTH_LOGIN_FAILED").Errorf("user is required")
	}
	now := s.now()

	if err := s.users.UpdateLastLogin(ctx, user.ID, now); err != nil {
		return nil, oops.Code("AUTH_LOGIN_FAILED").
			With("operation", "update last login").
			With("user_id", user.ID.String()).
			Wrap(err)
	}
	user.LastLoginAt = &now

	access, err := s.issuer.Issue(user.ID)
	if err != nil {
		return nil, oops.Code("AUTH_LOGIN_FAILED").
			With("operation", "issue access token").
			Wrap(err)
	}

	token, hash, err := GenerateOpaqueToken()
	if err != nil {
		return nil, oops.Code("AUTH_LOGIN_FAILED").
			With("operation", "generate refresh token").
			Wrap(err)
	}

	record, err := NewRefreshToken(user.ID, hash, device, now.Add(s.refreshTTL))
	if err != nil {
		return nil, oops.Code("AUTH_LOGIN_FAILED").
			With("operation", "build refresh token").
			Wrap(err)
	}
	record.CreatedAt = now

	if err := s.refresh.Create(ctx, record); err != nil {
		return nil, oops.Code("AUTH_LOGIN_FAILED").
			With("operation", "persist refresh token").
			With("user_id", user.ID.String()).
			Wrap(err)
	}

	entry := auditEvent(ActionLogin, user.ID, nil)
	entry.IPAddress = device.IPAddress
	entry.UserAgent = device.UserAgent
	s.audit.Record(ctx, entry)

	s.logger.DebugContext(ctx, "session issued",
		"user_id", user.ID.String(),
		"refresh_hash", shortHash(hash),
		"ip", device.IPAddress)

	return &LoginResult{
		AccessToken:      access.Token,
		AccessExpiresAt:  access.ExpiresAt,
		RefreshToken:     token,
		RefreshExpiresAt: record.ExpiresAt,
		User:             user.Public(),
	}, nil
}

func invalidRefreshToken(reason string) error {
	return oops.Code(CodeRefreshTokenInvalid).With("reason", reason).Errorf("invalid or expired refresh token")
}

// ValidateRefreshToken returns the owner of an active, unexpired refresh
// token. An expired token is revoked as a side effect.
func (s *SessionService) ValidateRefreshToken(ctx context.Context, token string) (*User, error) {
	ctx, span := tracer.Start(ctx, "auth.ValidateRefreshToken")
	defer span.End()

	if token == "" {
		return nil, invalidRefreshToken("empty")
	}
	hash := HashOpaqueToken(token)

	record, err := s.refresh.GetActiveByTokenHash(ctx, hash)
	if err != nil {
		if errors.Is(err, ErrNotFound) {
			return nil, invalidRefreshToken("unknown or revoked")
		}
		return nil, oops.Code("REFRESH_VALIDATE_FAILED").
			With("operation", "get refresh token").
			Wrap(err)
	}

	if record.IsExpiredAt(s.now()) {
		if err := s.refresh.Revoke(ctx, hash); err != nil && !errors.Is(err, ErrNotFound) {
			s.logger.WarnContext(ctx, "expired refresh token not revoked",
				"refresh_hash", shortHash(hash), "error", err)
		}
		return nil, invalidRefreshToken("expired")
	}

	user, err := s.users.GetByID(ctx, record.UserID)
	if err != nil {
		if errors.Is(err, ErrNotFound) {
			return nil, invalidRefreshToken("owner missing")
		}
		return nil, oops.Code("REFRESH_VALIDATE_FAILED").
			With("operation", "get token owner").
			Wrap(err)
	}
	if !user.Active {
		return nil, invalidRefreshToken("owner inactive")
	}
	return user, nil
}

// Refresh rotates a refresh token. The token must belong to callerID; it is
// revoked before new credentials are issued, so each token refreshes once.
func (s *SessionService) Refresh(ctx context.Context, callerID ulid.ULID, token string, device DeviceInfo) (*LoginResult, error) {
	ctx, span := tracer.Start(ctx, "auth.Refresh")
	defer span.End()

	owner, err := s.ValidateRefreshToken(ctx, token)
	if err != nil {
		return nil, err
	}
	if owner.ID != callerID {
		s.logger.WarnContext(ctx, "refresh token presented by another account",
			"caller_id", callerID.String(), "owner_id", owner.ID.String())
		return nil, oops.Code(CodeRefreshTokenMismatch).
			With("caller_id", callerID.String()).
			Errorf("refresh token does not belong to caller")
	}

	if err := s.refresh.Revoke(ctx, HashOpaqueToken(token)); err != nil {
		if errors.Is(err, ErrNotFound) {
			return nil, invalidRefreshToken("already rotated")
		}
		return nil, oops.Code("REFRESH_ROTATE_FAILED").
			With("operation", "revoke presented token").
			Wrap(err)
	}

	return s.Login(ctx, owner, device)
}

// RevokeRefreshToken revokes one token. Returns false when no active token
// matched.
func (s *SessionService) RevokeRefreshToken(ctx context.Context, token string) (bool, error) {
	if token == "" {
		return false, nil
	}
	err := s.refresh.Revoke(ctx, HashOpaqueToken(token))
	switch {
	case err == nil:
		return true, nil
	case errors.Is(err, ErrNotFound):
		return false, nil
	default:
		return false, oops.Code("REFRESH_REVOKE_FAILED").Wrap(err)
	}
}

// Logout revokes the presented refresh token, all of the user's tokens, or
// both. Storage failures are logged and reported as Success=false.
func (s *SessionService) Logout(ctx context.Context, userID ulid.ULID, token string, all bool) LogoutResult {
	ctx, span := tracer.Start(ctx, "auth.Logout")
	defer span.End()

	success := true
	if token != "" {
		if _, err := s.RevokeRefreshToken(ctx, token); err != nil {
			errutil.LogError(s.logger, "logout: revoke refresh token", err)
			success = false
		}
	}
	if all {
		n, err := s.refresh.RevokeAllForUser(ctx, userID)
		if err != nil {
			errutil.LogError(s.logger, "logout: revoke all refresh tokens", oops.
				With("user_id", userID.String()).
				Wrap(err))
			success = false
		} else {
			s.logger.InfoContext(ctx, "all sessions revoked",
				"user_id", userID.String(), "count", n)
		}
	}

	entry := AuditEntry{
		Action:   ActionLogout,
		UserID:   &userID,
		Success:  success,
		Metadata: map[string]any{"all_devices": all},
	}
	s.audit.Record(ctx, entry)

	return LogoutResult{Success: success}
}

// RevokeAll revokes every refresh token of a user.
func (s *SessionService) RevokeAll(ctx context.Context, userID ulid.ULID) (int64, error) {
	n, err := s.refresh.RevokeAllForUser(ctx, userID)
	if err != nil {
		return 0, oops.Code("REFRESH_REVOKE_FAILED").
			With("user_id", userID.String()).
			Wrap(err)
	}
	return n, nil
}

// ListSessions returns the user's active sessions, newest first.
func (s *SessionService) ListSessions(ctx context.Context, userID ulid.ULID) ([]Session, error) {
	records, err := s.refresh.ListActiveForUser(ctx, userID, s.now())
	if err != nil {
		return nil, oops.Code("SESSION_LIST_FAILED").
			With("user_id", userID.String()).
			Wrap(err)
	}
	sessions := make([]Session, 0, len(records))
	for _, r := range records {
		sessions = append(sessions, Session{
			ID:         r.ID.String(),
			DeviceInfo: r.DeviceInfo,
			IPAddress:  r.IPAddress,
			CreatedAt:  r.CreatedAt,
			ExpiresAt:  r.ExpiresAt,
		})
	}
	return sessions, nil
}

// PruneExpired deletes refresh tokens that expired before now.
func (s *SessionService) PruneExpired(ctx context.Context) (int64, error) {
	n, err := s.refresh.DeleteExpired(ctx, s.now())
	if err != nil {
		return 0, oops.Code("REFRESH_PRUNE_FAILED").Wrap(err)
	}
	return n, nil
}
