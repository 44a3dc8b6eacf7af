// SPDX-License-Identifier: Apache-2.0
// Copyright 2026 HoloMUSH Contributors

package auth

import (
	"context"
	"errors"
	"log/slog"

	"github.com/samber/oops"

	"github.com/holomush/authority/pkg/errutil"
)

// Password reset messages.
const (
	MsgResetRequested = "If the email exists, a password reset link has been sent"
	MsgResetDone      = "Password reset successfully"
)

// PasswordResetService handles password reset operations.
type PasswordResetService struct {
	users    UserRepository
	refresh  RefreshTokenRepository
	hasher   PasswordHasher
	flow     oneTimeFlow
	notifier Notifier
	audit    AuditRecorder
	logger   *slog.Logger
}

// NewPasswordResetService creates a new PasswordResetService.
func NewPasswordResetService(
	users UserRepository,
	resets OneTimeTokenRepository,
	refresh RefreshTokenRepository,
	hasher PasswordHasher,
	opts ...Option,
) (*PasswordResetService, error) {
	if users == nil {
		return nil, oops.Errorf("user repository is required")
	}
	if resets == nil {
		return nil, oops.Errorf("reset token repository is required")
	}
	if refresh == nil {
		return nil, oops.Errorf("refresh token repository is required")
	}
	if hasher == nil {
		return nil, oops.Errorf("password hasher is required")
	}
	if err := checkKind(resets, KindPasswordReset); err != nil {
		return nil, err
	}

	o := buildOptions(opts)
	return &PasswordResetService{
		users:    users,
		refresh:  refresh,
		hasher:   hasher,
		flow:     newOneTimeFlow(resets, KindPasswordReset, o),
		notifier: o.notifier,
		audit:    o.audit,
		logger:   o.logger,
	}, nil
}

// CreateToken stores a reset token for a registered email and returns the
// plaintext. Fails with USER_EMAIL_UNKNOWN when no user has the email.
func (s *PasswordResetService) CreateToken(ctx context.Context, email string) (string, error) {
	token, _, err := s.createToken(ctx, email)
	return token, err
}

func (s *PasswordResetService) createToken(ctx context.Context, email string) (string, *OneTimeToken, error) {
	ctx, span := tracer.Start(ctx, "auth.PasswordReset.CreateToken")
	defer span.End()

	if _, err := s.users.GetByEmail(ctx, email); err != nil {
		if errors.Is(err, ErrNotFound) {
			return "", nil, oops.Code(CodeEmailUnknown).Errorf("no user with this email")
		}
		return "", nil, oops.Code("RESET_REQUEST_FAILED").
			With("operation", "get user by email").
			Wrap(err)
	}
	return s.flow.issue(ctx, email)
}

// RequestReset creates and delivers a reset token. The result never
// reveals whether the email is registered.
func (s *PasswordResetService) RequestReset(ctx context.Context, email string) (OperationResult, error) {
	result := OperationResult{Success: true, Message: MsgResetRequested}

	token, record, err := s.createToken(ctx, email)
	if err != nil {
		if CodeOf(err) == CodeEmailUnknown {
			s.logger.DebugContext(ctx, "password reset requested for unknown email")
			return result, nil
		}
		return OperationResult{}, err
	}

	if err := s.notifier.SendPasswordReset(ctx, email, token, record.ExpiresAt); err != nil {
		errutil.LogError(s.logger, "password reset link not delivered", oops.
			With("token_hash", shortHash(record.TokenHash)).
			Wrap(err))
	}
	return result, nil
}

// ValidateToken reports whether token is an unused, unexpired reset token
// and returns the email it was issued for. It never modifies the token.
func (s *PasswordResetService) ValidateToken(ctx context.Context, token string) (string, bool, error) {
	record, err := s.flow.lookup(ctx, token)
	if err != nil {
		return "", false, err
	}
	if record == nil || record.IsExpiredAt(s.flow.now()) {
		return "", false, nil
	}
	return record.Email, true, nil
}

// ResetPassword consumes a reset token, stores the new password and revokes
// every refresh token of the account.
func (s *PasswordResetService) ResetPassword(ctx context.Context, token, newPassword string) (OperationResult, error) {
	ctx, span := tracer.Start(ctx, "auth.PasswordReset.ResetPassword")
	defer span.End()

	email, ok, err := s.ValidateToken(ctx, token)
	if err != nil {
		return OperationResult{}, err
	}
	if !ok {
		return OperationResult{}, oops.Code(CodeResetTokenInvalid).Errorf("reset token unknown, used or expired")
	}

	user, err := s.users.GetByEmail(ctx, email)
	if err != nil {
		if errors.Is(err, ErrNotFound) {
			return OperationResult{}, oops.Code(CodeTokenOwnerMissing).Errorf("reset token owner no longer exists")
		}
		return OperationResult{}, oops.Code("RESET_PASSWORD_FAILED").
			With("operation", "get user by email").
			Wrap(err)
	}

	// Hash before consuming so a rejected password leaves the token usable.
	hashed, err := s.hasher.Hash(newPassword)
	if err != nil {
		return OperationResult{}, oops.Code("RESET_PASSWORD_FAILED").
			With("operation", "hash password").
			Wrap(err)
	}

	consumed, err := s.flow.consume(ctx, &OneTimeToken{TokenHash: HashOpaqueToken(token)})
	if err != nil {
		return OperationResult{}, err
	}
	if !consumed {
		return OperationResult{}, oops.Code(CodeResetTokenInvalid).Errorf("reset token already used")
	}

	if err := s.users.UpdatePassword(ctx, user.ID, hashed); err != nil {
		s.audit.Record(ctx, auditEvent(ActionPasswordReset, user.ID, err))
		return OperationResult{}, oops.Code("RESET_PASSWORD_FAILED").
			With("operation", "update password").
			With("user_id", user.ID.String()).
			Wrap(err)
	}

	revoked, err := s.refresh.RevokeAllForUser(ctx, user.ID)
	if err != nil {
		return OperationResult{}, oops.Code("RESET_PASSWORD_FAILED").
			With("operation", "revoke refresh tokens").
			With("user_id", user.ID.String()).
			Wrap(err)
	}

	entry := auditEvent(ActionPasswordReset, user.ID, nil)
	entry.Metadata = map[string]any{"sessions_revoked": revoked}
	s.audit.Record(ctx, entry)

	return OperationResult{Success: true, Message: MsgResetDone}, nil
}

// PruneExpired deletes reset tokens that expired before now.
func (s *PasswordResetService) PruneExpired(ctx context.Context) (int64, error) {
	return s.flow.prune(ctx)
}
