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

// Email verification messages.
const (
	MsgEmailVerified      = "Email verified successfully"
	MsgVerificationMasked = "If the email exists and is not verified, a verification email has been sent"
	MsgAlreadyVerified    = "Email is already verified"
	MsgVerificationResent = "Verification email has been sent"
)

// EmailVerificationService issues and redeems email verification tokens.
type EmailVerificationService struct {
	users    UserRepository
	flow     oneTimeFlow
	notifier Notifier
	audit    AuditRecorder
	logger   *slog.Logger
}

// NewEmailVerificationService creates a new EmailVerificationService.
func NewEmailVerificationService(
	users UserRepository,
	verifications OneTimeTokenRepository,
	opts ...Option,
) (*EmailVerificationService, error) {
	if users == nil {
		return nil, oops.Errorf("user repository is required")
	}
	if verifications == nil {
		return nil, oops.Errorf("verification token repository is required")
	}
	if err := checkKind(verifications, KindEmailVerification); err != nil {
		return nil, err
	}

	o := buildOptions(opts)
	return &EmailVerificationService{
		users:    users,
		flow:     newOneTimeFlow(verifications, KindEmailVerification, o),
		notifier: o.notifier,
		audit:    o.audit,
		logger:   o.logger,
	}, nil
}

// CreateToken stores a verification token for email and returns the
// plaintext. The email does not need to belong to a user.
func (s *EmailVerificationService) CreateToken(ctx context.Context, email string) (string, error) {
	token, _, err := s.flow.issue(ctx, email)
	return token, err
}

// SendVerification creates a token and hands it to the notifier. Delivery
// failures are logged and do not fail the call.
func (s *EmailVerificationService) SendVerification(ctx context.Context, email string) error {
	ctx, span := tracer.Start(ctx, "auth.EmailVerification.Send")
	defer span.End()

	token, record, err := s.flow.issue(ctx, email)
	if err != nil {
		return err
	}
	if err := s.notifier.SendEmailVerification(ctx, email, token, record.ExpiresAt); err != nil {
		errutil.LogError(s.logger, "verification link not delivered", oops.
			With("token_hash", shortHash(record.TokenHash)).
			Wrap(err))
	}
	return nil
}

// VerifyEmail consumes a verification token and marks its account verified.
func (s *EmailVerificationService) VerifyEmail(ctx context.Context, token string) (OperationResult, error) {
	ctx, span := tracer.Start(ctx, "auth.EmailVerification.Verify")
	defer span.End()

	record, err := s.flow.lookup(ctx, token)
	if err != nil {
		return OperationResult{}, err
	}
	if record == nil {
		return OperationResult{}, oops.Code(CodeVerifyTokenInvalid).Errorf("verification token unknown or used")
	}
	if record.IsExpiredAt(s.flow.now()) {
		return OperationResult{}, oops.Code(CodeVerifyTokenExpired).
			With("expires_at", record.ExpiresAt).
			Errorf("verification token expired")
	}

	user, err := s.users.GetByEmail(ctx, record.Email)
	if err != nil {
		if errors.Is(err, ErrNotFound) {
			return OperationResult{}, oops.Code(CodeTokenOwnerMissing).Errorf("verification token owner no longer exists")
		}
		return OperationResult{}, oops.Code("VERIFY_EMAIL_FAILED").
			With("operation", "get user by email").
			Wrap(err)
	}

	consumed, err := s.flow.consume(ctx, record)
	if err != nil {
		return OperationResult{}, err
	}
	if !consumed {
		return OperationResult{}, oops.Code(CodeVerifyTokenInvalid).Errorf("verification token already used")
	}

	if err := s.users.MarkEmailVerified(ctx, user.ID); err != nil {
		s.audit.Record(ctx, auditEvent(ActionEmailVerify, user.ID, err))
		return OperationResult{}, oops.Code("VERIFY_EMAIL_FAILED").
			With("operation", "mark email verified").
			With("user_id", user.ID.String()).
			Wrap(err)
	}
	s.audit.Record(ctx, auditEvent(ActionEmailVerify, user.ID, nil))

	return OperationResult{Success: true, Message: MsgEmailVerified}, nil
}

// ResendVerification sends a new verification token to an unverified
// account. Unknown emails get the same answer as a successful send would
// suggest; an already verified account is told so.
func (s *EmailVerificationService) ResendVerification(ctx context.Context, email string) (OperationResult, error) {
	user, err := s.users.GetByEmail(ctx, email)
	if err != nil {
		if errors.Is(err, ErrNotFound) {
			return OperationResult{Success: true, Message: MsgVerificationMasked}, nil
		}
		return OperationResult{}, oops.Code("VERIFY_RESEND_FAILED").
			With("operation", "get user by email").
			Wrap(err)
	}
	if user.EmailVerified {
		return OperationResult{Success: false, Message: MsgAlreadyVerified}, nil
	}

	if err := s.SendVerification(ctx, user.Email); err != nil {
		return OperationResult{}, err
	}
	return OperationResult{Success: true, Message: MsgVerificationResent}, nil
}

// PruneExpired deletes verification tokens that expired before now.
func (s *EmailVerificationService) PruneExpired(ctx context.Context) (int64, error) {
	return s.flow.prune(ctx)
}
