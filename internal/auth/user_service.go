// SPDX-License-Identifier: Apache-2.0
// Copyright 2026 HoloMUSH Contributors

package auth

import (
	"context"
	"errors"
	"log/slog"

	"github.com/oklog/ulid/v2"
	"github.com/samber/oops"

	"github.com/holomush/authority/pkg/errutil"
)

// User management messages.
const (
	MsgPasswordChanged  = "Password changed successfully"
	MsgAdminOnlyStatus  = "Only administrators can change account status"
	MsgAdminOnlyProfile = "Only administrators can view other users"
)

// VerificationSender starts email verification for an address.
type VerificationSender interface {
	SendVerification(ctx context.Context, email string) error
}

// RegisterInput is the data needed to create an account.
type RegisterInput struct {
	Email     string
	Password  string
	FirstName *string
	LastName  *string
	Role      Role
}

// UpdateInput lists the fields to change. Nil fields are left alone.
type UpdateInput struct {
	Email     *string
	FirstName *string
	LastName  *string
	Avatar    *string
	Active    *bool
	Password  *string
}

// UserService manages accounts on behalf of an authenticated actor.
type UserService struct {
	users    UserRepository
	refresh  RefreshTokenRepository
	hasher   PasswordHasher
	verifier VerificationSender
	audit    AuditRecorder
	logger   *slog.Logger
}

// NewUserService creates a UserService. verifier may be nil, in which case
// no verification is started on registration.
func NewUserService(
	users UserRepository,
	refresh RefreshTokenRepository,
	hasher PasswordHasher,
	verifier VerificationSender,
	opts ...Option,
) (*UserService, error) {
	if users == nil {
		return nil, oops.Errorf("user repository is required")
	}
	if refresh == nil {
		return nil, oops.Errorf("refresh token repository is required")
	}
	if hasher == nil {
		return nil, oops.Errorf("password hasher is required")
	}

	o := buildOptions(opts)
	return &UserService{
		users:    users,
		refresh:  refresh,
		hasher:   hasher,
		verifier: verifier,
		audit:    o.audit,
		logger:   o.logger,
	}, nil
}

func forbidden(msg string) error {
	return oops.Code(CodeUserForbidden).New(msg)
}

func userNotFound(id ulid.ULID) error {
	return oops.Code(CodeUserNotFound).With("user_id", id.String()).Errorf("user not found")
}

// preparePassword hashes a plaintext password. Values that already look
// like a hash are stored as given.
func (s *UserService) preparePassword(password string) (string, error) {
	if s.hasher.LooksHashed(password) {
		return password, nil
	}
	return s.hasher.Hash(password)
}

// Count returns the number of registered users.
func (s *UserService) Count(ctx context.Context) (int64, error) {
	n, err := s.users.Count(ctx)
	if err != nil {
		return 0, oops.Code("USER_COUNT_FAILED").Wrap(err)
	}
	return n, nil
}

// Register creates an account. The first account ever created is an admin
// and needs no actor; after that only admins may register users.
func (s *UserService) Register(ctx context.Context, actor *User, in RegisterInput) (*User, error) {
	ctx, span := tracer.Start(ctx, "auth.User.Register")
	defer span.End()

	count, err := s.Count(ctx)
	if err != nil {
		return nil, err
	}
	if count > 0 && (actor == nil || !actor.IsAdmin()) {
		return nil, forbidden(MsgAdminOnlyRegister)
	}

	if _, err := s.users.GetByEmail(ctx, in.Email); err == nil {
		return nil, oops.Code(CodeEmailTaken).With("email", in.Email).Errorf("email already registered")
	} else if !errors.Is(err, ErrNotFound) {
		return nil, oops.Code("USER_REGISTER_FAILED").
			With("operation", "get user by email").
			Wrap(err)
	}

	role := in.Role
	switch {
	case count == 0:
		role = RoleAdmin
	case role == "":
		role = RoleUser
	}

	var passwordHash *string
	if in.Password != "" {
		hashed, err := s.preparePassword(in.Password)
		if err != nil {
			return nil, oops.Code("USER_REGISTER_FAILED").
				With("operation", "hash password").
				Wrap(err)
		}
		passwordHash = &hashed
	}

	user, err := NewUser(in.Email, passwordHash, role)
	if err != nil {
		return nil, err
	}
	user.FirstName = in.FirstName
	user.LastName = in.LastName

	if err := s.users.Create(ctx, user); err != nil {
		return nil, oops.Code("USER_REGISTER_FAILED").
			With("operation", "create user").
			Wrap(err)
	}

	if s.verifier != nil {
		if err := s.verifier.SendVerification(ctx, user.Email); err != nil {
			errutil.LogError(s.logger, "verification not started for new user", oops.
				With("user_id", user.ID.String()).
				Wrap(err))
		}
	}

	entry := auditEvent(ActionRegister, user.ID, nil)
	entry.Metadata = map[string]any{"role": string(user.Role), "first_user": count == 0}
	s.audit.Record(ctx, entry)

	s.logger.InfoContext(ctx, "user registered", "user_id", user.ID.String(), "role", string(user.Role))
	return user, nil
}

// Get returns a user by id.
func (s *UserService) Get(ctx context.Context, id ulid.ULID) (*User, error) {
	user, err := s.users.GetByID(ctx, id)
	if err != nil {
		if errors.Is(err, ErrNotFound) {
			return nil, userNotFound(id)
		}
		return nil, oops.Code("USER_GET_FAILED").With("user_id", id.String()).Wrap(err)
	}
	return user, nil
}

// View returns a user as seen by actor: anyone may view themselves, only
// admins may view others.
func (s *UserService) View(ctx context.Context, actor *User, id ulid.ULID) (*User, error) {
	if actor.ID != id && !actor.IsAdmin() {
		return nil, forbidden(MsgAdminOnlyProfile)
	}
	return s.Get(ctx, id)
}

// Search returns one page of users. Admin only.
func (s *UserService) Search(ctx context.Context, actor *User, q UserQuery) (Page[PublicUser], error) {
	ctx, span := tracer.Start(ctx, "auth.User.Search")
	defer span.End()

	if actor == nil || !actor.IsAdmin() {
		return Page[PublicUser]{}, forbidden(MsgAdminOnlyList)
	}

	q = q.Normalized()
	users, total, err := s.users.Search(ctx, q)
	if err != nil {
		return Page[PublicUser]{}, oops.Code("USER_SEARCH_FAILED").Wrap(err)
	}

	items := make([]PublicUser, 0, len(users))
	for _, u := range users {
		items = append(items, u.Public())
	}
	return NewPage(items, int(total), q.Page, q.Limit), nil
}

// Update changes a user's profile. Users may update themselves; admins may
// update anyone but cannot change another user's email. Only admins may
// change the active flag.
func (s *UserService) Update(ctx context.Context, actor *User, id ulid.ULID, in UpdateInput) (*User, error) {
	ctx, span := tracer.Start(ctx, "auth.User.Update")
	defer span.End()

	target, err := s.Get(ctx, id)
	if err != nil {
		return nil, err
	}

	self := actor.ID == id
	if !self && !actor.IsAdmin() {
		return nil, forbidden(MsgOwnProfileOnly)
	}
	if !self {
		in.Email = nil
	}
	if in.Active != nil && *in.Active != target.Active && !actor.IsAdmin() {
		return nil, forbidden(MsgAdminOnlyStatus)
	}

	if in.Email != nil && *in.Email != target.Email {
		if err := ValidateEmail(*in.Email); err != nil {
			return nil, err
		}
		target.Email = *in.Email
	}
	if in.FirstName != nil {
		target.FirstName = in.FirstName
	}
	if in.LastName != nil {
		target.LastName = in.LastName
	}
	if in.Avatar != nil {
		target.Avatar = in.Avatar
	}

	var statusAction AuditAction
	if in.Active != nil && *in.Active != target.Active {
		target.Active = *in.Active
		statusAction = ActionAccountUnlock
		if !target.Active {
			statusAction = ActionAccountLock
		}
	}

	if err := s.users.Update(ctx, target); err != nil {
		return nil, oops.Code("USER_UPDATE_FAILED").
			With("user_id", id.String()).
			Wrap(err)
	}

	if in.Password != nil && *in.Password != "" {
		hashed, err := s.preparePassword(*in.Password)
		if err != nil {
			return nil, oops.Code("USER_UPDATE_FAILED").
				With("operation", "hash password").
				Wrap(err)
		}
		if err := s.users.UpdatePassword(ctx, id, hashed); err != nil {
			return nil, oops.Code("USER_UPDATE_FAILED").
				With("operation", "update password").
				With("user_id", id.String()).
				Wrap(err)
		}
		target.PasswordHash = &hashed
		s.audit.Record(ctx, auditEvent(ActionPasswordChange, id, nil))
	}

	if statusAction != "" {
		entry := auditEvent(statusAction, id, nil)
		entry.Metadata = map[string]any{"actor_id": actor.ID.String()}
		s.audit.Record(ctx, entry)
		if !target.Active {
			if _, err := s.refresh.RevokeAllForUser(ctx, id); err != nil {
				s.logger.WarnContext(ctx, "sessions of locked account not revoked",
					"user_id", id.String(), "error", err)
			}
		}
	}

	return target, nil
}

// ChangePassword replaces the actor's password after checking the current
// one, then revokes all of the actor's refresh tokens.
func (s *UserService) ChangePassword(ctx context.Context, actor *User, current, next string) (OperationResult, error) {
	ctx, span := tracer.Start(ctx, "auth.User.ChangePassword")
	defer span.End()

	user, err := s.Get(ctx, actor.ID)
	if err != nil {
		return OperationResult{}, err
	}
	// Id lookups may be served from a cache without the hash.
	creds, err := s.users.GetByEmail(ctx, user.Email)
	if err != nil {
		if errors.Is(err, ErrNotFound) {
			return OperationResult{}, userNotFound(user.ID)
		}
		return OperationResult{}, oops.Code("USER_PASSWORD_CHANGE_FAILED").
			With("operation", "get user by email").
			Wrap(err)
	}

	ok, err := s.hasher.Verify(current, creds.StoredHash())
	if err != nil {
		return OperationResult{}, oops.Code("USER_PASSWORD_CHANGE_FAILED").
			With("operation", "verify password").
			Wrap(err)
	}
	if !ok {
		s.audit.Record(ctx, auditEvent(ActionPasswordChange, user.ID, errors.New(MsgWrongPassword)))
		return OperationResult{}, oops.Code(CodeWrongPassword).New(MsgWrongPassword)
	}

	hashed, err := s.hasher.Hash(next)
	if err != nil {
		return OperationResult{}, oops.Code("USER_PASSWORD_CHANGE_FAILED").
			With("operation", "hash password").
			Wrap(err)
	}
	if err := s.users.UpdatePassword(ctx, user.ID, hashed); err != nil {
		return OperationResult{}, oops.Code("USER_PASSWORD_CHANGE_FAILED").
			With("operation", "update password").
			Wrap(err)
	}
	if _, err := s.refresh.RevokeAllForUser(ctx, user.ID); err != nil {
		return OperationResult{}, oops.Code("USER_PASSWORD_CHANGE_FAILED").
			With("operation", "revoke refresh tokens").
			Wrap(err)
	}

	s.audit.Record(ctx, auditEvent(ActionPasswordChange, user.ID, nil))
	return OperationResult{Success: true, Message: MsgPasswordChanged}, nil
}

// Delete removes a user. Admin only, and never the actor's own account.
// The user's refresh tokens go with it.
func (s *UserService) Delete(ctx context.Context, actor *User, id ulid.ULID) (bool, error) {
	ctx, span := tracer.Start(ctx, "auth.User.Delete")
	defer span.End()

	if actor == nil || !actor.IsAdmin() {
		return false, forbidden(MsgAdminOnlyDelete)
	}
	if _, err := s.Get(ctx, id); err != nil {
		return false, err
	}
	if actor.ID == id {
		return false, oops.Code(CodeUserSelfDelete).Errorf("cannot delete own account")
	}

	if err := s.users.Delete(ctx, id); err != nil {
		if errors.Is(err, ErrNotFound) {
			return false, nil
		}
		return false, oops.Code("USER_DELETE_FAILED").
			With("user_id", id.String()).
			Wrap(err)
	}
	s.logger.InfoContext(ctx, "user deleted", "user_id", id.String(), "actor_id", actor.ID.String())
	return true, nil
}
