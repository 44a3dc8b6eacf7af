// SPDX-License-Identifier: Apache-2.0
// Copyright 2026 HoloMUSH Contributors

package auth

import (
	"context"
	"strings"
	"time"

	"github.com/oklog/ulid/v2"
	"github.com/samber/oops"
)

// MaxEmailLength is the longest email address accepted.
const MaxEmailLength = 254

// Role is a user's authorization role.
type Role string

// Roles.
const (
	RoleAdmin Role = "admin"
	RoleUser  Role = "user"
)

// Valid reports whether r is a known role.
func (r Role) Valid() bool {
	return r == RoleAdmin || r == RoleUser
}

// User represents an account. Email is unique and compared as stored.
type User struct {
	ID            ulid.ULID
	Email         string
	PasswordHash  *string // nil until a password is set
	EmailVerified bool
	Active        bool
	Role          Role
	FirstName     *string
	LastName      *string
	Avatar        *string
	LastLoginAt   *time.Time
	CreatedAt     time.Time
	UpdatedAt     time.Time
}

// NewUser creates a validated, active, unverified User.
// passwordHash may be nil for accounts without a password.
func NewUser(email string, passwordHash *string, role Role) (*User, error) {
	if err := ValidateEmail(email); err != nil {
		return nil, err
	}
	if role == "" {
		role = RoleUser
	}
	if !role.Valid() {
		return nil, oops.Code(CodeUserInvalid).
			With("role", string(role)).
			Errorf("role must be admin or user")
	}

	now := time.Now()
	return &User{
		ID:           ulid.Make(),
		Email:        email,
		PasswordHash: passwordHash,
		Active:       true,
		Role:         role,
		CreatedAt:    now,
		UpdatedAt:    now,
	}, nil
}

// ValidateEmail performs a structural check of an email address.
func ValidateEmail(email string) error {
	if strings.TrimSpace(email) == "" {
		return oops.Code(CodeUserInvalid).Errorf("email cannot be empty")
	}
	if len(email) > MaxEmailLength {
		return oops.Code(CodeUserInvalid).
			With("max", MaxEmailLength).
			Errorf("email must be at most %d characters", MaxEmailLength)
	}
	at := strings.LastIndex(email, "@")
	if at < 1 || at == len(email)-1 {
		return oops.Code(CodeUserInvalid).Errorf("email must be a valid address")
	}
	return nil
}

// IsAdmin reports whether the user has the admin role.
func (u *User) IsAdmin() bool {
	return u.Role == RoleAdmin
}

// StoredHash returns the password hash, or "" when none is set.
func (u *User) StoredHash() string {
	if u.PasswordHash == nil {
		return ""
	}
	return *u.PasswordHash
}

// PublicUser is the projection of a User safe to return to clients.
// It never carries the password hash.
type PublicUser struct {
	ID              string     `json:"id"`
	Email           string     `json:"email"`
	FirstName       *string    `json:"firstName,omitempty"`
	LastName        *string    `json:"lastName,omitempty"`
	Avatar          *string    `json:"avatar,omitempty"`
	IsEmailVerified bool       `json:"isEmailVerified"`
	IsActive        bool       `json:"isActive"`
	Role            Role       `json:"role"`
	LastLoginAt     *time.Time `json:"lastLoginAt,omitempty"`
	CreatedAt       time.Time  `json:"createdAt"`
	UpdatedAt       time.Time  `json:"updatedAt"`
}

// Public returns the sanitized projection of u.
func (u *User) Public() PublicUser {
	return PublicUser{
		ID:              u.ID.String(),
		Email:           u.Email,
		FirstName:       u.FirstName,
		LastName:        u.LastName,
		Avatar:          u.Avatar,
		IsEmailVerified: u.EmailVerified,
		IsActive:        u.Active,
		Role:            u.Role,
		LastLoginAt:     u.LastLoginAt,
		CreatedAt:       u.CreatedAt,
		UpdatedAt:       u.UpdatedAt,
	}
}

// Search defaults and limits.
const (
	DefaultPageSize = 10
	MaxPageSize     = 100
)

// UserSortFields lists the fields a user search can be ordered by.
var UserSortFields = []string{"createdAt", "updatedAt", "email", "firstName", "lastName", "lastLoginAt", "role"}

// UserQuery filters, orders and pages a user search. Text filters match
// substrings; nil booleans and an empty role do not filter.
type UserQuery struct {
	Email         string
	FirstName     string
	LastName      string
	Active        *bool
	EmailVerified *bool
	Role          Role
	SortBy        string
	SortAsc       bool
	Page          int
	Limit         int
}

// Normalized returns q with defaults applied and out-of-range values clamped.
func (q UserQuery) Normalized() UserQuery {
	if q.Page < 1 {
		q.Page = 1
	}
	if q.Limit < 1 {
		q.Limit = DefaultPageSize
	}
	if q.Limit > MaxPageSize {
		q.Limit = MaxPageSize
	}
	valid := false
	for _, f := range UserSortFields {
		if q.SortBy == f {
			valid = true
			break
		}
	}
	if !valid {
		q.SortBy = "createdAt"
		q.SortAsc = false
	}
	return q
}

// Offset returns the number of rows to skip for the query's page.
func (q UserQuery) Offset() int {
	return (q.Page - 1) * q.Limit
}

// Page is one page of a paginated listing.
type Page[T any] struct {
	Items     []T `json:"items"`
	Total     int `json:"total"`
	Page      int `json:"page"`
	PageCount int `json:"pageCount"`
	Limit     int `json:"limit"`
}

// NewPage builds a Page, computing the page count from total and limit.
func NewPage[T any](items []T, total, page, limit int) Page[T] {
	pageCount := 0
	if limit > 0 {
		pageCount = (total + limit - 1) / limit
	}
	if items == nil {
		items = []T{}
	}
	return Page[T]{Items: items, Total: total, Page: page, PageCount: pageCount, Limit: limit}
}

// UserRepository manages user persistence.
type UserRepository interface {
	// Create stores a new user. Returns a USER_EMAIL_TAKEN error if the
	// email is already registered.
	Create(ctx context.Context, user *User) error

	// GetByID retrieves a user by ID.
	GetByID(ctx context.Context, id ulid.ULID) (*User, error)

	// GetByEmail retrieves a user by exact email.
	// Returns ErrNotFound if no user has the given email.
	GetByEmail(ctx context.Context, email string) (*User, error)

	// Update writes the mutable profile, role, status and email fields.
	Update(ctx context.Context, user *User) error

	// UpdatePassword updates only the password hash.
	UpdatePassword(ctx context.Context, id ulid.ULID, passwordHash string) error

	// UpdateLastLogin records a successful login time.
	UpdateLastLogin(ctx context.Context, id ulid.ULID, at time.Time) error

	// MarkEmailVerified sets the email-verified flag.
	MarkEmailVerified(ctx context.Context, id ulid.ULID) error

	// Delete removes a user and, by cascade, its refresh tokens.
	Delete(ctx context.Context, id ulid.ULID) error

	// Count returns the number of users.
	Count(ctx context.Context) (int64, error)

	// Search returns one page of users matching q and the total match count.
	Search(ctx context.Context, q UserQuery) ([]*User, int64, error)
}
