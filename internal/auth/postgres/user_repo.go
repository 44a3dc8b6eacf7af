// SPDX-License-Identifier: Apache-2.0
// Copyright 2026 HoloMUSH Contributors

package postgres

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/jackc/pgx/v5"
	"github.com/oklog/ulid/v2"
	"github.com/samber/oops"

	"github.com/holomush/authority/internal/auth"
)

const userColumns = `id, email, password_hash, email_verified, active, role,
		       first_name, last_name, avatar, last_login_at, created_at, updated_at`

// userSortColumns maps the public sort fields to columns. Only these
// identifiers are ever interpolated into SQL.
var userSortColumns = map[string]string{
	"createdAt":   "created_at",
	"updatedAt":   "updated_at",
	"email":       "email",
	"firstName":   "first_name",
	"lastName":    "last_name",
	"lastLoginAt": "last_login_at",
	"role":        "role",
}

// UserRepository implements auth.UserRepository using PostgreSQL.
type UserRepository struct {
	db  DB
	now func() time.Time
}

// NewUserRepository creates a new UserRepository.
func NewUserRepository(db DB) *UserRepository {
	return &UserRepository{db: db, now: time.Now}
}

// Create stores a new user.
func (r *UserRepository) Create(ctx context.Context, user *auth.User) error {
	_, err := r.db.Exec(ctx, `
		INSERT INTO users (
			id, email, password_hash, email_verified, active, role,
			first_name, last_name, avatar, last_login_at, created_at, updated_at
		) VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $11, $12)
	`,
		user.ID.String(),
		user.Email,
		user.PasswordHash,
		user.EmailVerified,
		user.Active,
		string(user.Role),
		user.FirstName,
		user.LastName,
		user.Avatar,
		user.LastLoginAt,
		user.CreatedAt,
		user.UpdatedAt,
	)
	if isUniqueViolation(err) {
		return oops.Code(auth.CodeEmailTaken).
			With("email", user.Email).
			Wrap(err)
	}
	if err != nil {
		return oops.Code("USER_CREATE_FAILED").
			With("operation", "insert user").
			With("email", user.Email).
			Wrap(err)
	}
	return nil
}

// GetByID retrieves a user by ID.
func (r *UserRepository) GetByID(ctx context.Context, id ulid.ULID) (*auth.User, error) {
	row := r.db.QueryRow(ctx, `SELECT `+userColumns+` FROM users WHERE id = $1`, id.String())

	user, err := scanUser(row)
	if errors.Is(err, pgx.ErrNoRows) {
		return nil, oops.Code(codeUserRecordNotFound).
			With("id", id.String()).
			Wrap(auth.ErrNotFound)
	}
	if err != nil {
		return nil, oops.Code("USER_GET_BY_ID_FAILED").
			With("id", id.String()).
			Wrap(err)
	}
	return user, nil
}

// GetByEmail retrieves a user by exact email.
func (r *UserRepository) GetByEmail(ctx context.Context, email string) (*auth.User, error) {
	row := r.db.QueryRow(ctx, `SELECT `+userColumns+` FROM users WHERE email = $1`, email)

	user, err := scanUser(row)
	if errors.Is(err, pgx.ErrNoRows) {
		return nil, oops.Code(codeUserRecordNotFound).
			With("email", email).
			Wrap(auth.ErrNotFound)
	}
	if err != nil {
		return nil, oops.Code("USER_GET_BY_EMAIL_FAILED").
			With("email", email).
			Wrap(err)
	}
	return user, nil
}

// Update writes the mutable fields of user. The password hash and login
// time have their own methods.
func (r *UserRepository) Update(ctx context.Context, user *auth.User) error {
	user.UpdatedAt = r.now()
	tag, err := r.db.Exec(ctx, `
		UPDATE users SET
			email = $2,
			email_verified = $3,
			active = $4,
			role = $5,
			first_name = $6,
			last_name = $7,
			avatar = $8,
			updated_at = $9
		WHERE id = $1
	`,
		user.ID.String(),
		user.Email,
		user.EmailVerified,
		user.Active,
		string(user.Role),
		user.FirstName,
		user.LastName,
		user.Avatar,
		user.UpdatedAt,
	)
	if isUniqueViolation(err) {
		return oops.Code(auth.CodeEmailTaken).
			With("email", user.Email).
			Wrap(err)
	}
	if err != nil {
		return oops.Code("USER_UPDATE_FAILED").
			With("operation", "update user").
			With("id", user.ID.String()).
			Wrap(err)
	}
	if tag.RowsAffected() == 0 {
		return oops.Code(codeUserRecordNotFound).
			With("id", user.ID.String()).
			Wrap(auth.ErrNotFound)
	}
	return nil
}

// UpdatePassword updates only the password hash.
func (r *UserRepository) UpdatePassword(ctx context.Context, id ulid.ULID, passwordHash string) error {
	return r.touch(ctx, "update password",
		`UPDATE users SET password_hash = $2, updated_at = $3 WHERE id = $1`,
		id, passwordHash, r.now())
}

// UpdateLastLogin records a successful login.
func (r *UserRepository) UpdateLastLogin(ctx context.Context, id ulid.ULID, at time.Time) error {
	return r.touch(ctx, "update last login",
		`UPDATE users SET last_login_at = $2 WHERE id = $1`,
		id, at)
}

// MarkEmailVerified sets the verified flag.
func (r *UserRepository) MarkEmailVerified(ctx context.Context, id ulid.ULID) error {
	return r.touch(ctx, "mark email verified",
		`UPDATE users SET email_verified = TRUE, updated_at = $2 WHERE id = $1`,
		id, r.now())
}

// touch runs a single-row update keyed by id.
func (r *UserRepository) touch(ctx context.Context, operation, sql string, id ulid.ULID, args ...any) error {
	tag, err := r.db.Exec(ctx, sql, append([]any{id.String()}, args...)...)
	if err != nil {
		return oops.Code("USER_UPDATE_FAILED").
			With("operation", operation).
			With("id", id.String()).
			Wrap(err)
	}
	if tag.RowsAffected() == 0 {
		return oops.Code(codeUserRecordNotFound).
			With("id", id.String()).
			Wrap(auth.ErrNotFound)
	}
	return nil
}

// Delete removes a user. Refresh tokens go with it by cascade.
func (r *UserRepository) Delete(ctx context.Context, id ulid.ULID) error {
	tag, err := r.db.Exec(ctx, `DELETE FROM users WHERE id = $1`, id.String())
	if err != nil {
		return oops.Code("USER_DELETE_FAILED").
			With("id", id.String()).
			Wrap(err)
	}
	if tag.RowsAffected() == 0 {
		return oops.Code(codeUserRecordNotFound).
			With("id", id.String()).
			Wrap(auth.ErrNotFound)
	}
	return nil
}

// Count returns the number of users.
func (r *UserRepository) Count(ctx context.Context) (int64, error) {
	var n int64
	if err := r.db.QueryRow(ctx, `SELECT COUNT(*) FROM users`).Scan(&n); err != nil {
		return 0, oops.Code("USER_COUNT_FAILED").Wrap(err)
	}
	return n, nil
}

// Search returns one page of users matching q plus the total number of
// matches. q is expected to be normalized.
func (r *UserRepository) Search(ctx context.Context, q auth.UserQuery) ([]*auth.User, int64, error) {
	where, args := userFilter(q)

	var total int64
	if err := r.db.QueryRow(ctx, `SELECT COUNT(*) FROM users`+where, args...).Scan(&total); err != nil {
		return nil, 0, oops.Code("USER_SEARCH_FAILED").
			With("operation", "count matches").
			Wrap(err)
	}

	column, ok := userSortColumns[q.SortBy]
	if !ok {
		column = "created_at"
	}
	direction := "DESC"
	if q.SortAsc {
		direction = "ASC"
	}
	sql := fmt.Sprintf(`SELECT %s FROM users%s ORDER BY %s %s NULLS LAST, id %s LIMIT $%d OFFSET $%d`,
		userColumns, where, column, direction, direction, len(args)+1, len(args)+2)

	rows, err := r.db.Query(ctx, sql, append(args, q.Limit, q.Offset())...)
	if err != nil {
		return nil, 0, oops.Code("USER_SEARCH_FAILED").
			With("operation", "query page").
			Wrap(err)
	}
	defer rows.Close()

	var users []*auth.User
	for rows.Next() {
		u, err := scanUser(rows)
		if err != nil {
			return nil, 0, oops.Code("USER_SEARCH_FAILED").
				With("operation", "scan user").
				Wrap(err)
		}
		users = append(users, u)
	}
	if err := rows.Err(); err != nil {
		return nil, 0, oops.Code("USER_SEARCH_FAILED").
			With("operation", "iterate users").
			Wrap(err)
	}
	return users, total, nil
}

// userFilter builds the WHERE clause for q with positional arguments.
func userFilter(q auth.UserQuery) (string, []any) {
	var (
		conds []string
		args  []any
	)
	add := func(cond string, arg any) {
		args = append(args, arg)
		conds = append(conds, fmt.Sprintf(cond, len(args)))
	}

	if q.Email != "" {
		add(`email ILIKE $%d`, containsPattern(q.Email))
	}
	if q.FirstName != "" {
		add(`first_name ILIKE $%d`, containsPattern(q.FirstName))
	}
	if q.LastName != "" {
		add(`last_name ILIKE $%d`, containsPattern(q.LastName))
	}
	if q.Active != nil {
		add(`active = $%d`, *q.Active)
	}
	if q.EmailVerified != nil {
		add(`email_verified = $%d`, *q.EmailVerified)
	}
	if q.Role != "" {
		add(`role = $%d`, string(q.Role))
	}

	if len(conds) == 0 {
		return "", nil
	}
	return " WHERE " + strings.Join(conds, " AND "), args
}

// scanUser scans one row. pgx.ErrNoRows is returned unwrapped.
func scanUser(row pgx.Row) (*auth.User, error) {
	var (
		u    auth.User
		id   string
		role string
	)
	err := row.Scan(
		&id,
		&u.Email,
		&u.PasswordHash,
		&u.EmailVerified,
		&u.Active,
		&role,
		&u.FirstName,
		&u.LastName,
		&u.Avatar,
		&u.LastLoginAt,
		&u.CreatedAt,
		&u.UpdatedAt,
	)
	if err != nil {
		return nil, err //nolint:wrapcheck // callers add context
	}

	u.ID, err = parseID(id, "users.id")
	if err != nil {
		return nil, err
	}
	u.Role = auth.Role(role)
	return &u, nil
}

var _ auth.UserRepository = (*UserRepository)(nil)
