// SPDX-License-Identifier: Apache-2.0
// Copyright 2026 HoloMUSH Contributors

// Package cache keeps recently read users in Redis.
package cache

import (
	"context"
	"encoding/json"
	"errors"
	"log/slog"
	"time"

	"github.com/oklog/ulid/v2"
	"github.com/redis/go-redis/v9"
	"github.com/samber/oops"

	"github.com/holomush/authority/internal/auth"
)

// DefaultTTL bounds how long a cached user may be served.
const DefaultTTL = 5 * time.Minute

// KeyPrefix namespaces the cache keys.
const KeyPrefix = "authority:user:"

// Client is the part of redis.UniversalClient the cache uses.
type Client interface {
	Get(ctx context.Context, key string) *redis.StringCmd
	Set(ctx context.Context, key string, value any, expiration time.Duration) *redis.StatusCmd
	Del(ctx context.Context, keys ...string) *redis.IntCmd
}

// Options configures NewClient.
type Options struct {
	Addr     string
	Password string
	DB       int
}

// NewClient connects to Redis and pings it.
func NewClient(ctx context.Context, opts Options) (*redis.Client, error) {
	client := redis.NewClient(&redis.Options{
		Addr:     opts.Addr,
		Password: opts.Password,
		DB:       opts.DB,
	})
	pingCtx, cancel := context.WithTimeout(ctx, 2*time.Second)
	defer cancel()
	if err := client.Ping(pingCtx).Err(); err != nil {
		_ = client.Close()
		return nil, oops.Code("CACHE_UNAVAILABLE").With("addr", opts.Addr).Wrap(err)
	}
	return client, nil
}

// UserRepository serves GetByID from Redis and drops the cached copy on
// every write. Redis failures are logged and fall through to the wrapped
// repository.
type UserRepository struct {
	auth.UserRepository
	client Client
	ttl    time.Duration
	logger *slog.Logger
}

// NewUserRepository wraps next. A non-positive ttl means DefaultTTL.
func NewUserRepository(next auth.UserRepository, client Client, ttl time.Duration, logger *slog.Logger) *UserRepository {
	if ttl <= 0 {
		ttl = DefaultTTL
	}
	if logger == nil {
		logger = slog.Default()
	}
	return &UserRepository{UserRepository: next, client: client, ttl: ttl, logger: logger}
}

// Key returns the cache key of a user.
func Key(id ulid.ULID) string {
	return KeyPrefix + id.String()
}

// cachedUser is the stored form of auth.User. The password hash is never
// cached; callers that verify passwords read by email.
type cachedUser struct {
	ID            ulid.ULID  `json:"id"`
	Email         string     `json:"email"`
	EmailVerified bool       `json:"emailVerified"`
	Active        bool       `json:"active"`
	Role          auth.Role  `json:"role"`
	FirstName     *string    `json:"firstName,omitempty"`
	LastName      *string    `json:"lastName,omitempty"`
	Avatar        *string    `json:"avatar,omitempty"`
	LastLoginAt   *time.Time `json:"lastLoginAt,omitempty"`
	CreatedAt     time.Time  `json:"createdAt"`
	UpdatedAt     time.Time  `json:"updatedAt"`
}

func fromUser(u *auth.User) cachedUser {
	return cachedUser{
		ID: u.ID, Email: u.Email,
		EmailVerified: u.EmailVerified, Active: u.Active, Role: u.Role,
		FirstName: u.FirstName, LastName: u.LastName, Avatar: u.Avatar,
		LastLoginAt: u.LastLoginAt, CreatedAt: u.CreatedAt, UpdatedAt: u.UpdatedAt,
	}
}

func (c cachedUser) user() *auth.User {
	return &auth.User{
		ID: c.ID, Email: c.Email,
		EmailVerified: c.EmailVerified, Active: c.Active, Role: c.Role,
		FirstName: c.FirstName, LastName: c.LastName, Avatar: c.Avatar,
		LastLoginAt: c.LastLoginAt, CreatedAt: c.CreatedAt, UpdatedAt: c.UpdatedAt,
	}
}

// GetByID returns the cached user, loading and caching it on a miss.
func (r *UserRepository) GetByID(ctx context.Context, id ulid.ULID) (*auth.User, error) {
	key := Key(id)
	raw, err := r.client.Get(ctx, key).Bytes()
	switch {
	case err == nil:
		var c cachedUser
		if jerr := json.Unmarshal(raw, &c); jerr == nil {
			return c.user(), nil
		}
		r.logger.WarnContext(ctx, "discarding undecodable cached user", "key", key)
	case !errors.Is(err, redis.Nil):
		r.logger.WarnContext(ctx, "user cache read failed", "key", key, "error", err)
	}

	u, err := r.UserRepository.GetByID(ctx, id)
	if err != nil {
		return nil, err
	}

	data, err := json.Marshal(fromUser(u))
	if err == nil {
		err = r.client.Set(ctx, key, data, r.ttl).Err()
	}
	if err != nil {
		r.logger.WarnContext(ctx, "user cache write failed", "key", key, "error", err)
	}
	return u, nil
}

func (r *UserRepository) invalidate(ctx context.Context, id ulid.ULID) {
	if err := r.client.Del(ctx, Key(id)).Err(); err != nil {
		r.logger.WarnContext(ctx, "user cache invalidation failed", "user_id", id.String(), "error", err)
	}
}

// Update writes through and invalidates.
func (r *UserRepository) Update(ctx context.Context, user *auth.User) error {
	defer r.invalidate(ctx, user.ID)
	return r.UserRepository.Update(ctx, user)
}

// UpdatePassword writes through and invalidates.
func (r *UserRepository) UpdatePassword(ctx context.Context, id ulid.ULID, passwordHash string) error {
	defer r.invalidate(ctx, id)
	return r.UserRepository.UpdatePassword(ctx, id, passwordHash)
}

// UpdateLastLogin writes through and invalidates.
func (r *UserRepository) UpdateLastLogin(ctx context.Context, id ulid.ULID, at time.Time) error {
	defer r.invalidate(ctx, id)
	return r.UserRepository.UpdateLastLogin(ctx, id, at)
}

// MarkEmailVerified writes through and invalidates.
func (r *UserRepository) MarkEmailVerified(ctx context.Context, id ulid.ULID) error {
	defer r.invalidate(ctx, id)
	return r.UserRepository.MarkEmailVerified(ctx, id)
}

// Delete writes through and invalidates.
func (r *UserRepository) Delete(ctx context.Context, id ulid.ULID) error {
	defer r.invalidate(ctx, id)
	return r.UserRepository.Delete(ctx, id)
}

var _ auth.UserRepository = (*UserRepository)(nil)
