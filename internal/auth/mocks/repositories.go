// SPDX-License-Identifier: Apache-2.0
// Copyright 2026 HoloMUSH Contributors

// Package mocks provides testify mocks of the auth package interfaces.
package mocks

import (
	"context"
	"time"

	"github.com/oklog/ulid/v2"
	"github.com/stretchr/testify/mock"

	"github.com/holomush/authority/internal/auth"
)

type testingT interface {
	mock.TestingT
	Cleanup(func())
}

func register(t testingT, m *mock.Mock) {
	m.Test(t)
	t.Cleanup(func() { m.AssertExpectations(t) })
}

func userOrNil(v any) *auth.User {
	if v == nil {
		return nil
	}
	return v.(*auth.User)
}

// MockUserRepository is a mock of auth.UserRepository.
type MockUserRepository struct {
	mock.Mock
}

// NewMockUserRepository creates a MockUserRepository that asserts its
// expectations when the test ends.
func NewMockUserRepository(t testingT) *MockUserRepository {
	m := &MockUserRepository{}
	register(t, &m.Mock)
	return m
}

func (m *MockUserRepository) Create(ctx context.Context, user *auth.User) error {
	return m.Called(ctx, user).Error(0)
}

func (m *MockUserRepository) GetByID(ctx context.Context, id ulid.ULID) (*auth.User, error) {
	ret := m.Called(ctx, id)
	return userOrNil(ret.Get(0)), ret.Error(1)
}

func (m *MockUserRepository) GetByEmail(ctx context.Context, email string) (*auth.User, error) {
	ret := m.Called(ctx, email)
	return userOrNil(ret.Get(0)), ret.Error(1)
}

func (m *MockUserRepository) Update(ctx context.Context, user *auth.User) error {
	return m.Called(ctx, user).Error(0)
}

func (m *MockUserRepository) UpdatePassword(ctx context.Context, id ulid.ULID, passwordHash string) error {
	return m.Called(ctx, id, passwordHash).Error(0)
}

func (m *MockUserRepository) UpdateLastLogin(ctx context.Context, id ulid.ULID, at time.Time) error {
	return m.Called(ctx, id, at).Error(0)
}

func (m *MockUserRepository) MarkEmailVerified(ctx context.Context, id ulid.ULID) error {
	return m.Called(ctx, id).Error(0)
}

func (m *MockUserRepository) Delete(ctx context.Context, id ulid.ULID) error {
	return m.Called(ctx, id).Error(0)
}

func (m *MockUserRepository) Count(ctx context.Context) (int64, error) {
	ret := m.Called(ctx)
	return ret.Get(0).(int64), ret.Error(1)
}

func (m *MockUserRepository) Search(ctx context.Context, q auth.UserQuery) ([]*auth.User, int64, error) {
	ret := m.Called(ctx, q)
	var users []*auth.User
	if v := ret.Get(0); v != nil {
		users = v.([]*auth.User)
	}
	return users, ret.Get(1).(int64), ret.Error(2)
}

// MockRefreshTokenRepository is a mock of auth.RefreshTokenRepository.
type MockRefreshTokenRepository struct {
	mock.Mock
}

// NewMockRefreshTokenRepository creates a MockRefreshTokenRepository.
func NewMockRefreshTokenRepository(t testingT) *MockRefreshTokenRepository {
	m := &MockRefreshTokenRepository{}
	register(t, &m.Mock)
	return m
}

func (m *MockRefreshTokenRepository) Create(ctx context.Context, token *auth.RefreshToken) error {
	return m.Called(ctx, token).Error(0)
}

func (m *MockRefreshTokenRepository) GetActiveByTokenHash(ctx context.Context, tokenHash string) (*auth.RefreshToken, error) {
	ret := m.Called(ctx, tokenHash)
	var token *auth.RefreshToken
	if v := ret.Get(0); v != nil {
		token = v.(*auth.RefreshToken)
	}
	return token, ret.Error(1)
}

func (m *MockRefreshTokenRepository) Revoke(ctx context.Context, tokenHash string) error {
	return m.Called(ctx, tokenHash).Error(0)
}

func (m *MockRefreshTokenRepository) RevokeAllForUser(ctx context.Context, userID ulid.ULID) (int64, error) {
	ret := m.Called(ctx, userID)
	return ret.Get(0).(int64), ret.Error(1)
}

func (m *MockRefreshTokenRepository) ListActiveForUser(ctx context.Context, userID ulid.ULID, now time.Time) ([]*auth.RefreshToken, error) {
	ret := m.Called(ctx, userID, now)
	var tokens []*auth.RefreshToken
	if v := ret.Get(0); v != nil {
		tokens = v.([]*auth.RefreshToken)
	}
	return tokens, ret.Error(1)
}

func (m *MockRefreshTokenRepository) DeleteExpired(ctx context.Context, before time.Time) (int64, error) {
	ret := m.Called(ctx, before)
	return ret.Get(0).(int64), ret.Error(1)
}

// MockOneTimeTokenRepository is a mock of auth.OneTimeTokenRepository.
// Kind is answered from the field, not from expectations.
type MockOneTimeTokenRepository struct {
	mock.Mock
	TokenKind auth.TokenKind
}

// NewMockOneTimeTokenRepository creates a MockOneTimeTokenRepository for kind.
func NewMockOneTimeTokenRepository(t testingT, kind auth.TokenKind) *MockOneTimeTokenRepository {
	m := &MockOneTimeTokenRepository{TokenKind: kind}
	register(t, &m.Mock)
	return m
}

func (m *MockOneTimeTokenRepository) Kind() auth.TokenKind {
	return m.TokenKind
}

func (m *MockOneTimeTokenRepository) Create(ctx context.Context, token *auth.OneTimeToken) error {
	return m.Called(ctx, token).Error(0)
}

func (m *MockOneTimeTokenRepository) GetUnusedByTokenHash(ctx context.Context, tokenHash string) (*auth.OneTimeToken, error) {
	ret := m.Called(ctx, tokenHash)
	var token *auth.OneTimeToken
	if v := ret.Get(0); v != nil {
		token = v.(*auth.OneTimeToken)
	}
	return token, ret.Error(1)
}

func (m *MockOneTimeTokenRepository) MarkUsed(ctx context.Context, tokenHash string, now time.Time) error {
	return m.Called(ctx, tokenHash, now).Error(0)
}

func (m *MockOneTimeTokenRepository) DeleteExpired(ctx context.Context, before time.Time) (int64, error) {
	ret := m.Called(ctx, before)
	return ret.Get(0).(int64), ret.Error(1)
}

// MockAuditRepository is a mock of auth.AuditRepository.
type MockAuditRepository struct {
	mock.Mock
}

// NewMockAuditRepository creates a MockAuditRepository.
func NewMockAuditRepository(t testingT) *MockAuditRepository {
	m := &MockAuditRepository{}
	register(t, &m.Mock)
	return m
}

func (m *MockAuditRepository) Create(ctx context.Context, entry *auth.AuditEntry) error {
	return m.Called(ctx, entry).Error(0)
}

func (m *MockAuditRepository) ListForUser(ctx context.Context, userID ulid.ULID, limit int) ([]*auth.AuditEntry, error) {
	ret := m.Called(ctx, userID, limit)
	var entries []*auth.AuditEntry
	if v := ret.Get(0); v != nil {
		entries = v.([]*auth.AuditEntry)
	}
	return entries, ret.Error(1)
}

var (
	_ auth.UserRepository         = (*MockUserRepository)(nil)
	_ auth.RefreshTokenRepository = (*MockRefreshTokenRepository)(nil)
	_ auth.OneTimeTokenRepository = (*MockOneTimeTokenRepository)(nil)
	_ auth.AuditRepository        = (*MockAuditRepository)(nil)
)
