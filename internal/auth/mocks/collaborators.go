// SPDX-License-Identifier: Apache-2.0
// Copyright 2026 HoloMUSH Contributors

package mocks

import (
	"context"
	"time"

	"github.com/oklog/ulid/v2"
	"github.com/stretchr/testify/mock"

	"github.com/holomush/authority/internal/auth"
)

// MockPasswordHasher is a mock of auth.PasswordHasher.
type MockPasswordHasher struct {
	mock.Mock
}

// NewMockPasswordHasher creates a MockPasswordHasher.
func NewMockPasswordHasher(t testingT) *MockPasswordHasher {
	m := &MockPasswordHasher{}
	register(t, &m.Mock)
	return m
}

func (m *MockPasswordHasher) Hash(password string) (string, error) {
	ret := m.Called(password)
	return ret.String(0), ret.Error(1)
}

func (m *MockPasswordHasher) Verify(password, hash string) (bool, error) {
	ret := m.Called(password, hash)
	return ret.Bool(0), ret.Error(1)
}

func (m *MockPasswordHasher) LooksHashed(value string) bool {
	return m.Called(value).Bool(0)
}

func (m *MockPasswordHasher) NeedsUpgrade(hash string) bool {
	return m.Called(hash).Bool(0)
}

// MockAccessTokenSigner is a mock of auth.AccessTokenSigner.
type MockAccessTokenSigner struct {
	mock.Mock
}

// NewMockAccessTokenSigner creates a MockAccessTokenSigner.
func NewMockAccessTokenSigner(t testingT) *MockAccessTokenSigner {
	m := &MockAccessTokenSigner{}
	register(t, &m.Mock)
	return m
}

func (m *MockAccessTokenSigner) Issue(userID ulid.ULID) (auth.AccessToken, error) {
	ret := m.Called(userID)
	return ret.Get(0).(auth.AccessToken), ret.Error(1)
}

func (m *MockAccessTokenSigner) TTL() time.Duration {
	return m.Called().Get(0).(time.Duration)
}

// MockAccessTokenParser is a mock of auth.AccessTokenParser.
type MockAccessTokenParser struct {
	mock.Mock
}

// NewMockAccessTokenParser creates a MockAccessTokenParser.
func NewMockAccessTokenParser(t testingT) *MockAccessTokenParser {
	m := &MockAccessTokenParser{}
	register(t, &m.Mock)
	return m
}

func (m *MockAccessTokenParser) Parse(token string) (*auth.AccessClaims, error) {
	ret := m.Called(token)
	var claims *auth.AccessClaims
	if v := ret.Get(0); v != nil {
		claims = v.(*auth.AccessClaims)
	}
	return claims, ret.Error(1)
}

// MockAuthenticator is a mock of auth.Authenticator.
type MockAuthenticator struct {
	mock.Mock
}

// NewMockAuthenticator creates a MockAuthenticator.
func NewMockAuthenticator(t testingT) *MockAuthenticator {
	m := &MockAuthenticator{}
	register(t, &m.Mock)
	return m
}

func (m *MockAuthenticator) Authenticate(ctx context.Context, email, password string) (*auth.User, error) {
	ret := m.Called(ctx, email, password)
	return userOrNil(ret.Get(0)), ret.Error(1)
}

// MockNotifier is a mock of auth.Notifier.
type MockNotifier struct {
	mock.Mock
}

// NewMockNotifier creates a MockNotifier.
func NewMockNotifier(t testingT) *MockNotifier {
	m := &MockNotifier{}
	register(t, &m.Mock)
	return m
}

func (m *MockNotifier) SendPasswordReset(ctx context.Context, email, token string, expiresAt time.Time) error {
	return m.Called(ctx, email, token, expiresAt).Error(0)
}

func (m *MockNotifier) SendEmailVerification(ctx context.Context, email, token string, expiresAt time.Time) error {
	return m.Called(ctx, email, token, expiresAt).Error(0)
}

// MockVerificationSender is a mock of auth.VerificationSender.
type MockVerificationSender struct {
	mock.Mock
}

// NewMockVerificationSender creates a MockVerificationSender.
func NewMockVerificationSender(t testingT) *MockVerificationSender {
	m := &MockVerificationSender{}
	register(t, &m.Mock)
	return m
}

func (m *MockVerificationSender) SendVerification(ctx context.Context, email string) error {
	return m.Called(ctx, email).Error(0)
}

// MockAuditPublisher is a mock of auth.AuditPublisher.
type MockAuditPublisher struct {
	mock.Mock
}

// NewMockAuditPublisher creates a MockAuditPublisher.
func NewMockAuditPublisher(t testingT) *MockAuditPublisher {
	m := &MockAuditPublisher{}
	register(t, &m.Mock)
	return m
}

func (m *MockAuditPublisher) Publish(ctx context.Context, entry *auth.AuditEntry) error {
	return m.Called(ctx, entry).Error(0)
}

// MockAuditRecorder is a mock of auth.AuditRecorder.
type MockAuditRecorder struct {
	mock.Mock
}

// NewMockAuditRecorder creates a MockAuditRecorder.
func NewMockAuditRecorder(t testingT) *MockAuditRecorder {
	m := &MockAuditRecorder{}
	register(t, &m.Mock)
	return m
}

func (m *MockAuditRecorder) Record(ctx context.Context, entry auth.AuditEntry) {
	m.Called(ctx, entry)
}

var (
	_ auth.PasswordHasher     = (*MockPasswordHasher)(nil)
	_ auth.AccessTokenSigner  = (*MockAccessTokenSigner)(nil)
	_ auth.AccessTokenParser  = (*MockAccessTokenParser)(nil)
	_ auth.Authenticator      = (*MockAuthenticator)(nil)
	_ auth.Notifier           = (*MockNotifier)(nil)
	_ auth.VerificationSender = (*MockVerificationSender)(nil)
	_ auth.AuditPublisher     = (*MockAuditPublisher)(nil)
	_ auth.AuditRecorder      = (*MockAuditRecorder)(nil)
)
