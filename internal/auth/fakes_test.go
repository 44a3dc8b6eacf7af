// SPDX-License-Identifier: Apache-2.0
// Copyright 2026 HoloMUSH Contributors

package auth_test

import (
	"context"
	"sort"
	"strings"
	"sync"
	"time"

	"github.com/oklog/ulid/v2"
	"github.com/samber/oops"
	"github.com/stretchr/testify/mock"

	"github.com/holomush/authority/internal/auth"
)

var anyCtx = mock.Anything

// fixedClock returns a clock that can be moved forward by tests.
type fixedClock struct {
	mu  sync.Mutex
	now time.Time
}

func newFixedClock() *fixedClock {
	return &fixedClock{now: time.Date(2026, 3, 14, 12, 0, 0, 0, time.UTC)}
}

func (c *fixedClock) Now() time.Time {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.now
}

func (c *fixedClock) Advance(d time.Duration) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.now = c.now.Add(d)
}

// memUsers is an in-memory auth.UserRepository.
type memUsers struct {
	mu    sync.Mutex
	byID  map[ulid.ULID]*auth.User
	order []ulid.ULID
}

func newMemUsers(users ...*auth.User) *memUsers {
	m := &memUsers{byID: map[ulid.ULID]*auth.User{}}
	for _, u := range users {
		m.byID[u.ID] = u
		m.order = append(m.order, u.ID)
	}
	return m
}

func (m *memUsers) copyOf(u *auth.User) *auth.User {
	c := *u
	return &c
}

func (m *memUsers) Create(_ context.Context, user *auth.User) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	for _, u := range m.byID {
		if u.Email == user.Email {
			return oops.Code(auth.CodeEmailTaken).Errorf("duplicate email")
		}
	}
	m.byID[user.ID] = m.copyOf(user)
	m.order = append(m.order, user.ID)
	return nil
}

func (m *memUsers) GetByID(_ context.Context, id ulid.ULID) (*auth.User, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	u, ok := m.byID[id]
	if !ok {
		return nil, auth.ErrNotFound
	}
	return m.copyOf(u), nil
}

func (m *memUsers) GetByEmail(_ context.Context, email string) (*auth.User, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	for _, u := range m.byID {
		if u.Email == email {
			return m.copyOf(u), nil
		}
	}
	return nil, auth.ErrNotFound
}

func (m *memUsers) Update(_ context.Context, user *auth.User) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	u, ok := m.byID[user.ID]
	if !ok {
		return auth.ErrNotFound
	}
	hash := u.PasswordHash
	updated := m.copyOf(user)
	updated.PasswordHash = hash
	m.byID[user.ID] = updated
	return nil
}

func (m *memUsers) UpdatePassword(_ context.Context, id ulid.ULID, passwordHash string) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	u, ok := m.byID[id]
	if !ok {
		return auth.ErrNotFound
	}
	u.PasswordHash = &passwordHash
	return nil
}

func (m *memUsers) UpdateLastLogin(_ context.Context, id ulid.ULID, at time.Time) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	u, ok := m.byID[id]
	if !ok {
		return auth.ErrNotFound
	}
	u.LastLoginAt = &at
	return nil
}

func (m *memUsers) MarkEmailVerified(_ context.Context, id ulid.ULID) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	u, ok := m.byID[id]
	if !ok {
		return auth.ErrNotFound
	}
	u.EmailVerified = true
	return nil
}

func (m *memUsers) Delete(_ context.Context, id ulid.ULID) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if _, ok := m.byID[id]; !ok {
		return auth.ErrNotFound
	}
	delete(m.byID, id)
	return nil
}

func (m *memUsers) Count(_ context.Context) (int64, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	return int64(len(m.byID)), nil
}

func (m *memUsers) Search(_ context.Context, q auth.UserQuery) ([]*auth.User, int64, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	var matched []*auth.User
	for _, id := range m.order {
		u, ok := m.byID[id]
		if !ok {
			continue
		}
		if q.Email != "" && !strings.Contains(u.Email, q.Email) {
			continue
		}
		if q.Role != "" && u.Role != q.Role {
			continue
		}
		if q.Active != nil && u.Active != *q.Active {
			continue
		}
		matched = append(matched, m.copyOf(u))
	}
	total := int64(len(matched))
	start := q.Offset()
	if start > len(matched) {
		start = len(matched)
	}
	end := start + q.Limit
	if end > len(matched) {
		end = len(matched)
	}
	return matched[start:end], total, nil
}

// memRefresh is an in-memory auth.RefreshTokenRepository with the same
// conditional revoke semantics as the SQL implementation.
type memRefresh struct {
	mu     sync.Mutex
	byHash map[string]*auth.RefreshToken
}

func newMemRefresh() *memRefresh {
	return &memRefresh{byHash: map[string]*auth.RefreshToken{}}
}

func (m *memRefresh) Create(_ context.Context, token *auth.RefreshToken) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	c := *token
	m.byHash[token.TokenHash] = &c
	return nil
}

func (m *memRefresh) GetActiveByTokenHash(_ context.Context, tokenHash string) (*auth.RefreshToken, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	t, ok := m.byHash[tokenHash]
	if !ok || t.Revoked {
		return nil, auth.ErrNotFound
	}
	c := *t
	return &c, nil
}

func (m *memRefresh) Revoke(_ context.Context, tokenHash string) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	t, ok := m.byHash[tokenHash]
	if !ok || t.Revoked {
		return auth.ErrNotFound
	}
	t.Revoked = true
	return nil
}

func (m *memRefresh) RevokeAllForUser(_ context.Context, userID ulid.ULID) (int64, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	var n int64
	for _, t := range m.byHash {
		if t.UserID == userID && !t.Revoked {
			t.Revoked = true
			n++
		}
	}
	return n, nil
}

func (m *memRefresh) ListActiveForUser(_ context.Context, userID ulid.ULID, now time.Time) ([]*auth.RefreshToken, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	var out []*auth.RefreshToken
	for _, t := range m.byHash {
		if t.UserID == userID && t.IsUsableAt(now) {
			c := *t
			out = append(out, &c)
		}
	}
	sort.Slice(out, func(i, j int) bool { return out[i].CreatedAt.After(out[j].CreatedAt) })
	return out, nil
}

func (m *memRefresh) DeleteExpired(_ context.Context, before time.Time) (int64, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	var n int64
	for h, t := range m.byHash {
		if t.ExpiresAt.Before(before) {
			delete(m.byHash, h)
			n++
		}
	}
	return n, nil
}

func (m *memRefresh) activeFor(userID ulid.ULID) int {
	m.mu.Lock()
	defer m.mu.Unlock()
	n := 0
	for _, t := range m.byHash {
		if t.UserID == userID && !t.Revoked {
			n++
		}
	}
	return n
}

// memOneTime is an in-memory auth.OneTimeTokenRepository.
type memOneTime struct {
	mu     sync.Mutex
	kind   auth.TokenKind
	byHash map[string]*auth.OneTimeToken
}

func newMemOneTime(kind auth.TokenKind) *memOneTime {
	return &memOneTime{kind: kind, byHash: map[string]*auth.OneTimeToken{}}
}

func (m *memOneTime) Kind() auth.TokenKind { return m.kind }

func (m *memOneTime) Create(_ context.Context, token *auth.OneTimeToken) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	c := *token
	m.byHash[token.TokenHash] = &c
	return nil
}

func (m *memOneTime) GetUnusedByTokenHash(_ context.Context, tokenHash string) (*auth.OneTimeToken, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	t, ok := m.byHash[tokenHash]
	if !ok || t.Used {
		return nil, auth.ErrNotFound
	}
	c := *t
	return &c, nil
}

func (m *memOneTime) MarkUsed(_ context.Context, tokenHash string, now time.Time) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	t, ok := m.byHash[tokenHash]
	if !ok || t.Used || now.After(t.ExpiresAt) {
		return auth.ErrNotFound
	}
	t.Used = true
	return nil
}

func (m *memOneTime) DeleteExpired(_ context.Context, before time.Time) (int64, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	var n int64
	for h, t := range m.byHash {
		if t.ExpiresAt.Before(before) {
			delete(m.byHash, h)
			n++
		}
	}
	return n, nil
}

// recordingNotifier captures the tokens handed to it.
type recordingNotifier struct {
	mu     sync.Mutex
	resets map[string]string
	verify map[string]string
}

func newRecordingNotifier() *recordingNotifier {
	return &recordingNotifier{resets: map[string]string{}, verify: map[string]string{}}
}

func (n *recordingNotifier) SendPasswordReset(_ context.Context, email, token string, _ time.Time) error {
	n.mu.Lock()
	defer n.mu.Unlock()
	n.resets[email] = token
	return nil
}

func (n *recordingNotifier) SendEmailVerification(_ context.Context, email, token string, _ time.Time) error {
	n.mu.Lock()
	defer n.mu.Unlock()
	n.verify[email] = token
	return nil
}

// recordingAudit captures audit entries.
type recordingAudit struct {
	mu      sync.Mutex
	entries []auth.AuditEntry
}

func (r *recordingAudit) Record(_ context.Context, entry auth.AuditEntry) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.entries = append(r.entries, entry)
}

func (r *recordingAudit) actions() []auth.AuditAction {
	r.mu.Lock()
	defer r.mu.Unlock()
	out := make([]auth.AuditAction, 0, len(r.entries))
	for _, e := range r.entries {
		out = append(out, e.Action)
	}
	return out
}

func newTestUser(email string, role auth.Role, hash string) *auth.User {
	u, err := auth.NewUser(email, &hash, role)
	if err != nil {
		panic(err)
	}
	return u
}

const testSecret = "0123456789abcdef0123456789abcdef-test"
