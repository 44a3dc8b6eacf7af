// SPDX-License-Identifier: Apache-2.0
// Copyright 2026 HoloMUSH Contributors

package httpapi

import (
	"context"
	"time"

	"github.com/oklog/ulid/v2"
	"github.com/stretchr/testify/mock"

	"github.com/holomush/authority/internal/auth"
)

type fakeResolver struct{ mock.Mock }

func (f *fakeResolver) Resolve(ctx context.Context, c auth.Credentials) (*auth.Principal, error) {
	ret := f.Called(ctx, c)
	p, _ := ret.Get(0).(*auth.Principal)
	return p, ret.Error(1)
}

func (f *fakeResolver) ResolvePassword(ctx context.Context, email, password string) (*auth.Principal, error) {
	ret := f.Called(ctx, email, password)
	p, _ := ret.Get(0).(*auth.Principal)
	return p, ret.Error(1)
}

type fakeSessions struct{ mock.Mock }

func (f *fakeSessions) Login(ctx context.Context, user *auth.User, device auth.DeviceInfo) (*auth.LoginResult, error) {
	ret := f.Called(ctx, user, device)
	r, _ := ret.Get(0).(*auth.LoginResult)
	return r, ret.Error(1)
}

func (f *fakeSessions) Refresh(ctx context.Context, callerID ulid.ULID, token string, device auth.DeviceInfo) (*auth.LoginResult, error) {
	ret := f.Called(ctx, callerID, token, device)
	r, _ := ret.Get(0).(*auth.LoginResult)
	return r, ret.Error(1)
}

func (f *fakeSessions) Logout(ctx context.Context, userID ulid.ULID, token string, all bool) auth.LogoutResult {
	return f.Called(ctx, userID, token, all).Get(0).(auth.LogoutResult)
}

func (f *fakeSessions) ListSessions(ctx context.Context, userID ulid.ULID) ([]auth.Session, error) {
	ret := f.Called(ctx, userID)
	s, _ := ret.Get(0).([]auth.Session)
	return s, ret.Error(1)
}

func (f *fakeSessions) AccessTTL() time.Duration  { return 24 * time.Hour }
func (f *fakeSessions) RefreshTTL() time.Duration { return 30 * 24 * time.Hour }

type fakeResets struct{ mock.Mock }

func (f *fakeResets) RequestReset(ctx context.Context, email string) (auth.OperationResult, error) {
	ret := f.Called(ctx, email)
	return ret.Get(0).(auth.OperationResult), ret.Error(1)
}

func (f *fakeResets) ResetPassword(ctx context.Context, token, newPassword string) (auth.OperationResult, error) {
	ret := f.Called(ctx, token, newPassword)
	return ret.Get(0).(auth.OperationResult), ret.Error(1)
}

type fakeVerifications struct{ mock.Mock }

func (f *fakeVerifications) VerifyEmail(ctx context.Context, token string) (auth.OperationResult, error) {
	ret := f.Called(ctx, token)
	return ret.Get(0).(auth.OperationResult), ret.Error(1)
}

func (f *fakeVerifications) ResendVerification(ctx context.Context, email string) (auth.OperationResult, error) {
	ret := f.Called(ctx, email)
	return ret.Get(0).(auth.OperationResult), ret.Error(1)
}

type fakeUsers struct{ mock.Mock }

func (f *fakeUsers) Count(ctx context.Context) (int64, error) {
	ret := f.Called(ctx)
	return ret.Get(0).(int64), ret.Error(1)
}

func (f *fakeUsers) Register(ctx context.Context, actor *auth.User, in auth.RegisterInput) (*auth.User, error) {
	ret := f.Called(ctx, actor, in)
	u, _ := ret.Get(0).(*auth.User)
	return u, ret.Error(1)
}

func (f *fakeUsers) View(ctx context.Context, actor *auth.User, id ulid.ULID) (*auth.User, error) {
	ret := f.Called(ctx, actor, id)
	u, _ := ret.Get(0).(*auth.User)
	return u, ret.Error(1)
}

func (f *fakeUsers) Search(ctx context.Context, actor *auth.User, q auth.UserQuery) (auth.Page[auth.PublicUser], error) {
	ret := f.Called(ctx, actor, q)
	return ret.Get(0).(auth.Page[auth.PublicUser]), ret.Error(1)
}

func (f *fakeUsers) Update(ctx context.Context, actor *auth.User, id ulid.ULID, in auth.UpdateInput) (*auth.User, error) {
	ret := f.Called(ctx, actor, id, in)
	u, _ := ret.Get(0).(*auth.User)
	return u, ret.Error(1)
}

func (f *fakeUsers) ChangePassword(ctx context.Context, actor *auth.User, current, next string) (auth.OperationResult, error) {
	ret := f.Called(ctx, actor, current, next)
	return ret.Get(0).(auth.OperationResult), ret.Error(1)
}

func (f *fakeUsers) Delete(ctx context.Context, actor *auth.User, id ulid.ULID) (bool, error) {
	ret := f.Called(ctx, actor, id)
	return ret.Bool(0), ret.Error(1)
}
