// SPDX-License-Identifier: Apache-2.0
// Copyright 2026 HoloMUSH Contributors

package main

import (
	"bytes"
	"context"
	"strings"
	"testing"

	"github.com/oklog/ulid/v2"
	"github.com/samber/oops"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/holomush/authority/internal/auth"
	"github.com/holomush/authority/pkg/errutil"
)

type fakeUsers struct {
	registered []auth.RegisterInput
	actor      *auth.User
	query      auth.UserQuery
	page       auth.Page[auth.PublicUser]
	err        error
}

func (f *fakeUsers) Register(_ context.Context, actor *auth.User, in auth.RegisterInput) (*auth.User, error) {
	if f.err != nil {
		return nil, f.err
	}
	f.actor = actor
	f.registered = append(f.registered, in)
	u, err := auth.NewUser(in.Email, &in.Password, in.Role)
	if err != nil {
		return nil, err
	}
	return u, nil
}

func (f *fakeUsers) Search(_ context.Context, actor *auth.User, q auth.UserQuery) (auth.Page[auth.PublicUser], error) {
	f.actor = actor
	f.query = q
	return f.page, f.err
}

func newUserTestCmd(stdin string) (*bytes.Buffer, *userCreateConfig, func(*fakeUsers) error) {
	cmd := newUserCreateCmd()
	out := new(bytes.Buffer)
	cmd.SetOut(out)
	cmd.SetIn(strings.NewReader(stdin))
	uc := &userCreateConfig{email: "admin@example.com", role: "admin"}
	return out, uc, func(users *fakeUsers) error { return runUserCreate(cmd, users, uc) }
}

func TestUserCreate(t *testing.T) {
	out, uc, run := newUserTestCmd("")
	uc.password = "secret1"
	uc.firstName = "Ada"
	users := &fakeUsers{}

	require.NoError(t, run(users))
	require.Len(t, users.registered, 1)
	in := users.registered[0]
	assert.Equal(t, "admin@example.com", in.Email)
	assert.Equal(t, "secret1", in.Password)
	assert.Equal(t, auth.RoleAdmin, in.Role)
	require.NotNil(t, in.FirstName)
	assert.Equal(t, "Ada", *in.FirstName)
	assert.Nil(t, in.LastName)
	assert.True(t, users.actor.IsAdmin(), "the CLI acts as an administrator")
	assert.True(t, users.actor.Active, "an inactive actor is rejected by the services")
	assert.Contains(t, out.String(), "Created admin admin@example.com")
}

func TestUserCreate_PasswordFromStdin(t *testing.T) {
	_, uc, run := newUserTestCmd("from-stdin\r\nignored\n")
	uc.passwordStdin = true
	users := &fakeUsers{}

	require.NoError(t, run(users))
	assert.Equal(t, "from-stdin", users.registered[0].Password)
}

func TestUserCreate_Rejects(t *testing.T) {
	t.Run("missing password", func(t *testing.T) {
		_, _, run := newUserTestCmd("")
		err := run(&fakeUsers{})
		errutil.AssertErrorCode(t, err, auth.CodeUserInvalid)
	})

	t.Run("unknown role", func(t *testing.T) {
		_, uc, run := newUserTestCmd("")
		uc.password = "secret1"
		uc.role = "root"
		err := run(&fakeUsers{})
		errutil.AssertErrorCode(t, err, auth.CodeUserInvalid)
	})

	t.Run("service error", func(t *testing.T) {
		_, uc, run := newUserTestCmd("")
		uc.password = "secret1"
		taken := oops.Code(auth.CodeEmailTaken).Errorf("email already registered")
		err := run(&fakeUsers{err: taken})
		assert.ErrorIs(t, err, taken)
	})
}

func TestUserCreate_RequiresEmail(t *testing.T) {
	_, err := runCLI(t, "user", "create", "--password", "secret1")
	require.Error(t, err)
	assert.Contains(t, err.Error(), "email")
}

func TestUserList(t *testing.T) {
	id := ulid.Make()
	users := &fakeUsers{page: auth.NewPage([]auth.PublicUser{
		{ID: id.String(), Email: "a@example.com", Role: auth.RoleUser, IsActive: true},
	}, 11, 2, 10)}

	cmd := newUserListCmd()
	out := new(bytes.Buffer)
	cmd.SetOut(out)
	lc := &userListConfig{email: "example", role: "user", page: 2, limit: 10}

	require.NoError(t, runUserList(cmd, users, lc))
	assert.Equal(t, auth.UserQuery{Email: "example", Role: auth.RoleUser, Page: 2, Limit: 10}, users.query)
	assert.Contains(t, out.String(), id.String())
	assert.Contains(t, out.String(), "a@example.com")
	assert.Contains(t, out.String(), "page 2 of 2, 11 user(s)")
}
