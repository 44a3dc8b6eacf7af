// SPDX-License-Identifier: Apache-2.0
// Copyright 2026 HoloMUSH Contributors

package httpapi

import (
	"encoding/json"
	"errors"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/labstack/echo/v4"
	"github.com/oklog/ulid/v2"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/testutil"
	"github.com/samber/oops"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/mock"
	"github.com/stretchr/testify/require"

	"github.com/holomush/authority/internal/auth"
	"github.com/holomush/authority/internal/observability"
)

const bearer = "Bearer access.jwt.token"

type harness struct {
	e        *echo.Echo
	resolver *fakeResolver
	sessions *fakeSessions
	resets   *fakeResets
	verify   *fakeVerifications
	users    *fakeUsers
	metrics  *observability.Metrics
}

func newHarness(t *testing.T, mutate ...func(*Config)) *harness {
	t.Helper()
	h := &harness{
		resolver: &fakeResolver{},
		sessions: &fakeSessions{},
		resets:   &fakeResets{},
		verify:   &fakeVerifications{},
		users:    &fakeUsers{},
		metrics:  observability.NewMetrics(prometheus.NewRegistry()),
	}
	for _, m := range []*mock.Mock{&h.resolver.Mock, &h.sessions.Mock, &h.resets.Mock, &h.verify.Mock, &h.users.Mock} {
		m.Test(t)
		t.Cleanup(func() { m.AssertExpectations(t) })
	}

	cfg := Config{BasePath: "/api/v1", Metrics: h.metrics}
	for _, m := range mutate {
		m(&cfg)
	}
	e, err := New(cfg, Services{
		Resolver:      h.resolver,
		Sessions:      h.sessions,
		Resets:        h.resets,
		Verifications: h.verify,
		Users:         h.users,
	})
	require.NoError(t, err)
	h.e = e
	return h
}

func (h *harness) do(method, path, body string, headers ...string) *httptest.ResponseRecorder {
	var req *http.Request
	if body != "" {
		req = httptest.NewRequest(method, path, strings.NewReader(body))
		req.Header.Set(echo.HeaderContentType, echo.MIMEApplicationJSON)
	} else {
		req = httptest.NewRequest(method, path, nil)
	}
	for i := 0; i+1 < len(headers); i += 2 {
		req.Header.Set(headers[i], headers[i+1])
	}
	rec := httptest.NewRecorder()
	h.e.ServeHTTP(rec, req)
	return rec
}

// asUser makes bearer requests resolve to u.
func (h *harness) asUser(u *auth.User) {
	h.resolver.On("Resolve", mock.Anything, auth.Credentials{Strategy: auth.StrategyBearer, Token: "access.jwt.token"}).
		Return(&auth.Principal{User: u, Public: u.Public(), Strategy: auth.StrategyBearer}, nil)
}

func newUser(t *testing.T, role auth.Role) *auth.User {
	t.Helper()
	u, err := auth.NewUser(string(role)+"@example.com", nil, role)
	require.NoError(t, err)
	return u
}

func decode(t *testing.T, rec *httptest.ResponseRecorder) map[string]any {
	t.Helper()
	var out map[string]any
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &out), rec.Body.String())
	return out
}

func cookieByName(rec *httptest.ResponseRecorder, name string) *http.Cookie {
	for _, c := range rec.Result().Cookies() {
		if c.Name == name {
			return c
		}
	}
	return nil
}

func loginResult(u *auth.User) *auth.LoginResult {
	return &auth.LoginResult{
		AccessToken:      "new.access",
		AccessExpiresAt:  time.Date(2026, 3, 15, 12, 0, 0, 0, time.UTC),
		RefreshToken:     "new-refresh",
		RefreshExpiresAt: time.Date(2026, 4, 13, 12, 0, 0, 0, time.UTC),
		User:             u.Public(),
	}
}

func TestNew_RequiresServices(t *testing.T) {
	_, err := New(Config{}, Services{})
	assert.Error(t, err)
}

func TestLogin(t *testing.T) {
	h := newHarness(t)
	u := newUser(t, auth.RoleUser)
	h.resolver.On("ResolvePassword", mock.Anything, "user@example.com", "secret1").
		Return(&auth.Principal{User: u, Public: u.Public(), Strategy: auth.StrategyLocal}, nil)
	h.sessions.On("Login", mock.Anything, u, auth.DeviceInfo{UserAgent: "curl/8", IPAddress: "203.0.113.7"}).
		Return(loginResult(u), nil)

	rec := h.do(http.MethodPost, "/api/v1/auth/login", `{"email":"user@example.com","password":"secret1"}`,
		"User-Agent", "curl/8", echo.HeaderXForwardedFor, "203.0.113.7, 10.0.0.1")

	require.Equal(t, http.StatusOK, rec.Code, rec.Body.String())
	assert.Equal(t, "Bearer new.access", rec.Header().Get(echo.HeaderAuthorization))

	access := cookieByName(rec, CookieAccessToken)
	require.NotNil(t, access)
	assert.Equal(t, "new.access", access.Value)
	assert.Equal(t, 86400, access.MaxAge)
	assert.True(t, access.HttpOnly)
	assert.Equal(t, http.SameSiteStrictMode, access.SameSite)
	assert.Equal(t, "/", access.Path)
	assert.False(t, access.Secure)

	refresh := cookieByName(rec, CookieRefreshToken)
	require.NotNil(t, refresh)
	assert.Equal(t, 30*86400, refresh.MaxAge)

	body := decode(t, rec)
	assert.Equal(t, "new.access", body["accessToken"])
	assert.Equal(t, "new-refresh", body["refreshToken"])
	user, _ := body["user"].(map[string]any)
	assert.NotContains(t, user, "passwordHash")
	assert.Equal(t, 1.0, testutil.ToFloat64(h.metrics.AuthEventsTotal.WithLabelValues("login", observability.OutcomeSuccess)))
}

func TestLogin_SecureCookiesInProduction(t *testing.T) {
	h := newHarness(t, func(c *Config) { c.SecureCookies = true })
	u := newUser(t, auth.RoleUser)
	h.resolver.On("ResolvePassword", mock.Anything, "user@example.com", "pw").
		Return(&auth.Principal{User: u, Public: u.Public()}, nil)
	h.sessions.On("Login", mock.Anything, u, mock.Anything).Return(loginResult(u), nil)

	rec := h.do(http.MethodPost, "/api/v1/auth/login", `{"email":"user@example.com","password":"pw"}`)
	require.Equal(t, http.StatusOK, rec.Code)
	assert.True(t, cookieByName(rec, CookieAccessToken).Secure)
	assert.True(t, cookieByName(rec, CookieRefreshToken).Secure)
}

func TestLogin_InvalidCredentials(t *testing.T) {
	h := newHarness(t)
	h.resolver.On("ResolvePassword", mock.Anything, "user@example.com", "wrong").
		Return(nil, oops.Code(auth.CodeInvalidCredentials).Errorf("password mismatch"))

	rec := h.do(http.MethodPost, "/api/v1/auth/login", `{"email":"user@example.com","password":"wrong"}`)

	assert.Equal(t, http.StatusUnauthorized, rec.Code)
	body := decode(t, rec)
	assert.Equal(t, 401.0, body["statusCode"])
	assert.Equal(t, auth.MsgInvalidCredentials, body["message"])
	assert.Equal(t, auth.CodeInvalidCredentials, body["code"])
	assert.Nil(t, cookieByName(rec, CookieAccessToken))
	assert.Equal(t, 1.0, testutil.ToFloat64(h.metrics.AuthEventsTotal.WithLabelValues("login", observability.OutcomeFailure)))
}

func TestLogin_Validation(t *testing.T) {
	h := newHarness(t)
	rec := h.do(http.MethodPost, "/api/v1/auth/login", `{"email":"not-an-email"}`)

	assert.Equal(t, http.StatusBadRequest, rec.Code)
	body := decode(t, rec)
	assert.Equal(t, CodeValidation, body["code"])
	fields, _ := body["errors"].(map[string]any)
	assert.Contains(t, fields, "email")
	assert.Contains(t, fields, "password")
}

func TestLogin_MalformedJSON(t *testing.T) {
	h := newHarness(t)
	rec := h.do(http.MethodPost, "/api/v1/auth/login", `{"email":`)
	assert.Equal(t, http.StatusBadRequest, rec.Code)
}

func TestRefresh(t *testing.T) {
	h := newHarness(t)
	u := newUser(t, auth.RoleUser)
	h.asUser(u)

	t.Run("unauthenticated", func(t *testing.T) {
		rec := h.do(http.MethodPost, "/api/v1/auth/refresh", `{"refreshToken":"r1"}`)
		assert.Equal(t, http.StatusUnauthorized, rec.Code)
		assert.Equal(t, CodeUnauthenticated, decode(t, rec)["code"])
	})

	t.Run("rotates with device ip from descriptor", func(t *testing.T) {
		h.sessions.On("Refresh", mock.Anything, u.ID, "r1", auth.DeviceInfo{UserAgent: "app/1", IPAddress: "198.51.100.2"}).
			Return(loginResult(u), nil).Once()
		rec := h.do(http.MethodPost, "/api/v1/auth/refresh", `{"refreshToken":"r1"}`,
			echo.HeaderAuthorization, bearer, "User-Agent", "app/1", echo.HeaderXForwardedFor, "198.51.100.2")
		require.Equal(t, http.StatusOK, rec.Code, rec.Body.String())
		assert.Equal(t, "new-refresh", cookieByName(rec, CookieRefreshToken).Value)
	})

	t.Run("no user agent records unknown ip", func(t *testing.T) {
		h.sessions.On("Refresh", mock.Anything, u.ID, "r2", auth.DeviceInfo{IPAddress: auth.UnknownIP}).
			Return(loginResult(u), nil).Once()
		req := httptest.NewRequest(http.MethodPost, "/api/v1/auth/refresh", strings.NewReader(`{"refreshToken":"r2"}`))
		req.Header.Set(echo.HeaderContentType, echo.MIMEApplicationJSON)
		req.Header.Set(echo.HeaderAuthorization, bearer)
		req.Header.Del("User-Agent")
		rec := httptest.NewRecorder()
		h.e.ServeHTTP(rec, req)
		assert.Equal(t, http.StatusOK, rec.Code, rec.Body.String())
	})

	t.Run("token from cookie", func(t *testing.T) {
		h.sessions.On("Refresh", mock.Anything, u.ID, "from-cookie", mock.Anything).Return(loginResult(u), nil).Once()
		req := httptest.NewRequest(http.MethodPost, "/api/v1/auth/refresh", nil)
		req.Header.Set(echo.HeaderAuthorization, bearer)
		req.AddCookie(&http.Cookie{Name: CookieRefreshToken, Value: "from-cookie"})
		rec := httptest.NewRecorder()
		h.e.ServeHTTP(rec, req)
		assert.Equal(t, http.StatusOK, rec.Code, rec.Body.String())
	})

	t.Run("missing token", func(t *testing.T) {
		rec := h.do(http.MethodPost, "/api/v1/auth/refresh", `{}`, echo.HeaderAuthorization, bearer)
		assert.Equal(t, http.StatusBadRequest, rec.Code)
	})

	t.Run("token of another account", func(t *testing.T) {
		h.sessions.On("Refresh", mock.Anything, u.ID, "foreign", mock.Anything).
			Return(nil, oops.Code(auth.CodeRefreshTokenMismatch).Errorf("mismatch")).Once()
		rec := h.do(http.MethodPost, "/api/v1/auth/refresh", `{"refreshToken":"foreign"}`, echo.HeaderAuthorization, bearer)
		assert.Equal(t, http.StatusBadRequest, rec.Code)
		assert.Equal(t, auth.MsgInvalidRefreshToken, decode(t, rec)["message"])
		assert.Nil(t, cookieByName(rec, CookieAccessToken))
	})
}

func TestBasicAuth(t *testing.T) {
	h := newHarness(t)
	u := newUser(t, auth.RoleUser)
	h.resolver.On("Resolve", mock.Anything, auth.Credentials{Strategy: auth.StrategyBasic, Email: "user@example.com", Password: "pw"}).
		Return(&auth.Principal{User: u, Public: u.Public(), Strategy: auth.StrategyBasic}, nil)

	req := httptest.NewRequest(http.MethodGet, "/api/v1/users/me", nil)
	req.SetBasicAuth("user@example.com", "pw")
	rec := httptest.NewRecorder()
	h.e.ServeHTTP(rec, req)

	require.Equal(t, http.StatusOK, rec.Code)
	assert.Equal(t, u.ID.String(), decode(t, rec)["id"])
}

func TestAuth_RejectsUnknownScheme(t *testing.T) {
	h := newHarness(t)
	rec := h.do(http.MethodGet, "/api/v1/users/me", "", echo.HeaderAuthorization, "Digest abc")
	assert.Equal(t, http.StatusUnauthorized, rec.Code)
}

func TestAuth_AccessTokenCookie(t *testing.T) {
	h := newHarness(t)
	h.resolver.On("Resolve", mock.Anything, auth.Credentials{Strategy: auth.StrategyBearer, Token: "cookie.jwt"}).
		Return(nil, oops.Code(auth.CodeAccessTokenExpired).Errorf("expired"))

	req := httptest.NewRequest(http.MethodGet, "/api/v1/users/me", nil)
	req.AddCookie(&http.Cookie{Name: CookieAccessToken, Value: "cookie.jwt"})
	rec := httptest.NewRecorder()
	h.e.ServeHTTP(rec, req)

	assert.Equal(t, http.StatusUnauthorized, rec.Code)
	assert.Equal(t, auth.MsgInvalidAccessToken, decode(t, rec)["message"])
}

func TestLogout(t *testing.T) {
	h := newHarness(t)
	u := newUser(t, auth.RoleUser)
	h.asUser(u)
	h.sessions.On("Logout", mock.Anything, u.ID, "r1", false).Return(auth.LogoutResult{Success: true})
	h.sessions.On("Logout", mock.Anything, u.ID, "", true).Return(auth.LogoutResult{Success: false})

	rec := h.do(http.MethodPost, "/api/v1/auth/logout", `{"refreshToken":"r1"}`, echo.HeaderAuthorization, bearer)
	require.Equal(t, http.StatusOK, rec.Code)
	assert.Equal(t, true, decode(t, rec)["success"])
	for _, name := range []string{CookieAccessToken, CookieRefreshToken, CookieAuthenticated} {
		c := cookieByName(rec, name)
		require.NotNil(t, c, name)
		assert.Equal(t, -1, c.MaxAge, name)
		assert.Empty(t, c.Value)
	}

	rec = h.do(http.MethodPost, "/api/v1/auth/logout-all-devices", "", echo.HeaderAuthorization, bearer)
	require.Equal(t, http.StatusOK, rec.Code)
	assert.Equal(t, false, decode(t, rec)["success"])
}

func TestPasswordResetFlow(t *testing.T) {
	h := newHarness(t)
	h.resets.On("RequestReset", mock.Anything, "a@example.com").
		Return(auth.OperationResult{Success: true, Message: auth.MsgResetRequested}, nil)

	rec := h.do(http.MethodPost, "/api/v1/auth/password-reset-request", `{"email":"a@example.com"}`)
	require.Equal(t, http.StatusOK, rec.Code)
	assert.Equal(t, auth.MsgResetRequested, decode(t, rec)["message"])

	u := newUser(t, auth.RoleUser)
	h.asUser(u)
	rec = h.do(http.MethodPost, "/api/v1/auth/password-reset", `{"token":"t","newPassword":"short"}`, echo.HeaderAuthorization, bearer)
	assert.Equal(t, http.StatusBadRequest, rec.Code)
	assert.Contains(t, decode(t, rec)["message"], "newPassword")

	h.resets.On("ResetPassword", mock.Anything, "used", "longenough").
		Return(auth.OperationResult{}, oops.Code(auth.CodeResetTokenInvalid).Errorf("used"))
	rec = h.do(http.MethodPost, "/api/v1/auth/password-reset", `{"token":"used","newPassword":"longenough"}`, echo.HeaderAuthorization, bearer)
	assert.Equal(t, http.StatusUnauthorized, rec.Code)
	assert.Equal(t, auth.MsgInvalidResetToken, decode(t, rec)["message"])
}

func TestEmailVerification(t *testing.T) {
	h := newHarness(t)
	h.verify.On("VerifyEmail", mock.Anything, "tok").Return(auth.OperationResult{Success: true, Message: auth.MsgEmailVerified}, nil)
	h.verify.On("ResendVerification", mock.Anything, "a@example.com").
		Return(auth.OperationResult{Success: false, Message: auth.MsgAlreadyVerified}, nil)

	rec := h.do(http.MethodPost, "/api/v1/auth/verify-email", `{"token":"tok"}`)
	require.Equal(t, http.StatusOK, rec.Code)
	assert.Equal(t, true, decode(t, rec)["success"])

	rec = h.do(http.MethodPost, "/api/v1/auth/resend-verification", `{"email":"a@example.com"}`)
	require.Equal(t, http.StatusOK, rec.Code)
	assert.Equal(t, auth.MsgAlreadyVerified, decode(t, rec)["message"])
}

func TestListSessions(t *testing.T) {
	h := newHarness(t)
	u := newUser(t, auth.RoleUser)
	h.asUser(u)
	h.sessions.On("ListSessions", mock.Anything, u.ID).Return([]auth.Session{{ID: "s1", IPAddress: "10.0.0.1"}}, nil)

	rec := h.do(http.MethodGet, "/api/v1/auth/sessions", "", echo.HeaderAuthorization, bearer)
	require.Equal(t, http.StatusOK, rec.Code)
	var sessions []auth.Session
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &sessions))
	require.Len(t, sessions, 1)
	assert.Equal(t, "s1", sessions[0].ID)
}

func TestRegister(t *testing.T) {
	t.Run("first user needs no credentials", func(t *testing.T) {
		h := newHarness(t)
		created := newUser(t, auth.RoleAdmin)
		h.users.On("Count", mock.Anything).Return(int64(0), nil)
		h.users.On("Register", mock.Anything, (*auth.User)(nil), auth.RegisterInput{Email: "admin@example.com", Password: "pw"}).
			Return(created, nil)

		rec := h.do(http.MethodPost, "/api/v1/users", `{"email":"admin@example.com","password":"pw"}`)
		require.Equal(t, http.StatusCreated, rec.Code, rec.Body.String())
		assert.Equal(t, "admin", decode(t, rec)["role"])
	})

	t.Run("later users need credentials", func(t *testing.T) {
		h := newHarness(t)
		h.users.On("Count", mock.Anything).Return(int64(1), nil)
		rec := h.do(http.MethodPost, "/api/v1/users", `{"email":"x@example.com","password":"pw"}`)
		assert.Equal(t, http.StatusUnauthorized, rec.Code)
	})

	t.Run("non admin is forbidden", func(t *testing.T) {
		h := newHarness(t)
		u := newUser(t, auth.RoleUser)
		h.asUser(u)
		h.users.On("Register", mock.Anything, u, mock.Anything).
			Return(nil, oops.Code(auth.CodeUserForbidden).New(auth.MsgAdminOnlyRegister))
		rec := h.do(http.MethodPost, "/api/v1/users", `{"email":"x@example.com","role":"user"}`, echo.HeaderAuthorization, bearer)
		assert.Equal(t, http.StatusForbidden, rec.Code)
		assert.Equal(t, auth.MsgAdminOnlyRegister, decode(t, rec)["message"])
	})

	t.Run("unknown role", func(t *testing.T) {
		h := newHarness(t)
		rec := h.do(http.MethodPost, "/api/v1/users", `{"email":"x@example.com","role":"root"}`)
		assert.Equal(t, http.StatusBadRequest, rec.Code)
	})
}

func TestSearchUsers(t *testing.T) {
	h := newHarness(t)
	admin := newUser(t, auth.RoleAdmin)
	h.asUser(admin)

	active := true
	want := auth.UserQuery{Email: "ex", Active: &active, Role: auth.RoleUser, SortBy: "email", SortAsc: true, Page: 2, Limit: 5}
	h.users.On("Search", mock.Anything, admin, want).
		Return(auth.NewPage([]auth.PublicUser{admin.Public()}, 6, 2, 5), nil)

	rec := h.do(http.MethodGet, "/api/v1/users?email=ex&isActive=true&role=user&sortBy=email&sortDirection=asc&page=2&limit=5",
		"", echo.HeaderAuthorization, bearer)
	require.Equal(t, http.StatusOK, rec.Code, rec.Body.String())
	body := decode(t, rec)
	assert.Equal(t, 6.0, body["total"])
	assert.Equal(t, 2.0, body["pageCount"])

	rec = h.do(http.MethodGet, "/api/v1/users?isActive=maybe&page=two", "", echo.HeaderAuthorization, bearer)
	assert.Equal(t, http.StatusBadRequest, rec.Code)
	fields, _ := decode(t, rec)["errors"].(map[string]any)
	assert.Contains(t, fields, "isActive")
	assert.Contains(t, fields, "page")
}

func TestUpdateUser(t *testing.T) {
	h := newHarness(t)
	u := newUser(t, auth.RoleUser)
	h.asUser(u)

	rec := h.do(http.MethodPatch, "/api/v1/users/not-a-ulid", `{"firstName":"A"}`, echo.HeaderAuthorization, bearer)
	assert.Equal(t, http.StatusNotFound, rec.Code)
	assert.Equal(t, auth.MsgUserNotFound, decode(t, rec)["message"])

	first := "Ada"
	h.users.On("Update", mock.Anything, u, u.ID, auth.UpdateInput{FirstName: &first}).Return(u, nil)
	rec = h.do(http.MethodPatch, "/api/v1/users/me", `{"firstName":"Ada"}`, echo.HeaderAuthorization, bearer)
	assert.Equal(t, http.StatusOK, rec.Code, rec.Body.String())

	other := ulid.Make()
	h.users.On("Update", mock.Anything, u, other, mock.Anything).
		Return(nil, oops.Code(auth.CodeUserForbidden).New(auth.MsgOwnProfileOnly))
	rec = h.do(http.MethodPatch, "/api/v1/users/"+other.String(), `{"isActive":false}`, echo.HeaderAuthorization, bearer)
	assert.Equal(t, http.StatusForbidden, rec.Code)

	rec = h.do(http.MethodPatch, "/api/v1/users/me", `{"avatar":"not a url"}`, echo.HeaderAuthorization, bearer)
	assert.Equal(t, http.StatusBadRequest, rec.Code)
}

func TestChangePassword(t *testing.T) {
	h := newHarness(t)
	u := newUser(t, auth.RoleUser)
	h.asUser(u)
	h.users.On("ChangePassword", mock.Anything, u, "old-pw", "new-pw").
		Return(auth.OperationResult{}, oops.Code(auth.CodeWrongPassword).Errorf("mismatch"))

	rec := h.do(http.MethodPatch, "/api/v1/users/me/password", `{"currentPassword":"old-pw","newPassword":"new-pw"}`,
		echo.HeaderAuthorization, bearer)
	assert.Equal(t, http.StatusBadRequest, rec.Code)
	assert.Equal(t, auth.MsgWrongPassword, decode(t, rec)["message"])
}

func TestDeleteUser(t *testing.T) {
	h := newHarness(t)
	admin := newUser(t, auth.RoleAdmin)
	h.asUser(admin)
	target := ulid.Make()
	h.users.On("Delete", mock.Anything, admin, target).Return(true, nil)
	h.users.On("Delete", mock.Anything, admin, admin.ID).
		Return(false, oops.Code(auth.CodeUserSelfDelete).Errorf("self"))

	rec := h.do(http.MethodDelete, "/api/v1/users/"+target.String(), "", echo.HeaderAuthorization, bearer)
	require.Equal(t, http.StatusOK, rec.Code)
	assert.Equal(t, true, decode(t, rec)["success"])

	rec = h.do(http.MethodDelete, "/api/v1/users/"+admin.ID.String(), "", echo.HeaderAuthorization, bearer)
	assert.Equal(t, http.StatusBadRequest, rec.Code)
	assert.Equal(t, auth.MsgSelfDelete, decode(t, rec)["message"])
}

func TestInternalErrorsAreGeneric(t *testing.T) {
	h := newHarness(t)
	u := newUser(t, auth.RoleUser)
	h.asUser(u)
	h.sessions.On("ListSessions", mock.Anything, u.ID).
		Return(nil, oops.Code("SESSION_LIST_FAILED").Wrap(errors.New("pq: connection reset")))

	rec := h.do(http.MethodGet, "/api/v1/auth/sessions", "", echo.HeaderAuthorization, bearer)
	assert.Equal(t, http.StatusInternalServerError, rec.Code)
	body := decode(t, rec)
	assert.Equal(t, MsgInternal, body["message"])
	assert.NotContains(t, rec.Body.String(), "connection reset")
	assert.Equal(t, 1.0, testutil.ToFloat64(h.metrics.HTTPRequestsTotal.WithLabelValues("GET", "/api/v1/auth/sessions", "500")))
}

func TestUnknownRoute(t *testing.T) {
	h := newHarness(t)
	rec := h.do(http.MethodGet, "/api/v1/nope", "")
	assert.Equal(t, http.StatusNotFound, rec.Code)
	assert.Equal(t, 404.0, decode(t, rec)["statusCode"])
}

func TestRequestID(t *testing.T) {
	h := newHarness(t)
	rec := h.do(http.MethodGet, "/api/v1/nope", "")
	assert.NotEmpty(t, rec.Header().Get(echo.HeaderXRequestID))
}

func TestCORS(t *testing.T) {
	h := newHarness(t, func(c *Config) { c.CORSOrigins = []string{"https://*.example.com"} })

	rec := h.do(http.MethodOptions, "/api/v1/auth/login", "",
		echo.HeaderOrigin, "https://app.example.com", echo.HeaderAccessControlRequestMethod, http.MethodPost)
	assert.Equal(t, "https://app.example.com", rec.Header().Get(echo.HeaderAccessControlAllowOrigin))
	assert.Equal(t, "true", rec.Header().Get(echo.HeaderAccessControlAllowCredentials))

	rec = h.do(http.MethodOptions, "/api/v1/auth/login", "",
		echo.HeaderOrigin, "https://evil.test", echo.HeaderAccessControlRequestMethod, http.MethodPost)
	assert.Empty(t, rec.Header().Get(echo.HeaderAccessControlAllowOrigin))
}

func TestNewOriginMatcher_Invalid(t *testing.T) {
	_, err := NewOriginMatcher([]string{"https://[a-"})
	assert.Error(t, err)
}

func TestOriginMatcher(t *testing.T) {
	m, err := NewOriginMatcher([]string{"https://*.example.com", "http://localhost:*"})
	require.NoError(t, err)

	assert.True(t, m.Match("https://app.example.com"))
	assert.True(t, m.Match("http://localhost:5173"))
	assert.False(t, m.Match("https://a.b.example.com"))
	assert.False(t, m.Match("https://example.org"))
}

func TestDeviceOnContext(t *testing.T) {
	e := echo.New()
	var got auth.DeviceInfo
	e.GET("/", func(c echo.Context) error {
		got, _ = auth.DeviceFromContext(c.Request().Context())
		return c.NoContent(http.StatusNoContent)
	}, device())

	req := httptest.NewRequest(http.MethodGet, "/", nil)
	req.Header.Set("User-Agent", "probe")
	req.RemoteAddr = "[::1]:5555"
	e.ServeHTTP(httptest.NewRecorder(), req)

	assert.Equal(t, auth.DeviceInfo{UserAgent: "probe", IPAddress: "127.0.0.1"}, got)
}

func TestErrorBody(t *testing.T) {
	tests := []struct {
		name   string
		err    error
		status int
		code   string
	}{
		{"validation", &ValidationError{Fields: map[string]string{"email": "is required"}}, 400, CodeValidation},
		{"echo", echo.ErrMethodNotAllowed, 405, CodeHTTP},
		{"unauthenticated", errUnauthenticated, 401, CodeUnauthenticated},
		{"not found", oops.Code(auth.CodeUserNotFound).Errorf("x"), 404, auth.CodeUserNotFound},
		{"forbidden", oops.Code(auth.CodeUserForbidden).New("no"), 403, auth.CodeUserForbidden},
		{"plain", errors.New("boom"), 500, CodeInternal},
		{"unknown code", oops.Code("DB_DOWN").Errorf("x"), 500, CodeInternal},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			b := errorBody(tt.err)
			assert.Equal(t, tt.status, b.StatusCode)
			assert.Equal(t, tt.code, b.Code)
		})
	}
}
