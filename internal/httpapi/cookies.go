// SPDX-License-Identifier: Apache-2.0
// Copyright 2026 HoloMUSH Contributors

package httpapi

import (
	"net/http"
	"time"

	"github.com/labstack/echo/v4"

	"github.com/holomush/authority/internal/auth"
)

// Cookie names.
const (
	CookieAccessToken   = "access_token"
	CookieRefreshToken  = "refresh_token"
	CookieAuthenticated = "authenticated"
)

func (a *API) cookie(name, value string, maxAge time.Duration) *http.Cookie {
	return &http.Cookie{
		Name:     name,
		Value:    value,
		Path:     "/",
		MaxAge:   int(maxAge / time.Second),
		HttpOnly: true,
		Secure:   a.secureCookies,
		SameSite: http.SameSiteStrictMode,
	}
}

// setSession emits the issued credentials as the Authorization header and
// as cookies that live as long as the tokens.
func (a *API) setSession(c echo.Context, res *auth.LoginResult) {
	c.Response().Header().Set(echo.HeaderAuthorization, "Bearer "+res.AccessToken)
	c.SetCookie(a.cookie(CookieAccessToken, res.AccessToken, a.sessions.AccessTTL()))
	c.SetCookie(a.cookie(CookieRefreshToken, res.RefreshToken, a.sessions.RefreshTTL()))
}

// clearSession expires every session cookie.
func (a *API) clearSession(c echo.Context) {
	for _, name := range []string{CookieAccessToken, CookieRefreshToken, CookieAuthenticated} {
		ck := a.cookie(name, "", 0)
		ck.MaxAge = -1
		ck.Expires = time.Unix(0, 0)
		c.SetCookie(ck)
	}
}

// refreshTokenFrom returns the token from the body, falling back to the
// refresh_token cookie.
func refreshTokenFrom(c echo.Context, body string) string {
	if body != "" {
		return body
	}
	if ck, err := c.Cookie(CookieRefreshToken); err == nil {
		return ck.Value
	}
	return ""
}
