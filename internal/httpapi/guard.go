// SPDX-License-Identifier: Apache-2.0
// Copyright 2026 HoloMUSH Contributors

package httpapi

import (
	"net/http"
	"strings"

	"github.com/labstack/echo/v4"

	"github.com/holomush/authority/internal/auth"
)

const principalKey = "authority.principal"

var errUnauthenticated = echo.NewHTTPError(http.StatusUnauthorized, "Unauthorized")

// presented extracts the credentials a request carries. Authorization
// headers win over the access_token cookie. ok is false when the request
// carries none.
func presented(c echo.Context) (creds auth.Credentials, ok bool, err error) {
	req := c.Request()
	if header := req.Header.Get(echo.HeaderAuthorization); header != "" {
		scheme, value, _ := strings.Cut(header, " ")
		value = strings.TrimSpace(value)
		switch {
		case strings.EqualFold(scheme, "Bearer") && value != "":
			return auth.Credentials{Strategy: auth.StrategyBearer, Token: value}, true, nil
		case strings.EqualFold(scheme, "Basic"):
			email, password, valid := req.BasicAuth()
			if !valid {
				return auth.Credentials{}, true, errUnauthenticated
			}
			return auth.Credentials{Strategy: auth.StrategyBasic, Email: email, Password: password}, true, nil
		default:
			return auth.Credentials{}, true, errUnauthenticated
		}
	}
	if cookie, cerr := c.Cookie(CookieAccessToken); cerr == nil && cookie.Value != "" {
		return auth.Credentials{Strategy: auth.StrategyBearer, Token: cookie.Value}, true, nil
	}
	return auth.Credentials{}, false, nil
}

// authenticate resolves the caller from bearer or basic credentials.
func (a *API) authenticate(c echo.Context) (*auth.Principal, error) {
	creds, ok, err := presented(c)
	if err != nil {
		return nil, err
	}
	if !ok {
		return nil, errUnauthenticated
	}
	p, err := a.resolver.Resolve(c.Request().Context(), creds)
	if err != nil {
		return nil, err
	}
	return p, nil
}

// requireAuth rejects requests without valid bearer or basic credentials.
func (a *API) requireAuth(next echo.HandlerFunc) echo.HandlerFunc {
	return func(c echo.Context) error {
		p, err := a.authenticate(c)
		if err != nil {
			return err
		}
		c.Set(principalKey, p)
		return next(c)
	}
}

// optionalAuth resolves credentials when present and continues anonymously
// otherwise. Invalid credentials are still rejected.
func (a *API) optionalAuth(next echo.HandlerFunc) echo.HandlerFunc {
	return func(c echo.Context) error {
		if _, ok, _ := presented(c); !ok {
			return next(c)
		}
		return a.requireAuth(next)(c)
	}
}

// principalOf returns the authenticated caller, or nil.
func principalOf(c echo.Context) *auth.Principal {
	p, _ := c.Get(principalKey).(*auth.Principal)
	return p
}

// actorOf returns the authenticated user, or nil.
func actorOf(c echo.Context) *auth.User {
	if p := principalOf(c); p != nil {
		return p.User
	}
	return nil
}
