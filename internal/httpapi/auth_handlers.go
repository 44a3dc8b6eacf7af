// SPDX-License-Identifier: Apache-2.0
// Copyright 2026 HoloMUSH Contributors

package httpapi

import (
	"github.com/labstack/echo/v4"

	"github.com/holomush/authority/internal/auth"
)

type loginRequest struct {
	Email    string `json:"email" validate:"required,email"`
	Password string `json:"password" validate:"required"`
}

type refreshRequest struct {
	RefreshToken string `json:"refreshToken"`
}

type emailRequest struct {
	Email string `json:"email" validate:"required,email"`
}

type passwordResetRequest struct {
	Token       string `json:"token" validate:"required"`
	NewPassword string `json:"newPassword" validate:"required,min=6"`
}

type tokenRequest struct {
	Token string `json:"token" validate:"required"`
}

func (a *API) login(c echo.Context) error {
	var req loginRequest
	if err := bind(c, &req); err != nil {
		return err
	}
	ctx := c.Request().Context()

	p, err := a.resolver.ResolvePassword(ctx, req.Email, req.Password)
	if err != nil {
		a.record("login", err)
		return err
	}
	res, err := a.sessions.Login(ctx, p.User, requestDevice(c))
	a.record("login", err)
	if err != nil {
		return err
	}
	a.setSession(c, res)
	return ok(c, res)
}

func (a *API) refresh(c echo.Context) error {
	var req refreshRequest
	if err := bind(c, &req); err != nil {
		return err
	}
	token := refreshTokenFrom(c, req.RefreshToken)
	if token == "" {
		return &ValidationError{Fields: map[string]string{"refreshToken": "is required"}}
	}

	// The session records the ip carried by the device descriptor, which is
	// "unknown" for clients that send no user agent.
	d := requestDevice(c)
	d.IPAddress = auth.IPFromDescriptor(d.Describe())

	res, err := a.sessions.Refresh(c.Request().Context(), actorOf(c).ID, token, d)
	a.record("refresh", err)
	if err != nil {
		return err
	}
	a.setSession(c, res)
	return ok(c, res)
}

func (a *API) logout(c echo.Context) error {
	var req refreshRequest
	if err := bind(c, &req); err != nil {
		return err
	}
	res := a.sessions.Logout(c.Request().Context(), actorOf(c).ID, refreshTokenFrom(c, req.RefreshToken), false)
	a.clearSession(c)
	return ok(c, res)
}

func (a *API) logoutAll(c echo.Context) error {
	res := a.sessions.Logout(c.Request().Context(), actorOf(c).ID, "", true)
	a.clearSession(c)
	return ok(c, res)
}

func (a *API) requestPasswordReset(c echo.Context) error {
	var req emailRequest
	if err := bind(c, &req); err != nil {
		return err
	}
	res, err := a.resets.RequestReset(c.Request().Context(), req.Email)
	a.record("password_reset_request", err)
	if err != nil {
		return err
	}
	return ok(c, res)
}

func (a *API) resetPassword(c echo.Context) error {
	var req passwordResetRequest
	if err := bind(c, &req); err != nil {
		return err
	}
	res, err := a.resets.ResetPassword(c.Request().Context(), req.Token, req.NewPassword)
	a.record("password_reset", err)
	if err != nil {
		return err
	}
	return ok(c, res)
}

func (a *API) verifyEmail(c echo.Context) error {
	var req tokenRequest
	if err := bind(c, &req); err != nil {
		return err
	}
	res, err := a.verifications.VerifyEmail(c.Request().Context(), req.Token)
	a.record("email_verify", err)
	if err != nil {
		return err
	}
	return ok(c, res)
}

func (a *API) resendVerification(c echo.Context) error {
	var req emailRequest
	if err := bind(c, &req); err != nil {
		return err
	}
	res, err := a.verifications.ResendVerification(c.Request().Context(), req.Email)
	if err != nil {
		return err
	}
	return ok(c, res)
}

func (a *API) listSessions(c echo.Context) error {
	sessions, err := a.sessions.ListSessions(c.Request().Context(), actorOf(c).ID)
	if err != nil {
		return err
	}
	return ok(c, sessions)
}
