// SPDX-License-Identifier: Apache-2.0
// Copyright 2026 HoloMUSH Contributors

package httpapi

import (
	"errors"
	"net/http"
	"strconv"
	"strings"

	"github.com/labstack/echo/v4"
	"github.com/oklog/ulid/v2"
	"github.com/samber/oops"

	"github.com/holomush/authority/internal/auth"
)

type registerRequest struct {
	Email     string  `json:"email" validate:"required,email"`
	Password  string  `json:"password"`
	FirstName *string `json:"firstName"`
	LastName  *string `json:"lastName"`
	Role      string  `json:"role" validate:"omitempty,oneof=admin user"`
}

type updateUserRequest struct {
	Email     *string `json:"email" validate:"omitempty,email"`
	FirstName *string `json:"firstName"`
	LastName  *string `json:"lastName"`
	Avatar    *string `json:"avatar" validate:"omitempty,url"`
	IsActive  *bool   `json:"isActive"`
}

type changePasswordRequest struct {
	CurrentPassword string `json:"currentPassword" validate:"required"`
	NewPassword     string `json:"newPassword" validate:"required,min=6"`
}

type deleteResponse struct {
	Success bool `json:"success"`
}

// pathUserID parses the :id parameter. Routes without one, and "me", name
// the caller. A malformed id names no user.
func pathUserID(c echo.Context) (ulid.ULID, error) {
	raw := c.Param("id")
	if raw == "" || raw == "me" {
		return actorOf(c).ID, nil
	}
	id, err := ulid.Parse(raw)
	if err != nil {
		return ulid.ULID{}, oops.Code(auth.CodeUserNotFound).With("user_id", raw).Wrap(err)
	}
	return id, nil
}

func (a *API) register(c echo.Context) error {
	var req registerRequest
	if err := bind(c, &req); err != nil {
		return err
	}
	ctx := c.Request().Context()

	actor := actorOf(c)
	if actor == nil {
		n, err := a.users.Count(ctx)
		if err != nil {
			return err
		}
		if n > 0 {
			return errUnauthenticated
		}
	}

	user, err := a.users.Register(ctx, actor, auth.RegisterInput{
		Email:     req.Email,
		Password:  req.Password,
		FirstName: req.FirstName,
		LastName:  req.LastName,
		Role:      auth.Role(req.Role),
	})
	if err != nil {
		return err
	}
	return c.JSON(http.StatusCreated, user.Public())
}

func (a *API) searchUsers(c echo.Context) error {
	q, err := parseUserQuery(c)
	if err != nil {
		return err
	}
	page, err := a.users.Search(c.Request().Context(), actorOf(c), q)
	if err != nil {
		return err
	}
	return ok(c, page)
}

// parseUserQuery reads the search filters, sort and paging from the query
// string.
func parseUserQuery(c echo.Context) (auth.UserQuery, error) {
	q := auth.UserQuery{
		Email:     c.QueryParam("email"),
		FirstName: c.QueryParam("firstName"),
		LastName:  c.QueryParam("lastName"),
		Role:      auth.Role(c.QueryParam("role")),
		SortBy:    c.QueryParam("sortBy"),
		SortAsc:   strings.EqualFold(c.QueryParam("sortDirection"), "ASC"),
	}
	invalid := map[string]string{}

	for _, err := range echo.QueryParamsBinder(c).Int("page", &q.Page).Int("limit", &q.Limit).BindErrors() {
		var be *echo.BindingError
		if errors.As(err, &be) {
			invalid[be.Field] = "must be a number"
		}
	}
	var err error
	if q.Active, err = optionalBool(c, "isActive"); err != nil {
		invalid["isActive"] = "must be true or false"
	}
	if q.EmailVerified, err = optionalBool(c, "isEmailVerified"); err != nil {
		invalid["isEmailVerified"] = "must be true or false"
	}
	if len(invalid) > 0 {
		return auth.UserQuery{}, &ValidationError{Fields: invalid}
	}
	return q, nil
}

func optionalBool(c echo.Context, name string) (*bool, error) {
	raw := c.QueryParam(name)
	if raw == "" {
		return nil, nil
	}
	v, err := strconv.ParseBool(raw)
	if err != nil {
		return nil, err
	}
	return &v, nil
}

func (a *API) profile(c echo.Context) error {
	return ok(c, principalOf(c).Public)
}

func (a *API) viewUser(c echo.Context) error {
	id, err := pathUserID(c)
	if err != nil {
		return err
	}
	user, err := a.users.View(c.Request().Context(), actorOf(c), id)
	if err != nil {
		return err
	}
	return ok(c, user.Public())
}

func (a *API) updateUser(c echo.Context) error {
	id, err := pathUserID(c)
	if err != nil {
		return err
	}
	var req updateUserRequest
	if err := bind(c, &req); err != nil {
		return err
	}
	user, err := a.users.Update(c.Request().Context(), actorOf(c), id, auth.UpdateInput{
		Email:     req.Email,
		FirstName: req.FirstName,
		LastName:  req.LastName,
		Avatar:    req.Avatar,
		Active:    req.IsActive,
	})
	if err != nil {
		return err
	}
	return ok(c, user.Public())
}

func (a *API) changePassword(c echo.Context) error {
	var req changePasswordRequest
	if err := bind(c, &req); err != nil {
		return err
	}
	res, err := a.users.ChangePassword(c.Request().Context(), actorOf(c), req.CurrentPassword, req.NewPassword)
	a.record("password_change", err)
	if err != nil {
		return err
	}
	return ok(c, res)
}

func (a *API) deleteUser(c echo.Context) error {
	id, err := pathUserID(c)
	if err != nil {
		return err
	}
	deleted, err := a.users.Delete(c.Request().Context(), actorOf(c), id)
	if err != nil {
		return err
	}
	return ok(c, deleteResponse{Success: deleted})
}
