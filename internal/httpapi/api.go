// SPDX-License-Identifier: Apache-2.0
// Copyright 2026 HoloMUSH Contributors

package httpapi

import (
	"context"
	"log/slog"
	"net/http"
	"time"

	"github.com/labstack/echo/v4"
	"github.com/labstack/echo/v4/middleware"
	"github.com/oklog/ulid/v2"
	"github.com/samber/oops"

	"github.com/holomush/authority/internal/auth"
	"github.com/holomush/authority/internal/observability"
)

// Resolver turns presented credentials into a principal.
type Resolver interface {
	Resolve(ctx context.Context, c auth.Credentials) (*auth.Principal, error)
	ResolvePassword(ctx context.Context, email, password string) (*auth.Principal, error)
}

// Sessions issues, rotates and revokes session credentials.
type Sessions interface {
	Login(ctx context.Context, user *auth.User, device auth.DeviceInfo) (*auth.LoginResult, error)
	Refresh(ctx context.Context, callerID ulid.ULID, token string, device auth.DeviceInfo) (*auth.LoginResult, error)
	Logout(ctx context.Context, userID ulid.ULID, token string, all bool) auth.LogoutResult
	ListSessions(ctx context.Context, userID ulid.ULID) ([]auth.Session, error)
	AccessTTL() time.Duration
	RefreshTTL() time.Duration
}

// PasswordResets runs the password reset flow.
type PasswordResets interface {
	RequestReset(ctx context.Context, email string) (auth.OperationResult, error)
	ResetPassword(ctx context.Context, token, newPassword string) (auth.OperationResult, error)
}

// EmailVerifications runs the email verification flow.
type EmailVerifications interface {
	VerifyEmail(ctx context.Context, token string) (auth.OperationResult, error)
	ResendVerification(ctx context.Context, email string) (auth.OperationResult, error)
}

// Users manages accounts on behalf of the caller.
type Users interface {
	Count(ctx context.Context) (int64, error)
	Register(ctx context.Context, actor *auth.User, in auth.RegisterInput) (*auth.User, error)
	View(ctx context.Context, actor *auth.User, id ulid.ULID) (*auth.User, error)
	Search(ctx context.Context, actor *auth.User, q auth.UserQuery) (auth.Page[auth.PublicUser], error)
	Update(ctx context.Context, actor *auth.User, id ulid.ULID, in auth.UpdateInput) (*auth.User, error)
	ChangePassword(ctx context.Context, actor *auth.User, current, next string) (auth.OperationResult, error)
	Delete(ctx context.Context, actor *auth.User, id ulid.ULID) (bool, error)
}

// Services are the domain operations the API exposes.
type Services struct {
	Resolver      Resolver
	Sessions      Sessions
	Resets        PasswordResets
	Verifications EmailVerifications
	Users         Users
}

// Config configures the API.
type Config struct {
	// BasePath prefixes every route, such as "/api/v1".
	BasePath string
	// CORSOrigins are glob patterns of browser origins allowed to call the
	// API. Empty disables CORS.
	CORSOrigins []string
	// SecureCookies marks session cookies Secure. Set in production.
	SecureCookies bool
	Logger        *slog.Logger
	// Metrics may be nil.
	Metrics *observability.Metrics
}

// API holds the handlers and their dependencies.
type API struct {
	resolver      Resolver
	sessions      Sessions
	resets        PasswordResets
	verifications EmailVerifications
	users         Users

	secureCookies bool
	logger        *slog.Logger
	metrics       *observability.Metrics
}

// New builds the echo instance serving the API.
func New(cfg Config, svc Services) (*echo.Echo, error) {
	switch {
	case svc.Resolver == nil:
		return nil, oops.Errorf("credential resolver is required")
	case svc.Sessions == nil:
		return nil, oops.Errorf("session service is required")
	case svc.Resets == nil:
		return nil, oops.Errorf("password reset service is required")
	case svc.Verifications == nil:
		return nil, oops.Errorf("email verification service is required")
	case svc.Users == nil:
		return nil, oops.Errorf("user service is required")
	}
	logger := cfg.Logger
	if logger == nil {
		logger = slog.Default()
	}

	a := &API{
		resolver:      svc.Resolver,
		sessions:      svc.Sessions,
		resets:        svc.Resets,
		verifications: svc.Verifications,
		users:         svc.Users,
		secureCookies: cfg.SecureCookies,
		logger:        logger,
		metrics:       cfg.Metrics,
	}

	e := echo.New()
	e.HideBanner = true
	e.HidePort = true
	e.Validator = newRequestValidator()
	e.HTTPErrorHandler = newErrorHandler(logger)

	e.Use(middleware.RequestID())
	e.Use(tracing())
	e.Use(requestLogger(logger))
	if cfg.Metrics != nil {
		e.Use(instrument(cfg.Metrics))
	}
	if len(cfg.CORSOrigins) > 0 {
		origins, err := NewOriginMatcher(cfg.CORSOrigins)
		if err != nil {
			return nil, err
		}
		e.Use(cors(origins))
	}
	e.Use(middleware.RecoverWithConfig(middleware.RecoverConfig{
		LogErrorFunc: func(c echo.Context, err error, stack []byte) error {
			logger.ErrorContext(c.Request().Context(), "handler panic",
				"error", err, "route", c.Path(), "stack", string(stack))
			return err
		},
	}))
	e.Use(device())

	a.routes(e.Group(normalizeBase(cfg.BasePath)))
	return e, nil
}

func normalizeBase(p string) string {
	if p == "/" {
		return ""
	}
	return p
}

func (a *API) routes(g *echo.Group) {
	g.POST("/auth/login", a.login)
	g.POST("/auth/refresh", a.refresh, a.requireAuth)
	g.POST("/auth/logout", a.logout, a.requireAuth)
	g.POST("/auth/logout-all-devices", a.logoutAll, a.requireAuth)
	g.POST("/auth/password-reset-request", a.requestPasswordReset)
	g.POST("/auth/password-reset", a.resetPassword, a.requireAuth)
	g.POST("/auth/verify-email", a.verifyEmail)
	g.POST("/auth/resend-verification", a.resendVerification)
	g.GET("/auth/sessions", a.listSessions, a.requireAuth)

	g.POST("/users", a.register, a.optionalAuth)
	g.GET("/users", a.searchUsers, a.requireAuth)
	g.GET("/users/me", a.profile, a.requireAuth)
	g.PATCH("/users/me", a.updateUser, a.requireAuth)
	g.PATCH("/users/me/password", a.changePassword, a.requireAuth)
	g.GET("/users/:id", a.viewUser, a.requireAuth)
	g.PATCH("/users/:id", a.updateUser, a.requireAuth)
	g.DELETE("/users/:id", a.deleteUser, a.requireAuth)
}

// bind decodes the request into dst and validates it.
func bind(c echo.Context, dst any) error {
	if err := c.Bind(dst); err != nil {
		return err
	}
	return c.Validate(dst)
}

// record counts an authentication event when metrics are enabled.
func (a *API) record(event string, err error) {
	a.metrics.RecordAuthEvent(event, err)
}

// ok writes v as a 200 JSON response.
func ok(c echo.Context, v any) error {
	return c.JSON(http.StatusOK, v)
}
