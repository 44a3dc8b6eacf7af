// SPDX-License-Identifier: Apache-2.0
// Copyright 2026 HoloMUSH Contributors

package httpapi

import (
	"log/slog"
	"net/http"
	"strconv"
	"time"

	"github.com/gobwas/glob"
	"github.com/labstack/echo/v4"
	"github.com/labstack/echo/v4/middleware"
	"github.com/samber/oops"
	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	"go.opentelemetry.io/otel/trace"

	"github.com/holomush/authority/internal/auth"
	"github.com/holomush/authority/internal/observability"
)

var tracer = otel.Tracer("github.com/holomush/authority/internal/httpapi")

// tracing starts a server span per request and puts it on the request
// context, so log lines written while handling carry its trace id.
func tracing() echo.MiddlewareFunc {
	return func(next echo.HandlerFunc) echo.HandlerFunc {
		return func(c echo.Context) error {
			req := c.Request()
			route := c.Path()
			ctx, span := tracer.Start(req.Context(), req.Method+" "+route,
				trace.WithSpanKind(trace.SpanKindServer),
				trace.WithAttributes(
					attribute.String("http.request.method", req.Method),
					attribute.String("http.route", route),
				),
			)
			defer span.End()
			c.SetRequest(req.WithContext(ctx))

			err := next(c)
			status := statusOf(c, err)
			span.SetAttributes(attribute.Int("http.response.status_code", status))
			if status >= http.StatusInternalServerError {
				span.SetStatus(codes.Error, http.StatusText(status))
			}
			if err != nil {
				span.RecordError(err)
			}
			return err
		}
	}
}

// statusOf returns the status the response has, or will have once err is
// handled.
func statusOf(c echo.Context, err error) int {
	if err != nil && !c.Response().Committed {
		return errorBody(err).StatusCode
	}
	return c.Response().Status
}

// requestLogger writes one log line per request.
func requestLogger(logger *slog.Logger) echo.MiddlewareFunc {
	return middleware.RequestLoggerWithConfig(middleware.RequestLoggerConfig{
		LogMethod:    true,
		LogURIPath:   true,
		LogRoutePath: true,
		LogStatus:    true,
		LogLatency:   true,
		LogRequestID: true,
		LogRemoteIP:  true,
		HandleError:  true,
		LogValuesFunc: func(c echo.Context, v middleware.RequestLoggerValues) error {
			level := slog.LevelInfo
			if v.Status >= http.StatusInternalServerError {
				level = slog.LevelError
			}
			logger.LogAttrs(c.Request().Context(), level, "request",
				slog.String("method", v.Method),
				slog.String("path", v.URIPath),
				slog.String("route", v.RoutePath),
				slog.Int("status", v.Status),
				slog.Duration("latency", v.Latency),
				slog.String("request_id", v.RequestID),
				slog.String("remote_ip", v.RemoteIP),
			)
			return nil
		},
	})
}

// instrument records request count and latency by route.
func instrument(m *observability.Metrics) echo.MiddlewareFunc {
	return func(next echo.HandlerFunc) echo.HandlerFunc {
		return func(c echo.Context) error {
			start := time.Now()
			err := next(c)

			method, route := c.Request().Method, c.Path()
			m.HTTPRequestsTotal.WithLabelValues(method, route, strconv.Itoa(statusOf(c, err))).Inc()
			m.HTTPRequestDuration.WithLabelValues(method, route).Observe(time.Since(start).Seconds())
			return err
		}
	}
}

// OriginMatcher reports whether a browser origin may call the API.
type OriginMatcher struct {
	patterns []glob.Glob
}

// NewOriginMatcher compiles origin patterns such as
// "https://*.example.com". A "*" does not match across dots.
func NewOriginMatcher(patterns []string) (*OriginMatcher, error) {
	m := &OriginMatcher{}
	for _, p := range patterns {
		g, err := glob.Compile(p, '.')
		if err != nil {
			return nil, oops.Code("CORS_ORIGIN_INVALID").With("pattern", p).Wrap(err)
		}
		m.patterns = append(m.patterns, g)
	}
	return m, nil
}

// Match reports whether origin matches any pattern.
func (m *OriginMatcher) Match(origin string) bool {
	for _, g := range m.patterns {
		if g.Match(origin) {
			return true
		}
	}
	return false
}

func cors(m *OriginMatcher) echo.MiddlewareFunc {
	return middleware.CORSWithConfig(middleware.CORSConfig{
		AllowOriginFunc: func(origin string) (bool, error) {
			return m.Match(origin), nil
		},
		AllowMethods:     []string{http.MethodGet, http.MethodPost, http.MethodPatch, http.MethodDelete, http.MethodOptions},
		AllowHeaders:     []string{echo.HeaderAuthorization, echo.HeaderContentType, echo.HeaderXRequestID},
		ExposeHeaders:    []string{echo.HeaderAuthorization, echo.HeaderXRequestID},
		AllowCredentials: true,
		MaxAge:           600,
	})
}

// clientIP prefers the raw X-Forwarded-For list, whose first entry
// auth.NormalizeIP keeps, over echo's RealIP.
func clientIP(c echo.Context) string {
	if xff := c.Request().Header.Get(echo.HeaderXForwardedFor); xff != "" {
		return xff
	}
	return c.RealIP()
}

// requestDevice describes the calling client.
func requestDevice(c echo.Context) auth.DeviceInfo {
	return auth.NewDeviceInfo(c.Request().UserAgent(), clientIP(c))
}

// device stores the client's device on the request context for audit
// entries.
func device() echo.MiddlewareFunc {
	return func(next echo.HandlerFunc) echo.HandlerFunc {
		return func(c echo.Context) error {
			req := c.Request()
			c.SetRequest(req.WithContext(auth.WithDevice(req.Context(), requestDevice(c))))
			return next(c)
		}
	}
}
