// SPDX-License-Identifier: Apache-2.0
// Copyright 2026 HoloMUSH Contributors

package httpapi

import (
	"errors"
	"log/slog"
	"net/http"

	"github.com/labstack/echo/v4"

	"github.com/holomush/authority/internal/auth"
	"github.com/holomush/authority/pkg/errutil"
)

// MsgInternal is shown for every error that is not a known domain failure.
const MsgInternal = "Internal server error"

// Codes for failures detected by the HTTP layer itself.
const (
	CodeValidation      = "REQUEST_INVALID"
	CodeUnauthenticated = "UNAUTHENTICATED"
	CodeHTTP            = "HTTP_ERROR"
	CodeInternal        = "INTERNAL"
)

// ErrorBody is the JSON shape of every error response.
type ErrorBody struct {
	StatusCode int               `json:"statusCode"`
	Message    string            `json:"message"`
	Code       string            `json:"code,omitempty"`
	Errors     map[string]string `json:"errors,omitempty"`
}

var kindStatus = map[auth.Kind]int{
	auth.KindBadRequest:   http.StatusBadRequest,
	auth.KindUnauthorized: http.StatusUnauthorized,
	auth.KindForbidden:    http.StatusForbidden,
	auth.KindNotFound:     http.StatusNotFound,
}

// errorBody classifies err into a status and response body. Unclassified
// errors become a 500 with a generic message.
func errorBody(err error) ErrorBody {
	var verr *ValidationError
	if errors.As(err, &verr) {
		return ErrorBody{
			StatusCode: http.StatusBadRequest,
			Message:    verr.Error(),
			Code:       CodeValidation,
			Errors:     verr.Fields,
		}
	}

	var herr *echo.HTTPError
	if errors.As(err, &herr) {
		msg := http.StatusText(herr.Code)
		if s, ok := herr.Message.(string); ok && s != "" {
			msg = s
		}
		code := CodeHTTP
		if herr.Code == http.StatusUnauthorized {
			code = CodeUnauthenticated
		}
		return ErrorBody{StatusCode: herr.Code, Message: msg, Code: code}
	}

	kind, msg := auth.Classify(err)
	status, ok := kindStatus[kind]
	if !ok {
		return ErrorBody{StatusCode: http.StatusInternalServerError, Message: MsgInternal, Code: CodeInternal}
	}
	return ErrorBody{StatusCode: status, Message: msg, Code: auth.CodeOf(err)}
}

// newErrorHandler returns the echo.HTTPErrorHandler of the API.
func newErrorHandler(logger *slog.Logger) echo.HTTPErrorHandler {
	return func(err error, c echo.Context) {
		if c.Response().Committed {
			return
		}
		body := errorBody(err)

		req := c.Request()
		if body.StatusCode >= http.StatusInternalServerError {
			attrs := append([]any{"method", req.Method, "route", c.Path()}, errutil.Attrs(err)...)
			logger.ErrorContext(req.Context(), "request failed", attrs...)
		} else {
			logger.DebugContext(req.Context(), "request rejected",
				"method", req.Method,
				"route", c.Path(),
				"status", body.StatusCode,
				"code", body.Code,
			)
		}

		var werr error
		if req.Method == http.MethodHead {
			werr = c.NoContent(body.StatusCode)
		} else {
			werr = c.JSON(body.StatusCode, body)
		}
		if werr != nil {
			logger.WarnContext(req.Context(), "writing error response", "error", werr)
		}
	}
}
