// SPDX-License-Identifier: Apache-2.0
// Copyright 2026 HoloMUSH Contributors

package auth

import (
	"errors"

	"github.com/samber/oops"
)

// ErrNotFound is returned when a requested entity does not exist.
var ErrNotFound = errors.New("not found")

// Kind classifies a domain error for the transport layer.
type Kind int

// Error kinds, ordered by how the HTTP layer reports them.
const (
	KindInternal Kind = iota
	KindBadRequest
	KindUnauthorized
	KindForbidden
	KindNotFound
)

// String returns the kind name.
func (k Kind) String() string {
	switch k {
	case KindBadRequest:
		return "bad_request"
	case KindUnauthorized:
		return "unauthorized"
	case KindForbidden:
		return "forbidden"
	case KindNotFound:
		return "not_found"
	default:
		return "internal"
	}
}

// Error codes surfaced to callers. Codes not listed in codeKinds are internal.
const (
	CodeEmptyPassword        = "AUTH_EMPTY_PASSWORD"
	CodePasswordTooLong      = "AUTH_PASSWORD_TOO_LONG"
	CodeInvalidCredentials   = "AUTH_INVALID_CREDENTIALS"
	CodeUserNotFoundForToken = "AUTH_USER_NOT_FOUND"
	CodeAccessTokenInvalid   = "ACCESS_TOKEN_INVALID"
	CodeAccessTokenExpired   = "ACCESS_TOKEN_EXPIRED"
	CodeRefreshTokenInvalid  = "REFRESH_TOKEN_INVALID"
	CodeRefreshTokenMismatch = "REFRESH_TOKEN_MISMATCH"
	CodeResetTokenInvalid    = "RESET_TOKEN_INVALID"
	CodeVerifyTokenInvalid   = "VERIFICATION_TOKEN_INVALID"
	CodeVerifyTokenExpired   = "VERIFICATION_TOKEN_EXPIRED"
	CodeTokenOwnerMissing    = "TOKEN_USER_NOT_FOUND"
	CodeEmailUnknown         = "USER_EMAIL_UNKNOWN"
	CodeEmailTaken           = "USER_EMAIL_TAKEN"
	CodeUserNotFound         = "USER_NOT_FOUND"
	CodeUserForbidden        = "USER_FORBIDDEN"
	CodeUserSelfDelete       = "USER_SELF_DELETE"
	CodeUserInvalid          = "USER_INVALID"
	CodeWrongPassword        = "USER_WRONG_PASSWORD"
)

// Public messages. These are returned to clients verbatim.
const (
	MsgInvalidCredentials  = "Invalid credentials"
	MsgUserNotFound        = "User not found"
	MsgInvalidAccessToken  = "Invalid or expired token"
	MsgInvalidRefreshToken = "Invalid or expired refresh token"
	MsgInvalidResetToken   = "Invalid or expired password reset token"
	MsgInvalidVerifyToken  = "Invalid or expired verification token"
	MsgExpiredVerifyToken  = "Expired verification token"
	MsgEmailUnknown        = "User with this email does not exist"
	MsgEmailTaken          = "User with this email already exists"
	MsgAdminOnlyRegister   = "Only administrators can create new users"
	MsgAdminOnlyList       = "Only administrators can access the users list"
	MsgAdminOnlyDelete     = "Only administrators can delete users"
	MsgOwnProfileOnly      = "You can only update your own profile"
	MsgSelfDelete          = "You cannot delete your own account"
	MsgWrongPassword       = "Current password is incorrect"
)

type codeInfo struct {
	kind    Kind
	message string // empty means use the error text
}

var codeKinds = map[string]codeInfo{
	CodeEmptyPassword:        {KindBadRequest, ""},
	CodePasswordTooLong:      {KindBadRequest, ""},
	CodeInvalidCredentials:   {KindUnauthorized, MsgInvalidCredentials},
	CodeUserNotFoundForToken: {KindUnauthorized, MsgUserNotFound},
	CodeAccessTokenInvalid:   {KindUnauthorized, MsgInvalidAccessToken},
	CodeAccessTokenExpired:   {KindUnauthorized, MsgInvalidAccessToken},
	CodeRefreshTokenInvalid:  {KindBadRequest, MsgInvalidRefreshToken},
	CodeRefreshTokenMismatch: {KindBadRequest, MsgInvalidRefreshToken},
	CodeResetTokenInvalid:    {KindUnauthorized, MsgInvalidResetToken},
	CodeVerifyTokenInvalid:   {KindUnauthorized, MsgInvalidVerifyToken},
	CodeVerifyTokenExpired:   {KindUnauthorized, MsgExpiredVerifyToken},
	CodeTokenOwnerMissing:    {KindBadRequest, MsgUserNotFound},
	CodeEmailUnknown:         {KindBadRequest, MsgEmailUnknown},
	CodeEmailTaken:           {KindBadRequest, MsgEmailTaken},
	CodeUserNotFound:         {KindNotFound, MsgUserNotFound},
	CodeUserForbidden:        {KindForbidden, ""},
	CodeUserSelfDelete:       {KindBadRequest, MsgSelfDelete},
	CodeUserInvalid:          {KindBadRequest, ""},
	CodeWrongPassword:        {KindBadRequest, MsgWrongPassword},
}

// Classify maps err to its Kind and the message safe to show a client.
// Unknown errors are KindInternal with an empty message.
func Classify(err error) (Kind, string) {
	oopsErr, ok := oops.AsOops(err)
	if !ok {
		return KindInternal, ""
	}
	code, _ := oopsErr.Code().(string)
	info, known := codeKinds[code]
	if !known {
		return KindInternal, ""
	}
	if info.message != "" {
		return info.kind, info.message
	}
	return info.kind, oopsErr.Error()
}

// CodeOf returns the oops code carried by err, or "" if there is none.
func CodeOf(err error) string {
	oopsErr, ok := oops.AsOops(err)
	if !ok {
		return ""
	}
	code, _ := oopsErr.Code().(string)
	return code
}
