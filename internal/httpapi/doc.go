// SPDX-License-Identifier: Apache-2.0
// Copyright 2026 HoloMUSH Contributors

// Package httpapi exposes the authority over HTTP with echo.
//
// Routes are mounted under a base path such as /api/v1. Authenticated
// routes accept an access token (Authorization: Bearer or the access_token
// cookie) or HTTP Basic credentials. Domain errors are mapped to a JSON body
// of the form {"statusCode": 401, "message": "...", "code": "..."}.
package httpapi
