// SPDX-License-Identifier: Apache-2.0
// Copyright 2026 HoloMUSH Contributors

// Package auth implements the credential and session core of Authority.
//
// # Domain Types
//
// Domain types should be created using their constructors:
//   - NewUser - creates an active User with a validated email and role
//   - NewRefreshToken - creates a RefreshToken bound to a user and device
//   - NewOneTimeToken - creates a password reset or email verification token
//
// Only token hashes are persisted. Plaintext tokens are returned once, to
// the caller that created them.
//
// # Services
//
//   - SessionService - authenticate, login, refresh rotation, logout
//   - PasswordResetService - reset token issue and redemption
//   - EmailVerificationService - verification token issue and redemption
//   - UserService - registration and account management
//   - CredentialResolver - local, bearer and basic strategies
//   - AuditLog - security event trail
//
// Services are created with New*Service constructors that validate
// dependencies and accept Option values.
//
// # Errors
//
// Failures carry an oops code. Classify maps a code to a Kind and the
// message that may be shown to a client; anything unclassified is internal.
package auth
