// SPDX-License-Identifier: Apache-2.0
// Copyright 2026 HoloMUSH Contributors

package auth

import (
	"context"
	"time"
)

// Notifier delivers single-use tokens to the owner of an email address.
// Implementations receive the plaintext token and must not log it.
type Notifier interface {
	SendPasswordReset(ctx context.Context, email, token string, expiresAt time.Time) error
	SendEmailVerification(ctx context.Context, email, token string, expiresAt time.Time) error
}

// NopNotifier discards every message.
type NopNotifier struct{}

// SendPasswordReset implements Notifier.
func (NopNotifier) SendPasswordReset(context.Context, string, string, time.Time) error { return nil }

// SendEmailVerification implements Notifier.
func (NopNotifier) SendEmailVerification(context.Context, string, string, time.Time) error {
	return nil
}

var _ Notifier = NopNotifier{}
