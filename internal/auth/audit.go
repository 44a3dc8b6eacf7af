// SPDX-License-Identifier: Apache-2.0
// Copyright 2026 HoloMUSH Contributors

package auth

import (
	"context"
	"log/slog"
	"time"

	"github.com/oklog/ulid/v2"
	"github.com/samber/oops"

	"github.com/holomush/authority/pkg/errutil"
)

// AuditAction names a security-relevant event.
type AuditAction string

// Audit actions.
const (
	ActionLogin          AuditAction = "login"
	ActionLogout         AuditAction = "logout"
	ActionRegister       AuditAction = "register"
	ActionPasswordChange AuditAction = "password_change"
	ActionEmailVerify    AuditAction = "email_verify"
	ActionPasswordReset  AuditAction = "password_reset"
	ActionAccountLock    AuditAction = "account_lock"
	ActionAccountUnlock  AuditAction = "account_unlock"
)

// AuditEntry is one row of the audit trail.
type AuditEntry struct {
	ID           ulid.ULID      `json:"id"`
	UserID       *ulid.ULID     `json:"userId,omitempty"`
	Action       AuditAction    `json:"action"`
	IPAddress    string         `json:"ipAddress,omitempty"`
	UserAgent    string         `json:"userAgent,omitempty"`
	Metadata     map[string]any `json:"metadata,omitempty"`
	Success      bool           `json:"success"`
	ErrorMessage string         `json:"errorMessage,omitempty"`
	CreatedAt    time.Time      `json:"createdAt"`
}

// AuditRepository persists audit entries.
type AuditRepository interface {
	Create(ctx context.Context, entry *AuditEntry) error
	ListForUser(ctx context.Context, userID ulid.ULID, limit int) ([]*AuditEntry, error)
}

// AuditPublisher forwards audit entries to an external consumer.
type AuditPublisher interface {
	Publish(ctx context.Context, entry *AuditEntry) error
}

// AuditRecorder records security events. Recording never fails the
// operation being audited.
type AuditRecorder interface {
	Record(ctx context.Context, entry AuditEntry)
}

// NopAuditRecorder drops every entry.
type NopAuditRecorder struct{}

// Record implements AuditRecorder.
func (NopAuditRecorder) Record(context.Context, AuditEntry) {}

// AuditLog stores entries and, when configured, publishes them.
type AuditLog struct {
	repo      AuditRepository
	publisher AuditPublisher
	logger    *slog.Logger
	now       func() time.Time
}

// NewAuditLog creates an AuditLog. publisher may be nil.
func NewAuditLog(repo AuditRepository, publisher AuditPublisher, opts ...Option) (*AuditLog, error) {
	if repo == nil {
		return nil, oops.Errorf("audit repository is required")
	}
	o := buildOptions(opts)
	return &AuditLog{
		repo:      repo,
		publisher: publisher,
		logger:    o.logger,
		now:       o.now,
	}, nil
}

// Record fills in the id, time and request device, then stores and
// publishes the entry. Failures are logged.
func (a *AuditLog) Record(ctx context.Context, entry AuditEntry) {
	if entry.ID.Compare(ulid.ULID{}) == 0 {
		entry.ID = ulid.Make()
	}
	if entry.CreatedAt.IsZero() {
		entry.CreatedAt = a.now()
	}
	if device, ok := DeviceFromContext(ctx); ok {
		if entry.IPAddress == "" {
			entry.IPAddress = device.IPAddress
		}
		if entry.UserAgent == "" {
			entry.UserAgent = device.UserAgent
		}
	}

	if err := a.repo.Create(ctx, &entry); err != nil {
		errutil.LogError(a.logger, "audit entry not stored", oops.Code("AUDIT_STORE_FAILED").
			With("action", string(entry.Action)).
			Wrap(err))
	}
	if a.publisher == nil {
		return
	}
	if err := a.publisher.Publish(ctx, &entry); err != nil {
		errutil.LogError(a.logger, "audit entry not published", oops.Code("AUDIT_PUBLISH_FAILED").
			With("action", string(entry.Action)).
			Wrap(err))
	}
}

type deviceKey struct{}

// WithDevice returns a context carrying the requesting client's device.
func WithDevice(ctx context.Context, device DeviceInfo) context.Context {
	return context.WithValue(ctx, deviceKey{}, device)
}

// DeviceFromContext returns the device stored by WithDevice.
func DeviceFromContext(ctx context.Context) (DeviceInfo, bool) {
	d, ok := ctx.Value(deviceKey{}).(DeviceInfo)
	return d, ok
}

// auditEvent builds an entry for a user-scoped event.
func auditEvent(action AuditAction, userID ulid.ULID, err error) AuditEntry {
	entry := AuditEntry{Action: action, UserID: &userID, Success: err == nil}
	if err != nil {
		entry.ErrorMessage = err.Error()
	}
	return entry
}

var (
	_ AuditRecorder = (*AuditLog)(nil)
	_ AuditRecorder = NopAuditRecorder{}
)
