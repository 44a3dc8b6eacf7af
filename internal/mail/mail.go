// SPDX-License-Identifier: Apache-2.0
// Copyright 2026 HoloMUSH Contributors

// Package mail delivers password reset and email verification links.
package mail

import (
	"bytes"
	"context"
	"log/slog"
	"net/url"
	"strings"
	"text/template"
	"time"

	"github.com/samber/oops"
	"gopkg.in/gomail.v2"

	"github.com/holomush/authority/internal/auth"
)

// TokenPlaceholder is replaced by the token in link templates.
const TokenPlaceholder = "{token}"

// Sender delivers composed messages. *gomail.Dialer satisfies it.
type Sender interface {
	DialAndSend(m ...*gomail.Message) error
}

// Config describes the sender identity and link templates.
type Config struct {
	From      string
	ResetURL  string
	VerifyURL string
}

var bodies = template.Must(template.New("mail").Parse(`
{{- define "reset" -}}
A password reset was requested for {{.Email}}.

Use this link to choose a new password:
{{.Link}}

The link expires at {{.Expires}}. If you did not ask for a reset, ignore this message.
{{end -}}
{{- define "verify" -}}
Confirm that {{.Email}} is your address:
{{.Link}}

The link expires at {{.Expires}}.
{{end -}}
`))

// Notifier sends links over SMTP.
type Notifier struct {
	sender Sender
	cfg    Config
	logger *slog.Logger
}

// NewNotifier creates a Notifier. logger may be nil.
func NewNotifier(sender Sender, cfg Config, logger *slog.Logger) (*Notifier, error) {
	if sender == nil {
		return nil, oops.Errorf("mail sender is required")
	}
	if cfg.From == "" {
		return nil, oops.Code("MAIL_CONFIG_INVALID").Errorf("sender address is required")
	}
	if logger == nil {
		logger = slog.Default()
	}
	return &Notifier{sender: sender, cfg: cfg, logger: logger}, nil
}

// NewSMTPNotifier dials host:port with the given credentials for every
// message.
func NewSMTPNotifier(host string, port int, username, password string, cfg Config, logger *slog.Logger) (*Notifier, error) {
	return NewNotifier(gomail.NewDialer(host, port, username, password), cfg, logger)
}

// Link substitutes the escaped token into tmpl. An empty template yields
// the bare token.
func Link(tmpl, token string) string {
	if tmpl == "" {
		return token
	}
	return strings.ReplaceAll(tmpl, TokenPlaceholder, url.QueryEscape(token))
}

// SendPasswordReset implements auth.Notifier.
func (n *Notifier) SendPasswordReset(ctx context.Context, email, token string, expiresAt time.Time) error {
	return n.send(ctx, "reset", "Reset your password", email, Link(n.cfg.ResetURL, token), expiresAt)
}

// SendEmailVerification implements auth.Notifier.
func (n *Notifier) SendEmailVerification(ctx context.Context, email, token string, expiresAt time.Time) error {
	return n.send(ctx, "verify", "Verify your email address", email, Link(n.cfg.VerifyURL, token), expiresAt)
}

func (n *Notifier) send(ctx context.Context, kind, subject, to, link string, expiresAt time.Time) error {
	if err := ctx.Err(); err != nil {
		return oops.Code("MAIL_SEND_FAILED").With("kind", kind).Wrap(err)
	}

	var body bytes.Buffer
	err := bodies.ExecuteTemplate(&body, kind, map[string]string{
		"Email":   to,
		"Link":    link,
		"Expires": expiresAt.UTC().Format(time.RFC1123),
	})
	if err != nil {
		return oops.Code("MAIL_RENDER_FAILED").With("kind", kind).Wrap(err)
	}

	m := gomail.NewMessage()
	m.SetHeader("From", n.cfg.From)
	m.SetHeader("To", to)
	m.SetHeader("Subject", subject)
	m.SetBody("text/plain", body.String())

	if err := n.sender.DialAndSend(m); err != nil {
		return oops.Code("MAIL_SEND_FAILED").With("kind", kind).Wrap(err)
	}
	n.logger.InfoContext(ctx, "mail sent", "kind", kind, "email", to)
	return nil
}

// LogNotifier records that a link was issued without delivering it. It is
// used when no SMTP server is configured and never logs the token.
type LogNotifier struct {
	logger *slog.Logger
}

// NewLogNotifier creates a LogNotifier. logger may be nil.
func NewLogNotifier(logger *slog.Logger) *LogNotifier {
	if logger == nil {
		logger = slog.Default()
	}
	return &LogNotifier{logger: logger}
}

// SendPasswordReset implements auth.Notifier.
func (n *LogNotifier) SendPasswordReset(ctx context.Context, email, _ string, expiresAt time.Time) error {
	n.logger.InfoContext(ctx, "password reset link issued; mail delivery disabled",
		"email", email, "expires_at", expiresAt)
	return nil
}

// SendEmailVerification implements auth.Notifier.
func (n *LogNotifier) SendEmailVerification(ctx context.Context, email, _ string, expiresAt time.Time) error {
	n.logger.InfoContext(ctx, "verification link issued; mail delivery disabled",
		"email", email, "expires_at", expiresAt)
	return nil
}

var (
	_ auth.Notifier = (*Notifier)(nil)
	_ auth.Notifier = (*LogNotifier)(nil)
)
