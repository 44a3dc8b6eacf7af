// SPDX-License-Identifier: Apache-2.0
// Copyright 2026 HoloMUSH Contributors

// Package events publishes audit entries to an AMQP topic exchange.
package events

import (
	"context"
	"encoding/json"
	"io"
	"log/slog"
	"sync"

	amqp "github.com/rabbitmq/amqp091-go"
	"github.com/samber/oops"

	"github.com/holomush/authority/internal/auth"
)

// DefaultExchange receives audit events when none is configured.
const DefaultExchange = "authority.audit"

// RoutingKeyPrefix precedes the audit action in routing keys, so consumers
// can bind "audit.*" or "audit.login".
const RoutingKeyPrefix = "audit."

// Channel is the part of *amqp.Channel the publisher uses.
type Channel interface {
	ExchangeDeclare(name, kind string, durable, autoDelete, internal, noWait bool, args amqp.Table) error
	PublishWithContext(ctx context.Context, exchange, key string, mandatory, immediate bool, msg amqp.Publishing) error
	Close() error
}

// AuditPublisher implements auth.AuditPublisher over AMQP.
type AuditPublisher struct {
	ch       Channel
	conn     io.Closer
	exchange string
	logger   *slog.Logger
	mu       sync.Mutex
}

// NewAuditPublisher declares a durable topic exchange on ch and returns a
// publisher for it. An empty exchange means DefaultExchange.
func NewAuditPublisher(ch Channel, exchange string, logger *slog.Logger) (*AuditPublisher, error) {
	if ch == nil {
		return nil, oops.Errorf("amqp channel is required")
	}
	if exchange == "" {
		exchange = DefaultExchange
	}
	if logger == nil {
		logger = slog.Default()
	}
	if err := ch.ExchangeDeclare(exchange, amqp.ExchangeTopic, true, false, false, false, nil); err != nil {
		return nil, oops.Code("AMQP_DECLARE_FAILED").With("exchange", exchange).Wrap(err)
	}
	return &AuditPublisher{ch: ch, exchange: exchange, logger: logger}, nil
}

// Dial connects to url, opens a channel and declares the exchange.
func Dial(url, exchange string, logger *slog.Logger) (*AuditPublisher, error) {
	conn, err := amqp.Dial(url)
	if err != nil {
		return nil, oops.Code("AMQP_DIAL_FAILED").Wrap(err)
	}
	ch, err := conn.Channel()
	if err != nil {
		_ = conn.Close()
		return nil, oops.Code("AMQP_CHANNEL_FAILED").Wrap(err)
	}
	p, err := NewAuditPublisher(ch, exchange, logger)
	if err != nil {
		_ = conn.Close()
		return nil, err
	}
	p.conn = conn
	return p, nil
}

// RoutingKey returns the routing key for an action.
func RoutingKey(action auth.AuditAction) string {
	return RoutingKeyPrefix + string(action)
}

// Publish sends entry as a persistent JSON message.
func (p *AuditPublisher) Publish(ctx context.Context, entry *auth.AuditEntry) error {
	body, err := json.Marshal(entry)
	if err != nil {
		return oops.Code("AUDIT_ENCODE_FAILED").With("action", string(entry.Action)).Wrap(err)
	}

	msg := amqp.Publishing{
		ContentType:  "application/json",
		DeliveryMode: amqp.Persistent,
		MessageId:    entry.ID.String(),
		Timestamp:    entry.CreatedAt,
		Type:         string(entry.Action),
		Body:         body,
	}

	// amqp channels are not safe for concurrent publishing.
	p.mu.Lock()
	defer p.mu.Unlock()
	if err := p.ch.PublishWithContext(ctx, p.exchange, RoutingKey(entry.Action), false, false, msg); err != nil {
		return oops.Code("AMQP_PUBLISH_FAILED").
			With("exchange", p.exchange).
			With("action", string(entry.Action)).
			Wrap(err)
	}
	return nil
}

// Close closes the channel and, when the publisher dialed it, the connection.
func (p *AuditPublisher) Close() error {
	p.mu.Lock()
	defer p.mu.Unlock()
	err := p.ch.Close()
	if p.conn != nil {
		if cerr := p.conn.Close(); cerr != nil && err == nil {
			err = cerr
		}
	}
	if err != nil {
		p.logger.Warn("closing amqp publisher", "error", err)
		return oops.Code("AMQP_CLOSE_FAILED").Wrap(err)
	}
	return nil
}

var _ auth.AuditPublisher = (*AuditPublisher)(nil)
