// SPDX-License-Identifier: Apache-2.0
// Copyright 2026 HoloMUSH Contributors

package postgres

import (
	"context"
	"encoding/json"

	"github.com/oklog/ulid/v2"
	"github.com/samber/oops"

	"github.com/holomush/authority/internal/auth"
)

// AuditRepository implements auth.AuditRepository using PostgreSQL.
type AuditRepository struct {
	db DB
}

// NewAuditRepository creates a new AuditRepository.
func NewAuditRepository(db DB) *AuditRepository {
	return &AuditRepository{db: db}
}

// Create appends an entry to the audit log.
func (r *AuditRepository) Create(ctx context.Context, entry *auth.AuditEntry) error {
	var metadata []byte
	if len(entry.Metadata) > 0 {
		var err error
		if metadata, err = json.Marshal(entry.Metadata); err != nil {
			return oops.Code("AUDIT_CREATE_FAILED").
				With("operation", "marshal metadata").
				Wrap(err)
		}
	}

	var userID *string
	if entry.UserID != nil {
		s := entry.UserID.String()
		userID = &s
	}

	_, err := r.db.Exec(ctx, `
		INSERT INTO audit_logs (
			id, user_id, action, ip_address, user_agent, metadata,
			success, error_message, created_at
		) VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9)
	`,
		entry.ID.String(),
		userID,
		string(entry.Action),
		nullable(entry.IPAddress),
		nullable(entry.UserAgent),
		metadata,
		entry.Success,
		nullable(entry.ErrorMessage),
		entry.CreatedAt,
	)
	if err != nil {
		return oops.Code("AUDIT_CREATE_FAILED").
			With("action", string(entry.Action)).
			Wrap(err)
	}
	return nil
}

// ListForUser returns a user's most recent entries, newest first.
func (r *AuditRepository) ListForUser(ctx context.Context, userID ulid.ULID, limit int) ([]*auth.AuditEntry, error) {
	rows, err := r.db.Query(ctx, `
		SELECT id, user_id, action, ip_address, user_agent, metadata,
		       success, error_message, created_at
		FROM audit_logs
		WHERE user_id = $1
		ORDER BY created_at DESC, id DESC
		LIMIT $2
	`, userID.String(), limit)
	if err != nil {
		return nil, oops.Code("AUDIT_LIST_FAILED").
			With("user_id", userID.String()).
			Wrap(err)
	}
	defer rows.Close()

	var entries []*auth.AuditEntry
	for rows.Next() {
		var (
			e                     auth.AuditEntry
			id                    string
			owner                 *string
			action                string
			ip, agent, errMessage *string
			metadata              []byte
		)
		if err := rows.Scan(&id, &owner, &action, &ip, &agent, &metadata, &e.Success, &errMessage, &e.CreatedAt); err != nil {
			return nil, oops.Code("AUDIT_LIST_FAILED").
				With("operation", "scan audit entry").
				Wrap(err)
		}
		if e.ID, err = parseID(id, "audit_logs.id"); err != nil {
			return nil, err
		}
		if owner != nil {
			uid, err := parseID(*owner, "audit_logs.user_id")
			if err != nil {
				return nil, err
			}
			e.UserID = &uid
		}
		if len(metadata) > 0 {
			if err := json.Unmarshal(metadata, &e.Metadata); err != nil {
				return nil, oops.Code("AUDIT_LIST_FAILED").
					With("operation", "unmarshal metadata").
					Wrap(err)
			}
		}
		e.Action = auth.AuditAction(action)
		e.IPAddress = deref(ip)
		e.UserAgent = deref(agent)
		e.ErrorMessage = deref(errMessage)
		entries = append(entries, &e)
	}
	if err := rows.Err(); err != nil {
		return nil, oops.Code("AUDIT_LIST_FAILED").
			With("operation", "iterate audit entries").
			Wrap(err)
	}
	return entries, nil
}

var _ auth.AuditRepository = (*AuditRepository)(nil)
