// ABOUTME: Audit log of operator actions taken through the admin API
// ABOUTME: Records which operator did what to which user or session set, newest first on read

package store

import (
	"context"
	"encoding/json"
	"fmt"
	"time"

	"github.com/google/uuid"
)

// AuditAction names an operator action.
type AuditAction string

const (
	AuditRevokeSessions AuditAction = "revoke_sessions"
	AuditSweepSessions  AuditAction = "sweep_sessions"
)

// AuditEntry is one recorded operator action.
type AuditEntry struct {
	ID         string
	Actor      string // operator token subject
	Action     AuditAction
	TargetType string // "user", "sessions"
	TargetID   string
	Timestamp  time.Time
	Detail     map[string]any
}

// AuditFilter narrows ListAuditLog. Nil fields match everything.
type AuditFilter struct {
	Since  *time.Time
	Actor  *string
	Action *AuditAction
	Target *string
	Limit  int // default 100, max 1000
}

// AuditStore persists the operator audit trail.
type AuditStore interface {
	AppendAuditLog(ctx context.Context, e *AuditEntry) error
	ListAuditLog(ctx context.Context, f AuditFilter) ([]AuditEntry, error)
}

var _ AuditStore = (*SQLiteStore)(nil)

// AppendAuditLog records e, filling ID and Timestamp when unset.
func (s *SQLiteStore) AppendAuditLog(ctx context.Context, e *AuditEntry) error {
	if e.ID == "" {
		e.ID = uuid.New().String()
	}
	if e.Timestamp.IsZero() {
		e.Timestamp = time.Now().UTC()
	}

	var detailJSON *string
	if e.Detail != nil {
		data, err := json.Marshal(e.Detail)
		if err != nil {
			return fmt.Errorf("marshaling audit detail: %w", err)
		}
		str := string(data)
		detailJSON = &str
	}

	_, err := s.db.ExecContext(ctx, `
		INSERT INTO audit_log (id, actor, action, target_type, target_id, ts, detail_json)
		VALUES (?, ?, ?, ?, ?, ?, ?)
	`, e.ID, e.Actor, string(e.Action), e.TargetType, e.TargetID, e.Timestamp.UnixMilli(), detailJSON)
	if err != nil {
		return fmt.Errorf("inserting audit entry: %w", err)
	}

	s.logger.Debug("appended audit log", "actor", e.Actor, "action", e.Action, "target", e.TargetType+"/"+e.TargetID)
	return nil
}

func normalizeAuditLimit(limit int) int {
	switch {
	case limit <= 0:
		return 100
	case limit > 1000:
		return 1000
	default:
		return limit
	}
}

const auditLogQuery = `
	SELECT id, actor, action, target_type, target_id, ts, detail_json
	FROM audit_log
	WHERE (? IS NULL OR ts >= ?)
	  AND (? IS NULL OR actor = ?)
	  AND (? IS NULL OR action = ?)
	  AND (? IS NULL OR target_id = ?)
	ORDER BY ts DESC, rowid DESC
	LIMIT ?
`

// ListAuditLog returns matching entries, newest first.
func (s *SQLiteStore) ListAuditLog(ctx context.Context, f AuditFilter) ([]AuditEntry, error) {
	var since *int64
	if f.Since != nil {
		ms := f.Since.UnixMilli()
		since = &ms
	}
	var action *string
	if f.Action != nil {
		a := string(*f.Action)
		action = &a
	}

	rows, err := s.db.QueryContext(ctx, auditLogQuery,
		since, since,
		f.Actor, f.Actor,
		action, action,
		f.Target, f.Target,
		normalizeAuditLimit(f.Limit),
	)
	if err != nil {
		return nil, fmt.Errorf("querying audit log: %w", err)
	}
	defer func() { _ = rows.Close() }()

	entries := []AuditEntry{}
	for rows.Next() {
		var e AuditEntry
		var act string
		var ts int64
		var detailJSON *string
		if err := rows.Scan(&e.ID, &e.Actor, &act, &e.TargetType, &e.TargetID, &ts, &detailJSON); err != nil {
			return nil, fmt.Errorf("scanning audit entry: %w", err)
		}
		e.Action = AuditAction(act)
		e.Timestamp = time.UnixMilli(ts).UTC()
		if detailJSON != nil {
			if err := json.Unmarshal([]byte(*detailJSON), &e.Detail); err != nil {
				return nil, fmt.Errorf("unmarshaling detail: %w", err)
			}
		}
		entries = append(entries, e)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterating audit entries: %w", err)
	}
	return entries, nil
}
