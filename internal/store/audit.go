// ABOUTME: Assignment audit log store methods for tracking conversation hand-offs
// ABOUTME: Records who assigned which conversation to whom, with JSON detail

package store

import (
	"context"
	"database/sql"
	"encoding/json"
	"fmt"
	"time"

	"github.com/google/uuid"
)

// AppendAssignmentAudit appends one entry to the assignment audit log.
// Generates ID and Timestamp if not set.
func (s *SQLiteStore) AppendAssignmentAudit(ctx context.Context, e *AssignmentAudit) error {
	if e.ID == "" {
		e.ID = uuid.New().String()
	}
	if e.Timestamp.IsZero() {
		e.Timestamp = time.Now().UTC()
	}

	var detailJSON any
	if e.Detail != nil {
		data, err := json.Marshal(e.Detail)
		if err != nil {
			return fmt.Errorf("marshaling audit detail: %w", err)
		}
		detailJSON = string(data)
	}

	var target any
	if e.TargetUserID != nil {
		target = *e.TargetUserID
	}

	query := `
		INSERT INTO assignment_audit (audit_id, tenant_id, actor_id, conversation_id, action, target_user_id, ts, detail_json)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?)
	`

	_, err := s.db.ExecContext(ctx, query,
		e.ID,
		e.TenantID,
		e.ActorID,
		e.ConversationID,
		string(e.Action),
		target,
		timeStr(e.Timestamp),
		detailJSON,
	)
	if err != nil {
		return fmt.Errorf("inserting audit entry: %w", err)
	}

	s.logger.Debug("appended assignment audit",
		"id", e.ID,
		"actor", e.ActorID,
		"action", e.Action,
		"conversation", e.ConversationID,
	)
	return nil
}

// ListAssignmentAudit returns audit entries for a tenant, newest first.
// Pass a conversation ID to narrow to one conversation.
func (s *SQLiteStore) ListAssignmentAudit(ctx context.Context, tenantID, conversationID string, limit int) ([]AssignmentAudit, error) {
	if limit <= 0 {
		limit = 100
	}
	if limit > 1000 {
		limit = 1000
	}

	query := `
		SELECT audit_id, tenant_id, actor_id, conversation_id, action, target_user_id, ts, detail_json
		FROM assignment_audit
		WHERE tenant_id = ?
	`
	args := []any{tenantID}

	if conversationID != "" {
		query += ` AND conversation_id = ?`
		args = append(args, conversationID)
	}

	query += ` ORDER BY ts DESC LIMIT ?`
	args = append(args, limit)

	rows, err := s.db.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("querying assignment audit: %w", err)
	}
	defer rows.Close()

	var entries []AssignmentAudit
	for rows.Next() {
		var e AssignmentAudit
		var target, detailJSON sql.NullString
		var actionStr, tsStr string

		if err := rows.Scan(&e.ID, &e.TenantID, &e.ActorID, &e.ConversationID, &actionStr, &target, &tsStr, &detailJSON); err != nil {
			return nil, fmt.Errorf("scanning audit entry: %w", err)
		}

		e.Action = AuditAction(actionStr)
		if target.Valid {
			e.TargetUserID = &target.String
		}
		if e.Timestamp, err = parseTime(tsStr); err != nil {
			return nil, fmt.Errorf("parsing timestamp: %w", err)
		}
		if detailJSON.Valid {
			if err := json.Unmarshal([]byte(detailJSON.String), &e.Detail); err != nil {
				return nil, fmt.Errorf("unmarshaling detail: %w", err)
			}
		}
		entries = append(entries, e)
	}

	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterating audit entries: %w", err)
	}

	if entries == nil {
		entries = []AssignmentAudit{}
	}
	return entries, nil
}
