// ABOUTME: Conversation entity store methods including the atomic assignment claim
// ABOUTME: Resolve-or-create keyed on (session_id, remote_party_id) backs idempotent ingestion

package store

import (
	"context"
	"database/sql"
	"fmt"
	"strings"
	"time"
)

const conversationColumns = `conversation_id, session_id, tenant_id, remote_party_id, is_group,
	       assigned_user_id, unread_count, is_pinned, is_archived, linked_contact_id,
	       last_message_at, deleted_at, created_at, updated_at`

// GetOrCreateConversation resolves the conversation for (session_id,
// remote_party_id), inserting it when absent. The UNIQUE index makes
// concurrent first-message races safe: the loser's insert is ignored and
// both callers read the same row. Returns the conversation and whether it
// was created by this call.
func (s *SQLiteStore) GetOrCreateConversation(ctx context.Context, conv *Conversation) (*Conversation, bool, error) {
	insert := `
		INSERT INTO conversations (conversation_id, session_id, tenant_id, remote_party_id,
			is_group, assigned_user_id, unread_count, is_pinned, is_archived,
			linked_contact_id, last_message_at, deleted_at, created_at, updated_at)
		VALUES (?, ?, ?, ?, ?, NULL, 0, 0, 0, NULL, NULL, NULL, ?, ?)
		ON CONFLICT (session_id, remote_party_id) DO NOTHING
	`

	result, err := s.db.ExecContext(ctx, insert,
		conv.ID,
		conv.SessionID,
		conv.TenantID,
		conv.RemotePartyID,
		boolInt(conv.IsGroup),
		timeStr(conv.CreatedAt),
		timeStr(conv.UpdatedAt),
	)
	if err != nil {
		return nil, false, fmt.Errorf("inserting conversation: %w", err)
	}

	rowsAffected, err := result.RowsAffected()
	if err != nil {
		return nil, false, fmt.Errorf("getting rows affected: %w", err)
	}
	created := rowsAffected > 0

	query := `
		SELECT ` + conversationColumns + `
		FROM conversations
		WHERE session_id = ? AND remote_party_id = ?
	`
	got, err := scanConversation(s.db.QueryRowContext(ctx, query, conv.SessionID, conv.RemotePartyID))
	if err != nil {
		return nil, false, err
	}

	if created {
		s.logger.Debug("created conversation", "id", got.ID, "session", got.SessionID, "remote", got.RemotePartyID)
	}
	return got, created, nil
}

// GetConversation retrieves a live conversation scoped to a tenant.
func (s *SQLiteStore) GetConversation(ctx context.Context, tenantID, id string) (*Conversation, error) {
	query := `
		SELECT ` + conversationColumns + `
		FROM conversations
		WHERE conversation_id = ? AND tenant_id = ? AND deleted_at IS NULL
	`
	return scanConversation(s.db.QueryRowContext(ctx, query, id, tenantID))
}

// GetConversationAny retrieves a conversation by ID regardless of tenant or
// tombstone state. Used by background jobs that start from a message row.
func (s *SQLiteStore) GetConversationAny(ctx context.Context, id string) (*Conversation, error) {
	query := `
		SELECT ` + conversationColumns + `
		FROM conversations
		WHERE conversation_id = ?
	`
	return scanConversation(s.db.QueryRowContext(ctx, query, id))
}

// ClaimConversation atomically sets assigned_user_id if and only if the
// conversation is currently unassigned. Returns true when the claim won the
// race, false when another assignee already holds it. This is the mutual
// exclusion point for concurrent self-assigns; no lock is held outside the
// single UPDATE.
func (s *SQLiteStore) ClaimConversation(ctx context.Context, tenantID, id, userID string, at time.Time) (bool, error) {
	query := `
		UPDATE conversations
		SET assigned_user_id = ?, updated_at = ?
		WHERE conversation_id = ? AND tenant_id = ? AND deleted_at IS NULL
		  AND assigned_user_id IS NULL
	`

	result, err := s.db.ExecContext(ctx, query, userID, timeStr(at), id, tenantID)
	if err != nil {
		return false, fmt.Errorf("claiming conversation: %w", err)
	}

	rowsAffected, err := result.RowsAffected()
	if err != nil {
		return false, fmt.Errorf("getting rows affected: %w", err)
	}
	if rowsAffected > 0 {
		s.logger.Debug("claimed conversation", "id", id, "user", userID)
	}
	return rowsAffected > 0, nil
}

// SetAssignment unconditionally sets (or clears, with nil) the assignee.
// Reserved for elevated-role reassign/unassign. Returns ErrNotFound for
// unknown or tombstoned conversations.
func (s *SQLiteStore) SetAssignment(ctx context.Context, tenantID, id string, userID *string, at time.Time) error {
	query := `
		UPDATE conversations SET assigned_user_id = ?, updated_at = ?
		WHERE conversation_id = ? AND tenant_id = ? AND deleted_at IS NULL
	`

	var assignee any
	if userID != nil {
		assignee = *userID
	}

	result, err := s.db.ExecContext(ctx, query, assignee, timeStr(at), id, tenantID)
	if err != nil {
		return fmt.Errorf("setting assignment: %w", err)
	}

	rowsAffected, err := result.RowsAffected()
	if err != nil {
		return fmt.Errorf("getting rows affected: %w", err)
	}
	if rowsAffected == 0 {
		return ErrNotFound
	}

	s.logger.Debug("set assignment", "id", id, "user", userID)
	return nil
}

// SetConversationPinned updates the pin flag.
func (s *SQLiteStore) SetConversationPinned(ctx context.Context, tenantID, id string, pinned bool, at time.Time) error {
	return s.setConversationFlag(ctx, tenantID, id, "is_pinned", boolInt(pinned), at)
}

// SetConversationArchived updates the archive flag.
func (s *SQLiteStore) SetConversationArchived(ctx context.Context, tenantID, id string, archived bool, at time.Time) error {
	return s.setConversationFlag(ctx, tenantID, id, "is_archived", boolInt(archived), at)
}

// SetLinkedContact links (or with nil, unlinks) a CRM contact.
func (s *SQLiteStore) SetLinkedContact(ctx context.Context, tenantID, id string, contactID *string, at time.Time) error {
	var v any
	if contactID != nil {
		v = *contactID
	}
	return s.setConversationFlag(ctx, tenantID, id, "linked_contact_id", v, at)
}

// MarkConversationRead zeroes the unread counter.
func (s *SQLiteStore) MarkConversationRead(ctx context.Context, tenantID, id string, at time.Time) error {
	return s.setConversationFlag(ctx, tenantID, id, "unread_count", 0, at)
}

// setConversationFlag updates one column on a live conversation row.
func (s *SQLiteStore) setConversationFlag(ctx context.Context, tenantID, id, column string, value any, at time.Time) error {
	// column is always a compile-time constant from the callers above
	query := fmt.Sprintf(`
		UPDATE conversations SET %s = ?, updated_at = ?
		WHERE conversation_id = ? AND tenant_id = ? AND deleted_at IS NULL
	`, column)

	result, err := s.db.ExecContext(ctx, query, value, timeStr(at), id, tenantID)
	if err != nil {
		return fmt.Errorf("updating conversation %s: %w", column, err)
	}

	rowsAffected, err := result.RowsAffected()
	if err != nil {
		return fmt.Errorf("getting rows affected: %w", err)
	}
	if rowsAffected == 0 {
		return ErrNotFound
	}
	return nil
}

// BumpConversationActivity stamps last_message_at and, for inbound
// messages, increments the unread counter.
func (s *SQLiteStore) BumpConversationActivity(ctx context.Context, id string, at time.Time, incrementUnread bool) error {
	query := `
		UPDATE conversations
		SET last_message_at = ?, updated_at = ?, unread_count = unread_count + ?
		WHERE conversation_id = ? AND deleted_at IS NULL
	`
	inc := 0
	if incrementUnread {
		inc = 1
	}
	if _, err := s.db.ExecContext(ctx, query, timeStr(at), timeStr(at), inc, id); err != nil {
		return fmt.Errorf("bumping conversation activity: %w", err)
	}
	return nil
}

// ListConversations returns live conversations for a tenant, most recent
// activity first. A user scope matches conversations assigned to the user
// on sessions the user owns or that are shared, mirroring the single-
// resource view rule.
func (s *SQLiteStore) ListConversations(ctx context.Context, tenantID string, filter ConversationFilter) ([]*Conversation, error) {
	limit := filter.Limit
	if limit <= 0 {
		limit = 100
	}
	if limit > 500 {
		limit = 500
	}

	query := `
		SELECT ` + qualifyColumns("c", conversationColumns) + `
		FROM conversations c
		JOIN sessions s ON s.session_id = c.session_id
		WHERE c.tenant_id = ? AND c.deleted_at IS NULL
	`
	args := []any{tenantID}

	if filter.SessionID != "" {
		query += ` AND c.session_id = ?`
		args = append(args, filter.SessionID)
	}
	if filter.AssignedUserID != nil {
		query += ` AND c.assigned_user_id = ?`
		args = append(args, *filter.AssignedUserID)
	}
	if filter.UnreadOnly {
		query += ` AND c.unread_count > 0`
	}
	if !filter.IncludeArchived {
		query += ` AND c.is_archived = 0`
	}
	if filter.Search != "" {
		query += ` AND c.remote_party_id LIKE ?`
		args = append(args, "%"+filter.Search+"%")
	}
	if !filter.Scope.All() {
		query += ` AND c.assigned_user_id = ? AND (s.owner_user_id = ? OR s.owner_user_id IS NULL)`
		args = append(args, filter.Scope.UserID(), filter.Scope.UserID())
	}

	query += ` ORDER BY c.is_pinned DESC, c.last_message_at DESC LIMIT ?`
	args = append(args, limit)

	rows, err := s.db.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("querying conversations: %w", err)
	}
	defer rows.Close()

	var convs []*Conversation
	for rows.Next() {
		conv, err := scanConversation(rows)
		if err != nil {
			return nil, err
		}
		convs = append(convs, conv)
	}

	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterating conversation rows: %w", err)
	}
	return convs, nil
}

// qualifyColumns prefixes each column in a comma-separated list with a table alias
func qualifyColumns(alias, columns string) string {
	cols := strings.Split(columns, ",")
	for i, col := range cols {
		cols[i] = alias + "." + strings.TrimSpace(col)
	}
	return strings.Join(cols, ", ")
}

func boolInt(b bool) int {
	if b {
		return 1
	}
	return 0
}

// scanConversation scans one conversation row
func scanConversation(row rowScanner) (*Conversation, error) {
	var conv Conversation
	var assigned, linked, lastMessage, deletedAt sql.NullString
	var isGroup, isPinned, isArchived int
	var createdAt, updatedAt string

	err := row.Scan(
		&conv.ID,
		&conv.SessionID,
		&conv.TenantID,
		&conv.RemotePartyID,
		&isGroup,
		&assigned,
		&conv.UnreadCount,
		&isPinned,
		&isArchived,
		&linked,
		&lastMessage,
		&deletedAt,
		&createdAt,
		&updatedAt,
	)
	if err == sql.ErrNoRows {
		return nil, ErrNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("scanning conversation: %w", err)
	}

	conv.IsGroup = isGroup != 0
	conv.IsPinned = isPinned != 0
	conv.IsArchived = isArchived != 0
	if assigned.Valid {
		conv.AssignedUserID = &assigned.String
	}
	if linked.Valid {
		conv.LinkedContactID = &linked.String
	}
	if conv.LastMessageAt, err = parseNullTime(lastMessage); err != nil {
		return nil, fmt.Errorf("parsing last_message_at: %w", err)
	}
	if conv.DeletedAt, err = parseNullTime(deletedAt); err != nil {
		return nil, fmt.Errorf("parsing deleted_at: %w", err)
	}
	if conv.CreatedAt, err = parseTime(createdAt); err != nil {
		return nil, fmt.Errorf("parsing created_at: %w", err)
	}
	if conv.UpdatedAt, err = parseTime(updatedAt); err != nil {
		return nil, fmt.Errorf("parsing updated_at: %w", err)
	}

	return &conv, nil
}
