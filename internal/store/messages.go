// ABOUTME: Message entity store methods with external-ID deduplication
// ABOUTME: Provides the compare-and-set status update backing monotonic delivery progression

package store

import (
	"context"
	"database/sql"
	"fmt"
	"time"
)

const messageColumns = `message_id, conversation_id, external_id, direction, type, status,
	       sender_id, sender_name, body, media_url, sync_error, send_attempts, sent_at, created_at`

// InsertMessage stores a message. Returns ErrDuplicateMessage when the
// conversation already holds a message with the same external ID; this is
// the idempotency guarantee for at-least-once webhook delivery.
func (s *SQLiteStore) InsertMessage(ctx context.Context, msg *Message) error {
	query := `
		INSERT INTO messages (message_id, conversation_id, external_id, direction, type, status,
			sender_id, sender_name, body, media_url, sync_error, send_attempts, sent_at, created_at)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)
	`

	msgType := msg.Type
	if msgType == "" {
		msgType = MessageText
	}

	_, err := s.db.ExecContext(ctx, query,
		msg.ID,
		msg.ConversationID,
		msg.ExternalID,
		string(msg.Direction),
		string(msgType),
		string(msg.Status),
		msg.SenderID,
		nullString(msg.SenderName),
		nullString(msg.Body),
		nullString(msg.MediaURL),
		nullString(msg.SyncError),
		msg.SendAttempts,
		timeStr(msg.SentAt),
		timeStr(msg.CreatedAt),
	)
	if err != nil {
		if isConstraintViolation(err) {
			return ErrDuplicateMessage
		}
		return fmt.Errorf("inserting message: %w", err)
	}

	s.logger.Debug("stored message", "id", msg.ID, "conversation", msg.ConversationID, "external_id", msg.ExternalID, "direction", msg.Direction)
	return nil
}

// GetMessage retrieves a message by ID.
func (s *SQLiteStore) GetMessage(ctx context.Context, id string) (*Message, error) {
	query := `SELECT ` + messageColumns + ` FROM messages WHERE message_id = ?`
	return scanMessage(s.db.QueryRowContext(ctx, query, id))
}

// FindSessionMessage resolves a message by external ID across all
// conversations of a session. Used by message_status ingestion, which only
// knows the session and the bridge message ID.
func (s *SQLiteStore) FindSessionMessage(ctx context.Context, sessionID, externalID string) (*Message, error) {
	query := `
		SELECT ` + qualifyColumns("m", messageColumns) + `
		FROM messages m
		JOIN conversations c ON c.conversation_id = m.conversation_id
		WHERE c.session_id = ? AND m.external_id = ?
	`
	return scanMessage(s.db.QueryRowContext(ctx, query, sessionID, externalID))
}

// ListConversationMessages returns the most recent `limit` messages of a
// conversation in chronological order (oldest first).
func (s *SQLiteStore) ListConversationMessages(ctx context.Context, conversationID string, limit int) ([]*Message, error) {
	if limit <= 0 {
		limit = 50
	}
	if limit > 500 {
		limit = 500
	}

	// Pick the N most recent, then re-order ascending
	query := `
		SELECT ` + messageColumns + `
		FROM (
			SELECT ` + messageColumns + `
			FROM messages
			WHERE conversation_id = ?
			ORDER BY sent_at DESC
			LIMIT ?
		)
		ORDER BY sent_at ASC
	`

	rows, err := s.db.QueryContext(ctx, query, conversationID, limit)
	if err != nil {
		return nil, fmt.Errorf("querying messages: %w", err)
	}
	defer rows.Close()

	var messages []*Message
	for rows.Next() {
		msg, err := scanMessage(rows)
		if err != nil {
			return nil, err
		}
		messages = append(messages, msg)
	}

	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterating message rows: %w", err)
	}
	return messages, nil
}

// AdvanceMessageStatus moves a message from one delivery status to another
// with a compare-and-set on the current value. Returns true when the row
// transitioned, false when another writer got there first.
func (s *SQLiteStore) AdvanceMessageStatus(ctx context.Context, id string, from, to MessageStatus) (bool, error) {
	query := `UPDATE messages SET status = ? WHERE message_id = ? AND status = ?`

	result, err := s.db.ExecContext(ctx, query, string(to), id, string(from))
	if err != nil {
		return false, fmt.Errorf("advancing message status: %w", err)
	}

	rowsAffected, err := result.RowsAffected()
	if err != nil {
		return false, fmt.Errorf("getting rows affected: %w", err)
	}
	return rowsAffected > 0, nil
}

// RecordSendResult stores the outcome of an outbound bridge send: the
// bridge-assigned external ID on success, or failed status with the error
// recorded for the background sync worker.
func (s *SQLiteStore) RecordSendResult(ctx context.Context, id string, status MessageStatus, externalID, syncError string, attempts int) error {
	query := `
		UPDATE messages
		SET status = ?, external_id = COALESCE(NULLIF(?, ''), external_id),
		    sync_error = ?, send_attempts = ?
		WHERE message_id = ?
	`

	result, err := s.db.ExecContext(ctx, query, string(status), externalID, nullString(syncError), attempts, id)
	if err != nil {
		return fmt.Errorf("recording send result: %w", err)
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

// ListFailedOutbound returns failed outbound messages eligible for a
// background retry: sent before `before` with fewer than maxAttempts tries.
func (s *SQLiteStore) ListFailedOutbound(ctx context.Context, before time.Time, maxAttempts, limit int) ([]*Message, error) {
	if limit <= 0 {
		limit = 100
	}

	query := `
		SELECT ` + messageColumns + `
		FROM messages
		WHERE direction = 'outbound' AND status = 'failed'
		  AND send_attempts < ? AND sent_at <= ?
		ORDER BY sent_at ASC
		LIMIT ?
	`

	rows, err := s.db.QueryContext(ctx, query, maxAttempts, timeStr(before), limit)
	if err != nil {
		return nil, fmt.Errorf("querying failed outbound messages: %w", err)
	}
	defer rows.Close()

	var messages []*Message
	for rows.Next() {
		msg, err := scanMessage(rows)
		if err != nil {
			return nil, err
		}
		messages = append(messages, msg)
	}

	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterating message rows: %w", err)
	}
	return messages, nil
}

// scanMessage scans one message row
func scanMessage(row rowScanner) (*Message, error) {
	var msg Message
	var senderName, body, mediaURL, syncError sql.NullString
	var sentAt, createdAt string

	err := row.Scan(
		&msg.ID,
		&msg.ConversationID,
		&msg.ExternalID,
		(*string)(&msg.Direction),
		(*string)(&msg.Type),
		(*string)(&msg.Status),
		&msg.SenderID,
		&senderName,
		&body,
		&mediaURL,
		&syncError,
		&msg.SendAttempts,
		&sentAt,
		&createdAt,
	)
	if err == sql.ErrNoRows {
		return nil, ErrNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("scanning message: %w", err)
	}

	if senderName.Valid {
		msg.SenderName = senderName.String
	}
	if body.Valid {
		msg.Body = body.String
	}
	if mediaURL.Valid {
		msg.MediaURL = mediaURL.String
	}
	if syncError.Valid {
		msg.SyncError = syncError.String
	}
	if msg.SentAt, err = parseTime(sentAt); err != nil {
		return nil, fmt.Errorf("parsing sent_at: %w", err)
	}
	if msg.CreatedAt, err = parseTime(createdAt); err != nil {
		return nil, fmt.Errorf("parsing created_at: %w", err)
	}

	return &msg, nil
}
