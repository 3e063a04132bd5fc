// ABOUTME: Session entity store methods for per-tenant WhatsApp connection sessions
// ABOUTME: Enforces phone uniqueness across live and tombstoned rows, soft-delete included

package store

import (
	"context"
	"database/sql"
	"fmt"
	"time"
)

const sessionColumns = `session_id, tenant_id, owner_user_id, phone_number, display_name,
	       status, qr_code, connected_at, last_activity_at, deleted_at, created_at, updated_at`

// CreateSession inserts a new session row.
// Returns ErrDuplicatePhone when the tenant already has a session with the
// same phone number, soft-deleted rows included (the UNIQUE index covers
// tombstones because deletion never removes the row).
func (s *SQLiteStore) CreateSession(ctx context.Context, sess *Session) error {
	query := `
		INSERT INTO sessions (session_id, tenant_id, owner_user_id, phone_number, display_name,
			status, qr_code, connected_at, last_activity_at, deleted_at, created_at, updated_at)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)
	`

	var owner any
	if id, ok := sess.Owner.UserID(); ok {
		owner = id
	}

	_, err := s.db.ExecContext(ctx, query,
		sess.ID,
		sess.TenantID,
		owner,
		sess.PhoneNumber,
		sess.DisplayName,
		string(sess.Status),
		nullString(sess.QRCode),
		nullTimeStr(sess.ConnectedAt),
		nullTimeStr(sess.LastActivityAt),
		nullTimeStr(sess.DeletedAt),
		timeStr(sess.CreatedAt),
		timeStr(sess.UpdatedAt),
	)
	if err != nil {
		if isConstraintViolation(err) {
			return ErrDuplicatePhone
		}
		return fmt.Errorf("inserting session: %w", err)
	}

	s.logger.Debug("created session", "id", sess.ID, "tenant", sess.TenantID, "phone", sess.PhoneNumber)
	return nil
}

// GetSession retrieves a live (non-deleted) session scoped to a tenant.
// Returns ErrNotFound if the session doesn't exist or is tombstoned.
func (s *SQLiteStore) GetSession(ctx context.Context, tenantID, id string) (*Session, error) {
	query := `
		SELECT ` + sessionColumns + `
		FROM sessions
		WHERE session_id = ? AND tenant_id = ? AND deleted_at IS NULL
	`
	row := s.db.QueryRowContext(ctx, query, id, tenantID)
	return scanSession(row)
}

// GetSessionAny retrieves a session by ID regardless of tenant or tombstone
// state. Used by the webhook pipeline, which must distinguish unknown
// sessions (rejected) from soft-deleted ones (accepted no-op).
func (s *SQLiteStore) GetSessionAny(ctx context.Context, id string) (*Session, error) {
	query := `
		SELECT ` + sessionColumns + `
		FROM sessions
		WHERE session_id = ?
	`
	row := s.db.QueryRowContext(ctx, query, id)
	return scanSession(row)
}

// UpdateSessionState persists the mutable connection-state fields of a live
// session. Returns ErrNotFound for unknown or tombstoned sessions.
func (s *SQLiteStore) UpdateSessionState(ctx context.Context, sess *Session) error {
	query := `
		UPDATE sessions
		SET status = ?, qr_code = ?, phone_number = ?, connected_at = ?,
		    last_activity_at = ?, updated_at = ?
		WHERE session_id = ? AND deleted_at IS NULL
	`

	result, err := s.db.ExecContext(ctx, query,
		string(sess.Status),
		nullString(sess.QRCode),
		sess.PhoneNumber,
		nullTimeStr(sess.ConnectedAt),
		nullTimeStr(sess.LastActivityAt),
		timeStr(sess.UpdatedAt),
		sess.ID,
	)
	if err != nil {
		return fmt.Errorf("updating session state: %w", err)
	}

	rowsAffected, err := result.RowsAffected()
	if err != nil {
		return fmt.Errorf("getting rows affected: %w", err)
	}
	if rowsAffected == 0 {
		return ErrNotFound
	}

	s.logger.Debug("updated session state", "id", sess.ID, "status", sess.Status)
	return nil
}

// TouchSessionActivity stamps last_activity_at on a live session. A no-op
// for tombstoned sessions.
func (s *SQLiteStore) TouchSessionActivity(ctx context.Context, id string, at time.Time) error {
	query := `
		UPDATE sessions SET last_activity_at = ?, updated_at = ?
		WHERE session_id = ? AND deleted_at IS NULL
	`
	if _, err := s.db.ExecContext(ctx, query, timeStr(at), timeStr(at), id); err != nil {
		return fmt.Errorf("touching session activity: %w", err)
	}
	return nil
}

// SoftDeleteSession tombstones a session. Conversations remain, orphaned to
// the tombstoned row. Returns ErrNotFound if already deleted or unknown.
func (s *SQLiteStore) SoftDeleteSession(ctx context.Context, tenantID, id string, at time.Time) error {
	query := `
		UPDATE sessions SET deleted_at = ?, qr_code = NULL, status = 'disconnected', updated_at = ?
		WHERE session_id = ? AND tenant_id = ? AND deleted_at IS NULL
	`

	result, err := s.db.ExecContext(ctx, query, timeStr(at), timeStr(at), id, tenantID)
	if err != nil {
		return fmt.Errorf("soft-deleting session: %w", err)
	}

	rowsAffected, err := result.RowsAffected()
	if err != nil {
		return fmt.Errorf("getting rows affected: %w", err)
	}
	if rowsAffected == 0 {
		return ErrNotFound
	}

	s.logger.Debug("soft-deleted session", "id", id, "tenant", tenantID)
	return nil
}

// ListSessions returns live sessions for a tenant, newest activity first.
// A user scope matches sessions the user owns plus shared (global) ones.
func (s *SQLiteStore) ListSessions(ctx context.Context, tenantID string, filter SessionFilter) ([]*Session, error) {
	limit := filter.Limit
	if limit <= 0 {
		limit = 100
	}
	if limit > 500 {
		limit = 500
	}

	query := `
		SELECT ` + sessionColumns + `
		FROM sessions
		WHERE tenant_id = ? AND deleted_at IS NULL
	`
	args := []any{tenantID}

	if filter.Status != nil {
		query += ` AND status = ?`
		args = append(args, string(*filter.Status))
	}
	if !filter.Scope.All() {
		query += ` AND (owner_user_id = ? OR owner_user_id IS NULL)`
		args = append(args, filter.Scope.UserID())
	}

	query += ` ORDER BY updated_at DESC LIMIT ?`
	args = append(args, limit)

	rows, err := s.db.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("querying sessions: %w", err)
	}
	defer rows.Close()

	var sessions []*Session
	for rows.Next() {
		sess, err := scanSession(rows)
		if err != nil {
			return nil, err
		}
		sessions = append(sessions, sess)
	}

	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterating session rows: %w", err)
	}
	return sessions, nil
}

// rowScanner is satisfied by both *sql.Row and *sql.Rows
type rowScanner interface {
	Scan(dest ...any) error
}

// scanSession scans one session row
func scanSession(row rowScanner) (*Session, error) {
	var sess Session
	var owner, qr, connectedAt, lastActivity, deletedAt sql.NullString
	var createdAt, updatedAt string

	err := row.Scan(
		&sess.ID,
		&sess.TenantID,
		&owner,
		&sess.PhoneNumber,
		&sess.DisplayName,
		(*string)(&sess.Status),
		&qr,
		&connectedAt,
		&lastActivity,
		&deletedAt,
		&createdAt,
		&updatedAt,
	)
	if err == sql.ErrNoRows {
		return nil, ErrNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("scanning session: %w", err)
	}

	if owner.Valid {
		sess.Owner = OwnedBy(owner.String)
	} else {
		sess.Owner = Shared()
	}
	if qr.Valid {
		sess.QRCode = qr.String
	}
	if sess.ConnectedAt, err = parseNullTime(connectedAt); err != nil {
		return nil, fmt.Errorf("parsing connected_at: %w", err)
	}
	if sess.LastActivityAt, err = parseNullTime(lastActivity); err != nil {
		return nil, fmt.Errorf("parsing last_activity_at: %w", err)
	}
	if sess.DeletedAt, err = parseNullTime(deletedAt); err != nil {
		return nil, fmt.Errorf("parsing deleted_at: %w", err)
	}
	if sess.CreatedAt, err = parseTime(createdAt); err != nil {
		return nil, fmt.Errorf("parsing created_at: %w", err)
	}
	if sess.UpdatedAt, err = parseTime(updatedAt); err != nil {
		return nil, fmt.Errorf("parsing updated_at: %w", err)
	}

	return &sess, nil
}
