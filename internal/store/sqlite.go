// ABOUTME: SQLite implementation of gateway persistence using modernc.org/sqlite
// ABOUTME: Opens the database, creates the schema, and provides shared scan helpers

package store

import (
	"database/sql"
	"fmt"
	"log/slog"
	"os"
	"path/filepath"
	"strings"
	"time"

	_ "modernc.org/sqlite"
)

// SQLiteStore implements gateway persistence using SQLite
type SQLiteStore struct {
	db     *sql.DB
	logger *slog.Logger
}

// NewSQLiteStore creates a new SQLite store at the given path.
// The schema is automatically created if it doesn't exist.
// Parent directories are created if needed.
func NewSQLiteStore(path string) (*SQLiteStore, error) {
	logger := slog.Default().With("component", "store")

	// Ensure parent directory exists
	dir := filepath.Dir(path)
	if err := os.MkdirAll(dir, 0755); err != nil {
		return nil, fmt.Errorf("creating database directory: %w", err)
	}

	db, err := sql.Open("sqlite", path)
	if err != nil {
		return nil, fmt.Errorf("opening database: %w", err)
	}

	// Enable WAL mode for better concurrent performance
	if _, err := db.Exec("PRAGMA journal_mode=WAL"); err != nil {
		db.Close()
		return nil, fmt.Errorf("enabling WAL mode: %w", err)
	}

	// Enable foreign keys
	if _, err := db.Exec("PRAGMA foreign_keys=ON"); err != nil {
		db.Close()
		return nil, fmt.Errorf("enabling foreign keys: %w", err)
	}

	s := &SQLiteStore{
		db:     db,
		logger: logger,
	}

	if err := s.createSchema(); err != nil {
		db.Close()
		return nil, fmt.Errorf("creating schema: %w", err)
	}

	logger.Info("SQLite store initialized", "path", path)
	return s, nil
}

// createSchema creates the database tables if they don't exist
func (s *SQLiteStore) createSchema() error {
	schema := `
		CREATE TABLE IF NOT EXISTS actors (
			actor_id     TEXT PRIMARY KEY,
			tenant_id    TEXT NOT NULL,
			display_name TEXT NOT NULL,
			role         TEXT NOT NULL,
			permissions  TEXT NOT NULL DEFAULT '[]',
			status       TEXT NOT NULL DEFAULT 'active',
			created_at   TEXT NOT NULL,

			CHECK (role IN ('super_admin', 'admin', 'manager', 'sales', 'support', 'viewer')),
			CHECK (status IN ('active', 'disabled'))
		);

		CREATE INDEX IF NOT EXISTS idx_actors_tenant ON actors(tenant_id);

		CREATE TABLE IF NOT EXISTS sessions (
			session_id       TEXT PRIMARY KEY,
			tenant_id        TEXT NOT NULL,
			owner_user_id    TEXT,
			phone_number     TEXT NOT NULL,
			display_name     TEXT NOT NULL,
			status           TEXT NOT NULL DEFAULT 'disconnected',
			qr_code          TEXT,
			connected_at     TEXT,
			last_activity_at TEXT,
			deleted_at       TEXT,
			created_at       TEXT NOT NULL,
			updated_at       TEXT NOT NULL,

			CHECK (status IN ('disconnected', 'connecting', 'qr_code', 'connected')),
			UNIQUE (tenant_id, phone_number)
		);

		CREATE INDEX IF NOT EXISTS idx_sessions_tenant ON sessions(tenant_id);
		CREATE INDEX IF NOT EXISTS idx_sessions_owner ON sessions(owner_user_id);

		CREATE TABLE IF NOT EXISTS conversations (
			conversation_id   TEXT PRIMARY KEY,
			session_id        TEXT NOT NULL REFERENCES sessions(session_id),
			tenant_id         TEXT NOT NULL,
			remote_party_id   TEXT NOT NULL,
			is_group          INTEGER NOT NULL DEFAULT 0,
			assigned_user_id  TEXT,
			unread_count      INTEGER NOT NULL DEFAULT 0,
			is_pinned         INTEGER NOT NULL DEFAULT 0,
			is_archived       INTEGER NOT NULL DEFAULT 0,
			linked_contact_id TEXT,
			last_message_at   TEXT,
			deleted_at        TEXT,
			created_at        TEXT NOT NULL,
			updated_at        TEXT NOT NULL,

			CHECK (unread_count >= 0),
			UNIQUE (session_id, remote_party_id)
		);

		CREATE INDEX IF NOT EXISTS idx_conversations_tenant ON conversations(tenant_id);
		CREATE INDEX IF NOT EXISTS idx_conversations_assigned ON conversations(assigned_user_id);
		CREATE INDEX IF NOT EXISTS idx_conversations_activity ON conversations(tenant_id, last_message_at DESC);

		CREATE TABLE IF NOT EXISTS messages (
			message_id      TEXT PRIMARY KEY,
			conversation_id TEXT NOT NULL REFERENCES conversations(conversation_id),
			external_id     TEXT NOT NULL,
			direction       TEXT NOT NULL,
			type            TEXT NOT NULL DEFAULT 'text',
			status          TEXT NOT NULL DEFAULT 'pending',
			sender_id       TEXT NOT NULL,
			sender_name     TEXT,
			body            TEXT,
			media_url       TEXT,
			sync_error      TEXT,
			send_attempts   INTEGER NOT NULL DEFAULT 0,
			sent_at         TEXT NOT NULL,
			created_at      TEXT NOT NULL,

			CHECK (direction IN ('inbound', 'outbound')),
			CHECK (status IN ('pending', 'sent', 'delivered', 'read', 'failed')),
			UNIQUE (conversation_id, external_id)
		);

		CREATE INDEX IF NOT EXISTS idx_messages_conversation ON messages(conversation_id, sent_at);
		CREATE INDEX IF NOT EXISTS idx_messages_status ON messages(status, direction);

		CREATE TABLE IF NOT EXISTS assignment_audit (
			audit_id        TEXT PRIMARY KEY,
			tenant_id       TEXT NOT NULL,
			actor_id        TEXT NOT NULL,
			conversation_id TEXT NOT NULL,
			action          TEXT NOT NULL,
			target_user_id  TEXT,
			ts              TEXT NOT NULL,
			detail_json     TEXT,

			CHECK (action IN ('assign', 'self_assign', 'unassign'))
		);

		CREATE INDEX IF NOT EXISTS idx_audit_tenant_ts ON assignment_audit(tenant_id, ts DESC);
		CREATE INDEX IF NOT EXISTS idx_audit_conversation ON assignment_audit(conversation_id);
	`

	_, err := s.db.Exec(schema)
	return err
}

// Close closes the database connection
func (s *SQLiteStore) Close() error {
	s.logger.Info("closing SQLite store")
	return s.db.Close()
}

// isConstraintViolation checks if the error is a SQLite UNIQUE constraint violation
func isConstraintViolation(err error) bool {
	if err == nil {
		return false
	}
	errStr := err.Error()
	return strings.Contains(errStr, "UNIQUE constraint failed") ||
		strings.Contains(errStr, "constraint failed")
}

// nullString returns nil for empty strings, otherwise the string
func nullString(s string) any {
	if s == "" {
		return nil
	}
	return s
}

// timeStr formats a timestamp for storage
func timeStr(t time.Time) string {
	return t.UTC().Format(time.RFC3339)
}

// nullTimeStr formats an optional timestamp for storage
func nullTimeStr(t *time.Time) any {
	if t == nil {
		return nil
	}
	return timeStr(*t)
}

// parseTime parses a stored RFC3339 timestamp
func parseTime(s string) (time.Time, error) {
	return time.Parse(time.RFC3339, s)
}

// parseNullTime parses an optional stored timestamp
func parseNullTime(ns sql.NullString) (*time.Time, error) {
	if !ns.Valid {
		return nil, nil
	}
	t, err := time.Parse(time.RFC3339, ns.String)
	if err != nil {
		return nil, err
	}
	return &t, nil
}
