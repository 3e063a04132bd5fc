// ABOUTME: Actor entity store methods for tenant users and their permission sets
// ABOUTME: Permissions are stored as a JSON array alongside the role

package store

import (
	"context"
	"database/sql"
	"encoding/json"
	"fmt"
)

// CreateActor inserts a new actor row.
func (s *SQLiteStore) CreateActor(ctx context.Context, a *Actor) error {
	perms, err := json.Marshal(a.Permissions)
	if err != nil {
		return fmt.Errorf("marshaling permissions: %w", err)
	}

	query := `
		INSERT INTO actors (actor_id, tenant_id, display_name, role, permissions, status, created_at)
		VALUES (?, ?, ?, ?, ?, ?, ?)
	`

	_, err = s.db.ExecContext(ctx, query,
		a.ID,
		a.TenantID,
		a.DisplayName,
		string(a.Role),
		string(perms),
		string(a.Status),
		timeStr(a.CreatedAt),
	)
	if err != nil {
		return fmt.Errorf("inserting actor: %w", err)
	}

	s.logger.Debug("created actor", "id", a.ID, "tenant", a.TenantID, "role", a.Role)
	return nil
}

// GetActor retrieves an actor by ID. Returns ErrNotFound if absent.
func (s *SQLiteStore) GetActor(ctx context.Context, id string) (*Actor, error) {
	query := `
		SELECT actor_id, tenant_id, display_name, role, permissions, status, created_at
		FROM actors
		WHERE actor_id = ?
	`

	var a Actor
	var permsJSON, createdAt string

	err := s.db.QueryRowContext(ctx, query, id).Scan(
		&a.ID,
		&a.TenantID,
		&a.DisplayName,
		(*string)(&a.Role),
		&permsJSON,
		(*string)(&a.Status),
		&createdAt,
	)
	if err == sql.ErrNoRows {
		return nil, ErrNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("querying actor: %w", err)
	}

	if err := json.Unmarshal([]byte(permsJSON), &a.Permissions); err != nil {
		return nil, fmt.Errorf("unmarshaling permissions: %w", err)
	}
	if a.CreatedAt, err = parseTime(createdAt); err != nil {
		return nil, fmt.Errorf("parsing created_at: %w", err)
	}

	return &a, nil
}
