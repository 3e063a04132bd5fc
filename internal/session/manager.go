// ABOUTME: Session lifecycle manager: creation, reconnect, delete, and bridge-driven state transitions
// ABOUTME: All session mutation flows through here so the connection state machine stays enforceable

package session

import (
	"context"
	"errors"
	"log/slog"
	"time"

	"github.com/google/uuid"

	"github.com/loomcrm/whatsapp-gateway/internal/authz"
	"github.com/loomcrm/whatsapp-gateway/internal/bridge"
	"github.com/loomcrm/whatsapp-gateway/internal/errs"
	"github.com/loomcrm/whatsapp-gateway/internal/store"
)

// Store defines what the manager needs from persistence.
type Store interface {
	CreateSession(ctx context.Context, sess *store.Session) error
	GetSession(ctx context.Context, tenantID, id string) (*store.Session, error)
	UpdateSessionState(ctx context.Context, sess *store.Session) error
	SoftDeleteSession(ctx context.Context, tenantID, id string, at time.Time) error
	ListSessions(ctx context.Context, tenantID string, filter store.SessionFilter) ([]*store.Session, error)
}

// Bridge defines the bridge calls the manager makes.
type Bridge interface {
	StartSession(ctx context.Context, sessionID string) (*bridge.StartSessionResult, error)
	Logout(ctx context.Context, sessionID string) error
}

// Manager drives the session connection state machine. User actions and
// bridge events both land here; nothing else writes session state.
type Manager struct {
	store  Store
	bridge Bridge
	logger *slog.Logger
}

// NewManager creates a session manager.
func NewManager(s Store, b Bridge, logger *slog.Logger) *Manager {
	return &Manager{
		store:  s,
		bridge: b,
		logger: logger.With("component", "session"),
	}
}

// CreateParams are the inputs for creating a session.
type CreateParams struct {
	PhoneNumber string
	DisplayName string

	// Global marks the session as shared across the tenant's agents instead
	// of checked out by the creating user. Requires an elevated role.
	Global bool
}

// Create registers a new session in the disconnected state. The phone number
// is normalized to digits only before the per-tenant uniqueness check, which
// spans soft-deleted rows.
func (m *Manager) Create(ctx context.Context, actor *store.Actor, params CreateParams) (*store.Session, error) {
	phone := normalizePhone(params.PhoneNumber)
	if phone == "" {
		return nil, errs.Validation(errs.ReasonInvalidField, "phone number must contain digits")
	}
	if params.Global && !actor.Role.Elevated() {
		return nil, errs.Authorization(errs.ReasonElevatedRequired, "creating a global session requires an elevated role")
	}

	owner := store.OwnedBy(actor.ID)
	if params.Global {
		owner = store.Shared()
	}

	now := time.Now().UTC()
	sess := &store.Session{
		ID:          uuid.New().String(),
		TenantID:    actor.TenantID,
		Owner:       owner,
		PhoneNumber: phone,
		DisplayName: params.DisplayName,
		Status:      store.SessionDisconnected,
		CreatedAt:   now,
		UpdatedAt:   now,
	}

	if err := m.store.CreateSession(ctx, sess); err != nil {
		if errors.Is(err, store.ErrDuplicatePhone) {
			return nil, errs.Conflict(errs.ReasonDuplicatePhone, "a session for %s already exists", phone)
		}
		return nil, err
	}

	m.logger.Info("session created",
		"session", sess.ID,
		"tenant", sess.TenantID,
		"global", params.Global,
	)
	return sess, nil
}

// Get returns a session the actor may view.
func (m *Manager) Get(ctx context.Context, actor *store.Actor, sessionID string) (*store.Session, error) {
	sess, err := m.store.GetSession(ctx, actor.TenantID, sessionID)
	if err != nil {
		if errors.Is(err, store.ErrNotFound) {
			return nil, errs.NotFound(errs.ReasonSessionNotFound, "session not found")
		}
		return nil, err
	}
	if d := authz.Decide(authz.OpView, actor, sess, nil); !d.Allowed {
		return nil, d.Err()
	}
	return sess, nil
}

// List returns the tenant's sessions visible to the actor: everything for
// elevated roles, own plus global sessions for everyone else.
func (m *Manager) List(ctx context.Context, actor *store.Actor, status *store.SessionStatus, limit int) ([]*store.Session, error) {
	if d := authz.CanViewList(actor); !d.Allowed {
		return nil, d.Err()
	}
	return m.store.ListSessions(ctx, actor.TenantID, store.SessionFilter{
		Status: status,
		Scope:  authz.ListScope(actor),
		Limit:  limit,
	})
}

// Reconnect asks the bridge to start pairing for a session and moves it to
// connecting. A bridge failure leaves the session untouched in disconnected.
func (m *Manager) Reconnect(ctx context.Context, actor *store.Actor, sessionID string) (*store.Session, error) {
	sess, err := m.store.GetSession(ctx, actor.TenantID, sessionID)
	if err != nil {
		if errors.Is(err, store.ErrNotFound) {
			return nil, errs.NotFound(errs.ReasonSessionNotFound, "session not found")
		}
		return nil, err
	}
	if d := authz.Decide(authz.OpUpdate, actor, sess, nil); !d.Allowed {
		return nil, d.Err()
	}

	result, err := m.bridge.StartSession(ctx, sess.ID)
	if err != nil {
		return nil, err
	}

	sess.Status = store.SessionConnecting
	sess.QRCode = ""
	// Some bridges return the QR payload synchronously instead of via a
	// later qr_code event.
	if result.QRCode != "" {
		sess.Status = store.SessionQRCode
		sess.QRCode = result.QRCode
	}
	sess.UpdatedAt = time.Now().UTC()

	if err := m.store.UpdateSessionState(ctx, sess); err != nil {
		return nil, err
	}

	m.logger.Info("session reconnect started", "session", sess.ID, "status", sess.Status)
	return sess, nil
}

// Delete tombstones a session and logs it out of the bridge. Conversations
// remain, orphaned to the tombstoned row. Bridge logout is best effort: the
// tombstone makes any in-flight callbacks no-ops.
func (m *Manager) Delete(ctx context.Context, actor *store.Actor, sessionID string) error {
	sess, err := m.store.GetSession(ctx, actor.TenantID, sessionID)
	if err != nil {
		if errors.Is(err, store.ErrNotFound) {
			return errs.NotFound(errs.ReasonSessionNotFound, "session not found")
		}
		return err
	}
	if d := authz.Decide(authz.OpDelete, actor, sess, nil); !d.Allowed {
		return d.Err()
	}

	if err := m.store.SoftDeleteSession(ctx, actor.TenantID, sessionID, time.Now().UTC()); err != nil {
		if errors.Is(err, store.ErrNotFound) {
			return errs.NotFound(errs.ReasonSessionNotFound, "session not found")
		}
		return err
	}

	if err := m.bridge.Logout(ctx, sessionID); err != nil {
		m.logger.Warn("bridge logout failed after delete", "session", sessionID, "error", err)
	}

	m.logger.Info("session deleted", "session", sessionID, "tenant", actor.TenantID)
	return nil
}

// ApplyQRCode handles a bridge qr_code event: (disconnected|connecting) →
// qr_code with the transient payload stored. Other current states ignore the
// event; retried deliveries arrive out of order.
func (m *Manager) ApplyQRCode(ctx context.Context, sess *store.Session, qrPayload string) error {
	if sess.Status != store.SessionDisconnected && sess.Status != store.SessionConnecting {
		m.logger.Debug("ignoring qr_code event", "session", sess.ID, "status", sess.Status)
		return nil
	}
	sess.Status = store.SessionQRCode
	sess.QRCode = qrPayload
	sess.UpdatedAt = time.Now().UTC()
	return m.store.UpdateSessionState(ctx, sess)
}

// ApplyConnected handles a bridge connected event: (qr_code|connecting) →
// connected. Clears the QR payload, stamps connected_at/last_activity_at,
// and backfills the phone number when the session doesn't have one yet. A
// session created with a phone number keeps it; the bridge's report is only
// trusted to fill the gap, never to rebind the row to another number.
func (m *Manager) ApplyConnected(ctx context.Context, sess *store.Session, phoneNumber string) error {
	if sess.Status != store.SessionQRCode && sess.Status != store.SessionConnecting {
		m.logger.Debug("ignoring connected event", "session", sess.ID, "status", sess.Status)
		return nil
	}
	now := time.Now().UTC()
	sess.Status = store.SessionConnected
	sess.QRCode = ""
	sess.ConnectedAt = &now
	sess.LastActivityAt = &now
	if phone := normalizePhone(phoneNumber); phone != "" && sess.PhoneNumber == "" {
		sess.PhoneNumber = phone
	}
	sess.UpdatedAt = now

	if err := m.store.UpdateSessionState(ctx, sess); err != nil {
		return err
	}
	m.logger.Info("session connected", "session", sess.ID, "phone", sess.PhoneNumber)
	return nil
}

// ApplyDisconnected handles bridge disconnected/logged_out events:
// (connected|qr_code|connecting) → disconnected, clearing the QR payload.
// Already disconnected is a no-op.
func (m *Manager) ApplyDisconnected(ctx context.Context, sess *store.Session) error {
	if sess.Status == store.SessionDisconnected {
		return nil
	}
	sess.Status = store.SessionDisconnected
	sess.QRCode = ""
	sess.UpdatedAt = time.Now().UTC()

	if err := m.store.UpdateSessionState(ctx, sess); err != nil {
		return err
	}
	m.logger.Info("session disconnected", "session", sess.ID)
	return nil
}

// normalizePhone strips everything but digits.
func normalizePhone(raw string) string {
	out := make([]byte, 0, len(raw))
	for i := 0; i < len(raw); i++ {
		if raw[i] >= '0' && raw[i] <= '9' {
			out = append(out, raw[i])
		}
	}
	return string(out)
}
