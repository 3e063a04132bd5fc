// ABOUTME: Tests for session store methods
// ABOUTME: Covers phone uniqueness across tombstones, soft delete, and list scoping

package store

import (
	"context"
	"errors"
	"testing"
	"time"
)

func TestCreateSessionDuplicatePhone(t *testing.T) {
	s := newTestStore(t)
	ctx := context.Background()

	mustCreateSession(t, s, testSession("tenant-1", "15551234567", Shared()))

	dup := testSession("tenant-1", "15551234567", OwnedBy("user-1"))
	dup.ID = "sess-dup"
	if err := s.CreateSession(ctx, dup); !errors.Is(err, ErrDuplicatePhone) {
		t.Errorf("expected ErrDuplicatePhone, got %v", err)
	}

	// Same phone under a different tenant is fine.
	other := testSession("tenant-2", "15551234567", Shared())
	other.ID = "sess-other-tenant"
	if err := s.CreateSession(ctx, other); err != nil {
		t.Errorf("different tenant should not conflict: %v", err)
	}
}

func TestPhoneUniquenessCoversTombstones(t *testing.T) {
	s := newTestStore(t)
	ctx := context.Background()

	sess := testSession("tenant-1", "15551234567", Shared())
	mustCreateSession(t, s, sess)

	if err := s.SoftDeleteSession(ctx, "tenant-1", sess.ID, time.Now().UTC()); err != nil {
		t.Fatalf("soft deleting: %v", err)
	}

	// The tombstoned row still occupies the unique index.
	dup := testSession("tenant-1", "15551234567", Shared())
	dup.ID = "sess-after-delete"
	if err := s.CreateSession(ctx, dup); !errors.Is(err, ErrDuplicatePhone) {
		t.Errorf("expected ErrDuplicatePhone after soft delete, got %v", err)
	}
}

func TestGetSessionExcludesDeleted(t *testing.T) {
	s := newTestStore(t)
	ctx := context.Background()

	sess := testSession("tenant-1", "15551234567", Shared())
	mustCreateSession(t, s, sess)

	if err := s.SoftDeleteSession(ctx, "tenant-1", sess.ID, time.Now().UTC()); err != nil {
		t.Fatalf("soft deleting: %v", err)
	}

	if _, err := s.GetSession(ctx, "tenant-1", sess.ID); !errors.Is(err, ErrNotFound) {
		t.Errorf("GetSession after delete: expected ErrNotFound, got %v", err)
	}

	// GetSessionAny still sees it, marked deleted.
	got, err := s.GetSessionAny(ctx, sess.ID)
	if err != nil {
		t.Fatalf("GetSessionAny: %v", err)
	}
	if !got.Deleted() {
		t.Error("expected session to be marked deleted")
	}
	if got.Status != SessionDisconnected {
		t.Errorf("deleted session status = %s, want disconnected", got.Status)
	}
	if got.QRCode != "" {
		t.Error("deleted session should have cleared QR code")
	}
}

func TestGetSessionTenantScoped(t *testing.T) {
	s := newTestStore(t)
	ctx := context.Background()

	sess := testSession("tenant-1", "15551234567", Shared())
	mustCreateSession(t, s, sess)

	if _, err := s.GetSession(ctx, "tenant-2", sess.ID); !errors.Is(err, ErrNotFound) {
		t.Errorf("cross-tenant get: expected ErrNotFound, got %v", err)
	}
}

func TestUpdateSessionStateAfterDelete(t *testing.T) {
	s := newTestStore(t)
	ctx := context.Background()

	sess := testSession("tenant-1", "15551234567", Shared())
	mustCreateSession(t, s, sess)

	if err := s.SoftDeleteSession(ctx, "tenant-1", sess.ID, time.Now().UTC()); err != nil {
		t.Fatalf("soft deleting: %v", err)
	}

	sess.Status = SessionConnected
	sess.UpdatedAt = time.Now().UTC()
	if err := s.UpdateSessionState(ctx, sess); !errors.Is(err, ErrNotFound) {
		t.Errorf("update on tombstone: expected ErrNotFound, got %v", err)
	}
}

func TestListSessionsUserScope(t *testing.T) {
	s := newTestStore(t)
	ctx := context.Background()

	mine := testSession("tenant-1", "100", OwnedBy("user-a"))
	shared := testSession("tenant-1", "200", Shared())
	theirs := testSession("tenant-1", "300", OwnedBy("user-b"))
	for _, sess := range []*Session{mine, shared, theirs} {
		mustCreateSession(t, s, sess)
	}

	got, err := s.ListSessions(ctx, "tenant-1", SessionFilter{Scope: ScopeUser("user-a")})
	if err != nil {
		t.Fatalf("listing: %v", err)
	}
	if len(got) != 2 {
		t.Fatalf("user scope returned %d sessions, want 2", len(got))
	}
	for _, sess := range got {
		if owner, ok := sess.Owner.UserID(); ok && owner != "user-a" {
			t.Errorf("user scope leaked session owned by %s", owner)
		}
	}

	all, err := s.ListSessions(ctx, "tenant-1", SessionFilter{Scope: ScopeAll()})
	if err != nil {
		t.Fatalf("listing all: %v", err)
	}
	if len(all) != 3 {
		t.Errorf("all scope returned %d sessions, want 3", len(all))
	}
}

func TestSessionRoundTrip(t *testing.T) {
	s := newTestStore(t)
	ctx := context.Background()

	now := time.Now().UTC().Truncate(time.Second)
	sess := testSession("tenant-1", "15551234567", OwnedBy("user-1"))
	sess.Status = SessionQRCode
	sess.QRCode = "qr-payload-data"
	sess.ConnectedAt = &now
	mustCreateSession(t, s, sess)

	got, err := s.GetSession(ctx, "tenant-1", sess.ID)
	if err != nil {
		t.Fatalf("getting: %v", err)
	}
	if got.QRCode != "qr-payload-data" {
		t.Errorf("QRCode = %q", got.QRCode)
	}
	if owner, ok := got.Owner.UserID(); !ok || owner != "user-1" {
		t.Errorf("Owner = %q, %v", owner, ok)
	}
	if got.ConnectedAt == nil || !got.ConnectedAt.Equal(now) {
		t.Errorf("ConnectedAt = %v, want %v", got.ConnectedAt, now)
	}
}
