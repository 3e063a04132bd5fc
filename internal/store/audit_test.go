// ABOUTME: Tests for actor and assignment audit store methods

package store

import (
	"context"
	"errors"
	"testing"
	"time"
)

func TestActorRoundTrip(t *testing.T) {
	s := newTestStore(t)
	ctx := context.Background()

	actor := &Actor{
		ID:          "actor-1",
		TenantID:    "tenant-1",
		DisplayName: "Sales Rep",
		Role:        RoleSales,
		Permissions: []string{"whatsapp.view", "whatsapp.send"},
		Status:      ActorStatusActive,
		CreatedAt:   time.Now().UTC(),
	}
	if err := s.CreateActor(ctx, actor); err != nil {
		t.Fatalf("creating actor: %v", err)
	}

	got, err := s.GetActor(ctx, "actor-1")
	if err != nil {
		t.Fatalf("getting actor: %v", err)
	}
	if got.Role != RoleSales {
		t.Errorf("Role = %s", got.Role)
	}
	if !got.HasPermission("whatsapp.send") {
		t.Error("expected whatsapp.send permission")
	}
	if got.HasPermission("whatsapp.delete") {
		t.Error("unexpected whatsapp.delete permission")
	}

	if _, err := s.GetActor(ctx, "nope"); !errors.Is(err, ErrNotFound) {
		t.Errorf("expected ErrNotFound, got %v", err)
	}
}

func TestAssignmentAuditLog(t *testing.T) {
	s := newTestStore(t)
	ctx := context.Background()

	target := "user-b"
	entries := []*AssignmentAudit{
		{TenantID: "tenant-1", ActorID: "user-a", ConversationID: "conv-1", Action: AuditSelfAssign, TargetUserID: &target},
		{TenantID: "tenant-1", ActorID: "mgr-1", ConversationID: "conv-1", Action: AuditAssign, TargetUserID: &target, Detail: map[string]any{"previous_user_id": "user-a"}},
		{TenantID: "tenant-1", ActorID: "mgr-1", ConversationID: "conv-2", Action: AuditUnassign},
		{TenantID: "tenant-2", ActorID: "other", ConversationID: "conv-9", Action: AuditAssign, TargetUserID: &target},
	}
	for _, e := range entries {
		if err := s.AppendAssignmentAudit(ctx, e); err != nil {
			t.Fatalf("appending: %v", err)
		}
		if e.ID == "" {
			t.Error("expected generated audit ID")
		}
	}

	got, err := s.ListAssignmentAudit(ctx, "tenant-1", "", 10)
	if err != nil {
		t.Fatalf("listing: %v", err)
	}
	if len(got) != 3 {
		t.Fatalf("tenant listing returned %d entries, want 3", len(got))
	}

	got, err = s.ListAssignmentAudit(ctx, "tenant-1", "conv-1", 10)
	if err != nil {
		t.Fatalf("listing by conversation: %v", err)
	}
	if len(got) != 2 {
		t.Fatalf("conversation listing returned %d entries, want 2", len(got))
	}
	for _, e := range got {
		if e.ConversationID != "conv-1" {
			t.Errorf("leaked entry for %s", e.ConversationID)
		}
	}
}
