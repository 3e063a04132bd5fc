// ABOUTME: Tests for message store methods
// ABOUTME: Covers external-ID deduplication, status CAS, and retry listing

package store

import (
	"context"
	"errors"
	"fmt"
	"testing"
	"time"
)

func testMessage(convID, externalID string, direction MessageDirection, status MessageStatus) *Message {
	now := time.Now().UTC()
	return &Message{
		ID:             "msg-" + externalID,
		ConversationID: convID,
		ExternalID:     externalID,
		Direction:      direction,
		Type:           MessageText,
		Status:         status,
		SenderID:       "sender-1",
		Body:           "hello",
		SentAt:         now,
		CreatedAt:      now,
	}
}

func TestInsertMessageDuplicate(t *testing.T) {
	s := newTestStore(t)
	ctx := context.Background()

	sess := testSession("tenant-1", "100", Shared())
	mustCreateSession(t, s, sess)
	conv := mustCreateConversation(t, s, sess.ID, "tenant-1", "remote-1")

	if err := s.InsertMessage(ctx, testMessage(conv.ID, "ext-1", DirectionInbound, StatusDelivered)); err != nil {
		t.Fatalf("first insert: %v", err)
	}

	dup := testMessage(conv.ID, "ext-1", DirectionInbound, StatusDelivered)
	dup.ID = "msg-other"
	if err := s.InsertMessage(ctx, dup); !errors.Is(err, ErrDuplicateMessage) {
		t.Errorf("expected ErrDuplicateMessage, got %v", err)
	}

	// Same external ID in a different conversation is fine.
	other := mustCreateConversation(t, s, sess.ID, "tenant-1", "remote-2")
	cross := testMessage(other.ID, "ext-1", DirectionInbound, StatusDelivered)
	cross.ID = "msg-cross"
	if err := s.InsertMessage(ctx, cross); err != nil {
		t.Errorf("different conversation should not conflict: %v", err)
	}
}

func TestAdvanceMessageStatusCAS(t *testing.T) {
	s := newTestStore(t)
	ctx := context.Background()

	sess := testSession("tenant-1", "100", Shared())
	mustCreateSession(t, s, sess)
	conv := mustCreateConversation(t, s, sess.ID, "tenant-1", "remote-1")

	msg := testMessage(conv.ID, "ext-1", DirectionOutbound, StatusSent)
	if err := s.InsertMessage(ctx, msg); err != nil {
		t.Fatalf("inserting: %v", err)
	}

	ok, err := s.AdvanceMessageStatus(ctx, msg.ID, StatusSent, StatusDelivered)
	if err != nil {
		t.Fatalf("advancing: %v", err)
	}
	if !ok {
		t.Error("advance from matching status should succeed")
	}

	// Stale from-value loses.
	ok, err = s.AdvanceMessageStatus(ctx, msg.ID, StatusSent, StatusRead)
	if err != nil {
		t.Fatalf("advancing stale: %v", err)
	}
	if ok {
		t.Error("advance from stale status should fail")
	}

	got, err := s.GetMessage(ctx, msg.ID)
	if err != nil {
		t.Fatalf("getting: %v", err)
	}
	if got.Status != StatusDelivered {
		t.Errorf("status = %s, want delivered", got.Status)
	}
}

func TestFindSessionMessage(t *testing.T) {
	s := newTestStore(t)
	ctx := context.Background()

	sess := testSession("tenant-1", "100", Shared())
	mustCreateSession(t, s, sess)
	conv := mustCreateConversation(t, s, sess.ID, "tenant-1", "remote-1")

	msg := testMessage(conv.ID, "ext-1", DirectionOutbound, StatusSent)
	if err := s.InsertMessage(ctx, msg); err != nil {
		t.Fatalf("inserting: %v", err)
	}

	got, err := s.FindSessionMessage(ctx, sess.ID, "ext-1")
	if err != nil {
		t.Fatalf("finding: %v", err)
	}
	if got.ID != msg.ID {
		t.Errorf("found %s, want %s", got.ID, msg.ID)
	}

	if _, err := s.FindSessionMessage(ctx, sess.ID, "ext-unknown"); !errors.Is(err, ErrNotFound) {
		t.Errorf("expected ErrNotFound, got %v", err)
	}
}

func TestRecordSendResultKeepsExternalID(t *testing.T) {
	s := newTestStore(t)
	ctx := context.Background()

	sess := testSession("tenant-1", "100", Shared())
	mustCreateSession(t, s, sess)
	conv := mustCreateConversation(t, s, sess.ID, "tenant-1", "remote-1")

	msg := testMessage(conv.ID, "placeholder-1", DirectionOutbound, StatusPending)
	if err := s.InsertMessage(ctx, msg); err != nil {
		t.Fatalf("inserting: %v", err)
	}

	// Failure keeps the placeholder external ID.
	if err := s.RecordSendResult(ctx, msg.ID, StatusFailed, "", "bridge timeout", 1); err != nil {
		t.Fatalf("recording failure: %v", err)
	}
	got, _ := s.GetMessage(ctx, msg.ID)
	if got.ExternalID != "placeholder-1" {
		t.Errorf("ExternalID = %q, want placeholder kept", got.ExternalID)
	}
	if got.SyncError != "bridge timeout" {
		t.Errorf("SyncError = %q", got.SyncError)
	}

	// Success replaces it with the bridge ID and clears the error.
	if err := s.RecordSendResult(ctx, msg.ID, StatusSent, "wa-real-id", "", 2); err != nil {
		t.Fatalf("recording success: %v", err)
	}
	got, _ = s.GetMessage(ctx, msg.ID)
	if got.ExternalID != "wa-real-id" {
		t.Errorf("ExternalID = %q, want wa-real-id", got.ExternalID)
	}
	if got.SyncError != "" {
		t.Errorf("SyncError = %q, want empty", got.SyncError)
	}
	if got.SendAttempts != 2 {
		t.Errorf("SendAttempts = %d, want 2", got.SendAttempts)
	}
}

func TestListFailedOutbound(t *testing.T) {
	s := newTestStore(t)
	ctx := context.Background()

	sess := testSession("tenant-1", "100", Shared())
	mustCreateSession(t, s, sess)
	conv := mustCreateConversation(t, s, sess.ID, "tenant-1", "remote-1")

	old := testMessage(conv.ID, "ext-old", DirectionOutbound, StatusFailed)
	old.SentAt = time.Now().UTC().Add(-time.Hour)
	old.SendAttempts = 1

	exhausted := testMessage(conv.ID, "ext-exhausted", DirectionOutbound, StatusFailed)
	exhausted.SentAt = time.Now().UTC().Add(-time.Hour)
	exhausted.SendAttempts = 5

	inbound := testMessage(conv.ID, "ext-inbound", DirectionInbound, StatusFailed)
	inbound.SentAt = time.Now().UTC().Add(-time.Hour)

	fresh := testMessage(conv.ID, "ext-fresh", DirectionOutbound, StatusFailed)

	for _, m := range []*Message{old, exhausted, inbound, fresh} {
		if err := s.InsertMessage(ctx, m); err != nil {
			t.Fatalf("inserting %s: %v", m.ExternalID, err)
		}
	}

	got, err := s.ListFailedOutbound(ctx, time.Now().UTC().Add(-time.Minute), 5, 10)
	if err != nil {
		t.Fatalf("listing: %v", err)
	}
	if len(got) != 1 || got[0].ID != old.ID {
		ids := make([]string, len(got))
		for i, m := range got {
			ids[i] = m.ExternalID
		}
		t.Errorf("got %v, want only ext-old", ids)
	}
}

func TestListConversationMessagesOrder(t *testing.T) {
	s := newTestStore(t)
	ctx := context.Background()

	sess := testSession("tenant-1", "100", Shared())
	mustCreateSession(t, s, sess)
	conv := mustCreateConversation(t, s, sess.ID, "tenant-1", "remote-1")

	base := time.Now().UTC().Add(-time.Hour)
	for i := 0; i < 5; i++ {
		msg := testMessage(conv.ID, fmt.Sprintf("ext-%d", i), DirectionInbound, StatusDelivered)
		msg.SentAt = base.Add(time.Duration(i) * time.Minute)
		if err := s.InsertMessage(ctx, msg); err != nil {
			t.Fatalf("inserting: %v", err)
		}
	}

	// Most recent 3, returned oldest first.
	got, err := s.ListConversationMessages(ctx, conv.ID, 3)
	if err != nil {
		t.Fatalf("listing: %v", err)
	}
	if len(got) != 3 {
		t.Fatalf("got %d messages, want 3", len(got))
	}
	want := []string{"ext-2", "ext-3", "ext-4"}
	for i, m := range got {
		if m.ExternalID != want[i] {
			t.Errorf("position %d = %s, want %s", i, m.ExternalID, want[i])
		}
	}
}
