// ABOUTME: Tests for conversation store methods
// ABOUTME: Covers get-or-create idempotency, the claim CAS race, and list scoping

package store

import (
	"context"
	"sync"
	"testing"
	"time"
)

func TestGetOrCreateConversationIdempotent(t *testing.T) {
	s := newTestStore(t)
	ctx := context.Background()

	sess := testSession("tenant-1", "100", Shared())
	mustCreateSession(t, s, sess)

	now := time.Now().UTC()
	first, created, err := s.GetOrCreateConversation(ctx, &Conversation{
		ID:            "conv-1",
		SessionID:     sess.ID,
		TenantID:      "tenant-1",
		RemotePartyID: "remote-1",
		CreatedAt:     now,
		UpdatedAt:     now,
	})
	if err != nil {
		t.Fatalf("first create: %v", err)
	}
	if !created {
		t.Error("first call should create")
	}

	second, created, err := s.GetOrCreateConversation(ctx, &Conversation{
		ID:            "conv-2", // different candidate ID, same key
		SessionID:     sess.ID,
		TenantID:      "tenant-1",
		RemotePartyID: "remote-1",
		CreatedAt:     now,
		UpdatedAt:     now,
	})
	if err != nil {
		t.Fatalf("second create: %v", err)
	}
	if created {
		t.Error("second call should not create")
	}
	if second.ID != first.ID {
		t.Errorf("second call returned %s, want existing %s", second.ID, first.ID)
	}
}

func TestClaimConversationRace(t *testing.T) {
	s := newTestStore(t)
	ctx := context.Background()

	sess := testSession("tenant-1", "100", Shared())
	mustCreateSession(t, s, sess)
	conv := mustCreateConversation(t, s, sess.ID, "tenant-1", "remote-1")

	// Two users race for the same unclaimed conversation; exactly one wins.
	var wg sync.WaitGroup
	results := make(map[string]bool, 2)
	var mu sync.Mutex

	for _, user := range []string{"user-a", "user-b"} {
		wg.Add(1)
		go func(user string) {
			defer wg.Done()
			claimed, err := s.ClaimConversation(ctx, "tenant-1", conv.ID, user, time.Now().UTC())
			if err != nil {
				t.Errorf("claim by %s: %v", user, err)
				return
			}
			mu.Lock()
			results[user] = claimed
			mu.Unlock()
		}(user)
	}
	wg.Wait()

	winners := 0
	for _, won := range results {
		if won {
			winners++
		}
	}
	if winners != 1 {
		t.Fatalf("expected exactly one winner, got %d (%v)", winners, results)
	}

	got, err := s.GetConversation(ctx, "tenant-1", conv.ID)
	if err != nil {
		t.Fatalf("getting: %v", err)
	}
	if got.AssignedUserID == nil {
		t.Fatal("conversation should be assigned")
	}
	if !results[*got.AssignedUserID] {
		t.Errorf("stored assignee %s does not match claim winner", *got.AssignedUserID)
	}
}

func TestClaimAlreadyAssigned(t *testing.T) {
	s := newTestStore(t)
	ctx := context.Background()

	sess := testSession("tenant-1", "100", Shared())
	mustCreateSession(t, s, sess)
	conv := mustCreateConversation(t, s, sess.ID, "tenant-1", "remote-1")

	claimed, err := s.ClaimConversation(ctx, "tenant-1", conv.ID, "user-a", time.Now().UTC())
	if err != nil || !claimed {
		t.Fatalf("initial claim: claimed=%v err=%v", claimed, err)
	}

	claimed, err = s.ClaimConversation(ctx, "tenant-1", conv.ID, "user-b", time.Now().UTC())
	if err != nil {
		t.Fatalf("second claim: %v", err)
	}
	if claimed {
		t.Error("claim on assigned conversation should lose")
	}
}

func TestSetAssignmentOverridesClaim(t *testing.T) {
	s := newTestStore(t)
	ctx := context.Background()

	sess := testSession("tenant-1", "100", Shared())
	mustCreateSession(t, s, sess)
	conv := mustCreateConversation(t, s, sess.ID, "tenant-1", "remote-1")

	if _, err := s.ClaimConversation(ctx, "tenant-1", conv.ID, "user-a", time.Now().UTC()); err != nil {
		t.Fatalf("claiming: %v", err)
	}

	target := "user-b"
	if err := s.SetAssignment(ctx, "tenant-1", conv.ID, &target, time.Now().UTC()); err != nil {
		t.Fatalf("reassigning: %v", err)
	}

	got, err := s.GetConversation(ctx, "tenant-1", conv.ID)
	if err != nil {
		t.Fatalf("getting: %v", err)
	}
	if got.AssignedUserID == nil || *got.AssignedUserID != "user-b" {
		t.Errorf("AssignedUserID = %v, want user-b", got.AssignedUserID)
	}

	// Clear
	if err := s.SetAssignment(ctx, "tenant-1", conv.ID, nil, time.Now().UTC()); err != nil {
		t.Fatalf("unassigning: %v", err)
	}
	got, _ = s.GetConversation(ctx, "tenant-1", conv.ID)
	if got.AssignedUserID != nil {
		t.Errorf("AssignedUserID = %v, want nil", got.AssignedUserID)
	}
}

func TestBumpConversationActivity(t *testing.T) {
	s := newTestStore(t)
	ctx := context.Background()

	sess := testSession("tenant-1", "100", Shared())
	mustCreateSession(t, s, sess)
	conv := mustCreateConversation(t, s, sess.ID, "tenant-1", "remote-1")

	at := time.Now().UTC().Truncate(time.Second)
	if err := s.BumpConversationActivity(ctx, conv.ID, at, true); err != nil {
		t.Fatalf("bumping: %v", err)
	}
	if err := s.BumpConversationActivity(ctx, conv.ID, at, true); err != nil {
		t.Fatalf("bumping again: %v", err)
	}

	got, err := s.GetConversation(ctx, "tenant-1", conv.ID)
	if err != nil {
		t.Fatalf("getting: %v", err)
	}
	if got.UnreadCount != 2 {
		t.Errorf("UnreadCount = %d, want 2", got.UnreadCount)
	}
	if got.LastMessageAt == nil || !got.LastMessageAt.Equal(at) {
		t.Errorf("LastMessageAt = %v, want %v", got.LastMessageAt, at)
	}

	if err := s.MarkConversationRead(ctx, "tenant-1", conv.ID, time.Now().UTC()); err != nil {
		t.Fatalf("marking read: %v", err)
	}
	got, _ = s.GetConversation(ctx, "tenant-1", conv.ID)
	if got.UnreadCount != 0 {
		t.Errorf("UnreadCount after read = %d, want 0", got.UnreadCount)
	}
}

func TestListConversationsScopeAndFilters(t *testing.T) {
	s := newTestStore(t)
	ctx := context.Background()

	shared := testSession("tenant-1", "100", Shared())
	owned := testSession("tenant-1", "200", OwnedBy("user-b"))
	mustCreateSession(t, s, shared)
	mustCreateSession(t, s, owned)

	mine := mustCreateConversation(t, s, shared.ID, "tenant-1", "remote-1")
	unassigned := mustCreateConversation(t, s, shared.ID, "tenant-1", "remote-2")
	othersSession := mustCreateConversation(t, s, owned.ID, "tenant-1", "remote-3")

	now := time.Now().UTC()
	if _, err := s.ClaimConversation(ctx, "tenant-1", mine.ID, "user-a", now); err != nil {
		t.Fatalf("claiming: %v", err)
	}
	// user-a also assigned on user-b's session; the session ownership
	// predicate must still exclude it from user-a's scope.
	if _, err := s.ClaimConversation(ctx, "tenant-1", othersSession.ID, "user-a", now); err != nil {
		t.Fatalf("claiming: %v", err)
	}

	got, err := s.ListConversations(ctx, "tenant-1", ConversationFilter{Scope: ScopeUser("user-a")})
	if err != nil {
		t.Fatalf("listing: %v", err)
	}
	if len(got) != 1 || got[0].ID != mine.ID {
		ids := make([]string, len(got))
		for i, c := range got {
			ids[i] = c.ID
		}
		t.Errorf("user scope returned %v, want only %s", ids, mine.ID)
	}

	all, err := s.ListConversations(ctx, "tenant-1", ConversationFilter{Scope: ScopeAll()})
	if err != nil {
		t.Fatalf("listing all: %v", err)
	}
	if len(all) != 3 {
		t.Errorf("all scope returned %d conversations, want 3", len(all))
	}

	_ = unassigned

	// Archived conversations drop out unless requested.
	if err := s.SetConversationArchived(ctx, "tenant-1", mine.ID, true, now); err != nil {
		t.Fatalf("archiving: %v", err)
	}
	got, _ = s.ListConversations(ctx, "tenant-1", ConversationFilter{Scope: ScopeUser("user-a")})
	if len(got) != 0 {
		t.Errorf("archived conversation still listed")
	}
	got, _ = s.ListConversations(ctx, "tenant-1", ConversationFilter{Scope: ScopeUser("user-a"), IncludeArchived: true})
	if len(got) != 1 {
		t.Errorf("include_archived did not restore the conversation")
	}
}
