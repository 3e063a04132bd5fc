// ABOUTME: Assignment coordinator: claim, reassign, unassign, and bulk assignment
// ABOUTME: Concurrent self-assigns race on a single conditional UPDATE; exactly one wins

package conversation

import (
	"context"
	"errors"
	"time"

	"github.com/loomcrm/whatsapp-gateway/internal/authz"
	"github.com/loomcrm/whatsapp-gateway/internal/errs"
	"github.com/loomcrm/whatsapp-gateway/internal/store"
)

// Assign assigns a conversation to targetUserID; an empty target means the
// requesting actor (self-assign). Non-elevated actors may only claim for
// themselves, on a global session, while the conversation is unassigned; the
// claim is an atomic compare-and-set, so two concurrent claimants cannot
// both succeed. Elevated actors reassign unconditionally. Every success
// appends an audit entry.
func (s *Service) Assign(ctx context.Context, actor *store.Actor, conversationID, targetUserID string) (*store.Conversation, error) {
	if targetUserID == "" {
		targetUserID = actor.ID
	}

	conv, sess, err := s.loadForAssign(ctx, actor, conversationID)
	if err != nil {
		return nil, err
	}

	// The target must be a real actor in the requester's tenant.
	target, err := s.store.GetActor(ctx, targetUserID)
	if err != nil {
		if errors.Is(err, store.ErrNotFound) {
			return nil, errs.NotFound(errs.ReasonActorNotFound, "target user not found")
		}
		return nil, err
	}
	if target.TenantID != actor.TenantID {
		return nil, errs.Authorization(errs.ReasonTenantMismatch, "target user belongs to a different tenant")
	}

	if d := authz.DecideAssign(actor, sess, conv, targetUserID); !d.Allowed {
		// A denied non-elevated claim on an already assigned conversation is
		// a conflict, not a permission problem: an elevated role could still
		// reassign it.
		if d.Reason == authz.ReasonAlreadyAssigned {
			return nil, errs.Conflict(errs.ReasonAlreadyAssigned, "conversation already assigned; an elevated role is required to reassign")
		}
		return nil, d.Err()
	}

	now := time.Now().UTC()
	prev := conv.AssignedUserID

	if actor.Role.Elevated() {
		if err := s.store.SetAssignment(ctx, actor.TenantID, conv.ID, &targetUserID, now); err != nil {
			if errors.Is(err, store.ErrNotFound) {
				return nil, errs.NotFound(errs.ReasonConversationMissing, "conversation not found")
			}
			return nil, err
		}
	} else {
		claimed, err := s.store.ClaimConversation(ctx, actor.TenantID, conv.ID, targetUserID, now)
		if err != nil {
			return nil, err
		}
		if !claimed {
			return nil, errs.Conflict(errs.ReasonAlreadyAssigned, "conversation already assigned; an elevated role is required to reassign")
		}
	}

	action := store.AuditAssign
	if targetUserID == actor.ID && !actor.Role.Elevated() {
		action = store.AuditSelfAssign
	}
	s.audit(ctx, actor, conv.ID, action, &targetUserID, prev)

	conv.AssignedUserID = &targetUserID
	conv.UpdatedAt = now

	s.logger.Info("conversation assigned",
		"conversation", conv.ID,
		"actor", actor.ID,
		"target", targetUserID,
		"action", action,
	)
	return conv, nil
}

// Unassign clears the assignee. Elevated roles only, allowed regardless of
// the current assignment state.
func (s *Service) Unassign(ctx context.Context, actor *store.Actor, conversationID string) (*store.Conversation, error) {
	if !actor.Role.Elevated() {
		return nil, errs.Authorization(errs.ReasonElevatedRequired, "unassign requires an elevated role")
	}

	conv, _, err := s.loadForAssign(ctx, actor, conversationID)
	if err != nil {
		return nil, err
	}

	now := time.Now().UTC()
	prev := conv.AssignedUserID
	if err := s.store.SetAssignment(ctx, actor.TenantID, conv.ID, nil, now); err != nil {
		if errors.Is(err, store.ErrNotFound) {
			return nil, errs.NotFound(errs.ReasonConversationMissing, "conversation not found")
		}
		return nil, err
	}

	s.audit(ctx, actor, conv.ID, store.AuditUnassign, nil, prev)

	conv.AssignedUserID = nil
	conv.UpdatedAt = now

	s.logger.Info("conversation unassigned", "conversation", conv.ID, "actor", actor.ID)
	return conv, nil
}

// maxBulkAssign bounds a single bulk call.
const maxBulkAssign = 100

// BulkFailure records why one conversation in a bulk call was not assigned.
type BulkFailure struct {
	ConversationID string `json:"conversation_id"`
	Reason         string `json:"reason"`
	Message        string `json:"message"`
}

// BulkResult reports the per-item outcome of a bulk assignment.
type BulkResult struct {
	Assigned []string      `json:"assigned"`
	Failed   []BulkFailure `json:"failed"`
}

// BulkAssign runs the single-item assignment per ID. Each item succeeds or
// fails independently; one bad ID never aborts the rest.
func (s *Service) BulkAssign(ctx context.Context, actor *store.Actor, conversationIDs []string, targetUserID string) (*BulkResult, error) {
	if len(conversationIDs) == 0 {
		return nil, errs.Validation(errs.ReasonMissingField, "at least one conversation id is required")
	}
	if len(conversationIDs) > maxBulkAssign {
		return nil, errs.Validation(errs.ReasonInvalidField, "at most %d conversations per bulk call", maxBulkAssign)
	}

	result := &BulkResult{
		Assigned: []string{},
		Failed:   []BulkFailure{},
	}
	for _, id := range conversationIDs {
		if _, err := s.Assign(ctx, actor, id, targetUserID); err != nil {
			reason := errs.ReasonOf(err)
			if reason == "" {
				reason = "internal"
			}
			result.Failed = append(result.Failed, BulkFailure{
				ConversationID: id,
				Reason:         reason,
				Message:        err.Error(),
			})
			continue
		}
		result.Assigned = append(result.Assigned, id)
	}

	s.logger.Info("bulk assignment finished",
		"actor", actor.ID,
		"target", targetUserID,
		"assigned", len(result.Assigned),
		"failed", len(result.Failed),
	)
	return result, nil
}

// loadForAssign loads the conversation and its session without running the
// per-op decision; assignment has its own rule via DecideAssign.
func (s *Service) loadForAssign(ctx context.Context, actor *store.Actor, conversationID string) (*store.Conversation, *store.Session, error) {
	conv, err := s.store.GetConversation(ctx, actor.TenantID, conversationID)
	if err != nil {
		if errors.Is(err, store.ErrNotFound) {
			return nil, nil, errs.NotFound(errs.ReasonConversationMissing, "conversation not found")
		}
		return nil, nil, err
	}
	sess, err := s.store.GetSessionAny(ctx, conv.SessionID)
	if err != nil {
		if errors.Is(err, store.ErrNotFound) {
			return nil, nil, errs.NotFound(errs.ReasonSessionNotFound, "session not found")
		}
		return nil, nil, err
	}
	return conv, sess, nil
}

// audit appends one assignment audit row. Audit failures are logged, never
// surfaced: the assignment itself already committed.
func (s *Service) audit(ctx context.Context, actor *store.Actor, conversationID string, action store.AuditAction, target, previous *string) {
	detail := map[string]any{}
	if previous != nil {
		detail["previous_user_id"] = *previous
	}
	err := s.store.AppendAssignmentAudit(ctx, &store.AssignmentAudit{
		TenantID:       actor.TenantID,
		ActorID:        actor.ID,
		ConversationID: conversationID,
		Action:         action,
		TargetUserID:   target,
		Detail:         detail,
	})
	if err != nil {
		s.logger.Error("appending assignment audit", "conversation", conversationID, "error", err)
	}
}
