// ABOUTME: Conversation surface: listing, flags, read state, and outbound message sends
// ABOUTME: Every operation is gated through the authorization engine before touching storage

package conversation

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

// Store defines what the conversation service needs from persistence.
type Store interface {
	GetConversation(ctx context.Context, tenantID, id string) (*store.Conversation, error)
	GetSessionAny(ctx context.Context, id string) (*store.Session, error)
	GetActor(ctx context.Context, id string) (*store.Actor, error)
	ListConversations(ctx context.Context, tenantID string, filter store.ConversationFilter) ([]*store.Conversation, error)
	SetConversationPinned(ctx context.Context, tenantID, id string, pinned bool, at time.Time) error
	SetConversationArchived(ctx context.Context, tenantID, id string, archived bool, at time.Time) error
	SetLinkedContact(ctx context.Context, tenantID, id string, contactID *string, at time.Time) error
	MarkConversationRead(ctx context.Context, tenantID, id string, at time.Time) error
	BumpConversationActivity(ctx context.Context, id string, at time.Time, incrementUnread bool) error
	ListConversationMessages(ctx context.Context, conversationID string, limit int) ([]*store.Message, error)
	InsertMessage(ctx context.Context, msg *store.Message) error
	RecordSendResult(ctx context.Context, id string, status store.MessageStatus, externalID, syncError string, attempts int) error
	ClaimConversation(ctx context.Context, tenantID, id, userID string, at time.Time) (bool, error)
	SetAssignment(ctx context.Context, tenantID, id string, userID *string, at time.Time) error
	AppendAssignmentAudit(ctx context.Context, e *store.AssignmentAudit) error
}

// Bridge defines the outbound send calls the service makes.
type Bridge interface {
	SendText(ctx context.Context, sessionID, remotePartyID, body string) (*bridge.SendResult, error)
	SendMedia(ctx context.Context, sessionID, remotePartyID, mediaType, mediaURL, caption string) (*bridge.SendResult, error)
}

// Service owns all conversation-level operations for the API surface.
type Service struct {
	store  Store
	bridge Bridge
	logger *slog.Logger
}

// NewService creates a conversation service.
func NewService(s Store, b Bridge, logger *slog.Logger) *Service {
	return &Service{
		store:  s,
		bridge: b,
		logger: logger.With("component", "conversation"),
	}
}

// ListFilter narrows the conversation listing.
type ListFilter struct {
	SessionID       string
	AssignedUserID  *string
	UnreadOnly      bool
	IncludeArchived bool
	Search          string
	Limit           int
}

// List returns the conversations the actor may see, scoped server-side by
// the same rule that gates single-conversation access.
func (s *Service) List(ctx context.Context, actor *store.Actor, filter ListFilter) ([]*store.Conversation, error) {
	if d := authz.CanViewList(actor); !d.Allowed {
		return nil, d.Err()
	}
	return s.store.ListConversations(ctx, actor.TenantID, store.ConversationFilter{
		SessionID:       filter.SessionID,
		AssignedUserID:  filter.AssignedUserID,
		UnreadOnly:      filter.UnreadOnly,
		IncludeArchived: filter.IncludeArchived,
		Search:          filter.Search,
		Scope:           authz.ListScope(actor),
		Limit:           filter.Limit,
	})
}

// Get returns one conversation the actor may view.
func (s *Service) Get(ctx context.Context, actor *store.Actor, conversationID string) (*store.Conversation, error) {
	conv, _, err := s.authorize(ctx, actor, conversationID, authz.OpView)
	return conv, err
}

// Messages returns the most recent messages of a conversation the actor may
// view, oldest first.
func (s *Service) Messages(ctx context.Context, actor *store.Actor, conversationID string, limit int) ([]*store.Message, error) {
	if _, _, err := s.authorize(ctx, actor, conversationID, authz.OpView); err != nil {
		return nil, err
	}
	return s.store.ListConversationMessages(ctx, conversationID, limit)
}

// SetPinned pins or unpins a conversation.
func (s *Service) SetPinned(ctx context.Context, actor *store.Actor, conversationID string, pinned bool) error {
	if _, _, err := s.authorize(ctx, actor, conversationID, authz.OpPin); err != nil {
		return err
	}
	return s.store.SetConversationPinned(ctx, actor.TenantID, conversationID, pinned, time.Now().UTC())
}

// SetArchived archives or unarchives a conversation.
func (s *Service) SetArchived(ctx context.Context, actor *store.Actor, conversationID string, archived bool) error {
	if _, _, err := s.authorize(ctx, actor, conversationID, authz.OpArchive); err != nil {
		return err
	}
	return s.store.SetConversationArchived(ctx, actor.TenantID, conversationID, archived, time.Now().UTC())
}

// LinkContact links a CRM contact to the conversation; nil unlinks.
func (s *Service) LinkContact(ctx context.Context, actor *store.Actor, conversationID string, contactID *string) error {
	if _, _, err := s.authorize(ctx, actor, conversationID, authz.OpLinkContact); err != nil {
		return err
	}
	return s.store.SetLinkedContact(ctx, actor.TenantID, conversationID, contactID, time.Now().UTC())
}

// MarkRead zeroes the unread counter.
func (s *Service) MarkRead(ctx context.Context, actor *store.Actor, conversationID string) error {
	if _, _, err := s.authorize(ctx, actor, conversationID, authz.OpMarkRead); err != nil {
		return err
	}
	return s.store.MarkConversationRead(ctx, actor.TenantID, conversationID, time.Now().UTC())
}

// SendText sends a text message through the conversation's session.
func (s *Service) SendText(ctx context.Context, actor *store.Actor, conversationID, text string) (*store.Message, error) {
	if text == "" {
		return nil, errs.Validation(errs.ReasonMissingField, "message text is required")
	}
	return s.send(ctx, actor, conversationID, store.MessageText, text, "", "")
}

// SendMedia sends a media message by URL through the conversation's session.
func (s *Service) SendMedia(ctx context.Context, actor *store.Actor, conversationID string, mediaType store.MessageType, mediaURL, caption string) (*store.Message, error) {
	switch mediaType {
	case store.MessageImage, store.MessageVideo, store.MessageAudio, store.MessageDocument, store.MessageSticker:
	default:
		return nil, errs.Validation(errs.ReasonInvalidField, "unsupported media type %q", mediaType)
	}
	if mediaURL == "" {
		return nil, errs.Validation(errs.ReasonMissingField, "media URL is required")
	}
	return s.send(ctx, actor, conversationID, mediaType, caption, mediaURL, caption)
}

// send persists the outbound message first, then calls the bridge and
// records the outcome. A bridge failure leaves the message in failed state
// with the error stored for the background retry worker, and surfaces the
// external error to the caller; user-initiated sends are never retried
// inline.
func (s *Service) send(ctx context.Context, actor *store.Actor, conversationID string, msgType store.MessageType, body, mediaURL, caption string) (*store.Message, error) {
	conv, sess, err := s.authorize(ctx, actor, conversationID, authz.OpSendMessage)
	if err != nil {
		return nil, err
	}
	if sess.Status != store.SessionConnected {
		return nil, errs.Conflict(errs.ReasonSessionNotConnected, "session is not connected")
	}

	now := time.Now().UTC()
	msg := &store.Message{
		ID:             uuid.New().String(),
		ConversationID: conv.ID,
		ExternalID:     "out:" + uuid.New().String(), // replaced by the bridge ID on success
		Direction:      store.DirectionOutbound,
		Type:           msgType,
		Status:         store.StatusPending,
		SenderID:       actor.ID,
		SenderName:     actor.DisplayName,
		Body:           body,
		MediaURL:       mediaURL,
		SendAttempts:   1,
		SentAt:         now,
		CreatedAt:      now,
	}
	if err := s.store.InsertMessage(ctx, msg); err != nil {
		return nil, err
	}

	var result *bridge.SendResult
	var sendErr error
	if msgType == store.MessageText {
		result, sendErr = s.bridge.SendText(ctx, sess.ID, conv.RemotePartyID, body)
	} else {
		result, sendErr = s.bridge.SendMedia(ctx, sess.ID, conv.RemotePartyID, string(msgType), mediaURL, caption)
	}

	if sendErr != nil {
		msg.Status = store.StatusFailed
		msg.SyncError = sendErr.Error()
		if err := s.store.RecordSendResult(ctx, msg.ID, store.StatusFailed, "", msg.SyncError, msg.SendAttempts); err != nil {
			s.logger.Error("recording failed send", "message", msg.ID, "error", err)
		}
		s.logger.Warn("outbound send failed", "conversation", conv.ID, "message", msg.ID, "error", sendErr)
		return nil, sendErr
	}

	msg.Status = store.StatusSent
	msg.ExternalID = result.ExternalID
	if err := s.store.RecordSendResult(ctx, msg.ID, store.StatusSent, result.ExternalID, "", msg.SendAttempts); err != nil {
		return nil, err
	}
	if err := s.store.BumpConversationActivity(ctx, conv.ID, now, false); err != nil {
		s.logger.Error("bumping conversation activity", "conversation", conv.ID, "error", err)
	}

	s.logger.Info("message sent", "conversation", conv.ID, "message", msg.ID, "type", msgType)
	return msg, nil
}

// authorize loads the conversation with its session and runs the decision
// for op. The session is loaded tombstone-included so conversations orphaned
// by a deleted session remain readable.
func (s *Service) authorize(ctx context.Context, actor *store.Actor, conversationID string, op authz.Op) (*store.Conversation, *store.Session, error) {
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

	if d := authz.Decide(op, actor, sess, conv); !d.Allowed {
		return nil, nil, d.Err()
	}
	return conv, sess, nil
}
