// ABOUTME: JSON view types for API responses
// ABOUTME: Keeps wire shapes decoupled from the store structs

package gateway

import (
	"time"

	"github.com/loomcrm/whatsapp-gateway/internal/store"
)

type sessionView struct {
	ID             string     `json:"id"`
	TenantID       string     `json:"tenant_id"`
	OwnerUserID    *string    `json:"owner_user_id"`
	Global         bool       `json:"global"`
	PhoneNumber    string     `json:"phone_number"`
	DisplayName    string     `json:"display_name"`
	Status         string     `json:"status"`
	QRCode         string     `json:"qr_code,omitempty"`
	ConnectedAt    *time.Time `json:"connected_at"`
	LastActivityAt *time.Time `json:"last_activity_at"`
	CreatedAt      time.Time  `json:"created_at"`
	UpdatedAt      time.Time  `json:"updated_at"`
}

func viewSession(s *store.Session) sessionView {
	v := sessionView{
		ID:             s.ID,
		TenantID:       s.TenantID,
		Global:         s.Owner.IsShared(),
		PhoneNumber:    s.PhoneNumber,
		DisplayName:    s.DisplayName,
		Status:         string(s.Status),
		QRCode:         s.QRCode,
		ConnectedAt:    s.ConnectedAt,
		LastActivityAt: s.LastActivityAt,
		CreatedAt:      s.CreatedAt,
		UpdatedAt:      s.UpdatedAt,
	}
	if owner, ok := s.Owner.UserID(); ok {
		v.OwnerUserID = &owner
	}
	return v
}

func viewSessions(sessions []*store.Session) []sessionView {
	views := make([]sessionView, len(sessions))
	for i, s := range sessions {
		views[i] = viewSession(s)
	}
	return views
}

type conversationView struct {
	ID              string     `json:"id"`
	SessionID       string     `json:"session_id"`
	TenantID        string     `json:"tenant_id"`
	RemotePartyID   string     `json:"remote_party_id"`
	IsGroup         bool       `json:"is_group"`
	AssignedUserID  *string    `json:"assigned_user_id"`
	UnreadCount     int        `json:"unread_count"`
	IsPinned        bool       `json:"is_pinned"`
	IsArchived      bool       `json:"is_archived"`
	LinkedContactID *string    `json:"linked_contact_id"`
	LastMessageAt   *time.Time `json:"last_message_at"`
	CreatedAt       time.Time  `json:"created_at"`
	UpdatedAt       time.Time  `json:"updated_at"`
}

func viewConversation(c *store.Conversation) conversationView {
	return conversationView{
		ID:              c.ID,
		SessionID:       c.SessionID,
		TenantID:        c.TenantID,
		RemotePartyID:   c.RemotePartyID,
		IsGroup:         c.IsGroup,
		AssignedUserID:  c.AssignedUserID,
		UnreadCount:     c.UnreadCount,
		IsPinned:        c.IsPinned,
		IsArchived:      c.IsArchived,
		LinkedContactID: c.LinkedContactID,
		LastMessageAt:   c.LastMessageAt,
		CreatedAt:       c.CreatedAt,
		UpdatedAt:       c.UpdatedAt,
	}
}

func viewConversations(convs []*store.Conversation) []conversationView {
	views := make([]conversationView, len(convs))
	for i, c := range convs {
		views[i] = viewConversation(c)
	}
	return views
}

type messageView struct {
	ID             string    `json:"id"`
	ConversationID string    `json:"conversation_id"`
	ExternalID     string    `json:"external_id"`
	Direction      string    `json:"direction"`
	Type           string    `json:"type"`
	Status         string    `json:"status"`
	SenderID       string    `json:"sender_id"`
	SenderName     string    `json:"sender_name,omitempty"`
	Body           string    `json:"body,omitempty"`
	MediaURL       string    `json:"media_url,omitempty"`
	SyncError      string    `json:"sync_error,omitempty"`
	SentAt         time.Time `json:"sent_at"`
}

func viewMessage(m *store.Message) messageView {
	return messageView{
		ID:             m.ID,
		ConversationID: m.ConversationID,
		ExternalID:     m.ExternalID,
		Direction:      string(m.Direction),
		Type:           string(m.Type),
		Status:         string(m.Status),
		SenderID:       m.SenderID,
		SenderName:     m.SenderName,
		Body:           m.Body,
		MediaURL:       m.MediaURL,
		SyncError:      m.SyncError,
		SentAt:         m.SentAt,
	}
}

func viewMessages(msgs []*store.Message) []messageView {
	views := make([]messageView, len(msgs))
	for i, m := range msgs {
		views[i] = viewMessage(m)
	}
	return views
}
