// ABOUTME: HTTP handlers for the session and conversation API surface
// ABOUTME: Thin translation layer: decode, call the service, write the envelope

package gateway

import (
	"net/http"
	"strconv"

	"github.com/loomcrm/whatsapp-gateway/internal/conversation"
	"github.com/loomcrm/whatsapp-gateway/internal/errs"
	"github.com/loomcrm/whatsapp-gateway/internal/session"
	"github.com/loomcrm/whatsapp-gateway/internal/store"
)

func (g *Gateway) handleSessionList(w http.ResponseWriter, r *http.Request) {
	actor := actorFrom(r)

	var status *store.SessionStatus
	if s := r.URL.Query().Get("status"); s != "" {
		st := store.SessionStatus(s)
		status = &st
	}
	limit, _ := strconv.Atoi(r.URL.Query().Get("limit"))

	sessions, err := g.sessions.List(r.Context(), actor, status, limit)
	if err != nil {
		respondError(w, g.logger, err)
		return
	}
	respondOK(w, http.StatusOK, "sessions", map[string]any{"sessions": viewSessions(sessions)})
}

func (g *Gateway) handleSessionCreate(w http.ResponseWriter, r *http.Request) {
	actor := actorFrom(r)

	var req struct {
		PhoneNumber string `json:"phone_number"`
		DisplayName string `json:"display_name"`
		Global      bool   `json:"global"`
	}
	if err := decodeJSON(r, &req); err != nil {
		respondError(w, g.logger, err)
		return
	}

	sess, err := g.sessions.Create(r.Context(), actor, session.CreateParams{
		PhoneNumber: req.PhoneNumber,
		DisplayName: req.DisplayName,
		Global:      req.Global,
	})
	if err != nil {
		respondError(w, g.logger, err)
		return
	}
	respondOK(w, http.StatusCreated, "session created", viewSession(sess))
}

func (g *Gateway) handleSessionReconnect(w http.ResponseWriter, r *http.Request) {
	actor := actorFrom(r)

	sess, err := g.sessions.Reconnect(r.Context(), actor, r.PathValue("id"))
	if err != nil {
		respondError(w, g.logger, err)
		return
	}
	respondOK(w, http.StatusOK, "reconnect started", viewSession(sess))
}

func (g *Gateway) handleSessionDelete(w http.ResponseWriter, r *http.Request) {
	actor := actorFrom(r)

	if err := g.sessions.Delete(r.Context(), actor, r.PathValue("id")); err != nil {
		respondError(w, g.logger, err)
		return
	}
	respondOK(w, http.StatusOK, "session deleted", nil)
}

func (g *Gateway) handleConversationList(w http.ResponseWriter, r *http.Request) {
	actor := actorFrom(r)
	q := r.URL.Query()

	filter := conversation.ListFilter{
		SessionID:       q.Get("session_id"),
		UnreadOnly:      q.Get("unread_only") == "true",
		IncludeArchived: q.Get("include_archived") == "true",
		Search:          q.Get("search"),
	}
	if assigned := q.Get("assigned_user_id"); assigned != "" {
		filter.AssignedUserID = &assigned
	}
	filter.Limit, _ = strconv.Atoi(q.Get("limit"))

	convs, err := g.conversations.List(r.Context(), actor, filter)
	if err != nil {
		respondError(w, g.logger, err)
		return
	}
	respondOK(w, http.StatusOK, "conversations", map[string]any{"conversations": viewConversations(convs)})
}

func (g *Gateway) handleConversationGet(w http.ResponseWriter, r *http.Request) {
	actor := actorFrom(r)

	conv, err := g.conversations.Get(r.Context(), actor, r.PathValue("id"))
	if err != nil {
		respondError(w, g.logger, err)
		return
	}
	respondOK(w, http.StatusOK, "conversation", viewConversation(conv))
}

func (g *Gateway) handleConversationMessages(w http.ResponseWriter, r *http.Request) {
	actor := actorFrom(r)
	limit, _ := strconv.Atoi(r.URL.Query().Get("limit"))

	msgs, err := g.conversations.Messages(r.Context(), actor, r.PathValue("id"), limit)
	if err != nil {
		respondError(w, g.logger, err)
		return
	}
	respondOK(w, http.StatusOK, "messages", map[string]any{"messages": viewMessages(msgs)})
}

func (g *Gateway) handleAssign(w http.ResponseWriter, r *http.Request) {
	actor := actorFrom(r)

	var req struct {
		TargetUserID string `json:"target_user_id"` // empty means self
	}
	if err := decodeJSON(r, &req); err != nil {
		respondError(w, g.logger, err)
		return
	}

	conv, err := g.conversations.Assign(r.Context(), actor, r.PathValue("id"), req.TargetUserID)
	if err != nil {
		respondError(w, g.logger, err)
		return
	}
	respondOK(w, http.StatusOK, "conversation assigned", viewConversation(conv))
}

func (g *Gateway) handleUnassign(w http.ResponseWriter, r *http.Request) {
	actor := actorFrom(r)

	conv, err := g.conversations.Unassign(r.Context(), actor, r.PathValue("id"))
	if err != nil {
		respondError(w, g.logger, err)
		return
	}
	respondOK(w, http.StatusOK, "conversation unassigned", viewConversation(conv))
}

func (g *Gateway) handleBulkAssign(w http.ResponseWriter, r *http.Request) {
	actor := actorFrom(r)

	var req struct {
		ConversationIDs []string `json:"conversation_ids"`
		TargetUserID    string   `json:"target_user_id"`
	}
	if err := decodeJSON(r, &req); err != nil {
		respondError(w, g.logger, err)
		return
	}

	result, err := g.conversations.BulkAssign(r.Context(), actor, req.ConversationIDs, req.TargetUserID)
	if err != nil {
		respondError(w, g.logger, err)
		return
	}
	respondOK(w, http.StatusOK, "bulk assignment finished", result)
}

func (g *Gateway) handlePin(w http.ResponseWriter, r *http.Request) {
	actor := actorFrom(r)

	var req struct {
		Pinned bool `json:"pinned"`
	}
	if err := decodeJSON(r, &req); err != nil {
		respondError(w, g.logger, err)
		return
	}

	if err := g.conversations.SetPinned(r.Context(), actor, r.PathValue("id"), req.Pinned); err != nil {
		respondError(w, g.logger, err)
		return
	}
	respondOK(w, http.StatusOK, "pin updated", nil)
}

func (g *Gateway) handleArchive(archived bool) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		actor := actorFrom(r)

		if err := g.conversations.SetArchived(r.Context(), actor, r.PathValue("id"), archived); err != nil {
			respondError(w, g.logger, err)
			return
		}
		msg := "conversation archived"
		if !archived {
			msg = "conversation unarchived"
		}
		respondOK(w, http.StatusOK, msg, nil)
	}
}

func (g *Gateway) handleLinkContact(w http.ResponseWriter, r *http.Request) {
	actor := actorFrom(r)

	var req struct {
		ContactID *string `json:"contact_id"` // null unlinks
	}
	if err := decodeJSON(r, &req); err != nil {
		respondError(w, g.logger, err)
		return
	}

	if err := g.conversations.LinkContact(r.Context(), actor, r.PathValue("id"), req.ContactID); err != nil {
		respondError(w, g.logger, err)
		return
	}
	respondOK(w, http.StatusOK, "contact link updated", nil)
}

func (g *Gateway) handleMarkRead(w http.ResponseWriter, r *http.Request) {
	actor := actorFrom(r)

	if err := g.conversations.MarkRead(r.Context(), actor, r.PathValue("id")); err != nil {
		respondError(w, g.logger, err)
		return
	}
	respondOK(w, http.StatusOK, "conversation marked read", nil)
}

func (g *Gateway) handleSendText(w http.ResponseWriter, r *http.Request) {
	actor := actorFrom(r)

	var req struct {
		Text string `json:"text"`
	}
	if err := decodeJSON(r, &req); err != nil {
		respondError(w, g.logger, err)
		return
	}

	msg, err := g.conversations.SendText(r.Context(), actor, r.PathValue("id"), req.Text)
	if err != nil {
		respondError(w, g.logger, err)
		return
	}
	respondOK(w, http.StatusCreated, "message sent", viewMessage(msg))
}

func (g *Gateway) handleSendMedia(w http.ResponseWriter, r *http.Request) {
	actor := actorFrom(r)

	var req struct {
		Type     string `json:"type"`
		MediaURL string `json:"media_url"`
		Caption  string `json:"caption"`
	}
	if err := decodeJSON(r, &req); err != nil {
		respondError(w, g.logger, err)
		return
	}
	if req.Type == "" {
		respondError(w, g.logger, errs.Validation(errs.ReasonMissingField, "media type is required"))
		return
	}

	msg, err := g.conversations.SendMedia(r.Context(), actor, r.PathValue("id"), store.MessageType(req.Type), req.MediaURL, req.Caption)
	if err != nil {
		respondError(w, g.logger, err)
		return
	}
	respondOK(w, http.StatusCreated, "message sent", viewMessage(msg))
}
