// ABOUTME: Webhook ingestion pipeline for bridge events: validate, resolve session, dispatch
// ABOUTME: Every event is idempotent and fails in isolation; a bad event never sinks a batch

package webhook

import (
	"context"
	"crypto/hmac"
	"crypto/sha256"
	"encoding/hex"
	"encoding/json"
	"errors"
	"log/slog"
	"time"

	"github.com/google/uuid"

	"github.com/loomcrm/whatsapp-gateway/internal/dedupe"
	"github.com/loomcrm/whatsapp-gateway/internal/errs"
	"github.com/loomcrm/whatsapp-gateway/internal/store"
)

// Event is one inbound bridge callback.
type Event struct {
	Type      string          `json:"event"`
	SessionID string          `json:"session_id"`
	Data      json.RawMessage `json:"data"`
}

// DefaultAllowedEvents is the event allow-list used when the config does not
// override it. Configured extras outside this set are accepted structurally
// and dropped at dispatch.
var DefaultAllowedEvents = []string{
	"qr_code", "connected", "disconnected", "logged_out", "message", "message_status",
}

// Result is the per-event processing outcome.
type Result struct {
	Status  string `json:"status"` // ok | ignored | error
	Reason  string `json:"reason,omitempty"`
	Message string `json:"message,omitempty"`
}

func ok() Result { return Result{Status: "ok"} }

func ignored(reason string) Result { return Result{Status: "ignored", Reason: reason} }

func failed(err error) Result {
	return Result{Status: "error", Reason: errs.ReasonOf(err), Message: err.Error()}
}

// Store defines what the pipeline needs from persistence.
type Store interface {
	GetSessionAny(ctx context.Context, id string) (*store.Session, error)
	TouchSessionActivity(ctx context.Context, id string, at time.Time) error
	GetOrCreateConversation(ctx context.Context, conv *store.Conversation) (*store.Conversation, bool, error)
	InsertMessage(ctx context.Context, msg *store.Message) error
	BumpConversationActivity(ctx context.Context, id string, at time.Time, incrementUnread bool) error
	FindSessionMessage(ctx context.Context, sessionID, externalID string) (*store.Message, error)
	AdvanceMessageStatus(ctx context.Context, id string, from, to store.MessageStatus) (bool, error)
}

// Lifecycle defines the session state transitions the pipeline dispatches to.
type Lifecycle interface {
	ApplyQRCode(ctx context.Context, sess *store.Session, qrPayload string) error
	ApplyConnected(ctx context.Context, sess *store.Session, phoneNumber string) error
	ApplyDisconnected(ctx context.Context, sess *store.Session) error
}

// AutoLinkFunc is the contact auto-link hook fired after a conversation is
// first created for a remote party. The automation behind it is external;
// its errors are logged and never fail ingestion.
type AutoLinkFunc func(ctx context.Context, tenantID, conversationID, remotePartyID string)

// Pipeline validates and routes inbound bridge events.
type Pipeline struct {
	store     Store
	lifecycle Lifecycle
	cache     *dedupe.Cache
	allowed   map[string]bool
	autoLink  AutoLinkFunc
	logger    *slog.Logger
}

// NewPipeline creates a pipeline. allowedEvents nil/empty falls back to
// DefaultAllowedEvents; autoLink may be nil.
func NewPipeline(s Store, lc Lifecycle, cache *dedupe.Cache, allowedEvents []string, autoLink AutoLinkFunc, logger *slog.Logger) *Pipeline {
	if len(allowedEvents) == 0 {
		allowedEvents = DefaultAllowedEvents
	}
	allowed := make(map[string]bool, len(allowedEvents))
	for _, e := range allowedEvents {
		allowed[e] = true
	}
	return &Pipeline{
		store:     s,
		lifecycle: lc,
		cache:     cache,
		allowed:   allowed,
		autoLink:  autoLink,
		logger:    logger.With("component", "webhook"),
	}
}

// VerifySignature checks the hex HMAC-SHA256 of the raw request body against
// the X-Webhook-Signature header value. An empty secret disables the check.
func VerifySignature(secret, body []byte, signatureHex string) error {
	if len(secret) == 0 {
		return nil
	}
	mac := hmac.New(sha256.New, secret)
	mac.Write(body)
	want := mac.Sum(nil)

	got, err := hex.DecodeString(signatureHex)
	if err != nil || !hmac.Equal(want, got) {
		return errs.Validation(errs.ReasonBadSignature, "webhook signature mismatch")
	}
	return nil
}

// ParseBody decodes a delivery body holding either a single event object or
// an array of events.
func ParseBody(body []byte) ([]Event, error) {
	var events []Event
	if err := json.Unmarshal(body, &events); err == nil {
		return events, nil
	}
	var single Event
	if err := json.Unmarshal(body, &single); err != nil {
		return nil, errs.Validation(errs.ReasonInvalidField, "body must be an event object or an array of events")
	}
	return []Event{single}, nil
}

// ProcessBatch runs every event through Process independently and returns
// one result per event, in order.
func (p *Pipeline) ProcessBatch(ctx context.Context, events []Event) []Result {
	results := make([]Result, len(events))
	for i, ev := range events {
		results[i] = p.Process(ctx, ev)
		if results[i].Status == "error" {
			p.logger.Warn("webhook event failed",
				"event", ev.Type,
				"session", ev.SessionID,
				"reason", results[i].Reason,
				"error", results[i].Message,
			)
		}
	}
	return results
}

// Process handles one event: structural validation, session resolution, then
// dispatch. Unknown event types and malformed payloads are rejected and never
// retried; events for a soft-deleted session are accepted no-ops.
func (p *Pipeline) Process(ctx context.Context, ev Event) Result {
	if ev.Type == "" || ev.SessionID == "" {
		return failed(errs.Validation(errs.ReasonMissingField, "event and session_id are required"))
	}
	if !p.allowed[ev.Type] {
		return failed(errs.Validation(errs.ReasonUnknownEvent, "event type %q is not accepted", ev.Type))
	}

	sess, err := p.store.GetSessionAny(ctx, ev.SessionID)
	if err != nil {
		if errors.Is(err, store.ErrNotFound) {
			return failed(errs.NotFound(errs.ReasonSessionNotFound, "unknown session %s", ev.SessionID))
		}
		return failed(err)
	}
	// Tombstoned sessions absorb in-flight callbacks silently; a delete
	// racing a delivery must not resurrect state.
	if sess.Deleted() {
		p.logger.Debug("dropping event for deleted session", "event", ev.Type, "session", sess.ID)
		return ignored("session_deleted")
	}

	switch ev.Type {
	case "qr_code":
		return p.handleQRCode(ctx, sess, ev)
	case "connected":
		return p.handleConnected(ctx, sess, ev)
	case "disconnected", "logged_out":
		return p.handleDisconnected(ctx, sess)
	case "message":
		return p.handleMessage(ctx, sess, ev)
	case "message_status":
		return p.handleMessageStatus(ctx, sess, ev)
	default:
		// Configured beyond the default set but with no lifecycle meaning.
		p.logger.Debug("dropping allow-listed event with no handler", "event", ev.Type, "session", sess.ID)
		return ignored("unhandled_event_type")
	}
}

type qrCodePayload struct {
	QRCode string `json:"qr_code"`
}

func (p *Pipeline) handleQRCode(ctx context.Context, sess *store.Session, ev Event) Result {
	var payload qrCodePayload
	if err := json.Unmarshal(ev.Data, &payload); err != nil || payload.QRCode == "" {
		return failed(errs.Validation(errs.ReasonInvalidField, "qr_code event requires a qr_code payload"))
	}
	if err := p.lifecycle.ApplyQRCode(ctx, sess, payload.QRCode); err != nil {
		return failed(err)
	}
	return ok()
}

type connectedPayload struct {
	PhoneNumber string `json:"phone_number"`
}

func (p *Pipeline) handleConnected(ctx context.Context, sess *store.Session, ev Event) Result {
	var payload connectedPayload
	if len(ev.Data) > 0 {
		if err := json.Unmarshal(ev.Data, &payload); err != nil {
			return failed(errs.Validation(errs.ReasonInvalidField, "malformed connected payload"))
		}
	}
	if err := p.lifecycle.ApplyConnected(ctx, sess, payload.PhoneNumber); err != nil {
		return failed(err)
	}
	return ok()
}

func (p *Pipeline) handleDisconnected(ctx context.Context, sess *store.Session) Result {
	if err := p.lifecycle.ApplyDisconnected(ctx, sess); err != nil {
		return failed(err)
	}
	return ok()
}

type messagePayload struct {
	ExternalID    string `json:"external_id"`
	RemotePartyID string `json:"remote_party_id"`
	IsGroup       bool   `json:"is_group"`
	Type          string `json:"type"`
	SenderID      string `json:"sender_id"`
	SenderName    string `json:"sender_name"`
	Body          string `json:"body"`
	MediaURL      string `json:"media_url"`
	SentAt        string `json:"sent_at"` // RFC3339; empty means now
}

// handleMessage ingests one inbound message. Idempotent under at-least-once
// delivery: the dedupe cache short-circuits hot replays, and the UNIQUE
// (conversation_id, external_id) index is the durable guarantee. The cache
// is only marked once the insert committed; a transiently failed ingest
// must stay retriable on the next delivery.
func (p *Pipeline) handleMessage(ctx context.Context, sess *store.Session, ev Event) Result {
	var payload messagePayload
	if err := json.Unmarshal(ev.Data, &payload); err != nil {
		return failed(errs.Validation(errs.ReasonInvalidField, "malformed message payload"))
	}
	if payload.ExternalID == "" || payload.RemotePartyID == "" {
		return failed(errs.Validation(errs.ReasonMissingField, "message events require external_id and remote_party_id"))
	}
	if payload.SenderID == "" {
		return failed(errs.Validation(errs.ReasonMissingField, "message events require a sender"))
	}

	dedupeKey := sess.ID + "|" + payload.ExternalID
	if p.cache.Contains(dedupeKey) {
		p.logger.Debug("duplicate message suppressed by cache", "session", sess.ID, "external_id", payload.ExternalID)
		return ignored("duplicate")
	}

	now := time.Now().UTC()
	sentAt := now
	if payload.SentAt != "" {
		if t, err := time.Parse(time.RFC3339, payload.SentAt); err == nil {
			sentAt = t.UTC()
		}
	}

	conv, created, err := p.store.GetOrCreateConversation(ctx, &store.Conversation{
		ID:            uuid.New().String(),
		SessionID:     sess.ID,
		TenantID:      sess.TenantID,
		RemotePartyID: payload.RemotePartyID,
		IsGroup:       payload.IsGroup,
		CreatedAt:     now,
		UpdatedAt:     now,
	})
	if err != nil {
		return failed(err)
	}

	msgType := store.MessageType(payload.Type)
	if msgType == "" {
		msgType = store.MessageText
	}

	err = p.store.InsertMessage(ctx, &store.Message{
		ID:             uuid.New().String(),
		ConversationID: conv.ID,
		ExternalID:     payload.ExternalID,
		Direction:      store.DirectionInbound,
		Type:           msgType,
		Status:         store.StatusDelivered,
		SenderID:       payload.SenderID,
		SenderName:     payload.SenderName,
		Body:           payload.Body,
		MediaURL:       payload.MediaURL,
		SentAt:         sentAt,
		CreatedAt:      now,
	})
	if err != nil {
		if errors.Is(err, store.ErrDuplicateMessage) {
			p.logger.Debug("duplicate message suppressed by index", "session", sess.ID, "external_id", payload.ExternalID)
			p.cache.Mark(dedupeKey)
			return ignored("duplicate")
		}
		return failed(err)
	}
	p.cache.Mark(dedupeKey)

	if err := p.store.BumpConversationActivity(ctx, conv.ID, sentAt, true); err != nil {
		p.logger.Error("bumping conversation activity", "conversation", conv.ID, "error", err)
	}
	if err := p.store.TouchSessionActivity(ctx, sess.ID, now); err != nil {
		p.logger.Error("touching session activity", "session", sess.ID, "error", err)
	}

	if created && p.autoLink != nil {
		p.autoLink(ctx, sess.TenantID, conv.ID, payload.RemotePartyID)
	}

	p.logger.Info("message ingested",
		"session", sess.ID,
		"conversation", conv.ID,
		"external_id", payload.ExternalID,
		"new_conversation", created,
	)
	return ok()
}

type messageStatusPayload struct {
	ExternalID string `json:"external_id"`
	Status     string `json:"status"`
}

// handleMessageStatus advances a message's delivery status. Progression is
// strictly monotonic (pending < sent < delivered < read); an event reporting
// an equal or earlier state, or the unranked failed state, is a no-op.
func (p *Pipeline) handleMessageStatus(ctx context.Context, sess *store.Session, ev Event) Result {
	var payload messageStatusPayload
	if err := json.Unmarshal(ev.Data, &payload); err != nil {
		return failed(errs.Validation(errs.ReasonInvalidField, "malformed message_status payload"))
	}
	if payload.ExternalID == "" || payload.Status == "" {
		return failed(errs.Validation(errs.ReasonMissingField, "message_status events require external_id and status"))
	}

	next := store.MessageStatus(payload.Status)

	// Retry the compare-and-set a few times: a lost race means another
	// delivery advanced the row, which usually settles the question.
	for attempt := 0; attempt < 3; attempt++ {
		msg, err := p.store.FindSessionMessage(ctx, sess.ID, payload.ExternalID)
		if err != nil {
			if errors.Is(err, store.ErrNotFound) {
				return failed(errs.NotFound(errs.ReasonMessageNotFound, "no message %s on session", payload.ExternalID))
			}
			return failed(err)
		}

		if !next.Advances(msg.Status) {
			return ignored("status_not_advanced")
		}

		advanced, err := p.store.AdvanceMessageStatus(ctx, msg.ID, msg.Status, next)
		if err != nil {
			return failed(err)
		}
		if advanced {
			p.logger.Debug("message status advanced", "message", msg.ID, "from", msg.Status, "to", next)
			return ok()
		}
	}
	return ignored("status_not_advanced")
}
