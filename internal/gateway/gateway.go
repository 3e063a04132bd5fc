// ABOUTME: HTTP API server wiring routes, auth middleware, and the webhook endpoint
// ABOUTME: Owns the http.Server lifecycle; handlers live alongside in this package

package gateway

import (
	"context"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"time"

	"github.com/loomcrm/whatsapp-gateway/internal/auth"
	"github.com/loomcrm/whatsapp-gateway/internal/conversation"
	"github.com/loomcrm/whatsapp-gateway/internal/session"
	"github.com/loomcrm/whatsapp-gateway/internal/store"
	"github.com/loomcrm/whatsapp-gateway/internal/webhook"
)

// Config holds the gateway server settings.
type Config struct {
	HTTPAddr      string
	WebhookSecret string
}

// Gateway is the HTTP API server for the WhatsApp subsystem.
type Gateway struct {
	config        Config
	sessions      *session.Manager
	conversations *conversation.Service
	pipeline      *webhook.Pipeline
	actors        auth.ActorStore
	verifier      auth.TokenVerifier
	httpServer    *http.Server
	logger        *slog.Logger
}

// New creates a gateway server.
func New(cfg Config, sessions *session.Manager, conversations *conversation.Service, pipeline *webhook.Pipeline, actors auth.ActorStore, verifier auth.TokenVerifier, logger *slog.Logger) *Gateway {
	return &Gateway{
		config:        cfg,
		sessions:      sessions,
		conversations: conversations,
		pipeline:      pipeline,
		actors:        actors,
		verifier:      verifier,
		logger:        logger.With("component", "gateway"),
	}
}

// Handler builds the full route table.
func (g *Gateway) Handler() http.Handler {
	mux := http.NewServeMux()

	// Unauthenticated surface: bridge callbacks and health.
	mux.HandleFunc("POST /webhook", g.handleWebhook)
	mux.HandleFunc("GET /health", g.handleHealth)

	// Authenticated API surface.
	api := http.NewServeMux()
	api.HandleFunc("GET /api/sessions", g.handleSessionList)
	api.HandleFunc("POST /api/sessions", g.handleSessionCreate)
	api.HandleFunc("POST /api/sessions/{id}/reconnect", g.handleSessionReconnect)
	api.HandleFunc("DELETE /api/sessions/{id}", g.handleSessionDelete)

	api.HandleFunc("GET /api/conversations", g.handleConversationList)
	api.HandleFunc("GET /api/conversations/{id}", g.handleConversationGet)
	api.HandleFunc("GET /api/conversations/{id}/messages", g.handleConversationMessages)
	api.HandleFunc("POST /api/conversations/{id}/assign", g.handleAssign)
	api.HandleFunc("POST /api/conversations/{id}/unassign", g.handleUnassign)
	api.HandleFunc("POST /api/conversations/assign-bulk", g.handleBulkAssign)
	api.HandleFunc("POST /api/conversations/{id}/pin", g.handlePin)
	api.HandleFunc("POST /api/conversations/{id}/archive", g.handleArchive(true))
	api.HandleFunc("POST /api/conversations/{id}/unarchive", g.handleArchive(false))
	api.HandleFunc("POST /api/conversations/{id}/link-contact", g.handleLinkContact)
	api.HandleFunc("POST /api/conversations/{id}/read", g.handleMarkRead)
	api.HandleFunc("POST /api/conversations/{id}/messages/text", g.handleSendText)
	api.HandleFunc("POST /api/conversations/{id}/messages/media", g.handleSendMedia)

	mux.Handle("/api/", auth.Middleware(g.actors, g.verifier)(api))
	return mux
}

// Start begins serving HTTP. Blocks until the server stops.
func (g *Gateway) Start() error {
	g.httpServer = &http.Server{
		Addr:              g.config.HTTPAddr,
		Handler:           g.Handler(),
		ReadHeaderTimeout: 10 * time.Second,
	}

	g.logger.Info("http server listening", "addr", g.config.HTTPAddr)
	if err := g.httpServer.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
		return fmt.Errorf("http server: %w", err)
	}
	return nil
}

// Shutdown drains in-flight requests and stops the server.
func (g *Gateway) Shutdown(ctx context.Context) error {
	if g.httpServer == nil {
		return nil
	}
	return g.httpServer.Shutdown(ctx)
}

// maxWebhookBody bounds a single delivery.
const maxWebhookBody = 1 << 20

// handleWebhook receives bridge event deliveries: verify the HMAC signature,
// parse one event or a batch, process each independently, and report
// per-event results. The overall response is 200 whenever the delivery
// itself was readable; individual failures live in the results array.
func (g *Gateway) handleWebhook(w http.ResponseWriter, r *http.Request) {
	body, err := io.ReadAll(io.LimitReader(r.Body, maxWebhookBody))
	if err != nil {
		respondError(w, g.logger, err)
		return
	}

	if err := webhook.VerifySignature([]byte(g.config.WebhookSecret), body, r.Header.Get("X-Webhook-Signature")); err != nil {
		respondError(w, g.logger, err)
		return
	}

	events, err := webhook.ParseBody(body)
	if err != nil {
		respondError(w, g.logger, err)
		return
	}

	results := g.pipeline.ProcessBatch(r.Context(), events)
	respondOK(w, http.StatusOK, "processed", map[string]any{"results": results})
}

func (g *Gateway) handleHealth(w http.ResponseWriter, r *http.Request) {
	respondOK(w, http.StatusOK, "ok", map[string]any{"status": "healthy"})
}

// actorFrom pulls the authenticated actor the middleware stored.
func actorFrom(r *http.Request) *store.Actor {
	return auth.MustFromContext(r.Context())
}
