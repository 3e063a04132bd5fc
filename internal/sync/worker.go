// ABOUTME: Background worker retrying failed outbound messages against the bridge
// ABOUTME: Ticker loop with per-message isolation; one bad message never stops a pass

package sync

import (
	"context"
	"log/slog"
	"time"

	"github.com/loomcrm/whatsapp-gateway/internal/bridge"
	"github.com/loomcrm/whatsapp-gateway/internal/store"
)

// Store defines what the worker needs from persistence.
type Store interface {
	ListFailedOutbound(ctx context.Context, before time.Time, maxAttempts, limit int) ([]*store.Message, error)
	GetConversationAny(ctx context.Context, id string) (*store.Conversation, error)
	GetSessionAny(ctx context.Context, id string) (*store.Session, error)
	RecordSendResult(ctx context.Context, id string, status store.MessageStatus, externalID, syncError string, attempts int) error
	BumpConversationActivity(ctx context.Context, id string, at time.Time, incrementUnread bool) error
}

// Bridge defines the resend calls the worker makes.
type Bridge interface {
	SendText(ctx context.Context, sessionID, remotePartyID, body string) (*bridge.SendResult, error)
	SendMedia(ctx context.Context, sessionID, remotePartyID, mediaType, mediaURL, caption string) (*bridge.SendResult, error)
}

// Worker retries failed outbound sends on a fixed interval. User-initiated
// sends fail fast; this loop is the only place they get retried.
type Worker struct {
	store       Store
	bridge      Bridge
	interval    time.Duration
	maxAttempts int
	batchSize   int
	logger      *slog.Logger
}

// NewWorker creates a sync worker. Zero interval defaults to one minute,
// zero maxAttempts to five.
func NewWorker(s Store, b Bridge, interval time.Duration, maxAttempts int, logger *slog.Logger) *Worker {
	if interval <= 0 {
		interval = time.Minute
	}
	if maxAttempts <= 0 {
		maxAttempts = 5
	}
	return &Worker{
		store:       s,
		bridge:      b,
		interval:    interval,
		maxAttempts: maxAttempts,
		batchSize:   50,
		logger:      logger.With("component", "sync"),
	}
}

// Run loops until the context is cancelled, retrying one batch per tick.
func (w *Worker) Run(ctx context.Context) {
	w.logger.Info("sync worker started", "interval", w.interval, "max_attempts", w.maxAttempts)

	ticker := time.NewTicker(w.interval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			w.logger.Info("sync worker stopped")
			return
		case <-ticker.C:
			w.RunOnce(ctx)
		}
	}
}

// RunOnce retries one batch of failed outbound messages. Only messages that
// failed at least one interval ago are picked up, so a just-failed user send
// is not immediately re-fired.
func (w *Worker) RunOnce(ctx context.Context) {
	before := time.Now().UTC().Add(-w.interval)
	messages, err := w.store.ListFailedOutbound(ctx, before, w.maxAttempts, w.batchSize)
	if err != nil {
		w.logger.Error("listing failed outbound messages", "error", err)
		return
	}
	if len(messages) == 0 {
		return
	}

	w.logger.Info("retrying failed outbound messages", "count", len(messages))
	for _, msg := range messages {
		if ctx.Err() != nil {
			return
		}
		w.retry(ctx, msg)
	}
}

func (w *Worker) retry(ctx context.Context, msg *store.Message) {
	conv, err := w.store.GetConversationAny(ctx, msg.ConversationID)
	if err != nil {
		w.logger.Error("resolving conversation for retry", "message", msg.ID, "error", err)
		return
	}
	sess, err := w.store.GetSessionAny(ctx, conv.SessionID)
	if err != nil {
		w.logger.Error("resolving session for retry", "message", msg.ID, "error", err)
		return
	}
	// Not worth burning an attempt while the session cannot deliver.
	if sess.Deleted() || sess.Status != store.SessionConnected {
		w.logger.Debug("skipping retry, session not connected", "message", msg.ID, "session", sess.ID)
		return
	}

	attempts := msg.SendAttempts + 1

	var result *bridge.SendResult
	var sendErr error
	if msg.Type == store.MessageText {
		result, sendErr = w.bridge.SendText(ctx, sess.ID, conv.RemotePartyID, msg.Body)
	} else {
		result, sendErr = w.bridge.SendMedia(ctx, sess.ID, conv.RemotePartyID, string(msg.Type), msg.MediaURL, msg.Body)
	}

	if sendErr != nil {
		w.logger.Warn("retry failed", "message", msg.ID, "attempt", attempts, "error", sendErr)
		if err := w.store.RecordSendResult(ctx, msg.ID, store.StatusFailed, "", sendErr.Error(), attempts); err != nil {
			w.logger.Error("recording retry failure", "message", msg.ID, "error", err)
		}
		return
	}

	if err := w.store.RecordSendResult(ctx, msg.ID, store.StatusSent, result.ExternalID, "", attempts); err != nil {
		w.logger.Error("recording retry success", "message", msg.ID, "error", err)
		return
	}
	if err := w.store.BumpConversationActivity(ctx, conv.ID, time.Now().UTC(), false); err != nil {
		w.logger.Error("bumping conversation activity", "conversation", conv.ID, "error", err)
	}
	w.logger.Info("retry succeeded", "message", msg.ID, "attempt", attempts)
}
