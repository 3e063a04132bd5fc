// ABOUTME: HTTP client for the external WhatsApp bridge API
// ABOUTME: Wraps session control and message send calls; failures surface as external errors

package bridge

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"strings"
	"time"

	"github.com/loomcrm/whatsapp-gateway/internal/errs"
)

// Client communicates with the WhatsApp bridge HTTP API. The bridge holds
// the actual protocol connections; we only drive it and receive webhooks.
type Client struct {
	baseURL  string
	apiToken string
	client   *http.Client
	logger   *slog.Logger
}

// NewClient creates a bridge client. Timeout bounds every call; zero means 15s.
func NewClient(baseURL, apiToken string, timeout time.Duration, logger *slog.Logger) *Client {
	if timeout <= 0 {
		timeout = 15 * time.Second
	}
	return &Client{
		baseURL:  strings.TrimSuffix(baseURL, "/"),
		apiToken: apiToken,
		client:   &http.Client{Timeout: timeout},
		logger:   logger.With("component", "bridge"),
	}
}

// StartSessionResult is the bridge's response to a session start request.
type StartSessionResult struct {
	QRCode string `json:"qr_code"`
}

// StartSession asks the bridge to begin pairing for a session. The bridge
// responds with QR payload data; the connected/disconnected outcome arrives
// later as webhook events.
func (c *Client) StartSession(ctx context.Context, sessionID string) (*StartSessionResult, error) {
	var result StartSessionResult
	if err := c.post(ctx, "/sessions/"+sessionID+"/start", nil, &result); err != nil {
		return nil, err
	}
	return &result, nil
}

// Logout asks the bridge to tear down the connection for a session.
// A missing session on the bridge side is not an error: the desired state
// (logged out) already holds.
func (c *Client) Logout(ctx context.Context, sessionID string) error {
	err := c.post(ctx, "/sessions/"+sessionID+"/logout", nil, nil)
	if errs.ReasonOf(err) == errs.ReasonBridgeNotFound {
		return nil
	}
	return err
}

// sendRequest is the bridge's message send body.
type sendRequest struct {
	RemotePartyID string `json:"remote_party_id"`
	Type          string `json:"type"`
	Body          string `json:"body,omitempty"`
	MediaURL      string `json:"media_url,omitempty"`
	Caption       string `json:"caption,omitempty"`
}

// SendResult is the bridge's response to a message send.
type SendResult struct {
	ExternalID string `json:"external_id"`
}

// SendText sends a text message through a connected session.
func (c *Client) SendText(ctx context.Context, sessionID, remotePartyID, body string) (*SendResult, error) {
	return c.send(ctx, sessionID, sendRequest{
		RemotePartyID: remotePartyID,
		Type:          "text",
		Body:          body,
	})
}

// SendMedia sends a media message (image, document, ...) by URL with an
// optional caption.
func (c *Client) SendMedia(ctx context.Context, sessionID, remotePartyID, mediaType, mediaURL, caption string) (*SendResult, error) {
	return c.send(ctx, sessionID, sendRequest{
		RemotePartyID: remotePartyID,
		Type:          mediaType,
		MediaURL:      mediaURL,
		Caption:       caption,
	})
}

func (c *Client) send(ctx context.Context, sessionID string, req sendRequest) (*SendResult, error) {
	var result SendResult
	if err := c.post(ctx, "/sessions/"+sessionID+"/messages", req, &result); err != nil {
		return nil, err
	}
	return &result, nil
}

// post performs an authenticated POST and decodes the JSON response into out
// (if non-nil). Non-2xx responses and transport failures come back as
// external errors so callers can map them uniformly.
func (c *Client) post(ctx context.Context, path string, body, out any) error {
	var reader io.Reader
	if body != nil {
		data, err := json.Marshal(body)
		if err != nil {
			return fmt.Errorf("marshaling request: %w", err)
		}
		reader = bytes.NewReader(data)
	}

	httpReq, err := http.NewRequestWithContext(ctx, http.MethodPost, c.baseURL+path, reader)
	if err != nil {
		return fmt.Errorf("creating request: %w", err)
	}
	httpReq.Header.Set("Content-Type", "application/json")
	if c.apiToken != "" {
		httpReq.Header.Set("Authorization", "Bearer "+c.apiToken)
	}

	resp, err := c.client.Do(httpReq)
	if err != nil {
		c.logger.Warn("bridge request failed", "path", path, "error", err)
		return errs.External(errs.ReasonBridgeUnreachable, err, "bridge unreachable")
	}
	defer resp.Body.Close()

	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		return c.errorFromResponse(path, resp)
	}

	if out == nil {
		return nil
	}
	if err := json.NewDecoder(resp.Body).Decode(out); err != nil {
		return errs.External(errs.ReasonBridgeBadResponse, err, "decoding bridge response")
	}
	return nil
}

// bridgeError is the bridge's JSON error body.
type bridgeError struct {
	Error string `json:"error"`
}

func (c *Client) errorFromResponse(path string, resp *http.Response) error {
	data, _ := io.ReadAll(io.LimitReader(resp.Body, 4096))

	msg := strings.TrimSpace(string(data))
	var be bridgeError
	if json.Unmarshal(data, &be) == nil && be.Error != "" {
		msg = be.Error
	}

	c.logger.Warn("bridge returned error", "path", path, "status", resp.StatusCode, "message", msg)

	reason := errs.ReasonBridgeError
	if resp.StatusCode == http.StatusNotFound {
		reason = errs.ReasonBridgeNotFound
	}
	return errs.External(reason, nil, "bridge returned %d: %s", resp.StatusCode, msg)
}
