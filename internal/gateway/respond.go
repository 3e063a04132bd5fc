// ABOUTME: Response envelope helpers and error-to-HTTP-status mapping
// ABOUTME: Every API response is {success, message, data, reason} JSON

package gateway

import (
	"encoding/json"
	"errors"
	"log/slog"
	"net/http"

	"github.com/loomcrm/whatsapp-gateway/internal/errs"
)

// envelope is the uniform JSON response body.
type envelope struct {
	Success bool   `json:"success"`
	Message string `json:"message"`
	Data    any    `json:"data"`
	Reason  string `json:"reason,omitempty"`
}

// respondOK writes a success envelope.
func respondOK(w http.ResponseWriter, status int, message string, data any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(envelope{
		Success: true,
		Message: message,
		Data:    data,
	})
}

// respondError maps the error taxonomy onto HTTP statuses and writes a
// failure envelope with the stable reason code.
func respondError(w http.ResponseWriter, logger *slog.Logger, err error) {
	status := http.StatusInternalServerError
	message := "internal error"
	reason := ""

	var ge *errs.Error
	if errors.As(err, &ge) {
		message = ge.Message
		reason = ge.Reason
		switch ge.Kind {
		case errs.KindValidation:
			status = http.StatusBadRequest
		case errs.KindAuthorization:
			status = http.StatusForbidden
		case errs.KindNotFound:
			status = http.StatusNotFound
		case errs.KindConflict:
			status = http.StatusConflict
		case errs.KindExternal:
			status = http.StatusBadGateway
		}
	}

	if status == http.StatusInternalServerError {
		logger.Error("request failed", "error", err)
	}

	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(envelope{
		Success: false,
		Message: message,
		Data:    nil,
		Reason:  reason,
	})
}

// decodeJSON decodes a request body into dst, returning a ValidationError on
// malformed input.
func decodeJSON(r *http.Request, dst any) error {
	if err := json.NewDecoder(r.Body).Decode(dst); err != nil {
		return errs.Validation(errs.ReasonInvalidField, "malformed JSON body")
	}
	return nil
}
