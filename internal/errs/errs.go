// ABOUTME: Error taxonomy for the gateway with stable machine-readable reason codes
// ABOUTME: Every user-facing failure maps to a Kind plus a Reason for programmatic handling

package errs

import (
	"errors"
	"fmt"
)

// Kind classifies an error for propagation and HTTP status mapping.
type Kind string

const (
	KindValidation    Kind = "validation"    // malformed input, never retried
	KindAuthorization Kind = "authorization" // tenant/permission/ownership violation
	KindNotFound      Kind = "not_found"     // unknown session/conversation/actor
	KindConflict      Kind = "conflict"      // lost race or duplicate resource
	KindExternal      Kind = "external"      // bridge unreachable or send failure
)

// Stable reason codes returned to callers alongside human-readable messages.
const (
	ReasonMissingField        = "missing_field"
	ReasonInvalidField        = "invalid_field"
	ReasonUnknownEvent        = "unknown_event_type"
	ReasonBadSignature        = "bad_signature"
	ReasonTenantMismatch      = "tenant_mismatch"
	ReasonMissingPermission   = "missing_permission"
	ReasonNotOwner            = "not_session_owner"
	ReasonNotAssignee         = "not_assignee"
	ReasonSelfAssignOnly      = "self_assign_only"
	ReasonSessionNotGlobal    = "session_not_global"
	ReasonElevatedRequired    = "elevated_role_required"
	ReasonSessionNotFound     = "session_not_found"
	ReasonConversationMissing = "conversation_not_found"
	ReasonMessageNotFound     = "message_not_found"
	ReasonActorNotFound       = "actor_not_found"
	ReasonDuplicatePhone      = "duplicate_phone_number"
	ReasonAlreadyAssigned     = "already_assigned"
	ReasonSessionNotConnected = "session_not_connected"
	ReasonBridgeUnreachable   = "bridge_unreachable"
	ReasonBridgeError         = "bridge_error"
	ReasonBridgeNotFound      = "bridge_session_not_found"
	ReasonBridgeBadResponse   = "bridge_bad_response"
)

// Error is a classified gateway error. It satisfies the error interface and
// carries everything a handler needs to build the response envelope.
type Error struct {
	Kind    Kind
	Reason  string // stable code, e.g. "already_assigned"
	Message string // human-readable message for the envelope

	// MissingPermission is set on authorization denials caused by a missing
	// permission string, for observability.
	MissingPermission string

	// Err is the underlying cause, if any.
	Err error
}

func (e *Error) Error() string {
	if e.Err != nil {
		return fmt.Sprintf("%s (%s): %s: %v", e.Kind, e.Reason, e.Message, e.Err)
	}
	return fmt.Sprintf("%s (%s): %s", e.Kind, e.Reason, e.Message)
}

func (e *Error) Unwrap() error {
	return e.Err
}

// Validation builds a ValidationError.
func Validation(reason, format string, args ...any) *Error {
	return &Error{Kind: KindValidation, Reason: reason, Message: fmt.Sprintf(format, args...)}
}

// Authorization builds an AuthorizationError.
func Authorization(reason, format string, args ...any) *Error {
	return &Error{Kind: KindAuthorization, Reason: reason, Message: fmt.Sprintf(format, args...)}
}

// NotFound builds a NotFoundError.
func NotFound(reason, format string, args ...any) *Error {
	return &Error{Kind: KindNotFound, Reason: reason, Message: fmt.Sprintf(format, args...)}
}

// Conflict builds a ConflictError.
func Conflict(reason, format string, args ...any) *Error {
	return &Error{Kind: KindConflict, Reason: reason, Message: fmt.Sprintf(format, args...)}
}

// External builds an ExternalServiceError wrapping the transport failure.
func External(reason string, err error, format string, args ...any) *Error {
	return &Error{Kind: KindExternal, Reason: reason, Message: fmt.Sprintf(format, args...), Err: err}
}

// KindOf returns the Kind of err if it is (or wraps) an *Error, else "".
func KindOf(err error) Kind {
	var e *Error
	if errors.As(err, &e) {
		return e.Kind
	}
	return ""
}

// ReasonOf returns the Reason of err if it is (or wraps) an *Error, else "".
func ReasonOf(err error) string {
	var e *Error
	if errors.As(err, &e) {
		return e.Reason
	}
	return ""
}

// IsKind reports whether err carries the given Kind.
func IsKind(err error, k Kind) bool {
	return KindOf(err) == k
}
