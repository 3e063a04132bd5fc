// ABOUTME: Data types and sentinel errors for whatsapp-gateway persistence
// ABOUTME: Defines Actor, Session, Conversation, Message structs shared across the store

package store

import (
	"errors"
	"time"
)

// ErrNotFound is returned when a requested entity does not exist
var ErrNotFound = errors.New("not found")

// ErrDuplicatePhone is returned when a session with the same normalized
// phone number already exists for the tenant, soft-deleted rows included.
var ErrDuplicatePhone = errors.New("phone number already registered for tenant")

// ErrDuplicateMessage is returned when a message with the same external ID
// already exists within the conversation.
var ErrDuplicateMessage = errors.New("message already stored")

// Role is an actor's role within its tenant.
type Role string

const (
	RoleSuperAdmin Role = "super_admin" // bypasses tenant checks
	RoleAdmin      Role = "admin"
	RoleManager    Role = "manager"
	RoleSales      Role = "sales"
	RoleSupport    Role = "support"
	RoleViewer     Role = "viewer"
)

// Elevated reports whether the role is allowed all operations within its tenant.
func (r Role) Elevated() bool {
	return r == RoleSuperAdmin || r == RoleAdmin || r == RoleManager
}

// ActorStatus is the lifecycle state of an actor account.
type ActorStatus string

const (
	ActorStatusActive   ActorStatus = "active"
	ActorStatusDisabled ActorStatus = "disabled"
)

// Actor is an authenticated user of the tenant.
type Actor struct {
	ID          string
	TenantID    string
	DisplayName string
	Role        Role
	Permissions []string // resource permission strings, e.g. "whatsapp.view"
	Status      ActorStatus
	CreatedAt   time.Time
}

// HasPermission reports whether the actor carries the given permission string.
func (a *Actor) HasPermission(perm string) bool {
	for _, p := range a.Permissions {
		if p == perm {
			return true
		}
	}
	return false
}

// SessionStatus is the connection state of a WhatsApp session.
type SessionStatus string

const (
	SessionDisconnected SessionStatus = "disconnected"
	SessionConnecting   SessionStatus = "connecting"
	SessionQRCode       SessionStatus = "qr_code"
	SessionConnected    SessionStatus = "connected"
)

// Ownership identifies who may work a session. A session is either checked
// out by a single user or shared ("global") across the tenant's agents.
// The zero value is Shared.
type Ownership struct {
	userID string
}

// OwnedBy returns an Ownership held by a single user.
func OwnedBy(userID string) Ownership { return Ownership{userID: userID} }

// Shared returns the shared (global) Ownership.
func Shared() Ownership { return Ownership{} }

// IsShared reports whether the session is global.
func (o Ownership) IsShared() bool { return o.userID == "" }

// UserID returns the owning user and true, or "" and false for a shared session.
func (o Ownership) UserID() (string, bool) { return o.userID, o.userID != "" }

// Session is a WhatsApp connection session belonging to a tenant.
type Session struct {
	ID             string
	TenantID       string
	Owner          Ownership
	PhoneNumber    string // digits only
	DisplayName    string
	Status         SessionStatus
	QRCode         string // transient, present only in qr_code status
	ConnectedAt    *time.Time
	LastActivityAt *time.Time
	DeletedAt      *time.Time
	CreatedAt      time.Time
	UpdatedAt      time.Time
}

// Deleted reports whether the session has been tombstoned.
func (s *Session) Deleted() bool { return s.DeletedAt != nil }

// Conversation is a chat with one remote party carried over a session.
// TenantID is denormalized from the session so every query can scope on it
// without a join.
type Conversation struct {
	ID              string
	SessionID       string
	TenantID        string
	RemotePartyID   string // external chat identifier (JID)
	IsGroup         bool
	AssignedUserID  *string
	UnreadCount     int
	IsPinned        bool
	IsArchived      bool
	LinkedContactID *string
	LastMessageAt   *time.Time
	DeletedAt       *time.Time
	CreatedAt       time.Time
	UpdatedAt       time.Time
}

// MessageDirection distinguishes inbound from outbound messages.
type MessageDirection string

const (
	DirectionInbound  MessageDirection = "inbound"
	DirectionOutbound MessageDirection = "outbound"
)

// MessageType is the content type of a message.
type MessageType string

const (
	MessageText     MessageType = "text"
	MessageImage    MessageType = "image"
	MessageVideo    MessageType = "video"
	MessageAudio    MessageType = "audio"
	MessageDocument MessageType = "document"
	MessageSticker  MessageType = "sticker"
	MessageLocation MessageType = "location"
	MessageContact  MessageType = "contact"
)

// MessageStatus is the delivery state of a message.
type MessageStatus string

const (
	StatusPending   MessageStatus = "pending"
	StatusSent      MessageStatus = "sent"
	StatusDelivered MessageStatus = "delivered"
	StatusRead      MessageStatus = "read"
	StatusFailed    MessageStatus = "failed"
)

// statusRank orders delivery states for monotonic progression. Failed is not
// ranked: it is set only by the send path, never by status events.
var statusRank = map[MessageStatus]int{
	StatusPending:   0,
	StatusSent:      1,
	StatusDelivered: 2,
	StatusRead:      3,
}

// Advances reports whether moving from cur to next is a forward transition.
func (next MessageStatus) Advances(cur MessageStatus) bool {
	nr, ok := statusRank[next]
	if !ok {
		return false
	}
	cr, ok := statusRank[cur]
	if !ok {
		return false
	}
	return nr > cr
}

// Message is a single message within a conversation. ExternalID is the
// bridge-assigned message ID and the idempotency key for ingestion.
type Message struct {
	ID             string
	ConversationID string
	ExternalID     string
	Direction      MessageDirection
	Type           MessageType
	Status         MessageStatus
	SenderID       string
	SenderName     string
	Body           string
	MediaURL       string
	SyncError      string
	SendAttempts   int
	SentAt         time.Time
	CreatedAt      time.Time
}

// AuditAction is the kind of assignment mutation being recorded.
type AuditAction string

const (
	AuditAssign     AuditAction = "assign"
	AuditSelfAssign AuditAction = "self_assign"
	AuditUnassign   AuditAction = "unassign"
)

// AssignmentAudit records one assignment mutation for compliance.
type AssignmentAudit struct {
	ID             string
	TenantID       string
	ActorID        string
	ConversationID string
	Action         AuditAction
	TargetUserID   *string // nil for unassign
	Timestamp      time.Time
	Detail         map[string]any
}

// SessionScope restricts session/conversation listings to what an actor may see.
// The zero value is not meaningful (an empty user scope); always build it with
// ScopeAll or ScopeUser.
type SessionScope struct {
	all    bool
	userID string
}

// ScopeAll returns a scope matching every row in the tenant.
func ScopeAll() SessionScope { return SessionScope{all: true} }

// ScopeUser returns a scope matching rows the user owns, shares, or is assigned.
func ScopeUser(userID string) SessionScope { return SessionScope{userID: userID} }

// All reports whether the scope is unrestricted within the tenant.
func (s SessionScope) All() bool { return s.all }

// UserID returns the scoped user for restricted scopes.
func (s SessionScope) UserID() string { return s.userID }

// SessionFilter narrows ListSessions results.
type SessionFilter struct {
	Status *SessionStatus
	Scope  SessionScope
	Limit  int
}

// ConversationFilter narrows ListConversations results.
type ConversationFilter struct {
	SessionID       string
	AssignedUserID  *string
	UnreadOnly      bool
	IncludeArchived bool
	Search          string // matches remote_party_id substring
	Scope           SessionScope
	Limit           int
}
