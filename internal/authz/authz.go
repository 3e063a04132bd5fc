// ABOUTME: Pure authorization engine: one declarative rule table over role, tenant, and ownership
// ABOUTME: The same table drives single-resource gates and list filtering so both always agree

package authz

import (
	"github.com/loomcrm/whatsapp-gateway/internal/errs"
	"github.com/loomcrm/whatsapp-gateway/internal/store"
)

// Op is an operation subject to authorization.
type Op string

const (
	OpView        Op = "view"
	OpUpdate      Op = "update"
	OpDelete      Op = "delete"
	OpAssign      Op = "assign"
	OpSendMessage Op = "send_message"
	OpArchive     Op = "archive"
	OpPin         Op = "pin"
	OpLinkContact Op = "link_contact"
	OpMarkRead    Op = "mark_read"
)

// ownershipScope selects which ownership predicate a rule applies.
type ownershipScope int

const (
	// scopeSession: the actor must own the session.
	scopeSession ownershipScope = iota
	// scopeConversation: the actor must be the assignee on a session it
	// owns or that is shared.
	scopeConversation
	// scopeClaim: the self-assign claim rule (global session, currently
	// unassigned, target is self). The Coordinator enforces the atomic part.
	scopeClaim
)

// rule is one row of the authorization table: the permission string a
// non-elevated actor needs plus the ownership predicate that applies.
type rule struct {
	permission string
	scope      ownershipScope
}

// rules is the complete role-independent operation table. Elevated roles
// skip it entirely; non-elevated roles must satisfy both columns.
var rules = map[Op]rule{
	OpView:        {permission: "whatsapp.view", scope: scopeConversation},
	OpUpdate:      {permission: "whatsapp.update", scope: scopeConversation},
	OpMarkRead:    {permission: "whatsapp.update", scope: scopeConversation},
	OpSendMessage: {permission: "whatsapp.send", scope: scopeConversation},
	OpArchive:     {permission: "whatsapp.archive", scope: scopeConversation},
	OpPin:         {permission: "whatsapp.pin", scope: scopeConversation},
	OpLinkContact: {permission: "whatsapp.link_contact", scope: scopeConversation},
	OpDelete:      {permission: "whatsapp.delete", scope: scopeSession},
	OpAssign:      {permission: "whatsapp.assign", scope: scopeClaim},
}

// Decision is the outcome of an authorization check.
type Decision struct {
	Allowed bool
	Reason  string // stable denial reason code, empty when allowed

	// MissingPermission names the permission string the actor lacked, when
	// that is why the check failed.
	MissingPermission string
}

func allow() Decision { return Decision{Allowed: true} }

func deny(reason string) Decision { return Decision{Reason: reason} }

// Err converts a denial into an AuthorizationError carrying the reason code
// and the missing permission. Returns nil for an allowed decision.
func (d Decision) Err() error {
	if d.Allowed {
		return nil
	}
	e := errs.Authorization(d.Reason, "operation not permitted")
	e.MissingPermission = d.MissingPermission
	return e
}

// Denial reason codes, shared with the errs package so a Decision translates
// into an AuthorizationError without re-mapping.
const (
	ReasonTenantMismatch    = errs.ReasonTenantMismatch
	ReasonMissingPermission = errs.ReasonMissingPermission
	ReasonNotOwner          = errs.ReasonNotOwner
	ReasonNotAssignee       = errs.ReasonNotAssignee
	ReasonSelfAssignOnly    = errs.ReasonSelfAssignOnly
	ReasonSessionNotGlobal  = errs.ReasonSessionNotGlobal
	ReasonAlreadyAssigned   = errs.ReasonAlreadyAssigned
	ReasonUnknownOperation  = "unknown_operation"
)

// Decide evaluates whether the actor may perform op. Session must always be
// given; conversation may be nil for session-scoped operations. The function
// is pure: it never touches storage and is safe to call per row when
// filtering.
//
// Evaluation order: super-admin bypass, tenant match, elevated allow,
// permission string, ownership predicate.
func Decide(op Op, actor *store.Actor, session *store.Session, conversation *store.Conversation) Decision {
	// Super-admins bypass tenant checks entirely.
	if actor.Role == store.RoleSuperAdmin {
		return allow()
	}

	// Tenant match is mandatory for every other actor.
	if session.TenantID != actor.TenantID {
		return deny(ReasonTenantMismatch)
	}
	if conversation != nil && conversation.TenantID != actor.TenantID {
		return deny(ReasonTenantMismatch)
	}

	// Elevated roles are allowed all operations within their tenant.
	if actor.Role.Elevated() {
		return allow()
	}

	r, ok := rules[op]
	if !ok {
		return deny(ReasonUnknownOperation)
	}

	if !actor.HasPermission(r.permission) {
		d := deny(ReasonMissingPermission)
		d.MissingPermission = r.permission
		return d
	}

	switch r.scope {
	case scopeSession:
		if owner, ok := session.Owner.UserID(); !ok || owner != actor.ID {
			return deny(ReasonNotOwner)
		}
		return allow()

	case scopeConversation:
		// Applied to the session itself when no conversation is in play:
		// viewing needs ownership or a shared session, mutating needs
		// ownership.
		if conversation == nil {
			owner, owned := session.Owner.UserID()
			if owned && owner == actor.ID {
				return allow()
			}
			if op == OpView && session.Owner.IsShared() {
				return allow()
			}
			return deny(ReasonNotOwner)
		}

		// A shared session's conversations are workable by their assignee;
		// an owned session's only by its owner.
		if owner, ok := session.Owner.UserID(); ok && owner != actor.ID {
			return deny(ReasonNotOwner)
		}
		if conversation.AssignedUserID == nil || *conversation.AssignedUserID != actor.ID {
			return deny(ReasonNotAssignee)
		}
		return allow()

	case scopeClaim:
		// First-come-first-served claim: self only, global session only,
		// currently unassigned only.
		if !session.Owner.IsShared() {
			return deny(ReasonSessionNotGlobal)
		}
		if conversation == nil || conversation.AssignedUserID != nil {
			return deny(ReasonAlreadyAssigned)
		}
		return allow()
	}

	return deny(ReasonUnknownOperation)
}

// DecideAssign checks the assign operation for an explicit target. Elevated
// actors may assign anyone; non-elevated actors may only claim for
// themselves, which then goes through the scopeClaim rule.
func DecideAssign(actor *store.Actor, session *store.Session, conversation *store.Conversation, targetUserID string) Decision {
	if actor.Role == store.RoleSuperAdmin || actor.Role.Elevated() {
		// Tenant check still applies below super-admin.
		return Decide(OpAssign, actor, session, conversation)
	}
	if targetUserID != actor.ID {
		return deny(ReasonSelfAssignOnly)
	}
	return Decide(OpAssign, actor, session, conversation)
}

// ListScope derives the list filter for an actor from the same table that
// gates single-resource access: elevated roles see the whole tenant,
// everyone else sees conversations they are assigned on sessions they own
// or that are shared. A conversation returned under this scope always
// passes Decide(OpView) for the same actor, and vice versa.
func ListScope(actor *store.Actor) store.SessionScope {
	if actor.Role.Elevated() {
		return store.ScopeAll()
	}
	return store.ScopeUser(actor.ID)
}

// CanViewList reports whether the actor may call list endpoints at all.
// Elevated roles always may; others need the view permission.
func CanViewList(actor *store.Actor) Decision {
	if actor.Role.Elevated() {
		return allow()
	}
	if !actor.HasPermission("whatsapp.view") {
		d := deny(ReasonMissingPermission)
		d.MissingPermission = "whatsapp.view"
		return d
	}
	return allow()
}
