// Package authz is the pure authorization engine for the gateway.
//
// # Decision Model
//
// Decide(op, actor, session, conversation) evaluates one declarative rule
// table and returns a Decision with a stable denial reason. Evaluation
// order:
//
//  1. Super-admin bypass (crosses tenants)
//  2. Tenant match (mandatory for everyone else)
//  3. Elevated roles (admin, manager) allowed within their tenant
//  4. Permission string check (e.g. "whatsapp.send")
//  5. Ownership predicate: session ownership, conversation assignment, or
//     the self-assign claim rule
//
// The package never touches storage; it is safe to call per row.
//
// # Ownership Predicates
//
//   - Session mutations (delete): the actor must own the session
//   - Conversation work (view, send, pin, ...): the session must be owned
//     by the actor or shared, and the actor must be the assignee
//   - Claim (assign): shared session, currently unassigned, target is self
//
// Elevated actors skip all three and may reassign occupied conversations.
//
// # List Scoping
//
// ListScope derives the SQL-side visibility filter from the same rules, so
// a row returned by a list query always passes the single-resource check
// and vice versa. TestListScopeAgreesWithDecide holds the two together.
package authz
