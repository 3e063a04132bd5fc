// Package conversation provides the conversation-level operations of the
// gateway: listing, flags, read state, outbound sends, and assignment.
//
// # Service
//
// Every operation authorizes through the authz engine before touching
// storage. Conversations load their session tombstone-included, so history
// on a deleted session stays readable while sends naturally fail (the
// tombstone forces the session out of connected).
//
// # Outbound Sends
//
// SendText/SendMedia persist the message first (status pending, with a
// placeholder external ID), then call the bridge:
//
//   - Success: status sent, placeholder replaced by the bridge's ID
//   - Failure: status failed with the error recorded; the sync worker
//     retries later, the caller gets the external error immediately
//
// # Assignment
//
// Assign routes by role. Non-elevated actors may only claim unassigned
// conversations on shared sessions, for themselves, through an atomic
// compare-and-set; the loser of a concurrent claim gets a conflict.
// Elevated actors reassign unconditionally. Every change appends an
// AssignmentAudit row. BulkAssign wraps the single-item path with per-item
// isolation.
package conversation
