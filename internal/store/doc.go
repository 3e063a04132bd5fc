// Package store provides persistent storage for the gateway using SQLite.
//
// # Architecture
//
// SQLiteStore is the single implementation; consumers declare their own
// narrow interfaces (session.Store, conversation.Store, webhook.Store, ...)
// and SQLiteStore satisfies all of them. The schema is created on open.
//
// # Data Models
//
//   - Actor: An authenticated CRM user with a role and permission strings
//   - Session: A WhatsApp connection with tenant scoping and an Ownership
//     (checked out by one user, or shared tenant-wide)
//   - Conversation: A chat with one remote party, carried over a session,
//     with assignment, pin/archive flags, and unread counts
//   - Message: One inbound or outbound message with delivery status
//   - AssignmentAudit: Append-only log of assignment changes
//
// # Key Invariants
//
//   - Phone numbers are unique per tenant across live AND soft-deleted
//     sessions (digits-only, enforced by a unique index)
//   - (conversation_id, external_id) is unique: inbound ingestion is
//     idempotent under at-least-once webhook delivery
//   - Sessions are soft-deleted; the tombstone absorbs stray bridge events
//     and keeps conversation history readable
//   - ClaimConversation is a conditional UPDATE that only fires while the
//     conversation is unassigned, so concurrent claims have one winner
//   - AdvanceMessageStatus is a compare-and-set on the current status
//
// # SQLite Configuration
//
// WAL mode with foreign keys on:
//
//	PRAGMA journal_mode=WAL;
//	PRAGMA foreign_keys=ON;
//
// Timestamps are stored as RFC3339 UTC text.
//
// # Error Handling
//
// Sentinel errors:
//
//   - ErrNotFound: entity does not exist (or is tombstoned, for tenant reads)
//   - ErrDuplicatePhone: phone number already registered in the tenant
//   - ErrDuplicateMessage: external ID already ingested for the conversation
//
// All methods accept context.Context.
package store
