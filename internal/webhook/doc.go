// Package webhook ingests bridge event callbacks.
//
// # Delivery Contract
//
// The bridge delivers events at least once, possibly out of order, as a
// single JSON object or an array. Deliveries are authenticated with an
// HMAC-SHA256 signature over the raw body (X-Webhook-Signature, hex).
//
// # Event Types
//
//   - qr_code, connected, disconnected, logged_out: session lifecycle,
//     dispatched to the session manager's state machine
//   - message: inbound message; creates the conversation on first contact
//   - message_status: sent/delivered/read progression for prior messages
//
// The allow-list is configurable; allow-listed types without a handler are
// accepted and dropped.
//
// # Idempotency
//
// Inbound messages dedupe in two layers: an in-memory TTL cache keyed on
// (session, external_id) short-circuits hot replays, and the store's
// unique (conversation_id, external_id) index is the durable guarantee.
// The cache is marked only after the insert commits, so a delivery that
// failed transiently is retried on redelivery rather than swallowed.
// Status updates are strictly monotonic; a late "sent" after "read" is a
// no-op.
//
// # Batch Semantics
//
// Each event in a batch processes independently and reports its own
// ok/ignored/error result; the HTTP response is 200 whenever the delivery
// itself was readable. Events for tombstoned sessions are accepted no-ops.
package webhook
