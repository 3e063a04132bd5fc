// Package session manages WhatsApp session lifecycle.
//
// # State Machine
//
// A session moves through four states:
//
//	disconnected -> connecting -> qr_code -> connected
//
// User actions (Create, Reconnect, Delete) and bridge webhook events
// (ApplyQRCode, ApplyConnected, ApplyDisconnected) both flow through the
// Manager; nothing else writes session state. Events that do not match the
// current state are logged no-ops, because retried webhook deliveries
// arrive out of order.
//
// # Reconnect Ordering
//
// Reconnect calls the bridge before mutating anything: a bridge failure
// leaves the session exactly as it was. Some bridges return the QR payload
// synchronously, in which case the session lands directly in qr_code.
//
// # Deletion
//
// Delete tombstones the row and logs the session out of the bridge best
// effort. Conversations survive, orphaned to the tombstone; the webhook
// pipeline drops any in-flight events for a deleted session.
package session
