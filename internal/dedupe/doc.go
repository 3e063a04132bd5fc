// Package dedupe provides a fixed-capacity TTL cache for suppressing
// replayed webhook deliveries. Contains is the read-side fast path; Mark
// records a key only after the event behind it is durably stored, so a
// failed ingest stays retriable. Eviction under capacity pressure is safe
// because the store's unique index remains the durable idempotency
// guarantee.
package dedupe
