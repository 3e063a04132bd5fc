// Package sync retries failed outbound messages in the background.
//
// User-initiated sends fail fast and are never retried inline; this
// worker picks up messages that failed at least one interval ago, up to a
// bounded attempt count, and skips sessions that are deleted or not
// connected without burning an attempt.
package sync
