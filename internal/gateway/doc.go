// Package gateway is the HTTP API server for the WhatsApp subsystem.
//
// # Surfaces
//
//   - POST /webhook and GET /health are unauthenticated; the webhook is
//     protected by its HMAC signature instead
//   - Everything under /api/ sits behind the JWT auth middleware
//
// # Response Envelope
//
// Every response is the same JSON shape:
//
//	{"success": bool, "message": string, "data": ..., "reason": string}
//
// Errors from the service layer map onto HTTP statuses by kind: validation
// 400, authorization 403, not found 404, conflict 409, external (bridge)
// 502. The reason field carries the stable machine-readable code.
package gateway
