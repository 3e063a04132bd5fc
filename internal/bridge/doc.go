// Package bridge is the HTTP client for the external WhatsApp bridge.
//
// The bridge process owns the actual protocol connections; the gateway
// drives it over a small JSON API (start session, logout, send message)
// and receives state changes back as webhook events. All failures surface
// as external errors with stable reason codes so callers and the HTTP
// layer map them uniformly:
//
//   - bridge_unreachable: transport failure
//   - bridge_session_not_found: 404 from the bridge
//   - bridge_error: any other non-2xx
//   - bridge_bad_response: undecodable success body
package bridge
