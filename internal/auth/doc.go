// Package auth provides request authentication for the gateway API.
//
// # Tokens
//
// API clients authenticate with HS256 JWTs carrying the actor ID in the
// "sub" claim. JWTVerifier verifies and (for tooling and tests) generates
// tokens with the configured secret.
//
// # Middleware
//
// Middleware extracts the bearer token, verifies it, loads the actor row,
// rejects disabled accounts, and attaches the actor to the request
// context. Handlers behind it read the identity with MustFromContext.
//
// Authorization decisions (tenant, role, ownership) live in the authz
// package; this package only establishes who is calling.
package auth
