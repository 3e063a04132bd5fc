// Package errs defines the gateway's error taxonomy: a Kind for coarse
// classification (validation, authorization, not_found, conflict,
// external) plus a stable Reason code for programmatic handling. Services
// return *Error values; the HTTP layer maps Kind to a status and forwards
// Reason in the response envelope.
package errs
