// Package session owns the Crater API bearer token.
//
// A Manager is the only writer of the current token. It logs in with email and
// password (or adopts a pre-issued static token), exposes the token to the
// HTTP client, and implements the single-retry-after-401 policy: a request
// rejected with 401 triggers at most one re-login and one replay, after which
// the failure is reported as an AuthenticationError.
//
// Concurrent callers that observe a 401 for the same stale token share a single
// login round-trip.
package session
