// Package goRenew issues short-lived JWT access tokens backed by longer-lived refresh
// tokens and renews them transparently while a client keeps calling the API.
//
// Every inbound request is classified by [Engine.Evaluate]: a fresh token passes
// untouched, a token close to expiry is replaced proactively, and an expired token is
// replaced reactively from the subject's stored refresh token. Exactly one credential
// record per subject is kept in Redis and is the single source of truth for which pair
// is current. The replacement travels back to the client as a response header, set by
// the middleware package.
//
// Engine methods are safe to call from multiple goroutines after initialization through
// [Builder.Build].
//
// # Architecture boundaries
//
// goRenew is the public surface. It exposes [Engine], [Builder], [Config], [Decision],
// [Identity] and the audit and metrics value types. Flow orchestration, audit dispatch
// and rate limiting live under internal/ and are never exported. The token codec is the
// jwt package; the credential store is the session package.
//
// # What this package must NOT do
//
//   - Write HTTP responses or reject requests; callers act on the returned Decision.
//   - Verify passwords or look up users; Login trusts the caller's authentication.
//   - Import any sub-package that re-imports goRenew (no import cycles).
//
// # Performance contract
//
// Evaluate is the hot path. A fresh token costs one signature verification and no Redis
// round-trip. Renewal costs at most three round-trips, bounded by Renewal.StoreTimeout.
package goRenew
