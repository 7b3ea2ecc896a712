// Package middleware is the request interceptor: it runs every inbound request through
// goRenew.Engine.Evaluate before the application handler sees it.
//
// # Pieces
//
//   - [Interceptor] evaluates the bearer token, installs the identity into the request
//     context and sets [DefaultHeader] when a replacement token was issued. It has
//     net/http ([Interceptor.Handler]) and gin ([Interceptor.Gin]) adapters.
//   - [RequireIdentity] and [RequireAuthority] reject requests downstream of the
//     interceptor when the caller is unauthenticated or lacks an authority.
//
// # What this package must NOT do
//
//   - Parse or mint JWTs (delegates to Engine).
//   - Access Redis (Engine handles I/O).
//   - Reject requests inside the interceptor itself; rejection belongs to the guards.
package middleware
