// Package session provides the Redis-backed credential store: one record per subject
// holding the currently issued access and refresh tokens.
//
// # Record layout
//
// Each record is a Redis hash keyed "<prefix>:<subjectID>" with the fields
// accessToken, refreshToken, authorities and lastUpdate (unix milliseconds). Every write
// replaces the whole hash and resets a sliding expiration window. The window is a cache
// bound, not a security boundary: token validity is decided from the tokens themselves.
//
// # Concurrency
//
// Each operation is atomic for its key. There are no cross-operation transactions; racing
// writers for one subject resolve last-writer-wins. [Store.CompareAndPut] is available for
// callers that need a conditional replacement.
//
// # What this package must NOT do
//
//   - Import goRenew or jwt (no upward imports).
//   - Interpret token contents or decide whether a token is valid.
package session
