// Package jwt mints and parses the signed access and refresh credentials used by the
// renewal engine.
//
// Signature checks and expiry checks are deliberately separate: [Manager.Parse] accepts a
// well-signed token whose validity window has passed and returns its claims, while
// [Manager.Verify] additionally enforces expiry. The renewal engine relies on this split to
// recover the subject of an expired access token without treating that token as proof of
// a live session.
//
// # What this package must NOT do
//
//   - Touch Redis or any other store.
//   - Decide whether a token should be renewed.
package jwt
