// Package password hashes and verifies passwords with Argon2id.
//
// Hashes are PHC strings:
//
//	$argon2id$v=19$m=<memory>,t=<time>,p=<threads>$<salt>$<hash>
//
// [Argon2.NeedsUpgrade] reports hashes produced with weaker parameters so callers can
// re-hash on the next successful login.
//
// The renewal engine never sees passwords; this package serves the renewd user
// directory, which authenticates a caller before asking the engine for a token pair.
package password
