// Package rate provides Redis-backed fixed-window counters used to throttle failed
// logins and explicit refreshes.
//
// # Window semantics
//
// Fixed-window counters: INCR + conditional EXPIRE on first hit. Key layout under the
// configured prefix (default "rl"):
//   - <prefix>:login:<identity>   failed logins per identity
//   - <prefix>:login_ip:<ip>      failed logins per client IP
//   - <prefix>:refresh:<subject>  explicit refreshes per subject
//
// # What this package must NOT do
//
//   - Decide whether credentials are valid.
//   - Be imported outside the goRenew module.
package rate
