// Package audit records credential lifecycle events: issued, refreshed, renewed and
// ended sessions, one [Event] per subject and occurrence.
//
// [Dispatcher] decouples the engine from a possibly slow [Sink]. It queues events in
// a bounded buffer, delivers them from one goroutine and counts, per [Type], every
// event that could not be queued.
//
// # What this package must NOT do
//
//   - Decide which events to emit; the Engine does.
//   - Import goRenew or any sibling internal package.
//   - Perform network I/O beyond what a caller-supplied Sink does.
package audit
