// Package flows contains pure-function orchestrators for every Engine operation.
//
// Each flow function (RunEvaluate, RunRenew, RunRefresh, RunLogin, RunLogout) accepts a
// typed dependency struct and returns a result value classifying what happened. Flows
// never log and never emit audit events; the Engine maps results to outcomes, errors,
// metrics and audit records.
//
// # Architecture boundaries
//
// Flow functions coordinate calls to the token codec and the credential store. They do
// NOT own either resource; ownership stays with the Engine.
//
// # What this package must NOT do
//
//   - Hold mutable state between calls.
//   - Import goRenew (to avoid import cycles).
//   - Perform I/O directly; all I/O is mediated through dependency interfaces.
package flows
