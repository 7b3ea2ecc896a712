// Package otel binds engine counters to OpenTelemetry observable instruments.
//
// Counters are folded into attribute-keyed families: "renew.evaluate.outcomes" by
// outcome, "renew.renewals" and "renew.refreshes" by result, "renew.sessions" by op.
// Latency histograms become a bucket gauge keyed by "le" plus a count gauge, and
// "renew.audit.dropped" is split by event type when the source supports it.
//
// # What this package must NOT do
//
//   - Own the MeterProvider; callers supply the Meter.
//   - Mutate engine state.
package otel
