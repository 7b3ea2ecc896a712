// Package prometheus exports engine counters to Prometheus.
//
// [PrometheusExporter] is a client_golang Collector: register it with any registry, or
// mount [PrometheusExporter.Handler], which serves it through promhttp from a private
// registry. Counter names follow renew_*_total; the single histogram is
// renew_evaluate_latency_seconds.
//
// # What this package must NOT do
//
//   - Register into the global default registry.
//   - Mutate engine state.
package prometheus
