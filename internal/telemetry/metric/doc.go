// Package metric provides Prometheus metrics for DocRelay.
//
// All metrics live in one Metrics struct backed by a private registry, so
// tests can create isolated instances and the server exposes exactly what
// it registered at /metrics.
//
// Metrics include:
//
//   - document and sync activity (merges, sync messages, reconciliations)
//   - watcher runs and per-document failures
//   - backup flush outcomes, retries, and dirty backlog
//   - HTTP request counts and latency histograms
package metric
