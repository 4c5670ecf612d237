// Package metric provides Prometheus metrics for the ddbs middle-tier.
//
// This package implements metrics collection and exposition:
//
//   - metric.go: Prometheus registry, collectors, and HTTP handler
//
// Metrics include:
//
//   - Execution phase latency histograms (parse/rewrite/exec/total)
//   - Planner rejection counters by error kind
//   - Live backend gauge
//   - Derived-table build counters and durations
//
// Metrics are exposed at /metrics in Prometheus text format via
// promhttp.Handler.
package metric
