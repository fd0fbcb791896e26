// Package metrics records per-run Prometheus metrics and exports them for node_exporter's textfile collector.
package metrics
