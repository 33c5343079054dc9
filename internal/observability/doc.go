// Package observability exposes Prometheus metrics for the watch loop and an
// optional HTTP server with /metrics, /healthz and pprof.
package observability
