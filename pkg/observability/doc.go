// Package observability provides structured logging, Prometheus metrics,
// optional OpenTelemetry tracing, health probes, and graceful shutdown for
// the duetboard service.
package observability
