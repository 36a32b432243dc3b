// Package observe provides telemetry for resilience operations: structured
// logging, OpenTelemetry metrics, and tracing, with pluggable exporters.
package observe
