// Package telemetry wires OpenTelemetry tracing for the journey service.
//
// Setup is called once from the binary. The asset cache records one span
// per Load through the global tracer provider, so nothing else needs to
// know whether tracing is on.
package telemetry
