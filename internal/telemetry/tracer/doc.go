// Package tracer configures OpenTelemetry tracing for corral.
//
// With tracing disabled the provider hands out a no-op tracer, so the
// engine can always start a span per request.
package tracer
