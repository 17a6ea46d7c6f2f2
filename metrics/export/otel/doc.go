// Package otel publishes goSession engine metrics through OpenTelemetry.
//
// NewOTelExporter creates an Int64ObservableCounter per engine counter, one
// Int64ObservableGauge per cumulative latency bucket, and a gauge for the
// number of registered sessions. A single callback reads the engine snapshot
// on every collection. The caller owns the MeterProvider.
package otel
