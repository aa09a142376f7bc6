// Package otel binds engine counters and histograms to OpenTelemetry instruments.
//
// [NewOTelExporter] registers Int64ObservableCounter instruments for each
// counter and an Int64ObservableGauge per histogram bucket. A single callback
// reads [authcore.Engine.MetricsSnapshot] on each collection cycle.
//
// # What this package must NOT do
//
//   - Own the OTel MeterProvider; callers supply the Meter.
//   - Mutate engine state.
package otel
