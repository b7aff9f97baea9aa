// Package otel bridges authcore counters to OpenTelemetry.
//
// [NewExporter] registers one Int64ObservableCounter per engine counter
// plus the audit-drop counter. A single callback reads
// Engine.MetricsSnapshot on each collection cycle, so the engine's hot
// paths stay free of exporter work.
//
// # What this package must NOT do
//
//   - Own the OTel MeterProvider; callers supply the Meter.
//   - Mutate engine state.
package otel
