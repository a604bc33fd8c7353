// Package otel binds goSubmit engine metrics to OpenTelemetry observable
// instruments.
//
// [NewOTelExporter] registers one Int64ObservableCounter per engine counter
// and one Int64ObservableGauge per latency bucket. A single callback reads
// [goSubmit.Engine.MetricsSnapshot] on each collection. Callers own the
// MeterProvider.
package otel
