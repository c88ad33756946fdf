// Package telemetry wires the OpenTelemetry SDK: OTLP/gRPC trace and metric
// exporters, W3C propagation and the tracer used for workflow spans.
package telemetry
