// Package telemetry sets up OpenTelemetry tracing for the service.
//
// Spans are batched and exported over OTLP/HTTP to the ingestion endpoint named
// by an Application Insights connection string. The package also turns on span
// creation for the chi router and for the outbound HTTP clients in httpclient.
// Without a connection string nothing is installed.
package telemetry
