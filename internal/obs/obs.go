// Package obs wires OpenTelemetry tracing and metrics for both
// binaries, scaled down to the SDK packages this repository actually
// pulls in (no OTLP network exporter): a resource-tagged TracerProvider/
// MeterProvider pair, span helpers around the spawn sequence, RPC
// dispatch, and command-lane execution, and the Command Buffer's Stats
// exported as OpenTelemetry gauges via a ManualReader a caller (cmd/router's
// or cmd/worker's health surface) can Collect on demand.
package obs

import (
	"context"
	"fmt"

	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/codes"
	sdkmetric "go.opentelemetry.io/otel/sdk/metric"
	sdkresource "go.opentelemetry.io/otel/sdk/resource"
	sdktrace "go.opentelemetry.io/otel/sdk/trace"
	semconv "go.opentelemetry.io/otel/semconv/v1.26.0"
	"go.opentelemetry.io/otel/trace"
)

// Telemetry is one process's tracer/meter provider pair.
type Telemetry struct {
	ServiceName string

	TracerProvider *sdktrace.TracerProvider
	MeterProvider  *sdkmetric.MeterProvider
	Reader         *sdkmetric.ManualReader

	tracer trace.Tracer
}

// New builds a Telemetry for serviceName and installs it as the global
// provider pair, mirroring InitializeTelemetry's SetTracerProvider/
// SetMeterProvider calls.
func New(serviceName, serviceVersion string) (*Telemetry, error) {
	res, err := sdkresource.Merge(
		sdkresource.Default(),
		sdkresource.NewWithAttributes(semconv.SchemaURL,
			semconv.ServiceName(serviceName),
			semconv.ServiceVersion(serviceVersion),
		),
	)
	if err != nil {
		return nil, fmt.Errorf("obs: build resource: %w", err)
	}

	tp := sdktrace.NewTracerProvider(sdktrace.WithResource(res))
	otel.SetTracerProvider(tp)

	reader := sdkmetric.NewManualReader()
	mp := sdkmetric.NewMeterProvider(sdkmetric.WithResource(res), sdkmetric.WithReader(reader))
	otel.SetMeterProvider(mp)

	return &Telemetry{
		ServiceName:    serviceName,
		TracerProvider: tp,
		MeterProvider:  mp,
		Reader:         reader,
		tracer:         tp.Tracer(serviceName),
	}, nil
}

// Shutdown flushes and releases both providers, the obs analogue of
// Telemetry.ShutdownTelemetry.
func (t *Telemetry) Shutdown(ctx context.Context) error {
	if err := t.TracerProvider.Shutdown(ctx); err != nil {
		return fmt.Errorf("obs: shutdown tracer provider: %w", err)
	}
	if err := t.MeterProvider.Shutdown(ctx); err != nil {
		return fmt.Errorf("obs: shutdown meter provider: %w", err)
	}
	return nil
}

// StartSpawnSpan traces one Supervisor spawn attempt.
func (t *Telemetry) StartSpawnSpan(ctx context.Context, tenantID string, generation uint64) (context.Context, trace.Span) {
	return t.tracer.Start(ctx, "supervisor.spawn", trace.WithAttributes(
		attrTenantID(tenantID), attrGeneration(generation),
	))
}

// StartDispatchSpan traces one envelope dispatch.
func (t *Telemetry) StartDispatchSpan(ctx context.Context, tenantID, opName string) (context.Context, trace.Span) {
	return t.tracer.Start(ctx, "envelope.dispatch", trace.WithAttributes(
		attrTenantID(tenantID), attrOpName(opName),
	))
}

// StartCommandLaneSpan traces one command-lane execution.
func (t *Telemetry) StartCommandLaneSpan(ctx context.Context, tenantID, opName string) (context.Context, trace.Span) {
	return t.tracer.Start(ctx, "buffer.command_lane", trace.WithAttributes(
		attrTenantID(tenantID), attrOpName(opName),
	))
}

// HandleSpanError records err on span and marks it failed, the obs
// analogue of mopentelemetry.HandleSpanError.
func HandleSpanError(span trace.Span, message string, err error) {
	span.RecordError(err)
	span.SetStatus(codes.Error, message+": "+err.Error())
}
