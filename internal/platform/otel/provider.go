// Package otel wires opt-in OpenTelemetry tracing for service binaries.
package otel

import (
	"context"
	"os"
	"strings"

	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/exporters/otlp/otlptrace/otlptracehttp"
	"go.opentelemetry.io/otel/propagation"
	"go.opentelemetry.io/otel/sdk/resource"
	sdktrace "go.opentelemetry.io/otel/sdk/trace"
	semconv "go.opentelemetry.io/otel/semconv/v1.26.0"
)

const (
	envEndpoint = "PERCH_OTEL_ENDPOINT"
	envEnabled  = "PERCH_OTEL_ENABLED"
)

// Setup registers a global OTLP/HTTP trace provider for serviceName and
// returns a shutdown function that flushes pending spans.
//
// Tracing stays off unless PERCH_OTEL_ENDPOINT is set; setting
// PERCH_OTEL_ENABLED=false forces it off regardless. In both cases the
// returned shutdown is a no-op and no global provider is registered.
func Setup(ctx context.Context, serviceName string) (func(context.Context) error, error) {
	noop := func(context.Context) error { return nil }

	endpoint := exportEndpoint()
	if endpoint == "" {
		return noop, nil
	}

	exporter, err := otlptracehttp.New(ctx, otlptracehttp.WithEndpointURL(endpoint))
	if err != nil {
		return noop, err
	}
	res, err := resource.New(ctx, resource.WithAttributes(semconv.ServiceName(serviceName)))
	if err != nil {
		return noop, err
	}

	provider := sdktrace.NewTracerProvider(
		sdktrace.WithBatcher(exporter),
		sdktrace.WithResource(res),
		sdktrace.WithSampler(sdktrace.AlwaysSample()),
	)
	otel.SetTracerProvider(provider)
	otel.SetTextMapPropagator(propagation.TraceContext{})

	return provider.Shutdown, nil
}

func exportEndpoint() string {
	if strings.EqualFold(os.Getenv(envEnabled), "false") {
		return ""
	}
	return os.Getenv(envEndpoint)
}
