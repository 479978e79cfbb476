package telemetry

import (
	"context"
	"fmt"
	"log"

	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/exporters/jaeger"
	"go.opentelemetry.io/otel/propagation"
	"go.opentelemetry.io/otel/sdk/resource"
	sdktrace "go.opentelemetry.io/otel/sdk/trace"
	semconv "go.opentelemetry.io/otel/semconv/v1.24.0"
)

/*
LEARNING: TRACING AN OPERATION END TO END

A submitted edit crosses several hops: HTTP or websocket → registry lock →
transform → conflict log write → fan-out queue → Redis → other nodes.
Each hop opens a child span (middleware.StartSpan), so Jaeger shows where
the time went when a session feels laggy.

Architecture:
  Collab engine → OpenTelemetry SDK → Jaeger Exporter → Jaeger Collector → Jaeger UI

Sampling is ParentBased(TraceIDRatioBased(ratio)): an incoming request that
already carries a sampled trace stays sampled, new roots are kept at ratio.
One editing session produces an operation every few keystrokes, so 100%
sampling is only sensible in development.
*/

// InitJaeger installs a global tracer provider exporting to Jaeger.
// Returns a cleanup function that flushes buffered spans on shutdown.
func InitJaeger(serviceName, jaegerEndpoint string, sampleRatio float64) (func(context.Context) error, error) {
	exp, err := jaeger.New(
		jaeger.WithCollectorEndpoint(jaeger.WithEndpoint(jaegerEndpoint)),
	)
	if err != nil {
		return nil, fmt.Errorf("failed to create Jaeger exporter: %w", err)
	}

	res, err := resource.Merge(
		resource.Default(),
		resource.NewWithAttributes(
			semconv.SchemaURL,
			semconv.ServiceName(serviceName),
			semconv.ServiceVersion("1.0.0"),
		),
	)
	if err != nil {
		return nil, fmt.Errorf("failed to create resource: %w", err)
	}

	tp := sdktrace.NewTracerProvider(
		sdktrace.WithBatcher(exp),
		sdktrace.WithResource(res),
		sdktrace.WithSampler(sdktrace.ParentBased(sdktrace.TraceIDRatioBased(sampleRatio))),
	)

	otel.SetTracerProvider(tp)
	// Learning: W3C traceparent headers let a gateway's trace continue here
	otel.SetTextMapPropagator(propagation.NewCompositeTextMapPropagator(
		propagation.TraceContext{},
		propagation.Baggage{},
	))

	log.Printf("✓ Jaeger tracing initialized: %s (sampling %.0f%%)", jaegerEndpoint, sampleRatio*100)

	return tp.Shutdown, nil
}
