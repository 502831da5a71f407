// Package observability wires OpenTelemetry tracing and metrics for the
// pipeline: one span per run stage and RED-style counters over provider
// calls. Disabled by default; enabling without a collector only costs the
// export retries.
package observability

import (
	"context"
	"fmt"
	"log/slog"
	"time"

	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/exporters/otlp/otlpmetric/otlpmetricgrpc"
	"go.opentelemetry.io/otel/exporters/otlp/otlptrace/otlptracegrpc"
	"go.opentelemetry.io/otel/metric"
	"go.opentelemetry.io/otel/propagation"
	sdkmetric "go.opentelemetry.io/otel/sdk/metric"
	"go.opentelemetry.io/otel/sdk/resource"
	sdktrace "go.opentelemetry.io/otel/sdk/trace"
	semconv "go.opentelemetry.io/otel/semconv/v1.26.0"
	"go.opentelemetry.io/otel/trace"
)

const instrumentationName = "triangulate"

// Config configures the providers.
type Config struct {
	ServiceVersion string
	OTLPEndpoint   string
	Enabled        bool
}

// Provider holds the tracer, meter, and the pipeline's counters.
type Provider struct {
	config         Config
	tracerProvider *sdktrace.TracerProvider
	meterProvider  *sdkmetric.MeterProvider
	tracer         trace.Tracer
	meter          metric.Meter
	log            *slog.Logger

	providerCalls  metric.Int64Counter
	providerErrors metric.Int64Counter
	stageDuration  metric.Float64Histogram
	itemsCollected metric.Int64Counter
}

// New initializes the global OTel providers. A disabled config returns a
// provider whose record methods are no-ops.
func New(ctx context.Context, config Config) (*Provider, error) {
	p := &Provider{
		config: config,
		log:    slog.Default().With("component", "observability"),
	}
	if !config.Enabled {
		return p, nil
	}

	res, err := resource.Merge(
		resource.Default(),
		resource.NewWithAttributes(
			semconv.SchemaURL,
			semconv.ServiceName(instrumentationName),
			semconv.ServiceVersion(config.ServiceVersion),
		),
	)
	if err != nil {
		return nil, fmt.Errorf("build otel resource: %w", err)
	}

	traceExp, err := otlptracegrpc.New(ctx,
		otlptracegrpc.WithEndpoint(config.OTLPEndpoint),
		otlptracegrpc.WithInsecure(),
	)
	if err != nil {
		return nil, fmt.Errorf("create trace exporter: %w", err)
	}
	p.tracerProvider = sdktrace.NewTracerProvider(
		sdktrace.WithResource(res),
		sdktrace.WithBatcher(traceExp, sdktrace.WithBatchTimeout(5*time.Second)),
	)
	otel.SetTracerProvider(p.tracerProvider)
	otel.SetTextMapPropagator(propagation.NewCompositeTextMapPropagator(
		propagation.TraceContext{},
		propagation.Baggage{},
	))

	metricExp, err := otlpmetricgrpc.New(ctx,
		otlpmetricgrpc.WithEndpoint(config.OTLPEndpoint),
		otlpmetricgrpc.WithInsecure(),
	)
	if err != nil {
		return nil, fmt.Errorf("create metric exporter: %w", err)
	}
	p.meterProvider = sdkmetric.NewMeterProvider(
		sdkmetric.WithResource(res),
		sdkmetric.WithReader(sdkmetric.NewPeriodicReader(metricExp,
			sdkmetric.WithInterval(15*time.Second))),
	)
	otel.SetMeterProvider(p.meterProvider)

	p.tracer = otel.Tracer(instrumentationName,
		trace.WithInstrumentationVersion(config.ServiceVersion))
	p.meter = otel.Meter(instrumentationName,
		metric.WithInstrumentationVersion(config.ServiceVersion))

	if err := p.initInstruments(); err != nil {
		return nil, fmt.Errorf("init instruments: %w", err)
	}

	p.log.InfoContext(ctx, "observability initialized", "endpoint", config.OTLPEndpoint)
	return p, nil
}

func (p *Provider) initInstruments() error {
	var err error
	p.providerCalls, err = p.meter.Int64Counter("triangulate.provider.calls",
		metric.WithDescription("Provider search calls issued"),
		metric.WithUnit("{call}"),
	)
	if err != nil {
		return err
	}
	p.providerErrors, err = p.meter.Int64Counter("triangulate.provider.errors",
		metric.WithDescription("Provider search calls that failed"),
		metric.WithUnit("{error}"),
	)
	if err != nil {
		return err
	}
	p.stageDuration, err = p.meter.Float64Histogram("triangulate.stage.duration",
		metric.WithDescription("Pipeline stage duration in seconds"),
		metric.WithUnit("s"),
		metric.WithExplicitBucketBoundaries(0.1, 0.5, 1, 2.5, 5, 10, 30, 60, 120),
	)
	if err != nil {
		return err
	}
	p.itemsCollected, err = p.meter.Int64Counter("triangulate.items.collected",
		metric.WithDescription("Evidence items delivered by providers"),
		metric.WithUnit("{item}"),
	)
	return err
}

// StartStage opens a span for one pipeline stage.
func (p *Provider) StartStage(ctx context.Context, name string) (context.Context, trace.Span) {
	if p.tracer == nil {
		return trace.ContextWithSpan(ctx, trace.SpanFromContext(ctx)), trace.SpanFromContext(ctx)
	}
	return p.tracer.Start(ctx, name)
}

// RecordProviderCall counts one provider call and its outcome.
func (p *Provider) RecordProviderCall(ctx context.Context, provider string, items int, err error) {
	if p.providerCalls == nil {
		return
	}
	attrs := metric.WithAttributes(attribute.String("provider", provider))
	p.providerCalls.Add(ctx, 1, attrs)
	if err != nil {
		p.providerErrors.Add(ctx, 1, attrs)
	}
	if items > 0 {
		p.itemsCollected.Add(ctx, int64(items), attrs)
	}
}

// RecordStage records a completed stage's duration.
func (p *Provider) RecordStage(ctx context.Context, stage string, d time.Duration) {
	if p.stageDuration == nil {
		return
	}
	p.stageDuration.Record(ctx, d.Seconds(),
		metric.WithAttributes(attribute.String("stage", stage)))
}

// Shutdown flushes and stops the providers.
func (p *Provider) Shutdown(ctx context.Context) error {
	if p.tracerProvider != nil {
		if err := p.tracerProvider.Shutdown(ctx); err != nil {
			p.log.ErrorContext(ctx, "trace provider shutdown", "error", err)
		}
	}
	if p.meterProvider != nil {
		if err := p.meterProvider.Shutdown(ctx); err != nil {
			p.log.ErrorContext(ctx, "meter provider shutdown", "error", err)
		}
	}
	return nil
}
