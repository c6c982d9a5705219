package observability

import (
	"context"
	"fmt"
	"time"

	"statement-analyzer/internal/common/config"

	promclient "github.com/prometheus/client_golang/prometheus"
	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/exporters/otlp/otlptrace/otlptracegrpc"
	"go.opentelemetry.io/otel/exporters/prometheus"
	"go.opentelemetry.io/otel/exporters/stdout/stdouttrace"
	otelmetric "go.opentelemetry.io/otel/metric"
	"go.opentelemetry.io/otel/propagation"
	"go.opentelemetry.io/otel/sdk/metric"
	"go.opentelemetry.io/otel/sdk/resource"
	sdktrace "go.opentelemetry.io/otel/sdk/trace"
	"go.opentelemetry.io/otel/trace"
)

// Observability bundles the OTel meter used for analysis metrics and the
// tracer used to wrap upstream calls.
type Observability struct {
	meterProvider    *metric.MeterProvider
	tracerProvider   *sdktrace.TracerProvider
	tracer           trace.Tracer
	analysisCounter  otelmetric.Int64Counter
	analysisDuration otelmetric.Float64Histogram
	jobCounter       otelmetric.Int64Counter
	jobDuration      otelmetric.Float64Histogram
}

// New registers the metric exporter with the default Prometheus registerer so
// the OTel instruments show up on /metrics next to the promauto ones, and
// installs the global tracer provider selected by tracing.Exporter.
func New(ctx context.Context, serviceName string, tracing config.TracingConfig) (*Observability, error) {
	return NewWithRegisterer(ctx, serviceName, tracing, promclient.DefaultRegisterer)
}

func NewWithRegisterer(ctx context.Context, serviceName string, tracing config.TracingConfig, reg promclient.Registerer) (*Observability, error) {
	exporter, err := newSpanExporter(ctx, tracing)
	if err != nil {
		return nil, fmt.Errorf("create span exporter: %w", err)
	}
	return newObservability(serviceName, reg, exporter, tracing.SampleRatio), nil
}

// newSpanExporter returns nil for the none exporter.
func newSpanExporter(ctx context.Context, tracing config.TracingConfig) (sdktrace.SpanExporter, error) {
	switch tracing.Exporter {
	case "", config.TraceExporterNone:
		return nil, nil
	case config.TraceExporterStdout:
		return stdouttrace.New(stdouttrace.WithPrettyPrint())
	case config.TraceExporterOTLP:
		opts := []otlptracegrpc.Option{otlptracegrpc.WithEndpoint(tracing.OTLPEndpoint)}
		if tracing.OTLPInsecure {
			opts = append(opts, otlptracegrpc.WithInsecure())
		}
		return otlptracegrpc.New(ctx, opts...)
	default:
		return nil, fmt.Errorf("unknown trace exporter %q", tracing.Exporter)
	}
}

func newObservability(serviceName string, reg promclient.Registerer, spans sdktrace.SpanExporter, sampleRatio float64) *Observability {
	obs := &Observability{}

	res := resource.NewSchemaless(attribute.String("service.name", serviceName))

	if spans != nil {
		if sampleRatio <= 0 || sampleRatio > 1 {
			sampleRatio = 1
		}
		obs.tracerProvider = sdktrace.NewTracerProvider(
			sdktrace.WithBatcher(spans),
			sdktrace.WithResource(res),
			sdktrace.WithSampler(sdktrace.ParentBased(sdktrace.TraceIDRatioBased(sampleRatio))),
		)
		otel.SetTracerProvider(obs.tracerProvider)
		otel.SetTextMapPropagator(propagation.NewCompositeTextMapPropagator(
			propagation.TraceContext{},
			propagation.Baggage{},
		))
		obs.tracer = obs.tracerProvider.Tracer(serviceName)
	} else {
		obs.tracer = otel.Tracer(serviceName)
	}

	exporter, err := prometheus.New(prometheus.WithRegisterer(reg))
	if err != nil {
		otel.Handle(err)
		return obs
	}

	provider := metric.NewMeterProvider(metric.WithReader(exporter), metric.WithResource(res))
	otel.SetMeterProvider(provider)
	meter := provider.Meter(serviceName)

	obs.meterProvider = provider
	obs.analysisCounter, _ = meter.Int64Counter(
		"analyses.processed",
		otelmetric.WithDescription("Number of statements analyzed"),
	)
	obs.analysisDuration, _ = meter.Float64Histogram(
		"analyses.duration",
		otelmetric.WithDescription("Statement analysis duration"),
		otelmetric.WithUnit("ms"),
	)
	obs.registerJobInstruments(meter)
	return obs
}

// StartSpan starts a span named name under ctx.
func (o *Observability) StartSpan(ctx context.Context, name string, attrs ...attribute.KeyValue) (context.Context, trace.Span) {
	tracer := o.tracer
	if tracer == nil {
		tracer = otel.Tracer("statement-analyzer")
	}
	return tracer.Start(ctx, name, trace.WithAttributes(attrs...))
}

// RecordAnalysis records one finished analysis with its result code and
// whether the verdict was flagged.
func (o *Observability) RecordAnalysis(ctx context.Context, duration time.Duration, code string, flagged bool) {
	opts := otelmetric.WithAttributes(
		attribute.String("code", code),
		attribute.Bool("flagged", flagged),
	)
	if o.analysisCounter != nil {
		o.analysisCounter.Add(ctx, 1, opts)
	}
	if o.analysisDuration != nil {
		o.analysisDuration.Record(ctx, float64(duration.Milliseconds()), opts)
	}
}

// Shutdown flushes pending spans and stops both providers.
func (o *Observability) Shutdown() {
	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()

	if o.tracerProvider != nil {
		if err := o.tracerProvider.Shutdown(ctx); err != nil {
			otel.Handle(err)
		}
	}
	if o.meterProvider != nil {
		_ = o.meterProvider.Shutdown(ctx)
	}
}
