package observability

import (
	"context"
	"io"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	otelprom "go.opentelemetry.io/otel/exporters/prometheus"
	"go.opentelemetry.io/otel/exporters/stdout/stdouttrace"
	otelmetric "go.opentelemetry.io/otel/metric"
	"go.opentelemetry.io/otel/sdk/metric"
	sdktrace "go.opentelemetry.io/otel/sdk/trace"
	"go.opentelemetry.io/otel/trace"
	"go.opentelemetry.io/otel/trace/noop"
	"go.uber.org/zap"
)

// Observability owns the OpenTelemetry meter and tracer providers. Every method is
// safe on a nil or partially built value.
type Observability struct {
	meterProvider    *metric.MeterProvider
	tracerProvider   *sdktrace.TracerProvider
	tracer           trace.Tracer
	analysisCounter  otelmetric.Int64Counter
	analysisDuration otelmetric.Float64Histogram
}

// New wires the otel meter into reg through the Prometheus exporter. A nil reg means
// prometheus.DefaultRegisterer. Spans are written as JSON lines to traces; a nil
// traces writer leaves tracing as a no-op.
func New(serviceName string, reg prometheus.Registerer, traces io.Writer) *Observability {
	if reg == nil {
		reg = prometheus.DefaultRegisterer
	}

	o := &Observability{tracer: noop.NewTracerProvider().Tracer(serviceName)}
	if traces != nil {
		spanExporter, err := stdouttrace.New(stdouttrace.WithWriter(traces))
		if err != nil {
			zap.L().Warn("failed to create span exporter", zap.Error(err))
		} else {
			tp := sdktrace.NewTracerProvider(sdktrace.WithBatcher(spanExporter))
			otel.SetTracerProvider(tp)
			o.tracerProvider = tp
			o.tracer = tp.Tracer(serviceName)
		}
	}

	exporter, err := otelprom.New(otelprom.WithRegisterer(reg))
	if err != nil {
		zap.L().Warn("failed to create prometheus exporter", zap.Error(err))
		return o
	}

	provider := metric.NewMeterProvider(metric.WithReader(exporter))
	otel.SetMeterProvider(provider)
	meter := provider.Meter(serviceName)

	o.meterProvider = provider
	o.analysisCounter, _ = meter.Int64Counter(
		"caseworker.analysis.count",
		otelmetric.WithDescription("Number of case analyses"),
	)
	o.analysisDuration, _ = meter.Float64Histogram(
		"caseworker.analysis.duration",
		otelmetric.WithDescription("Case analysis duration"),
		otelmetric.WithUnit("ms"),
	)
	return o
}

// StartSpan starts a span named op. The returned span is never nil.
func (o *Observability) StartSpan(ctx context.Context, op string, attrs ...attribute.KeyValue) (context.Context, trace.Span) {
	if o == nil || o.tracer == nil {
		return noop.NewTracerProvider().Tracer("").Start(ctx, op)
	}
	return o.tracer.Start(ctx, op, trace.WithAttributes(attrs...))
}

func (o *Observability) RecordAnalysis(ctx context.Context, duration time.Duration, riskLevel, source string) {
	if o == nil {
		return
	}
	attrs := otelmetric.WithAttributes(
		attribute.String("risk_level", riskLevel),
		attribute.String("explanation_source", source),
	)
	if o.analysisCounter != nil {
		o.analysisCounter.Add(ctx, 1, attrs)
	}
	if o.analysisDuration != nil {
		o.analysisDuration.Record(ctx, float64(duration.Microseconds())/1000, attrs)
	}
}

func (o *Observability) Shutdown() {
	if o == nil {
		return
	}
	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	if o.meterProvider != nil {
		_ = o.meterProvider.Shutdown(ctx)
	}
	if o.tracerProvider != nil {
		if err := o.tracerProvider.Shutdown(ctx); err != nil {
			zap.L().Warn("span exporter shutdown failed", zap.Error(err))
		}
	}
}
