package observability

import (
	"context"
	"os"
	"path/filepath"

	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	"go.opentelemetry.io/otel/exporters/stdout/stdouttrace"
	"go.opentelemetry.io/otel/sdk/resource"
	sdktrace "go.opentelemetry.io/otel/sdk/trace"
	"go.opentelemetry.io/otel/trace"

	scigoErrors "github.com/YuminosukeSato/robotdetect/pkg/errors"
)

// InstrumentationName is the tracer name used by the pipeline packages.
const InstrumentationName = "github.com/YuminosukeSato/robotdetect"

// TraceConfig configures tracing.
type TraceConfig struct {
	// ServiceName identifies this program in traces.
	ServiceName string

	// ServiceVersion identifies the program version.
	ServiceVersion string

	// SamplingRate is the fraction of traces recorded (0.0 to 1.0).
	// Defaults to 1.0.
	SamplingRate float64

	// Exporter receives finished spans. If nil, tracing is a no-op.
	Exporter sdktrace.SpanExporter

	// Attributes are extra resource attributes attached to every span.
	Attributes map[string]string
}

// Tracer wraps an OpenTelemetry tracer provider.
//
// Usage:
//
//	tracer, shutdown := observability.NewTracer(observability.TraceConfig{
//	    ServiceName: "robotdetect",
//	    Exporter:    exporter,
//	})
//	defer shutdown(context.Background())
//
//	ctx, span := tracer.Start(ctx, "search")
//	defer span.End()
type Tracer struct {
	provider *sdktrace.TracerProvider
	tracer   trace.Tracer
	config   TraceConfig
}

// NewTracer creates a tracer and installs it as the global provider so that
// spans started through otel.Tracer(InstrumentationName) are exported.
// Returns the tracer and a shutdown function that flushes pending spans.
func NewTracer(config TraceConfig) (*Tracer, func(context.Context) error) {
	if config.ServiceName == "" {
		config.ServiceName = "robotdetect"
	}
	if config.Exporter == nil {
		return &Tracer{
			tracer: otel.Tracer(InstrumentationName),
			config: config,
		}, func(context.Context) error { return nil }
	}
	if config.SamplingRate == 0 {
		config.SamplingRate = 1.0
	}

	attrs := []attribute.KeyValue{
		attribute.String("service.name", config.ServiceName),
	}
	if config.ServiceVersion != "" {
		attrs = append(attrs, attribute.String("service.version", config.ServiceVersion))
	}
	for k, v := range config.Attributes {
		attrs = append(attrs, attribute.String(k, v))
	}

	provider := sdktrace.NewTracerProvider(
		sdktrace.WithSyncer(config.Exporter),
		sdktrace.WithResource(resource.NewSchemaless(attrs...)),
		sdktrace.WithSampler(sdktrace.ParentBased(sdktrace.TraceIDRatioBased(config.SamplingRate))),
	)
	otel.SetTracerProvider(provider)

	return &Tracer{
		provider: provider,
		tracer:   provider.Tracer(InstrumentationName),
		config:   config,
	}, provider.Shutdown
}

// NewFileTracer installs a global tracer whose spans are written as JSON
// documents to path. The returned shutdown flushes the spans and closes the
// file.
func NewFileTracer(path string, config TraceConfig) (*Tracer, func(context.Context) error, error) {
	if err := os.MkdirAll(filepath.Dir(path), 0o755); err != nil {
		return nil, nil, scigoErrors.Wrapf(err, "failed to create trace directory for %s", path)
	}
	f, err := os.Create(path)
	if err != nil {
		return nil, nil, scigoErrors.Wrapf(err, "failed to create trace file %s", path)
	}
	exporter, err := stdouttrace.New(stdouttrace.WithWriter(f))
	if err != nil {
		_ = f.Close()
		return nil, nil, scigoErrors.Wrap(err, "failed to create span exporter")
	}

	config.Exporter = exporter
	tracer, shutdown := NewTracer(config)
	return tracer, func(ctx context.Context) error {
		err := shutdown(ctx)
		if cerr := f.Close(); err == nil && cerr != nil {
			err = scigoErrors.Wrapf(cerr, "failed to close trace file %s", path)
		}
		return err
	}, nil
}

// Start begins a span.
func (t *Tracer) Start(ctx context.Context, name string, attrs ...attribute.KeyValue) (context.Context, trace.Span) {
	return t.tracer.Start(ctx, name, trace.WithAttributes(attrs...))
}

// StartSpan begins a span on the global provider. Pipeline packages use it
// so they need no Tracer handle.
func StartSpan(ctx context.Context, name string, attrs ...attribute.KeyValue) (context.Context, trace.Span) {
	return otel.Tracer(InstrumentationName).Start(ctx, name, trace.WithAttributes(attrs...))
}

// RecordError marks span as failed with err. A nil err is ignored.
func RecordError(span trace.Span, err error) {
	if err == nil {
		return
	}
	span.RecordError(err)
	span.SetStatus(codes.Error, err.Error())
}
