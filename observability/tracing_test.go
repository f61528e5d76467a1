package observability

import (
	"context"
	"errors"
	"os"
	"path/filepath"
	"strings"
	"testing"

	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	"go.opentelemetry.io/otel/sdk/trace/tracetest"
)

func TestNewTracerNoop(t *testing.T) {
	tracer, shutdown := NewTracer(TraceConfig{ServiceName: "test-service"})
	defer func() { _ = shutdown(context.Background()) }()

	if tracer == nil || tracer.tracer == nil {
		t.Fatal("NewTracer() returned nil tracer")
	}
	_, span := tracer.Start(context.Background(), "noop")
	span.End()
}

func TestTracerExportsSpans(t *testing.T) {
	prev := otel.GetTracerProvider()
	defer otel.SetTracerProvider(prev)

	exporter := tracetest.NewInMemoryExporter()
	tracer, shutdown := NewTracer(TraceConfig{
		ServiceName:    "test-service",
		ServiceVersion: "0.1.0",
		Exporter:       exporter,
	})
	defer func() { _ = shutdown(context.Background()) }()

	ctx, parent := tracer.Start(context.Background(), "run", attribute.Int("search.n_trials", 5))
	_, child := StartSpan(ctx, "trial")
	RecordError(child, errors.New("boom"))
	child.End()
	RecordError(parent, nil)
	parent.End()

	spans := exporter.GetSpans()
	if len(spans) != 2 {
		t.Fatalf("expected 2 spans, got %d", len(spans))
	}
	if spans[0].Name != "trial" || spans[1].Name != "run" {
		t.Errorf("span names = %q, %q", spans[0].Name, spans[1].Name)
	}
	if spans[0].Parent.SpanID() != spans[1].SpanContext.SpanID() {
		t.Error("trial span should be a child of run")
	}
	if spans[0].Status.Code != codes.Error {
		t.Errorf("trial status = %v, want Error", spans[0].Status.Code)
	}
	if spans[1].Status.Code == codes.Error {
		t.Error("nil error must not mark the span failed")
	}
}

func TestNewFileTracerWritesSpans(t *testing.T) {
	prev := otel.GetTracerProvider()
	defer otel.SetTracerProvider(prev)

	path := filepath.Join(t.TempDir(), "nested", "traces.json")
	tracer, shutdown, err := NewFileTracer(path, TraceConfig{ServiceName: "test-service", SamplingRate: 1})
	if err != nil {
		t.Fatalf("NewFileTracer() error = %v", err)
	}
	_, span := tracer.Start(context.Background(), "pipeline.Run")
	span.End()
	if err := shutdown(context.Background()); err != nil {
		t.Fatalf("shutdown() error = %v", err)
	}

	data, err := os.ReadFile(path)
	if err != nil {
		t.Fatal(err)
	}
	if !strings.Contains(string(data), `"Name":"pipeline.Run"`) {
		t.Errorf("trace file does not contain the span: %s", data)
	}
}

func TestNewFileTracerBadPath(t *testing.T) {
	blocker := filepath.Join(t.TempDir(), "file")
	if err := os.WriteFile(blocker, nil, 0o644); err != nil {
		t.Fatal(err)
	}
	if _, _, err := NewFileTracer(filepath.Join(blocker, "traces.json"), TraceConfig{}); err == nil {
		t.Error("expected an error when the parent is a regular file")
	}
}
