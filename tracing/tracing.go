package tracing

import (
	"context"
	"io"
	"os"
	"sort"
	"sync"

	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	"go.opentelemetry.io/otel/exporters/stdout/stdouttrace"
	"go.opentelemetry.io/otel/sdk/resource"
	sdktrace "go.opentelemetry.io/otel/sdk/trace"
	"go.opentelemetry.io/otel/trace"
)

const tracerName = "github.com/viant/fluxgate"

// Attribute keys shared by every span of the engine.
const (
	RunID          = "run.id"
	StepID         = "step.id"
	OperationKind  = "operation.kind"
	TransitionFrom = "step.from"
	TransitionTo   = "step.to"
)

var (
	providerOnce sync.Once
	providerErr  error
)

// Init installs a tracer provider exporting to os.Stdout or, when outputFile
// is set, to that file. Only the first call has an effect.
func Init(serviceName, serviceVersion, outputFile string) error {
	var w io.Writer = os.Stdout
	if outputFile != "" {
		f, err := os.Create(outputFile)
		if err != nil {
			return err
		}
		w = f
	}
	exporter, err := stdouttrace.New(stdouttrace.WithWriter(w))
	if err != nil {
		return err
	}
	return InitWithExporter(serviceName, serviceVersion, exporter)
}

// InitWithExporter installs a tracer provider exporting to exporter. Only the
// first call has an effect.
func InitWithExporter(serviceName, serviceVersion string, exporter sdktrace.SpanExporter) error {
	if exporter == nil {
		return nil
	}
	providerOnce.Do(func() {
		res, err := resource.New(context.Background(),
			resource.WithAttributes(
				attribute.String("service.name", serviceName),
				attribute.String("service.version", serviceVersion),
			),
		)
		if err != nil {
			providerErr = err
			return
		}
		otel.SetTracerProvider(sdktrace.NewTracerProvider(
			sdktrace.WithSpanProcessor(sdktrace.NewSimpleSpanProcessor(exporter)),
			sdktrace.WithResource(res),
		))
	})
	return providerErr
}

// Span wraps an OpenTelemetry span. A nil *Span is a valid no-op span.
type Span struct {
	span trace.Span
}

// StartSpan starts an internal span, a child of the span in ctx if any.
func StartSpan(ctx context.Context, name string) (context.Context, *Span) {
	return start(ctx, name, trace.SpanKindInternal)
}

// StartClientSpan starts a span around a call to an external system such as
// an audit sink or an executor.
func StartClientSpan(ctx context.Context, name string) (context.Context, *Span) {
	return start(ctx, name, trace.SpanKindClient)
}

func start(ctx context.Context, name string, kind trace.SpanKind) (context.Context, *Span) {
	if ctx == nil {
		ctx = context.Background()
	}
	ctx, span := otel.Tracer(tracerName).Start(ctx, name, trace.WithSpanKind(kind))
	return ctx, &Span{span: span}
}

// WithAttributes sets string attributes on the span.
func (s *Span) WithAttributes(attrs map[string]string) *Span {
	if s == nil || len(attrs) == 0 {
		return s
	}
	s.span.SetAttributes(toAttributes(attrs)...)
	return s
}

// Transition records a step status change as a span event.
func (s *Span) Transition(stepID, from, to string) {
	if s == nil {
		return
	}
	s.span.AddEvent("step.transition", trace.WithAttributes(toAttributes(map[string]string{
		StepID: stepID, TransitionFrom: from, TransitionTo: to,
	})...))
}

// EndSpan sets the span status from err and ends it.
func EndSpan(s *Span, err error) {
	if s == nil {
		return
	}
	if err != nil {
		s.span.RecordError(err)
		s.span.SetStatus(codes.Error, err.Error())
	} else {
		s.span.SetStatus(codes.Ok, "")
	}
	s.span.End()
}

// SpanFromContext returns the recording span of ctx, or nil.
func SpanFromContext(ctx context.Context) *Span {
	span := trace.SpanFromContext(ctx)
	if !span.SpanContext().IsValid() {
		return nil
	}
	return &Span{span: span}
}

func toAttributes(attrs map[string]string) []attribute.KeyValue {
	keys := make([]string, 0, len(attrs))
	for key := range attrs {
		keys = append(keys, key)
	}
	sort.Strings(keys)
	ret := make([]attribute.KeyValue, 0, len(keys))
	for _, key := range keys {
		ret = append(ret, attribute.String(key, attrs[key]))
	}
	return ret
}
