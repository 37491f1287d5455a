package trace

import (
	"context"
	"os"

	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/exporters/stdout/stdouttrace"
	"go.opentelemetry.io/otel/sdk/resource"
	sdktrace "go.opentelemetry.io/otel/sdk/trace"
	semconv "go.opentelemetry.io/otel/semconv/v1.24.0"
	"go.opentelemetry.io/otel/trace"
)

const serviceName = "krx-trader"

// Span attributes shared by runner and broker spans.
const (
	AttrRunner  = attribute.Key("krx.runner")
	AttrMode    = attribute.Key("krx.mode")
	AttrSession = attribute.Key("krx.session")
	AttrSymbol  = attribute.Key("krx.symbol")
	AttrSide    = attribute.Key("krx.side")
)

var (
	tracer         trace.Tracer
	tracerProvider *sdktrace.TracerProvider
	enabled        bool
)

// Init installs a stdout span exporter when LOG_TRACING_ENABLED is true.
func Init() error {
	enabled = os.Getenv("LOG_TRACING_ENABLED") == "true"
	if !enabled {
		return nil
	}

	exporter, err := stdouttrace.New(stdouttrace.WithPrettyPrint())
	if err != nil {
		enabled = false
		return err
	}

	res, err := resource.New(
		context.Background(),
		resource.WithAttributes(
			semconv.ServiceName(serviceName),
			semconv.ServiceVersion("1.0.0"),
		),
	)
	if err != nil {
		enabled = false
		return err
	}

	tracerProvider = sdktrace.NewTracerProvider(
		sdktrace.WithBatcher(exporter),
		sdktrace.WithResource(res),
	)
	otel.SetTracerProvider(tracerProvider)
	tracer = otel.Tracer(serviceName)
	return nil
}

func Shutdown(ctx context.Context) error {
	if tracerProvider != nil {
		return tracerProvider.Shutdown(ctx)
	}
	return nil
}

type sessionKey struct{}

// WithSession tags ctx with a runner session. Every span started below it
// carries the runner, mode and session id.
func WithSession(ctx context.Context, runner, mode, session string) context.Context {
	attrs := []attribute.KeyValue{
		AttrRunner.String(runner),
		AttrMode.String(mode),
		AttrSession.String(session),
	}
	return context.WithValue(ctx, sessionKey{}, attrs)
}

// SessionAttributes returns the attributes set by WithSession, if any.
func SessionAttributes(ctx context.Context) []attribute.KeyValue {
	attrs, _ := ctx.Value(sessionKey{}).([]attribute.KeyValue)
	return attrs
}

// Symbol marks a span as acting on one stock.
func Symbol(symbol string) trace.SpanStartOption {
	return trace.WithAttributes(AttrSymbol.String(symbol))
}

// Order marks a span as placing an order.
func Order(symbol, side string) trace.SpanStartOption {
	return trace.WithAttributes(AttrSymbol.String(symbol), AttrSide.String(side))
}

// StartSpan starts a span that inherits the session attributes of ctx. It
// is a no-op when tracing is disabled.
func StartSpan(ctx context.Context, spanName string, opts ...trace.SpanStartOption) (context.Context, trace.Span) {
	if !enabled || tracer == nil {
		return ctx, trace.SpanFromContext(ctx)
	}
	if attrs := SessionAttributes(ctx); len(attrs) > 0 {
		opts = append(opts, trace.WithAttributes(attrs...))
	}
	return tracer.Start(ctx, spanName, opts...)
}

func Enabled() bool {
	return enabled
}

// GetTraceFields returns the ids of the span in ctx for log correlation.
func GetTraceFields(ctx context.Context) (traceID, spanID string, ok bool) {
	if !enabled {
		return "", "", false
	}
	sc := trace.SpanFromContext(ctx).SpanContext()
	if !sc.IsValid() {
		return "", "", false
	}
	return sc.TraceID().String(), sc.SpanID().String(), true
}
