// Package telemetry provides OpenTelemetry tracing for Web API calls and
// Socket Mode connections.
package telemetry

import (
	"context"
	"sync"

	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	"go.opentelemetry.io/otel/trace"
	"go.opentelemetry.io/otel/trace/noop"
)

const instrumentationName = "github.com/abdolence/slack-morphism-go"

// Tracer wraps an OpenTelemetry tracer with helpers for this module's spans.
type Tracer struct {
	tracer trace.Tracer
}

var (
	globalTracer *Tracer
	tracerMu     sync.RWMutex
)

// SetGlobalTracer sets the tracer returned by GetTracer.
func SetGlobalTracer(t *Tracer) {
	tracerMu.Lock()
	defer tracerMu.Unlock()
	globalTracer = t
}

// GetTracer returns the global tracer, or a no-op tracer if none was set.
func GetTracer() *Tracer {
	tracerMu.RLock()
	defer tracerMu.RUnlock()
	if globalTracer == nil {
		return &Tracer{tracer: noop.NewTracerProvider().Tracer("")}
	}
	return globalTracer
}

// NewTracer creates a tracer from the global OpenTelemetry provider.
func NewTracer(name string) *Tracer {
	if name == "" {
		name = instrumentationName
	}
	return &Tracer{tracer: otel.Tracer(name)}
}

// NewTracerFromProvider creates a tracer from an explicit provider.
func NewTracerFromProvider(tp trace.TracerProvider) *Tracer {
	return &Tracer{tracer: tp.Tracer(instrumentationName)}
}

// StartSpan starts a new span with the given name.
func (t *Tracer) StartSpan(ctx context.Context, name string, opts ...trace.SpanStartOption) (context.Context, trace.Span) {
	return t.tracer.Start(ctx, name, opts...)
}

// --- API Spans ---

// APISpanOptions is recorded when an API call span ends.
type APISpanOptions struct {
	RequestID  string
	TeamID     string
	HTTPStatus int
	Retries    int
	APIError   string
}

// StartAPISpan starts a client span for one Web API method, covering
// throttling waits and retries.
func (t *Tracer) StartAPISpan(ctx context.Context, method string) (context.Context, trace.Span) {
	ctx, span := t.tracer.Start(ctx, "slack.api."+method, trace.WithSpanKind(trace.SpanKindClient))
	span.SetAttributes(attribute.String("slack.method", method))
	return ctx, span
}

// EndAPISpan ends an API span with attributes.
func (t *Tracer) EndAPISpan(span trace.Span, opts APISpanOptions, err error) {
	attrs := []attribute.KeyValue{
		attribute.String("slack.request_id", opts.RequestID),
		attribute.Int("slack.retries", opts.Retries),
	}
	if opts.TeamID != "" {
		attrs = append(attrs, attribute.String("slack.team_id", opts.TeamID))
	}
	if opts.HTTPStatus != 0 {
		attrs = append(attrs, attribute.Int("http.response.status_code", opts.HTTPStatus))
	}
	if opts.APIError != "" {
		attrs = append(attrs, attribute.String("slack.error", opts.APIError))
	}
	span.SetAttributes(attrs...)
	endWithError(span, err)
}

// --- Socket Mode Spans ---

// StartConnectionSpan starts a span for one Socket Mode connect attempt.
func (t *Tracer) StartConnectionSpan(ctx context.Context, clientID string) (context.Context, trace.Span) {
	ctx, span := t.tracer.Start(ctx, "slack.socket_mode.connect", trace.WithSpanKind(trace.SpanKindClient))
	span.SetAttributes(attribute.String("slack.socket_mode.client_id", clientID))
	return ctx, span
}

// EndConnectionSpan ends a connection span.
func (t *Tracer) EndConnectionSpan(span trace.Span, err error) {
	endWithError(span, err)
}

// StartEnvelopeSpan starts a span for processing one inbound envelope.
func (t *Tracer) StartEnvelopeSpan(ctx context.Context, envelopeType, envelopeID string) (context.Context, trace.Span) {
	ctx, span := t.tracer.Start(ctx, "slack.socket_mode."+envelopeType, trace.WithSpanKind(trace.SpanKindConsumer))
	if envelopeID != "" {
		span.SetAttributes(attribute.String("slack.envelope_id", envelopeID))
	}
	return ctx, span
}

// EndEnvelopeSpan ends an envelope span, recording whether it was acknowledged.
func (t *Tracer) EndEnvelopeSpan(span trace.Span, acked bool, err error) {
	span.SetAttributes(attribute.Bool("slack.acked", acked))
	endWithError(span, err)
}

func endWithError(span trace.Span, err error) {
	if err != nil {
		span.RecordError(err)
		span.SetStatus(codes.Error, err.Error())
	} else {
		span.SetStatus(codes.Ok, "")
	}
	span.End()
}
