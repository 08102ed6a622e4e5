package telemetry

import (
	"context"
	"errors"
	"fmt"
	"os"
	"strings"
	"time"

	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/exporters/otlp/otlptrace/otlptracegrpc"
	"go.opentelemetry.io/otel/exporters/otlp/otlptrace/otlptracehttp"
	"go.opentelemetry.io/otel/propagation"
	"go.opentelemetry.io/otel/sdk/resource"
	sdktrace "go.opentelemetry.io/otel/sdk/trace"
	semconv "go.opentelemetry.io/otel/semconv/v1.26.0"
)

// DefaultServiceName is reported when neither the config nor
// OTEL_SERVICE_NAME sets one.
const DefaultServiceName = "slack-morphism"

// OTLP transports.
const (
	ProtocolGRPC = "grpc"
	ProtocolHTTP = "http"
)

var (
	// ErrNoEndpoint is returned when neither the config nor the environment
	// names an OTLP collector.
	ErrNoEndpoint = errors.New("telemetry endpoint not configured (set endpoint or OTEL_EXPORTER_OTLP_ENDPOINT)")

	// ErrUnknownProtocol is returned for a protocol other than grpc or http.
	ErrUnknownProtocol = errors.New("unknown OTLP protocol")
)

// ProviderConfig describes where spans are exported. Empty fields fall back
// to the standard OTEL_* environment variables.
type ProviderConfig struct {
	ServiceName    string
	ServiceVersion string

	// Endpoint is a collector address, with or without a scheme. An
	// "http://" scheme implies Insecure.
	Endpoint string

	// Protocol is ProtocolGRPC (default) or ProtocolHTTP.
	Protocol string

	Insecure bool
	Headers  map[string]string

	// SampleRatio keeps that share of root traces. Values outside (0,1)
	// keep everything.
	SampleRatio float64

	BatchTimeout  time.Duration
	ExportTimeout time.Duration
}

// collector is a ProviderConfig after env fallbacks.
type collector struct {
	address  string
	protocol string
	insecure bool
	service  string
}

func (cfg ProviderConfig) resolve() (collector, error) {
	c := collector{
		address:  firstNonEmpty(cfg.Endpoint, os.Getenv("OTEL_EXPORTER_OTLP_ENDPOINT")),
		protocol: firstNonEmpty(cfg.Protocol, ProtocolGRPC),
		insecure: cfg.Insecure,
		service:  firstNonEmpty(cfg.ServiceName, os.Getenv("OTEL_SERVICE_NAME"), DefaultServiceName),
	}
	if c.address == "" {
		return collector{}, ErrNoEndpoint
	}
	if rest, ok := strings.CutPrefix(c.address, "http://"); ok {
		c.address, c.insecure = rest, true
	}
	c.address = strings.TrimPrefix(c.address, "https://")
	c.address = strings.TrimSuffix(c.address, "/")

	if c.protocol != ProtocolGRPC && c.protocol != ProtocolHTTP {
		return collector{}, fmt.Errorf("%w: %q", ErrUnknownProtocol, c.protocol)
	}
	return c, nil
}

func (cfg ProviderConfig) sampler() sdktrace.Sampler {
	if cfg.SampleRatio > 0 && cfg.SampleRatio < 1 {
		return sdktrace.ParentBased(sdktrace.TraceIDRatioBased(cfg.SampleRatio))
	}
	return sdktrace.ParentBased(sdktrace.AlwaysSample())
}

// Provider owns the SDK tracer provider. Call Shutdown to flush spans.
type Provider struct {
	tp     *sdktrace.TracerProvider
	tracer *Tracer
}

// InitProvider builds an OTLP exporting provider, installs it and the W3C
// propagators globally, and makes its tracer the package default.
func InitProvider(ctx context.Context, cfg ProviderConfig) (*Provider, error) {
	c, err := cfg.resolve()
	if err != nil {
		return nil, err
	}

	res, err := resource.Merge(resource.Default(), resource.NewWithAttributes(
		semconv.SchemaURL,
		semconv.ServiceName(c.service),
		semconv.ServiceVersion(cfg.ServiceVersion),
		attribute.String("slack.client", instrumentationName),
	))
	if err != nil {
		return nil, fmt.Errorf("telemetry resource: %w", err)
	}

	exporter, err := c.exporter(ctx, cfg)
	if err != nil {
		return nil, fmt.Errorf("otlp %s exporter for %s: %w", c.protocol, c.address, err)
	}

	var batching []sdktrace.BatchSpanProcessorOption
	if cfg.BatchTimeout > 0 {
		batching = append(batching, sdktrace.WithBatchTimeout(cfg.BatchTimeout))
	}

	tp := sdktrace.NewTracerProvider(
		sdktrace.WithResource(res),
		sdktrace.WithSampler(cfg.sampler()),
		sdktrace.WithBatcher(exporter, batching...),
	)
	otel.SetTracerProvider(tp)
	otel.SetTextMapPropagator(propagation.NewCompositeTextMapPropagator(
		propagation.TraceContext{},
		propagation.Baggage{},
	))

	p := &Provider{tp: tp, tracer: NewTracerFromProvider(tp)}
	SetGlobalTracer(p.tracer)
	return p, nil
}

func (c collector) exporter(ctx context.Context, cfg ProviderConfig) (sdktrace.SpanExporter, error) {
	if c.protocol == ProtocolHTTP {
		opts := []otlptracehttp.Option{otlptracehttp.WithEndpoint(c.address)}
		if c.insecure {
			opts = append(opts, otlptracehttp.WithInsecure())
		}
		if len(cfg.Headers) > 0 {
			opts = append(opts, otlptracehttp.WithHeaders(cfg.Headers))
		}
		if cfg.ExportTimeout > 0 {
			opts = append(opts, otlptracehttp.WithTimeout(cfg.ExportTimeout))
		}
		return otlptracehttp.New(ctx, opts...)
	}

	opts := []otlptracegrpc.Option{otlptracegrpc.WithEndpoint(c.address)}
	if c.insecure {
		opts = append(opts, otlptracegrpc.WithInsecure())
	}
	if len(cfg.Headers) > 0 {
		opts = append(opts, otlptracegrpc.WithHeaders(cfg.Headers))
	}
	if cfg.ExportTimeout > 0 {
		opts = append(opts, otlptracegrpc.WithTimeout(cfg.ExportTimeout))
	}
	return otlptracegrpc.New(ctx, opts...)
}

func firstNonEmpty(values ...string) string {
	for _, v := range values {
		if v != "" {
			return v
		}
	}
	return ""
}

// Tracer returns the tracer bound to this provider.
func (p *Provider) Tracer() *Tracer {
	return p.tracer
}

// Shutdown flushes pending spans and stops exporting.
func (p *Provider) Shutdown(ctx context.Context) error {
	return p.tp.Shutdown(ctx)
}

// ForceFlush exports pending spans without stopping.
func (p *Provider) ForceFlush(ctx context.Context) error {
	return p.tp.ForceFlush(ctx)
}
