// Package tracing wires the OpenTelemetry SDK for the service.
package tracing

import (
	"context"
	"fmt"
	"os"

	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/exporters/otlp/otlptrace/otlptracegrpc"
	"go.opentelemetry.io/otel/exporters/otlp/otlptrace/otlptracehttp"
	"go.opentelemetry.io/otel/exporters/stdout/stdouttrace"
	"go.opentelemetry.io/otel/propagation"
	"go.opentelemetry.io/otel/sdk/resource"
	sdktrace "go.opentelemetry.io/otel/sdk/trace"
	semconv "go.opentelemetry.io/otel/semconv/v1.21.0"
	"go.opentelemetry.io/otel/trace"
	"google.golang.org/grpc/credentials/insecure"
	utilerrors "k8s.io/apimachinery/pkg/util/errors"

	options "github.com/kart-io/docqa/pkg/options/tracing"
)

// Provider manages the OpenTelemetry tracer provider lifecycle.
type Provider struct {
	tracerProvider *sdktrace.TracerProvider
	opts           *options.Options
}

// NewProvider creates and initializes a new tracer provider.
// When tracing is disabled the global provider is left untouched and
// every span started through this package is a no-op.
func NewProvider(opts *options.Options) (*Provider, error) {
	if opts == nil {
		opts = options.NewOptions()
	}
	if err := opts.Complete(); err != nil {
		return nil, fmt.Errorf("failed to complete options: %w", err)
	}
	if errs := opts.Validate(); len(errs) > 0 {
		return nil, utilerrors.NewAggregate(errs)
	}

	// W3C trace context 总是开启，provider 调用会透传上游的 traceparent
	otel.SetTextMapPropagator(propagation.NewCompositeTextMapPropagator(
		propagation.TraceContext{},
		propagation.Baggage{},
	))

	if !opts.Enabled {
		return &Provider{opts: opts}, nil
	}

	res, err := resource.New(context.Background(),
		resource.WithAttributes(
			semconv.ServiceName(opts.ServiceName),
			semconv.ServiceVersion(opts.ServiceVersion),
			semconv.DeploymentEnvironment(opts.Environment),
		),
		resource.WithFromEnv(),
		resource.WithTelemetrySDK(),
	)
	if err != nil {
		return nil, fmt.Errorf("failed to create resource: %w", err)
	}

	exporter, err := newExporter(context.Background(), opts)
	if err != nil {
		return nil, fmt.Errorf("failed to create exporter: %w", err)
	}

	tp := sdktrace.NewTracerProvider(
		sdktrace.WithResource(res),
		sdktrace.WithSampler(newSampler(opts)),
		sdktrace.WithBatcher(exporter, sdktrace.WithBatchTimeout(opts.BatchTimeout)),
	)
	otel.SetTracerProvider(tp)

	return &Provider{
		tracerProvider: tp,
		opts:           opts,
	}, nil
}

// Enabled reports whether spans are exported.
func (p *Provider) Enabled() bool {
	return p.tracerProvider != nil
}

// Tracer returns a tracer with the given name.
func (p *Provider) Tracer(name string, opts ...trace.TracerOption) trace.Tracer {
	if p.tracerProvider == nil {
		return otel.Tracer(name, opts...)
	}
	return p.tracerProvider.Tracer(name, opts...)
}

// Shutdown flushes pending spans and releases the exporter.
func (p *Provider) Shutdown(ctx context.Context) error {
	if p.tracerProvider == nil {
		return nil
	}
	return p.tracerProvider.Shutdown(ctx)
}

func newExporter(ctx context.Context, opts *options.Options) (sdktrace.SpanExporter, error) {
	switch opts.ExporterType {
	case options.ExporterOTLPGRPC:
		grpcOpts := []otlptracegrpc.Option{otlptracegrpc.WithEndpoint(opts.Endpoint)}
		if opts.Insecure {
			grpcOpts = append(grpcOpts, otlptracegrpc.WithTLSCredentials(insecure.NewCredentials()))
		}
		if len(opts.Headers) > 0 {
			grpcOpts = append(grpcOpts, otlptracegrpc.WithHeaders(opts.Headers))
		}
		return otlptracegrpc.New(ctx, grpcOpts...)
	case options.ExporterOTLPHTTP:
		httpOpts := []otlptracehttp.Option{otlptracehttp.WithEndpoint(opts.Endpoint)}
		if opts.Insecure {
			httpOpts = append(httpOpts, otlptracehttp.WithInsecure())
		}
		if len(opts.Headers) > 0 {
			httpOpts = append(httpOpts, otlptracehttp.WithHeaders(opts.Headers))
		}
		return otlptracehttp.New(ctx, httpOpts...)
	case options.ExporterStdout:
		return stdouttrace.New(stdouttrace.WithWriter(os.Stdout))
	case options.ExporterNoop:
		return noopExporter{}, nil
	default:
		return nil, fmt.Errorf("unsupported exporter type: %s", opts.ExporterType)
	}
}

type noopExporter struct{}

func (noopExporter) ExportSpans(context.Context, []sdktrace.ReadOnlySpan) error { return nil }
func (noopExporter) Shutdown(context.Context) error { return nil }

func newSampler(opts *options.Options) sdktrace.Sampler {
	switch opts.SamplerType {
	case options.SamplerAlwaysOn:
		return sdktrace.AlwaysSample()
	case options.SamplerAlwaysOff:
		return sdktrace.NeverSample()
	case options.SamplerRatio:
		return sdktrace.TraceIDRatioBased(opts.SamplerRatio)
	default:
		return sdktrace.ParentBased(sdktrace.TraceIDRatioBased(opts.SamplerRatio))
	}
}
