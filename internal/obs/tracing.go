package obs

import (
	"context"
	"fmt"
	"strings"

	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/exporters/otlp/otlptrace/otlptracehttp"
	"go.opentelemetry.io/otel/propagation"
	"go.opentelemetry.io/otel/sdk/resource"
	sdktrace "go.opentelemetry.io/otel/sdk/trace"
	semconv "go.opentelemetry.io/otel/semconv/v1.26.0"
)

// Resource attribute keys describing this deployment of the payment bridge.
const (
	AttrGatewayID   = attribute.Key("paybridge.gateway.id")
	AttrStoreDriver = attribute.Key("paybridge.store.driver")
)

// TracingConfig describes the service to the tracing backend.
type TracingConfig struct {
	ServiceName   string
	Environment   string
	GatewayID     string
	StoreDriver   string
	Exporter      string
	Endpoint      string
	SamplingRatio float64
}

func (c TracingConfig) exporter() string {
	exporter := strings.ToLower(strings.TrimSpace(c.Exporter))
	if exporter == "" {
		return "otlp"
	}
	return exporter
}

// Attributes are attached to every span the service exports.
func (c TracingConfig) Attributes() []attribute.KeyValue {
	attrs := []attribute.KeyValue{semconv.ServiceNameKey.String(c.ServiceName)}
	if c.Environment != "" {
		attrs = append(attrs, semconv.DeploymentEnvironmentKey.String(c.Environment))
	}
	if c.GatewayID != "" {
		attrs = append(attrs, AttrGatewayID.String(c.GatewayID))
	}
	if c.StoreDriver != "" {
		attrs = append(attrs, AttrStoreDriver.String(c.StoreDriver))
	}
	return attrs
}

// Sampler keeps the caller's sampling decision and samples new traces at
// SamplingRatio. Ratios outside (0, 1] sample everything.
func (c TracingConfig) Sampler() sdktrace.Sampler {
	ratio := c.SamplingRatio
	if ratio <= 0 || ratio > 1 {
		ratio = 1
	}
	return sdktrace.ParentBased(sdktrace.TraceIDRatioBased(ratio))
}

// InitTracer installs the global tracer provider and returns its shutdown
// function. With the "none" exporter the global no-op provider stays.
func InitTracer(ctx context.Context, cfg TracingConfig) (func(context.Context) error, error) {
	var opts []otlptracehttp.Option
	switch cfg.exporter() {
	case "none", "off":
		return func(context.Context) error { return nil }, nil
	case "otlp":
		if endpoint := strings.TrimSpace(cfg.Endpoint); endpoint != "" {
			opts = append(opts, otlptracehttp.WithEndpointURL(endpoint))
		}
	default:
		return nil, fmt.Errorf("obs: unsupported tracing exporter %q", cfg.Exporter)
	}

	spanExporter, err := otlptracehttp.New(ctx, opts...)
	if err != nil {
		return nil, fmt.Errorf("obs: otlp exporter: %w", err)
	}
	res, err := resource.New(ctx,
		resource.WithFromEnv(),
		resource.WithProcess(),
		resource.WithTelemetrySDK(),
		resource.WithAttributes(cfg.Attributes()...),
	)
	if err != nil {
		return nil, fmt.Errorf("obs: tracing resource: %w", err)
	}
	tp := sdktrace.NewTracerProvider(
		sdktrace.WithSampler(cfg.Sampler()),
		sdktrace.WithBatcher(spanExporter),
		sdktrace.WithResource(res),
	)
	otel.SetTracerProvider(tp)
	otel.SetTextMapPropagator(propagation.NewCompositeTextMapPropagator(
		propagation.TraceContext{},
		propagation.Baggage{},
	))
	return tp.Shutdown, nil
}
