package otelcol

import (
	"context"

	"smallbiznis-affiliate/pkg/config"
	"smallbiznis-affiliate/pkg/otelcol/exporters"

	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/metric"
	"go.opentelemetry.io/otel/propagation"
	"go.opentelemetry.io/otel/sdk/resource"
	sdktrace "go.opentelemetry.io/otel/sdk/trace"
	"go.opentelemetry.io/otel/trace"
	"go.uber.org/fx"
	"go.uber.org/zap"
)

var Module = fx.Module("otel",
	fx.Provide(
		exporters.New,
		ProvideTrace,
		ProvideMetric,
	),
)

func Resource(cfg *config.Config) *resource.Resource {
	res, err := resource.Merge(resource.Default(), resource.NewSchemaless(
		attribute.String("service.name", cfg.AppName),
		attribute.String("service.version", cfg.AppVersion),
		attribute.String("deployment.environment", cfg.AppEnv),
	))
	if err != nil {
		// schema url conflict, keep our own attributes
		return resource.NewSchemaless(attribute.String("service.name", cfg.AppName))
	}
	return res
}

// ProvideTrace installs a batching tracer provider when an exporter is
// configured. Without one the global no-op provider is returned.
func ProvideTrace(lc fx.Lifecycle, cfg *config.Config, exporter sdktrace.SpanExporter) trace.TracerProvider {
	if exporter == nil {
		zap.L().Info("tracing disabled, OTEL.ADDR is empty")
		return otel.GetTracerProvider()
	}

	tp := sdktrace.NewTracerProvider(
		sdktrace.WithResource(Resource(cfg)),
		sdktrace.WithBatcher(exporter),
	)
	otel.SetTracerProvider(tp)
	otel.SetTextMapPropagator(propagation.NewCompositeTextMapPropagator(
		propagation.TraceContext{},
		propagation.Baggage{},
	))

	lc.Append(fx.Hook{
		OnStop: func(ctx context.Context) error {
			return tp.Shutdown(ctx)
		},
	})

	zap.L().Info("tracing enabled", zap.String("addr", cfg.Otel.Addr), zap.String("protocol", cfg.Otel.Protocol))
	return tp
}

// ProvideMetric hands out the global meter provider. Service metrics are
// exported through the Prometheus registry on /metrics.
func ProvideMetric() metric.MeterProvider {
	return otel.GetMeterProvider()
}
