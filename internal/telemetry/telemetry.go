// Пакет telemetry — трассировка OpenTelemetry (OTLP/HTTP).
// При пустом OD_OTEL_ENDPOINT экспорт отключён, пропагатор W3C TraceContext
// настраивается всегда.
package telemetry

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"net/url"
	"strings"

	"go.opentelemetry.io/contrib/instrumentation/net/http/otelhttp"
	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/exporters/otlp/otlptrace"
	"go.opentelemetry.io/otel/exporters/otlp/otlptrace/otlptracehttp"
	"go.opentelemetry.io/otel/propagation"
	"go.opentelemetry.io/otel/sdk/resource"
	sdktrace "go.opentelemetry.io/otel/sdk/trace"
	semconv "go.opentelemetry.io/otel/semconv/v1.37.0"
)

// ShutdownFunc сбрасывает накопленные спаны и останавливает экспортёр.
type ShutdownFunc func(context.Context) error

func noopShutdown(context.Context) error { return nil }

// Setup настраивает глобальный TracerProvider и пропагатор.
func Setup(ctx context.Context, serviceName, version, endpoint string) (ShutdownFunc, error) {
	if serviceName == "" {
		return nil, errors.New("telemetry: не задано имя сервиса")
	}

	otel.SetTextMapPropagator(propagation.NewCompositeTextMapPropagator(
		propagation.TraceContext{},
		propagation.Baggage{},
	))

	if endpoint == "" {
		return noopShutdown, nil
	}

	exporter, err := newTraceExporter(ctx, endpoint)
	if err != nil {
		return nil, fmt.Errorf("telemetry: создание экспортёра: %w", err)
	}

	res, err := resource.New(ctx,
		resource.WithAttributes(
			semconv.ServiceName(serviceName),
			semconv.ServiceVersion(version),
		),
	)
	if err != nil {
		return nil, fmt.Errorf("telemetry: создание ресурса: %w", err)
	}

	tp := sdktrace.NewTracerProvider(
		sdktrace.WithBatcher(exporter),
		sdktrace.WithResource(res),
	)
	otel.SetTracerProvider(tp)

	return tp.Shutdown, nil
}

// Middleware оборачивает handler в otelhttp: серверный спан на каждый запрос.
func Middleware(serviceName string) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return otelhttp.NewHandler(next, serviceName)
	}
}

// newTraceExporter принимает как URL (http://collector:4318/v1/traces),
// так и host:port без схемы.
func newTraceExporter(ctx context.Context, endpoint string) (*otlptrace.Exporter, error) {
	opts, err := exporterOptions(endpoint)
	if err != nil {
		return nil, err
	}
	return otlptracehttp.New(ctx, opts...)
}

func exporterOptions(endpoint string) ([]otlptracehttp.Option, error) {
	var opts []otlptracehttp.Option

	if strings.Contains(endpoint, "://") {
		parsed, err := url.Parse(endpoint)
		if err != nil || parsed.Host == "" {
			return nil, fmt.Errorf("некорректный OTLP endpoint: %s", endpoint)
		}
		opts = append(opts, otlptracehttp.WithEndpoint(parsed.Host))
		if parsed.Path != "" && parsed.Path != "/" {
			opts = append(opts, otlptracehttp.WithURLPath(parsed.Path))
		}
		if parsed.Scheme == "http" {
			opts = append(opts, otlptracehttp.WithInsecure())
		}
		return opts, nil
	}

	opts = append(opts, otlptracehttp.WithEndpoint(endpoint), otlptracehttp.WithInsecure())
	return opts, nil
}
