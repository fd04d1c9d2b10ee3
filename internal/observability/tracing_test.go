package observability

import (
	"bytes"
	"context"
	"strings"
	"testing"

	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/trace/noop"

	"github.com/signalsfoundry/railguard-simulator/internal/logging"
)

func TestTracingConfigFromEnvDefaults(t *testing.T) {
	t.Setenv("RAILGUARD_TRACING_ENABLED", "")
	t.Setenv("RAILGUARD_TRACING_EXPORTER", "")
	t.Setenv("RAILGUARD_TRACING_SERVICE_NAME", "")
	t.Setenv("RAILGUARD_TRACING_SAMPLE_RATIO", "")

	cfg := TracingConfigFromEnv()
	if cfg.Enabled || cfg.Exporter != "stdout" || cfg.ServiceName != "railguard-simulator" || cfg.SampleRatio != 1 {
		t.Fatalf("TracingConfigFromEnv() = %+v", cfg)
	}
}

func TestTracingConfigFromEnvOverrides(t *testing.T) {
	t.Setenv("RAILGUARD_TRACING_ENABLED", "TRUE")
	t.Setenv("RAILGUARD_TRACING_EXPORTER", "OTLP")
	t.Setenv("RAILGUARD_TRACING_SAMPLE_RATIO", "0.25")
	t.Setenv("RAILGUARD_OTLP_ENDPOINT", "collector:4317")

	cfg := TracingConfigFromEnv()
	if !cfg.Enabled || cfg.Exporter != "otlp" || cfg.SampleRatio != 0.25 || cfg.Endpoint != "collector:4317" {
		t.Fatalf("TracingConfigFromEnv() = %+v", cfg)
	}

	t.Setenv("RAILGUARD_TRACING_SAMPLE_RATIO", "7")
	if got := TracingConfigFromEnv().SampleRatio; got != 1 {
		t.Fatalf("out-of-range ratio should fall back to 1, got %v", got)
	}
}

func TestInitTracingDisabledInstallsNoop(t *testing.T) {
	shutdown, err := InitTracing(context.Background(), TracingConfig{}, logging.Noop())
	if err != nil {
		t.Fatalf("InitTracing() error = %v", err)
	}
	defer ShutdownWithTimeout(context.Background(), shutdown, nil)

	_, span := otel.Tracer("test").Start(context.Background(), "op")
	defer span.End()
	if span.SpanContext().IsValid() {
		t.Fatalf("noop tracer produced a recording span")
	}
}

func TestInitTracingRejectsUnknownExporter(t *testing.T) {
	_, err := InitTracing(context.Background(), TracingConfig{Enabled: true, Exporter: "zipkin", SampleRatio: 1}, nil)
	if err == nil {
		t.Fatalf("InitTracing() with unknown exporter should fail")
	}
}

func TestTracingConfigFallsBackToOTELVariables(t *testing.T) {
	t.Setenv("RAILGUARD_TRACING_SERVICE_NAME", "")
	t.Setenv("RAILGUARD_OTLP_ENDPOINT", "")
	t.Setenv("OTEL_SERVICE_NAME", "railguard-east")
	t.Setenv("OTEL_EXPORTER_OTLP_ENDPOINT", "otel:4317")

	cfg := TracingConfigFromEnv()
	if cfg.ServiceName != "railguard-east" || cfg.Endpoint != "otel:4317" {
		t.Fatalf("TracingConfigFromEnv() = %+v", cfg)
	}
}

func TestInitTracingStdoutExportsSpans(t *testing.T) {
	var buf bytes.Buffer
	shutdown, err := InitTracing(context.Background(), TracingConfig{
		Enabled:     true,
		ServiceName: "railguard-test",
		Exporter:    "stdout",
		SampleRatio: 1,
		Writer:      &buf,
	}, logging.Noop())
	if err != nil {
		t.Fatalf("InitTracing() error = %v", err)
	}
	t.Cleanup(func() { otel.SetTracerProvider(noop.NewTracerProvider()) })

	_, span := StartSpan(context.Background(), "FindRoute", attribute.String("route.start", "Ballari Junction"))
	span.End()
	ShutdownWithTimeout(context.Background(), shutdown, logging.Noop())

	out := buf.String()
	if !strings.Contains(out, "FindRoute") || !strings.Contains(out, "Ballari Junction") {
		t.Fatalf("exported spans missing route span: %s", out)
	}
}
