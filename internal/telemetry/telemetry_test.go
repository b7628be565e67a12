package telemetry

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/log/noop"

	"github.com/kcowger/commcare-forge-sub001/internal/config"
)

func TestNewDefaultConfig(t *testing.T) {
	cfg := NewDefaultConfig()
	assert.False(t, cfg.Enabled)
	assert.Equal(t, "commcare-forge", cfg.ServiceName)
	assert.Equal(t, ProtocolGRPC, cfg.Protocol)
	require.NoError(t, cfg.Validate())

	cfg.Enabled = true
	assert.NoError(t, cfg.Validate())
}

func TestConfig_Validate(t *testing.T) {
	tests := []struct {
		name    string
		mutate  func(*Config)
		wantErr string
	}{
		{"no endpoint", func(c *Config) { c.Endpoint = "" }, "endpoint"},
		{"no service name", func(c *Config) { c.ServiceName = "" }, "service_name"},
		{"no version", func(c *Config) { c.ServiceVersion = "" }, "service_version"},
		{"bad protocol", func(c *Config) { c.Protocol = "udp" }, "protocol"},
		{"insecure remote", func(c *Config) { c.Endpoint = "collector.example.com:4317" }, "insecure"},
		{"rate too high", func(c *Config) { c.Sampling.Rate = 1.1 }, "sampling.rate"},
		{"rate negative", func(c *Config) { c.Sampling.Rate = -0.1 }, "sampling.rate"},
		{"zero export interval", func(c *Config) { c.Metrics.ExportInterval = 0 }, "export_interval"},
		{"zero shutdown", func(c *Config) { c.Shutdown.Timeout = 0 }, "shutdown.timeout"},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			cfg := NewDefaultConfig()
			cfg.Enabled = true
			tt.mutate(cfg)
			err := cfg.Validate()
			require.Error(t, err)
			assert.Contains(t, err.Error(), tt.wantErr)
		})
	}
}

func TestConfig_RemoteWithTLS(t *testing.T) {
	cfg := NewDefaultConfig()
	cfg.Enabled = true
	cfg.Endpoint = "https://otel.example.com:4318"
	cfg.Protocol = ProtocolHTTP
	cfg.Insecure = false
	assert.NoError(t, cfg.Validate())
}

func TestConfig_IsLocalEndpoint(t *testing.T) {
	tests := map[string]bool{
		"localhost:4317":          true,
		"127.0.0.1:4317":          true,
		"127.0.0.2":               true,
		"[::1]:4317":              true,
		"::1":                     true,
		"http://localhost:4318":   true,
		"collector:4317":          false,
		"10.0.0.5:4317":           false,
		"otel.example.com":        false,
		"localhost.evil.com:4317": false,
	}
	for endpoint, want := range tests {
		cfg := &Config{Endpoint: endpoint}
		assert.Equal(t, want, cfg.isLocalEndpoint(), endpoint)
	}
}

func TestFromSettings(t *testing.T) {
	cfg := FromSettings(config.TelemetryConfig{
		Enabled:    true,
		Endpoint:   "localhost:4318",
		Protocol:   ProtocolHTTP,
		Insecure:   true,
		SampleRate: 0.5,
	}, "1.2.3")

	assert.True(t, cfg.Enabled)
	assert.Equal(t, "localhost:4318", cfg.Endpoint)
	assert.Equal(t, ProtocolHTTP, cfg.Protocol)
	assert.Equal(t, "1.2.3", cfg.ServiceVersion)
	assert.Equal(t, 0.5, cfg.Sampling.Rate)
	assert.NoError(t, cfg.Validate())

	assert.Equal(t, "dev", FromSettings(config.TelemetryConfig{}, "").ServiceVersion)
}

func TestStripScheme(t *testing.T) {
	assert.Equal(t, "otel:4318", stripScheme("https://otel:4318"))
	assert.Equal(t, "otel:4318", stripScheme("http://otel:4318"))
	assert.Equal(t, "otel:4317", stripScheme("otel:4317"))
}

func TestNew_Disabled(t *testing.T) {
	tel, err := New(context.Background(), NewDefaultConfig())
	require.NoError(t, err)

	assert.False(t, tel.IsEnabled())
	assert.NotNil(t, tel.Tracer("test"))
	assert.NotNil(t, tel.Meter("test"))
	assert.Nil(t, tel.LoggerProvider())
	assert.Equal(t, HealthStatus{Healthy: true}, tel.Health())
	assert.NoError(t, tel.ForceFlush(context.Background()))
	assert.NoError(t, tel.Shutdown(context.Background()))
	assert.False(t, tel.Health().Healthy)
}

func TestNew_InvalidConfig(t *testing.T) {
	cfg := NewDefaultConfig()
	cfg.Enabled = true
	cfg.Endpoint = ""
	_, err := New(context.Background(), cfg)
	assert.Error(t, err)
}

func TestTelemetry_NilSafe(t *testing.T) {
	var tel *Telemetry
	assert.NotNil(t, tel.Tracer("x"))
	assert.NotNil(t, tel.Meter("x"))
	assert.Nil(t, tel.LoggerProvider())
	tel.SetLoggerProvider(noop.NewLoggerProvider())
	assert.False(t, tel.IsEnabled())
	assert.True(t, tel.Health().Degraded)
	assert.NoError(t, tel.Shutdown(context.Background()))
	assert.NoError(t, tel.ForceFlush(context.Background()))
}

func TestTelemetry_SetLoggerProvider(t *testing.T) {
	tel, err := New(context.Background(), NewDefaultConfig())
	require.NoError(t, err)

	lp := noop.NewLoggerProvider()
	tel.SetLoggerProvider(lp)
	assert.Equal(t, lp, tel.LoggerProvider())
}

func TestTelemetry_SetDegradedRecordsReason(t *testing.T) {
	tel, err := New(context.Background(), NewDefaultConfig())
	require.NoError(t, err)

	tel.setDegraded("meter provider failed: %v", "boom")

	h := tel.Health()
	assert.True(t, h.Degraded)
	assert.Equal(t, []string{"meter provider failed: boom"}, h.Reasons)
}

func TestTestTelemetry_Spans(t *testing.T) {
	tel := NewTestTelemetry()
	assert.True(t, tel.IsEnabled())

	ctx, parent := tel.Tracer("test").Start(context.Background(), "pipeline.generate")
	_, child := tel.Tracer("test").Start(ctx, "pipeline.attempt")
	child.SetAttributes(
		attribute.Int("attempt", 2),
		attribute.Bool("success", false),
		attribute.String("state", "validating_rules"),
		attribute.Float64("ratio", 0.5),
	)
	child.End()
	parent.End()

	tel.AssertSpanExists(t, "pipeline.generate")
	tel.AssertSpanAttribute(t, "pipeline.attempt", "attempt", int64(2))
	tel.AssertSpanAttribute(t, "pipeline.attempt", "success", false)
	tel.AssertSpanAttribute(t, "pipeline.attempt", "state", "validating_rules")
	tel.AssertSpanAttribute(t, "pipeline.attempt", "ratio", 0.5)
	assert.Nil(t, tel.SpanByName("missing"))
	assert.Len(t, tel.SpansByName("pipeline.attempt"), 1)
	assert.Equal(t, []string{"pipeline.attempt", "pipeline.generate"}, tel.spanNames())
}

func TestTestTelemetry_CounterValue(t *testing.T) {
	tel := NewTestTelemetry()
	assert.Zero(t, tel.CounterValue(t, "forge.runs"))

	counter, err := tel.Meter("test").Int64Counter("forge.runs")
	require.NoError(t, err)
	counter.Add(context.Background(), 2)
	counter.Add(context.Background(), 1)

	assert.Equal(t, int64(3), tel.CounterValue(t, "forge.runs"))
}

func TestTestTelemetry_Shutdown(t *testing.T) {
	tel := NewTestTelemetry()
	ctx, cancel := context.WithTimeout(context.Background(), time.Second)
	defer cancel()

	require.NoError(t, tel.ForceFlush(ctx))
	require.NoError(t, tel.Shutdown(ctx))
	assert.False(t, tel.IsEnabled())
}
