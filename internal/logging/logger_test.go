package logging

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.opentelemetry.io/otel/log/noop"
	"go.uber.org/zap"
	"go.uber.org/zap/zapcore"

	"github.com/kcowger/commcare-forge-sub001/internal/config"
	"github.com/kcowger/commcare-forge-sub001/internal/secrets"
)

const anthropicKey = "sk-ant-REDACTED"

func jsonConfig() *Config {
	cfg := NewDefaultConfig()
	cfg.Format = "json"
	cfg.Level = TraceLevel
	cfg.Sampling.Enabled = false
	return cfg
}

func decodeLines(t *testing.T, buf *bytes.Buffer) []map[string]interface{} {
	t.Helper()
	var out []map[string]interface{}
	for _, line := range strings.Split(strings.TrimSpace(buf.String()), "\n") {
		if line == "" {
			continue
		}
		var m map[string]interface{}
		require.NoError(t, json.Unmarshal([]byte(line), &m), line)
		out = append(out, m)
	}
	return out
}

func TestNewLogger_WritesJSON(t *testing.T) {
	var buf bytes.Buffer
	logger, err := NewLogger(jsonConfig(), nil, WithWriter(&buf))
	require.NoError(t, err)

	logger.Info(context.Background(), "archive parsed", zap.Int("files", 5))
	logger.Trace(context.Background(), "detector ran")
	require.NoError(t, logger.Sync())

	lines := decodeLines(t, &buf)
	require.Len(t, lines, 2)
	assert.Equal(t, "archive parsed", lines[0]["msg"])
	assert.Equal(t, "info", lines[0]["level"])
	assert.Equal(t, float64(5), lines[0]["files"])
	assert.Equal(t, ServiceName, lines[0]["service"])
	assert.Equal(t, "trace", lines[1]["level"])
}

func TestNewLogger_LevelFilters(t *testing.T) {
	var buf bytes.Buffer
	cfg := jsonConfig()
	cfg.Level = zapcore.WarnLevel
	logger, err := NewLogger(cfg, nil, WithWriter(&buf))
	require.NoError(t, err)

	ctx := context.Background()
	logger.Debug(ctx, "hidden")
	logger.Info(ctx, "hidden")
	logger.Warn(ctx, "shown")
	logger.Error(ctx, "shown too")

	assert.False(t, logger.Enabled(zapcore.InfoLevel))
	assert.Len(t, decodeLines(t, &buf), 2)
}

func TestNewLogger_InvalidConfig(t *testing.T) {
	cfg := NewDefaultConfig()
	cfg.Format = "xml"
	_, err := NewLogger(cfg, nil)
	assert.Error(t, err)
}

func TestNewLogger_OTELOnlyWithoutProvider(t *testing.T) {
	cfg := NewDefaultConfig()
	cfg.Output = OutputConfig{OTEL: true}
	_, err := NewLogger(cfg, nil)
	require.Error(t, err)
	assert.Contains(t, err.Error(), "at least one output")
}

func TestNewLogger_OTELBridge(t *testing.T) {
	var buf bytes.Buffer
	cfg := jsonConfig()
	cfg.Output.OTEL = true

	logger, err := NewLogger(cfg, noop.NewLoggerProvider(), WithWriter(&buf))
	require.NoError(t, err)
	logger.Info(context.Background(), "bridged")

	assert.Len(t, decodeLines(t, &buf), 1)
}

func TestLogger_RedactsSensitiveKeys(t *testing.T) {
	var buf bytes.Buffer
	logger, err := NewLogger(jsonConfig(), nil, WithWriter(&buf))
	require.NoError(t, err)

	logger.With(zap.String("token", "abc123")).Info(context.Background(), "calling generator",
		zap.String("api_key", "plain-value"),
		zap.String("model", "claude"))

	lines := decodeLines(t, &buf)
	require.Len(t, lines, 1)
	assert.Equal(t, "[REDACTED]", lines[0]["api_key"])
	assert.Equal(t, "[REDACTED]", lines[0]["token"])
	assert.Equal(t, "claude", lines[0]["model"])
}

func TestLogger_ScrubsValuesAndMessages(t *testing.T) {
	cfg := secrets.DefaultConfig()
	cfg.Gitleaks = false
	scrubber, err := secrets.New(cfg)
	require.NoError(t, err)

	var buf bytes.Buffer
	logger, err := NewLogger(jsonConfig(), nil, WithWriter(&buf), WithScrubber(scrubber))
	require.NoError(t, err)

	ctx := context.Background()
	logger.Warn(ctx, "generator rejected key "+anthropicKey,
		zap.String("detail", "key="+anthropicKey),
		zap.Error(errors.New("401 for "+anthropicKey)))
	logger.With(zap.String("prior", anthropicKey)).Info(ctx, "child")

	out := buf.String()
	assert.NotContains(t, out, anthropicKey)
	assert.Contains(t, out, "[REDACTED]")
	assert.Contains(t, out, "generator rejected key")
}

func TestLogger_RedactionDisabled(t *testing.T) {
	var buf bytes.Buffer
	cfg := jsonConfig()
	cfg.Redaction.Enabled = false
	logger, err := NewLogger(cfg, nil, WithWriter(&buf))
	require.NoError(t, err)

	logger.Info(context.Background(), "raw", zap.String("token", "visible"))
	assert.Equal(t, "visible", decodeLines(t, &buf)[0]["token"])
}

func TestSecretField(t *testing.T) {
	logger := NewTestLogger()
	logger.Info(context.Background(), "configured", Secret("api_key", config.Secret("sk-123")))

	logger.AssertField(t, "configured", "api_key", "[REDACTED:6]")
	logger.AssertNotContains(t, "sk-123")
}

func TestLogger_WithAndNamed(t *testing.T) {
	logger := NewTestLogger()
	child := logger.With(zap.String("component", "pipeline")).Named("forge")

	child.Info(context.Background(), "hello")

	entries := logger.All()
	require.Len(t, entries, 1)
	assert.Equal(t, "forge", entries[0].LoggerName)
	logger.AssertField(t, "hello", "component", "pipeline")
}

func TestLogger_ContextFields(t *testing.T) {
	logger := NewTestLogger()
	ctx := WithAttempt(WithRunID(context.Background(), "run-1"), 2)

	logger.Debug(ctx, "attempt started")

	logger.AssertLogged(t, zapcore.DebugLevel, "attempt started")
	logger.AssertField(t, "attempt started", "run.id", "run-1")
	logger.AssertField(t, "attempt started", "attempt", int64(2))
}

func TestTestLogger_Reset(t *testing.T) {
	logger := NewTestLogger()
	logger.Info(context.Background(), "one")
	logger.Reset()
	assert.Empty(t, logger.All())
	assert.Zero(t, logger.FilterMessage("one").Len())
}

func TestSampling_KeepsErrors(t *testing.T) {
	var buf bytes.Buffer
	cfg := jsonConfig()
	cfg.Sampling = SamplingConfig{Enabled: true, Tick: config.Duration(60e9), Initial: 2, Thereafter: 0}
	logger, err := NewLogger(cfg, nil, WithWriter(&buf))
	require.NoError(t, err)

	ctx := context.Background()
	for i := 0; i < 10; i++ {
		logger.Info(ctx, "repeated")
		logger.Error(ctx, "failed")
	}

	var infos, errs int
	for _, line := range decodeLines(t, &buf) {
		switch line["msg"] {
		case "repeated":
			infos++
		case "failed":
			errs++
		}
	}
	assert.Equal(t, 2, infos)
	assert.Equal(t, 10, errs)
}
