// Package config loads commcare-forge configuration.
//
// Values are layered: built-in defaults, then an optional YAML file, then
// FORGE_* environment variables. See Load.
package config

import (
	"errors"
	"fmt"
	"path/filepath"
	"strings"
	"time"

	"github.com/kcowger/commcare-forge-sub001/internal/secrets"
)

// Config holds the complete commcare-forge configuration.
type Config struct {
	Pipeline  PipelineConfig  `koanf:"pipeline"`
	Toolchain ToolchainConfig `koanf:"toolchain"`
	Export    ExportConfig    `koanf:"export"`
	Generator GeneratorConfig `koanf:"generator"`
	HTTP      HTTPConfig      `koanf:"http"`
	Secrets   secrets.Config  `koanf:"secrets"`
	Logging   LoggingConfig   `koanf:"logging"`
	Telemetry TelemetryConfig `koanf:"telemetry"`
}

// PipelineConfig controls the generate/validate/export loop.
type PipelineConfig struct {
	MaxAttempts int    `koanf:"max_attempts"`
	WorkDir     string `koanf:"work_dir"`
	ExportJSON  bool   `koanf:"export_json"`
}

// ToolchainConfig locates the external validator.
type ToolchainConfig struct {
	JavaPath string   `koanf:"java_path"`
	JarPath  string   `koanf:"jar_path"`
	Timeout  Duration `koanf:"timeout"`
	Watch    bool     `koanf:"watch"`
}

// ExportConfig controls where final artifacts land.
type ExportConfig struct {
	Dir string `koanf:"dir"`
}

// GeneratorConfig configures the content-generation client.
type GeneratorConfig struct {
	Provider   string   `koanf:"provider"`
	APIKey     Secret   `koanf:"api_key"`
	Model      string   `koanf:"model"`
	BaseURL    string   `koanf:"base_url"`
	Timeout    Duration `koanf:"timeout"`
	MaxTokens  int      `koanf:"max_tokens"`
	RatePerMin int      `koanf:"rate_per_min"`
}

// HTTPConfig configures the HTTP command surface.
type HTTPConfig struct {
	Host            string   `koanf:"host"`
	Port            int      `koanf:"port"`
	ShutdownTimeout Duration `koanf:"shutdown_timeout"`
	MaxUploadBytes  int64    `koanf:"max_upload_bytes"`
}

// LoggingConfig is the subset of logger settings exposed in the file.
type LoggingConfig struct {
	Level  string `koanf:"level"`
	Format string `koanf:"format"`
	OTEL   bool   `koanf:"otel"`
}

// TelemetryConfig is the subset of OpenTelemetry settings exposed in the file.
type TelemetryConfig struct {
	Enabled       bool    `koanf:"enabled"`
	Endpoint      string  `koanf:"endpoint"`
	Protocol      string  `koanf:"protocol"`
	Insecure      bool    `koanf:"insecure"`
	TLSSkipVerify bool    `koanf:"tls_skip_verify"`
	SampleRate    float64 `koanf:"sample_rate"`
}

// Supported generator providers.
const (
	ProviderAnthropic = "anthropic"
	ProviderNone      = "none"
)

// Default returns the built-in configuration.
func Default() *Config {
	return &Config{
		Pipeline: PipelineConfig{
			MaxAttempts: 3,
			WorkDir:     filepath.Join(defaultDataDir(), "work"),
		},
		Toolchain: ToolchainConfig{
			JavaPath: "java",
			Timeout:  Duration(30 * time.Second),
			Watch:    true,
		},
		Export: ExportConfig{
			Dir: filepath.Join(defaultDataDir(), "exports"),
		},
		Generator: GeneratorConfig{
			Provider:   ProviderAnthropic,
			Model:      "claude-sonnet-4-20250514",
			BaseURL:    "https://api.anthropic.com",
			Timeout:    Duration(2 * time.Minute),
			MaxTokens:  16000,
			RatePerMin: 20,
		},
		HTTP: HTTPConfig{
			Host:            "127.0.0.1",
			Port:            8765,
			ShutdownTimeout: Duration(10 * time.Second),
			MaxUploadBytes:  64 << 20,
		},
		Secrets: secrets.Config{
			Enabled:         true,
			Gitleaks:        true,
			RedactionString: secrets.DefaultRedaction,
		},
		Logging: LoggingConfig{
			Level:  "info",
			Format: "console",
		},
		Telemetry: TelemetryConfig{
			Endpoint:   "localhost:4317",
			Protocol:   "grpc",
			Insecure:   true,
			SampleRate: 1.0,
		},
	}
}

// Validate checks the configuration for errors.
func (c *Config) Validate() error {
	if c.Pipeline.MaxAttempts < 1 {
		return fmt.Errorf("pipeline.max_attempts must be >= 1, got %d", c.Pipeline.MaxAttempts)
	}
	if c.Pipeline.WorkDir == "" {
		return errors.New("pipeline.work_dir is required")
	}
	if c.Export.Dir == "" {
		return errors.New("export.dir is required")
	}
	if c.Toolchain.Timeout.Duration() <= 0 {
		return errors.New("toolchain.timeout must be positive")
	}

	switch c.Generator.Provider {
	case ProviderAnthropic:
		if c.Generator.Model == "" {
			return errors.New("generator.model is required")
		}
		if !strings.HasPrefix(c.Generator.BaseURL, "http://") && !strings.HasPrefix(c.Generator.BaseURL, "https://") {
			return fmt.Errorf("generator.base_url must be an http(s) URL, got %q", c.Generator.BaseURL)
		}
		if c.Generator.Timeout.Duration() <= 0 {
			return errors.New("generator.timeout must be positive")
		}
	case ProviderNone:
	default:
		return fmt.Errorf("unknown generator.provider %q (expected %q or %q)", c.Generator.Provider, ProviderAnthropic, ProviderNone)
	}

	if c.HTTP.Port < 1 || c.HTTP.Port > 65535 {
		return fmt.Errorf("invalid http.port: %d (must be 1-65535)", c.HTTP.Port)
	}
	if c.HTTP.ShutdownTimeout.Duration() <= 0 {
		return errors.New("http.shutdown_timeout must be positive")
	}

	switch strings.ToLower(c.Logging.Format) {
	case "json", "console":
	default:
		return fmt.Errorf("logging.format must be 'json' or 'console', got %q", c.Logging.Format)
	}

	if c.Telemetry.Enabled {
		if c.Telemetry.Endpoint == "" {
			return errors.New("telemetry.endpoint is required when telemetry is enabled")
		}
		if c.Telemetry.SampleRate < 0 || c.Telemetry.SampleRate > 1 {
			return fmt.Errorf("telemetry.sample_rate must be between 0 and 1, got %f", c.Telemetry.SampleRate)
		}
	}

	if err := c.Secrets.Validate(); err != nil {
		return fmt.Errorf("secrets: %w", err)
	}
	return nil
}
