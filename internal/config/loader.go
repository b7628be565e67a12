package config

import (
	"fmt"
	"io"
	"os"
	"path/filepath"
	"runtime"
	"strings"

	"github.com/knadh/koanf/parsers/yaml"
	"github.com/knadh/koanf/providers/env"
	"github.com/knadh/koanf/providers/rawbytes"
	"github.com/knadh/koanf/v2"

	"github.com/kcowger/commcare-forge-sub001/internal/sanitize"
	"github.com/kcowger/commcare-forge-sub001/internal/secrets"
)

const (
	// EnvPrefix prefixes every environment override.
	EnvPrefix = "FORGE_"

	appDir            = "commcare-forge"
	systemConfigDir   = "/etc/commcare-forge"
	maxConfigFileSize = 1024 * 1024 // 1MB
)

// Load builds the configuration from defaults, the YAML file at configPath
// and FORGE_* environment variables, in increasing precedence.
//
// An empty configPath means ~/.config/commcare-forge/config.yaml. A missing
// file is not an error. The file must live under ~/.config/commcare-forge/
// or /etc/commcare-forge/, be at most 1MB and, outside Windows, have 0600 or
// 0400 permissions.
//
// Environment variables drop the prefix and split on the first underscore:
//
//	FORGE_TOOLCHAIN_TIMEOUT   -> toolchain.timeout
//	FORGE_TOOLCHAIN_JAR_PATH  -> toolchain.jar_path
//	FORGE_PIPELINE_MAX_ATTEMPTS -> pipeline.max_attempts
//
// When generator.api_key is unset, ANTHROPIC_API_KEY is used.
func Load(configPath string) (*Config, error) {
	k := koanf.New(".")

	if configPath == "" {
		path, err := DefaultPath()
		if err != nil {
			return nil, err
		}
		configPath = path
	}

	if err := validateConfigPath(configPath); err != nil {
		return nil, fmt.Errorf("config path validation failed: %w", err)
	}

	if _, err := os.Stat(configPath); err == nil {
		content, err := readConfigFile(configPath)
		if err != nil {
			return nil, err
		}
		if err := k.Load(rawbytes.Provider(content), yaml.Parser()); err != nil {
			return nil, fmt.Errorf("failed to load config file %s: %w", configPath, err)
		}
	}

	if err := k.Load(env.Provider(EnvPrefix, ".", envKey), nil); err != nil {
		return nil, fmt.Errorf("failed to load environment variables: %w", err)
	}

	cfg := Default()
	if err := k.Unmarshal("", cfg); err != nil {
		return nil, fmt.Errorf("failed to unmarshal config: %w", err)
	}

	applyDefaults(cfg)

	if err := cfg.Validate(); err != nil {
		return nil, fmt.Errorf("config validation failed: %w", err)
	}
	return cfg, nil
}

// DefaultPath returns ~/.config/commcare-forge/config.yaml.
func DefaultPath() (string, error) {
	home, err := os.UserHomeDir()
	if err != nil {
		return "", fmt.Errorf("failed to get home directory: %w", err)
	}
	return filepath.Join(home, ".config", appDir, "config.yaml"), nil
}

// EnsureConfigDir creates ~/.config/commcare-forge with 0700 permissions.
func EnsureConfigDir() error {
	home, err := os.UserHomeDir()
	if err != nil {
		return fmt.Errorf("failed to get home directory: %w", err)
	}
	dir := filepath.Join(home, ".config", appDir)
	if err := os.MkdirAll(dir, 0o700); err != nil {
		return fmt.Errorf("failed to create config directory %s: %w", dir, err)
	}
	return nil
}

// envKey maps FORGE_SECTION_FIELD_NAME to section.field_name.
func envKey(s string) string {
	lower := strings.ToLower(strings.TrimPrefix(s, EnvPrefix))
	section, field, ok := strings.Cut(lower, "_")
	if !ok {
		return lower
	}
	return section + "." + field
}

// readConfigFile opens path once and checks permissions and size on the open
// descriptor.
func readConfigFile(path string) ([]byte, error) {
	f, err := os.Open(path)
	if err != nil {
		return nil, fmt.Errorf("failed to open config file: %w", err)
	}
	defer f.Close()

	info, err := f.Stat()
	if err != nil {
		return nil, fmt.Errorf("failed to stat config file: %w", err)
	}
	if err := validateConfigFileProperties(info); err != nil {
		return nil, fmt.Errorf("config file validation failed: %w", err)
	}

	content, err := io.ReadAll(io.LimitReader(f, maxConfigFileSize+1))
	if err != nil {
		return nil, fmt.Errorf("failed to read config file: %w", err)
	}
	return content, nil
}

// validateConfigPath requires path to resolve inside an allowed directory.
// It runs whether or not the file exists.
func validateConfigPath(path string) error {
	home, err := os.UserHomeDir()
	if err != nil {
		return fmt.Errorf("failed to get home directory: %w", err)
	}

	resolved := path
	if abs, err := filepath.Abs(path); err == nil {
		resolved = abs
		if real, err := filepath.EvalSymlinks(abs); err == nil {
			resolved = real
		}
	}

	for _, dir := range []string{filepath.Join(home, ".config", appDir), systemConfigDir} {
		if _, err := sanitize.ValidatePath(resolved, dir); err == nil {
			return nil
		}
	}
	return fmt.Errorf("config file must be in ~/.config/%s/ or %s/", appDir, systemConfigDir)
}

// validateConfigFileProperties checks permissions and size.
func validateConfigFileProperties(info os.FileInfo) error {
	if runtime.GOOS != "windows" {
		perm := info.Mode().Perm()
		if perm != 0o600 && perm != 0o400 {
			return fmt.Errorf("insecure config file permissions: %v (expected 0600 or 0400)", perm)
		}
	}
	if info.Size() > maxConfigFileSize {
		return fmt.Errorf("config file too large: %d bytes (max %d)", info.Size(), maxConfigFileSize)
	}
	return nil
}

// applyDefaults fills values that cannot be expressed as zero-value
// overrides.
func applyDefaults(cfg *Config) {
	if !cfg.Generator.APIKey.IsSet() {
		cfg.Generator.APIKey = Secret(os.Getenv("ANTHROPIC_API_KEY"))
	}
	if len(cfg.Secrets.Rules) == 0 {
		cfg.Secrets.Rules = secrets.DefaultRules()
	}
	cfg.Pipeline.WorkDir = expandHome(cfg.Pipeline.WorkDir)
	cfg.Export.Dir = expandHome(cfg.Export.Dir)
	cfg.Toolchain.JarPath = expandHome(cfg.Toolchain.JarPath)
	cfg.Secrets.AllowlistFile = expandHome(cfg.Secrets.AllowlistFile)
}

// defaultDataDir is ~/.local/share/commcare-forge, or a temp directory when
// the home directory is unknown.
func defaultDataDir() string {
	home, err := os.UserHomeDir()
	if err != nil {
		return filepath.Join(os.TempDir(), appDir)
	}
	return filepath.Join(home, ".local", "share", appDir)
}

func expandHome(path string) string {
	if path != "~" && !strings.HasPrefix(path, "~/") {
		return path
	}
	home, err := os.UserHomeDir()
	if err != nil {
		return path
	}
	return filepath.Join(home, strings.TrimPrefix(path, "~"))
}
