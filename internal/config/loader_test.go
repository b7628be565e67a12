package config

import (
	"os"
	"path/filepath"
	"runtime"
	"strings"
	"testing"
	"time"
)

// setupTestHome points HOME at a temp dir and clears FORGE_ and Anthropic
// environment overrides.
func setupTestHome(t *testing.T) string {
	t.Helper()
	home := t.TempDir()
	t.Setenv("HOME", home)
	t.Setenv("ANTHROPIC_API_KEY", "")
	for _, kv := range os.Environ() {
		if strings.HasPrefix(kv, EnvPrefix) {
			key, _, _ := strings.Cut(kv, "=")
			t.Setenv(key, "")
			os.Unsetenv(key)
		}
	}
	return home
}

func writeConfig(t *testing.T, home, content string, perm os.FileMode) string {
	t.Helper()
	dir := filepath.Join(home, ".config", appDir)
	if err := os.MkdirAll(dir, 0o700); err != nil {
		t.Fatalf("failed to create config dir: %v", err)
	}
	path := filepath.Join(dir, "config.yaml")
	if err := os.WriteFile(path, []byte(content), perm); err != nil {
		t.Fatalf("failed to write config: %v", err)
	}
	return path
}

func TestLoad_ValidYAML(t *testing.T) {
	home := setupTestHome(t)
	path := writeConfig(t, home, `pipeline:
  max_attempts: 5
  export_json: true
toolchain:
  jar_path: ~/tools/commcare-cli.jar
  timeout: 45s
export:
  dir: /srv/exports
generator:
  api_key: sk-ant-from-file
http:
  port: 9000
secrets:
  allow_list:
    - "example-key"
`, 0o600)

	cfg, err := Load(path)
	if err != nil {
		t.Fatalf("Load() error = %v", err)
	}

	if cfg.Pipeline.MaxAttempts != 5 {
		t.Errorf("Pipeline.MaxAttempts = %d, want 5", cfg.Pipeline.MaxAttempts)
	}
	if !cfg.Pipeline.ExportJSON {
		t.Error("Pipeline.ExportJSON = false, want true")
	}
	if want := filepath.Join(home, "tools", "commcare-cli.jar"); cfg.Toolchain.JarPath != want {
		t.Errorf("Toolchain.JarPath = %q, want %q", cfg.Toolchain.JarPath, want)
	}
	if cfg.Toolchain.Timeout.Duration() != 45*time.Second {
		t.Errorf("Toolchain.Timeout = %v, want 45s", cfg.Toolchain.Timeout)
	}
	if cfg.Export.Dir != "/srv/exports" {
		t.Errorf("Export.Dir = %q", cfg.Export.Dir)
	}
	if cfg.Generator.APIKey.Value() != "sk-ant-from-file" {
		t.Error("Generator.APIKey not loaded from file")
	}
	if cfg.HTTP.Port != 9000 {
		t.Errorf("HTTP.Port = %d, want 9000", cfg.HTTP.Port)
	}
	// Untouched sections keep their defaults.
	if !cfg.Secrets.Enabled || !cfg.Toolchain.Watch {
		t.Error("defaults lost for sections not in the file")
	}
	if len(cfg.Secrets.AllowList) != 1 || len(cfg.Secrets.Rules) == 0 {
		t.Errorf("Secrets = %+v", cfg.Secrets)
	}
}

func TestLoad_EnvironmentOverride(t *testing.T) {
	home := setupTestHome(t)
	path := writeConfig(t, home, "toolchain:\n  timeout: 45s\npipeline:\n  max_attempts: 2\n", 0o600)

	t.Setenv("FORGE_TOOLCHAIN_TIMEOUT", "10s")
	t.Setenv("FORGE_PIPELINE_MAX_ATTEMPTS", "4")
	t.Setenv("FORGE_TOOLCHAIN_JAR_PATH", "/opt/commcare-cli.jar")
	t.Setenv("FORGE_SECRETS_GITLEAKS", "false")

	cfg, err := Load(path)
	if err != nil {
		t.Fatalf("Load() error = %v", err)
	}
	if cfg.Toolchain.Timeout.Duration() != 10*time.Second {
		t.Errorf("Toolchain.Timeout = %v, want 10s (env)", cfg.Toolchain.Timeout)
	}
	if cfg.Pipeline.MaxAttempts != 4 {
		t.Errorf("Pipeline.MaxAttempts = %d, want 4 (env)", cfg.Pipeline.MaxAttempts)
	}
	if cfg.Toolchain.JarPath != "/opt/commcare-cli.jar" {
		t.Errorf("Toolchain.JarPath = %q", cfg.Toolchain.JarPath)
	}
	if cfg.Secrets.Gitleaks {
		t.Error("Secrets.Gitleaks = true, want false (env)")
	}
}

func TestLoad_AnthropicKeyFallback(t *testing.T) {
	setupTestHome(t)
	t.Setenv("ANTHROPIC_API_KEY", "sk-ant-env")

	cfg, err := Load("")
	if err != nil {
		t.Fatalf("Load() error = %v", err)
	}
	if cfg.Generator.APIKey.Value() != "sk-ant-env" {
		t.Error("ANTHROPIC_API_KEY not used as fallback")
	}
}

func TestLoad_MissingFileUsesDefaults(t *testing.T) {
	home := setupTestHome(t)

	cfg, err := Load(filepath.Join(home, ".config", appDir, "absent.yaml"))
	if err != nil {
		t.Fatalf("Load() error = %v", err)
	}
	if cfg.Pipeline.MaxAttempts != 3 {
		t.Errorf("Pipeline.MaxAttempts = %d, want default 3", cfg.Pipeline.MaxAttempts)
	}
	if want := filepath.Join(home, ".local", "share", appDir, "exports"); cfg.Export.Dir != want {
		t.Errorf("Export.Dir = %q, want %q", cfg.Export.Dir, want)
	}
}

func TestLoad_InvalidYAML(t *testing.T) {
	home := setupTestHome(t)
	path := writeConfig(t, home, "pipeline: [unclosed\n", 0o600)

	if _, err := Load(path); err == nil {
		t.Fatal("Load() error = nil, want parse error")
	}
}

func TestLoad_ValidationFailure(t *testing.T) {
	home := setupTestHome(t)
	path := writeConfig(t, home, "pipeline:\n  max_attempts: 0\n", 0o600)

	_, err := Load(path)
	if err == nil || !strings.Contains(err.Error(), "max_attempts") {
		t.Fatalf("Load() error = %v, want max_attempts validation error", err)
	}
}

func TestLoad_RejectsOutsideAllowedDirs(t *testing.T) {
	setupTestHome(t)
	path := filepath.Join(t.TempDir(), "config.yaml")
	if err := os.WriteFile(path, []byte("{}"), 0o600); err != nil {
		t.Fatal(err)
	}

	if _, err := Load(path); err == nil {
		t.Fatal("Load() accepted a config outside the allowed directories")
	}
}

func TestLoad_FilePermissions(t *testing.T) {
	if runtime.GOOS == "windows" {
		t.Skip("permission model differs on Windows")
	}
	tests := []struct {
		perm    os.FileMode
		wantErr bool
	}{
		{0o600, false},
		{0o400, false},
		{0o644, true},
		{0o666, true},
	}
	for _, tt := range tests {
		t.Run(tt.perm.String(), func(t *testing.T) {
			home := setupTestHome(t)
			path := writeConfig(t, home, "http:\n  port: 9001\n", tt.perm)

			_, err := Load(path)
			if tt.wantErr && err == nil {
				t.Errorf("Load() accepted permissions %v", tt.perm)
			}
			if !tt.wantErr && err != nil {
				t.Errorf("Load() error = %v", err)
			}
		})
	}
}

func TestLoad_FileTooLarge(t *testing.T) {
	home := setupTestHome(t)
	big := "# " + strings.Repeat("x", maxConfigFileSize) + "\n"
	path := writeConfig(t, home, big, 0o600)

	_, err := Load(path)
	if err == nil || !strings.Contains(err.Error(), "too large") {
		t.Fatalf("Load() error = %v, want size error", err)
	}
}

func TestValidateConfigPath(t *testing.T) {
	home := setupTestHome(t)

	valid := []string{
		filepath.Join(home, ".config", appDir, "config.yaml"),
		filepath.Join(home, ".config", appDir, "profiles", "ci.yaml"),
		"/etc/commcare-forge/config.yaml",
	}
	for _, path := range valid {
		if err := validateConfigPath(path); err != nil {
			t.Errorf("validateConfigPath(%q) = %v, want nil", path, err)
		}
	}

	invalid := []string{
		"/etc/passwd",
		"/tmp/config.yaml",
		"/etc/commcare-forge../etc/passwd",
		filepath.Join(home, ".config", appDir, "..", "..", "etc", "passwd"),
	}
	for _, path := range invalid {
		if err := validateConfigPath(path); err == nil {
			t.Errorf("validateConfigPath(%q) = nil, want error", path)
		}
	}
}

func TestEnvKey(t *testing.T) {
	tests := map[string]string{
		"FORGE_TOOLCHAIN_TIMEOUT":     "toolchain.timeout",
		"FORGE_TOOLCHAIN_JAR_PATH":    "toolchain.jar_path",
		"FORGE_GENERATOR_API_KEY":     "generator.api_key",
		"FORGE_PIPELINE_MAX_ATTEMPTS": "pipeline.max_attempts",
		"FORGE_DEBUG":                 "debug",
	}
	for in, want := range tests {
		if got := envKey(in); got != want {
			t.Errorf("envKey(%q) = %q, want %q", in, got, want)
		}
	}
}

func TestEnsureConfigDir(t *testing.T) {
	home := setupTestHome(t)
	if err := EnsureConfigDir(); err != nil {
		t.Fatalf("EnsureConfigDir() error = %v", err)
	}
	info, err := os.Stat(filepath.Join(home, ".config", appDir))
	if err != nil || !info.IsDir() {
		t.Fatalf("config dir not created: %v", err)
	}
}
