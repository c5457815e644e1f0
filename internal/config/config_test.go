// ABOUTME: Tests for configuration loading and parsing
// ABOUTME: Covers YAML loading, defaults, env var expansion, env overrides and duration parsing

package config

import (
	"os"
	"path/filepath"
	"strings"
	"testing"
	"time"
)

func writeConfig(t *testing.T, content string) string {
	t.Helper()
	configPath := filepath.Join(t.TempDir(), "config.yaml")
	if err := os.WriteFile(configPath, []byte(content), 0644); err != nil {
		t.Fatalf("failed to write test config: %v", err)
	}
	return configPath
}

func TestLoad_ValidConfig(t *testing.T) {
	configPath := writeConfig(t, `
server:
  http_addr: "0.0.0.0:8080"

database:
  path: "./test.db"

assets:
  base_url: "https://models.example.com/glb/"
  total: 40
  timeout: "5s"

prefetch:
  radius: 3
  workers: 4
  rate: 0.5

location:
  retry_delay: "2s"
  track: "walk.yaml"
  tiers:
    high:
      high_accuracy: true
      timeout: "20s"
      max_age: "5s"

proximity:
  threshold_meters: 75
  initial_chapter: 3

route:
  path: "route.toml"
  watch: true

logging:
  level: "debug"
  format: "json"
`)

	cfg, err := Load(configPath)
	if err != nil {
		t.Fatalf("Load() error = %v", err)
	}

	if cfg.Server.HTTPAddr != "0.0.0.0:8080" {
		t.Errorf("Server.HTTPAddr = %q, want %q", cfg.Server.HTTPAddr, "0.0.0.0:8080")
	}
	if cfg.Database.Path != "./test.db" {
		t.Errorf("Database.Path = %q, want %q", cfg.Database.Path, "./test.db")
	}

	if cfg.Assets.BaseURL != "https://models.example.com/glb/" {
		t.Errorf("Assets.BaseURL = %q", cfg.Assets.BaseURL)
	}
	if cfg.Assets.Total != 40 {
		t.Errorf("Assets.Total = %d, want 40", cfg.Assets.Total)
	}
	if cfg.Assets.Timeout != 5*time.Second {
		t.Errorf("Assets.Timeout = %v, want %v", cfg.Assets.Timeout, 5*time.Second)
	}

	if cfg.Prefetch.Radius != 3 || cfg.Prefetch.Workers != 4 || cfg.Prefetch.Rate != 0.5 {
		t.Errorf("Prefetch = %+v", cfg.Prefetch)
	}
	// Unset prefetch values keep their defaults
	if cfg.Prefetch.QueueSize != 16 {
		t.Errorf("Prefetch.QueueSize = %d, want default 16", cfg.Prefetch.QueueSize)
	}

	if cfg.Location.RetryDelay != 2*time.Second {
		t.Errorf("Location.RetryDelay = %v, want %v", cfg.Location.RetryDelay, 2*time.Second)
	}
	if cfg.Location.Tiers.High.Timeout != 20*time.Second {
		t.Errorf("Location.Tiers.High.Timeout = %v, want %v", cfg.Location.Tiers.High.Timeout, 20*time.Second)
	}
	if cfg.Location.Tiers.High.MaxAge != 5*time.Second {
		t.Errorf("Location.Tiers.High.MaxAge = %v, want %v", cfg.Location.Tiers.High.MaxAge, 5*time.Second)
	}
	if cfg.Location.Tiers.Low.MaxAge != 60*time.Second {
		t.Errorf("Location.Tiers.Low.MaxAge = %v, want default %v", cfg.Location.Tiers.Low.MaxAge, 60*time.Second)
	}
	if cfg.Location.Track != "walk.yaml" {
		t.Errorf("Location.Track = %q, want %q", cfg.Location.Track, "walk.yaml")
	}

	if cfg.Proximity.ThresholdMeters != 75 {
		t.Errorf("Proximity.ThresholdMeters = %v, want 75", cfg.Proximity.ThresholdMeters)
	}
	if cfg.Proximity.InitialChapter != 3 {
		t.Errorf("Proximity.InitialChapter = %d, want 3", cfg.Proximity.InitialChapter)
	}

	if cfg.Route.Path != "route.toml" || !cfg.Route.Watch {
		t.Errorf("Route = %+v", cfg.Route)
	}

	if cfg.Logging.Level != "debug" {
		t.Errorf("Logging.Level = %q, want %q", cfg.Logging.Level, "debug")
	}
	if cfg.Logging.Format != "json" {
		t.Errorf("Logging.Format = %q, want %q", cfg.Logging.Format, "json")
	}
}

func TestDefault_IsValid(t *testing.T) {
	cfg := Default()
	if err := cfg.Validate(); err != nil {
		t.Fatalf("Default().Validate() error = %v", err)
	}

	if cfg.Assets.Total != 56 {
		t.Errorf("Assets.Total = %d, want 56", cfg.Assets.Total)
	}
	if cfg.Assets.Timeout != 10*time.Second {
		t.Errorf("Assets.Timeout = %v, want %v", cfg.Assets.Timeout, 10*time.Second)
	}
	if !cfg.Location.Tiers.High.HighAccuracy || cfg.Location.Tiers.Medium.HighAccuracy {
		t.Error("only the high tier should request high accuracy")
	}
	if cfg.Proximity.ThresholdMeters != 100 {
		t.Errorf("Proximity.ThresholdMeters = %v, want 100", cfg.Proximity.ThresholdMeters)
	}
}

func TestLoad_EnvVarExpansion(t *testing.T) {
	t.Setenv("TEST_ASSET_HOST", "assets.internal")
	t.Setenv("TEST_TS_KEY", "tskey-from-env")

	configPath := writeConfig(t, `
tailscale:
  enabled: true
  hostname: "techno-sutra"
  auth_key: "${TEST_TS_KEY}"

assets:
  base_url: "https://${TEST_ASSET_HOST}/models/"
`)

	cfg, err := Load(configPath)
	if err != nil {
		t.Fatalf("Load() error = %v", err)
	}

	if cfg.Assets.BaseURL != "https://assets.internal/models/" {
		t.Errorf("Assets.BaseURL = %q, want %q", cfg.Assets.BaseURL, "https://assets.internal/models/")
	}
	if cfg.Tailscale.AuthKey != "tskey-from-env" {
		t.Errorf("Tailscale.AuthKey = %q, want %q", cfg.Tailscale.AuthKey, "tskey-from-env")
	}
}

func TestLoad_EnvOverrides(t *testing.T) {
	t.Setenv("TECHNO_SUTRA_DB_PATH", "/var/lib/techno-sutra/cache.db")
	t.Setenv("TECHNO_SUTRA_HTTP_ADDR", ":9090")
	t.Setenv("TECHNO_SUTRA_LOG_LEVEL", "warn")
	t.Setenv("TECHNO_SUTRA_ASSET_BASE_URL", "http://localhost:8000/")

	configPath := writeConfig(t, `
server:
  http_addr: "0.0.0.0:8080"
database:
  path: "./test.db"
logging:
  level: "debug"
`)

	cfg, err := Load(configPath)
	if err != nil {
		t.Fatalf("Load() error = %v", err)
	}

	if cfg.Database.Path != "/var/lib/techno-sutra/cache.db" {
		t.Errorf("Database.Path = %q, env override not applied", cfg.Database.Path)
	}
	if cfg.Server.HTTPAddr != ":9090" {
		t.Errorf("Server.HTTPAddr = %q, want %q", cfg.Server.HTTPAddr, ":9090")
	}
	if cfg.Logging.Level != "warn" {
		t.Errorf("Logging.Level = %q, want %q", cfg.Logging.Level, "warn")
	}
	if cfg.Assets.BaseURL != "http://localhost:8000/" {
		t.Errorf("Assets.BaseURL = %q, want %q", cfg.Assets.BaseURL, "http://localhost:8000/")
	}
}

func TestLoadOrDefault_MissingFile(t *testing.T) {
	t.Setenv("TECHNO_SUTRA_DB_PATH", "from-env.db")

	cfg, err := LoadOrDefault(filepath.Join(t.TempDir(), "missing.yaml"))
	if err != nil {
		t.Fatalf("LoadOrDefault() error = %v", err)
	}
	if cfg.Database.Path != "from-env.db" {
		t.Errorf("Database.Path = %q, want %q", cfg.Database.Path, "from-env.db")
	}
	if cfg.Server.HTTPAddr != "127.0.0.1:8080" {
		t.Errorf("Server.HTTPAddr = %q, want default", cfg.Server.HTTPAddr)
	}
}

func TestLoadOrDefault_InvalidFileIsAnError(t *testing.T) {
	configPath := writeConfig(t, "server: [\n")
	if _, err := LoadOrDefault(configPath); err == nil {
		t.Error("LoadOrDefault() expected error for invalid YAML, got nil")
	}
}

func TestLoad_MissingFile(t *testing.T) {
	_, err := Load("/nonexistent/path/config.yaml")
	if err == nil {
		t.Error("Load() expected error for missing file, got nil")
	}
}

func TestLoad_InvalidDuration(t *testing.T) {
	for _, content := range []string{
		"assets:\n  timeout: \"soon\"\n",
		"location:\n  retry_delay: \"1 second\"\n",
		"location:\n  tiers:\n    low:\n      max_age: \"forever\"\n",
	} {
		if _, err := Load(writeConfig(t, content)); err == nil {
			t.Errorf("Load(%q) expected error for invalid duration, got nil", content)
		}
	}
}

func TestValidate(t *testing.T) {
	tests := []struct {
		name          string
		mutate        func(*Config)
		wantErrSubstr string
	}{
		{
			name:          "missing http_addr",
			mutate:        func(c *Config) { c.Server.HTTPAddr = "" },
			wantErrSubstr: "server.http_addr is required",
		},
		{
			name: "tailscale enabled allows empty http_addr",
			mutate: func(c *Config) {
				c.Server.HTTPAddr = ""
				c.Tailscale = TailscaleConfig{Enabled: true, Hostname: "techno-sutra"}
			},
		},
		{
			name:          "tailscale enabled requires hostname",
			mutate:        func(c *Config) { c.Tailscale.Enabled = true },
			wantErrSubstr: "tailscale.hostname is required",
		},
		{
			name:          "missing database path",
			mutate:        func(c *Config) { c.Database.Path = "" },
			wantErrSubstr: "database.path is required",
		},
		{
			name:          "asset base url without scheme",
			mutate:        func(c *Config) { c.Assets.BaseURL = "cdn.example.com/models" },
			wantErrSubstr: "assets.base_url",
		},
		{
			name:          "zero assets",
			mutate:        func(c *Config) { c.Assets.Total = 0 },
			wantErrSubstr: "assets.total",
		},
		{
			name:          "negative radius",
			mutate:        func(c *Config) { c.Prefetch.Radius = -1 },
			wantErrSubstr: "prefetch.radius",
		},
		{
			name:          "zero tier timeout",
			mutate:        func(c *Config) { c.Location.Tiers.Medium.Timeout = 0 },
			wantErrSubstr: "location.tiers.medium.timeout",
		},
		{
			name:          "zero threshold",
			mutate:        func(c *Config) { c.Proximity.ThresholdMeters = 0 },
			wantErrSubstr: "proximity.threshold_meters",
		},
		{
			name:          "initial chapter beyond total",
			mutate:        func(c *Config) { c.Proximity.InitialChapter = 57 },
			wantErrSubstr: "proximity.initial_chapter",
		},
		{
			name:          "unknown log level",
			mutate:        func(c *Config) { c.Logging.Level = "verbose" },
			wantErrSubstr: "logging.level",
		},
		{
			name:          "telemetry without endpoint",
			mutate:        func(c *Config) { c.Telemetry = TelemetryConfig{Enabled: true} },
			wantErrSubstr: "telemetry.endpoint",
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			cfg := Default()
			tt.mutate(cfg)

			err := cfg.Validate()
			if tt.wantErrSubstr == "" {
				if err != nil {
					t.Errorf("Validate() unexpected error: %v", err)
				}
				return
			}
			if err == nil {
				t.Errorf("Validate() expected error containing %q, got nil", tt.wantErrSubstr)
				return
			}
			if !strings.Contains(err.Error(), tt.wantErrSubstr) {
				t.Errorf("Validate() error = %q, want error containing %q", err.Error(), tt.wantErrSubstr)
			}
		})
	}
}

func TestExpandEnvVars(t *testing.T) {
	t.Setenv("FOO", "bar")
	t.Setenv("BAZ", "qux")

	tests := []struct {
		name     string
		input    string
		expected string
	}{
		{name: "single env var", input: "${FOO}", expected: "bar"},
		{name: "env var with surrounding text", input: "prefix-${FOO}-suffix", expected: "prefix-bar-suffix"},
		{name: "multiple env vars", input: "${FOO}/${BAZ}", expected: "bar/qux"},
		{name: "no env vars", input: "no-vars-here", expected: "no-vars-here"},
		{name: "unset env var", input: "${UNSET_VAR}", expected: ""},
		{name: "empty string", input: "", expected: ""},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			result := expandEnvVars(tt.input)
			if result != tt.expected {
				t.Errorf("expandEnvVars(%q) = %q, want %q", tt.input, result, tt.expected)
			}
		})
	}
}
