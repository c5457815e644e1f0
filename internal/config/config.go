// ABOUTME: Configuration loading and parsing for techno-sutra
// ABOUTME: Supports YAML files with environment variable expansion, env overrides and duration parsing

package config

import (
	"errors"
	"fmt"
	"net/url"
	"os"
	"regexp"
	"time"

	"github.com/caarlos0/env/v11"
	"gopkg.in/yaml.v3"
)

// Config represents the complete techno-sutra configuration
type Config struct {
	Server    ServerConfig    `yaml:"server"`
	Tailscale TailscaleConfig `yaml:"tailscale"`
	Database  DatabaseConfig  `yaml:"database"`
	Assets    AssetsConfig    `yaml:"assets"`
	Prefetch  PrefetchConfig  `yaml:"prefetch"`
	Location  LocationConfig  `yaml:"location"`
	Proximity ProximityConfig `yaml:"proximity"`
	Route     RouteConfig     `yaml:"route"`
	Logging   LoggingConfig   `yaml:"logging"`
	Telemetry TelemetryConfig `yaml:"telemetry"`
}

// ServerConfig holds server address configuration
type ServerConfig struct {
	HTTPAddr string `yaml:"http_addr" env:"TECHNO_SUTRA_HTTP_ADDR"`
}

// TailscaleConfig holds Tailscale tsnet configuration
type TailscaleConfig struct {
	Enabled   bool   `yaml:"enabled"`
	Hostname  string `yaml:"hostname"`
	AuthKey   string `yaml:"auth_key"`
	StateDir  string `yaml:"state_dir"`
	Ephemeral bool   `yaml:"ephemeral"`
}

// DatabaseConfig holds database configuration
type DatabaseConfig struct {
	Path string `yaml:"path" env:"TECHNO_SUTRA_DB_PATH"`
}

// AssetsConfig describes where chapter models come from
type AssetsConfig struct {
	BaseURL string        `yaml:"base_url" env:"TECHNO_SUTRA_ASSET_BASE_URL"`
	Total   int           `yaml:"total"`
	Timeout time.Duration `yaml:"-"`

	// Raw string values for YAML unmarshaling
	TimeoutRaw string `yaml:"timeout"`
}

// PrefetchConfig tunes background warming of neighbouring assets
type PrefetchConfig struct {
	Radius    int     `yaml:"radius"`
	Workers   int     `yaml:"workers"`
	QueueSize int     `yaml:"queue_size"`
	Rate      float64 `yaml:"rate"` // loads per second, 0 for the default
	Burst     int     `yaml:"burst"`
}

// TierConfig holds sensor options for one accuracy tier
type TierConfig struct {
	HighAccuracy bool          `yaml:"high_accuracy"`
	Timeout      time.Duration `yaml:"-"`
	MaxAge       time.Duration `yaml:"-"`

	// Raw string values for YAML unmarshaling
	TimeoutRaw string `yaml:"timeout"`
	MaxAgeRaw  string `yaml:"max_age"`
}

// TiersConfig lists the accuracy tiers from most to least precise
type TiersConfig struct {
	High   TierConfig `yaml:"high"`
	Medium TierConfig `yaml:"medium"`
	Low    TierConfig `yaml:"low"`
}

// LocationConfig holds location tracking configuration
type LocationConfig struct {
	Enabled    bool          `yaml:"enabled"`
	Tiers      TiersConfig   `yaml:"tiers"`
	RetryDelay time.Duration `yaml:"-"`
	// Track is a recorded walk replayed in place of a device sensor
	Track string `yaml:"track" env:"TECHNO_SUTRA_TRACK"`

	// Raw string values for YAML unmarshaling
	RetryDelayRaw string `yaml:"retry_delay"`
}

// ProximityConfig holds chapter matching configuration
type ProximityConfig struct {
	ThresholdMeters float64 `yaml:"threshold_meters"`
	InitialChapter  int     `yaml:"initial_chapter"`
}

// RouteConfig points at the route file
type RouteConfig struct {
	Path  string `yaml:"path" env:"TECHNO_SUTRA_ROUTE"`
	Watch bool   `yaml:"watch"`
}

// LoggingConfig holds logging configuration
type LoggingConfig struct {
	Level  string `yaml:"level" env:"TECHNO_SUTRA_LOG_LEVEL"`
	Format string `yaml:"format"`
}

// TelemetryConfig holds OpenTelemetry tracing configuration
type TelemetryConfig struct {
	Enabled     bool   `yaml:"enabled"`
	Endpoint    string `yaml:"endpoint" env:"OTEL_EXPORTER_OTLP_ENDPOINT"`
	Insecure    bool   `yaml:"insecure"`
	ServiceName string `yaml:"service_name"`
}

// Default returns the configuration used when no file is present.
func Default() *Config {
	return &Config{
		Server:   ServerConfig{HTTPAddr: "127.0.0.1:8080"},
		Database: DatabaseConfig{Path: "techno-sutra.db"},
		Assets: AssetsConfig{
			BaseURL:    "https://cdn.statically.io/gh/technosutra21/technosutra/master/",
			Total:      56,
			Timeout:    10 * time.Second,
			TimeoutRaw: "10s",
		},
		Prefetch: PrefetchConfig{
			Radius:    2,
			Workers:   2,
			QueueSize: 16,
			Rate:      4,
			Burst:     1,
		},
		Location: LocationConfig{
			Enabled: true,
			Tiers: TiersConfig{
				High:   TierConfig{HighAccuracy: true, Timeout: 15 * time.Second, MaxAge: 10 * time.Second, TimeoutRaw: "15s", MaxAgeRaw: "10s"},
				Medium: TierConfig{Timeout: 10 * time.Second, MaxAge: 30 * time.Second, TimeoutRaw: "10s", MaxAgeRaw: "30s"},
				Low:    TierConfig{Timeout: 10 * time.Second, MaxAge: 60 * time.Second, TimeoutRaw: "10s", MaxAgeRaw: "60s"},
			},
			RetryDelay:    time.Second,
			RetryDelayRaw: "1s",
		},
		Proximity: ProximityConfig{ThresholdMeters: 100},
		Logging:   LoggingConfig{Level: "info", Format: "text"},
		Telemetry: TelemetryConfig{ServiceName: "techno-sutra"},
	}
}

// Load reads a configuration file from the given path and returns a parsed Config.
// Values missing from the file keep their defaults. Environment variables in the
// format ${VAR_NAME} are expanded, then TECHNO_SUTRA_* overrides are applied.
func Load(path string) (*Config, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("reading config file: %w", err)
	}
	return Parse(data)
}

// LoadOrDefault behaves like Load but falls back to Default when the file
// does not exist.
func LoadOrDefault(path string) (*Config, error) {
	cfg, err := Load(path)
	if err == nil {
		return cfg, nil
	}
	if !errors.Is(err, os.ErrNotExist) {
		return nil, err
	}

	cfg = Default()
	if err := finish(cfg); err != nil {
		return nil, err
	}
	return cfg, nil
}

// Parse decodes YAML configuration content.
func Parse(data []byte) (*Config, error) {
	// Expand environment variables in the raw YAML content
	expandedData := expandEnvVars(string(data))

	cfg := Default()
	if err := yaml.Unmarshal([]byte(expandedData), cfg); err != nil {
		return nil, fmt.Errorf("parsing config file: %w", err)
	}

	if err := finish(cfg); err != nil {
		return nil, err
	}
	return cfg, nil
}

func finish(cfg *Config) error {
	if err := parseDurations(cfg); err != nil {
		return fmt.Errorf("parsing durations: %w", err)
	}

	if err := cfg.ApplyEnv(); err != nil {
		return err
	}

	if err := cfg.Validate(); err != nil {
		return fmt.Errorf("validating config: %w", err)
	}
	return nil
}

// ApplyEnv overrides fields tagged with env from the process environment.
func (c *Config) ApplyEnv() error {
	if err := env.Parse(c); err != nil {
		return fmt.Errorf("parse env: %w", err)
	}
	return nil
}

// expandEnvVars replaces ${VAR_NAME} patterns with the corresponding environment variable values.
// If the environment variable is not set, it is replaced with an empty string.
func expandEnvVars(s string) string {
	re := regexp.MustCompile(`\$\{([^}]+)\}`)

	return re.ReplaceAllStringFunc(s, func(match string) string {
		varName := re.FindStringSubmatch(match)[1]
		return os.Getenv(varName)
	})
}

var validLevels = map[string]bool{"debug": true, "info": true, "warn": true, "error": true}

// Validate checks that all required configuration fields are present and valid.
// Returns an error describing the first validation failure encountered.
func (c *Config) Validate() error {
	// Server address is required unless Tailscale is enabled
	if !c.Tailscale.Enabled && c.Server.HTTPAddr == "" {
		return fmt.Errorf("server.http_addr is required (or enable tailscale)")
	}

	// Tailscale requires a hostname
	if c.Tailscale.Enabled && c.Tailscale.Hostname == "" {
		return fmt.Errorf("tailscale.hostname is required when tailscale is enabled")
	}

	if c.Database.Path == "" {
		return fmt.Errorf("database.path is required")
	}

	u, err := url.Parse(c.Assets.BaseURL)
	if err != nil || (u.Scheme != "http" && u.Scheme != "https") || u.Host == "" {
		return fmt.Errorf("assets.base_url must be an http(s) URL, got %q", c.Assets.BaseURL)
	}
	if c.Assets.Total <= 0 {
		return fmt.Errorf("assets.total must be positive")
	}
	if c.Assets.Timeout <= 0 {
		return fmt.Errorf("assets.timeout must be positive")
	}

	if c.Prefetch.Radius < 0 {
		return fmt.Errorf("prefetch.radius must not be negative")
	}
	if c.Prefetch.Workers < 0 || c.Prefetch.QueueSize < 0 || c.Prefetch.Burst < 0 {
		return fmt.Errorf("prefetch.workers, queue_size and burst must not be negative")
	}
	if c.Prefetch.Rate < 0 {
		return fmt.Errorf("prefetch.rate must not be negative")
	}

	for name, tier := range map[string]TierConfig{
		"high":   c.Location.Tiers.High,
		"medium": c.Location.Tiers.Medium,
		"low":    c.Location.Tiers.Low,
	} {
		if tier.Timeout <= 0 {
			return fmt.Errorf("location.tiers.%s.timeout must be positive", name)
		}
		if tier.MaxAge < 0 {
			return fmt.Errorf("location.tiers.%s.max_age must not be negative", name)
		}
	}

	if c.Proximity.ThresholdMeters <= 0 {
		return fmt.Errorf("proximity.threshold_meters must be positive")
	}
	if c.Proximity.InitialChapter < 0 || c.Proximity.InitialChapter > c.Assets.Total {
		return fmt.Errorf("proximity.initial_chapter must be between 0 and %d", c.Assets.Total)
	}

	if !validLevels[c.Logging.Level] {
		return fmt.Errorf("logging.level must be one of debug, info, warn, error")
	}

	if c.Telemetry.Enabled && c.Telemetry.Endpoint == "" {
		return fmt.Errorf("telemetry.endpoint is required when telemetry is enabled")
	}

	return nil
}

// parseDurations converts the raw duration strings into time.Duration values
func parseDurations(cfg *Config) error {
	fields := []struct {
		name string
		raw  string
		dst  *time.Duration
	}{
		{"assets.timeout", cfg.Assets.TimeoutRaw, &cfg.Assets.Timeout},
		{"location.retry_delay", cfg.Location.RetryDelayRaw, &cfg.Location.RetryDelay},
		{"location.tiers.high.timeout", cfg.Location.Tiers.High.TimeoutRaw, &cfg.Location.Tiers.High.Timeout},
		{"location.tiers.high.max_age", cfg.Location.Tiers.High.MaxAgeRaw, &cfg.Location.Tiers.High.MaxAge},
		{"location.tiers.medium.timeout", cfg.Location.Tiers.Medium.TimeoutRaw, &cfg.Location.Tiers.Medium.Timeout},
		{"location.tiers.medium.max_age", cfg.Location.Tiers.Medium.MaxAgeRaw, &cfg.Location.Tiers.Medium.MaxAge},
		{"location.tiers.low.timeout", cfg.Location.Tiers.Low.TimeoutRaw, &cfg.Location.Tiers.Low.Timeout},
		{"location.tiers.low.max_age", cfg.Location.Tiers.Low.MaxAgeRaw, &cfg.Location.Tiers.Low.MaxAge},
	}

	for _, f := range fields {
		if f.raw == "" {
			continue
		}
		d, err := time.ParseDuration(f.raw)
		if err != nil {
			return fmt.Errorf("parsing %s %q: %w", f.name, f.raw, err)
		}
		*f.dst = d
	}

	return nil
}
