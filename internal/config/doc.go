// Package config handles configuration loading for techno-sutra.
//
// # Overview
//
// Configuration is loaded from a YAML file on top of built-in defaults.
// Anything the file leaves out keeps its default value, so an empty or
// missing file yields a working setup pointed at the public model CDN.
//
// # Configuration File
//
// Default location (in order):
//
//  1. Path from TECHNO_SUTRA_CONFIG environment variable
//  2. $XDG_CONFIG_HOME/techno-sutra/config.yaml
//  3. ~/.config/techno-sutra/config.yaml
//
// # Environment Variables
//
// Values can reference environment variables:
//
//	tailscale:
//	  auth_key: "${TS_AUTHKEY}"
//
// Some fields can also be overridden directly, after the file is read:
//
//	TECHNO_SUTRA_HTTP_ADDR       server.http_addr
//	TECHNO_SUTRA_DB_PATH         database.path
//	TECHNO_SUTRA_ASSET_BASE_URL  assets.base_url
//	TECHNO_SUTRA_ROUTE           route.path
//	TECHNO_SUTRA_TRACK           location.track
//	TECHNO_SUTRA_LOG_LEVEL       logging.level
//	OTEL_EXPORTER_OTLP_ENDPOINT  telemetry.endpoint
//
// # Duration Parsing
//
// Duration values use Go's time.ParseDuration syntax:
//
//	assets:
//	  timeout: "10s"
//	location:
//	  retry_delay: "1s"
//	  tiers:
//	    high:   {high_accuracy: true, timeout: "15s", max_age: "10s"}
//	    medium: {timeout: "10s", max_age: "30s"}
//	    low:    {timeout: "10s", max_age: "60s"}
//
// # Configuration Sections
//
//	server:
//	  http_addr: "127.0.0.1:8080"
//	database:
//	  path: "/var/lib/techno-sutra/cache.db"
//	assets:
//	  base_url: "https://cdn.statically.io/gh/technosutra21/technosutra/master/"
//	  total: 56
//	prefetch:
//	  radius: 2      # neighbours warmed on each side
//	  workers: 2
//	  queue_size: 16
//	  rate: 4        # background loads per second
//	proximity:
//	  threshold_meters: 100
//	  initial_chapter: 0
//	route:
//	  path: "route.yaml"   # .yaml or .toml
//	  watch: true
//	telemetry:
//	  enabled: false
//	  endpoint: "localhost:4318"
//	logging:
//	  level: "info"   # debug, info, warn, error
//	  format: "text"  # text, json
//
// # Usage
//
//	cfg, err := config.LoadOrDefault(path)
//	if err != nil {
//	    return err
//	}
package config
