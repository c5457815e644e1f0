// ABOUTME: Entry point for the techno-sutra journey service
// ABOUTME: Serves the journey API and offers asset, route and status commands

package main

import (
	"context"
	"fmt"
	"os"
	"os/signal"
	"path/filepath"
	"syscall"

	"github.com/fatih/color"

	"github.com/technosutra21/Techno/internal/config"
	"github.com/technosutra21/Techno/internal/journey"
	"github.com/technosutra21/Techno/internal/telemetry"
)

// Version is set by goreleaser at build time.
var version = "dev"

const banner = `
 _            _                                 _
| |_ ___  ___| |__  _ __   ___        ___ _   _| |_ _ __ __ _
| __/ _ \/ __| '_ \| '_ \ / _ \ _____/ __| | | | __| '__/ _' |
| ||  __/ (__| | | | | | | (_) |_____\__ \ |_| | |_| | | (_| |
 \__\___|\___|_| |_|_| |_|\___/      |___/\__,_|\__|_|  \__,_|
`

// getConfigPath returns the path to the config file.
// Priority: TECHNO_SUTRA_CONFIG env var > XDG_CONFIG_HOME/techno-sutra/config.yaml > ~/.config/techno-sutra/config.yaml
func getConfigPath() string {
	if envPath := os.Getenv("TECHNO_SUTRA_CONFIG"); envPath != "" {
		return envPath
	}

	configDir := os.Getenv("XDG_CONFIG_HOME")
	if configDir == "" {
		homeDir, err := os.UserHomeDir()
		if err != nil {
			return "config.yaml" // fallback
		}
		configDir = filepath.Join(homeDir, ".config")
	}

	return filepath.Join(configDir, "techno-sutra", "config.yaml")
}

// getDataPath returns the path to the techno-sutra data directory.
// Priority: XDG_DATA_HOME/techno-sutra > ~/.local/share/techno-sutra
func getDataPath() string {
	dataDir := os.Getenv("XDG_DATA_HOME")
	if dataDir == "" {
		homeDir, err := os.UserHomeDir()
		if err != nil {
			return "data" // fallback
		}
		dataDir = filepath.Join(homeDir, ".local", "share")
	}

	return filepath.Join(dataDir, "techno-sutra")
}

// loadConfig reads the config file, falling back to defaults, and moves the
// default database into the data directory.
func loadConfig() (*config.Config, string, error) {
	configPath := getConfigPath()

	cfg, err := config.LoadOrDefault(configPath)
	if err != nil {
		return nil, configPath, fmt.Errorf("loading config: %w", err)
	}

	if cfg.Database.Path == config.Default().Database.Path {
		dataPath := getDataPath()
		if err := os.MkdirAll(dataPath, 0o755); err != nil {
			return nil, configPath, fmt.Errorf("creating data dir: %w", err)
		}
		cfg.Database.Path = filepath.Join(dataPath, cfg.Database.Path)
	}

	return cfg, configPath, nil
}

func main() {
	if len(os.Args) < 2 {
		fmt.Println("Usage: techno-sutra <command>")
		fmt.Println()
		fmt.Println("Commands:")
		fmt.Println("  serve            Start the journey service")
		fmt.Println("  fetch ID...      Load chapter models into the local cache")
		fmt.Println("  clear            Delete every model from the local cache")
		fmt.Println("  route [PATH]     Show the route in sequence order")
		fmt.Println("  health           Check service health")
		fmt.Println("  stats [--json]   Show cache, prefetch and location stats")
		os.Exit(1)
	}

	ctx, cancel := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer cancel()

	var err error
	switch os.Args[1] {
	case "serve":
		err = runServe(ctx)
	case "fetch":
		err = runFetch(ctx, os.Args[2:])
	case "clear":
		err = runClear(ctx)
	case "route":
		err = runRoute(os.Args[2:])
	case "health":
		err = runHealth(ctx)
	case "stats":
		err = runStats(ctx, os.Args[2:])
	default:
		fmt.Fprintf(os.Stderr, "Unknown command: %s\n", os.Args[1])
		os.Exit(1)
	}

	if err != nil {
		fmt.Fprintf(os.Stderr, "Error: %v\n", err)
		os.Exit(1)
	}
}

func runServe(ctx context.Context) error {
	// Print banner
	cyan := color.New(color.FgCyan)
	cyan.Print(banner)

	// Version info
	gray := color.New(color.FgHiBlack)
	gray.Printf("    version: %s\n\n", version)

	cfg, configPath, err := loadConfig()
	if err != nil {
		return err
	}

	logger := setupLogger(cfg.Logging)

	// Startup info
	green := color.New(color.FgGreen)
	yellow := color.New(color.FgYellow)

	green.Print("    ▶ ")
	fmt.Printf("Config:    %s\n", configPath)
	green.Print("    ▶ ")
	fmt.Printf("Database:  %s\n", cfg.Database.Path)
	green.Print("    ▶ ")
	fmt.Printf("Assets:    %s (%d)\n", cfg.Assets.BaseURL, cfg.Assets.Total)
	green.Print("    ▶ ")
	fmt.Printf("HTTP:      %s\n", cfg.Server.HTTPAddr)

	if cfg.Route.Path != "" {
		green.Print("    ▶ ")
		fmt.Printf("Route:     %s", cfg.Route.Path)
		if cfg.Route.Watch {
			gray.Print(" (watching)")
		}
		fmt.Println()
	}
	if cfg.Location.Track != "" {
		green.Print("    ▶ ")
		fmt.Printf("Track:     ")
		yellow.Println(cfg.Location.Track + " [replay]")
	}

	// Tailscale status
	if cfg.Tailscale.Enabled {
		green.Print("    ▶ ")
		fmt.Printf("Tailscale: ")
		cyan.Print(cfg.Tailscale.Hostname)
		if cfg.Tailscale.Ephemeral {
			gray.Print(" (ephemeral)")
		}
		fmt.Println()
	}

	fmt.Println()

	shutdownTracing, err := telemetry.Setup(ctx, cfg.Telemetry, version)
	if err != nil {
		return fmt.Errorf("setting up telemetry: %w", err)
	}
	defer func() {
		if err := shutdownTracing(context.Background()); err != nil {
			logger.Warn("telemetry shutdown failed", "error", err)
		}
	}()

	logger.Info("starting techno-sutra",
		"config", configPath,
		"http_addr", cfg.Server.HTTPAddr,
		"asset_base_url", cfg.Assets.BaseURL,
	)

	j, err := journey.New(cfg, journey.Deps{Logger: logger})
	if err != nil {
		return fmt.Errorf("creating journey: %w", err)
	}

	return j.Run(ctx)
}
