// ABOUTME: Client-side commands of the techno-sutra binary
// ABOUTME: Fetches models into the local cache, prints the route and queries a running service

package main

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"os"
	"strconv"

	"github.com/fatih/color"

	"github.com/technosutra21/Techno/internal/assetcache"
	"github.com/technosutra21/Techno/internal/config"
	"github.com/technosutra21/Techno/internal/journey"
	"github.com/technosutra21/Techno/internal/location"
	"github.com/technosutra21/Techno/internal/route"
	"github.com/technosutra21/Techno/internal/store"
)

// runFetch loads the given chapter models through the cache so they are
// available offline.
func runFetch(ctx context.Context, args []string) error {
	if len(args) == 0 {
		return errors.New("usage: techno-sutra fetch ID...")
	}

	cfg, _, err := loadConfig()
	if err != nil {
		return err
	}
	logger := setupLogger(cfg.Logging)

	ids := make([]int, 0, len(args))
	for _, a := range args {
		id, err := strconv.Atoi(a)
		if err != nil || id < 1 || id > cfg.Assets.Total {
			return fmt.Errorf("invalid chapter id %q (1-%d)", a, cfg.Assets.Total)
		}
		ids = append(ids, id)
	}

	s, err := store.NewSQLiteStore(cfg.Database.Path)
	if err != nil {
		return fmt.Errorf("opening store: %w", err)
	}
	defer s.Close()

	cache, err := assetcache.New(assetcache.Options{
		Fetcher: assetcache.NewHTTPFetcher(cfg.Assets.BaseURL, nil),
		Store:   s,
		Timeout: cfg.Assets.Timeout,
		Logger:  logger,
	})
	if err != nil {
		return fmt.Errorf("creating asset cache: %w", err)
	}
	defer cache.Close()

	green := color.New(color.FgGreen)
	yellow := color.New(color.FgYellow)

	failed := 0
	for _, id := range ids {
		h := cache.Load(ctx, id)
		if h.Placeholder() {
			failed++
			yellow.Printf("  ✗ %-14s", assetcache.Filename(id))
			fmt.Println(" unavailable")
			continue
		}
		green.Printf("  ✓ %-14s", assetcache.Filename(id))
		fmt.Printf(" %d bytes\n", len(h.Bytes()))
	}

	n, err := s.CountCacheEntries(ctx)
	if err == nil {
		fmt.Printf("\n%d models cached in %s\n", n, cfg.Database.Path)
	}

	if failed > 0 {
		return fmt.Errorf("%d of %d models could not be fetched", failed, len(ids))
	}
	return nil
}

// runClear deletes every model from the local cache database.
func runClear(ctx context.Context) error {
	cfg, _, err := loadConfig()
	if err != nil {
		return err
	}

	s, err := store.NewSQLiteStore(cfg.Database.Path)
	if err != nil {
		return fmt.Errorf("opening store: %w", err)
	}
	defer s.Close()

	n, err := s.ClearCacheEntries(ctx)
	if err != nil {
		return fmt.Errorf("clearing cache: %w", err)
	}
	fmt.Printf("Removed %d cached models from %s\n", n, cfg.Database.Path)
	return nil
}

// runRoute prints the route in sequence order with the distance between
// consecutive points.
func runRoute(args []string) error {
	cfg, _, err := loadConfig()
	if err != nil {
		return err
	}

	path := cfg.Route.Path
	if len(args) > 0 {
		path = args[0]
	}
	if path == "" {
		return errors.New("no route file: pass a path or set route.path")
	}

	f, err := route.OpenFile(path, setupLogger(config.LoggingConfig{Level: "warn"}))
	if err != nil {
		return err
	}
	defer f.Close()

	gray := color.New(color.FgHiBlack)
	cyan := color.New(color.FgCyan)

	points := route.Sorted(f.Points())
	total := 0.0
	for i, p := range points {
		cyan.Printf("%4d ", p.SequenceIndex)
		fmt.Printf("chapter %-3d %10.5f %11.5f  %s", p.ChapterID, p.Lat, p.Lng, p.Label)
		if i > 0 {
			prev := points[i-1]
			d := location.DistanceMeters(prev.Lat, prev.Lng, p.Lat, p.Lng)
			total += d
			gray.Printf("  +%.0fm", d)
		}
		fmt.Println()
	}
	fmt.Printf("\n%d points, %.2f km\n", len(points), total/1000)
	return nil
}

// getJSON queries a running service.
func getJSON(ctx context.Context, cfg *config.Config, path string) ([]byte, error) {
	url := fmt.Sprintf("http://%s%s", cfg.Server.HTTPAddr, path)
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, url, nil)
	if err != nil {
		return nil, fmt.Errorf("creating request: %w", err)
	}

	resp, err := http.DefaultClient.Do(req)
	if err != nil {
		return nil, fmt.Errorf("request failed: %w", err)
	}
	defer resp.Body.Close()

	body, err := io.ReadAll(resp.Body)
	if err != nil {
		return nil, fmt.Errorf("reading response: %w", err)
	}
	if resp.StatusCode != http.StatusOK {
		return nil, fmt.Errorf("unexpected status %d: %s", resp.StatusCode, body)
	}
	return body, nil
}

func runHealth(ctx context.Context) error {
	cfg, _, err := loadConfig()
	if err != nil {
		return err
	}

	if _, err := getJSON(ctx, cfg, "/health"); err != nil {
		return fmt.Errorf("health check failed: %w", err)
	}

	fmt.Println("healthy")
	return nil
}

func runStats(ctx context.Context, args []string) error {
	cfg, _, err := loadConfig()
	if err != nil {
		return err
	}

	body, err := getJSON(ctx, cfg, "/api/stats")
	if err != nil {
		return err
	}

	if len(args) > 0 && args[0] == "--json" {
		var out bytes.Buffer
		if err := json.Indent(&out, body, "", "  "); err != nil {
			return fmt.Errorf("formatting stats: %w", err)
		}
		_, err = out.WriteTo(os.Stdout)
		return err
	}

	var stats journey.StatsResponse
	if err := json.Unmarshal(body, &stats); err != nil {
		return fmt.Errorf("decoding stats: %w", err)
	}

	fmt.Printf("Active chapter: %d\n", stats.ActiveChapter)
	fmt.Printf("Route points:   %d\n", stats.RoutePoints)
	fmt.Printf("Location:       tier=%s active=%t\n", stats.Location.Tier, stats.Location.Active)
	fmt.Printf("Cache:          loaded=%d in_flight=%d foreground=%d\n",
		stats.Cache.Loaded, stats.Cache.InFlight, stats.Cache.Foreground)
	fmt.Printf("Loaded IDs:     %v\n", stats.LoadedIDs)
	fmt.Printf("Prefetching:    %v\n", stats.PrefetchPending)
	return nil
}
