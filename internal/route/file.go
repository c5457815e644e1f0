// ABOUTME: Route source backed by a YAML or TOML file
// ABOUTME: Watches the file with fsnotify and swaps in the new route when it changes

package route

import (
	"context"
	"fmt"
	"log/slog"
	"os"
	"path/filepath"
	"slices"
	"strings"
	"sync"

	"github.com/BurntSushi/toml"
	"github.com/fsnotify/fsnotify"
	"gopkg.in/yaml.v3"

	"github.com/technosutra21/Techno/internal/events"
)

type document struct {
	Points []Point `yaml:"points" toml:"points"`
}

// Parse decodes a route document. format is "yaml" or "toml".
func Parse(data []byte, format string) ([]Point, error) {
	var doc document
	switch format {
	case "yaml", "yml":
		if err := yaml.Unmarshal(data, &doc); err != nil {
			return nil, fmt.Errorf("parsing yaml route: %w", err)
		}
	case "toml":
		if _, err := toml.Decode(string(data), &doc); err != nil {
			return nil, fmt.Errorf("parsing toml route: %w", err)
		}
	default:
		return nil, fmt.Errorf("unsupported route format %q", format)
	}

	if err := Validate(doc.Points); err != nil {
		return nil, err
	}
	return doc.Points, nil
}

// formatOf derives the document format from a file extension.
func formatOf(path string) string {
	return strings.TrimPrefix(strings.ToLower(filepath.Ext(path)), ".")
}

// File is a Source read from disk.
type File struct {
	path   string
	logger *slog.Logger

	mu     sync.RWMutex
	points []Point

	reloads *events.Bus[[]Point]
}

// OpenFile reads and validates the route at path.
func OpenFile(path string, logger *slog.Logger) (*File, error) {
	if logger == nil {
		logger = slog.Default()
	}
	abs, err := filepath.Abs(filepath.Clean(path))
	if err != nil {
		return nil, fmt.Errorf("resolving route path: %w", err)
	}

	logger = logger.With("component", "route", "path", abs)
	f := &File{
		path:    abs,
		logger:  logger,
		reloads: events.NewBus[[]Point]("route_reload", logger),
	}
	if err := f.Reload(); err != nil {
		return nil, err
	}
	return f, nil
}

// Path returns the absolute file path.
func (f *File) Path() string {
	return f.path
}

// Points returns a copy of the current route.
func (f *File) Points() []Point {
	f.mu.RLock()
	defer f.mu.RUnlock()
	return slices.Clone(f.points)
}

// Reload re-reads the file. On error the previous route is kept.
func (f *File) Reload() error {
	data, err := os.ReadFile(f.path)
	if err != nil {
		return fmt.Errorf("reading route file: %w", err)
	}
	points, err := Parse(data, formatOf(f.path))
	if err != nil {
		return err
	}

	f.mu.Lock()
	f.points = points
	f.mu.Unlock()

	f.logger.Info("route loaded", "points", len(points))
	f.reloads.Publish(slices.Clone(points))
	return nil
}

// OnReload registers fn for every successful reload.
func (f *File) OnReload(fn func([]Point)) *events.Subscription {
	return f.reloads.Subscribe(fn)
}

// Watch reloads the route whenever the file is written or replaced, until
// ctx is cancelled. The parent directory is watched so editors that save
// by rename are picked up.
func (f *File) Watch(ctx context.Context) error {
	watcher, err := fsnotify.NewWatcher()
	if err != nil {
		return fmt.Errorf("creating watcher: %w", err)
	}
	defer watcher.Close()

	if err := watcher.Add(filepath.Dir(f.path)); err != nil {
		return fmt.Errorf("watching %s: %w", filepath.Dir(f.path), err)
	}

	base := filepath.Base(f.path)
	for {
		select {
		case <-ctx.Done():
			return nil
		case err, ok := <-watcher.Errors:
			if !ok {
				return nil
			}
			f.logger.Warn("route watcher error", "error", err)
		case event, ok := <-watcher.Events:
			if !ok {
				return nil
			}
			if filepath.Base(event.Name) != base {
				continue
			}
			if event.Op&(fsnotify.Write|fsnotify.Create) == 0 {
				continue
			}
			if err := f.Reload(); err != nil {
				f.logger.Warn("route reload failed, keeping previous route", "error", err)
			}
		}
	}
}

// Close drops reload listeners.
func (f *File) Close() {
	f.reloads.Close()
}
