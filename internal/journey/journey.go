// ABOUTME: Journey orchestrator wiring location, proximity, asset cache and prefetch together
// ABOUTME: Owns the HTTP API lifecycle, optional tailnet listener and the progress journal

package journey

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"net"
	"net/http"
	"os"
	"path/filepath"
	"sync"
	"time"

	"golang.org/x/sync/errgroup"
	"golang.org/x/time/rate"
	"tailscale.com/ipn/ipnstate"
	"tailscale.com/tsnet"

	"github.com/technosutra21/Techno/internal/assetcache"
	"github.com/technosutra21/Techno/internal/config"
	"github.com/technosutra21/Techno/internal/events"
	"github.com/technosutra21/Techno/internal/location"
	"github.com/technosutra21/Techno/internal/prefetch"
	"github.com/technosutra21/Techno/internal/proximity"
	"github.com/technosutra21/Techno/internal/route"
	"github.com/technosutra21/Techno/internal/store"
)

// advanceQueueSize bounds the advances waiting for the Run loop. Beyond it
// the newest advance replaces the last queued one.
const advanceQueueSize = 16

// Deps overrides the components New would otherwise build from config.
// Every field is optional.
type Deps struct {
	Store   store.Store
	Fetcher assetcache.Fetcher
	Sensor  location.Sensor
	Route   route.Source
	Logger  *slog.Logger
}

// Journey runs one traveller's session: location samples drive chapter
// advances, every advance is journaled and loads the chapter's model, and
// the prefetch scheduler warms the neighbouring chapters.
type Journey struct {
	config      *config.Config
	logger      *slog.Logger
	store       store.Store
	cache       *assetcache.Cache
	scheduler   *prefetch.Scheduler
	tracker     *location.Tracker
	sensor      location.Sensor
	hasSensor   bool
	matcher     *proximity.Matcher
	route       route.Source
	routeFile   *route.File
	httpServer  *http.Server
	tsnetServer *tsnet.Server

	subs []*events.Subscription

	queueMu  sync.Mutex
	advances []proximity.Event
	wake     chan struct{}

	mu        sync.Mutex
	current   int
	enteredAt time.Time
	now       func() time.Time
}

// initStore creates the SQLite store at the configured path.
func initStore(cfg *config.Config) (store.Store, error) {
	s, err := store.NewSQLiteStore(cfg.Database.Path)
	if err != nil {
		return nil, fmt.Errorf("initializing store: %w", err)
	}
	return s, nil
}

// initSensor returns the replay sensor for a configured track, or nil.
func initSensor(cfg *config.Config) (location.Sensor, error) {
	if !cfg.Location.Enabled || cfg.Location.Track == "" {
		return nil, nil
	}
	tr, err := location.LoadTrack(cfg.Location.Track)
	if err != nil {
		return nil, fmt.Errorf("loading location track: %w", err)
	}
	return location.NewReplaySensor(tr), nil
}

// initRoute opens the configured route file, or returns an empty route.
func initRoute(cfg *config.Config, logger *slog.Logger) (route.Source, *route.File, error) {
	if cfg.Route.Path == "" {
		return route.Static(nil), nil, nil
	}
	f, err := route.OpenFile(cfg.Route.Path, logger)
	if err != nil {
		return nil, nil, fmt.Errorf("opening route: %w", err)
	}
	return f, f, nil
}

// Tiers converts configured accuracy tiers into tracker options.
func Tiers(cfg config.LocationConfig) location.Tiers {
	conv := func(t config.TierConfig) location.Options {
		return location.Options{HighAccuracy: t.HighAccuracy, Timeout: t.Timeout, MaxSampleAge: t.MaxAge}
	}
	return location.Tiers{
		location.TierHigh:   conv(cfg.Tiers.High),
		location.TierMedium: conv(cfg.Tiers.Medium),
		location.TierLow:    conv(cfg.Tiers.Low),
	}
}

// New creates a Journey from cfg. Components in deps take precedence over
// the ones cfg describes.
func New(cfg *config.Config, deps Deps) (*Journey, error) {
	logger := deps.Logger
	if logger == nil {
		logger = slog.Default()
	}

	s := deps.Store
	if s == nil {
		var err error
		if s, err = initStore(cfg); err != nil {
			return nil, err
		}
	}

	fetcher := deps.Fetcher
	if fetcher == nil {
		fetcher = assetcache.NewHTTPFetcher(cfg.Assets.BaseURL, nil)
	}

	cache, err := assetcache.New(assetcache.Options{
		Fetcher: fetcher,
		Store:   s,
		Timeout: cfg.Assets.Timeout,
		Logger:  logger,
	})
	if err != nil {
		_ = s.Close()
		return nil, fmt.Errorf("creating asset cache: %w", err)
	}

	sensor := deps.Sensor
	if sensor == nil {
		if sensor, err = initSensor(cfg); err != nil {
			cache.Close()
			_ = s.Close()
			return nil, err
		}
	}

	src, routeFile := deps.Route, (*route.File)(nil)
	if src == nil {
		if src, routeFile, err = initRoute(cfg, logger); err != nil {
			cache.Close()
			_ = s.Close()
			return nil, err
		}
	}

	j := &Journey{
		config: cfg,
		logger: logger.With("component", "journey"),
		store:  s,
		cache:  cache,
		scheduler: prefetch.New(cache, prefetch.Options{
			Total:     cfg.Assets.Total,
			Radius:    cfg.Prefetch.Radius,
			Workers:   cfg.Prefetch.Workers,
			QueueSize: cfg.Prefetch.QueueSize,
			Rate:      rate.Limit(cfg.Prefetch.Rate),
			Burst:     cfg.Prefetch.Burst,
			Logger:    logger,
		}),
		tracker: location.NewTracker(sensor, location.TrackerOptions{
			Tiers:      Tiers(cfg.Location),
			RetryDelay: cfg.Location.RetryDelay,
			Logger:     logger,
		}),
		sensor:    sensor,
		hasSensor: sensor != nil,
		matcher: proximity.New(proximity.Options{
			Threshold:     cfg.Proximity.ThresholdMeters,
			ActiveChapter: cfg.Proximity.InitialChapter,
			Logger:        logger,
		}),
		route:     src,
		routeFile: routeFile,
		wake:      make(chan struct{}, 1),
		current:   cfg.Proximity.InitialChapter,
		now:       time.Now,
	}
	j.enteredAt = j.now()

	j.scheduler.Attach()
	j.subs = append(j.subs,
		j.matcher.Attach(j.tracker, j.route),
		j.matcher.OnAdvance(j.queueAdvance),
	)
	if routeFile != nil {
		j.logger.Info("route loaded", "path", routeFile.Path(), "points", len(routeFile.Points()))
		j.subs = append(j.subs, routeFile.OnReload(j.routeReloaded))
	}

	mux := http.NewServeMux()
	j.registerRoutes(mux)
	j.httpServer = &http.Server{
		Addr:              cfg.Server.HTTPAddr,
		Handler:           mux,
		ReadHeaderTimeout: 10 * time.Second,
	}

	return j, nil
}

// Handler returns the HTTP API.
func (j *Journey) Handler() http.Handler {
	return j.httpServer.Handler
}

// Cache returns the asset cache owned by the journey.
func (j *Journey) Cache() *assetcache.Cache {
	return j.cache
}

// queueAdvance hands an advance to the Run loop without blocking the
// tracker's delivery goroutine. The matcher's latest chapter is always the
// last queued advance.
func (j *Journey) queueAdvance(ev proximity.Event) {
	j.queueMu.Lock()
	if len(j.advances) < advanceQueueSize {
		j.advances = append(j.advances, ev)
	} else {
		last := j.advances[len(j.advances)-1]
		j.logger.Warn("advance queue full, coalescing chapter advance",
			"skipped_chapter_id", last.Point.ChapterID, "chapter_id", ev.Point.ChapterID)
		j.advances[len(j.advances)-1] = ev
	}
	j.queueMu.Unlock()

	select {
	case j.wake <- struct{}{}:
	default:
	}
}

// takeAdvances empties the queue.
func (j *Journey) takeAdvances() []proximity.Event {
	j.queueMu.Lock()
	defer j.queueMu.Unlock()

	evs := j.advances
	j.advances = nil
	return evs
}

// routeReloaded matches the last known sample against the new route, so a
// waypoint added where the traveller stands advances without a new sample.
func (j *Journey) routeReloaded(points []route.Point) {
	j.logger.Info("route reloaded", "path", j.routeFile.Path(), "points", len(points))

	if s, ok := j.tracker.LastKnown(); ok {
		j.matcher.Evaluate(s, points)
	}
}

// ClearCache revokes every loaded model and deletes the durable copies.
// It returns the number of durable entries removed.
func (j *Journey) ClearCache(ctx context.Context) (int64, error) {
	j.cache.Clear()

	n, err := j.store.ClearCacheEntries(ctx)
	if err != nil {
		return 0, fmt.Errorf("clearing durable cache: %w", err)
	}
	j.logger.Info("asset caches cleared", "durable_removed", n)
	return n, nil
}

// SelectChapter makes id the active chapter on behalf of the user, records
// the visit and loads the chapter's model.
func (j *Journey) SelectChapter(ctx context.Context, id int) (*assetcache.Handle, error) {
	if id < 1 || id > j.config.Assets.Total {
		return nil, fmt.Errorf("%w: chapter %d", assetcache.ErrInvalidID, id)
	}
	j.matcher.SetActiveChapter(id)
	return j.enterChapter(ctx, id, nil), nil
}

// enterChapter journals the move to chapterID and loads its model in the
// foreground. Time spent on the previous chapter is added to its entry.
func (j *Journey) enterChapter(ctx context.Context, chapterID int, sample *location.Sample) *assetcache.Handle {
	now := j.now()

	j.mu.Lock()
	prev, entered := j.current, j.enteredAt
	j.current, j.enteredAt = chapterID, now
	j.mu.Unlock()

	if prev != chapterID {
		j.recordVisit(ctx, prev, entered, chapterID, now, sample)
	}
	return j.cache.Load(ctx, chapterID)
}

func (j *Journey) recordVisit(ctx context.Context, prev int, entered time.Time, chapterID int, now time.Time, sample *location.Sample) {
	if prev != 0 {
		err := j.store.AddTimeSpent(ctx, prev, now.Sub(entered))
		if err != nil && !errors.Is(err, store.ErrNotFound) {
			j.logger.Warn("failed to record time spent", "chapter_id", prev, "error", err)
		}
	}

	if sample == nil {
		if last, ok := j.tracker.LastKnown(); ok {
			sample = &last
		}
	}

	entry := &store.ProgressEntry{ChapterID: chapterID, VisitedAt: now}
	if sample != nil {
		entry.Location = &store.ProgressLocation{
			Lat:      sample.Lat,
			Lng:      sample.Lng,
			Accuracy: sample.AccuracyMeters,
		}
	}
	if err := j.store.RecordVisit(ctx, entry); err != nil {
		j.logger.Warn("failed to record visit", "chapter_id", chapterID, "error", err)
		return
	}
	j.logger.Info("chapter entered", "chapter_id", chapterID, "previous", prev)
}

// processAdvances applies queued chapter advances until ctx is cancelled.
func (j *Journey) processAdvances(ctx context.Context) error {
	for {
		select {
		case <-ctx.Done():
			return nil
		case <-j.wake:
			for _, ev := range j.takeAdvances() {
				h := j.enterChapter(ctx, ev.Point.ChapterID, &ev.Sample)
				j.logger.Debug("advance applied", "chapter_id", ev.Point.ChapterID, "asset_status", h.Status)
			}
		}
	}
}

// startTracking starts the location tracker unless no sensor is configured
// or permission was denied.
func (j *Journey) startTracking(ctx context.Context) {
	if !j.hasSensor {
		j.logger.Info("no location sensor configured, chapters change only through the API")
		return
	}
	if perm := j.tracker.CheckPermission(ctx); perm == location.PermissionDenied {
		j.logger.Warn("location permission denied, tracking disabled")
		return
	}
	if err := j.tracker.Start(ctx); err != nil {
		j.logger.Warn("failed to start location tracking", "error", err)
	}
}

// watchRoute keeps a file-backed route current.
func (j *Journey) watchRoute(ctx context.Context) error {
	if err := j.routeFile.Watch(ctx); err != nil {
		j.logger.Warn("route watch stopped", "error", err)
	}
	return nil
}

// startBackground launches the long-running components on g.
func (j *Journey) startBackground(ctx context.Context, g *errgroup.Group) {
	g.Go(func() error { return j.scheduler.Run(ctx) })
	g.Go(func() error { return j.processAdvances(ctx) })
	if j.routeFile != nil && j.config.Route.Watch {
		g.Go(func() error { return j.watchRoute(ctx) })
	}
	g.Go(func() error {
		j.scheduler.WarmRoute(ctx, route.ChapterIDs(j.route.Points()))
		return nil
	})
	g.Go(func() error {
		j.startTracking(ctx)
		return nil
	})
}

// setupTCPListener creates the standard TCP listener for HTTP.
func (j *Journey) setupTCPListener() (net.Listener, error) {
	j.logger.Info("starting journey", "http_addr", j.config.Server.HTTPAddr)

	ln, err := net.Listen("tcp", j.config.Server.HTTPAddr)
	if err != nil {
		return nil, fmt.Errorf("listening on HTTP address: %w", err)
	}
	return ln, nil
}

// setupListener creates the listener based on configuration (Tailscale or TCP).
func (j *Journey) setupListener(ctx context.Context) (net.Listener, error) {
	if j.config.Tailscale.Enabled {
		if j.config.Server.HTTPAddr != "" {
			j.logger.Warn("server.http_addr is ignored when tailscale is enabled", "http_addr", j.config.Server.HTTPAddr)
		}
		return j.setupTailscaleListener(ctx)
	}
	return j.setupTCPListener()
}

// startServer starts the HTTP server in a goroutine, returning its error channel.
func (j *Journey) startServer(ln net.Listener) chan error {
	errCh := make(chan error, 1)
	go func() {
		j.logger.Info("HTTP server listening", "addr", ln.Addr().String())
		if err := j.httpServer.Serve(ln); err != nil && err != http.ErrServerClosed {
			errCh <- fmt.Errorf("HTTP server: %w", err)
		}
	}()
	return errCh
}

// waitForShutdownSignal waits for context cancellation or server error.
func (j *Journey) waitForShutdownSignal(ctx context.Context, errCh chan error) error {
	select {
	case <-ctx.Done():
		j.logger.Info("context canceled, initiating shutdown")
		return nil
	case err := <-errCh:
		j.logger.Error("server error", "error", err)
		return err
	}
}

// Run starts tracking, background workers and the HTTP server, and blocks
// until the context is canceled.
// Returns nil on graceful shutdown (context canceled), or an error if the server fails.
func (j *Journey) Run(ctx context.Context) error {
	ln, err := j.setupListener(ctx)
	if err != nil {
		return err
	}

	bgCtx, stopBackground := context.WithCancel(ctx)
	defer stopBackground()
	g, gctx := errgroup.WithContext(bgCtx)
	j.startBackground(gctx, g)

	errCh := j.startServer(ln)
	serverErr := j.waitForShutdownSignal(ctx, errCh)

	stopBackground()
	bgErr := g.Wait()
	shutdownErr := j.gracefulShutdown()

	return errors.Join(serverErr, bgErr, shutdownErr)
}

// gracefulShutdown performs shutdown with a fresh context and timeout.
// Uses context.Background() since the run context is already canceled.
func (j *Journey) gracefulShutdown() error {
	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	return j.Shutdown(ctx)
}

// resolveTailscaleStateDir returns the state directory, using default if not configured.
func resolveTailscaleStateDir(configured string) (string, error) {
	if configured != "" {
		return configured, nil
	}
	homeDir, err := os.UserHomeDir()
	if err != nil {
		return "", fmt.Errorf("cannot determine home directory for tailscale state (set tailscale.state_dir explicitly): %w", err)
	}
	return filepath.Join(homeDir, ".local", "share", "techno-sutra", "tailscale"), nil
}

// resolveTailscaleAuthKey returns the auth key from config or environment.
func resolveTailscaleAuthKey(configured string) (string, error) {
	authKey := configured
	if authKey == "" {
		authKey = os.Getenv("TS_AUTHKEY")
	}
	if authKey == "" {
		return "", errors.New("tailscale auth key required: set auth_key in config or TS_AUTHKEY environment variable")
	}
	return authKey, nil
}

// setupTailscaleListener joins the tailnet and listens on :80.
func (j *Journey) setupTailscaleListener(ctx context.Context) (net.Listener, error) {
	tsCfg := j.config.Tailscale

	stateDir, err := resolveTailscaleStateDir(tsCfg.StateDir)
	if err != nil {
		return nil, err
	}
	if err := os.MkdirAll(stateDir, 0700); err != nil {
		return nil, fmt.Errorf("creating tailscale state dir: %w", err)
	}

	authKey, err := resolveTailscaleAuthKey(tsCfg.AuthKey)
	if err != nil {
		return nil, err
	}

	j.tsnetServer = &tsnet.Server{
		Hostname:  tsCfg.Hostname,
		Dir:       stateDir,
		Ephemeral: tsCfg.Ephemeral,
		AuthKey:   authKey,
	}

	j.logger.Info("starting tailscale node", "hostname", tsCfg.Hostname, "state_dir", stateDir, "ephemeral", tsCfg.Ephemeral)
	status, err := j.tsnetServer.Up(ctx)
	if err != nil {
		_ = j.tsnetServer.Close()
		return nil, fmt.Errorf("starting tailscale: %w", err)
	}
	j.logTailscaleStatus(tsCfg.Hostname, status)

	ln, err := j.tsnetServer.Listen("tcp", ":80")
	if err != nil {
		_ = j.tsnetServer.Close()
		return nil, fmt.Errorf("listening on tailscale HTTP port: %w", err)
	}
	return ln, nil
}

// logTailscaleStatus logs info about the tailscale node status.
func (j *Journey) logTailscaleStatus(hostname string, status *ipnstate.Status) {
	var tsAddr, dnsName string
	if len(status.TailscaleIPs) > 0 {
		tsAddr = status.TailscaleIPs[0].String()
	} else {
		j.logger.Warn("tailscale node has no IP addresses assigned")
	}
	if status.Self != nil {
		dnsName = status.Self.DNSName
	}
	j.logger.Info("tailscale node ready", "hostname", hostname, "tailscale_ip", tsAddr, "dns_name", dnsName)
}

// appendCloseError appends an error with label if err is non-nil.
func appendCloseError(errs []error, label string, err error) []error {
	if err != nil {
		return append(errs, fmt.Errorf("%s: %w", label, err))
	}
	return errs
}

// Shutdown stops the HTTP server and releases every component.
func (j *Journey) Shutdown(ctx context.Context) error {
	j.logger.Info("shutting down journey")

	var errs []error
	errs = appendCloseError(errs, "HTTP shutdown", j.httpServer.Shutdown(ctx))

	for _, sub := range j.subs {
		sub.Unsubscribe()
	}
	j.tracker.Close()
	j.matcher.Close()
	j.scheduler.Detach()
	j.cache.Close()
	if j.routeFile != nil {
		j.routeFile.Close()
	}

	if j.tsnetServer != nil {
		errs = appendCloseError(errs, "tailscale shutdown", j.tsnetServer.Close())
	}
	errs = appendCloseError(errs, "store close", j.store.Close())

	if len(errs) > 0 {
		return fmt.Errorf("shutdown errors: %v", errs)
	}
	return nil
}
