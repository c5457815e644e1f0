// ABOUTME: Owned asset cache resolving ids to local handles with at-most-one fetch per id
// ABOUTME: Races each fetch against a deadline, writes through to the durable store and degrades to placeholders

package assetcache

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"sort"
	"strconv"
	"sync"
	"time"

	"github.com/google/uuid"
	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	"go.opentelemetry.io/otel/trace"
	"golang.org/x/sync/singleflight"

	"github.com/technosutra21/Techno/internal/events"
	"github.com/technosutra21/Techno/internal/store"
)

const (
	// DefaultTimeout bounds a single asset fetch.
	DefaultTimeout = 10 * time.Second

	tracerName = "github.com/technosutra21/Techno/internal/assetcache"
)

// Options configures a Cache.
type Options struct {
	Fetcher Fetcher
	Store   store.CacheStore // optional durable copy
	Timeout time.Duration
	Logger  *slog.Logger
	Tracer  trace.Tracer
}

// LoadEvent is published when a load call materialized a Ready handle.
type LoadEvent struct {
	Handle     *Handle
	Background bool
}

// Stats is a snapshot of cache bookkeeping.
type Stats struct {
	Loaded     int `json:"loaded"`
	InFlight   int `json:"in_flight"`
	Foreground int `json:"foreground"`
}

// flight is a running transfer for one id. At most one exists per id; a
// flight abandoned by Clear stays registered until its fetcher returns.
type flight struct {
	gen    uint64
	cancel context.CancelFunc
	done   chan struct{}
}

// Cache resolves asset ids to handles. Construct one per session with New
// and dispose of it with Close.
type Cache struct {
	fetcher Fetcher
	store   store.CacheStore
	timeout time.Duration
	logger  *slog.Logger
	tracer  trace.Tracer

	group singleflight.Group

	mu         sync.Mutex
	handles    map[int]*Handle
	waiting    map[int]int // id -> number of waiting load calls
	flights    map[int]*flight
	foreground int
	idle       chan struct{} // closed when foreground drops to zero
	generation uint64        // bumped by Clear

	loaded  *events.Bus[LoadEvent]
	failed  *events.Bus[LoadError]
	cleared *events.Bus[struct{}]
}

// New creates a cache. A Fetcher is required.
func New(opts Options) (*Cache, error) {
	if opts.Fetcher == nil {
		return nil, errors.New("assetcache: fetcher is required")
	}
	if opts.Timeout <= 0 {
		opts.Timeout = DefaultTimeout
	}
	if opts.Logger == nil {
		opts.Logger = slog.Default()
	}
	if opts.Tracer == nil {
		opts.Tracer = otel.Tracer(tracerName)
	}

	logger := opts.Logger.With("component", "assetcache")
	return &Cache{
		fetcher: opts.Fetcher,
		store:   opts.Store,
		timeout: opts.Timeout,
		logger:  logger,
		tracer:  opts.Tracer,
		handles: make(map[int]*Handle),
		waiting: make(map[int]int),
		flights: make(map[int]*flight),
		loaded:  events.NewBus[LoadEvent]("asset_loaded", logger),
		failed:  events.NewBus[LoadError]("asset_error", logger),
		cleared: events.NewBus[struct{}]("asset_cleared", logger),
	}, nil
}

// Load resolves id in the foreground. It never fails: on any error the
// caller receives a placeholder handle, which is not kept so the next call
// retries the fetch.
func (c *Cache) Load(ctx context.Context, id int) *Handle {
	return c.load(ctx, id, false)
}

// Prefetch resolves id at background priority. It shares the dedupe and
// fallback rules of Load but does not count as foreground work.
func (c *Cache) Prefetch(ctx context.Context, id int) *Handle {
	return c.load(ctx, id, true)
}

func (c *Cache) load(ctx context.Context, id int, background bool) *Handle {
	ctx, span := c.tracer.Start(ctx, "assetcache.Load", trace.WithAttributes(
		attribute.Int("asset.id", id),
		attribute.Bool("asset.background", background),
	))
	defer span.End()

	if id <= 0 {
		c.degrade(span, LoadError{ID: id, Err: ErrInvalidID, Background: background})
		return newPlaceholder(id)
	}

	c.mu.Lock()
	if h, ok := c.handles[id]; ok {
		c.mu.Unlock()
		span.SetAttributes(attribute.Bool("asset.resident", true))
		return h
	}
	c.waiting[id]++
	if !background {
		if c.foreground == 0 {
			c.idle = make(chan struct{})
		}
		c.foreground++
	}
	c.mu.Unlock()

	defer c.settle(id, background)

	ch := c.group.DoChan(flightKey(id), func() (any, error) {
		return c.fetch(ctx, id)
	})

	select {
	case res := <-ch:
		if res.Err != nil {
			c.degrade(span, LoadError{ID: id, Err: res.Err, Background: background})
			return newPlaceholder(id)
		}
		h := res.Val.(*Handle)
		span.SetAttributes(attribute.Bool("asset.shared", res.Shared))
		c.loaded.Publish(LoadEvent{Handle: h, Background: background})
		return h
	case <-ctx.Done():
		// Stop waiting; the shared fetch keeps running for other callers.
		err := ErrNetworkTimeout
		if errors.Is(ctx.Err(), context.Canceled) {
			err = ErrNetworkFailure
		}
		c.degrade(span, LoadError{ID: id, Err: fmt.Errorf("%w: %v", err, ctx.Err()), Background: background})
		return newPlaceholder(id)
	}
}

// fetch runs once per id at a time. It is detached from the caller's
// cancellation and bounded by the cache timeout instead; Clear aborts it.
func (c *Cache) fetch(ctx context.Context, id int) (*Handle, error) {
	fctx, fl, h := c.begin(ctx, id)
	if h != nil {
		return h, nil
	}
	defer c.end(id, fl)

	start := time.Now()
	data, err := c.fetcher.Fetch(fctx, id)
	if err == nil && len(data) == 0 {
		err = fmt.Errorf("%w: empty payload", ErrDecodeFailure)
	}
	if c.abandoned(fl) {
		return nil, ErrCleared
	}
	if err != nil {
		if errors.Is(fctx.Err(), context.DeadlineExceeded) && !errors.Is(err, ErrNetworkTimeout) {
			err = fmt.Errorf("%w: %v", ErrNetworkTimeout, err)
		}
		c.logger.Warn("failed to fetch asset", "asset_id", id, "error", err)

		if h := c.restore(ctx, id, fl.gen); h != nil {
			return h, nil
		}
		return nil, err
	}

	h = &Handle{
		ID:     id,
		Ref:    "blob:techno-sutra/" + uuid.NewString(),
		Status: StatusReady,
		data:   data,
	}
	c.keep(h, fl.gen)
	c.persist(ctx, h)

	c.logger.Debug("asset loaded", "asset_id", id, "bytes", len(data), "elapsed", time.Since(start))
	return h, nil
}

// begin registers the flight for id. A flight abandoned by Clear is waited
// out first so two transfers of one id never overlap. When the handle is
// already resident begin returns it instead.
func (c *Cache) begin(ctx context.Context, id int) (context.Context, *flight, *Handle) {
	for {
		c.mu.Lock()
		// A flight that finished between the caller's resident check and
		// DoChan has already made the handle resident.
		if h, ok := c.handles[id]; ok {
			c.mu.Unlock()
			return nil, nil, h
		}
		prev, busy := c.flights[id]
		if !busy {
			fctx, cancel := context.WithTimeout(context.WithoutCancel(ctx), c.timeout)
			fl := &flight{gen: c.generation, cancel: cancel, done: make(chan struct{})}
			c.flights[id] = fl
			c.mu.Unlock()
			return fctx, fl, nil
		}
		c.mu.Unlock()
		<-prev.done
	}
}

func (c *Cache) end(id int, fl *flight) {
	fl.cancel()

	c.mu.Lock()
	if c.flights[id] == fl {
		delete(c.flights, id)
	}
	c.mu.Unlock()

	close(fl.done)
}

func (c *Cache) abandoned(fl *flight) bool {
	c.mu.Lock()
	defer c.mu.Unlock()
	return fl.gen != c.generation
}

// restore materializes the durable copy of an asset when the network fails.
func (c *Cache) restore(ctx context.Context, id int, gen uint64) *Handle {
	if c.store == nil {
		return nil
	}

	sctx, cancel := context.WithTimeout(context.WithoutCancel(ctx), c.timeout)
	defer cancel()

	entry, err := c.store.GetCacheEntry(sctx, Filename(id))
	if err != nil {
		if !errors.Is(err, store.ErrNotFound) {
			c.logger.Warn("failed to read durable cache", "asset_id", id, "error", err)
		}
		return nil
	}

	h := &Handle{
		ID:     id,
		Ref:    "blob:techno-sutra/" + uuid.NewString(),
		Status: StatusReady,
		data:   entry.Data,
	}
	c.keep(h, gen)

	c.logger.Info("asset restored from durable cache", "asset_id", id, "bytes", len(entry.Data))
	return h
}

// keep makes h resident unless the cache was cleared since the fetch began.
func (c *Cache) keep(h *Handle, gen uint64) {
	c.mu.Lock()
	defer c.mu.Unlock()

	if gen != c.generation {
		return
	}
	c.handles[h.ID] = h
}

// persist writes the asset through to the durable store. Failures are
// logged and never surface to the caller.
func (c *Cache) persist(ctx context.Context, h *Handle) {
	if c.store == nil {
		return
	}

	pctx, cancel := context.WithTimeout(context.WithoutCancel(ctx), c.timeout)
	defer cancel()

	err := c.store.PutCacheEntry(pctx, &store.CacheEntry{
		Filename:  Filename(h.ID),
		AssetID:   h.ID,
		Data:      h.data,
		CreatedAt: time.Now(),
	})
	if err != nil {
		c.logger.Warn("failed to persist asset", "asset_id", h.ID, "error", fmt.Errorf("%w: %v", ErrCachePersist, err))
	}
}

func (c *Cache) degrade(span trace.Span, lerr LoadError) {
	span.RecordError(lerr.Err)
	span.SetStatus(codes.Error, lerr.Err.Error())
	c.logger.Info("using placeholder asset", "asset_id", lerr.ID, "reason", lerr.Err)
	c.failed.Publish(lerr)
}

func (c *Cache) settle(id int, background bool) {
	c.mu.Lock()
	defer c.mu.Unlock()

	c.waiting[id]--
	if c.waiting[id] <= 0 {
		delete(c.waiting, id)
	}
	if !background {
		c.foreground--
		if c.foreground == 0 && c.idle != nil {
			close(c.idle)
			c.idle = nil
		}
	}
}

// IsLoaded reports whether a Ready handle is resident for id.
func (c *Cache) IsLoaded(id int) bool {
	c.mu.Lock()
	defer c.mu.Unlock()
	_, ok := c.handles[id]
	return ok
}

// Status returns the state of id. The boolean is false when the cache
// neither holds nor is fetching the asset.
func (c *Cache) Status(id int) (Status, bool) {
	c.mu.Lock()
	defer c.mu.Unlock()

	if _, ok := c.handles[id]; ok {
		return StatusReady, true
	}
	if _, ok := c.flights[id]; ok || c.waiting[id] > 0 {
		return StatusLoading, true
	}
	return 0, false
}

// Stats returns a snapshot of the cache bookkeeping.
func (c *Cache) Stats() Stats {
	c.mu.Lock()
	defer c.mu.Unlock()

	inflight := len(c.flights)
	for id := range c.waiting {
		if _, ok := c.flights[id]; !ok {
			inflight++
		}
	}
	return Stats{
		Loaded:     len(c.handles),
		InFlight:   inflight,
		Foreground: c.foreground,
	}
}

// LoadedIDs returns the ids of resident handles in ascending order.
func (c *Cache) LoadedIDs() []int {
	c.mu.Lock()
	ids := make([]int, 0, len(c.handles))
	for id := range c.handles {
		ids = append(ids, id)
	}
	c.mu.Unlock()

	sort.Ints(ids)
	return ids
}

// WaitIdle blocks until no foreground load is in flight or ctx ends.
func (c *Cache) WaitIdle(ctx context.Context) error {
	for {
		c.mu.Lock()
		if c.foreground == 0 {
			c.mu.Unlock()
			return nil
		}
		idle := c.idle
		c.mu.Unlock()

		select {
		case <-idle:
		case <-ctx.Done():
			return ctx.Err()
		}
	}
}

// Clear revokes every resident handle and aborts in-flight fetches, so the
// next Load of any id fetches again. The durable store is left untouched.
func (c *Cache) Clear() {
	c.mu.Lock()
	n := len(c.handles)
	for id, h := range c.handles {
		h.revoke()
		delete(c.handles, id)
	}
	for id, fl := range c.flights {
		fl.cancel()
		c.group.Forget(flightKey(id))
	}
	c.generation++
	c.mu.Unlock()

	c.logger.Info("asset cache cleared", "revoked", n)
	c.cleared.Publish(struct{}{})
}

// OnLoaded registers fn for every load call that ends with a fetched or
// restored Ready handle. Resident hits do not fire.
func (c *Cache) OnLoaded(fn func(LoadEvent)) *events.Subscription {
	return c.loaded.Subscribe(fn)
}

// OnError registers fn for every load call that degraded to a placeholder.
func (c *Cache) OnError(fn func(LoadError)) *events.Subscription {
	return c.failed.Subscribe(fn)
}

// OnCleared registers fn to run after Clear.
func (c *Cache) OnCleared(fn func()) *events.Subscription {
	return c.cleared.Subscribe(func(struct{}) { fn() })
}

// Close clears the cache and drops every listener.
func (c *Cache) Close() {
	c.Clear()
	c.loaded.Close()
	c.failed.Close()
	c.cleared.Close()
}

func flightKey(id int) string {
	return strconv.Itoa(id)
}
