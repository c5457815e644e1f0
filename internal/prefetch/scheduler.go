// ABOUTME: Background prefetch scheduler warming the neighbourhood of foreground asset loads
// ABOUTME: Tracks a per-id pending set and runs paced low-priority loads when the foreground is idle

package prefetch

import (
	"context"
	"log/slog"
	"sort"
	"sync"

	"golang.org/x/sync/errgroup"
	"golang.org/x/time/rate"

	"github.com/technosutra21/Techno/internal/assetcache"
	"github.com/technosutra21/Techno/internal/events"
)

const (
	DefaultTotal     = 56
	DefaultRadius    = 2
	DefaultWorkers   = 2
	DefaultQueueSize = 16
	DefaultRate      = 4 // loads per second
	routeWarmLimit   = 5
)

// Loader is the part of the asset cache the scheduler drives.
type Loader interface {
	Load(ctx context.Context, id int) *assetcache.Handle
	Prefetch(ctx context.Context, id int) *assetcache.Handle
	IsLoaded(id int) bool
	WaitIdle(ctx context.Context) error
	OnLoaded(fn func(assetcache.LoadEvent)) *events.Subscription
	OnCleared(fn func()) *events.Subscription
}

// Options configures a Scheduler. Zero values take the defaults above.
type Options struct {
	Total     int        // number of assets, ids are 1..Total
	Radius    int        // neighbours on each side of a loaded id
	Workers   int        // concurrent background loads
	QueueSize int        // queued ids beyond which triggers are dropped
	Rate      rate.Limit // background loads per second; rate.Inf disables pacing
	Burst     int
	Logger    *slog.Logger
}

// Scheduler warms the ids around every successful foreground load.
type Scheduler struct {
	loader  Loader
	total   int
	radius  int
	workers int
	limiter *rate.Limiter
	logger  *slog.Logger

	queue chan int

	mu      sync.Mutex
	pending map[int]struct{}
	subs    []*events.Subscription
}

// New creates a scheduler. Call Attach to react to cache loads and Run to
// process the queue.
func New(loader Loader, opts Options) *Scheduler {
	if opts.Total <= 0 {
		opts.Total = DefaultTotal
	}
	if opts.Radius <= 0 {
		opts.Radius = DefaultRadius
	}
	if opts.Workers <= 0 {
		opts.Workers = DefaultWorkers
	}
	if opts.QueueSize <= 0 {
		opts.QueueSize = DefaultQueueSize
	}
	if opts.Rate == 0 {
		opts.Rate = DefaultRate
	}
	if opts.Burst <= 0 {
		opts.Burst = 1
	}
	if opts.Logger == nil {
		opts.Logger = slog.Default()
	}

	return &Scheduler{
		loader:  loader,
		total:   opts.Total,
		radius:  opts.Radius,
		workers: opts.Workers,
		limiter: rate.NewLimiter(opts.Rate, opts.Burst),
		logger:  opts.Logger.With("component", "prefetch"),
		queue:   make(chan int, opts.QueueSize),
		pending: make(map[int]struct{}),
	}
}

// Attach subscribes the scheduler to the loader's events: foreground loads
// trigger a prefetch sweep and clearing the cache resets the pending set.
func (s *Scheduler) Attach() {
	s.mu.Lock()
	defer s.mu.Unlock()

	s.subs = append(s.subs,
		s.loader.OnLoaded(func(e assetcache.LoadEvent) {
			if e.Background {
				return
			}
			s.Trigger(e.Handle.ID)
		}),
		s.loader.OnCleared(s.Reset),
	)
}

// Detach removes the subscriptions made by Attach.
func (s *Scheduler) Detach() {
	s.mu.Lock()
	subs := s.subs
	s.subs = nil
	s.mu.Unlock()

	for _, sub := range subs {
		sub.Unsubscribe()
	}
}

// Window returns the neighbourhood of id clipped to [1, Total], ascending.
func (s *Scheduler) Window(id int) []int {
	var ids []int
	for n := id - s.radius; n <= id+s.radius; n++ {
		if n == id || n < 1 || n > s.total {
			continue
		}
		ids = append(ids, n)
	}
	return ids
}

// Trigger queues every id in the window of id that is neither resident nor
// already pending. It never blocks; ids that do not fit in the queue are
// skipped. Returns the ids that were queued.
func (s *Scheduler) Trigger(id int) []int {
	var queued []int

	s.mu.Lock()
	defer s.mu.Unlock()

	for _, n := range s.Window(id) {
		if _, ok := s.pending[n]; ok {
			continue
		}
		if s.loader.IsLoaded(n) {
			continue
		}

		select {
		case s.queue <- n:
			s.pending[n] = struct{}{}
			queued = append(queued, n)
		default:
			s.logger.Debug("prefetch queue full, skipping", "asset_id", n)
		}
	}

	if len(queued) > 0 {
		s.logger.Debug("prefetch queued", "trigger_id", id, "asset_ids", queued)
	}
	return queued
}

// Run processes the queue with a bounded worker pool until ctx is cancelled.
func (s *Scheduler) Run(ctx context.Context) error {
	g, gctx := errgroup.WithContext(ctx)
	for i := 0; i < s.workers; i++ {
		g.Go(func() error {
			s.work(gctx)
			return nil
		})
	}

	s.logger.Info("prefetch workers started", "workers", s.workers)
	err := g.Wait()
	s.logger.Info("prefetch workers stopped")
	return err
}

func (s *Scheduler) work(ctx context.Context) {
	for {
		select {
		case <-ctx.Done():
			return
		case id := <-s.queue:
			s.process(ctx, id)
		}
	}
}

// process waits for the foreground to go idle and for a pacing token, then
// loads id at background priority. Failures fall back silently; there are
// no retries.
func (s *Scheduler) process(ctx context.Context, id int) {
	defer s.settle(id)

	if !s.isPending(id) {
		// Dropped by Reset while queued.
		return
	}
	if err := s.loader.WaitIdle(ctx); err != nil {
		return
	}
	if err := s.limiter.Wait(ctx); err != nil {
		return
	}
	if s.loader.IsLoaded(id) {
		return
	}

	h := s.loader.Prefetch(ctx, id)
	s.logger.Debug("prefetched asset", "asset_id", id, "status", h.Status)
}

func (s *Scheduler) isPending(id int) bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	_, ok := s.pending[id]
	return ok
}

func (s *Scheduler) settle(id int) {
	s.mu.Lock()
	defer s.mu.Unlock()
	delete(s.pending, id)
}

// Pending returns the ids queued or loading in the background, ascending.
func (s *Scheduler) Pending() []int {
	s.mu.Lock()
	ids := make([]int, 0, len(s.pending))
	for id := range s.pending {
		ids = append(ids, id)
	}
	s.mu.Unlock()

	sort.Ints(ids)
	return ids
}

// Reset empties the pending set and drops queued ids.
func (s *Scheduler) Reset() {
	s.mu.Lock()
	defer s.mu.Unlock()

	clear(s.pending)
	for {
		select {
		case <-s.queue:
		default:
			return
		}
	}
}

// WarmRoute loads the first few ids of a route in the foreground and waits
// for all of them to settle.
func (s *Scheduler) WarmRoute(ctx context.Context, ids []int) {
	if len(ids) > routeWarmLimit {
		ids = ids[:routeWarmLimit]
	}

	var g errgroup.Group
	g.SetLimit(routeWarmLimit)
	for _, id := range ids {
		g.Go(func() error {
			s.loader.Load(ctx, id)
			return nil
		})
	}
	_ = g.Wait()

	s.logger.Info("route warmed", "asset_ids", ids)
}
