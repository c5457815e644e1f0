// ABOUTME: Location tracker wrapping one continuous sensor subscription
// ABOUTME: Degrades accuracy tier on timeouts and publishes samples and errors to subscribers

package location

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"sync"
	"time"

	"github.com/technosutra21/Techno/internal/events"
)

// DefaultRetryDelay is the pause before re-opening the sensor at a lower tier.
const DefaultRetryDelay = time.Second

// TrackerOptions configures a Tracker.
type TrackerOptions struct {
	Tiers      Tiers
	RetryDelay time.Duration
	Logger     *slog.Logger
}

// Tracker owns at most one sensor subscription at a time.
//
// Every Start begins a session at TierHigh. A sensor timeout moves the
// session one tier down and re-opens the subscription; a timeout at TierLow
// ends the session and is published as ErrSensorTimeoutAtFloor. Other
// sensor errors are published as-is and leave the tier unchanged.
type Tracker struct {
	sensor     Sensor
	tiers      Tiers
	retryDelay time.Duration
	logger     *slog.Logger

	mu      sync.Mutex
	tier    Tier
	epoch   uint64 // bumped on every start, degrade and stop
	active  bool
	base    context.Context
	cancel  context.CancelFunc // cancels the current attempt
	retry   *time.Timer
	last    Sample
	hasLast bool

	updates *events.Bus[Sample]
	errs    *events.Bus[error]
}

// NewTracker creates an inert tracker at TierHigh.
func NewTracker(sensor Sensor, opts TrackerOptions) *Tracker {
	if opts.Tiers == (Tiers{}) {
		opts.Tiers = DefaultTiers()
	}
	if opts.RetryDelay <= 0 {
		opts.RetryDelay = DefaultRetryDelay
	}
	if opts.Logger == nil {
		opts.Logger = slog.Default()
	}

	logger := opts.Logger.With("component", "location")
	return &Tracker{
		sensor:     sensor,
		tiers:      opts.Tiers,
		retryDelay: opts.RetryDelay,
		logger:     logger,
		tier:       TierHigh,
		updates:    events.NewBus[Sample]("location_update", logger),
		errs:       events.NewBus[error]("location_error", logger),
	}
}

// Start begins a new session: any active subscription is stopped, the tier
// resets to TierHigh, one immediate sample is taken and a continuous
// subscription is opened. Sensor failures are delivered to error
// subscribers, not returned.
func (t *Tracker) Start(ctx context.Context) error {
	if t.sensor == nil {
		return NewSensorError(CodeUnavailable)
	}

	t.Stop()

	t.mu.Lock()
	t.tier = TierHigh
	t.active = true
	t.base = ctx
	epoch, actx := t.newAttemptLocked()
	t.mu.Unlock()

	t.logger.Info("location tracking started", "tier", TierHigh)
	t.open(actx, epoch, TierHigh)
	return nil
}

// newAttemptLocked starts a new epoch with its own cancellable context.
// Must be called with mu held.
func (t *Tracker) newAttemptLocked() (uint64, context.Context) {
	if t.cancel != nil {
		t.cancel()
	}
	t.epoch++
	actx, cancel := context.WithCancel(t.base)
	t.cancel = cancel
	return t.epoch, actx
}

// open takes the immediate sample and opens the watch for one attempt.
func (t *Tracker) open(ctx context.Context, epoch uint64, tier Tier) {
	opts := t.tiers[tier]

	sample, err := t.sensor.Current(ctx, opts)
	if err != nil {
		t.openFailed(epoch, err)
		return
	}
	t.deliver(epoch, sample)

	ch, err := t.sensor.Watch(ctx, opts)
	if err != nil {
		t.openFailed(epoch, err)
		return
	}
	go t.consume(epoch, ch)
}

// openFailed reports err. Without a watch a non-timeout failure leaves
// nothing running, so the session ends.
func (t *Tracker) openFailed(epoch uint64, err error) {
	t.handleError(epoch, err)
	if errors.Is(err, ErrSensorTimeout) {
		return
	}

	t.mu.Lock()
	defer t.mu.Unlock()
	if epoch == t.epoch && t.active {
		t.stopLocked()
		t.logger.Info("location tracking stopped", "reason", err)
	}
}

// consume forwards readings of one attempt in arrival order.
func (t *Tracker) consume(epoch uint64, ch <-chan Reading) {
	for r := range ch {
		if r.Err != nil {
			t.handleError(epoch, r.Err)
			continue
		}
		t.deliver(epoch, r.Sample)
	}
}

func (t *Tracker) deliver(epoch uint64, s Sample) {
	t.mu.Lock()
	if epoch != t.epoch {
		t.mu.Unlock()
		return
	}
	t.last = s
	t.hasLast = true
	t.mu.Unlock()

	t.updates.Publish(s)
}

func (t *Tracker) handleError(epoch uint64, err error) {
	t.mu.Lock()
	if epoch != t.epoch {
		t.mu.Unlock()
		return
	}

	if !errors.Is(err, ErrSensorTimeout) {
		t.mu.Unlock()
		t.logger.Warn("location error", "tier", t.Tier(), "error", err)
		t.errs.Publish(err)
		return
	}

	if t.tier < TierLow {
		from := t.tier
		t.tier++
		to := t.tier
		next, actx := t.newAttemptLocked()
		t.retry = time.AfterFunc(t.retryDelay, func() {
			t.reopen(actx, next)
		})
		t.mu.Unlock()

		t.logger.Info("reducing location accuracy after timeout", "from", from, "to", to)
		return
	}

	// Timeout at the floor tier ends the session.
	t.stopLocked()
	t.mu.Unlock()

	floorErr := fmt.Errorf("%w: %w", ErrSensorTimeoutAtFloor, err)
	t.logger.Warn("location timed out at lowest accuracy", "error", err)
	t.errs.Publish(floorErr)
}

func (t *Tracker) reopen(ctx context.Context, epoch uint64) {
	t.mu.Lock()
	if epoch != t.epoch || !t.active {
		t.mu.Unlock()
		return
	}
	tier := t.tier
	t.mu.Unlock()

	t.open(ctx, epoch, tier)
}

// Stop cancels the active subscription. The last known sample is kept.
func (t *Tracker) Stop() {
	t.mu.Lock()
	defer t.mu.Unlock()

	if !t.active {
		return
	}
	t.stopLocked()
	t.logger.Info("location tracking stopped")
}

// stopLocked must be called with mu held.
func (t *Tracker) stopLocked() {
	t.epoch++
	if t.cancel != nil {
		t.cancel()
		t.cancel = nil
	}
	if t.retry != nil {
		t.retry.Stop()
		t.retry = nil
	}
	t.active = false
}

// Active reports whether a session is running.
func (t *Tracker) Active() bool {
	t.mu.Lock()
	defer t.mu.Unlock()
	return t.active
}

// Tier returns the current accuracy tier.
func (t *Tracker) Tier() Tier {
	t.mu.Lock()
	defer t.mu.Unlock()
	return t.tier
}

// LastKnown returns the most recent sample, if any.
func (t *Tracker) LastKnown() (Sample, bool) {
	t.mu.Lock()
	defer t.mu.Unlock()
	return t.last, t.hasLast
}

// CheckPermission queries the sensor. Failures are reported as PermissionPrompt.
func (t *Tracker) CheckPermission(ctx context.Context) Permission {
	if t.sensor == nil {
		return PermissionPrompt
	}
	p, err := t.sensor.Permission(ctx)
	if err != nil {
		t.logger.Warn("failed to check location permission", "error", err)
		return PermissionPrompt
	}
	return p
}

// OnUpdate registers fn for every published sample.
func (t *Tracker) OnUpdate(fn func(Sample)) *events.Subscription {
	return t.updates.Subscribe(fn)
}

// OnError registers fn for every published error.
func (t *Tracker) OnError(fn func(error)) *events.Subscription {
	return t.errs.Subscribe(fn)
}

// Close stops tracking and drops every listener.
func (t *Tracker) Close() {
	t.Stop()
	t.updates.Close()
	t.errs.Close()
}
