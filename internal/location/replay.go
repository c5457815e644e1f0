// ABOUTME: Sensor that replays a recorded track file
// ABOUTME: Used by the CLI in place of platform geolocation; reports timeouts once the track runs out

package location

import (
	"context"
	"errors"
	"fmt"
	"os"
	"sync"
	"time"

	"gopkg.in/yaml.v3"
)

// DefaultReplayInterval is the pause between replayed fixes.
const DefaultReplayInterval = 2 * time.Second

// Track is a recorded walk.
type Track struct {
	Interval time.Duration `yaml:"-"`
	Points   []Sample      `yaml:"points"`

	// Raw string value for YAML unmarshaling
	IntervalRaw string `yaml:"interval"`
}

// ParseTrack decodes a YAML track:
//
//	interval: "2s"
//	points:
//	  - {lat: -21.9336, lng: -46.7054, accuracy: 8}
func ParseTrack(data []byte) (*Track, error) {
	var tr Track
	if err := yaml.Unmarshal(data, &tr); err != nil {
		return nil, fmt.Errorf("parsing track: %w", err)
	}

	tr.Interval = DefaultReplayInterval
	if tr.IntervalRaw != "" {
		d, err := time.ParseDuration(tr.IntervalRaw)
		if err != nil {
			return nil, fmt.Errorf("parsing interval %q: %w", tr.IntervalRaw, err)
		}
		if d <= 0 {
			return nil, fmt.Errorf("interval must be positive, got %s", d)
		}
		tr.Interval = d
	}

	if len(tr.Points) == 0 {
		return nil, errors.New("track has no points")
	}
	return &tr, nil
}

// LoadTrack reads and parses a track file.
func LoadTrack(path string) (*Track, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("reading track file: %w", err)
	}
	return ParseTrack(data)
}

// ReplaySensor hands out the points of a Track in order, stamped with the
// current time. Once the track is exhausted it behaves like a sensor that
// cannot get a fix and reports timeouts.
type ReplaySensor struct {
	mu       sync.Mutex
	points   []Sample
	interval time.Duration
	next     int
	now      func() time.Time
}

// NewReplaySensor creates a sensor for tr.
func NewReplaySensor(tr *Track) *ReplaySensor {
	interval := tr.Interval
	if interval <= 0 {
		interval = DefaultReplayInterval
	}
	return &ReplaySensor{
		points:   append([]Sample(nil), tr.Points...),
		interval: interval,
		now:      time.Now,
	}
}

func (r *ReplaySensor) take() (Sample, bool) {
	r.mu.Lock()
	defer r.mu.Unlock()

	if r.next >= len(r.points) {
		return Sample{}, false
	}
	s := r.points[r.next]
	r.next++
	s.Timestamp = r.now()
	return s, true
}

// Remaining returns how many points are left to replay.
func (r *ReplaySensor) Remaining() int {
	r.mu.Lock()
	defer r.mu.Unlock()
	return len(r.points) - r.next
}

// Current returns the next point, or a timeout after opts.Timeout when the
// track is exhausted.
func (r *ReplaySensor) Current(ctx context.Context, opts Options) (Sample, error) {
	if s, ok := r.take(); ok {
		return s, nil
	}

	timer := time.NewTimer(opts.Timeout)
	defer timer.Stop()

	select {
	case <-timer.C:
		return Sample{}, NewSensorError(CodeTimeout)
	case <-ctx.Done():
		return Sample{}, ctx.Err()
	}
}

// Watch emits one point per interval. Without a fix for opts.Timeout it
// emits a timeout reading.
func (r *ReplaySensor) Watch(ctx context.Context, opts Options) (<-chan Reading, error) {
	ch := make(chan Reading)

	go func() {
		defer close(ch)

		ticker := time.NewTicker(r.interval)
		defer ticker.Stop()

		lastFix := r.now()
		for {
			select {
			case <-ctx.Done():
				return
			case <-ticker.C:
			}

			reading := Reading{}
			if s, ok := r.take(); ok {
				lastFix = s.Timestamp
				reading.Sample = s
			} else if opts.Timeout > 0 && r.now().Sub(lastFix) >= opts.Timeout {
				lastFix = r.now()
				reading.Err = NewSensorError(CodeTimeout)
			} else {
				continue
			}

			select {
			case ch <- reading:
			case <-ctx.Done():
				return
			}
		}
	}()

	return ch, nil
}

// Permission always reports granted.
func (r *ReplaySensor) Permission(context.Context) (Permission, error) {
	return PermissionGranted, nil
}
