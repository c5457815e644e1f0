// ABOUTME: Proximity matcher turning location samples into chapter advances
// ABOUTME: Picks the first route point in sequence order within the threshold

package proximity

import (
	"log/slog"
	"sync"

	"github.com/technosutra21/Techno/internal/events"
	"github.com/technosutra21/Techno/internal/location"
	"github.com/technosutra21/Techno/internal/route"
)

// DefaultThresholdMeters is the radius within which a sample is at a point.
const DefaultThresholdMeters = 100.0

// Event reports that the user reached a route point of a new chapter.
type Event struct {
	Point           route.Point     `json:"point"`
	Sample          location.Sample `json:"sample"`
	DistanceMeters  float64         `json:"distance_meters"`
	PreviousChapter int             `json:"previous_chapter"`
}

// Options configures a Matcher.
type Options struct {
	Threshold     float64 // meters, inclusive
	ActiveChapter int     // chapter active before the first sample, 0 for none
	Logger        *slog.Logger
}

// SampleSource publishes location samples.
type SampleSource interface {
	OnUpdate(fn func(location.Sample)) *events.Subscription
}

// Matcher tracks the active chapter and emits an Event when a sample lands
// on a point of a different chapter.
type Matcher struct {
	threshold float64
	logger    *slog.Logger

	mu     sync.Mutex
	active int

	advances *events.Bus[Event]
}

// New creates a Matcher.
func New(opts Options) *Matcher {
	if opts.Threshold <= 0 {
		opts.Threshold = DefaultThresholdMeters
	}
	if opts.Logger == nil {
		opts.Logger = slog.Default()
	}
	logger := opts.Logger.With("component", "proximity")
	return &Matcher{
		threshold: opts.Threshold,
		logger:    logger,
		active:    opts.ActiveChapter,
		advances:  events.NewBus[Event]("chapter_advance", logger),
	}
}

// Threshold returns the match radius in meters.
func (m *Matcher) Threshold() float64 {
	return m.threshold
}

// Evaluate matches sample against points. The first point by SequenceIndex
// within the threshold wins, even when a later point is closer. If that
// point's chapter is not already active it becomes active and the Event is
// published and returned. points is not modified.
func (m *Matcher) Evaluate(sample location.Sample, points []route.Point) (Event, bool) {
	var (
		match    route.Point
		distance float64
		found    bool
	)
	for _, p := range route.Sorted(points) {
		d := location.DistanceMeters(sample.Lat, sample.Lng, p.Lat, p.Lng)
		if d <= m.threshold {
			match, distance, found = p, d, true
			break
		}
	}
	if !found {
		return Event{}, false
	}

	m.mu.Lock()
	if m.active == match.ChapterID {
		m.mu.Unlock()
		return Event{}, false
	}
	prev := m.active
	m.active = match.ChapterID
	m.mu.Unlock()

	ev := Event{
		Point:           match,
		Sample:          sample,
		DistanceMeters:  distance,
		PreviousChapter: prev,
	}
	m.logger.Info("chapter advance",
		"from", prev,
		"to", match.ChapterID,
		"sequence_index", match.SequenceIndex,
		"distance_m", distance,
	)
	m.advances.Publish(ev)
	return ev, true
}

// Attach evaluates every sample from src against a fresh snapshot of r.
func (m *Matcher) Attach(src SampleSource, r route.Source) *events.Subscription {
	return src.OnUpdate(func(s location.Sample) {
		m.Evaluate(s, r.Points())
	})
}

// SetActiveChapter changes the active chapter without emitting an Event.
func (m *Matcher) SetActiveChapter(id int) {
	m.mu.Lock()
	m.active = id
	m.mu.Unlock()
}

// ActiveChapter returns the active chapter id, 0 if none.
func (m *Matcher) ActiveChapter() int {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.active
}

// OnAdvance registers fn for every chapter advance.
func (m *Matcher) OnAdvance(fn func(Event)) *events.Subscription {
	return m.advances.Subscribe(fn)
}

// Close drops every listener.
func (m *Matcher) Close() {
	m.advances.Close()
}
