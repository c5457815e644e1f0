// ABOUTME: Tests for track parsing and the replay sensor
// ABOUTME: Drives a tracker end to end from a recorded walk

package location

import (
	"os"
	"path/filepath"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

const sampleTrack = `
interval: "5ms"
points:
  - {lat: -21.9336, lng: -46.7054, accuracy: 8}
  - {lat: -21.9338, lng: -46.7056, accuracy: 12}
  - {lat: -21.9341, lng: -46.7059, accuracy: 20}
`

func TestParseTrack(t *testing.T) {
	tr, err := ParseTrack([]byte(sampleTrack))
	require.NoError(t, err)

	assert.Equal(t, 5*time.Millisecond, tr.Interval)
	require.Len(t, tr.Points, 3)
	assert.Equal(t, -21.9338, tr.Points[1].Lat)
	assert.Equal(t, 12.0, tr.Points[1].AccuracyMeters)
}

func TestParseTrack_DefaultInterval(t *testing.T) {
	tr, err := ParseTrack([]byte("points:\n  - {lat: 1, lng: 2}\n"))
	require.NoError(t, err)
	assert.Equal(t, DefaultReplayInterval, tr.Interval)
}

func TestParseTrack_Invalid(t *testing.T) {
	tests := []struct {
		name string
		data string
	}{
		{"no points", "interval: 1s\n"},
		{"bad interval", "interval: soon\npoints:\n  - {lat: 1, lng: 2}\n"},
		{"negative interval", "interval: -1s\npoints:\n  - {lat: 1, lng: 2}\n"},
		{"not yaml", "points: [\n"},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, err := ParseTrack([]byte(tt.data))
			assert.Error(t, err)
		})
	}
}

func TestLoadTrack(t *testing.T) {
	path := filepath.Join(t.TempDir(), "walk.yaml")
	require.NoError(t, os.WriteFile(path, []byte(sampleTrack), 0o600))

	tr, err := LoadTrack(path)
	require.NoError(t, err)
	assert.Len(t, tr.Points, 3)

	_, err = LoadTrack(filepath.Join(t.TempDir(), "missing.yaml"))
	assert.Error(t, err)
}

func TestReplaySensor_CurrentThenTimeout(t *testing.T) {
	tr, err := ParseTrack([]byte(sampleTrack))
	require.NoError(t, err)
	s := NewReplaySensor(tr)
	opts := Options{Timeout: 10 * time.Millisecond}

	for i := range 3 {
		got, err := s.Current(t.Context(), opts)
		require.NoError(t, err)
		assert.Equal(t, tr.Points[i].Lat, got.Lat)
		assert.False(t, got.Timestamp.IsZero())
	}
	assert.Zero(t, s.Remaining())

	_, err = s.Current(t.Context(), opts)
	assert.ErrorIs(t, err, ErrSensorTimeout)
}

func TestReplaySensor_WatchEmitsPointsThenTimeouts(t *testing.T) {
	tr, err := ParseTrack([]byte(sampleTrack))
	require.NoError(t, err)
	s := NewReplaySensor(tr)

	ch, err := s.Watch(t.Context(), Options{Timeout: 20 * time.Millisecond})
	require.NoError(t, err)

	for i := range 3 {
		r := <-ch
		require.NoError(t, r.Err)
		assert.Equal(t, tr.Points[i].Lat, r.Sample.Lat)
	}

	select {
	case r := <-ch:
		assert.ErrorIs(t, r.Err, ErrSensorTimeout)
	case <-time.After(time.Second):
		t.Fatal("expected a timeout reading once the track ran out")
	}
}

func TestReplaySensor_Permission(t *testing.T) {
	s := NewReplaySensor(&Track{Points: []Sample{{}}})
	p, err := s.Permission(t.Context())
	require.NoError(t, err)
	assert.Equal(t, PermissionGranted, p)
}

func TestTracker_ReplayedTrackEndsAtFloor(t *testing.T) {
	tr, err := ParseTrack([]byte(sampleTrack))
	require.NoError(t, err)

	fast := Options{Timeout: 15 * time.Millisecond}
	tracker := NewTracker(NewReplaySensor(tr), TrackerOptions{
		Tiers:      Tiers{TierHigh: {HighAccuracy: true, Timeout: fast.Timeout}, TierMedium: fast, TierLow: fast},
		RetryDelay: 5 * time.Millisecond,
	})
	defer tracker.Close()

	var mu sync.Mutex
	var lats []float64
	var errs []error
	tracker.OnUpdate(func(s Sample) {
		mu.Lock()
		lats = append(lats, s.Lat)
		mu.Unlock()
	})
	tracker.OnError(func(err error) {
		mu.Lock()
		errs = append(errs, err)
		mu.Unlock()
	})

	require.NoError(t, tracker.Start(t.Context()))

	require.Eventually(t, func() bool { return !tracker.Active() }, 2*time.Second, 5*time.Millisecond)

	mu.Lock()
	defer mu.Unlock()
	assert.Equal(t, []float64{-21.9336, -21.9338, -21.9341}, lats)
	require.Len(t, errs, 1)
	assert.ErrorIs(t, errs[0], ErrSensorTimeoutAtFloor)
	assert.Equal(t, TierLow, tracker.Tier())
}
