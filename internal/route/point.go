// ABOUTME: Route points marking chapter locations along the pilgrimage
// ABOUTME: Provides the Source abstraction, a static source and point validation

package route

import (
	"errors"
	"fmt"
	"slices"
)

// Point is a geographic location bound to a chapter.
type Point struct {
	Lat           float64 `json:"lat" yaml:"lat" toml:"lat"`
	Lng           float64 `json:"lng" yaml:"lng" toml:"lng"`
	SequenceIndex int     `json:"sequence_index" yaml:"sequence_index" toml:"sequence_index"`
	ChapterID     int     `json:"chapter_id" yaml:"chapter_id" toml:"chapter_id"`
	Label         string  `json:"label,omitempty" yaml:"label" toml:"label"`
}

// Source supplies the current route. Implementations return a snapshot the
// caller may keep.
type Source interface {
	Points() []Point
}

// Static is a fixed route.
type Static []Point

// Points returns a copy of the route.
func (s Static) Points() []Point {
	return slices.Clone(s)
}

var ErrDuplicateSequence = errors.New("duplicate sequence index")

// Validate checks coordinates, chapter ids and that sequence indices are
// unique.
func Validate(points []Point) error {
	seen := make(map[int]struct{}, len(points))
	for i, p := range points {
		if p.Lat < -90 || p.Lat > 90 {
			return fmt.Errorf("point %d: latitude %v out of range", i, p.Lat)
		}
		if p.Lng < -180 || p.Lng > 180 {
			return fmt.Errorf("point %d: longitude %v out of range", i, p.Lng)
		}
		if p.ChapterID <= 0 {
			return fmt.Errorf("point %d: chapter_id must be positive", i)
		}
		if _, ok := seen[p.SequenceIndex]; ok {
			return fmt.Errorf("point %d: %w %d", i, ErrDuplicateSequence, p.SequenceIndex)
		}
		seen[p.SequenceIndex] = struct{}{}
	}
	return nil
}

// Sorted returns a copy of points ordered by SequenceIndex.
func Sorted(points []Point) []Point {
	out := slices.Clone(points)
	slices.SortStableFunc(out, func(a, b Point) int {
		return a.SequenceIndex - b.SequenceIndex
	})
	return out
}

// ChapterIDs returns the chapters of points in sequence order.
func ChapterIDs(points []Point) []int {
	sorted := Sorted(points)
	ids := make([]int, len(sorted))
	for i, p := range sorted {
		ids[i] = p.ChapterID
	}
	return ids
}
