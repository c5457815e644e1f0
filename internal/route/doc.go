// Package route supplies the ordered chapter locations of a journey.
//
// A route is a list of Points, each binding a coordinate to a chapter id.
// SequenceIndex orders the points and must be unique; consumers that need
// a deterministic choice between overlapping points use Sorted.
//
// Sources hand out snapshots, so callers never share a slice with the
// source. Static wraps a fixed list. File reads a YAML or TOML document
//
//	points:
//	  - {lat: -21.9336, lng: -46.7054, sequence_index: 1, chapter_id: 1, label: "Portal"}
//
// or, in TOML,
//
//	[[points]]
//	lat = -21.9336
//	lng = -46.7054
//	sequence_index = 1
//	chapter_id = 1
//
// and Watch keeps it current as the file is edited. A document that fails
// to parse or validate leaves the previous route in place.
package route
