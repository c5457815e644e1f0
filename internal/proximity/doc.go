// Package proximity decides when a location sample advances the journey
// to a new chapter.
//
// For each sample the Matcher scans the route in SequenceIndex order and
// takes the first point within Threshold meters (100 by default, boundary
// inclusive). Overlapping radii therefore resolve to the earlier point in
// the sequence, not the nearest one. When that point's chapter differs
// from the active chapter the matcher switches to it and publishes one
// Event. Further samples on the same point publish nothing until the
// active chapter changes again.
//
// The route is read, never modified. Attach pulls a new snapshot from the
// route.Source for every sample so the route may change between samples.
package proximity
