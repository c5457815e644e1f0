// Package location turns a platform geolocation sensor into a stream of
// position samples for the rest of the journey.
//
// # Tracker
//
// A Tracker owns at most one continuous sensor subscription. Start takes
// one immediate sample, then opens a watch using the options of the
// current accuracy tier:
//
//	Tier    HighAccuracy  Timeout  MaxSampleAge
//	high    yes           15s      10s
//	medium  no            10s      30s
//	low     no            10s      60s
//
// When the sensor times out the tracker cancels the watch, waits
// RetryDelay (1s by default) and re-opens it one tier lower. A timeout at
// the low tier ends the session and is published once, wrapped in
// ErrSensorTimeoutAtFloor. The tier only moves downward during a session;
// the next Start resets it to high.
//
// Permission and availability failures are published unchanged and do not
// affect the tier.
//
// # Subscribers
//
// OnUpdate and OnError return events.Subscription handles. Samples reach
// listeners in arrival order. Stop keeps the last sample available through
// LastKnown.
//
// # Geometry
//
// DistanceMeters is the haversine great-circle distance on a sphere of
// radius 6371 km. IsNear treats the threshold as inclusive.
//
// # Replay
//
// ReplaySensor plays back a recorded YAML track and stands in for a
// device sensor in the CLI and in tests.
package location
