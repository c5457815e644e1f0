// Package journey runs a techno-sutra session end to end.
//
// # Overview
//
// A Journey wires the core components together:
//
//	location.Tracker ──samples──▶ proximity.Matcher ──advance──▶ Journey
//	                                                              │
//	              prefetch.Scheduler ◀──loaded── assetcache.Cache ◀┘
//
// Each chapter advance is journaled in the progress store, with the time
// spent on the previous chapter added to its entry, and the chapter's
// model is loaded in the foreground. The scheduler then warms the
// neighbouring chapters in the background.
//
// Advances are handed from the tracker's delivery goroutine to the Run
// loop through a small buffered queue, so a slow model download never
// delays location samples.
//
// # HTTP API
//
//	GET /health           liveness, "OK"
//	GET /api/assets/{id}  model bytes (model/gltf-binary), or 503 with
//	                      X-Asset-Fallback set to the placeholder reference
//	GET /api/chapter      {"chapter_id": N}
//	PUT /api/chapter      select a chapter: {"chapter_id": N}
//	GET /api/location     last known sample, 404 before the first fix
//	GET /api/progress     visited chapters, oldest first
//	GET /api/stats        cache, prefetch, location and route summary
//
// # Listeners
//
// The API listens on server.http_addr, or on port 80 of a tsnet node when
// tailscale.enabled is set.
//
// # Location
//
// Without a configured sensor the journey runs API-only and chapters change
// through PUT /api/chapter. location.track replays a recorded walk. The
// tracker is not started when the sensor reports permission denied.
package journey
