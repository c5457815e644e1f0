// Package prefetch warms assets next to the one the traveller is viewing.
//
// After every successful foreground load of id c the scheduler queues the
// window {c-2, c-1, c+1, c+2} clipped to [1, Total], skipping ids that are
// already resident or pending. Queued ids stay in a pending set until their
// background load settles, so repeated triggers never enqueue duplicates.
//
// Run starts a small worker pool. Each worker waits until the cache has no
// foreground load in flight and for a rate limiter token before calling
// Cache.Prefetch, so background work never delays what the traveller
// asked for. Background loads do not trigger further sweeps.
package prefetch
