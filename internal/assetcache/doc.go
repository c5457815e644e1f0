// Package assetcache resolves numeric asset ids to loadable local handles.
//
// # Overview
//
// A Cache is constructed once per session and owns every handle it hands
// out. Load is idempotent: once an id has a Ready handle, later calls
// return that same handle without touching the network.
//
//	c, _ := assetcache.New(assetcache.Options{
//	    Fetcher: assetcache.NewHTTPFetcher(baseURL, nil),
//	    Store:   sqliteStore,
//	})
//	h := c.Load(ctx, 7)
//
// # Fetching
//
// Concurrent loads of the same id join a single in-flight fetch
// (singleflight keyed by id); loads of different ids proceed
// independently. Each fetch runs under its own deadline (10s by default)
// that is passed into the HTTP request, so an expired fetch is aborted
// rather than left to finish in the background.
//
// Clear cancels running fetches as well. Their waiters receive
// placeholders, and a later load of the same id starts only after the
// aborted transfer has returned.
//
// # Failure
//
// Load never returns an error. Timeouts, transport failures, non-2xx
// responses and empty bodies produce a placeholder handle whose Ref is
// deterministic for the id. Placeholders are not kept, so the next Load
// retries. If a durable copy exists in the store it is used instead of
// the placeholder.
//
// Successful fetches are written through to the store. A failed write is
// logged and otherwise ignored.
//
// # Events
//
// OnLoaded, OnError and OnCleared register listeners and return
// subscription handles. The prefetch scheduler uses OnLoaded to warm the
// neighbourhood of foreground loads.
package assetcache
