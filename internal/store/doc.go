// Package store provides persistent storage for techno-sutra using SQLite.
//
// # Architecture
//
// Two narrow interfaces split the persistence concerns:
//
//   - CacheStore: durable, write-once copies of fetched 3D assets
//   - ProgressStore: the journal of visited chapters
//
// SQLiteStore implements both, and MockStore provides an in-memory
// implementation for tests.
//
// # Cache Entries
//
// Entries are keyed by a filename derived from the asset id
// ("modelo7.glb"). PutCacheEntry uses INSERT OR IGNORE so an entry is
// never rewritten once stored. Nothing evicts entries; the table grows
// until ClearCacheEntries is called.
//
// # Progress
//
// RecordVisit keeps one row per chapter. Revisiting a chapter replaces the
// row; AddTimeSpent accumulates the time spent before moving on.
//
// # Database
//
// SQLite via modernc.org/sqlite (pure Go, no cgo). File-backed stores run
// in WAL mode; ":memory:" stores are pinned to one connection.
package store
