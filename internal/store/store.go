// ABOUTME: Store interfaces and data types for techno-sutra persistence
// ABOUTME: Defines the durable asset cache entries and the journey progress journal

package store

import (
	"context"
	"errors"
	"time"
)

// ErrNotFound is returned when a requested entity does not exist
var ErrNotFound = errors.New("not found")

// CacheEntry is a durable copy of a fetched asset.
// Entries are written once and never mutated.
type CacheEntry struct {
	Filename  string // deterministic name derived from the asset id, e.g. "modelo7.glb"
	AssetID   int
	Data      []byte
	CreatedAt time.Time
}

// ProgressLocation is the position recorded alongside a chapter visit.
type ProgressLocation struct {
	Lat      float64
	Lng      float64
	Accuracy float64
}

// ProgressEntry records a visit to a chapter.
type ProgressEntry struct {
	ChapterID int
	VisitedAt time.Time
	TimeSpent time.Duration
	Location  *ProgressLocation // nil when no location fix was known
}

// CacheStore persists fetched assets for offline reuse.
type CacheStore interface {
	// PutCacheEntry writes an entry. Writing a filename that already exists
	// is a no-op: entries are never overwritten.
	PutCacheEntry(ctx context.Context, entry *CacheEntry) error
	GetCacheEntry(ctx context.Context, filename string) (*CacheEntry, error)
	CountCacheEntries(ctx context.Context) (int, error)
	// ClearCacheEntries removes every entry and returns how many were removed.
	ClearCacheEntries(ctx context.Context) (int64, error)
}

// ProgressStore persists the chapters a traveller has visited.
type ProgressStore interface {
	// RecordVisit stores a visit, replacing any previous entry for the chapter.
	RecordVisit(ctx context.Context, entry *ProgressEntry) error
	// AddTimeSpent accumulates time on an existing entry.
	AddTimeSpent(ctx context.Context, chapterID int, d time.Duration) error
	// ListProgress returns entries ordered by visit time, oldest first.
	ListProgress(ctx context.Context) ([]*ProgressEntry, error)
}

// Store combines every persistence concern.
type Store interface {
	CacheStore
	ProgressStore
	Close() error
}
