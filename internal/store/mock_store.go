// ABOUTME: Mock Store implementation for testing
// ABOUTME: Allows tests to run without SQLite and to inject write failures

package store

import (
	"context"
	"sort"
	"sync"
	"time"
)

// MockStore is an in-memory Store implementation for testing.
type MockStore struct {
	mu       sync.RWMutex
	entries  map[string]*CacheEntry // keyed by filename
	progress map[int]*ProgressEntry // keyed by chapter ID
	puts     int

	// PutErr, when set, is returned by PutCacheEntry.
	PutErr error
}

// NewMockStore creates a new MockStore.
func NewMockStore() *MockStore {
	return &MockStore{
		entries:  make(map[string]*CacheEntry),
		progress: make(map[int]*ProgressEntry),
	}
}

// PutCacheEntry stores an entry unless one already exists for the filename.
func (m *MockStore) PutCacheEntry(ctx context.Context, entry *CacheEntry) error {
	m.mu.Lock()
	defer m.mu.Unlock()

	m.puts++
	if m.PutErr != nil {
		return m.PutErr
	}
	if _, exists := m.entries[entry.Filename]; exists {
		return nil
	}

	// Make a copy to avoid external modification
	e := *entry
	e.Data = append([]byte(nil), entry.Data...)
	if e.CreatedAt.IsZero() {
		e.CreatedAt = time.Now()
	}
	m.entries[e.Filename] = &e
	return nil
}

// GetCacheEntry retrieves an entry by filename.
func (m *MockStore) GetCacheEntry(ctx context.Context, filename string) (*CacheEntry, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()

	e, ok := m.entries[filename]
	if !ok {
		return nil, ErrNotFound
	}
	out := *e
	out.Data = append([]byte(nil), e.Data...)
	return &out, nil
}

// CountCacheEntries returns the number of stored entries.
func (m *MockStore) CountCacheEntries(ctx context.Context) (int, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	return len(m.entries), nil
}

// ClearCacheEntries removes every entry.
func (m *MockStore) ClearCacheEntries(ctx context.Context) (int64, error) {
	m.mu.Lock()
	defer m.mu.Unlock()

	n := int64(len(m.entries))
	clear(m.entries)
	return n, nil
}

// PutCalls returns how many times PutCacheEntry was called.
func (m *MockStore) PutCalls() int {
	m.mu.RLock()
	defer m.mu.RUnlock()
	return m.puts
}

// RecordVisit stores a visit, replacing any earlier entry for the chapter.
func (m *MockStore) RecordVisit(ctx context.Context, entry *ProgressEntry) error {
	m.mu.Lock()
	defer m.mu.Unlock()

	e := *entry
	if entry.Location != nil {
		loc := *entry.Location
		e.Location = &loc
	}
	m.progress[e.ChapterID] = &e
	return nil
}

// AddTimeSpent accumulates time on an existing visit.
func (m *MockStore) AddTimeSpent(ctx context.Context, chapterID int, d time.Duration) error {
	m.mu.Lock()
	defer m.mu.Unlock()

	e, ok := m.progress[chapterID]
	if !ok {
		return ErrNotFound
	}
	e.TimeSpent += d
	return nil
}

// ListProgress returns visits ordered by visit time.
func (m *MockStore) ListProgress(ctx context.Context) ([]*ProgressEntry, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()

	out := make([]*ProgressEntry, 0, len(m.progress))
	for _, e := range m.progress {
		c := *e
		out = append(out, &c)
	}
	sort.Slice(out, func(i, j int) bool {
		if out[i].VisitedAt.Equal(out[j].VisitedAt) {
			return out[i].ChapterID < out[j].ChapterID
		}
		return out[i].VisitedAt.Before(out[j].VisitedAt)
	})
	return out, nil
}

// Close is a no-op for the mock.
func (m *MockStore) Close() error {
	return nil
}

// Compile-time check that MockStore implements Store
var _ Store = (*MockStore)(nil)
