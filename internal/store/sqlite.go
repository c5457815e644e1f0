// ABOUTME: SQLite implementation of the Store interface using modernc.org/sqlite
// ABOUTME: Provides asset cache and progress persistence with automatic schema creation

package store

import (
	"context"
	"database/sql"
	"fmt"
	"log/slog"
	"os"
	"path/filepath"
	"time"

	_ "modernc.org/sqlite"
)

// SQLiteStore implements the Store interface using SQLite
type SQLiteStore struct {
	db     *sql.DB
	logger *slog.Logger
}

// NewSQLiteStore creates a new SQLite store at the given path.
// The schema is automatically created if it doesn't exist.
// Parent directories are created if needed. Use ":memory:" for a throwaway store.
func NewSQLiteStore(path string) (*SQLiteStore, error) {
	logger := slog.Default().With("component", "store")

	if path != ":memory:" {
		// Ensure parent directory exists
		dir := filepath.Dir(path)
		if err := os.MkdirAll(dir, 0755); err != nil {
			return nil, fmt.Errorf("creating database directory: %w", err)
		}
	}

	db, err := sql.Open("sqlite", path)
	if err != nil {
		return nil, fmt.Errorf("opening database: %w", err)
	}

	if path == ":memory:" {
		// Every pooled connection would otherwise get its own empty database
		db.SetMaxOpenConns(1)
	} else {
		// Enable WAL mode for better concurrent performance
		if _, err := db.Exec("PRAGMA journal_mode=WAL"); err != nil {
			db.Close()
			return nil, fmt.Errorf("enabling WAL mode: %w", err)
		}
	}

	s := &SQLiteStore{
		db:     db,
		logger: logger,
	}

	if err := s.createSchema(); err != nil {
		db.Close()
		return nil, fmt.Errorf("creating schema: %w", err)
	}

	logger.Info("SQLite store initialized", "path", path)
	return s, nil
}

// createSchema creates the database tables if they don't exist
func (s *SQLiteStore) createSchema() error {
	schema := `
		CREATE TABLE IF NOT EXISTS cache_entries (
			filename   TEXT PRIMARY KEY,
			asset_id   INTEGER NOT NULL,
			data       BLOB NOT NULL,
			created_at TEXT NOT NULL
		);

		CREATE INDEX IF NOT EXISTS idx_cache_entries_asset ON cache_entries(asset_id);

		CREATE TABLE IF NOT EXISTS journey_progress (
			chapter_id    INTEGER PRIMARY KEY,
			visited_at    TEXT NOT NULL,
			time_spent_ms INTEGER NOT NULL DEFAULT 0,
			lat           REAL,
			lng           REAL,
			accuracy      REAL
		);

		CREATE INDEX IF NOT EXISTS idx_journey_progress_visited ON journey_progress(visited_at);
	`

	_, err := s.db.Exec(schema)
	return err
}

// Close closes the database connection
func (s *SQLiteStore) Close() error {
	s.logger.Info("closing SQLite store")
	return s.db.Close()
}

// PutCacheEntry writes an asset entry. Existing entries are left untouched.
func (s *SQLiteStore) PutCacheEntry(ctx context.Context, entry *CacheEntry) error {
	query := `
		INSERT OR IGNORE INTO cache_entries (filename, asset_id, data, created_at)
		VALUES (?, ?, ?, ?)
	`

	createdAt := entry.CreatedAt
	if createdAt.IsZero() {
		createdAt = time.Now()
	}

	res, err := s.db.ExecContext(ctx, query,
		entry.Filename,
		entry.AssetID,
		entry.Data,
		createdAt.UTC().Format(time.RFC3339Nano),
	)
	if err != nil {
		return fmt.Errorf("inserting cache entry: %w", err)
	}

	if n, _ := res.RowsAffected(); n == 0 {
		s.logger.Debug("cache entry already present", "filename", entry.Filename)
		return nil
	}

	s.logger.Debug("stored cache entry", "filename", entry.Filename, "bytes", len(entry.Data))
	return nil
}

// GetCacheEntry retrieves an entry by filename.
// Returns ErrNotFound if no entry exists.
func (s *SQLiteStore) GetCacheEntry(ctx context.Context, filename string) (*CacheEntry, error) {
	query := `
		SELECT filename, asset_id, data, created_at
		FROM cache_entries
		WHERE filename = ?
	`

	var entry CacheEntry
	var createdAtStr string

	err := s.db.QueryRowContext(ctx, query, filename).Scan(
		&entry.Filename,
		&entry.AssetID,
		&entry.Data,
		&createdAtStr,
	)
	if err == sql.ErrNoRows {
		return nil, ErrNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("querying cache entry: %w", err)
	}

	entry.CreatedAt, err = time.Parse(time.RFC3339Nano, createdAtStr)
	if err != nil {
		return nil, fmt.Errorf("parsing created_at: %w", err)
	}

	return &entry, nil
}

// CountCacheEntries returns the number of stored assets.
func (s *SQLiteStore) CountCacheEntries(ctx context.Context) (int, error) {
	var n int
	if err := s.db.QueryRowContext(ctx, `SELECT COUNT(*) FROM cache_entries`).Scan(&n); err != nil {
		return 0, fmt.Errorf("counting cache entries: %w", err)
	}
	return n, nil
}

// ClearCacheEntries deletes every stored asset.
func (s *SQLiteStore) ClearCacheEntries(ctx context.Context) (int64, error) {
	res, err := s.db.ExecContext(ctx, `DELETE FROM cache_entries`)
	if err != nil {
		return 0, fmt.Errorf("clearing cache entries: %w", err)
	}

	n, err := res.RowsAffected()
	if err != nil {
		return 0, fmt.Errorf("reading rows affected: %w", err)
	}

	s.logger.Info("cleared cache entries", "count", n)
	return n, nil
}
