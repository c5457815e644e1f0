// ABOUTME: SQLite persistence for the journey progress journal
// ABOUTME: Records chapter visits, the location they happened at and time spent

package store

import (
	"context"
	"database/sql"
	"fmt"
	"time"
)

// visitedAtLayout is fixed width so visited_at sorts chronologically as text.
const visitedAtLayout = "2006-01-02T15:04:05.000000000Z07:00"

// RecordVisit stores a visit, replacing any earlier entry for the same chapter.
func (s *SQLiteStore) RecordVisit(ctx context.Context, entry *ProgressEntry) error {
	query := `
		INSERT INTO journey_progress (chapter_id, visited_at, time_spent_ms, lat, lng, accuracy)
		VALUES (?, ?, ?, ?, ?, ?)
		ON CONFLICT(chapter_id) DO UPDATE SET
			visited_at = excluded.visited_at,
			time_spent_ms = excluded.time_spent_ms,
			lat = excluded.lat,
			lng = excluded.lng,
			accuracy = excluded.accuracy
	`

	var lat, lng, accuracy sql.NullFloat64
	if entry.Location != nil {
		lat = sql.NullFloat64{Float64: entry.Location.Lat, Valid: true}
		lng = sql.NullFloat64{Float64: entry.Location.Lng, Valid: true}
		accuracy = sql.NullFloat64{Float64: entry.Location.Accuracy, Valid: true}
	}

	_, err := s.db.ExecContext(ctx, query,
		entry.ChapterID,
		entry.VisitedAt.UTC().Format(visitedAtLayout),
		entry.TimeSpent.Milliseconds(),
		lat, lng, accuracy,
	)
	if err != nil {
		return fmt.Errorf("recording visit: %w", err)
	}

	s.logger.Debug("recorded visit", "chapter_id", entry.ChapterID)
	return nil
}

// AddTimeSpent accumulates d onto the entry for chapterID.
// Returns ErrNotFound if the chapter has never been visited.
func (s *SQLiteStore) AddTimeSpent(ctx context.Context, chapterID int, d time.Duration) error {
	res, err := s.db.ExecContext(ctx,
		`UPDATE journey_progress SET time_spent_ms = time_spent_ms + ? WHERE chapter_id = ?`,
		d.Milliseconds(), chapterID,
	)
	if err != nil {
		return fmt.Errorf("updating time spent: %w", err)
	}

	n, err := res.RowsAffected()
	if err != nil {
		return fmt.Errorf("reading rows affected: %w", err)
	}
	if n == 0 {
		return ErrNotFound
	}
	return nil
}

// ListProgress returns every visit ordered by visit time.
func (s *SQLiteStore) ListProgress(ctx context.Context) ([]*ProgressEntry, error) {
	query := `
		SELECT chapter_id, visited_at, time_spent_ms, lat, lng, accuracy
		FROM journey_progress
		ORDER BY visited_at ASC, chapter_id ASC
	`

	rows, err := s.db.QueryContext(ctx, query)
	if err != nil {
		return nil, fmt.Errorf("querying progress: %w", err)
	}
	defer rows.Close()

	var entries []*ProgressEntry
	for rows.Next() {
		var entry ProgressEntry
		var visitedAtStr string
		var spentMs int64
		var lat, lng, accuracy sql.NullFloat64

		if err := rows.Scan(&entry.ChapterID, &visitedAtStr, &spentMs, &lat, &lng, &accuracy); err != nil {
			return nil, fmt.Errorf("scanning progress: %w", err)
		}

		entry.VisitedAt, err = time.Parse(time.RFC3339Nano, visitedAtStr)
		if err != nil {
			return nil, fmt.Errorf("parsing visited_at: %w", err)
		}
		entry.TimeSpent = time.Duration(spentMs) * time.Millisecond
		if lat.Valid && lng.Valid {
			entry.Location = &ProgressLocation{Lat: lat.Float64, Lng: lng.Float64, Accuracy: accuracy.Float64}
		}

		entries = append(entries, &entry)
	}

	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterating progress: %w", err)
	}

	return entries, nil
}
