package store

import (
	"context"
	"database/sql"
	"fmt"
)

// SyncStatsStore keeps the per-user, per-day synchronization counter.
// Days are "YYYY-MM-DD" strings in UTC.
type SyncStatsStore struct {
	db *sql.DB
}

func NewSyncStatsStore(db *sql.DB) *SyncStatsStore {
	return &SyncStatsStore{db: db}
}

// Get returns the counter, 0 when no row exists yet.
func (s *SyncStatsStore) Get(ctx context.Context, userID, day string) (int, error) {
	var n int
	err := s.db.QueryRowContext(ctx,
		`SELECT sync_count FROM sync_stats WHERE user_id = ? AND day = ?`, userID, day,
	).Scan(&n)
	if err == sql.ErrNoRows {
		return 0, nil
	}
	if err != nil {
		return 0, fmt.Errorf("get sync count %s/%s: %w", userID, day, err)
	}
	return n, nil
}

// Increment atomically adds one, creating the row on first use, and returns
// the new value.
func (s *SyncStatsStore) Increment(ctx context.Context, userID, day string) (int, error) {
	var n int
	err := s.db.QueryRowContext(ctx,
		`INSERT INTO sync_stats (user_id, day, sync_count) VALUES (?, ?, 1)
		 ON CONFLICT(user_id, day) DO UPDATE SET sync_count = sync_count + 1
		 RETURNING sync_count`,
		userID, day,
	).Scan(&n)
	if err != nil {
		return 0, fmt.Errorf("increment sync count %s/%s: %w", userID, day, err)
	}
	return n, nil
}
