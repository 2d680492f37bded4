package store

import (
	"context"
	"database/sql"
	"fmt"
	"time"
)

type UserStore struct {
	db *sql.DB
}

func NewUserStore(db *sql.DB) *UserStore {
	return &UserStore{db: db}
}

// Ensure creates the user if missing and reports whether it did.
func (s *UserStore) Ensure(ctx context.Context, userID string) (bool, error) {
	res, err := s.db.ExecContext(ctx,
		`INSERT INTO users (id, created_at) VALUES (?, ?) ON CONFLICT(id) DO NOTHING`,
		userID, formatTime(time.Now()),
	)
	if err != nil {
		return false, fmt.Errorf("ensure user %s: %w", userID, err)
	}
	n, err := res.RowsAffected()
	if err != nil {
		return false, fmt.Errorf("ensure user %s: %w", userID, err)
	}
	return n == 1, nil
}

func (s *UserStore) Exists(ctx context.Context, userID string) (bool, error) {
	var one int
	err := s.db.QueryRowContext(ctx, `SELECT 1 FROM users WHERE id = ?`, userID).Scan(&one)
	if err == sql.ErrNoRows {
		return false, nil
	}
	if err != nil {
		return false, fmt.Errorf("get user %s: %w", userID, err)
	}
	return true, nil
}
