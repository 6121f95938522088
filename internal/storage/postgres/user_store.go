package postgres

import (
	"context"
	"fmt"
	"strings"
	"time"

	"perp-stats/internal/storage"
)

// UserStore implements storage.UserStore using PostgreSQL.
type UserStore struct {
	pool *Pool
}

// NewUserStore creates a new UserStore.
func NewUserStore(pool *Pool) *UserStore {
	return &UserStore{pool: pool}
}

// Compile-time interface check.
var _ storage.UserStore = (*UserStore)(nil)

// Upsert sets createdAt on first sight and always moves updatedAt.
func (s *UserStore) Upsert(ctx context.Context, address string, timestamp int64) (err error) {
	if address == "" {
		return storage.ErrInvalidInput
	}
	defer func(start time.Time) { observe("user_upsert", start, err) }(time.Now())

	_, err = s.pool.Exec(ctx, `
		INSERT INTO users (id, created_at_timestamp, updated_at_timestamp)
		VALUES ($1, $2, $2)
		ON CONFLICT (id) DO UPDATE
		SET updated_at_timestamp = EXCLUDED.updated_at_timestamp
	`, strings.ToLower(address), timestamp)
	if err != nil {
		return fmt.Errorf("upsert user: %w", err)
	}
	return nil
}

// Count returns the number of distinct users.
func (s *UserStore) Count(ctx context.Context) (n int64, err error) {
	defer func(start time.Time) { observe("user_count", start, err) }(time.Now())

	if err = s.pool.QueryRow(ctx, `SELECT COUNT(*) FROM users`).Scan(&n); err != nil {
		return 0, fmt.Errorf("count users: %w", err)
	}
	return n, nil
}
