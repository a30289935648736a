package store

import (
	"context"
	"errors"
	"fmt"
	"strings"
)

// migrations are applied in order and tracked with PRAGMA user_version, so
// index i moves a database from version i to i+1. Append only.
var migrations = [][]string{
	{
		`CREATE TABLE IF NOT EXISTS rate_limits (
			route TEXT PRIMARY KEY,
			bucket_limit INTEGER NOT NULL DEFAULT 1,
			remaining INTEGER NOT NULL DEFAULT 1,
			reset_at INTEGER NOT NULL,
			updated_at INTEGER NOT NULL
		)`,
		`CREATE INDEX IF NOT EXISTS idx_rate_limits_reset ON rate_limits(reset_at)`,
	},
	{
		`ALTER TABLE rate_limits ADD COLUMN last_429_at INTEGER`,
	},
}

// Migrate brings the bucket schema up to date.
func (s *Store) Migrate(ctx context.Context) error {
	if s == nil || s.DB == nil {
		return errors.New("bucket store: not open")
	}
	if ctx == nil {
		ctx = context.Background()
	}

	var version int
	if err := s.DB.QueryRowContext(ctx, "PRAGMA user_version").Scan(&version); err != nil {
		return fmt.Errorf("bucket store: read schema version: %w", err)
	}

	for v := version; v < len(migrations); v++ {
		for _, stmt := range migrations[v] {
			if _, err := s.DB.ExecContext(ctx, stmt); err != nil && !alreadyApplied(err) {
				return fmt.Errorf("bucket store: migration %d: %w", v+1, err)
			}
		}
		if _, err := s.DB.ExecContext(ctx, fmt.Sprintf("PRAGMA user_version = %d", v+1)); err != nil {
			return fmt.Errorf("bucket store: record schema version %d: %w", v+1, err)
		}
	}
	return nil
}

// alreadyApplied tolerates ALTERs replayed against a database that gained
// the column before versioning was recorded.
func alreadyApplied(err error) bool {
	return strings.Contains(strings.ToLower(err.Error()), "duplicate column")
}
