package store

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/hookline/hookline/internal/core"
)

// GetBucket returns the stored window for a route, or nil when none is stored.
func (s *Store) GetBucket(ctx context.Context, route string) (*core.BucketState, error) {
	if s == nil || s.DB == nil {
		return nil, errors.New("bucket store: not open")
	}

	if ctx == nil {
		ctx = context.Background()
	}

	route = strings.TrimSpace(route)
	if route == "" {
		return nil, errors.New("route is required")
	}

	row := s.DB.QueryRowContext(ctx, `
		SELECT bucket_limit, remaining, reset_at, last_429_at, updated_at
		FROM rate_limits
		WHERE route = ?
	`, route)

	state, err := scanBucket(row.Scan)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, nil
		}
		return nil, fmt.Errorf("fetch bucket: %w", err)
	}
	return &state, nil
}

// UpdateBucket persists the window of a route.
func (s *Store) UpdateBucket(ctx context.Context, route string, state *core.BucketState) error {
	if s == nil || s.DB == nil {
		return errors.New("bucket store: not open")
	}

	if ctx == nil {
		ctx = context.Background()
	}

	route = strings.TrimSpace(route)
	if route == "" {
		return errors.New("route is required")
	}
	if state == nil {
		return errors.New("bucket state is required")
	}

	var last429At sql.NullInt64
	if state.Last429At != nil {
		last429At = sql.NullInt64{Int64: state.Last429At.UnixMilli(), Valid: true}
	}
	updatedAt := state.UpdatedAt
	if updatedAt.IsZero() {
		updatedAt = time.Now()
	}

	// A 429 timestamp survives later successful updates.
	_, err := s.DB.ExecContext(ctx, `
		INSERT INTO rate_limits (route, bucket_limit, remaining, reset_at, last_429_at, updated_at)
		VALUES (?, ?, ?, ?, ?, ?)
		ON CONFLICT(route) DO UPDATE SET
			bucket_limit = excluded.bucket_limit,
			remaining = excluded.remaining,
			reset_at = excluded.reset_at,
			last_429_at = COALESCE(excluded.last_429_at, rate_limits.last_429_at),
			updated_at = excluded.updated_at
	`, route, state.Limit, state.Remaining, state.ResetAt.UnixMilli(), last429At, updatedAt.UnixMilli())
	if err != nil {
		return fmt.Errorf("store bucket: %w", err)
	}

	return nil
}

func scanBucket(scan func(dest ...any) error, prefix ...any) (core.BucketState, error) {
	var (
		limit     int
		remaining int
		resetAt   int64
		last429At sql.NullInt64
		updatedAt int64
	)
	dest := append(prefix, &limit, &remaining, &resetAt, &last429At, &updatedAt)
	if err := scan(dest...); err != nil {
		return core.BucketState{}, err
	}

	state := core.BucketState{
		Limit:     limit,
		Remaining: remaining,
		ResetAt:   time.UnixMilli(resetAt).UTC(),
		UpdatedAt: time.UnixMilli(updatedAt).UTC(),
	}
	if last429At.Valid {
		value := time.UnixMilli(last429At.Int64).UTC()
		state.Last429At = &value
	}
	return state, nil
}
