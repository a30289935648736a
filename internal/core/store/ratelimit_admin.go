package store

import (
	"context"
	"errors"
	"fmt"
	"strings"

	"github.com/hookline/hookline/internal/core"
)

// BucketEntry is one stored route window.
type BucketEntry struct {
	Route string
	State core.BucketState
}

// BucketQuery selects stored buckets. Exactly one selector is honoured, in
// the order All, Route, Prefix.
type BucketQuery struct {
	All    bool
	Route  string
	Prefix string
}

// Validate rejects a query with no selector.
func (q BucketQuery) Validate() error {
	if q.All || strings.TrimSpace(q.Route) != "" || strings.TrimSpace(q.Prefix) != "" {
		return nil
	}
	return errors.New("select buckets with --all, --route or --prefix")
}

// Matches reports whether route is selected by q.
func (q BucketQuery) Matches(route string) bool {
	if q.All {
		return true
	}
	if r := strings.TrimSpace(q.Route); r != "" {
		return route == r
	}
	prefix := strings.TrimSpace(q.Prefix)
	return prefix != "" && strings.HasPrefix(route, prefix)
}

func (q BucketQuery) whereClause() (string, []any, error) {
	if err := q.Validate(); err != nil {
		return "", nil, err
	}
	if q.All {
		return "", nil, nil
	}
	if route := strings.TrimSpace(q.Route); route != "" {
		return "WHERE route = ?", []any{route}, nil
	}
	return "WHERE route LIKE ? ESCAPE '\\'", []any{escapeLike(strings.TrimSpace(q.Prefix)) + "%"}, nil
}

func escapeLike(s string) string {
	return strings.NewReplacer(`\`, `\\`, `%`, `\%`, `_`, `\_`).Replace(s)
}

// selection resolves q into a WHERE clause for the rate_limits table.
func (s *Store) selection(ctx context.Context, q BucketQuery) (context.Context, string, []any, error) {
	if s == nil || s.DB == nil {
		return nil, "", nil, errors.New("bucket store: not open")
	}
	if ctx == nil {
		ctx = context.Background()
	}
	where, args, err := q.whereClause()
	return ctx, where, args, err
}

// ListBuckets returns the selected buckets ordered by route.
func (s *Store) ListBuckets(ctx context.Context, q BucketQuery) ([]BucketEntry, error) {
	ctx, where, args, err := s.selection(ctx, q)
	if err != nil {
		return nil, err
	}

	rows, err := s.DB.QueryContext(ctx,
		"SELECT route, bucket_limit, remaining, reset_at, last_429_at, updated_at FROM rate_limits "+where+" ORDER BY route",
		args...)
	if err != nil {
		return nil, fmt.Errorf("bucket store: list: %w", err)
	}
	defer rows.Close() // nolint:errcheck // read-only cursor

	entries := []BucketEntry{}
	for rows.Next() {
		var entry BucketEntry
		if entry.State, err = scanBucket(rows.Scan, &entry.Route); err != nil {
			return nil, fmt.Errorf("bucket store: list: %w", err)
		}
		entries = append(entries, entry)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("bucket store: list: %w", err)
	}
	return entries, nil
}

// CountBuckets reports how many buckets q selects.
func (s *Store) CountBuckets(ctx context.Context, q BucketQuery) (int, error) {
	ctx, where, args, err := s.selection(ctx, q)
	if err != nil {
		return 0, err
	}

	var count int
	if err := s.DB.QueryRowContext(ctx, "SELECT COUNT(*) FROM rate_limits "+where, args...).Scan(&count); err != nil {
		return 0, fmt.Errorf("bucket store: count: %w", err)
	}
	return count, nil
}

// ResetBuckets deletes the selected buckets and returns how many went.
func (s *Store) ResetBuckets(ctx context.Context, q BucketQuery) (int64, error) {
	ctx, where, args, err := s.selection(ctx, q)
	if err != nil {
		return 0, err
	}

	result, err := s.DB.ExecContext(ctx, "DELETE FROM rate_limits "+where, args...)
	if err != nil {
		return 0, fmt.Errorf("bucket store: reset: %w", err)
	}
	deleted, err := result.RowsAffected()
	if err != nil {
		return 0, fmt.Errorf("bucket store: reset: %w", err)
	}
	return deleted, nil
}
