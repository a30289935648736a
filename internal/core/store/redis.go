package store

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"slices"
	"strings"
	"time"

	"github.com/redis/go-redis/v9"

	"github.com/hookline/hookline/internal/config"
	"github.com/hookline/hookline/internal/core"
)

const (
	defaultKeyPrefix = "hookline:bucket:"
	// Stored windows are only useful across restarts; idle routes expire.
	redisBucketTTL = 24 * time.Hour
	redisScanCount = 200
)

// RedisStore keeps bucket windows in Redis so several processes sharing a
// token can seed from each other's state.
type RedisStore struct {
	client *redis.Client
	prefix string
}

type redisBucket struct {
	Limit     int    `json:"limit"`
	Remaining int    `json:"remaining"`
	ResetAt   int64  `json:"reset_at"`
	Last429At *int64 `json:"last_429_at,omitempty"`
	UpdatedAt int64  `json:"updated_at"`
}

// OpenRedis connects to the configured Redis server.
func OpenRedis(ctx context.Context, cfg config.StoreConfig) (*RedisStore, error) {
	if ctx == nil {
		ctx = context.Background()
	}
	addr := strings.TrimSpace(cfg.RedisAddr)
	if addr == "" {
		return nil, errors.New("redis address is required")
	}

	client := redis.NewClient(&redis.Options{
		Addr:     addr,
		Password: cfg.RedisPassword,
		DB:       cfg.RedisDB,
	})

	pingCtx, cancel := context.WithTimeout(ctx, 5*time.Second)
	defer cancel()
	if err := client.Ping(pingCtx).Err(); err != nil {
		_ = client.Close()
		return nil, fmt.Errorf("ping redis store: %w", err)
	}

	return NewRedisStore(client, cfg.KeyPrefix), nil
}

// NewRedisStore wraps an existing client.
func NewRedisStore(client *redis.Client, prefix string) *RedisStore {
	if strings.TrimSpace(prefix) == "" {
		prefix = defaultKeyPrefix
	}
	return &RedisStore{client: client, prefix: prefix}
}

// Close releases the client.
func (r *RedisStore) Close() error {
	if r == nil || r.client == nil {
		return nil
	}
	return r.client.Close()
}

// Driver returns the store driver name.
func (r *RedisStore) Driver() string {
	return config.DriverRedis
}

// GetBucket returns the stored window for a route, or nil when none is stored.
func (r *RedisStore) GetBucket(ctx context.Context, route string) (*core.BucketState, error) {
	route = strings.TrimSpace(route)
	if route == "" {
		return nil, errors.New("route is required")
	}

	raw, err := r.client.Get(ctx, r.key(route)).Bytes()
	if err != nil {
		if errors.Is(err, redis.Nil) {
			return nil, nil
		}
		return nil, fmt.Errorf("fetch bucket: %w", err)
	}

	state, err := decodeRedisBucket(raw)
	if err != nil {
		return nil, err
	}
	return &state, nil
}

// UpdateBucket persists the window of a route.
func (r *RedisStore) UpdateBucket(ctx context.Context, route string, state *core.BucketState) error {
	route = strings.TrimSpace(route)
	if route == "" {
		return errors.New("route is required")
	}
	if state == nil {
		return errors.New("bucket state is required")
	}

	updatedAt := state.UpdatedAt
	if updatedAt.IsZero() {
		updatedAt = time.Now()
	}
	record := redisBucket{
		Limit:     state.Limit,
		Remaining: state.Remaining,
		ResetAt:   state.ResetAt.UnixMilli(),
		UpdatedAt: updatedAt.UnixMilli(),
	}
	if state.Last429At != nil {
		ms := state.Last429At.UnixMilli()
		record.Last429At = &ms
	} else if previous, err := r.GetBucket(ctx, route); err == nil && previous != nil && previous.Last429At != nil {
		ms := previous.Last429At.UnixMilli()
		record.Last429At = &ms
	}

	payload, err := json.Marshal(record)
	if err != nil {
		return fmt.Errorf("encode bucket: %w", err)
	}
	if err := r.client.Set(ctx, r.key(route), payload, redisBucketTTL).Err(); err != nil {
		return fmt.Errorf("store bucket: %w", err)
	}
	return nil
}

func (r *RedisStore) ListBuckets(ctx context.Context, q BucketQuery) ([]BucketEntry, error) {
	keys, err := r.keys(ctx, q)
	if err != nil {
		return nil, err
	}

	entries := []BucketEntry{}
	if len(keys) == 0 {
		return entries, nil
	}

	values, err := r.client.MGet(ctx, keys...).Result()
	if err != nil {
		return nil, fmt.Errorf("list buckets: %w", err)
	}
	for i, value := range values {
		raw, ok := value.(string)
		if !ok {
			// Expired between SCAN and MGET.
			continue
		}
		state, err := decodeRedisBucket([]byte(raw))
		if err != nil {
			return nil, err
		}
		entries = append(entries, BucketEntry{Route: strings.TrimPrefix(keys[i], r.prefix), State: state})
	}
	return entries, nil
}

func (r *RedisStore) CountBuckets(ctx context.Context, q BucketQuery) (int, error) {
	entries, err := r.ListBuckets(ctx, q)
	if err != nil {
		return 0, err
	}
	return len(entries), nil
}

func (r *RedisStore) ResetBuckets(ctx context.Context, q BucketQuery) (int64, error) {
	keys, err := r.keys(ctx, q)
	if err != nil {
		return 0, err
	}
	if len(keys) == 0 {
		return 0, nil
	}
	deleted, err := r.client.Del(ctx, keys...).Result()
	if err != nil {
		return 0, fmt.Errorf("reset buckets: %w", err)
	}
	return deleted, nil
}

// keys returns the sorted keys selected by q.
func (r *RedisStore) keys(ctx context.Context, q BucketQuery) ([]string, error) {
	if err := q.Validate(); err != nil {
		return nil, err
	}

	if route := strings.TrimSpace(q.Route); !q.All && route != "" {
		n, err := r.client.Exists(ctx, r.key(route)).Result()
		if err != nil {
			return nil, fmt.Errorf("lookup bucket: %w", err)
		}
		if n == 0 {
			return nil, nil
		}
		return []string{r.key(route)}, nil
	}

	pattern := escapeGlob(r.prefix) + "*"
	if !q.All {
		pattern = escapeGlob(r.prefix+strings.TrimSpace(q.Prefix)) + "*"
	}

	var (
		keys   []string
		cursor uint64
	)
	for {
		batch, next, err := r.client.Scan(ctx, cursor, pattern, redisScanCount).Result()
		if err != nil {
			return nil, fmt.Errorf("scan buckets: %w", err)
		}
		keys = append(keys, batch...)
		cursor = next
		if cursor == 0 {
			break
		}
	}

	keys = dedupeSorted(keys)
	return keys, nil
}

func (r *RedisStore) key(route string) string {
	return r.prefix + route
}

func decodeRedisBucket(raw []byte) (core.BucketState, error) {
	var record redisBucket
	if err := json.Unmarshal(raw, &record); err != nil {
		return core.BucketState{}, fmt.Errorf("decode bucket: %w", err)
	}
	state := core.BucketState{
		Limit:     record.Limit,
		Remaining: record.Remaining,
		ResetAt:   time.UnixMilli(record.ResetAt).UTC(),
		UpdatedAt: time.UnixMilli(record.UpdatedAt).UTC(),
	}
	if record.Last429At != nil {
		value := time.UnixMilli(*record.Last429At).UTC()
		state.Last429At = &value
	}
	return state, nil
}

func escapeGlob(s string) string {
	return strings.NewReplacer(`\`, `\\`, `*`, `\*`, `?`, `\?`, `[`, `\[`, `]`, `\]`).Replace(s)
}

// dedupeSorted sorts keys and drops the duplicates SCAN may return.
func dedupeSorted(keys []string) []string {
	slices.Sort(keys)
	return slices.Compact(keys)
}
