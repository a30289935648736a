package store

import (
	"context"
	"fmt"
	"strings"

	"github.com/hookline/hookline/internal/config"
	"github.com/hookline/hookline/internal/core"
)

// Backend is a bucket store with the admin operations the CLI needs. Both
// *Store and *RedisStore satisfy it.
type Backend interface {
	GetBucket(ctx context.Context, route string) (*core.BucketState, error)
	UpdateBucket(ctx context.Context, route string, state *core.BucketState) error
	ListBuckets(ctx context.Context, q BucketQuery) ([]BucketEntry, error)
	CountBuckets(ctx context.Context, q BucketQuery) (int, error)
	ResetBuckets(ctx context.Context, q BucketQuery) (int64, error)
	Driver() string
	Close() error
}

var (
	_ Backend = (*Store)(nil)
	_ Backend = (*RedisStore)(nil)
)

// OpenBackend opens and prepares the configured backend. The none driver
// returns a nil backend and no error.
func OpenBackend(ctx context.Context, cfg config.StoreConfig) (Backend, error) {
	switch strings.ToLower(strings.TrimSpace(cfg.Driver)) {
	case config.DriverNone:
		return nil, nil
	case config.DriverRedis:
		rs, err := OpenRedis(ctx, cfg)
		if err != nil {
			return nil, err
		}
		return rs, nil
	case "", config.DriverLibsql:
		st, err := Open(ctx, cfg)
		if err != nil {
			return nil, err
		}
		if err := st.Migrate(ctx); err != nil {
			_ = st.Close()
			return nil, err
		}
		return st, nil
	default:
		return nil, fmt.Errorf("unsupported store driver: %s", cfg.Driver)
	}
}
