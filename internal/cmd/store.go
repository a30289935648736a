package cmd

import (
	"context"
	"fmt"
	"sync"

	"github.com/spf13/viper"
	"go.uber.org/zap"

	"github.com/hookline/hookline/internal/config"
	"github.com/hookline/hookline/internal/core/store"
	"github.com/hookline/hookline/internal/observability"
	"github.com/hookline/hookline/internal/rest"
)

func loadConfig() (*config.Config, error) {
	cfg, err := config.Load(viper.GetViper())
	if err != nil {
		return nil, fmt.Errorf("%w: %w", errConfig, err)
	}
	return cfg, nil
}

// openBackend opens the configured bucket store. The none driver yields a
// nil backend.
func openBackend(ctx context.Context, cfg *config.Config) (store.Backend, error) {
	backend, err := store.OpenBackend(ctx, cfg.Store)
	if err != nil {
		return nil, fmt.Errorf("open %s store: %w", cfg.Store.Driver, err)
	}
	return backend, nil
}

// requireBackend is openBackend for commands that have nothing to do
// without a store.
func requireBackend(ctx context.Context, cfg *config.Config) (store.Backend, error) {
	backend, err := openBackend(ctx, cfg)
	if err != nil {
		return nil, err
	}
	if backend == nil {
		return nil, fmt.Errorf("%w: store.driver is %q; rate limit state is not persisted", errConfig, cfg.Store.Driver)
	}
	return backend, nil
}

// dispatchSession is a dispatcher plus the store it persists to.
type dispatchSession struct {
	Dispatcher *rest.Dispatcher
	Backend    store.Backend

	closeOnce sync.Once
}

// Close releases the store. It is safe to call more than once.
func (s *dispatchSession) Close() {
	if s == nil || s.Backend == nil {
		return
	}
	s.closeOnce.Do(func() {
		if err := s.Backend.Close(); err != nil {
			if logger := observability.DispatchLogger(); logger != nil {
				logger.Warn("Failed to close store", zap.Error(err))
			}
		}
	})
}

// newDispatchSession builds the dispatcher used by one command run. A store
// that fails to open is logged and skipped; sending does not depend on it.
func newDispatchSession(ctx context.Context, cfg *config.Config) *dispatchSession {
	opts := cfg.Dispatcher.Options()
	opts.Logger = observability.DispatchLogger()

	backend, err := openBackend(ctx, cfg)
	if err != nil {
		if opts.Logger != nil {
			opts.Logger.Warn("Bucket store unavailable, continuing without persistence", zap.Error(err))
		}
		backend = nil
	}
	if backend != nil {
		opts.Store = backend
	}

	return &dispatchSession{
		Dispatcher: rest.NewDispatcher(opts),
		Backend:    backend,
	}
}
