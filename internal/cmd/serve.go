package cmd

import (
	"context"
	"time"

	"github.com/fulmenhq/gofulmen/signals"
	"github.com/spf13/cobra"
	"github.com/spf13/viper"
	"go.uber.org/zap"

	"github.com/hookline/hookline/internal/config"
	"github.com/hookline/hookline/internal/core/store"
	errwrap "github.com/hookline/hookline/internal/errors"
	"github.com/hookline/hookline/internal/metrics"
	"github.com/hookline/hookline/internal/observability"
	"github.com/hookline/hookline/internal/server"
	"github.com/hookline/hookline/internal/server/handlers"
)

var serveCmd = &cobra.Command{
	Use:   "serve",
	Short: "Run the webhook relay",
	Long: `Run the HTTP relay. Every caller shares one dispatcher, so route
buckets and the global limit are honoured across all of them.

Signal Handling:
  • Ctrl+C (SIGINT) or SIGTERM: Graceful shutdown
  • Ctrl+C twice within 2s: Force quit
  • SIGHUP: Reload the config file and log level`,
	RunE: runServe,
}

func init() {
	rootCmd.AddCommand(serveCmd)

	serveCmd.Flags().String("host", "", "listen host (default from server.host)")
	serveCmd.Flags().IntP("port", "p", 0, "listen port (default from server.port)")

	_ = viper.BindPFlag("server.host", serveCmd.Flags().Lookup("host"))
	_ = viper.BindPFlag("server.port", serveCmd.Flags().Lookup("port"))
}

func runServe(cmd *cobra.Command, args []string) error {
	cfg, err := loadConfig()
	if err != nil {
		return err
	}

	observability.InitServerLogger(config.AppName, cfg.Logging.Level, cfg.Logging.Profile)
	logger := observability.ServerLogger

	if cfg.Metrics.Enabled {
		if err := observability.InitMetrics(config.AppName, cfg.Metrics.Port); err != nil {
			logger.Error("Failed to initialize metrics", zap.Error(err))
			return errwrap.WrapInternal(cmd.Context(), err, "metrics initialization failed")
		}
	}

	session := newDispatchSession(cmd.Context(), cfg)

	logger.Info("Initializing relay",
		zap.String("version", versionInfo.Version),
		zap.String("host", cfg.Server.Host),
		zap.Int("port", cfg.Server.Port),
		zap.String("base_url", cfg.Dispatcher.BaseURL),
		zap.String("store", cfg.Store.Driver),
		zap.Bool("metrics", cfg.Metrics.Enabled),
		zap.Int("metrics_port", observability.GetMetricsPort()))

	hm := handlers.NewHealthManager(versionInfo.Version)
	if cfg.Health.Enabled {
		registerServeChecks(hm, cfg, session)
	}

	srv := server.New(cfg.Server, session.Dispatcher, hm)

	// Shutdown handlers run LIFO: the server stops first, then the store
	// closes and the logger flushes.
	signals.OnShutdown(func(ctx context.Context) error {
		session.Close()
		if err := logger.Sync(); err != nil {
			logger.Warn("Logger sync returned error (may be benign)", zap.Error(err))
		}
		return nil
	})
	signals.OnShutdown(func(ctx context.Context) error {
		shutdownCtx, cancel := context.WithTimeout(ctx, cfg.Server.ShutdownTimeout)
		defer cancel()
		if err := srv.Shutdown(shutdownCtx); err != nil {
			return errwrap.WrapInternal(ctx, err, "server shutdown failed")
		}
		logger.Info("HTTP server stopped gracefully")
		return nil
	})

	signals.OnReload(func(ctx context.Context) error {
		return reloadServeConfig(ctx)
	})

	if err := signals.EnableDoubleTap(signals.DoubleTapConfig{
		Window:  2 * time.Second,
		Message: "Press Ctrl+C again within 2 seconds to force quit",
	}); err != nil {
		logger.Warn("Failed to enable double-tap force quit", zap.Error(err))
	}

	metrics.SetServerStartTime(time.Now().Unix())

	errChan := make(chan error, 2)
	go func() {
		// Start returns nil once Shutdown has run.
		errChan <- srv.Start()
	}()
	go func() {
		if err := signals.Listen(cmd.Context()); err != nil {
			logger.Error("Signal handler error", zap.Error(err))
			errChan <- err
		}
	}()

	if err := <-errChan; err != nil {
		session.Close()
		return errwrap.WrapInternal(cmd.Context(), err, "server error")
	}
	return nil
}

// registerServeChecks wires readiness checks for the store and telemetry.
// The dispatcher check also gates liveness.
func registerServeChecks(hm *handlers.HealthManager, cfg *config.Config, session *dispatchSession) {
	hm.RegisterLivenessChecker("dispatcher", handlers.CheckFunc(func(ctx context.Context) error {
		if session.Dispatcher == nil {
			return errwrap.NewServiceUnavailableError("dispatcher not initialized")
		}
		return nil
	}))

	if session.Backend != nil {
		backend := session.Backend
		hm.RegisterChecker("store", handlers.CheckFunc(func(ctx context.Context) error {
			_, err := backend.CountBuckets(ctx, store.BucketQuery{Route: "health"})
			return err
		}))
	} else if cfg.Store.Driver != config.DriverNone {
		hm.RegisterChecker("store", handlers.CheckFunc(func(ctx context.Context) error {
			return errwrap.NewServiceUnavailableError("bucket store failed to open")
		}))
	}

	if cfg.Metrics.Enabled {
		hm.RegisterChecker("telemetry", handlers.CheckFunc(func(ctx context.Context) error {
			if observability.TelemetrySystem == nil || observability.PrometheusExporter == nil {
				return errwrap.NewServiceUnavailableError("telemetry system not initialized")
			}
			return nil
		}))
	}
}

// reloadServeConfig rereads the config file. Only the log level is applied
// live; dispatcher and listener settings need a restart.
func reloadServeConfig(ctx context.Context) error {
	logger := observability.ServerLogger
	logger.Info("Received SIGHUP: reloading config")

	if err := viper.ReadInConfig(); err != nil {
		if _, ok := err.(viper.ConfigFileNotFoundError); ok {
			logger.Info("No config file found - using defaults and environment variables")
			return nil
		}
		logger.Error("Failed to reload config file",
			zap.String("file", viper.ConfigFileUsed()),
			zap.Error(err))
		return errwrap.Wrap(ctx, errwrap.CodeInvalidInput, err, "config reload failed")
	}

	cfg, err := config.Load(viper.GetViper())
	if err != nil {
		logger.Error("Reloaded config is invalid", zap.Error(err))
		return errwrap.Wrap(ctx, errwrap.CodeInvalidInput, err, "config reload failed")
	}

	observability.InitServerLogger(config.AppName, cfg.Logging.Level, cfg.Logging.Profile)
	observability.ServerLogger.Info("Configuration reloaded",
		zap.String("file", viper.ConfigFileUsed()),
		zap.String("log_level", cfg.Logging.Level))
	return nil
}
