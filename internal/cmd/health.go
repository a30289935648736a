package cmd

import (
	"github.com/spf13/cobra"
	"go.uber.org/zap"

	"github.com/hookline/hookline/internal/core/store"
	"github.com/hookline/hookline/internal/observability"
)

var healthCmd = &cobra.Command{
	Use:   "health",
	Short: "Run self-health check",
	Long:  "Check that the configuration is valid and the bucket store can be opened and queried.",
	RunE: func(cmd *cobra.Command, args []string) error {
		logger := observability.CLILogger
		logger.Info("Running health check...")

		cfg, err := loadConfig()
		if err != nil {
			logger.Error("❌ FAIL: Configuration invalid", zap.Error(err))
			return err
		}
		logger.Info("✅ Configuration valid",
			zap.String("base_url", cfg.Dispatcher.BaseURL),
			zap.String("store", cfg.Store.Driver))

		backend, err := openBackend(cmd.Context(), cfg)
		if err != nil {
			logger.Error("❌ FAIL: Bucket store unavailable", zap.Error(err))
			return err
		}
		if backend == nil {
			logger.Info("✅ Bucket store disabled")
		} else {
			defer backend.Close() // nolint:errcheck // best-effort cleanup
			count, err := backend.CountBuckets(cmd.Context(), store.BucketQuery{All: true})
			if err != nil {
				logger.Error("❌ FAIL: Bucket store query failed", zap.Error(err))
				return err
			}
			logger.Info("✅ Bucket store reachable",
				zap.String("driver", backend.Driver()),
				zap.Int("buckets", count))
		}

		logger.Info("✅ All health checks passed")
		return nil
	},
}

func init() {
	rootCmd.AddCommand(healthCmd)
}
