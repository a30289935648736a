package cmd

import (
	"fmt"
	"runtime"
	"strings"

	"github.com/fulmenhq/gofulmen/crucible"
	"github.com/spf13/cobra"
	"github.com/spf13/viper"
	"go.uber.org/zap"

	"github.com/hookline/hookline/internal/config"
	"github.com/hookline/hookline/internal/observability"
)

var envInfoCmd = &cobra.Command{
	Use:   "envinfo",
	Short: "Display environment information",
	Long:  "Display environment, configuration, and version information.",
	Run: func(cmd *cobra.Command, args []string) {
		logger := observability.CLILogger
		version := crucible.GetVersion()

		logger.Info("=== hookline Environment Information ===")
		logger.Info("")

		logger.Info("Application:")
		logger.Info("  Name:       " + config.AppName)
		logger.Info("  Version:    " + versionInfo.Version)
		logger.Info("  Commit:     " + versionInfo.Commit)
		logger.Info("  Built:      " + versionInfo.BuildDate)
		logger.Info("")

		logger.Info("SSOT:")
		logger.Info("  Gofulmen:   "+version.Gofulmen, zap.String("gofulmen_version", version.Gofulmen))
		logger.Info("  Crucible:   "+version.Crucible, zap.String("crucible_version", version.Crucible))
		logger.Info("")

		logger.Info("Runtime:")
		logger.Info("  Go Version: "+runtime.Version(), zap.String("go_version", runtime.Version()))
		logger.Info("  GOOS:       "+runtime.GOOS, zap.String("goos", runtime.GOOS))
		logger.Info("  GOARCH:     "+runtime.GOARCH, zap.String("goarch", runtime.GOARCH))
		logger.Info(fmt.Sprintf("  NumCPU:     %d", runtime.NumCPU()), zap.Int("num_cpu", runtime.NumCPU()))
		logger.Info("")

		cfg, err := loadConfig()
		if err != nil {
			logger.Warn("Config load failed", zap.Error(err))
			return
		}

		configFile := viper.ConfigFileUsed()
		if configFile == "" {
			configFile = config.DefaultConfigPath() + " (not found)"
		}

		logger.Info("Dispatcher:")
		logger.Info("  Base URL:          "+cfg.Dispatcher.BaseURL, zap.String("base_url", cfg.Dispatcher.BaseURL))
		logger.Info("  User-Agent:        " + cfg.Dispatcher.UserAgent)
		logger.Info("  Request Timeout:   " + cfg.Dispatcher.RequestTimeout.String())
		logger.Info("  Ratelimit Offset:  " + cfg.Dispatcher.RatelimiterOffset.String())
		logger.Info("  Latency Threshold: " + cfg.Dispatcher.LatencyThreshold.String())
		logger.Info("")

		logger.Info("Store:")
		logger.Info("  Driver:     "+cfg.Store.Driver, zap.String("store_driver", cfg.Store.Driver))
		switch cfg.Store.Driver {
		case config.DriverRedis:
			logger.Info("  Redis Addr: " + cfg.Store.RedisAddr)
			logger.Info(fmt.Sprintf("  Redis DB:   %d", cfg.Store.RedisDB))
			logger.Info("  Key Prefix: " + cfg.Store.KeyPrefix)
		case config.DriverLibsql:
			if strings.TrimSpace(cfg.Store.URL) != "" {
				logger.Info("  URL:        " + cfg.Store.URL)
			} else {
				logger.Info("  Path:       " + cfg.Store.Path)
			}
		}
		logger.Info("")

		logger.Info("Server:")
		logger.Info(fmt.Sprintf("  Listen:      %s:%d", cfg.Server.Host, cfg.Server.Port))
		logger.Info(fmt.Sprintf("  Relay Rate:  %.2f/s burst %d", cfg.Server.RelayRate, cfg.Server.RelayBurst))
		logger.Info("  Log Level:   " + cfg.Logging.Level)
		logger.Info("  Log Profile: " + cfg.Logging.Profile)
		logger.Info(fmt.Sprintf("  Metrics:     %t (port %d)", cfg.Metrics.Enabled, cfg.Metrics.Port))
		logger.Info("  Config File: "+configFile, zap.String("config_file", configFile))
		logger.Info("")

		logger.Info("=== End Environment Information ===")
	},
}

func init() {
	rootCmd.AddCommand(envInfoCmd)
}
