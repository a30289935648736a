// Package config decodes hookline configuration from viper settings.
package config

import (
	"errors"
	"fmt"
	"path/filepath"
	"strings"
	"sync"

	gfconfig "github.com/fulmenhq/gofulmen/config"
	"github.com/go-viper/mapstructure/v2"
	"github.com/spf13/viper"

	"github.com/hookline/hookline/internal/rest"
)

const (
	// AppName names the config and data directories.
	AppName = "hookline"
	// EnvPrefix prefixes every environment override.
	EnvPrefix = "HOOKLINE"
)

// Store drivers.
const (
	DriverLibsql = "libsql"
	DriverRedis  = "redis"
	DriverNone   = "none"
)

var (
	appConfig *Config
	configMu  sync.RWMutex
)

// SetDefaults registers default values on v.
func SetDefaults(v *viper.Viper) {
	v.SetDefault("dispatcher.base_url", rest.DefaultBaseURL)
	v.SetDefault("dispatcher.user_agent", "")
	v.SetDefault("dispatcher.request_timeout", rest.DefaultRequestTimeout.String())
	v.SetDefault("dispatcher.ratelimiter_offset", "0s")
	v.SetDefault("dispatcher.latency_threshold", rest.DefaultLatencyThreshold.String())

	v.SetDefault("store.driver", DriverLibsql)
	v.SetDefault("store.path", DefaultStorePath())
	v.SetDefault("store.url", "")
	v.SetDefault("store.auth_token", "")
	v.SetDefault("store.redis_addr", "localhost:6379")
	v.SetDefault("store.redis_password", "")
	v.SetDefault("store.redis_db", 0)
	v.SetDefault("store.key_prefix", "hookline:bucket:")

	v.SetDefault("server.host", "localhost")
	v.SetDefault("server.port", 8080)
	v.SetDefault("server.read_timeout", "30s")
	v.SetDefault("server.write_timeout", "30s")
	v.SetDefault("server.idle_timeout", "120s")
	v.SetDefault("server.shutdown_timeout", "10s")
	v.SetDefault("server.relay_rate", 5.0)
	v.SetDefault("server.relay_burst", 10)

	v.SetDefault("logging.level", "info")
	v.SetDefault("logging.profile", "structured")

	v.SetDefault("metrics.enabled", true)
	v.SetDefault("metrics.port", 9090)

	v.SetDefault("health.enabled", true)
}

// BindEnv wires HOOKLINE_* environment variables onto dotted keys, so
// HOOKLINE_STORE_DRIVER overrides store.driver.
func BindEnv(v *viper.Viper) {
	v.SetEnvPrefix(EnvPrefix)
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	v.AutomaticEnv()
}

// Load decodes the settings held by v into a Config and validates it.
// This function is safe to call multiple times (e.g., for config reload)
func Load(v *viper.Viper) (*Config, error) {
	if v == nil {
		return nil, errors.New("viper instance is required")
	}

	cfg := &Config{}
	decoder, err := mapstructure.NewDecoder(&mapstructure.DecoderConfig{
		Result:           cfg,
		WeaklyTypedInput: true,
		DecodeHook: mapstructure.ComposeDecodeHookFunc(
			mapstructure.StringToTimeDurationHookFunc(),
			mapstructure.StringToSliceHookFunc(","),
			mapstructure.StringToFloat64HookFunc(),
		),
	})
	if err != nil {
		return nil, fmt.Errorf("failed to create decoder: %w", err)
	}

	// AllSettings only reflects env overrides for keys viper already knows,
	// which SetDefaults guarantees.
	if err := decoder.Decode(v.AllSettings()); err != nil {
		return nil, fmt.Errorf("failed to unmarshal config: %w", err)
	}

	cfg.Store.Driver = strings.ToLower(strings.TrimSpace(cfg.Store.Driver))
	if cfg.Store.Driver == DriverLibsql && strings.TrimSpace(cfg.Store.URL) == "" && strings.TrimSpace(cfg.Store.Path) == "" {
		cfg.Store.Path = DefaultStorePath()
	}

	if err := cfg.Validate(); err != nil {
		return nil, err
	}

	setConfig(cfg)
	return cfg, nil
}

// Validate rejects settings the dispatcher or server cannot run with.
func (c *Config) Validate() error {
	var errs []error

	if c.Dispatcher.RequestTimeout < 0 {
		errs = append(errs, errors.New("dispatcher.request_timeout must not be negative"))
	}
	if c.Dispatcher.RatelimiterOffset < 0 {
		errs = append(errs, errors.New("dispatcher.ratelimiter_offset must not be negative"))
	}
	if c.Dispatcher.LatencyThreshold < 0 {
		errs = append(errs, errors.New("dispatcher.latency_threshold must not be negative"))
	}
	if base := strings.TrimSpace(c.Dispatcher.BaseURL); base != "" &&
		!strings.HasPrefix(base, "https://") && !strings.HasPrefix(base, "http://") {
		errs = append(errs, fmt.Errorf("dispatcher.base_url must be an http(s) URL: %q", base))
	}

	switch c.Store.Driver {
	case DriverLibsql, DriverNone:
	case DriverRedis:
		if strings.TrimSpace(c.Store.RedisAddr) == "" {
			errs = append(errs, errors.New("store.redis_addr is required for the redis driver"))
		}
	default:
		errs = append(errs, fmt.Errorf("unsupported store driver: %s", c.Store.Driver))
	}

	if c.Server.Port < 0 || c.Server.Port > 65535 {
		errs = append(errs, fmt.Errorf("server.port out of range: %d", c.Server.Port))
	}
	if c.Server.RelayRate <= 0 {
		errs = append(errs, errors.New("server.relay_rate must be positive"))
	}
	if c.Server.RelayBurst < 1 {
		errs = append(errs, errors.New("server.relay_burst must be at least 1"))
	}

	return errors.Join(errs...)
}

// Options converts the dispatcher settings into rest.Options. Logger, store
// and transport are left for the caller to attach.
func (c DispatcherConfig) Options() rest.Options {
	return rest.Options{
		BaseURL:           strings.TrimSpace(c.BaseURL),
		UserAgent:         strings.TrimSpace(c.UserAgent),
		RequestTimeout:    c.RequestTimeout,
		RatelimiterOffset: c.RatelimiterOffset,
		LatencyThreshold:  c.LatencyThreshold,
	}
}

// GetConfig returns the current application configuration (thread-safe)
func GetConfig() *Config {
	configMu.RLock()
	defer configMu.RUnlock()
	return appConfig
}

func setConfig(cfg *Config) {
	configMu.Lock()
	defer configMu.Unlock()
	appConfig = cfg
}

// DefaultConfigDir returns the XDG-compliant config directory.
func DefaultConfigDir() string {
	return gfconfig.GetAppConfigDir(AppName)
}

// DefaultConfigPath returns the XDG-compliant path to the user config file.
func DefaultConfigPath() string {
	configDir := DefaultConfigDir()
	if strings.TrimSpace(configDir) == "" {
		return ""
	}
	return filepath.Join(configDir, "config.yaml")
}

// DefaultStorePath returns the XDG-compliant path to the database file.
func DefaultStorePath() string {
	dataDir := gfconfig.GetAppDataDir(AppName)
	if strings.TrimSpace(dataDir) == "" {
		return "./" + AppName + ".db"
	}
	return filepath.Join(dataDir, AppName+".db")
}
