package config

import (
	"time"
)

// Config represents the complete application configuration. Values are
// layered by viper: defaults, then the config file, then HOOKLINE_*
// environment variables, then flags.
type Config struct {
	Dispatcher DispatcherConfig `mapstructure:"dispatcher"`
	Store      StoreConfig      `mapstructure:"store"`
	Server     ServerConfig     `mapstructure:"server"`
	Logging    LoggingConfig    `mapstructure:"logging"`
	Metrics    MetricsConfig    `mapstructure:"metrics"`
	Health     HealthConfig     `mapstructure:"health"`
}

// DispatcherConfig tunes the outbound request dispatcher.
type DispatcherConfig struct {
	BaseURL        string        `mapstructure:"base_url"`
	UserAgent      string        `mapstructure:"user_agent"`
	RequestTimeout time.Duration `mapstructure:"request_timeout"`

	// RatelimiterOffset is extra slack added to every bucket window.
	RatelimiterOffset time.Duration `mapstructure:"ratelimiter_offset"`

	// LatencyThreshold is the clock drift that triggers a warning.
	LatencyThreshold time.Duration `mapstructure:"latency_threshold"`
}

// ServerConfig contains HTTP server configuration
type ServerConfig struct {
	Host            string        `mapstructure:"host"`
	Port            int           `mapstructure:"port"`
	ReadTimeout     time.Duration `mapstructure:"read_timeout"`
	WriteTimeout    time.Duration `mapstructure:"write_timeout"`
	IdleTimeout     time.Duration `mapstructure:"idle_timeout"`
	ShutdownTimeout time.Duration `mapstructure:"shutdown_timeout"`

	// RelayRate is the sustained relay requests per second allowed per
	// client IP; RelayBurst is the bucket depth.
	RelayRate  float64 `mapstructure:"relay_rate"`
	RelayBurst int     `mapstructure:"relay_burst"`
}

// StoreConfig selects where bucket state is persisted.
// Driver is one of libsql, redis or none.
type StoreConfig struct {
	Driver    string `mapstructure:"driver"`
	Path      string `mapstructure:"path"`
	URL       string `mapstructure:"url"`
	AuthToken string `mapstructure:"auth_token"`

	RedisAddr     string `mapstructure:"redis_addr"`
	RedisPassword string `mapstructure:"redis_password"`
	RedisDB       int    `mapstructure:"redis_db"`
	KeyPrefix     string `mapstructure:"key_prefix"`
}

// LoggingConfig contains logging configuration
type LoggingConfig struct {
	// Level controls the minimum log level
	// Valid values: trace, debug, info, warn, error
	Level string `mapstructure:"level"`

	// Profile selects the logging complexity level
	// Valid values: simple, structured
	Profile string `mapstructure:"profile"`
}

// MetricsConfig contains Prometheus metrics configuration
type MetricsConfig struct {
	Enabled bool `mapstructure:"enabled"`
	Port    int  `mapstructure:"port"`
}

// HealthConfig contains health check configuration
type HealthConfig struct {
	Enabled bool `mapstructure:"enabled"`
}
