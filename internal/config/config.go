// Package config loads the process-wide settings this service needs at
// startup: the Deezer session cookie, the relational store DSN, the object
// store endpoint/credentials, the HTTP bind address, and logging/rate-limit
// tuning. There is no per-request configuration.
package config

import (
	"fmt"
	"strings"

	"github.com/spf13/viper"
)

// Config is the fully-resolved, validated configuration for one process.
type Config struct {
	Deezer      DeezerConfig      `mapstructure:"deezer"`
	Database    DatabaseConfig    `mapstructure:"database"`
	ObjectStore ObjectStoreConfig `mapstructure:"objectstore"`
	Server      ServerConfig      `mapstructure:"server"`
	Logging     LoggingConfig     `mapstructure:"logging"`
	RateLimit   RateLimitConfig   `mapstructure:"ratelimit"`
}

// DeezerConfig carries the long-lived session cookie that authenticates
// this process to Provider-D. It is never defaulted and never logged.
type DeezerConfig struct {
	ARL string `mapstructure:"arl"`
}

// DatabaseConfig points at the relational store. This service only calls
// stored procedures on it; it never owns or migrates its schema.
type DatabaseConfig struct {
	URL string `mapstructure:"url"`
}

// ObjectStoreConfig points at the S3-compatible cache backing store.
type ObjectStoreConfig struct {
	Endpoint  string `mapstructure:"endpoint"`
	AccessKey string `mapstructure:"access_key"`
	SecretKey string `mapstructure:"secret_key"`
	UseSSL    bool   `mapstructure:"use_ssl"`
	Bucket    string `mapstructure:"bucket"`
}

// ServerConfig tunes the HTTP listener.
type ServerConfig struct {
	BindAddress    string `mapstructure:"bind_address"`
	ReadTimeoutSec int    `mapstructure:"read_timeout_seconds"`
	IdleTimeoutSec int    `mapstructure:"idle_timeout_seconds"`
	ShutdownGrace  int    `mapstructure:"shutdown_grace_seconds"`
}

// LoggingConfig mirrors the teacher's logging section, narrowed to the
// fields this service's zap+lumberjack sink actually consumes.
type LoggingConfig struct {
	Level      string `mapstructure:"level"`
	FilePath   string `mapstructure:"file_path"`
	MaxSizeMB  int    `mapstructure:"max_size_mb"`
	MaxBackups int    `mapstructure:"max_backups"`
	MaxAgeDays int    `mapstructure:"max_age_days"`
	Compress   bool   `mapstructure:"compress"`
	Console    bool   `mapstructure:"console"`
}

// RateLimitConfig governs the outbound throttle this process applies to
// its own calls against Provider-D (§13.5 of the design document — not a
// caller-facing rate limit).
type RateLimitConfig struct {
	RequestsPerSecond float64 `mapstructure:"requests_per_second"`
	Burst             int     `mapstructure:"burst"`
}

// Load reads configuration from the named file (if it exists) layered
// under environment variable overrides prefixed STREAMPROXY_, e.g.
// STREAMPROXY_DEEZER_ARL. configPath may be empty to rely on environment
// and defaults alone.
func Load(configPath string) (*Config, error) {
	v := viper.New()
	setDefaults(v)

	if configPath != "" {
		v.SetConfigFile(configPath)
		if err := v.ReadInConfig(); err != nil {
			if _, ok := err.(viper.ConfigFileNotFoundError); !ok {
				return nil, fmt.Errorf("read config: %w", err)
			}
		}
	}

	v.SetEnvPrefix("STREAMPROXY")
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	v.AutomaticEnv()

	var cfg Config
	if err := v.Unmarshal(&cfg); err != nil {
		return nil, fmt.Errorf("unmarshal config: %w", err)
	}

	if err := cfg.Validate(); err != nil {
		return nil, fmt.Errorf("invalid configuration: %w", err)
	}

	return &cfg, nil
}

// Validate rejects a configuration that would leave the service unable to
// authenticate upstream or reach either storage backend.
func (c *Config) Validate() error {
	if c.Deezer.ARL == "" {
		return fmt.Errorf("deezer.arl is required")
	}
	if c.Database.URL == "" {
		return fmt.Errorf("database.url is required")
	}
	if c.ObjectStore.Endpoint == "" {
		return fmt.Errorf("objectstore.endpoint is required")
	}
	if c.ObjectStore.Bucket == "" {
		return fmt.Errorf("objectstore.bucket is required")
	}

	validLevels := map[string]bool{"debug": true, "info": true, "warn": true, "error": true}
	if !validLevels[c.Logging.Level] {
		return fmt.Errorf("invalid log level: %s (must be debug, info, warn, or error)", c.Logging.Level)
	}
	if c.Logging.MaxSizeMB < 1 {
		return fmt.Errorf("log max size must be at least 1 MB")
	}
	if c.Logging.MaxBackups < 0 {
		return fmt.Errorf("log max backups cannot be negative")
	}

	if c.RateLimit.RequestsPerSecond <= 0 {
		return fmt.Errorf("ratelimit.requests_per_second must be positive")
	}
	if c.RateLimit.Burst < 1 {
		return fmt.Errorf("ratelimit.burst must be at least 1")
	}

	return nil
}

func setDefaults(v *viper.Viper) {
	v.SetDefault("objectstore.use_ssl", false)
	v.SetDefault("objectstore.bucket", "deezer")

	v.SetDefault("server.bind_address", ":8080")
	v.SetDefault("server.read_timeout_seconds", 15)
	v.SetDefault("server.idle_timeout_seconds", 60)
	v.SetDefault("server.shutdown_grace_seconds", 15)

	v.SetDefault("logging.level", "info")
	v.SetDefault("logging.file_path", "logs/streamproxy.log")
	v.SetDefault("logging.max_size_mb", 100)
	v.SetDefault("logging.max_backups", 3)
	v.SetDefault("logging.max_age_days", 30)
	v.SetDefault("logging.compress", true)
	v.SetDefault("logging.console", true)

	v.SetDefault("ratelimit.requests_per_second", 5.0)
	v.SetDefault("ratelimit.burst", 10)
}
