// Package config loads the cache service's configuration from a YAML file
// layered with environment variables, the way the teacher's config package
// does with Viper.
package config

import (
	"fmt"
	"strings"
	"time"

	"github.com/spf13/viper"

	"github.com/wasmcache/component-cache/internal/core/resilience"
)

// Config is the top-level configuration surface (SPEC_FULL.md §6.3).
type Config struct {
	ComponentService         ComponentServiceConfig `mapstructure:"component_service"`
	Cache                    CacheConfig            `mapstructure:"cache"`
	CompiledComponentService map[string]any         `mapstructure:"compiled_component_service"`
	Retries                  RetryConfig            `mapstructure:"retries"`
	Log                      LogConfig              `mapstructure:"log"`
	Metrics                  MetricsConfig          `mapstructure:"metrics"`
	App                      AppConfig              `mapstructure:"app"`
}

// ComponentServiceConfig is a oneof: exactly one of Remote or Local is set,
// selecting between the registry-backed and filesystem-backed facades.
type ComponentServiceConfig struct {
	Remote *RemoteServiceConfig `mapstructure:"remote"`
	Local  *LocalServiceConfig  `mapstructure:"local"`
}

// RemoteServiceConfig configures the registry RPC client.
type RemoteServiceConfig struct {
	URL              string      `mapstructure:"url"`
	AccessToken      string      `mapstructure:"access_token"`
	Retries          RetryConfig `mapstructure:"retries"`
	MaxComponentSize int64       `mapstructure:"max_component_size"`

	// RatePerSecond caps outbound calls to the registry; zero disables
	// rate limiting.
	RatePerSecond float64 `mapstructure:"rate_per_second"`
	RateBurst     int     `mapstructure:"rate_burst"`
}

// LocalServiceConfig configures the local filesystem facade.
type LocalServiceConfig struct {
	Root string `mapstructure:"root"`
}

// CacheConfig bounds the component and metadata caches.
type CacheConfig struct {
	MaxCapacity         int           `mapstructure:"max_capacity"`
	MaxMetadataCapacity int           `mapstructure:"max_metadata_capacity"`
	TimeToIdle          time.Duration `mapstructure:"time_to_idle"`
}

// RetryConfig is the generic retry knob set shared by every retried call.
type RetryConfig struct {
	MaxAttempts int           `mapstructure:"max_attempts"`
	MinDelay    time.Duration `mapstructure:"min_delay"`
	MaxDelay    time.Duration `mapstructure:"max_delay"`
	Multiplier  float64       `mapstructure:"multiplier"`
}

// ToRetryPolicy converts the configured knobs to a resilience.RetryPolicy.
// MaxAttempts counts the first attempt plus every retry, so MaxRetries is
// one less.
func (r RetryConfig) ToRetryPolicy() *resilience.RetryPolicy {
	retries := r.MaxAttempts - 1
	if retries < 0 {
		retries = 0
	}
	return &resilience.RetryPolicy{
		MaxRetries: retries,
		BaseDelay:  r.MinDelay,
		MaxDelay:   r.MaxDelay,
		Multiplier: r.Multiplier,
		Jitter:     true,
	}
}

// LogConfig holds logging-related configuration.
type LogConfig struct {
	Level      string `mapstructure:"level"`
	Format     string `mapstructure:"format"`
	Output     string `mapstructure:"output"`
	Filename   string `mapstructure:"filename"`
	MaxSize    int    `mapstructure:"max_size"`
	MaxBackups int    `mapstructure:"max_backups"`
	MaxAge     int    `mapstructure:"max_age"`
	Compress   bool   `mapstructure:"compress"`
}

// MetricsConfig holds Prometheus exposition configuration.
type MetricsConfig struct {
	Enabled bool   `mapstructure:"enabled"`
	Path    string `mapstructure:"path"`
	Port    int    `mapstructure:"port"`
}

// AppConfig holds process-level metadata.
type AppConfig struct {
	Name        string `mapstructure:"name"`
	Version     string `mapstructure:"version"`
	Environment string `mapstructure:"environment"`
	Debug       bool   `mapstructure:"debug"`
}

// LoadConfig loads configuration from a YAML file layered with environment
// variables. configPath may be empty, in which case only defaults and
// environment variables apply.
func LoadConfig(configPath string) (*Config, error) {
	setDefaults()

	viper.AutomaticEnv()
	viper.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))

	if configPath != "" {
		viper.SetConfigFile(configPath)
		viper.SetConfigType("yaml")

		if err := viper.ReadInConfig(); err != nil {
			if _, ok := err.(viper.ConfigFileNotFoundError); !ok {
				return nil, fmt.Errorf("failed to read config file: %w", err)
			}
		}
	}

	var cfg Config
	if err := viper.Unmarshal(&cfg); err != nil {
		return nil, fmt.Errorf("failed to unmarshal config: %w", err)
	}

	if err := cfg.Validate(); err != nil {
		return nil, fmt.Errorf("config validation failed: %w", err)
	}

	return &cfg, nil
}

// LoadConfigFromEnv loads configuration from defaults and environment
// variables only, skipping any config file.
func LoadConfigFromEnv() (*Config, error) {
	viper.AutomaticEnv()
	viper.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))

	setDefaults()

	var cfg Config
	if err := viper.Unmarshal(&cfg); err != nil {
		return nil, fmt.Errorf("failed to unmarshal config: %w", err)
	}

	if err := cfg.Validate(); err != nil {
		return nil, fmt.Errorf("config validation failed: %w", err)
	}

	return &cfg, nil
}

func setDefaults() {
	viper.SetDefault("cache.max_capacity", 1000)
	viper.SetDefault("cache.max_metadata_capacity", 1000)
	viper.SetDefault("cache.time_to_idle", "30m")

	viper.SetDefault("retries.max_attempts", 3)
	viper.SetDefault("retries.min_delay", "100ms")
	viper.SetDefault("retries.max_delay", "5s")
	viper.SetDefault("retries.multiplier", 2.0)

	viper.SetDefault("log.level", "info")
	viper.SetDefault("log.format", "json")
	viper.SetDefault("log.output", "stdout")
	viper.SetDefault("log.filename", "")
	viper.SetDefault("log.max_size", 100)
	viper.SetDefault("log.max_backups", 3)
	viper.SetDefault("log.max_age", 28)
	viper.SetDefault("log.compress", true)

	viper.SetDefault("metrics.enabled", true)
	viper.SetDefault("metrics.path", "/metrics")
	viper.SetDefault("metrics.port", 9090)

	viper.SetDefault("app.name", "component-cache")
	viper.SetDefault("app.version", "0.1.0")
	viper.SetDefault("app.environment", "development")
	viper.SetDefault("app.debug", false)
}

// Validate checks the configuration for internal consistency.
func (c *Config) Validate() error {
	if c.ComponentService.Remote == nil && c.ComponentService.Local == nil {
		return fmt.Errorf("component_service: exactly one of remote or local must be configured")
	}
	if c.ComponentService.Remote != nil && c.ComponentService.Local != nil {
		return fmt.Errorf("component_service: remote and local are mutually exclusive")
	}

	if c.ComponentService.Remote != nil {
		if c.ComponentService.Remote.URL == "" {
			return fmt.Errorf("component_service.remote.url cannot be empty")
		}
	}
	if c.ComponentService.Local != nil {
		if c.ComponentService.Local.Root == "" {
			return fmt.Errorf("component_service.local.root cannot be empty")
		}
	}

	if c.Cache.MaxCapacity <= 0 {
		return fmt.Errorf("cache.max_capacity must be positive")
	}
	if c.Cache.MaxMetadataCapacity <= 0 {
		return fmt.Errorf("cache.max_metadata_capacity must be positive")
	}

	if c.Retries.MaxAttempts <= 0 {
		return fmt.Errorf("retries.max_attempts must be positive")
	}
	if c.Retries.Multiplier < 1 {
		return fmt.Errorf("retries.multiplier must be >= 1")
	}

	if c.Log.Level == "" {
		return fmt.Errorf("log level cannot be empty")
	}

	if c.App.Name == "" {
		return fmt.Errorf("app name cannot be empty")
	}

	return nil
}

// IsDevelopment returns true if the application is running in development mode.
func (c *Config) IsDevelopment() bool {
	return c.App.Environment == "development"
}

// IsProduction returns true if the application is running in production mode.
func (c *Config) IsProduction() bool {
	return c.App.Environment == "production"
}

// IsDebug returns true if debug mode is enabled.
func (c *Config) IsDebug() bool {
	return c.App.Debug || c.IsDevelopment()
}
