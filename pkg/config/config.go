// Package config loads the engine's runtime configuration via viper, with
// environment-variable overrides and on-disk defaults.
package config

import (
	"fmt"
	"strings"
	"time"

	"github.com/spf13/viper"
)

// Config is the complete runtime configuration for the execution substrate:
// the task sink's worker pool and queue, and the streamed cache's sizing
// and durability policy.
type Config struct {
	Sink    SinkConfig    `yaml:"sink" mapstructure:"sink"`
	Cache   CacheConfig   `yaml:"cache" mapstructure:"cache"`
	Logging LoggingConfig `yaml:"logging" mapstructure:"logging"`
	Metrics MetricsConfig `yaml:"metrics" mapstructure:"metrics"`
}

// SinkConfig configures the task sink's worker pool and ring allocator.
type SinkConfig struct {
	WorkerCount           int           `yaml:"worker_count" mapstructure:"worker_count"`
	RingAllocatorCapacity int           `yaml:"ring_allocator_capacity" mapstructure:"ring_allocator_capacity"`
	SubmitPollInterval    time.Duration `yaml:"submit_poll_interval" mapstructure:"submit_poll_interval"`
}

// CacheConfig configures the streamed cache's sizing and eviction policy.
type CacheConfig struct {
	ClusterSize        int64  `yaml:"cluster_size" mapstructure:"cluster_size"`
	MaxCacheSizeBytes  uint64 `yaml:"max_cache_size_bytes" mapstructure:"max_cache_size_bytes"`
	CompressionLevel   int    `yaml:"cache_compression_level" mapstructure:"cache_compression_level"`
	AllowOverwrites    bool   `yaml:"allow_overwrites" mapstructure:"allow_overwrites"`
	MaxIndexRedundancy uint64 `yaml:"max_index_redundancy" mapstructure:"max_index_redundancy"`
	FilePath           string `yaml:"file_path" mapstructure:"file_path"`
}

// LoggingConfig configures the zerolog sink.
type LoggingConfig struct {
	Level string `yaml:"level" mapstructure:"level"`
}

// MetricsConfig configures the prometheus exporter.
type MetricsConfig struct {
	Enabled   bool   `yaml:"enabled" mapstructure:"enabled"`
	Listen    string `yaml:"listen" mapstructure:"listen"`
	Namespace string `yaml:"namespace" mapstructure:"namespace"`
}

// Default returns the built-in configuration used when no config file or
// environment override is present.
func Default() *Config {
	return &Config{
		Sink: SinkConfig{
			WorkerCount:           8,
			RingAllocatorCapacity: 512,
			SubmitPollInterval:    time.Millisecond,
		},
		Cache: CacheConfig{
			ClusterSize:        64 * 1024,
			MaxCacheSizeBytes:  512 * 1024 * 1024,
			CompressionLevel:   6,
			AllowOverwrites:    true,
			MaxIndexRedundancy: 256,
			FilePath:           "./cache/engine.cache",
		},
		Logging: LoggingConfig{Level: "info"},
		Metrics: MetricsConfig{
			Enabled:   true,
			Listen:    "0.0.0.0:9101",
			Namespace: "enginecore",
		},
	}
}

// Load reads configuration from configFile (if non-empty), falling back to
// ./enginecore.yaml and environment variables prefixed ENGINECORE_, and
// overlays both onto Default().
func Load(configFile string) (*Config, error) {
	cfg := Default()

	v := viper.New()
	if configFile != "" {
		v.SetConfigFile(configFile)
	} else {
		v.SetConfigName("enginecore")
		v.SetConfigType("yaml")
		v.AddConfigPath(".")
		v.AddConfigPath("./config")
	}

	v.SetEnvPrefix("ENGINECORE")
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	v.AutomaticEnv()

	if err := v.ReadInConfig(); err != nil {
		if _, ok := err.(viper.ConfigFileNotFoundError); !ok {
			return nil, fmt.Errorf("enginecore: reading config: %w", err)
		}
	}
	if err := v.Unmarshal(cfg); err != nil {
		return nil, fmt.Errorf("enginecore: unmarshaling config: %w", err)
	}
	if err := cfg.Validate(); err != nil {
		return nil, fmt.Errorf("enginecore: invalid config: %w", err)
	}
	return cfg, nil
}

// Validate rejects configurations that would panic or deadlock the
// execution substrate rather than merely performing slowly.
func (c *Config) Validate() error {
	if c.Sink.WorkerCount <= 0 {
		return fmt.Errorf("sink.worker_count must be positive")
	}
	if c.Sink.RingAllocatorCapacity <= 0 {
		return fmt.Errorf("sink.ring_allocator_capacity must be positive")
	}
	if c.Cache.ClusterSize <= 0 {
		return fmt.Errorf("cache.cluster_size must be positive")
	}
	if c.Cache.CompressionLevel < 0 || c.Cache.CompressionLevel > 9 {
		return fmt.Errorf("cache.cache_compression_level must be in [0,9]")
	}
	return nil
}
