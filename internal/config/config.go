// Package config loads the scheduler's own tunables, separate from
// whatever configuration the host product layers on top.
package config

import (
	"fmt"
	"strings"
	"time"

	"github.com/spf13/viper"
)

const envPrefix = "TENSORSCHED"

// Config holds every tunable the scheduler reads at startup.
type Config struct {
	// ThreadsPerQueue is the number of worker goroutines spawned per
	// device queue. Must be at least 1.
	ThreadsPerQueue int `mapstructure:"threads_per_queue"`
	// RetrySleep is how long a worker sleeps before retrying a device
	// queue it found empty after a retry-swap.
	RetrySleep time.Duration `mapstructure:"retry_sleep"`
	// LogLevel is one of debug, info, warn, error.
	LogLevel string `mapstructure:"log_level"`
	// MetricsAddr is the listen address for the Prometheus /metrics
	// endpoint; empty disables it.
	MetricsAddr string `mapstructure:"metrics_addr"`
}

// Default returns the configuration used when no file or environment
// override is present.
func Default() Config {
	return Config{
		ThreadsPerQueue: 4,
		RetrySleep:      time.Millisecond,
		LogLevel:        "info",
		MetricsAddr:     ":9090",
	}
}

// Load reads configuration from path (if non-empty), then applies
// TENSORSCHED_*-prefixed environment overrides. path may be empty, in
// which case Default supplies every field; a non-empty path that cannot
// be read is an error.
func Load(path string) (Config, error) {
	v := viper.New()
	cfg := Default()
	v.SetDefault("threads_per_queue", cfg.ThreadsPerQueue)
	v.SetDefault("retry_sleep", cfg.RetrySleep)
	v.SetDefault("log_level", cfg.LogLevel)
	v.SetDefault("metrics_addr", cfg.MetricsAddr)

	v.SetEnvPrefix(envPrefix)
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	v.AutomaticEnv()

	if path != "" {
		v.SetConfigFile(path)
		if err := v.ReadInConfig(); err != nil {
			return Config{}, fmt.Errorf("reading config %s: %w", path, err)
		}
	}

	if err := v.Unmarshal(&cfg); err != nil {
		return Config{}, fmt.Errorf("parsing config: %w", err)
	}
	if cfg.ThreadsPerQueue < 1 {
		return Config{}, fmt.Errorf("threads_per_queue must be at least 1, got %d", cfg.ThreadsPerQueue)
	}
	if cfg.RetrySleep <= 0 {
		return Config{}, fmt.Errorf("retry_sleep must be positive, got %s", cfg.RetrySleep)
	}
	return cfg, nil
}
