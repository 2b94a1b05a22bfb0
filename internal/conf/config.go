// Package conf loads, validates and saves toastd settings.
package conf

import (
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/spf13/viper"
	"gopkg.in/yaml.v3"

	"github.com/tphakala/toastd/internal/errors"
	"github.com/tphakala/toastd/internal/logger"
)

// Screen corners accepted for toast.default_position
const (
	PositionTopLeft     = "top-left"
	PositionTopRight    = "top-right"
	PositionBottomLeft  = "bottom-left"
	PositionBottomRight = "bottom-right"
)

// Eviction policies accepted for toast.eviction
const (
	EvictionNewest = "newest"
	EvictionOldest = "oldest"
)

// EnvPrefix is the prefix for environment overrides (TOASTD_TOAST_MAX_TOASTS=5)
const EnvPrefix = "TOASTD"

// Settings contains all configuration options for toastd
type Settings struct {
	Version string `yaml:"-" mapstructure:"-"` // build version, set by main

	Toast       ToastSettings        `yaml:"toast" mapstructure:"toast"`
	Recovery    RecoverySettings     `yaml:"recovery" mapstructure:"recovery"`
	Performance PerformanceSettings  `yaml:"performance" mapstructure:"performance"`
	Environment EnvironmentSettings  `yaml:"environment" mapstructure:"environment"`
	Analytics   AnalyticsSettings    `yaml:"analytics" mapstructure:"analytics"`
	Sentry      SentrySettings       `yaml:"sentry" mapstructure:"sentry"`
	Datastore   DatastoreSettings    `yaml:"datastore" mapstructure:"datastore"`
	HTTP        HTTPSettings         `yaml:"http" mapstructure:"http"`
	Logging     logger.LoggingConfig `yaml:"logging" mapstructure:"logging"`
}

// ToastSettings holds store defaults applied to newly enqueued toasts
type ToastSettings struct {
	MaxToasts        int           `yaml:"max_toasts" mapstructure:"max_toasts"`
	DefaultDuration  time.Duration `yaml:"default_duration" mapstructure:"default_duration"`
	DefaultPosition  string        `yaml:"default_position" mapstructure:"default_position"`
	Eviction         string        `yaml:"eviction" mapstructure:"eviction"` // newest or oldest lowest-priority toast leaves first
	SubscriberBuffer int           `yaml:"subscriber_buffer" mapstructure:"subscriber_buffer"` // change events buffered per subscriber
}

// StrategySettings overrides the retry policy of one error kind
type StrategySettings struct {
	MaxRetries int           `yaml:"max_retries" mapstructure:"max_retries"`
	RetryDelay time.Duration `yaml:"retry_delay" mapstructure:"retry_delay"`
}

// RecoverySettings holds per-kind retry policies. Keys are error kinds in lower case.
type RecoverySettings struct {
	Strategies map[string]StrategySettings `yaml:"strategies" mapstructure:"strategies"`
	MaxLogSize int                         `yaml:"max_log_size" mapstructure:"max_log_size"` // 0 keeps every entry
}

// PerformanceSettings holds per-kind latency budgets
type PerformanceSettings struct {
	Thresholds map[string]time.Duration `yaml:"thresholds" mapstructure:"thresholds"`
	MaxSamples int                      `yaml:"max_samples" mapstructure:"max_samples"` // 0 keeps every sample
}

// EnvironmentSettings describes the host reported with every error log entry
type EnvironmentSettings struct {
	UserAgent      string `yaml:"user_agent" mapstructure:"user_agent"`
	ViewportWidth  int    `yaml:"viewport_width" mapstructure:"viewport_width"`
	ViewportHeight int    `yaml:"viewport_height" mapstructure:"viewport_height"`
}

// AnalyticsSettings configures the batched analytics tracker
type AnalyticsSettings struct {
	Enabled       bool          `yaml:"enabled" mapstructure:"enabled"`
	Endpoint      string        `yaml:"endpoint" mapstructure:"endpoint"`
	APIKey        string        `yaml:"api_key" mapstructure:"api_key"`
	BatchSize     int           `yaml:"batch_size" mapstructure:"batch_size"`
	FlushInterval time.Duration `yaml:"flush_interval" mapstructure:"flush_interval"`
	Timeout       time.Duration `yaml:"timeout" mapstructure:"timeout"`
}

// SentrySettings configures the external error sink
type SentrySettings struct {
	Enabled      bool          `yaml:"enabled" mapstructure:"enabled"`
	DSN          string        `yaml:"dsn" mapstructure:"dsn"`
	Environment  string        `yaml:"environment" mapstructure:"environment"`
	SampleRate   float64       `yaml:"sample_rate" mapstructure:"sample_rate"`
	Debug        bool          `yaml:"debug" mapstructure:"debug"`
	DedupeWindow time.Duration `yaml:"dedupe_window" mapstructure:"dedupe_window"`
	RateLimit    float64       `yaml:"rate_limit" mapstructure:"rate_limit"`
	Burst        int           `yaml:"burst" mapstructure:"burst"`

	// ThrottleToastErrors applies dedupe and rate limiting to toast render failures too
	ThrottleToastErrors bool `yaml:"throttle_toast_errors" mapstructure:"throttle_toast_errors"`
}

// DatastoreSettings configures the durable error log
type DatastoreSettings struct {
	Enabled   bool          `yaml:"enabled" mapstructure:"enabled"`
	Path      string        `yaml:"path" mapstructure:"path"`
	Retention time.Duration `yaml:"retention" mapstructure:"retention"` // entries older than this are pruned at start, 0 keeps all
}

// HTTPSettings configures the optional HTTP adapter
type HTTPSettings struct {
	Enabled         bool          `yaml:"enabled" mapstructure:"enabled"`
	Listen          string        `yaml:"listen" mapstructure:"listen"`
	RateLimit       float64       `yaml:"rate_limit" mapstructure:"rate_limit"` // requests per second per client
	Burst           int           `yaml:"burst" mapstructure:"burst"`
	ShutdownTimeout time.Duration `yaml:"shutdown_timeout" mapstructure:"shutdown_timeout"`
}

// Load reads configuration into a new Settings using v.
// An empty configPath searches ./config.yaml and $HOME/.config/toastd/config.yaml;
// a missing file there is not an error. An explicit path must exist.
func Load(v *viper.Viper, configPath string) (*Settings, error) {
	if v == nil {
		v = viper.New()
	}

	SetDefaults(v)

	v.SetEnvPrefix(EnvPrefix)
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	v.AutomaticEnv()

	if configPath != "" {
		v.SetConfigFile(configPath)
		if err := v.ReadInConfig(); err != nil {
			return nil, errors.New(fmt.Errorf("error reading config file %s: %w", configPath, err)).
				Component("conf").
				Category(errors.CategoryConfiguration).
				Build()
		}
	} else {
		v.SetConfigName("config")
		v.SetConfigType("yaml")
		v.AddConfigPath(".")
		if home, err := os.UserHomeDir(); err == nil {
			v.AddConfigPath(filepath.Join(home, ".config", "toastd"))
		}
		if err := v.ReadInConfig(); err != nil {
			var notFound viper.ConfigFileNotFoundError
			if !errors.As(err, &notFound) {
				return nil, errors.New(fmt.Errorf("error reading config: %w", err)).
					Component("conf").
					Category(errors.CategoryConfiguration).
					Build()
			}
		}
	}

	settings := &Settings{}
	if err := v.Unmarshal(settings); err != nil {
		return nil, errors.New(fmt.Errorf("error unmarshaling config into struct: %w", err)).
			Component("conf").
			Category(errors.CategoryConfiguration).
			Build()
	}

	if err := ValidateSettings(settings); err != nil {
		return nil, err
	}

	return settings, nil
}

// Default returns the built-in defaults without reading any file or environment.
func Default() *Settings {
	v := viper.New()
	SetDefaults(v)
	settings := &Settings{}
	// defaults always decode
	_ = v.Unmarshal(settings)
	return settings
}

// YAML renders the settings the way SaveYAMLConfig writes them.
func (s *Settings) YAML() ([]byte, error) {
	data, err := yaml.Marshal(s)
	if err != nil {
		return nil, fmt.Errorf("error marshaling settings to YAML: %w", err)
	}
	return data, nil
}

// SaveYAMLConfig writes the settings to configPath atomically.
// It overwrites the existing file, not preserving comments.
func SaveYAMLConfig(configPath string, settings *Settings) error {
	yamlData, err := settings.YAML()
	if err != nil {
		return err
	}

	tempFile, err := os.CreateTemp(filepath.Dir(configPath), "config-*.yaml")
	if err != nil {
		return fmt.Errorf("error creating temporary file: %w", err)
	}
	tempFileName := tempFile.Name()
	defer os.Remove(tempFileName)

	if _, err := tempFile.Write(yamlData); err != nil {
		tempFile.Close()
		return fmt.Errorf("error writing to temporary file: %w", err)
	}
	if err := tempFile.Close(); err != nil {
		return fmt.Errorf("error closing temporary file: %w", err)
	}

	if err := os.Rename(tempFileName, configPath); err != nil {
		return fmt.Errorf("error replacing config file: %w", err)
	}

	return nil
}
