// Package config loads and validates indexer configuration via Viper.
package config

import (
	"fmt"
	"strings"
	"time"

	"github.com/spf13/viper"
)

// Config captures all service configuration knobs loaded via Viper.
type Config struct {
	Server  ServerConfig  `mapstructure:"server"`
	Auth    AuthConfig    `mapstructure:"auth"`
	GitHub  GitHubConfig  `mapstructure:"github"`
	Search  SearchConfig  `mapstructure:"search"`
	Queue   QueueConfig   `mapstructure:"queue"`
	Workers WorkersConfig `mapstructure:"workers"`
	DB      DBConfig      `mapstructure:"db"`
	Archive ArchiveConfig `mapstructure:"archive"`
	PubSub  PubSubConfig  `mapstructure:"pubsub"`
	Logging LoggingConfig `mapstructure:"logging"`
}

// ServerConfig controls HTTP server behavior.
type ServerConfig struct {
	Port int `mapstructure:"port"`
}

// AuthConfig defines API authentication toggles.
type AuthConfig struct {
	Enabled bool   `mapstructure:"enabled"`
	APIKey  string `mapstructure:"api_key"`
}

// GitHubConfig carries credentials and pacing for the code-search and
// repository APIs.
type GitHubConfig struct {
	APIKey string  `mapstructure:"api_key"`
	Token  string  `mapstructure:"token"`
	RPS    float64 `mapstructure:"rps"`
	Burst  int     `mapstructure:"burst"`
}

// SearchConfig governs the discovery sweep.
type SearchConfig struct {
	Enabled         bool   `mapstructure:"enabled"`
	Query           string `mapstructure:"query"`
	PerPage         int    `mapstructure:"per_page"`
	MaxPages        int    `mapstructure:"max_pages"`
	IntervalMinutes int    `mapstructure:"interval_minutes"`
	Ascending       bool   `mapstructure:"ascending"`
	SweepLimit      int    `mapstructure:"sweep_limit"`
}

// QueueConfig controls queue depth, deduplication, and retry pacing.
type QueueConfig struct {
	Depth           int `mapstructure:"depth"`
	DedupWindowSec  int `mapstructure:"dedup_window_seconds"`
	MaxAttempts     int `mapstructure:"max_attempts"`
	BackoffBaseMs   int `mapstructure:"backoff_base_ms"`
	BackoffMaxSec   int `mapstructure:"backoff_max_seconds"`
}

// WorkersConfig sets the sync worker pool size.
type WorkersConfig struct {
	Concurrency int `mapstructure:"concurrency"`
}

// DBConfig controls access to the relational database. An empty DSN selects
// the in-memory stores.
type DBConfig struct {
	DSN      string `mapstructure:"dsn"`
	MaxConns int    `mapstructure:"max_conns"`
}

// ArchiveConfig selects where raw notebook payloads are archived.
type ArchiveConfig struct {
	Backend   string `mapstructure:"backend"`
	GCSBucket string `mapstructure:"gcs_bucket"`
	BaseDir   string `mapstructure:"base_dir"`
}

// PubSubConfig holds metadata for publish-subscribe notifications.
type PubSubConfig struct {
	ProjectID string `mapstructure:"project_id"`
	TopicName string `mapstructure:"topic_name"`
}

// LoggingConfig toggles zap development features.
type LoggingConfig struct {
	Development bool `mapstructure:"development"`
}

// Load builds a Config from disk/environment.
func Load(path string) (Config, error) {
	v := viper.New()
	v.SetEnvPrefix("NBINDEX")
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	v.AutomaticEnv()

	setDefaults(v)

	if path != "" {
		v.SetConfigFile(path)
		if err := v.ReadInConfig(); err != nil {
			return Config{}, fmt.Errorf("read config: %w", err)
		}
	}

	var cfg Config
	if err := v.Unmarshal(&cfg); err != nil {
		return Config{}, fmt.Errorf("unmarshal config: %w", err)
	}

	if err := cfg.Validate(); err != nil {
		return Config{}, err
	}

	return cfg, nil
}

func setDefaults(v *viper.Viper) {
	v.SetDefault("server.port", 8080)
	v.SetDefault("github.rps", 5)
	v.SetDefault("github.burst", 2)
	v.SetDefault("search.enabled", true)
	v.SetDefault("search.per_page", 30)
	v.SetDefault("search.max_pages", 10)
	v.SetDefault("search.interval_minutes", 60)
	v.SetDefault("search.ascending", false)
	v.SetDefault("search.sweep_limit", 100)
	v.SetDefault("queue.depth", 256)
	v.SetDefault("queue.dedup_window_seconds", 300)
	v.SetDefault("queue.max_attempts", 5)
	v.SetDefault("queue.backoff_base_ms", 250)
	v.SetDefault("queue.backoff_max_seconds", 30)
	v.SetDefault("workers.concurrency", 4)
	v.SetDefault("archive.backend", "none")
	v.SetDefault("logging.development", true)
}

// Validate enforces required values and reasonable limits.
func (c Config) Validate() error {
	if c.Server.Port <= 0 {
		return fmt.Errorf("server.port must be > 0")
	}
	if c.Workers.Concurrency <= 0 {
		return fmt.Errorf("workers.concurrency must be > 0")
	}
	if c.Queue.Depth <= 0 {
		return fmt.Errorf("queue.depth must be > 0")
	}
	if c.Queue.MaxAttempts <= 0 {
		return fmt.Errorf("queue.max_attempts must be > 0")
	}
	if c.Search.Enabled && c.GitHub.APIKey == "" {
		return fmt.Errorf("github.api_key must be set when search is enabled")
	}
	if c.Auth.Enabled && c.Auth.APIKey == "" {
		return fmt.Errorf("auth.api_key must be set when auth is enabled")
	}
	switch c.Archive.Backend {
	case "", "none", "memory":
	case "gcs":
		if c.Archive.GCSBucket == "" {
			return fmt.Errorf("archive.gcs_bucket must be set for the gcs backend")
		}
	case "local":
		if c.Archive.BaseDir == "" {
			return fmt.Errorf("archive.base_dir must be set for the local backend")
		}
	default:
		return fmt.Errorf("archive.backend %q is not supported", c.Archive.Backend)
	}
	return nil
}

// SearchInterval converts the configured minutes into a duration.
func (c Config) SearchInterval() time.Duration {
	return time.Duration(c.Search.IntervalMinutes) * time.Minute
}

// DedupWindow converts the configured seconds into a duration.
func (c Config) DedupWindow() time.Duration {
	return time.Duration(c.Queue.DedupWindowSec) * time.Second
}

// BackoffBase converts the configured milliseconds into a duration.
func (c Config) BackoffBase() time.Duration {
	return time.Duration(c.Queue.BackoffBaseMs) * time.Millisecond
}

// BackoffMax converts the configured seconds into a duration.
func (c Config) BackoffMax() time.Duration {
	return time.Duration(c.Queue.BackoffMaxSec) * time.Second
}
