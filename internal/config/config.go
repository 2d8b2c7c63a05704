package config

import (
	"fmt"
	"strings"
	"time"

	"github.com/joho/godotenv"
	"github.com/spf13/viper"
)

// Config holds the application configuration loaded from files and environment variables.
type Config struct {
	AppName  string `mapstructure:"app_name"`
	Env      string `mapstructure:"app_env"`
	LogLevel string `mapstructure:"log_level"`

	APIBaseURL string `mapstructure:"api_base_url"`
	APIKey     string `mapstructure:"api_key"`
	ClientID   string `mapstructure:"client_id"`
	Language   string `mapstructure:"language"`
	PageSize   int    `mapstructure:"page_size"`

	QueueMinIntervalMs     int64   `mapstructure:"queue_min_interval_ms"`
	QueueTimeoutSeconds    int64   `mapstructure:"queue_request_timeout_seconds"`
	QueueMaxRetries        int     `mapstructure:"queue_max_retries"`
	QueueRetryDelayMs      int64   `mapstructure:"queue_retry_delay_ms"`
	QueueBackoffMultiplier float64 `mapstructure:"queue_backoff_multiplier"`
	QueueDrainDelayMs      int64   `mapstructure:"queue_drain_delay_ms"`

	QueueMinInterval    time.Duration `mapstructure:"-"`
	QueueRequestTimeout time.Duration `mapstructure:"-"`
	QueueRetryDelay     time.Duration `mapstructure:"-"`
	QueueDrainDelay     time.Duration `mapstructure:"-"`

	StorageType            string        `mapstructure:"storage_type"`
	BBoltPath              string        `mapstructure:"bbolt_path"`
	RedisURL               string        `mapstructure:"redis_url"`
	StorageTTLSeconds      int64         `mapstructure:"storage_ttl_seconds"`
	StorageCleanupSeconds  int64         `mapstructure:"storage_cleanup_interval_seconds"`
	StorageTTL             time.Duration `mapstructure:"-"`
	StorageCleanupInterval time.Duration `mapstructure:"-"`

	HealthURL           string        `mapstructure:"health_url"`
	ProbeIntervalSecond int64         `mapstructure:"probe_interval_seconds"`
	ProbeInterval       time.Duration `mapstructure:"-"`
	StartOffline        bool          `mapstructure:"start_offline"`

	OfflinePlansFile        string        `mapstructure:"offline_plans_file"`
	PublishersFile          string        `mapstructure:"publishers_file"`
	PrefetchIntervalSeconds int64         `mapstructure:"prefetch_interval"`
	PrefetchInterval        time.Duration `mapstructure:"-"`
	OfflineEnrich           bool          `mapstructure:"offline_enrich"`
	OfflineEnrichDelayMs    int64         `mapstructure:"offline_enrich_delay_ms"`
	OfflineEnrichDelay      time.Duration `mapstructure:"-"`

	ShellURL        string        `mapstructure:"shell_url"`
	ShellAddr       string        `mapstructure:"shell_addr"`
	ShellCachePath  string        `mapstructure:"shell_cache_path"`
	ShellTTLSeconds int64         `mapstructure:"shell_ttl_seconds"`
	ShellTimeoutMs  int64         `mapstructure:"shell_timeout_ms"`
	ShellTTL        time.Duration `mapstructure:"-"`
	ShellTimeout    time.Duration `mapstructure:"-"`

	MetricsAddr string `mapstructure:"metrics_addr"`
}

// Load reads configuration from environment variables and config files.
func Load() (*Config, error) {
	_ = godotenv.Load("configs/.env")

	v := viper.New()

	v.SetDefault("app_name", "samvad-reader")
	v.SetDefault("app_env", "development")
	v.SetDefault("log_level", "info")

	v.SetDefault("api_base_url", "https://api.currentsapi.services/v1")
	v.SetDefault("api_key", "")
	v.SetDefault("client_id", "samvad-reader/1.0")
	v.SetDefault("language", "en")
	v.SetDefault("page_size", 20)

	v.SetDefault("queue_min_interval_ms", 100)
	v.SetDefault("queue_request_timeout_seconds", 30)
	v.SetDefault("queue_max_retries", 3)
	v.SetDefault("queue_retry_delay_ms", 1000)
	v.SetDefault("queue_backoff_multiplier", 2.0)
	v.SetDefault("queue_drain_delay_ms", 50)

	v.SetDefault("storage_type", "bbolt")
	v.SetDefault("bbolt_path", "./data/reader.db")
	v.SetDefault("redis_url", "redis://localhost:6379/0")
	v.SetDefault("storage_ttl_seconds", int64((7*24*time.Hour)/time.Second))
	v.SetDefault("storage_cleanup_interval_seconds", int64((12*time.Hour)/time.Second))

	v.SetDefault("health_url", "")
	v.SetDefault("probe_interval_seconds", 15)
	v.SetDefault("start_offline", false)

	v.SetDefault("offline_plans_file", "./configs/offline.yaml")
	v.SetDefault("publishers_file", "./configs/publishers.yaml")
	v.SetDefault("prefetch_interval", 1800) // seconds
	v.SetDefault("offline_enrich", false)
	v.SetDefault("offline_enrich_delay_ms", 250)

	v.SetDefault("shell_url", "")
	v.SetDefault("shell_addr", ":8080")
	v.SetDefault("shell_cache_path", "./data/shell.db")
	v.SetDefault("shell_ttl_seconds", 3600)
	v.SetDefault("shell_timeout_ms", 3000)

	v.SetDefault("metrics_addr", "")

	v.AutomaticEnv()

	var cfg Config
	if err := v.Unmarshal(&cfg); err != nil {
		return nil, fmt.Errorf("unmarshal config: %w", err)
	}

	if err := cfg.normalize(); err != nil {
		return nil, err
	}
	return &cfg, nil
}

func (cfg *Config) normalize() error {
	cfg.APIBaseURL = strings.TrimRight(strings.TrimSpace(cfg.APIBaseURL), "/")
	cfg.APIKey = strings.TrimSpace(cfg.APIKey)

	if cfg.APIBaseURL == "" {
		return fmt.Errorf("api_base_url is required")
	}
	if cfg.PageSize <= 0 {
		return fmt.Errorf("invalid page_size (must be positive)")
	}

	if cfg.QueueMinIntervalMs < 0 || cfg.QueueDrainDelayMs < 0 {
		return fmt.Errorf("invalid queue delays (must not be negative)")
	}
	if cfg.QueueTimeoutSeconds <= 0 {
		return fmt.Errorf("invalid queue_request_timeout_seconds (must be positive seconds)")
	}
	if cfg.QueueMaxRetries < 0 {
		return fmt.Errorf("invalid queue_max_retries (must not be negative)")
	}
	if cfg.QueueRetryDelayMs <= 0 {
		return fmt.Errorf("invalid queue_retry_delay_ms (must be positive)")
	}
	if cfg.QueueBackoffMultiplier < 1 {
		return fmt.Errorf("invalid queue_backoff_multiplier (must be >= 1)")
	}
	cfg.QueueMinInterval = time.Duration(cfg.QueueMinIntervalMs) * time.Millisecond
	cfg.QueueRequestTimeout = time.Duration(cfg.QueueTimeoutSeconds) * time.Second
	cfg.QueueRetryDelay = time.Duration(cfg.QueueRetryDelayMs) * time.Millisecond
	cfg.QueueDrainDelay = time.Duration(cfg.QueueDrainDelayMs) * time.Millisecond

	if cfg.StorageTTLSeconds <= 0 {
		return fmt.Errorf("invalid storage_ttl_seconds (must be positive seconds)")
	}
	if cfg.StorageCleanupSeconds <= 0 {
		return fmt.Errorf("invalid storage_cleanup_interval_seconds (must be positive seconds)")
	}
	cfg.StorageTTL = time.Duration(cfg.StorageTTLSeconds) * time.Second
	cfg.StorageCleanupInterval = time.Duration(cfg.StorageCleanupSeconds) * time.Second

	if cfg.ProbeIntervalSecond <= 0 {
		return fmt.Errorf("invalid probe_interval_seconds (must be positive seconds)")
	}
	cfg.ProbeInterval = time.Duration(cfg.ProbeIntervalSecond) * time.Second

	if cfg.PrefetchIntervalSeconds <= 0 {
		return fmt.Errorf("invalid prefetch_interval (must be positive seconds)")
	}
	cfg.PrefetchInterval = time.Duration(cfg.PrefetchIntervalSeconds) * time.Second
	if cfg.OfflineEnrichDelayMs < 0 {
		return fmt.Errorf("invalid offline_enrich_delay_ms (must not be negative)")
	}
	cfg.OfflineEnrichDelay = time.Duration(cfg.OfflineEnrichDelayMs) * time.Millisecond

	if cfg.ShellTTLSeconds <= 0 {
		return fmt.Errorf("invalid shell_ttl_seconds (must be positive seconds)")
	}
	cfg.ShellTTL = time.Duration(cfg.ShellTTLSeconds) * time.Second
	if cfg.ShellTimeoutMs <= 0 {
		return fmt.Errorf("invalid shell_timeout_ms (must be positive)")
	}
	cfg.ShellTimeout = time.Duration(cfg.ShellTimeoutMs) * time.Millisecond

	return nil
}
