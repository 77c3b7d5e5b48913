package config

import (
	"log"
	"os"
	"time"

	"gopkg.in/yaml.v3"
)

// Config represents the overall application configuration.
type Config struct {
	Server     ServerConfig     `yaml:"server"`
	Backend    BackendConfig    `yaml:"backend"`
	Analytics  AnalyticsConfig  `yaml:"analytics"`
	Sync       SyncConfig       `yaml:"sync"`
	Alerts     AlertsConfig     `yaml:"alerts"`
	Database   DatabaseConfig   `yaml:"database"`
	Push       PushConfig       `yaml:"push"`
	WorkerPool WorkerPoolConfig `yaml:"worker_pool"`
}

// WorkerPoolConfig holds the configuration for the notification worker pool.
type WorkerPoolConfig struct {
	Size int `yaml:"size"`
}

// PushConfig holds the VAPID keys for web push notifications.
type PushConfig struct {
	PublicKey  string `yaml:"vapid_public_key"`
	PrivateKey string `yaml:"vapid_private_key"`
	Subject    string `yaml:"subject"`
	TTL        int    `yaml:"ttl"`
}

// ServerConfig holds the console's own HTTP listener configuration.
type ServerConfig struct {
	Port            int     `yaml:"port"`
	RateLimitPerSec float64 `yaml:"rate_limit_per_sec"`
	RateLimitBurst  int     `yaml:"rate_limit_burst"`
	CacheTTLSeconds int     `yaml:"cache_ttl_seconds"`
}

// BackendConfig describes the machine-management service the console talks to.
type BackendConfig struct {
	BaseURL         string        `yaml:"base_url"`
	HTTPProxy       string        `yaml:"http_proxy"`
	TimeoutSeconds  int           `yaml:"timeout_seconds"`
	Timeout         time.Duration `yaml:"-"`
	RateLimitPerSec float64       `yaml:"rate_limit_per_sec"`
	RateLimitBurst  int           `yaml:"rate_limit_burst"`
}

// AnalyticsConfig describes the secondary analytics (simulator) service.
type AnalyticsConfig struct {
	BaseURL         string        `yaml:"base_url"`
	TimeoutSeconds  int           `yaml:"timeout_seconds"`
	Timeout         time.Duration `yaml:"-"`
	CacheTTLSeconds int           `yaml:"cache_ttl_seconds"`
	CacheTTL        time.Duration `yaml:"-"`
}

// SyncConfig controls the data synchronization loop.
type SyncConfig struct {
	AdminIntervalSeconds    int           `yaml:"admin_interval_seconds"`
	OperatorIntervalSeconds int           `yaml:"operator_interval_seconds"`
	InitialDelayMillis      int           `yaml:"initial_delay_millis"`
	AdminInterval           time.Duration `yaml:"-"`
	OperatorInterval        time.Duration `yaml:"-"`
	InitialDelay            time.Duration `yaml:"-"`
	DemoFallback            bool          `yaml:"demo_fallback"`
}

// AlertsConfig controls alert polling and the acknowledged-alert mask.
type AlertsConfig struct {
	PollIntervalSeconds int           `yaml:"poll_interval_seconds"`
	AckTTLSeconds       int           `yaml:"ack_ttl_seconds"`
	PollInterval        time.Duration `yaml:"-"`
	AckTTL              time.Duration `yaml:"-"`
}

// DatabaseConfig holds the durable client-state storage configuration.
type DatabaseConfig struct {
	DSN                    string `yaml:"dsn"`
	MaxOpenConns           int    `yaml:"max_open_conns"`
	MaxIdleConns           int    `yaml:"max_idle_conns"`
	ConnMaxLifetimeMinutes int    `yaml:"conn_max_lifetime_minutes"`
}

// Load reads the configuration from the given path.
func Load(path string) (*Config, error) {
	f, err := os.Open(path)
	if err != nil {
		return nil, err
	}
	defer f.Close()

	var cfg Config
	decoder := yaml.NewDecoder(f)
	if err := decoder.Decode(&cfg); err != nil {
		return nil, err
	}

	cfg.ApplyDefaults()
	return &cfg, nil
}

// ApplyDefaults fills unset fields and derives the duration fields.
func (cfg *Config) ApplyDefaults() {
	if cfg.Server.Port <= 0 {
		cfg.Server.Port = 3000
	}
	if cfg.Server.RateLimitPerSec <= 0 {
		cfg.Server.RateLimitPerSec = 10
	}
	if cfg.Server.RateLimitBurst <= 0 {
		cfg.Server.RateLimitBurst = 5
	}
	if cfg.Server.CacheTTLSeconds <= 0 {
		cfg.Server.CacheTTLSeconds = 5
	}

	if cfg.Backend.BaseURL == "" {
		cfg.Backend.BaseURL = "http://localhost:8080"
	}
	if cfg.Backend.TimeoutSeconds <= 0 {
		cfg.Backend.TimeoutSeconds = 15
	}
	cfg.Backend.Timeout = time.Duration(cfg.Backend.TimeoutSeconds) * time.Second
	if cfg.Backend.RateLimitPerSec <= 0 {
		cfg.Backend.RateLimitPerSec = 20
	}
	if cfg.Backend.RateLimitBurst <= 0 {
		cfg.Backend.RateLimitBurst = 10
	}

	if cfg.Analytics.BaseURL == "" {
		cfg.Analytics.BaseURL = "http://localhost:8081"
	}
	if cfg.Analytics.TimeoutSeconds <= 0 {
		cfg.Analytics.TimeoutSeconds = 5
	}
	cfg.Analytics.Timeout = time.Duration(cfg.Analytics.TimeoutSeconds) * time.Second
	if cfg.Analytics.CacheTTLSeconds <= 0 {
		cfg.Analytics.CacheTTLSeconds = 30
	}
	cfg.Analytics.CacheTTL = time.Duration(cfg.Analytics.CacheTTLSeconds) * time.Second

	if cfg.Sync.AdminIntervalSeconds <= 0 {
		cfg.Sync.AdminIntervalSeconds = 60
	}
	if cfg.Sync.OperatorIntervalSeconds <= 0 {
		cfg.Sync.OperatorIntervalSeconds = 30
	}
	if cfg.Sync.InitialDelayMillis <= 0 {
		cfg.Sync.InitialDelayMillis = 100
	}
	cfg.Sync.AdminInterval = time.Duration(cfg.Sync.AdminIntervalSeconds) * time.Second
	cfg.Sync.OperatorInterval = time.Duration(cfg.Sync.OperatorIntervalSeconds) * time.Second
	cfg.Sync.InitialDelay = time.Duration(cfg.Sync.InitialDelayMillis) * time.Millisecond

	if cfg.Alerts.PollIntervalSeconds <= 0 {
		cfg.Alerts.PollIntervalSeconds = 5
	}
	if cfg.Alerts.AckTTLSeconds <= 0 {
		cfg.Alerts.AckTTLSeconds = 600
	}
	cfg.Alerts.PollInterval = time.Duration(cfg.Alerts.PollIntervalSeconds) * time.Second
	cfg.Alerts.AckTTL = time.Duration(cfg.Alerts.AckTTLSeconds) * time.Second

	if cfg.Database.DSN == "" {
		cfg.Database.DSN = "file:coffee-console.db"
	}

	if cfg.Push.TTL <= 0 {
		cfg.Push.TTL = 3600
	}

	if cfg.WorkerPool.Size <= 0 {
		log.Printf("worker_pool.size is not set or invalid; defaulting to 1")
		cfg.WorkerPool.Size = 1
	}
}
