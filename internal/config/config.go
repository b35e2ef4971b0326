// Copyright 2025 James Ross
package config

import (
	"fmt"
	"os"
	"strings"
	"time"

	"github.com/spf13/viper"
)

type Warehouse struct {
	Host            string        `mapstructure:"host"`
	Port            int           `mapstructure:"port"`
	User            string        `mapstructure:"user"`
	Password        string        `mapstructure:"password"`
	Database        string        `mapstructure:"database"`
	RawTable        string        `mapstructure:"raw_table"`
	EnrichedTable   string        `mapstructure:"enriched_table"`
	MaxOpenConns    int           `mapstructure:"max_open_conns"`
	MaxIdleConns    int           `mapstructure:"max_idle_conns"`
	ConnMaxLifetime time.Duration `mapstructure:"conn_max_lifetime"`
	DialTimeout     time.Duration `mapstructure:"dial_timeout"`
	InsertTimeout   time.Duration `mapstructure:"insert_timeout"`
}

type Backoff struct {
	Base       time.Duration `mapstructure:"base"`
	Max        time.Duration `mapstructure:"max"`
	MaxRetries int           `mapstructure:"max_retries"`
}

type Batch struct {
	Size        int           `mapstructure:"size"`
	LineSoftCap int           `mapstructure:"line_soft_cap"`
	FlushEvery  time.Duration `mapstructure:"flush_every"`
}

type Discovery struct {
	LogDir              string        `mapstructure:"log_dir"`
	IncludeGlobs        []string      `mapstructure:"include_globs"`
	ExcludeGlobs        []string      `mapstructure:"exclude_globs"`
	StabilizeSeconds    time.Duration `mapstructure:"stabilize_seconds"`
	StaleAfter          time.Duration `mapstructure:"stale_after"`
	RefreshMinutes      float64       `mapstructure:"refresh_minutes"`
	RefreshCron         string        `mapstructure:"refresh_cron"`
	MonitorDurationSecs int           `mapstructure:"monitor_duration_secs"`
}

type Worker struct {
	Count         int           `mapstructure:"count"`
	BreakerPause  time.Duration `mapstructure:"breaker_pause"`
	HeartbeatTTL  time.Duration `mapstructure:"heartbeat_ttl"`
	DispatchQueue int           `mapstructure:"dispatch_queue_multiplier"`
}

type CircuitBreaker struct {
	FailureThreshold float64       `mapstructure:"failure_threshold"`
	Window           time.Duration `mapstructure:"window"`
	CooldownPeriod   time.Duration `mapstructure:"cooldown_period"`
	MinSamples       int           `mapstructure:"min_samples"`
}

type ObservabilityConfig struct {
	MetricsPort   int    `mapstructure:"metrics_port"`
	LogLevel      string `mapstructure:"log_level"`
	LogFile       string `mapstructure:"log_file"`
	LogMaxSizeMB  int    `mapstructure:"log_max_size_mb"`
	LogMaxBackups int    `mapstructure:"log_max_backups"`
	LogMaxAgeDays int    `mapstructure:"log_max_age_days"`
}

type Enrich struct {
	RulesPath        string        `mapstructure:"rules_path"`
	SuccessStatuses  []string      `mapstructure:"success_statuses"`
	SlowThreshold    time.Duration `mapstructure:"slow_threshold"`
	SpeedCapKBPerSec float64       `mapstructure:"speed_cap_kb_per_sec"`
}

type StateStore struct {
	Backend string `mapstructure:"backend"` // json | sqlite
	Path    string `mapstructure:"path"`
}

type Config struct {
	Warehouse      Warehouse           `mapstructure:"warehouse"`
	Discovery      Discovery           `mapstructure:"discovery"`
	Worker         Worker              `mapstructure:"worker"`
	Batch          Batch               `mapstructure:"batch"`
	Backoff        Backoff             `mapstructure:"backoff"`
	CircuitBreaker CircuitBreaker      `mapstructure:"circuit_breaker"`
	Observability  ObservabilityConfig `mapstructure:"observability"`
	Enrich         Enrich              `mapstructure:"enrich"`
	StateStore     StateStore          `mapstructure:"state_store"`
}

func defaultConfig() *Config {
	return &Config{
		Warehouse: Warehouse{
			Host:            "localhost",
			Port:            9000,
			Database:        "nginx_logs",
			RawTable:        "nginx_raw",
			EnrichedTable:   "nginx_enriched",
			MaxOpenConns:    8,
			MaxIdleConns:    4,
			ConnMaxLifetime: 30 * time.Minute,
			DialTimeout:     10 * time.Second,
			InsertTimeout:   60 * time.Second,
		},
		Discovery: Discovery{
			LogDir:              "./logs",
			IncludeGlobs:        []string{"**/*.log", "**/*.log.gz"},
			ExcludeGlobs:        []string{"**/*.tmp"},
			StabilizeSeconds:    30 * time.Second,
			StaleAfter:          2 * time.Hour,
			RefreshMinutes:      3,
			MonitorDurationSecs: 7200,
		},
		Worker: Worker{
			Count:         6,
			BreakerPause:  200 * time.Millisecond,
			HeartbeatTTL:  30 * time.Second,
			DispatchQueue: 2,
		},
		Batch: Batch{
			Size:        3000,
			LineSoftCap: 20000,
			FlushEvery:  5 * time.Second,
		},
		Backoff: Backoff{
			Base:       500 * time.Millisecond,
			Max:        10 * time.Second,
			MaxRetries: 5,
		},
		CircuitBreaker: CircuitBreaker{
			FailureThreshold: 0.5,
			Window:           1 * time.Minute,
			CooldownPeriod:   30 * time.Second,
			MinSamples:       20,
		},
		Observability: ObservabilityConfig{
			MetricsPort:   9090,
			LogLevel:      "info",
			LogFile:       "./logs/etl.log",
			LogMaxSizeMB:  100,
			LogMaxBackups: 5,
			LogMaxAgeDays: 14,
		},
		Enrich: Enrich{
			RulesPath:        "",
			SuccessStatuses:  []string{"200", "201", "202", "204", "206", "301", "302", "304"},
			SlowThreshold:    3 * time.Second,
			SpeedCapKBPerSec: 1024 * 1024, // 1 GB/s expressed in KB/s
		},
		StateStore: StateStore{
			Backend: "json",
			Path:    "", // derived from log_dir when empty
		},
	}
}

// Load reads configuration from YAML file and env overrides.
func Load(path string) (*Config, error) {
	v := viper.New()
	v.SetConfigFile(path)
	v.SetConfigType("yaml")
	v.SetEnvPrefix("")
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	v.AutomaticEnv()

	def := defaultConfig()
	v.SetDefault("warehouse.host", def.Warehouse.Host)
	v.SetDefault("warehouse.port", def.Warehouse.Port)
	v.SetDefault("warehouse.database", def.Warehouse.Database)
	v.SetDefault("warehouse.user", def.Warehouse.User)
	v.SetDefault("warehouse.password", def.Warehouse.Password)
	v.SetDefault("warehouse.raw_table", def.Warehouse.RawTable)
	v.SetDefault("warehouse.enriched_table", def.Warehouse.EnrichedTable)
	v.SetDefault("warehouse.max_open_conns", def.Warehouse.MaxOpenConns)
	v.SetDefault("warehouse.max_idle_conns", def.Warehouse.MaxIdleConns)
	v.SetDefault("warehouse.conn_max_lifetime", def.Warehouse.ConnMaxLifetime)
	v.SetDefault("warehouse.dial_timeout", def.Warehouse.DialTimeout)
	v.SetDefault("warehouse.insert_timeout", def.Warehouse.InsertTimeout)

	v.SetDefault("discovery.log_dir", def.Discovery.LogDir)
	v.SetDefault("discovery.include_globs", def.Discovery.IncludeGlobs)
	v.SetDefault("discovery.exclude_globs", def.Discovery.ExcludeGlobs)
	v.SetDefault("discovery.stabilize_seconds", def.Discovery.StabilizeSeconds)
	v.SetDefault("discovery.stale_after", def.Discovery.StaleAfter)
	v.SetDefault("discovery.refresh_minutes", def.Discovery.RefreshMinutes)
	v.SetDefault("discovery.monitor_duration_secs", def.Discovery.MonitorDurationSecs)

	v.SetDefault("worker.count", def.Worker.Count)
	v.SetDefault("worker.breaker_pause", def.Worker.BreakerPause)
	v.SetDefault("worker.heartbeat_ttl", def.Worker.HeartbeatTTL)
	v.SetDefault("worker.dispatch_queue_multiplier", def.Worker.DispatchQueue)

	v.SetDefault("batch.size", def.Batch.Size)
	v.SetDefault("batch.line_soft_cap", def.Batch.LineSoftCap)
	v.SetDefault("batch.flush_every", def.Batch.FlushEvery)

	v.SetDefault("backoff.base", def.Backoff.Base)
	v.SetDefault("backoff.max", def.Backoff.Max)
	v.SetDefault("backoff.max_retries", def.Backoff.MaxRetries)

	v.SetDefault("circuit_breaker.failure_threshold", def.CircuitBreaker.FailureThreshold)
	v.SetDefault("circuit_breaker.window", def.CircuitBreaker.Window)
	v.SetDefault("circuit_breaker.cooldown_period", def.CircuitBreaker.CooldownPeriod)
	v.SetDefault("circuit_breaker.min_samples", def.CircuitBreaker.MinSamples)

	v.SetDefault("observability.metrics_port", def.Observability.MetricsPort)
	v.SetDefault("observability.log_level", def.Observability.LogLevel)
	_ = v.BindEnv("observability.log_level", "OBSERVABILITY_LOG_LEVEL", "ETL_LOG_LEVEL")
	v.SetDefault("observability.log_file", def.Observability.LogFile)
	v.SetDefault("observability.log_max_size_mb", def.Observability.LogMaxSizeMB)
	v.SetDefault("observability.log_max_backups", def.Observability.LogMaxBackups)
	v.SetDefault("observability.log_max_age_days", def.Observability.LogMaxAgeDays)

	v.SetDefault("enrich.success_statuses", def.Enrich.SuccessStatuses)
	v.SetDefault("enrich.slow_threshold", def.Enrich.SlowThreshold)
	v.SetDefault("enrich.speed_cap_kb_per_sec", def.Enrich.SpeedCapKBPerSec)

	v.SetDefault("state_store.backend", def.StateStore.Backend)
	v.SetDefault("state_store.path", def.StateStore.Path)

	// Optional file read
	if _, err := os.Stat(path); err == nil {
		if err := v.ReadInConfig(); err != nil {
			return nil, fmt.Errorf("read config: %w", err)
		}
	}

	var cfg Config
	if err := v.Unmarshal(&cfg); err != nil {
		return nil, fmt.Errorf("unmarshal config: %w", err)
	}
	if cfg.StateStore.Path == "" {
		ext := ".json"
		if cfg.StateStore.Backend == "sqlite" {
			ext = ".db"
		}
		cfg.StateStore.Path = cfg.Discovery.LogDir + "/.processing-state" + ext
	}
	if err := Validate(&cfg); err != nil {
		return nil, err
	}
	return &cfg, nil
}

// Validate checks config constraints and returns an error on invalid settings.
func Validate(cfg *Config) error {
	if cfg.Discovery.LogDir == "" {
		return fmt.Errorf("discovery.log_dir must be set")
	}
	if cfg.Worker.Count < 1 {
		return fmt.Errorf("worker.count must be >= 1")
	}
	if cfg.Batch.Size < 1 {
		return fmt.Errorf("batch.size must be >= 1")
	}
	if cfg.Batch.FlushEvery <= 0 {
		return fmt.Errorf("batch.flush_every must be > 0")
	}
	if cfg.Worker.HeartbeatTTL < 5*time.Second {
		return fmt.Errorf("worker.heartbeat_ttl must be >= 5s")
	}
	if cfg.Discovery.StaleAfter <= 0 {
		return fmt.Errorf("discovery.stale_after must be > 0")
	}
	if len(cfg.Enrich.SuccessStatuses) == 0 {
		return fmt.Errorf("enrich.success_statuses must be non-empty")
	}
	if cfg.Observability.MetricsPort <= 0 || cfg.Observability.MetricsPort > 65535 {
		return fmt.Errorf("observability.metrics_port must be 1..65535")
	}
	if cfg.StateStore.Backend != "json" && cfg.StateStore.Backend != "sqlite" {
		return fmt.Errorf("state_store.backend must be json or sqlite")
	}
	if cfg.Backoff.MaxRetries < 0 {
		return fmt.Errorf("backoff.max_retries must be >= 0")
	}
	return nil
}
