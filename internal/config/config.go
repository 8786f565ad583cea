// Package config loads and validates harvester configuration via Viper.
package config

import (
	"fmt"
	"net/url"
	"strings"
	"time"

	"github.com/spf13/viper"
)

// Backend names accepted by storage.backend.
const (
	BackendSQLite   = "sqlite"
	BackendPostgres = "postgres"
	BackendMemory   = "memory"
)

// Config captures all service configuration knobs loaded via Viper.
type Config struct {
	Server    ServerConfig    `mapstructure:"server"`
	Harvest   HarvestConfig   `mapstructure:"harvest"`
	Fetch     FetchConfig     `mapstructure:"fetch"`
	Headless  HeadlessConfig  `mapstructure:"headless"`
	Storage   StorageConfig   `mapstructure:"storage"`
	Artifacts ArtifactsConfig `mapstructure:"artifacts"`
	Report    ReportConfig    `mapstructure:"report"`
	Notify    NotifyConfig    `mapstructure:"notify"`
	Logging   LoggingConfig   `mapstructure:"logging"`
}

// ServerConfig controls the status API server.
type ServerConfig struct {
	Port int `mapstructure:"port"`
}

// HarvestConfig governs docket enumeration and pacing.
type HarvestConfig struct {
	BaseURL            string `mapstructure:"base_url"`
	Sources            []int  `mapstructure:"sources"`
	UserAgent          string `mapstructure:"user_agent"`
	CaseDelaySeconds   int    `mapstructure:"case_delay_seconds"`
	SourceDelaySeconds int    `mapstructure:"source_delay_seconds"`
}

// FetchConfig configures retrieval retry behavior.
type FetchConfig struct {
	TimeoutSeconds     int      `mapstructure:"timeout_seconds"`
	MaxRetries         int      `mapstructure:"max_retries"`
	BackoffBaseSeconds int      `mapstructure:"backoff_base_seconds"`
	ExtraAllowedHosts  []string `mapstructure:"extra_allowed_hosts"`
}

// HeadlessConfig configures the headless rendering fallback.
type HeadlessConfig struct {
	Enabled         bool `mapstructure:"enabled"`
	MaxParallel     int  `mapstructure:"max_parallel"`
	NavTimeoutSec   int  `mapstructure:"nav_timeout_seconds"`
	PromotionThresh int  `mapstructure:"promotion_threshold"`
}

// StorageConfig selects and configures the ledger/run-record backend.
type StorageConfig struct {
	Backend      string `mapstructure:"backend"`
	SQLitePath   string `mapstructure:"sqlite_path"`
	DSN          string `mapstructure:"dsn"`
	MaxOpenConns int    `mapstructure:"max_open_conns"`
}

// ArtifactsConfig sets the artifact tree location and optional GCS mirror.
type ArtifactsConfig struct {
	Root      string `mapstructure:"root"`
	GCSBucket string `mapstructure:"gcs_bucket"`
	GCSPrefix string `mapstructure:"gcs_prefix"`
}

// ReportConfig controls period report output.
type ReportConfig struct {
	Dir string `mapstructure:"dir"`
}

// NotifyConfig holds metadata for report-ready notifications.
type NotifyConfig struct {
	Enabled   bool   `mapstructure:"enabled"`
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
	v.SetEnvPrefix("HARVESTER")
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
	v.SetDefault("harvest.base_url", "https://search.txcourts.gov")
	v.SetDefault("harvest.sources", defaultSources())
	v.SetDefault("harvest.user_agent", "opinion-harvester/0.1")
	v.SetDefault("harvest.case_delay_seconds", 1)
	v.SetDefault("harvest.source_delay_seconds", 2)
	v.SetDefault("fetch.timeout_seconds", 30)
	v.SetDefault("fetch.max_retries", 3)
	v.SetDefault("fetch.backoff_base_seconds", 2)
	v.SetDefault("headless.enabled", false)
	v.SetDefault("headless.max_parallel", 1)
	v.SetDefault("headless.nav_timeout_seconds", 25)
	v.SetDefault("headless.promotion_threshold", 2048)
	v.SetDefault("storage.backend", BackendSQLite)
	v.SetDefault("storage.sqlite_path", "harvester.db")
	v.SetDefault("storage.max_open_conns", 4)
	v.SetDefault("artifacts.root", "artifacts")
	v.SetDefault("report.dir", "reports")
	v.SetDefault("notify.enabled", false)
	v.SetDefault("logging.development", true)
}

func defaultSources() []int {
	sources := make([]int, 0, 14)
	for id := 1; id <= 14; id++ {
		sources = append(sources, id)
	}
	return sources
}

// Validate enforces required values and reasonable limits.
func (c Config) Validate() error {
	if c.Server.Port <= 0 {
		return fmt.Errorf("server.port must be > 0")
	}
	if c.Harvest.BaseURL == "" {
		return fmt.Errorf("harvest.base_url must be set")
	}
	if _, err := url.Parse(c.Harvest.BaseURL); err != nil {
		return fmt.Errorf("harvest.base_url invalid: %w", err)
	}
	if len(c.Harvest.Sources) == 0 {
		return fmt.Errorf("harvest.sources must not be empty")
	}
	for _, id := range c.Harvest.Sources {
		if id <= 0 || id > 99 {
			return fmt.Errorf("harvest.sources entries must be in 1..99, got %d", id)
		}
	}
	if c.Fetch.TimeoutSeconds <= 0 {
		return fmt.Errorf("fetch.timeout_seconds must be > 0")
	}
	if c.Fetch.MaxRetries <= 0 {
		return fmt.Errorf("fetch.max_retries must be > 0")
	}
	if c.Fetch.BackoffBaseSeconds <= 0 {
		return fmt.Errorf("fetch.backoff_base_seconds must be > 0")
	}
	if c.Headless.Enabled && c.Headless.MaxParallel <= 0 {
		return fmt.Errorf("headless.max_parallel must be > 0 when headless is enabled")
	}
	switch c.Storage.Backend {
	case BackendSQLite:
		if c.Storage.SQLitePath == "" {
			return fmt.Errorf("storage.sqlite_path must be set for the sqlite backend")
		}
	case BackendPostgres:
		if c.Storage.DSN == "" {
			return fmt.Errorf("storage.dsn must be set for the postgres backend")
		}
	case BackendMemory:
	default:
		return fmt.Errorf("storage.backend must be one of sqlite, postgres, memory")
	}
	if c.Artifacts.Root == "" {
		return fmt.Errorf("artifacts.root must be set")
	}
	if c.Notify.Enabled && (c.Notify.ProjectID == "" || c.Notify.TopicName == "") {
		return fmt.Errorf("notify.project_id and notify.topic_name must be set when notify is enabled")
	}
	return nil
}

// FetchTimeout converts the fetch timeout into a duration.
func (c Config) FetchTimeout() time.Duration {
	return time.Duration(c.Fetch.TimeoutSeconds) * time.Second
}

// BackoffBase converts the retry backoff base into a duration.
func (c Config) BackoffBase() time.Duration {
	return time.Duration(c.Fetch.BackoffBaseSeconds) * time.Second
}

// CaseDelay is the pause between case groups within one docket.
func (c Config) CaseDelay() time.Duration {
	return time.Duration(c.Harvest.CaseDelaySeconds) * time.Second
}

// SourceDelay is the pause between work units.
func (c Config) SourceDelay() time.Duration {
	return time.Duration(c.Harvest.SourceDelaySeconds) * time.Second
}
