// Package config provides configuration loading and validation.
package config

import (
	"fmt"
	"os"
	"strconv"
	"strings"
	"time"

	"github.com/dustin/go-humanize"
	"github.com/robfig/cron/v3"
	"github.com/rs/zerolog"
	"gopkg.in/yaml.v3"

	"github.com/artpar/pulse/domain/cost"
)

// Config is the root configuration structure.
type Config struct {
	Server      ServerConfig      `yaml:"server"`
	Admin       AdminConfig       `yaml:"admin"`
	Database    DatabaseConfig    `yaml:"database"`
	Storage     StorageConfig     `yaml:"storage"`
	Cache       CacheConfig       `yaml:"cache"`
	Objects     ObjectsConfig     `yaml:"objects"`
	Geo         GeoConfig         `yaml:"geo"`
	Ingestion   IngestionConfig   `yaml:"ingestion"`
	Buffer      BufferConfig      `yaml:"buffer"`
	Keys        KeysConfig        `yaml:"keys"`
	Exports     ExportsConfig     `yaml:"exports"`
	Aggregation AggregationConfig `yaml:"aggregation"`
	Schedule    ScheduleConfig    `yaml:"schedule"`
	Costs       CostsConfig       `yaml:"costs"`
	Logging     LoggingConfig     `yaml:"logging"`
	Metrics     MetricsConfig     `yaml:"metrics"`
	OpenAPI     OpenAPIConfig     `yaml:"openapi"`
}

// ServerConfig configures the HTTP server.
type ServerConfig struct {
	Host            string        `yaml:"host"`
	Port            int           `yaml:"port"`
	ReadTimeout     time.Duration `yaml:"read_timeout"`
	WriteTimeout    time.Duration `yaml:"write_timeout"`
	RequestTimeout  time.Duration `yaml:"request_timeout"`
	ShutdownTimeout time.Duration `yaml:"shutdown_timeout"`
	MaxBodyBytes    string        `yaml:"max_body_bytes"` // e.g. "5MB"
}

// AdminConfig configures the operator API. An empty token disables it.
type AdminConfig struct {
	Token string `yaml:"token"`
}

// DatabaseConfig configures the primary sqlite database.
type DatabaseConfig struct {
	Path string `yaml:"path"`
}

// StorageConfig lists additional event sinks written alongside the
// primary database.
type StorageConfig struct {
	Mirrors []MirrorConfig `yaml:"mirrors"`
}

// MirrorConfig configures one mirror sink.
type MirrorConfig struct {
	Name   string `yaml:"name"`
	Driver string `yaml:"driver"` // "postgres"
	DSN    string `yaml:"dsn"`
}

// CacheConfig selects the shared cache.
// Use "memory" for a single instance or "redis" for several.
type CacheConfig struct {
	Driver string `yaml:"driver"` // "memory" or "redis"
	URL    string `yaml:"url,omitempty"`
	Prefix string `yaml:"prefix"`
}

// ObjectsConfig selects where export files are stored.
type ObjectsConfig struct {
	Driver  string   `yaml:"driver"` // "memory" or "s3"
	BaseURL string   `yaml:"base_url,omitempty"`
	S3      S3Config `yaml:"s3,omitempty"`
}

// S3Config configures an S3 or S3-compatible bucket.
type S3Config struct {
	Bucket          string `yaml:"bucket"`
	Region          string `yaml:"region"`
	Endpoint        string `yaml:"endpoint,omitempty"`
	AccessKeyID     string `yaml:"access_key_id,omitempty"`
	SecretAccessKey string `yaml:"secret_access_key,omitempty"`
	UsePathStyle    bool   `yaml:"use_path_style"`
}

// GeoConfig configures IP geolocation.
type GeoConfig struct {
	Driver   string        `yaml:"driver"` // "none" or "maxmind"
	Database string        `yaml:"database,omitempty"`
	Timeout  time.Duration `yaml:"timeout"`
}

// IngestionConfig configures event validation and rate limiting.
type IngestionConfig struct {
	RateLimitPerMinute int           `yaml:"rate_limit_per_minute"` // 0 or less disables
	MaxBatchSize       int           `yaml:"max_batch_size"`
	MaxEventAge        time.Duration `yaml:"max_event_age"`
	MaxClockSkew       time.Duration `yaml:"max_clock_skew"`
}

// BufferConfig configures the per-project ingestion buffers.
type BufferConfig struct {
	FlushSize     int           `yaml:"flush_size"`
	MaxBuffered   int           `yaml:"max_buffered"`
	FlushInterval time.Duration `yaml:"flush_interval"`
	FlushTimeout  time.Duration `yaml:"flush_timeout"`
	CloseRetries  uint64        `yaml:"close_retries"`
}

// KeysConfig configures project API keys.
type KeysConfig struct {
	HashCost int           `yaml:"hash_cost"`
	CacheTTL time.Duration `yaml:"cache_ttl"`
}

// ExportsConfig configures the export pipeline.
type ExportsConfig struct {
	MaxConcurrent int           `yaml:"max_concurrent"`
	MaxFileSize   string        `yaml:"max_file_size"` // e.g. "50MB"
	URLTTL        time.Duration `yaml:"url_ttl"`
	Retention     time.Duration `yaml:"retention"`
	JobTimeout    time.Duration `yaml:"job_timeout"`
}

// AggregationConfig configures data retention of the aggregator.
type AggregationConfig struct {
	EventRetentionDays  int `yaml:"event_retention_days"`
	RollupRetentionDays int `yaml:"rollup_retention_days"`
}

// ScheduleConfig holds cron specs for the aggregation jobs. An empty spec
// disables that job.
type ScheduleConfig struct {
	Enabled bool   `yaml:"enabled"`
	Hourly  string `yaml:"hourly"`
	Daily   string `yaml:"daily"`
	Weekly  string `yaml:"weekly"`
	Cleanup string `yaml:"cleanup"`
}

// Jobs returns the non-empty specs keyed by job name.
func (s ScheduleConfig) Jobs() map[string]string {
	jobs := make(map[string]string, 4)
	for name, spec := range map[string]string{
		"hourly":  s.Hourly,
		"daily":   s.Daily,
		"weekly":  s.Weekly,
		"cleanup": s.Cleanup,
	} {
		if spec != "" {
			jobs[name] = spec
		}
	}
	return jobs
}

// CostsConfig configures LLM cost tracking. Prices are USD per million
// tokens; configured models extend the built-in table.
type CostsConfig struct {
	Prices  map[string]cost.Price `yaml:"prices"`
	Default *cost.Price           `yaml:"default,omitempty"`
}

// PriceTable merges the configured prices over the built-in table.
func (c CostsConfig) PriceTable() cost.PriceTable {
	t := cost.DefaultPriceTable()
	for model, p := range c.Prices {
		t.Models[model] = p
	}
	if c.Default != nil {
		t.Default = *c.Default
	}
	return t
}

// LoggingConfig configures logging.
type LoggingConfig struct {
	Level  string `yaml:"level"`  // "debug", "info", "warn", "error"
	Format string `yaml:"format"` // "json" or "console"
}

// MetricsConfig configures Prometheus metrics.
type MetricsConfig struct {
	Enabled bool   `yaml:"enabled"`
	Path    string `yaml:"path"`
}

// OpenAPIConfig configures OpenAPI/Swagger documentation.
type OpenAPIConfig struct {
	Enabled bool `yaml:"enabled"`
}

// MaxBodyBytes returns the parsed request body limit.
func (c *Config) MaxBodyBytes() int64 {
	n, err := humanize.ParseBytes(c.Server.MaxBodyBytes)
	if err != nil {
		return 0
	}
	return int64(n)
}

// MaxFileSizeBytes returns the parsed export size limit.
func (c *Config) MaxFileSizeBytes() int64 {
	n, err := humanize.ParseBytes(c.Exports.MaxFileSize)
	if err != nil {
		return 0
	}
	return int64(n)
}

// Addr returns the listen address.
func (c *Config) Addr() string {
	return fmt.Sprintf("%s:%d", c.Server.Host, c.Server.Port)
}

// Load reads configuration from a YAML file.
func Load(path string) (*Config, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("read config: %w", err)
	}

	// Expand environment variables
	data = []byte(os.ExpandEnv(string(data)))

	var cfg Config
	if err := yaml.Unmarshal(data, &cfg); err != nil {
		return nil, fmt.Errorf("parse config: %w", err)
	}

	applyEnvOverrides(&cfg)
	setDefaults(&cfg)

	if err := validate(&cfg); err != nil {
		return nil, fmt.Errorf("validate config: %w", err)
	}

	return &cfg, nil
}

// LoadFromEnv creates configuration entirely from environment variables.
//
// Environment variables:
//
//	PULSE_SERVER_HOST          - Server host (default: 0.0.0.0)
//	PULSE_SERVER_PORT          - Server port (default: 8080)
//	PULSE_ADMIN_TOKEN          - Admin API token (admin API disabled when empty)
//	PULSE_DATABASE_PATH        - SQLite database path (default: pulse.db)
//	PULSE_POSTGRES_MIRROR_DSN  - Mirror every event to this Postgres database
//	PULSE_CACHE_DRIVER         - memory or redis (default: memory)
//	PULSE_REDIS_URL            - Redis URL; selects the redis cache
//	PULSE_OBJECTS_DRIVER       - memory or s3 (default: memory)
//	PULSE_S3_BUCKET            - Export bucket; selects the s3 store
//	PULSE_S3_REGION            - Bucket region
//	PULSE_S3_ENDPOINT          - S3-compatible endpoint (MinIO)
//	PULSE_GEO_DATABASE         - MaxMind database; enables geolocation
//	PULSE_RATE_LIMIT           - Events per project per minute (default: 1000)
//	PULSE_SCHEDULE_ENABLED     - Run aggregation jobs in-process (default: true)
//	PULSE_LOG_LEVEL            - Log level: debug, info, warn, error (default: info)
//	PULSE_LOG_FORMAT           - Log format: json or console (default: json)
//	PULSE_METRICS_ENABLED      - Enable /metrics endpoint
//	PULSE_OPENAPI_ENABLED      - Enable OpenAPI/Swagger
func LoadFromEnv() (*Config, error) {
	cfg := Config{
		Metrics:  MetricsConfig{Enabled: true},
		OpenAPI:  OpenAPIConfig{Enabled: true},
		Schedule: ScheduleConfig{Enabled: true},
	}

	applyEnvOverrides(&cfg)
	setDefaults(&cfg)

	if err := validate(&cfg); err != nil {
		return nil, fmt.Errorf("validate config: %w", err)
	}

	return &cfg, nil
}

// LoadWithFallback loads path when it exists and falls back to environment
// variables otherwise.
func LoadWithFallback(path string) (*Config, error) {
	if path != "" {
		if _, err := os.Stat(path); err == nil {
			return Load(path)
		}
	}
	return LoadFromEnv()
}

// applyEnvOverrides applies PULSE_* environment variables to the config.
// Environment variables always override file-based configuration.
func applyEnvOverrides(cfg *Config) {
	// Server
	if v := os.Getenv("PULSE_SERVER_HOST"); v != "" {
		cfg.Server.Host = v
	}
	if v := os.Getenv("PULSE_SERVER_PORT"); v != "" {
		if port, err := strconv.Atoi(v); err == nil {
			cfg.Server.Port = port
		}
	}
	if v := os.Getenv("PULSE_SERVER_MAX_BODY"); v != "" {
		cfg.Server.MaxBodyBytes = v
	}
	if v := os.Getenv("PULSE_ADMIN_TOKEN"); v != "" {
		cfg.Admin.Token = v
	}

	// Storage
	if v := os.Getenv("PULSE_DATABASE_PATH"); v != "" {
		cfg.Database.Path = v
	}
	if v := os.Getenv("PULSE_POSTGRES_MIRROR_DSN"); v != "" {
		cfg.Storage.Mirrors = append(cfg.Storage.Mirrors, MirrorConfig{Name: "postgres", Driver: "postgres", DSN: v})
	}

	// Cache
	if v := os.Getenv("PULSE_CACHE_DRIVER"); v != "" {
		cfg.Cache.Driver = v
	}
	if v := os.Getenv("PULSE_REDIS_URL"); v != "" {
		cfg.Cache.URL = v
		if cfg.Cache.Driver == "" {
			cfg.Cache.Driver = "redis"
		}
	}

	// Objects
	if v := os.Getenv("PULSE_OBJECTS_DRIVER"); v != "" {
		cfg.Objects.Driver = v
	}
	if v := os.Getenv("PULSE_S3_BUCKET"); v != "" {
		cfg.Objects.S3.Bucket = v
		if cfg.Objects.Driver == "" {
			cfg.Objects.Driver = "s3"
		}
	}
	if v := os.Getenv("PULSE_S3_REGION"); v != "" {
		cfg.Objects.S3.Region = v
	}
	if v := os.Getenv("PULSE_S3_ENDPOINT"); v != "" {
		cfg.Objects.S3.Endpoint = v
		cfg.Objects.S3.UsePathStyle = true
	}

	// Geo
	if v := os.Getenv("PULSE_GEO_DATABASE"); v != "" {
		cfg.Geo.Database = v
		if cfg.Geo.Driver == "" {
			cfg.Geo.Driver = "maxmind"
		}
	}

	// Ingestion
	if v := os.Getenv("PULSE_RATE_LIMIT"); v != "" {
		if n, err := strconv.Atoi(v); err == nil {
			cfg.Ingestion.RateLimitPerMinute = n
		}
	}
	if v := os.Getenv("PULSE_SCHEDULE_ENABLED"); v != "" {
		cfg.Schedule.Enabled = parseBool(v)
	}

	// Logging
	if v := os.Getenv("PULSE_LOG_LEVEL"); v != "" {
		cfg.Logging.Level = v
	}
	if v := os.Getenv("PULSE_LOG_FORMAT"); v != "" {
		cfg.Logging.Format = v
	}

	if v := os.Getenv("PULSE_METRICS_ENABLED"); v != "" {
		cfg.Metrics.Enabled = parseBool(v)
	}
	if v := os.Getenv("PULSE_OPENAPI_ENABLED"); v != "" {
		cfg.OpenAPI.Enabled = parseBool(v)
	}
}

// parseBool parses a boolean from common string values.
func parseBool(v string) bool {
	v = strings.ToLower(strings.TrimSpace(v))
	return v == "true" || v == "1" || v == "yes" || v == "on"
}

func setDefaults(cfg *Config) {
	if cfg.Server.Host == "" {
		cfg.Server.Host = "0.0.0.0"
	}
	if cfg.Server.Port == 0 {
		cfg.Server.Port = 8080
	}
	if cfg.Server.ReadTimeout == 0 {
		cfg.Server.ReadTimeout = 30 * time.Second
	}
	if cfg.Server.WriteTimeout == 0 {
		cfg.Server.WriteTimeout = 60 * time.Second
	}
	if cfg.Server.RequestTimeout == 0 {
		cfg.Server.RequestTimeout = 30 * time.Second
	}
	if cfg.Server.ShutdownTimeout == 0 {
		cfg.Server.ShutdownTimeout = 30 * time.Second
	}
	if cfg.Server.MaxBodyBytes == "" {
		cfg.Server.MaxBodyBytes = "5MB"
	}

	if cfg.Database.Path == "" {
		cfg.Database.Path = "pulse.db"
	}
	for i := range cfg.Storage.Mirrors {
		m := &cfg.Storage.Mirrors[i]
		if m.Driver == "" {
			m.Driver = "postgres"
		}
		if m.Name == "" {
			m.Name = fmt.Sprintf("%s-%d", m.Driver, i)
		}
	}

	if cfg.Cache.Driver == "" {
		cfg.Cache.Driver = "memory"
	}
	if cfg.Cache.Prefix == "" {
		cfg.Cache.Prefix = "pulse:"
	}

	if cfg.Objects.Driver == "" {
		cfg.Objects.Driver = "memory"
	}

	if cfg.Geo.Driver == "" {
		cfg.Geo.Driver = "none"
	}
	if cfg.Geo.Timeout == 0 {
		cfg.Geo.Timeout = 50 * time.Millisecond
	}

	if cfg.Ingestion.RateLimitPerMinute == 0 {
		cfg.Ingestion.RateLimitPerMinute = 1000
	}
	if cfg.Ingestion.MaxBatchSize == 0 {
		cfg.Ingestion.MaxBatchSize = 1000
	}
	if cfg.Ingestion.MaxEventAge == 0 {
		cfg.Ingestion.MaxEventAge = 7 * 24 * time.Hour
	}
	if cfg.Ingestion.MaxClockSkew == 0 {
		cfg.Ingestion.MaxClockSkew = 5 * time.Minute
	}

	if cfg.Buffer.FlushSize == 0 {
		cfg.Buffer.FlushSize = 100
	}
	if cfg.Buffer.MaxBuffered == 0 {
		cfg.Buffer.MaxBuffered = 10000
	}
	if cfg.Buffer.FlushInterval == 0 {
		cfg.Buffer.FlushInterval = 5 * time.Second
	}
	if cfg.Buffer.FlushTimeout == 0 {
		cfg.Buffer.FlushTimeout = 10 * time.Second
	}
	if cfg.Buffer.CloseRetries == 0 {
		cfg.Buffer.CloseRetries = 3
	}

	if cfg.Keys.HashCost == 0 {
		cfg.Keys.HashCost = 10
	}
	if cfg.Keys.CacheTTL == 0 {
		cfg.Keys.CacheTTL = 5 * time.Minute
	}

	if cfg.Exports.MaxConcurrent == 0 {
		cfg.Exports.MaxConcurrent = 5
	}
	if cfg.Exports.MaxFileSize == "" {
		cfg.Exports.MaxFileSize = "50MB"
	}
	if cfg.Exports.URLTTL == 0 {
		cfg.Exports.URLTTL = 24 * time.Hour
	}
	if cfg.Exports.Retention == 0 {
		cfg.Exports.Retention = 7 * 24 * time.Hour
	}
	if cfg.Exports.JobTimeout == 0 {
		cfg.Exports.JobTimeout = 5 * time.Minute
	}

	if cfg.Aggregation.EventRetentionDays == 0 {
		cfg.Aggregation.EventRetentionDays = 90
	}
	if cfg.Aggregation.RollupRetentionDays == 0 {
		cfg.Aggregation.RollupRetentionDays = 400
	}

	if cfg.Schedule.Hourly == "" {
		cfg.Schedule.Hourly = "5 * * * *"
	}
	if cfg.Schedule.Daily == "" {
		cfg.Schedule.Daily = "15 0 * * *"
	}
	if cfg.Schedule.Weekly == "" {
		cfg.Schedule.Weekly = "30 0 * * 1"
	}
	if cfg.Schedule.Cleanup == "" {
		cfg.Schedule.Cleanup = "0 3 * * *"
	}

	if cfg.Logging.Level == "" {
		cfg.Logging.Level = "info"
	}
	if cfg.Logging.Format == "" {
		cfg.Logging.Format = "json"
	}
	if cfg.Metrics.Path == "" {
		cfg.Metrics.Path = "/metrics"
	}
}

func validate(cfg *Config) error {
	if cfg.Server.Port < 1 || cfg.Server.Port > 65535 {
		return fmt.Errorf("server.port must be between 1 and 65535, got %d", cfg.Server.Port)
	}
	if _, err := humanize.ParseBytes(cfg.Server.MaxBodyBytes); err != nil {
		return fmt.Errorf("server.max_body_bytes: %w", err)
	}

	for i, m := range cfg.Storage.Mirrors {
		if m.Driver != "postgres" {
			return fmt.Errorf("storage.mirrors[%d].driver must be 'postgres', got %q", i, m.Driver)
		}
		if m.DSN == "" {
			return fmt.Errorf("storage.mirrors[%d].dsn is required", i)
		}
	}

	switch cfg.Cache.Driver {
	case "memory":
	case "redis":
		if cfg.Cache.URL == "" {
			return fmt.Errorf("cache.url is required when cache.driver is 'redis'")
		}
	default:
		return fmt.Errorf("cache.driver must be 'memory' or 'redis', got %q", cfg.Cache.Driver)
	}

	switch cfg.Objects.Driver {
	case "memory":
	case "s3":
		if cfg.Objects.S3.Bucket == "" {
			return fmt.Errorf("objects.s3.bucket is required when objects.driver is 's3'")
		}
	default:
		return fmt.Errorf("objects.driver must be 'memory' or 's3', got %q", cfg.Objects.Driver)
	}

	switch cfg.Geo.Driver {
	case "none":
	case "maxmind":
		if cfg.Geo.Database == "" {
			return fmt.Errorf("geo.database is required when geo.driver is 'maxmind'")
		}
	default:
		return fmt.Errorf("geo.driver must be 'none' or 'maxmind', got %q", cfg.Geo.Driver)
	}

	if cfg.Ingestion.MaxBatchSize < 1 {
		return fmt.Errorf("ingestion.max_batch_size must be positive")
	}
	if cfg.Buffer.MaxBuffered < cfg.Buffer.FlushSize {
		return fmt.Errorf("buffer.max_buffered (%d) must be at least buffer.flush_size (%d)", cfg.Buffer.MaxBuffered, cfg.Buffer.FlushSize)
	}

	if _, err := humanize.ParseBytes(cfg.Exports.MaxFileSize); err != nil {
		return fmt.Errorf("exports.max_file_size: %w", err)
	}
	if cfg.Exports.MaxConcurrent < 1 {
		return fmt.Errorf("exports.max_concurrent must be positive")
	}

	for name, spec := range cfg.Schedule.Jobs() {
		if _, err := cron.ParseStandard(spec); err != nil {
			return fmt.Errorf("schedule.%s: %w", name, err)
		}
	}

	for model, p := range cfg.Costs.Prices {
		if p.Input < 0 || p.Output < 0 {
			return fmt.Errorf("costs.prices.%s: prices must not be negative", model)
		}
	}

	if _, err := zerolog.ParseLevel(cfg.Logging.Level); err != nil {
		return fmt.Errorf("logging.level: %w", err)
	}
	if cfg.Logging.Format != "json" && cfg.Logging.Format != "console" {
		return fmt.Errorf("logging.format must be 'json' or 'console', got %q", cfg.Logging.Format)
	}

	return nil
}
