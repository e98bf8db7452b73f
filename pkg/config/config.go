// Package config loads and validates application configuration from YAML files
// with environment-variable overrides. It provides typed structs for every
// subsystem (Server, Source, Ingestion, Search, Redis, Kafka, Postgres, etc.).
package config

import (
	"errors"
	"fmt"
	"os"
	"strconv"
	"strings"
	"time"

	"gopkg.in/yaml.v3"
)

// Config is the top-level application configuration.
type Config struct {
	Server    ServerConfig    `yaml:"server"`
	Source    SourceConfig    `yaml:"source"`
	Ingestion IngestionConfig `yaml:"ingestion"`
	Search    SearchConfig    `yaml:"search"`
	Redis     RedisConfig     `yaml:"redis"`
	Kafka     KafkaConfig     `yaml:"kafka"`
	Postgres  PostgresConfig  `yaml:"postgres"`
	Logging   LoggingConfig   `yaml:"logging"`
	Metrics   MetricsConfig   `yaml:"metrics"`
}

// ServerConfig holds HTTP server settings. CORSAllowOrigins enables CORS for
// the listed origins; "*" allows any.
type ServerConfig struct {
	Port             int             `yaml:"port"`
	ReadTimeout      time.Duration   `yaml:"readTimeout"`
	WriteTimeout     time.Duration   `yaml:"writeTimeout"`
	ShutdownTimeout  time.Duration   `yaml:"shutdownTimeout"`
	CORSAllowOrigins []string        `yaml:"corsAllowOrigins"`
	RateLimit        RateLimitConfig `yaml:"rateLimit"`
}

// RateLimitConfig bounds request rate per client address.
type RateLimitConfig struct {
	Enabled           bool    `yaml:"enabled"`
	RequestsPerSecond float64 `yaml:"requestsPerSecond"`
	Burst             int     `yaml:"burst"`
	MaxClients        int     `yaml:"maxClients"`
}

// SourceConfig describes the remote paginated data source.
type SourceConfig struct {
	BaseURL           string               `yaml:"baseUrl"`
	RequestTimeout    time.Duration        `yaml:"requestTimeout"`
	RequestsPerSecond float64              `yaml:"requestsPerSecond"`
	Burst             int                  `yaml:"burst"`
	CircuitBreaker    CircuitBreakerConfig `yaml:"circuitBreaker"`
}

// CircuitBreakerConfig controls the breaker wrapped around source requests.
type CircuitBreakerConfig struct {
	Enabled          bool          `yaml:"enabled"`
	FailureThreshold int           `yaml:"failureThreshold"`
	ResetTimeout     time.Duration `yaml:"resetTimeout"`
}

// IngestionConfig controls page size, fan-out, retry policy and re-ingestion.
type IngestionConfig struct {
	PageSize        int           `yaml:"pageSize"`
	FanOut          int           `yaml:"fanOut"`
	MaxAttempts     int           `yaml:"maxAttempts"`
	NetworkBackoff  time.Duration `yaml:"networkBackoff"`
	ServerBackoff   time.Duration `yaml:"serverBackoff"`
	BlockStartup    bool          `yaml:"blockStartup"`
	RefreshInterval time.Duration `yaml:"refreshInterval"`
	CycleTimeout    time.Duration `yaml:"cycleTimeout"`
}

// SearchConfig controls query defaults, limits and result caching.
type SearchConfig struct {
	DefaultLimit int           `yaml:"defaultLimit"`
	MaxLimit     int           `yaml:"maxLimit"`
	CacheSize    int           `yaml:"cacheSize"`
	CacheTTL     time.Duration `yaml:"cacheTTL"`
}

// RedisConfig holds Redis connection parameters for the shared query cache.
type RedisConfig struct {
	Enabled  bool   `yaml:"enabled"`
	Addr     string `yaml:"addr"`
	Password string `yaml:"password"`
	DB       int    `yaml:"db"`
	PoolSize int    `yaml:"poolSize"`
}

// KafkaConfig holds Kafka broker and topic settings.
type KafkaConfig struct {
	Enabled       bool        `yaml:"enabled"`
	Brokers       []string    `yaml:"brokers"`
	ConsumerGroup string      `yaml:"consumerGroup"`
	Topics        KafkaTopics `yaml:"topics"`
}

// KafkaTopics maps logical topic names to their Kafka topic strings.
type KafkaTopics struct {
	GenerationPublished string `yaml:"generationPublished"`
	ReindexRequests     string `yaml:"reindexRequests"`
	AnalyticsEvents     string `yaml:"analyticsEvents"`
}

// PostgresConfig holds PostgreSQL connection parameters for the run ledger.
type PostgresConfig struct {
	Enabled         bool          `yaml:"enabled"`
	Host            string        `yaml:"host"`
	Port            int           `yaml:"port"`
	Database        string        `yaml:"database"`
	User            string        `yaml:"user"`
	Password        string        `yaml:"password"`
	SSLMode         string        `yaml:"sslMode"`
	MaxOpenConns    int           `yaml:"maxOpenConns"`
	MaxIdleConns    int           `yaml:"maxIdleConns"`
	ConnMaxLifetime time.Duration `yaml:"connMaxLifetime"`
}

// DSN returns a lib/pq-compatible data source name.
func (p PostgresConfig) DSN() string {
	return fmt.Sprintf(
		"host=%s port=%d user=%s password=%s dbname=%s sslmode=%s",
		p.Host, p.Port, p.User, p.Password, p.Database, p.SSLMode,
	)
}

// LoggingConfig controls structured logging level and output format.
type LoggingConfig struct {
	Level  string `yaml:"level"`
	Format string `yaml:"format"`
}

// MetricsConfig controls the Prometheus metrics server.
type MetricsConfig struct {
	Enabled bool `yaml:"enabled"`
	Port    int  `yaml:"port"`
}

// Load reads a YAML config file (if provided) and applies environment-variable
// overrides. It returns a Config populated with defaults for any missing
// values.
func Load(path string) (*Config, error) {
	cfg := Default()
	if path != "" {
		data, err := os.ReadFile(path)
		if err != nil {
			return nil, fmt.Errorf("reading config file %s: %w", path, err)
		}
		if err := yaml.Unmarshal(data, cfg); err != nil {
			return nil, fmt.Errorf("parsing config file %s: %w", path, err)
		}
	}
	applyEnvOverrides(cfg)
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return cfg, nil
}

// Default returns a Config with defaults suitable for local development.
func Default() *Config {
	return &Config{
		Server: ServerConfig{
			Port:            8080,
			ReadTimeout:     30 * time.Second,
			WriteTimeout:    30 * time.Second,
			ShutdownTimeout: 15 * time.Second,
			RateLimit: RateLimitConfig{
				RequestsPerSecond: 50,
				Burst:             100,
				MaxClients:        10000,
			},
		},
		Source: SourceConfig{
			BaseURL:        "https://november7-730026606190.europe-west1.run.app/messages/",
			RequestTimeout: 10 * time.Second,
			Burst:          1,
			CircuitBreaker: CircuitBreakerConfig{
				Enabled:          true,
				FailureThreshold: 20,
				ResetTimeout:     10 * time.Second,
			},
		},
		Ingestion: IngestionConfig{
			PageSize:       100,
			FanOut:         4,
			MaxAttempts:    10,
			NetworkBackoff: 500 * time.Millisecond,
			ServerBackoff:  2 * time.Second,
			BlockStartup:   true,
			CycleTimeout:   10 * time.Minute,
		},
		Search: SearchConfig{
			DefaultLimit: 10,
			MaxLimit:     1000,
			CacheSize:    1024,
			CacheTTL:     60 * time.Second,
		},
		Redis: RedisConfig{
			Addr:     "localhost:6379",
			PoolSize: 10,
		},
		Kafka: KafkaConfig{
			Brokers:       []string{"localhost:9092"},
			ConsumerGroup: "message-search",
			Topics: KafkaTopics{
				GenerationPublished: "generation.published",
				ReindexRequests:     "reindex-requests",
				AnalyticsEvents:     "analytics-events",
			},
		},
		Postgres: PostgresConfig{
			Host:            "localhost",
			Port:            5432,
			Database:        "messagesearch",
			User:            "messagesearch",
			Password:        "localdev",
			SSLMode:         "disable",
			MaxOpenConns:    5,
			MaxIdleConns:    2,
			ConnMaxLifetime: 5 * time.Minute,
		},
		Logging: LoggingConfig{
			Level:  "info",
			Format: "json",
		},
		Metrics: MetricsConfig{
			Enabled: true,
			Port:    9090,
		},
	}
}

// Validate rejects configurations the ingestion pipeline cannot run with.
func (c *Config) Validate() error {
	var errs []error
	if strings.TrimSpace(c.Source.BaseURL) == "" {
		errs = append(errs, errors.New("source.baseUrl is required"))
	}
	if c.Ingestion.PageSize <= 0 {
		errs = append(errs, fmt.Errorf("ingestion.pageSize must be positive, got %d", c.Ingestion.PageSize))
	}
	if c.Ingestion.FanOut <= 0 {
		errs = append(errs, fmt.Errorf("ingestion.fanOut must be positive, got %d", c.Ingestion.FanOut))
	}
	if c.Ingestion.MaxAttempts <= 0 {
		errs = append(errs, fmt.Errorf("ingestion.maxAttempts must be positive, got %d", c.Ingestion.MaxAttempts))
	}
	if c.Search.DefaultLimit <= 0 || c.Search.MaxLimit < c.Search.DefaultLimit {
		errs = append(errs, fmt.Errorf("search limits invalid: defaultLimit=%d maxLimit=%d", c.Search.DefaultLimit, c.Search.MaxLimit))
	}
	if len(errs) > 0 {
		return fmt.Errorf("invalid config: %w", errors.Join(errs...))
	}
	return nil
}

// applyEnvOverrides reads MS_* environment variables and overrides the
// corresponding config fields.
func applyEnvOverrides(cfg *Config) {
	if v := os.Getenv("MS_SERVER_PORT"); v != "" {
		if port, err := strconv.Atoi(v); err == nil {
			cfg.Server.Port = port
		}
	}
	if v := os.Getenv("MS_SERVER_CORS_ALLOW_ORIGINS"); v != "" {
		cfg.Server.CORSAllowOrigins = strings.Split(v, ",")
	}
	if v := os.Getenv("MS_SERVER_RATE_LIMIT_ENABLED"); v != "" {
		if b, err := strconv.ParseBool(v); err == nil {
			cfg.Server.RateLimit.Enabled = b
		}
	}
	if v := os.Getenv("MS_SOURCE_BASE_URL"); v != "" {
		cfg.Source.BaseURL = v
	}
	if v := os.Getenv("MS_SOURCE_REQUESTS_PER_SECOND"); v != "" {
		if rps, err := strconv.ParseFloat(v, 64); err == nil {
			cfg.Source.RequestsPerSecond = rps
		}
	}
	if v := os.Getenv("MS_INGESTION_PAGE_SIZE"); v != "" {
		if n, err := strconv.Atoi(v); err == nil {
			cfg.Ingestion.PageSize = n
		}
	}
	if v := os.Getenv("MS_INGESTION_FAN_OUT"); v != "" {
		if n, err := strconv.Atoi(v); err == nil {
			cfg.Ingestion.FanOut = n
		}
	}
	if v := os.Getenv("MS_INGESTION_BLOCK_STARTUP"); v != "" {
		if b, err := strconv.ParseBool(v); err == nil {
			cfg.Ingestion.BlockStartup = b
		}
	}
	if v := os.Getenv("MS_INGESTION_REFRESH_INTERVAL"); v != "" {
		if d, err := time.ParseDuration(v); err == nil {
			cfg.Ingestion.RefreshInterval = d
		}
	}
	if v := os.Getenv("MS_REDIS_ENABLED"); v != "" {
		if b, err := strconv.ParseBool(v); err == nil {
			cfg.Redis.Enabled = b
		}
	}
	if v := os.Getenv("MS_REDIS_ADDR"); v != "" {
		cfg.Redis.Addr = v
	}
	if v := os.Getenv("MS_REDIS_PASSWORD"); v != "" {
		cfg.Redis.Password = v
	}
	if v := os.Getenv("MS_KAFKA_ENABLED"); v != "" {
		if b, err := strconv.ParseBool(v); err == nil {
			cfg.Kafka.Enabled = b
		}
	}
	if v := os.Getenv("MS_KAFKA_BROKERS"); v != "" {
		cfg.Kafka.Brokers = strings.Split(v, ",")
	}
	if v := os.Getenv("MS_POSTGRES_ENABLED"); v != "" {
		if b, err := strconv.ParseBool(v); err == nil {
			cfg.Postgres.Enabled = b
		}
	}
	if v := os.Getenv("MS_POSTGRES_HOST"); v != "" {
		cfg.Postgres.Host = v
	}
	if v := os.Getenv("MS_POSTGRES_PASSWORD"); v != "" {
		cfg.Postgres.Password = v
	}
	if v := os.Getenv("MS_LOGGING_LEVEL"); v != "" {
		cfg.Logging.Level = v
	}
	if v := os.Getenv("MS_LOGGING_FORMAT"); v != "" {
		cfg.Logging.Format = v
	}
}
