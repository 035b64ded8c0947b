package app

import (
	"errors"
	"time"

	"github.com/hibiken/asynq"
	"github.com/kelseyhightower/envconfig"

	"github.com/odyssey-erp/backoffice/internal/grid/filterquery"
	"github.com/odyssey-erp/backoffice/internal/platform/cache"
)

// Config holds runtime configuration for the application.
type Config struct {
	AppEnv            string        `envconfig:"APP_ENV" default:"development"`
	AppAddr           string        `envconfig:"APP_ADDR" default:":8080"`
	AppReadTimeout    time.Duration `envconfig:"APP_READ_TIMEOUT" default:"15s"`
	AppWriteTimeout   time.Duration `envconfig:"APP_WRITE_TIMEOUT" default:"15s"`
	AppRequestTimeout time.Duration `envconfig:"APP_REQUEST_TIMEOUT" default:"30s"`
	AppRateLimit      int           `envconfig:"APP_RATE_LIMIT" default:"120"`

	LogFormat string `envconfig:"LOG_FORMAT" default:"pretty"`
	LogLevel  string `envconfig:"LOG_LEVEL" default:"info"`

	RedisAddr     string        `envconfig:"REDIS_ADDR" default:"127.0.0.1:6379"`
	RedisPassword string        `envconfig:"REDIS_PASSWORD"`
	RedisDB       int           `envconfig:"REDIS_DB" default:"0"`
	SessionSecret string        `envconfig:"SESSION_SECRET" required:"true"`
	SessionTTL    time.Duration `envconfig:"SESSION_TTL" default:"720h"`

	CSRFSecret string `envconfig:"CSRF_SECRET" required:"true"`

	// BackendURL is the REST API serving remote resources. Empty serves
	// only the in-memory demo resources.
	BackendURL     string        `envconfig:"BACKEND_URL"`
	BackendTimeout time.Duration `envconfig:"BACKEND_TIMEOUT" default:"10s"`

	GridDefaultPageSize int           `envconfig:"GRID_DEFAULT_PAGE_SIZE" default:"10"`
	GridMaxPageSize     int           `envconfig:"GRID_MAX_PAGE_SIZE" default:"100"`
	GridCacheTTL        time.Duration `envconfig:"GRID_CACHE_TTL" default:"30s"`
	GridPrefixPolicy    string        `envconfig:"GRID_PREFIX_POLICY" default:"full_key"`

	ExportDir         string        `envconfig:"EXPORT_DIR" default:"./var/exports"`
	ExportRetention   time.Duration `envconfig:"EXPORT_RETENTION" default:"72h"`
	WorkerConcurrency int           `envconfig:"WORKER_CONCURRENCY" default:"5"`
}

// LoadConfig reads configuration from environment variables.
func LoadConfig() (*Config, error) {
	var cfg Config
	if err := envconfig.Process("", &cfg); err != nil {
		return nil, err
	}
	if cfg.SessionSecret == "" {
		return nil, errors.New("session secret must be provided")
	}
	if cfg.CSRFSecret == "" {
		return nil, errors.New("csrf secret must be provided")
	}
	if cfg.GridDefaultPageSize <= 0 || cfg.GridMaxPageSize < cfg.GridDefaultPageSize {
		return nil, errors.New("grid page sizes must satisfy 0 < default <= max")
	}
	if _, err := cfg.PrefixPolicy(); err != nil {
		return nil, err
	}
	return &cfg, nil
}

// IsProduction returns true when the application runs in production.
func (c *Config) IsProduction() bool {
	return c != nil && c.AppEnv == "production"
}

// Redis returns the Redis connection settings.
func (c *Config) Redis() cache.Config {
	return cache.Config{Addr: c.RedisAddr, Password: c.RedisPassword, DB: c.RedisDB}
}

// QueueRedis returns the Asynq connection settings.
func (c *Config) QueueRedis() asynq.RedisClientOpt {
	return asynq.RedisClientOpt{Addr: c.RedisAddr, Password: c.RedisPassword, DB: c.RedisDB}
}

// PrefixPolicy parses GRID_PREFIX_POLICY.
func (c *Config) PrefixPolicy() (filterquery.PrefixPolicy, error) {
	return filterquery.ParsePrefixPolicy(c.GridPrefixPolicy)
}
