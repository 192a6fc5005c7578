package config

import (
	"fmt"
	"os"

	"github.com/caarlos0/env/v11"
	"github.com/tckz/gcp-view-counter/internal/counter"
	"go.uber.org/zap/zapcore"
)

const (
	BackendDatastore = "datastore"
	BackendRedis     = "redis"
	BackendMySQL     = "mysql"
	BackendMemory    = "memory"
)

type Config struct {
	ProjectID string `env:"PROJECT_ID"`
	Backend   string `env:"COUNTER_BACKEND" envDefault:"datastore"`
	Mode      string `env:"COUNTER_MODE" envDefault:"overwrite"`
	MaxTries  uint   `env:"COUNTER_MAX_TRIES" envDefault:"1"`
	LogLevel  string `env:"LOG_LEVEL" envDefault:"info"`

	Kind      string `env:"COUNTER_KIND" envDefault:"ViewCount"`
	Namespace string `env:"COUNTER_NAMESPACE"`

	RedisAddr   string `env:"REDIS_ADDR"`
	RedisPrefix string `env:"COUNTER_REDIS_PREFIX" envDefault:"view-count"`

	MySQLDSN string `env:"MYSQL_DSN"`

	// MemorySeed is the views the memory backend starts from. Its map lives only as long as the process.
	MemorySeed int64 `env:"COUNTER_MEMORY_SEED" envDefault:"0"`
}

// Load reads Config from the environment and validates it.
func Load() (*Config, error) {
	var cfg Config
	if err := env.Parse(&cfg); err != nil {
		return nil, fmt.Errorf("env.Parse: %w", err)
	}
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return &cfg, nil
}

func (c *Config) Validate() error {
	if _, err := counter.ParseMode(c.Mode); err != nil {
		return fmt.Errorf("COUNTER_MODE: %w", err)
	}
	if _, err := zapcore.ParseLevel(c.LogLevel); err != nil {
		return fmt.Errorf("LOG_LEVEL: %w", err)
	}
	if c.MaxTries == 0 {
		return fmt.Errorf("COUNTER_MAX_TRIES must be at least 1")
	}

	switch c.Backend {
	case BackendDatastore:
		if c.Kind == "" {
			return fmt.Errorf("COUNTER_KIND must not be empty")
		}
	case BackendRedis:
		if c.RedisAddr == "" {
			return fmt.Errorf("REDIS_ADDR is required for backend %s", c.Backend)
		}
	case BackendMySQL:
		if c.MySQLDSN == "" {
			return fmt.Errorf("MYSQL_DSN is required for backend %s", c.Backend)
		}
	case BackendMemory:
		if c.MemorySeed < 0 {
			return fmt.Errorf("COUNTER_MEMORY_SEED must not be negative")
		}
	default:
		return fmt.Errorf("COUNTER_BACKEND: unknown backend: %s", c.Backend)
	}
	return nil
}

// SetLogLevel exports level as LOG_LEVEL so that later Loads in this process pick it up.
func SetLogLevel(level string) error {
	if _, err := zapcore.ParseLevel(level); err != nil {
		return fmt.Errorf("LOG_LEVEL: %w", err)
	}
	return os.Setenv("LOG_LEVEL", level)
}
