package config

import (
	"fmt"
	"time"

	"github.com/caarlos0/env/v11"
	"github.com/rs/zerolog/log"
)

var knownWeakSecrets = []string{
	"change-me", "dev-secret-change-me", "secret", "admin", "password",
}

const (
	BackendMemory   = "memory"
	BackendPostgres = "postgres"
	BackendRedis    = "redis"
)

type Config struct {
	Port                   int    `env:"PORT" envDefault:"8080"`
	AdminAPIKey            string `env:"ADMIN_API_KEY"`
	DefaultTTLSeconds      int    `env:"DEFAULT_TTL_SECONDS" envDefault:"900"`
	MaxTTLSeconds          int    `env:"MAX_TTL_SECONDS" envDefault:"86400"`
	AllowReuse             bool   `env:"ALLOW_REUSE" envDefault:"false"`
	StorageBackend         string `env:"STORAGE_BACKEND" envDefault:"memory"`
	DatabaseURL            string `env:"DATABASE_URL"`
	RedisURL               string `env:"REDIS_URL"`
	CleanupIntervalSeconds int    `env:"CLEANUP_INTERVAL_SECONDS" envDefault:"300"`
	LogLevel               string `env:"LOG_LEVEL" envDefault:"info"`
}

func (c *Config) DefaultTTL() time.Duration {
	return time.Duration(c.DefaultTTLSeconds) * time.Second
}

func (c *Config) CleanupInterval() time.Duration {
	return time.Duration(c.CleanupIntervalSeconds) * time.Second
}

func (c *Config) Addr() string {
	return fmt.Sprintf(":%d", c.Port)
}

func (c *Config) Validate() error {
	switch c.StorageBackend {
	case BackendMemory:
	case BackendPostgres:
		if c.DatabaseURL == "" {
			return fmt.Errorf("DATABASE_URL is required when STORAGE_BACKEND=postgres")
		}
	case BackendRedis:
		if c.RedisURL == "" {
			return fmt.Errorf("REDIS_URL is required when STORAGE_BACKEND=redis")
		}
	default:
		return fmt.Errorf("unknown STORAGE_BACKEND %q (expected memory, postgres, or redis)", c.StorageBackend)
	}

	if c.MaxTTLSeconds < 1 {
		return fmt.Errorf("MAX_TTL_SECONDS must be positive")
	}
	if c.DefaultTTLSeconds < 1 || c.DefaultTTLSeconds > c.MaxTTLSeconds {
		return fmt.Errorf("DEFAULT_TTL_SECONDS must be between 1 and MAX_TTL_SECONDS (%d)", c.MaxTTLSeconds)
	}

	if c.AdminAPIKey == "" {
		// Admin endpoints fail closed without a key; warn rather than refuse
		// to start, since public redemption still works.
		log.Warn().Msg("ADMIN_API_KEY is empty: all admin requests will be rejected")
	}
	for _, weak := range knownWeakSecrets {
		if c.AdminAPIKey == weak {
			return fmt.Errorf("ADMIN_API_KEY is a known weak default; set a strong secret (generate with: openssl rand -base64 32)")
		}
	}

	return nil
}

func Load() (*Config, error) {
	var cfg Config
	if err := env.Parse(&cfg); err != nil {
		return nil, fmt.Errorf("failed to parse config: %w", err)
	}
	return &cfg, nil
}
