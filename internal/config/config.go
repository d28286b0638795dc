// Package config loads server configuration from PTC_* environment variables.
package config

import (
	"errors"
	"fmt"
	"time"

	"github.com/caarlos0/env/v11"

	"github.com/evcraddock/proptech-copilot/internal/db"
)

// Config is the server configuration.
type Config struct {
	DBPath         string        `env:"PTC_DB_PATH"`
	Addr           string        `env:"PTC_ADDR"            envDefault:":8080"`
	BaselinePath   string        `env:"PTC_BASELINE_PATH"   envDefault:"baseline.yaml"`
	DevMode        bool          `env:"PTC_DEV_MODE"`
	StorageTimeout time.Duration `env:"PTC_STORAGE_TIMEOUT" envDefault:"5s"`
	KafkaBrokers   []string      `env:"PTC_KAFKA_BROKERS"   envSeparator:","`
	KafkaTopic     string        `env:"PTC_KAFKA_TOPIC"     envDefault:"ptc.audit"`
	GridFactor     float64       `env:"PTC_GRID_FACTOR"     envDefault:"0.82"`
}

// Load parses the environment and fills in the default database path.
func Load() (*Config, error) {
	var cfg Config
	if err := env.Parse(&cfg); err != nil {
		return nil, fmt.Errorf("parse env: %w", err)
	}
	if cfg.DBPath == "" {
		path, err := db.DefaultPath()
		if err != nil {
			return nil, err
		}
		cfg.DBPath = path
	}
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return &cfg, nil
}

// Validate rejects values the server cannot run with.
func (c *Config) Validate() error {
	var errs []error
	if c.BaselinePath == "" {
		errs = append(errs, errors.New("PTC_BASELINE_PATH is required"))
	}
	if c.StorageTimeout <= 0 {
		errs = append(errs, fmt.Errorf("PTC_STORAGE_TIMEOUT must be positive, got %s", c.StorageTimeout))
	}
	if c.GridFactor <= 0 {
		errs = append(errs, fmt.Errorf("PTC_GRID_FACTOR must be positive, got %v", c.GridFactor))
	}
	return errors.Join(errs...)
}

// EventsEnabled reports whether audit entries should be published to Kafka.
func (c *Config) EventsEnabled() bool {
	return len(c.KafkaBrokers) > 0
}
