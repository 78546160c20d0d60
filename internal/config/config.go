// Package config loads CLI defaults from the environment.
package config

import (
	"fmt"

	"github.com/caarlos0/env/v11"
)

// Config holds the environment-provided defaults. Command-line flags
// override every field.
type Config struct {
	Database      string `env:"CATALOGMIGRATE_DB" envDefault:"catalog.db"`
	MigrationsDir string `env:"CATALOGMIGRATE_MIGRATIONS_DIR"`
	LogLevel      string `env:"CATALOGMIGRATE_LOG_LEVEL" envDefault:"info"`
	LogFormat     string `env:"CATALOGMIGRATE_LOG_FORMAT" envDefault:"console"`
}

// Load parses Config from the environment.
func Load() (Config, error) {
	var cfg Config
	if err := ParseEnv(&cfg); err != nil {
		return Config{}, err
	}
	return cfg, nil
}

// ParseEnv loads configuration from environment variables.
func ParseEnv(target any) error {
	if err := env.Parse(target); err != nil {
		return fmt.Errorf("parse env: %w", err)
	}
	return nil
}
