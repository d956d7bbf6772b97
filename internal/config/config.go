// Package config loads server settings from the environment.
package config

import (
	"errors"
	"fmt"
	"os"
	"time"

	"github.com/caarlos0/env/v11"
	"github.com/joho/godotenv"

	"github.com/ryandielhenn/proxycache/pkg/kv"
)

var (
	// ErrParsingConfig is returned when environment variables cannot be
	// parsed into Config.
	ErrParsingConfig = errors.New("config: failed to parse environment")

	// ErrInvalidConfig is returned when a parsed value is out of range.
	ErrInvalidConfig = errors.New("config: invalid value")
)

// Config holds everything cmd/server needs to boot a cache node.
type Config struct {
	NodeID          string        `env:"SELF_ID"`
	Addr            string        `env:"ADDR" envDefault:":8080"`
	ShutdownTimeout time.Duration `env:"SHUTDOWN_TIMEOUT" envDefault:"10s"`

	CapacityBytes int    `env:"CACHE_CAPACITY_BYTES" envDefault:"67108864"`
	Buckets       int    `env:"CACHE_BUCKETS" envDefault:"1024"`
	Shards        int    `env:"CACHE_SHARDS" envDefault:"1"`
	Hash          string `env:"CACHE_HASH" envDefault:"sum37"`

	LogLevel       string `env:"LOG_LEVEL" envDefault:"info"`
	LogDevelopment bool   `env:"LOG_DEVELOPMENT"`

	Version string `env:"BUILD_VERSION" envDefault:"dev"`
	GitSHA  string `env:"BUILD_GIT_SHA" envDefault:"unknown"`
}

// Load reads the given .env files (or ./.env when none are named; a missing
// default file is ignored), then parses and validates the environment. An
// unset SELF_ID falls back to the hostname.
func Load(files ...string) (Config, error) {
	if len(files) == 0 {
		_ = godotenv.Load()
	} else if err := godotenv.Load(files...); err != nil {
		return Config{}, fmt.Errorf("loading env files: %w", err)
	}

	var cfg Config
	if err := env.Parse(&cfg); err != nil {
		return Config{}, errors.Join(ErrParsingConfig, err)
	}
	if cfg.NodeID == "" {
		cfg.NodeID, _ = os.Hostname()
	}
	if err := cfg.Validate(); err != nil {
		return Config{}, err
	}
	return cfg, nil
}

// Validate checks value ranges.
func (c Config) Validate() error {
	var errs []error
	if c.CapacityBytes <= 0 {
		errs = append(errs, fmt.Errorf("%w: CACHE_CAPACITY_BYTES must be positive, got %d", ErrInvalidConfig, c.CapacityBytes))
	}
	if c.Buckets <= 0 {
		errs = append(errs, fmt.Errorf("%w: CACHE_BUCKETS must be positive, got %d", ErrInvalidConfig, c.Buckets))
	}
	if c.Shards <= 0 {
		errs = append(errs, fmt.Errorf("%w: CACHE_SHARDS must be positive, got %d", ErrInvalidConfig, c.Shards))
	} else if c.CapacityBytes > 0 && c.CapacityBytes < c.Shards {
		errs = append(errs, fmt.Errorf("%w: CACHE_CAPACITY_BYTES %d cannot be split over %d shards", ErrInvalidConfig, c.CapacityBytes, c.Shards))
	}
	if _, ok := kv.HasherByName(c.Hash); !ok {
		errs = append(errs, fmt.Errorf("%w: unknown CACHE_HASH %q", ErrInvalidConfig, c.Hash))
	}
	if c.ShutdownTimeout < 0 {
		errs = append(errs, fmt.Errorf("%w: SHUTDOWN_TIMEOUT must not be negative", ErrInvalidConfig))
	}
	return errors.Join(errs...)
}
