// Package config holds the process configuration of the appshell binary.
package config

import (
	"errors"
	"fmt"
	"net"
	"strings"

	"github.com/kelseyhightower/envconfig"
	"github.com/robfig/cron/v3"
)

// Prefix is the environment variable prefix, e.g. APPSHELL_ADDR.
const Prefix = "APPSHELL"

// Static errors for configuration validation
var (
	ErrInvalidAddr          = errors.New("invalid listen address")
	ErrInvalidSchedule      = errors.New("invalid reconcile schedule")
	ErrInvalidInitialPath   = errors.New("initial path must start with /")
	ErrWatchWithoutManifest = errors.New("watch requires a manifest")
)

// Config holds all process configuration.
type Config struct {
	Addr              string `envconfig:"ADDR" default:":8080"`
	Manifest          string `envconfig:"MANIFEST"`
	Watch             bool   `envconfig:"WATCH" default:"false"`
	ReconcileSchedule string `envconfig:"RECONCILE_SCHEDULE"`
	Start             bool   `envconfig:"START" default:"true"`
	LogLevel          string `envconfig:"LOG_LEVEL" default:"info"`
	LogDev            bool   `envconfig:"LOG_DEV" default:"false"`
	InitialPath       string `envconfig:"INITIAL_PATH" default:"/"`
}

// Load loads configuration from APPSHELL_* environment variables.
func Load() (*Config, error) {
	var cfg Config
	if err := envconfig.Process(Prefix, &cfg); err != nil {
		return nil, fmt.Errorf("failed to load config: %w", err)
	}
	return &cfg, nil
}

// Default returns default configuration.
func Default() *Config {
	return &Config{
		Addr:        ":8080",
		Start:       true,
		LogLevel:    "info",
		InitialPath: "/",
	}
}

// Validate checks the values Load cannot check by type alone.
func (c *Config) Validate() error {
	var errs []error
	if _, _, err := net.SplitHostPort(c.Addr); err != nil {
		errs = append(errs, fmt.Errorf("%w %q: %w", ErrInvalidAddr, c.Addr, err))
	}
	if c.ReconcileSchedule != "" {
		if _, err := cron.ParseStandard(c.ReconcileSchedule); err != nil {
			errs = append(errs, fmt.Errorf("%w %q: %w", ErrInvalidSchedule, c.ReconcileSchedule, err))
		}
	}
	if !strings.HasPrefix(c.InitialPath, "/") {
		errs = append(errs, fmt.Errorf("%w: %q", ErrInvalidInitialPath, c.InitialPath))
	}
	if c.Watch && c.Manifest == "" {
		errs = append(errs, ErrWatchWithoutManifest)
	}
	return errors.Join(errs...)
}

// Usage prints the recognized environment variables.
func Usage() error {
	var cfg Config
	return envconfig.Usage(Prefix, &cfg)
}
