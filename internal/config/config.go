// Package config holds server settings, their defaults and environment
// overrides.
package config

import (
	"fmt"
	"os"
	"strconv"
	"time"

	"github.com/erazemk/paralibrary/internal/auth"
	"github.com/erazemk/paralibrary/internal/catalog"
	"github.com/erazemk/paralibrary/internal/loan"
)

// Environment variables read by FromEnv.
const (
	EnvAddr          = "PARALIBRARY_ADDR"
	EnvDB            = "PARALIBRARY_DB"
	EnvLog           = "PARALIBRARY_LOG"
	EnvVisibility    = "PARALIBRARY_VISIBILITY"
	EnvLendingPeriod = "PARALIBRARY_LENDING_PERIOD"
	EnvSweepInterval = "PARALIBRARY_SWEEP_INTERVAL"
	EnvTokenTTL      = "PARALIBRARY_TOKEN_TTL"
	EnvOTLPEndpoint  = "PARALIBRARY_OTLP_ENDPOINT"
)

// Config is the server configuration.
type Config struct {
	Addr          string
	DBPath        string
	LogPath       string
	Visibility    catalog.Policy
	LendingPeriod time.Duration
	SweepInterval time.Duration
	TokenTTL      time.Duration
	// OTLPEndpoint enables trace export when set (host:port).
	OTLPEndpoint string
}

// Default returns the built-in configuration.
func Default() Config {
	return Config{
		Addr:          ":8080",
		DBPath:        "paralibrary.sqlite3",
		Visibility:    catalog.DefaultPolicy,
		LendingPeriod: loan.DefaultLendingPeriod,
		SweepInterval: time.Hour,
		TokenTTL:      auth.DefaultTokenTTL,
	}
}

// FromEnv returns the defaults overridden by any PARALIBRARY_* variables.
func FromEnv() (Config, error) {
	return fromLookup(os.LookupEnv)
}

func fromLookup(lookup func(string) (string, bool)) (Config, error) {
	cfg := Default()

	getEnv := func(key, defaultValue string) string {
		if value, exists := lookup(key); exists {
			return value
		}
		return defaultValue
	}

	cfg.Addr = getEnv(EnvAddr, cfg.Addr)
	cfg.DBPath = getEnv(EnvDB, cfg.DBPath)
	cfg.LogPath = getEnv(EnvLog, cfg.LogPath)
	cfg.OTLPEndpoint = getEnv(EnvOTLPEndpoint, cfg.OTLPEndpoint)

	if v, ok := lookup(EnvVisibility); ok {
		p, err := catalog.ParsePolicy(v)
		if err != nil {
			return cfg, fmt.Errorf("%s: %w", EnvVisibility, err)
		}
		cfg.Visibility = p
	}

	durations := []struct {
		key string
		dst *time.Duration
	}{
		{EnvLendingPeriod, &cfg.LendingPeriod},
		{EnvSweepInterval, &cfg.SweepInterval},
		{EnvTokenTTL, &cfg.TokenTTL},
	}
	for _, d := range durations {
		v, ok := lookup(d.key)
		if !ok {
			continue
		}
		parsed, err := ParseDuration(v)
		if err != nil {
			return cfg, fmt.Errorf("%s: %w", d.key, err)
		}
		*d.dst = parsed
	}

	return cfg, cfg.Validate()
}

// ParseDuration accepts Go durations ("36h") and whole days ("14d").
func ParseDuration(s string) (time.Duration, error) {
	if n := len(s); n > 1 && s[n-1] == 'd' {
		days, err := strconv.Atoi(s[:n-1])
		if err != nil {
			return 0, fmt.Errorf("invalid duration %q", s)
		}
		return time.Duration(days) * 24 * time.Hour, nil
	}
	d, err := time.ParseDuration(s)
	if err != nil {
		return 0, fmt.Errorf("invalid duration %q", s)
	}
	return d, nil
}

// Validate checks that every setting is usable.
func (c Config) Validate() error {
	if c.Addr == "" {
		return fmt.Errorf("listen address required")
	}
	if c.DBPath == "" {
		return fmt.Errorf("database path required")
	}
	if _, err := catalog.ParsePolicy(string(c.Visibility)); err != nil {
		return err
	}
	if c.LendingPeriod <= 0 {
		return fmt.Errorf("lending period must be positive, got %s", c.LendingPeriod)
	}
	if c.SweepInterval < 0 {
		return fmt.Errorf("sweep interval must not be negative, got %s", c.SweepInterval)
	}
	if c.TokenTTL <= 0 {
		return fmt.Errorf("token ttl must be positive, got %s", c.TokenTTL)
	}
	return nil
}
