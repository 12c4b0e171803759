// Package daemon manages the karma server lifecycle and configuration.
package daemon

import (
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/BurntSushi/toml"
)

// Config holds all server configuration.
type Config struct {
	Database   DatabaseConfig   `toml:"database"`
	API        APIConfig        `toml:"api"`
	Ledger     LedgerConfig     `toml:"ledger"`
	Sweep      SweepConfig      `toml:"sweep"`
	Challenges ChallengesConfig `toml:"challenges"`
	Catalog    CatalogConfig    `toml:"catalog"`
	Logging    LoggingConfig    `toml:"logging"`
	Telemetry  TelemetryConfig  `toml:"telemetry"`
}

// DatabaseConfig selects the store. Driver is "sqlite" or "postgres".
type DatabaseConfig struct {
	Driver       string `toml:"driver"`
	DSN          string `toml:"dsn"`
	Dir          string `toml:"dir"` // sqlite data directory
	MaxOpenConns int    `toml:"max_open_conns"`
}

// APIConfig controls the HTTP API server.
type APIConfig struct {
	Host          string  `toml:"host"`
	Port          int     `toml:"port"`
	RatePerSecond float64 `toml:"rate_per_second"` // per user, activity submissions
	Burst         int     `toml:"burst"`
	Timeout       string  `toml:"timeout"`
}

// LedgerConfig tunes RecordActivity.
type LedgerConfig struct {
	MaxAttempts    int    `toml:"max_attempts"`
	RetryInitial   string `toml:"retry_initial"`
	RetryMax       string `toml:"retry_max"`
	BackfillPolicy string `toml:"backfill_policy"` // "reset" or "ignore"
}

// SweepConfig schedules the stale streak sweep and health checks.
type SweepConfig struct {
	Enabled        bool   `toml:"enabled"`
	Interval       string `toml:"interval"`
	HealthInterval string `toml:"health_interval"`
}

// ChallengesConfig sets how many daily and weekly challenges each user
// holds. Zero turns a period off.
type ChallengesConfig struct {
	Daily  int `toml:"daily"`
	Weekly int `toml:"weekly"`
}

// CatalogConfig points at an optional TOML file merged over the built-in
// activities, badges, milestones and levels.
type CatalogConfig struct {
	File string `toml:"file"`
}

// LoggingConfig controls logging behavior.
type LoggingConfig struct {
	Level      string `toml:"level"`
	File       string `toml:"file"`
	MaxSizeMB  int    `toml:"max_size_mb"`
	MaxFiles   int    `toml:"max_files"`
	MaxAgeDays int    `toml:"max_age_days"`
}

// TelemetryConfig controls metrics exposure.
type TelemetryConfig struct {
	Prometheus bool `toml:"prometheus"`
}

// DefaultConfig returns a sensible default configuration.
func DefaultConfig() Config {
	homeDir := karmaHome()
	return Config{
		Database: DatabaseConfig{
			Driver:       "sqlite",
			Dir:          homeDir,
			MaxOpenConns: 10,
		},
		API: APIConfig{
			Host:          "127.0.0.1",
			Port:          7420,
			RatePerSecond: 2,
			Burst:         10,
			Timeout:       "30s",
		},
		Ledger: LedgerConfig{
			MaxAttempts:    5,
			RetryInitial:   "20ms",
			RetryMax:       "1s",
			BackfillPolicy: "reset",
		},
		Sweep: SweepConfig{
			Enabled:        true,
			Interval:       "1h",
			HealthInterval: "1m",
		},
		Challenges: ChallengesConfig{
			Daily:  3,
			Weekly: 2,
		},
		Logging: LoggingConfig{
			Level:      "info",
			File:       filepath.Join(homeDir, "karma.log"),
			MaxSizeMB:  50,
			MaxFiles:   5,
			MaxAgeDays: 28,
		},
		Telemetry: TelemetryConfig{
			Prometheus: true,
		},
	}
}

// LoadConfig reads config from $KARMA_HOME/config.toml, falling back to
// defaults. KARMA_DATABASE_DRIVER and KARMA_DATABASE_DSN override the file.
func LoadConfig() (Config, error) {
	cfg := DefaultConfig()
	path := ConfigPath()

	if _, err := os.Stat(path); err == nil {
		if _, err := toml.DecodeFile(path, &cfg); err != nil {
			return cfg, fmt.Errorf("parse config: %w", err)
		}
	} else if !os.IsNotExist(err) {
		return cfg, fmt.Errorf("stat config: %w", err)
	}

	applyEnv(&cfg)
	return cfg, cfg.Validate()
}

func applyEnv(cfg *Config) {
	if v := os.Getenv("KARMA_DATABASE_DRIVER"); v != "" {
		cfg.Database.Driver = v
	}
	if v := os.Getenv("KARMA_DATABASE_DSN"); v != "" {
		cfg.Database.DSN = v
	}
	if v := os.Getenv("KARMA_LOG_LEVEL"); v != "" {
		cfg.Logging.Level = v
	}
}

// Validate rejects settings the server cannot start with.
func (c Config) Validate() error {
	switch strings.ToLower(c.Database.Driver) {
	case "sqlite", "":
	case "postgres", "postgresql", "pgx":
		if c.Database.DSN == "" {
			return fmt.Errorf("database.dsn is required for postgres")
		}
	default:
		return fmt.Errorf("unknown database.driver %q", c.Database.Driver)
	}
	if c.API.Port < 0 || c.API.Port > 65535 {
		return fmt.Errorf("api.port %d out of range", c.API.Port)
	}
	if c.Ledger.MaxAttempts < 0 {
		return fmt.Errorf("ledger.max_attempts must not be negative")
	}
	if c.Challenges.Daily < 0 || c.Challenges.Weekly < 0 {
		return fmt.Errorf("challenges.daily and challenges.weekly must not be negative")
	}
	for name, v := range map[string]string{
		"api.timeout":           c.API.Timeout,
		"ledger.retry_initial":  c.Ledger.RetryInitial,
		"ledger.retry_max":      c.Ledger.RetryMax,
		"sweep.interval":        c.Sweep.Interval,
		"sweep.health_interval": c.Sweep.HealthInterval,
	} {
		if v == "" {
			continue
		}
		if _, err := time.ParseDuration(v); err != nil {
			return fmt.Errorf("%s: %w", name, err)
		}
	}
	return nil
}

// SaveConfig writes the config to $KARMA_HOME/config.toml.
func SaveConfig(cfg Config) error {
	path := ConfigPath()
	if err := os.MkdirAll(filepath.Dir(path), 0700); err != nil {
		return err
	}

	f, err := os.Create(path)
	if err != nil {
		return err
	}
	defer f.Close()

	encoder := toml.NewEncoder(f)
	return encoder.Encode(cfg)
}

// ConfigPath is the config file location.
func ConfigPath() string {
	return filepath.Join(karmaHome(), "config.toml")
}

// karmaHome returns the karma data directory.
func karmaHome() string {
	if env := os.Getenv("KARMA_HOME"); env != "" {
		return env
	}
	home, _ := os.UserHomeDir()
	return filepath.Join(home, ".karma")
}

// KarmaHome is exported for use by other packages.
func KarmaHome() string {
	return karmaHome()
}

// parseDuration parses a duration string, returning a fallback on error.
func parseDuration(s string, fallback time.Duration) time.Duration {
	if s == "" {
		return fallback
	}
	d, err := time.ParseDuration(s)
	if err != nil {
		return fallback
	}
	return d
}
