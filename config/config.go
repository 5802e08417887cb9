// Package config loads the settings of the lease pool supervisor from an
// optional .env file, a YAML or TOML file, and LEASEPOOL_* environment
// variables, in that order of precedence from lowest to highest.
package config

import (
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/joho/godotenv"
	"github.com/pelletier/go-toml/v2"
	"gopkg.in/yaml.v3"

	"github.com/guileen/leasepool/health"
	"github.com/guileen/leasepool/pool"
	"github.com/guileen/leasepool/supervisor"
)

// Duration is a time.Duration written as a Go duration string in files
type Duration struct {
	time.Duration
}

// UnmarshalText parses strings such as "30s" or "5m"
func (d *Duration) UnmarshalText(text []byte) error {
	parsed, err := time.ParseDuration(string(text))
	if err != nil {
		return fmt.Errorf("invalid duration %q: %w", text, err)
	}
	d.Duration = parsed
	return nil
}

// MarshalText renders the duration as a Go duration string
func (d Duration) MarshalText() ([]byte, error) {
	return []byte(d.Duration.String()), nil
}

// Config is the complete process configuration
type Config struct {
	Pool       PoolConfig       `yaml:"pool" toml:"pool"`
	Health     HealthConfig     `yaml:"health" toml:"health"`
	Supervisor SupervisorConfig `yaml:"supervisor" toml:"supervisor"`
	Server     ServerConfig     `yaml:"server" toml:"server"`
	Archive    ArchiveConfig    `yaml:"archive" toml:"archive"`
}

// PoolConfig mirrors pool.Config with file-friendly durations
type PoolConfig struct {
	Name           string   `yaml:"name" toml:"name"`
	MinSize        int      `yaml:"min_size" toml:"min_size"`
	MaxSize        int      `yaml:"max_size" toml:"max_size"`
	AcquireTimeout Duration `yaml:"acquire_timeout" toml:"acquire_timeout"`
	IdleTimeout    Duration `yaml:"idle_timeout" toml:"idle_timeout"`
	MaxLifetime    Duration `yaml:"max_lifetime" toml:"max_lifetime"`
}

// HealthConfig holds the monitor thresholds
type HealthConfig struct {
	DegradedUtilization  float64 `yaml:"degraded_utilization" toml:"degraded_utilization"`
	UnhealthyUtilization float64 `yaml:"unhealthy_utilization" toml:"unhealthy_utilization"`
	MaxAlerts            int     `yaml:"max_alerts" toml:"max_alerts"`
}

// SupervisorConfig controls the periodic statistics pull
type SupervisorConfig struct {
	Interval       Duration `yaml:"interval" toml:"interval"`
	CleanupExpired bool     `yaml:"cleanup_expired" toml:"cleanup_expired"`
	MaxSamples     int      `yaml:"max_samples" toml:"max_samples"`
}

// ServerConfig controls the HTTP status server
type ServerConfig struct {
	Addr             string `yaml:"addr" toml:"addr"`
	MetricsNamespace string `yaml:"metrics_namespace" toml:"metrics_namespace"`
}

// ArchiveConfig enables the on-disk sample archive when Path is set
type ArchiveConfig struct {
	Path string `yaml:"path" toml:"path"`
}

// Default returns the default configuration
func Default() Config {
	p := pool.DefaultConfig()
	return Config{
		Pool: PoolConfig{
			Name:           "default",
			MinSize:        p.MinSize,
			MaxSize:        p.MaxSize,
			AcquireTimeout: Duration{p.AcquireTimeout},
			IdleTimeout:    Duration{p.IdleTimeout},
			MaxLifetime:    Duration{p.MaxLifetime},
		},
		Health: HealthConfig{
			DegradedUtilization:  health.DefaultDegradedUtilization,
			UnhealthyUtilization: health.DefaultUnhealthyUtilization,
			MaxAlerts:            health.DefaultMaxAlerts,
		},
		Supervisor: SupervisorConfig{
			Interval:       Duration{15 * time.Second},
			CleanupExpired: true,
			MaxSamples:     10000,
		},
		Server: ServerConfig{
			Addr:             ":8080",
			MetricsNamespace: "leasepool",
		},
	}
}

// Load builds the configuration: .env, defaults, the file at path (when it
// exists), environment overrides, then validation.
func Load(path string) (Config, error) {
	if err := godotenv.Load(); err != nil && !errors.Is(err, os.ErrNotExist) {
		return Config{}, fmt.Errorf("loading .env: %w", err)
	}

	cfg := Default()
	if path != "" {
		if err := LoadFile(path, &cfg); err != nil {
			return Config{}, err
		}
	}
	if err := ApplyEnv(&cfg); err != nil {
		return Config{}, err
	}
	if err := cfg.Validate(); err != nil {
		return Config{}, fmt.Errorf("invalid config: %w", err)
	}
	return cfg, nil
}

// LoadFile decodes path into cfg, choosing the format by extension. A
// missing file leaves cfg untouched.
func LoadFile(path string, cfg *Config) error {
	data, err := os.ReadFile(path)
	if err != nil {
		if os.IsNotExist(err) {
			return nil
		}
		return fmt.Errorf("reading config file: %w", err)
	}

	switch ext := strings.ToLower(filepath.Ext(path)); ext {
	case ".yaml", ".yml":
		err = yaml.Unmarshal(data, cfg)
	case ".toml":
		err = toml.Unmarshal(data, cfg)
	default:
		return fmt.Errorf("unsupported config format %q", ext)
	}
	if err != nil {
		return fmt.Errorf("parsing config file: %w", err)
	}
	return nil
}

// Validate checks every section
func (c Config) Validate() error {
	if err := c.PoolConfig().Validate(); err != nil {
		return err
	}
	if _, err := health.NewMonitor(
		health.WithThresholds(c.Health.UnhealthyUtilization, c.Health.DegradedUtilization),
		health.WithMaxAlerts(c.Health.MaxAlerts),
	); err != nil {
		return err
	}
	if err := supervisor.ValidateInterval(c.Supervisor.Interval.Duration); err != nil {
		return fmt.Errorf("supervisor.interval: %w", err)
	}
	if c.Supervisor.MaxSamples < 0 {
		return fmt.Errorf("supervisor.max_samples must not be negative, got %d", c.Supervisor.MaxSamples)
	}
	if c.Server.Addr == "" {
		return errors.New("server.addr is required")
	}
	return nil
}

// PoolConfig converts the pool section into a pool.Config
func (c Config) PoolConfig() pool.Config {
	return pool.Config{
		MinSize:        c.Pool.MinSize,
		MaxSize:        c.Pool.MaxSize,
		AcquireTimeout: c.Pool.AcquireTimeout.Duration,
		IdleTimeout:    c.Pool.IdleTimeout.Duration,
		MaxLifetime:    c.Pool.MaxLifetime.Duration,
	}
}
