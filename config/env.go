package config

import (
	"fmt"
	"os"
	"strconv"
	"time"
)

// Environment variables recognised by ApplyEnv
const (
	EnvPoolName           = "LEASEPOOL_NAME"
	EnvMinSize            = "LEASEPOOL_MIN_SIZE"
	EnvMaxSize            = "LEASEPOOL_MAX_SIZE"
	EnvAcquireTimeout     = "LEASEPOOL_ACQUIRE_TIMEOUT"
	EnvIdleTimeout        = "LEASEPOOL_IDLE_TIMEOUT"
	EnvMaxLifetime        = "LEASEPOOL_MAX_LIFETIME"
	EnvDegraded           = "LEASEPOOL_DEGRADED_UTILIZATION"
	EnvUnhealthy          = "LEASEPOOL_UNHEALTHY_UTILIZATION"
	EnvSupervisorInterval = "LEASEPOOL_SUPERVISOR_INTERVAL"
	EnvCleanupExpired     = "LEASEPOOL_CLEANUP_EXPIRED"
	EnvMaxSamples         = "LEASEPOOL_MAX_SAMPLES"
	EnvAddr               = "LEASEPOOL_ADDR"
	EnvArchivePath        = "LEASEPOOL_ARCHIVE_PATH"
)

// ApplyEnv overrides cfg with any LEASEPOOL_* variables that are set.
// Malformed values are reported rather than ignored.
func ApplyEnv(cfg *Config) error {
	if v := os.Getenv(EnvPoolName); v != "" {
		cfg.Pool.Name = v
	}
	if err := envInt(EnvMinSize, &cfg.Pool.MinSize); err != nil {
		return err
	}
	if err := envInt(EnvMaxSize, &cfg.Pool.MaxSize); err != nil {
		return err
	}
	if err := envDuration(EnvAcquireTimeout, &cfg.Pool.AcquireTimeout.Duration); err != nil {
		return err
	}
	if err := envDuration(EnvIdleTimeout, &cfg.Pool.IdleTimeout.Duration); err != nil {
		return err
	}
	if err := envDuration(EnvMaxLifetime, &cfg.Pool.MaxLifetime.Duration); err != nil {
		return err
	}
	if err := envFloat(EnvDegraded, &cfg.Health.DegradedUtilization); err != nil {
		return err
	}
	if err := envFloat(EnvUnhealthy, &cfg.Health.UnhealthyUtilization); err != nil {
		return err
	}
	if err := envDuration(EnvSupervisorInterval, &cfg.Supervisor.Interval.Duration); err != nil {
		return err
	}
	if v := os.Getenv(EnvCleanupExpired); v != "" {
		b, err := strconv.ParseBool(v)
		if err != nil {
			return fmt.Errorf("%s: %w", EnvCleanupExpired, err)
		}
		cfg.Supervisor.CleanupExpired = b
	}
	if err := envInt(EnvMaxSamples, &cfg.Supervisor.MaxSamples); err != nil {
		return err
	}
	if v := os.Getenv(EnvAddr); v != "" {
		cfg.Server.Addr = v
	}
	if v := os.Getenv(EnvArchivePath); v != "" {
		cfg.Archive.Path = v
	}
	return nil
}

func envInt(key string, dst *int) error {
	v := os.Getenv(key)
	if v == "" {
		return nil
	}
	n, err := strconv.Atoi(v)
	if err != nil {
		return fmt.Errorf("%s: %w", key, err)
	}
	*dst = n
	return nil
}

func envFloat(key string, dst *float64) error {
	v := os.Getenv(key)
	if v == "" {
		return nil
	}
	f, err := strconv.ParseFloat(v, 64)
	if err != nil {
		return fmt.Errorf("%s: %w", key, err)
	}
	*dst = f
	return nil
}

func envDuration(key string, dst *time.Duration) error {
	v := os.Getenv(key)
	if v == "" {
		return nil
	}
	d, err := time.ParseDuration(v)
	if err != nil {
		return fmt.Errorf("%s: %w", key, err)
	}
	*dst = d
	return nil
}
