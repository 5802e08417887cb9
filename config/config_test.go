package config

import (
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/guileen/leasepool/health"
)

func writeFile(t *testing.T, dir, name, content string) string {
	t.Helper()
	path := filepath.Join(dir, name)
	require.NoError(t, os.WriteFile(path, []byte(content), 0o600))
	return path
}

func TestDefault(t *testing.T) {
	cfg := Default()
	require.NoError(t, cfg.Validate())

	assert.Equal(t, 5, cfg.Pool.MinSize)
	assert.Equal(t, 20, cfg.Pool.MaxSize)
	assert.Equal(t, 30*time.Second, cfg.Pool.AcquireTimeout.Duration)
	assert.Equal(t, 5*time.Minute, cfg.Pool.IdleTimeout.Duration)
	assert.Equal(t, time.Hour, cfg.Pool.MaxLifetime.Duration)
	assert.Equal(t, health.DefaultUnhealthyUtilization, cfg.Health.UnhealthyUtilization)
	assert.Equal(t, 15*time.Second, cfg.Supervisor.Interval.Duration)
	assert.Empty(t, cfg.Archive.Path)
}

func TestLoadFile(t *testing.T) {
	dir := t.TempDir()

	t.Run("YAML", func(t *testing.T) {
		path := writeFile(t, dir, "pool.yaml", `
pool:
  name: workers
  min_size: 2
  max_size: 8
  acquire_timeout: 250ms
  idle_timeout: 1m
  max_lifetime: 10m
health:
  degraded_utilization: 0.6
  unhealthy_utilization: 0.85
supervisor:
  interval: 2s
  cleanup_expired: false
archive:
  path: /var/lib/leasepool
`)
		cfg := Default()
		require.NoError(t, LoadFile(path, &cfg))
		assert.Equal(t, "workers", cfg.Pool.Name)
		assert.Equal(t, 2, cfg.Pool.MinSize)
		assert.Equal(t, 8, cfg.Pool.MaxSize)
		assert.Equal(t, 250*time.Millisecond, cfg.Pool.AcquireTimeout.Duration)
		assert.Equal(t, 10*time.Minute, cfg.Pool.MaxLifetime.Duration)
		assert.Equal(t, 0.6, cfg.Health.DegradedUtilization)
		assert.Equal(t, 2*time.Second, cfg.Supervisor.Interval.Duration)
		assert.False(t, cfg.Supervisor.CleanupExpired)
		assert.Equal(t, "/var/lib/leasepool", cfg.Archive.Path)
		// untouched sections keep their defaults
		assert.Equal(t, ":8080", cfg.Server.Addr)
	})

	t.Run("TOML", func(t *testing.T) {
		path := writeFile(t, dir, "pool.toml", `
[pool]
min_size = 3
max_size = 6
idle_timeout = "90s"

[server]
addr = "127.0.0.1:9000"
`)
		cfg := Default()
		require.NoError(t, LoadFile(path, &cfg))
		assert.Equal(t, 3, cfg.Pool.MinSize)
		assert.Equal(t, 6, cfg.Pool.MaxSize)
		assert.Equal(t, 90*time.Second, cfg.Pool.IdleTimeout.Duration)
		assert.Equal(t, "127.0.0.1:9000", cfg.Server.Addr)
	})

	t.Run("MissingFileKeepsDefaults", func(t *testing.T) {
		cfg := Default()
		require.NoError(t, LoadFile(filepath.Join(dir, "absent.yaml"), &cfg))
		assert.Equal(t, Default(), cfg)
	})

	t.Run("UnsupportedExtension", func(t *testing.T) {
		path := writeFile(t, dir, "pool.ini", "min_size=1")
		cfg := Default()
		assert.Error(t, LoadFile(path, &cfg))
	})

	t.Run("BadDuration", func(t *testing.T) {
		path := writeFile(t, dir, "bad.yaml", "pool:\n  idle_timeout: soon\n")
		cfg := Default()
		assert.Error(t, LoadFile(path, &cfg))
	})
}

func TestApplyEnv(t *testing.T) {
	t.Run("Overrides", func(t *testing.T) {
		t.Setenv(EnvMinSize, "4")
		t.Setenv(EnvMaxSize, "12")
		t.Setenv(EnvAcquireTimeout, "2s")
		t.Setenv(EnvUnhealthy, "0.95")
		t.Setenv(EnvCleanupExpired, "false")
		t.Setenv(EnvArchivePath, "/tmp/archive")

		cfg := Default()
		require.NoError(t, ApplyEnv(&cfg))
		assert.Equal(t, 4, cfg.Pool.MinSize)
		assert.Equal(t, 12, cfg.Pool.MaxSize)
		assert.Equal(t, 2*time.Second, cfg.Pool.AcquireTimeout.Duration)
		assert.Equal(t, 0.95, cfg.Health.UnhealthyUtilization)
		assert.False(t, cfg.Supervisor.CleanupExpired)
		assert.Equal(t, "/tmp/archive", cfg.Archive.Path)
	})

	t.Run("MalformedValue", func(t *testing.T) {
		t.Setenv(EnvMaxSize, "many")
		cfg := Default()
		assert.Error(t, ApplyEnv(&cfg))
	})
}

func TestLoad(t *testing.T) {
	dir := t.TempDir()

	t.Run("EnvBeatsFile", func(t *testing.T) {
		path := writeFile(t, dir, "load.yaml", "pool:\n  min_size: 2\n  max_size: 3\n")
		t.Setenv(EnvMaxSize, "7")

		cfg, err := Load(path)
		require.NoError(t, err)
		assert.Equal(t, 2, cfg.Pool.MinSize)
		assert.Equal(t, 7, cfg.Pool.MaxSize)
	})

	t.Run("InvalidPool", func(t *testing.T) {
		path := writeFile(t, dir, "invalid.yaml", "pool:\n  min_size: 9\n  max_size: 3\n")
		_, err := Load(path)
		assert.Error(t, err)
	})

	t.Run("InvalidThresholds", func(t *testing.T) {
		path := writeFile(t, dir, "thresholds.yaml", "health:\n  degraded_utilization: 0.95\n  unhealthy_utilization: 0.9\n")
		_, err := Load(path)
		assert.ErrorIs(t, err, health.ErrInvalidThresholds)
	})

	t.Run("SubSecondInterval", func(t *testing.T) {
		for _, interval := range []string{"200ms", "1500ms"} {
			path := writeFile(t, dir, "interval.yaml", "supervisor:\n  interval: "+interval+"\n")
			_, err := Load(path)
			assert.ErrorContains(t, err, "supervisor.interval", interval)
		}
	})

	t.Run("DotEnv", func(t *testing.T) {
		envDir := t.TempDir()
		writeFile(t, envDir, ".env", EnvPoolName+"=from-dotenv\n")
		t.Chdir(envDir)
		t.Cleanup(func() { os.Unsetenv(EnvPoolName) })

		cfg, err := Load("")
		require.NoError(t, err)
		assert.Equal(t, "from-dotenv", cfg.Pool.Name)
	})
}

func TestPoolConfigConversion(t *testing.T) {
	cfg := Default()
	pc := cfg.PoolConfig()
	assert.Equal(t, cfg.Pool.MinSize, pc.MinSize)
	assert.Equal(t, cfg.Pool.MaxLifetime.Duration, pc.MaxLifetime)
	assert.NoError(t, pc.Validate())
}
