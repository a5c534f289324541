package config

import (
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestLoad_Defaults(t *testing.T) {
	t.Setenv("STORAGE_DRIVER", DriverMemory)
	t.Setenv("CACHE_DRIVER", DriverMemory)

	cfg, err := Load()
	require.NoError(t, err)

	assert.Equal(t, 8080, cfg.Port)
	assert.Equal(t, 300, cfg.Cache.SubscriptionListTTLSeconds)
	assert.Equal(t, 600, cfg.Cache.ActiveSubscriptionTTLSeconds)
	assert.Equal(t, 900, cfg.Cache.PlanDetailTTLSeconds)
	assert.Equal(t, 900, cfg.Cache.PlanListTTLSeconds)
	assert.Equal(t, 5*time.Second, cfg.Lock.Timeout())
	assert.Equal(t, 15*time.Second, cfg.ShutdownTimeout)
	assert.Equal(t, 30*time.Second, cfg.Cache.LoadTimeout)
	assert.True(t, cfg.Jobs.Enabled)
	assert.False(t, cfg.Production())
}

func TestLoad_EnvironmentOverrides(t *testing.T) {
	t.Setenv("STORAGE_DRIVER", DriverPostgres)
	t.Setenv("DATABASE_URL", "postgres://localhost/subkeeper")
	t.Setenv("CACHE_DRIVER", DriverRedis)
	t.Setenv("CACHE_PLAN_LIST_TTL_SECONDS", "60")
	t.Setenv("LOCK_TIMEOUT_MS", "250")
	t.Setenv("JOBS_CACHE_PURGE_INTERVAL", "30s")
	t.Setenv("APP_ENV", "production")

	cfg, err := Load()
	require.NoError(t, err)

	assert.Equal(t, time.Minute, cfg.Cache.PlanListTTL())
	assert.Equal(t, 250*time.Millisecond, cfg.Lock.Timeout())
	assert.Equal(t, 30*time.Second, cfg.Jobs.CachePurgeInterval)
	assert.True(t, cfg.Production())
}

func TestLoad_FileOverlay(t *testing.T) {
	path := filepath.Join(t.TempDir(), "subkeeper.toml")
	require.NoError(t, os.WriteFile(path, []byte(`
[cache]
active_subscription_ttl_seconds = 120
max_entries = 50

[lock]
lock_timeout_ms = 900
`), 0o600))

	t.Setenv("STORAGE_DRIVER", DriverMemory)
	t.Setenv("CACHE_DRIVER", DriverMemory)
	t.Setenv("CONFIG_FILE", path)

	cfg, err := Load()
	require.NoError(t, err)

	assert.Equal(t, 2*time.Minute, cfg.Cache.ActiveSubscriptionTTL())
	assert.Equal(t, 50, cfg.Cache.MaxEntries)
	assert.Equal(t, 900*time.Millisecond, cfg.Lock.Timeout())
	// Unset keys keep the environment value.
	assert.Equal(t, 5*time.Minute, cfg.Cache.SubscriptionListTTL())
}

func TestLoad_MissingConfigFile(t *testing.T) {
	t.Setenv("STORAGE_DRIVER", DriverMemory)
	t.Setenv("CACHE_DRIVER", DriverMemory)
	t.Setenv("CONFIG_FILE", filepath.Join(t.TempDir(), "absent.toml"))

	_, err := Load()
	assert.ErrorContains(t, err, "failed to load config file")
}

func TestValidate(t *testing.T) {
	valid := func() *Config {
		return &Config{
			StorageDriver: DriverPostgres,
			CacheDriver:   DriverRedis,
			Database:      DatabaseConfig{URL: "postgres://localhost/subkeeper"},
			Cache: CacheConfig{
				SubscriptionListTTLSeconds:   1,
				ActiveSubscriptionTTLSeconds: 1,
				PlanDetailTTLSeconds:         1,
				PlanListTTLSeconds:           1,
			},
			Lock: LockConfig{TimeoutMs: 1},
		}
	}

	tests := []struct {
		name    string
		mutate  func(*Config)
		wantErr string
	}{
		{"valid", func(*Config) {}, ""},
		{"postgres without url", func(c *Config) { c.Database.URL = "" }, "DATABASE_URL is required"},
		{"memory without url", func(c *Config) { c.StorageDriver = DriverMemory; c.Database.URL = "" }, ""},
		{"unknown storage", func(c *Config) { c.StorageDriver = "sqlite" }, `unknown storage driver "sqlite"`},
		{"unknown cache", func(c *Config) { c.CacheDriver = "memcached" }, `unknown cache driver "memcached"`},
		{"zero ttl", func(c *Config) { c.Cache.PlanListTTLSeconds = 0 }, "plan list TTL must be positive"},
		{"negative lock timeout", func(c *Config) { c.Lock.TimeoutMs = -5 }, "lock timeout must be positive"},
		{"memory storage in production", func(c *Config) { c.AppEnv = "production"; c.StorageDriver = DriverMemory }, "memory storage driver is not allowed in production"},
		{"memory cache in production", func(c *Config) { c.AppEnv = "prod"; c.CacheDriver = DriverMemory }, "memory cache driver is not allowed in production"},
		{"memory backends outside production", func(c *Config) { c.AppEnv = "staging"; c.StorageDriver = DriverMemory; c.CacheDriver = DriverMemory }, ""},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			cfg := valid()
			tt.mutate(cfg)
			err := cfg.Validate()
			if tt.wantErr == "" {
				assert.NoError(t, err)
				return
			}
			assert.ErrorIs(t, err, ErrInvalidConfig)
			assert.ErrorContains(t, err, tt.wantErr)
		})
	}
}
