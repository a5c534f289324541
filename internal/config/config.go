package config

import (
	"errors"
	"fmt"
	"time"

	"github.com/BurntSushi/toml"
	"github.com/caarlos0/env/v11"
	"github.com/joho/godotenv"
)

const (
	DriverPostgres = "postgres"
	DriverRedis    = "redis"
	DriverMemory   = "memory"
)

var (
	ErrParsingConfig = errors.New("failed to parse environment variables into config")
	ErrInvalidConfig = errors.New("invalid configuration")
)

// Config is built once at startup and passed to every component that needs it.
type Config struct {
	AppEnv   string `env:"APP_ENV" envDefault:"development"`
	LogLevel string `env:"LOG_LEVEL" envDefault:"info"`
	Port     int    `env:"PORT" envDefault:"8080"`

	StorageDriver string `env:"STORAGE_DRIVER" envDefault:"postgres"`
	CacheDriver   string `env:"CACHE_DRIVER" envDefault:"redis"`

	Database DatabaseConfig
	Redis    RedisConfig
	Cache    CacheConfig
	Lock     LockConfig
	Auth     AuthConfig
	Jobs     JobsConfig

	ConfigFile string `env:"CONFIG_FILE"`
	// CatalogFile seeds the plan catalog when the memory storage driver is used.
	CatalogFile string `env:"CATALOG_FILE"`

	ShutdownTimeout time.Duration `env:"SHUTDOWN_TIMEOUT" envDefault:"15s"`
	SwaggerEnabled  bool          `env:"SWAGGER_ENABLED" envDefault:"true"`
}

type DatabaseConfig struct {
	URL             string        `env:"DATABASE_URL"`
	MaxConns        int32         `env:"DATABASE_MAX_CONNS" envDefault:"10"`
	MinConns        int32         `env:"DATABASE_MIN_CONNS" envDefault:"2"`
	RetryAttempts   int           `env:"DATABASE_RETRY_ATTEMPTS" envDefault:"3"`
	RetryInterval   time.Duration `env:"DATABASE_RETRY_INTERVAL" envDefault:"2s"`
	MigrateOnStart  bool          `env:"DATABASE_MIGRATE_ON_START" envDefault:"true"`
	MigrationsTable string        `env:"DATABASE_MIGRATIONS_TABLE" envDefault:"schema_migrations"`
}

type RedisConfig struct {
	URL            string        `env:"REDIS_URL" envDefault:"redis://localhost:6379/0"`
	KeyPrefix      string        `env:"REDIS_KEY_PREFIX" envDefault:"subkeeper"`
	ConnectTimeout time.Duration `env:"REDIS_CONNECT_TIMEOUT" envDefault:"10s"`
}

// CacheConfig holds per-key-kind TTLs in seconds.
type CacheConfig struct {
	SubscriptionListTTLSeconds   int `env:"CACHE_SUBSCRIPTION_LIST_TTL_SECONDS" envDefault:"300" toml:"subscription_list_ttl_seconds"`
	ActiveSubscriptionTTLSeconds int `env:"CACHE_ACTIVE_SUBSCRIPTION_TTL_SECONDS" envDefault:"600" toml:"active_subscription_ttl_seconds"`
	PlanDetailTTLSeconds         int `env:"CACHE_PLAN_DETAIL_TTL_SECONDS" envDefault:"900" toml:"plan_detail_ttl_seconds"`
	PlanListTTLSeconds           int `env:"CACHE_PLAN_LIST_TTL_SECONDS" envDefault:"900" toml:"plan_list_ttl_seconds"`
	MaxEntries                   int `env:"CACHE_MAX_ENTRIES" envDefault:"10000" toml:"max_entries"`

	// LoadTimeout bounds one store read shared by concurrent cache misses.
	LoadTimeout time.Duration `env:"CACHE_LOAD_TIMEOUT" envDefault:"30s" toml:"-"`
}

type LockConfig struct {
	TimeoutMs int `env:"LOCK_TIMEOUT_MS" envDefault:"5000" toml:"lock_timeout_ms"`
}

type AuthConfig struct {
	JWTSecret           string `env:"JWT_SECRET"`
	JWKSURL             string `env:"JWKS_URL"`
	CatalogWebhookToken string `env:"CATALOG_WEBHOOK_TOKEN"`
}

type JobsConfig struct {
	Enabled             bool          `env:"JOBS_ENABLED" envDefault:"true"`
	CachePurgeInterval  time.Duration `env:"JOBS_CACHE_PURGE_INTERVAL" envDefault:"1m"`
	InvariantAuditEvery time.Duration `env:"JOBS_INVARIANT_AUDIT_INTERVAL" envDefault:"10m"`
	CatalogWarmEvery    time.Duration `env:"JOBS_CATALOG_WARM_INTERVAL" envDefault:"5m"`
}

// fileOverlay is the subset of settings a TOML file may override.
type fileOverlay struct {
	Cache *CacheConfig `toml:"cache"`
	Lock  *LockConfig  `toml:"lock"`
}

// Load reads .env (if present), the environment and the optional CONFIG_FILE overlay.
func Load() (*Config, error) {
	// The .env file is optional.
	_ = godotenv.Load()

	cfg := &Config{}
	if err := env.Parse(cfg); err != nil {
		return nil, errors.Join(ErrParsingConfig, err)
	}

	if cfg.ConfigFile != "" {
		if err := cfg.applyFile(cfg.ConfigFile); err != nil {
			return nil, err
		}
	}

	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return cfg, nil
}

func (c *Config) applyFile(filename string) error {
	var overlay fileOverlay
	if _, err := toml.DecodeFile(filename, &overlay); err != nil {
		return fmt.Errorf("failed to load config file: %w", err)
	}
	if o := overlay.Cache; o != nil {
		if o.SubscriptionListTTLSeconds > 0 {
			c.Cache.SubscriptionListTTLSeconds = o.SubscriptionListTTLSeconds
		}
		if o.ActiveSubscriptionTTLSeconds > 0 {
			c.Cache.ActiveSubscriptionTTLSeconds = o.ActiveSubscriptionTTLSeconds
		}
		if o.PlanDetailTTLSeconds > 0 {
			c.Cache.PlanDetailTTLSeconds = o.PlanDetailTTLSeconds
		}
		if o.PlanListTTLSeconds > 0 {
			c.Cache.PlanListTTLSeconds = o.PlanListTTLSeconds
		}
		if o.MaxEntries > 0 {
			c.Cache.MaxEntries = o.MaxEntries
		}
	}
	if overlay.Lock != nil && overlay.Lock.TimeoutMs > 0 {
		c.Lock.TimeoutMs = overlay.Lock.TimeoutMs
	}
	return nil
}

// Validate rejects settings the service cannot run with.
func (c *Config) Validate() error {
	var errs []error

	switch c.StorageDriver {
	case DriverPostgres:
		if c.Database.URL == "" {
			errs = append(errs, errors.New("DATABASE_URL is required for the postgres storage driver"))
		}
	case DriverMemory:
	default:
		errs = append(errs, fmt.Errorf("unknown storage driver %q", c.StorageDriver))
	}

	switch c.CacheDriver {
	case DriverRedis, DriverMemory:
	default:
		errs = append(errs, fmt.Errorf("unknown cache driver %q", c.CacheDriver))
	}

	if c.Production() {
		if c.StorageDriver == DriverMemory {
			errs = append(errs, errors.New("the memory storage driver is not allowed in production"))
		}
		if c.CacheDriver == DriverMemory {
			errs = append(errs, errors.New("the memory cache driver is not allowed in production"))
		}
	}

	for name, v := range map[string]int{
		"subscription list TTL":   c.Cache.SubscriptionListTTLSeconds,
		"active subscription TTL": c.Cache.ActiveSubscriptionTTLSeconds,
		"plan detail TTL":         c.Cache.PlanDetailTTLSeconds,
		"plan list TTL":           c.Cache.PlanListTTLSeconds,
		"lock timeout":            c.Lock.TimeoutMs,
	} {
		if v <= 0 {
			errs = append(errs, fmt.Errorf("%s must be positive, got %d", name, v))
		}
	}

	if len(errs) > 0 {
		return errors.Join(append([]error{ErrInvalidConfig}, errs...)...)
	}
	return nil
}

func (c CacheConfig) SubscriptionListTTL() time.Duration {
	return time.Duration(c.SubscriptionListTTLSeconds) * time.Second
}

func (c CacheConfig) ActiveSubscriptionTTL() time.Duration {
	return time.Duration(c.ActiveSubscriptionTTLSeconds) * time.Second
}

func (c CacheConfig) PlanDetailTTL() time.Duration {
	return time.Duration(c.PlanDetailTTLSeconds) * time.Second
}

func (c CacheConfig) PlanListTTL() time.Duration {
	return time.Duration(c.PlanListTTLSeconds) * time.Second
}

func (l LockConfig) Timeout() time.Duration {
	return time.Duration(l.TimeoutMs) * time.Millisecond
}

func (c *Config) Production() bool {
	return c.AppEnv == "production" || c.AppEnv == "prod"
}
