package config

import (
	"fmt"
	"strings"
	"time"

	"github.com/kelseyhightower/envconfig"
)

const (
	// EnvPrefix namespaces every environment variable the service reads.
	EnvPrefix = "faxpilot"

	AppEnvDev  = "dev"
	AppEnvProd = "prod"
)

type Config struct {
	App       AppConfig
	Service   ServiceConfig
	DB        DBConfig
	Redis     RedisConfig
	JWT       JWTConfig
	Rating    RatingConfig
	Lookup    LookupConfig
	Notifyre  NotifyreConfig
	Freemium  FreemiumConfig
	Webhooks  WebhooksConfig
	RateLimit RateLimitConfig
	Cron      CronConfig
}

func Load() (*Config, error) {
	var cfg Config
	if err := envconfig.Process(EnvPrefix, &cfg); err != nil {
		return nil, fmt.Errorf("parsing config: %w", err)
	}
	return &cfg, nil
}

type AppConfig struct {
	Env          string `envconfig:"FAXPILOT_APP_ENV" required:"true"`
	Port         string `envconfig:"FAXPILOT_APP_PORT" required:"true"`
	LogLevel     string `envconfig:"FAXPILOT_LOG_LEVEL" default:"info"`
	LogWarnStack bool   `envconfig:"FAXPILOT_LOG_WARN_STACK" default:"false"`

	// InternalAPIKey guards service-to-service surfaces such as manual
	// credit grants. Those routes reject everything when it is unset.
	InternalAPIKey string `envconfig:"FAXPILOT_INTERNAL_API_KEY"`
}

func (a AppConfig) IsDev() bool {
	return strings.EqualFold(a.Env, AppEnvDev)
}

func (a AppConfig) IsProd() bool {
	return strings.EqualFold(a.Env, AppEnvProd)
}

type ServiceConfig struct {
	Kind string `envconfig:"FAXPILOT_SERVICE_KIND" default:"api"`
}

type DBConfig struct {
	DSN string `envconfig:"FAXPILOT_DB_DSN" required:"true"`

	MaxOpenConns    int           `envconfig:"FAXPILOT_DB_MAX_OPEN_CONNS" default:"20"`
	MaxIdleConns    int           `envconfig:"FAXPILOT_DB_MAX_IDLE_CONNS" default:"10"`
	ConnMaxLifetime time.Duration `envconfig:"FAXPILOT_DB_CONN_MAX_LIFETIME" default:"1h"`
	ConnMaxIdleTime time.Duration `envconfig:"FAXPILOT_DB_CONN_MAX_IDLE_TIME" default:"10m"`

	AutoMigrate bool `envconfig:"FAXPILOT_DB_AUTO_MIGRATE" default:"false"`
}

type RedisConfig struct {
	URL          string        `envconfig:"FAXPILOT_REDIS_URL" required:"true"`
	Address      string        `envconfig:"FAXPILOT_REDIS_ADDR"`
	Password     string        `envconfig:"FAXPILOT_REDIS_PASSWORD"`
	DB           int           `envconfig:"FAXPILOT_REDIS_DB" default:"0"`
	PoolSize     int           `envconfig:"FAXPILOT_REDIS_POOL_SIZE" default:"10"`
	MinIdleConns int           `envconfig:"FAXPILOT_REDIS_MIN_IDLE_CONNS" default:"2"`
	DialTimeout  time.Duration `envconfig:"FAXPILOT_REDIS_DIAL_TIMEOUT" default:"5s"`
	ReadTimeout  time.Duration `envconfig:"FAXPILOT_REDIS_READ_TIMEOUT" default:"5s"`
	WriteTimeout time.Duration `envconfig:"FAXPILOT_REDIS_WRITE_TIMEOUT" default:"5s"`
}

type JWTConfig struct {
	Secret string `envconfig:"FAXPILOT_JWT_SECRET" required:"true"`
	Issuer string `envconfig:"FAXPILOT_JWT_ISSUER" required:"true"`
}

// RatingConfig drives destination rating and the USD-to-credit conversion.
type RatingConfig struct {
	// TablePath points at the versioned rate-table artifact
	// ({"prefixes":[...],"rates":[...]}, rates in micro-USD per minute).
	TablePath string `envconfig:"FAXPILOT_RATING_TABLE_PATH"`

	// CreditValueMicroUSD is the value of one credit in micro-USD. The
	// per-page cost of a destination is ceil(rate / CreditValueMicroUSD),
	// floored at one credit.
	CreditValueMicroUSD int64 `envconfig:"FAXPILOT_RATING_CREDIT_VALUE_MICRO_USD" default:"70000"`

	// DefaultCreditsPerPage is charged when rating cannot resolve a
	// destination (missing table entry, lookup outage, no API key).
	DefaultCreditsPerPage int `envconfig:"FAXPILOT_RATING_DEFAULT_CREDITS_PER_PAGE" default:"1"`
}

type LookupConfig struct {
	APIKey  string        `envconfig:"FAXPILOT_LOOKUP_API_KEY"`
	BaseURL string        `envconfig:"FAXPILOT_LOOKUP_BASE_URL" default:"https://api.telnyx.com"`
	Timeout time.Duration `envconfig:"FAXPILOT_LOOKUP_TIMEOUT" default:"5s"`
	// CacheTTL bounds the durable lookup-cache tier.
	CacheTTL time.Duration `envconfig:"FAXPILOT_LOOKUP_CACHE_TTL" default:"24h"`
	// LocalCacheTTL bounds the in-process tier consulted when Redis misses.
	LocalCacheTTL time.Duration `envconfig:"FAXPILOT_LOOKUP_LOCAL_CACHE_TTL" default:"5m"`
}

type NotifyreConfig struct {
	APIKey  string        `envconfig:"FAXPILOT_NOTIFYRE_API_KEY"`
	BaseURL string        `envconfig:"FAXPILOT_NOTIFYRE_BASE_URL" default:"https://api.notifyre.com"`
	Timeout time.Duration `envconfig:"FAXPILOT_NOTIFYRE_TIMEOUT" default:"30s"`
}

// RateLimitConfig throttles fax submissions per user. A zero window or
// limit disables the middleware.
type RateLimitConfig struct {
	SendWindow time.Duration `envconfig:"FAXPILOT_RATE_LIMIT_SEND_WINDOW" default:"1m"`
	SendLimit  int           `envconfig:"FAXPILOT_RATE_LIMIT_SEND_LIMIT" default:"30"`
}

type FreemiumConfig struct {
	Credits  int           `envconfig:"FAXPILOT_FREEMIUM_CREDITS" default:"5"`
	Validity time.Duration `envconfig:"FAXPILOT_FREEMIUM_VALIDITY" default:"720h"`
}

type WebhooksConfig struct {
	NotifyreSigningSecret string `envconfig:"FAXPILOT_WEBHOOK_NOTIFYRE_SECRET"`
	// TelnyxPublicKey is the base64 Ed25519 key Telnyx publishes for
	// webhook signature verification.
	TelnyxPublicKey string        `envconfig:"FAXPILOT_WEBHOOK_TELNYX_PUBLIC_KEY"`
	IdempotencyTTL  time.Duration `envconfig:"FAXPILOT_WEBHOOK_IDEMPOTENCY_TTL" default:"168h"`
}

type CronConfig struct {
	ReconcileInterval time.Duration `envconfig:"FAXPILOT_CRON_RECONCILE_INTERVAL" default:"10m"`
	ReconcileLimit    int           `envconfig:"FAXPILOT_CRON_RECONCILE_LIMIT" default:"250"`
	ReconcileLookback time.Duration `envconfig:"FAXPILOT_CRON_RECONCILE_LOOKBACK" default:"72h"`
	MetricsPort       string        `envconfig:"FAXPILOT_CRON_METRICS_PORT" default:"9090"`
}
