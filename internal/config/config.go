package config

import (
	"errors"
	"fmt"
	"os"
	"strconv"
	"time"

	"github.com/joho/godotenv"
)

// Config aggregates runtime configuration for the service.
type Config struct {
	App          AppConfig
	Postgres     PostgresConfig
	Redis        RedisConfig
	Logger       LoggerConfig
	Auth         AuthConfig
	Payment      PaymentConfig
	Quota        QuotaConfig
	Cache        CacheConfig
	RateLimit    RateLimitConfig
	Notification NotificationConfig
}

// AppConfig controls server level behavior.
type AppConfig struct {
	Name                  string
	Env                   string
	Host                  string
	Port                  string
	Version               string
	PublicURL             string
	RequestTimeoutSeconds int
}

// PostgresConfig holds DB connection values.
type PostgresConfig struct {
	DSN            string
	MaxConns       int32
	MinConns       int32
	RunMigrations  bool
	ConnMaxIdleSec int32
	ConnMaxLifeSec int32
}

// RedisConfig holds Redis connection values.
type RedisConfig struct {
	Addr     string
	Password string
	DB       int
}

// LoggerConfig configures logging behavior.
type LoggerConfig struct {
	Level   string
	Format  string
	Service string
}

// AuthConfig defines authentication parameters.
type AuthConfig struct {
	JWTSecret             string
	AccessTokenTTLMinutes int
	BcryptCost            int
	AdminEmail            string
	AdminPassword         string
}

// PaymentConfig configures the checkout gateway and tariffs. Amounts are whole
// currency units.
type PaymentConfig struct {
	GatewayURL               string
	SecretKey                string
	Currency                 string
	BoostAmount              int64
	SubscriptionAmount       int64
	SuccessURL               string
	CancelURL                string
	TimeoutSeconds           int
	ReconcileIntervalSeconds int
	ReconcileGraceSeconds    int
}

// QuotaConfig bounds free usage.
type QuotaConfig struct {
	FreeIssueLimit int
}

// CacheConfig controls read-model caching.
type CacheConfig struct {
	StatsTTLSeconds int
}

// RateLimitConfig throttles checkout creation per principal.
type RateLimitConfig struct {
	IntentsPerMinute int
	IntentBurst      int
}

// NotificationConfig holds stub notification endpoints.
type NotificationConfig struct {
	EmailFrom  string
	WebhookURL string
}

// Load reads configuration from environment variables, applying defaults where possible.
func Load() (*Config, error) {
	_ = godotenv.Load()

	redisDB, err := strconv.Atoi(getEnv("REDIS_DB", "0"))
	if err != nil {
		return nil, fmt.Errorf("invalid REDIS_DB: %w", err)
	}

	maxConns := int32(getEnvAsInt("POSTGRES_MAX_CONNS", 10))
	minConns := int32(getEnvAsInt("POSTGRES_MIN_CONNS", 2))
	runMigrations := getEnvAsBool("POSTGRES_RUN_MIGRATIONS", true)
	connMaxIdle := int32(getEnvAsInt("POSTGRES_CONN_MAX_IDLE_SECONDS", 30))
	connMaxLife := int32(getEnvAsInt("POSTGRES_CONN_MAX_LIFE_SECONDS", 300))

	cfg := &Config{
		App: AppConfig{
			Name:                  getEnv("APP_NAME", "issue-service"),
			Env:                   getEnv("APP_ENV", "development"),
			Host:                  getEnv("APP_HOST", "0.0.0.0"),
			Port:                  getEnv("APP_PORT", "8080"),
			Version:               getEnv("APP_VERSION", "dev"),
			PublicURL:             getEnv("APP_PUBLIC_URL", "http://localhost:8080"),
			RequestTimeoutSeconds: getEnvAsInt("HTTP_REQUEST_TIMEOUT_SECONDS", 30),
		},
		Postgres: PostgresConfig{
			DSN:            os.Getenv("POSTGRES_DSN"),
			MaxConns:       maxConns,
			MinConns:       minConns,
			RunMigrations:  runMigrations,
			ConnMaxIdleSec: connMaxIdle,
			ConnMaxLifeSec: connMaxLife,
		},
		Redis: RedisConfig{
			Addr:     os.Getenv("REDIS_ADDR"),
			Password: os.Getenv("REDIS_PASSWORD"),
			DB:       redisDB,
		},
		Logger: LoggerConfig{
			Level:   getEnv("LOG_LEVEL", "info"),
			Format:  getEnv("LOG_FORMAT", "json"),
			Service: getEnv("APP_NAME", "issue-service"),
		},
		Auth: AuthConfig{
			JWTSecret:             getEnv("AUTH_JWT_SECRET", "dev-secret"),
			AccessTokenTTLMinutes: getEnvAsInt("AUTH_ACCESS_TOKEN_TTL_MINUTES", 60),
			BcryptCost:            getEnvAsInt("AUTH_BCRYPT_COST", 12),
			AdminEmail:            os.Getenv("AUTH_ADMIN_EMAIL"),
			AdminPassword:         os.Getenv("AUTH_ADMIN_PASSWORD"),
		},
		Payment: PaymentConfig{
			GatewayURL:               os.Getenv("PAYMENT_GATEWAY_URL"),
			SecretKey:                os.Getenv("PAYMENT_SECRET_KEY"),
			Currency:                 getEnv("PAYMENT_CURRENCY", "bdt"),
			BoostAmount:              int64(getEnvAsInt("PAYMENT_BOOST_AMOUNT", 100)),
			SubscriptionAmount:       int64(getEnvAsInt("PAYMENT_SUBSCRIPTION_AMOUNT", 1000)),
			SuccessURL:               getEnv("PAYMENT_SUCCESS_URL", "http://localhost:5173/payment-success?session_id={CHECKOUT_SESSION_ID}"),
			CancelURL:                getEnv("PAYMENT_CANCEL_URL", "http://localhost:5173/payment-cancelled"),
			TimeoutSeconds:           getEnvAsInt("PAYMENT_TIMEOUT_SECONDS", 10),
			ReconcileIntervalSeconds: getEnvAsInt("PAYMENT_RECONCILE_INTERVAL_SECONDS", 60),
			ReconcileGraceSeconds:    getEnvAsInt("PAYMENT_RECONCILE_GRACE_SECONDS", 30),
		},
		Quota: QuotaConfig{
			FreeIssueLimit: getEnvAsInt("QUOTA_FREE_ISSUE_LIMIT", 3),
		},
		Cache: CacheConfig{
			StatsTTLSeconds: getEnvAsInt("CACHE_STATS_TTL_SECONDS", 60),
		},
		RateLimit: RateLimitConfig{
			IntentsPerMinute: getEnvAsInt("RATE_LIMIT_INTENTS_PER_MINUTE", 10),
			IntentBurst:      getEnvAsInt("RATE_LIMIT_INTENT_BURST", 3),
		},
		Notification: NotificationConfig{
			EmailFrom:  getEnv("NOTIFY_EMAIL_FROM", "noreply@example.com"),
			WebhookURL: getEnv("NOTIFY_WEBHOOK_URL", ""),
		},
	}

	if err := cfg.validate(); err != nil {
		return nil, err
	}
	return cfg, nil
}

func (c *Config) validate() error {
	if c.Payment.GatewayURL != "" && c.Payment.SecretKey == "" {
		return errors.New("PAYMENT_SECRET_KEY is required when PAYMENT_GATEWAY_URL is set")
	}
	if c.Payment.BoostAmount <= 0 || c.Payment.SubscriptionAmount <= 0 {
		return errors.New("payment amounts must be positive")
	}
	if c.Quota.FreeIssueLimit < 0 {
		return fmt.Errorf("invalid QUOTA_FREE_ISSUE_LIMIT %d", c.Quota.FreeIssueLimit)
	}
	if (c.Auth.AdminEmail == "") != (c.Auth.AdminPassword == "") {
		return errors.New("AUTH_ADMIN_EMAIL and AUTH_ADMIN_PASSWORD must be set together")
	}
	return nil
}

// UseSandbox reports whether checkout runs against the in-process sandbox gateway.
func (p PaymentConfig) UseSandbox() bool {
	return p.GatewayURL == ""
}

// Timeout bounds a single gateway call.
func (p PaymentConfig) Timeout() time.Duration {
	return secondsOr(p.TimeoutSeconds, 10)
}

// ReconcileInterval is the period of the reconciliation worker.
func (p PaymentConfig) ReconcileInterval() time.Duration {
	return secondsOr(p.ReconcileIntervalSeconds, 60)
}

// ReconcileGrace is how old an unapplied entitlement must be before the worker retries it.
func (p PaymentConfig) ReconcileGrace() time.Duration {
	return secondsOr(p.ReconcileGraceSeconds, 30)
}

// StatsTTL is the lifetime of cached statistics.
func (c CacheConfig) StatsTTL() time.Duration {
	return secondsOr(c.StatsTTLSeconds, 60)
}

func secondsOr(seconds, fallback int) time.Duration {
	if seconds <= 0 {
		seconds = fallback
	}
	return time.Duration(seconds) * time.Second
}

// Addr returns the HTTP bind address.
func (a AppConfig) Addr() string {
	return fmt.Sprintf("%s:%s", a.Host, a.Port)
}

// RequestTimeout returns the configured request timeout duration.
func (a AppConfig) RequestTimeout() time.Duration {
	if a.RequestTimeoutSeconds <= 0 {
		return 0
	}
	return time.Duration(a.RequestTimeoutSeconds) * time.Second
}

func getEnv(key, fallback string) string {
	if val := os.Getenv(key); val != "" {
		return val
	}
	return fallback
}

func getEnvAsInt(key string, fallback int) int {
	val := os.Getenv(key)
	if val == "" {
		return fallback
	}
	parsed, err := strconv.Atoi(val)
	if err != nil {
		return fallback
	}
	return parsed
}

func getEnvAsBool(key string, fallback bool) bool {
	val := os.Getenv(key)
	if val == "" {
		return fallback
	}
	parsed, err := strconv.ParseBool(val)
	if err != nil {
		return fallback
	}
	return parsed
}
