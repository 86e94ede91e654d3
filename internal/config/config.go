package config

import (
	"errors"
	"fmt"
	"os"
	"strconv"
	"strings"
	"time"

	"github.com/joho/godotenv"
)

// DevJWTSecret is the fallback signing secret; it is rejected in production.
const DevJWTSecret = "dev-secret"

// Store drivers.
const (
	StoreDriverPostgres = "postgres"
	StoreDriverMongo    = "mongo"
	StoreDriverMemory   = "memory"
)

// Notifier drivers.
const (
	NotifyDriverSMTP    = "smtp"
	NotifyDriverWebhook = "webhook"
	NotifyDriverLog     = "log"
)

// Config aggregates runtime configuration for the service.
type Config struct {
	App          AppConfig
	Store        StoreConfig
	Postgres     PostgresConfig
	Mongo        MongoConfig
	Redis        RedisConfig
	Logger       LoggerConfig
	Auth         AuthConfig
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
	ClientURL             string
	RequestTimeoutSeconds int
}

// StoreConfig selects the credential store backend.
type StoreConfig struct {
	Driver string
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

// MongoConfig holds document store connection values.
type MongoConfig struct {
	URI               string
	Database          string
	Collection        string
	ConnectTimeoutSec int
}

// RedisConfig holds Redis connection values.
type RedisConfig struct {
	Addr     string
	Password string
	DB       int
}

// LoggerConfig configures logging behavior.
type LoggerConfig struct {
	Level       string
	Name        string
	Development bool
}

// AuthConfig defines authentication parameters.
type AuthConfig struct {
	JWTSecret               string
	SessionTTLMinutes       int
	VerifyEmailTTLMinutes   int
	PasswordResetTTLMinutes int
	ClockSkewSeconds        int
	BcryptCost              int
	AllowAdminSignup        bool
}

// RateLimitConfig throttles the public auth endpoints per client IP and
// locks an identity out of login after repeated wrong passwords.
type RateLimitConfig struct {
	Enabled             bool
	MaxRequests         int
	WindowSeconds       int
	LoginMaxFailures    int
	LoginLockoutSeconds int
}

// NotificationConfig holds outbound delivery settings.
type NotificationConfig struct {
	Driver         string
	EmailFrom      string
	SMTPHost       string
	SMTPPort       int
	SMTPUsername   string
	SMTPPassword   string
	WebhookURL     string
	TimeoutSeconds int
}

// Load reads configuration from environment variables, applying defaults where possible.
func Load() (*Config, error) {
	_ = godotenv.Load()

	redisDB, err := strconv.Atoi(getEnv("REDIS_DB", "0"))
	if err != nil {
		return nil, fmt.Errorf("invalid REDIS_DB: %w", err)
	}

	cfg := &Config{
		App: AppConfig{
			Name:                  getEnv("APP_NAME", "student-auth"),
			Env:                   getEnv("APP_ENV", "development"),
			Host:                  getEnv("APP_HOST", "0.0.0.0"),
			Port:                  getEnv("APP_PORT", "5000"),
			Version:               getEnv("APP_VERSION", "dev"),
			ClientURL:             strings.TrimRight(getEnv("CLIENT_URL", "http://localhost:3000"), "/"),
			RequestTimeoutSeconds: getEnvAsInt("HTTP_REQUEST_TIMEOUT_SECONDS", 30),
		},
		Store: StoreConfig{
			Driver: strings.ToLower(getEnv("STORE_DRIVER", StoreDriverPostgres)),
		},
		Postgres: PostgresConfig{
			DSN:            os.Getenv("POSTGRES_DSN"),
			MaxConns:       int32(getEnvAsInt("POSTGRES_MAX_CONNS", 10)),
			MinConns:       int32(getEnvAsInt("POSTGRES_MIN_CONNS", 2)),
			RunMigrations:  getEnvAsBool("POSTGRES_RUN_MIGRATIONS", true),
			ConnMaxIdleSec: int32(getEnvAsInt("POSTGRES_CONN_MAX_IDLE_SECONDS", 30)),
			ConnMaxLifeSec: int32(getEnvAsInt("POSTGRES_CONN_MAX_LIFE_SECONDS", 300)),
		},
		Mongo: MongoConfig{
			URI:               os.Getenv("MONGO_URI"),
			Database:          getEnv("MONGO_DATABASE", "student_records"),
			Collection:        getEnv("MONGO_ACCOUNTS_COLLECTION", "users"),
			ConnectTimeoutSec: getEnvAsInt("MONGO_CONNECT_TIMEOUT_SECONDS", 15),
		},
		Redis: RedisConfig{
			Addr:     getEnv("REDIS_ADDR", "127.0.0.1:6379"),
			Password: os.Getenv("REDIS_PASSWORD"),
			DB:       redisDB,
		},
		Logger: LoggerConfig{
			Level: getEnv("LOG_LEVEL", "info"),
		},
		Auth: AuthConfig{
			JWTSecret:               getEnv("AUTH_JWT_SECRET", DevJWTSecret),
			SessionTTLMinutes:       getEnvAsInt("AUTH_SESSION_TTL_MINUTES", 7*24*60),
			VerifyEmailTTLMinutes:   getEnvAsInt("AUTH_VERIFY_EMAIL_TTL_MINUTES", 24*60),
			PasswordResetTTLMinutes: getEnvAsInt("AUTH_PASSWORD_RESET_TTL_MINUTES", 10),
			ClockSkewSeconds:        getEnvAsInt("AUTH_CLOCK_SKEW_SECONDS", 0),
			BcryptCost:              getEnvAsInt("AUTH_BCRYPT_COST", 10),
			AllowAdminSignup:        getEnvAsBool("AUTH_ALLOW_ADMIN_SIGNUP", false),
		},
		RateLimit: RateLimitConfig{
			Enabled:             getEnvAsBool("RATE_LIMIT_ENABLED", true),
			MaxRequests:         getEnvAsInt("RATE_LIMIT_MAX_REQUESTS", 100),
			WindowSeconds:       getEnvAsInt("RATE_LIMIT_WINDOW_SECONDS", 15*60),
			LoginMaxFailures:    getEnvAsInt("LOGIN_MAX_FAILURES", 5),
			LoginLockoutSeconds: getEnvAsInt("LOGIN_LOCKOUT_SECONDS", 15*60),
		},
		Notification: NotificationConfig{
			Driver:         strings.ToLower(getEnv("NOTIFY_DRIVER", NotifyDriverLog)),
			EmailFrom:      getEnv("NOTIFY_EMAIL_FROM", "noreply@example.com"),
			SMTPHost:       getEnv("SMTP_HOST", "smtp.gmail.com"),
			SMTPPort:       getEnvAsInt("SMTP_PORT", 587),
			SMTPUsername:   os.Getenv("SMTP_USERNAME"),
			SMTPPassword:   os.Getenv("SMTP_PASSWORD"),
			WebhookURL:     getEnv("NOTIFY_WEBHOOK_URL", ""),
			TimeoutSeconds: getEnvAsInt("NOTIFY_TIMEOUT_SECONDS", 10),
		},
	}

	cfg.Logger.Name = cfg.App.Name
	cfg.Logger.Development = !cfg.App.IsProduction()

	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return cfg, nil
}

// Validate rejects configurations the service cannot run safely with.
func (c *Config) Validate() error {
	if c.Auth.JWTSecret == "" {
		return errors.New("AUTH_JWT_SECRET must not be empty")
	}
	if c.App.IsProduction() && c.Auth.JWTSecret == DevJWTSecret {
		return errors.New("AUTH_JWT_SECRET must be set in production")
	}
	switch c.Store.Driver {
	case StoreDriverPostgres, StoreDriverMongo, StoreDriverMemory:
	default:
		return fmt.Errorf("unknown STORE_DRIVER %q", c.Store.Driver)
	}
	switch c.Notification.Driver {
	case NotifyDriverSMTP, NotifyDriverWebhook, NotifyDriverLog:
	default:
		return fmt.Errorf("unknown NOTIFY_DRIVER %q", c.Notification.Driver)
	}
	if c.Notification.Driver == NotifyDriverWebhook && c.Notification.WebhookURL == "" {
		return errors.New("NOTIFY_WEBHOOK_URL is required for the webhook notifier")
	}
	if c.Auth.SessionTTLMinutes <= 0 || c.Auth.VerifyEmailTTLMinutes <= 0 || c.Auth.PasswordResetTTLMinutes <= 0 {
		return errors.New("token TTLs must be positive")
	}
	return nil
}

// Addr returns the HTTP bind address.
func (a AppConfig) Addr() string {
	return fmt.Sprintf("%s:%s", a.Host, a.Port)
}

// IsProduction reports whether APP_ENV names a production deployment.
func (a AppConfig) IsProduction() bool {
	return strings.EqualFold(a.Env, "production") || strings.EqualFold(a.Env, "prod")
}

// RequestTimeout returns the configured request timeout duration.
func (a AppConfig) RequestTimeout() time.Duration {
	if a.RequestTimeoutSeconds <= 0 {
		return 0
	}
	return time.Duration(a.RequestTimeoutSeconds) * time.Second
}

// SessionTTL is the lifetime of login tokens.
func (a AuthConfig) SessionTTL() time.Duration {
	return time.Duration(a.SessionTTLMinutes) * time.Minute
}

// VerifyEmailTTL is the lifetime of email verification tokens.
func (a AuthConfig) VerifyEmailTTL() time.Duration {
	return time.Duration(a.VerifyEmailTTLMinutes) * time.Minute
}

// PasswordResetTTL is the lifetime of password reset tokens.
func (a AuthConfig) PasswordResetTTL() time.Duration {
	return time.Duration(a.PasswordResetTTLMinutes) * time.Minute
}

// ClockSkew is the tolerance applied when validating token timestamps.
func (a AuthConfig) ClockSkew() time.Duration {
	if a.ClockSkewSeconds <= 0 {
		return 0
	}
	return time.Duration(a.ClockSkewSeconds) * time.Second
}

// Window returns the rate limit window.
func (r RateLimitConfig) Window() time.Duration {
	return time.Duration(r.WindowSeconds) * time.Second
}

// LoginLockout returns how long failed logins are remembered per identity.
func (r RateLimitConfig) LoginLockout() time.Duration {
	return time.Duration(r.LoginLockoutSeconds) * time.Second
}

// Timeout returns the per-delivery timeout.
func (n NotificationConfig) Timeout() time.Duration {
	if n.TimeoutSeconds <= 0 {
		return 10 * time.Second
	}
	return time.Duration(n.TimeoutSeconds) * time.Second
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
