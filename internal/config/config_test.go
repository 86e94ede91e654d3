package config

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func cleanEnv(t *testing.T) {
	t.Helper()
	for _, key := range []string{
		"APP_ENV", "AUTH_JWT_SECRET", "STORE_DRIVER", "NOTIFY_DRIVER", "NOTIFY_WEBHOOK_URL",
		"REDIS_DB", "CLIENT_URL", "AUTH_CLOCK_SKEW_SECONDS", "AUTH_PASSWORD_RESET_TTL_MINUTES",
		"AUTH_SESSION_TTL_MINUTES", "AUTH_VERIFY_EMAIL_TTL_MINUTES", "AUTH_BCRYPT_COST",
		"AUTH_ALLOW_ADMIN_SIGNUP", "RATE_LIMIT_MAX_REQUESTS", "RATE_LIMIT_WINDOW_SECONDS",
		"LOGIN_MAX_FAILURES", "LOGIN_LOCKOUT_SECONDS",
	} {
		t.Setenv(key, "")
	}
}

func TestLoad_Defaults(t *testing.T) {
	cleanEnv(t)
	t.Setenv("STORE_DRIVER", "memory")

	cfg, err := Load()
	require.NoError(t, err)

	assert.Equal(t, DevJWTSecret, cfg.Auth.JWTSecret)
	assert.Equal(t, 7*24*time.Hour, cfg.Auth.SessionTTL())
	assert.Equal(t, 24*time.Hour, cfg.Auth.VerifyEmailTTL())
	assert.Equal(t, 10*time.Minute, cfg.Auth.PasswordResetTTL())
	assert.Equal(t, time.Duration(0), cfg.Auth.ClockSkew())
	assert.False(t, cfg.Auth.AllowAdminSignup)
	assert.Equal(t, NotifyDriverLog, cfg.Notification.Driver)
	assert.Equal(t, 100, cfg.RateLimit.MaxRequests)
	assert.Equal(t, 15*time.Minute, cfg.RateLimit.Window())
	assert.Equal(t, 5, cfg.RateLimit.LoginMaxFailures)
	assert.Equal(t, 15*time.Minute, cfg.RateLimit.LoginLockout())
}

func TestLoad_Overrides(t *testing.T) {
	cleanEnv(t)
	t.Setenv("STORE_DRIVER", "Mongo")
	t.Setenv("AUTH_CLOCK_SKEW_SECONDS", "5")
	t.Setenv("AUTH_PASSWORD_RESET_TTL_MINUTES", "3")
	t.Setenv("CLIENT_URL", "https://app.example.com/")
	t.Setenv("AUTH_BCRYPT_COST", "not-a-number")

	cfg, err := Load()
	require.NoError(t, err)

	assert.Equal(t, StoreDriverMongo, cfg.Store.Driver)
	assert.Equal(t, 5*time.Second, cfg.Auth.ClockSkew())
	assert.Equal(t, 3*time.Minute, cfg.Auth.PasswordResetTTL())
	assert.Equal(t, "https://app.example.com", cfg.App.ClientURL)
	assert.Equal(t, 10, cfg.Auth.BcryptCost)
}

func TestLoad_ProductionRequiresSecret(t *testing.T) {
	cleanEnv(t)
	t.Setenv("APP_ENV", "production")
	t.Setenv("AUTH_JWT_SECRET", "")

	_, err := Load()
	assert.Error(t, err)

	t.Setenv("AUTH_JWT_SECRET", "a-real-secret")
	_, err = Load()
	assert.NoError(t, err)
}

func TestLoad_InvalidRedisDB(t *testing.T) {
	cleanEnv(t)
	t.Setenv("REDIS_DB", "x")
	_, err := Load()
	assert.Error(t, err)
}

func TestValidate_Drivers(t *testing.T) {
	cleanEnv(t)
	t.Setenv("STORE_DRIVER", "cassandra")
	_, err := Load()
	assert.Error(t, err)

	t.Setenv("STORE_DRIVER", "memory")
	t.Setenv("NOTIFY_DRIVER", "webhook")
	t.Setenv("NOTIFY_WEBHOOK_URL", "")
	_, err = Load()
	assert.Error(t, err)
}

func TestAppConfig_Helpers(t *testing.T) {
	a := AppConfig{Host: "127.0.0.1", Port: "5000", RequestTimeoutSeconds: 0, Env: "PROD"}
	assert.Equal(t, "127.0.0.1:5000", a.Addr())
	assert.Equal(t, time.Duration(0), a.RequestTimeout())
	assert.True(t, a.IsProduction())
}
