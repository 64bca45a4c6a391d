// Package config loads application settings from the environment. Outside
// production a .env file is read first with godotenv.
package config

import (
	"errors"
	"fmt"
	"log/slog"
	"os"
	"strings"
	"time"

	"github.com/joho/godotenv"
	"github.com/spf13/viper"
)

const (
	BackendMemory = "memory"
	BackendRedis  = "redis"
)

type Config struct {
	Env      string `mapstructure:"APP_ENV"`
	Addr     string `mapstructure:"ADDR"`
	LogLevel string `mapstructure:"LOG_LEVEL"`

	// DatabaseURL is the Postgres DSN for contact submissions (and users
	// when UserStore is "postgres"). Empty means everything lives in SQLite.
	DatabaseURL string `mapstructure:"DATABASE_URL"`
	SQLitePath  string `mapstructure:"SQLITE_PATH"`
	UserStore   string `mapstructure:"USER_STORE"`
	RedisURL    string `mapstructure:"REDIS_URL"`

	SessionBackend   string        `mapstructure:"SESSION_BACKEND"`
	RateLimitBackend string        `mapstructure:"RATE_LIMIT_BACKEND"`
	SessionSecret    string        `mapstructure:"SESSION_SECRET"`
	SessionTTL       time.Duration `mapstructure:"SESSION_TTL"`
	SecureCookies    bool          `mapstructure:"SECURE_COOKIES"`
	BcryptCost       int           `mapstructure:"BCRYPT_COST"`

	ContactRateLimit  int           `mapstructure:"CONTACT_RATE_LIMIT"`
	LoginRateLimit    int           `mapstructure:"LOGIN_RATE_LIMIT"`
	RegisterRateLimit int           `mapstructure:"REGISTER_RATE_LIMIT"`
	ResetRateLimit    int           `mapstructure:"RESET_RATE_LIMIT"`
	RateLimitWindow   time.Duration `mapstructure:"RATE_LIMIT_WINDOW"`

	// ThrottleRPS of 0 disables the global per-client throttle.
	ThrottleRPS   float64 `mapstructure:"THROTTLE_RPS"`
	ThrottleBurst int     `mapstructure:"THROTTLE_BURST"`

	StaticDir    string `mapstructure:"STATIC_DIR"`
	RequireLogin bool   `mapstructure:"REQUIRE_LOGIN"`
	TrustProxy   bool   `mapstructure:"TRUST_PROXY"`

	// ForgotPasswordGeneric hides whether an email is registered. Off by
	// default, which keeps the enumerable behaviour.
	ForgotPasswordGeneric bool `mapstructure:"FORGOT_PASSWORD_GENERIC"`

	SendGridAPIKey string `mapstructure:"SENDGRID_API_KEY"`
	MailFrom       string `mapstructure:"MAIL_FROM"`
	SupportURL     string `mapstructure:"SUPPORT_URL"`
}

var keys = []string{
	"APP_ENV", "ADDR", "LOG_LEVEL", "DATABASE_URL", "SQLITE_PATH", "USER_STORE", "REDIS_URL",
	"SESSION_BACKEND", "RATE_LIMIT_BACKEND", "SESSION_SECRET", "SESSION_TTL", "SECURE_COOKIES",
	"BCRYPT_COST", "CONTACT_RATE_LIMIT", "LOGIN_RATE_LIMIT", "REGISTER_RATE_LIMIT",
	"RESET_RATE_LIMIT", "RATE_LIMIT_WINDOW", "THROTTLE_RPS", "THROTTLE_BURST", "STATIC_DIR",
	"REQUIRE_LOGIN", "TRUST_PROXY", "FORGOT_PASSWORD_GENERIC", "SENDGRID_API_KEY", "MAIL_FROM",
	"SUPPORT_URL",
}

// Load reads .env when not in production, then builds and validates Config
// from the environment. Environment variables win over .env values.
func Load() (*Config, error) {
	if os.Getenv("APP_ENV") != "production" {
		// a missing .env is fine, e.g. in CI
		_ = godotenv.Load()
	}

	v := viper.New()
	v.AutomaticEnv()
	for _, k := range keys {
		_ = v.BindEnv(k)
	}

	v.SetDefault("APP_ENV", "development")
	v.SetDefault("ADDR", ":8080")
	v.SetDefault("LOG_LEVEL", "info")
	v.SetDefault("SQLITE_PATH", "users.db")
	v.SetDefault("USER_STORE", "sqlite")
	v.SetDefault("SESSION_BACKEND", BackendMemory)
	v.SetDefault("RATE_LIMIT_BACKEND", BackendMemory)
	v.SetDefault("SESSION_TTL", "24h")
	v.SetDefault("SECURE_COOKIES", false)
	v.SetDefault("BCRYPT_COST", 10)
	v.SetDefault("CONTACT_RATE_LIMIT", 5)
	v.SetDefault("LOGIN_RATE_LIMIT", 3)
	v.SetDefault("REGISTER_RATE_LIMIT", 2)
	v.SetDefault("RESET_RATE_LIMIT", 3)
	v.SetDefault("RATE_LIMIT_WINDOW", "60s")
	v.SetDefault("THROTTLE_RPS", 20)
	v.SetDefault("THROTTLE_BURST", 40)
	v.SetDefault("STATIC_DIR", "./ui/static")
	v.SetDefault("REQUIRE_LOGIN", false)
	v.SetDefault("TRUST_PROXY", false)
	v.SetDefault("FORGOT_PASSWORD_GENERIC", false)
	v.SetDefault("MAIL_FROM", "donotreply@opendays.local")
	v.SetDefault("SUPPORT_URL", "/contact-us")

	var cfg Config
	if err := v.Unmarshal(&cfg); err != nil {
		return nil, fmt.Errorf("config: %w", err)
	}
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return &cfg, nil
}

func (c *Config) Validate() error {
	if c.Addr == "" {
		return errors.New("config: ADDR must be set")
	}
	switch c.UserStore {
	case "sqlite":
	case "postgres":
		if c.DatabaseURL == "" {
			return errors.New("config: USER_STORE=postgres requires DATABASE_URL")
		}
	default:
		return fmt.Errorf("config: USER_STORE must be sqlite or postgres, got %q", c.UserStore)
	}
	for name, backend := range map[string]string{"SESSION_BACKEND": c.SessionBackend, "RATE_LIMIT_BACKEND": c.RateLimitBackend} {
		switch backend {
		case BackendMemory:
		case BackendRedis:
			if c.RedisURL == "" {
				return fmt.Errorf("config: %s=redis requires REDIS_URL", name)
			}
		default:
			return fmt.Errorf("config: %s must be memory or redis, got %q", name, backend)
		}
	}
	if c.IsProduction() && c.SessionSecret == "" {
		return errors.New("config: SESSION_SECRET must be set when APP_ENV=production")
	}
	if c.BcryptCost < 4 || c.BcryptCost > 31 {
		return errors.New("config: BCRYPT_COST must be between 4 and 31")
	}
	if c.ContactRateLimit < 1 || c.LoginRateLimit < 1 || c.RegisterRateLimit < 1 || c.ResetRateLimit < 1 {
		return errors.New("config: rate limits must be at least 1")
	}
	if c.RateLimitWindow <= 0 {
		return errors.New("config: RATE_LIMIT_WINDOW must be positive")
	}
	if c.ThrottleRPS < 0 {
		return errors.New("config: THROTTLE_RPS must not be negative")
	}
	return nil
}

func (c *Config) IsProduction() bool { return c.Env == "production" }

// SlogLevel maps LOG_LEVEL to a slog level, defaulting to info.
func (c *Config) SlogLevel() slog.Level {
	switch strings.ToLower(c.LogLevel) {
	case "debug":
		return slog.LevelDebug
	case "warn", "warning":
		return slog.LevelWarn
	case "error":
		return slog.LevelError
	default:
		return slog.LevelInfo
	}
}
