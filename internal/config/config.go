// Package config reads the runtime configuration from environment variables
// into one explicit struct that main passes down. Nothing else in the tree
// calls os.Getenv.
package config

import (
	"errors"
	"fmt"
	"log/slog"
	"os"
	"strconv"
	"strings"
	"time"
)

// DefaultJWTSecret is used when JWT_SECRET is unset. Anyone who knows it can
// mint tokens, so main logs a warning whenever it is in effect.
const DefaultJWTSecret = "graduation-photo-insecure-dev-secret"

const (
	DriverSQLite   = "sqlite"
	DriverPostgres = "postgres"
)

type Config struct {
	Port     int
	LogLevel slog.Level

	DBDriver    string
	DBPath      string
	DatabaseURL string

	JWTSecret  string
	AccessTTL  time.Duration
	RefreshTTL time.Duration

	CASBaseURL    string
	CASServiceURL string

	// Admin routes are only mounted when AdminPasswordHash is set.
	AdminUser         string
	AdminPasswordHash string

	// Empty RedisAddr selects the in-process login limiter.
	RedisAddr       string
	LoginRatePerMin int

	CORSOrigins    []string
	BookingRetries int
}

// InsecureJWTSecret reports whether the built-in fallback secret is in use.
func (c Config) InsecureJWTSecret() bool {
	return c.JWTSecret == DefaultJWTSecret
}

// AdminEnabled reports whether admin routes should be mounted.
func (c Config) AdminEnabled() bool {
	return c.AdminPasswordHash != ""
}

// Load returns the configuration with defaults for every unset variable.
// Malformed values are errors rather than silent fallbacks.
func Load() (Config, error) {
	var errs []error
	collect := func(err error) {
		if err != nil {
			errs = append(errs, err)
		}
	}

	cfg := Config{
		DBDriver:          strings.ToLower(getEnv("DB_DRIVER", DriverSQLite)),
		DBPath:            getEnv("DB_PATH", "data/gradphoto.db"),
		DatabaseURL:       os.Getenv("DATABASE_URL"),
		JWTSecret:         getEnv("JWT_SECRET", DefaultJWTSecret),
		CASBaseURL:        strings.TrimRight(getEnv("CAS_BASE_URL", "https://pass.sdu.edu.cn"), "/"),
		CASServiceURL:     getEnv("CAS_SERVICE_URL", "http://bkzhjx.wh.sdu.edu.cn/sso.jsp"),
		AdminUser:         getEnv("ADMIN_USER", "admin"),
		AdminPasswordHash: os.Getenv("ADMIN_PASSWORD_HASH"),
		RedisAddr:         os.Getenv("REDIS_ADDR"),
		CORSOrigins:       listEnv("CORS_ORIGINS", []string{"*"}),
	}

	var err error
	cfg.Port, err = intEnv("PORT", 8080)
	collect(err)
	cfg.LoginRatePerMin, err = intEnv("LOGIN_RATE_PER_MIN", 10)
	collect(err)
	cfg.BookingRetries, err = intEnv("BOOKING_RETRIES", 3)
	collect(err)
	cfg.AccessTTL, err = durationEnv("ACCESS_TTL", 15*24*time.Hour)
	collect(err)
	cfg.RefreshTTL, err = durationEnv("REFRESH_TTL", 30*24*time.Hour)
	collect(err)
	cfg.LogLevel, err = levelEnv("LOG_LEVEL", slog.LevelInfo)
	collect(err)

	collect(cfg.validate())
	if len(errs) > 0 {
		return Config{}, fmt.Errorf("config: %w", errors.Join(errs...))
	}
	return cfg, nil
}

func (c Config) validate() error {
	var errs []error
	switch c.DBDriver {
	case DriverSQLite:
	case DriverPostgres:
		if c.DatabaseURL == "" {
			errs = append(errs, errors.New("DATABASE_URL is required when DB_DRIVER=postgres"))
		}
	default:
		errs = append(errs, fmt.Errorf("DB_DRIVER must be %q or %q, got %q", DriverSQLite, DriverPostgres, c.DBDriver))
	}
	if c.Port <= 0 || c.Port > 65535 {
		errs = append(errs, fmt.Errorf("PORT out of range: %d", c.Port))
	}
	if len(c.JWTSecret) < 16 {
		errs = append(errs, errors.New("JWT_SECRET must be at least 16 characters"))
	}
	if c.AccessTTL <= 0 || c.RefreshTTL <= 0 {
		errs = append(errs, errors.New("ACCESS_TTL and REFRESH_TTL must be positive"))
	}
	if c.LoginRatePerMin <= 0 {
		errs = append(errs, errors.New("LOGIN_RATE_PER_MIN must be positive"))
	}
	if c.BookingRetries < 0 {
		errs = append(errs, errors.New("BOOKING_RETRIES must not be negative"))
	}
	return errors.Join(errs...)
}

func getEnv(key, fallback string) string {
	if val := os.Getenv(key); val != "" {
		return val
	}
	return fallback
}

func intEnv(key string, fallback int) (int, error) {
	val := os.Getenv(key)
	if val == "" {
		return fallback, nil
	}
	n, err := strconv.Atoi(val)
	if err != nil {
		return 0, fmt.Errorf("invalid int for %s: %q", key, val)
	}
	return n, nil
}

func durationEnv(key string, fallback time.Duration) (time.Duration, error) {
	val := os.Getenv(key)
	if val == "" {
		return fallback, nil
	}
	d, err := time.ParseDuration(val)
	if err != nil {
		return 0, fmt.Errorf("invalid duration for %s: %q", key, val)
	}
	return d, nil
}

func levelEnv(key string, fallback slog.Level) (slog.Level, error) {
	val := os.Getenv(key)
	if val == "" {
		return fallback, nil
	}
	var level slog.Level
	if err := level.UnmarshalText([]byte(val)); err != nil {
		return fallback, fmt.Errorf("invalid log level for %s: %q", key, val)
	}
	return level, nil
}

// listEnv splits a comma separated variable, dropping empty items.
func listEnv(key string, fallback []string) []string {
	val := os.Getenv(key)
	if val == "" {
		return fallback
	}
	var out []string
	for _, item := range strings.Split(val, ",") {
		if item = strings.TrimSpace(item); item != "" {
			out = append(out, item)
		}
	}
	if len(out) == 0 {
		return fallback
	}
	return out
}
