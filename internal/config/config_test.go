package config

import (
	"log/slog"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

var allVars = []string{
	"PORT", "LOG_LEVEL", "DB_DRIVER", "DB_PATH", "DATABASE_URL", "JWT_SECRET",
	"ACCESS_TTL", "REFRESH_TTL", "CAS_BASE_URL", "CAS_SERVICE_URL", "ADMIN_USER",
	"ADMIN_PASSWORD_HASH", "REDIS_ADDR", "LOGIN_RATE_PER_MIN", "CORS_ORIGINS",
	"BOOKING_RETRIES",
}

// clearEnv blanks every variable Load reads; t.Setenv restores them after
// the test.
func clearEnv(t *testing.T) {
	t.Helper()
	for _, k := range allVars {
		t.Setenv(k, "")
	}
}

func TestLoad_Defaults(t *testing.T) {
	clearEnv(t)

	cfg, err := Load()
	require.NoError(t, err)

	assert.Equal(t, 8080, cfg.Port)
	assert.Equal(t, slog.LevelInfo, cfg.LogLevel)
	assert.Equal(t, DriverSQLite, cfg.DBDriver)
	assert.Equal(t, "data/gradphoto.db", cfg.DBPath)
	assert.Equal(t, 15*24*time.Hour, cfg.AccessTTL)
	assert.Equal(t, 30*24*time.Hour, cfg.RefreshTTL)
	assert.Equal(t, "https://pass.sdu.edu.cn", cfg.CASBaseURL)
	assert.Equal(t, "admin", cfg.AdminUser)
	assert.Equal(t, []string{"*"}, cfg.CORSOrigins)
	assert.Equal(t, 10, cfg.LoginRatePerMin)
	assert.Equal(t, 3, cfg.BookingRetries)
	assert.True(t, cfg.InsecureJWTSecret())
	assert.False(t, cfg.AdminEnabled())
}

func TestLoad_Overrides(t *testing.T) {
	clearEnv(t)
	t.Setenv("PORT", "9000")
	t.Setenv("LOG_LEVEL", "debug")
	t.Setenv("DB_DRIVER", "Postgres")
	t.Setenv("DATABASE_URL", "postgres://localhost/gradphoto")
	t.Setenv("JWT_SECRET", "0123456789abcdef0123")
	t.Setenv("ACCESS_TTL", "1h")
	t.Setenv("CAS_BASE_URL", "https://sso.example.edu/")
	t.Setenv("ADMIN_PASSWORD_HASH", "$2a$10$abc")
	t.Setenv("CORS_ORIGINS", "https://a.example, ,https://b.example")
	t.Setenv("BOOKING_RETRIES", "0")

	cfg, err := Load()
	require.NoError(t, err)

	assert.Equal(t, 9000, cfg.Port)
	assert.Equal(t, slog.LevelDebug, cfg.LogLevel)
	assert.Equal(t, DriverPostgres, cfg.DBDriver)
	assert.Equal(t, time.Hour, cfg.AccessTTL)
	assert.Equal(t, "https://sso.example.edu", cfg.CASBaseURL)
	assert.Equal(t, []string{"https://a.example", "https://b.example"}, cfg.CORSOrigins)
	assert.Equal(t, 0, cfg.BookingRetries)
	assert.False(t, cfg.InsecureJWTSecret())
	assert.True(t, cfg.AdminEnabled())
}

func TestLoad_Invalid(t *testing.T) {
	tests := []struct {
		name string
		env  map[string]string
		want string
	}{
		{"bad port", map[string]string{"PORT": "eighty"}, "PORT"},
		{"port range", map[string]string{"PORT": "70000"}, "PORT"},
		{"bad duration", map[string]string{"ACCESS_TTL": "15 days"}, "ACCESS_TTL"},
		{"bad level", map[string]string{"LOG_LEVEL": "loud"}, "LOG_LEVEL"},
		{"unknown driver", map[string]string{"DB_DRIVER": "mysql"}, "DB_DRIVER"},
		{"postgres without url", map[string]string{"DB_DRIVER": "postgres"}, "DATABASE_URL"},
		{"short secret", map[string]string{"JWT_SECRET": "short"}, "JWT_SECRET"},
		{"negative retries", map[string]string{"BOOKING_RETRIES": "-1"}, "BOOKING_RETRIES"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			clearEnv(t)
			for k, v := range tt.env {
				t.Setenv(k, v)
			}

			_, err := Load()
			require.Error(t, err)
			assert.Contains(t, err.Error(), tt.want)
		})
	}
}
