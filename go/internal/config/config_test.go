package config

import (
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

const testSecret = "0123456789abcdef0123456789abcdef"

var configEnvVars = []string{
	"PORT", "ENVIRONMENT", "LOG_LEVEL", "ROUND_DURATION", "COOLDOWN_DURATION", "LIFECYCLE_POLL_MS",
	"TAP_MAX_RETRIES", "AUTH_SECRET", "AUTH_COOKIE_NAME", "STORE_DRIVER", "SQLITE_PATH", "NATS_URL",
	"CORS_ALLOWED_ORIGINS", "DATABASE_URL", "DB_HOST", "DB_PORT", "DB_USER", "DB_PASSWORD", "DB_NAME",
	"DB_SSLMODE", "DB_MAX_CONNS", "DB_MIN_CONNS", "DB_MAX_CONN_LIFETIME_MINUTES",
}

func clearEnv(t *testing.T) {
	t.Helper()
	for _, k := range configEnvVars {
		t.Setenv(k, "")
		require.NoError(t, os.Unsetenv(k))
	}
}

func TestLoad_DefaultsAndEnv(t *testing.T) {
	clearEnv(t)
	t.Setenv("AUTH_SECRET", testSecret)
	t.Setenv("ROUND_DURATION", "90")
	t.Setenv("STORE_DRIVER", "SQLite")
	t.Setenv("CORS_ALLOWED_ORIGINS", "https://a.example,https://b.example")

	cfg, err := Load("")
	require.NoError(t, err)
	assert.Equal(t, 8080, cfg.Port)
	assert.Equal(t, 90*time.Second, cfg.RoundDuration())
	assert.Equal(t, 30*time.Second, cfg.CooldownDuration())
	assert.Equal(t, time.Second, cfg.PollInterval())
	assert.Equal(t, StoreDriverSQLite, cfg.StoreDriver)
	assert.Equal(t, []string{"https://a.example", "https://b.example"}, cfg.AllowedOrigins)
	assert.Equal(t, 3, cfg.RetryPolicy().MaxRetries)
	assert.Equal(t, ":8080", cfg.Addr())
}

func TestLoad_YAMLOverlayThenEnv(t *testing.T) {
	clearEnv(t)
	path := filepath.Join(t.TempDir(), "config.yaml")
	require.NoError(t, os.WriteFile(path, []byte(`
port: 9090
round_duration: 120
cooldown_duration: 10
auth_secret: `+testSecret+`
nats_url: nats://bus:4222
`), 0o600))
	t.Setenv("COOLDOWN_DURATION", "0")

	cfg, err := Load(path)
	require.NoError(t, err)
	assert.Equal(t, 9090, cfg.Port)
	assert.Equal(t, 2*time.Minute, cfg.RoundDuration())
	assert.Equal(t, time.Duration(0), cfg.CooldownDuration())
	assert.Equal(t, "nats://bus:4222", cfg.NatsURL)
}

func TestLoad_DatabaseSettings(t *testing.T) {
	clearEnv(t)
	path := filepath.Join(t.TempDir(), "config.yaml")
	require.NoError(t, os.WriteFile(path, []byte(`
auth_secret: `+testSecret+`
database:
  host: db
  name: rounds
  max_conns: 40
`), 0o600))
	t.Setenv("DB_PORT", "6543")
	t.Setenv("DB_MAX_CONN_LIFETIME_MINUTES", "5")

	cfg, err := Load(path)
	require.NoError(t, err)
	assert.Equal(t, "postgres://postgres:postgres@db:6543/rounds?sslmode=disable", cfg.Database.DSN())
	assert.Equal(t, int32(40), cfg.Database.MaxConns)
	assert.Equal(t, int32(2), cfg.Database.MinConns)
	assert.Equal(t, 5*time.Minute, cfg.Database.MaxConnLifetime())

	t.Setenv("DATABASE_URL", "postgres://u:p@h/x")
	cfg, err = Load(path)
	require.NoError(t, err)
	assert.Equal(t, "postgres://u:p@h/x", cfg.Database.DSN())
}

func TestLoad_RejectsBadDatabaseSettings(t *testing.T) {
	clearEnv(t)
	t.Setenv("AUTH_SECRET", testSecret)

	t.Setenv("DB_PORT", "not-a-port")
	_, err := Load("")
	assert.Error(t, err)

	t.Setenv("DB_PORT", "5432")
	t.Setenv("DB_MAX_CONNS", "0")
	_, err = Load("")
	require.Error(t, err)
	assert.Contains(t, err.Error(), "DB_MAX_CONNS")

	// The sqlite store does not need Postgres settings.
	t.Setenv("STORE_DRIVER", "sqlite")
	_, err = Load("")
	assert.NoError(t, err)
}

func TestLoad_ReportsAllErrors(t *testing.T) {
	clearEnv(t)
	t.Setenv("AUTH_SECRET", "short")
	t.Setenv("ROUND_DURATION", "0")
	t.Setenv("STORE_DRIVER", "mysql")

	_, err := Load("")
	require.Error(t, err)
	assert.Contains(t, err.Error(), "AUTH_SECRET")
	assert.Contains(t, err.Error(), "ROUND_DURATION")
	assert.Contains(t, err.Error(), "STORE_DRIVER")
}

func TestLoad_BadInput(t *testing.T) {
	clearEnv(t)
	t.Setenv("AUTH_SECRET", testSecret)

	_, err := Load(filepath.Join(t.TempDir(), "missing.yaml"))
	assert.Error(t, err)

	t.Setenv("PORT", "eighty")
	_, err = Load("")
	assert.Error(t, err)
}
