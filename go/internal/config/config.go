// Package config loads the service configuration from defaults, an optional YAML file
// and the environment, in that order.
package config

import (
	"errors"
	"fmt"
	"os"
	"strings"
	"time"

	"github.com/caarlos0/env/v11"
	"github.com/mcdev12/taprounds/go/internal/dbconfig"
	"github.com/mcdev12/taprounds/go/internal/sqlutil"
	"gopkg.in/yaml.v3"
)

const (
	StoreDriverPostgres = "postgres"
	StoreDriverSQLite   = "sqlite"

	minAuthSecretLength = 32
)

// Config is the service configuration.
type Config struct {
	Port        int    `env:"PORT" yaml:"port"`
	Environment string `env:"ENVIRONMENT" yaml:"environment"`
	LogLevel    string `env:"LOG_LEVEL" yaml:"log_level"`

	// Round timings, in seconds.
	RoundDurationSeconds    int `env:"ROUND_DURATION" yaml:"round_duration"`
	CooldownDurationSeconds int `env:"COOLDOWN_DURATION" yaml:"cooldown_duration"`
	LifecyclePollMS         int `env:"LIFECYCLE_POLL_MS" yaml:"lifecycle_poll_ms"`
	TapMaxRetries           int `env:"TAP_MAX_RETRIES" yaml:"tap_max_retries"`

	AuthSecret     string `env:"AUTH_SECRET" yaml:"auth_secret"`
	AuthCookieName string `env:"AUTH_COOKIE_NAME" yaml:"auth_cookie_name"`

	StoreDriver string          `env:"STORE_DRIVER" yaml:"store_driver"`
	SQLitePath  string          `env:"SQLITE_PATH" yaml:"sqlite_path"`
	Database    dbconfig.Config `yaml:"database"`

	// NatsURL enables JetStream event fan-out when set.
	NatsURL string `env:"NATS_URL" yaml:"nats_url"`

	AllowedOrigins []string `env:"CORS_ALLOWED_ORIGINS" envSeparator:"," yaml:"allowed_origins"`
}

// Default returns the configuration used when nothing overrides it.
func Default() Config {
	return Config{
		Port:                    8080,
		Environment:             "development",
		LogLevel:                "info",
		RoundDurationSeconds:    60,
		CooldownDurationSeconds: 30,
		LifecyclePollMS:         1000,
		TapMaxRetries:           3,
		AuthCookieName:          "session",
		StoreDriver:             StoreDriverPostgres,
		SQLitePath:              "taprounds.db",
		Database:                dbconfig.Default(),
		AllowedOrigins:          []string{"*"},
	}
}

// Load builds the configuration. path names an optional YAML file; environment
// variables win over both the file and the defaults.
func Load(path string) (Config, error) {
	cfg := Default()

	if path != "" {
		data, err := os.ReadFile(path)
		if err != nil {
			return Config{}, fmt.Errorf("failed to read config file: %w", err)
		}
		if err := yaml.Unmarshal(data, &cfg); err != nil {
			return Config{}, fmt.Errorf("failed to parse config: %w", err)
		}
	}

	if err := env.Parse(&cfg); err != nil {
		return Config{}, fmt.Errorf("parse env: %w", err)
	}
	cfg.StoreDriver = strings.ToLower(strings.TrimSpace(cfg.StoreDriver))

	if err := cfg.Validate(); err != nil {
		return Config{}, err
	}
	return cfg, nil
}

// Validate reports every invalid setting at once.
func (c Config) Validate() error {
	var errs []error
	if c.Port <= 0 || c.Port > 65535 {
		errs = append(errs, fmt.Errorf("PORT must be between 1 and 65535"))
	}
	if c.RoundDurationSeconds <= 0 {
		errs = append(errs, fmt.Errorf("ROUND_DURATION must be positive"))
	}
	if c.CooldownDurationSeconds < 0 {
		errs = append(errs, fmt.Errorf("COOLDOWN_DURATION cannot be negative"))
	}
	if c.LifecyclePollMS <= 0 {
		errs = append(errs, fmt.Errorf("LIFECYCLE_POLL_MS must be positive"))
	}
	if c.TapMaxRetries < 0 {
		errs = append(errs, fmt.Errorf("TAP_MAX_RETRIES cannot be negative"))
	}
	if len(c.AuthSecret) < minAuthSecretLength {
		errs = append(errs, fmt.Errorf("AUTH_SECRET must be at least %d characters", minAuthSecretLength))
	}
	switch c.StoreDriver {
	case StoreDriverPostgres:
		if err := c.Database.Validate(); err != nil {
			errs = append(errs, err)
		}
	case StoreDriverSQLite:
		if strings.TrimSpace(c.SQLitePath) == "" {
			errs = append(errs, fmt.Errorf("SQLITE_PATH is required for the sqlite store"))
		}
	default:
		errs = append(errs, fmt.Errorf("STORE_DRIVER must be %q or %q", StoreDriverPostgres, StoreDriverSQLite))
	}

	if err := errors.Join(errs...); err != nil {
		return fmt.Errorf("invalid configuration: %w", err)
	}
	return nil
}

func (c Config) RoundDuration() time.Duration {
	return time.Duration(c.RoundDurationSeconds) * time.Second
}

func (c Config) CooldownDuration() time.Duration {
	return time.Duration(c.CooldownDurationSeconds) * time.Second
}

func (c Config) PollInterval() time.Duration {
	return time.Duration(c.LifecyclePollMS) * time.Millisecond
}

// RetryPolicy is the bounded retry applied to tap transactions.
func (c Config) RetryPolicy() sqlutil.RetryPolicy {
	policy := sqlutil.DefaultRetryPolicy()
	policy.MaxRetries = c.TapMaxRetries
	return policy
}

// IsDevelopment reports whether human-readable logging should be used.
func (c Config) IsDevelopment() bool {
	return c.Environment == "development"
}

// Addr is the HTTP listen address.
func (c Config) Addr() string {
	return fmt.Sprintf(":%d", c.Port)
}
