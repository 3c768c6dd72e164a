package dbconfig

import (
	"errors"
	"fmt"
	"time"
)

// Config holds Postgres connection settings. It is loaded as part of config.Config;
// DATABASE_URL wins over the individual DB_* parts when set.
type Config struct {
	URL      string `env:"DATABASE_URL" yaml:"url"`
	Host     string `env:"DB_HOST" yaml:"host"`
	Port     int    `env:"DB_PORT" yaml:"port"`
	User     string `env:"DB_USER" yaml:"user"`
	Password string `env:"DB_PASSWORD" yaml:"password"`
	Database string `env:"DB_NAME" yaml:"name"`
	SSLMode  string `env:"DB_SSLMODE" yaml:"sslmode"`

	MaxConns               int32 `env:"DB_MAX_CONNS" yaml:"max_conns"`
	MinConns               int32 `env:"DB_MIN_CONNS" yaml:"min_conns"`
	MaxConnLifetimeMinutes int   `env:"DB_MAX_CONN_LIFETIME_MINUTES" yaml:"max_conn_lifetime_minutes"`
}

// Default returns the local development database settings.
func Default() Config {
	return Config{
		Host:                   "localhost",
		Port:                   5432,
		User:                   "postgres",
		Password:               "postgres",
		Database:               "taprounds",
		SSLMode:                "disable",
		MaxConns:               20,
		MinConns:               2,
		MaxConnLifetimeMinutes: 30,
	}
}

// Validate reports every invalid pool or connection setting.
func (c Config) Validate() error {
	var errs []error
	if c.URL == "" && (c.Port <= 0 || c.Port > 65535) {
		errs = append(errs, fmt.Errorf("DB_PORT must be between 1 and 65535"))
	}
	if c.MaxConns <= 0 {
		errs = append(errs, fmt.Errorf("DB_MAX_CONNS must be positive"))
	}
	if c.MinConns < 0 || c.MinConns > c.MaxConns {
		errs = append(errs, fmt.Errorf("DB_MIN_CONNS must be between 0 and DB_MAX_CONNS"))
	}
	if c.MaxConnLifetimeMinutes <= 0 {
		errs = append(errs, fmt.Errorf("DB_MAX_CONN_LIFETIME_MINUTES must be positive"))
	}
	return errors.Join(errs...)
}

func (c Config) MaxConnLifetime() time.Duration {
	return time.Duration(c.MaxConnLifetimeMinutes) * time.Minute
}

// DSN returns the Postgres connection URL.
func (c Config) DSN() string {
	if c.URL != "" {
		return c.URL
	}
	return fmt.Sprintf(
		"postgres://%s:%s@%s:%d/%s?sslmode=%s",
		c.User, c.Password, c.Host, c.Port, c.Database, c.SSLMode,
	)
}

// Target is the DSN without credentials, for logging.
func (c Config) Target() string {
	if c.URL != "" {
		return "DATABASE_URL"
	}
	return fmt.Sprintf("%s@%s:%d/%s", c.User, c.Host, c.Port, c.Database)
}
