package main

import (
	"errors"
	"fmt"
	"log/slog"
	"time"

	"github.com/caarlos0/env/v11"
)

type Config struct {
	Addr        string `env:"ADDR" envDefault:":8080"`
	DBDriver    string `env:"DB_DRIVER" envDefault:"pgx"`
	DatabaseURL string `env:"DATABASE_URL" envDefault:"postgres://postgres:postgres@db:5432/cardtracker?sslmode=disable"`

	JWTSecret string        `env:"JWT_SECRET"`
	JWTIssuer string        `env:"JWT_ISSUER" envDefault:"cardtracker"`
	TokenTTL  time.Duration `env:"TOKEN_TTL" envDefault:"24h"`

	// Emails that register as admins.
	AdminEmails []string `env:"ADMIN_EMAILS" envSeparator:","`

	// Leave the updated card out of the single-Ongoing count.
	OngoingExcludeSelf bool `env:"ONGOING_EXCLUDE_SELF" envDefault:"true"`

	TxMaxAttempts int           `env:"TX_MAX_ATTEMPTS" envDefault:"5"`
	TxBaseDelay   time.Duration `env:"TX_BASE_DELAY" envDefault:"10ms"`

	LogLevel slog.Level `env:"LOG_LEVEL" envDefault:"INFO"`
}

// LoadConfig parses the environment and checks required values.
func LoadConfig() (Config, error) {
	var cfg Config
	if err := env.Parse(&cfg); err != nil {
		return Config{}, fmt.Errorf("parse env: %w", err)
	}
	if err := cfg.validate(); err != nil {
		return Config{}, err
	}
	return cfg, nil
}

func (c Config) validate() error {
	if len(c.JWTSecret) < 16 {
		return errors.New("JWT_SECRET must be at least 16 bytes")
	}
	if c.DBDriver != driverPostgres && c.DBDriver != driverSQLite {
		return fmt.Errorf("DB_DRIVER must be %q or %q", driverPostgres, driverSQLite)
	}
	if c.TokenTTL <= 0 {
		return errors.New("TOKEN_TTL must be positive")
	}
	if c.TxMaxAttempts < 1 {
		return errors.New("TX_MAX_ATTEMPTS must be at least 1")
	}
	return nil
}
