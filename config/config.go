package config

import (
	"errors"
	"fmt"
	"io/fs"
	"time"

	"github.com/caarlos0/env/v11"
	"github.com/joho/godotenv"
)

// Config holds process-level settings for membershipctl.
type Config struct {
	DBDriver            string        `env:"MEMBERSHIP_DB_DRIVER" envDefault:"sqlite"`
	DBDSN               string        `env:"MEMBERSHIP_DB_DSN" envDefault:"membership.db"`
	Namespace           string        `env:"MEMBERSHIP_NAMESPACE" envDefault:"membership"`
	PublicCommunityID   string        `env:"MEMBERSHIP_PUBLIC_COMMUNITY_ID"`
	RejectionRetention  time.Duration `env:"MEMBERSHIP_REJECTION_RETENTION" envDefault:"720h"`
	RejoinCooldown      time.Duration `env:"MEMBERSHIP_REJOIN_COOLDOWN" envDefault:"0s"`
	PresidentMembership bool          `env:"MEMBERSHIP_PRESIDENT_MEMBERSHIP" envDefault:"false"`
	HTTPAddr            string        `env:"MEMBERSHIP_HTTP_ADDR" envDefault:":8080"`
	SweepSchedule       string        `env:"MEMBERSHIP_SWEEP_SCHEDULE"`
	LogLevel            string        `env:"MEMBERSHIP_LOG_LEVEL" envDefault:"info"`
}

// ParseEnv loads configuration from environment variables.
func ParseEnv(target any) error {
	if err := env.Parse(target); err != nil {
		return fmt.Errorf("parse env: %w", err)
	}
	return nil
}

// LoadDotEnv loads variables from the given files (".env" when none are given) into the
// process environment. Missing files are ignored; variables already set are kept.
func LoadDotEnv(files ...string) error {
	if len(files) == 0 {
		files = []string{".env"}
	}

	for _, file := range files {
		if err := godotenv.Load(file); err != nil {
			if errors.Is(err, fs.ErrNotExist) {
				continue
			}
			return fmt.Errorf("load %s: %w", file, err)
		}
	}
	return nil
}

// Load reads an optional .env file and then parses Config from the environment.
func Load(dotEnvFiles ...string) (Config, error) {
	var cfg Config

	if err := LoadDotEnv(dotEnvFiles...); err != nil {
		return cfg, err
	}
	if err := ParseEnv(&cfg); err != nil {
		return cfg, err
	}
	if err := cfg.Validate(); err != nil {
		return cfg, err
	}

	return cfg, nil
}

// Validate checks values the environment parser cannot.
func (c Config) Validate() error {
	switch c.DBDriver {
	case "postgres", "sqlite":
	default:
		return fmt.Errorf("MEMBERSHIP_DB_DRIVER must be postgres or sqlite, got %q", c.DBDriver)
	}

	if c.DBDSN == "" {
		return errors.New("MEMBERSHIP_DB_DSN is required")
	}
	if c.RejectionRetention <= 0 {
		return errors.New("MEMBERSHIP_REJECTION_RETENTION must be positive")
	}
	if c.RejoinCooldown < 0 {
		return errors.New("MEMBERSHIP_REJOIN_COOLDOWN cannot be negative")
	}

	return nil
}
