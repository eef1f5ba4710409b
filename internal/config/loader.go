package config

import (
	"errors"
	"fmt"
	"os"

	"github.com/go-playground/validator/v10"
	"github.com/joho/godotenv"
	"github.com/kelseyhightower/envconfig"
)

// DotenvPath is the conventional location of the local development dotenv
// file. It is only consulted when APP_ENV is unset or "local"; deployed
// environments configure the process environment directly.
const DotenvPath = ".env"

// LoadConfig resolves the full configuration from the environment.
//
// Resolution order: OS environment wins over the dotenv file. godotenv.Load
// never overwrites variables that are already set, which gives us the
// priority chain for free. A missing dotenv file is not an error.
//
// After population, the struct is validated; any violation aborts startup
// with a descriptive error (fail fast, never run half-configured).
func LoadConfig() (*Config, error) {
	if env := os.Getenv("APP_ENV"); env == "" || env == "local" {
		if err := godotenv.Load(DotenvPath); err != nil && !errors.Is(err, os.ErrNotExist) {
			return nil, fmt.Errorf("loading dotenv file: %w", err)
		}
	}

	var cfg Config
	if err := envconfig.Process("", &cfg); err != nil {
		return nil, fmt.Errorf("processing environment configuration: %w", err)
	}

	if err := Validate(&cfg); err != nil {
		return nil, err
	}

	return &cfg, nil
}

// Validate checks the configuration struct against its declared constraints.
// Exposed separately so tests can validate hand-built configs.
func Validate(cfg *Config) error {
	v := validator.New()
	if err := v.Struct(cfg); err != nil {
		var verrs validator.ValidationErrors
		if errors.As(err, &verrs) && len(verrs) > 0 {
			first := verrs[0]
			return fmt.Errorf("invalid configuration: field %s failed rule %q", first.Namespace(), first.Tag())
		}
		return fmt.Errorf("invalid configuration: %w", err)
	}
	return nil
}
