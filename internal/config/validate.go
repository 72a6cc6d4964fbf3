package config

import (
	"errors"
	"fmt"
	"strings"
	"time"
)

// Validate checks the configuration and returns actionable errors.
// It expects defaults to have been applied already.
func Validate(cfg *Config) error {
	if cfg == nil {
		return nil
	}

	var errs []error

	if cfg.Port < 1 || cfg.Port > 65535 {
		errs = append(errs, fmt.Errorf("port: must be between 1 and 65535, got %d", cfg.Port))
	}

	if strings.TrimSpace(cfg.LaunchCommand) == "" {
		errs = append(errs, errors.New("launch_command: must not be empty"))
	}

	errs = append(errs, validateDuration("connect_timeout", cfg.ConnectTimeout)...)
	errs = append(errs, validateDuration("command_timeout", cfg.CommandTimeout)...)

	switch cfg.LogLevel {
	case "debug", "info", "warn", "error":
	default:
		errs = append(errs, fmt.Errorf("log_level: must be one of debug, info, warn or error, got %q", cfg.LogLevel))
	}

	return errors.Join(errs...)
}

func validateDuration(field, value string) []error {
	if value == "" {
		return nil
	}
	d, err := time.ParseDuration(value)
	if err != nil {
		return []error{fmt.Errorf("%s: invalid duration %q: %w", field, value, err)}
	}
	if d <= 0 {
		return []error{fmt.Errorf("%s: must be > 0, got %q", field, value)}
	}
	return nil
}
