package config

import (
	"errors"
	"fmt"
	"log/slog"
	"strings"
)

// Validate checks Config for production-critical problems.
// It collects all errors into a single joined error.
func (c *Config) Validate() error {
	var errs []string

	if len(c.Auth.KeySecret) < 32 {
		errs = append(errs, "AUTH_KEY_SECRET must be at least 32 characters")
	}
	if c.Auth.AdminToken == "" {
		errs = append(errs, "AUTH_ADMIN_TOKEN is required")
	}
	if c.Auth.KeySecret != "" && c.Auth.KeySecret == c.Auth.AdminToken {
		errs = append(errs, "AUTH_KEY_SECRET and AUTH_ADMIN_TOKEN must differ")
	}

	if c.DB.Password == "" {
		errs = append(errs, "DB_PASSWORD is required")
	}

	if c.Provider.PhoneID == "" {
		errs = append(errs, "PROVIDER_PHONE_ID is required")
	}
	if c.Provider.AccessToken == "" {
		errs = append(errs, "PROVIDER_ACCESS_TOKEN is required")
	}
	if c.Provider.VerifyToken == "" {
		slog.Warn("PROVIDER_VERIFY_TOKEN is empty, webhook verification will reject all subscriptions")
	}

	// Port ranges
	if c.Server.Port < 1 || c.Server.Port > 65535 {
		errs = append(errs, fmt.Sprintf("SERVER_PORT must be 1-65535, got %d", c.Server.Port))
	}
	if c.DB.Port < 1 || c.DB.Port > 65535 {
		errs = append(errs, fmt.Sprintf("DB_PORT must be 1-65535, got %d", c.DB.Port))
	}
	if c.Redis.Port < 1 || c.Redis.Port > 65535 {
		errs = append(errs, fmt.Sprintf("REDIS_PORT must be 1-65535, got %d", c.Redis.Port))
	}

	if c.Provider.Timeout <= 0 {
		errs = append(errs, "PROVIDER_TIMEOUT must be positive")
	}

	if len(errs) > 0 {
		return errors.New("config validation failed:\n  - " + strings.Join(errs, "\n  - "))
	}
	return nil
}
