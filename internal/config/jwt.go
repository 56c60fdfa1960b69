package config

import "fmt"

// JWTConfig holds configuration for JWT token generation and validation.
type JWTConfig struct {
	Secret          string
	ExpirationHours int
}

// NewJWTConfig returns the admin token settings, or nil when admin auth is disabled.
func (c *Config) NewJWTConfig() (*JWTConfig, error) {
	if !c.AdminAuthEnabled() {
		return nil, nil
	}

	config := &JWTConfig{
		Secret:          c.Auth.JWTSecret,
		ExpirationHours: c.Auth.JWTExpirationHours,
	}
	if err := config.normalize(); err != nil {
		return nil, err
	}
	return config, nil
}

// normalize validates the configuration.
func (c *JWTConfig) normalize() error {
	if c.Secret == "" {
		return fmt.Errorf("JWT_SECRET cannot be empty")
	}
	if c.ExpirationHours < 1 {
		return fmt.Errorf("JWT_EXPIRATION_HOURS must be at least 1 hour, got: %d", c.ExpirationHours)
	}
	return nil
}
