// Package config loads service configuration from file, environment and defaults.
package config

import (
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/spf13/viper"
)

// EnvPrefix prefixes every environment override, e.g. COMPANY_AGENT_LOG_LEVEL.
const EnvPrefix = "COMPANY_AGENT"

// Provider selection values for llm.provider.
const (
	ProviderAuto   = "auto"
	ProviderGemini = "gemini"
	ProviderOpenAI = "openai"
	ProviderStatic = "static"
)

// Config is the full service configuration.
type Config struct {
	Server    ServerConfig    `mapstructure:"server"`
	Database  DatabaseConfig  `mapstructure:"database"`
	LLM       LLMConfig       `mapstructure:"llm"`
	Resolver  ResolverConfig  `mapstructure:"resolver"`
	Agent     AgentConfig     `mapstructure:"agent"`
	Auth      AuthConfig      `mapstructure:"auth"`
	RateLimit RateLimitConfig `mapstructure:"rate_limit"`
	Log       LogConfig       `mapstructure:"log"`
}

type ServerConfig struct {
	Port            int           `mapstructure:"port"`
	ShutdownTimeout time.Duration `mapstructure:"shutdown_timeout"`
	MaxUploadBytes  int64         `mapstructure:"max_upload_bytes"`
	CORSOrigin      string        `mapstructure:"cors_origin"`
}

type DatabaseConfig struct {
	// URL is postgres://..., postgresql://... or sqlite://<path>.
	URL string `mapstructure:"url"`
}

type LLMConfig struct {
	Provider     string        `mapstructure:"provider"`
	GeminiAPIKey string        `mapstructure:"gemini_api_key"`
	OpenAIAPIKey string        `mapstructure:"openai_api_key"`
	BaseURL      string        `mapstructure:"base_url"`
	Timeout      time.Duration `mapstructure:"timeout"`
}

type ResolverConfig struct {
	FuzzyThreshold float64 `mapstructure:"fuzzy_threshold"`
}

type AgentConfig struct {
	IncludeCatalog bool `mapstructure:"include_catalog"`
	NarrateCompany bool `mapstructure:"narrate_company"`
}

type AuthConfig struct {
	JWTSecret          string `mapstructure:"jwt_secret"`
	JWTExpirationHours int    `mapstructure:"jwt_expiration_hours"`
	AdminPasswordHash  string `mapstructure:"admin_password_hash"`
	BcryptCost         int    `mapstructure:"bcrypt_cost"`
	PasswordPepper     string `mapstructure:"password_pepper"`
}

// RateLimitConfig sets the per-client token buckets. Allow and Deny hold
// client IPs that bypass or are refused by the limiter.
type RateLimitConfig struct {
	Enabled         bool          `mapstructure:"enabled"`
	DefaultLimit    int           `mapstructure:"default_limit"`
	DefaultWindow   time.Duration `mapstructure:"default_window"`
	ChatLimit       int           `mapstructure:"chat_limit"`
	ChatWindow      time.Duration `mapstructure:"chat_window"`
	CleanupInterval time.Duration `mapstructure:"cleanup_interval"`
	Allow           []string      `mapstructure:"allow"`
	Deny            []string      `mapstructure:"deny"`
}

type LogConfig struct {
	Level  string `mapstructure:"level"`
	Format string `mapstructure:"format"`
}

// unprefixed lists environment variables honoured without EnvPrefix.
var unprefixed = map[string]string{
	"server.port":               "PORT",
	"database.url":              "DATABASE_URL",
	"llm.gemini_api_key":        "GEMINI_API_KEY",
	"llm.openai_api_key":        "OPENAI_API_KEY",
	"auth.jwt_secret":           "JWT_SECRET",
	"auth.jwt_expiration_hours": "JWT_EXPIRATION_HOURS",
	"auth.admin_password_hash":  "ADMIN_PASSWORD_HASH",
	"auth.bcrypt_cost":          "BCRYPT_COST",
	"auth.password_pepper":      "PASSWORD_PEPPER",
}

// Load reads configuration. path is an optional yaml/json file; environment
// variables override it and defaults fill the rest.
func Load(path string) (*Config, error) {
	v := viper.New()
	setDefaults(v)

	v.SetEnvPrefix(EnvPrefix)
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_", "-", "_"))
	v.AutomaticEnv()
	for key, env := range unprefixed {
		prefixed := EnvPrefix + "_" + strings.ToUpper(strings.ReplaceAll(key, ".", "_"))
		if err := v.BindEnv(key, prefixed, env); err != nil {
			return nil, fmt.Errorf("failed to bind %s: %w", env, err)
		}
	}

	if path != "" {
		v.SetConfigFile(path)
		if err := v.ReadInConfig(); err != nil {
			return nil, fmt.Errorf("failed to read config file %s: %w", path, err)
		}
	}

	var cfg Config
	if err := v.Unmarshal(&cfg); err != nil {
		return nil, fmt.Errorf("failed to unmarshal config: %w", err)
	}
	cfg.LLM.Provider = strings.ToLower(strings.TrimSpace(cfg.LLM.Provider))

	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return &cfg, nil
}

func setDefaults(v *viper.Viper) {
	v.SetDefault("server.port", 8000)
	v.SetDefault("server.shutdown_timeout", 10*time.Second)
	v.SetDefault("server.max_upload_bytes", int64(10<<20))
	v.SetDefault("server.cors_origin", "*")

	v.SetDefault("database.url", "sqlite://company_agent.db")

	v.SetDefault("llm.provider", ProviderAuto)
	v.SetDefault("llm.gemini_api_key", "")
	v.SetDefault("llm.openai_api_key", "")
	v.SetDefault("llm.base_url", "")
	v.SetDefault("llm.timeout", 60*time.Second)

	v.SetDefault("resolver.fuzzy_threshold", 0.75)

	v.SetDefault("agent.include_catalog", true)
	v.SetDefault("agent.narrate_company", false)

	v.SetDefault("auth.jwt_secret", "")
	v.SetDefault("auth.jwt_expiration_hours", 24)
	v.SetDefault("auth.admin_password_hash", "")
	v.SetDefault("auth.bcrypt_cost", 12)
	v.SetDefault("auth.password_pepper", "")

	v.SetDefault("rate_limit.enabled", true)
	v.SetDefault("rate_limit.default_limit", 1000)
	v.SetDefault("rate_limit.default_window", time.Minute)
	v.SetDefault("rate_limit.chat_limit", 60)
	v.SetDefault("rate_limit.chat_window", time.Minute)
	v.SetDefault("rate_limit.cleanup_interval", 5*time.Minute)
	v.SetDefault("rate_limit.allow", []string{})
	v.SetDefault("rate_limit.deny", []string{})

	v.SetDefault("log.level", "info")
	v.SetDefault("log.format", "console")
}

// Validate checks that the configuration has valid values.
func (c *Config) Validate() error {
	var errs []error

	if c.Server.Port < 1 || c.Server.Port > 65535 {
		errs = append(errs, fmt.Errorf("server.port must be 1-65535, got %d", c.Server.Port))
	}
	if c.Server.MaxUploadBytes <= 0 {
		errs = append(errs, fmt.Errorf("server.max_upload_bytes must be positive"))
	}
	if c.Database.URL == "" {
		errs = append(errs, fmt.Errorf("database.url is required"))
	}
	switch c.LLM.Provider {
	case ProviderAuto, ProviderGemini, ProviderOpenAI, ProviderStatic:
	default:
		errs = append(errs, fmt.Errorf("llm.provider must be one of auto, gemini, openai, static; got %q", c.LLM.Provider))
	}
	if c.LLM.Timeout < 0 {
		errs = append(errs, fmt.Errorf("llm.timeout must not be negative"))
	}
	if c.Resolver.FuzzyThreshold <= 0 || c.Resolver.FuzzyThreshold > 1 {
		errs = append(errs, fmt.Errorf("resolver.fuzzy_threshold must be in (0, 1], got %v", c.Resolver.FuzzyThreshold))
	}
	if c.RateLimit.Enabled && (c.RateLimit.DefaultWindow <= 0 || c.RateLimit.ChatWindow <= 0) {
		errs = append(errs, fmt.Errorf("rate_limit windows must be positive"))
	}
	if (c.Auth.JWTSecret == "") != (c.Auth.AdminPasswordHash == "") {
		errs = append(errs, fmt.Errorf("auth.jwt_secret and auth.admin_password_hash must be set together"))
	}

	if len(errs) > 0 {
		return fmt.Errorf("config error: %w", errors.Join(errs...))
	}
	return nil
}

// AdminAuthEnabled reports whether admin endpoints require a token.
func (c *Config) AdminAuthEnabled() bool {
	return c.Auth.JWTSecret != "" && c.Auth.AdminPasswordHash != ""
}

// ResolveProvider returns the concrete LLM provider and its API key. "auto"
// prefers Gemini, then OpenAI, then the static fallback.
func (c *Config) ResolveProvider() (string, string) {
	switch c.LLM.Provider {
	case ProviderGemini:
		return ProviderGemini, c.LLM.GeminiAPIKey
	case ProviderOpenAI:
		return ProviderOpenAI, c.LLM.OpenAIAPIKey
	case ProviderStatic:
		return ProviderStatic, ""
	}

	switch {
	case c.LLM.GeminiAPIKey != "":
		return ProviderGemini, c.LLM.GeminiAPIKey
	case c.LLM.OpenAIAPIKey != "":
		return ProviderOpenAI, c.LLM.OpenAIAPIKey
	default:
		return ProviderStatic, ""
	}
}
