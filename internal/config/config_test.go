package config

import (
	"os"
	"path/filepath"
	"strings"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// clearEnv unsets every variable Load reads so the host environment
// cannot leak into a test.
func clearEnv(t *testing.T) {
	t.Helper()
	for _, env := range unprefixed {
		t.Setenv(env, "")
		os.Unsetenv(env)
	}
	for _, kv := range os.Environ() {
		name, _, _ := strings.Cut(kv, "=")
		if strings.HasPrefix(name, EnvPrefix+"_") {
			t.Setenv(name, "")
			os.Unsetenv(name)
		}
	}
}

func TestLoad_Defaults(t *testing.T) {
	clearEnv(t)

	cfg, err := Load("")
	require.NoError(t, err)

	assert.Equal(t, 8000, cfg.Server.Port)
	assert.Equal(t, 10*time.Second, cfg.Server.ShutdownTimeout)
	assert.Equal(t, int64(10<<20), cfg.Server.MaxUploadBytes)
	assert.Equal(t, "sqlite://company_agent.db", cfg.Database.URL)
	assert.Equal(t, ProviderAuto, cfg.LLM.Provider)
	assert.Equal(t, 60*time.Second, cfg.LLM.Timeout)
	assert.Equal(t, 0.75, cfg.Resolver.FuzzyThreshold)
	assert.True(t, cfg.Agent.IncludeCatalog)
	assert.False(t, cfg.Agent.NarrateCompany)
	assert.Equal(t, 24, cfg.Auth.JWTExpirationHours)
	assert.Equal(t, 12, cfg.Auth.BcryptCost)
	assert.Equal(t, "info", cfg.Log.Level)
	assert.True(t, cfg.RateLimit.Enabled)
	assert.Equal(t, 60, cfg.RateLimit.ChatLimit)
	assert.Equal(t, time.Minute, cfg.RateLimit.ChatWindow)
	assert.False(t, cfg.AdminAuthEnabled())
}

func TestLoad_UnprefixedEnv(t *testing.T) {
	clearEnv(t)
	t.Setenv("PORT", "9090")
	t.Setenv("DATABASE_URL", "postgres://u:p@localhost:5432/companies")
	t.Setenv("OPENAI_API_KEY", "sk-test")
	t.Setenv("JWT_SECRET", "secret")
	t.Setenv("ADMIN_PASSWORD_HASH", "$2a$10$hash")

	cfg, err := Load("")
	require.NoError(t, err)

	assert.Equal(t, 9090, cfg.Server.Port)
	assert.Equal(t, "postgres://u:p@localhost:5432/companies", cfg.Database.URL)
	assert.Equal(t, "sk-test", cfg.LLM.OpenAIAPIKey)
	assert.True(t, cfg.AdminAuthEnabled())
}

func TestLoad_PrefixedEnv(t *testing.T) {
	clearEnv(t)
	t.Setenv("COMPANY_AGENT_RESOLVER_FUZZY_THRESHOLD", "0.9")
	t.Setenv("COMPANY_AGENT_AGENT_NARRATE_COMPANY", "true")
	t.Setenv("COMPANY_AGENT_LLM_TIMEOUT", "15s")
	t.Setenv("COMPANY_AGENT_LLM_PROVIDER", "OpenAI")
	t.Setenv("COMPANY_AGENT_DATABASE_URL", "sqlite://:memory:")

	cfg, err := Load("")
	require.NoError(t, err)

	assert.Equal(t, 0.9, cfg.Resolver.FuzzyThreshold)
	assert.True(t, cfg.Agent.NarrateCompany)
	assert.Equal(t, 15*time.Second, cfg.LLM.Timeout)
	assert.Equal(t, ProviderOpenAI, cfg.LLM.Provider)
	assert.Equal(t, "sqlite://:memory:", cfg.Database.URL)
}

func TestLoad_ConfigFile(t *testing.T) {
	clearEnv(t)
	path := filepath.Join(t.TempDir(), "config.yaml")
	content := `
server:
  port: 7000
agent:
  include_catalog: false
rate_limit:
  chat_limit: 5
  allow: ["10.0.0.1", "10.0.0.2"]
log:
  level: debug
  format: json
`
	require.NoError(t, os.WriteFile(path, []byte(content), 0644))
	t.Setenv("PORT", "7100")

	cfg, err := Load(path)
	require.NoError(t, err)

	assert.Equal(t, 7100, cfg.Server.Port, "environment should override file")
	assert.False(t, cfg.Agent.IncludeCatalog)
	assert.Equal(t, "debug", cfg.Log.Level)
	assert.Equal(t, "json", cfg.Log.Format)
	assert.Equal(t, 5, cfg.RateLimit.ChatLimit)
	assert.Equal(t, []string{"10.0.0.1", "10.0.0.2"}, cfg.RateLimit.Allow)
}

func TestLoad_FileNotFound(t *testing.T) {
	clearEnv(t)

	_, err := Load(filepath.Join(t.TempDir(), "missing.yaml"))
	assert.ErrorContains(t, err, "failed to read config file")
}

func TestValidate(t *testing.T) {
	valid := func() *Config {
		return &Config{
			Server:   ServerConfig{Port: 8000, MaxUploadBytes: 1024},
			Database: DatabaseConfig{URL: "sqlite://:memory:"},
			LLM:      LLMConfig{Provider: ProviderAuto, Timeout: time.Second},
			Resolver: ResolverConfig{FuzzyThreshold: 0.75},
		}
	}

	tests := []struct {
		name    string
		mutate  func(c *Config)
		wantErr string
	}{
		{"valid", func(c *Config) {}, ""},
		{"bad port", func(c *Config) { c.Server.Port = 0 }, "server.port"},
		{"no upload budget", func(c *Config) { c.Server.MaxUploadBytes = 0 }, "server.max_upload_bytes"},
		{"no database", func(c *Config) { c.Database.URL = "" }, "database.url"},
		{"unknown provider", func(c *Config) { c.LLM.Provider = "anthropic" }, "llm.provider"},
		{"negative timeout", func(c *Config) { c.LLM.Timeout = -time.Second }, "llm.timeout"},
		{"threshold zero", func(c *Config) { c.Resolver.FuzzyThreshold = 0 }, "resolver.fuzzy_threshold"},
		{"threshold above one", func(c *Config) { c.Resolver.FuzzyThreshold = 1.5 }, "resolver.fuzzy_threshold"},
		{"zero rate window", func(c *Config) { c.RateLimit = RateLimitConfig{Enabled: true, DefaultWindow: time.Minute} }, "rate_limit"},
		{"disabled rate limit ignores windows", func(c *Config) { c.RateLimit = RateLimitConfig{} }, ""},
		{"secret without hash", func(c *Config) { c.Auth.JWTSecret = "s" }, "must be set together"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			cfg := valid()
			tt.mutate(cfg)
			err := cfg.Validate()
			if tt.wantErr == "" {
				assert.NoError(t, err)
				return
			}
			assert.ErrorContains(t, err, tt.wantErr)
		})
	}
}

func TestResolveProvider(t *testing.T) {
	tests := []struct {
		name         string
		llm          LLMConfig
		wantProvider string
		wantKey      string
	}{
		{"auto prefers gemini", LLMConfig{Provider: ProviderAuto, GeminiAPIKey: "g", OpenAIAPIKey: "o"}, ProviderGemini, "g"},
		{"auto uses openai", LLMConfig{Provider: ProviderAuto, OpenAIAPIKey: "o"}, ProviderOpenAI, "o"},
		{"auto without keys", LLMConfig{Provider: ProviderAuto}, ProviderStatic, ""},
		{"explicit openai", LLMConfig{Provider: ProviderOpenAI, GeminiAPIKey: "g", OpenAIAPIKey: "o"}, ProviderOpenAI, "o"},
		{"explicit gemini without key", LLMConfig{Provider: ProviderGemini}, ProviderGemini, ""},
		{"explicit static", LLMConfig{Provider: ProviderStatic, GeminiAPIKey: "g"}, ProviderStatic, ""},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			cfg := &Config{LLM: tt.llm}
			provider, key := cfg.ResolveProvider()
			assert.Equal(t, tt.wantProvider, provider)
			assert.Equal(t, tt.wantKey, key)
		})
	}
}
