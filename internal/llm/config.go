// Package llm provides centralized LLM configuration and client abstractions.
package llm

import (
	"context"
	"time"
)

// ModelTier represents the complexity/capability level of a model
type ModelTier string

const (
	// TierLite is for simple tasks: routing and classification
	TierLite ModelTier = "lite"
	// TierStandard is for answering questions over the catalog
	TierStandard ModelTier = "standard"
	// TierAdvanced is reserved for heavier reasoning
	TierAdvanced ModelTier = "advanced"
)

// Provider represents an LLM provider
type Provider string

// Provider constants define supported LLM providers
const (
	// ProviderGemini is the Google Gemini provider
	ProviderGemini Provider = "gemini"
	// ProviderOpenAI is the OpenAI chat completions provider
	ProviderOpenAI Provider = "openai"
	// ProviderStatic answers with a canned reply and needs no API key
	ProviderStatic Provider = "static"
)

// DefaultTimeout bounds a single provider call.
const DefaultTimeout = 60 * time.Second

// Config holds the model configuration for the application
type Config struct {
	Provider Provider
	Models   map[ModelTier]string
	// Timeout bounds each provider call. Zero disables the limit.
	Timeout time.Duration
	// BaseURL overrides the provider endpoint (OpenAI-compatible servers).
	BaseURL string
}

// DefaultConfig returns the default configuration (currently Gemini)
func DefaultConfig() *Config {
	return DefaultGeminiConfig()
}

// DefaultGeminiConfig returns the default Gemini configuration
func DefaultGeminiConfig() *Config {
	return &Config{
		Provider: ProviderGemini,
		Models: map[ModelTier]string{
			TierLite:     "gemini-2.5-flash-lite",
			TierStandard: "gemini-2.5-flash",
			TierAdvanced: "gemini-2.5-pro",
		},
		Timeout: DefaultTimeout,
	}
}

// DefaultOpenAIConfig returns the default OpenAI configuration
func DefaultOpenAIConfig() *Config {
	return &Config{
		Provider: ProviderOpenAI,
		Models: map[ModelTier]string{
			TierLite:     "gpt-4o-mini",
			TierStandard: "gpt-4o-mini",
			TierAdvanced: "gpt-4o",
		},
		Timeout: DefaultTimeout,
	}
}

// ConfigFor returns the default configuration for a provider.
// Unknown providers get the Gemini defaults.
func ConfigFor(provider Provider) *Config {
	switch provider {
	case ProviderOpenAI:
		return DefaultOpenAIConfig()
	case ProviderStatic:
		return &Config{Provider: ProviderStatic, Models: map[ModelTier]string{TierStandard: "static"}}
	default:
		return DefaultGeminiConfig()
	}
}

// GetModel returns the model name for a given tier
func (c *Config) GetModel(tier ModelTier) string {
	if model, ok := c.Models[tier]; ok {
		return model
	}
	// Fallback chain: try standard, then lite
	if model, ok := c.Models[TierStandard]; ok {
		return model
	}
	if model, ok := c.Models[TierLite]; ok {
		return model
	}
	return "" // No model configured
}

// WithModel returns a new Config with a specific model for a tier
func (c *Config) WithModel(tier ModelTier, model string) *Config {
	newConfig := *c
	newConfig.Models = make(map[ModelTier]string, len(c.Models)+1)
	for k, v := range c.Models {
		newConfig.Models[k] = v
	}
	newConfig.Models[tier] = model
	return &newConfig
}

// withTimeout derives a context bounded by the configured timeout.
func (c *Config) withTimeout(ctx context.Context) (context.Context, context.CancelFunc) {
	if c.Timeout <= 0 {
		return context.WithCancel(ctx)
	}
	return context.WithTimeout(ctx, c.Timeout)
}
