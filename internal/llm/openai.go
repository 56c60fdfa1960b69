package llm

import (
	"context"
	"fmt"

	"github.com/sashabaranov/go-openai"
)

// OpenAIClient implements Client for the OpenAI chat completions API
type OpenAIClient struct {
	client *openai.Client
	config *Config
}

// NewOpenAIClient creates a new OpenAI client. config.BaseURL, when set,
// points the client at an OpenAI-compatible server.
func NewOpenAIClient(config *Config, apiKey string) (*OpenAIClient, error) {
	if apiKey == "" {
		return nil, fmt.Errorf("API key is required")
	}

	clientConfig := openai.DefaultConfig(apiKey)
	if config.BaseURL != "" {
		clientConfig.BaseURL = config.BaseURL
	}

	return &OpenAIClient{
		client: openai.NewClientWithConfig(clientConfig),
		config: config,
	}, nil
}

func (c *OpenAIClient) request(system, prompt string, tier ModelTier) (openai.ChatCompletionRequest, error) {
	modelName := c.config.GetModel(tier)
	if modelName == "" {
		return openai.ChatCompletionRequest{}, fmt.Errorf("no model configured for tier %s", tier)
	}

	var messages []openai.ChatCompletionMessage
	if system != "" {
		messages = append(messages, openai.ChatCompletionMessage{
			Role:    openai.ChatMessageRoleSystem,
			Content: system,
		})
	}
	messages = append(messages, openai.ChatCompletionMessage{
		Role:    openai.ChatMessageRoleUser,
		Content: prompt,
	})

	return openai.ChatCompletionRequest{
		Model:       modelName,
		Messages:    messages,
		Temperature: 0.1, // Low temperature for consistent output
	}, nil
}

func (c *OpenAIClient) complete(ctx context.Context, req openai.ChatCompletionRequest) (string, error) {
	ctx, cancel := c.config.withTimeout(ctx)
	defer cancel()

	resp, err := c.client.CreateChatCompletion(ctx, req)
	if err != nil {
		return "", fmt.Errorf("failed to generate content: %w", err)
	}
	if len(resp.Choices) == 0 {
		return "", fmt.Errorf("no choices in response")
	}
	return resp.Choices[0].Message.Content, nil
}

// GenerateContent generates text content using the specified model tier
func (c *OpenAIClient) GenerateContent(ctx context.Context, system, prompt string, tier ModelTier) (string, error) {
	req, err := c.request(system, prompt, tier)
	if err != nil {
		return "", err
	}
	return c.complete(ctx, req)
}

// GenerateJSON generates a JSON object using the specified model tier
func (c *OpenAIClient) GenerateJSON(ctx context.Context, system, prompt string, tier ModelTier) (string, error) {
	req, err := c.request(system, prompt, tier)
	if err != nil {
		return "", err
	}
	req.ResponseFormat = &openai.ChatCompletionResponseFormat{
		Type: openai.ChatCompletionResponseFormatTypeJSONObject,
	}

	text, err := c.complete(ctx, req)
	if err != nil {
		return "", err
	}
	return CleanJSONBlock(text), nil
}

// GetModel returns the model name for a tier
func (c *OpenAIClient) GetModel(tier ModelTier) string {
	return c.config.GetModel(tier)
}

// Close is a no-op; the HTTP client holds no resources.
func (c *OpenAIClient) Close() error {
	return nil
}
