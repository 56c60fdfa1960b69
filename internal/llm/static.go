package llm

import "context"

// StaticReply is the answer given when no LLM provider is configured.
const StaticReply = "I don't have access to real data."

// StaticClient answers every prompt with the same text. It lets the service
// run without credentials; JSON requests get the same text, which callers
// expecting JSON treat as a malformed reply.
type StaticClient struct {
	reply string
}

// NewStaticClient returns a client that always answers reply, or StaticReply if empty.
func NewStaticClient(reply string) *StaticClient {
	if reply == "" {
		reply = StaticReply
	}
	return &StaticClient{reply: reply}
}

func (c *StaticClient) GenerateContent(context.Context, string, string, ModelTier) (string, error) {
	return c.reply, nil
}

func (c *StaticClient) GenerateJSON(context.Context, string, string, ModelTier) (string, error) {
	return c.reply, nil
}

func (c *StaticClient) GetModel(ModelTier) string {
	return string(ProviderStatic)
}

func (c *StaticClient) Close() error {
	return nil
}
