package llm

import (
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestBuildExtractionPrompt(t *testing.T) {
	prompt := BuildExtractionPrompt(RouteDecisionSchema("You route questions."), "Tell me about Acme")

	assert.True(t, strings.HasPrefix(prompt, "You route questions.\n\n"))
	assert.Contains(t, prompt, `"datasource": "company_query" | "general_query" (required)`)
	assert.Contains(t, prompt, "- Choose exactly one datasource.\n")
	assert.Contains(t, prompt, "- Return ONLY the JSON object")
	assert.True(t, strings.HasSuffix(prompt, "Input text:\n\"\"\"\nTell me about Acme\n\"\"\"\n"))
}

func TestBuildExtractionPrompt_DefaultTypeAndNoDescription(t *testing.T) {
	schema := ExtractionSchema{
		Fields: []SchemaField{{Name: "a"}, {Name: "b", Type: "[\"string\"]"}},
	}
	prompt := BuildExtractionPrompt(schema, "x")

	assert.True(t, strings.HasPrefix(prompt, "Return ONLY valid JSON"))
	assert.Contains(t, prompt, "  \"a\": string,\n")
	assert.Contains(t, prompt, "  \"b\": [\"string\"]\n")
}
