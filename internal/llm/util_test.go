package llm

import (
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestCleanJSONBlock(t *testing.T) {
	const company = `{"datasource": "company_query"}`
	const general = `{"datasource": "general_query"}`

	tests := []struct {
		name  string
		input string
		want  string
	}{
		{"bare decision", company, company},
		{"surrounding whitespace", "  \n" + general + "\n\n", general},
		{"json fence", "```json\n" + company + "\n```", company},
		{"json fence with commentary after", "```json\n" + general + "\n```\nNo company is named, so this is general.", general},
		{"fence with upper-case language", "```JSON\n" + company + "\n```", company},
		{"fence on one line", "```" + general + "```", general},
		{"prose on both sides", "Routing decision: " + company + " (the message names Acme Corp)", company},
		{
			"decision nested inside prose",
			`Sure! {"decision": {"datasource": "general_query", "confidence": 0.9}} Hope that helps.`,
			`{"decision": {"datasource": "general_query", "confidence": 0.9}}`,
		},
		{
			"braces inside a string value",
			`{"datasource": "company_query", "reason": "user typed {Acme}"} done`,
			`{"datasource": "company_query", "reason": "user typed {Acme}"}`,
		},
		{
			"escaped quotes inside a string value",
			`Answer: {"datasource": "general_query", "reason": "asks \"what sectors\""}.`,
			`{"datasource": "general_query", "reason": "asks \"what sectors\""}`,
		},
		{"array of labels", `Candidates: ["company_query", "general_query"] pick one`, `["company_query", "general_query"]`},
		{"static reply has no JSON", StaticReply, StaticReply},
		{"unbalanced object kept as text", "  half {open  ", "half {open"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Equal(t, tt.want, CleanJSONBlock(tt.input))
		})
	}
}

func TestExtractBalanced(t *testing.T) {
	tests := []struct {
		name        string
		input       string
		open, close byte
		want        string
	}{
		{"object holding an array", `{"a": [1, {"b": 2}]} tail`, '{', '}', `{"a": [1, {"b": 2}]}`},
		{"array holding objects", `[{"id": 1}, [2]] tail`, '[', ']', `[{"id": 1}, [2]]`},
		{"closing brace in string", `{"s": "}"} x`, '{', '}', `{"s": "}"}`},
		{"escaped quote before brace", `{"s": "\"}"} x`, '{', '}', `{"s": "\"}"}`},
		{"never closed", `{"datasource": "company_query"`, '{', '}', ""},
		{"empty", "", '{', '}', ""},
		{"does not start with open", `x{}`, '{', '}', ""},
		{"wrong delimiter", `[1, 2]`, '{', '}', ""},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Equal(t, tt.want, extractBalanced(tt.input, tt.open, tt.close))
		})
	}

	assert.Equal(t, `{"k": 1}`, extractJSONObject(`{"k": 1} rest`))
	assert.Equal(t, `[1]`, extractJSONArray(`[1] rest`))
}
