package llm

import (
	"fmt"
	"strings"
)

// ExtractionSchema describes a structured answer expected from the model.
type ExtractionSchema struct {
	Name        string        // Schema name (e.g., "RouteDecision")
	Description string        // Preamble describing the task
	Fields      []SchemaField // Expected output fields
	Rules       []string      // Extra instructions appended after the structure
}

// SchemaField defines a single field in the extraction output.
type SchemaField struct {
	Name        string // JSON field name
	Type        string // Type hint: "string", "[]string", "map[string]string"
	Description string // Description for the LLM
	Required    bool   // Whether this field is required
}

// BuildExtractionPrompt constructs the LLM prompt from schema and input text.
func BuildExtractionPrompt(schema ExtractionSchema, inputText string) string {
	var sb strings.Builder

	if schema.Description != "" {
		sb.WriteString(schema.Description)
		sb.WriteString("\n\n")
	}

	// Output schema
	sb.WriteString("Return ONLY valid JSON matching this exact structure:\n{\n")
	for i, field := range schema.Fields {
		typeHint := field.Type
		if typeHint == "" {
			typeHint = "string"
		}
		requiredHint := ""
		if field.Required {
			requiredHint = " (required)"
		}
		sb.WriteString(fmt.Sprintf("  \"%s\": %s%s", field.Name, typeHint, requiredHint))
		if field.Description != "" {
			sb.WriteString(fmt.Sprintf(" // %s", field.Description))
		}
		if i < len(schema.Fields)-1 {
			sb.WriteString(",")
		}
		sb.WriteString("\n")
	}
	sb.WriteString("}\n\n")

	sb.WriteString("IMPORTANT:\n")
	for _, rule := range schema.Rules {
		sb.WriteString("- ")
		sb.WriteString(rule)
		sb.WriteString("\n")
	}
	sb.WriteString("- Return ONLY the JSON object, no markdown, no explanation, no code blocks.\n\n")

	sb.WriteString("Input text:\n\"\"\"\n")
	sb.WriteString(inputText)
	sb.WriteString("\n\"\"\"\n")

	return sb.String()
}

// RouteDecisionSchema returns the schema for choosing the datasource that
// answers a user message.
func RouteDecisionSchema(description string) ExtractionSchema {
	return ExtractionSchema{
		Name:        "RouteDecision",
		Description: description,
		Fields: []SchemaField{
			{
				Name:        "datasource",
				Type:        `"company_query" | "general_query"`,
				Description: "company_query when the message asks about one specific named company, otherwise general_query",
				Required:    true,
			},
		},
		Rules: []string{
			"Choose exactly one datasource.",
			"Do not answer the question itself.",
		},
	}
}
