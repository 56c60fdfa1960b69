package db

import (
	"encoding/json"
	"fmt"
	"regexp"
	"strings"
	"time"

	"github.com/google/uuid"
)

// Financials is the schema-free financial data attached to a company.
// Values are whatever a JSON decoder produces: strings, float64, bool,
// nested maps and slices.
type Financials map[string]any

// Company represents a stored company profile
type Company struct {
	ID          uuid.UUID  `json:"id"`
	Name        string     `json:"name"`
	Description string     `json:"description"`
	Sector      string     `json:"sector"`
	Financials  Financials `json:"financials"`
	CreatedAt   time.Time  `json:"created_at"`
	UpdatedAt   time.Time  `json:"updated_at"`
}

// ChatExchange is one logged chat turn
type ChatExchange struct {
	ID          uuid.UUID `json:"id"`
	UserMessage string    `json:"user_message"`
	BotResponse string    `json:"bot_response"`
	Timestamp   time.Time `json:"timestamp"`
	SessionID   *string   `json:"session_id"`
}

// CompanyFilter narrows ListCompanies. Zero values mean no filtering.
type CompanyFilter struct {
	Sector string
	Search string
}

var nonAlphanumeric = regexp.MustCompile(`[^a-z0-9]`)

// NormalizeName converts a company name to a normalized form for matching
// Example: "Acme Corp." -> "acmecorp"
func NormalizeName(name string) string {
	return nonAlphanumeric.ReplaceAllString(strings.ToLower(name), "")
}

// marshalFinancials encodes financials for storage, storing nil as {}.
func marshalFinancials(f Financials) ([]byte, error) {
	if f == nil {
		f = Financials{}
	}
	data, err := json.Marshal(f)
	if err != nil {
		return nil, fmt.Errorf("failed to marshal financials: %w", err)
	}
	return data, nil
}

func unmarshalFinancials(data []byte) (Financials, error) {
	f := Financials{}
	if len(data) == 0 {
		return f, nil
	}
	if err := json.Unmarshal(data, &f); err != nil {
		return nil, fmt.Errorf("failed to unmarshal financials: %w", err)
	}
	return f, nil
}

// escapeLike escapes LIKE wildcards so user input matches literally.
// The statements using it declare ESCAPE '\'.
func escapeLike(s string) string {
	r := strings.NewReplacer(`\`, `\\`, `%`, `\%`, `_`, `\_`)
	return r.Replace(s)
}
