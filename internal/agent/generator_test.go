package agent

import (
	"context"
	"errors"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap/zaptest"

	"github.com/jonathan/company-agent/internal/db"
	"github.com/jonathan/company-agent/internal/resolver"
)

func newTestStore(t *testing.T, companies ...db.Company) *db.SQLiteStore {
	t.Helper()
	store, err := db.NewSQLite(":memory:")
	require.NoError(t, err)
	require.NoError(t, store.Migrate(context.Background()))
	t.Cleanup(func() { _ = store.Close() })

	for i := range companies {
		require.NoError(t, store.CreateCompany(context.Background(), &companies[i]))
	}
	return store
}

func acme() db.Company {
	return db.Company{
		Name:        "Acme Corp",
		Description: "Maker of anvils",
		Sector:      "Manufacturing",
		Financials:  db.Financials{"revenue": "$5M"},
	}
}

func newGenerator(t *testing.T, client *fakeLLM, store *db.SQLiteStore, opts Options) *Generator {
	t.Helper()
	return NewGenerator(client, store, resolver.New(store, resolver.DefaultFuzzyThreshold), zaptest.NewLogger(t), opts)
}

func TestExtractCompanyName(t *testing.T) {
	tests := []struct {
		input string
		want  string
	}{
		{"Tell me about Acme Corp", "Acme Corp"},
		{"tell me about acme corp", "acme corp"},
		{"What is Globex", "Globex"},
		{"INFORMATION ON Initech", "Initech"},
		{"the company Umbrella", "Umbrella"},
		{"Acme Corp", "Acme Corp"},
		{"Aboutique", "Aboutique"},
		{"about", ""},
	}

	for _, tt := range tests {
		t.Run(tt.input, func(t *testing.T) {
			assert.Equal(t, tt.want, ExtractCompanyName(tt.input))
		})
	}
}

func TestFormatProfile(t *testing.T) {
	got := FormatProfile(acme())
	assert.Equal(t, "Acme Corp — Maker of anvils\nSector: Manufacturing\nFinancials: {\"revenue\":\"$5M\"}", got)

	empty := FormatProfile(db.Company{Name: "Bare"})
	assert.Equal(t, "Bare — \nSector: \nFinancials: {}", empty)
}

func TestFormatCatalog(t *testing.T) {
	companies := []db.Company{acme(), {Name: "Globex", Description: "Energy", Sector: "Energy", Financials: db.Financials{}}}

	got := FormatCatalog(companies)
	assert.Equal(t,
		"Company: Acme Corp\nDescription: Maker of anvils\nSector: Manufacturing\nFinancials: {\"revenue\":\"$5M\"}\n\n"+
			"Company: Globex\nDescription: Energy\nSector: Energy\nFinancials: {}",
		got)
}

func TestAnswerCompany_Found(t *testing.T) {
	store := newTestStore(t, acme())
	client := &fakeLLM{}
	g := newGenerator(t, client, store, Options{})

	answer := g.AnswerCompany(context.Background(), "Tell me about Acme Corp")
	assert.Equal(t,
		"Here's what we know about Acme Corp:\nAcme Corp — Maker of anvils\nSector: Manufacturing\nFinancials: {\"revenue\":\"$5M\"}",
		answer)
	assert.Empty(t, client.textCalls())
}

func TestAnswerCompany_FuzzyUsesExtractedName(t *testing.T) {
	store := newTestStore(t, acme())
	g := newGenerator(t, &fakeLLM{}, store, Options{})

	answer := g.AnswerCompany(context.Background(), "Tell me about Acme Crop")
	assert.Contains(t, answer, "Here's what we know about Acme Crop:\nAcme Corp — Maker of anvils")
}

func TestAnswerCompany_NotFound(t *testing.T) {
	store := newTestStore(t, acme())
	g := newGenerator(t, &fakeLLM{}, store, Options{})

	answer := g.AnswerCompany(context.Background(), "Tell me about Zebra Dynamics")
	assert.Equal(t, "Sorry, I couldn't find any information for 'Zebra Dynamics'.", answer)
}

type brokenResolver struct{}

func (brokenResolver) Resolve(context.Context, string) (*resolver.Match, error) {
	return nil, errors.New("connection reset")
}

func TestAnswerCompany_LookupError(t *testing.T) {
	store := newTestStore(t)
	g := NewGenerator(&fakeLLM{}, store, brokenResolver{}, zaptest.NewLogger(t), Options{})

	answer := g.AnswerCompany(context.Background(), "Tell me about Acme")
	assert.Equal(t, "Error looking up 'Acme'.", answer)
}

func TestAnswerCompany_Narrated(t *testing.T) {
	store := newTestStore(t, acme())
	client := &fakeLLM{textReply: "Acme Corp makes anvils and earns $5M."}
	g := newGenerator(t, client, store, Options{NarrateCompany: true})

	answer := g.AnswerCompany(context.Background(), "Tell me about Acme Corp")
	assert.Equal(t, "Acme Corp makes anvils and earns $5M.", answer)

	calls := client.textCalls()
	require.Len(t, calls, 1)
	assert.Contains(t, calls[0].System, "Acme Corp — Maker of anvils")
	assert.Equal(t, "Tell me about Acme Corp", calls[0].Prompt)
}

func TestAnswerCompany_NarrationFailureFallsBack(t *testing.T) {
	store := newTestStore(t, acme())
	client := &fakeLLM{textErr: errors.New("timeout")}
	g := newGenerator(t, client, store, Options{NarrateCompany: true})

	answer := g.AnswerCompany(context.Background(), "Tell me about Acme Corp")
	assert.Contains(t, answer, "Here's what we know about Acme Corp:")
}

func TestAnswerGeneral_EmptyCatalog(t *testing.T) {
	client := &fakeLLM{textReply: "should not be used"}
	g := newGenerator(t, client, newTestStore(t), Options{IncludeCatalog: true})

	answer := g.AnswerGeneral(context.Background(), "What companies do you know?")
	assert.Equal(t, EmptyCatalogReply, answer)
	assert.Empty(t, client.textCalls())
}

func TestAnswerGeneral_WithCatalog(t *testing.T) {
	store := newTestStore(t, acme())
	client := &fakeLLM{textReply: "We track Acme Corp."}
	g := newGenerator(t, client, store, Options{IncludeCatalog: true})

	answer := g.AnswerGeneral(context.Background(), "What companies do you know?")
	assert.Equal(t, "We track Acme Corp.", answer)

	calls := client.textCalls()
	require.Len(t, calls, 1)
	assert.Contains(t, calls[0].System, "Company: Acme Corp\nDescription: Maker of anvils")
	assert.NotContains(t, calls[0].System, "{{.Catalog}}")
	assert.Equal(t, "What companies do you know?", calls[0].Prompt)
}

func TestAnswerGeneral_WithoutCatalog(t *testing.T) {
	store := newTestStore(t, acme())
	client := &fakeLLM{textReply: "Hello!"}
	g := newGenerator(t, client, store, Options{IncludeCatalog: false})

	answer := g.AnswerGeneral(context.Background(), "hello")
	assert.Equal(t, "Hello!", answer)

	calls := client.textCalls()
	require.Len(t, calls, 1)
	assert.NotContains(t, calls[0].System, "Maker of anvils")
}

func TestAnswerGeneral_ModelFailure(t *testing.T) {
	store := newTestStore(t, acme())
	client := &fakeLLM{textErr: errors.New("503")}
	g := newGenerator(t, client, store, Options{IncludeCatalog: true})

	assert.Equal(t, ApologyReply, g.AnswerGeneral(context.Background(), "hello"))
}

func TestFormatProfile_DoesNotEscapeHTML(t *testing.T) {
	c := db.Company{Name: "R&D Labs", Financials: db.Financials{"note": "profit > loss & growing"}}
	assert.Contains(t, FormatProfile(c), `{"note":"profit > loss & growing"}`)
}
