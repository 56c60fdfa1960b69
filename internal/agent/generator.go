package agent

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"regexp"
	"strings"

	"go.uber.org/zap"

	"github.com/jonathan/company-agent/internal/db"
	"github.com/jonathan/company-agent/internal/llm"
	"github.com/jonathan/company-agent/internal/metrics"
	"github.com/jonathan/company-agent/internal/prompts"
	"github.com/jonathan/company-agent/internal/resolver"
)

// Fixed replies.
const (
	EmptyCatalogReply = "No companies are currently in the database."
	ApologyReply      = "Sorry, I'm having trouble answering right now. Please try again later."
)

var fillerPhrases = regexp.MustCompile(`(?i)\b(what is|about|tell me about|information on|the company)\b`)

// CatalogReader lists the stored companies.
type CatalogReader interface {
	ListCompanies(ctx context.Context, filter db.CompanyFilter) ([]db.Company, error)
}

// NameResolver finds the company a free-text name refers to.
type NameResolver interface {
	Resolve(ctx context.Context, query string) (*resolver.Match, error)
}

// Options toggles optional generator behaviour.
type Options struct {
	// IncludeCatalog puts every stored company into the general-branch prompt.
	IncludeCatalog bool
	// NarrateCompany asks the LLM to narrate a resolved company profile.
	NarrateCompany bool
}

// Generator produces the answer text for each route.
type Generator struct {
	client   llm.Client
	catalog  CatalogReader
	resolver NameResolver
	logger   *zap.Logger
	opts     Options
}

// NewGenerator creates a Generator.
func NewGenerator(client llm.Client, catalog CatalogReader, resolver NameResolver, logger *zap.Logger, opts Options) *Generator {
	return &Generator{
		client:   client,
		catalog:  catalog,
		resolver: resolver,
		logger:   logger,
		opts:     opts,
	}
}

// AnswerGeneral answers an open question, grounding the model in the catalog.
func (g *Generator) AnswerGeneral(ctx context.Context, message string) string {
	companies, err := g.catalog.ListCompanies(ctx, db.CompanyFilter{})
	if err != nil {
		g.logger.Error("failed to load catalog", zap.Error(err))
		return ApologyReply
	}
	if len(companies) == 0 {
		return EmptyCatalogReply
	}

	system := prompts.MustGet(prompts.ChatFile, prompts.KeyAnswerGeneral)
	if g.opts.IncludeCatalog {
		system = prompts.Format(
			prompts.MustGet(prompts.ChatFile, prompts.KeyAnswerFromCatalog),
			map[string]string{"Catalog": FormatCatalog(companies)},
		)
	}

	answer, err := g.client.GenerateContent(ctx, system, message, llm.TierStandard)
	if err != nil {
		metrics.LLMRequests.WithLabelValues("general", "error").Inc()
		g.logger.Error("general answer failed", zap.Error(err))
		return ApologyReply
	}
	metrics.LLMRequests.WithLabelValues("general", "ok").Inc()
	return answer
}

// AnswerCompany answers a question about one named company.
func (g *Generator) AnswerCompany(ctx context.Context, message string) string {
	name := ExtractCompanyName(message)

	match, err := g.resolver.Resolve(ctx, name)
	if err != nil {
		g.logger.Error("company lookup failed", zap.String("name", name), zap.Error(err))
		return fmt.Sprintf("Error looking up '%s'.", name)
	}
	if match == nil {
		return fmt.Sprintf("Sorry, I couldn't find any information for '%s'.", name)
	}

	g.logger.Debug("resolved company",
		zap.String("name", name),
		zap.String("company", match.Company.Name),
		zap.String("tier", string(match.Tier)),
		zap.Float64("score", match.Score),
	)

	profile := FormatProfile(match.Company)
	formatted := fmt.Sprintf("Here's what we know about %s:\n%s", name, profile)
	if !g.opts.NarrateCompany {
		return formatted
	}

	system := prompts.Format(
		prompts.MustGet(prompts.ChatFile, prompts.KeyNarrateCompany),
		map[string]string{"Profile": profile},
	)
	narrated, err := g.client.GenerateContent(ctx, system, message, llm.TierStandard)
	if err != nil {
		metrics.LLMRequests.WithLabelValues("narrate", "error").Inc()
		g.logger.Warn("narration failed, returning formatted profile", zap.Error(err))
		return formatted
	}
	metrics.LLMRequests.WithLabelValues("narrate", "ok").Inc()
	return narrated
}

// ExtractCompanyName strips filler phrases from message and trims the rest.
func ExtractCompanyName(message string) string {
	return strings.TrimSpace(fillerPhrases.ReplaceAllString(message, ""))
}

// FormatProfile renders a company as the multi-line profile shown to users.
func FormatProfile(c db.Company) string {
	return fmt.Sprintf("%s — %s\nSector: %s\nFinancials: %s",
		c.Name, c.Description, c.Sector, formatFinancials(c.Financials))
}

// FormatCatalog renders companies as blocks for the catalog prompt.
func FormatCatalog(companies []db.Company) string {
	blocks := make([]string, 0, len(companies))
	for _, c := range companies {
		blocks = append(blocks, fmt.Sprintf("Company: %s\nDescription: %s\nSector: %s\nFinancials: %s",
			c.Name, c.Description, c.Sector, formatFinancials(c.Financials)))
	}
	return strings.Join(blocks, "\n\n")
}

func formatFinancials(f db.Financials) string {
	if f == nil {
		return "{}"
	}
	var buf bytes.Buffer
	enc := json.NewEncoder(&buf)
	enc.SetEscapeHTML(false)
	if err := enc.Encode(f); err != nil {
		return "{}"
	}
	return strings.TrimSpace(buf.String())
}
