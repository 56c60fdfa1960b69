// Package resolver maps a free-text company reference to a stored company.
package resolver

import (
	"context"
	"fmt"
	"strings"

	"github.com/pmezard/go-difflib/difflib"

	"github.com/jonathan/company-agent/internal/db"
	"github.com/jonathan/company-agent/internal/metrics"
)

// DefaultFuzzyThreshold is the minimum similarity ratio accepted by the fuzzy tier.
const DefaultFuzzyThreshold = 0.75

// Tier identifies which matching strategy produced a Match.
type Tier string

const (
	TierExact     Tier = "exact"
	TierSubstring Tier = "substring"
	TierFuzzy     Tier = "fuzzy"
)

// CompanyReader is the read-only slice of db.Store the resolver needs.
type CompanyReader interface {
	FindCompaniesByName(ctx context.Context, name string) ([]db.Company, error)
	SearchCompaniesByName(ctx context.Context, fragment string) ([]db.Company, error)
	ListCompanies(ctx context.Context, filter db.CompanyFilter) ([]db.Company, error)
}

// Match is a resolved company together with how it was found.
type Match struct {
	Company db.Company
	Tier    Tier
	// Score is the similarity ratio; 1 for exact and substring matches.
	Score float64
}

// Resolver runs the exact, substring and fuzzy tiers in order.
type Resolver struct {
	store     CompanyReader
	threshold float64
}

// New creates a Resolver. A threshold outside (0, 1] uses DefaultFuzzyThreshold.
func New(store CompanyReader, threshold float64) *Resolver {
	if threshold <= 0 || threshold > 1 {
		threshold = DefaultFuzzyThreshold
	}
	return &Resolver{store: store, threshold: threshold}
}

// Resolve returns the company query refers to, or nil if no tier matched.
func (r *Resolver) Resolve(ctx context.Context, query string) (*Match, error) {
	m, err := r.resolve(ctx, query)
	switch {
	case err != nil:
		metrics.ResolverOutcomes.WithLabelValues("error").Inc()
	case m == nil:
		metrics.ResolverOutcomes.WithLabelValues("none").Inc()
	default:
		metrics.ResolverOutcomes.WithLabelValues(string(m.Tier)).Inc()
	}
	return m, err
}

func (r *Resolver) resolve(ctx context.Context, query string) (*Match, error) {
	exact, err := r.store.FindCompaniesByName(ctx, query)
	if err != nil {
		return nil, fmt.Errorf("exact lookup: %w", err)
	}
	if len(exact) == 1 {
		return &Match{Company: exact[0], Tier: TierExact, Score: 1}, nil
	}

	partial, err := r.store.SearchCompaniesByName(ctx, query)
	if err != nil {
		return nil, fmt.Errorf("substring lookup: %w", err)
	}
	if len(partial) > 0 {
		return &Match{Company: partial[0], Tier: TierSubstring, Score: 1}, nil
	}

	all, err := r.store.ListCompanies(ctx, db.CompanyFilter{})
	if err != nil {
		return nil, fmt.Errorf("fuzzy lookup: %w", err)
	}
	return r.fuzzy(query, all), nil
}

// fuzzy picks the candidate with the highest ratio at or above the
// threshold. Candidates arrive ordered by name, so ties keep the
// lexicographically smallest name.
func (r *Resolver) fuzzy(query string, candidates []db.Company) *Match {
	target := db.NormalizeName(query)

	var best *Match
	for _, c := range candidates {
		score := Ratio(target, db.NormalizeName(c.Name))
		if score < r.threshold {
			continue
		}
		if best == nil || score > best.Score {
			best = &Match{Company: c, Tier: TierFuzzy, Score: score}
		}
	}
	return best
}

// Ratio returns the SequenceMatcher similarity of a and b in [0, 1].
// Two empty strings are identical.
func Ratio(a, b string) float64 {
	m := difflib.NewMatcher(strings.Split(a, ""), strings.Split(b, ""))
	return m.Ratio()
}
