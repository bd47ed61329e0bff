// Package resolver turns staged history rows into one currently-valid Company
// per national identifier.
package resolver

import (
	"context"
	"fmt"
	"log/slog"
	"strings"
	"time"

	company "bizreg/internal/company/models"
	"bizreg/internal/importer/models"
	"bizreg/pkg/textnorm"
)

// DefaultBatchSize caps how many companies are handed to the sink at once.
const DefaultBatchSize = 5000

// Source is the staged data resolution reads. Candidates must arrive ordered
// by identifier, then organization id.
type Source interface {
	CountIdentifiers(ctx context.Context) (int64, error)
	Candidates(ctx context.Context, fn func(models.Candidate) error) error
}

// Sink receives resolved companies in batches.
type Sink func(ctx context.Context, batch []company.Company) error

// Stats summarizes one resolution.
type Stats struct {
	Candidates int64
	Companies  int64
	// Duplicates counts identifiers claimed by more than one organization.
	Duplicates int64
}

// Resolver applies the LowestLexicographic policy to streamed candidates.
type Resolver struct {
	batchSize int
	country   string
	logger    *slog.Logger
}

// New creates a resolver; batchSize <= 0 selects DefaultBatchSize and an empty
// country selects company.DefaultCountry.
func New(batchSize int, country string, logger *slog.Logger) *Resolver {
	if batchSize <= 0 {
		batchSize = DefaultBatchSize
	}
	if country == "" {
		country = company.DefaultCountry
	}
	return &Resolver{batchSize: batchSize, country: country, logger: logger}
}

// Resolve streams candidates from src, keeps exactly one per identifier and
// writes the result to sink. An empty identifier relation or an empty result
// fails the run before anything could be published.
func (r *Resolver) Resolve(ctx context.Context, src Source, importedAt time.Time, sink Sink) (Stats, error) {
	n, err := src.CountIdentifiers(ctx)
	if err != nil {
		return Stats{}, fmt.Errorf("count identifiers: %w", err)
	}
	if n == 0 {
		return Stats{}, models.ErrEmptyIdentifiers
	}

	g := &grouper{
		r:          r,
		importedAt: importedAt,
		sink:       sink,
		buf:        make([]company.Company, 0, r.batchSize),
	}
	err = src.Candidates(ctx, func(c models.Candidate) error {
		return g.add(ctx, c)
	})
	if err != nil {
		return g.stats, fmt.Errorf("resolve candidates: %w", err)
	}
	if err := g.finish(ctx); err != nil {
		return g.stats, err
	}
	if g.stats.Companies == 0 {
		return g.stats, fmt.Errorf("%w: %d identifier rows staged", models.ErrEmptyResolution, n)
	}

	r.logger.InfoContext(ctx, "entities resolved",
		"identifiers_staged", n,
		"candidates", g.stats.Candidates,
		"companies", g.stats.Companies,
		"duplicate_identifiers", g.stats.Duplicates,
	)
	return g.stats, nil
}

// grouper folds consecutive candidates: first per organization, then per
// identifier.
type grouper struct {
	r          *Resolver
	importedAt time.Time
	sink       Sink
	buf        []company.Company
	stats      Stats

	org       *models.Candidate
	best      *models.Candidate
	orgsInGrp int
}

func (g *grouper) add(ctx context.Context, c models.Candidate) error {
	g.stats.Candidates++
	switch {
	case g.org == nil:
		g.org = &c
		return nil
	case c.Identifier != g.org.Identifier:
		if err := g.closeIdentifier(ctx); err != nil {
			return err
		}
		g.org = &c
		return nil
	case c.OrganizationID != g.org.OrganizationID:
		g.closeOrganization()
		g.org = &c
		return nil
	}
	merged := preferWithinOrganization(*g.org, c)
	g.org = &merged
	return nil
}

func (g *grouper) closeOrganization() {
	g.orgsInGrp++
	if g.best == nil || LowestLexicographic(*g.org, *g.best) {
		g.best = g.org
	}
	g.org = nil
}

func (g *grouper) closeIdentifier(ctx context.Context) error {
	g.closeOrganization()
	if g.orgsInGrp > 1 {
		g.stats.Duplicates++
		g.r.logger.DebugContext(ctx, "identifier claimed by several organizations",
			"identifier", g.best.Identifier,
			"organizations", g.orgsInGrp,
			"kept_organization", g.best.OrganizationID,
		)
	}
	g.buf = append(g.buf, g.r.toCompany(*g.best, g.importedAt))
	g.stats.Companies++
	g.best = nil
	g.orgsInGrp = 0
	if len(g.buf) >= g.r.batchSize {
		return g.flush(ctx)
	}
	return nil
}

func (g *grouper) finish(ctx context.Context) error {
	if g.org != nil {
		if err := g.closeIdentifier(ctx); err != nil {
			return err
		}
	}
	return g.flush(ctx)
}

func (g *grouper) flush(ctx context.Context) error {
	if len(g.buf) == 0 {
		return nil
	}
	if err := g.sink(ctx, g.buf); err != nil {
		return fmt.Errorf("write resolved batch: %w", err)
	}
	g.buf = make([]company.Company, 0, g.r.batchSize)
	return nil
}

func (r *Resolver) toCompany(c models.Candidate, importedAt time.Time) company.Company {
	return company.Company{
		Identifier:     c.Identifier,
		Name:           c.Name,
		NormalizedName: textnorm.Normalize(c.Name),
		LegalForm:      c.LegalForm,
		Street:         streetLine(c.Street, c.BuildingNumber),
		City:           c.Municipality,
		PostalCode:     c.PostalCode,
		Country:        r.country,
		Active:         c.Active,
		ImportedAt:     importedAt,
	}
}

// streetLine joins street and building number; either may be missing.
func streetLine(street, number *string) *string {
	parts := make([]string, 0, 2)
	if street != nil && strings.TrimSpace(*street) != "" {
		parts = append(parts, strings.TrimSpace(*street))
	}
	if number != nil && strings.TrimSpace(*number) != "" {
		parts = append(parts, strings.TrimSpace(*number))
	}
	if len(parts) == 0 {
		return nil
	}
	line := strings.Join(parts, " ")
	return &line
}
