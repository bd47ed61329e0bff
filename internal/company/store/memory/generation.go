package memory

import (
	"context"
	"fmt"
	"sort"
	"strings"

	"bizreg/internal/company/models"
	"bizreg/pkg/platform/sentinel"
	"bizreg/pkg/trigram"
)

// Generation is one immutable snapshot of published companies. After Seal it
// is only read, so concurrent readers need no locking.
type Generation struct {
	id        int64
	companies []models.Company
	byID      map[string]int

	// populated by seal
	byName   []int // company positions ordered by normalized name
	gramSize []int
	postings map[string][]int
	counts   models.Counts
	sealed   bool
}

func newGeneration(id int64) *Generation {
	return &Generation{id: id, byID: make(map[string]int)}
}

// ID returns the generation number.
func (g *Generation) ID() int64 { return g.id }

func (g *Generation) add(batch []models.Company) error {
	if g.sealed {
		return fmt.Errorf("generation %d: %w", g.id, sentinel.ErrInvalidState)
	}
	for _, c := range batch {
		if _, dup := g.byID[c.Identifier]; dup {
			return fmt.Errorf("generation %d: duplicate identifier %s: %w", g.id, c.Identifier, sentinel.ErrConflict)
		}
		g.byID[c.Identifier] = len(g.companies)
		g.companies = append(g.companies, c)
	}
	return nil
}

func (g *Generation) seal() {
	sort.Slice(g.companies, func(i, j int) bool {
		return g.companies[i].Identifier < g.companies[j].Identifier
	})
	g.byID = make(map[string]int, len(g.companies))
	g.byName = make([]int, len(g.companies))
	g.gramSize = make([]int, len(g.companies))
	g.postings = make(map[string][]int)
	g.counts = models.Counts{}

	for i, c := range g.companies {
		g.byID[c.Identifier] = i
		g.byName[i] = i
		grams := trigram.Set(c.NormalizedName)
		g.gramSize[i] = len(grams)
		for _, gram := range grams {
			g.postings[gram] = append(g.postings[gram], i)
		}
		g.counts.Total++
		if c.Active {
			g.counts.Active++
		}
	}
	sort.SliceStable(g.byName, func(i, j int) bool {
		return g.companies[g.byName[i]].NormalizedName < g.companies[g.byName[j]].NormalizedName
	})
	g.sealed = true
}

// MatchIdentifier returns companies whose identifier starts with prefix in
// identifier order, which puts an exact match first.
func (g *Generation) MatchIdentifier(_ context.Context, prefix string, limit int, includeInactive bool) ([]models.Summary, error) {
	start := sort.Search(len(g.companies), func(i int) bool {
		return g.companies[i].Identifier >= prefix
	})
	out := make([]models.Summary, 0, limit)
	for i := start; i < len(g.companies) && len(out) < limit; i++ {
		c := g.companies[i]
		if !strings.HasPrefix(c.Identifier, prefix) {
			break
		}
		if c.Active || includeInactive {
			out = append(out, c.Summarize())
		}
	}
	return out, nil
}

// MatchName returns, for each tier, at most limit best-ranked hits. A company
// appears only in the best tier it qualifies for.
func (g *Generation) MatchName(_ context.Context, q string, threshold float64, limit int, includeInactive bool) ([]models.Match, error) {
	var exact, prefix []models.Match

	start := sort.Search(len(g.byName), func(i int) bool {
		return g.companies[g.byName[i]].NormalizedName >= q
	})
	for _, pos := range g.byName[start:] {
		c := g.companies[pos]
		if !strings.HasPrefix(c.NormalizedName, q) {
			break
		}
		if !c.Active && !includeInactive {
			continue
		}
		if c.NormalizedName == q {
			exact = append(exact, models.Match{Summary: c.Summarize(), Tier: models.TierExact, Score: 1})
		} else {
			prefix = append(prefix, models.Match{Summary: c.Summarize(), Tier: models.TierPrefix})
		}
	}

	qgrams := trigram.Set(q)
	shared := make(map[int]int)
	for _, gram := range qgrams {
		for _, pos := range g.postings[gram] {
			shared[pos]++
		}
	}
	var fuzzy []models.Match
	for pos, n := range shared {
		c := g.companies[pos]
		if strings.HasPrefix(c.NormalizedName, q) || (!c.Active && !includeInactive) {
			continue
		}
		score := trigram.Jaccard(n, len(qgrams), g.gramSize[pos])
		if score >= threshold {
			fuzzy = append(fuzzy, models.Match{Summary: c.Summarize(), Tier: models.TierFuzzy, Score: score})
		}
	}

	out := make([]models.Match, 0, 3*limit)
	for _, tier := range [][]models.Match{exact, prefix, fuzzy} {
		sort.Slice(tier, func(i, j int) bool { return tier[i].Before(tier[j]) })
		if len(tier) > limit {
			tier = tier[:limit]
		}
		out = append(out, tier...)
	}
	return out, nil
}

func (g *Generation) Get(_ context.Context, identifier string) (*models.Company, error) {
	pos, ok := g.byID[identifier]
	if !ok {
		return nil, fmt.Errorf("company %s: %w", identifier, sentinel.ErrNotFound)
	}
	c := g.companies[pos]
	return &c, nil
}

func (g *Generation) Count(_ context.Context) (models.Counts, error) {
	return g.counts, nil
}
