package models

import (
	"time"
)

// DefaultCountry is stamped on every published company.
const DefaultCountry = "SK"

// Company is one currently-valid registry entity in a published generation.
type Company struct {
	Identifier     string    `json:"identifier"`
	Name           string    `json:"name"`
	NormalizedName string    `json:"-"`
	LegalForm      *string   `json:"legal_form"`
	Street         *string   `json:"street"`
	City           *string   `json:"city"`
	PostalCode     *string   `json:"postal_code"`
	Country        string    `json:"country"`
	Active         bool      `json:"active"`
	ImportedAt     time.Time `json:"imported_at"`
}

// Summary is the search-result projection of a Company.
type Summary struct {
	Identifier string  `json:"identifier"`
	Name       string  `json:"name"`
	LegalForm  *string `json:"legal_form"`
	City       *string `json:"city"`
	PostalCode *string `json:"postal_code"`
	Active     bool    `json:"active"`
}

// Summarize projects c to its search-result form.
func (c Company) Summarize() Summary {
	return Summary{
		Identifier: c.Identifier,
		Name:       c.Name,
		LegalForm:  c.LegalForm,
		City:       c.City,
		PostalCode: c.PostalCode,
		Active:     c.Active,
	}
}

// Counts aggregates the live generation.
type Counts struct {
	Total  int64 `json:"total"`
	Active int64 `json:"active"`
}

// Tier is the name-match class of a search hit; lower ranks first.
type Tier int

const (
	TierExact  Tier = 1
	TierPrefix Tier = 2
	TierFuzzy  Tier = 3
)

// Match is a name-search hit before ranking.
type Match struct {
	Summary
	Tier  Tier
	Score float64
}

// Before reports whether m ranks ahead of o: lower tier first, higher
// similarity first within the fuzzy tier, then name and identifier.
func (m Match) Before(o Match) bool {
	if m.Tier != o.Tier {
		return m.Tier < o.Tier
	}
	if m.Tier == TierFuzzy && m.Score != o.Score {
		return m.Score > o.Score
	}
	if m.Name != o.Name {
		return m.Name < o.Name
	}
	return m.Identifier < o.Identifier
}

func (t Tier) String() string {
	switch t {
	case TierExact:
		return "exact"
	case TierPrefix:
		return "prefix"
	case TierFuzzy:
		return "fuzzy"
	}
	return "unknown"
}
