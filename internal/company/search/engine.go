// Package search answers company queries against the live generation.
package search

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"sort"
	"strings"
	"time"

	"bizreg/internal/company/metrics"
	"bizreg/internal/company/models"
	"bizreg/pkg/domain"
	"bizreg/pkg/platform/sentinel"
	"bizreg/pkg/textnorm"
)

const (
	DefaultLimit     = 20
	MaxLimit         = 50
	DefaultThreshold = 0.3
)

// Backend evaluates matches against a single generation per call.
type Backend interface {
	// MatchIdentifier returns companies whose identifier starts with prefix,
	// in identifier order.
	MatchIdentifier(ctx context.Context, prefix string, limit int, includeInactive bool) ([]models.Summary, error)
	// MatchName returns up to limit best hits per tier; each company appears
	// in its best tier only.
	MatchName(ctx context.Context, q string, threshold float64, limit int, includeInactive bool) ([]models.Match, error)
	Get(ctx context.Context, identifier string) (*models.Company, error)
	Count(ctx context.Context) (models.Counts, error)
}

// Query is one search request.
type Query struct {
	Text            string
	Limit           int
	IncludeInactive bool
}

// Engine implements tiered name search and identifier lookup.
type Engine struct {
	backend   Backend
	threshold float64
	logger    *slog.Logger
	metrics   *metrics.Metrics
}

// Option configures an Engine.
type Option func(*Engine)

// WithThreshold sets the minimum trigram similarity of fuzzy matches.
func WithThreshold(t float64) Option {
	return func(e *Engine) {
		if t > 0 && t <= 1 {
			e.threshold = t
		}
	}
}

func WithLogger(logger *slog.Logger) Option {
	return func(e *Engine) { e.logger = logger }
}

func WithMetrics(m *metrics.Metrics) Option {
	return func(e *Engine) { e.metrics = m }
}

func New(backend Backend, opts ...Option) *Engine {
	e := &Engine{backend: backend, threshold: DefaultThreshold, logger: slog.Default()}
	for _, opt := range opts {
		opt(e)
	}
	return e
}

// Threshold returns the configured fuzzy similarity threshold.
func (e *Engine) Threshold() float64 { return e.threshold }

// ClampLimit applies the default and the upper bound to a requested limit.
func ClampLimit(limit int) int {
	switch {
	case limit <= 0:
		return DefaultLimit
	case limit > MaxLimit:
		return MaxLimit
	}
	return limit
}

// Search runs an identifier prefix search for all-digit input and a tiered
// name search otherwise.
func (e *Engine) Search(ctx context.Context, q Query) ([]models.Summary, error) {
	start := time.Now()
	text := strings.TrimSpace(q.Text)
	limit := ClampLimit(q.Limit)

	if textnorm.IsDigits(text) {
		out, err := e.backend.MatchIdentifier(ctx, text, limit, q.IncludeInactive)
		if err != nil {
			return nil, fmt.Errorf("identifier search: %w", err)
		}
		e.metrics.ObserveSearch("identifier", len(out), time.Since(start))
		return out, nil
	}

	normalized := textnorm.Normalize(text)
	if normalized == "" {
		return []models.Summary{}, nil
	}
	matches, err := e.backend.MatchName(ctx, normalized, e.threshold, limit, q.IncludeInactive)
	if err != nil {
		return nil, fmt.Errorf("name search: %w", err)
	}
	ranked := Rank(matches, limit)

	out := make([]models.Summary, len(ranked))
	for i, m := range ranked {
		out[i] = m.Summary
		e.metrics.IncTier(m.Tier.String())
	}
	e.metrics.ObserveSearch("name", len(out), time.Since(start))
	e.logger.DebugContext(ctx, "name search", "query", normalized, "candidates", len(matches), "results", len(out))
	return out, nil
}

// Rank orders matches by tier, then similarity within the fuzzy tier, then
// name and identifier, and keeps the first limit.
func Rank(matches []models.Match, limit int) []models.Match {
	sorted := make([]models.Match, len(matches))
	copy(sorted, matches)
	sort.SliceStable(sorted, func(i, j int) bool { return sorted[i].Before(sorted[j]) })
	if limit >= 0 && len(sorted) > limit {
		sorted = sorted[:limit]
	}
	return sorted
}

// Get looks up one company; raw is zero-padded to the identifier width first.
func (e *Engine) Get(ctx context.Context, raw string) (*models.Company, error) {
	id, err := domain.ParseIdentifier(raw)
	if err != nil {
		return nil, err
	}
	c, err := e.backend.Get(ctx, id.String())
	if err != nil {
		if errors.Is(err, sentinel.ErrNotFound) {
			e.metrics.IncLookup("not_found")
		} else {
			e.metrics.IncLookup("error")
		}
		return nil, err
	}
	e.metrics.IncLookup("found")
	return c, nil
}

// Count reports total and active companies of the live generation.
func (e *Engine) Count(ctx context.Context) (models.Counts, error) {
	counts, err := e.backend.Count(ctx)
	if err != nil {
		return models.Counts{}, fmt.Errorf("count companies: %w", err)
	}
	return counts, nil
}
