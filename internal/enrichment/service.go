// Package enrichment decorates a published company with data from downstream
// registries. Each downstream field degrades on its own: a failed provider is
// reported in Result.Unavailable and never fails the whole lookup.
package enrichment

import (
	"context"
	"errors"
	"log/slog"
	"time"

	"golang.org/x/sync/errgroup"

	company "bizreg/internal/company/models"
	"bizreg/internal/enrichment/cache"
	"bizreg/internal/enrichment/metrics"
	"bizreg/internal/enrichment/models"
	"bizreg/internal/enrichment/providers"
)

// Service fetches detail and stakeholders concurrently, through optional caches.
type Service struct {
	details      providers.DetailClient
	stakeholders providers.StakeholderClient
	detailCache  cache.Cache[models.Detail]
	holderCache  cache.Cache[[]models.Stakeholder]
	logger       *slog.Logger
	metrics      *metrics.Metrics
}

// Option configures a Service.
type Option func(*Service)

func WithDetailCache(c cache.Cache[models.Detail]) Option {
	return func(s *Service) { s.detailCache = c }
}

func WithStakeholderCache(c cache.Cache[[]models.Stakeholder]) Option {
	return func(s *Service) { s.holderCache = c }
}

func WithLogger(l *slog.Logger) Option {
	return func(s *Service) {
		if l != nil {
			s.logger = l
		}
	}
}

func WithMetrics(m *metrics.Metrics) Option {
	return func(s *Service) { s.metrics = m }
}

// New creates a Service. A nil client marks its field as permanently unavailable.
func New(details providers.DetailClient, stakeholders providers.StakeholderClient, opts ...Option) *Service {
	s := &Service{
		details:      details,
		stakeholders: stakeholders,
		logger:       slog.Default(),
	}
	for _, opt := range opts {
		opt(s)
	}
	return s
}

// Enrich returns c with whatever downstream data could be fetched.
func (s *Service) Enrich(ctx context.Context, c company.Company) models.Result {
	res := models.Result{Company: c, Unavailable: []string{}}

	var (
		detail     *models.Detail
		holders    []models.Stakeholder
		detailErr  error
		holdersErr error
	)

	var g errgroup.Group
	g.Go(func() error {
		detail, detailErr = s.detail(ctx, c.Identifier)
		return nil
	})
	g.Go(func() error {
		holders, holdersErr = s.holders(ctx, c.Identifier)
		return nil
	})
	_ = g.Wait()

	if detailErr != nil {
		s.degrade(ctx, &res, models.FieldDetail, c.Identifier, detailErr)
	} else {
		res.Detail = detail
	}
	if holdersErr != nil {
		s.degrade(ctx, &res, models.FieldStakeholders, c.Identifier, holdersErr)
	} else {
		res.Stakeholders = holders
	}
	return res
}

// Purge empties both caches. The server calls it after every published
// generation so detail pages never outlive the company data they decorate.
func (s *Service) Purge(ctx context.Context) error {
	var errs []error
	if s.detailCache != nil {
		errs = append(errs, s.detailCache.Purge(ctx))
	}
	if s.holderCache != nil {
		errs = append(errs, s.holderCache.Purge(ctx))
	}
	return errors.Join(errs...)
}

var errNotConfigured = errors.New("provider not configured")

func (s *Service) detail(ctx context.Context, id string) (*models.Detail, error) {
	if s.details == nil {
		return nil, errNotConfigured
	}
	if s.detailCache != nil {
		if cached, ok := lookupCache(ctx, s, s.detailCache, models.FieldDetail, id); ok {
			return &cached, nil
		}
	}
	start := time.Now()
	d, err := s.details.Lookup(ctx, id)
	s.metrics.ObserveProvider(models.FieldDetail, time.Since(start))
	if err != nil {
		return nil, err
	}
	if s.detailCache != nil && d != nil {
		storeCache(ctx, s, s.detailCache, id, *d)
	}
	return d, nil
}

func (s *Service) holders(ctx context.Context, id string) ([]models.Stakeholder, error) {
	if s.stakeholders == nil {
		return nil, errNotConfigured
	}
	if s.holderCache != nil {
		if cached, ok := lookupCache(ctx, s, s.holderCache, models.FieldStakeholders, id); ok {
			return cached, nil
		}
	}
	start := time.Now()
	h, err := s.stakeholders.Lookup(ctx, id)
	s.metrics.ObserveProvider(models.FieldStakeholders, time.Since(start))
	if err != nil {
		return nil, err
	}
	if h == nil {
		h = []models.Stakeholder{}
	}
	if s.holderCache != nil {
		storeCache(ctx, s, s.holderCache, id, h)
	}
	return h, nil
}

func lookupCache[T any](ctx context.Context, s *Service, c cache.Cache[T], field, id string) (T, bool) {
	v, err := c.Get(ctx, id)
	switch {
	case err == nil:
		s.metrics.IncCache(field, "hit")
		return v, true
	case errors.Is(err, cache.ErrMiss):
		s.metrics.IncCache(field, "miss")
	default:
		s.logger.WarnContext(ctx, "enrichment cache read failed", "field", field, "error", err)
	}
	var zero T
	return zero, false
}

func storeCache[T any](ctx context.Context, s *Service, c cache.Cache[T], id string, v T) {
	if err := c.Set(ctx, id, v); err != nil {
		s.logger.WarnContext(ctx, "enrichment cache write failed", "identifier", id, "error", err)
	}
}

func (s *Service) degrade(ctx context.Context, res *models.Result, field, id string, err error) {
	res.Unavailable = append(res.Unavailable, field)
	category := string(providers.GetCategory(err))
	if errors.Is(err, errNotConfigured) {
		category = "not_configured"
	}
	s.metrics.IncProviderError(field, category)
	s.metrics.IncDegraded(field)
	s.logger.WarnContext(ctx, "enrichment field unavailable",
		"field", field,
		"identifier", id,
		"category", category,
		"error", err,
	)
}
