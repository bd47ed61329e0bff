package handler

import (
	"context"
	"errors"
	"log/slog"
	"net/http"
	"time"

	"github.com/go-chi/chi/v5"

	"bizreg/internal/company/models"
	"bizreg/internal/company/search"
	enrichModels "bizreg/internal/enrichment/models"
	rlModels "bizreg/internal/ratelimit/models"
	"bizreg/internal/platform/metrics"
	"bizreg/internal/platform/middleware"
	dErrors "bizreg/pkg/domain-errors"
	"bizreg/pkg/platform/httputil"
	"bizreg/pkg/platform/middleware/request"
	"bizreg/pkg/platform/sentinel"
)

// Service defines the read operations over the live generation.
type Service interface {
	Search(ctx context.Context, q search.Query) ([]models.Summary, error)
	Get(ctx context.Context, identifier string) (*models.Company, error)
	Count(ctx context.Context) (models.Counts, error)
}

// Enricher decorates a company with downstream registry data.
type Enricher interface {
	Enrich(ctx context.Context, c models.Company) enrichModels.Result
}

// Limiter wraps routes of an endpoint class with per-client rate limiting.
type Limiter interface {
	RateLimit(class rlModels.EndpointClass) func(http.Handler) http.Handler
}

// Handler handles the public company endpoints.
type Handler struct {
	logger   *slog.Logger
	service  Service
	enricher Enricher
	metrics  *metrics.Metrics
	limiter  Limiter
	timeout  time.Duration
}

type Option func(*Handler)

func WithLimiter(l Limiter) Option {
	return func(h *Handler) {
		h.limiter = l
	}
}

// New creates a new company Handler. enricher may be nil, in which case the
// detail endpoint reports every downstream field as unavailable.
func New(service Service, enricher Enricher, logger *slog.Logger, metrics *metrics.Metrics, opts ...Option) *Handler {
	h := &Handler{
		logger:   logger,
		service:  service,
		enricher: enricher,
		metrics:  metrics,
		timeout:  10 * time.Second,
	}
	for _, opt := range opts {
		opt(h)
	}
	return h
}

func (h *Handler) limit(class rlModels.EndpointClass) func(http.Handler) http.Handler {
	if h.limiter == nil {
		return func(next http.Handler) http.Handler { return next }
	}
	return h.limiter.RateLimit(class)
}

// Register registers the company routes with the chi router.
func (h *Handler) Register(r chi.Router) {
	companyRouter := chi.NewRouter()
	companyRouter.Use(middleware.Timeout(h.timeout))
	companyRouter.Use(middleware.LatencyMiddleware(h.metrics))
	companyRouter.With(h.limit(rlModels.ClassSearch)).Get("/search", h.handleSearch)
	companyRouter.Group(func(r chi.Router) {
		r.Use(h.limit(rlModels.ClassRead))
		r.Get("/stats", h.handleStats)
		r.Get("/{identifier}", h.handleGet)
		r.Get("/{identifier}/detail", h.handleDetail)
	})

	r.Mount("/companies", companyRouter)
}

func (h *Handler) handleSearch(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	requestID := request.GetRequestID(ctx)
	qs := r.URL.Query()

	req, err := models.ParseSearchRequest(qs.Get("q"), qs.Get("limit"), qs.Get("include_inactive"))
	if err != nil {
		h.logger.WarnContext(ctx, "invalid search request",
			"request_id", requestID,
			"error", err.Error(),
		)
		httputil.WriteError(w, err)
		return
	}

	results, err := h.service.Search(ctx, search.Query{
		Text:            req.Query,
		Limit:           req.Limit,
		IncludeInactive: req.IncludeInactive,
	})
	if err != nil {
		h.logger.ErrorContext(ctx, "search failed",
			"request_id", requestID,
			"error", err.Error(),
		)
		httputil.WriteError(w, dErrors.Wrap(err, dErrors.CodeInternal, "search failed"))
		return
	}
	if results == nil {
		results = []models.Summary{}
	}
	httputil.WriteJSON(w, http.StatusOK, models.SearchResponse{Results: results, Count: len(results)})
}

func (h *Handler) handleGet(w http.ResponseWriter, r *http.Request) {
	c, ok := h.lookup(w, r)
	if !ok {
		return
	}
	httputil.WriteJSON(w, http.StatusOK, c)
}

func (h *Handler) handleDetail(w http.ResponseWriter, r *http.Request) {
	c, ok := h.lookup(w, r)
	if !ok {
		return
	}
	if h.enricher == nil {
		httputil.WriteJSON(w, http.StatusOK, enrichModels.Result{
			Company:     *c,
			Unavailable: []string{enrichModels.FieldDetail, enrichModels.FieldStakeholders},
		})
		return
	}
	httputil.WriteJSON(w, http.StatusOK, h.enricher.Enrich(r.Context(), *c))
}

func (h *Handler) handleStats(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	counts, err := h.service.Count(ctx)
	if err != nil {
		h.logger.ErrorContext(ctx, "count failed",
			"request_id", request.GetRequestID(ctx),
			"error", err.Error(),
		)
		httputil.WriteError(w, dErrors.Wrap(err, dErrors.CodeInternal, "count failed"))
		return
	}
	httputil.WriteJSON(w, http.StatusOK, counts)
}

// lookup resolves the {identifier} path parameter and writes the error
// response itself when it fails.
func (h *Handler) lookup(w http.ResponseWriter, r *http.Request) (*models.Company, bool) {
	ctx := r.Context()
	requestID := request.GetRequestID(ctx)
	raw := chi.URLParam(r, "identifier")

	c, err := h.service.Get(ctx, raw)
	switch {
	case err == nil:
		return c, true
	case dErrors.HasCode(err, dErrors.CodeInvalidInput):
		h.logger.WarnContext(ctx, "invalid identifier",
			"request_id", requestID,
			"identifier", raw,
		)
		httputil.WriteError(w, err)
	case errors.Is(err, sentinel.ErrNotFound):
		httputil.WriteError(w, dErrors.Wrap(err, dErrors.CodeNotFound, "company not found"))
	default:
		h.logger.ErrorContext(ctx, "company lookup failed",
			"request_id", requestID,
			"identifier", raw,
			"error", err.Error(),
		)
		httputil.WriteError(w, dErrors.Wrap(err, dErrors.CodeInternal, "lookup failed"))
	}
	return nil, false
}
