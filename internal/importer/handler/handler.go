package handler

import (
	"context"
	"encoding/json"
	"errors"
	"io"
	"log/slog"
	"net/http"
	"strconv"

	"github.com/go-chi/chi/v5"

	"bizreg/internal/importer/models"
	"bizreg/internal/platform/metrics"
	"bizreg/internal/platform/middleware"
	dErrors "bizreg/pkg/domain-errors"
	"bizreg/pkg/platform/audit"
	"bizreg/pkg/platform/httputil"
	"bizreg/pkg/platform/middleware/admin"
	"bizreg/pkg/platform/middleware/request"
)

const (
	maxBodyBytes      = 4 << 10
	defaultAuditLimit = 50
	maxAuditLimit     = 500
)

// Service defines the import pipeline operations exposed to admins.
type Service interface {
	Start(ctx context.Context, mode models.Mode) (models.Job, error)
	Running() bool
	Last() (models.Result, bool)
}

// Handler handles the admin import endpoints.
type Handler struct {
	logger    *slog.Logger
	pipeline  Service
	metrics   *metrics.Metrics
	authorize func(http.Handler) http.Handler
	audit     audit.Store
}

type Option func(*Handler)

// WithAudit records trigger outcomes and exposes them on GET /admin/audit.
func WithAudit(store audit.Store) Option {
	return func(h *Handler) {
		h.audit = store
	}
}

// New creates a new import Handler. authorize guards every route.
func New(pipeline Service, authorize func(http.Handler) http.Handler, logger *slog.Logger, metrics *metrics.Metrics, opts ...Option) *Handler {
	h := &Handler{
		logger:    logger,
		pipeline:  pipeline,
		metrics:   metrics,
		authorize: authorize,
	}
	for _, opt := range opts {
		opt(h)
	}
	return h
}

// Register registers the admin routes with the chi router.
func (h *Handler) Register(r chi.Router) {
	adminRouter := chi.NewRouter()
	adminRouter.Use(middleware.LatencyMiddleware(h.metrics))
	if h.authorize != nil {
		adminRouter.Use(h.authorize)
	}
	adminRouter.With(middleware.ContentTypeJSON).Post("/import", h.handleTrigger)
	adminRouter.Get("/import", h.handleStatus)
	if h.audit != nil {
		adminRouter.Get("/audit", h.handleAudit)
	}

	r.Mount("/admin", adminRouter)
}

func (h *Handler) handleTrigger(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	requestID := request.GetRequestID(ctx)

	req := models.TriggerRequest{Mode: models.ModeFull}
	err := json.NewDecoder(io.LimitReader(r.Body, maxBodyBytes)).Decode(&req)
	if err != nil && !errors.Is(err, io.EOF) {
		h.logger.WarnContext(ctx, "invalid import request",
			"request_id", requestID,
			"error", err.Error(),
		)
		httputil.WriteError(w, dErrors.New(dErrors.CodeBadRequest, "invalid request body"))
		return
	}

	job, err := h.pipeline.Start(ctx, req.Mode)
	if err != nil {
		switch {
		case errors.Is(err, models.ErrAlreadyRunning):
			h.logger.InfoContext(ctx, "import trigger rejected, run in progress",
				"request_id", requestID,
			)
			h.record(ctx, audit.ActionImportRejected, "", "run in progress")
			httputil.WriteError(w, dErrors.Wrap(err, dErrors.CodeConflict, "an import is already running"))
		case dErrors.HasCode(err, dErrors.CodeBadRequest):
			httputil.WriteError(w, err)
		default:
			h.logger.ErrorContext(ctx, "failed to start import",
				"request_id", requestID,
				"error", err.Error(),
			)
			h.record(ctx, audit.ActionImportFailed, "", "start failed")
			httputil.WriteError(w, dErrors.Wrap(err, dErrors.CodeInternal, "failed to start import"))
		}
		return
	}

	h.logger.InfoContext(ctx, "import started",
		"request_id", requestID,
		"job_id", job.ID.String(),
	)
	h.record(ctx, audit.ActionImportTriggered, job.ID.String(), string(req.Mode))
	httputil.WriteJSON(w, http.StatusAccepted, models.TriggerResponse{
		JobID:  job.ID.String(),
		Status: job.Status,
	})
}

func (h *Handler) handleStatus(w http.ResponseWriter, r *http.Request) {
	resp := models.StatusResponse{Running: h.pipeline.Running()}
	if last, ok := h.pipeline.Last(); ok {
		summary := last.Summarize()
		resp.Last = &summary
	}
	httputil.WriteJSON(w, http.StatusOK, resp)
}

func (h *Handler) handleAudit(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	limit := defaultAuditLimit
	if raw := r.URL.Query().Get("limit"); raw != "" {
		n, err := strconv.Atoi(raw)
		if err != nil || n <= 0 {
			httputil.WriteError(w, dErrors.New(dErrors.CodeBadRequest, "limit must be a positive integer"))
			return
		}
		limit = min(n, maxAuditLimit)
	}

	events, err := h.audit.ListRecent(ctx, limit)
	if err != nil {
		h.logger.ErrorContext(ctx, "failed to list audit events",
			"request_id", request.GetRequestID(ctx),
			"error", err.Error(),
		)
		httputil.WriteError(w, dErrors.Wrap(err, dErrors.CodeInternal, "failed to list audit events"))
		return
	}
	if events == nil {
		events = []audit.Event{}
	}
	httputil.WriteJSON(w, http.StatusOK, map[string]any{"events": events})
}

// record never fails the request; a lost audit entry is logged instead.
func (h *Handler) record(ctx context.Context, action audit.Action, subject, detail string) {
	if h.audit == nil {
		return
	}
	err := h.audit.Append(ctx, audit.Event{
		Action:    action,
		Actor:     admin.GetActor(ctx),
		Subject:   subject,
		Detail:    detail,
		RequestID: request.GetRequestID(ctx),
	})
	if err != nil {
		h.logger.ErrorContext(ctx, "failed to record audit event",
			"request_id", request.GetRequestID(ctx),
			"action", action,
			"error", err.Error(),
		)
	}
}
