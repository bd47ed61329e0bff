// Package service runs the import pipeline: download, parse, stage, resolve
// and publish, one run at a time.
package service

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"sync"
	"sync/atomic"
	"time"

	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	"go.opentelemetry.io/otel/trace"

	"bizreg/internal/importer/dump"
	"bizreg/internal/importer/events"
	"bizreg/internal/importer/metrics"
	"bizreg/internal/importer/models"
	"bizreg/internal/importer/publisher"
	"bizreg/internal/importer/resolver"
	"bizreg/internal/importer/source"
	"bizreg/internal/importer/staging"
	"bizreg/pkg/domain"
	dErrors "bizreg/pkg/domain-errors"
)

const tracerName = "bizreg/importer"

// Pipeline orchestrates import runs. A run holds the staging store's run lock
// from start to finish, so at most one run is active across every process
// sharing the staging backend.
type Pipeline struct {
	opener    source.Opener
	layout    dump.Layout
	loader    *staging.Loader
	resolver  *resolver.Resolver
	publisher *publisher.Publisher

	events  events.Publisher
	hooks   []PublishHook
	logger  *slog.Logger
	metrics *metrics.Metrics
	tracer  trace.Tracer
	now     func() time.Time

	running atomic.Bool
	wg      sync.WaitGroup

	mu   sync.Mutex
	last *models.Result
}

type Option func(p *Pipeline)

// PublishHook runs after a generation went live. Its error is logged only.
type PublishHook func(ctx context.Context, res models.Result) error

func WithLogger(logger *slog.Logger) Option {
	return func(p *Pipeline) {
		p.logger = logger
	}
}

func WithMetrics(m *metrics.Metrics) Option {
	return func(p *Pipeline) {
		p.metrics = m
	}
}

func WithEvents(pub events.Publisher) Option {
	return func(p *Pipeline) {
		p.events = pub
	}
}

func WithPublishHook(hook PublishHook) Option {
	return func(p *Pipeline) {
		p.hooks = append(p.hooks, hook)
	}
}

func WithLayout(layout dump.Layout) Option {
	return func(p *Pipeline) {
		p.layout = layout
	}
}

func WithClock(now func() time.Time) Option {
	return func(p *Pipeline) {
		p.now = now
	}
}

// New constructs a Pipeline reading dumps from opener.
func New(opener source.Opener, loader *staging.Loader, res *resolver.Resolver, pub *publisher.Publisher, opts ...Option) *Pipeline {
	p := &Pipeline{
		opener:    opener,
		layout:    dump.DefaultLayout(),
		loader:    loader,
		resolver:  res,
		publisher: pub,
		logger:    slog.Default(),
		tracer:    otel.Tracer(tracerName),
		now:       time.Now,
	}
	for _, opt := range opts {
		opt(p)
	}
	if p.events == nil {
		p.events = events.NewLogPublisher(p.logger)
	}
	return p
}

func parseMode(mode models.Mode) error {
	if mode != models.ModeFull {
		return dErrors.New(dErrors.CodeBadRequest, fmt.Sprintf("unsupported import mode %q", mode))
	}
	return nil
}

// Start launches a run in the background and returns its job id right away.
// The run is detached from ctx cancellation.
func (p *Pipeline) Start(ctx context.Context, mode models.Mode) (models.Job, error) {
	if err := parseMode(mode); err != nil {
		return models.Job{}, err
	}
	release, err := p.acquire(ctx)
	if err != nil {
		return models.Job{}, err
	}
	job := domain.NewJobID()
	runCtx := context.WithoutCancel(ctx)

	p.wg.Add(1)
	go func() {
		defer p.wg.Done()
		defer p.running.Store(false)
		defer release()
		p.execute(runCtx, job)
	}()
	return models.Job{ID: job, Status: models.StatusStarted}, nil
}

// Run executes an import synchronously. The returned error is the run's
// failure, also recorded in Result.Err.
func (p *Pipeline) Run(ctx context.Context, mode models.Mode) (models.Result, error) {
	if err := parseMode(mode); err != nil {
		return models.Result{}, err
	}
	release, err := p.acquire(ctx)
	if err != nil {
		return models.Result{}, err
	}
	defer p.running.Store(false)
	defer release()

	res := p.execute(ctx, domain.NewJobID())
	return res, res.Err
}

// acquire claims the in-process flag, then the cross-process run lock.
func (p *Pipeline) acquire(ctx context.Context) (func(), error) {
	if !p.running.CompareAndSwap(false, true) {
		return nil, models.ErrAlreadyRunning
	}
	release, err := p.loader.Store().Acquire(ctx)
	if err != nil {
		p.running.Store(false)
		if errors.Is(err, models.ErrAlreadyRunning) {
			return nil, err
		}
		return nil, fmt.Errorf("acquire import lock: %w", err)
	}
	return release, nil
}

// Running reports whether this process has a run in progress.
func (p *Pipeline) Running() bool {
	return p.running.Load()
}

// Last returns the result of the most recent finished run.
func (p *Pipeline) Last() (models.Result, bool) {
	p.mu.Lock()
	defer p.mu.Unlock()
	if p.last == nil {
		return models.Result{}, false
	}
	return *p.last, true
}

// Wait blocks until background runs and generation drops have finished.
func (p *Pipeline) Wait() {
	p.wg.Wait()
	p.publisher.Wait()
}

func (p *Pipeline) execute(ctx context.Context, job domain.JobID) models.Result {
	ctx, span := p.tracer.Start(ctx, "import.run", trace.WithAttributes(attribute.String("job_id", job.String())))
	defer span.End()

	res := models.Result{JobID: job, StartedAt: p.now()}
	logger := p.logger.With("job_id", job.String())
	logger.InfoContext(ctx, "import started")

	err := p.run(ctx, logger, &res)
	res.Duration = p.now().Sub(res.StartedAt)
	if err != nil {
		res.Status = models.StatusFailed
		res.Err = err
		span.RecordError(err)
		span.SetStatus(codes.Error, "import failed")
		logger.ErrorContext(ctx, "import failed", "error", err, "duration", res.Duration)
	} else {
		res.Status = models.StatusOK
		logger.InfoContext(ctx, "import finished",
			"generation", res.Generation,
			"companies", res.Companies,
			"skipped", res.Skipped,
			"duration", res.Duration,
		)
		for _, hook := range p.hooks {
			if herr := hook(ctx, res); herr != nil {
				logger.WarnContext(ctx, "publish hook failed", "error", herr)
			}
		}
	}
	p.metrics.ObserveRun(string(res.Status), res.Duration)

	if perr := p.events.Publish(ctx, events.FromResult(res, p.now())); perr != nil {
		logger.WarnContext(ctx, "failed to publish import event", "error", perr)
	}

	p.mu.Lock()
	p.last = &res
	p.mu.Unlock()
	return res
}

func (p *Pipeline) run(ctx context.Context, logger *slog.Logger, res *models.Result) error {
	if err := p.publisher.Prepare(ctx); err != nil {
		logger.WarnContext(ctx, "orphan cleanup failed", "error", err)
	}

	stats, err := p.stage(ctx)
	res.Skipped = stats.Skipped
	if err != nil {
		return err
	}

	shadow, err := p.publisher.Begin(ctx)
	if err != nil {
		return err
	}

	rctx, span := p.tracer.Start(ctx, "import.resolve")
	resolved, err := p.resolver.Resolve(rctx, p.loader.Store(), res.StartedAt, shadow.Write)
	span.SetAttributes(attribute.Int64("companies", resolved.Companies))
	endSpan(span, err)
	if err != nil {
		p.publisher.Abort(ctx, shadow)
		return fmt.Errorf("resolve: %w", err)
	}

	pctx, span := p.tracer.Start(ctx, "import.publish")
	pub, err := p.publisher.Commit(pctx, shadow, resolved.Companies)
	endSpan(span, err)
	if err != nil {
		return fmt.Errorf("publish: %w", err)
	}
	res.Generation = pub.Generation
	res.Companies = resolved.Companies

	if err := p.loader.Store().Drop(ctx); err != nil {
		logger.WarnContext(ctx, "failed to drop staging", "error", err)
	}
	return nil
}

func (p *Pipeline) stage(ctx context.Context) (staging.LoadStats, error) {
	ctx, span := p.tracer.Start(ctx, "import.stage")
	stats, err := p.load(ctx)
	span.SetAttributes(
		attribute.Int64("lines", stats.Lines),
		attribute.Int64("skipped", stats.Skipped),
		attribute.Int("batches", stats.Batches),
	)
	endSpan(span, err)
	return stats, err
}

func (p *Pipeline) load(ctx context.Context) (staging.LoadStats, error) {
	rc, err := p.opener.Open(ctx)
	if err != nil {
		return staging.LoadStats{}, fmt.Errorf("open dump: %w", err)
	}
	defer rc.Close()

	stats, err := p.loader.Load(ctx, dump.NewParser(rc, p.layout))
	if err != nil {
		return stats, fmt.Errorf("stage: %w", err)
	}
	return stats, nil
}

func endSpan(span trace.Span, err error) {
	if err != nil {
		span.RecordError(err)
		span.SetStatus(codes.Error, err.Error())
	}
	span.End()
}

// Schedule triggers a full import every interval until ctx ends. Ticks that
// find a run in progress are skipped.
func (p *Pipeline) Schedule(ctx context.Context, interval time.Duration) {
	if interval <= 0 {
		return
	}
	ticker := time.NewTicker(interval)
	defer ticker.Stop()
	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			job, err := p.Start(ctx, models.ModeFull)
			if errors.Is(err, models.ErrAlreadyRunning) {
				p.logger.InfoContext(ctx, "scheduled import skipped, run in progress")
				continue
			}
			if err != nil {
				p.logger.ErrorContext(ctx, "scheduled import not started", "error", err)
				continue
			}
			p.logger.InfoContext(ctx, "scheduled import started", "job_id", job.ID.String())
		}
	}
}
