package service

import (
	"context"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"strings"
	"sync"
	"testing"
	"testing/iotest"
	"time"

	"github.com/stretchr/testify/suite"

	"bizreg/internal/company/store/memory"
	"bizreg/internal/importer/dump/dumptest"
	"bizreg/internal/importer/events"
	"bizreg/internal/importer/models"
	"bizreg/internal/importer/publisher"
	"bizreg/internal/importer/resolver"
	"bizreg/internal/importer/staging"
	dErrors "bizreg/pkg/domain-errors"
)

type openerFunc func(ctx context.Context) (io.ReadCloser, error)

func (f openerFunc) Open(ctx context.Context) (io.ReadCloser, error) { return f(ctx) }

func dumpOf(b *dumptest.Builder) openerFunc {
	return func(context.Context) (io.ReadCloser, error) {
		return io.NopCloser(strings.NewReader(b.String())), nil
	}
}

type recordingEvents struct {
	mu     sync.Mutex
	events []events.Event
}

func (r *recordingEvents) Publish(_ context.Context, e events.Event) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.events = append(r.events, e)
	return nil
}

func (r *recordingEvents) Close() {}

func (r *recordingEvents) types() []events.Type {
	r.mu.Lock()
	defer r.mu.Unlock()
	out := make([]events.Type, len(r.events))
	for i, e := range r.events {
		out[i] = e.Type
	}
	return out
}

type PipelineSuite struct {
	suite.Suite
	ctx       context.Context
	logger    *slog.Logger
	companies *memory.Store
	events    *recordingEvents
}

func TestPipelineSuite(t *testing.T) {
	suite.Run(t, new(PipelineSuite))
}

func (s *PipelineSuite) SetupTest() {
	s.ctx = context.Background()
	s.logger = slog.New(slog.NewTextHandler(io.Discard, nil))
	s.companies = memory.New()
	s.events = &recordingEvents{}
}

func (s *PipelineSuite) pipeline(opener openerFunc) *Pipeline {
	return s.pipelineOn(staging.NewMemoryStore(), opener)
}

// pipelineOn builds a pipeline over a given staging store; pipelines sharing
// one store stand in for processes sharing one database.
func (s *PipelineSuite) pipelineOn(st staging.Store, opener openerFunc, opts ...Option) *Pipeline {
	loader := staging.NewLoader(st, 0, s.logger, nil)
	res := resolver.New(0, "", s.logger)
	pub := publisher.New(s.companies, s.logger, nil)
	base := []Option{
		WithLogger(s.logger),
		WithEvents(s.events),
		WithClock(func() time.Time { return time.Date(2026, 2, 1, 3, 0, 0, 0, time.UTC) }),
	}
	return New(opener, loader, res, pub, append(base, opts...)...)
}

func (s *PipelineSuite) TestRunPublishesCompanies() {
	p := s.pipeline(dumpOf(dumptest.Standard()))

	res, err := p.Run(s.ctx, models.ModeFull)
	s.Require().NoError(err)
	s.Equal(models.StatusOK, res.Status)
	s.Equal(int64(4), res.Companies)
	s.NotZero(res.Generation)

	c, err := s.companies.Get(s.ctx, "00000123")
	s.Require().NoError(err)
	s.Equal("Firma", c.Name)
	s.Equal(res.StartedAt, c.ImportedAt)

	last, ok := p.Last()
	s.True(ok)
	s.Equal(res.JobID, last.JobID)
	s.Equal([]events.Type{events.TypeImportCompleted}, s.events.types())
}

func (s *PipelineSuite) TestRepeatedRunsKeepOneGeneration() {
	p := s.pipeline(dumpOf(dumptest.Standard()))
	for i := 0; i < 3; i++ {
		_, err := p.Run(s.ctx, models.ModeFull)
		s.Require().NoError(err)
	}
	p.Wait()
	s.Equal(1, s.companies.Generations())

	counts, err := s.companies.Count(s.ctx)
	s.Require().NoError(err)
	s.Equal(int64(4), counts.Total)
	s.Equal(int64(3), counts.Active)
}

func (s *PipelineSuite) TestFailedRunKeepsPreviousGeneration() {
	current := dumptest.Standard()
	p := s.pipeline(func(context.Context) (io.ReadCloser, error) {
		return io.NopCloser(strings.NewReader(current.String())), nil
	})
	_, err := p.Run(s.ctx, models.ModeFull)
	s.Require().NoError(err)

	current = dumptest.New().Names([]string{"1", "1", "Alfa", "2001-01-01", `\N`})
	res, err := p.Run(s.ctx, models.ModeFull)
	s.ErrorIs(err, models.ErrEmptyIdentifiers)
	s.Equal(models.StatusFailed, res.Status)

	counts, err := s.companies.Count(s.ctx)
	s.Require().NoError(err)
	s.Equal(int64(4), counts.Total)
	p.Wait()
	s.Equal(1, s.companies.Generations(), "aborted shadow removed")
	s.Equal([]events.Type{events.TypeImportCompleted, events.TypeImportFailed}, s.events.types())
}

func (s *PipelineSuite) TestPublishHooksRunOnlyAfterSuccess() {
	current := dumptest.Standard()
	var published []models.Result
	p := s.pipelineOn(staging.NewMemoryStore(), func(context.Context) (io.ReadCloser, error) {
		return io.NopCloser(strings.NewReader(current.String())), nil
	},
		WithPublishHook(func(_ context.Context, res models.Result) error {
			published = append(published, res)
			return nil
		}),
		WithPublishHook(func(context.Context, models.Result) error {
			return errors.New("cache unreachable")
		}),
	)

	res, err := p.Run(s.ctx, models.ModeFull)
	s.Require().NoError(err, "hook errors never fail the run")
	s.Require().Len(published, 1)
	s.Equal(res.Generation, published[0].Generation)

	current = dumptest.New()
	_, err = p.Run(s.ctx, models.ModeFull)
	s.Require().Error(err)
	s.Len(published, 1)
}

func (s *PipelineSuite) TestSourceFailureIsReported() {
	p := s.pipeline(func(context.Context) (io.ReadCloser, error) {
		return nil, models.ErrTransientNetwork
	})
	res, err := p.Run(s.ctx, models.ModeFull)
	s.ErrorIs(err, models.ErrTransientNetwork)
	s.Equal(models.StatusFailed, res.Status)
}

func (s *PipelineSuite) TestInterruptedDownloadIsTransient() {
	full := dumptest.Standard().String()
	p := s.pipeline(func(context.Context) (io.ReadCloser, error) {
		cut := io.MultiReader(
			strings.NewReader(full[:len(full)/2]),
			iotest.ErrReader(fmt.Errorf("%w: read dump body: connection reset", models.ErrTransientNetwork)),
		)
		return io.NopCloser(cut), nil
	})

	res, err := p.Run(s.ctx, models.ModeFull)
	s.ErrorIs(err, models.ErrTransientNetwork)
	s.Equal(models.StatusFailed, res.Status)
	s.Zero(res.Generation)
}

func (s *PipelineSuite) TestUnknownMode() {
	p := s.pipeline(dumpOf(dumptest.Standard()))
	_, err := p.Start(s.ctx, "delta")
	s.True(dErrors.HasCode(err, dErrors.CodeBadRequest))
	_, err = p.Run(s.ctx, "delta")
	s.True(dErrors.HasCode(err, dErrors.CodeBadRequest))
}

func (s *PipelineSuite) TestSecondTriggerWhileRunningIsRejected() {
	release := make(chan struct{})
	opened := make(chan struct{})
	p := s.pipeline(func(context.Context) (io.ReadCloser, error) {
		close(opened)
		<-release
		return io.NopCloser(strings.NewReader(dumptest.Standard().String())), nil
	})

	job, err := p.Start(s.ctx, models.ModeFull)
	s.Require().NoError(err)
	s.Equal(models.StatusStarted, job.Status)
	<-opened
	s.True(p.Running())

	_, err = p.Start(s.ctx, models.ModeFull)
	s.ErrorIs(err, models.ErrAlreadyRunning)
	_, err = p.Run(s.ctx, models.ModeFull)
	s.ErrorIs(err, models.ErrAlreadyRunning)

	close(release)
	p.Wait()
	s.False(p.Running())
	last, ok := p.Last()
	s.Require().True(ok)
	s.Equal(job.ID, last.JobID)
	s.Equal(models.StatusOK, last.Status)
}

func (s *PipelineSuite) TestPipelinesSharingStagingNeverInterleave() {
	shared := staging.NewMemoryStore()
	release := make(chan struct{})
	opened := make(chan struct{})
	first := s.pipelineOn(shared, func(context.Context) (io.ReadCloser, error) {
		close(opened)
		<-release
		return io.NopCloser(strings.NewReader(dumptest.Standard().String())), nil
	})
	partial := dumptest.New().
		Identifiers([]string{"1", "1", "123", "2001-01-01", `\N`}).
		Names([]string{"1", "1", "Alfa", "2001-01-01", `\N`})
	second := s.pipelineOn(shared, dumpOf(partial))

	job, err := first.Start(s.ctx, models.ModeFull)
	s.Require().NoError(err)
	<-opened

	_, err = second.Run(s.ctx, models.ModeFull)
	s.ErrorIs(err, models.ErrAlreadyRunning)
	_, err = second.Start(s.ctx, models.ModeFull)
	s.ErrorIs(err, models.ErrAlreadyRunning)
	s.False(second.Running(), "rejected run leaves no in-process claim")

	close(release)
	first.Wait()
	last, ok := first.Last()
	s.Require().True(ok)
	s.Equal(job.ID, last.JobID)
	s.Equal(models.StatusOK, last.Status)
	s.Equal(int64(4), last.Companies)

	counts, err := s.companies.Count(s.ctx)
	s.Require().NoError(err)
	s.Equal(int64(4), counts.Total)

	// the lock is released with the run
	res, err := second.Run(s.ctx, models.ModeFull)
	s.Require().NoError(err)
	s.Equal(int64(1), res.Companies)
}

type lockErrorStore struct {
	*staging.MemoryStore
}

func (lockErrorStore) Acquire(context.Context) (func(), error) {
	return nil, errors.New("connection refused")
}

func (s *PipelineSuite) TestLockFailureIsNotAConflict() {
	p := s.pipelineOn(lockErrorStore{staging.NewMemoryStore()}, dumpOf(dumptest.Standard()))

	_, err := p.Run(s.ctx, models.ModeFull)
	s.Require().Error(err)
	s.NotErrorIs(err, models.ErrAlreadyRunning)
	s.False(p.Running())
	_, ok := p.Last()
	s.False(ok, "no run was executed")
}

func (s *PipelineSuite) TestStartSurvivesCallerCancellation() {
	p := s.pipeline(dumpOf(dumptest.Standard()))
	ctx, cancel := context.WithCancel(s.ctx)
	_, err := p.Start(ctx, models.ModeFull)
	s.Require().NoError(err)
	cancel()
	p.Wait()

	last, ok := p.Last()
	s.Require().True(ok)
	s.Equal(models.StatusOK, last.Status)
}

func (s *PipelineSuite) TestScheduleStopsWithContext() {
	p := s.pipeline(dumpOf(dumptest.Standard()))
	ctx, cancel := context.WithCancel(s.ctx)
	done := make(chan struct{})
	go func() {
		p.Schedule(ctx, 10*time.Millisecond)
		close(done)
	}()

	s.Eventually(func() bool {
		_, ok := p.Last()
		return ok
	}, 2*time.Second, 10*time.Millisecond)
	cancel()
	<-done
	p.Wait()
}
