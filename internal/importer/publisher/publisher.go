// Package publisher turns a resolved company stream into the live generation
// without readers ever observing a partial one.
package publisher

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"sync"
	"time"

	"bizreg/internal/company/store"
	"bizreg/internal/importer/metrics"
	"bizreg/internal/importer/models"
)

// dropTimeout bounds the background removal of a replaced generation.
const dropTimeout = 5 * time.Minute

// Publication describes a committed swap.
type Publication struct {
	Generation int64
	Previous   int64
	Swap       time.Duration
}

// Publisher writes shadow generations and swaps them in.
type Publisher struct {
	store   store.GenerationStore
	logger  *slog.Logger
	metrics *metrics.Metrics

	swapMu sync.Mutex
	drops  sync.WaitGroup
}

func New(st store.GenerationStore, logger *slog.Logger, m *metrics.Metrics) *Publisher {
	return &Publisher{store: st, logger: logger, metrics: m}
}

// Prepare removes shadows left behind by an interrupted run.
func (p *Publisher) Prepare(ctx context.Context) error {
	if err := p.store.DropOrphans(ctx); err != nil {
		return fmt.Errorf("drop orphan generations: %w", err)
	}
	return nil
}

// Begin opens a shadow generation that is invisible to readers.
func (p *Publisher) Begin(ctx context.Context) (store.Shadow, error) {
	sh, err := p.store.BeginShadow(ctx)
	if err != nil {
		return nil, fmt.Errorf("begin shadow generation: %w", err)
	}
	p.logger.InfoContext(ctx, "shadow generation opened", "generation", sh.Generation())
	return sh, nil
}

// Commit seals sh and makes it live. If another swap is in progress the
// shadow is aborted and ErrSwapUnavailable returned; the live generation is
// untouched on every failure. The replaced generation is dropped in the
// background.
func (p *Publisher) Commit(ctx context.Context, sh store.Shadow, companies int64) (Publication, error) {
	if err := sh.Seal(ctx); err != nil {
		p.abort(ctx, sh)
		return Publication{}, fmt.Errorf("seal generation %d: %w", sh.Generation(), err)
	}

	if !p.swapMu.TryLock() {
		p.abort(ctx, sh)
		return Publication{}, fmt.Errorf("%w: swap in progress", models.ErrSwapUnavailable)
	}
	start := time.Now()
	previous, err := p.store.Swap(ctx, sh)
	elapsed := time.Since(start)
	p.swapMu.Unlock()

	if err != nil {
		p.abort(ctx, sh)
		if errors.Is(err, store.ErrLocked) {
			return Publication{}, fmt.Errorf("%w: %v", models.ErrSwapUnavailable, err)
		}
		return Publication{}, fmt.Errorf("swap generation %d: %w", sh.Generation(), err)
	}

	p.metrics.RecordPublish(companies, elapsed, time.Now())
	p.logger.InfoContext(ctx, "generation published",
		"generation", sh.Generation(),
		"previous", previous,
		"companies", companies,
		"swap_duration", elapsed,
	)

	if previous != 0 {
		p.dropLater(ctx, previous)
	}
	return Publication{Generation: sh.Generation(), Previous: previous, Swap: elapsed}, nil
}

// Abort discards sh. Failures are logged; the next run's Prepare retries.
func (p *Publisher) Abort(ctx context.Context, sh store.Shadow) {
	p.abort(ctx, sh)
}

func (p *Publisher) abort(ctx context.Context, sh store.Shadow) {
	if err := sh.Abort(context.WithoutCancel(ctx)); err != nil {
		p.logger.WarnContext(ctx, "failed to abort shadow generation",
			"generation", sh.Generation(), "error", err)
	}
}

func (p *Publisher) dropLater(ctx context.Context, generation int64) {
	p.drops.Add(1)
	go func() {
		defer p.drops.Done()
		dctx, cancel := context.WithTimeout(context.WithoutCancel(ctx), dropTimeout)
		defer cancel()
		if err := p.store.Drop(dctx, generation); err != nil {
			p.logger.WarnContext(dctx, "failed to drop replaced generation",
				"generation", generation, "error", err)
			return
		}
		p.logger.DebugContext(dctx, "replaced generation dropped", "generation", generation)
	}()
}

// Wait blocks until background drops have finished.
func (p *Publisher) Wait() {
	p.drops.Wait()
}
