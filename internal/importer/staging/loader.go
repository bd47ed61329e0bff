package staging

import (
	"context"
	"fmt"
	"log/slog"
	"time"

	"golang.org/x/sync/errgroup"

	"bizreg/internal/importer/dump"
	"bizreg/internal/importer/metrics"
	"bizreg/internal/importer/models"
)

// DefaultBatchSize caps rows per staging write.
const DefaultBatchSize = 5000

// pendingBatches bounds how far parsing may run ahead of staging writes.
const pendingBatches = 2

// RecordSource is the lazy row sequence produced by dump.Parser.
type RecordSource interface {
	Next() bool
	Record() dump.Record
	Err() error
	Stats() dump.Stats
}

// LoadStats summarizes one load.
type LoadStats struct {
	Rows    map[models.Kind]int64
	Skipped int64
	Lines   int64
	Batches int
}

type batch struct {
	kind   models.Kind
	offset int64
	rows   []models.Row
}

// Loader streams parser output into a Store in bounded batches.
type Loader struct {
	store     Store
	batchSize int
	logger    *slog.Logger
	metrics   *metrics.Metrics
}

// NewLoader creates a loader; batchSize <= 0 selects DefaultBatchSize.
func NewLoader(store Store, batchSize int, logger *slog.Logger, m *metrics.Metrics) *Loader {
	if batchSize <= 0 {
		batchSize = DefaultBatchSize
	}
	return &Loader{store: store, batchSize: batchSize, logger: logger, metrics: m}
}

// Store returns the staging store the loader writes to.
func (l *Loader) Store() Store { return l.store }

// Load resets staging, writes every record from src and builds the lookup
// indexes. Parsing and writing overlap; at most pendingBatches batches are
// buffered between them. Any failed batch aborts the load.
func (l *Loader) Load(ctx context.Context, src RecordSource) (LoadStats, error) {
	if err := l.store.Reset(ctx); err != nil {
		return LoadStats{}, fmt.Errorf("%w: reset: %v", models.ErrStagingWrite, err)
	}

	batches := make(chan batch, pendingBatches)
	g, gctx := errgroup.WithContext(ctx)

	g.Go(func() error {
		defer close(batches)
		return l.produce(gctx, src, batches)
	})

	stats := LoadStats{Rows: make(map[models.Kind]int64)}
	g.Go(func() error {
		for b := range batches {
			start := time.Now()
			if err := l.store.Insert(gctx, b.kind, b.rows); err != nil {
				l.logger.ErrorContext(gctx, "staging batch failed",
					"kind", b.kind,
					"offset", b.offset,
					"rows", len(b.rows),
					"error", err,
				)
				return fmt.Errorf("%w: %s batch at row %d: %v", models.ErrStagingWrite, b.kind, b.offset, err)
			}
			l.metrics.ObserveBatch(time.Since(start))
			l.metrics.AddStaged(string(b.kind), len(b.rows))
			stats.Rows[b.kind] += int64(len(b.rows))
			stats.Batches++
		}
		return nil
	})

	if err := g.Wait(); err != nil {
		return stats, err
	}

	parsed := src.Stats()
	stats.Lines = parsed.Lines
	stats.Skipped = parsed.TotalSkipped()
	for kind, n := range parsed.Skipped {
		l.metrics.AddSkipped(string(kind), n)
		if n > 0 {
			l.logger.WarnContext(ctx, "skipped malformed dump lines", "kind", kind, "count", n)
		}
	}

	if err := l.store.BuildIndexes(ctx); err != nil {
		return stats, fmt.Errorf("%w: build indexes: %v", models.ErrStagingWrite, err)
	}
	l.logger.InfoContext(ctx, "staging loaded",
		"lines", stats.Lines,
		"batches", stats.Batches,
		"skipped", stats.Skipped,
	)
	return stats, nil
}

func (l *Loader) produce(ctx context.Context, src RecordSource, out chan<- batch) error {
	var (
		cur     batch
		offsets = make(map[models.Kind]int64)
	)
	flush := func() error {
		if len(cur.rows) == 0 {
			return nil
		}
		select {
		case out <- cur:
		case <-ctx.Done():
			return ctx.Err()
		}
		offsets[cur.kind] += int64(len(cur.rows))
		cur = batch{}
		return nil
	}

	for src.Next() {
		rec := src.Record()
		if rec.Kind != cur.kind || len(cur.rows) >= l.batchSize {
			if err := flush(); err != nil {
				return err
			}
			cur = batch{kind: rec.Kind, offset: offsets[rec.Kind], rows: make([]models.Row, 0, l.batchSize)}
		}
		cur.rows = append(cur.rows, rec.Row)
	}
	if err := src.Err(); err != nil {
		return fmt.Errorf("parse dump: %w", err)
	}
	return flush()
}
