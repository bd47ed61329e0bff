// Package store defines generation storage for published companies. A
// generation is an immutable, fully indexed snapshot; readers always see
// exactly one of them.
package store

import (
	"context"
	"fmt"

	"bizreg/internal/company/models"
	"bizreg/pkg/platform/sentinel"
)

// ErrLocked is returned by Swap when another swap holds the generation pointer.
var ErrLocked = fmt.Errorf("generation pointer locked: %w", sentinel.ErrConflict)

// ErrNotSealed is returned by Swap for a shadow that has not been sealed.
var ErrNotSealed = fmt.Errorf("shadow generation not sealed: %w", sentinel.ErrInvalidState)

// Shadow is a generation under construction, invisible to readers.
type Shadow interface {
	Generation() int64
	Write(ctx context.Context, batch []models.Company) error
	// Seal builds the lookup indexes. No writes are accepted afterwards.
	Seal(ctx context.Context) error
	Abort(ctx context.Context) error
}

// GenerationStore owns the live generation pointer.
type GenerationStore interface {
	BeginShadow(ctx context.Context) (Shadow, error)
	// Swap makes a sealed shadow live and returns the generation it replaced
	// (0 when none was live).
	Swap(ctx context.Context, s Shadow) (int64, error)
	Drop(ctx context.Context, generation int64) error
	Live(ctx context.Context) (int64, error)
	// DropOrphans removes every generation that is neither live nor being built
	// by the caller, e.g. leftovers of a crashed run.
	DropOrphans(ctx context.Context) error
}
