// Package staging bulk-loads parsed dump rows into per-relation staging storage
// and exposes the joined view entity resolution reads from.
package staging

import (
	"context"

	"bizreg/internal/importer/models"
)

// Store is fresh per-run staging storage, one logical relation per kind.
// Callers hold the run lock from Acquire for the whole run; staging relations
// are shared by every process on the same backend.
type Store interface {
	// Acquire takes the import run lock without waiting. It returns
	// models.ErrAlreadyRunning when another run holds it.
	Acquire(ctx context.Context) (release func(), err error)
	// Reset drops any prior staging data and prepares empty relations.
	Reset(ctx context.Context) error
	// Insert appends one batch of rows of a single kind.
	Insert(ctx context.Context, kind models.Kind, rows []models.Row) error
	// BuildIndexes builds the organization foreign-key lookups the join needs.
	BuildIndexes(ctx context.Context) error
	// CountIdentifiers returns the number of identifier rows staged.
	CountIdentifiers(ctx context.Context) (int64, error)
	// Candidates streams current identifier/name/address/legal form joins
	// ordered by identifier, then organization id.
	Candidates(ctx context.Context, fn func(models.Candidate) error) error
	// Drop releases staging storage after resolution.
	Drop(ctx context.Context) error
}
