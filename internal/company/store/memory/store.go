// Package memory keeps published generations in process memory and flips the
// live one with an atomic pointer swap.
package memory

import (
	"context"
	"fmt"
	"sync"
	"sync/atomic"

	"bizreg/internal/company/models"
	"bizreg/internal/company/store"
	"bizreg/pkg/platform/sentinel"
)

// Store is the in-memory generation store and search backend.
type Store struct {
	live atomic.Pointer[Generation]

	mu          sync.Mutex
	seq         int64
	generations map[int64]*Generation

	beforeSwap func()
}

// Option configures a Store.
type Option func(*Store)

// WithBeforeSwap installs a hook that runs after a swap has been validated and
// immediately before the pointer flip. Tests use it to widen the swap window.
func WithBeforeSwap(fn func()) Option {
	return func(s *Store) { s.beforeSwap = fn }
}

// New creates an empty store with no live generation.
func New(opts ...Option) *Store {
	s := &Store{generations: make(map[int64]*Generation)}
	for _, opt := range opts {
		opt(s)
	}
	return s
}

type shadow struct {
	store *Store
	gen   *Generation

	mu      sync.Mutex
	aborted bool
}

func (sh *shadow) Generation() int64 { return sh.gen.id }

func (sh *shadow) Write(_ context.Context, batch []models.Company) error {
	sh.mu.Lock()
	defer sh.mu.Unlock()
	if sh.aborted {
		return fmt.Errorf("generation %d aborted: %w", sh.gen.id, sentinel.ErrInvalidState)
	}
	return sh.gen.add(batch)
}

func (sh *shadow) Seal(_ context.Context) error {
	sh.mu.Lock()
	defer sh.mu.Unlock()
	if sh.aborted {
		return fmt.Errorf("generation %d aborted: %w", sh.gen.id, sentinel.ErrInvalidState)
	}
	if !sh.gen.sealed {
		sh.gen.seal()
	}
	return nil
}

func (sh *shadow) Abort(ctx context.Context) error {
	sh.mu.Lock()
	sh.aborted = true
	sh.mu.Unlock()
	return sh.store.Drop(ctx, sh.gen.id)
}

func (s *Store) BeginShadow(_ context.Context) (store.Shadow, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.seq++
	g := newGeneration(s.seq)
	s.generations[g.id] = g
	return &shadow{store: s, gen: g}, nil
}

func (s *Store) Swap(_ context.Context, sh store.Shadow) (int64, error) {
	ms, ok := sh.(*shadow)
	if !ok || ms.store != s {
		return 0, fmt.Errorf("shadow %d does not belong to this store: %w", sh.Generation(), sentinel.ErrInvalidState)
	}
	ms.mu.Lock()
	defer ms.mu.Unlock()
	if ms.aborted {
		return 0, fmt.Errorf("generation %d aborted: %w", ms.gen.id, sentinel.ErrInvalidState)
	}
	if !ms.gen.sealed {
		return 0, fmt.Errorf("generation %d: %w", ms.gen.id, store.ErrNotSealed)
	}

	if s.beforeSwap != nil {
		s.beforeSwap()
	}
	prev := s.live.Swap(ms.gen)
	if prev == nil {
		return 0, nil
	}
	return prev.id, nil
}

func (s *Store) Drop(_ context.Context, generation int64) error {
	if cur := s.live.Load(); cur != nil && cur.id == generation {
		return fmt.Errorf("generation %d is live: %w", generation, sentinel.ErrInvalidState)
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	delete(s.generations, generation)
	return nil
}

func (s *Store) Live(_ context.Context) (int64, error) {
	if cur := s.live.Load(); cur != nil {
		return cur.id, nil
	}
	return 0, nil
}

func (s *Store) DropOrphans(_ context.Context) error {
	var live int64
	if cur := s.live.Load(); cur != nil {
		live = cur.id
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	for id := range s.generations {
		if id != live {
			delete(s.generations, id)
		}
	}
	return nil
}

// Generations reports how many generations the store still holds, the live
// one included.
func (s *Store) Generations() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return len(s.generations)
}

// Each read loads the live pointer once, so a query never mixes generations.

func (s *Store) MatchIdentifier(ctx context.Context, prefix string, limit int, includeInactive bool) ([]models.Summary, error) {
	g := s.live.Load()
	if g == nil {
		return nil, nil
	}
	return g.MatchIdentifier(ctx, prefix, limit, includeInactive)
}

func (s *Store) MatchName(ctx context.Context, q string, threshold float64, limit int, includeInactive bool) ([]models.Match, error) {
	g := s.live.Load()
	if g == nil {
		return nil, nil
	}
	return g.MatchName(ctx, q, threshold, limit, includeInactive)
}

func (s *Store) Get(ctx context.Context, identifier string) (*models.Company, error) {
	g := s.live.Load()
	if g == nil {
		return nil, fmt.Errorf("company %s: %w", identifier, sentinel.ErrNotFound)
	}
	return g.Get(ctx, identifier)
}

func (s *Store) Count(ctx context.Context) (models.Counts, error) {
	g := s.live.Load()
	if g == nil {
		return models.Counts{}, nil
	}
	return g.Count(ctx)
}

var _ store.GenerationStore = (*Store)(nil)
