// Package postgres publishes generations as physical tables companies_g<N>
// behind the companies view. Swapping repoints the view and the
// company_generation pointer row in one transaction.
package postgres

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"strconv"
	"strings"
	"sync"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgconn"
	"github.com/jackc/pgx/v5/stdlib"
	"github.com/lib/pq"

	"bizreg/internal/company/models"
	"bizreg/internal/company/store"
	"bizreg/pkg/platform/sentinel"
	"bizreg/pkg/platform/tx"
)

const (
	codeLockNotAvailable = "55P03"
	codeUniqueViolation  = "23505"
)

// Store is the PostgreSQL generation store and search backend.
type Store struct {
	db *sql.DB
}

// New constructs a PostgreSQL-backed store. db must use the pgx stdlib driver
// and EnsureSchema must have run.
func New(db *sql.DB) *Store {
	return &Store{db: db}
}

type shadow struct {
	store      *Store
	generation int64

	mu     sync.Mutex
	sealed bool
}

func (sh *shadow) Generation() int64 { return sh.generation }

// Write copies one batch into the shadow table with the COPY protocol.
func (sh *shadow) Write(ctx context.Context, batch []models.Company) error {
	if len(batch) == 0 {
		return nil
	}
	rows := make([][]any, 0, len(batch))
	for _, c := range batch {
		rows = append(rows, []any{
			c.Identifier, c.Name, c.NormalizedName, text(c.LegalForm), text(c.Street), text(c.City),
			text(c.PostalCode), c.Country, c.Active, c.ImportedAt,
		})
	}

	conn, err := sh.store.db.Conn(ctx)
	if err != nil {
		return fmt.Errorf("acquire connection: %w", err)
	}
	defer conn.Close()

	return conn.Raw(func(driverConn any) error {
		pgxConn, ok := driverConn.(*stdlib.Conn)
		if !ok {
			return fmt.Errorf("unexpected driver connection %T", driverConn)
		}
		_, err := pgxConn.Conn().CopyFrom(ctx, pgx.Identifier{tableName(sh.generation)}, companyColumns, pgx.CopyFromRows(rows))
		if err != nil {
			return fmt.Errorf("copy into generation %d: %w", sh.generation, err)
		}
		return nil
	})
}

// Seal builds the identifier, prefix and trigram indexes. A duplicate
// identifier fails the unique index.
func (sh *shadow) Seal(ctx context.Context) error {
	sh.mu.Lock()
	defer sh.mu.Unlock()
	if sh.sealed {
		return nil
	}
	for _, stmt := range indexStatements(sh.generation) {
		if _, err := sh.store.db.ExecContext(ctx, stmt); err != nil {
			var pgErr *pgconn.PgError
			if errors.As(err, &pgErr) && pgErr.Code == codeUniqueViolation {
				return fmt.Errorf("generation %d: duplicate identifier: %w", sh.generation, sentinel.ErrConflict)
			}
			return fmt.Errorf("index generation %d: %w", sh.generation, err)
		}
	}
	sh.sealed = true
	return nil
}

func (sh *shadow) Abort(ctx context.Context) error {
	return sh.store.Drop(ctx, sh.generation)
}

func (s *Store) BeginShadow(ctx context.Context) (store.Shadow, error) {
	var generation int64
	err := tx.Run(ctx, s.db, func(ctx context.Context, q *sql.Tx) error {
		if err := q.QueryRowContext(ctx,
			`UPDATE company_generation SET next = next + 1 RETURNING next`).Scan(&generation); err != nil {
			return fmt.Errorf("allocate generation: %w", err)
		}
		if _, err := q.ExecContext(ctx, createTable(generation, "")); err != nil {
			return fmt.Errorf("create generation %d: %w", generation, err)
		}
		return nil
	})
	if err != nil {
		return nil, err
	}
	return &shadow{store: s, generation: generation}, nil
}

// Swap repoints the companies view at the shadow. The pointer row is locked
// with NOWAIT: a concurrent swap makes this one fail fast with store.ErrLocked
// instead of queueing behind it.
func (s *Store) Swap(ctx context.Context, sh store.Shadow) (int64, error) {
	ps, ok := sh.(*shadow)
	if !ok || ps.store != s {
		return 0, fmt.Errorf("shadow %d does not belong to this store: %w", sh.Generation(), sentinel.ErrInvalidState)
	}
	ps.mu.Lock()
	sealed := ps.sealed
	ps.mu.Unlock()
	if !sealed {
		return 0, fmt.Errorf("generation %d: %w", ps.generation, store.ErrNotSealed)
	}

	var previous int64
	err := tx.Run(ctx, s.db, func(ctx context.Context, q *sql.Tx) error {
		err := q.QueryRowContext(ctx, `SELECT live FROM company_generation FOR UPDATE NOWAIT`).Scan(&previous)
		if err != nil {
			var pgErr *pgconn.PgError
			if errors.As(err, &pgErr) && pgErr.Code == codeLockNotAvailable {
				return store.ErrLocked
			}
			return fmt.Errorf("lock generation pointer: %w", err)
		}
		if _, err := q.ExecContext(ctx, viewStatement(ps.generation)); err != nil {
			return fmt.Errorf("repoint companies view: %w", err)
		}
		if _, err := q.ExecContext(ctx, `UPDATE company_generation SET live = $1`, ps.generation); err != nil {
			return fmt.Errorf("update generation pointer: %w", err)
		}
		return nil
	})
	if err != nil {
		return 0, err
	}
	return previous, nil
}

func (s *Store) Drop(ctx context.Context, generation int64) error {
	live, err := s.Live(ctx)
	if err != nil {
		return err
	}
	if generation == live {
		return fmt.Errorf("generation %d is live: %w", generation, sentinel.ErrInvalidState)
	}
	if _, err := s.db.ExecContext(ctx, `DROP TABLE IF EXISTS `+quoted(generation)); err != nil {
		return fmt.Errorf("drop generation %d: %w", generation, err)
	}
	return nil
}

func (s *Store) Live(ctx context.Context) (int64, error) {
	var live int64
	if err := s.db.QueryRowContext(ctx, `SELECT live FROM company_generation`).Scan(&live); err != nil {
		return 0, fmt.Errorf("read generation pointer: %w", err)
	}
	return live, nil
}

// DropOrphans drops every generation table except the live one. The view
// depends on the live table, so the empty generation 0 survives until the
// first swap. Callers hold the import run lock, so no other shadow is being
// built.
func (s *Store) DropOrphans(ctx context.Context) error {
	live, err := s.Live(ctx)
	if err != nil {
		return err
	}
	rows, err := s.db.QueryContext(ctx, `
		SELECT tablename FROM pg_tables
		WHERE schemaname = current_schema()
			AND tablename LIKE 'companies\_g%'
			AND tablename <> ALL($1)`,
		pq.Array([]string{tableName(live)}))
	if err != nil {
		return fmt.Errorf("list generations: %w", err)
	}
	var orphans []int64
	for rows.Next() {
		var name string
		if err := rows.Scan(&name); err != nil {
			rows.Close()
			return fmt.Errorf("scan generation: %w", err)
		}
		n, err := strconv.ParseInt(strings.TrimPrefix(name, tablePrefix), 10, 64)
		if err != nil {
			continue
		}
		orphans = append(orphans, n)
	}
	rows.Close()
	if err := rows.Err(); err != nil {
		return fmt.Errorf("list generations: %w", err)
	}

	for _, generation := range orphans {
		if err := s.Drop(ctx, generation); err != nil {
			return err
		}
	}
	return nil
}

func text(s *string) any {
	if s == nil {
		return nil
	}
	return *s
}

var _ store.GenerationStore = (*Store)(nil)
