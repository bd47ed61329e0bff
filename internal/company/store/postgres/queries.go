package postgres

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"strconv"

	"bizreg/internal/company/models"
	"bizreg/pkg/platform/sentinel"
	"bizreg/pkg/platform/tx"
	"bizreg/pkg/textnorm"
)

// Every read is one statement against the companies view, so it sees exactly
// one generation even while a swap commits. Names are compared with the C
// collation to order the same way as the in-memory backend.

const summaryColumns = `identifier, name, legal_form, city, postal_code, active`

const matchNameQuery = `
	(SELECT ` + summaryColumns + `, 1 AS tier, 1::real AS score
	FROM companies
	WHERE normalized_name = $1 AND ($2 OR active)
	ORDER BY name COLLATE "C", identifier
	LIMIT $3)
	UNION ALL
	(SELECT ` + summaryColumns + `, 2, 0::real
	FROM companies
	WHERE normalized_name LIKE $4 AND normalized_name <> $1 AND ($2 OR active)
	ORDER BY name COLLATE "C", identifier
	LIMIT $3)
	UNION ALL
	(SELECT ` + summaryColumns + `, 3, similarity(normalized_name, $1)
	FROM companies
	WHERE normalized_name % $1 AND normalized_name NOT LIKE $4 AND ($2 OR active)
	ORDER BY similarity(normalized_name, $1) DESC, name COLLATE "C", identifier
	LIMIT $3)`

func (s *Store) MatchIdentifier(ctx context.Context, prefix string, limit int, includeInactive bool) ([]models.Summary, error) {
	rows, err := s.db.QueryContext(ctx, `
		SELECT `+summaryColumns+`
		FROM companies
		WHERE identifier LIKE $1 AND ($2 OR active)
		ORDER BY identifier
		LIMIT $3`,
		textnorm.EscapeLike(prefix)+"%", includeInactive, limit)
	if err != nil {
		return nil, fmt.Errorf("match identifier: %w", err)
	}
	defer rows.Close()

	out := make([]models.Summary, 0, limit)
	for rows.Next() {
		var sum models.Summary
		if err := rows.Scan(&sum.Identifier, &sum.Name, &sum.LegalForm, &sum.City, &sum.PostalCode, &sum.Active); err != nil {
			return nil, fmt.Errorf("scan summary: %w", err)
		}
		out = append(out, sum)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("match identifier: %w", err)
	}
	return out, nil
}

// MatchName runs the three tiers as one statement. The similarity threshold
// behind the % operator is set for this transaction only.
func (s *Store) MatchName(ctx context.Context, q string, threshold float64, limit int, includeInactive bool) ([]models.Match, error) {
	var out []models.Match
	err := tx.Run(ctx, s.db, func(ctx context.Context, t *sql.Tx) error {
		if _, err := t.ExecContext(ctx, `SELECT set_config('pg_trgm.similarity_threshold', $1, true)`,
			strconv.FormatFloat(threshold, 'f', -1, 64)); err != nil {
			return fmt.Errorf("set similarity threshold: %w", err)
		}
		rows, err := t.QueryContext(ctx, matchNameQuery, q, includeInactive, limit, textnorm.EscapeLike(q)+"%")
		if err != nil {
			return fmt.Errorf("match name: %w", err)
		}
		defer rows.Close()

		out = make([]models.Match, 0, limit)
		for rows.Next() {
			var m models.Match
			if err := rows.Scan(&m.Identifier, &m.Name, &m.LegalForm, &m.City, &m.PostalCode, &m.Active,
				&m.Tier, &m.Score); err != nil {
				return fmt.Errorf("scan match: %w", err)
			}
			out = append(out, m)
		}
		return rows.Err()
	})
	if err != nil {
		return nil, err
	}
	return out, nil
}

func (s *Store) Get(ctx context.Context, identifier string) (*models.Company, error) {
	var c models.Company
	err := s.db.QueryRowContext(ctx, `
		SELECT identifier, name, normalized_name, legal_form, street, city, postal_code, country, active, imported_at
		FROM companies
		WHERE identifier = $1`, identifier).Scan(
		&c.Identifier, &c.Name, &c.NormalizedName, &c.LegalForm, &c.Street, &c.City,
		&c.PostalCode, &c.Country, &c.Active, &c.ImportedAt,
	)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, fmt.Errorf("company %s: %w", identifier, sentinel.ErrNotFound)
		}
		return nil, fmt.Errorf("get company: %w", err)
	}
	return &c, nil
}

func (s *Store) Count(ctx context.Context) (models.Counts, error) {
	var counts models.Counts
	err := s.db.QueryRowContext(ctx,
		`SELECT count(*), count(*) FILTER (WHERE active) FROM companies`).Scan(&counts.Total, &counts.Active)
	if err != nil {
		return models.Counts{}, fmt.Errorf("count companies: %w", err)
	}
	return counts, nil
}
