package postgres

import (
	"context"
	"database/sql"
	"fmt"
	"strconv"

	"github.com/lib/pq"
)

const tablePrefix = "companies_g"

// schema bootstraps the generation pointer and an empty generation 0 behind
// the companies view, so readers work before the first import.
var schema = []string{
	`CREATE EXTENSION IF NOT EXISTS pg_trgm`,
	`CREATE TABLE IF NOT EXISTS company_generation (
		singleton boolean PRIMARY KEY DEFAULT true CHECK (singleton),
		live bigint NOT NULL DEFAULT 0,
		next bigint NOT NULL DEFAULT 0
	)`,
	`INSERT INTO company_generation (singleton) VALUES (true) ON CONFLICT DO NOTHING`,
	createTable(0, "IF NOT EXISTS"),
	viewStatement(0),
}

// EnsureSchema creates the generation bookkeeping when it is missing. It is
// safe to run on every start.
func EnsureSchema(ctx context.Context, db *sql.DB) error {
	var exists bool
	if err := db.QueryRowContext(ctx,
		`SELECT EXISTS (SELECT 1 FROM pg_views WHERE viewname = 'companies')`).Scan(&exists); err != nil {
		return fmt.Errorf("inspect schema: %w", err)
	}
	for i, stmt := range schema {
		// never repoint an existing view at the empty generation
		if exists && i == len(schema)-1 {
			break
		}
		if _, err := db.ExecContext(ctx, stmt); err != nil {
			return fmt.Errorf("ensure schema: %w", err)
		}
	}
	return nil
}

func viewStatement(generation int64) string {
	return `CREATE OR REPLACE VIEW companies AS SELECT * FROM ` + quoted(generation)
}

func tableName(generation int64) string {
	return tablePrefix + strconv.FormatInt(generation, 10)
}

func quoted(generation int64) string {
	return pq.QuoteIdentifier(tableName(generation))
}

func createTable(generation int64, modifier string) string {
	return `CREATE TABLE ` + modifier + ` ` + quoted(generation) + ` (
		identifier text NOT NULL,
		name text NOT NULL,
		normalized_name text NOT NULL,
		legal_form text,
		street text,
		city text,
		postal_code text,
		country text NOT NULL,
		active boolean NOT NULL,
		imported_at timestamptz NOT NULL
	)`
}

func indexStatements(generation int64) []string {
	t := tableName(generation)
	return []string{
		`CREATE UNIQUE INDEX ` + pq.QuoteIdentifier(t+"_identifier_idx") + ` ON ` + quoted(generation) + ` (identifier text_pattern_ops)`,
		`CREATE INDEX ` + pq.QuoteIdentifier(t+"_name_idx") + ` ON ` + quoted(generation) + ` (normalized_name text_pattern_ops)`,
		`CREATE INDEX ` + pq.QuoteIdentifier(t+"_name_trgm_idx") + ` ON ` + quoted(generation) + ` USING gin (normalized_name gin_trgm_ops)`,
		`ANALYZE ` + quoted(generation),
	}
}

var companyColumns = []string{
	"identifier", "name", "normalized_name", "legal_form", "street", "city",
	"postal_code", "country", "active", "imported_at",
}
