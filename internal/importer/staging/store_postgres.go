package staging

import (
	"context"
	"database/sql"
	"database/sql/driver"
	"fmt"
	"sync"
	"time"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/stdlib"

	"bizreg/internal/importer/models"
)

type stagingTable struct {
	name    string
	columns []string
	ddl     string
}

var stagingTables = map[models.Kind]stagingTable{
	models.KindOrganization: {
		name:    "staging_organizations",
		columns: []string{"id", "established_on", "terminated_on"},
		ddl:     `(id bigint NOT NULL, established_on date, terminated_on date)`,
	},
	models.KindIdentifier: {
		name:    "staging_identifier_entries",
		columns: []string{"id", "organization_id", "identifier", "effective_from", "effective_to"},
		ddl:     `(id bigint NOT NULL, organization_id bigint NOT NULL, identifier text NOT NULL, effective_from date, effective_to date)`,
	},
	models.KindName: {
		name:    "staging_name_entries",
		columns: []string{"id", "organization_id", "name", "effective_from", "effective_to"},
		ddl:     `(id bigint NOT NULL, organization_id bigint NOT NULL, name text NOT NULL, effective_from date, effective_to date)`,
	},
	models.KindAddress: {
		name: "staging_address_entries",
		columns: []string{"id", "organization_id", "street", "building_number", "municipality", "postal_code",
			"effective_from", "effective_to"},
		ddl: `(id bigint NOT NULL, organization_id bigint NOT NULL, street text, building_number text,
			municipality text, postal_code text, effective_from date, effective_to date)`,
	},
	models.KindLegalForm: {
		name:    "staging_legal_form_entries",
		columns: []string{"id", "organization_id", "legal_form_id", "effective_from", "effective_to"},
		ddl:     `(id bigint NOT NULL, organization_id bigint NOT NULL, legal_form_id bigint NOT NULL, effective_from date, effective_to date)`,
	},
	models.KindLegalFormRef: {
		name:    "staging_legal_forms",
		columns: []string{"id", "name"},
		ddl:     `(id bigint NOT NULL, name text NOT NULL)`,
	},
}

var stagingIndexes = []string{
	`CREATE INDEX staging_identifier_entries_org_idx ON staging_identifier_entries (organization_id)`,
	`CREATE INDEX staging_identifier_entries_current_idx ON staging_identifier_entries (identifier, organization_id) WHERE effective_to IS NULL`,
	`CREATE INDEX staging_name_entries_org_idx ON staging_name_entries (organization_id) WHERE effective_to IS NULL`,
	`CREATE INDEX staging_address_entries_org_idx ON staging_address_entries (organization_id) WHERE effective_to IS NULL`,
	`CREATE INDEX staging_legal_form_entries_org_idx ON staging_legal_form_entries (organization_id) WHERE effective_to IS NULL`,
	`CREATE UNIQUE INDEX staging_organizations_id_idx ON staging_organizations (id)`,
	`CREATE UNIQUE INDEX staging_legal_forms_id_idx ON staging_legal_forms (id)`,
	`ANALYZE staging_organizations, staging_identifier_entries, staging_name_entries,
		staging_address_entries, staging_legal_form_entries, staging_legal_forms`,
}

// candidatesQuery is the resolution join. Names are required; address and
// legal form are optional. A missing organization row counts as active.
const candidatesQuery = `
	SELECT i.identifier, i.organization_id, n.name,
		a.street, a.building_number, a.municipality, a.postal_code,
		lf.name,
		o.terminated_on IS NULL
	FROM staging_identifier_entries i
	JOIN staging_name_entries n
		ON n.organization_id = i.organization_id AND n.effective_to IS NULL
	LEFT JOIN staging_address_entries a
		ON a.organization_id = i.organization_id AND a.effective_to IS NULL
	LEFT JOIN staging_legal_form_entries l
		ON l.organization_id = i.organization_id AND l.effective_to IS NULL
	LEFT JOIN staging_legal_forms lf ON lf.id = l.legal_form_id
	LEFT JOIN staging_organizations o ON o.id = i.organization_id
	WHERE i.effective_to IS NULL
	ORDER BY i.identifier, i.organization_id`

// importLockKey is the session advisory lock serializing import runs across
// every process sharing the database.
const importLockKey int64 = 0x62697a72656769 // "bizregi"

const unlockTimeout = 5 * time.Second

// PostgresStore stages rows in UNLOGGED tables written with COPY.
type PostgresStore struct {
	db *sql.DB
}

// NewPostgresStore constructs a PostgreSQL-backed staging store. db must use
// the pgx stdlib driver.
func NewPostgresStore(db *sql.DB) *PostgresStore {
	return &PostgresStore{db: db}
}

// Acquire takes the import advisory lock on a dedicated connection that stays
// checked out until release. A session lock is dropped with its connection, so
// a crashed process never leaves the lock behind.
func (s *PostgresStore) Acquire(ctx context.Context) (func(), error) {
	conn, err := s.db.Conn(ctx)
	if err != nil {
		return nil, fmt.Errorf("acquire lock connection: %w", err)
	}
	var locked bool
	if err := conn.QueryRowContext(ctx, `SELECT pg_try_advisory_lock($1)`, importLockKey).Scan(&locked); err != nil {
		_ = conn.Close()
		return nil, fmt.Errorf("try import lock: %w", err)
	}
	if !locked {
		_ = conn.Close()
		return nil, models.ErrAlreadyRunning
	}

	var once sync.Once
	return func() {
		once.Do(func() {
			ctx, cancel := context.WithTimeout(context.Background(), unlockTimeout)
			defer cancel()
			var unlocked bool
			err := conn.QueryRowContext(ctx, `SELECT pg_advisory_unlock($1)`, importLockKey).Scan(&unlocked)
			if err != nil || !unlocked {
				// discard the session so the pool never hands out a locked connection
				_ = conn.Raw(func(any) error { return driver.ErrBadConn })
			}
			_ = conn.Close()
		})
	}, nil
}

func (s *PostgresStore) Reset(ctx context.Context) error {
	for _, kind := range models.Kinds {
		t := stagingTables[kind]
		if _, err := s.db.ExecContext(ctx, `DROP TABLE IF EXISTS `+t.name); err != nil {
			return fmt.Errorf("drop %s: %w", t.name, err)
		}
		if _, err := s.db.ExecContext(ctx, `CREATE UNLOGGED TABLE `+t.name+` `+t.ddl); err != nil {
			return fmt.Errorf("create %s: %w", t.name, err)
		}
	}
	return nil
}

func (s *PostgresStore) Drop(ctx context.Context) error {
	for _, kind := range models.Kinds {
		t := stagingTables[kind]
		if _, err := s.db.ExecContext(ctx, `DROP TABLE IF EXISTS `+t.name); err != nil {
			return fmt.Errorf("drop %s: %w", t.name, err)
		}
	}
	return nil
}

// Insert copies one batch with the COPY protocol on a dedicated connection.
func (s *PostgresStore) Insert(ctx context.Context, kind models.Kind, rows []models.Row) error {
	t, ok := stagingTables[kind]
	if !ok {
		return fmt.Errorf("no staging table for kind %s", kind)
	}
	values := make([][]any, 0, len(rows))
	for _, row := range rows {
		v, err := rowValues(row)
		if err != nil {
			return err
		}
		values = append(values, v)
	}

	conn, err := s.db.Conn(ctx)
	if err != nil {
		return fmt.Errorf("acquire connection: %w", err)
	}
	defer conn.Close()

	return conn.Raw(func(driverConn any) error {
		pgxConn, ok := driverConn.(*stdlib.Conn)
		if !ok {
			return fmt.Errorf("unexpected driver connection %T", driverConn)
		}
		n, err := pgxConn.Conn().CopyFrom(ctx, pgx.Identifier{t.name}, t.columns, pgx.CopyFromRows(values))
		if err != nil {
			return fmt.Errorf("copy into %s: %w", t.name, err)
		}
		if n != int64(len(values)) {
			return fmt.Errorf("copy into %s: wrote %d of %d rows", t.name, n, len(values))
		}
		return nil
	})
}

func (s *PostgresStore) BuildIndexes(ctx context.Context) error {
	for _, stmt := range stagingIndexes {
		if _, err := s.db.ExecContext(ctx, stmt); err != nil {
			return fmt.Errorf("build staging index: %w", err)
		}
	}
	return nil
}

func (s *PostgresStore) CountIdentifiers(ctx context.Context) (int64, error) {
	var n int64
	if err := s.db.QueryRowContext(ctx, `SELECT count(*) FROM staging_identifier_entries`).Scan(&n); err != nil {
		return 0, fmt.Errorf("count identifiers: %w", err)
	}
	return n, nil
}

func (s *PostgresStore) Candidates(ctx context.Context, fn func(models.Candidate) error) error {
	rows, err := s.db.QueryContext(ctx, candidatesQuery)
	if err != nil {
		return fmt.Errorf("query candidates: %w", err)
	}
	defer rows.Close()

	for rows.Next() {
		var c models.Candidate
		if err := rows.Scan(
			&c.Identifier, &c.OrganizationID, &c.Name,
			&c.Street, &c.BuildingNumber, &c.Municipality, &c.PostalCode,
			&c.LegalForm,
			&c.Active,
		); err != nil {
			return fmt.Errorf("scan candidate: %w", err)
		}
		if err := fn(c); err != nil {
			return err
		}
	}
	if err := rows.Err(); err != nil {
		return fmt.Errorf("iterate candidates: %w", err)
	}
	return nil
}

func rowValues(row models.Row) ([]any, error) {
	switch r := row.(type) {
	case models.Organization:
		return []any{r.ID, date(r.EstablishedOn), date(r.TerminatedOn)}, nil
	case models.IdentifierEntry:
		return []any{r.ID, r.OrganizationID, r.Identifier, date(r.From), date(r.To)}, nil
	case models.NameEntry:
		return []any{r.ID, r.OrganizationID, r.Name, date(r.From), date(r.To)}, nil
	case models.AddressEntry:
		return []any{r.ID, r.OrganizationID, text(r.Street), text(r.BuildingNumber), text(r.Municipality),
			text(r.PostalCode), date(r.From), date(r.To)}, nil
	case models.LegalFormEntry:
		return []any{r.ID, r.OrganizationID, r.LegalFormID, date(r.From), date(r.To)}, nil
	case models.LegalForm:
		return []any{r.ID, r.Name}, nil
	}
	return nil, fmt.Errorf("unsupported row type %T", row)
}

func date(t *time.Time) any {
	if t == nil {
		return nil
	}
	return *t
}

func text(s *string) any {
	if s == nil {
		return nil
	}
	return *s
}
