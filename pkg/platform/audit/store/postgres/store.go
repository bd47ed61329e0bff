package postgres

import (
	"context"
	"database/sql"
	"fmt"
	"time"

	audit "bizreg/pkg/platform/audit"
)

const schema = `CREATE TABLE IF NOT EXISTS admin_audit (
	id uuid PRIMARY KEY,
	timestamp timestamptz NOT NULL,
	action text NOT NULL,
	actor text NOT NULL,
	subject text NOT NULL DEFAULT '',
	detail text NOT NULL DEFAULT '',
	request_id text NOT NULL DEFAULT ''
)`

const indexSchema = `CREATE INDEX IF NOT EXISTS admin_audit_timestamp_idx ON admin_audit (timestamp DESC)`

// Store implements audit.Store on the admin_audit table.
type Store struct {
	db *sql.DB
}

func New(db *sql.DB) *Store {
	return &Store{db: db}
}

// EnsureSchema creates the audit table if it does not exist.
func (s *Store) EnsureSchema(ctx context.Context) error {
	for _, stmt := range []string{schema, indexSchema} {
		if _, err := s.db.ExecContext(ctx, stmt); err != nil {
			return fmt.Errorf("create audit schema: %w", err)
		}
	}
	return nil
}

// Append inserts an event. Re-appending the same ID is a no-op.
func (s *Store) Append(ctx context.Context, event audit.Event) error {
	event = audit.Prepare(event, time.Now())
	query := `
		INSERT INTO admin_audit (id, timestamp, action, actor, subject, detail, request_id)
		VALUES ($1, $2, $3, $4, $5, $6, $7)
		ON CONFLICT (id) DO NOTHING
	`
	_, err := s.db.ExecContext(ctx, query,
		event.ID,
		event.Timestamp,
		string(event.Action),
		event.Actor,
		event.Subject,
		event.Detail,
		event.RequestID,
	)
	if err != nil {
		return fmt.Errorf("insert audit event: %w", err)
	}
	return nil
}

// ListRecent returns the N most recent events.
func (s *Store) ListRecent(ctx context.Context, limit int) ([]audit.Event, error) {
	query := `
		SELECT id, timestamp, action, actor, subject, detail, request_id
		FROM admin_audit
		ORDER BY timestamp DESC
		LIMIT $1
	`
	rows, err := s.db.QueryContext(ctx, query, limit)
	if err != nil {
		return nil, fmt.Errorf("query audit events: %w", err)
	}
	defer rows.Close()

	var events []audit.Event
	for rows.Next() {
		var (
			event  audit.Event
			action string
		)
		if err := rows.Scan(
			&event.ID,
			&event.Timestamp,
			&action,
			&event.Actor,
			&event.Subject,
			&event.Detail,
			&event.RequestID,
		); err != nil {
			return nil, fmt.Errorf("scan audit event: %w", err)
		}
		event.Action = audit.Action(action)
		events = append(events, event)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterate audit events: %w", err)
	}
	return events, nil
}
