// Package audit records administrative actions so operators can tell who
// started or was refused an import and when.
package audit

import (
	"context"
	"time"

	"github.com/google/uuid"
)

type Action string

const (
	ActionImportTriggered Action = "import_triggered"
	ActionImportRejected  Action = "import_rejected"
	ActionImportFailed    Action = "import_failed"
)

// Event is one administrative action. Subject is the job the action concerns,
// empty when no job was created.
type Event struct {
	ID        uuid.UUID `json:"id"`
	Timestamp time.Time `json:"timestamp"`
	Action    Action    `json:"action"`
	Actor     string    `json:"actor"`
	Subject   string    `json:"subject,omitempty"`
	Detail    string    `json:"detail,omitempty"`
	RequestID string    `json:"request_id,omitempty"`
}

// Store persists audit events.
type Store interface {
	Append(ctx context.Context, event Event) error
	// ListRecent returns up to limit events, newest first.
	ListRecent(ctx context.Context, limit int) ([]Event, error)
}

// Prepare fills the ID and timestamp of an event that has none.
func Prepare(event Event, now time.Time) Event {
	if event.ID == uuid.Nil {
		event.ID = uuid.New()
	}
	if event.Timestamp.IsZero() {
		event.Timestamp = now
	}
	return event
}
