// Package events announces finished import runs to downstream consumers.
package events

import (
	"context"
	"encoding/json"
	"fmt"
	"log/slog"
	"time"

	"github.com/twmb/franz-go/pkg/kgo"

	"bizreg/internal/importer/models"
	"bizreg/internal/platform/kafka"
)

// Type names the event kind.
type Type string

const (
	TypeImportCompleted Type = "import.completed"
	TypeImportFailed    Type = "import.failed"
)

// Event is the JSON payload published for every finished run.
type Event struct {
	Type       Type      `json:"type"`
	JobID      string    `json:"job_id"`
	Status     string    `json:"status"`
	Generation int64     `json:"generation,omitempty"`
	Companies  int64     `json:"companies"`
	Skipped    int64     `json:"skipped"`
	DurationMS int64     `json:"duration_ms"`
	Error      string    `json:"error,omitempty"`
	OccurredAt time.Time `json:"occurred_at"`
}

// FromResult converts a run result into its event.
func FromResult(r models.Result, at time.Time) Event {
	e := Event{
		Type:       TypeImportCompleted,
		JobID:      r.JobID.String(),
		Status:     string(r.Status),
		Generation: r.Generation,
		Companies:  r.Companies,
		Skipped:    r.Skipped,
		DurationMS: r.Duration.Milliseconds(),
		OccurredAt: at.UTC(),
	}
	if r.Err != nil {
		e.Type = TypeImportFailed
		e.Error = r.Err.Error()
	}
	return e
}

// Publisher delivers import events.
type Publisher interface {
	Publish(ctx context.Context, e Event) error
	Close()
}

// LogPublisher writes events to the structured log only.
type LogPublisher struct {
	logger *slog.Logger
}

func NewLogPublisher(logger *slog.Logger) *LogPublisher {
	return &LogPublisher{logger: logger}
}

func (p *LogPublisher) Publish(ctx context.Context, e Event) error {
	p.logger.InfoContext(ctx, "import event",
		"type", e.Type,
		"job_id", e.JobID,
		"status", e.Status,
		"companies", e.Companies,
		"skipped", e.Skipped,
		"error", e.Error,
	)
	return nil
}

func (p *LogPublisher) Close() {}

// KafkaPublisher produces events keyed by job id.
type KafkaPublisher struct {
	client *kgo.Client
	topic  string
}

// NewKafkaPublisher connects to brokers and makes sure topic exists.
func NewKafkaPublisher(ctx context.Context, brokers []string, topic string) (*KafkaPublisher, error) {
	client, err := kafka.NewProducer(brokers, topic)
	if err != nil {
		return nil, err
	}
	if err := kafka.EnsureTopic(ctx, client, topic, 1, 1); err != nil {
		client.Close()
		return nil, err
	}
	return &KafkaPublisher{client: client, topic: topic}, nil
}

func (p *KafkaPublisher) Publish(ctx context.Context, e Event) error {
	payload, err := json.Marshal(e)
	if err != nil {
		return fmt.Errorf("marshal event: %w", err)
	}
	record := &kgo.Record{
		Topic: p.topic,
		Key:   []byte(e.JobID),
		Value: payload,
		Headers: []kgo.RecordHeader{
			{Key: "type", Value: []byte(e.Type)},
		},
	}
	if err := p.client.ProduceSync(ctx, record).FirstErr(); err != nil {
		return fmt.Errorf("produce %s event: %w", e.Type, err)
	}
	return nil
}

func (p *KafkaPublisher) Close() {
	p.client.Close()
}

// Health pings the brokers.
func (p *KafkaPublisher) Health(ctx context.Context) error {
	return kafka.Health(ctx, p.client)
}
