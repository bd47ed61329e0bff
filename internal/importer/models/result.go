package models

import (
	"time"

	"bizreg/pkg/domain"
)

// Mode selects the import strategy. Only full re-imports exist.
type Mode string

const ModeFull Mode = "full"

// Status is the lifecycle state reported for an import job.
type Status string

const (
	StatusStarted Status = "started"
	StatusOK      Status = "ok"
	StatusFailed  Status = "failed"
)

// Job is returned when an import is triggered.
type Job struct {
	ID     domain.JobID
	Status Status
}

// Result is the terminal report of one import run.
type Result struct {
	JobID      domain.JobID
	Status     Status
	Generation int64
	Companies  int64
	Skipped    int64
	StartedAt  time.Time
	Duration   time.Duration
	Err        error
}
