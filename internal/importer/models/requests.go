package models

import "time"

// TriggerRequest is the body of POST /admin/import. An empty body means a
// full import.
type TriggerRequest struct {
	Mode Mode `json:"mode"`
}

// TriggerResponse acknowledges a started import.
type TriggerResponse struct {
	JobID  string `json:"job_id"`
	Status Status `json:"status"`
}

// StatusResponse reports the pipeline state and the last finished run.
type StatusResponse struct {
	Running bool        `json:"running"`
	Last    *RunSummary `json:"last,omitempty"`
}

// RunSummary is the JSON form of a Result.
type RunSummary struct {
	JobID      string    `json:"job_id"`
	Status     Status    `json:"status"`
	Generation int64     `json:"generation,omitempty"`
	Companies  int64     `json:"companies"`
	Skipped    int64     `json:"skipped"`
	StartedAt  time.Time `json:"started_at"`
	DurationMS int64     `json:"duration_ms"`
	Error      string    `json:"error,omitempty"`
}

// Summarize converts r to its JSON form.
func (r Result) Summarize() RunSummary {
	s := RunSummary{
		JobID:      r.JobID.String(),
		Status:     r.Status,
		Generation: r.Generation,
		Companies:  r.Companies,
		Skipped:    r.Skipped,
		StartedAt:  r.StartedAt,
		DurationMS: r.Duration.Milliseconds(),
	}
	if r.Err != nil {
		s.Error = r.Err.Error()
	}
	return s
}
