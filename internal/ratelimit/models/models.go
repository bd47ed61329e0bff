package models

import (
	"time"
)

// EndpointClass groups routes that share a limit.
type EndpointClass string

const (
	// ClassSearch covers the search endpoint, the most expensive public call.
	ClassSearch EndpointClass = "search"
	// ClassRead covers identifier lookups and stats.
	ClassRead EndpointClass = "read"
)

// Limit is a request budget over a sliding window.
type Limit struct {
	Requests int
	Window   time.Duration
}

// Limits maps each endpoint class to its budget.
type Limits map[EndpointClass]Limit

// PerMinute builds Limits from per-minute budgets.
func PerMinute(search, read int) Limits {
	return Limits{
		ClassSearch: {Requests: search, Window: time.Minute},
		ClassRead:   {Requests: read, Window: time.Minute},
	}
}

// Key is the bucket key of one client for one class.
func Key(class EndpointClass, ip string) string {
	return "rl:" + string(class) + ":" + ip
}

// RateLimitResult is the outcome of one bucket check.
type RateLimitResult struct {
	Allowed    bool
	Limit      int
	Remaining  int
	ResetAt    time.Time
	RetryAfter int // seconds
}

// RateLimitExceededResponse is the API response when rate limit is exceeded.
type RateLimitExceededResponse struct {
	Error      string `json:"error"`
	Message    string `json:"message"`
	RetryAfter int    `json:"retry_after"`
}
