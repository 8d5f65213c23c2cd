package domain

import "time"

// WarmStatus represents the current state of a domain's background warm
type WarmStatus string

const (
	WarmStatusIdle      WarmStatus = "idle"
	WarmStatusRunning   WarmStatus = "running"
	WarmStatusCompleted WarmStatus = "completed"
	WarmStatusFailed    WarmStatus = "failed"
)

// WarmState tracks the background warm state of a domain
type WarmState struct {
	Domain      Domain     `json:"domain"`
	Status      WarmStatus `json:"status"`
	LastWarmAt  *time.Time `json:"last_warm_at,omitempty"`
	NextWarmAt  *time.Time `json:"next_warm_at,omitempty"`
	Error       string     `json:"error,omitempty"`
	StartedAt   *time.Time `json:"started_at,omitempty"`
	CompletedAt *time.Time `json:"completed_at,omitempty"`
}

// WarmResult represents the outcome of one warm pass over a domain
type WarmResult struct {
	Domain    Domain           `json:"domain"`
	Success   bool             `json:"success"`
	Action    InitializeAction `json:"action"`
	Refreshed bool             `json:"refreshed"`
	Fetched   int              `json:"fetched"`
	Error     string           `json:"error,omitempty"`
	Duration  float64          `json:"duration_seconds"`
}
