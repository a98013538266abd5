package storage

import (
	"errors"
	"time"
)

// ErrNotFound is returned when a requested record does not exist.
var ErrNotFound = errors.New("not found")

// Run is one pass through the schedule pipeline.
type Run struct {
	ID            string    `json:"id"`
	CreatedAt     time.Time `json:"created_at"`
	Mode          string    `json:"mode"`   // "process", "sync"
	Status        string    `json:"status"` // "ok", "needs_auth", "failed"
	Days          string    `json:"days,omitempty"`
	EventsCreated int       `json:"events_created"`
	Error         string    `json:"error,omitempty"`
	DurationMS    int64     `json:"duration_ms"`
}

// Job is a deferred task in the cleanup queue.
type Job struct {
	ID          string
	Type        string
	PayloadJSON string
	Status      string // one of the Job* states
	Attempts    int
	MaxAttempts int
	RunAfter    time.Time
	CreatedAt   time.Time
	UpdatedAt   time.Time
	LastError   string
}
