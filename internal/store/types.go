package store

import (
	"time"

	"github.com/roach88/modhost/internal/value"
)

// Status is the lifecycle state of a stored run.
type Status string

const (
	StatusRunning Status = "running"
	StatusOK      Status = "ok"
	StatusFailed  Status = "failed"
)

// Run is one stored run.
type Run struct {
	ID    string
	Seq   int64
	Entry string

	Status         Status
	ErrorCode      string
	ErrorSpecifier string
	ErrorMessage   string

	// Value is the settled entry value, nil unless Status is StatusOK.
	Value value.Value

	StartedAt time.Time
	Duration  time.Duration
}

// Outcome is how a run finished.
type Outcome struct {
	Status         Status
	ErrorCode      string
	ErrorSpecifier string
	ErrorMessage   string
	Value          value.Value
	Duration       time.Duration
}

// Module is the final state of one module of a run. Seq is the module's
// discovery position in the graph.
type Module struct {
	Seq       int64  `json:"seq"`
	Specifier string `json:"specifier"`
	State     string `json:"state"`
	MediaType string `json:"media_type,omitempty"`
	Hash      string `json:"hash,omitempty"`
	Referrer  string `json:"referrer,omitempty"`
	Dynamic   bool   `json:"dynamic,omitempty"`
	Error     string `json:"error,omitempty"`
}
