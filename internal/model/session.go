package model

import (
	"time"

	"github.com/google/uuid"
)

// SessionDisposition records how a session ended.
type SessionDisposition string

const (
	DispositionRunning   SessionDisposition = "running"
	DispositionCompleted SessionDisposition = "completed"
	DispositionFatal     SessionDisposition = "fatal"
)

// Session is one run of the control loop. Created at start, mutated
// throughout, closed at end; never deleted.
type Session struct {
	ID          uuid.UUID          `json:"id"`
	StartedAt   time.Time          `json:"started_at"`
	EndedAt     *time.Time         `json:"ended_at,omitempty"`
	Attempts    int                `json:"attempts"`  // Foraging cycles started
	Successes   int                `json:"successes"` // Artifacts stored
	Disposition SessionDisposition `json:"disposition"`
}

// Checkpoint is one entry of the append-only per-session checkpoint log.
// The latest checkpoint for a session is its recovery point. Seq is
// strictly increasing within a session.
type Checkpoint struct {
	ID        uuid.UUID      `json:"id"`
	SessionID uuid.UUID      `json:"session_id"`
	Seq       int64          `json:"seq"`
	State     string         `json:"state"`
	Timestamp time.Time      `json:"timestamp"`
	Payload   map[string]any `json:"payload,omitempty"` // Phase-specific resumption data
	Reason    string         `json:"reason"`            // Transition that produced this checkpoint
}

// SourceResult is the uniform record returned by every content source.
type SourceResult struct {
	Content    string            `json:"content"`
	URL        string            `json:"url,omitempty"`
	Title      string            `json:"title,omitempty"`
	SourceName string            `json:"source_name"`
	Query      string            `json:"query,omitempty"`
	Metadata   map[string]string `json:"metadata,omitempty"`
}
