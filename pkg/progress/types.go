// Package progress implements the client side of the ingestion progress
// protocol: a WebSocket subscription with exponential-backoff reconnects
// and an HTTP polling fallback once the dial budget runs out.
package progress

import (
	"encoding/json"
	"time"
)

// Status is the ingestion run status carried in a snapshot.
type Status string

const (
	StatusRunning   Status = "running"
	StatusCompleted Status = "completed"
	StatusFailed    Status = "failed"
)

// Terminal reports whether the run is finished.
func (s Status) Terminal() bool {
	return s == StatusCompleted || s == StatusFailed
}

// Snapshot is the progress document the gateway serves. It mirrors the
// payload of both the push events and the polling endpoint.
type Snapshot struct {
	ProjectID      string           `json:"project_id"`
	Status         Status           `json:"status"`
	Phase          string           `json:"phase"`
	PhasePercent   float64          `json:"phase_percent"`
	OverallPercent float64          `json:"overall_percent"`
	Message        string           `json:"message,omitempty"`
	Metrics        map[string]int64 `json:"metrics,omitempty"`
	StartedAt      time.Time        `json:"started_at"`
	EstimatedEnd   *time.Time       `json:"estimated_completion_at,omitempty"`
	CompletedAt    *time.Time       `json:"completed_at,omitempty"`
	ErrorCode      string           `json:"error_code,omitempty"`
	ErrorMessage   string           `json:"error_message,omitempty"`
	UpdatedAt      time.Time        `json:"updated_at"`
}

// event is the envelope published on the bus and relayed by the hub.
type event struct {
	Type     string   `json:"type"`
	Snapshot Snapshot `json:"data"`
}

// serverFrame is one WebSocket frame from the hub.
type serverFrame struct {
	Type  string          `json:"type"`
	Room  string          `json:"room,omitempty"`
	Data  json.RawMessage `json:"data,omitempty"`
	Error string          `json:"error,omitempty"`
}

// clientFrame is one WebSocket frame to the hub.
type clientFrame struct {
	Action string `json:"action"`
	Room   string `json:"room,omitempty"`
}

const (
	frameIngestionProgress = "ingestion_progress"
	frameRoomJoined        = "room_joined"
	frameError             = "error"

	actionJoin = "join"
)
