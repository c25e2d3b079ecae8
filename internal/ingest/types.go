// Package ingest runs the ingestion pipeline: fetch, parse, chunk, optimize,
// index. Progress is tracked per project and published on the event bus so
// connected clients see phase-level updates in real time.
package ingest

import (
	"errors"
	"time"
)

// Phase is one stage of the ingestion pipeline.
type Phase string

const (
	PhaseRepositoryFetch Phase = "repository_fetch"
	PhaseParsing         Phase = "parsing"
	PhaseChunking        Phase = "chunking"
	PhaseOptimization    Phase = "optimization"
	PhaseIndexing        Phase = "indexing"
)

// phaseOrder is the execution order of the pipeline.
var phaseOrder = []Phase{
	PhaseRepositoryFetch,
	PhaseParsing,
	PhaseChunking,
	PhaseOptimization,
	PhaseIndexing,
}

// phaseWeights shape the overall percentage. Indexing and chunking dominate
// wall-clock time on typical repositories.
var phaseWeights = map[Phase]float64{
	PhaseRepositoryFetch: 0.15,
	PhaseParsing:         0.20,
	PhaseChunking:        0.25,
	PhaseOptimization:    0.15,
	PhaseIndexing:        0.25,
}

// Status is the lifecycle state of an ingestion run.
type Status string

const (
	StatusRunning   Status = "running"
	StatusCompleted Status = "completed"
	StatusFailed    Status = "failed"
)

// Terminal reports whether the status ends the run.
func (s Status) Terminal() bool {
	return s == StatusCompleted || s == StatusFailed
}

var (
	// ErrAlreadyRunning is returned when an ingestion is started for a
	// project that already has one in flight.
	ErrAlreadyRunning = errors.New("ingestion already running")

	// ErrNotFound is returned when no ingestion exists for a project.
	ErrNotFound = errors.New("no ingestion found")

	// ErrNoRepositories is returned when a project has nothing to ingest.
	ErrNoRepositories = errors.New("project has no repositories")
)

// Snapshot is the full progress document for one ingestion run. It is what
// the snapshot endpoint returns and what polling clients consume.
type Snapshot struct {
	ProjectID      string           `json:"project_id"`
	Status         Status           `json:"status"`
	Phase          Phase            `json:"phase"`
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

// Event wraps a snapshot for delivery over the event bus and WebSocket.
type Event struct {
	Type     string   `json:"type"`
	Snapshot Snapshot `json:"data"`
}

// EventTypeProgress is the event type carried by progress updates.
const EventTypeProgress = "ingestion_progress"

// SourceFile is one parsed file on its way through the pipeline.
type SourceFile struct {
	// Path is relative to the repository root.
	Path string

	// RepositoryID identifies the repository the file came from.
	RepositoryID string

	// Language is derived from the file extension, best effort.
	Language string

	// Content is the file text. Optimization may rewrite it.
	Content string
}
