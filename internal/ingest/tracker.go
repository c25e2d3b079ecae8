package ingest

import (
	"context"
	"sync"
	"time"
)

// Publisher delivers progress snapshots to subscribers. The NATS
// implementation lives in events.go; tests substitute their own.
type Publisher interface {
	Publish(ctx context.Context, snap Snapshot) error
}

// nopPublisher drops events.
type nopPublisher struct{}

func (nopPublisher) Publish(context.Context, Snapshot) error { return nil }

// Tracker accumulates progress for one ingestion run and publishes a
// snapshot after every change. Safe for concurrent use.
type Tracker struct {
	mu        sync.Mutex
	snap      Snapshot
	publisher Publisher
}

// NewTracker starts tracking a run in the first phase.
func NewTracker(projectID string, publisher Publisher) *Tracker {
	if publisher == nil {
		publisher = nopPublisher{}
	}
	now := time.Now()
	return &Tracker{
		publisher: publisher,
		snap: Snapshot{
			ProjectID: projectID,
			Status:    StatusRunning,
			Phase:     phaseOrder[0],
			Metrics:   make(map[string]int64),
			StartedAt: now,
			UpdatedAt: now,
		},
	}
}

// Snapshot returns a copy of the current progress document.
func (t *Tracker) Snapshot() Snapshot {
	t.mu.Lock()
	defer t.mu.Unlock()
	return t.copyLocked()
}

// BeginPhase enters a phase at zero percent.
func (t *Tracker) BeginPhase(ctx context.Context, phase Phase, message string) {
	t.mu.Lock()
	t.snap.Phase = phase
	t.snap.PhasePercent = 0
	t.snap.Message = message
	t.recalcLocked()
	snap := t.copyLocked()
	t.mu.Unlock()

	_ = t.publisher.Publish(ctx, snap)
}

// Advance sets the completion of the current phase, 0 to 100.
func (t *Tracker) Advance(ctx context.Context, percent float64, message string) {
	if percent < 0 {
		percent = 0
	}
	if percent > 100 {
		percent = 100
	}

	t.mu.Lock()
	t.snap.PhasePercent = percent
	if message != "" {
		t.snap.Message = message
	}
	t.recalcLocked()
	snap := t.copyLocked()
	t.mu.Unlock()

	_ = t.publisher.Publish(ctx, snap)
}

// AddMetric increments a named pipeline metric without publishing.
func (t *Tracker) AddMetric(key string, delta int64) {
	t.mu.Lock()
	t.snap.Metrics[key] += delta
	t.mu.Unlock()
}

// Complete marks the run finished and publishes the terminal snapshot.
func (t *Tracker) Complete(ctx context.Context, message string) {
	now := time.Now()
	t.mu.Lock()
	t.snap.Status = StatusCompleted
	t.snap.Phase = phaseOrder[len(phaseOrder)-1]
	t.snap.PhasePercent = 100
	t.snap.OverallPercent = 100
	t.snap.Message = message
	t.snap.CompletedAt = &now
	t.snap.EstimatedEnd = nil
	t.snap.UpdatedAt = now
	snap := t.copyLocked()
	t.mu.Unlock()

	_ = t.publisher.Publish(ctx, snap)
}

// Fail marks the run failed with an error code and publishes the terminal
// snapshot.
func (t *Tracker) Fail(ctx context.Context, code, message string) {
	now := time.Now()
	t.mu.Lock()
	t.snap.Status = StatusFailed
	t.snap.ErrorCode = code
	t.snap.ErrorMessage = message
	t.snap.CompletedAt = &now
	t.snap.EstimatedEnd = nil
	t.snap.UpdatedAt = now
	snap := t.copyLocked()
	t.mu.Unlock()

	_ = t.publisher.Publish(ctx, snap)
}

// recalcLocked recomputes overall percent and the linear ETA. Caller holds
// the lock.
func (t *Tracker) recalcLocked() {
	var overall float64
	for _, p := range phaseOrder {
		if p == t.snap.Phase {
			overall += phaseWeights[p] * t.snap.PhasePercent / 100
			break
		}
		overall += phaseWeights[p]
	}
	t.snap.OverallPercent = overall * 100
	t.snap.UpdatedAt = time.Now()

	if overall > 0.01 && overall < 1 {
		elapsed := time.Since(t.snap.StartedAt)
		remaining := time.Duration(float64(elapsed) * (1 - overall) / overall)
		eta := time.Now().Add(remaining)
		t.snap.EstimatedEnd = &eta
	}
}

// copyLocked deep-copies the snapshot. Caller holds the lock.
func (t *Tracker) copyLocked() Snapshot {
	snap := t.snap
	snap.Metrics = make(map[string]int64, len(t.snap.Metrics))
	for k, v := range t.snap.Metrics {
		snap.Metrics[k] = v
	}
	return snap
}
