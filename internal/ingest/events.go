package ingest

import (
	"context"
	"encoding/json"
	"fmt"

	"github.com/nats-io/nats.go"
)

// Subject names for progress events. Subscribers use SubjectAll to follow
// every project.
const (
	subjectPrefix = "ingest."

	// SubjectAll matches progress updates for every project.
	SubjectAll = "ingest.*.progress"
)

// ProgressSubject returns the per-project progress subject.
func ProgressSubject(projectID string) string {
	return subjectPrefix + projectID + ".progress"
}

// TerminalSubject returns the subject for the run's terminal event.
func TerminalSubject(projectID string, status Status) string {
	return subjectPrefix + projectID + "." + string(status)
}

// NATSPublisher publishes progress snapshots on the NATS event bus.
type NATSPublisher struct {
	nc *nats.Conn
}

// NewNATSPublisher wraps an existing NATS connection.
func NewNATSPublisher(nc *nats.Conn) *NATSPublisher {
	return &NATSPublisher{nc: nc}
}

// Publish sends the snapshot on the project's progress subject. Terminal
// snapshots are additionally published on their completed/failed subject.
func (p *NATSPublisher) Publish(ctx context.Context, snap Snapshot) error {
	data, err := json.Marshal(Event{Type: EventTypeProgress, Snapshot: snap})
	if err != nil {
		return fmt.Errorf("encoding progress event: %w", err)
	}

	if err := p.nc.Publish(ProgressSubject(snap.ProjectID), data); err != nil {
		return fmt.Errorf("publishing progress: %w", err)
	}
	if snap.Status.Terminal() {
		if err := p.nc.Publish(TerminalSubject(snap.ProjectID, snap.Status), data); err != nil {
			return fmt.Errorf("publishing terminal event: %w", err)
		}
	}
	return nil
}

var _ Publisher = (*NATSPublisher)(nil)
