package notify

import (
	"context"
	"encoding/json"
	"fmt"

	"github.com/nats-io/nats.go"
	"go.uber.org/zap"

	"github.com/Anansitrading/kijko/internal/ingest"
	"github.com/Anansitrading/kijko/internal/logging"
	"github.com/Anansitrading/kijko/internal/project"
)

// IngestWatcher turns terminal ingestion events into notifications for
// the owning organization.
type IngestWatcher struct {
	center   *Center
	projects project.Store
	nc       *nats.Conn
	logger   *logging.Logger
	subs     []*nats.Subscription
}

// NewIngestWatcher creates the watcher.
func NewIngestWatcher(center *Center, projects project.Store, nc *nats.Conn, logger *logging.Logger) *IngestWatcher {
	if logger == nil {
		logger = logging.NewNop()
	}
	return &IngestWatcher{
		center:   center,
		projects: projects,
		nc:       nc,
		logger:   logger,
	}
}

// Start subscribes to the terminal ingestion subjects.
func (w *IngestWatcher) Start() error {
	for _, subject := range []string{"ingest.*.completed", "ingest.*.failed"} {
		sub, err := w.nc.Subscribe(subject, w.onTerminal)
		if err != nil {
			w.Stop()
			return fmt.Errorf("subscribing to %s: %w", subject, err)
		}
		w.subs = append(w.subs, sub)
	}
	return nil
}

// Stop unsubscribes.
func (w *IngestWatcher) Stop() {
	for _, sub := range w.subs {
		_ = sub.Unsubscribe()
	}
	w.subs = nil
}

func (w *IngestWatcher) onTerminal(msg *nats.Msg) {
	ctx := context.Background()

	var ev ingest.Event
	if err := json.Unmarshal(msg.Data, &ev); err != nil {
		w.logger.Warn(ctx, "discarding malformed terminal event", zap.Error(err))
		return
	}
	snap := ev.Snapshot

	proj, err := w.projects.Get(ctx, snap.ProjectID)
	if err != nil {
		w.logger.Warn(ctx, "terminal event for unknown project",
			zap.String("project_id", snap.ProjectID), zap.Error(err))
		return
	}

	notif := Notification{
		OrgID:     proj.OrgID,
		ProjectID: proj.ID,
	}
	if snap.Status == ingest.StatusFailed {
		notif.Level = LevelError
		notif.Title = fmt.Sprintf("Ingestion of %s failed", proj.Name)
		notif.Body = snap.ErrorMessage
	} else {
		notif.Level = LevelSuccess
		notif.Title = fmt.Sprintf("Ingestion of %s completed", proj.Name)
		notif.Body = fmt.Sprintf("%d files indexed", snap.Metrics["files_parsed"])
	}

	if _, err := w.center.Publish(ctx, notif); err != nil {
		w.logger.Warn(ctx, "failed to publish ingestion notification", zap.Error(err))
	}
}
