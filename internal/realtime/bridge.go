package realtime

import (
	"context"
	"encoding/json"
	"fmt"
	"strings"

	"github.com/nats-io/nats.go"
	"go.uber.org/zap"

	"github.com/Anansitrading/kijko/internal/ingest"
	"github.com/Anansitrading/kijko/internal/logging"
)

// Bridge subscribes to pipeline progress subjects on NATS and fans the
// events out to the matching project rooms.
type Bridge struct {
	hub    *Hub
	nc     *nats.Conn
	sub    *nats.Subscription
	logger *logging.Logger
}

// NewBridge creates a bridge over an existing NATS connection.
func NewBridge(hub *Hub, nc *nats.Conn, logger *logging.Logger) *Bridge {
	if logger == nil {
		logger = logging.NewNop()
	}
	return &Bridge{hub: hub, nc: nc, logger: logger.Named("bridge")}
}

// Start subscribes to all project progress subjects.
func (b *Bridge) Start() error {
	sub, err := b.nc.Subscribe(ingest.SubjectAll, b.onMessage)
	if err != nil {
		return fmt.Errorf("subscribing to progress events: %w", err)
	}
	b.sub = sub
	return nil
}

// Stop unsubscribes from the event bus.
func (b *Bridge) Stop() error {
	if b.sub == nil {
		return nil
	}
	return b.sub.Unsubscribe()
}

// onMessage routes one bus event to the project room. The project ID is the
// middle token of the subject: ingest.<project_id>.progress.
func (b *Bridge) onMessage(msg *nats.Msg) {
	parts := strings.Split(msg.Subject, ".")
	if len(parts) != 3 {
		return
	}
	projectID := parts[1]

	if !json.Valid(msg.Data) {
		b.logger.Warn(context.Background(), "dropping malformed bus event",
			zap.String("subject", msg.Subject))
		return
	}

	frame := encodeServerMessage(ServerMessage{
		Type: EventIngestionProgress,
		Room: ProjectRoom(projectID),
		Data: json.RawMessage(msg.Data),
	})
	b.hub.Broadcast(ProjectRoom(projectID), frame)
}
