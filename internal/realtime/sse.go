package realtime

import (
	"encoding/json"
	"fmt"
	"net/http"
	"time"

	"github.com/labstack/echo/v4"
	"github.com/nats-io/nats.go"

	"github.com/Anansitrading/kijko/internal/ingest"
)

// sseHeartbeat keeps proxies from timing out idle streams.
const sseHeartbeat = 30 * time.Second

// HandleSSE streams one project's ingestion progress as Server-Sent Events.
// The stream ends when the run reaches a terminal status or the client
// disconnects.
func HandleSSE(c echo.Context, nc *nats.Conn, projectID string) error {
	c.Response().Header().Set("Content-Type", "text/event-stream")
	c.Response().Header().Set("Cache-Control", "no-cache")
	c.Response().Header().Set("Connection", "keep-alive")
	c.Response().Header().Set("X-Accel-Buffering", "no")
	c.Response().WriteHeader(http.StatusOK)
	c.Response().Flush()

	msgChan := make(chan *nats.Msg, 16)
	sub, err := nc.ChanSubscribe(ingest.ProgressSubject(projectID), msgChan)
	if err != nil {
		return err
	}
	defer func() {
		_ = sub.Unsubscribe()
	}()

	ticker := time.NewTicker(sseHeartbeat)
	defer ticker.Stop()

	for {
		select {
		case msg := <-msgChan:
			fmt.Fprintf(c.Response(), "event: %s\n", EventIngestionProgress)
			fmt.Fprintf(c.Response(), "data: %s\n\n", msg.Data)
			c.Response().Flush()

			var event ingest.Event
			if err := json.Unmarshal(msg.Data, &event); err == nil && event.Snapshot.Status.Terminal() {
				return nil
			}

		case <-ticker.C:
			fmt.Fprintf(c.Response(), ": heartbeat\n\n")
			c.Response().Flush()

		case <-c.Request().Context().Done():
			return nil
		}
	}
}
