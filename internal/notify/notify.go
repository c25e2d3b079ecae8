// Package notify delivers in-app notifications. New notifications are
// stored per organization, published on NATS, and pushed to the org room
// over the realtime hub.
package notify

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/nats-io/nats.go"
	"go.uber.org/zap"

	"github.com/Anansitrading/kijko/internal/logging"
	"github.com/Anansitrading/kijko/internal/realtime"
)

var ErrNotFound = errors.New("notification not found")

// Level is the notification severity.
type Level string

const (
	LevelInfo    Level = "info"
	LevelSuccess Level = "success"
	LevelWarning Level = "warning"
	LevelError   Level = "error"
)

// retention caps how many notifications are kept per org and level.
// Errors stick around longer than chatter.
var retention = map[Level]int{
	LevelInfo:    25,
	LevelSuccess: 25,
	LevelWarning: 50,
	LevelError:   100,
}

// Notification is a single delivered message.
type Notification struct {
	ID        string    `json:"id"`
	OrgID     string    `json:"organization_id"`
	ProjectID string    `json:"project_id,omitempty"`
	Level     Level     `json:"level"`
	Title     string    `json:"title"`
	Body      string    `json:"body,omitempty"`
	Read      bool      `json:"read"`
	CreatedAt time.Time `json:"created_at"`
}

// Subject returns the NATS subject notifications for the org are
// published on.
func Subject(orgID string) string {
	return fmt.Sprintf("notify.%s", orgID)
}

// Broadcaster pushes a frame to every member of a room. *realtime.Hub
// satisfies this.
type Broadcaster interface {
	Broadcast(room string, payload []byte)
}

// Center stores and fans out notifications.
type Center struct {
	mu     sync.RWMutex
	byOrg  map[string][]*Notification
	nc     *nats.Conn
	hub    Broadcaster
	logger *logging.Logger
}

// NewCenter creates a notification center. nc and hub may be nil; the
// corresponding delivery path is then skipped.
func NewCenter(nc *nats.Conn, hub Broadcaster, logger *logging.Logger) *Center {
	if logger == nil {
		logger = logging.NewNop()
	}
	return &Center{
		byOrg:  make(map[string][]*Notification),
		nc:     nc,
		hub:    hub,
		logger: logger,
	}
}

// Publish stores the notification and delivers it on NATS and to the org
// room. Delivery failures are logged, not returned; the notification is
// still retained for the list endpoint.
func (c *Center) Publish(ctx context.Context, n Notification) (*Notification, error) {
	if n.OrgID == "" {
		return nil, fmt.Errorf("organization_id is required")
	}
	if n.Title == "" {
		return nil, fmt.Errorf("title is required")
	}
	if _, ok := retention[n.Level]; !ok {
		n.Level = LevelInfo
	}
	n.ID = uuid.NewString()
	n.CreatedAt = time.Now()
	n.Read = false

	c.mu.Lock()
	c.byOrg[n.OrgID] = append(c.byOrg[n.OrgID], &n)
	c.evictLocked(n.OrgID, n.Level)
	c.mu.Unlock()

	payload, err := json.Marshal(n)
	if err != nil {
		return nil, fmt.Errorf("encoding notification: %w", err)
	}

	if c.nc != nil {
		if err := c.nc.Publish(Subject(n.OrgID), payload); err != nil {
			c.logger.Warn(ctx, "notification publish failed",
				zap.String("org_id", n.OrgID), zap.Error(err))
		}
	}

	if c.hub != nil {
		frame, err := json.Marshal(realtime.ServerMessage{
			Type: realtime.EventNotification,
			Room: realtime.OrgRoom(n.OrgID),
			Data: payload,
		})
		if err == nil {
			c.hub.Broadcast(realtime.OrgRoom(n.OrgID), frame)
		}
	}

	out := n
	return &out, nil
}

// List returns the org's notifications, newest first. With unreadOnly
// set, read notifications are filtered out.
func (c *Center) List(_ context.Context, orgID string, unreadOnly bool) []*Notification {
	c.mu.RLock()
	defer c.mu.RUnlock()

	stored := c.byOrg[orgID]
	out := make([]*Notification, 0, len(stored))
	for i := len(stored) - 1; i >= 0; i-- {
		if unreadOnly && stored[i].Read {
			continue
		}
		cp := *stored[i]
		out = append(out, &cp)
	}
	return out
}

// UnreadCount returns how many notifications the org has not read.
func (c *Center) UnreadCount(_ context.Context, orgID string) int {
	c.mu.RLock()
	defer c.mu.RUnlock()

	var n int
	for _, notif := range c.byOrg[orgID] {
		if !notif.Read {
			n++
		}
	}
	return n
}

// MarkRead marks one notification as read.
func (c *Center) MarkRead(_ context.Context, orgID, id string) error {
	c.mu.Lock()
	defer c.mu.Unlock()

	for _, notif := range c.byOrg[orgID] {
		if notif.ID == id {
			notif.Read = true
			return nil
		}
	}
	return ErrNotFound
}

// MarkAllRead marks every notification for the org as read.
func (c *Center) MarkAllRead(_ context.Context, orgID string) {
	c.mu.Lock()
	defer c.mu.Unlock()

	for _, notif := range c.byOrg[orgID] {
		notif.Read = true
	}
}

// evictLocked drops the oldest notifications of the given level above
// its retention cap.
func (c *Center) evictLocked(orgID string, level Level) {
	limit := retention[level]

	var count int
	for _, notif := range c.byOrg[orgID] {
		if notif.Level == level {
			count++
		}
	}
	if count <= limit {
		return
	}

	kept := c.byOrg[orgID][:0]
	for _, notif := range c.byOrg[orgID] {
		if notif.Level == level && count > limit {
			count--
			continue
		}
		kept = append(kept, notif)
	}
	c.byOrg[orgID] = kept
}
