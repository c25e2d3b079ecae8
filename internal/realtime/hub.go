package realtime

import (
	"context"
	"strings"
	"sync"

	"go.uber.org/zap"

	"github.com/Anansitrading/kijko/internal/logging"
)

// Hub tracks connected clients and their room memberships. Empty rooms are
// removed as the last member leaves.
type Hub struct {
	mu      sync.RWMutex
	rooms   map[string]map[*client]struct{}
	clients map[*client]struct{}
	logger  *logging.Logger
	metrics *Metrics
}

// NewHub creates an empty hub.
func NewHub(logger *logging.Logger) *Hub {
	if logger == nil {
		logger = logging.NewNop()
	}
	return &Hub{
		rooms:   make(map[string]map[*client]struct{}),
		clients: make(map[*client]struct{}),
		logger:  logger.Named("realtime"),
		metrics: NewMetrics(),
	}
}

// register adds a connection and auto-joins its user and org rooms.
func (h *Hub) register(c *client) {
	h.mu.Lock()
	h.clients[c] = struct{}{}
	h.joinLocked(c, UserRoom(c.claims.UserID))
	if c.claims.OrgID != "" {
		h.joinLocked(c, OrgRoom(c.claims.OrgID))
	}
	connections := len(h.clients)
	rooms := len(h.rooms)
	h.mu.Unlock()

	h.metrics.SetConnections(connections)
	h.metrics.SetRooms(rooms)
	h.logger.Debug(context.Background(), "client connected",
		zap.String("user_id", c.claims.UserID),
		zap.Int("connections", connections),
	)
}

// unregister drops a connection from every room.
func (h *Hub) unregister(c *client) {
	h.mu.Lock()
	if _, ok := h.clients[c]; !ok {
		h.mu.Unlock()
		return
	}
	delete(h.clients, c)
	for room := range c.rooms {
		h.leaveLocked(c, room)
	}
	connections := len(h.clients)
	rooms := len(h.rooms)
	h.mu.Unlock()

	close(c.done)
	h.metrics.SetConnections(connections)
	h.metrics.SetRooms(rooms)
}

// Join adds the client to a room after an access check: org and user rooms
// require a matching claim, project rooms are open to any authenticated
// connection.
func (h *Hub) Join(c *client, room string) error {
	if err := h.authorize(c, room); err != nil {
		return err
	}

	h.mu.Lock()
	h.joinLocked(c, room)
	rooms := len(h.rooms)
	h.mu.Unlock()

	h.metrics.SetRooms(rooms)
	return nil
}

// Leave removes the client from a room.
func (h *Hub) Leave(c *client, room string) {
	h.mu.Lock()
	h.leaveLocked(c, room)
	rooms := len(h.rooms)
	h.mu.Unlock()

	h.metrics.SetRooms(rooms)
}

// Broadcast sends a payload to every member of a room.
func (h *Hub) Broadcast(room string, payload []byte) {
	h.mu.RLock()
	members := h.rooms[room]
	targets := make([]*client, 0, len(members))
	for c := range members {
		targets = append(targets, c)
	}
	h.mu.RUnlock()

	for _, c := range targets {
		select {
		case <-c.done:
			h.metrics.AddDropped(1)
		case c.send <- payload:
			h.metrics.AddDelivered(1)
		default:
			// Slow consumer; drop the frame rather than block the room.
			h.metrics.AddDropped(1)
		}
	}
}

// RoomSize returns the number of members in a room.
func (h *Hub) RoomSize(room string) int {
	h.mu.RLock()
	defer h.mu.RUnlock()
	return len(h.rooms[room])
}

// Connections returns the number of connected clients.
func (h *Hub) Connections() int {
	h.mu.RLock()
	defer h.mu.RUnlock()
	return len(h.clients)
}

// Close disconnects every client.
func (h *Hub) Close() {
	h.mu.Lock()
	clients := make([]*client, 0, len(h.clients))
	for c := range h.clients {
		clients = append(clients, c)
	}
	h.mu.Unlock()

	for _, c := range clients {
		c.conn.Close()
	}
}

func (h *Hub) authorize(c *client, room string) error {
	switch {
	case strings.HasPrefix(room, "org:"):
		if strings.TrimPrefix(room, "org:") != c.claims.OrgID {
			return errRoomForbidden
		}
	case strings.HasPrefix(room, "user:"):
		if strings.TrimPrefix(room, "user:") != c.claims.UserID {
			return errRoomForbidden
		}
	case strings.HasPrefix(room, "project:"):
		// Authenticated connections may follow any project room.
	default:
		return errRoomUnknown
	}
	return nil
}

func (h *Hub) joinLocked(c *client, room string) {
	members := h.rooms[room]
	if members == nil {
		members = make(map[*client]struct{})
		h.rooms[room] = members
	}
	members[c] = struct{}{}
	c.rooms[room] = struct{}{}
}

func (h *Hub) leaveLocked(c *client, room string) {
	if members, ok := h.rooms[room]; ok {
		delete(members, c)
		if len(members) == 0 {
			delete(h.rooms, room)
		}
	}
	delete(c.rooms, room)
}
