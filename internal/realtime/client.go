package realtime

import (
	"encoding/json"
	"errors"
	"time"

	"github.com/gorilla/websocket"
)

const (
	writeWait      = 10 * time.Second
	pongWait       = 60 * time.Second
	pingPeriod     = (pongWait * 9) / 10
	maxMessageSize = 4096
)

var (
	errRoomForbidden = errors.New("room access denied")
	errRoomUnknown   = errors.New("unknown room kind")
)

// client is one WebSocket connection. Writes go through writePump so only
// one goroutine touches the connection. The send channel is never closed;
// unregistering closes done, which drains writePump and lets a racing
// Broadcast fall through to its drop path.
type client struct {
	hub    *Hub
	conn   *websocket.Conn
	claims Claims
	send   chan []byte
	done   chan struct{}
	rooms  map[string]struct{}
}

func newClient(hub *Hub, conn *websocket.Conn, claims Claims, sendBuffer int) *client {
	if sendBuffer <= 0 {
		sendBuffer = 32
	}
	return &client{
		hub:    hub,
		conn:   conn,
		claims: claims,
		send:   make(chan []byte, sendBuffer),
		done:   make(chan struct{}),
		rooms:  make(map[string]struct{}),
	}
}

// readPump handles incoming frames until the connection drops.
func (c *client) readPump() {
	defer func() {
		c.hub.unregister(c)
		c.conn.Close()
	}()

	c.conn.SetReadLimit(maxMessageSize)
	c.conn.SetReadDeadline(time.Now().Add(pongWait))
	c.conn.SetPongHandler(func(string) error {
		c.conn.SetReadDeadline(time.Now().Add(pongWait))
		return nil
	})

	for {
		_, data, err := c.conn.ReadMessage()
		if err != nil {
			return
		}
		c.handle(data)
	}
}

// handle dispatches one client frame. Bad input produces an error frame
// instead of dropping the connection.
func (c *client) handle(data []byte) {
	var msg ClientMessage
	if err := json.Unmarshal(data, &msg); err != nil {
		c.reply(ServerMessage{Type: EventError, Error: "invalid message format"})
		return
	}

	switch msg.Action {
	case ActionPing:
		c.reply(ServerMessage{Type: EventPong})
	case ActionJoin:
		if msg.Room == "" {
			c.reply(ServerMessage{Type: EventError, Error: "room required"})
			return
		}
		if err := c.hub.Join(c, msg.Room); err != nil {
			c.reply(ServerMessage{Type: EventError, Room: msg.Room, Error: err.Error()})
			return
		}
		c.reply(ServerMessage{Type: EventRoomJoined, Room: msg.Room})
	case ActionLeave:
		c.hub.Leave(c, msg.Room)
		c.reply(ServerMessage{Type: EventRoomLeft, Room: msg.Room})
	default:
		c.reply(ServerMessage{Type: EventError, Error: "unknown action"})
	}
}

func (c *client) reply(msg ServerMessage) {
	select {
	case <-c.done:
	case c.send <- encodeServerMessage(msg):
	default:
	}
}

// writePump flushes the send channel and keeps the connection alive with
// pings.
func (c *client) writePump() {
	ticker := time.NewTicker(pingPeriod)
	defer func() {
		ticker.Stop()
		c.conn.Close()
	}()

	for {
		select {
		case <-c.done:
			c.conn.SetWriteDeadline(time.Now().Add(writeWait))
			c.conn.WriteMessage(websocket.CloseMessage, []byte{})
			return
		case payload := <-c.send:
			c.conn.SetWriteDeadline(time.Now().Add(writeWait))
			if err := c.conn.WriteMessage(websocket.TextMessage, payload); err != nil {
				return
			}
		case <-ticker.C:
			c.conn.SetWriteDeadline(time.Now().Add(writeWait))
			if err := c.conn.WriteMessage(websocket.PingMessage, nil); err != nil {
				return
			}
		}
	}
}
