// Package realtime fans ingestion progress and notifications out to
// connected WebSocket clients. Clients join rooms scoped to an organization,
// project, or user; the NATS bridge feeds pipeline events into project rooms.
package realtime

import "encoding/json"

// Close code sent when the connection token is missing or invalid.
const CloseUnauthorized = 4001

// Client actions.
const (
	ActionJoin  = "join"
	ActionLeave = "leave"
	ActionPing  = "ping"
)

// Server event types.
const (
	EventIngestionProgress = "ingestion_progress"
	EventExecutionUpdate   = "execution_update"
	EventNotification      = "notification"
	EventRoomJoined        = "room_joined"
	EventRoomLeft          = "room_left"
	EventError             = "error"
	EventPong              = "pong"
)

// ClientMessage is a frame sent by the client.
type ClientMessage struct {
	Action string `json:"action"`
	Room   string `json:"room,omitempty"`
}

// ServerMessage is a frame sent to the client.
type ServerMessage struct {
	Type  string          `json:"type"`
	Room  string          `json:"room,omitempty"`
	Data  json.RawMessage `json:"data,omitempty"`
	Error string          `json:"error,omitempty"`
}

func encodeServerMessage(msg ServerMessage) []byte {
	data, err := json.Marshal(msg)
	if err != nil {
		return []byte(`{"type":"error","error":"encoding failure"}`)
	}
	return data
}

// Claims identify an authenticated connection.
type Claims struct {
	UserID string
	OrgID  string
}

// Room name helpers.
func OrgRoom(orgID string) string         { return "org:" + orgID }
func ProjectRoom(projectID string) string { return "project:" + projectID }
func UserRoom(userID string) string       { return "user:" + userID }
