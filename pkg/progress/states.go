package progress

// State is the connection state of the progress client.
type State string

const (
	// StateDisconnected is the initial state before Start and the state
	// after Stop.
	StateDisconnected State = "disconnected"

	// StateConnecting is the first dial attempt.
	StateConnecting State = "connecting"

	// StateConnected means push updates are flowing over the WebSocket.
	StateConnected State = "connected"

	// StateReconnecting is a backoff-scheduled redial after a drop.
	StateReconnecting State = "reconnecting"

	// StateError is a non-recoverable failure, such as a rejected token.
	StateError State = "error"

	// StatePolling means the dial budget is exhausted and snapshots are
	// fetched over HTTP instead, with background probes trying to get
	// the WebSocket back.
	StatePolling State = "polling"

	// StateCompleted means the ingestion reached a terminal status and
	// the client shut itself down.
	StateCompleted State = "completed"
)

func (s State) String() string { return string(s) }
