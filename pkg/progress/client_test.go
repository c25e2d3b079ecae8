package progress

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"sync"
	"testing"
	"time"

	"github.com/gorilla/websocket"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// fakeGateway is a minimal stand-in for the ingestion gateway: a
// WebSocket endpoint that relays queued events and a snapshot endpoint
// serving the current document.
type fakeGateway struct {
	t        *testing.T
	upgrader websocket.Upgrader

	mu        sync.Mutex
	snap      *Snapshot
	rejectWS  bool
	failDials int
	dials     int
	events    chan Snapshot

	server *httptest.Server
}

func newFakeGateway(t *testing.T) *fakeGateway {
	g := &fakeGateway{
		t:      t,
		events: make(chan Snapshot, 16),
	}
	mux := http.NewServeMux()
	mux.HandleFunc("/ws", g.handleWS)
	mux.HandleFunc("/api/v1/projects/p1/ingestion", g.handleSnapshot)
	g.server = httptest.NewServer(mux)
	t.Cleanup(g.server.Close)
	return g
}

func (g *fakeGateway) handleWS(w http.ResponseWriter, r *http.Request) {
	g.mu.Lock()
	g.dials++
	reject := g.rejectWS || g.failDials > 0
	if g.failDials > 0 {
		g.failDials--
	}
	unauthorized := g.rejectWS
	g.mu.Unlock()

	if reject {
		if unauthorized {
			http.Error(w, "bad token", http.StatusUnauthorized)
		} else {
			http.Error(w, "unavailable", http.StatusServiceUnavailable)
		}
		return
	}

	conn, err := g.upgrader.Upgrade(w, r, nil)
	if err != nil {
		return
	}
	defer conn.Close()

	// Expect the join frame first.
	var join clientFrame
	if err := conn.ReadJSON(&join); err != nil {
		return
	}
	if join.Action != actionJoin {
		return
	}
	conn.WriteJSON(serverFrame{Type: frameRoomJoined, Room: join.Room})

	for snap := range g.events {
		payload, _ := json.Marshal(event{Type: frameIngestionProgress, Snapshot: snap})
		frame := serverFrame{Type: frameIngestionProgress, Room: join.Room, Data: payload}
		if err := conn.WriteJSON(frame); err != nil {
			return
		}
		if snap.Status.Terminal() {
			return
		}
	}
}

func (g *fakeGateway) handleSnapshot(w http.ResponseWriter, r *http.Request) {
	g.mu.Lock()
	snap := g.snap
	g.mu.Unlock()

	if snap == nil {
		http.NotFound(w, r)
		return
	}
	w.Header().Set("Content-Type", "application/json")
	json.NewEncoder(w).Encode(snap)
}

func (g *fakeGateway) setSnapshot(snap Snapshot) {
	g.mu.Lock()
	g.snap = &snap
	g.mu.Unlock()
}

func (g *fakeGateway) push(snap Snapshot) {
	g.setSnapshot(snap)
	g.events <- snap
}

func (g *fakeGateway) dialCount() int {
	g.mu.Lock()
	defer g.mu.Unlock()
	return g.dials
}

// recorder collects snapshots and state transitions.
type recorder struct {
	mu     sync.Mutex
	snaps  []Snapshot
	states []State
}

func (r *recorder) onSnapshot(s Snapshot) {
	r.mu.Lock()
	r.snaps = append(r.snaps, s)
	r.mu.Unlock()
}

func (r *recorder) onState(s State) {
	r.mu.Lock()
	r.states = append(r.states, s)
	r.mu.Unlock()
}

func (r *recorder) sawState(s State) bool {
	r.mu.Lock()
	defer r.mu.Unlock()
	for _, got := range r.states {
		if got == s {
			return true
		}
	}
	return false
}

func (r *recorder) snapshots() []Snapshot {
	r.mu.Lock()
	defer r.mu.Unlock()
	return append([]Snapshot(nil), r.snaps...)
}

func newTestClient(t *testing.T, g *fakeGateway, rec *recorder, mutate func(*Options)) *Client {
	t.Helper()
	opts := Options{
		BaseURL:         g.server.URL,
		ProjectID:       "p1",
		Token:           "tok",
		OnSnapshot:      rec.onSnapshot,
		OnState:         rec.onState,
		BackoffInitial:  10 * time.Millisecond,
		BackoffMax:      50 * time.Millisecond,
		PollInterval:    25 * time.Millisecond,
		ProbeInterval:   50 * time.Millisecond,
		MaxDialAttempts: 3,
	}
	if mutate != nil {
		mutate(&opts)
	}
	c, err := New(opts)
	require.NoError(t, err)
	return c
}

func waitDone(t *testing.T, c *Client) {
	t.Helper()
	select {
	case <-c.Done():
	case <-time.After(10 * time.Second):
		t.Fatal("client did not finish")
	}
}

func TestNewValidation(t *testing.T) {
	tests := []struct {
		name string
		opts Options
	}{
		{"missing base url", Options{ProjectID: "p1"}},
		{"missing project", Options{BaseURL: "http://localhost"}},
		{"bad scheme", Options{BaseURL: "ftp://host", ProjectID: "p1"}},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, err := New(tt.opts)
			assert.Error(t, err)
		})
	}
}

func TestPushUpdatesUntilCompletion(t *testing.T) {
	g := newFakeGateway(t)
	rec := &recorder{}
	c := newTestClient(t, g, rec, nil)

	require.NoError(t, c.Start(context.Background()))

	// Push only after the socket is live, otherwise the recovery fetch
	// would see the terminal snapshot and legitimately short-circuit.
	require.Eventually(t, func() bool {
		return rec.sawState(StateConnected)
	}, 5*time.Second, 10*time.Millisecond)

	g.push(Snapshot{ProjectID: "p1", Status: StatusRunning, Phase: "parsing", OverallPercent: 20})
	g.push(Snapshot{ProjectID: "p1", Status: StatusCompleted, Phase: "indexing", OverallPercent: 100})

	waitDone(t, c)
	assert.Equal(t, StateCompleted, c.State())
	assert.True(t, rec.sawState(StateConnecting))
	assert.True(t, rec.sawState(StateConnected))

	snaps := rec.snapshots()
	require.NotEmpty(t, snaps)
	assert.Equal(t, StatusCompleted, snaps[len(snaps)-1].Status)
}

func TestDoubleStartRefused(t *testing.T) {
	g := newFakeGateway(t)
	rec := &recorder{}
	c := newTestClient(t, g, rec, nil)

	require.NoError(t, c.Start(context.Background()))
	defer c.Stop()

	assert.ErrorIs(t, c.Start(context.Background()), ErrAlreadyStarted)
}

func TestSnapshotRecoveryOnConnect(t *testing.T) {
	g := newFakeGateway(t)
	// State that accrued before the client connected.
	g.setSnapshot(Snapshot{ProjectID: "p1", Status: StatusRunning, Phase: "chunking", OverallPercent: 45})

	rec := &recorder{}
	c := newTestClient(t, g, rec, nil)
	require.NoError(t, c.Start(context.Background()))
	defer c.Stop()

	require.Eventually(t, func() bool {
		return len(rec.snapshots()) >= 1
	}, 5*time.Second, 10*time.Millisecond)

	first := rec.snapshots()[0]
	assert.Equal(t, "chunking", first.Phase)
	assert.Equal(t, 45.0, first.OverallPercent)
}

func TestRecoveredTerminalSnapshotCompletes(t *testing.T) {
	g := newFakeGateway(t)
	g.setSnapshot(Snapshot{ProjectID: "p1", Status: StatusCompleted, OverallPercent: 100})

	rec := &recorder{}
	c := newTestClient(t, g, rec, nil)
	require.NoError(t, c.Start(context.Background()))

	waitDone(t, c)
	assert.Equal(t, StateCompleted, c.State())
}

func TestFallbackToPolling(t *testing.T) {
	g := newFakeGateway(t)
	g.mu.Lock()
	g.failDials = 1000 // never let the WebSocket through
	g.mu.Unlock()
	g.setSnapshot(Snapshot{ProjectID: "p1", Status: StatusRunning, Phase: "parsing", OverallPercent: 10})

	rec := &recorder{}
	c := newTestClient(t, g, rec, nil)
	require.NoError(t, c.Start(context.Background()))

	require.Eventually(t, func() bool {
		return c.State() == StatePolling
	}, 5*time.Second, 10*time.Millisecond)
	assert.True(t, rec.sawState(StateReconnecting))

	// Polling keeps delivering fresh snapshots.
	g.setSnapshot(Snapshot{ProjectID: "p1", Status: StatusRunning, Phase: "indexing", OverallPercent: 80})
	require.Eventually(t, func() bool {
		snaps := rec.snapshots()
		return len(snaps) > 0 && snaps[len(snaps)-1].Phase == "indexing"
	}, 5*time.Second, 10*time.Millisecond)

	// Polling stops once the run completes.
	g.setSnapshot(Snapshot{ProjectID: "p1", Status: StatusCompleted, OverallPercent: 100})
	waitDone(t, c)
	assert.Equal(t, StateCompleted, c.State())
}

func TestProbeResumesPush(t *testing.T) {
	g := newFakeGateway(t)
	g.mu.Lock()
	g.failDials = 3 // exhaust the dial budget, then accept
	g.mu.Unlock()
	g.setSnapshot(Snapshot{ProjectID: "p1", Status: StatusRunning, Phase: "parsing", OverallPercent: 10})

	rec := &recorder{}
	c := newTestClient(t, g, rec, nil)
	require.NoError(t, c.Start(context.Background()))

	require.Eventually(t, func() bool {
		return c.State() == StatePolling
	}, 5*time.Second, 10*time.Millisecond)

	// The next probe lands on a healthy endpoint and push resumes.
	require.Eventually(t, func() bool {
		return c.State() == StateConnected
	}, 5*time.Second, 10*time.Millisecond)

	g.push(Snapshot{ProjectID: "p1", Status: StatusCompleted, OverallPercent: 100})
	waitDone(t, c)
	assert.Equal(t, StateCompleted, c.State())
}

func TestManualReconnectSkipsBackoffWait(t *testing.T) {
	g := newFakeGateway(t)
	g.mu.Lock()
	g.failDials = 1
	g.mu.Unlock()

	rec := &recorder{}
	c := newTestClient(t, g, rec, func(o *Options) {
		// Long enough that only a manual reconnect explains a quick
		// second dial.
		o.BackoffInitial = 30 * time.Second
		o.BackoffMax = 30 * time.Second
	})
	require.NoError(t, c.Start(context.Background()))
	defer c.Stop()

	require.Eventually(t, func() bool {
		return g.dialCount() == 1
	}, 5*time.Second, 10*time.Millisecond)

	c.Reconnect()
	require.Eventually(t, func() bool {
		return c.State() == StateConnected
	}, 5*time.Second, 10*time.Millisecond)
}

func TestUnauthorizedIsFatal(t *testing.T) {
	g := newFakeGateway(t)
	g.mu.Lock()
	g.rejectWS = true
	g.mu.Unlock()

	rec := &recorder{}
	c := newTestClient(t, g, rec, nil)
	require.NoError(t, c.Start(context.Background()))

	waitDone(t, c)
	assert.Equal(t, StateError, c.State())
	assert.ErrorIs(t, c.Err(), ErrUnauthorized)
	// No reconnect attempts after an auth rejection.
	assert.Equal(t, 1, g.dialCount())
}

func TestStopWhileReconnecting(t *testing.T) {
	g := newFakeGateway(t)
	g.mu.Lock()
	g.failDials = 1000
	g.mu.Unlock()

	rec := &recorder{}
	c := newTestClient(t, g, rec, func(o *Options) {
		o.BackoffInitial = 30 * time.Second
	})
	require.NoError(t, c.Start(context.Background()))

	require.Eventually(t, func() bool {
		return rec.sawState(StateReconnecting) || rec.sawState(StateConnecting)
	}, 5*time.Second, 10*time.Millisecond)

	done := make(chan struct{})
	go func() {
		c.Stop()
		close(done)
	}()
	select {
	case <-done:
	case <-time.After(5 * time.Second):
		t.Fatal("Stop() hung")
	}
	assert.Equal(t, StateDisconnected, c.State())
}

func TestFetchSnapshot(t *testing.T) {
	g := newFakeGateway(t)
	rec := &recorder{}
	c := newTestClient(t, g, rec, nil)

	_, err := c.FetchSnapshot(context.Background())
	assert.ErrorIs(t, err, ErrNoSnapshot)

	g.setSnapshot(Snapshot{ProjectID: "p1", Status: StatusRunning, Phase: "optimization"})
	snap, err := c.FetchSnapshot(context.Background())
	require.NoError(t, err)
	assert.Equal(t, "optimization", snap.Phase)
}
