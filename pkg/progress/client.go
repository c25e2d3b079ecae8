package progress

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"net/url"
	"strings"
	"sync"
	"time"

	"github.com/cenkalti/backoff/v5"
	"github.com/gorilla/websocket"
	"go.uber.org/zap"
)

var (
	ErrAlreadyStarted = errors.New("progress client already started")
	ErrUnauthorized   = errors.New("token rejected by gateway")
	ErrNoSnapshot     = errors.New("no ingestion snapshot available")
)

// closeUnauthorized is the close code the gateway sends for a bad token.
const closeUnauthorized = 4001

const (
	defaultDialTimeout   = 5 * time.Second
	defaultPollInterval  = 2 * time.Second
	defaultProbeInterval = 15 * time.Second
)

// Options configures a Client.
type Options struct {
	// BaseURL is the gateway root, e.g. http://localhost:8080.
	BaseURL string

	// ProjectID selects which ingestion to follow.
	ProjectID string

	// Token authenticates the WebSocket.
	Token string

	// OnSnapshot receives every progress snapshot, from push, recovery
	// fetches, and polling alike. Called from the client goroutine.
	OnSnapshot func(Snapshot)

	// OnState receives connection state changes.
	OnState func(State)

	Logger *zap.Logger

	// DialTimeout bounds a single WebSocket dial. Defaults to 5s.
	DialTimeout time.Duration

	// PollInterval is the snapshot cadence in polling mode. Defaults
	// to 2s.
	PollInterval time.Duration

	// ProbeInterval is how often polling mode retries the WebSocket.
	// Defaults to 15s.
	ProbeInterval time.Duration

	// BackoffInitial and BackoffMax override the reconnect schedule.
	// Zero values use the defaults (1s, 30s).
	BackoffInitial time.Duration
	BackoffMax     time.Duration

	// MaxDialAttempts is the dial budget before falling back to
	// polling. Defaults to 10.
	MaxDialAttempts int

	// HTTPClient is used for snapshot fetches.
	HTTPClient *http.Client
}

// Client follows one project's ingestion progress. It owns at most one
// WebSocket and at most one poll loop at any time; all transport work
// happens on a single goroutine.
type Client struct {
	opts    Options
	wsURL   string
	snapURL string
	logger  *zap.Logger
	http    *http.Client

	mu      sync.Mutex
	state   State
	started bool
	err     error

	cancel    context.CancelFunc
	done      chan struct{}
	reconnect chan struct{}
}

// New creates a progress client.
func New(opts Options) (*Client, error) {
	if opts.BaseURL == "" {
		return nil, fmt.Errorf("base URL is required")
	}
	if opts.ProjectID == "" {
		return nil, fmt.Errorf("project ID is required")
	}

	base, err := url.Parse(opts.BaseURL)
	if err != nil || (base.Scheme != "http" && base.Scheme != "https") {
		return nil, fmt.Errorf("invalid base URL %q", opts.BaseURL)
	}

	wsBase := *base
	if base.Scheme == "https" {
		wsBase.Scheme = "wss"
	} else {
		wsBase.Scheme = "ws"
	}
	wsBase.Path = strings.TrimRight(wsBase.Path, "/") + "/ws"
	if opts.Token != "" {
		q := wsBase.Query()
		q.Set("token", opts.Token)
		wsBase.RawQuery = q.Encode()
	}

	snapBase := *base
	snapBase.Path = strings.TrimRight(snapBase.Path, "/") +
		"/api/v1/projects/" + url.PathEscape(opts.ProjectID) + "/ingestion"

	if opts.Logger == nil {
		opts.Logger = zap.NewNop()
	}
	if opts.DialTimeout <= 0 {
		opts.DialTimeout = defaultDialTimeout
	}
	if opts.PollInterval <= 0 {
		opts.PollInterval = defaultPollInterval
	}
	if opts.ProbeInterval <= 0 {
		opts.ProbeInterval = defaultProbeInterval
	}
	if opts.MaxDialAttempts <= 0 {
		opts.MaxDialAttempts = maxDialAttempts
	}
	httpClient := opts.HTTPClient
	if httpClient == nil {
		httpClient = &http.Client{Timeout: 10 * time.Second}
	}

	return &Client{
		opts:      opts,
		wsURL:     wsBase.String(),
		snapURL:   snapBase.String(),
		logger:    opts.Logger,
		http:      httpClient,
		state:     StateDisconnected,
		done:      make(chan struct{}),
		reconnect: make(chan struct{}, 1),
	}, nil
}

// Start launches the client. A second Start returns ErrAlreadyStarted;
// there is never more than one subscription per client.
func (c *Client) Start(ctx context.Context) error {
	c.mu.Lock()
	if c.started {
		c.mu.Unlock()
		return ErrAlreadyStarted
	}
	c.started = true
	ctx, c.cancel = context.WithCancel(ctx)
	c.mu.Unlock()

	go c.run(ctx)
	return nil
}

// Stop shuts the client down and waits for the transport goroutine.
func (c *Client) Stop() {
	c.mu.Lock()
	cancel := c.cancel
	started := c.started
	c.mu.Unlock()

	if !started {
		return
	}
	if cancel != nil {
		cancel()
	}
	<-c.done
}

// Reconnect asks the client to retry the WebSocket now instead of
// waiting out the current backoff delay or probe interval.
func (c *Client) Reconnect() {
	select {
	case c.reconnect <- struct{}{}:
	default:
	}
}

// State returns the current connection state.
func (c *Client) State() State {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.state
}

// Err returns the failure that put the client into StateError, if any.
func (c *Client) Err() error {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.err
}

// Done is closed when the client goroutine exits.
func (c *Client) Done() <-chan struct{} {
	return c.done
}

func (c *Client) setState(s State) {
	c.mu.Lock()
	if c.state == s {
		c.mu.Unlock()
		return
	}
	c.state = s
	c.mu.Unlock()

	c.logger.Debug("progress client state", zap.String("state", s.String()))
	if c.opts.OnState != nil {
		c.opts.OnState(s)
	}
}

func (c *Client) fail(err error) {
	c.mu.Lock()
	c.err = err
	c.mu.Unlock()
	c.logger.Warn("progress client failed", zap.Error(err))
	c.setState(StateError)
}

// run is the single transport goroutine.
func (c *Client) run(ctx context.Context) {
	defer close(c.done)

	policy := newBackoffPolicy(c.opts.BackoffInitial, c.opts.BackoffMax)
	attempts := 0

	for {
		if ctx.Err() != nil {
			c.setState(StateDisconnected)
			return
		}

		if attempts == 0 {
			c.setState(StateConnecting)
		} else {
			c.setState(StateReconnecting)
		}

		conn, err := c.dial(ctx)
		if err != nil {
			if errors.Is(err, ErrUnauthorized) {
				c.fail(err)
				return
			}
			attempts++
			c.logger.Debug("dial failed",
				zap.Int("attempt", attempts), zap.Error(err))

			if attempts >= c.opts.MaxDialAttempts {
				conn = c.pollUntilPushResumes(ctx)
				if conn == nil {
					// Terminal, fatal, or canceled inside polling.
					return
				}
				attempts = 0
				policy.Reset()
			} else if !c.waitBackoff(ctx, policy) {
				c.setState(StateDisconnected)
				return
			} else {
				continue
			}
		}

		// Recovery fetch covers anything missed while disconnected.
		if terminal := c.recoverSnapshot(ctx); terminal {
			conn.Close()
			c.setState(StateCompleted)
			return
		}

		c.setState(StateConnected)
		attempts = 0
		policy.Reset()

		terminal, consumeErr := c.consume(ctx, conn)
		conn.Close()

		switch {
		case terminal:
			c.setState(StateCompleted)
			return
		case ctx.Err() != nil:
			c.setState(StateDisconnected)
			return
		case errors.Is(consumeErr, ErrUnauthorized):
			c.fail(consumeErr)
			return
		default:
			// Connection dropped, go around and redial.
			attempts = 1
		}
	}
}

// waitBackoff sleeps out the next jittered delay. A manual Reconnect
// cuts the wait short. Returns false when the context is done.
func (c *Client) waitBackoff(ctx context.Context, policy *backoff.ExponentialBackOff) bool {
	delay := policy.NextBackOff()
	c.logger.Debug("reconnect scheduled", zap.Duration("delay", delay))

	timer := time.NewTimer(delay)
	defer timer.Stop()

	select {
	case <-timer.C:
		return true
	case <-c.reconnect:
		return true
	case <-ctx.Done():
		return false
	}
}

// dial opens the WebSocket and joins the project room.
func (c *Client) dial(ctx context.Context) (*websocket.Conn, error) {
	dialCtx, cancel := context.WithTimeout(ctx, c.opts.DialTimeout)
	defer cancel()

	conn, resp, err := websocket.DefaultDialer.DialContext(dialCtx, c.wsURL, nil)
	if err != nil {
		if resp != nil && (resp.StatusCode == http.StatusUnauthorized || resp.StatusCode == http.StatusForbidden) {
			return nil, fmt.Errorf("%w: http %d", ErrUnauthorized, resp.StatusCode)
		}
		return nil, fmt.Errorf("dialing websocket: %w", err)
	}

	join := clientFrame{Action: actionJoin, Room: "project:" + c.opts.ProjectID}
	if err := conn.WriteJSON(join); err != nil {
		conn.Close()
		return nil, fmt.Errorf("joining project room: %w", err)
	}
	return conn, nil
}

// consume reads push frames until the run completes or the connection
// drops. Returns terminal=true when a terminal snapshot arrived.
func (c *Client) consume(ctx context.Context, conn *websocket.Conn) (bool, error) {
	// Unblock the read when the context is canceled.
	stop := make(chan struct{})
	defer close(stop)
	go func() {
		select {
		case <-ctx.Done():
			conn.Close()
		case <-stop:
		}
	}()

	for {
		_, data, err := conn.ReadMessage()
		if err != nil {
			if websocket.IsCloseError(err, closeUnauthorized) {
				return false, fmt.Errorf("%w: close %d", ErrUnauthorized, closeUnauthorized)
			}
			return false, err
		}

		var frame serverFrame
		if err := json.Unmarshal(data, &frame); err != nil {
			c.logger.Debug("discarding malformed frame", zap.Error(err))
			continue
		}

		switch frame.Type {
		case frameIngestionProgress:
			var ev event
			if err := json.Unmarshal(frame.Data, &ev); err != nil {
				c.logger.Debug("discarding malformed event", zap.Error(err))
				continue
			}
			c.deliver(ev.Snapshot)
			if ev.Snapshot.Status.Terminal() {
				return true, nil
			}
		case frameRoomJoined:
			c.logger.Debug("joined room", zap.String("room", frame.Room))
		case frameError:
			c.logger.Warn("gateway error frame", zap.String("error", frame.Error))
		}
	}
}

// pollUntilPushResumes is the fallback loop: fetch the snapshot every
// poll interval and probe the WebSocket in the background. Returns a
// live connection when a probe succeeds, or nil when the run finished,
// the context ended, or the token was rejected.
func (c *Client) pollUntilPushResumes(ctx context.Context) *websocket.Conn {
	c.setState(StatePolling)
	c.logger.Info("dial budget exhausted, polling for progress",
		zap.Duration("interval", c.opts.PollInterval))

	poll := time.NewTicker(c.opts.PollInterval)
	defer poll.Stop()
	probe := time.NewTicker(c.opts.ProbeInterval)
	defer probe.Stop()

	// One immediate fetch so the consumer is not blind for a full
	// interval.
	if terminal := c.pollOnce(ctx); terminal {
		c.setState(StateCompleted)
		return nil
	}

	for {
		select {
		case <-ctx.Done():
			c.setState(StateDisconnected)
			return nil
		case <-poll.C:
			if terminal := c.pollOnce(ctx); terminal {
				c.setState(StateCompleted)
				return nil
			}
		case <-probe.C:
			if conn := c.probe(ctx); conn != nil {
				return conn
			}
		case <-c.reconnect:
			if conn := c.probe(ctx); conn != nil {
				return conn
			}
		}
	}
}

func (c *Client) probe(ctx context.Context) *websocket.Conn {
	conn, err := c.dial(ctx)
	if err != nil {
		if errors.Is(err, ErrUnauthorized) {
			c.fail(err)
			return nil
		}
		c.logger.Debug("probe failed", zap.Error(err))
		return nil
	}
	c.logger.Info("push connection re-established, polling stopped")
	return conn
}

// pollOnce fetches and delivers one snapshot. Returns true on a
// terminal status.
func (c *Client) pollOnce(ctx context.Context) bool {
	snap, err := c.FetchSnapshot(ctx)
	if err != nil {
		if !errors.Is(err, ErrNoSnapshot) {
			c.logger.Debug("poll failed", zap.Error(err))
		}
		return false
	}
	c.deliver(snap)
	return snap.Status.Terminal()
}

// recoverSnapshot fetches the current snapshot after a (re)connect.
// Returns true when the run already finished.
func (c *Client) recoverSnapshot(ctx context.Context) bool {
	snap, err := c.FetchSnapshot(ctx)
	if err != nil {
		// Not fatal; push updates will catch us up.
		if !errors.Is(err, ErrNoSnapshot) {
			c.logger.Debug("snapshot recovery failed", zap.Error(err))
		}
		return false
	}
	c.deliver(snap)
	return snap.Status.Terminal()
}

// FetchSnapshot fetches the current progress document over HTTP.
func (c *Client) FetchSnapshot(ctx context.Context) (Snapshot, error) {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, c.snapURL, nil)
	if err != nil {
		return Snapshot{}, err
	}
	if c.opts.Token != "" {
		req.Header.Set("Authorization", "Bearer "+c.opts.Token)
	}

	resp, err := c.http.Do(req)
	if err != nil {
		return Snapshot{}, fmt.Errorf("fetching snapshot: %w", err)
	}
	defer resp.Body.Close()

	switch resp.StatusCode {
	case http.StatusOK:
	case http.StatusNotFound:
		return Snapshot{}, ErrNoSnapshot
	default:
		return Snapshot{}, fmt.Errorf("snapshot endpoint returned status %d", resp.StatusCode)
	}

	var snap Snapshot
	if err := json.NewDecoder(resp.Body).Decode(&snap); err != nil {
		return Snapshot{}, fmt.Errorf("decoding snapshot: %w", err)
	}
	return snap, nil
}

func (c *Client) deliver(snap Snapshot) {
	if c.opts.OnSnapshot != nil {
		c.opts.OnSnapshot(snap)
	}
}
