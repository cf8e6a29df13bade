// Package sync maintains the long-lived event connection that fans academy
// assignment changes out to this device.
//
// One channel serves one academy room. The credential is injected at
// construction; the channel never reads ambient storage. Without a
// credential Connect is an explicit no-op, not an error.
package sync

import (
	"context"
	"encoding/json"
	"errors"
	stdsync "sync"
	"time"

	"github.com/gorilla/websocket"
	"github.com/peakfit/relay/internal/domain/model"
	"github.com/peakfit/relay/pkg/logger"
	"github.com/peakfit/relay/pkg/metrics"
)

// State of the channel.
type State int

// Channel states. Failed is terminal: the retry ceiling was exhausted and
// the channel will not reconnect on its own.
const (
	StateDisconnected State = iota
	StateConnecting
	StateJoined
	StateFailed
)

func (s State) String() string {
	switch s {
	case StateDisconnected:
		return "disconnected"
	case StateConnecting:
		return "connecting"
	case StateJoined:
		return "joined"
	case StateFailed:
		return "failed"
	}
	return "unknown"
}

// Default connection behavior.
const (
	defaultDialTimeout = 10 * time.Second
	defaultRetryDelay  = 1 * time.Second
	defaultMaxRetries  = 5
	joinAckTimeout     = 10 * time.Second
)

var errJoinRejected = errors.New("room join rejected")

// frame is the wire envelope for both directions.
type frame struct {
	Event string          `json:"event"`
	Data  json.RawMessage `json:"data,omitempty"`
}

type joinedPayload struct {
	AcademyID int64 `json:"academyId"`
}

// EventHandler receives assignment-change events verbatim. The channel
// performs no ordering or deduplication; idempotent application is the
// consumer's responsibility.
type EventHandler func(ev model.SyncEvent)

// Channel is the academy-room connection.
type Channel struct {
	url        string
	credential string
	handler    EventHandler

	dialTimeout time.Duration
	retryDelay  time.Duration
	maxRetries  int
	dialer      *websocket.Dialer

	mu      stdsync.Mutex
	conn    *websocket.Conn
	state   State
	cancel  context.CancelFunc
	done    chan struct{}
	running bool

	logger logger.Logger
}

// NewChannel creates a channel for the given endpoint and credential.
func NewChannel(url, credential string, handler EventHandler, opts ...Option) *Channel {
	c := &Channel{
		url:         url,
		credential:  credential,
		handler:     handler,
		dialTimeout: defaultDialTimeout,
		retryDelay:  defaultRetryDelay,
		maxRetries:  defaultMaxRetries,
		dialer:      websocket.DefaultDialer,
		state:       StateDisconnected,
		logger:      logger.Get().Named("sync"),
	}
	for _, opt := range opts {
		opt(c)
	}
	return c
}

// State returns the current channel state.
func (c *Channel) State() State {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.state
}

// Connect starts the connection loop. Calling it while connected is a
// no-op; calling it after a failed or disconnected run tears down any
// stale connection and starts over with a fresh retry budget.
func (c *Channel) Connect(ctx context.Context) error {
	if c.credential == "" {
		c.logger.Warn(ctx, "no credential; skipping sync connection")
		return nil
	}

	c.mu.Lock()
	if c.running {
		c.mu.Unlock()
		return nil
	}
	if c.conn != nil {
		// Stale connection from a previous run.
		_ = c.conn.Close()
		c.conn = nil
	}
	runCtx, cancel := context.WithCancel(ctx)
	c.cancel = cancel
	c.done = make(chan struct{})
	c.running = true
	c.setStateLocked(StateConnecting)
	done := c.done
	c.mu.Unlock()

	go c.run(runCtx, done)
	return nil
}

// Disconnect tears the connection down. Idempotent; safe to call from
// unmount paths so sockets never leak across navigation.
func (c *Channel) Disconnect() {
	c.mu.Lock()
	if !c.running {
		if c.conn != nil {
			_ = c.conn.Close()
			c.conn = nil
		}
		c.setStateLocked(StateDisconnected)
		c.mu.Unlock()
		return
	}
	cancel := c.cancel
	done := c.done
	c.mu.Unlock()

	cancel()
	<-done

	c.mu.Lock()
	c.setStateLocked(StateDisconnected)
	c.mu.Unlock()
}

// run owns the connection: dial, join, read, reconnect up to the ceiling.
func (c *Channel) run(ctx context.Context, done chan struct{}) {
	defer close(done)
	defer func() {
		c.mu.Lock()
		if c.conn != nil {
			_ = c.conn.Close()
			c.conn = nil
		}
		c.running = false
		c.mu.Unlock()
	}()

	attempts := 0
	for {
		if ctx.Err() != nil {
			return
		}

		joined, err := c.connectOnce(ctx)
		if ctx.Err() != nil {
			return
		}
		if joined {
			// A completed join ends the outage; the ceiling counts
			// consecutive failures only.
			attempts = 0
		}
		if err != nil {
			metrics.RecordSyncError()
			attempts++
			metrics.RecordSyncReconnectAttempt()
			if attempts >= c.maxRetries {
				// Ceiling reached: give up silently at the transport
				// layer; consumers fall back to manual refresh.
				c.logger.Warn(ctx, "reconnect ceiling reached; giving up",
					logger.Int("attempts", attempts))
				c.mu.Lock()
				c.setStateLocked(StateFailed)
				c.mu.Unlock()
				return
			}
			c.logger.Warn(ctx, "connection lost; retrying",
				logger.Int("attempt", attempts),
				logger.Error(err))
			select {
			case <-ctx.Done():
				return
			case <-time.After(c.retryDelay):
			}
			continue
		}
		// Clean read loop exit only happens on teardown.
		return
	}
}

// connectOnce dials, joins the academy room, and reads until the
// connection drops or ctx is canceled. joined reports whether the room
// ack was received on this connection.
func (c *Channel) connectOnce(ctx context.Context) (joined bool, err error) {
	dialCtx, cancel := context.WithTimeout(ctx, c.dialTimeout)
	conn, _, err := c.dialer.DialContext(dialCtx, c.url, nil)
	cancel()
	if err != nil {
		return false, err
	}

	c.mu.Lock()
	c.conn = conn
	c.setStateLocked(StateConnecting)
	c.mu.Unlock()

	// Close the socket when ctx ends so blocked reads unblock.
	stop := make(chan struct{})
	defer close(stop)
	go func() {
		select {
		case <-ctx.Done():
			_ = conn.Close()
		case <-stop:
		}
	}()

	join := frame{Event: "join-academy"}
	join.Data, _ = json.Marshal(c.credential)
	if err := conn.WriteJSON(join); err != nil {
		return false, err
	}

	if err := c.awaitJoined(conn); err != nil {
		return false, err
	}

	c.mu.Lock()
	c.setStateLocked(StateJoined)
	c.mu.Unlock()

	return true, c.readLoop(ctx, conn)
}

// awaitJoined reads until the server acknowledges room membership.
func (c *Channel) awaitJoined(conn *websocket.Conn) error {
	_ = conn.SetReadDeadline(time.Now().Add(joinAckTimeout))
	defer conn.SetReadDeadline(time.Time{}) //nolint:errcheck // reset only

	for {
		var f frame
		if err := conn.ReadJSON(&f); err != nil {
			return err
		}
		switch f.Event {
		case "joined":
			var p joinedPayload
			if err := json.Unmarshal(f.Data, &p); err != nil {
				return err
			}
			c.logger.Info(context.Background(), "joined academy room",
				logger.Int64("academy_id", p.AcademyID))
			return nil
		case "error":
			return errJoinRejected
		default:
			// Events before the ack are dropped; the projection refetches
			// on load anyway.
		}
	}
}

// readLoop forwards assignment events to the handler until the connection
// drops.
func (c *Channel) readLoop(ctx context.Context, conn *websocket.Conn) error {
	for {
		var f frame
		if err := conn.ReadJSON(&f); err != nil {
			if ctx.Err() != nil {
				return nil
			}
			return err
		}
		switch f.Event {
		case "assignments-updated":
			var ev model.SyncEvent
			if err := json.Unmarshal(f.Data, &ev); err != nil {
				metrics.RecordSyncError()
				c.logger.Warn(ctx, "malformed assignment event", logger.Error(err))
				continue
			}
			metrics.RecordSyncEvent()
			if c.handler != nil {
				c.handler(ev)
			}
		case "error":
			metrics.RecordSyncError()
			c.logger.Warn(ctx, "server error event")
		default:
			// Unknown events are ignored for forward compatibility.
		}
	}
}

// setStateLocked updates state and its gauge. Caller holds c.mu.
func (c *Channel) setStateLocked(s State) {
	c.state = s
	metrics.UpdateChannelState(int(s))
}
