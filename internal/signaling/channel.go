// Package signaling owns the single logical control-channel connection to
// the Tavern server. Outbound payloads are buffered FIFO while disconnected
// and flushed in order on the next successful open; reconnection is lazy,
// driven by the next Send or Connect rather than a retry loop.
package signaling

import (
	"context"
	"log/slog"
	"sync"
	"time"
)

const dialTimeout = 10 * time.Second

// Conn is the minimal connection surface the channel needs. The production
// implementation wraps a gorilla websocket; tests substitute an in-memory one.
type Conn interface {
	ReadMessage() ([]byte, error)
	WriteMessage(data []byte) error
	Close() error
}

// DialFunc opens a connection to an endpoint.
type DialFunc func(ctx context.Context, endpoint string) (Conn, error)

// Channel is the persistent bidirectional control channel. It lives for the
// application lifetime; the connection underneath comes and goes.
type Channel struct {
	log       *slog.Logger
	dial      DialFunc
	onConnect func()
	incoming  chan []byte
	done      chan struct{}

	mu       sync.Mutex
	conn     Conn
	endpoint string
	dialing  bool
	queue    [][]byte
	gen      uint64
	closed   bool
}

// New creates a channel using the given dialer. Pass Dial for production use.
func New(log *slog.Logger, dial DialFunc) *Channel {
	return &Channel{
		log:      log,
		dial:     dial,
		incoming: make(chan []byte, 32),
		done:     make(chan struct{}),
	}
}

// OnConnect sets the hook invoked after every successful open, once queued
// payloads have been flushed. The upper layer uses it to replay listing
// requests so state resyncs after any reconnect. Must be set before Connect.
func (c *Channel) OnConnect(fn func()) { c.onConnect = fn }

// Incoming returns the ordered stream of raw inbound payloads.
func (c *Channel) Incoming() <-chan []byte { return c.incoming }

// Connect points the channel at an endpoint. Connecting to the endpoint the
// channel is already connected to is a no-op; a different endpoint closes the
// old connection first. The dial itself happens in the background.
func (c *Channel) Connect(endpoint string) {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.closed {
		return
	}
	if c.conn != nil {
		if c.endpoint == endpoint {
			return
		}
		c.log.Info("endpoint change, swapping connection", "from", c.endpoint, "to", endpoint)
		c.teardownLocked()
	}
	c.endpoint = endpoint
	c.ensureDialLocked()
}

// Send transmits immediately when connected, otherwise appends the payload to
// the outbound queue and kicks off a connection attempt if none is in flight.
func (c *Channel) Send(payload []byte) {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.closed {
		return
	}
	if c.conn != nil {
		err := c.conn.WriteMessage(payload)
		if err == nil {
			return
		}
		c.log.Warn("write failed, buffering", "err", err)
		c.teardownLocked()
	}
	c.queue = append(c.queue, payload)
	c.log.Debug("buffered payload", "pending", len(c.queue))
	c.ensureDialLocked()
}

// Connected reports whether the underlying connection is currently open.
func (c *Channel) Connected() bool {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.conn != nil
}

// Pending returns the number of queued outbound payloads.
func (c *Channel) Pending() int {
	c.mu.Lock()
	defer c.mu.Unlock()
	return len(c.queue)
}

// Close shuts the channel down for good.
func (c *Channel) Close() {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.closed {
		return
	}
	c.closed = true
	c.teardownLocked()
	close(c.done)
}

// ensureDialLocked starts a background dial unless one is already in flight,
// a connection is open, or no endpoint is known yet.
func (c *Channel) ensureDialLocked() {
	if c.closed || c.dialing || c.conn != nil || c.endpoint == "" {
		return
	}
	c.dialing = true
	go c.runDial(c.endpoint)
}

func (c *Channel) runDial(endpoint string) {
	ctx, cancel := context.WithTimeout(context.Background(), dialTimeout)
	conn, err := c.dial(ctx, endpoint)
	cancel()

	c.mu.Lock()
	c.dialing = false
	if c.closed || endpoint != c.endpoint {
		// The endpoint moved underneath us; drop this connection and chase
		// the new one (a no-op when the channel is closed).
		c.ensureDialLocked()
		c.mu.Unlock()
		if err == nil {
			conn.Close()
		}
		return
	}
	if err != nil {
		c.log.Warn("dial failed", "endpoint", endpoint, "err", err)
		c.mu.Unlock()
		return
	}

	c.conn = conn
	c.gen++
	gen := c.gen
	if n := len(c.queue); n > 0 {
		c.log.Info("connected, flushing", "pending", n)
	}
	for len(c.queue) > 0 {
		head := c.queue[0]
		if err := conn.WriteMessage(head); err != nil {
			c.log.Warn("flush failed", "err", err)
			c.teardownLocked()
			c.mu.Unlock()
			return
		}
		c.queue = c.queue[1:]
	}
	c.mu.Unlock()

	go c.readLoop(conn, gen)
	if c.onConnect != nil {
		c.onConnect()
	}
}

func (c *Channel) readLoop(conn Conn, gen uint64) {
	for {
		data, err := conn.ReadMessage()
		if err != nil {
			c.mu.Lock()
			// Only tear down if this connection is still the current one.
			if c.gen == gen && c.conn != nil {
				c.log.Debug("read failed, channel down", "err", err)
				c.teardownLocked()
			}
			c.mu.Unlock()
			return
		}
		select {
		case c.incoming <- data:
		case <-c.done:
			return
		}
	}
}

func (c *Channel) teardownLocked() {
	if c.conn != nil {
		c.conn.Close()
		c.conn = nil
		c.gen++
	}
}
