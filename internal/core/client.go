package core

import (
	"context"
	"sync"
	"sync/atomic"
	"time"

	"github.com/duochat/duochat-server/internal/proto"
)

// Principal is the authenticated identity behind a connection. Immutable
// for the lifetime of the session.
type Principal struct {
	ID       string `json:"id"`
	Email    string `json:"email"`
	Username string `json:"username"`
}

// Client is one live connection as seen by the core. The transport drains
// Events into the socket; everything the engine wants delivered goes
// through Send.
type Client struct {
	Principal

	Events chan proto.Outbound

	hangup     chan int
	hangupOnce sync.Once
	done       chan struct{}
	doneOnce   sync.Once
	lastPing   atomic.Int64
}

// NewClient constructs a client for an authenticated principal.
func NewClient(p Principal) *Client {
	c := &Client{
		Principal: p,
		Events:    make(chan proto.Outbound, 32),
		hangup:    make(chan int, 1),
		done:      make(chan struct{}),
	}
	c.MarkPing()
	return c
}

// Send enqueues an envelope for delivery. Returns false if the client's
// queue is full; slow consumers are dropped rather than blocking handlers.
func (c *Client) Send(out proto.Outbound) bool {
	select {
	case c.Events <- out:
		return true
	default:
		return false
	}
}

// Deliver enqueues an envelope, blocking until there is room. Used for
// ordered bulk delivery such as history replay, where dropping frames would
// break the replay contract. Returns false once the connection is gone.
func (c *Client) Deliver(ctx context.Context, out proto.Outbound) bool {
	select {
	case c.Events <- out:
		return true
	case <-c.done:
		return false
	case <-ctx.Done():
		return false
	}
}

// Shutdown marks the connection as gone, releasing any blocked Deliver
// calls. Called by the owning transport exactly when the socket closes.
func (c *Client) Shutdown() {
	c.doneOnce.Do(func() {
		close(c.done)
	})
}

// Hangup asks the owning transport to close the connection with the given
// close code. Safe to call more than once; only the first code wins.
func (c *Client) Hangup(code int) {
	c.hangupOnce.Do(func() {
		c.hangup <- code
	})
}

// HangupRequests exposes the hangup signal to the owning transport.
func (c *Client) HangupRequests() <-chan int {
	return c.hangup
}

// MarkPing records a successful liveness probe.
func (c *Client) MarkPing() {
	c.lastPing.Store(time.Now().UnixNano())
}

// LastPing reports when the connection last answered a liveness probe.
func (c *Client) LastPing() time.Time {
	return time.Unix(0, c.lastPing.Load())
}
