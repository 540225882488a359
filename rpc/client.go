package rpc

import (
	"bufio"
	"context"
	"net"
	"sync"
	"time"

	"github.com/damianoneill/rpcnet/wire"
)

// Client is a synchronous, single-owner RPC client: exactly one request may
// be outstanding on it at a time. It is safe to hand off between
// goroutines (send-able) but must not be shared for concurrent calls; use
// MultiplexClient when that's needed.
type Client struct {
	conn    net.Conn
	r       *bufio.Reader
	address string
	trace   *Trace

	mu          sync.Mutex
	nextID      uint64
	readTimeout time.Duration
	closed      bool
}

// Dial connects to address over network ("tcp" or "unix") and returns a
// simple sequential Client.
func Dial(ctx context.Context, network, address string, opts ...Option) (*Client, error) {
	cfg := resolveConfig(opts, DefaultConfig)
	trace := cfg.Trace

	var d net.Dialer
	start := time.Now()
	trace.DialStart(network, address)
	conn, err := d.DialContext(ctx, network, address)
	trace.DialDone(network, address, err, time.Since(start))
	if err != nil {
		return nil, &IOError{Err: err}
	}

	return &Client{
		conn:        conn,
		r:           bufio.NewReader(conn),
		address:     address,
		trace:       trace,
		readTimeout: cfg.ReadTimeout,
	}, nil
}

// SetTimeout overrides the per-call read deadline.
func (c *Client) SetTimeout(d time.Duration) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.readTimeout = d
}

// Call allocates the next local request id, seals req, writes it in one
// call, and reads frames until one with the matching id arrives, discarding
// any other id it sees along the way. Under correct single-flight use that
// discard branch never fires; it exists only to survive a rare protocol
// desync. The returned Frame still needs Payload to resolve the response
// tag into a payload or an application-level error.
func (c *Client) Call(ctx context.Context, req *wire.RequestBuf) (wire.Frame, error) {
	c.mu.Lock()
	defer c.mu.Unlock()

	if c.closed {
		return wire.Frame{}, &IOError{Err: net.ErrClosed}
	}

	c.nextID++
	id := c.nextID

	frameBytes, err := req.Finish(id)
	if err != nil {
		return wire.Frame{}, &ClientSerializeError{Message: err.Error()}
	}

	start := time.Now()
	c.trace.CallStart(id, len(frameBytes))

	deadline, hasDeadline := deadlineFor(ctx, c.readTimeout)
	_ = c.conn.SetDeadline(deadline)

	if _, err := c.conn.Write(frameBytes); err != nil {
		c.trace.CallDone(id, err, time.Since(start))
		return wire.Frame{}, &IOError{Err: err}
	}

	for {
		f, err := wire.DecodeFrame(c.r)
		if err != nil {
			mapped := mapTransportError(err, hasDeadline)
			c.trace.CallDone(id, mapped, time.Since(start))
			return wire.Frame{}, mapped
		}
		if f.ID != id {
			continue
		}
		c.trace.CallDone(id, nil, time.Since(start))
		return f, nil
	}
}

// Close closes the underlying connection.
func (c *Client) Close() error {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.closed {
		return nil
	}
	c.closed = true
	err := c.conn.Close()
	c.trace.ConnectionClosed(c.address, err)
	return err
}

// deadlineFor combines ctx's deadline (if any) with a relative timeout,
// returning whichever is sooner. A zero timeout means no relative bound.
func deadlineFor(ctx context.Context, timeout time.Duration) (time.Time, bool) {
	var deadline time.Time
	hasDeadline := false

	if timeout > 0 {
		deadline = time.Now().Add(timeout)
		hasDeadline = true
	}
	if ctxDeadline, ok := ctx.Deadline(); ok {
		if !hasDeadline || ctxDeadline.Before(deadline) {
			deadline = ctxDeadline
			hasDeadline = true
		}
	}
	return deadline, hasDeadline
}

// mapTransportError classifies an error from the connection as a Timeout or
// a generic IOError. io.ErrUnexpectedEOF (and a clean io.EOF landing right
// at a frame boundary) are passed through as IOError too — the simple
// client has nothing else to do with a connection that just closed on it.
func mapTransportError(err error, hasDeadline bool) error {
	if hasDeadline {
		if ne, ok := err.(net.Error); ok && ne.Timeout() {
			return ErrTimeout
		}
	}
	return &IOError{Err: err}
}
