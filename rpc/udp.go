package rpc

import (
	"bytes"
	"context"
	"net"
	"sync"
	"time"

	"github.com/damianoneill/rpcnet/wire"
)

// udpRecvBufferSize sizes the per-call receive buffer. Spec treats 1024
// bytes as a buffer-size hint carried over from an earlier protocol
// revision, not a protocol limit — the 1 MiB frame cap (wire.MaxFrameSize)
// is the only hard ceiling. This buffer comfortably covers jumbo UDP
// datagrams without allocating anywhere near the worst case on every call;
// a response frame larger than this is a decode error, not silently
// truncated, since the frame's length field then exceeds the bytes read.
const udpRecvBufferSize = 65536

// UDPClient issues synchronous, single-outstanding-request calls over UDP:
// bind an ephemeral local socket, connect it to the peer, then send/recv one
// length-prefixed frame per call. Like Client it is not share-safe.
type UDPClient struct {
	conn    *net.UDPConn
	address string
	trace   *Trace

	mu          sync.Mutex
	nextID      uint64
	readTimeout time.Duration
}

// DialUDP binds an ephemeral local UDP socket connected to address.
func DialUDP(ctx context.Context, address string, opts ...Option) (*UDPClient, error) {
	defaults := DefaultConfig
	defaults.ReadTimeout = udpDefaultReadTimeout
	cfg := resolveConfig(opts, defaults)
	trace := cfg.Trace

	raddr, err := net.ResolveUDPAddr("udp", address)
	if err != nil {
		return nil, &IOError{Err: err}
	}

	start := time.Now()
	trace.DialStart("udp", address)
	conn, err := net.DialUDP("udp", nil, raddr)
	trace.DialDone("udp", address, err, time.Since(start))
	if err != nil {
		return nil, &IOError{Err: err}
	}

	return &UDPClient{
		conn:        conn,
		address:     address,
		trace:       trace,
		readTimeout: cfg.ReadTimeout,
	}, nil
}

// SetTimeout overrides the per-call read deadline.
func (c *UDPClient) SetTimeout(d time.Duration) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.readTimeout = d
}

// Call sends one request datagram and loops on receive until a datagram
// tagged with the matching request id arrives, discarding any other
// datagram (there are no ordering guarantees across datagrams, so a stray
// reply to an earlier, already-timed-out call could still be in flight).
func (c *UDPClient) Call(ctx context.Context, req *wire.RequestBuf) (wire.Frame, error) {
	c.mu.Lock()
	defer c.mu.Unlock()

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

	buf := make([]byte, udpRecvBufferSize)
	for {
		n, err := c.conn.Read(buf)
		if err != nil {
			mapped := mapTransportError(err, hasDeadline)
			c.trace.CallDone(id, mapped, time.Since(start))
			return wire.Frame{}, mapped
		}

		f, err := wire.DecodeFrame(bytes.NewReader(buf[:n]))
		if err != nil {
			mapped := &ClientDeserializeError{Message: err.Error()}
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

// Close closes the underlying socket.
func (c *UDPClient) Close() error {
	err := c.conn.Close()
	c.trace.ConnectionClosed(c.address, err)
	return err
}
