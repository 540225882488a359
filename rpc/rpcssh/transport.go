// Package rpcssh tunnels the rpcnet wire protocol over an SSH subsystem
// channel instead of a raw TCP/Unix socket, for deployments where the peer
// is only reachable through an SSH bastion. The subsystem's stdin/stdout
// pipes carry exactly the same length-prefixed frames a stream Client or
// MultiplexClient would exchange over a socket; only the dial and transport
// plumbing differ.
package rpcssh

import (
	"bufio"
	"context"
	"io"
	"net"
	"sync"
	"time"

	"golang.org/x/crypto/ssh"

	"github.com/damianoneill/rpcnet/rpc"
	"github.com/damianoneill/rpcnet/wire"
)

// ClientFactory supplies and reclaims *ssh.Client connections, letting a
// caller share one underlying SSH connection across several subsystem
// channels instead of dialing a fresh TCP connection per RPC client.
type ClientFactory interface {
	Dial(ctx context.Context) (*ssh.Client, error)
	// Close releases a client returned by an earlier Dial call, if
	// appropriate (a pooling factory may decline to actually close it).
	Close(*ssh.Client) error
}

// StaticFactory dials a single *ssh.Client per call using config, closing it
// unconditionally. It is the simple, non-pooling ClientFactory most callers
// want.
type StaticFactory struct {
	Address string
	Config  *ssh.ClientConfig
}

// Dial connects to f.Address with f.Config.
func (f *StaticFactory) Dial(ctx context.Context) (*ssh.Client, error) {
	var d net.Dialer
	conn, err := d.DialContext(ctx, "tcp", f.Address)
	if err != nil {
		return nil, err
	}
	c, chans, reqs, err := ssh.NewClientConn(conn, f.Address, f.Config)
	if err != nil {
		return nil, err
	}
	return ssh.NewClient(c, chans, reqs), nil
}

// Close closes client unconditionally.
func (f *StaticFactory) Close(client *ssh.Client) error {
	if client == nil {
		return nil
	}
	return client.Close()
}

// channelTransport adapts an ssh.Session's stdin/stdout pipes to
// io.ReadWriteCloser, closing the session (and the owning client, via the
// factory) when done.
type channelTransport struct {
	session *ssh.Session
	client  *ssh.Client
	factory ClientFactory
	reader  io.Reader
	writer  io.WriteCloser
}

func (t *channelTransport) Read(p []byte) (int, error)  { return t.reader.Read(p) }
func (t *channelTransport) Write(p []byte) (int, error) { return t.writer.Write(p) }

func (t *channelTransport) Close() error {
	writeErr := t.writer.Close()
	sessErr := t.session.Close()
	clientErr := t.factory.Close(t.client)

	switch {
	case clientErr != nil:
		return clientErr
	case writeErr != nil:
		return writeErr
	default:
		return sessErr
	}
}

// dialSubsystem connects factory, opens a session on it, and requests
// subsystem, returning the stdin/stdout pipes as an io.ReadWriteCloser.
func dialSubsystem(ctx context.Context, factory ClientFactory, subsystem string) (io.ReadWriteCloser, error) {
	client, err := factory.Dial(ctx)
	if err != nil {
		return nil, err
	}

	session, err := client.NewSession()
	if err != nil {
		_ = factory.Close(client)
		return nil, err
	}

	if err := session.RequestSubsystem(subsystem); err != nil {
		_ = session.Close()
		_ = factory.Close(client)
		return nil, err
	}

	stdout, err := session.StdoutPipe()
	if err != nil {
		_ = session.Close()
		_ = factory.Close(client)
		return nil, err
	}

	stdin, err := session.StdinPipe()
	if err != nil {
		_ = session.Close()
		_ = factory.Close(client)
		return nil, err
	}

	return &channelTransport{
		session: session,
		client:  client,
		factory: factory,
		reader:  stdout,
		writer:  stdin,
	}, nil
}

// Client is a MultiplexClient-equivalent that runs over an SSH subsystem
// channel rather than a socket. An ssh.Session's pipes don't support
// SetDeadline, so unlike rpc.Client, waiting is bounded purely by ctx and
// the per-call timeout passed to Dial, never by a connection-level read
// deadline.
type Client struct {
	transport io.ReadWriteCloser
	qw        *wire.QueuedWriter
	table     *sshWaiterTable

	callTimeout time.Duration

	nextID     uint64
	idMu       sync.Mutex
	readerDone chan struct{}
	closeOnce  sync.Once
}

// Dial opens an SSH connection via factory, requests subsystem, and starts
// the background reader that demultiplexes inbound frames by id.
func Dial(ctx context.Context, factory ClientFactory, subsystem string, callTimeout time.Duration) (*Client, error) {
	transport, err := dialSubsystem(ctx, factory, subsystem)
	if err != nil {
		return nil, &rpc.IOError{Err: err}
	}

	c := &Client{
		transport:   transport,
		table:       newSSHWaiterTable(),
		callTimeout: callTimeout,
		nextID:      0,
		readerDone:  make(chan struct{}),
	}
	c.qw = wire.NewQueuedWriter(transport, func(error) {})

	go c.readLoop()

	return c, nil
}

func (c *Client) readLoop() {
	defer close(c.readerDone)

	r := bufio.NewReader(c.transport)
	for {
		f, err := wire.DecodeFrame(r)
		if err != nil {
			c.table.closeAll(&rpc.IOError{Err: err})
			return
		}
		if w := c.table.remove(f.ID); w != nil {
			w.frame = f
			close(w.done)
		}
	}
}

// Call seals req with a freshly allocated id, writes it, and waits for the
// matching response or ctx/timeout expiry.
func (c *Client) Call(ctx context.Context, req *wire.RequestBuf) (wire.Frame, error) {
	c.idMu.Lock()
	c.nextID++
	id := c.nextID
	c.idMu.Unlock()

	w := &sshWaiter{id: id, done: make(chan struct{})}
	c.table.insert(w)

	frameBytes, err := req.Finish(id)
	if err != nil {
		c.table.remove(id)
		return wire.Frame{}, &rpc.ClientSerializeError{Message: err.Error()}
	}

	if err := c.qw.Write(frameBytes); err != nil {
		c.table.remove(id)
		return wire.Frame{}, &rpc.IOError{Err: err}
	}

	if c.callTimeout > 0 {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, c.callTimeout)
		defer cancel()
	}

	select {
	case <-w.done:
		if w.err != nil {
			return wire.Frame{}, w.err
		}
		return w.frame, nil
	case <-ctx.Done():
		c.table.remove(id)
		if ctx.Err() == context.DeadlineExceeded {
			return wire.Frame{}, rpc.ErrTimeout
		}
		return wire.Frame{}, ctx.Err()
	}
}

// Close tears down the subsystem channel and the SSH client beneath it, then
// joins the reader goroutine.
func (c *Client) Close() error {
	var err error
	c.closeOnce.Do(func() {
		err = c.transport.Close()
		<-c.readerDone
	})
	return err
}

type sshWaiter struct {
	id    uint64
	done  chan struct{}
	frame wire.Frame
	err   error
}

type sshWaiterTable struct {
	mu sync.Mutex
	m  map[uint64]*sshWaiter
}

func newSSHWaiterTable() *sshWaiterTable { return &sshWaiterTable{m: make(map[uint64]*sshWaiter)} }

func (t *sshWaiterTable) insert(w *sshWaiter) {
	t.mu.Lock()
	defer t.mu.Unlock()
	t.m[w.id] = w
}

func (t *sshWaiterTable) remove(id uint64) *sshWaiter {
	t.mu.Lock()
	defer t.mu.Unlock()
	w := t.m[id]
	delete(t.m, id)
	return w
}

func (t *sshWaiterTable) closeAll(err error) {
	t.mu.Lock()
	waiters := make([]*sshWaiter, 0, len(t.m))
	for id, w := range t.m {
		waiters = append(waiters, w)
		delete(t.m, id)
	}
	t.mu.Unlock()

	for _, w := range waiters {
		w.err = err
		close(w.done)
	}
}
