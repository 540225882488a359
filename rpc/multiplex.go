package rpc

import (
	"bufio"
	"context"
	"io"
	"net"
	"sync"
	"time"

	"github.com/damianoneill/rpcnet/wire"
)

// MultiplexClient permits many concurrent outstanding calls over one
// connection, correlated by request id. It is safe for concurrent use by
// multiple goroutines.
type MultiplexClient struct {
	conn    net.Conn
	r       *bufio.Reader
	qw      *wire.QueuedWriter
	table   *waiterTable
	ids     idAllocator
	address string
	trace   *Trace

	callTimeout time.Duration

	readerDone chan struct{}
	closeOnce  sync.Once
}

// DialMultiplex connects to address over network ("tcp" or "unix") and
// starts the dedicated reader goroutine (conventionally named
// MultiPlexClientListener) that demultiplexes inbound responses by id.
func DialMultiplex(ctx context.Context, network, address string, opts ...Option) (*MultiplexClient, error) {
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

	var ids idAllocator
	if cfg.IDPool {
		ids = newPooledIDs()
	} else {
		ids = newMonotonicIDs()
	}

	mc := &MultiplexClient{
		conn:        conn,
		r:           bufio.NewReader(conn),
		table:       newWaiterTable(),
		ids:         ids,
		address:     address,
		trace:       trace,
		callTimeout: cfg.CallTimeout,
		readerDone:  make(chan struct{}),
	}
	mc.qw = wire.NewQueuedWriter(conn, func(err error) {
		trace.Error("multiplex-writer", address, err)
	})

	go mc.readLoop() // MultiPlexClientListener

	return mc, nil
}

// readLoop is the dedicated MultiPlexClientListener goroutine: it owns the
// read side exclusively, decoding one frame at a time, looking up the
// waiter registered for that frame's id and delivering it. A frame with no
// registered waiter is dropped. On decode failure the connection is
// considered dead: every still-registered waiter is woken with an error and
// the loop exits.
func (mc *MultiplexClient) readLoop() {
	defer close(mc.readerDone)

	for {
		f, err := wire.DecodeFrame(mc.r)
		if err != nil {
			if err == io.EOF || err == io.ErrUnexpectedEOF {
				mc.trace.ReaderExit(mc.address, nil)
			} else {
				mc.trace.ReaderExit(mc.address, err)
			}
			mc.table.closeAll(&IOError{Err: err})
			return
		}

		if w := mc.table.remove(f.ID); w != nil {
			w.deliver(f)
		}
	}
}

// Call registers a waiter, seals req with a freshly allocated id, publishes
// the frame bytes to the queued writer, and parks until the reader
// delivers a matching response, the call times out, or ctx is done.
func (mc *MultiplexClient) Call(ctx context.Context, req *wire.RequestBuf) (wire.Frame, error) {
	id := mc.ids.alloc()
	w := newWaiter(id)
	mc.table.insert(w)

	frameBytes, err := req.Finish(id)
	if err != nil {
		mc.table.remove(id)
		mc.ids.release(id)
		return wire.Frame{}, &ClientSerializeError{Message: err.Error()}
	}

	start := time.Now()
	mc.trace.CallStart(id, len(frameBytes))

	if err := mc.qw.Write(frameBytes); err != nil {
		mc.table.remove(id)
		mc.ids.release(id)
		mc.trace.CallDone(id, err, time.Since(start))
		return wire.Frame{}, &IOError{Err: err}
	}

	f, err := w.park(ctx, mc.callTimeout)
	if err != nil {
		mc.table.remove(id)
		mc.ids.release(id)
		mc.trace.CallDone(id, err, time.Since(start))
		return wire.Frame{}, err
	}

	mc.ids.release(id)
	mc.trace.CallDone(id, nil, time.Since(start))
	return f, nil
}

// SetTimeout overrides the per-call wait bound for subsequent calls.
func (mc *MultiplexClient) SetTimeout(d time.Duration) {
	mc.callTimeout = d
}

// Close closes the underlying connection, which forces the reader
// goroutine's blocked read to fail, then joins it. Go has no equivalent of
// a destructor running during stack unwind, so unlike the reference
// implementation's drop-during-panic guard, Close always joins.
func (mc *MultiplexClient) Close() error {
	var err error
	mc.closeOnce.Do(func() {
		err = mc.conn.Close()
		mc.trace.ConnectionClosed(mc.address, err)
		<-mc.readerDone
	})
	return err
}
