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

// Server accepts connections on a stream listener and dispatches each
// inbound request onto its own goroutine, writing replies back over the
// connection's queued writer. Construct one with ListenAndServe.
type Server struct {
	listener net.Listener
	svc      Service
	trace    *Trace
	address  string

	wg        sync.WaitGroup
	closeOnce sync.Once
}

// ListenAndServe binds a listener on network ("tcp" or "unix") at address
// and starts the accept loop, spawning one goroutine per accepted
// connection and one further goroutine per request within it.
func ListenAndServe(ctx context.Context, network, address string, svc Service, opts ...Option) (*Server, error) {
	cfg := resolveConfig(opts, DefaultConfig)

	var lc net.ListenConfig
	ln, err := lc.Listen(ctx, network, address)
	if err != nil {
		return nil, &IOError{Err: err}
	}

	s := &Server{
		listener: ln,
		svc:      svc,
		trace:    cfg.Trace,
		address:  ln.Addr().String(),
	}

	s.wg.Add(1)
	go s.acceptLoop()

	return s, nil
}

// Addr returns the listener's bound address, useful when address was
// specified with an ephemeral port (":0").
func (s *Server) Addr() net.Addr {
	return s.listener.Addr()
}

func (s *Server) acceptLoop() {
	defer s.wg.Done()

	for {
		conn, err := s.listener.Accept()
		if err != nil {
			// The only path that closes the listener is Close(), so a
			// non-nil Accept error here means we're shutting down.
			s.trace.Accepted(s.address, err)
			return
		}
		s.trace.Accepted(conn.RemoteAddr().String(), nil)

		s.wg.Add(1)
		go s.handleConnection(conn)
	}
}

// handleConnection keeps read ownership single-threaded for the lifetime of
// the connection: it is the only goroutine that calls DecodeFrame on it.
// Each decoded request is handed to its own goroutine, which runs the
// service and pushes the sealed response to the connection's QueuedWriter —
// so responses never interleave even though requests complete out of order.
func (s *Server) handleConnection(conn net.Conn) {
	defer s.wg.Done()

	remote := conn.RemoteAddr().String()
	r := bufio.NewReader(conn)
	qw := wire.NewQueuedWriter(conn, func(err error) {
		s.trace.Error("server-writer", remote, err)
	})

	var reqWG sync.WaitGroup
	for {
		f, err := wire.DecodeFrame(r)
		if err != nil {
			if err == io.EOF || err == io.ErrUnexpectedEOF {
				s.trace.ConnectionClosed(remote, nil)
			} else {
				s.trace.Error("decode-request", remote, err)
			}
			break
		}

		s.trace.RequestReceived(f.ID, len(f.Body))

		reqWG.Add(1)
		go s.handleRequest(&reqWG, qw, remote, f)
	}

	// Wait for in-flight handlers so their responses are written before the
	// connection is torn down.
	reqWG.Wait()
	_ = conn.Close()
}

func (s *Server) handleRequest(wg *sync.WaitGroup, qw *wire.QueuedWriter, remote string, f wire.Frame) {
	defer wg.Done()

	start := time.Now()
	out, tag, sealErr := sealResponse(s.svc, f.ID, f.Body, func(r interface{}) {
		s.trace.Panic(f.ID, r)
	})
	if sealErr != nil {
		// The sealed response itself exceeds the frame limit. There is no
		// wire-level way to report this to the caller (the frame that would
		// carry the error doesn't fit either); the connection stays up for
		// other requests and the caller observes this request as a timeout.
		s.trace.Error("seal-response", remote, sealErr)
		return
	}

	if werr := qw.Write(out); werr != nil {
		s.trace.Error("write-response", remote, werr)
		return
	}
	s.trace.RequestHandled(f.ID, tag.String(), nil, time.Since(start))
}

// Close cancels the accept loop by closing the listener and waits for it
// and every in-flight connection/request goroutine to finish, bounded by
// ctx.
func (s *Server) Close(ctx context.Context) error {
	var err error
	s.closeOnce.Do(func() {
		err = s.listener.Close()
	})

	waited := make(chan struct{})
	go func() {
		s.wg.Wait()
		close(waited)
	}()

	select {
	case <-waited:
		return err
	case <-ctx.Done():
		return ctx.Err()
	}
}
