package rpc

import (
	"bytes"
	"context"
	"net"
	"sync"
	"time"

	"github.com/damianoneill/rpcnet/wire"
)

// UDPServer binds a single UDP socket and dispatches each inbound datagram
// to svc on its own goroutine. Unlike the stream Server, there is no
// per-connection state: every client shares the one socket, so writes are
// serialized with a mutex rather than a QueuedWriter (there is nothing to
// batch — each response is exactly one datagram to one address).
type UDPServer struct {
	conn  *net.UDPConn
	svc   Service
	trace *Trace

	writeMu sync.Mutex
	wg      sync.WaitGroup

	closeOnce sync.Once
	done      chan struct{}
}

// ListenAndServeUDP binds address and starts the receive loop.
func ListenAndServeUDP(ctx context.Context, address string, svc Service, opts ...Option) (*UDPServer, error) {
	cfg := resolveConfig(opts, DefaultConfig)

	laddr, err := net.ResolveUDPAddr("udp", address)
	if err != nil {
		return nil, &IOError{Err: err}
	}

	conn, err := net.ListenUDP("udp", laddr)
	if err != nil {
		return nil, &IOError{Err: err}
	}

	s := &UDPServer{
		conn:  conn,
		svc:   svc,
		trace: cfg.Trace,
		done:  make(chan struct{}),
	}

	s.wg.Add(1)
	go s.recvLoop()

	return s, nil
}

// Addr returns the bound local address.
func (s *UDPServer) Addr() net.Addr {
	return s.conn.LocalAddr()
}

func (s *UDPServer) recvLoop() {
	defer s.wg.Done()

	buf := make([]byte, udpRecvBufferSize)
	for {
		n, raddr, err := s.conn.ReadFromUDP(buf)
		if err != nil {
			select {
			case <-s.done:
				// Expected: Close() tore down the socket.
			default:
				s.trace.Error("udp-read", s.Addr().String(), err)
			}
			return
		}

		datagram := make([]byte, n)
		copy(datagram, buf[:n])

		s.wg.Add(1)
		go s.handleDatagram(datagram, raddr)
	}
}

func (s *UDPServer) handleDatagram(datagram []byte, raddr *net.UDPAddr) {
	defer s.wg.Done()

	f, err := wire.DecodeFrame(bytes.NewReader(datagram))
	if err != nil {
		s.trace.Error("udp-decode", raddr.String(), err)
		return
	}

	s.trace.RequestReceived(f.ID, len(f.Body))

	start := time.Now()
	out, tag, sealErr := sealResponse(s.svc, f.ID, f.Body, func(r interface{}) {
		s.trace.Panic(f.ID, r)
	})
	if sealErr != nil {
		s.trace.Error("udp-seal-response", raddr.String(), sealErr)
		return
	}

	s.writeMu.Lock()
	_, werr := s.conn.WriteToUDP(out, raddr)
	s.writeMu.Unlock()
	if werr != nil {
		s.trace.Error("udp-write-response", raddr.String(), werr)
		return
	}
	s.trace.RequestHandled(f.ID, tag.String(), nil, time.Since(start))
}

// Close closes the socket and waits for in-flight datagram handlers to
// finish, bounded by ctx.
func (s *UDPServer) Close(ctx context.Context) error {
	var err error
	s.closeOnce.Do(func() {
		close(s.done)
		err = s.conn.Close()
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
