// Package rpctest provides an on-board test harness for rpc.Server (stream
// transports only): an ephemeral-port server wrapping a recording Service that
// lets a test assert on exactly which requests it received, without
// standing up a separate fixture process.
package rpctest

import (
	"context"
	"sync"
	"time"

	"github.com/google/uuid"
	assert "github.com/stretchr/testify/require"

	"github.com/damianoneill/rpcnet/rpc"
	"github.com/damianoneill/rpcnet/wire"
)

// Recorded is one request a TestServer's Service observed.
type Recorded struct {
	ID   uint64
	Body []byte
	// Tag uniquely identifies this TestServer instance's run, useful when a
	// test wires the same handler into more than one server and needs to
	// tell their recordings apart after the fact.
	Tag string
}

// Handler is the user-supplied behaviour a TestServer dispatches requests
// to, same shape as rpc.Service, recorded before being invoked.
type Handler func(req []byte, rsp *wire.RspBuf) error

// TestServer wraps an rpc.Server bound to an ephemeral localhost port,
// recording every request it handles for later assertion.
type TestServer struct {
	server *rpc.Server
	tag    string
	tctx   assert.TestingT

	mu       sync.Mutex
	recorded []Recorded
	handler  Handler
}

// NewTestServer starts a TestServer on network ("tcp" or "unix") at address
// (use ":0" for tcp to get an ephemeral port), dispatching every accepted
// request to handler. tctx receives the failures raised when the server
// cannot start and by WaitForCount; pass a testing.T.
func NewTestServer(ctx context.Context, tctx assert.TestingT, network, address string, handler Handler) *TestServer {
	ts := &TestServer{
		tag:     uuid.NewString(),
		tctx:    tctx,
		handler: handler,
	}

	svc := func(req []byte, rsp *wire.RspBuf) error {
		ts.record(req)
		return ts.handler(req, rsp)
	}

	srv, err := rpc.ListenAndServe(ctx, network, address, svc)
	if err != nil {
		tctx.Errorf("failed to start test server: %v", err)
		tctx.FailNow()
		return nil
	}
	ts.server = srv
	return ts
}

func (ts *TestServer) record(req []byte) {
	ts.mu.Lock()
	defer ts.mu.Unlock()
	body := make([]byte, len(req))
	copy(body, req)
	ts.recorded = append(ts.recorded, Recorded{Body: body, Tag: ts.tag})
}

// Addr returns the address the server is actually listening on.
func (ts *TestServer) Addr() string {
	return ts.server.Addr().String()
}

// Requests returns a snapshot of every request recorded so far.
func (ts *TestServer) Requests() []Recorded {
	ts.mu.Lock()
	defer ts.mu.Unlock()
	out := make([]Recorded, len(ts.recorded))
	copy(out, ts.recorded)
	return out
}

// WaitForCount blocks until at least n requests have been recorded or
// timeout elapses, failing the test context in the latter case.
func (ts *TestServer) WaitForCount(n int, timeout time.Duration) []Recorded {
	deadline := time.Now().Add(timeout)
	for {
		if reqs := ts.Requests(); len(reqs) >= n {
			return reqs
		}
		if time.Now().After(deadline) {
			ts.tctx.Errorf("timed out waiting for %d requests, have %d", n, len(ts.Requests()))
			ts.tctx.FailNow()
			return nil
		}
		time.Sleep(time.Millisecond)
	}
}

// Close shuts the server down, bounded by ctx.
func (ts *TestServer) Close(ctx context.Context) error {
	return ts.server.Close(ctx)
}
