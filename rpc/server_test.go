package rpc_test

import (
	"context"
	"testing"
	"time"

	assert "github.com/stretchr/testify/require"

	"github.com/damianoneill/rpcnet/rpc"
	"github.com/damianoneill/rpcnet/rpctest"
	"github.com/damianoneill/rpcnet/wire"
)

func TestServerOverUnixSocket(t *testing.T) {
	ctx := context.Background()
	sock := t.TempDir() + "/rpcnet.sock"

	srv, err := rpc.ListenAndServe(ctx, "unix", sock, echoService)
	assert.NoError(t, err)
	defer srv.Close(ctx)

	client, err := rpc.Dial(ctx, "unix", sock)
	assert.NoError(t, err)
	defer client.Close()

	assert.Equal(t, "hi", callEcho(t, client, "hi"))
}

func TestServerCloseWaitsForInFlightRequests(t *testing.T) {
	ctx := context.Background()

	release := make(chan struct{})
	started := make(chan struct{}, 1)
	slow := func(req []byte, rsp *wire.RspBuf) error {
		started <- struct{}{}
		<-release
		_, err := rsp.Write(req)
		return err
	}

	srv, err := rpc.ListenAndServe(ctx, "tcp", "127.0.0.1:0", slow)
	assert.NoError(t, err)

	client, err := rpc.Dial(ctx, "tcp", srv.Addr().String())
	assert.NoError(t, err)
	defer client.Close()

	req := wire.NewRequestBuf()
	_, _ = req.Write([]byte("wait-for-me"))

	callDone := make(chan struct{})
	go func() {
		defer close(callDone)
		f, err := client.Call(ctx, req)
		assert.NoError(t, err)
		payload, err := rpc.Payload(f)
		assert.NoError(t, err)
		assert.Equal(t, "wait-for-me", string(payload))
	}()

	<-started

	closeDone := make(chan struct{})
	go func() {
		defer close(closeDone)
		closeCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()
		assert.NoError(t, srv.Close(closeCtx))
	}()

	// Close should not complete while the handler is still blocked.
	select {
	case <-closeDone:
		t.Fatal("server closed before in-flight handler finished")
	case <-time.After(50 * time.Millisecond):
	}

	close(release)
	<-callDone
	<-closeDone
}

func TestTestServerRecordsRequests(t *testing.T) {
	ctx := context.Background()
	ts := rpctest.NewTestServer(ctx, t, "tcp", "127.0.0.1:0", func(req []byte, rsp *wire.RspBuf) error {
		_, err := rsp.Write(req)
		return err
	})
	defer ts.Close(ctx)

	client, err := rpc.Dial(ctx, "tcp", ts.Addr())
	assert.NoError(t, err)
	defer client.Close()

	assert.Equal(t, "one", callEcho(t, client, "one"))
	assert.Equal(t, "two", callEcho(t, client, "two"))

	reqs := ts.WaitForCount(2, time.Second)
	assert.Len(t, reqs, 2)
	assert.Equal(t, "one", string(reqs[0].Body))
	assert.Equal(t, "two", string(reqs[1].Body))
}
