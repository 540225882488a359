package rpc_test

import (
	"context"
	"testing"
	"time"

	assert "github.com/stretchr/testify/require"

	"github.com/damianoneill/rpcnet/rpc"
	"github.com/damianoneill/rpcnet/wire"
)

func TestUDPClientEcho(t *testing.T) {
	ctx := context.Background()
	srv, err := rpc.ListenAndServeUDP(ctx, "127.0.0.1:0", echoService)
	assert.NoError(t, err)
	defer srv.Close(ctx)

	client, err := rpc.DialUDP(ctx, srv.Addr().String())
	assert.NoError(t, err)
	defer client.Close()

	req := wire.NewRequestBuf()
	_, _ = req.Write([]byte("ping"))

	f, err := client.Call(ctx, req)
	assert.NoError(t, err)

	payload, err := rpc.Payload(f)
	assert.NoError(t, err)
	assert.Equal(t, "ping", string(payload))
}

func TestUDPClientTimeout(t *testing.T) {
	ctx := context.Background()

	// Bind a UDP socket that never replies, standing in for an unreachable
	// or overloaded peer.
	silent, err := rpc.ListenAndServeUDP(ctx, "127.0.0.1:0", func(req []byte, rsp *wire.RspBuf) error {
		select {}
	})
	assert.NoError(t, err)
	defer func() {
		closeCtx, cancel := context.WithTimeout(context.Background(), time.Second)
		defer cancel()
		_ = silent.Close(closeCtx)
	}()

	client, err := rpc.DialUDP(ctx, silent.Addr().String(), rpc.WithReadTimeout(20*time.Millisecond))
	assert.NoError(t, err)
	defer client.Close()

	req := wire.NewRequestBuf()
	_, err = client.Call(ctx, req)
	assert.ErrorIs(t, err, rpc.ErrTimeout)
}

func TestUDPServerSequentialClients(t *testing.T) {
	ctx := context.Background()
	srv, err := rpc.ListenAndServeUDP(ctx, "127.0.0.1:0", echoService)
	assert.NoError(t, err)
	defer srv.Close(ctx)

	for i := 0; i < 20; i++ {
		client, err := rpc.DialUDP(ctx, srv.Addr().String())
		assert.NoError(t, err)

		req := wire.NewRequestBuf()
		_, _ = req.Write([]byte("hello"))
		f, err := client.Call(ctx, req)
		assert.NoError(t, err)

		payload, err := rpc.Payload(f)
		assert.NoError(t, err)
		assert.Equal(t, "hello", string(payload))

		assert.NoError(t, client.Close())
	}
}
