package rpc_test

import (
	"context"
	"fmt"
	"math/rand"
	"sync"
	"testing"
	"time"

	assert "github.com/stretchr/testify/require"

	"github.com/damianoneill/rpcnet/rpc"
	"github.com/damianoneill/rpcnet/wire"
)

// reorderingService introduces random jitter per request so replies do not
// necessarily complete in the order they were received, exercising the
// multiplex client's id-based correlation rather than assuming FIFO.
func reorderingService(req []byte, rsp *wire.RspBuf) error {
	time.Sleep(time.Duration(rand.Intn(3)) * time.Millisecond)
	_, err := rsp.Write(req)
	return err
}

func TestMultiplexClientReordering(t *testing.T) {
	ctx := context.Background()
	srv, err := rpc.ListenAndServe(ctx, "tcp", "127.0.0.1:0", reorderingService)
	assert.NoError(t, err)
	defer srv.Close(ctx)

	client, err := rpc.DialMultiplex(ctx, "tcp", srv.Addr().String())
	assert.NoError(t, err)
	defer client.Close()

	const n = 100
	var wg sync.WaitGroup
	results := make([]string, n)
	for i := 0; i < n; i++ {
		wg.Add(1)
		go func(i int) {
			defer wg.Done()
			msg := fmt.Sprintf("req-%d", i)
			req := wire.NewRequestBuf()
			_, _ = req.Write([]byte(msg))

			f, err := client.Call(ctx, req)
			if !assert.NoError(t, err) {
				return
			}
			payload, err := rpc.Payload(f)
			if !assert.NoError(t, err) {
				return
			}
			results[i] = string(payload)
		}(i)
	}
	wg.Wait()

	for i, r := range results {
		assert.Equal(t, fmt.Sprintf("req-%d", i), r)
	}
}

func TestMultiplexClientTimeout(t *testing.T) {
	ctx := context.Background()
	blocking := func(req []byte, rsp *wire.RspBuf) error {
		time.Sleep(time.Hour)
		return nil
	}

	srv, err := rpc.ListenAndServe(ctx, "tcp", "127.0.0.1:0", blocking)
	assert.NoError(t, err)
	defer func() {
		// Close waits for the blocked handler, so bound it.
		closeCtx, cancel := context.WithTimeout(context.Background(), time.Second)
		defer cancel()
		_ = srv.Close(closeCtx)
	}()

	client, err := rpc.DialMultiplex(ctx, "tcp", srv.Addr().String(), rpc.WithCallTimeout(50*time.Millisecond))
	assert.NoError(t, err)
	defer client.Close()

	req := wire.NewRequestBuf()
	_, err = client.Call(ctx, req)
	assert.ErrorIs(t, err, rpc.ErrTimeout)
}

func TestMultiplexClientSurvivesServerClose(t *testing.T) {
	ctx := context.Background()
	srv, err := rpc.ListenAndServe(ctx, "tcp", "127.0.0.1:0", echoService)
	assert.NoError(t, err)

	client, err := rpc.DialMultiplex(ctx, "tcp", srv.Addr().String())
	assert.NoError(t, err)
	defer client.Close()

	req := wire.NewRequestBuf()
	_, _ = req.Write([]byte("x"))
	_, err = client.Call(ctx, req)
	assert.NoError(t, err)

	assert.NoError(t, srv.Close(ctx))

	req2 := wire.NewRequestBuf()
	_, err = client.Call(ctx, req2)
	assert.Error(t, err)
}
