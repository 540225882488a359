package rpc_test

import (
	"context"
	"testing"

	"github.com/golang/mock/gomock"
	assert "github.com/stretchr/testify/require"

	"github.com/damianoneill/rpcnet/rpc"
	"github.com/damianoneill/rpcnet/rpc/mocks"
	"github.com/damianoneill/rpcnet/wire"
)

func TestServerDispatchesToMockHandler(t *testing.T) {
	mockCtrl := gomock.NewController(t)
	defer mockCtrl.Finish()
	mockHandler := mocks.NewMockHandler(mockCtrl)

	mockHandler.EXPECT().Handle(gomock.Any(), gomock.Any()).DoAndReturn(
		func(req []byte, rsp *wire.RspBuf) error {
			_, err := rsp.Write([]byte("echo:" + string(req)))
			return err
		})

	ctx := context.Background()
	srv, err := rpc.ListenAndServe(ctx, "tcp", "127.0.0.1:0", rpc.AsService(mockHandler))
	assert.NoError(t, err)
	defer srv.Close(ctx)

	client, err := rpc.Dial(ctx, "tcp", srv.Addr().String())
	assert.NoError(t, err)
	defer client.Close()

	req := wire.NewRequestBuf()
	_, _ = req.Write([]byte("hi"))

	frame, err := client.Call(ctx, req)
	assert.NoError(t, err)

	payload, err := rpc.Payload(frame)
	assert.NoError(t, err)
	assert.Equal(t, "echo:hi", string(payload))
}
