package wire

import (
	"bytes"
	"testing"

	assert "github.com/stretchr/testify/require"
)

func TestRequestBufFinishIsIdempotent(t *testing.T) {
	req := NewRequestBuf()
	_, _ = req.Write([]byte("payload"))

	first, err := req.Finish(5)
	assert.NoError(t, err)
	second, err := req.Finish(5)
	assert.NoError(t, err)
	assert.True(t, bytes.Equal(first, second))
}

func TestRequestBufEmptyPayload(t *testing.T) {
	req := NewRequestBuf()
	out, err := req.Finish(1)
	assert.NoError(t, err)

	f, err := DecodeFrame(bytes.NewReader(out))
	assert.NoError(t, err)
	assert.Empty(t, f.Body)
}

func TestRequestBufRejectsOversizePayload(t *testing.T) {
	req := NewRequestBuf()
	_, _ = req.Write(make([]byte, MaxFrameSize+1))

	_, err := req.Finish(1)
	assert.ErrorIs(t, err, ErrFrameTooLarge)
}

func TestRspBufBoundarySizes(t *testing.T) {
	sizes := []int{0, 1, MaxFrameSize - rspBufHeaderSize}
	for _, size := range sizes {
		rsp := NewRspBuf()
		payload := bytes.Repeat([]byte{0x05}, size)
		_, err := rsp.Write(payload)
		assert.NoError(t, err)

		out, err := rsp.Finish(3, RspOK, "")
		assert.NoError(t, err)

		f, err := DecodeFrame(bytes.NewReader(out))
		assert.NoError(t, err)

		got, err := f.DecodeResponse()
		assert.NoError(t, err)
		assert.Equal(t, payload, got)
	}
}

func TestRspBufRejectsOversizePayload(t *testing.T) {
	rsp := NewRspBuf()
	_, _ = rsp.Write(make([]byte, MaxFrameSize))

	_, err := rsp.Finish(1, RspOK, "")
	assert.ErrorIs(t, err, ErrFrameTooLarge)
}

func TestRspBufErrorTagTruncatesPriorWrites(t *testing.T) {
	rsp := NewRspBuf()
	_, _ = rsp.Write([]byte("partial success payload that should be discarded"))

	out, err := rsp.Finish(2, RspDeserializeFailure, "bad input")
	assert.NoError(t, err)

	f, err := DecodeFrame(bytes.NewReader(out))
	assert.NoError(t, err)

	_, err = f.DecodeResponse()
	var rspErr *RspError
	assert.ErrorAs(t, err, &rspErr)
	assert.Equal(t, "bad input", rspErr.Message)
}
