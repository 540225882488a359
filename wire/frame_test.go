package wire

import (
	"bytes"
	"encoding/binary"
	"io"
	"testing"

	assert "github.com/stretchr/testify/require"
)

func TestDecodeFrameRoundTrip(t *testing.T) {
	req := NewRequestBuf()
	_, err := req.Write([]byte("hello world"))
	assert.NoError(t, err)

	wireBytes, err := req.Finish(42)
	assert.NoError(t, err)

	f, err := DecodeFrame(bytes.NewReader(wireBytes))
	assert.NoError(t, err)
	assert.Equal(t, uint64(42), f.ID)
	assert.Equal(t, []byte("hello world"), f.Body)
}

func TestDecodeFrameRejectsOversizeLength(t *testing.T) {
	var hdr [16]byte
	binary.BigEndian.PutUint64(hdr[8:16], MaxFrameSize+1)

	_, err := DecodeFrame(bytes.NewReader(hdr[:]))
	assert.ErrorIs(t, err, ErrInvalidFrame)
}

func TestDecodeFrameUnexpectedEOFOnShortHeader(t *testing.T) {
	_, err := DecodeFrame(bytes.NewReader([]byte{0, 1, 2}))
	assert.ErrorIs(t, err, io.ErrUnexpectedEOF)
}

func TestDecodeFrameUnexpectedEOFMidBody(t *testing.T) {
	var hdr [16]byte
	binary.BigEndian.PutUint64(hdr[8:16], 10)

	_, err := DecodeFrame(bytes.NewReader(append(hdr[:], []byte("abc")...)))
	assert.ErrorIs(t, err, io.ErrUnexpectedEOF)
}

func TestDecodeFrameCleanEOFAtBoundary(t *testing.T) {
	_, err := DecodeFrame(bytes.NewReader(nil))
	assert.ErrorIs(t, err, io.EOF)
}

func TestDecodeResponseSuccess(t *testing.T) {
	rsp := NewRspBuf()
	_, err := rsp.Write([]byte("payload"))
	assert.NoError(t, err)

	bytesOut, err := rsp.Finish(7, RspOK, "")
	assert.NoError(t, err)

	f, err := DecodeFrame(bytes.NewReader(bytesOut))
	assert.NoError(t, err)
	assert.Equal(t, uint64(7), f.ID)

	payload, err := f.DecodeResponse()
	assert.NoError(t, err)
	assert.Equal(t, []byte("payload"), payload)
}

func TestDecodeResponseStatusError(t *testing.T) {
	rsp := NewRspBuf()
	bytesOut, err := rsp.Finish(9, RspStatus, "boom")
	assert.NoError(t, err)

	f, err := DecodeFrame(bytes.NewReader(bytesOut))
	assert.NoError(t, err)

	_, err = f.DecodeResponse()
	var rspErr *RspError
	assert.ErrorAs(t, err, &rspErr)
	assert.Equal(t, RspStatus, rspErr.Tag)
	assert.Equal(t, "boom", rspErr.Message)
	assert.True(t, rspErr.Known())
}

func TestDecodeResponseUnknownTagIsUnknown(t *testing.T) {
	rsp := NewRspBuf()
	bytesOut, err := rsp.Finish(1, RspTag(99), "weird")
	assert.NoError(t, err)

	f, err := DecodeFrame(bytes.NewReader(bytesOut))
	assert.NoError(t, err)

	_, err = f.DecodeResponse()
	var rspErr *RspError
	assert.ErrorAs(t, err, &rspErr)
	assert.False(t, rspErr.Known())
}

func TestDecodeResponseEmptyPayloadRoundTrips(t *testing.T) {
	rsp := NewRspBuf()
	bytesOut, err := rsp.Finish(1, RspOK, "")
	assert.NoError(t, err)

	f, err := DecodeFrame(bytes.NewReader(bytesOut))
	assert.NoError(t, err)

	payload, err := f.DecodeResponse()
	assert.NoError(t, err)
	assert.Empty(t, payload)
}
