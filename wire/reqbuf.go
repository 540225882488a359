package wire

import "encoding/binary"

// RequestBuf is a growable byte buffer for building one outbound request
// frame. It reserves the first 16 bytes for the id+length header so that
// Finish can back-patch the header in place instead of copying the body into
// a fresh, prefixed buffer.
type RequestBuf struct {
	buf []byte
}

// NewRequestBuf returns an empty RequestBuf ready for writes.
func NewRequestBuf() *RequestBuf {
	return &RequestBuf{buf: make([]byte, reqBufHeaderSize)}
}

// Write appends p to the request body. It never fails.
func (b *RequestBuf) Write(p []byte) (int, error) {
	b.buf = append(b.buf, p...)
	return len(p), nil
}

// Len reports the number of body bytes written so far.
func (b *RequestBuf) Len() int {
	return len(b.buf) - reqBufHeaderSize
}

// Finish back-patches the header with id and the current body length and
// returns the complete frame image. It fails with ErrFrameTooLarge if the
// body exceeds MaxFrameSize. Finish may be called more than once with the
// same id; it is a pure function of the buffer's contents and always
// produces identical bytes.
func (b *RequestBuf) Finish(id uint64) ([]byte, error) {
	bodyLen := b.Len()
	if bodyLen > MaxFrameSize {
		return nil, ErrFrameTooLarge
	}

	binary.BigEndian.PutUint64(b.buf[0:8], id)
	binary.BigEndian.PutUint64(b.buf[8:16], uint64(bodyLen))
	return b.buf, nil
}
