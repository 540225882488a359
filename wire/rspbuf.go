package wire

import "encoding/binary"

// RspBuf is a growable byte buffer for building one response frame. It
// reserves the first 25 bytes for the frame header (8 id + 8 length) and the
// response header (1 type + 8 inner-length), positioning the write cursor at
// byte 25. A service handler appends its success payload directly; Finish
// then back-patches both headers.
type RspBuf struct {
	buf []byte
}

// NewRspBuf returns an empty RspBuf ready for a handler to write its
// success payload into.
func NewRspBuf() *RspBuf {
	return &RspBuf{buf: make([]byte, rspBufHeaderSize)}
}

// Write appends p to the in-progress success payload. It never fails.
func (b *RspBuf) Write(p []byte) (int, error) {
	b.buf = append(b.buf, p...)
	return len(p), nil
}

// Len reports the number of payload bytes written so far.
func (b *RspBuf) Len() int {
	return len(b.buf) - rspBufHeaderSize
}

// Finish seals the buffer as a complete response frame addressed to id.
//
// For tag == RspOK, the inner payload is whatever the handler already wrote.
// For any other tag, Finish truncates the buffer back to the header and
// writes msg as the inner payload in its place — the "truncates payload,
// writes the error bytes after the inner header" behaviour a failed
// service invocation needs, even if the handler had partially written a
// success payload before failing.
func (b *RspBuf) Finish(id uint64, tag RspTag, msg string) ([]byte, error) {
	if tag != RspOK {
		b.buf = b.buf[:rspBufHeaderSize]
		b.buf = append(b.buf, msg...)
	}

	innerLen := b.Len()
	outerLen := innerLen + rspHeaderSize
	if outerLen > MaxFrameSize {
		return nil, ErrFrameTooLarge
	}

	binary.BigEndian.PutUint64(b.buf[0:8], id)
	binary.BigEndian.PutUint64(b.buf[8:16], uint64(outerLen))
	b.buf[16] = byte(tag)
	binary.BigEndian.PutUint64(b.buf[17:rspBufHeaderSize], uint64(innerLen))
	return b.buf, nil
}
