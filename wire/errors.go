package wire

import "github.com/pkg/errors"

// MaxFrameSize is the largest permitted value of a frame's length field, in bytes.
// It bounds the body only; the 16-byte frame header is not counted.
const MaxFrameSize = 1024 * 1024

// headerSize is the size, in bytes, of the id+length preamble on every frame.
const headerSize = 16

// rspHeaderSize is the size, in bytes, of the type+length preamble at the start
// of a response body (inside a frame body).
const rspHeaderSize = 9

// reqBufHeaderSize is the space RequestBuf reserves ahead of its write cursor.
const reqBufHeaderSize = headerSize

// rspBufHeaderSize is the space RspBuf reserves ahead of its write cursor:
// 8 bytes id, 8 bytes length, 1 byte type, 8 bytes inner-length.
const rspBufHeaderSize = headerSize + 1 + 8

// ErrFrameTooLarge is returned by Finish when the frame body (the value of its
// length field) would exceed MaxFrameSize.
var ErrFrameTooLarge = errors.New("wire: frame exceeds maximum size")

// ErrInvalidFrame is returned by DecodeFrame when the header declares a length
// greater than MaxFrameSize.
var ErrInvalidFrame = errors.New("wire: frame length exceeds maximum size")
