package rpc

import (
	"fmt"

	"github.com/pkg/errors"

	"github.com/damianoneill/rpcnet/wire"
)

// ErrTimeout is returned by Call when the configured deadline elapses before
// a response arrives. It is never wrapped with call-site context so callers
// can compare it directly with errors.Is.
var ErrTimeout = errors.New("rpc: call timed out")

// IOError wraps a network I/O failure observed while issuing or awaiting a
// call. The connection is considered dead: when a MultiplexClient's reader
// exits, every waiter still registered is woken with an IOError, and later
// calls on it fail or time out.
type IOError struct{ Err error }

func (e *IOError) Error() string { return fmt.Sprintf("rpc: io error: %v", e.Err) }
func (e *IOError) Unwrap() error { return e.Err }

// ClientSerializeError reports that the caller's own request body could not
// be sealed into a frame (for example, it exceeded the frame size limit).
type ClientSerializeError struct{ Message string }

func (e *ClientSerializeError) Error() string { return "rpc: client serialize: " + e.Message }

// ClientDeserializeError reports that a response frame could not be parsed,
// either because its response-body layout was malformed or because it
// carried a response tag this client revision does not recognize.
type ClientDeserializeError struct{ Message string }

func (e *ClientDeserializeError) Error() string { return "rpc: client deserialize: " + e.Message }

// ServerDeserializeError is returned to the caller when the server's
// framework reports it could not parse the request body (response tag 1).
type ServerDeserializeError struct{ Message string }

func (e *ServerDeserializeError) Error() string { return "rpc: server deserialize: " + e.Message }

// ServerSerializeError is returned to the caller when the server's framework
// reports it could not serialize the response body (response tag 2).
type ServerSerializeError struct{ Message string }

func (e *ServerSerializeError) Error() string { return "rpc: server serialize: " + e.Message }

// StatusError is returned to the caller when the service handler itself
// reported an application-level failure (response tag 3), including the
// synthesized "rpc panicked in server" status produced when a handler
// panics.
type StatusError struct{ Message string }

func (e *StatusError) Error() string { return "rpc: status: " + e.Message }

// Payload decodes the response body carried by a frame returned from Call,
// mapping the wire-level response tag onto the client-visible error
// taxonomy. A nil error return means the response was a success and payload
// holds the user-visible bytes; any other result is one of
// *ServerDeserializeError, *ServerSerializeError, *StatusError (the three
// tags a server can report) or *ClientDeserializeError (a malformed or
// unrecognized response).
func Payload(f wire.Frame) (payload []byte, err error) {
	payload, decodeErr := f.DecodeResponse()
	if decodeErr == nil {
		return payload, nil
	}

	rspErr, ok := decodeErr.(*wire.RspError)
	if !ok {
		return nil, &ClientDeserializeError{Message: decodeErr.Error()}
	}

	switch rspErr.Tag {
	case wire.RspDeserializeFailure:
		return nil, &ServerDeserializeError{Message: rspErr.Message}
	case wire.RspSerializeFailure:
		return nil, &ServerSerializeError{Message: rspErr.Message}
	case wire.RspStatus:
		return nil, &StatusError{Message: rspErr.Message}
	default:
		return nil, &ClientDeserializeError{Message: rspErr.Error()}
	}
}
