package rpc

import "github.com/damianoneill/rpcnet/wire"

// Service is the user-supplied handler a server dispatches each request to.
// req is the raw request body from the frame; the handler writes its
// success payload to rsp. A nil return seals rsp as a success response. A
// non-nil return that implements WireError selects the matching response
// tag; any other error (or a recovered panic) is reported as a StatusError
// to the caller.
//
// The framework may invoke many requests against the same Service value
// concurrently, across many connections. A Service implementation that
// holds mutable state must synchronize it itself.
type Service func(req []byte, rsp *wire.RspBuf) error

// WireError is implemented by errors a Service handler returns when it
// wants to select a specific response tag instead of the default
// RspStatus. Deserialize, Serialize and Status construct the three
// variants the wire protocol defines.
type WireError interface {
	error
	wireTag() wire.RspTag
}

// Handler is the interface form of Service. A Service function value can't
// be mocked directly; tests that need to assert on call arguments or script
// return values wrap a Handler instead (see rpc/mocks.MockHandler) and pass
// AsService(h) to ListenAndServe.
type Handler interface {
	Handle(req []byte, rsp *wire.RspBuf) error
}

// AsService adapts a Handler to a Service.
func AsService(h Handler) Service {
	return h.Handle
}

type taggedError struct {
	tag wire.RspTag
	msg string
}

func (e *taggedError) Error() string       { return e.msg }
func (e *taggedError) wireTag() wire.RspTag { return e.tag }

// Deserialize reports that the handler could not parse its request body.
// The server seals the response with tag RspDeserializeFailure.
func Deserialize(msg string) WireError { return &taggedError{tag: wire.RspDeserializeFailure, msg: msg} }

// Serialize reports that the handler could not build its response body.
// The server seals the response with tag RspSerializeFailure.
func Serialize(msg string) WireError { return &taggedError{tag: wire.RspSerializeFailure, msg: msg} }

// Status reports an application-level failure. The server seals the
// response with tag RspStatus.
func Status(msg string) WireError { return &taggedError{tag: wire.RspStatus, msg: msg} }

// panicStatusMessage is the fixed status message a recovered service panic
// is reported to the caller as, per spec.
const panicStatusMessage = "rpc panicked in server"

// sealResponse runs handler against req, recovering any panic, and returns
// the sealed frame bytes for id plus the response tag that was used. The
// only error it can return is a frame-size overflow from Finish — handler
// failures are encoded into the sealed response's tag, not returned here.
func sealResponse(handler Service, id uint64, req []byte, onPanic func(recovered interface{})) (out []byte, tag wire.RspTag, sealErr error) {
	rsp := wire.NewRspBuf()

	err := invokeRecovered(handler, req, rsp, onPanic)

	tag, msg := wire.RspOK, ""
	if err != nil {
		tag, msg = wire.RspStatus, err.Error()
		if we, ok := err.(WireError); ok {
			tag = we.wireTag()
		}
	}

	out, sealErr = rsp.Finish(id, tag, msg)
	return out, tag, sealErr
}

func invokeRecovered(handler Service, req []byte, rsp *wire.RspBuf, onPanic func(recovered interface{})) (err error) {
	defer func() {
		if r := recover(); r != nil {
			if onPanic != nil {
				onPanic(r)
			}
			err = Status(panicStatusMessage)
		}
	}()
	return handler(req, rsp)
}
