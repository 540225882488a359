package rpc

import (
	"context"
	"log"
	"time"

	"github.com/imdario/mergo"
)

// unique type to prevent assignment from outside the package.
type traceContextKey struct{}

// Trace defines a set of hooks invoked at points of interest across the
// client and server lifecycle. Every field is optional; a nil hook is
// simply not called. Fields left unset by a caller-supplied Trace are
// merged with NoOpTrace so callers only ever need to set the hooks they
// care about.
type Trace struct {
	// DialStart is called before a client begins connecting to address.
	DialStart func(network, address string)
	// DialDone is called after the connection attempt completes.
	DialDone func(network, address string, err error, d time.Duration)

	// ConnectionClosed is called once a client or per-connection server
	// handler has finished with its transport, with err indicating why.
	ConnectionClosed func(address string, err error)

	// CallStart is called before a client issues a request.
	CallStart func(id uint64, size int)
	// CallDone is called after a client's call completes, successfully or not.
	CallDone func(id uint64, err error, d time.Duration)

	// ReaderExit is called when a multiplex client's reader goroutine exits.
	ReaderExit func(address string, err error)

	// Accepted is called after the server accept loop accepts (or fails to
	// accept) a new connection.
	Accepted func(address string, err error)
	// RequestReceived is called when a server has decoded one request frame.
	RequestReceived func(id uint64, size int)
	// RequestHandled is called after a server has invoked the service handler
	// for one request and sealed its response.
	RequestHandled func(id uint64, tag string, err error, d time.Duration)
	// Panic is called when a service handler panic was recovered.
	Panic func(id uint64, recovered interface{})

	// Error is called for any condition worth logging that does not fit one
	// of the more specific hooks above.
	Error func(context, address string, err error)
}

// ContextTrace returns the Trace associated with ctx, merged over NoOpTrace
// so every field is callable. If ctx carries no Trace, NoOpTrace is
// returned directly.
func ContextTrace(ctx context.Context) *Trace {
	trace, _ := ctx.Value(traceContextKey{}).(*Trace)
	if trace == nil {
		return NoOpTrace
	}
	merged := *trace
	_ = mergo.Merge(&merged, NoOpTrace)
	return &merged
}

// ContextWithTrace returns a context derived from ctx that carries trace,
// for later retrieval with ContextTrace. The package's clients and servers
// do not read hooks from a call's context; they take them from the
// WithTrace Option passed to Dial, DialMultiplex, DialUDP, ListenAndServe
// or ListenAndServeUDP.
func ContextWithTrace(ctx context.Context, trace *Trace) context.Context {
	return context.WithValue(ctx, traceContextKey{}, trace)
}

// DefaultLoggingTrace logs errors and panics via the standard log package.
// It is a reasonable default for callers that want visibility without
// wiring their own Trace.
var DefaultLoggingTrace = &Trace{
	Error: func(context, address string, err error) {
		log.Printf("rpc: error context=%s address=%s err=%v", context, address, err)
	},
	Panic: func(id uint64, recovered interface{}) {
		log.Printf("rpc: recovered panic id=%d: %v", id, recovered)
	},
}

// DiagnosticLoggingTrace logs every hook; useful when debugging a specific
// connection's behaviour.
var DiagnosticLoggingTrace = &Trace{
	DialStart: func(network, address string) {
		log.Printf("rpc: dial start network=%s address=%s", network, address)
	},
	DialDone: func(network, address string, err error, d time.Duration) {
		log.Printf("rpc: dial done network=%s address=%s err=%v took=%s", network, address, err, d)
	},
	ConnectionClosed: func(address string, err error) {
		log.Printf("rpc: connection closed address=%s err=%v", address, err)
	},
	CallStart: func(id uint64, size int) {
		log.Printf("rpc: call start id=%d size=%d", id, size)
	},
	CallDone: func(id uint64, err error, d time.Duration) {
		log.Printf("rpc: call done id=%d err=%v took=%s", id, err, d)
	},
	ReaderExit: func(address string, err error) {
		log.Printf("rpc: reader exit address=%s err=%v", address, err)
	},
	Accepted: func(address string, err error) {
		log.Printf("rpc: accepted address=%s err=%v", address, err)
	},
	RequestReceived: func(id uint64, size int) {
		log.Printf("rpc: request received id=%d size=%d", id, size)
	},
	RequestHandled: func(id uint64, tag string, err error, d time.Duration) {
		log.Printf("rpc: request handled id=%d tag=%s err=%v took=%s", id, tag, err, d)
	},
	Panic:  DefaultLoggingTrace.Panic,
	Error:  DefaultLoggingTrace.Error,
}

// NoOpTrace is a Trace whose every hook does nothing. It backs ContextTrace
// when no trace has been installed, so call sites never need a nil check.
var NoOpTrace = &Trace{
	DialStart:        func(network, address string) {},
	DialDone:         func(network, address string, err error, d time.Duration) {},
	ConnectionClosed: func(address string, err error) {},
	CallStart:        func(id uint64, size int) {},
	CallDone:         func(id uint64, err error, d time.Duration) {},
	ReaderExit:       func(address string, err error) {},
	Accepted:         func(address string, err error) {},
	RequestReceived:  func(id uint64, size int) {},
	RequestHandled:   func(id uint64, tag string, err error, d time.Duration) {},
	Panic:            func(id uint64, recovered interface{}) {},
	Error:            func(context, address string, err error) {},
}
