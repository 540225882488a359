package rpc

import (
	"time"

	"github.com/imdario/mergo"
)

// Config controls client and server timeouts and behaviour. Callers
// normally don't build one directly; they pass Option values to Dial,
// DialMultiplex, DialUDP, ListenAndServe and ListenAndServeUDP, which apply
// them over DefaultConfig the same way the teacher's session factories
// overlay a caller Config onto package defaults with mergo.
type Config struct {
	// CallTimeout bounds how long MultiplexClient.Call waits for a response.
	CallTimeout time.Duration
	// ReadTimeout bounds how long Client (the simple sequential client) and
	// UDPClient wait to read a response.
	ReadTimeout time.Duration
	// IDPool, if true, makes MultiplexClient reuse freed request ids from a
	// small pool instead of an ever-incrementing counter. Off by default;
	// worth enabling only for clients long-lived enough to be a realistic
	// candidate for wrapping a 64-bit counter.
	IDPool bool
	// Trace installs lifecycle hooks; nil means NoOpTrace.
	Trace *Trace
}

// DefaultConfig holds the package's documented defaults: a 10s multiplex
// call timeout, a 5s simple-client read timeout (DialUDP substitutes
// udpDefaultReadTimeout, 1s), a monotonic id allocator, and no tracing. The exact split across these three revision-dependent
// defaults is an implementation choice (spec leaves it open); this module
// documents and keeps these values.
var DefaultConfig = Config{
	CallTimeout: 10 * time.Second,
	ReadTimeout: 5 * time.Second,
	IDPool:      false,
	Trace:       NoOpTrace,
}

// udpDefaultReadTimeout overrides Config.ReadTimeout's effective value for
// DialUDP, which documents a 1s default per spec rather than inheriting the
// stream clients' 5s.
const udpDefaultReadTimeout = 1 * time.Second

// Option configures a Config. Unset fields fall back to DefaultConfig.
type Option func(*Config)

// WithCallTimeout overrides the multiplex client's per-call wait bound.
func WithCallTimeout(d time.Duration) Option {
	return func(c *Config) { c.CallTimeout = d }
}

// WithReadTimeout overrides the simple/UDP client's per-read wait bound.
func WithReadTimeout(d time.Duration) Option {
	return func(c *Config) { c.ReadTimeout = d }
}

// WithIDPool enables request-id reuse on a multiplex client.
func WithIDPool() Option {
	return func(c *Config) { c.IDPool = true }
}

// WithTrace installs trace hooks.
func WithTrace(trace *Trace) Option {
	return func(c *Config) { c.Trace = trace }
}

func resolveConfig(opts []Option, defaults Config) Config {
	cfg := Config{}
	for _, opt := range opts {
		opt(&cfg)
	}
	_ = mergo.Merge(&cfg, defaults)

	// A caller-supplied Trace is usually partial (only the hooks they care
	// about). Fill the rest from NoOpTrace so every hook is callable without
	// a nil check at each call site.
	if cfg.Trace != nil {
		merged := *cfg.Trace
		_ = mergo.Merge(&merged, NoOpTrace)
		cfg.Trace = &merged
	}

	return cfg
}
