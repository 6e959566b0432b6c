package netutil

import "time"

// Options covers the socket knobs spec §4.1 requires: reuse-ip/port, nodelay, linger,
// broadcast, send/recv timeouts and buffer sizes, keepalive (idle/interval/probes),
// blocking mode, raw-IP-header-inclusion, promiscuous.
type Options struct {
	ReuseAddr      bool
	ReusePort      bool
	NoDelay        bool
	LingerSeconds  int // <0 disables SO_LINGER, 0 sends RST, >0 seconds to linger
	Broadcast      bool
	SendTimeout    time.Duration
	RecvTimeout    time.Duration
	SendBufferSize int
	RecvBufferSize int
	KeepAlive      bool
	KeepIdle       time.Duration
	KeepInterval   time.Duration
	KeepProbes     int
	Blocking       bool
	IPHeaderIncl   bool
	Promiscuous    bool
}

// unsupportedOptionError (built by errUnsupported) is returned by the platform option
// setters (setKeepAlive, setPromiscuous) when the host OS cannot honor
// a requested knob (e.g. keepalive probe count on platforms lacking TCP_KEEPCNT); spec
// §4.1 requires this to fail loudly rather than silently degrade.
type unsupportedOptionError struct{ opt string }

func (e *unsupportedOptionError) Error() string { return "unsupported option: " + e.opt }

func errUnsupported(opt string) error { return &unsupportedOptionError{opt: opt} }

// SockType distinguishes stream/datagram at the OS level.
type SockType uint8

const (
	SockStream SockType = iota
	SockDgram
)

// Socket wraps an OS socket descriptor and exposes both the synchronous operations
// (bind/listen/shutdown/options/getpeername) and the descriptor itself, which the
// poller binds to the completion port or readiness multiplexer. The async send/recv/
// accept/connect operations live on the handle types in internal/handle, which hold a
// Socket and drive it either directly (readiness family) or via the OS (completion
// family).
type Socket struct {
	FD     int
	Type   SockType
	Family Family
	Opts   Options
}

// MaxListenBacklog is clamped to the OS maximum by the platform-specific Listen, per
// spec §4.1.
const MaxListenBacklog = 1 << 16
