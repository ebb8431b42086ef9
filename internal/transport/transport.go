// Package transport defines the façade the rest of the daemon uses for
// socket I/O: a uniform connect/accept/read/write/close surface so the
// control wrapper, proxy, and data server never know whether they are
// talking to a TCP socket or a QUIC stream.
//
// The interface shape is grounded on sheerbytes/Thruflux's
// internal/transfer.Transport/Conn/Stream trio; see tcp.go and quicx.go for
// the two concrete implementations this repo plugs into it.
package transport

import (
	"context"
	"net"
)

// Conn is one established connection: a byte stream plus addressing and
// lifecycle. It satisfies io.ReadWriteCloser.
type Conn interface {
	Read(p []byte) (int, error)
	Write(p []byte) (int, error)
	Close() error
	LocalAddr() net.Addr
	RemoteAddr() net.Addr
}

// Seeker is the optional seek capability of a file-backed connection. No
// Conn in this package implements it; transfer records seek through
// registry.File instead.
type Seeker interface {
	Seek(offset int64, whence int) (int64, error)
}

// Dialer opens outbound connections to a (protocol, host, port) triple.
// Each registered protocol name (e.g. "tcp", "quic") has its own Dialer.
type Dialer interface {
	Dial(ctx context.Context, host string, port int) (Conn, error)
}

// Listener accepts inbound connections for one protocol and address.
type Listener interface {
	Accept(ctx context.Context) (Conn, error)
	Close() error
	Addr() net.Addr
}

// Registry maps protocol names to the Dialer that can reach them. The
// sendFile/getFile paths use this to turn a SockName's Protocol
// field into a concrete dial attempt without hardcoding transport kinds.
type Registry struct {
	dialers map[string]Dialer
}

// NewRegistry returns an empty dialer registry.
func NewRegistry() *Registry {
	return &Registry{dialers: make(map[string]Dialer)}
}

// Register binds a protocol name to the Dialer that serves it.
func (r *Registry) Register(protocol string, d Dialer) {
	r.dialers[protocol] = d
}

// Dialer looks up the Dialer registered for protocol, if any.
func (r *Registry) Dialer(protocol string) (Dialer, bool) {
	d, ok := r.dialers[protocol]
	return d, ok
}
