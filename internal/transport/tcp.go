package transport

import (
	"context"
	"fmt"
	"net"
)

// TCPDialer dials plain TCP connections, the default and only
// always-available transport. Grounded on goshare's
// net.Dial("tcp", peeraddress) calls in internal/transfer/service.go.
type TCPDialer struct{}

func (TCPDialer) Dial(ctx context.Context, host string, port int) (Conn, error) {
	var d net.Dialer
	c, err := d.DialContext(ctx, "tcp", fmt.Sprintf("%s:%d", host, port))
	if err != nil {
		return nil, err
	}
	return c, nil
}

// TCPListener wraps a net.Listener to satisfy the Listener interface.
type TCPListener struct {
	ln net.Listener
}

// ListenTCP starts listening on addr (host:port, or ":port" for all
// interfaces), grounded on goshare's net.Listen("tcp", ...) in
// internal/transfer/service.go.
func ListenTCP(addr string) (*TCPListener, error) {
	ln, err := net.Listen("tcp", addr)
	if err != nil {
		return nil, err
	}
	return &TCPListener{ln: ln}, nil
}

func (l *TCPListener) Accept(ctx context.Context) (Conn, error) {
	type result struct {
		c   net.Conn
		err error
	}
	ch := make(chan result, 1)
	go func() {
		c, err := l.ln.Accept()
		ch <- result{c, err}
	}()
	select {
	case <-ctx.Done():
		return nil, ctx.Err()
	case r := <-ch:
		return r.c, r.err
	}
}

func (l *TCPListener) Close() error    { return l.ln.Close() }
func (l *TCPListener) Addr() net.Addr { return l.ln.Addr() }
