package transport

import (
	"context"
	"crypto/rand"
	"crypto/rsa"
	"crypto/tls"
	"crypto/x509"
	"crypto/x509/pkix"
	"fmt"
	"math/big"
	"net"
	"time"

	"github.com/quic-go/quic-go"
)

// QUICDialer dials data connections over QUIC, a second pluggable data
// transport alongside TCPDialer. Grounded on goshare's QSender.GetConnection
// and sheerbytes/Thruflux's QUICTransport dialer role: each data connection
// is one QUIC stream opened over its own freshly dialed QUIC session.
type QUICDialer struct {
	tlsConfig *tls.Config
}

// NewQUICDialer builds a dialer with an ephemeral self-signed client
// certificate, the same throwaway-cert approach goshare's
// generateTLSConfig uses since this layer has no authentication (spec.md
// §1's Non-goals rule that out explicitly).
func NewQUICDialer() (*QUICDialer, error) {
	cfg, err := selfSignedTLSConfig()
	if err != nil {
		return nil, err
	}
	cfg.InsecureSkipVerify = true
	cfg.NextProtos = []string{"etdc-data"}
	return &QUICDialer{tlsConfig: cfg}, nil
}

func (d *QUICDialer) Dial(ctx context.Context, host string, port int) (Conn, error) {
	addr := fmt.Sprintf("%s:%d", host, port)
	cfg := &quic.Config{
		KeepAlivePeriod: 10 * time.Second,
		MaxIdleTimeout:  30 * time.Second,
	}
	sess, err := quic.DialAddr(ctx, addr, d.tlsConfig, cfg)
	if err != nil {
		return nil, err
	}
	stream, err := sess.OpenStreamSync(ctx)
	if err != nil {
		sess.CloseWithError(0, "open stream failed")
		return nil, err
	}
	return &quicConn{sess: sess, stream: stream}, nil
}

// QUICListener accepts QUIC sessions and exposes each session's first
// stream as a data Conn, mirroring goshare's QListener.handleIncomingStreams
// shape but one stream per logical data connection rather than a loop of
// streams per session.
type QUICListener struct {
	ln *quic.Listener
}

// ListenQUIC starts a QUIC listener on addr with an ephemeral server
// certificate, grounded on goshare's QListener.QUICListener.
func ListenQUIC(addr string) (*QUICListener, error) {
	tlsConfig, err := selfSignedTLSConfig()
	if err != nil {
		return nil, err
	}
	tlsConfig.NextProtos = []string{"etdc-data"}
	cfg := &quic.Config{
		KeepAlivePeriod: 10 * time.Second,
		MaxIdleTimeout:  30 * time.Second,
	}
	ln, err := quic.ListenAddr(addr, tlsConfig, cfg)
	if err != nil {
		return nil, err
	}
	return &QUICListener{ln: ln}, nil
}

func (l *QUICListener) Accept(ctx context.Context) (Conn, error) {
	sess, err := l.ln.Accept(ctx)
	if err != nil {
		return nil, err
	}
	stream, err := sess.AcceptStream(ctx)
	if err != nil {
		sess.CloseWithError(0, "accept stream failed")
		return nil, err
	}
	return &quicConn{sess: sess, stream: stream}, nil
}

func (l *QUICListener) Close() error    { return l.ln.Close() }
func (l *QUICListener) Addr() net.Addr { return l.ln.Addr() }

// quicConn adapts one QUIC stream (plus its owning session, for addressing
// and cleanup) to the Conn interface.
type quicConn struct {
	sess   quic.Connection
	stream quic.Stream
}

func (c *quicConn) Read(p []byte) (int, error)  { return c.stream.Read(p) }
func (c *quicConn) Write(p []byte) (int, error) { return c.stream.Write(p) }
func (c *quicConn) Close() error {
	err := c.stream.Close()
	c.sess.CloseWithError(0, "done")
	return err
}
func (c *quicConn) LocalAddr() net.Addr  { return c.sess.LocalAddr() }
func (c *quicConn) RemoteAddr() net.Addr { return c.sess.RemoteAddr() }

// selfSignedTLSConfig generates a throwaway RSA certificate, exactly the
// pattern goshare's QListener/QSender.generateTLSConfig uses: this layer
// carries no authentication (spec.md's Non-goals), TLS here exists only
// because QUIC requires it transport-wise.
func selfSignedTLSConfig() (*tls.Config, error) {
	key, err := rsa.GenerateKey(rand.Reader, 2048)
	if err != nil {
		return nil, err
	}
	template := x509.Certificate{
		SerialNumber: big.NewInt(1),
		Subject:      pkix.Name{Organization: []string{"etdc"}},
		NotBefore:    time.Now(),
		NotAfter:     time.Now().Add(24 * time.Hour * 180),
		KeyUsage:     x509.KeyUsageKeyEncipherment | x509.KeyUsageDigitalSignature,
		ExtKeyUsage: []x509.ExtKeyUsage{
			x509.ExtKeyUsageServerAuth,
			x509.ExtKeyUsageClientAuth,
		},
		BasicConstraintsValid: true,
	}
	certDER, err := x509.CreateCertificate(rand.Reader, &template, &template, &key.PublicKey, key)
	if err != nil {
		return nil, err
	}
	cert := tls.Certificate{
		Certificate: [][]byte{certDER},
		PrivateKey:  key,
	}
	return &tls.Config{Certificates: []tls.Certificate{cert}}, nil
}
