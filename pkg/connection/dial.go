package connection

import (
	"context"
	"crypto/tls"
	"fmt"
	"net"

	"golang.org/x/net/proxy"
)

// Dialer opens the raw transport. proxy.ContextDialer and *net.Dialer
// satisfy it.
type Dialer interface {
	DialContext(ctx context.Context, network, addr string) (net.Conn, error)
}

// environmentDialer honours ALL_PROXY and NO_PROXY.
func environmentDialer(cfg Config) Dialer {
	direct := &net.Dialer{Timeout: cfg.DialTimeout}
	if d, ok := proxy.FromEnvironmentUsing(direct).(proxy.ContextDialer); ok {
		return d
	}
	return direct
}

func dial(ctx context.Context, d Dialer, cfg Config) (net.Conn, error) {
	conn, err := d.DialContext(ctx, "tcp", cfg.Addr())
	if err != nil {
		return nil, &TransportError{Op: "dial", Err: err}
	}

	if !cfg.TLS {
		return conn, nil
	}

	tlsConn := tls.Client(conn, &tls.Config{
		ServerName:         cfg.Host,
		InsecureSkipVerify: cfg.TLSSkipVerify,
		NextProtos:         []string{"irc"},
	})
	if err := tlsConn.HandshakeContext(ctx); err != nil {
		conn.Close()
		return nil, &TransportError{Op: "tls handshake", Err: fmt.Errorf("failed to handshake with %s: %w", cfg.Addr(), err)}
	}
	return tlsConn, nil
}
