// Package zntransport implements the bidirectional framed RPC session used
// to talk to a single peer: one TCP connection, a monotonic per-connection
// request-id allocator, a correlator matching responses back to pending
// requests, and the handshake-required gate. Grounded on
// core/network.go's Dialer (raw net.Dialer wrapper) and
// core/connection_pool.go's ConnPool (idle-TTL-evicted connection reuse),
// adapted from pooling bare net.Conns to pooling live Sessions.
package zntransport

import (
	"context"
	"fmt"
	"net"
	"time"
)

// Dialer opens outbound TCP connections to peers. Adapted directly from
// core/network.go's Dialer: same Timeout/KeepAlive fields, same
// DialContext-based Dial, generalized from "connect to a libp2p multiaddr
// string" to "connect to a PeerAddress".
type Dialer struct {
	Timeout   time.Duration
	KeepAlive time.Duration
}

// NewDialer returns a Dialer with the given timeout and keepalive interval.
func NewDialer(timeout, keepAlive time.Duration) *Dialer {
	return &Dialer{Timeout: timeout, KeepAlive: keepAlive}
}

// Dial connects to address ("host:port") and returns the raw connection.
func (d *Dialer) Dial(ctx context.Context, address string) (net.Conn, error) {
	nd := &net.Dialer{Timeout: d.Timeout, KeepAlive: d.KeepAlive}
	conn, err := nd.DialContext(ctx, "tcp", address)
	if err != nil {
		return nil, fmt.Errorf("zntransport: dial %s: %w", address, err)
	}
	return conn, nil
}

// DialSession connects to address and wraps the connection in a Session.
func (d *Dialer) DialSession(ctx context.Context, address string) (*Session, error) {
	conn, err := d.Dial(ctx, address)
	if err != nil {
		return nil, err
	}
	return NewSession(conn), nil
}
