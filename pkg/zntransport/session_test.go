package zntransport

import (
	"context"
	"net"
	"testing"
	"time"

	"github.com/stretchr/testify/require"
	"zeronode/pkg/zncodec"
)

func newSessionPair(t *testing.T) (*Session, *Session) {
	t.Helper()
	clientConn, serverConn := net.Pipe()
	client := NewSession(clientConn)
	server := NewSession(serverConn)
	t.Cleanup(func() {
		_ = client.Close()
		_ = server.Close()
	})
	return client, server
}

func TestHandshakeGatesOtherVerbs(t *testing.T) {
	client, server := newSessionPair(t)
	server.SetHandler(func(req zncodec.Request) (map[string]any, error) {
		return map[string]any{"ok": true}, nil
	})

	ctx, cancel := context.WithTimeout(context.Background(), 2*time.Second)
	defer cancel()

	_, err := client.Request(ctx, "ping", nil)
	require.ErrorIs(t, err, ErrHandshakeRequired)

	_, err = client.Request(ctx, "handshake", map[string]any{"version": "1.0", "protocol": "v2"})
	require.NoError(t, err)
	require.True(t, client.HandshakeComplete())

	remote, ok := server.RemoteHandshake()
	require.True(t, ok)
	require.Equal(t, "v2", remote["protocol"])
}

func TestRequestResponseRoundTripsBody(t *testing.T) {
	client, server := newSessionPair(t)
	server.SetHandler(func(req zncodec.Request) (map[string]any, error) {
		if req.Cmd == "ping" {
			return map[string]any{"body": "Pong!"}, nil
		}
		return map[string]any{}, nil
	})

	ctx, cancel := context.WithTimeout(context.Background(), 2*time.Second)
	defer cancel()

	_, err := client.Request(ctx, "handshake", map[string]any{"protocol": "v2"})
	require.NoError(t, err)
	_, err = server.Request(ctx, "handshake", map[string]any{"protocol": "v2"})
	require.NoError(t, err)

	resp, err := client.Request(ctx, "ping", nil)
	require.NoError(t, err)
	require.Equal(t, "Pong!", resp["body"])
}
