package znprotocol

import (
	"context"
	"net"
	"testing"
	"time"

	"github.com/stretchr/testify/require"
	"zeronode/pkg/zncodec"
	"zeronode/pkg/zntransport"
)

func newClientPair(t *testing.T) (*Client, *zntransport.Session) {
	t.Helper()
	clientConn, serverConn := net.Pipe()
	clientSession := zntransport.NewSession(clientConn)
	serverSession := zntransport.NewSession(serverConn)
	t.Cleanup(func() {
		_ = clientSession.Close()
		_ = serverSession.Close()
	})
	return NewClient(clientSession), serverSession
}

func handshakeBoth(t *testing.T, client *Client, server *zntransport.Session) {
	t.Helper()
	ctx, cancel := context.WithTimeout(context.Background(), 2*time.Second)
	defer cancel()

	done := make(chan struct{})
	go func() {
		defer close(done)
		_, _ = server.Request(ctx, "handshake", map[string]any{"protocol": "v2", "peer_id": "server"})
	}()

	_, err := client.Handshake(ctx, HandshakeInfo{Version: "1.0", Protocol: "v2", PeerID: "client"})
	require.NoError(t, err)
	<-done
}

func TestPingPong(t *testing.T) {
	client, server := newClientPair(t)
	server.SetHandler(func(req zncodec.Request) (map[string]any, error) {
		if req.Cmd == "ping" {
			return map[string]any{"body": "Pong!"}, nil
		}
		return map[string]any{}, nil
	})
	handshakeBoth(t, client, server)

	ctx, cancel := context.WithTimeout(context.Background(), time.Second)
	defer cancel()
	require.NoError(t, client.Ping(ctx))
}

func TestListModifiedCollatesMtimes(t *testing.T) {
	client, server := newClientPair(t)
	server.SetHandler(func(req zncodec.Request) (map[string]any, error) {
		if req.Cmd == "listModified" {
			return map[string]any{"modified_files": map[string]any{
				"content.json": int64(1000),
				"data/a.txt":   int64(2000),
			}}, nil
		}
		return map[string]any{}, nil
	})
	handshakeBoth(t, client, server)

	ctx, cancel := context.WithTimeout(context.Background(), time.Second)
	defer cancel()
	mods, err := client.ListModified(ctx, "1Hello", 500)
	require.NoError(t, err)
	require.Equal(t, int64(1000), mods["content.json"])
	require.Equal(t, int64(2000), mods["data/a.txt"])
}

func TestGetFileReturnsRequestedRange(t *testing.T) {
	client, server := newClientPair(t)
	server.SetHandler(func(req zncodec.Request) (map[string]any, error) {
		if req.Cmd == "getFile" {
			loc, _ := toInt64(req.Params["location"])
			return map[string]any{
				"body":     []byte("chunk-data"),
				"size":     int64(1572864),
				"location": loc + 10,
			}, nil
		}
		return map[string]any{}, nil
	})
	handshakeBoth(t, client, server)

	ctx, cancel := context.WithTimeout(context.Background(), time.Second)
	defer cancel()
	result, err := client.GetFile(ctx, "1Hello", "data/big.bin", 0, 524288)
	require.NoError(t, err)
	require.Equal(t, []byte("chunk-data"), result.Body)
	require.Equal(t, int64(1572864), result.Size)
	require.Equal(t, int64(10), result.Location)
}

func TestPexFiltersZeroPortPeers(t *testing.T) {
	client, server := newClientPair(t)
	server.SetHandler(func(req zncodec.Request) (map[string]any, error) {
		if req.Cmd == "pex" {
			packed, err := zncodec.EncodeCompactIPv4Peers([]zncodec.PeerAddress{
				{Network: "ipv4", Host: "1.2.3.4", Port: 0},
				{Network: "ipv4", Host: "5.6.7.8", Port: 15441},
			})
			require.NoError(t, err)
			return map[string]any{"peers": packed}, nil
		}
		return map[string]any{}, nil
	})
	handshakeBoth(t, client, server)

	ctx, cancel := context.WithTimeout(context.Background(), time.Second)
	defer cancel()
	peers, err := client.Pex(ctx, "1Hello", nil, 10)
	require.NoError(t, err)
	require.Len(t, peers, 1)
	require.Equal(t, "5.6.7.8", peers[0].Host)
}
