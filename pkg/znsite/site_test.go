package znsite

import (
	"bytes"
	"context"
	"net"
	"sync/atomic"
	"testing"
	"time"

	"github.com/stretchr/testify/require"

	"zeronode/pkg/zncodec"
	"zeronode/pkg/zncontent"
	"zeronode/pkg/zncrypto"
	"zeronode/pkg/znprotocol"
	"zeronode/pkg/zntransport"
)

func testPrivateKey(t *testing.T, seedByte byte) *zncrypto.PrivateKey {
	t.Helper()
	seed := bytes.Repeat([]byte{seedByte}, 32)
	priv, err := zncrypto.NewPrivateKeyFromSeed(seed)
	require.NoError(t, err)
	return priv
}

// stubPeer wires a znprotocol.Client to an in-process server Session whose
// handler is supplied by the test, standing in for a remote peer.
func stubPeer(t *testing.T, handler zntransport.RequestHandler) *Peer {
	t.Helper()
	clientConn, serverConn := net.Pipe()
	clientSession := zntransport.NewSession(clientConn)
	serverSession := zntransport.NewSession(serverConn)
	serverSession.SetHandler(handler)
	t.Cleanup(func() {
		_ = clientSession.Close()
		_ = serverSession.Close()
	})

	ctx, cancel := context.WithTimeout(context.Background(), 2*time.Second)
	defer cancel()
	client := znprotocol.NewClient(clientSession)

	done := make(chan struct{})
	go func() {
		defer close(done)
		_, _ = serverSession.Request(ctx, "handshake", map[string]any{"protocol": "v2"})
	}()
	_, err := client.Handshake(ctx, znprotocol.HandshakeInfo{Version: "1.0", Protocol: "v2"})
	require.NoError(t, err)
	<-done

	p := NewPeer(zncodec.PeerAddress{Network: "ipv4", Host: "127.0.0.1", Port: 15441})
	p.Attach(client)
	return p
}

func TestCreateSignVerifyRoundTrip(t *testing.T) {
	priv := testPrivateKey(t, 0x01)
	addr, err := priv.Address()
	require.NoError(t, err)

	site := NewSite(addr, t.TempDir(), nil)
	require.NoError(t, site.Create(priv))

	failures, err := site.VerifyFiles(true)
	require.NoError(t, err)
	require.Empty(t, failures)
	require.Equal(t, StateServing, site.State())
}

func TestPauseResumeRestoresPriorState(t *testing.T) {
	priv := testPrivateKey(t, 0x09)
	addr, err := priv.Address()
	require.NoError(t, err)

	site := NewSite(addr, t.TempDir(), nil)
	require.NoError(t, site.Create(priv))
	require.Equal(t, StateServing, site.State())

	site.Pause()
	require.Equal(t, StatePaused, site.State())

	site.Resume()
	require.Equal(t, StateServing, site.State())

	// Resuming a site that isn't paused is a no-op.
	site.Resume()
	require.Equal(t, StateServing, site.State())
}

func TestAllowRevokePermission(t *testing.T) {
	priv := testPrivateKey(t, 0x0a)
	addr, err := priv.Address()
	require.NoError(t, err)

	site := NewSite(addr, t.TempDir(), nil)
	require.Empty(t, site.Permissions())

	site.AllowPermission("Notifications")
	require.Equal(t, []string{"Notifications"}, site.Permissions())

	site.RevokePermission("Notifications")
	require.Empty(t, site.Permissions())
}

func TestRangeDownloadAssemblesChunkedFile(t *testing.T) {
	priv := testPrivateKey(t, 0x02)
	addr, err := priv.Address()
	require.NoError(t, err)

	fullBody := bytes.Repeat([]byte{0xAB}, 3*rangeChunkSize)
	entry := zncontent.FileEntry{Size: int64(len(fullBody)), Sha512: sha512Truncated(fullBody)}

	site := NewSite(addr, t.TempDir(), nil)
	m := zncontent.NewManifest(addr)
	m.SetFile("data/big.bin", entry)
	require.NoError(t, m.Sign(priv))
	require.NoError(t, m.SignRoot(priv))
	site.replaceManifest(m)

	var requestCount int32
	peer := stubPeer(t, func(req zncodec.Request) (map[string]any, error) {
		if req.Cmd != "getFile" {
			return map[string]any{}, nil
		}
		atomic.AddInt32(&requestCount, 1)
		loc, _ := toInt64Test(req.Params["location"])
		end := loc + rangeChunkSize
		if end > int64(len(fullBody)) {
			end = int64(len(fullBody))
		}
		return map[string]any{
			"body":     fullBody[loc:end],
			"size":     int64(len(fullBody)),
			"location": loc,
		}, nil
	})
	site.AddPeer(peer.Address)
	site.peers[peer.Address.String()] = peer

	ok, err := site.NeedFile(context.Background(), "data/big.bin")
	require.NoError(t, err)
	require.True(t, ok)
	require.Equal(t, int32(3), atomic.LoadInt32(&requestCount))

	onDisk, err := site.readFile("data/big.bin")
	require.NoError(t, err)
	require.Equal(t, fullBody, onDisk)
}

func TestNeedFileCoalescesConcurrentCallers(t *testing.T) {
	priv := testPrivateKey(t, 0x03)
	addr, err := priv.Address()
	require.NoError(t, err)

	body := []byte("hello world")
	entry := zncontent.FileEntry{Size: int64(len(body)), Sha512: sha512Truncated(body)}

	site := NewSite(addr, t.TempDir(), nil)
	m := zncontent.NewManifest(addr)
	m.SetFile("index.html", entry)
	site.replaceManifest(m)

	var downloadCount int32
	peer := stubPeer(t, func(req zncodec.Request) (map[string]any, error) {
		if req.Cmd != "getFile" {
			return map[string]any{}, nil
		}
		atomic.AddInt32(&downloadCount, 1)
		time.Sleep(20 * time.Millisecond)
		return map[string]any{"body": body, "size": int64(len(body)), "location": int64(0)}, nil
	})
	site.peers[peer.Address.String()] = peer

	const callers = 8
	results := make(chan bool, callers)
	for i := 0; i < callers; i++ {
		go func() {
			ok, err := site.NeedFile(context.Background(), "index.html")
			require.NoError(t, err)
			results <- ok
		}()
	}
	for i := 0; i < callers; i++ {
		require.True(t, <-results)
	}
	require.Equal(t, int32(1), atomic.LoadInt32(&downloadCount))
}

func TestIntegrityFailureFallsOverToNextPeer(t *testing.T) {
	priv := testPrivateKey(t, 0x04)
	addr, err := priv.Address()
	require.NoError(t, err)

	good := []byte("correct bytes")
	entry := zncontent.FileEntry{Size: int64(len(good)), Sha512: sha512Truncated(good)}

	site := NewSite(addr, t.TempDir(), nil)
	m := zncontent.NewManifest(addr)
	m.SetFile("index.html", entry)
	site.replaceManifest(m)

	corruptPeer := stubPeer(t, func(req zncodec.Request) (map[string]any, error) {
		if req.Cmd != "getFile" {
			return map[string]any{}, nil
		}
		bad := []byte("corrupted!!!!")
		return map[string]any{"body": bad, "size": int64(len(bad)), "location": int64(0)}, nil
	})
	goodPeer := stubPeer(t, func(req zncodec.Request) (map[string]any, error) {
		if req.Cmd != "getFile" {
			return map[string]any{}, nil
		}
		return map[string]any{"body": good, "size": int64(len(good)), "location": int64(0)}, nil
	})
	// corruptPeer has higher reputation so it's tried first.
	corruptPeer.RecordSuccess()
	site.peers[corruptPeer.Address.String()] = corruptPeer
	goodPeer.Address = zncodec.PeerAddress{Network: "ipv4", Host: "127.0.0.2", Port: 15441}
	site.peers[goodPeer.Address.String()] = goodPeer

	startRep := corruptPeer.Reputation()
	ok, err := site.NeedFile(context.Background(), "index.html")
	require.NoError(t, err)
	require.True(t, ok)
	require.Less(t, corruptPeer.Reputation(), startRep)

	onDisk, err := site.readFile("index.html")
	require.NoError(t, err)
	require.Equal(t, good, onDisk)
}

func TestVerifyFilesReportsBadFilesClosure(t *testing.T) {
	priv := testPrivateKey(t, 0x05)
	addr, err := priv.Address()
	require.NoError(t, err)

	good := []byte("abc")
	entry := zncontent.FileEntry{Size: int64(len(good)), Sha512: sha512Truncated(good)}

	site := NewSite(addr, t.TempDir(), nil)
	m := zncontent.NewManifest(addr)
	m.SetFile("index.html", entry)
	require.NoError(t, m.Sign(priv))
	require.NoError(t, m.SignRoot(priv))
	site.replaceManifest(m)
	// Note: index.html was never written to disk, so verification must fail.

	failures, err := site.VerifyFiles(false)
	require.NoError(t, err)
	require.Contains(t, failures, "index.html")
	require.True(t, site.BadFiles().Contains("index.html"))

	peer := stubPeer(t, func(req zncodec.Request) (map[string]any, error) {
		if req.Cmd != "getFile" {
			return map[string]any{}, nil
		}
		return map[string]any{"body": good, "size": int64(len(good)), "location": int64(0)}, nil
	})
	site.peers[peer.Address.String()] = peer

	ok, err := site.NeedFile(context.Background(), "index.html")
	require.NoError(t, err)
	require.True(t, ok)
	require.False(t, site.BadFiles().Contains("index.html"))
}

func toInt64Test(v any) (int64, bool) {
	switch n := v.(type) {
	case int64:
		return n, true
	case int:
		return int64(n), true
	case uint64:
		return int64(n), true
	default:
		return 0, false
	}
}
