package zntracker

import (
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/stretchr/testify/require"
	"zeronode/pkg/zncodec"
)

func TestHTTPClientAnnounceRoundTrip(t *testing.T) {
	peers := []byte{1, 2, 3, 4, 0x1f, 0x90}
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		require.Equal(t, "1", r.URL.Query().Get("compact"))
		raw, err := zncodec.EncodeBencode(map[string]any{
			"interval": 1800,
			"peers":    string(peers),
		})
		require.NoError(t, err)
		_, _ = w.Write(raw)
	}))
	defer srv.Close()

	client := NewHTTPClient()
	var infoHash, peerID [20]byte
	got, err := client.Announce(srv.URL+"/announce", infoHash, peerID, 15441)
	require.NoError(t, err)
	require.Len(t, got, 1)
	require.Equal(t, "1.2.3.4", got[0].Host)
	require.Equal(t, uint16(0x1f90), got[0].Port)
}

func TestHTTPClientAnnounceFailureReason(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		raw, err := zncodec.EncodeBencode(map[string]any{"failure reason": "not registered"})
		require.NoError(t, err)
		_, _ = w.Write(raw)
	}))
	defer srv.Close()

	client := NewHTTPClient()
	var infoHash, peerID [20]byte
	_, err := client.Announce(srv.URL+"/announce", infoHash, peerID, 15441)
	require.Error(t, err)
	require.ErrorIs(t, err, ErrTrackerUnreachable)
}
