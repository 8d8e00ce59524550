package zncodec

import (
	"testing"

	"github.com/stretchr/testify/require"
)

func TestCompactIPv4PeersRoundTrip(t *testing.T) {
	peers := []PeerAddress{
		{Network: "ipv4", Host: "127.0.0.1", Port: 15441},
		{Network: "ipv4", Host: "8.8.8.8", Port: 80},
	}
	raw, err := EncodeCompactIPv4Peers(peers)
	require.NoError(t, err)
	require.Len(t, raw, 12)

	decoded, err := DecodeCompactIPv4Peers(raw)
	require.NoError(t, err)
	require.Equal(t, peers, decoded)
}

func TestDecodeCompactIPv4PeersRejectsBadLength(t *testing.T) {
	_, err := DecodeCompactIPv4Peers([]byte{1, 2, 3})
	require.Error(t, err)
}

func TestPeerAddressString(t *testing.T) {
	require.Equal(t, "127.0.0.1:80", PeerAddress{Network: "ipv4", Host: "127.0.0.1", Port: 80}.String())
	require.Equal(t, "[::1]:80", PeerAddress{Network: "ipv6", Host: "::1", Port: 80}.String())
}
