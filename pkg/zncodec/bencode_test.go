package zncodec

import (
	"testing"

	"github.com/stretchr/testify/require"
)

func TestTrackerAnnounceResponseRoundTrip(t *testing.T) {
	raw, err := EncodeBencode(map[string]any{
		"interval": 1800,
		"peers":    string([]byte{127, 0, 0, 1, 0x3c, 0x51}),
	})
	require.NoError(t, err)

	resp, err := DecodeTrackerAnnounceResponse(raw)
	require.NoError(t, err)
	require.Equal(t, 1800, resp.Interval)
	require.Equal(t, []byte{127, 0, 0, 1, 0x3c, 0x51}, resp.Peers)
}

func TestTrackerAnnounceFailureReason(t *testing.T) {
	raw, err := EncodeBencode(map[string]any{"failure reason": "not registered"})
	require.NoError(t, err)

	resp, err := DecodeTrackerAnnounceResponse(raw)
	require.NoError(t, err)
	require.Equal(t, "not registered", resp.FailureReason)
}
