package main

import (
	"testing"

	"github.com/stretchr/testify/require"
)

func TestParsePeerAddressIPv4(t *testing.T) {
	pa, err := parsePeerAddress("203.0.113.5:15441")
	require.NoError(t, err)
	require.Equal(t, "ipv4", pa.Network)
	require.Equal(t, "203.0.113.5", pa.Host)
	require.Equal(t, uint16(15441), pa.Port)
}

func TestParsePeerAddressIPv6(t *testing.T) {
	pa, err := parsePeerAddress("[2001:db8::1]:15441")
	require.NoError(t, err)
	require.Equal(t, "ipv6", pa.Network)
	require.Equal(t, "2001:db8::1", pa.Host)
}

func TestParsePeerAddressRejectsMissingPort(t *testing.T) {
	_, err := parsePeerAddress("203.0.113.5")
	require.Error(t, err)
}
