package zncrypto

import (
	"encoding/hex"
	"testing"

	"github.com/stretchr/testify/require"
)

func TestParseAddressRejectsMalformed(t *testing.T) {
	_, err := ParseAddress("0short")
	require.ErrorIs(t, err, ErrAddressMalformed)

	_, err = ParseAddress("2HELLoE3sFD9569CLCbHEAVqvqV7U2Ri9d")
	require.ErrorIs(t, err, ErrAddressMalformed)

	_, err = ParseAddress("1HELLoE3sFD9569CLCbHEAVqvqV7U2Ri9dXXXXXXXXX")
	require.ErrorIs(t, err, ErrAddressMalformed)
}

func TestParseAddressAcceptsTestPseudoAddress(t *testing.T) {
	a, err := ParseAddress("Test")
	require.NoError(t, err)
	require.Equal(t, "Test", a.Short())
}

func TestAddressDigestsAndShort(t *testing.T) {
	a, err := ParseAddress("1HELLoE3sFD9569CLCbHEAVqvqV7U2Ri9d")
	require.NoError(t, err)

	sha256Sum := a.SHA256()
	require.Equal(t, "8eefb2818cba2cc1a8d7ac407c3155ef4fdc243204a4c69cf84e9c6988351f38", hex.EncodeToString(sha256Sum[:]))

	sha1Sum := a.SHA1()
	require.Equal(t, "5ecb750e8b8b6cfcc4288a6b94e8fca2175a278c", hex.EncodeToString(sha1Sum[:]))

	require.Equal(t, "1HELLo...2Ri9d", a.Short())
}

func TestInfoHashVector(t *testing.T) {
	a, err := ParseAddress("15UYrA7aXr2Nto1Gg4yWXpY3EAJwafMTNk")
	require.NoError(t, err)
	h := InfoHash(a)
	require.Equal(t, "29d191d7caf351ba054a9cb38e8d8477c19bdd1c", hex.EncodeToString(h[:]))
}

func TestGetAddressAuthIndexVector(t *testing.T) {
	a, err := ParseAddress("1HELLoE3sFD9569CLCbHEAVqvqV7U2Ri9d")
	require.NoError(t, err)
	require.Equal(t, uint32(45168996), GetAddressAuthIndex(a))
}
