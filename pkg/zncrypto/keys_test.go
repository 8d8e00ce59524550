package zncrypto

import (
	"encoding/hex"
	"testing"

	"github.com/stretchr/testify/require"
)

func TestSignVerifyRoundTrip(t *testing.T) {
	seed, err := GenerateMasterSeed()
	require.NoError(t, err)
	priv, err := NewPrivateKeyFromSeed(seed[:])
	require.NoError(t, err)

	addr, err := priv.Address()
	require.NoError(t, err)

	digest := CanonicalDigest([]byte("hello manifest"))
	sig, err := priv.Sign(digest[:])
	require.NoError(t, err)
	require.Len(t, sig, 65)

	ok, err := Verify(addr, digest[:], sig)
	require.NoError(t, err)
	require.True(t, ok)

	// A signature over a different message must not verify.
	otherDigest := CanonicalDigest([]byte("tampered"))
	ok, err = Verify(addr, otherDigest[:], sig)
	require.NoError(t, err)
	require.False(t, ok)
}

func TestWIFRoundTrip(t *testing.T) {
	seed, err := GenerateMasterSeed()
	require.NoError(t, err)
	priv, err := NewPrivateKeyFromSeed(seed[:])
	require.NoError(t, err)

	wif, err := priv.WIF()
	require.NoError(t, err)

	recovered, err := PrivateKeyFromWIF(wif)
	require.NoError(t, err)

	addr1, err := priv.Address()
	require.NoError(t, err)
	addr2, err := recovered.Address()
	require.NoError(t, err)
	require.Equal(t, addr1.String(), addr2.String())
}

func TestDeterministicChildDerivation(t *testing.T) {
	seed, err := GenerateMasterSeed()
	require.NoError(t, err)

	m1, err := DeriveMasterKey(seed[:])
	require.NoError(t, err)
	m2, err := DeriveMasterKey(seed[:])
	require.NoError(t, err)

	c1, err := m1.Child(42)
	require.NoError(t, err)
	c2, err := m2.Child(42)
	require.NoError(t, err)

	a1, err := c1.Address()
	require.NoError(t, err)
	a2, err := c2.Address()
	require.NoError(t, err)
	require.Equal(t, a1.String(), a2.String())

	c3, err := m1.Child(43)
	require.NoError(t, err)
	a3, err := c3.Address()
	require.NoError(t, err)
	require.NotEqual(t, a1.String(), a3.String())
}

// TestChildDerivationVector pins the hardened BIP32 derivation against a
// fixed seed, auth index, and expected auth key pair so the node recovers
// the same site identities other implementations recover from the same
// master seed.
func TestChildDerivationVector(t *testing.T) {
	seed, err := hex.DecodeString("e3b0c44298fc1c149afbf4c8996fb92427ae41e4649b934ca495991b7852b855")
	require.NoError(t, err)

	const authIndex = 45168996
	const wantAuthAddress = "1M6UT3GYmPhMYShDKYsLaFehZ5pmc83Mso"
	const wantAuthPrivkey = "5J3HUZpcNuEMmFMec9haxPJ58GiEHruqYDLtMGtFAumaLMr5dCV"

	master, err := DeriveMasterKey(seed)
	require.NoError(t, err)

	priv, err := master.Child(authIndex)
	require.NoError(t, err)

	addr, err := priv.Address()
	require.NoError(t, err)
	require.Equal(t, wantAuthAddress, addr.String())

	wif, err := priv.WIF()
	require.NoError(t, err)
	require.Equal(t, wantAuthPrivkey, wif)
}
