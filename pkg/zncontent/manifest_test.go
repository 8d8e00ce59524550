package zncontent

import (
	"crypto/sha512"
	"encoding/hex"
	"testing"

	"github.com/stretchr/testify/require"
	"zeronode/pkg/zncrypto"
)

func newTestKey(t *testing.T) *zncrypto.PrivateKey {
	t.Helper()
	seed, err := zncrypto.GenerateMasterSeed()
	require.NoError(t, err)
	priv, err := zncrypto.NewPrivateKeyFromSeed(seed[:])
	require.NoError(t, err)
	return priv
}

func TestSignAndVerifyRoundTrip(t *testing.T) {
	priv := newTestKey(t)
	addr, err := priv.Address()
	require.NoError(t, err)

	m := NewManifest(addr)
	m.SetFile("index.html", FileEntry{Size: 10, Sha512: "deadbeef"})
	m.SetModified(1000)

	require.NoError(t, m.Sign(priv))
	require.NoError(t, m.SignRoot(priv))

	allowed := map[string]bool{addr.String(): true}
	valid, err := m.VerifySignatures(allowed)
	require.NoError(t, err)
	require.Contains(t, valid, addr.String())
	require.GreaterOrEqual(t, len(valid), m.SignsRequired())
}

func TestVerifySignaturesRejectsTamperedDocument(t *testing.T) {
	priv := newTestKey(t)
	addr, err := priv.Address()
	require.NoError(t, err)

	m := NewManifest(addr)
	m.SetFile("index.html", FileEntry{Size: 10, Sha512: "deadbeef"})
	require.NoError(t, m.Sign(priv))

	// Tamper with the document after signing.
	m.SetFile("index.html", FileEntry{Size: 999, Sha512: "cafebabe"})

	valid, err := m.VerifySignatures(map[string]bool{addr.String(): true})
	require.NoError(t, err)
	require.NotContains(t, valid, addr.String())
}

func TestVerifyAgainstPreviousRejectsReplay(t *testing.T) {
	priv := newTestKey(t)
	addr, err := priv.Address()
	require.NoError(t, err)

	older := NewManifest(addr)
	older.SetModified(1000)
	newer := NewManifest(addr)
	newer.SetModified(500)

	err = VerifyAgainstPrevious(newer, older)
	require.ErrorIs(t, err, ErrReplay)

	newer.SetModified(1500)
	require.NoError(t, VerifyAgainstPrevious(newer, older))
}

func TestVerifyFileChecksSizeAndDigest(t *testing.T) {
	data := []byte("hello world")
	sum := sha512.Sum512(data)
	digest := hex.EncodeToString(sum[:32])

	require.NoError(t, VerifyFile(data, FileEntry{Size: int64(len(data)), Sha512: digest}))
	require.ErrorIs(t, VerifyFile(append(data, 'x'), FileEntry{Size: int64(len(data)), Sha512: digest}), ErrFileInvalid)
	require.ErrorIs(t, VerifyFile(data, FileEntry{Size: int64(len(data)), Sha512: "0000"}), ErrFileInvalid)
}
