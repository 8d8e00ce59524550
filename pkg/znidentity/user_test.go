package znidentity

import (
	"encoding/hex"
	"testing"

	"github.com/stretchr/testify/require"
	"zeronode/pkg/zncrypto"
)

func TestGetSiteDataIsDeterministicAndIdempotent(t *testing.T) {
	seed, err := zncrypto.GenerateMasterSeed()
	require.NoError(t, err)

	u1, err := UserFromSeed(seed)
	require.NoError(t, err)
	u2, err := UserFromSeed(seed)
	require.NoError(t, err)

	site, err := zncrypto.ParseAddress("1HB5XMLmzFVj8ALj6mfBsbifRoD4miY36v")
	require.NoError(t, err)

	sd1, err := u1.GetSiteData(site, true)
	require.NoError(t, err)
	sd2, err := u2.GetSiteData(site, true)
	require.NoError(t, err)

	require.Equal(t, sd1.AuthPair.AuthAddress, sd2.AuthPair.AuthAddress)

	sd1Again, err := u1.GetSiteData(site, false)
	require.NoError(t, err)
	require.Same(t, sd1, sd1Again)
}

// TestGetSiteDataDerivesKnownAuthPair pins GetSiteData's end-to-end
// derivation (master seed -> auth index -> hardened child) against a fixed
// seed and site address so recovered identities match what other
// implementations recover from the same master seed.
func TestGetSiteDataDerivesKnownAuthPair(t *testing.T) {
	rawSeed, err := hex.DecodeString("e3b0c44298fc1c149afbf4c8996fb92427ae41e4649b934ca495991b7852b855")
	require.NoError(t, err)
	var seed [32]byte
	copy(seed[:], rawSeed)

	u, err := UserFromSeed(seed)
	require.NoError(t, err)

	site, err := zncrypto.ParseAddress("1HELLoE3sFD9569CLCbHEAVqvqV7U2Ri9d")
	require.NoError(t, err)

	sd, err := u.GetSiteData(site, true)
	require.NoError(t, err)

	require.Equal(t, "1M6UT3GYmPhMYShDKYsLaFehZ5pmc83Mso", sd.AuthPair.AuthAddress.String())

	wif, err := sd.AuthPair.AuthPrivateKey.WIF()
	require.NoError(t, err)
	require.Equal(t, "5J3HUZpcNuEMmFMec9haxPJ58GiEHruqYDLtMGtFAumaLMr5dCV", wif)
}

func TestGetSiteDataUnknownWithoutCreate(t *testing.T) {
	u, err := NewUser()
	require.NoError(t, err)
	site, err := zncrypto.ParseAddress("1HB5XMLmzFVj8ALj6mfBsbifRoD4miY36v")
	require.NoError(t, err)

	_, err = u.GetSiteData(site, false)
	require.ErrorIs(t, err, ErrSiteUnknown)
}

func TestGetNewSiteDataProducesOwnedSite(t *testing.T) {
	u, err := NewUser()
	require.NoError(t, err)

	sd, err := u.GetNewSiteData()
	require.NoError(t, err)
	require.NotNil(t, sd.PrivateKey)
	require.NotNil(t, sd.AuthPair)

	derivedAddr, err := sd.PrivateKey.Address()
	require.NoError(t, err)
	require.Equal(t, sd.SiteAddress, derivedAddr)
}

func TestAddCertRequiresKnownAuthAddress(t *testing.T) {
	u, err := NewUser()
	require.NoError(t, err)

	unknown, err := zncrypto.ParseAddress("1HB5XMLmzFVj8ALj6mfBsbifRoD4miY36v")
	require.NoError(t, err)
	require.False(t, u.AddCert(unknown, "example.bit", "web", "alice", []byte("sig")))

	site, err := zncrypto.ParseAddress("19YCgsK9UobFp9vBMBJTqmnzcm8hvX7LnH")
	require.NoError(t, err)
	sd, err := u.GetSiteData(site, true)
	require.NoError(t, err)

	require.True(t, u.AddCert(sd.AuthPair.AuthAddress, "example.bit", "web", "alice", []byte("sig")))
	require.NoError(t, u.SetCert(site, "example.bit"))

	priv, err := u.GetAuthPrivkey(site, false)
	require.NoError(t, err)
	require.Equal(t, sd.AuthPair.AuthPrivateKey, priv)
}

func TestSiteAndGlobalSettingsRoundTrip(t *testing.T) {
	u, err := NewUser()
	require.NoError(t, err)

	site, err := zncrypto.ParseAddress("1HB5XMLmzFVj8ALj6mfBsbifRoD4miY36v")
	require.NoError(t, err)

	got, err := u.SiteSettings(site)
	require.NoError(t, err)
	require.Empty(t, got)

	require.NoError(t, u.SetSiteSettings(site, map[string]any{"permissions": []string{"Notifications"}}))
	got, err = u.SiteSettings(site)
	require.NoError(t, err)
	require.Equal(t, []string{"Notifications"}, got["permissions"])

	require.Empty(t, u.GlobalSettings())
	u.SetGlobalSetting("theme", "dark")
	require.Equal(t, "dark", u.GlobalSettings()["theme"])
}

func TestCertsReturnsAcceptedCertificates(t *testing.T) {
	u, err := NewUser()
	require.NoError(t, err)

	site, err := zncrypto.ParseAddress("19YCgsK9UobFp9vBMBJTqmnzcm8hvX7LnH")
	require.NoError(t, err)
	sd, err := u.GetSiteData(site, true)
	require.NoError(t, err)

	require.True(t, u.AddCert(sd.AuthPair.AuthAddress, "example.bit", "web", "alice", []byte("sig")))
	certs := u.Certs()
	require.Contains(t, certs, "example.bit")
	require.Equal(t, "alice", certs["example.bit"].AuthUserName)
}

func TestAddCertRejectsDomainConflict(t *testing.T) {
	u, err := NewUser()
	require.NoError(t, err)

	siteA, err := zncrypto.ParseAddress("19YCgsK9UobFp9vBMBJTqmnzcm8hvX7LnH")
	require.NoError(t, err)
	sdA, err := u.GetSiteData(siteA, true)
	require.NoError(t, err)
	require.True(t, u.AddCert(sdA.AuthPair.AuthAddress, "example.bit", "web", "alice", []byte("sig")))

	siteB, err := zncrypto.ParseAddress("1HB5XMLmzFVj8ALj6mfBsbifRoD4miY36v")
	require.NoError(t, err)
	sdB, err := u.GetSiteData(siteB, true)
	require.NoError(t, err)
	require.False(t, u.AddCert(sdB.AuthPair.AuthAddress, "example.bit", "web", "bob", []byte("sig2")))
}
