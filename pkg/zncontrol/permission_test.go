package zncontrol

import (
	"testing"

	"github.com/stretchr/testify/require"
)

func TestAuthorizeDeniesPrivilegedForNonAdmin(t *testing.T) {
	err := Authorize("siteDelete", PermissionSet{Admin: false})
	var pe *PermissionError
	require.ErrorAs(t, err, &pe)
}

func TestAuthorizeAllowsPrivilegedForAdmin(t *testing.T) {
	require.NoError(t, Authorize("siteDelete", PermissionSet{Admin: true}))
}

func TestAuthorizeAllowsUnprivilegedRegardless(t *testing.T) {
	require.NoError(t, Authorize("ping", PermissionSet{Admin: false}))
}

func TestAuthorizeDBQueryRejectsNonSelect(t *testing.T) {
	require.Error(t, AuthorizeDBQuery("DELETE FROM users"))
	require.Error(t, AuthorizeDBQuery(""))
	require.NoError(t, AuthorizeDBQuery("select * from files"))
	require.NoError(t, AuthorizeDBQuery("SELECT * FROM files WHERE 1=1"))
}

func TestNonceIssuerIsOneShot(t *testing.T) {
	issuer := NewNonceIssuer()
	nonce := issuer.Issue()

	require.NoError(t, issuer.Consume(nonce))
	require.ErrorIs(t, issuer.Consume(nonce), ErrNonceUnknown)
}

func TestNonceIssuerRejectsUnknown(t *testing.T) {
	issuer := NewNonceIssuer()
	require.ErrorIs(t, issuer.Consume("never-issued"), ErrNonceUnknown)
}
