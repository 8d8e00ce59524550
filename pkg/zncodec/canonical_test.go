package zncodec

import (
	"testing"

	"github.com/stretchr/testify/require"
)

func TestCanonicalizeForSigningStripsSignFields(t *testing.T) {
	doc := map[string]any{
		"address":       "1Hello",
		"modified":      1.0,
		"signs":         map[string]any{"1Hello": "sig"},
		"signers_sign":  "sig2",
		"signs_required": 1.0,
	}
	out, err := CanonicalizeForSigning(doc)
	require.NoError(t, err)
	require.NotContains(t, string(out), `"signs":`)
	require.NotContains(t, string(out), "signers_sign")
	require.Contains(t, string(out), `"address":"1Hello"`)
}

func TestCanonicalizeForSigningIsDeterministic(t *testing.T) {
	doc := map[string]any{"b": 2.0, "a": 1.0, "c": map[string]any{"z": 1.0, "y": 2.0}}
	out1, err := CanonicalizeForSigning(doc)
	require.NoError(t, err)
	out2, err := CanonicalizeForSigning(doc)
	require.NoError(t, err)
	require.Equal(t, out1, out2)
	// keys sorted: a, b, c
	require.Equal(t, `{"a":1,"b":2,"c":{"y":2,"z":1}}`, string(out1))
}
