package zncodec

import (
	"bytes"
	"encoding/json"
	"fmt"
)

// signFieldsToStrip are removed from a manifest document before it is
// canonicalized for signing or verification.
var signFieldsToStrip = []string{"sign", "signs", "signers_sign"}

// CanonicalizeForSigning copies doc, strips the sign fields, and serializes
// with sorted keys and no extraneous whitespace. encoding/json already
// sorts map[string]any keys lexicographically when marshaling, which gives
// us the "sorted keys" requirement for free; Compact removes any
// incidental whitespace a caller's input might carry.
func CanonicalizeForSigning(doc map[string]any) ([]byte, error) {
	clean := make(map[string]any, len(doc))
	for k, v := range doc {
		clean[k] = v
	}
	for _, f := range signFieldsToStrip {
		delete(clean, f)
	}
	raw, err := json.Marshal(clean)
	if err != nil {
		return nil, fmt.Errorf("zncodec: canonicalize: %w", err)
	}
	var buf bytes.Buffer
	if err := json.Compact(&buf, raw); err != nil {
		return nil, fmt.Errorf("zncodec: compact: %w", err)
	}
	return buf.Bytes(), nil
}
