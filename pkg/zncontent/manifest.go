// Package zncontent implements the CONTENT component: the site manifest
// ("content.json" in upstream terms) as a canonically-signed JSON document,
// its file-digest verification rules, and signer-set validation. Grounded
// on core/content_node.go's ContentMeta (a content-addressed manifest of
// per-file metadata) for the overall "manifest describing a set of files
// plus their digests" shape, generalized to cover multi-signer delegation
// and nested include manifests.
package zncontent

import (
	"crypto/sha512"
	"encoding/base64"
	"encoding/hex"
	"encoding/json"
	"errors"
	"fmt"
	"sort"
	"strconv"
	"strings"

	"zeronode/pkg/zncodec"
	"zeronode/pkg/zncrypto"
)

// ErrReplay is returned when a candidate manifest's modified timestamp is
// not strictly greater than the previously accepted one.
var ErrReplay = errors.New("zncontent: manifest is not newer than the accepted one")

// ErrFileInvalid is returned when a file's on-disk contents don't match its
// manifest entry (size or digest mismatch).
var ErrFileInvalid = errors.New("zncontent: file does not match manifest entry")

// ErrInsufficientSigners is returned when fewer than signs_required allowed
// signers are present among signs.
var ErrInsufficientSigners = errors.New("zncontent: insufficient valid signers")

// FileEntry is one files/files_optional record: declared size and a
// SHA-512 digest truncated to 32 bytes, hex-encoded (64 hex characters).
type FileEntry struct {
	Size   int64  `json:"size"`
	Sha512 string `json:"sha512"`
}

// Manifest is the "Content" entity: a structured JSON value type where
// most free-form fields (title, description, favicon, viewport, theme,
// ...) pass through untouched in doc, while the fields canonicalization
// and signing actually touch are exposed through typed accessors so
// callers never hand-roll JSON key access.
type Manifest struct {
	doc map[string]any
}

// NewManifest starts a fresh manifest for address with signs_required=1
// and an empty files map.
func NewManifest(address zncrypto.Address) *Manifest {
	return &Manifest{doc: map[string]any{
		"address":        address.String(),
		"inner_path":     "content.json",
		"modified":       float64(0),
		"signs_required": float64(1),
		"files":          map[string]any{},
		"files_optional": map[string]any{},
		"includes":       map[string]any{},
	}}
}

// ParseManifest decodes a content.json document.
func ParseManifest(raw []byte) (*Manifest, error) {
	var doc map[string]any
	if err := json.Unmarshal(raw, &doc); err != nil {
		return nil, fmt.Errorf("zncontent: parse manifest: %w", err)
	}
	return &Manifest{doc: doc}, nil
}

// Marshal serializes the manifest, signatures and all, for persistence.
func (m *Manifest) Marshal() ([]byte, error) {
	raw, err := json.MarshalIndent(m.doc, "", "\t")
	if err != nil {
		return nil, fmt.Errorf("zncontent: marshal manifest: %w", err)
	}
	return raw, nil
}

// Address returns the manifest's declared site address.
func (m *Manifest) Address() (zncrypto.Address, error) {
	s, _ := m.doc["address"].(string)
	return zncrypto.ParseAddress(s)
}

// InnerPath returns the manifest's own inner_path ("content.json" at the
// site root, or "data/users/.../content.json" for included manifests).
func (m *Manifest) InnerPath() string {
	s, _ := m.doc["inner_path"].(string)
	return s
}

// Modified returns the manifest's modified timestamp.
func (m *Manifest) Modified() float64 {
	return asFloat(m.doc["modified"])
}

// SetModified updates the modified timestamp, used before re-signing.
func (m *Manifest) SetModified(ts float64) {
	m.doc["modified"] = ts
}

// SignsRequired returns the minimum number of valid signers needed.
func (m *Manifest) SignsRequired() int {
	return int(asFloat(m.doc["signs_required"]))
}

// Signs returns the address → base64-signature map.
func (m *Manifest) Signs() map[string]string {
	out := make(map[string]string)
	raw, _ := m.doc["signs"].(map[string]any)
	for k, v := range raw {
		if s, ok := v.(string); ok {
			out[k] = s
		}
	}
	return out
}

// SignersSign returns the root-key signature over "{signs_required}:{signers}".
func (m *Manifest) SignersSign() string {
	s, _ := m.doc["signers_sign"].(string)
	return s
}

// Files returns the required files map.
func (m *Manifest) Files() map[string]FileEntry {
	return decodeFileMap(m.doc["files"])
}

// FilesOptional returns the optional files map.
func (m *Manifest) FilesOptional() map[string]FileEntry {
	return decodeFileMap(m.doc["files_optional"])
}

// SetFile records/overwrites a files entry and marks it for re-signing by
// the caller (SetFile does not itself bump modified/re-sign).
func (m *Manifest) SetFile(innerPath string, entry FileEntry) {
	files, _ := m.doc["files"].(map[string]any)
	if files == nil {
		files = map[string]any{}
	}
	files[innerPath] = map[string]any{"size": float64(entry.Size), "sha512": entry.Sha512}
	m.doc["files"] = files
}

// Includes returns the inner_paths of manifests this one includes
// (sub-site or nested-permission content.json files).
func (m *Manifest) Includes() []string {
	raw, _ := m.doc["includes"].(map[string]any)
	out := make([]string, 0, len(raw))
	for k := range raw {
		out = append(out, k)
	}
	sort.Strings(out)
	return out
}

// canonicalize strips the sign fields and serializes with sorted keys.
func (m *Manifest) canonicalize() ([]byte, error) {
	return zncodec.CanonicalizeForSigning(m.doc)
}

// Sign computes the ECDSA-secp256k1 signature over the canonicalized
// document and inserts it into signs, keyed by the signing key's address.
func (m *Manifest) Sign(priv *zncrypto.PrivateKey) error {
	canon, err := m.canonicalize()
	if err != nil {
		return err
	}
	digest := zncrypto.CanonicalDigest(canon)
	sig, err := priv.Sign(digest[:])
	if err != nil {
		return fmt.Errorf("zncontent: sign: %w", err)
	}
	addr, err := priv.Address()
	if err != nil {
		return fmt.Errorf("zncontent: sign: %w", err)
	}

	signs, _ := m.doc["signs"].(map[string]any)
	if signs == nil {
		signs = map[string]any{}
	}
	signs[addr.String()] = base64.StdEncoding.EncodeToString(sig)
	m.doc["signs"] = signs
	return nil
}

// SignRoot computes signers_sign = sign("{signs_required}:{comma_joined_signers}")
// using the site root private key.
func (m *Manifest) SignRoot(rootPriv *zncrypto.PrivateKey) error {
	signers := make([]string, 0, len(m.Signs()))
	for addr := range m.Signs() {
		signers = append(signers, addr)
	}
	sort.Strings(signers)

	msg := fmt.Sprintf("%d:%s", m.SignsRequired(), strings.Join(signers, ","))
	digest := zncrypto.CanonicalDigest([]byte(msg))
	sig, err := rootPriv.Sign(digest[:])
	if err != nil {
		return fmt.Errorf("zncontent: sign root: %w", err)
	}
	m.doc["signers_sign"] = base64.StdEncoding.EncodeToString(sig)
	return nil
}

// VerifySignatures re-canonicalizes the document and checks every (pubkey,
// signature) pair in signs, returning the subset of allowed addresses
// (per allowedSigners) whose signature verified. The caller compares
// len(result) against SignsRequired() ("at least
// signs_required signers must be among an allowed set").
func (m *Manifest) VerifySignatures(allowedSigners map[string]bool) ([]string, error) {
	canon, err := m.canonicalize()
	if err != nil {
		return nil, err
	}
	digest := zncrypto.CanonicalDigest(canon)

	var valid []string
	for addrStr, sigB64 := range m.Signs() {
		if allowedSigners != nil && !allowedSigners[addrStr] {
			continue
		}
		addr, err := zncrypto.ParseAddress(addrStr)
		if err != nil {
			continue
		}
		sig, err := base64.StdEncoding.DecodeString(sigB64)
		if err != nil {
			continue
		}
		ok, err := zncrypto.Verify(addr, digest[:], sig)
		if err == nil && ok {
			valid = append(valid, addrStr)
		}
	}
	sort.Strings(valid)
	return valid, nil
}

// VerifyAgainstPrevious enforces the anti-replay rule: modified must be
// strictly greater than previous's modified.
func VerifyAgainstPrevious(candidate, previous *Manifest) error {
	if previous == nil {
		return nil
	}
	if candidate.Modified() <= previous.Modified() {
		return ErrReplay
	}
	return nil
}

// VerifyFile checks that data (the full on-disk contents of a file)
// matches entry's declared size and truncated SHA-512 digest.
func VerifyFile(data []byte, entry FileEntry) error {
	if int64(len(data)) != entry.Size {
		return fmt.Errorf("%w: size %d, expected %d", ErrFileInvalid, len(data), entry.Size)
	}
	sum := sha512.Sum512(data)
	got := hex.EncodeToString(sum[:32])
	if got != entry.Sha512 {
		return fmt.Errorf("%w: digest mismatch", ErrFileInvalid)
	}
	return nil
}

func decodeFileMap(v any) map[string]FileEntry {
	raw, _ := v.(map[string]any)
	out := make(map[string]FileEntry, len(raw))
	for path, rv := range raw {
		entry, ok := rv.(map[string]any)
		if !ok {
			continue
		}
		out[path] = FileEntry{
			Size:   int64(asFloat(entry["size"])),
			Sha512: fmt.Sprint(entry["sha512"]),
		}
	}
	return out
}

func asFloat(v any) float64 {
	switch n := v.(type) {
	case float64:
		return n
	case int64:
		return float64(n)
	case int:
		return float64(n)
	case string:
		f, _ := strconv.ParseFloat(n, 64)
		return f
	default:
		return 0
	}
}
