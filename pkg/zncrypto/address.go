// Package zncrypto implements the CRYPTO component: Bitcoin-style addresses,
// digest helpers, secp256k1 signing, and BIP32-like deterministic key
// derivation used to seed per-site identities from a user master seed.
package zncrypto

import (
	"crypto/sha1"
	"crypto/sha256"
	"errors"
	"fmt"
	"math/big"
)

// ErrAddressMalformed is returned when a string does not parse as a valid Address.
var ErrAddressMalformed = errors.New("zncrypto: address malformed")

// TestAddress is the pseudo-address the upstream implementation tolerates
// during development. See DESIGN.md for the decision on whether it is
// accepted here.
const TestAddress = "Test"

// Address is a Base58 Bitcoin-style public key hash, 33-34 characters,
// beginning with '1'.
type Address struct {
	s string
}

// ParseAddress validates and wraps a Base58 address string.
func ParseAddress(s string) (Address, error) {
	if s == TestAddress {
		return Address{s: s}, nil
	}
	if len(s) < 33 || len(s) > 34 {
		return Address{}, fmt.Errorf("%w: length %d", ErrAddressMalformed, len(s))
	}
	if s[0] != '1' {
		return Address{}, fmt.Errorf("%w: must start with '1'", ErrAddressMalformed)
	}
	for _, r := range s {
		if !isBase58Rune(r) {
			return Address{}, fmt.Errorf("%w: non-base58 character %q", ErrAddressMalformed, r)
		}
	}
	return Address{s: s}, nil
}

func isBase58Rune(r rune) bool {
	switch r {
	case '0', 'O', 'I', 'l':
		return false
	}
	return (r >= '1' && r <= '9') || (r >= 'A' && r <= 'Z') || (r >= 'a' && r <= 'z')
}

// String returns the Base58 address text.
func (a Address) String() string { return a.s }

// IsZero reports whether the address was never set.
func (a Address) IsZero() bool { return a.s == "" }

// SHA256 returns SHA-256(ASCII address).
func (a Address) SHA256() [32]byte { return sha256.Sum256([]byte(a.s)) }

// SHA1 returns SHA-1(ASCII address), used as a BitTorrent info_hash input.
func (a Address) SHA1() [20]byte { return sha1.Sum([]byte(a.s)) }

// Short returns the first 6 and last 5 characters joined by an ellipsis,
// e.g. "1HELLo...2Ri9d". The Test pseudo-address is returned unshortened.
func (a Address) Short() string {
	if a.s == TestAddress {
		return a.s
	}
	if len(a.s) <= 11 {
		return a.s
	}
	return a.s[:6] + "..." + a.s[len(a.s)-5:]
}

// InfoHash computes the BitTorrent tracker key for a site: SHA-1 of the
// ASCII site address, 20 bytes.
func InfoHash(addr Address) [20]byte { return addr.SHA1() }

// GetAddressAuthIndex returns a deterministic 32-bit derivation index for an
// address: interpret the ASCII bytes as a big-endian integer and reduce
// modulo 10^8. This seeds AuthPair derivation so a user always recovers the
// same key for a site from the same master seed.
func GetAddressAuthIndex(addr Address) uint32 {
	n := new(big.Int).SetBytes([]byte(addr.s))
	mod := big.NewInt(100_000_000)
	n.Mod(n, mod)
	return uint32(n.Uint64())
}
