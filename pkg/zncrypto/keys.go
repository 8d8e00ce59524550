package zncrypto

import (
	"crypto/rand"
	"crypto/sha256"
	"errors"
	"fmt"

	"github.com/btcsuite/btcd/btcec/v2"
	"github.com/btcsuite/btcd/btcec/v2/ecdsa"
	"github.com/btcsuite/btcd/btcutil"
	"github.com/btcsuite/btcd/btcutil/hdkeychain"
	"github.com/btcsuite/btcd/chaincfg"
)

// ErrPrivateKeyInvalid is returned for malformed WIF strings or out-of-range scalars.
var ErrPrivateKeyInvalid = errors.New("zncrypto: private key invalid")

// ErrSignatureInvalid is returned when an ECDSA signature fails verification.
var ErrSignatureInvalid = errors.New("zncrypto: signature invalid")

// PrivateKey wraps a secp256k1 scalar along with its WIF encoding.
type PrivateKey struct {
	key *btcec.PrivateKey
}

// NewPrivateKeyFromSeed builds a PrivateKey from raw 32-byte scalar material,
// reducing into range if the high bit would otherwise overflow the curve order.
func NewPrivateKeyFromSeed(seed []byte) (*PrivateKey, error) {
	if len(seed) != 32 {
		return nil, fmt.Errorf("%w: seed must be 32 bytes, got %d", ErrPrivateKeyInvalid, len(seed))
	}
	priv, _ := btcec.PrivKeyFromBytes(seed)
	if priv == nil {
		return nil, ErrPrivateKeyInvalid
	}
	return &PrivateKey{key: priv}, nil
}

// GenerateMasterSeed returns 32 bytes of CSPRNG material for a new user.
func GenerateMasterSeed() ([32]byte, error) {
	var seed [32]byte
	if _, err := rand.Read(seed[:]); err != nil {
		return seed, err
	}
	return seed, nil
}

// WIF returns the Wallet-Import-Format encoding (compressed, mainnet) of the key.
func (p *PrivateKey) WIF() (string, error) {
	wif, err := btcutil.NewWIF(p.key, &chaincfg.MainNetParams, true)
	if err != nil {
		return "", fmt.Errorf("%w: %v", ErrPrivateKeyInvalid, err)
	}
	return wif.String(), nil
}

// PrivateKeyFromWIF decodes a WIF-encoded private key.
func PrivateKeyFromWIF(s string) (*PrivateKey, error) {
	wif, err := btcutil.DecodeWIF(s)
	if err != nil {
		return nil, fmt.Errorf("%w: %v", ErrPrivateKeyInvalid, err)
	}
	return &PrivateKey{key: wif.PrivKey}, nil
}

// Address derives the Base58Check pubkey-hash address for this key.
func (p *PrivateKey) Address() (Address, error) {
	pub := p.key.PubKey()
	hash := btcutil.Hash160(pub.SerializeCompressed())
	a, err := btcutil.NewAddressPubKeyHash(hash, &chaincfg.MainNetParams)
	if err != nil {
		return Address{}, err
	}
	return ParseAddress(a.EncodeAddress())
}

// Sign produces a 65-byte recoverable ECDSA signature (the Bitcoin
// signmessage format: 1 recovery byte + 32-byte r + 32-byte s) over digest.
// Recoverability is what lets Verify check a signature against a bare
// Address, with no public key stored alongside it, matching the manifest
// signs map in (keyed only by address).
func (p *PrivateKey) Sign(digest []byte) ([]byte, error) {
	return ecdsa.SignCompact(p.key, digest, true), nil
}

// Verify recovers the signer's public key from a recoverable signature and
// checks it hashes to addr.
func Verify(addr Address, digest, sig []byte) (bool, error) {
	pub, _, err := ecdsa.RecoverCompact(sig, digest)
	if err != nil {
		return false, fmt.Errorf("%w: %v", ErrSignatureInvalid, err)
	}
	hash := btcutil.Hash160(pub.SerializeCompressed())
	a, err := btcutil.NewAddressPubKeyHash(hash, &chaincfg.MainNetParams)
	if err != nil {
		return false, err
	}
	return a.EncodeAddress() == addr.String(), nil
}

// PubKeyCompressed returns the 33-byte compressed SEC1 public key.
func (p *PrivateKey) PubKeyCompressed() []byte {
	return p.key.PubKey().SerializeCompressed()
}

//---------------------------------------------------------------------
// BIP32 deterministic child derivation.
//
// MasterKey wraps the BIP32 master extended key for a user's master seed.
// Per-site auth keys are the hardened child m/index' of that master key,
// where index comes from GetAddressAuthIndex(site address). This is the
// same derivation family site auth recovery depends on: the same master
// seed and site address always yield the same auth_address/auth_privkey.
//---------------------------------------------------------------------

// MasterKey holds the BIP32 master extended key derived from a user's
// master seed.
type MasterKey struct {
	master *hdkeychain.ExtendedKey
}

// DeriveMasterKey builds the BIP32 master extended key for seed (16-64
// bytes of entropy per BIP32; GenerateMasterSeed produces 32).
func DeriveMasterKey(seed []byte) (*MasterKey, error) {
	if len(seed) < 16 {
		return nil, errors.New("zncrypto: seed too short")
	}
	master, err := hdkeychain.NewMaster(seed, &chaincfg.MainNetParams)
	if err != nil {
		return nil, fmt.Errorf("zncrypto: derive master key: %w", err)
	}
	return &MasterKey{master: master}, nil
}

// Child derives the secp256k1 private key at the hardened BIP32 path
// m/index' for the given 32-bit index.
func (m *MasterKey) Child(index uint32) (*PrivateKey, error) {
	child, err := m.master.Derive(hdkeychain.HardenedKeyStart + index)
	if err != nil {
		return nil, fmt.Errorf("zncrypto: derive child %d: %w", index, err)
	}
	priv, err := child.ECPrivKey()
	if err != nil {
		return nil, fmt.Errorf("zncrypto: child %d ec privkey: %w", index, err)
	}
	return &PrivateKey{key: priv}, nil
}

// CanonicalDigest computes the SHA-256 digest used for manifest/message signing.
func CanonicalDigest(msg []byte) [32]byte { return sha256.Sum256(msg) }
