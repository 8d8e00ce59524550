// Package znidentity implements the IDENTITY component: a User document
// (master seed, master address, per-site identities, certificates),
// BIP32-like per-site AuthPair derivation, and certificate delegation.
// Grounded on core/wallet.go's HDWallet for the "master seed owns a map of
// derived per-purpose keys" shape, generalized from ed25519 accounts to
// secp256k1 site identities.
package znidentity

import (
	"crypto/rand"
	"encoding/binary"
	"errors"
	"fmt"
	"sync"

	"zeronode/pkg/zncrypto"
)

// ErrSiteUnknown is returned when a site address has no SiteData and the
// caller asked not to create one.
var ErrSiteUnknown = errors.New("znidentity: site unknown")

// ErrCertAuthAddressUnknown is returned by AddCert when the auth address
// does not belong to any known SiteData's AuthPair.
var ErrCertAuthAddressUnknown = errors.New("znidentity: auth address unknown")

// ErrCertDomainConflict is returned by AddCert when domain already holds a
// different certificate.
var ErrCertDomainConflict = errors.New("znidentity: domain already certified")

// AuthPair is a site-derived identity: an address and the private key that
// controls it. auth_address = pubkey(auth_privkey) always holds by
// construction (DeriveAuthPair never returns a pair violating this).
type AuthPair struct {
	AuthAddress    zncrypto.Address
	AuthPrivateKey *zncrypto.PrivateKey
}

// DeriveAuthPair derives the AuthPair for the given 32-bit index from master.
func DeriveAuthPair(master *zncrypto.MasterKey, index uint32) (AuthPair, error) {
	priv, err := master.Child(index)
	if err != nil {
		return AuthPair{}, fmt.Errorf("znidentity: derive auth pair: %w", err)
	}
	addr, err := priv.Address()
	if err != nil {
		return AuthPair{}, fmt.Errorf("znidentity: derive auth pair: %w", err)
	}
	return AuthPair{AuthAddress: addr, AuthPrivateKey: priv}, nil
}

// SiteData is the per-site identity a User keeps for one site address.
type SiteData struct {
	SiteAddress  zncrypto.Address
	Index        *uint32
	AuthPair     *AuthPair
	PrivateKey   *zncrypto.PrivateKey // present only for sites this user owns outright
	CertProvider string               // active certificate's domain, if any
	Settings     map[string]any
}

// Cert links a certificate-provider-issued identity to a user.
type Cert struct {
	AuthPair     AuthPair
	AuthType     string
	AuthUserName string
	Signature    []byte
}

// User is the root identity document: one master seed, one master address,
// a map of per-site identities, and a map of per-domain certificates.
type User struct {
	mu            sync.RWMutex
	masterSeed    [32]byte
	masterKey     *zncrypto.MasterKey
	masterAddress zncrypto.Address
	sites         map[string]*SiteData
	certs         map[string]*Cert
	settings      map[string]any
}

// NewUser generates a random master seed and derives the master address.
func NewUser() (*User, error) {
	seed, err := zncrypto.GenerateMasterSeed()
	if err != nil {
		return nil, fmt.Errorf("znidentity: generate master seed: %w", err)
	}
	return UserFromSeed(seed)
}

// UserFromSeed deterministically recovers a User from an existing seed.
func UserFromSeed(seed [32]byte) (*User, error) {
	rootKey, err := zncrypto.NewPrivateKeyFromSeed(seed[:])
	if err != nil {
		return nil, fmt.Errorf("znidentity: master address key: %w", err)
	}
	masterAddr, err := rootKey.Address()
	if err != nil {
		return nil, fmt.Errorf("znidentity: master address: %w", err)
	}
	masterKey, err := zncrypto.DeriveMasterKey(seed[:])
	if err != nil {
		return nil, fmt.Errorf("znidentity: derive master key: %w", err)
	}
	return &User{
		masterSeed:    seed,
		masterKey:     masterKey,
		masterAddress: masterAddr,
		sites:         make(map[string]*SiteData),
		certs:         make(map[string]*Cert),
		settings:      make(map[string]any),
	}, nil
}

// MasterAddress returns this user's master address (pubkey of the seed).
func (u *User) MasterAddress() zncrypto.Address {
	return u.masterAddress
}

// MasterSeed returns the raw 32-byte seed, for export/backup.
func (u *User) MasterSeed() [32]byte {
	return u.masterSeed
}

// GetSiteData returns the SiteData for address, deriving and storing a new
// one if create is true and none exists yet. The derivation index is
// zncrypto.GetAddressAuthIndex(address), so a given (seed, site address)
// pair always recovers the same AuthPair.
func (u *User) GetSiteData(address zncrypto.Address, create bool) (*SiteData, error) {
	key := address.String()

	u.mu.RLock()
	sd, ok := u.sites[key]
	u.mu.RUnlock()
	if ok {
		return sd, nil
	}
	if !create {
		return nil, ErrSiteUnknown
	}

	index := zncrypto.GetAddressAuthIndex(address)
	pair, err := DeriveAuthPair(u.masterKey, index)
	if err != nil {
		return nil, err
	}

	u.mu.Lock()
	defer u.mu.Unlock()
	if existing, ok := u.sites[key]; ok {
		return existing, nil
	}
	sd = &SiteData{
		SiteAddress: address,
		Index:       &index,
		AuthPair:    &pair,
		Settings:    make(map[string]any),
	}
	u.sites[key] = sd
	return sd, nil
}

// GetNewSiteData picks a random 32-bit derivation index (independent of any
// existing site address) and returns a SiteData carrying both the derived
// AuthPair and a freshly generated site private key — the shape
// site-creation flows use to mint a brand new site identity.
func (u *User) GetNewSiteData() (*SiteData, error) {
	var idxBytes [4]byte
	if _, err := rand.Read(idxBytes[:]); err != nil {
		return nil, fmt.Errorf("znidentity: random index: %w", err)
	}
	index := binary.BigEndian.Uint32(idxBytes[:])

	pair, err := DeriveAuthPair(u.masterKey, index)
	if err != nil {
		return nil, err
	}

	seed, err := zncrypto.GenerateMasterSeed()
	if err != nil {
		return nil, fmt.Errorf("znidentity: generate site key: %w", err)
	}
	sitePriv, err := zncrypto.NewPrivateKeyFromSeed(seed[:])
	if err != nil {
		return nil, err
	}
	siteAddr, err := sitePriv.Address()
	if err != nil {
		return nil, err
	}

	sd := &SiteData{
		SiteAddress: siteAddr,
		Index:       &index,
		AuthPair:    &pair,
		PrivateKey:  sitePriv,
		Settings:    make(map[string]any),
	}

	u.mu.Lock()
	u.sites[siteAddr.String()] = sd
	u.mu.Unlock()

	return sd, nil
}

// AddCert links auth_address to a certificate for domain. It returns false
// if auth_address does not belong to any SiteData this
// user knows, or if domain already holds a different certificate.
func (u *User) AddCert(authAddress zncrypto.Address, domain, authType, authUserName string, signature []byte) bool {
	u.mu.Lock()
	defer u.mu.Unlock()

	found := false
	for _, sd := range u.sites {
		if sd.AuthPair != nil && sd.AuthPair.AuthAddress == authAddress {
			found = true
			break
		}
	}
	if !found {
		return false
	}

	if existing, ok := u.certs[domain]; ok && existing.AuthPair.AuthAddress != authAddress {
		return false
	}

	for _, sd := range u.sites {
		if sd.AuthPair != nil && sd.AuthPair.AuthAddress == authAddress {
			u.certs[domain] = &Cert{
				AuthPair:     *sd.AuthPair,
				AuthType:     authType,
				AuthUserName: authUserName,
				Signature:    signature,
			}
			return true
		}
	}
	return false
}

// SetCert designates provider as the active certificate domain for site.
func (u *User) SetCert(site zncrypto.Address, provider string) error {
	u.mu.Lock()
	defer u.mu.Unlock()
	sd, ok := u.sites[site.String()]
	if !ok {
		return ErrSiteUnknown
	}
	if _, ok := u.certs[provider]; !ok {
		return fmt.Errorf("znidentity: unknown certificate provider %q", provider)
	}
	sd.CertProvider = provider
	return nil
}

// SiteSettings returns the free-form settings map for address, creating its
// SiteData if none exists yet.
func (u *User) SiteSettings(address zncrypto.Address) (map[string]any, error) {
	sd, err := u.GetSiteData(address, true)
	if err != nil {
		return nil, err
	}
	u.mu.RLock()
	defer u.mu.RUnlock()
	out := make(map[string]any, len(sd.Settings))
	for k, v := range sd.Settings {
		out[k] = v
	}
	return out, nil
}

// SetSiteSettings replaces the free-form settings map for address, creating
// its SiteData if none exists yet.
func (u *User) SetSiteSettings(address zncrypto.Address, settings map[string]any) error {
	sd, err := u.GetSiteData(address, true)
	if err != nil {
		return err
	}
	u.mu.Lock()
	defer u.mu.Unlock()
	sd.Settings = settings
	return nil
}

// GlobalSettings returns a copy of the user's global settings map.
func (u *User) GlobalSettings() map[string]any {
	u.mu.RLock()
	defer u.mu.RUnlock()
	out := make(map[string]any, len(u.settings))
	for k, v := range u.settings {
		out[k] = v
	}
	return out
}

// SetGlobalSetting records key=value in the user's global settings map.
func (u *User) SetGlobalSetting(key string, value any) {
	u.mu.Lock()
	defer u.mu.Unlock()
	u.settings[key] = value
}

// Certs returns a copy of the domain -> Cert map this user has accepted.
func (u *User) Certs() map[string]Cert {
	u.mu.RLock()
	defer u.mu.RUnlock()
	out := make(map[string]Cert, len(u.certs))
	for k, v := range u.certs {
		out[k] = *v
	}
	return out
}

// GetAuthPrivkey returns the active certificate's auth private key for
// site if one is set, otherwise the raw site-derived auth private key.
func (u *User) GetAuthPrivkey(site zncrypto.Address, create bool) (*zncrypto.PrivateKey, error) {
	sd, err := u.GetSiteData(site, create)
	if err != nil {
		return nil, err
	}

	u.mu.RLock()
	defer u.mu.RUnlock()
	if sd.CertProvider != "" {
		if cert, ok := u.certs[sd.CertProvider]; ok {
			return cert.AuthPair.AuthPrivateKey, nil
		}
	}
	if sd.AuthPair == nil {
		return nil, fmt.Errorf("znidentity: site %s has no auth pair", site)
	}
	return sd.AuthPair.AuthPrivateKey, nil
}
