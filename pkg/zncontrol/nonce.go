// Package zncontrol implements the CONTROL CHANNEL component: the duplex
// JSON session a gateway opens per site, its command
// taxonomy and permission gating, wrapper-nonce issuance, and the
// suspended-continuation pattern for server-initiated commands that await
// a client response. Nonce and request-id generation both use the
// `uuid.New().String()` idiom.
package zncontrol

import (
	"errors"
	"sync"

	"github.com/google/uuid"
)

// ErrNonceUnknown is returned when a presented wrapper nonce was never
// issued, or has already been consumed.
var ErrNonceUnknown = errors.New("zncontrol: wrapper nonce unknown or already used")

// NonceIssuer hands out one-shot wrapper nonces at page-load time and
// consumes them on the control-channel upgrade ("a wrapper
// nonce is issued at page-load time and must be presented on the
// upgrade; otherwise the upgrade is refused").
type NonceIssuer struct {
	mu     sync.Mutex
	issued map[string]bool
}

// NewNonceIssuer creates an empty issuer.
func NewNonceIssuer() *NonceIssuer {
	return &NonceIssuer{issued: make(map[string]bool)}
}

// Issue mints a fresh nonce.
func (n *NonceIssuer) Issue() string {
	nonce := uuid.New().String()
	n.mu.Lock()
	n.issued[nonce] = true
	n.mu.Unlock()
	return nonce
}

// Consume checks nonce against the issued set and removes it, so it can
// never be presented twice. Returns ErrNonceUnknown if nonce was never
// issued or was already consumed.
func (n *NonceIssuer) Consume(nonce string) error {
	n.mu.Lock()
	defer n.mu.Unlock()
	if !n.issued[nonce] {
		return ErrNonceUnknown
	}
	delete(n.issued, nonce)
	return nil
}
