// Package znsite implements the SITE ENGINE component: the Site and Peer
// entities, the state machine a site moves through between discovery and
// serving, and the download-scheduling, coalescing, and verification
// operations layered over zncontent, znprotocol, and zntracker. Grounded on
// core/connection_pool.go's pooled-resource-with-reaper shape (reused here
// for peer reputation bookkeeping and eviction) and core/content_node_impl.go's
// per-operation method style.
package znsite

import (
	"sync"
	"time"

	"zeronode/pkg/zncodec"
	"zeronode/pkg/znprotocol"
)

// reputationPenalty is subtracted from a peer's reputation on transport
// error or hash mismatch (download scheduling policy).
const reputationPenalty = 10

// Peer tracks one remote participant in a site's swarm: its address, an
// optional live protocol client, and the bookkeeping the download scheduler
// and eviction policy need. Adapted from core/connection_pool.go's
// pooledConn, generalized from "a conn with a last-used time" to "a swarm
// member with reputation, request counters, and an optional session".
type Peer struct {
	Address zncodec.PeerAddress

	mu           sync.Mutex
	client       *znprotocol.Client
	reputation   int
	lastResponse time.Time
	requests     int
	failures     int
}

// NewPeer creates a Peer entry for addr with neutral starting reputation.
func NewPeer(addr zncodec.PeerAddress) *Peer {
	return &Peer{Address: addr}
}

// Client returns the peer's live protocol client, if a session is
// currently attached.
func (p *Peer) Client() *znprotocol.Client {
	p.mu.Lock()
	defer p.mu.Unlock()
	return p.client
}

// Attach records a freshly dialed session's protocol client for reuse.
func (p *Peer) Attach(c *znprotocol.Client) {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.client = c
}

// Reputation returns the peer's current reputation score.
func (p *Peer) Reputation() int {
	p.mu.Lock()
	defer p.mu.Unlock()
	return p.reputation
}

// LastResponse returns the time of the peer's most recently observed
// successful response, used as the tie-break in peer selection.
func (p *Peer) LastResponse() time.Time {
	p.mu.Lock()
	defer p.mu.Unlock()
	return p.lastResponse
}

// RecordSuccess raises reputation slightly and stamps lastResponse,
// rewarding peers that keep serving correct data.
func (p *Peer) RecordSuccess() {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.reputation++
	p.requests++
	p.lastResponse = time.Now()
}

// RecordFailure applies the fixed reputation penalty on transport error or
// hash mismatch.
func (p *Peer) RecordFailure() {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.reputation -= reputationPenalty
	p.failures++
}

// peersByReputation orders peers by reputation descending, tie-broken by
// earliest last-response.
func peersByReputation(peers []*Peer) []*Peer {
	out := make([]*Peer, len(peers))
	copy(out, peers)
	for i := 1; i < len(out); i++ {
		j := i
		for j > 0 && less(out[j], out[j-1]) {
			out[j], out[j-1] = out[j-1], out[j]
			j--
		}
	}
	return out
}

func less(a, b *Peer) bool {
	ra, rb := a.Reputation(), b.Reputation()
	if ra != rb {
		return ra > rb // descending
	}
	return a.LastResponse().Before(b.LastResponse())
}
