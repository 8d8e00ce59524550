package zntracker

import (
	"zeronode/pkg/zncodec"
)

// PexRequest is the payload sent to a connected peer to request its known
// peer list for a site: cmd "pex" with {site, peers, peers_onion, need}.
type PexRequest struct {
	Site       string   `msgpack:"site"`
	Peers      [][]byte `msgpack:"peers"`
	PeersOnion [][]byte `msgpack:"peers_onion,omitempty"`
	Need       int      `msgpack:"need"`
}

// PexResponse is the reply: compact peer records for each address family
// the responder knows about.
type PexResponse struct {
	Peers      []byte   `msgpack:"peers,omitempty"`
	PeersIPv6  []byte   `msgpack:"peers_ipv6,omitempty"`
	PeersOnion [][]byte `msgpack:"peers_onion,omitempty"`
}

// NewPexRequest builds a request for site, offering this node's own known
// peers (already-packed compact records, so a bystander relay never has to
// decode/re-encode addresses it doesn't otherwise need).
func NewPexRequest(site string, knownPeers [][]byte, need int) PexRequest {
	return PexRequest{Site: site, Peers: knownPeers, Need: need}
}

// ResolvePeers decodes a PexResponse's peers and peers_ipv6 fields into
// PeerAddress values. peers_onion is left as raw records: onion-address
// resolution needs a Tor SOCKS dialer this package does not own.
func ResolvePeers(resp PexResponse) ([]zncodec.PeerAddress, error) {
	var out []zncodec.PeerAddress
	if len(resp.Peers) > 0 {
		v4, err := zncodec.DecodeCompactIPv4Peers(resp.Peers)
		if err != nil {
			return nil, err
		}
		out = append(out, v4...)
	}
	if len(resp.PeersIPv6) > 0 {
		v6, err := zncodec.DecodeCompactIPv6Peers(resp.PeersIPv6)
		if err != nil {
			return nil, err
		}
		out = append(out, v6...)
	}
	return out, nil
}

// FilterZeroPort drops peer records advertising port 0: requires
// PEX responses to filter these out before they reach the peer table, since
// a zero port cannot be dialed.
func FilterZeroPort(peers []zncodec.PeerAddress) []zncodec.PeerAddress {
	out := peers[:0:0]
	for _, p := range peers {
		if p.Port != 0 {
			out = append(out, p)
		}
	}
	return out
}
