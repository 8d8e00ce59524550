package zntracker

import (
	"fmt"
	"net/url"
	"strings"

	"zeronode/pkg/zncodec"
)

// Resolver dispatches a tracker URL ("udp://host:port" or
// "http://host:port/announce") to the matching protocol client.
type Resolver struct {
	udp   *UDPClient
	http  *HTTPClient
	stats *Stats
}

// NewResolver builds a Resolver with default per-protocol clients.
func NewResolver() *Resolver {
	return &Resolver{udp: NewUDPClient(), http: NewHTTPClient()}
}

// SetStats attaches a Stats recorder; every subsequent Announce/AnnounceAny
// call records its outcome into it. Passing nil disables recording.
func (r *Resolver) SetStats(stats *Stats) {
	r.stats = stats
}

// Announce resolves trackerURL's scheme and performs the matching announce.
func (r *Resolver) Announce(trackerURL string, infoHash, peerID [20]byte, port uint16) ([]zncodec.PeerAddress, error) {
	peers, err := r.announce(trackerURL, infoHash, peerID, port)
	if r.stats != nil {
		if err != nil {
			r.stats.RecordFailure(trackerURL)
		} else {
			r.stats.RecordSuccess(trackerURL, len(peers))
		}
	}
	return peers, err
}

func (r *Resolver) announce(trackerURL string, infoHash, peerID [20]byte, port uint16) ([]zncodec.PeerAddress, error) {
	u, err := url.Parse(trackerURL)
	if err != nil {
		return nil, fmt.Errorf("%w: parse tracker url %q: %v", ErrTrackerUnreachable, trackerURL, err)
	}

	switch strings.ToLower(u.Scheme) {
	case "udp":
		return r.udp.Announce(u.Host, infoHash, peerID, port)
	case "http", "https":
		return r.http.Announce(trackerURL, infoHash, peerID, port)
	default:
		return nil, fmt.Errorf("%w: unsupported tracker scheme %q", ErrTrackerUnreachable, u.Scheme)
	}
}

// AnnounceAny tries each tracker URL in order, returning the first
// successful result. Per TrackerUnreachable handling: a
// failure is logged by the caller and treated as fall-through, not fatal.
func (r *Resolver) AnnounceAny(trackerURLs []string, infoHash, peerID [20]byte, port uint16) ([]zncodec.PeerAddress, []error) {
	var errs []error
	for _, t := range trackerURLs {
		peers, err := r.Announce(t, infoHash, peerID, port)
		if err != nil {
			errs = append(errs, err)
			continue
		}
		return peers, errs
	}
	return nil, errs
}
