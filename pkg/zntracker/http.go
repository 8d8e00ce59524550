package zntracker

import (
	"fmt"
	"io"
	"net/http"
	"net/url"
	"time"

	"zeronode/pkg/zncodec"
)

// HTTPClient announces to an HTTP BitTorrent-style tracker.
type HTTPClient struct {
	Client *http.Client
}

// NewHTTPClient returns a client with a sane default timeout.
func NewHTTPClient() *HTTPClient {
	return &HTTPClient{Client: &http.Client{Timeout: 15 * time.Second}}
}

// Announce constructs the GET request (URL-encoded hex info_hash plus the
// standard BitTorrent announce query parameters) and returns the compact
// peer list, or the tracker's failure reason as an error. Grounded on the
// BitTorrent HTTP tracker's announce query string and the requirement to
// bencode-parse the body.
func (c *HTTPClient) Announce(announceURL string, infoHash [20]byte, peerID [20]byte, port uint16) ([]zncodec.PeerAddress, error) {
	u, err := url.Parse(announceURL)
	if err != nil {
		return nil, fmt.Errorf("%w: parse announce url: %v", ErrTrackerUnreachable, err)
	}

	q := u.Query()
	q.Set("info_hash", string(infoHash[:]))
	q.Set("peer_id", string(peerID[:]))
	q.Set("port", fmt.Sprintf("%d", port))
	q.Set("uploaded", "0")
	q.Set("downloaded", "0")
	q.Set("left", "0")
	q.Set("event", "started")
	q.Set("numwant", fmt.Sprintf("%d", numWant))
	q.Set("compact", "1")
	q.Set("no_peer_id", "1")
	q.Set("supportcrypto", "1")
	u.RawQuery = q.Encode()

	resp, err := c.Client.Get(u.String())
	if err != nil {
		return nil, fmt.Errorf("%w: GET %s: %v", ErrTrackerUnreachable, u.Host, err)
	}
	defer resp.Body.Close()

	body, err := io.ReadAll(resp.Body)
	if err != nil {
		return nil, fmt.Errorf("%w: read body: %v", ErrTrackerUnreachable, err)
	}

	decoded, err := zncodec.DecodeTrackerAnnounceResponse(body)
	if err != nil {
		return nil, fmt.Errorf("%w: %v", ErrTrackerResponseMalformed, err)
	}
	if decoded.FailureReason != "" {
		return nil, fmt.Errorf("%w: %s", ErrTrackerUnreachable, decoded.FailureReason)
	}

	return zncodec.DecodeCompactIPv4Peers(decoded.Peers)
}
