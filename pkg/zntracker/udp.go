// Package zntracker resolves tracker URLs ("udp://host:port" or
// "http://host:port/path") into peer lists for a given site's info_hash,
// and builds the peer-exchange (PEX) request/response payloads peers use
// to learn about each other directly. Grounded on the BitTorrent UDP and
// HTTP tracker protocols for exact wire semantics. The package keeps no
// peer table of its own; peers are tracked per site in pkg/znsite.
package zntracker

import (
	"crypto/rand"
	"encoding/binary"
	"errors"
	"fmt"
	"net"
	"time"

	"zeronode/pkg/zncodec"
)

// udpMagic is the BEP-15 connect-request protocol id.
const udpMagic uint64 = 0x41727101980

const (
	actionConnect  uint32 = 0
	actionAnnounce uint32 = 1
)

const numWant uint32 = 200

var (
	// ErrTrackerUnreachable marks a tracker as unavailable for this attempt;
	// callers should fall through to the next tracker in their list.
	ErrTrackerUnreachable = errors.New("zntracker: tracker unreachable")
	// ErrTrackerResponseMalformed marks a response that doesn't fit the
	// expected wire shape (short, bad magic, transaction-id mismatch).
	ErrTrackerResponseMalformed = errors.New("zntracker: malformed tracker response")
)

// UDPClient announces to a BEP-15 UDP tracker.
type UDPClient struct {
	Dialer  net.Dialer
	Timeout time.Duration
}

// NewUDPClient returns a client with a sane default per-round-trip timeout.
func NewUDPClient() *UDPClient {
	return &UDPClient{Timeout: 15 * time.Second}
}

// Announce performs the BEP-15 connect+announce handshake against addr and
// returns the peers it returned for infoHash. peerID identifies this node
// (20 bytes; no format beyond "peer_id" is mandated).
func (c *UDPClient) Announce(addr string, infoHash [20]byte, peerID [20]byte, port uint16) ([]zncodec.PeerAddress, error) {
	conn, err := c.Dialer.Dial("udp", addr)
	if err != nil {
		return nil, fmt.Errorf("%w: dial %s: %v", ErrTrackerUnreachable, addr, err)
	}
	defer conn.Close()

	deadline := time.Now().Add(c.Timeout)
	if err := conn.SetDeadline(deadline); err != nil {
		return nil, fmt.Errorf("%w: set deadline: %v", ErrTrackerUnreachable, err)
	}

	connID, err := c.connect(conn)
	if err != nil {
		return nil, err
	}
	return c.announce(conn, connID, infoHash, peerID, port)
}

// connect sends the 16-byte Connect request and parses the 16-byte Connect
// response, returning the tracker-issued connection id.
func (c *UDPClient) connect(conn net.Conn) (uint64, error) {
	txID := randomUint32()

	req := make([]byte, 16)
	binary.BigEndian.PutUint64(req[0:8], udpMagic)
	binary.BigEndian.PutUint32(req[8:12], actionConnect)
	binary.BigEndian.PutUint32(req[12:16], txID)

	if _, err := conn.Write(req); err != nil {
		return 0, fmt.Errorf("%w: write connect: %v", ErrTrackerUnreachable, err)
	}

	resp := make([]byte, 16)
	n, err := conn.Read(resp)
	if err != nil {
		return 0, fmt.Errorf("%w: read connect response: %v", ErrTrackerUnreachable, err)
	}
	if n < 16 {
		return 0, fmt.Errorf("%w: connect response too short (%d bytes)", ErrTrackerResponseMalformed, n)
	}

	action := binary.BigEndian.Uint32(resp[0:4])
	gotTxID := binary.BigEndian.Uint32(resp[4:8])
	if action != actionConnect || gotTxID != txID {
		return 0, fmt.Errorf("%w: connect response action/tx_id mismatch", ErrTrackerResponseMalformed)
	}
	return binary.BigEndian.Uint64(resp[8:16]), nil
}

// announce sends the Announce request and parses the compact IPv4 peer
// list out of the response, skipping the 20-byte header
// (action, transaction_id, interval, leechers, seeders).
func (c *UDPClient) announce(conn net.Conn, connID uint64, infoHash, peerID [20]byte, port uint16) ([]zncodec.PeerAddress, error) {
	txID := randomUint32()

	req := make([]byte, 98)
	binary.BigEndian.PutUint64(req[0:8], connID)
	binary.BigEndian.PutUint32(req[8:12], actionAnnounce)
	binary.BigEndian.PutUint32(req[12:16], txID)
	copy(req[16:36], infoHash[:])
	copy(req[36:56], peerID[:])
	binary.BigEndian.PutUint64(req[56:64], 0) // downloaded
	binary.BigEndian.PutUint64(req[64:72], 0) // left
	binary.BigEndian.PutUint64(req[72:80], 0) // uploaded
	binary.BigEndian.PutUint32(req[80:84], 0) // event
	binary.BigEndian.PutUint32(req[84:88], 0) // ip_address
	binary.BigEndian.PutUint32(req[88:92], 0) // key
	binary.BigEndian.PutUint32(req[92:96], numWant)
	binary.BigEndian.PutUint16(req[96:98], port)

	if _, err := conn.Write(req); err != nil {
		return nil, fmt.Errorf("%w: write announce: %v", ErrTrackerUnreachable, err)
	}

	resp := make([]byte, 20+6*int(numWant))
	n, err := conn.Read(resp)
	if err != nil {
		return nil, fmt.Errorf("%w: read announce response: %v", ErrTrackerUnreachable, err)
	}
	if n < 20 {
		return nil, fmt.Errorf("%w: announce response too short (%d bytes)", ErrTrackerResponseMalformed, n)
	}

	action := binary.BigEndian.Uint32(resp[0:4])
	gotTxID := binary.BigEndian.Uint32(resp[4:8])
	if action != actionAnnounce || gotTxID != txID {
		return nil, fmt.Errorf("%w: announce response action/tx_id mismatch", ErrTrackerResponseMalformed)
	}

	peers, err := zncodec.DecodeCompactIPv4Peers(resp[20:n])
	if err != nil {
		return nil, fmt.Errorf("%w: %v", ErrTrackerResponseMalformed, err)
	}
	return peers, nil
}

func randomUint32() uint32 {
	var b [4]byte
	_, _ = rand.Read(b[:])
	return binary.BigEndian.Uint32(b[:])
}
