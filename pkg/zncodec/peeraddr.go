package zncodec

import (
	"encoding/binary"
	"fmt"
	"net"
)

// PeerAddress identifies a peer's network location. It is a leaf type
// shared by the tracker and transport components (neither depends on the
// other per the component graph), so it lives here in the codec package
// alongside the compact wire encodings that produce it.
type PeerAddress struct {
	Network string // "ipv4", "ipv6", or "onion"
	Host    string // dotted-quad, unbracketed IPv6, or .onion hostname
	Port    uint16
}

func (p PeerAddress) String() string {
	if p.Network == "ipv6" {
		return fmt.Sprintf("[%s]:%d", p.Host, p.Port)
	}
	return fmt.Sprintf("%s:%d", p.Host, p.Port)
}

// DecodeCompactIPv4Peers unpacks a BitTorrent-style compact peer list: each
// entry is 4 bytes of IPv4 address followed by 2 bytes of big-endian port.
// Grounded on the BitTorrent compact peer format's "skip 20 bytes, then
// 6-byte records" rule (the 20-byte UDP announce-response header is
// stripped by the caller before this is invoked).
func DecodeCompactIPv4Peers(raw []byte) ([]PeerAddress, error) {
	if len(raw)%6 != 0 {
		return nil, fmt.Errorf("zncodec: compact peer list length %d not a multiple of 6", len(raw))
	}
	peers := make([]PeerAddress, 0, len(raw)/6)
	for i := 0; i < len(raw); i += 6 {
		ip := net.IPv4(raw[i], raw[i+1], raw[i+2], raw[i+3])
		port := binary.BigEndian.Uint16(raw[i+4 : i+6])
		peers = append(peers, PeerAddress{Network: "ipv4", Host: ip.String(), Port: port})
	}
	return peers, nil
}

// EncodeCompactIPv4Peers is the inverse of DecodeCompactIPv4Peers, used by
// tests and by PEX responses this node originates.
func EncodeCompactIPv4Peers(peers []PeerAddress) ([]byte, error) {
	out := make([]byte, 0, len(peers)*6)
	for _, p := range peers {
		ip := net.ParseIP(p.Host).To4()
		if ip == nil {
			return nil, fmt.Errorf("zncodec: peer host %q is not a valid IPv4 address", p.Host)
		}
		out = append(out, ip...)
		var portBytes [2]byte
		binary.BigEndian.PutUint16(portBytes[:], p.Port)
		out = append(out, portBytes[:]...)
	}
	return out, nil
}

// DecodeCompactIPv6Peers unpacks 18-byte records (16-byte IPv6 address + 2-byte port),
// used by PEX's peers_ipv6 field.
func DecodeCompactIPv6Peers(raw []byte) ([]PeerAddress, error) {
	if len(raw)%18 != 0 {
		return nil, fmt.Errorf("zncodec: compact ipv6 peer list length %d not a multiple of 18", len(raw))
	}
	peers := make([]PeerAddress, 0, len(raw)/18)
	for i := 0; i < len(raw); i += 18 {
		ip := net.IP(raw[i : i+16])
		port := binary.BigEndian.Uint16(raw[i+16 : i+18])
		peers = append(peers, PeerAddress{Network: "ipv6", Host: ip.String(), Port: port})
	}
	return peers, nil
}
