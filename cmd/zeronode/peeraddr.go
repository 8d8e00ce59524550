package main

import (
	"net"
	"strconv"

	"zeronode/pkg/zncodec"
)

// parsePeerAddress turns a "host:port" command-line argument into a
// zncodec.PeerAddress. Network is "ipv6" when host is an IPv6 literal and
// "ipv4" otherwise (hostnames, including .onion names, are not
// distinguished).
func parsePeerAddress(hostport string) (zncodec.PeerAddress, error) {
	host, portStr, err := net.SplitHostPort(hostport)
	if err != nil {
		return zncodec.PeerAddress{}, err
	}
	port, err := strconv.ParseUint(portStr, 10, 16)
	if err != nil {
		return zncodec.PeerAddress{}, err
	}
	network := "ipv4"
	if ip := net.ParseIP(host); ip != nil && ip.To4() == nil {
		network = "ipv6"
	}
	return zncodec.PeerAddress{Network: network, Host: host, Port: uint16(port)}, nil
}
