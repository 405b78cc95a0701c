package packet

import (
	"fmt"
)

type (
	// IPVersion is the version nibble of an IP header.
	IPVersion uint8
	// IPProtocol is the next level protocol of an IP header.
	IPProtocol uint8
)

// Basic IP constants.
const (
	IPv4 = IPVersion(4)
	IPv6 = IPVersion(6)

	ICMP = IPProtocol(1)
	IGMP = IPProtocol(2)
	TCP  = IPProtocol(6)
	UDP  = IPProtocol(17)
)

// Header sizes.
const (
	// MinIPv4HeaderLen is the size of an IPv4 header without options.
	MinIPv4HeaderLen = 20
	// MinTCPHeaderLen is the size of a TCP header without options.
	MinTCPHeaderLen = 20
)

func (v IPVersion) String() string {
	switch v {
	case IPv4:
		return "IPv4"
	case IPv6:
		return "IPv6"
	}
	return fmt.Sprintf("<unknown ip version, %d>", uint8(v))
}

func (p IPProtocol) String() string {
	switch p {
	case TCP:
		return "TCP"
	case UDP:
		return "UDP"
	case ICMP:
		return "ICMP"
	case IGMP:
		return "IGMP"
	}
	return fmt.Sprintf("<unknown protocol, %d>", uint8(p))
}
