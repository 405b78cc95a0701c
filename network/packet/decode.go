package packet

import (
	"encoding/binary"
	"fmt"
	"net/netip"

	"github.com/google/gopacket"
	"github.com/google/gopacket/layers"
)

// LinkTypeRawDLT is the raw IP link type as reported by libpcap on most
// platforms (DLT_RAW), as opposed to the pcap file link type LINKTYPE_RAW.
const LinkTypeRawDLT = layers.LinkType(12)

const linuxSLLHeaderLen = 16

// Segment holds the header fields of a decoded TCP/IPv4 frame.
// Only Src and DstPort are used for detection.
type Segment struct {
	Src     netip.Addr
	Dst     netip.Addr
	SrcPort uint16
	DstPort uint16
}

func (s Segment) String() string {
	return fmt.Sprintf("TCP %s:%d -> %s:%d", s.Src, s.SrcPort, s.Dst, s.DstPort)
}

// Decode extracts the TCP/IPv4 header fields from a captured frame.
// Frames that are not TCP/IPv4, or whose fixed or declared header lengths do
// not fit within the buffer, are rejected with the respective Outcome.
// Decode has no side effects and never panics, whatever the input.
func Decode(linkType layers.LinkType, frame []byte) (Segment, Outcome) {
	// Link layer: must declare IPv4.
	ipData, outcome := linkPayload(linkType, frame)
	if outcome != Decoded {
		return Segment{}, outcome
	}

	// IPv4: the fixed part must be present before any field is read.
	if len(ipData) < MinIPv4HeaderLen {
		return Segment{}, TruncatedIPv4
	}
	if IPProtocol(ipData[9]) != TCP {
		return Segment{}, NotTCP
	}

	// IPv4: the declared header length (including options) must fit as well.
	// The header length field is attacker controlled.
	ihl := int(ipData[0]&0x0f) * 4
	if IPVersion(ipData[0]>>4) != IPv4 || ihl < MinIPv4HeaderLen {
		return Segment{}, MalformedIPv4Header
	}
	if len(ipData) < ihl {
		return Segment{}, TruncatedIPv4Header
	}

	// TCP: same two-stage check with the data offset.
	tcpData := ipData[ihl:]
	if len(tcpData) < MinTCPHeaderLen {
		return Segment{}, TruncatedTCP
	}
	dataOffset := int(tcpData[12]>>4) * 4
	if dataOffset < MinTCPHeaderLen {
		return Segment{}, MalformedTCPHeader
	}
	if len(tcpData) < dataOffset {
		return Segment{}, TruncatedTCPHeader
	}

	return Segment{
		Src:     netip.AddrFrom4([4]byte(ipData[12:16])),
		Dst:     netip.AddrFrom4([4]byte(ipData[16:20])),
		SrcPort: binary.BigEndian.Uint16(tcpData[0:2]),
		DstPort: binary.BigEndian.Uint16(tcpData[2:4]),
	}, Decoded
}

// linkPayload strips the link-layer header and checks that the declared
// network protocol is IPv4.
func linkPayload(linkType layers.LinkType, frame []byte) ([]byte, Outcome) {
	switch linkType {
	case layers.LinkTypeEthernet:
		var eth layers.Ethernet
		if err := eth.DecodeFromBytes(frame, gopacket.NilDecodeFeedback); err != nil {
			return nil, TruncatedFrame
		}
		if eth.EthernetType != layers.EthernetTypeIPv4 {
			return nil, NotIPv4
		}
		return eth.Payload, Decoded

	case layers.LinkTypeLinuxSLL:
		// Read by hand: layers.LinuxSLL slices by the address length field
		// without checking it against the buffer.
		if len(frame) < linuxSLLHeaderLen {
			return nil, TruncatedFrame
		}
		if layers.EthernetType(binary.BigEndian.Uint16(frame[14:16])) != layers.EthernetTypeIPv4 {
			return nil, NotIPv4
		}
		return frame[linuxSLLHeaderLen:], Decoded

	case layers.LinkTypeRaw, layers.LinkTypeIPv4, LinkTypeRawDLT:
		// No link header, the IP version nibble is the declared protocol.
		if len(frame) == 0 {
			return nil, TruncatedFrame
		}
		if IPVersion(frame[0]>>4) != IPv4 {
			return nil, NotIPv4
		}
		return frame, Decoded

	default:
		return nil, NotIPv4
	}
}
