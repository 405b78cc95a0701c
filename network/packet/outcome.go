package packet

import "fmt"

// Outcome describes how far decoding of a frame got.
// Every value except Decoded means the frame was dropped.
type Outcome uint8

// Decode outcomes, in the order the decoder checks for them.
const (
	Decoded Outcome = iota
	// TruncatedFrame: too short for the link-layer header itself.
	TruncatedFrame
	// NotIPv4: the link layer declares another protocol.
	NotIPv4
	// TruncatedIPv4: too short for any IPv4 header.
	TruncatedIPv4
	// NotTCP: the IPv4 header declares another next level protocol.
	NotTCP
	// MalformedIPv4Header: wrong version nibble or a header length below 20 bytes.
	MalformedIPv4Header
	// TruncatedIPv4Header: too short for the header length this header declares.
	TruncatedIPv4Header
	// TruncatedTCP: too short for any TCP header.
	TruncatedTCP
	// MalformedTCPHeader: the TCP data offset is below 5 words.
	MalformedTCPHeader
	// TruncatedTCPHeader: too short for the TCP data offset this header declares.
	TruncatedTCPHeader
)

// Outcomes lists all outcomes that drop a frame.
var Outcomes = []Outcome{
	TruncatedFrame,
	NotIPv4,
	TruncatedIPv4,
	NotTCP,
	MalformedIPv4Header,
	TruncatedIPv4Header,
	TruncatedTCP,
	MalformedTCPHeader,
	TruncatedTCPHeader,
}

// String returns the snake case name of the outcome, as used in metric labels.
func (o Outcome) String() string {
	switch o {
	case Decoded:
		return "decoded"
	case TruncatedFrame:
		return "truncated_frame"
	case NotIPv4:
		return "not_ipv4"
	case TruncatedIPv4:
		return "truncated_ipv4"
	case MalformedIPv4Header:
		return "malformed_ipv4_header"
	case NotTCP:
		return "not_tcp"
	case TruncatedIPv4Header:
		return "truncated_ipv4_header"
	case TruncatedTCP:
		return "truncated_tcp"
	case MalformedTCPHeader:
		return "malformed_tcp_header"
	case TruncatedTCPHeader:
		return "truncated_tcp_header"
	}
	return fmt.Sprintf("unknown_%d", uint8(o))
}

// IsTruncation reports whether the frame was dropped because a buffer was
// shorter than a fixed or declared header length.
func (o Outcome) IsTruncation() bool {
	switch o {
	case TruncatedFrame, TruncatedIPv4, TruncatedIPv4Header, TruncatedTCP, TruncatedTCPHeader:
		return true
	}
	return false
}
