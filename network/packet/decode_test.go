package packet_test

import (
	"net"
	"net/netip"
	"testing"

	"github.com/google/gopacket/layers"
	"github.com/stretchr/testify/assert"

	"github.com/safing/scanguard/network/packet"
	"github.com/safing/scanguard/network/packet/packetgen"
)

const (
	ethLen    = 14
	ipOffset  = ethLen
	tcpOffset = ethLen + packet.MinIPv4HeaderLen
)

var scanner = net.IPv4(10, 0, 0, 5)

func synFrame(dstPort uint16) packetgen.TCPFrame {
	return packetgen.TCPFrame{
		Src:     scanner,
		SrcPort: 51515,
		DstPort: dstPort,
		SYN:     true,
	}
}

// mutate returns a copy of frame with fn applied.
func mutate(frame []byte, fn func(b []byte) []byte) []byte {
	b := make([]byte, len(frame))
	copy(b, frame)
	return fn(b)
}

func TestDecodeValid(t *testing.T) {
	t.Parallel()

	want := packet.Segment{
		Src:     netip.MustParseAddr("10.0.0.5"),
		Dst:     netip.MustParseAddr("192.168.1.10"),
		SrcPort: 51515,
		DstPort: 443,
	}

	withOptions := synFrame(443)
	withOptions.IPOptions = []layers.IPv4Option{
		{OptionType: 1}, {OptionType: 1}, {OptionType: 1}, {OptionType: 1},
	}
	withOptions.TCPOptions = []layers.TCPOption{
		{OptionType: layers.TCPOptionKindMSS, OptionLength: 4, OptionData: []byte{0x05, 0xb4}},
	}

	withPayload := synFrame(443)
	withPayload.SYN = false
	withPayload.Payload = []byte("GET / HTTP/1.1\r\n\r\n")

	tests := []struct {
		name     string
		linkType layers.LinkType
		frame    []byte
	}{
		{"ethernet", layers.LinkTypeEthernet, synFrame(443).Ethernet()},
		{"ethernet with options", layers.LinkTypeEthernet, withOptions.Ethernet()},
		{"ethernet with payload", layers.LinkTypeEthernet, withPayload.Ethernet()},
		{"linux cooked", layers.LinkTypeLinuxSLL, synFrame(443).LinuxSLL()},
		{"raw", layers.LinkTypeRaw, synFrame(443).Raw()},
		{"raw dlt", packet.LinkTypeRawDLT, synFrame(443).Raw()},
		{"ipv4", layers.LinkTypeIPv4, synFrame(443).Raw()},
	}
	for _, tc := range tests {
		t.Run(tc.name, func(t *testing.T) {
			t.Parallel()

			seg, outcome := packet.Decode(tc.linkType, tc.frame)
			assert.Equal(t, packet.Decoded, outcome)
			assert.Equal(t, want, seg)
		})
	}
}

func TestDecodeRejects(t *testing.T) {
	t.Parallel()

	valid := synFrame(22).Ethernet()

	tests := []struct {
		name     string
		linkType layers.LinkType
		frame    []byte
		want     packet.Outcome
	}{
		{
			name:     "empty ethernet",
			linkType: layers.LinkTypeEthernet,
			frame:    nil,
			want:     packet.TruncatedFrame,
		},
		{
			name:     "short ethernet",
			linkType: layers.LinkTypeEthernet,
			frame:    valid[:10],
			want:     packet.TruncatedFrame,
		},
		{
			name:     "short linux cooked",
			linkType: layers.LinkTypeLinuxSLL,
			frame:    synFrame(22).LinuxSLL()[:15],
			want:     packet.TruncatedFrame,
		},
		{
			name:     "empty raw",
			linkType: layers.LinkTypeRaw,
			frame:    []byte{},
			want:     packet.TruncatedFrame,
		},
		{
			name:     "arp",
			linkType: layers.LinkTypeEthernet,
			frame:    append(packetgen.EthernetHeader(layers.EthernetTypeARP), make([]byte, 28)...),
			want:     packet.NotIPv4,
		},
		{
			name:     "ipv6",
			linkType: layers.LinkTypeEthernet,
			frame:    packetgen.IPv6Frame(22),
			want:     packet.NotIPv4,
		},
		{
			name:     "vlan tagged",
			linkType: layers.LinkTypeEthernet,
			frame: mutate(valid, func(b []byte) []byte {
				b[12], b[13] = 0x81, 0x00
				return b
			}),
			want: packet.NotIPv4,
		},
		{
			name:     "raw ipv6 version",
			linkType: layers.LinkTypeRaw,
			frame: mutate(synFrame(22).Raw(), func(b []byte) []byte {
				b[0] = 0x60
				return b
			}),
			want: packet.NotIPv4,
		},
		{
			name:     "unsupported link type",
			linkType: layers.LinkTypeIEEE802_11,
			frame:    valid,
			want:     packet.NotIPv4,
		},
		{
			name:     "ipv4 header cut at 19 bytes",
			linkType: layers.LinkTypeEthernet,
			frame:    valid[:ipOffset+19],
			want:     packet.TruncatedIPv4,
		},
		{
			name:     "ipv4 declared without ip version",
			linkType: layers.LinkTypeEthernet,
			frame: mutate(valid, func(b []byte) []byte {
				b[ipOffset] = 0x65
				return b
			}),
			want: packet.MalformedIPv4Header,
		},
		{
			name:     "udp",
			linkType: layers.LinkTypeEthernet,
			frame:    packetgen.UDPFrame(scanner, 53),
			want:     packet.NotTCP,
		},
		{
			name:     "udp with ipv6 version nibble",
			linkType: layers.LinkTypeEthernet,
			frame: mutate(packetgen.UDPFrame(scanner, 53), func(b []byte) []byte {
				b[ipOffset] = 0x65
				return b
			}),
			want: packet.NotTCP,
		},
		{
			name:     "header length below minimum",
			linkType: layers.LinkTypeEthernet,
			frame: mutate(valid, func(b []byte) []byte {
				b[ipOffset] = 0x44
				return b
			}),
			want: packet.MalformedIPv4Header,
		},
		{
			name:     "declared ipv4 options exceed buffer",
			linkType: layers.LinkTypeEthernet,
			frame: mutate(valid, func(b []byte) []byte {
				b[ipOffset] = 0x4f // 60 bytes, only 40 present
				return b
			}),
			want: packet.TruncatedIPv4Header,
		},
		{
			name:     "tcp header cut at 10 bytes",
			linkType: layers.LinkTypeEthernet,
			frame:    valid[:tcpOffset+10],
			want:     packet.TruncatedTCP,
		},
		{
			name:     "no tcp header at all",
			linkType: layers.LinkTypeEthernet,
			frame:    valid[:tcpOffset],
			want:     packet.TruncatedTCP,
		},
		{
			name:     "tcp data offset below minimum",
			linkType: layers.LinkTypeEthernet,
			frame: mutate(valid, func(b []byte) []byte {
				b[tcpOffset+12] = 0x20
				return b
			}),
			want: packet.MalformedTCPHeader,
		},
		{
			name:     "declared tcp options exceed buffer",
			linkType: layers.LinkTypeEthernet,
			frame: mutate(valid, func(b []byte) []byte {
				b[tcpOffset+12] = 0xf0
				return b
			}),
			want: packet.TruncatedTCPHeader,
		},
	}
	for _, tc := range tests {
		t.Run(tc.name, func(t *testing.T) {
			t.Parallel()

			seg, outcome := packet.Decode(tc.linkType, tc.frame)
			assert.Equal(t, tc.want, outcome, "got %s", outcome)
			assert.Equal(t, packet.Segment{}, seg)
		})
	}
}

func TestDecodeShortIPv4Frame(t *testing.T) {
	t.Parallel()

	// A 20 byte Ethernet frame declaring IPv4 leaves 6 bytes for the IP header.
	frame := synFrame(80).Ethernet()[:20]
	assert.Len(t, frame, 20)

	var outcome packet.Outcome
	assert.NotPanics(t, func() {
		_, outcome = packet.Decode(layers.LinkTypeEthernet, frame)
	})
	assert.Equal(t, packet.TruncatedIPv4, outcome)
	assert.True(t, outcome.IsTruncation())
}

func TestDecodeEveryPrefix(t *testing.T) {
	t.Parallel()

	// Ethernet frames are padded to 60 bytes, headers end at 54.
	frame := synFrame(8080).Ethernet()
	headersLen := tcpOffset + packet.MinTCPHeaderLen
	for i := 0; i < headersLen; i++ {
		_, outcome := packet.Decode(layers.LinkTypeEthernet, frame[:i])
		assert.True(t, outcome.IsTruncation(), "prefix of %d bytes decoded as %s", i, outcome)
	}
	_, outcome := packet.Decode(layers.LinkTypeEthernet, frame[:headersLen])
	assert.Equal(t, packet.Decoded, outcome)
}

func TestOutcomeString(t *testing.T) {
	t.Parallel()

	seen := make(map[string]bool)
	for _, o := range packet.Outcomes {
		name := o.String()
		assert.NotContains(t, name, "unknown", "outcome %d has no name", o)
		assert.False(t, seen[name], "duplicate outcome name %s", name)
		seen[name] = true
	}
	assert.Equal(t, "truncated_ipv4_header", packet.TruncatedIPv4Header.String())
	assert.False(t, packet.NotTCP.IsTruncation())
}

func FuzzDecode(f *testing.F) {
	f.Add(uint16(layers.LinkTypeEthernet), synFrame(22).Ethernet())
	f.Add(uint16(layers.LinkTypeLinuxSLL), synFrame(22).LinuxSLL())
	f.Add(uint16(layers.LinkTypeRaw), synFrame(22).Raw())
	f.Add(uint16(layers.LinkTypeEthernet), packetgen.UDPFrame(scanner, 53))

	f.Fuzz(func(t *testing.T, linkType uint16, frame []byte) {
		seg, outcome := packet.Decode(layers.LinkType(linkType), frame)
		if outcome == packet.Decoded {
			if !seg.Src.Is4() {
				t.Fatalf("decoded segment without IPv4 source: %s", seg)
			}
			return
		}
		if seg != (packet.Segment{}) {
			t.Fatalf("rejected frame (%s) returned fields: %s", outcome, seg)
		}
	})
}
