// Package packetgen builds real link-layer frames for tests and for
// synthetic capture files.
package packetgen

import (
	"net"
	"time"

	"github.com/google/gopacket"
	"github.com/google/gopacket/layers"
)

var (
	srcMAC = net.HardwareAddr{0x02, 0x00, 0x00, 0x00, 0x00, 0x01}
	dstMAC = net.HardwareAddr{0x02, 0x00, 0x00, 0x00, 0x00, 0x02}

	// DefaultDst is the destination address used by the builders.
	DefaultDst = net.IPv4(192, 168, 1, 10)
)

// TCPFrame describes a TCP/IPv4 frame to build.
type TCPFrame struct {
	Src     net.IP
	Dst     net.IP
	SrcPort uint16
	DstPort uint16
	// SYN is set when true, ACK otherwise.
	SYN bool
	// IPOptions and TCPOptions are appended to the respective headers.
	IPOptions  []layers.IPv4Option
	TCPOptions []layers.TCPOption
	Payload    []byte
}

// Ethernet serializes the frame with an Ethernet link layer.
func (f TCPFrame) Ethernet() []byte {
	eth := &layers.Ethernet{
		SrcMAC:       srcMAC,
		DstMAC:       dstMAC,
		EthernetType: layers.EthernetTypeIPv4,
	}
	ip, tcp := f.layers()
	return serialize(eth, ip, tcp, gopacket.Payload(f.Payload))
}

// Raw serializes the frame without a link layer.
func (f TCPFrame) Raw() []byte {
	ip, tcp := f.layers()
	return serialize(ip, tcp, gopacket.Payload(f.Payload))
}

// LinuxSLL serializes the frame with a Linux cooked capture header, as
// captured on the "any" pseudo device. gopacket cannot serialize LinuxSLL, so
// the 16 byte header is written by hand.
func (f TCPFrame) LinuxSLL() []byte {
	header := []byte{
		0x00, 0x00, // packet type: to us
		0x00, 0x01, // ARPHRD_ETHER
		0x00, 0x06, // address length
		srcMAC[0], srcMAC[1], srcMAC[2], srcMAC[3], srcMAC[4], srcMAC[5], 0x00, 0x00,
		0x08, 0x00, // IPv4
	}
	return append(header, f.Raw()...)
}

func (f TCPFrame) layers() (*layers.IPv4, *layers.TCP) {
	dst := f.Dst
	if dst == nil {
		dst = DefaultDst
	}
	srcPort := f.SrcPort
	if srcPort == 0 {
		srcPort = 40000
	}

	ip := &layers.IPv4{
		Version:  4,
		TTL:      64,
		Protocol: layers.IPProtocolTCP,
		SrcIP:    f.Src.To4(),
		DstIP:    dst.To4(),
		Options:  f.IPOptions,
	}
	tcp := &layers.TCP{
		SrcPort: layers.TCPPort(srcPort),
		DstPort: layers.TCPPort(f.DstPort),
		Seq:     1,
		SYN:     f.SYN,
		ACK:     !f.SYN,
		Window:  64240,
		Options: f.TCPOptions,
	}
	_ = tcp.SetNetworkLayerForChecksum(ip)
	return ip, tcp
}

// UDPFrame serializes a UDP/IPv4 datagram with an Ethernet link layer.
func UDPFrame(src net.IP, dstPort uint16) []byte {
	eth := &layers.Ethernet{
		SrcMAC:       srcMAC,
		DstMAC:       dstMAC,
		EthernetType: layers.EthernetTypeIPv4,
	}
	ip := &layers.IPv4{
		Version:  4,
		TTL:      64,
		Protocol: layers.IPProtocolUDP,
		SrcIP:    src.To4(),
		DstIP:    DefaultDst.To4(),
	}
	udp := &layers.UDP{
		SrcPort: 40000,
		DstPort: layers.UDPPort(dstPort),
	}
	_ = udp.SetNetworkLayerForChecksum(ip)
	return serialize(eth, ip, udp)
}

// IPv6Frame serializes a TCP/IPv6 segment with an Ethernet link layer.
func IPv6Frame(dstPort uint16) []byte {
	eth := &layers.Ethernet{
		SrcMAC:       srcMAC,
		DstMAC:       dstMAC,
		EthernetType: layers.EthernetTypeIPv6,
	}
	ip := &layers.IPv6{
		Version:    6,
		HopLimit:   64,
		NextHeader: layers.IPProtocolTCP,
		SrcIP:      net.ParseIP("fd00::1"),
		DstIP:      net.ParseIP("fd00::2"),
	}
	tcp := &layers.TCP{
		SrcPort: 40000,
		DstPort: layers.TCPPort(dstPort),
		SYN:     true,
	}
	_ = tcp.SetNetworkLayerForChecksum(ip)
	return serialize(eth, ip, tcp)
}

// EthernetHeader returns a bare Ethernet header declaring the given type.
func EthernetHeader(ethType layers.EthernetType) []byte {
	return serialize(&layers.Ethernet{
		SrcMAC:       srcMAC,
		DstMAC:       dstMAC,
		EthernetType: ethType,
	})
}

// CaptureInfo returns capture metadata for a frame captured at the given time.
func CaptureInfo(frame []byte, ts time.Time) gopacket.CaptureInfo {
	return gopacket.CaptureInfo{
		Timestamp:     ts,
		CaptureLength: len(frame),
		Length:        len(frame),
	}
}

func serialize(l ...gopacket.SerializableLayer) []byte {
	buf := gopacket.NewSerializeBuffer()
	opts := gopacket.SerializeOptions{
		FixLengths:       true,
		ComputeChecksums: true,
	}
	if err := gopacket.SerializeLayers(buf, opts, l...); err != nil {
		panic(err)
	}
	return buf.Bytes()
}
