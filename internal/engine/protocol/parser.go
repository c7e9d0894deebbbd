package protocol

import (
	"net"

	"github.com/google/gopacket"
	"github.com/google/gopacket/layers"
)

// IPv4Header carries the network-layer fields used for classification.
type IPv4Header struct {
	SrcIP    net.IP
	DstIP    net.IP
	Protocol layers.IPProtocol
}

// PortHeader carries the ports of a TCP segment or UDP datagram.
type PortHeader struct {
	SrcPort uint16
	DstPort uint16
}

// ICMPHeader carries the type and code of an ICMPv4 message.
type ICMPHeader struct {
	Type uint8
	Code uint8
}

// DecodedPacket is the explicit per-layer view of a captured frame.
// IPv4 is nil when the frame has no IPv4 header. At most one of TCP, UDP
// and ICMP is set.
type DecodedPacket struct {
	IPv4   *IPv4Header
	TCP    *PortHeader
	UDP    *PortHeader
	ICMP   *ICMPHeader
	Length int
}

// Ports returns the transport ports, or zeros when the packet has none.
func (p DecodedPacket) Ports() (src, dst uint16) {
	switch {
	case p.TCP != nil:
		return p.TCP.SrcPort, p.TCP.DstPort
	case p.UDP != nil:
		return p.UDP.SrcPort, p.UDP.DstPort
	}
	return 0, 0
}

// ParsePacket extracts the header fields needed by Classify from a gopacket packet.
func ParsePacket(packet gopacket.Packet) DecodedPacket {
	decoded := DecodedPacket{Length: len(packet.Data())}

	l := packet.Layer(layers.LayerTypeIPv4)
	if l == nil {
		return decoded
	}
	ip := l.(*layers.IPv4)
	decoded.IPv4 = &IPv4Header{SrcIP: ip.SrcIP, DstIP: ip.DstIP, Protocol: ip.Protocol}

	if l := packet.Layer(layers.LayerTypeTCP); l != nil {
		tcp := l.(*layers.TCP)
		decoded.TCP = &PortHeader{SrcPort: uint16(tcp.SrcPort), DstPort: uint16(tcp.DstPort)}
	} else if l := packet.Layer(layers.LayerTypeUDP); l != nil {
		udp := l.(*layers.UDP)
		decoded.UDP = &PortHeader{SrcPort: uint16(udp.SrcPort), DstPort: uint16(udp.DstPort)}
	} else if l := packet.Layer(layers.LayerTypeICMPv4); l != nil {
		icmp := l.(*layers.ICMPv4)
		decoded.ICMP = &ICMPHeader{Type: icmp.TypeCode.Type(), Code: icmp.TypeCode.Code()}
	}

	return decoded
}

// ParseData decodes a raw Ethernet frame.
func ParseData(data []byte) DecodedPacket {
	return ParsePacket(gopacket.NewPacket(data, layers.LayerTypeEthernet, gopacket.Default))
}
