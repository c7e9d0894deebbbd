// Package pkttest builds synthetic frames and capture sources for tests.
package pkttest

import (
	"io"
	"net"
	"sync"
	"sync/atomic"
	"time"

	pcapsrc "Go2NetPulse/pkg/pcap"

	"github.com/google/gopacket"
	"github.com/google/gopacket/layers"
)

// Header bytes of an Ethernet + IPv4 + TCP frame without options.
const tcpHeaderBytes = 14 + 20 + 20

var (
	srcMAC = net.HardwareAddr{0x02, 0x00, 0x00, 0x00, 0x00, 0x01}
	dstMAC = net.HardwareAddr{0x02, 0x00, 0x00, 0x00, 0x00, 0x02}
)

// Frame serializes the layers and decodes them back as an Ethernet packet.
func Frame(ls ...gopacket.SerializableLayer) gopacket.Packet {
	buf := gopacket.NewSerializeBuffer()
	opts := gopacket.SerializeOptions{FixLengths: true, ComputeChecksums: true}
	if err := gopacket.SerializeLayers(buf, opts, ls...); err != nil {
		panic(err)
	}
	return gopacket.NewPacket(buf.Bytes(), layers.LayerTypeEthernet, gopacket.Default)
}

func ethernet(t layers.EthernetType) *layers.Ethernet {
	return &layers.Ethernet{SrcMAC: srcMAC, DstMAC: dstMAC, EthernetType: t}
}

func ipv4(src, dst string, proto layers.IPProtocol) *layers.IPv4 {
	return &layers.IPv4{
		Version:  4,
		IHL:      5,
		TTL:      64,
		Protocol: proto,
		SrcIP:    net.ParseIP(src).To4(),
		DstIP:    net.ParseIP(dst).To4(),
	}
}

// TCP returns a TCP frame. When size exceeds the header length the frame is
// padded with payload so that its total length equals size.
func TCP(src, dst string, srcPort, dstPort uint16, size int) gopacket.Packet {
	ip := ipv4(src, dst, layers.IPProtocolTCP)
	tcp := &layers.TCP{SrcPort: layers.TCPPort(srcPort), DstPort: layers.TCPPort(dstPort), Window: 1024}
	_ = tcp.SetNetworkLayerForChecksum(ip)
	payload := 0
	if size > tcpHeaderBytes {
		payload = size - tcpHeaderBytes
	}
	return Frame(ethernet(layers.EthernetTypeIPv4), ip, tcp, gopacket.Payload(make([]byte, payload)))
}

// UDP returns a UDP frame carrying a short payload.
func UDP(src, dst string, srcPort, dstPort uint16) gopacket.Packet {
	ip := ipv4(src, dst, layers.IPProtocolUDP)
	udp := &layers.UDP{SrcPort: layers.UDPPort(srcPort), DstPort: layers.UDPPort(dstPort)}
	_ = udp.SetNetworkLayerForChecksum(ip)
	return Frame(ethernet(layers.EthernetTypeIPv4), ip, udp, gopacket.Payload([]byte{0xde, 0xad, 0xbe, 0xef}))
}

// ICMP returns an ICMPv4 echo request frame.
func ICMP(src, dst string) gopacket.Packet {
	ip := ipv4(src, dst, layers.IPProtocolICMPv4)
	icmp := &layers.ICMPv4{TypeCode: layers.CreateICMPv4TypeCode(layers.ICMPv4TypeEchoRequest, 0), Id: 1, Seq: 1}
	return Frame(ethernet(layers.EthernetTypeIPv4), ip, icmp)
}

// IPv4Only returns an IPv4 frame whose protocol is neither TCP, UDP nor ICMP.
func IPv4Only(src, dst string) gopacket.Packet {
	ip := ipv4(src, dst, layers.IPProtocolGRE)
	return Frame(ethernet(layers.EthernetTypeIPv4), ip, gopacket.Payload([]byte{0, 0, 0, 0}))
}

// ARP returns a non-IP frame.
func ARP() gopacket.Packet {
	arp := &layers.ARP{
		AddrType:          layers.LinkTypeEthernet,
		Protocol:          layers.EthernetTypeIPv4,
		HwAddressSize:     6,
		ProtAddressSize:   4,
		Operation:         layers.ARPRequest,
		SourceHwAddress:   srcMAC,
		SourceProtAddress: []byte{10, 0, 0, 1},
		DstHwAddress:      []byte{0, 0, 0, 0, 0, 0},
		DstProtAddress:    []byte{10, 0, 0, 2},
	}
	return Frame(ethernet(layers.EthernetTypeARP), arp)
}

// ChanSource is a capture source fed through a channel. Closing Packets ends
// the source with io.EOF; while idle it reports pcap.ErrTimeout every Timeout.
type ChanSource struct {
	Packets chan gopacket.Packet
	Timeout time.Duration

	closeOnce sync.Once
	closed    atomic.Bool
}

// NewChanSource returns a source with a buffered packet channel.
func NewChanSource() *ChanSource {
	return &ChanSource{Packets: make(chan gopacket.Packet, 4096), Timeout: 5 * time.Millisecond}
}

func (s *ChanSource) NextPacket() (gopacket.Packet, error) {
	select {
	case p, ok := <-s.Packets:
		if !ok {
			return nil, io.EOF
		}
		return p, nil
	case <-time.After(s.Timeout):
		return nil, pcapsrc.ErrTimeout
	}
}

func (s *ChanSource) Close() error {
	s.closeOnce.Do(func() { s.closed.Store(true) })
	return nil
}

// Closed reports whether Close was called.
func (s *ChanSource) Closed() bool {
	return s.closed.Load()
}

// Opener returns a pcap.Opener that hands out src and counts calls.
func Opener(src pcapsrc.Source, calls *atomic.Int32) pcapsrc.Opener {
	return func(string) (pcapsrc.Source, error) {
		if calls != nil {
			calls.Add(1)
		}
		return src, nil
	}
}

// ErrSource fails every read with Err.
type ErrSource struct {
	Err error
}

func (s ErrSource) NextPacket() (gopacket.Packet, error) { return nil, s.Err }
func (s ErrSource) Close() error                       { return nil }
