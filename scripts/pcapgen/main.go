package main

import (
	"fmt"
	"io"
	"math/rand/v2"
	"net"
	"os"
	"time"

	"github.com/google/gopacket"
	"github.com/google/gopacket/layers"
	"github.com/google/gopacket/pcapgo"
	"github.com/sirupsen/logrus"
	"github.com/spf13/cobra"
)

// service is one kind of synthetic traffic. label is the protocol the
// monitor is expected to report, empty for frames it drops.
type service struct {
	label  string
	weight int
	build  func(rng *rand.Rand, src, dst net.IP) []gopacket.SerializableLayer
}

var services = []service{
	{"HTTP", 20, tcpTo(80)},
	{"HTTPS", 30, tcpTo(443)},
	{"SSH", 5, tcpTo(22)},
	{"FTP", 2, tcpTo(21)},
	{"DNS", 10, udpTo(53)},
	{"DHCP", 2, udpFixed(68, 67)},
	{"TCP", 8, tcpTo(0)},
	{"UDP", 8, udpTo(0)},
	{"ICMP", 5, icmpEcho},
	{"OTHER", 2, gre},
	{"", 3, arpRequest},
}

var (
	outputFile  string
	packetCount int
	seed        uint64
)

var rootCmd = &cobra.Command{
	Use:   "pcapgen",
	Short: "Generate a pcap file with a mix of LAN traffic for offline replay",
	RunE: func(cmd *cobra.Command, args []string) error {
		f, err := os.Create(outputFile)
		if err != nil {
			return fmt.Errorf("failed to create output file: %w", err)
		}
		defer f.Close()

		logrus.Infof("Generating %d packets into %s...", packetCount, outputFile)
		counts, err := generate(f, packetCount, rand.New(rand.NewPCG(seed, seed)), time.Now())
		if err != nil {
			return err
		}
		logrus.WithField("labels", counts).Infof("Successfully generated %d packets into %s", packetCount, outputFile)
		return nil
	},
}

func main() {
	rootCmd.Flags().StringVarP(&outputFile, "output", "o", "test.pcap", "output pcap file path")
	rootCmd.Flags().IntVarP(&packetCount, "count", "c", 1000, "number of packets to generate")
	rootCmd.Flags().Uint64Var(&seed, "seed", uint64(time.Now().UnixNano()), "random seed")
	if err := rootCmd.Execute(); err != nil {
		os.Exit(1)
	}
}

// generate writes count Ethernet frames to w, one millisecond apart starting
// at start, and returns how many frames carry each expected label.
func generate(w io.Writer, count int, rng *rand.Rand, start time.Time) (map[string]int, error) {
	pcapWriter := pcapgo.NewWriter(w)
	if err := pcapWriter.WriteFileHeader(65536, layers.LinkTypeEthernet); err != nil {
		return nil, fmt.Errorf("failed to write pcap header: %w", err)
	}

	total := 0
	for _, s := range services {
		total += s.weight
	}

	counts := make(map[string]int)
	opts := gopacket.SerializeOptions{ComputeChecksums: true, FixLengths: true}
	for i := 0; i < count; i++ {
		svc := pick(rng, total)
		src := lanHost(rng)
		dst := lanHost(rng)

		buf := gopacket.NewSerializeBuffer()
		if err := gopacket.SerializeLayers(buf, opts, svc.build(rng, src, dst)...); err != nil {
			return nil, fmt.Errorf("failed to serialize layers: %w", err)
		}

		ci := gopacket.CaptureInfo{
			Timestamp:     start.Add(time.Duration(i) * time.Millisecond),
			CaptureLength: len(buf.Bytes()),
			Length:        len(buf.Bytes()),
		}
		if err := pcapWriter.WritePacket(ci, buf.Bytes()); err != nil {
			return nil, fmt.Errorf("failed to write packet: %w", err)
		}
		counts[svc.label]++
	}
	return counts, nil
}

func pick(rng *rand.Rand, total int) service {
	n := rng.IntN(total)
	for _, s := range services {
		if n < s.weight {
			return s
		}
		n -= s.weight
	}
	return services[len(services)-1]
}

func lanHost(rng *rand.Rand) net.IP {
	return net.IPv4(192, 168, 1, byte(rng.IntN(20)+2)).To4()
}

func ethernet(t layers.EthernetType) *layers.Ethernet {
	return &layers.Ethernet{
		SrcMAC:       net.HardwareAddr{0x00, 0x11, 0x22, 0x33, 0x44, 0x55},
		DstMAC:       net.HardwareAddr{0x00, 0x66, 0x77, 0x88, 0x99, 0xAA},
		EthernetType: t,
	}
}

func ipv4(src, dst net.IP, proto layers.IPProtocol) *layers.IPv4 {
	return &layers.IPv4{SrcIP: src, DstIP: dst, Version: 4, TTL: 64, Protocol: proto}
}

// ephemeral returns a client port that matches none of the well-known rules.
func ephemeral(rng *rand.Rand) uint16 {
	return uint16(rng.IntN(65535-1024) + 1024)
}

// payload is zero-filled so that no tunnel decoder finds an inner packet.
func payload(rng *rand.Rand, max int) gopacket.Payload {
	return make([]byte, rng.IntN(max)+1)
}

func tcpTo(port uint16) func(*rand.Rand, net.IP, net.IP) []gopacket.SerializableLayer {
	return func(rng *rand.Rand, src, dst net.IP) []gopacket.SerializableLayer {
		dport := port
		if dport == 0 {
			dport = ephemeral(rng)
		}
		ip := ipv4(src, dst, layers.IPProtocolTCP)
		tcp := &layers.TCP{
			SrcPort: layers.TCPPort(ephemeral(rng)),
			DstPort: layers.TCPPort(dport),
			Seq:     rng.Uint32(),
			ACK:     true,
			PSH:     true,
			Window:  14600,
		}
		tcp.SetNetworkLayerForChecksum(ip)
		return []gopacket.SerializableLayer{ethernet(layers.EthernetTypeIPv4), ip, tcp, payload(rng, 1400)}
	}
}

func udpTo(port uint16) func(*rand.Rand, net.IP, net.IP) []gopacket.SerializableLayer {
	return func(rng *rand.Rand, src, dst net.IP) []gopacket.SerializableLayer {
		dport := port
		if dport == 0 {
			dport = ephemeral(rng)
		}
		return udpLayers(rng, src, dst, ephemeral(rng), dport)
	}
}

func udpFixed(sport, dport uint16) func(*rand.Rand, net.IP, net.IP) []gopacket.SerializableLayer {
	return func(rng *rand.Rand, src, dst net.IP) []gopacket.SerializableLayer {
		return udpLayers(rng, src, dst, sport, dport)
	}
}

func udpLayers(rng *rand.Rand, src, dst net.IP, sport, dport uint16) []gopacket.SerializableLayer {
	ip := ipv4(src, dst, layers.IPProtocolUDP)
	udp := &layers.UDP{SrcPort: layers.UDPPort(sport), DstPort: layers.UDPPort(dport)}
	udp.SetNetworkLayerForChecksum(ip)
	return []gopacket.SerializableLayer{ethernet(layers.EthernetTypeIPv4), ip, udp, payload(rng, 512)}
}

func icmpEcho(rng *rand.Rand, src, dst net.IP) []gopacket.SerializableLayer {
	icmp := &layers.ICMPv4{
		TypeCode: layers.CreateICMPv4TypeCode(layers.ICMPv4TypeEchoRequest, 0),
		Id:       uint16(rng.Uint32()),
		Seq:      uint16(rng.IntN(1000)),
	}
	return []gopacket.SerializableLayer{ethernet(layers.EthernetTypeIPv4), ipv4(src, dst, layers.IPProtocolICMPv4), icmp, payload(rng, 56)}
}

func gre(rng *rand.Rand, src, dst net.IP) []gopacket.SerializableLayer {
	return []gopacket.SerializableLayer{ethernet(layers.EthernetTypeIPv4), ipv4(src, dst, layers.IPProtocolGRE), payload(rng, 64)}
}

func arpRequest(_ *rand.Rand, src, dst net.IP) []gopacket.SerializableLayer {
	eth := ethernet(layers.EthernetTypeARP)
	arp := &layers.ARP{
		AddrType:          layers.LinkTypeEthernet,
		Protocol:          layers.EthernetTypeIPv4,
		HwAddressSize:     6,
		ProtAddressSize:   4,
		Operation:         layers.ARPRequest,
		SourceHwAddress:   []byte(eth.SrcMAC),
		SourceProtAddress: []byte(src),
		DstHwAddress:      []byte{0, 0, 0, 0, 0, 0},
		DstProtAddress:    []byte(dst),
	}
	return []gopacket.SerializableLayer{eth, arp}
}
