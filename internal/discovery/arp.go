package discovery

import (
	"context"
	"fmt"
	"net"
	"sync"
	"time"

	"github.com/google/gopacket"
	"github.com/google/gopacket/layers"
	"github.com/google/gopacket/pcap"
)

const arpReadTimeout = 100 * time.Millisecond

// arpProbe broadcasts an ARP request to every target and collects the replies
// received until the configured wait has elapsed after the last request.
func (s *Scanner) arpProbe(ctx context.Context, iface *net.Interface, local net.IP, targets []net.IP) ([]host, error) {
	handle, err := pcap.OpenLive(iface.Name, 65536, true, arpReadTimeout)
	if err != nil {
		return nil, fmt.Errorf("could not open handle: %w", err)
	}
	defer handle.Close()

	if err := handle.SetBPFFilter("arp"); err != nil {
		return nil, fmt.Errorf("could not set BPF filter: %w", err)
	}

	wanted := make(map[string]struct{}, len(targets))
	for _, ip := range targets {
		wanted[ip.String()] = struct{}{}
	}

	var (
		mu         sync.Mutex
		discovered = make(map[string]host)
		done       = make(chan struct{})
		wg         sync.WaitGroup
	)

	wg.Add(1)
	go func() {
		defer wg.Done()
		for {
			select {
			case <-done:
				return
			default:
			}

			data, _, err := handle.ReadPacketData()
			if err == pcap.NextErrorTimeoutExpired {
				continue
			}
			if err != nil {
				s.log.WithError(err).Debug("ARP read failed")
				return
			}

			packet := gopacket.NewPacket(data, layers.LayerTypeEthernet, gopacket.Default)
			arpLayer := packet.Layer(layers.LayerTypeARP)
			if arpLayer == nil {
				continue
			}
			arp := arpLayer.(*layers.ARP)
			if arp.Operation != layers.ARPReply {
				continue
			}

			ip := net.IP(arp.SourceProtAddress).To4()
			if _, ok := wanted[ip.String()]; !ok {
				continue
			}

			mu.Lock()
			if _, exists := discovered[ip.String()]; !exists {
				mac := make(net.HardwareAddr, len(arp.SourceHwAddress))
				copy(mac, arp.SourceHwAddress)
				discovered[ip.String()] = host{IP: ip, MAC: mac}
			}
			mu.Unlock()
		}
	}()

	stop := func() {
		close(done)
		wg.Wait()
	}

	ticker := time.NewTicker(s.cfg.RateLimit)
	defer ticker.Stop()

	for _, target := range targets {
		select {
		case <-ctx.Done():
			stop()
			return nil, ctx.Err()
		case <-ticker.C:
		}
		if err := sendARPRequest(handle, iface, local, target); err != nil {
			s.log.WithError(err).WithField("target", target.String()).Debug("Failed to send ARP request")
		}
	}

	wait := time.NewTimer(s.cfg.Wait)
	defer wait.Stop()
	select {
	case <-ctx.Done():
	case <-wait.C:
	}
	stop()

	mu.Lock()
	defer mu.Unlock()
	hosts := make([]host, 0, len(discovered))
	for _, h := range discovered {
		hosts = append(hosts, h)
	}
	return hosts, nil
}

// sendARPRequest sends a single broadcast ARP request.
func sendARPRequest(handle *pcap.Handle, iface *net.Interface, srcIP, dstIP net.IP) error {
	eth := layers.Ethernet{
		SrcMAC:       iface.HardwareAddr,
		DstMAC:       net.HardwareAddr{0xff, 0xff, 0xff, 0xff, 0xff, 0xff},
		EthernetType: layers.EthernetTypeARP,
	}
	arp := layers.ARP{
		AddrType:          layers.LinkTypeEthernet,
		Protocol:          layers.EthernetTypeIPv4,
		HwAddressSize:     6,
		ProtAddressSize:   4,
		Operation:         layers.ARPRequest,
		SourceHwAddress:   []byte(iface.HardwareAddr),
		SourceProtAddress: []byte(srcIP.To4()),
		DstHwAddress:      []byte{0, 0, 0, 0, 0, 0},
		DstProtAddress:    []byte(dstIP.To4()),
	}

	buf := gopacket.NewSerializeBuffer()
	opts := gopacket.SerializeOptions{
		FixLengths:       true,
		ComputeChecksums: true,
	}
	if err := gopacket.SerializeLayers(buf, opts, &eth, &arp); err != nil {
		return err
	}
	return handle.WritePacketData(buf.Bytes())
}
