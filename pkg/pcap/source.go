package pcap

import (
	"errors"
	"fmt"
	"net"
	"time"

	"github.com/google/gopacket"
	"github.com/google/gopacket/pcap"
)

var (
	// ErrTimeout is returned by Source.NextPacket when no packet arrived within
	// the read timeout. It is not a failure.
	ErrTimeout = errors.New("capture read timed out")

	// ErrNoDevice is returned when no capture device can be selected.
	ErrNoDevice = errors.New("no capture device available")
)

// Source yields decoded packets one at a time.
// NextPacket blocks until a packet arrives, the read timeout expires
// (ErrTimeout) or the source is exhausted (io.EOF).
type Source interface {
	NextPacket() (gopacket.Packet, error)
	Close() error
}

// Opener opens a Source for the named device. An empty name selects the default device.
type Opener func(device string) (Source, error)

// Options controls how sources are opened.
type Options struct {
	SnapshotLen int32
	Promiscuous bool
	ReadTimeout time.Duration
	// File replays a pcap file instead of opening a live device.
	File string
}

// handleSource adapts a pcap handle to Source.
type handleSource struct {
	handle *pcap.Handle
	source *gopacket.PacketSource
}

// Open is an Opener honouring the options.
func (o Options) Open(device string) (Source, error) {
	if o.File != "" {
		return OpenOffline(o.File)
	}
	if device == "" {
		var err error
		if device, err = DefaultDevice(); err != nil {
			return nil, err
		}
	}
	return OpenLive(device, o)
}

// OpenLive opens a live capture handle on device.
func OpenLive(device string, o Options) (Source, error) {
	timeout := o.ReadTimeout
	if timeout <= 0 {
		timeout = pcap.BlockForever
	}
	handle, err := pcap.OpenLive(device, o.SnapshotLen, o.Promiscuous, timeout)
	if err != nil {
		return nil, fmt.Errorf("failed to open interface %s: %w", device, err)
	}
	return newHandleSource(handle), nil
}

// OpenOffline opens a pcap file for replay.
func OpenOffline(filePath string) (Source, error) {
	handle, err := pcap.OpenOffline(filePath)
	if err != nil {
		return nil, fmt.Errorf("failed to open pcap file %s: %w", filePath, err)
	}
	return newHandleSource(handle), nil
}

func newHandleSource(handle *pcap.Handle) *handleSource {
	return &handleSource{
		handle: handle,
		source: gopacket.NewPacketSource(handle, handle.LinkType()),
	}
}

func (s *handleSource) NextPacket() (gopacket.Packet, error) {
	packet, err := s.source.NextPacket()
	if err == pcap.NextErrorTimeoutExpired {
		return nil, ErrTimeout
	}
	return packet, err
}

func (s *handleSource) Close() error {
	s.handle.Close()
	return nil
}

// DefaultDevice returns the first device that carries a non-loopback IPv4
// address, falling back to the first device reported by libpcap.
func DefaultDevice() (string, error) {
	devices, err := pcap.FindAllDevs()
	if err != nil {
		return "", fmt.Errorf("failed to list capture devices: %w", err)
	}
	if len(devices) == 0 {
		return "", ErrNoDevice
	}
	for _, dev := range devices {
		for _, addr := range dev.Addresses {
			if ip4 := addr.IP.To4(); ip4 != nil && !ip4.IsLoopback() {
				return dev.Name, nil
			}
		}
	}
	return devices[0].Name, nil
}

// InterfaceIPv4 returns the first IPv4 network configured on the named interface.
func InterfaceIPv4(name string) (*net.Interface, *net.IPNet, error) {
	iface, err := net.InterfaceByName(name)
	if err != nil {
		return nil, nil, fmt.Errorf("could not get interface %s: %w", name, err)
	}
	addrs, err := iface.Addrs()
	if err != nil {
		return nil, nil, fmt.Errorf("could not get addresses of %s: %w", name, err)
	}
	for _, addr := range addrs {
		if ipnet, ok := addr.(*net.IPNet); ok {
			if ip4 := ipnet.IP.To4(); ip4 != nil {
				return iface, &net.IPNet{IP: ip4, Mask: ipnet.Mask}, nil
			}
		}
	}
	return nil, nil, fmt.Errorf("no IPv4 address found on interface %s", name)
}
