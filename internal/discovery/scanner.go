package discovery

import (
	"bytes"
	"context"
	"fmt"
	"net"
	"sort"
	"strings"
	"sync"
	"time"

	"Go2NetPulse/internal/logging"
	"Go2NetPulse/internal/model"
	pcapsrc "Go2NetPulse/pkg/pcap"

	lru "github.com/hashicorp/golang-lru/v2"
	"github.com/sirupsen/logrus"
	"golang.org/x/sync/errgroup"
)

// UnknownHostname is reported when reverse resolution fails.
const UnknownHostname = "Unknown"

const (
	lookupTimeout     = 2 * time.Second
	lookupConcurrency = 16
)

// Config controls the scanning behavior.
type Config struct {
	// Interface to scan from. Empty selects the default capture device.
	Interface string
	// Wait is how long to collect replies after the last probe. Defaults to 3s.
	Wait time.Duration
	// RateLimit is the delay between ARP requests. Defaults to 50µs.
	RateLimit time.Duration
	// MaxHosts caps how many addresses are probed. Zero or negative disables the cap.
	MaxHosts int
	// HostnameCacheSize bounds the reverse lookup cache. Defaults to 1024.
	HostnameCacheSize int
}

// Resolver returns the names registered for an address.
type Resolver func(ctx context.Context, addr string) ([]string, error)

// host is one ARP reply.
type host struct {
	IP  net.IP
	MAC net.HardwareAddr
}

type probeFunc func(ctx context.Context, iface *net.Interface, local net.IP, targets []net.IP) ([]host, error)

// Scanner enumerates devices on the local subnet. It keeps the result of the
// latest scan and shares no state with the capture engine.
type Scanner struct {
	cfg             Config
	resolve         Resolver
	names           *lru.Cache[string, string]
	probe           probeFunc
	lookupInterface func(name string) (*net.Interface, *net.IPNet, error)
	defaultDevice   func() (string, error)
	log             *logrus.Entry

	mu      sync.RWMutex
	devices []model.Device
}

// NewScanner creates a Scanner that resolves names through the system resolver.
func NewScanner(cfg Config) (*Scanner, error) {
	if cfg.Wait <= 0 {
		cfg.Wait = 3 * time.Second
	}
	if cfg.RateLimit <= 0 {
		cfg.RateLimit = 50 * time.Microsecond
	}
	if cfg.HostnameCacheSize <= 0 {
		cfg.HostnameCacheSize = 1024
	}

	names, err := lru.New[string, string](cfg.HostnameCacheSize)
	if err != nil {
		return nil, fmt.Errorf("failed to create hostname cache: %w", err)
	}

	s := &Scanner{
		cfg:             cfg,
		resolve:         net.DefaultResolver.LookupAddr,
		names:           names,
		lookupInterface: pcapsrc.InterfaceIPv4,
		defaultDevice:   pcapsrc.DefaultDevice,
		log:             logging.For("discovery"),
		devices:         []model.Device{},
	}
	s.probe = s.arpProbe
	return s, nil
}

// Scan probes ipRange (CIDR notation) or, when empty, the /24 containing the
// interface address. It blocks for the configured wait after the last probe.
// Finding no device is not an error.
func (s *Scanner) Scan(ctx context.Context, ipRange string) ([]model.Device, error) {
	ifaceName := s.cfg.Interface
	if ifaceName == "" {
		var err error
		if ifaceName, err = s.defaultDevice(); err != nil {
			return nil, err
		}
	}
	iface, local, err := s.lookupInterface(ifaceName)
	if err != nil {
		return nil, err
	}

	network, err := targetNetwork(ipRange, local.IP)
	if err != nil {
		return nil, err
	}
	targets := hostAddresses(network, local.IP, s.cfg.MaxHosts)
	s.log.WithFields(logrus.Fields{"interface": ifaceName, "range": network.String(), "targets": len(targets)}).Info("Scanning network")

	hosts, err := s.probe(ctx, iface, local.IP, targets)
	if err != nil {
		return nil, err
	}

	devices := s.describe(ctx, hosts)
	s.mu.Lock()
	s.devices = devices
	s.mu.Unlock()

	s.log.WithField("devices", len(devices)).Info("Scan completed")
	return cloneDevices(devices), nil
}

// Devices returns the result of the latest scan.
func (s *Scanner) Devices() []model.Device {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return cloneDevices(s.devices)
}

// describe resolves hostnames and returns devices sorted by IP.
func (s *Scanner) describe(ctx context.Context, hosts []host) []model.Device {
	sort.Slice(hosts, func(i, j int) bool {
		return bytes.Compare(hosts[i].IP.To4(), hosts[j].IP.To4()) < 0
	})

	devices := make([]model.Device, len(hosts))
	g, gctx := errgroup.WithContext(ctx)
	g.SetLimit(lookupConcurrency)
	for i, h := range hosts {
		devices[i] = model.Device{IP: h.IP.String(), MAC: h.MAC.String()}
		g.Go(func() error {
			devices[i].Hostname = s.hostname(gctx, devices[i].IP)
			return nil
		})
	}
	_ = g.Wait()
	return devices
}

func (s *Scanner) hostname(ctx context.Context, ip string) string {
	if name, ok := s.names.Get(ip); ok {
		return name
	}

	ctx, cancel := context.WithTimeout(ctx, lookupTimeout)
	defer cancel()
	names, err := s.resolve(ctx, ip)
	if err != nil || len(names) == 0 {
		return UnknownHostname
	}
	name := strings.TrimSuffix(names[0], ".")
	s.names.Add(ip, name)
	return name
}

// targetNetwork parses ipRange, defaulting to the /24 around local.
func targetNetwork(ipRange string, local net.IP) (*net.IPNet, error) {
	if ipRange == "" {
		return &net.IPNet{IP: local.To4().Mask(net.CIDRMask(24, 32)), Mask: net.CIDRMask(24, 32)}, nil
	}
	_, network, err := net.ParseCIDR(ipRange)
	if err != nil {
		return nil, fmt.Errorf("invalid ip range %q: %w", ipRange, err)
	}
	if network.IP.To4() == nil {
		return nil, fmt.Errorf("invalid ip range %q: only IPv4 ranges can be scanned", ipRange)
	}
	return network, nil
}

// hostAddresses lists the addresses of network to probe, skipping the network
// and broadcast addresses (for prefixes shorter than /31) and exclude.
func hostAddresses(network *net.IPNet, exclude net.IP, limit int) []net.IP {
	ones, bits := network.Mask.Size()
	first := network.IP.To4().Mask(network.Mask)
	size := uint64(1) << uint(bits-ones)

	start, end := uint64(0), size
	if size > 2 {
		start, end = 1, size-1
	}

	base := uint64(first[0])<<24 | uint64(first[1])<<16 | uint64(first[2])<<8 | uint64(first[3])
	var out []net.IP
	for off := start; off < end; off++ {
		if limit > 0 && len(out) >= limit {
			break
		}
		v := base + off
		ip := net.IPv4(byte(v>>24), byte(v>>16), byte(v>>8), byte(v)).To4()
		if exclude != nil && ip.Equal(exclude) {
			continue
		}
		out = append(out, ip)
	}
	return out
}

func cloneDevices(in []model.Device) []model.Device {
	out := make([]model.Device, len(in))
	copy(out, in)
	return out
}
