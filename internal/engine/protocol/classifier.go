package protocol

import "errors"

// Label is the application-level category assigned to a packet.
type Label string

const (
	HTTP  Label = "HTTP"
	HTTPS Label = "HTTPS"
	SSH   Label = "SSH"
	FTP   Label = "FTP"
	DNS   Label = "DNS"
	DHCP  Label = "DHCP"
	TCP   Label = "TCP"
	UDP   Label = "UDP"
	ICMP  Label = "ICMP"
	OTHER Label = "OTHER"
)

// ErrUnclassifiable is returned for packets without an IPv4 header.
var ErrUnclassifiable = errors.New("packet has no IPv4 header")

type portRule struct {
	port  uint16
	label Label
}

// Evaluated in order; the first rule matching either port wins.
var (
	tcpRules = []portRule{{80, HTTP}, {443, HTTPS}, {22, SSH}, {21, FTP}, {53, DNS}}
	udpRules = []portRule{{53, DNS}, {67, DHCP}, {68, DHCP}}
)

// Classify maps the decoded headers of a packet to a protocol label.
func Classify(p DecodedPacket) (Label, error) {
	if p.IPv4 == nil {
		return "", ErrUnclassifiable
	}
	switch {
	case p.TCP != nil:
		return matchPorts(tcpRules, *p.TCP, TCP), nil
	case p.UDP != nil:
		return matchPorts(udpRules, *p.UDP, UDP), nil
	case p.ICMP != nil:
		return ICMP, nil
	}
	return OTHER, nil
}

func matchPorts(rules []portRule, h PortHeader, fallback Label) Label {
	for _, r := range rules {
		if h.SrcPort == r.port || h.DstPort == r.port {
			return r.label
		}
	}
	return fallback
}
