package model

import (
	"encoding/json"
	"time"
)

// TimestampLayout is the millisecond layout used when a PacketRecord is rendered.
const TimestampLayout = "2006-01-02 15:04:05.000"

// PacketRecord holds the summary extracted from a single observed packet.
// It is immutable once created.
type PacketRecord struct {
	Timestamp  time.Time
	SourceIP   string
	DestIP     string
	SourcePort uint16
	DestPort   uint16
	Protocol   string
	Size       int
}

// packetRecordJSON is the wire shape of a PacketRecord; field names match the export columns.
type packetRecordJSON struct {
	Timestamp  string `json:"timestamp"`
	SourceIP   string `json:"source_ip"`
	DestIP     string `json:"dest_ip"`
	SourcePort uint16 `json:"source_port"`
	DestPort   uint16 `json:"dest_port"`
	Protocol   string `json:"protocol"`
	Size       int    `json:"size"`
}

// MarshalJSON renders the timestamp with millisecond precision.
func (r PacketRecord) MarshalJSON() ([]byte, error) {
	return json.Marshal(packetRecordJSON{
		Timestamp:  r.Timestamp.Format(TimestampLayout),
		SourceIP:   r.SourceIP,
		DestIP:     r.DestIP,
		SourcePort: r.SourcePort,
		DestPort:   r.DestPort,
		Protocol:   r.Protocol,
		Size:       r.Size,
	})
}

// UnmarshalJSON accepts the format produced by MarshalJSON.
func (r *PacketRecord) UnmarshalJSON(data []byte) error {
	var raw packetRecordJSON
	if err := json.Unmarshal(data, &raw); err != nil {
		return err
	}
	ts, err := time.ParseInLocation(TimestampLayout, raw.Timestamp, time.Local)
	if err != nil {
		return err
	}
	*r = PacketRecord{
		Timestamp:  ts,
		SourceIP:   raw.SourceIP,
		DestIP:     raw.DestIP,
		SourcePort: raw.SourcePort,
		DestPort:   raw.DestPort,
		Protocol:   raw.Protocol,
		Size:       raw.Size,
	}
	return nil
}

// Stats is a point-in-time view of the running totals.
type Stats struct {
	TotalPackets    uint64 `json:"total_packets"`
	TotalBytes      uint64 `json:"total_bytes"`
	ActiveIPs       int    `json:"active_ips"`
	DurationSeconds int64  `json:"duration_seconds"`
	IsCapturing     bool   `json:"is_capturing"`
}

// Talker is a source IP ranked by the number of packets attributed to it.
type Talker struct {
	IP    string `json:"ip"`
	Count uint64 `json:"count"`
}

// Device is a host that answered a discovery scan.
type Device struct {
	IP       string `json:"ip"`
	MAC      string `json:"mac"`
	Hostname string `json:"hostname"`
}

// StatsSnapshot bundles every aggregate view taken at one instant.
// It is the payload handed to snapshot writers.
type StatsSnapshot struct {
	Timestamp            time.Time
	Stats                Stats
	ProtocolDistribution map[string]uint64
	TopTalkers           []Talker
}
