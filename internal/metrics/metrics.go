// Package metrics implements Prometheus metrics for the capture engine.
package metrics

import (
	"Go2NetPulse/internal/model"

	"github.com/prometheus/client_golang/prometheus"
)

// Metrics groups the collectors updated on the ingestion path.
// A nil *Metrics is valid and records nothing.
type Metrics struct {
	packets       *prometheus.CounterVec
	bytes         prometheus.Counter
	dropped       prometheus.Counter
	captureActive prometheus.Gauge
}

// New creates the collectors and registers them with reg.
func New(reg prometheus.Registerer) *Metrics {
	m := &Metrics{
		packets: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Name: "ns_monitor_packets_total",
				Help: "Total number of classified packets",
			},
			[]string{"protocol"},
		),
		bytes: prometheus.NewCounter(prometheus.CounterOpts{
			Name: "ns_monitor_bytes_total",
			Help: "Total number of bytes in classified packets",
		}),
		dropped: prometheus.NewCounter(prometheus.CounterOpts{
			Name: "ns_monitor_dropped_packets_total",
			Help: "Packets discarded because they carried no IPv4 header",
		}),
		captureActive: prometheus.NewGauge(prometheus.GaugeOpts{
			Name: "ns_monitor_capture_active",
			Help: "1 while the capture engine is running, 0 otherwise",
		}),
	}
	reg.MustRegister(m.packets, m.bytes, m.dropped, m.captureActive)
	return m
}

// ObservePacket counts one recorded packet.
func (m *Metrics) ObservePacket(rec model.PacketRecord) {
	if m == nil {
		return
	}
	m.packets.WithLabelValues(rec.Protocol).Inc()
	m.bytes.Add(float64(rec.Size))
}

// ObserveDropped counts one unclassifiable packet.
func (m *Metrics) ObserveDropped() {
	if m == nil {
		return
	}
	m.dropped.Inc()
}

// SetCapturing mirrors the engine state.
func (m *Metrics) SetCapturing(active bool) {
	if m == nil {
		return
	}
	if active {
		m.captureActive.Set(1)
	} else {
		m.captureActive.Set(0)
	}
}
