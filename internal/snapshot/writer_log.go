package snapshot

import (
	"context"
	"time"

	"Go2NetPulse/internal/config"
	"Go2NetPulse/internal/logging"
	"Go2NetPulse/internal/model"

	"github.com/sirupsen/logrus"
)

func init() {
	RegisterWriter("log", func(_ config.WriterDef, interval time.Duration) (model.Writer, error) {
		return NewLogWriter(logging.For("stats"), interval), nil
	})
}

// LogWriter emits each snapshot as a structured log line.
type LogWriter struct {
	log      *logrus.Entry
	interval time.Duration
}

// NewLogWriter creates a writer that logs to entry.
func NewLogWriter(entry *logrus.Entry, interval time.Duration) *LogWriter {
	return &LogWriter{log: entry, interval: interval}
}

func (w *LogWriter) Write(_ context.Context, snap model.StatsSnapshot) error {
	fields := logrus.Fields{
		"total_packets": snap.Stats.TotalPackets,
		"total_bytes":   snap.Stats.TotalBytes,
		"active_ips":    snap.Stats.ActiveIPs,
		"duration":      snap.Stats.DurationSeconds,
		"capturing":     snap.Stats.IsCapturing,
	}
	for proto, n := range snap.ProtocolDistribution {
		fields["proto_"+proto] = n
	}
	if len(snap.TopTalkers) > 0 {
		fields["top_talker"] = snap.TopTalkers[0].IP
	}
	w.log.WithFields(fields).Info("Traffic snapshot")
	return nil
}

// GetInterval returns the configured snapshot interval for this writer.
func (w *LogWriter) GetInterval() time.Duration {
	return w.interval
}

func (w *LogWriter) Name() string {
	return "log"
}
