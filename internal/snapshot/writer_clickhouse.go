package snapshot

import (
	"context"
	"fmt"
	"time"

	"Go2NetPulse/internal/config"
	"Go2NetPulse/internal/logging"
	"Go2NetPulse/internal/model"

	"github.com/ClickHouse/clickhouse-go/v2"
	"github.com/ClickHouse/clickhouse-go/v2/lib/driver"
)

const createTableStatement = `
CREATE TABLE IF NOT EXISTS traffic_snapshots (
    Timestamp            DateTime64(3),
    TotalPackets         UInt64,
    TotalBytes           UInt64,
    ActiveIPs            UInt32,
    DurationSeconds      Int64,
    IsCapturing          Bool,
    ProtocolDistribution Map(String, UInt64),
    TopTalkerIPs         Array(String),
    TopTalkerCounts      Array(UInt64)
) ENGINE = MergeTree()
PARTITION BY toYYYYMM(Timestamp)
ORDER BY Timestamp;
`

func init() {
	RegisterWriter("clickhouse", func(def config.WriterDef, interval time.Duration) (model.Writer, error) {
		w, err := NewClickHouseWriter(def.ClickHouse, interval)
		if err != nil {
			return nil, err
		}
		return w, nil
	})
}

// ClickHouseWriter implements the model.Writer interface for ClickHouse.
type ClickHouseWriter struct {
	conn     driver.Conn
	interval time.Duration
}

// NewClickHouseWriter creates a new ClickHouse writer and ensures its table exists.
func NewClickHouseWriter(cfg config.ClickHouseConfig, interval time.Duration) (*ClickHouseWriter, error) {
	conn, err := connect(cfg)
	if err != nil {
		return nil, fmt.Errorf("failed to connect to clickhouse: %w", err)
	}

	if err := conn.Exec(context.Background(), createTableStatement); err != nil {
		return nil, fmt.Errorf("failed to create table: %w", err)
	}
	logging.For("snapshot").Info("Connected to ClickHouse and ensured table exists")

	return &ClickHouseWriter{conn: conn, interval: interval}, nil
}

func connect(cfg config.ClickHouseConfig) (driver.Conn, error) {
	addr := fmt.Sprintf("%s:%d", cfg.Host, cfg.Port)

	conn, err := clickhouse.Open(&clickhouse.Options{
		Addr: []string{addr},
		Auth: clickhouse.Auth{
			Database: cfg.Database,
			Username: cfg.Username,
			Password: cfg.Password,
		},
		Compression: &clickhouse.Compression{
			Method: clickhouse.CompressionLZ4,
		},
	})
	if err != nil {
		return nil, err
	}

	if err := conn.Ping(context.Background()); err != nil {
		return nil, fmt.Errorf("failed to ping clickhouse: %w", err)
	}
	return conn, nil
}

// Write inserts one row into traffic_snapshots.
func (w *ClickHouseWriter) Write(ctx context.Context, snap model.StatsSnapshot) error {
	batch, err := w.conn.PrepareBatch(ctx, "INSERT INTO traffic_snapshots")
	if err != nil {
		return fmt.Errorf("failed to prepare batch: %w", err)
	}

	if err := batch.Append(snapshotRow(snap)...); err != nil {
		return fmt.Errorf("failed to append snapshot to batch: %w", err)
	}
	if err := batch.Send(); err != nil {
		return fmt.Errorf("failed to send batch: %w", err)
	}
	return nil
}

// snapshotRow flattens a snapshot into the column order of traffic_snapshots.
func snapshotRow(snap model.StatsSnapshot) []interface{} {
	ips := make([]string, len(snap.TopTalkers))
	counts := make([]uint64, len(snap.TopTalkers))
	for i, t := range snap.TopTalkers {
		ips[i] = t.IP
		counts[i] = t.Count
	}
	dist := snap.ProtocolDistribution
	if dist == nil {
		dist = map[string]uint64{}
	}
	return []interface{}{
		snap.Timestamp,
		snap.Stats.TotalPackets,
		snap.Stats.TotalBytes,
		uint32(snap.Stats.ActiveIPs),
		snap.Stats.DurationSeconds,
		snap.Stats.IsCapturing,
		dist,
		ips,
		counts,
	}
}

// GetInterval returns the configured snapshot interval for this writer.
func (w *ClickHouseWriter) GetInterval() time.Duration {
	return w.interval
}

func (w *ClickHouseWriter) Name() string {
	return "clickhouse"
}

// Close releases the connection.
func (w *ClickHouseWriter) Close() error {
	return w.conn.Close()
}
