package model

import (
	"context"
	"time"
)

// Writer defines a generic interface for persisting statistics snapshots.
type Writer interface {
	// Write takes a snapshot and hands it to the backing store.
	Write(ctx context.Context, snapshot StatsSnapshot) error

	// GetInterval returns the configured snapshot interval for this writer.
	GetInterval() time.Duration

	// Name identifies the writer in logs.
	Name() string
}

// RecordSink receives every PacketRecord accepted by the capture engine.
// Implementations must not block for long; errors are logged and dropped.
type RecordSink interface {
	Publish(record PacketRecord) error
}
