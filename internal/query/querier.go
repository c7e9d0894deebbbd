package query

import (
	"time"

	"Go2NetPulse/internal/engine/stats"
	"Go2NetPulse/internal/model"
)

const (
	DefaultTopTalkers    = 5
	DefaultRecentPackets = 20
)

// Capturer reports the engine run state.
type Capturer interface {
	IsCapturing() bool
}

// Querier defines the read-only queries served to the API layer.
// No method mutates engine state.
type Querier interface {
	Stats() model.Stats
	ProtocolDistribution() map[string]uint64
	TopTalkers(limit int) []model.Talker
	RecentPackets(limit int) []model.PacketRecord
	AllPackets() []model.PacketRecord
	Snapshot(topTalkers int) model.StatsSnapshot
}

// engineQuerier implements the Querier interface over a statistics reader.
type engineQuerier struct {
	reader   stats.Reader
	capturer Capturer
	now      func() time.Time
}

// NewQuerier creates a querier for the given store view and run state.
func NewQuerier(reader stats.Reader, capturer Capturer) Querier {
	return &engineQuerier{reader: reader, capturer: capturer, now: time.Now}
}

// Stats returns the totals together with the current capturing flag.
func (q *engineQuerier) Stats() model.Stats {
	st := q.reader.Stats()
	st.IsCapturing = q.capturer.IsCapturing()
	return st
}

func (q *engineQuerier) ProtocolDistribution() map[string]uint64 {
	return q.reader.ProtocolDistribution()
}

// TopTalkers falls back to DefaultTopTalkers when limit is not positive.
func (q *engineQuerier) TopTalkers(limit int) []model.Talker {
	if limit <= 0 {
		limit = DefaultTopTalkers
	}
	return q.reader.TopTalkers(limit)
}

// RecentPackets falls back to DefaultRecentPackets when limit is not positive.
func (q *engineQuerier) RecentPackets(limit int) []model.PacketRecord {
	if limit <= 0 {
		limit = DefaultRecentPackets
	}
	return q.reader.Recent(limit)
}

func (q *engineQuerier) AllPackets() []model.PacketRecord {
	return q.reader.All()
}

// Snapshot gathers every aggregate view. Each view is individually consistent;
// the views are read one after the other.
func (q *engineQuerier) Snapshot(topTalkers int) model.StatsSnapshot {
	return model.StatsSnapshot{
		Timestamp:            q.now(),
		Stats:                q.Stats(),
		ProtocolDistribution: q.ProtocolDistribution(),
		TopTalkers:           q.TopTalkers(topTalkers),
	}
}
