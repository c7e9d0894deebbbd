package stats

import (
	"cmp"
	"slices"
	"sync"
	"time"

	"Go2NetPulse/internal/model"
)

// DefaultRecentCapacity is the number of PacketRecords kept for the recent window.
const DefaultRecentCapacity = 1000

// Reader is the read-only view of a Store handed to query code.
type Reader interface {
	Stats() model.Stats
	ProtocolDistribution() map[string]uint64
	TopTalkers(n int) []model.Talker
	Recent(n int) []model.PacketRecord
	All() []model.PacketRecord
}

type talker struct {
	count uint64
	// order of first appearance, used to break ties between equal counts
	seq uint64
}

// Store holds the running statistics and the bounded recent-packet buffer.
// One writer calls Record; any number of readers may take snapshots.
// Every method holds the lock for its whole duration, so readers never
// observe a partially applied Record.
type Store struct {
	mu sync.RWMutex

	totalPackets uint64
	totalBytes   uint64
	protocols    map[string]uint64
	talkers      map[string]*talker
	nextSeq      uint64
	startTime    time.Time

	// ring buffer: recent[head] is the oldest record once the buffer is full
	recent []model.PacketRecord
	head   int
	size   int

	now func() time.Time
}

// NewStore creates a Store whose recent buffer holds capacity records.
func NewStore(capacity int) *Store {
	if capacity <= 0 {
		capacity = DefaultRecentCapacity
	}
	return &Store{
		protocols: make(map[string]uint64),
		talkers:   make(map[string]*talker),
		recent:    make([]model.PacketRecord, capacity),
		now:       time.Now,
	}
}

// Record applies one packet to the counters and appends it to the recent
// buffer, evicting the oldest record when the buffer is full.
func (s *Store) Record(rec model.PacketRecord) {
	s.mu.Lock()
	defer s.mu.Unlock()

	s.totalPackets++
	s.totalBytes += uint64(rec.Size)
	s.protocols[rec.Protocol]++

	if t, ok := s.talkers[rec.SourceIP]; ok {
		t.count++
	} else {
		s.talkers[rec.SourceIP] = &talker{count: 1, seq: s.nextSeq}
		s.nextSeq++
	}

	capacity := len(s.recent)
	if s.size < capacity {
		s.recent[(s.head+s.size)%capacity] = rec
		s.size++
		return
	}
	s.recent[s.head] = rec
	s.head = (s.head + 1) % capacity
}

// MarkStarted sets the capture start time.
func (s *Store) MarkStarted(t time.Time) {
	s.mu.Lock()
	s.startTime = t
	s.mu.Unlock()
}

// Stats returns the totals. IsCapturing is left false; the engine owns that flag.
func (s *Store) Stats() model.Stats {
	s.mu.RLock()
	defer s.mu.RUnlock()

	var duration int64
	if !s.startTime.IsZero() {
		duration = int64(s.now().Sub(s.startTime) / time.Second)
	}
	return model.Stats{
		TotalPackets:    s.totalPackets,
		TotalBytes:      s.totalBytes,
		ActiveIPs:       len(s.talkers),
		DurationSeconds: duration,
	}
}

// ProtocolDistribution returns a copy of the label -> count mapping.
func (s *Store) ProtocolDistribution() map[string]uint64 {
	s.mu.RLock()
	defer s.mu.RUnlock()

	out := make(map[string]uint64, len(s.protocols))
	for label, count := range s.protocols {
		out[label] = count
	}
	return out
}

// TopTalkers returns up to n source IPs ordered by descending packet count.
// Equal counts are ordered by first appearance.
func (s *Store) TopTalkers(n int) []model.Talker {
	if n <= 0 {
		return []model.Talker{}
	}

	type ranked struct {
		ip string
		talker
	}

	s.mu.RLock()
	all := make([]ranked, 0, len(s.talkers))
	for ip, t := range s.talkers {
		all = append(all, ranked{ip: ip, talker: *t})
	}
	s.mu.RUnlock()

	slices.SortFunc(all, func(a, b ranked) int {
		if c := cmp.Compare(b.count, a.count); c != 0 {
			return c
		}
		return cmp.Compare(a.seq, b.seq)
	})

	if len(all) > n {
		all = all[:n]
	}
	out := make([]model.Talker, len(all))
	for i, r := range all {
		out[i] = model.Talker{IP: r.ip, Count: r.count}
	}
	return out
}

// Recent returns the last n records, oldest first.
func (s *Store) Recent(n int) []model.PacketRecord {
	s.mu.RLock()
	defer s.mu.RUnlock()

	if n <= 0 {
		return []model.PacketRecord{}
	}
	if n > s.size {
		n = s.size
	}
	return s.copyWindow(s.size-n, n)
}

// All returns every record in the recent buffer, oldest first.
func (s *Store) All() []model.PacketRecord {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.copyWindow(0, s.size)
}

// copyWindow copies n records starting at logical offset from; caller holds the lock.
func (s *Store) copyWindow(from, n int) []model.PacketRecord {
	out := make([]model.PacketRecord, n)
	capacity := len(s.recent)
	for i := 0; i < n; i++ {
		out[i] = s.recent[(s.head+from+i)%capacity]
	}
	return out
}

// Reset clears every counter, the recent buffer and the start time.
func (s *Store) Reset() {
	s.mu.Lock()
	defer s.mu.Unlock()

	s.totalPackets = 0
	s.totalBytes = 0
	s.protocols = make(map[string]uint64)
	s.talkers = make(map[string]*talker)
	s.nextSeq = 0
	s.startTime = time.Time{}
	clear(s.recent)
	s.head = 0
	s.size = 0
}
