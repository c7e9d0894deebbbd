package stats

import (
	"fmt"
	"sync"
	"testing"
	"time"

	"Go2NetPulse/internal/model"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func record(src, proto string, size int) model.PacketRecord {
	return model.PacketRecord{
		Timestamp: time.Now(),
		SourceIP:  src,
		DestIP:    "10.0.0.254",
		Protocol:  proto,
		Size:      size,
	}
}

func TestStore_TotalsMatchRecordCalls(t *testing.T) {
	s := NewStore(0)
	for i := 0; i < 250; i++ {
		s.Record(record(fmt.Sprintf("10.0.%d.%d", i/100, i%7), "TCP", 10))
	}

	st := s.Stats()
	assert.EqualValues(t, 250, st.TotalPackets)
	assert.EqualValues(t, 2500, st.TotalBytes)
	assert.Equal(t, 21, st.ActiveIPs)
	assert.Zero(t, st.DurationSeconds)
	assert.False(t, st.IsCapturing)
}

func TestStore_RecentEvictsOldestFirst(t *testing.T) {
	s := NewStore(DefaultRecentCapacity)
	for i := 0; i < 1005; i++ {
		rec := record("10.0.0.1", "UDP", 1)
		rec.DestPort = uint16(i)
		s.Record(rec)
	}

	all := s.All()
	require.Len(t, all, DefaultRecentCapacity)
	for _, rec := range all {
		assert.GreaterOrEqual(t, rec.DestPort, uint16(5), "records 0-4 should have been evicted")
	}
	assert.EqualValues(t, 5, all[0].DestPort)
	assert.EqualValues(t, 1004, all[len(all)-1].DestPort)
	assert.EqualValues(t, 1005, s.Stats().TotalPackets)
}

func TestStore_RecentWindow(t *testing.T) {
	s := NewStore(10)
	for i := 0; i < 3; i++ {
		rec := record("10.0.0.1", "UDP", 1)
		rec.DestPort = uint16(i)
		s.Record(rec)
	}

	assert.Len(t, s.Recent(20), 3, "fewer than n records returns all")

	for i := 3; i < 15; i++ {
		rec := record("10.0.0.1", "UDP", 1)
		rec.DestPort = uint16(i)
		s.Record(rec)
	}

	recent := s.Recent(4)
	require.Len(t, recent, 4)
	for i, rec := range recent {
		assert.EqualValues(t, 11+i, rec.DestPort)
	}
	assert.Empty(t, s.Recent(0))
}

func TestStore_TopTalkers(t *testing.T) {
	s := NewStore(0)
	counts := map[string]int{"10.0.0.3": 1, "10.0.0.1": 5, "10.0.0.2": 3, "10.0.0.4": 3, "10.0.0.5": 2, "10.0.0.6": 7}
	order := []string{"10.0.0.3", "10.0.0.1", "10.0.0.2", "10.0.0.4", "10.0.0.5", "10.0.0.6"}
	for _, ip := range order {
		for i := 0; i < counts[ip]; i++ {
			s.Record(record(ip, "TCP", 1))
		}
	}

	top := s.TopTalkers(5)
	require.Len(t, top, 5)
	for i := 1; i < len(top); i++ {
		assert.LessOrEqual(t, top[i].Count, top[i-1].Count)
	}
	assert.Equal(t, []model.Talker{
		{IP: "10.0.0.6", Count: 7},
		{IP: "10.0.0.1", Count: 5},
		{IP: "10.0.0.2", Count: 3},
		{IP: "10.0.0.4", Count: 3},
		{IP: "10.0.0.5", Count: 2},
	}, top)

	assert.Len(t, s.TopTalkers(100), 6)
	assert.Empty(t, s.TopTalkers(0))
}

func TestStore_ProtocolDistributionIsACopy(t *testing.T) {
	s := NewStore(0)
	s.Record(record("10.0.0.1", "HTTP", 1))
	s.Record(record("10.0.0.1", "DNS", 1))
	s.Record(record("10.0.0.2", "HTTP", 1))

	dist := s.ProtocolDistribution()
	assert.Equal(t, map[string]uint64{"HTTP": 2, "DNS": 1}, dist)

	dist["HTTP"] = 99
	assert.EqualValues(t, 2, s.ProtocolDistribution()["HTTP"])
}

func TestStore_Duration(t *testing.T) {
	s := NewStore(0)
	start := time.Date(2024, 1, 1, 12, 0, 0, 0, time.UTC)
	s.now = func() time.Time { return start.Add(90*time.Second + 900*time.Millisecond) }

	s.MarkStarted(start)
	assert.EqualValues(t, 90, s.Stats().DurationSeconds)
}

func TestStore_Reset(t *testing.T) {
	s := NewStore(0)
	s.MarkStarted(time.Now())
	for i := 0; i < 10; i++ {
		s.Record(record("10.0.0.1", "ICMP", 64))
	}

	s.Reset()

	st := s.Stats()
	assert.Zero(t, st.TotalPackets)
	assert.Zero(t, st.TotalBytes)
	assert.Zero(t, st.ActiveIPs)
	assert.Zero(t, st.DurationSeconds)
	assert.Empty(t, s.Recent(20))
	assert.Empty(t, s.ProtocolDistribution())
	assert.Empty(t, s.TopTalkers(5))

	s.Record(record("10.0.0.9", "UDP", 1))
	assert.Equal(t, []model.PacketRecord{s.All()[0]}, s.Recent(5))
	assert.EqualValues(t, 1, s.Stats().TotalPackets)
}

func TestStore_SnapshotsAreConsistentUnderConcurrency(t *testing.T) {
	s := NewStore(50)
	const writes = 5000

	var wg sync.WaitGroup
	wg.Add(1)
	go func() {
		defer wg.Done()
		for i := 0; i < writes; i++ {
			s.Record(record("10.0.0.1", "TCP", 2))
		}
	}()

	for r := 0; r < 4; r++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			for i := 0; i < 500; i++ {
				st := s.Stats()
				// each Record adds exactly 2 bytes
				assert.Equal(t, st.TotalPackets*2, st.TotalBytes)
				assert.LessOrEqual(t, len(s.Recent(100)), 50)
				_ = s.TopTalkers(5)
			}
		}()
	}
	wg.Wait()

	assert.EqualValues(t, writes, s.Stats().TotalPackets)
	assert.EqualValues(t, writes, s.ProtocolDistribution()["TCP"])
}
