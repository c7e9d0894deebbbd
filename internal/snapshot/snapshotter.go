package snapshot

import (
	"context"
	"sync"
	"time"

	"Go2NetPulse/internal/logging"
	"Go2NetPulse/internal/model"

	"github.com/sirupsen/logrus"
)

const finalWriteTimeout = 10 * time.Second

// Source produces statistics snapshots.
type Source interface {
	Snapshot(topTalkers int) model.StatsSnapshot
}

// Snapshotter periodically hands snapshots of a Source to each writer, every
// writer on its own interval.
type Snapshotter struct {
	source     Source
	writers    []model.Writer
	topTalkers int
	log        *logrus.Entry
}

// NewSnapshotter creates a snapshotter. topTalkers bounds the talker list of
// every snapshot.
func NewSnapshotter(source Source, writers []model.Writer, topTalkers int) *Snapshotter {
	return &Snapshotter{
		source:     source,
		writers:    writers,
		topTalkers: topTalkers,
		log:        logging.For("snapshot"),
	}
}

// Run blocks until ctx is cancelled. Each writer receives one last snapshot
// before Run returns.
func (s *Snapshotter) Run(ctx context.Context) error {
	var wg sync.WaitGroup
	for _, w := range s.writers {
		wg.Add(1)
		go func(w model.Writer) {
			defer wg.Done()
			s.runWriter(ctx, w)
		}(w)
		s.log.WithFields(logrus.Fields{"writer": w.Name(), "interval": w.GetInterval()}).Info("Started snapshotter")
	}
	wg.Wait()
	return nil
}

func (s *Snapshotter) runWriter(ctx context.Context, w model.Writer) {
	interval := w.GetInterval()
	if interval <= 0 {
		s.log.WithField("writer", w.Name()).Warnf("Invalid interval %s, snapshotter will not run", interval)
		return
	}
	ticker := time.NewTicker(interval)
	defer ticker.Stop()

	for {
		select {
		case <-ticker.C:
			s.write(ctx, w)
		case <-ctx.Done():
			final, cancel := context.WithTimeout(context.Background(), finalWriteTimeout)
			s.write(final, w)
			cancel()
			return
		}
	}
}

func (s *Snapshotter) write(ctx context.Context, w model.Writer) {
	snap := s.source.Snapshot(s.topTalkers)
	if err := w.Write(ctx, snap); err != nil {
		s.log.WithError(err).WithField("writer", w.Name()).Error("Error writing snapshot")
	}
}
