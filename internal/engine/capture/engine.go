package capture

import (
	"context"
	"errors"
	"fmt"
	"io"
	"sync"
	"sync/atomic"
	"time"

	"Go2NetPulse/internal/engine/protocol"
	"Go2NetPulse/internal/engine/stats"
	"Go2NetPulse/internal/logging"
	"Go2NetPulse/internal/metrics"
	"Go2NetPulse/internal/model"
	pcapsrc "Go2NetPulse/pkg/pcap"

	"github.com/google/gopacket"
	"github.com/sirupsen/logrus"
)

// ErrCaptureActive is returned by Reset while a capture session is running.
var ErrCaptureActive = errors.New("capture is running, stop it before resetting")

// Options configures an Engine.
type Options struct {
	// Opener opens the capture source for a device name.
	Opener pcapsrc.Opener
	// Interface is used when Start is called without a device name.
	Interface      string
	RecentCapacity int
	Metrics        *metrics.Metrics
	// Sinks receive every recorded PacketRecord, in arrival order.
	Sinks []model.RecordSink
}

// session is one run of the ingestion goroutine.
type session struct {
	device string
	source pcapsrc.Source
	active atomic.Bool
	done   chan struct{}
}

// Engine runs a background ingestion loop that classifies packets and feeds
// the statistics store. It is Idle until Start and returns to Idle on Stop,
// on source exhaustion or on a read failure.
type Engine struct {
	opener        pcapsrc.Opener
	defaultDevice string
	store         *stats.Store
	metrics       *metrics.Metrics
	sinks         []model.RecordSink
	log           *logrus.Entry
	now           func() time.Time

	// mu serialises Start, Stop and Reset. The ingestion path never takes it.
	mu        sync.Mutex
	capturing atomic.Bool
	current   *session
}

// New creates an idle Engine.
func New(opts Options) *Engine {
	return &Engine{
		opener:        opts.Opener,
		defaultDevice: opts.Interface,
		store:         stats.NewStore(opts.RecentCapacity),
		metrics:       opts.Metrics,
		sinks:         opts.Sinks,
		log:           logging.For("capture"),
		now:           time.Now,
	}
}

// Start opens the capture source and launches the ingestion goroutine.
// It is a no-op while capturing. Open failures are returned to the caller.
// If a previous session is still winding down, Start waits for it so that
// at most one ingestion goroutine exists; the wait is bounded by one read.
func (e *Engine) Start(device string) error {
	e.mu.Lock()
	defer e.mu.Unlock()

	if e.capturing.Load() {
		return nil
	}
	if e.current != nil {
		<-e.current.done
	}

	if device == "" {
		device = e.defaultDevice
	}
	src, err := e.opener(device)
	if err != nil {
		return fmt.Errorf("failed to start capture: %w", err)
	}

	s := &session{device: device, source: src, done: make(chan struct{})}
	s.active.Store(true)
	e.current = s

	e.store.MarkStarted(e.now())
	e.capturing.Store(true)
	e.metrics.SetCapturing(true)
	e.log.WithField("interface", displayDevice(device)).Info("Capture started")

	go e.run(s)
	return nil
}

// Stop signals the ingestion goroutine to exit. It returns immediately; the
// goroutine notices on its next iteration and then closes the source.
func (e *Engine) Stop() {
	e.mu.Lock()
	defer e.mu.Unlock()

	if !e.capturing.Load() {
		return
	}
	e.capturing.Store(false)
	e.metrics.SetCapturing(false)
	if e.current != nil {
		e.current.active.Store(false)
	}
	e.log.Info("Capture stop requested")
}

// Reset clears all statistics. It fails with ErrCaptureActive while capturing.
func (e *Engine) Reset() error {
	e.mu.Lock()
	defer e.mu.Unlock()

	if e.capturing.Load() {
		return ErrCaptureActive
	}
	if e.current != nil {
		<-e.current.done
	}
	e.store.Reset()
	e.log.Info("Statistics reset")
	return nil
}

// Shutdown stops capturing and waits until the ingestion goroutine has exited
// and released the capture source, or until ctx is done.
func (e *Engine) Shutdown(ctx context.Context) error {
	e.Stop()

	e.mu.Lock()
	s := e.current
	e.mu.Unlock()
	if s == nil {
		return nil
	}

	select {
	case <-s.done:
		return nil
	case <-ctx.Done():
		return ctx.Err()
	}
}

// IsCapturing reports whether a session is active.
func (e *Engine) IsCapturing() bool {
	return e.capturing.Load()
}

// Reader exposes the read-only statistics accessors.
func (e *Engine) Reader() stats.Reader {
	return e.store
}

func (e *Engine) run(s *session) {
	defer close(s.done)
	defer s.source.Close()

	log := e.log.WithField("interface", displayDevice(s.device))
	var packets uint64

	for s.active.Load() {
		packet, err := s.source.NextPacket()
		if err != nil {
			if errors.Is(err, pcapsrc.ErrTimeout) {
				continue
			}
			if errors.Is(err, io.EOF) {
				log.Info("Capture source exhausted")
			} else {
				log.WithError(err).Error("Capture read failed, stopping capture")
			}
			break
		}
		// Stop arrived while the read was blocked.
		if !s.active.Load() {
			break
		}

		e.ingest(packet)
		packets++
		if packets == 1 {
			log.Info("Successfully capturing packets")
		} else if packets%1000 == 0 {
			log.Debugf("%d packets read so far", packets)
		}
	}

	// The loop ended without Stop: reconcile the engine state.
	if s.active.Swap(false) {
		e.capturing.Store(false)
		e.metrics.SetCapturing(false)
	}
	log.WithField("packets", packets).Info("Capture loop exited")
}

// ingest classifies one packet and records it. Unclassifiable packets are dropped.
func (e *Engine) ingest(packet gopacket.Packet) {
	decoded := protocol.ParsePacket(packet)
	label, err := protocol.Classify(decoded)
	if err != nil {
		e.metrics.ObserveDropped()
		e.log.Trace("Dropped packet without IPv4 header")
		return
	}

	srcPort, dstPort := decoded.Ports()
	rec := model.PacketRecord{
		Timestamp:  e.now(),
		SourceIP:   decoded.IPv4.SrcIP.String(),
		DestIP:     decoded.IPv4.DstIP.String(),
		SourcePort: srcPort,
		DestPort:   dstPort,
		Protocol:   string(label),
		Size:       decoded.Length,
	}

	e.store.Record(rec)
	e.metrics.ObservePacket(rec)
	for _, sink := range e.sinks {
		if err := sink.Publish(rec); err != nil {
			e.log.WithError(err).Debug("Failed to publish packet record")
		}
	}
}

func displayDevice(device string) string {
	if device == "" {
		return "default"
	}
	return device
}
